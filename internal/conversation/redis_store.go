package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const activityIndexKey = "conversations:activity"

// RedisStore keeps each conversation as a JSON string under
// conversation:{phone} and indexes lastActivity in a sorted set.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

var _ DocumentStore = (*RedisStore)(nil)

// NewRedisStore wraps a go-redis client. A nil tracer uses the global provider.
func NewRedisStore(client *redis.Client, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("heitor.internal.conversation.redis")
	}
	return &RedisStore{redis: client, tracer: tracer}
}

func (s *RedisStore) Load(ctx context.Context, phone string) (*Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.redis.load", trace.WithAttributes(attribute.String("phone", phone)))
	defer span.End()

	data, err := s.redis.Get(ctx, documentKey(phone)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, storageErr("load", err)
	}
	conv, err := decodeDocument(data)
	if err != nil {
		span.RecordError(err)
		return nil, storageErr("load", err)
	}
	return conv, nil
}

func (s *RedisStore) Insert(ctx context.Context, conv *Conversation) error {
	ctx, span := s.tracer.Start(ctx, "conversation.redis.insert")
	defer span.End()

	data, err := encodeDocument(conv)
	if err != nil {
		span.RecordError(err)
		return storageErr("insert", err)
	}
	key := documentKey(conv.PhoneNumber)
	created, err := s.redis.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		span.RecordError(err)
		return storageErr("insert", err)
	}
	if !created {
		return ErrDuplicateKey
	}
	if err := s.redis.ZAdd(ctx, activityIndexKey, activityMember(conv)).Err(); err != nil {
		span.RecordError(err)
		// Roll back so a retry can create the document cleanly.
		_ = s.redis.Del(context.WithoutCancel(ctx), key).Err()
		return storageErr("insert", err)
	}
	return nil
}

// Save runs under WATCH so a writer that loses the race gets ErrConflict
// instead of overwriting the winner.
func (s *RedisStore) Save(ctx context.Context, conv *Conversation, prevVersion int64) error {
	ctx, span := s.tracer.Start(ctx, "conversation.redis.save", trace.WithAttributes(attribute.Int64("version", conv.Version)))
	defer span.End()

	data, err := encodeDocument(conv)
	if err != nil {
		span.RecordError(err)
		return storageErr("save", err)
	}
	key := documentKey(conv.PhoneNumber)
	err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		current, err := decodeDocument(raw)
		if err != nil {
			return err
		}
		if current.Version != prevVersion {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, activityIndexKey, activityMember(conv))
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	default:
		span.RecordError(err)
		return storageErr("save", err)
	}
}

func (s *RedisStore) FindByActivity(ctx context.Context, start, end time.Time) ([]*Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.redis.find_by_activity")
	defer span.End()

	phones, err := s.redis.ZRangeByScore(ctx, activityIndexKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(start.UnixMilli(), 10),
		Max: strconv.FormatInt(end.UnixMilli(), 10),
	}).Result()
	if err != nil {
		span.RecordError(err)
		return nil, storageErr("find by activity", err)
	}
	if len(phones) == 0 {
		return nil, nil
	}

	keys := make([]string, len(phones))
	for i, phone := range phones {
		keys[i] = documentKey(phone)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return nil, storageErr("find by activity", err)
	}

	out := make([]*Conversation, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		conv, err := decodeDocument([]byte(raw))
		if err != nil {
			span.RecordError(err)
			return nil, storageErr("find by activity", err)
		}
		// The index has millisecond resolution; recheck the exact bound.
		if inWindow(conv.LastActivity, start, end) {
			out = append(out, conv)
		}
	}
	return out, nil
}

func documentKey(phone string) string {
	return fmt.Sprintf("conversation:%s", phone)
}

func activityMember(conv *Conversation) redis.Z {
	return redis.Z{Score: float64(conv.LastActivity.UnixMilli()), Member: conv.PhoneNumber}
}
