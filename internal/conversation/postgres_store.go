package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists conversations as JSONB documents keyed by phone number.
type PostgresStore struct {
	pool rowQuerier
}

var _ DocumentStore = (*PostgresStore)(nil)

// NewPostgresStore builds a store on a pgx pool; see migrations/ for the schema.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool cannot be nil")
	}
	return &PostgresStore{pool: pool}
}

func newPostgresStoreWithExec(exec rowQuerier) *PostgresStore {
	if exec == nil {
		panic("conversation: exec required")
	}
	return &PostgresStore{pool: exec}
}

func (s *PostgresStore) Load(ctx context.Context, phone string) (*Conversation, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM conversations WHERE phone_number = $1`, phone).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("load", err)
	}
	conv, err := decodeDocument(data)
	if err != nil {
		return nil, storageErr("load", err)
	}
	return conv, nil
}

func (s *PostgresStore) Insert(ctx context.Context, conv *Conversation) error {
	data, err := encodeDocument(conv)
	if err != nil {
		return storageErr("insert", err)
	}
	query := `
		INSERT INTO conversations (phone_number, id, is_group, last_activity, document, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, conv.PhoneNumber, conv.ID, conv.IsGroup, conv.LastActivity, data, conv.CreatedAt, conv.UpdatedAt, conv.Version)
	if err != nil {
		return storageErr("insert", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrDuplicateKey
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, conv *Conversation, prevVersion int64) error {
	data, err := encodeDocument(conv)
	if err != nil {
		return storageErr("save", err)
	}
	query := `
		UPDATE conversations
		SET last_activity = $2,
		    document = $3,
		    updated_at = $4,
		    version = $5
		WHERE phone_number = $1 AND version = $6
	`
	ct, err := s.pool.Exec(ctx, query, conv.PhoneNumber, conv.LastActivity, data, conv.UpdatedAt, conv.Version, prevVersion)
	if err != nil {
		return storageErr("save", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE phone_number = $1)`, conv.PhoneNumber).Scan(&exists)
	if err != nil {
		return storageErr("save", err)
	}
	if exists {
		return ErrConflict
	}
	return ErrNotFound
}

func (s *PostgresStore) FindByActivity(ctx context.Context, start, end time.Time) ([]*Conversation, error) {
	query := `
		SELECT document
		FROM conversations
		WHERE last_activity BETWEEN $1 AND $2
		ORDER BY last_activity DESC
	`
	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, storageErr("find by activity", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, storageErr("find by activity", err)
		}
		conv, err := decodeDocument(data)
		if err != nil {
			return nil, storageErr("find by activity", err)
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("find by activity", err)
	}
	return out, nil
}
