package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/heitor/internal/config"
	"github.com/wolfman30/heitor/internal/conversation"
	"github.com/wolfman30/heitor/pkg/logging"
)

// AWSClients carries the SDK clients the builders may need. Any of them may
// be nil when the matching backend is not selected.
type AWSClients struct {
	SQS      *sqs.Client
	DynamoDB *dynamodb.Client
	SES      *sesv2.Client
	Bedrock  *bedrockruntime.Client
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildStore selects the conversation document store from STORE_BACKEND. The
// returned cleanup releases pools and clients.
func BuildStore(ctx context.Context, cfg *appconfig.Config, clients AWSClients, logger *logging.Logger) (conversation.DocumentStore, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() {}

	switch cfg.StoreBackend {
	case "", "memory":
		logger.Warn("using in-memory conversation store; state is lost on restart")
		return conversation.NewMemoryStore(), noop, nil
	case "redis":
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, nil, fmt.Errorf("bootstrap: redis store selected but %q is unreachable", cfg.RedisAddr)
		}
		return conversation.NewRedisStore(client, nil), func() { _ = client.Close() }, nil
	case "dynamodb":
		if clients.DynamoDB == nil {
			return nil, nil, fmt.Errorf("bootstrap: dynamodb store selected without a client")
		}
		return conversation.NewDynamoStore(clients.DynamoDB, cfg.ConversationsTable, logger), noop, nil
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, nil, fmt.Errorf("bootstrap: postgres store selected without DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
		}
		return conversation.NewPostgresStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown store backend %q", cfg.StoreBackend)
	}
}
