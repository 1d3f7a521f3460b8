package store

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/cloudguard/common/config"
)

// Backend names accepted by Open.
const (
	BackendMemory     = "memory"
	BackendRedis      = "redis"
	BackendPostgres   = "postgres"
	BackendDynamoDB   = "dynamodb"
	BackendOpenSearch = "opensearch"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	AutoMigrate bool

	Redis      config.RedisConfig
	Postgres   config.PostgresConfig
	OpenSearch config.OpenSearchConfig
	DynamoDB   DynamoDBConfig
}

// Open connects to the configured backend. With AutoMigrate set, schema
// objects (tables, indexes) are created first.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil

	case BackendRedis:
		return NewRedisStore(ctx, opts.Redis)

	case BackendPostgres:
		connString := opts.Postgres.ConnString()
		if opts.AutoMigrate {
			if err := Migrate(connString); err != nil {
				return nil, err
			}
		}
		return NewPostgresStore(ctx, connString)

	case BackendDynamoDB:
		s, err := NewDynamoDBStore(ctx, opts.DynamoDB)
		if err != nil {
			return nil, err
		}
		if opts.AutoMigrate {
			if err := s.EnsureTable(ctx); err != nil {
				return nil, err
			}
		}
		return s, nil

	case BackendOpenSearch:
		s, err := NewOpenSearchStore(opts.OpenSearch)
		if err != nil {
			return nil, err
		}
		if opts.AutoMigrate {
			if err := s.EnsureIndex(ctx); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
}

// Purger is implemented by backends without native expiry.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}
