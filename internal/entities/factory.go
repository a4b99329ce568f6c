package entities

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"opsflow/internal/config"
	"opsflow/internal/constants"
	"opsflow/internal/logger"
	"opsflow/pkg/circuitbreaker"
)

type Stores struct {
	Postgres *sql.DB
	Mongo    *mongo.Database
	Redis    *redis.Client
}

// NewLoader builds the configured source, wrapped in a circuit breaker when
// enabled and in a Redis cache when a client and TTL are available.
func NewLoader(cfg *config.Config, stores Stores, log logger.Logger) (Loader, error) {
	tables := NewTables(cfg.Entities.Tables)

	var (
		loader Loader
		source = cfg.Entities.Source
	)
	switch source {
	case "", constants.SourceTypePostgreSQL:
		if stores.Postgres == nil {
			return nil, fmt.Errorf("postgresql entity source requires a database connection")
		}
		loader = NewPostgresLoader(stores.Postgres, tables)
		source = constants.SourceTypePostgreSQL
	case constants.SourceTypeMongoDB:
		if stores.Mongo == nil {
			return nil, fmt.Errorf("mongodb entity source requires a mongodb connection")
		}
		loader = NewMongoLoader(stores.Mongo, tables)
	default:
		return nil, fmt.Errorf("unsupported entity source: %s", source)
	}

	if cfg.CircuitBreaker.Enabled {
		loader = NewCircuitBreakerLoader(loader, circuitbreaker.FromConfig("entities-"+source, cfg.CircuitBreaker))
	}

	if stores.Redis != nil && cfg.Entities.CacheTTLSeconds > 0 {
		ttl := time.Duration(cfg.Entities.CacheTTLSeconds) * time.Second
		loader = NewCachedLoader(loader, stores.Redis, ttl, log)
	}

	log.Infow("Entity loader configured",
		"source", source,
		"circuit_breaker", cfg.CircuitBreaker.Enabled,
		"cache_ttl_seconds", cfg.Entities.CacheTTLSeconds,
	)

	return loader, nil
}
