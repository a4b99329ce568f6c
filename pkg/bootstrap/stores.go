package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"opsflow/internal/constants"
	"opsflow/internal/entities"
	"opsflow/pkg/health"
	"opsflow/pkg/migrations"
)

// Stores holds every connection the automation services use.
type Stores struct {
	Postgres *sql.DB
	Redis    *redis.Client
	Mongo    *mongo.Client
	MongoDB  *mongo.Database
}

// ConnectStores opens PostgreSQL (migrating it when configured) and the
// optional Redis cache and MongoDB entity store. A Redis failure only
// disables the cache.
func (dc *DatabaseConnector) ConnectStores(ctx context.Context) (*Stores, error) {
	s := &Stores{}

	db, err := dc.InitPostgreSQL(ctx)
	if err != nil {
		return nil, err
	}
	s.Postgres = db

	if err := dc.MigratePostgreSQL(ctx, db); err != nil {
		dc.ShutdownStores(ctx, s)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	rdb, err := dc.InitRedis(ctx)
	if err != nil {
		dc.Logger.WarnwCtx(ctx, "Redis unavailable, entity cache disabled", "error", err)
	}
	s.Redis = rdb

	if dc.Config.Entities.Source == constants.SourceTypeMongoDB {
		client, err := dc.InitMongoDB(ctx)
		if err != nil {
			dc.ShutdownStores(ctx, s)
			return nil, err
		}
		s.Mongo = client
		s.MongoDB = dc.MongoDatabase(client)

		if s.MongoDB != nil {
			tables := entities.NewTables(dc.Config.Entities.Tables)
			if err := migrations.EnsureEntityIndexes(ctx, s.MongoDB, tables.Names()); err != nil {
				dc.Logger.WarnwCtx(ctx, "Failed to ensure entity indexes", "error", err)
			}
		}
	}

	return s, nil
}

func (s *Stores) Entities() entities.Stores {
	return entities.Stores{
		Postgres: s.Postgres,
		Mongo:    s.MongoDB,
		Redis:    s.Redis,
	}
}

// RegisterHealth adds a checker per open connection. The cache is optional.
func (s *Stores) RegisterHealth(r *health.CheckerRegistry) {
	if s.Postgres != nil {
		r.Register(health.NewPostgreSQLChecker(s.Postgres))
	}
	if s.Mongo != nil {
		r.Register(health.NewMongoDBChecker(s.Mongo))
	}
	if s.Redis != nil {
		r.RegisterOptional(health.NewRedisChecker(s.Redis))
	}
}

func (dc *DatabaseConnector) ShutdownStores(ctx context.Context, s *Stores) []error {
	if s == nil {
		return nil
	}
	return dc.ShutdownDatabases(ctx, s.Redis, s.Postgres, s.Mongo)
}
