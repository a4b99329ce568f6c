package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opsflow/internal/config"
	"opsflow/internal/constants"
	"opsflow/internal/logger"
	"opsflow/pkg/migrations"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// InitRedis returns nil when no host is configured; the entity cache is
// optional.
func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	if dc.Config.Database.Redis.Host == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.Config.Database.Redis.Host, dc.Config.Database.Redis.Port),
		Password: dc.Config.Database.Redis.Password,
		DB:       dc.Config.Database.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.InfowCtx(ctx, "Redis connected successfully")
	return rdb, nil
}

func (dc *DatabaseConnector) PostgresDSN() string {
	pg := dc.Config.Database.Postgres
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pg.User, pg.Password, pg.Host, pg.Port, pg.DBName, pg.SSLMode)
}

// InitPostgreSQL opens the run store. Rules, runs and the outbox live here,
// so unlike the other stores it is required.
func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	if dc.Config.Database.Postgres.Host == "" {
		return nil, fmt.Errorf("database.postgres.host is required")
	}

	db, err := sql.Open("postgres", dc.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if n := dc.Config.Database.Postgres.MaxOpenConns; n > 0 {
		db.SetMaxOpenConns(n)
	}
	if n := dc.Config.Database.Postgres.MaxIdleConns; n > 0 {
		db.SetMaxIdleConns(n)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dc.Logger.InfowCtx(ctx, "PostgreSQL connected successfully")
	return db, nil
}

// MigratePostgreSQL applies pending migrations when database.run_migrations
// is set.
func (dc *DatabaseConnector) MigratePostgreSQL(ctx context.Context, db *sql.DB) error {
	if !dc.Config.Database.RunMigrations {
		return nil
	}

	if err := migrations.RunPostgres(db, dc.Config.Database.MigrationsPath, migrations.Up); err != nil {
		return err
	}

	version, _, err := migrations.PostgresVersion(db, dc.Config.Database.MigrationsPath)
	if err != nil {
		return err
	}
	dc.Logger.InfowCtx(ctx, "PostgreSQL migrations applied", "version", version)
	return nil
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	if dc.Config.Database.MongoDB.URI == "" {
		return nil, nil // MongoDB is optional
	}

	mongoOpts := options.Client().ApplyURI(dc.Config.Database.MongoDB.URI)
	mongoClient, err := mongo.Connect(ctx, mongoOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := mongoClient.Ping(ctx, nil); err != nil {
		mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dc.Logger.InfowCtx(ctx, "MongoDB connected successfully")
	return mongoClient, nil
}

func (dc *DatabaseConnector) MongoDatabase(client *mongo.Client) *mongo.Database {
	if client == nil {
		return nil
	}
	name := dc.Config.Database.MongoDB.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	return client.Database(name)
}

func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, redis *redis.Client, postgres *sql.DB, mongo *mongo.Client) []error {
	var errs []error

	if redis != nil {
		if err := redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if postgres != nil {
		if err := postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}

	if mongo != nil {
		if err := mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}

	return errs
}

// Migrate connects to PostgreSQL and moves the schema in dir, regardless of
// database.run_migrations.
func (dc *DatabaseConnector) Migrate(ctx context.Context, dir migrations.Direction) error {
	db, err := dc.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.RunPostgres(db, dc.Config.Database.MigrationsPath, dir); err != nil {
		return err
	}

	version, dirty, err := migrations.PostgresVersion(db, dc.Config.Database.MigrationsPath)
	if err != nil {
		return err
	}
	dc.Logger.InfowCtx(ctx, "PostgreSQL migrations complete", "direction", dir, "version", version, "dirty", dirty)
	return nil
}
