package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geocoder89/countryauth/internal/config"
	"github.com/geocoder89/countryauth/internal/db"
	"github.com/geocoder89/countryauth/internal/domain/user"
	"github.com/geocoder89/countryauth/internal/observability"
	"github.com/geocoder89/countryauth/internal/repo/memory"
	"github.com/geocoder89/countryauth/internal/repo/mongo"
	"github.com/geocoder89/countryauth/internal/repo/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

// the store container may still be starting when the api boots
const connectAttempts = 4

// openStore connects the configured credential store and prepares its
// indexes or schema. The returned close func releases the connection.
func openStore(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) (user.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, err := db.Retry(ctx, "mongo", connectAttempts, func() (*mongodriver.Client, error) {
			return db.NewMongo(cfg.MongoURI)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}

		repo := mongo.NewUsersRepo(client.Database(cfg.MongoDatabase), prom)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}

		log.Info("credential store ready", "driver", cfg.StoreDriver, "database", cfg.MongoDatabase)

		return repo, func() { _ = client.Disconnect(context.Background()) }, nil

	case config.DriverPostgres:
		pool, err := db.Retry(ctx, "postgres", connectAttempts, func() (*pgxpool.Pool, error) {
			return db.NewPool(cfg.DBURL)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}

		repo := postgres.NewUsersRepo(pool, prom)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}

		log.Info("credential store ready", "driver", cfg.StoreDriver)

		return repo, pool.Close, nil

	case config.DriverMemory:
		log.Warn("using in-memory credential store; accounts are lost on restart")
		return memory.NewUsersRepo(), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}
