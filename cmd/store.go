package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fjod/go_cart/marketplace-cart/internal/kvstore"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// openStore connects the configured backend and puts it behind a circuit breaker.
// The returned func releases the backend's connections.
func openStore(ctx context.Context, cfg *Config, log *slog.Logger) (kvstore.Store, func(), error) {
	var (
		backend kvstore.Store
		closeFn = func() {}
	)

	switch cfg.StoreBackend {
	case "memory":
		backend = kvstore.NewMemoryStore()

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping failed: %w", err)
		}
		backend = kvstore.NewRedisStore(client)
		closeFn = func() { _ = client.Close() }

	case "mongo":
		db, err := kvstore.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		store := kvstore.NewMongoStore(db, kvstore.WithExpiry(cfg.MongoExpiry))
		if err := store.CreateIndexes(ctx); err != nil {
			log.Warn("failed to create mongo indexes", "error", err)
		}
		backend = store
		closeFn = func() { _ = db.Client().Disconnect(context.Background()) }

	case "sqlite", "postgres":
		var (
			store *kvstore.SQLStore
			err   error
		)
		if cfg.StoreBackend == "sqlite" {
			store, err = kvstore.NewSQLiteStore(cfg.SQLitePath)
		} else {
			store, err = kvstore.NewPostgresStore(cfg.PostgresDSN)
		}
		if err != nil {
			return nil, nil, err
		}
		if err := store.RunMigrations(); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		backend = store
		closeFn = func() { _ = store.Close() }

	case "kafka":
		store := kvstore.NewKafkaStore(cfg.KafkaTopic, cfg.KafkaBrokers...)
		if err := store.CreateTopic(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		backend = store
		closeFn = func() { _ = store.Close() }

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	guarded := kvstore.NewBreakerStore(backend, kvstore.BreakerSettings{
		Name: cfg.StoreBackend,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("store circuit breaker state changed", "backend", name, "from", from.String(), "to", to.String())
		},
	})

	return guarded, closeFn, nil
}
