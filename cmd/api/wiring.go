package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"metarepo/internal/config"
	"metarepo/internal/database"
	"metarepo/internal/database/migration"
	"metarepo/internal/identity"
	"metarepo/internal/lock"
	"metarepo/internal/repository"
	"metarepo/internal/repository/localfile"
	"metarepo/internal/repository/relational"
	"metarepo/internal/repository/searchindex"
)

// backend is what every storage implementation offers.
type backend interface {
	repository.DocumentRepository
	repository.Pinger
}

func openBackend(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (backend, func(), error) {
	switch cfg.Backend {
	case config.BackendRelational:
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := migration.EnsureMigrated(ctx, db, log); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		dialect, ok := relational.DialectFor(cfg.Database.Driver)
		if !ok {
			db.Close()
			return nil, nil, fmt.Errorf("no dialect for driver %q", cfg.Database.Driver)
		}
		return relational.New(db, dialect, log), func() { db.Close() }, nil

	case config.BackendSearch:
		timeout := time.Duration(cfg.Mongo.TimeoutSec) * time.Second
		opts := options.Client().ApplyURI(cfg.Mongo.URI).SetTimeout(timeout)
		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mongo: %w", err)
		}
		disconnect := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		store := searchindex.New(client.Database(cfg.Mongo.Database), cfg.Mongo.Collection, log)
		if err := store.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, nil, fmt.Errorf("create indexes: %w", err)
		}
		return store, disconnect, nil

	case config.BackendLocal:
		store, err := localfile.New(cfg.Local.Path, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open catalog file: %w", err)
		}
		return store, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
}

func instrument(b backend, name string, reg prometheus.Registerer) (backend, error) {
	r, err := repository.NewInstrumented(b, name, reg)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newLocker(ctx context.Context, c config.LockConfig, log *zap.Logger) (lock.Locker, func(), error) {
	wait := time.Duration(c.WaitMillis) * time.Millisecond
	if c.Backend != "redis" {
		return lock.NewLocal(wait), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	ttl := time.Duration(c.TTLSec) * time.Second
	return lock.NewRedis(client, "metarepo:lock:", ttl, wait, log), func() { client.Close() }, nil
}

func newAuthenticator(c config.IdentityConfig, log *zap.Logger) (identity.Authenticator, error) {
	if c.Mode == "jwt" {
		return identity.NewJWTAuthenticator(c.JWTSecret), nil
	}
	client, err := identity.NewServiceClient(c, log)
	if err != nil {
		return nil, fmt.Errorf("init identity client: %w", err)
	}
	return client, nil
}
