package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	bolt "go.etcd.io/bbolt"

	"taskflow/cmd/identity"
	"taskflow/cmd/internal/cache"
	"taskflow/cmd/internal/migrate"
	"taskflow/cmd/internal/tasks"
)

// stores holds the systems of record and the cache backend. The app owns
// the pool, the bolt file and the redis client.
type stores struct {
	principals identity.Store
	tasks      tasks.Store
	cache      cache.Backend

	pool  *pgxpool.Pool
	bolt  *bolt.DB
	redis *redis.Client
}

func openStores(ctx context.Context, cfg Config, log *slog.Logger) (_ *stores, err error) {
	s := &stores{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	switch strings.ToLower(cfg.StoreDriver) {
	case StorePostgres:
		if cfg.AutoMigrate {
			if err := migrate.Up(ctx, cfg.DatabaseURL, cfg.DatabaseSchema); err != nil {
				return nil, err
			}
			log.Info("db.migrated", "schema", cfg.DatabaseSchema)
		}
		if s.pool, err = openPool(ctx, cfg); err != nil {
			return nil, err
		}
		if s.principals, err = identity.NewPostgresStore(s.pool, identity.WithSchema(cfg.DatabaseSchema)); err != nil {
			return nil, err
		}
		if s.tasks, err = tasks.NewPostgresStore(s.pool, tasks.WithSchema(cfg.DatabaseSchema)); err != nil {
			return nil, err
		}
	case StoreBolt:
		if s.bolt, err = bolt.Open(cfg.BoltPath, 0o600, &bolt.Options{Timeout: time.Second}); err != nil {
			return nil, fmt.Errorf("opening %s: %w", cfg.BoltPath, err)
		}
		if s.principals, err = identity.NewBoltStore(s.bolt); err != nil {
			return nil, err
		}
		if s.tasks, err = tasks.NewBoltStore(s.bolt); err != nil {
			return nil, err
		}
	default:
		s.principals = identity.NewMemoryStore()
		s.tasks = tasks.NewMemoryStore()
	}
	log.Info("store.open", "driver", strings.ToLower(cfg.StoreDriver))

	switch strings.ToLower(cfg.CacheDriver) {
	case CacheRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		s.redis = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := s.redis.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis not reachable: %w", err)
		}
		s.cache = cache.NewRedisBackend(s.redis)
	default:
		s.cache = cache.NewLRUBackend(cfg.CacheSize, cfg.CacheTTL)
	}
	log.Info("cache.open", "driver", strings.ToLower(cfg.CacheDriver), "ttl", cfg.CacheTTL)
	return s, nil
}

// ready reports the first unreachable dependency.
func (s *stores) ready(ctx context.Context) error {
	if s.pool != nil {
		if err := pingPool(ctx, s.pool, dbReadyTimeout); err != nil {
			return fmt.Errorf("db: %w", err)
		}
	}
	if s.redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (s *stores) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.bolt != nil {
		errs = append(errs, s.bolt.Close())
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return errors.Join(errs...)
}
