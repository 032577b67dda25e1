package metadata

import (
	"context"
	"fmt"

	"github.com/soltixdb/forecaster/internal/config"
	"github.com/soltixdb/forecaster/internal/logging"
)

// NewStore creates the configured backend, wrapped in a cache when
// cache_size is positive.
func NewStore(ctx context.Context, cfg config.MetadataConfig, logger *logging.Logger) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Backend {
	case "", "memory":
		store = NewMemoryStore()
	case "etcd":
		store, err = NewEtcdStore(cfg.Etcd, cfg.Prefix)
	case "redis":
		store, err = NewRedisStore(ctx, cfg.RedisURL, cfg.Prefix)
	case "postgres":
		store, err = NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported metadata backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("Job store initialized", "backend", cfg.Backend, "cache_size", cfg.CacheSize)
	}
	if cfg.CacheSize > 0 {
		return NewCachedStore(store, cfg.CacheSize)
	}
	return store, nil
}
