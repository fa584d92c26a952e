package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Options select and configure a storage backend.
type Options struct {
	Backend     string
	Dir         string
	PostgresDSN string
	RedisURL    string
	RedisTTL    time.Duration
	CacheSize   int
}

// Open builds the configured backend wrapped in an LRU cache. The returned
// func releases backend connections.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (ConversationStorage, func(), error) {
	var (
		backend ConversationStorage
		closer  = func() {}
	)
	switch opts.Backend {
	case "", BackendMemory:
		backend = NewMemoryStorage()
	case BackendFile:
		fsStore, err := NewFileStorage(opts.Dir, logger)
		if err != nil {
			return nil, nil, err
		}
		backend = fsStore
	case BackendPostgres:
		pg, err := NewPostgres(ctx, opts.PostgresDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		backend, closer = pg, pg.Close
	case BackendRedis:
		rs, err := NewRedis(ctx, opts.RedisURL, opts.RedisTTL, logger)
		if err != nil {
			return nil, nil, err
		}
		backend, closer = rs, func() { rs.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}

	cached, err := NewCachedStorage(backend, opts.CacheSize)
	if err != nil {
		closer()
		return nil, nil, err
	}
	logger.Info("conversation storage ready", zap.String("backend", opts.Backend), zap.Int("cache_size", opts.CacheSize))
	return cached, closer, nil
}
