package infra

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Backends holds the optional external stores. Either field may be nil when
// its URL is not configured.
type Backends struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Open connects to every configured backend. Empty URLs are skipped.
func Open(ctx context.Context, databaseURL, redisURL string, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}
	if databaseURL != "" {
		db, err := NewPostgresPool(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		b.DB = db
	} else {
		logger.Info("DATABASE_URL not set, journal kept in memory")
	}

	if redisURL != "" {
		cache, err := NewRedisClient(ctx, redisURL)
		if err != nil {
			b.Close(logger)
			return nil, err
		}
		b.Cache = cache
	} else {
		logger.Info("REDIS_URL not set, idempotency disabled and rate limiting in process")
	}
	return b, nil
}

// Close releases every open backend.
func (b *Backends) Close(logger *slog.Logger) {
	if b == nil {
		return
	}
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}
	if b.DB != nil {
		b.DB.Close()
	}
}
