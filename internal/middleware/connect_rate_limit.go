package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const connectRateKeyPrefix = "rl:connect:"

// ConnectRateLimit limits connect attempts per client IP. Redis counters are
// used when a cache is configured; otherwise, or when Redis fails, an
// in-process token bucket applies the same per-minute budget.
func ConnectRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	local := newKeyLimiter(float64(maxPerMin)/60, maxPerMin, 10*time.Minute)

	return func(c *fiber.Ctx) error {
		key := strings.TrimSpace(c.IP())
		if cache != nil {
			cnt, err := cache.Incr(c.UserContext(), connectRateKeyPrefix+key).Result()
			if err == nil {
				if cnt == 1 {
					cache.Expire(c.UserContext(), connectRateKeyPrefix+key, time.Minute)
				}
				if cnt > int64(maxPerMin) {
					return fiber.NewError(http.StatusTooManyRequests, "too many connect attempts, try again later")
				}
				return c.Next()
			}
			logger.Warn("connect rate limit store failed, using local limiter", "error", err)
		}
		if !local.Allow(key, time.Now()) {
			return fiber.NewError(http.StatusTooManyRequests, "too many connect attempts, try again later")
		}
		return c.Next()
	}
}

// keyLimiter applies a token bucket per key and evicts idle entries.
type keyLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*limiterEntry
	hits  uint64
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyLimiter(rps float64, burst int, idleTTL time.Duration) *keyLimiter {
	return &keyLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byKey:   make(map[string]*limiterEntry),
	}
}

func (l *keyLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%256 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}
