package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit emits one structured log line per request. Paths in quiet are logged
// at debug level.
func Audit(logger *slog.Logger, quiet ...string) fiber.Handler {
	quietPaths := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		quietPaths[p] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if id := RequestIDFrom(c); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}

		level := slog.LevelInfo
		if _, ok := quietPaths[c.Path()]; ok {
			level = slog.LevelDebug
		}
		switch {
		case err != nil && status >= fiber.StatusInternalServerError:
			level = slog.LevelError
			attrs = append(attrs, slog.Any("error", err))
		case err != nil:
			level = slog.LevelWarn
			attrs = append(attrs, slog.Any("error", err))
		}
		logger.Log(context.Background(), level, "request completed", attrs...)
		return err
	}
}
