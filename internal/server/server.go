package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/solwave/solwave/internal/config"
	"github.com/solwave/solwave/internal/routes"
)

// Server wraps the Fiber application serving the session API.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(deps routes.Deps) (*Server, error) {
	// Connect may wait on a provider handshake, so the write timeout has to
	// outlast CONNECT_TIMEOUT.
	writeTimeout := 30 * time.Second
	if d := deps.Cfg.ConnectTimeout + 5*time.Second; d > writeTimeout {
		writeTimeout = d
	}

	app := fiber.New(fiber.Config{
		AppName:               deps.Cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          writeTimeout,
		ErrorHandler:          routes.ErrorHandler,
		DisableStartupMessage: true,
	})

	if err := routes.Setup(app, deps); err != nil {
		return nil, err
	}
	return &Server{app: app, cfg: deps.Cfg}, nil
}

// App exposes the underlying Fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
