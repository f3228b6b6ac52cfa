package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/solwave/solwave/internal/auth"
	"github.com/solwave/solwave/internal/config"
	"github.com/solwave/solwave/internal/infra"
	"github.com/solwave/solwave/internal/journal"
	"github.com/solwave/solwave/internal/ledger"
	"github.com/solwave/solwave/internal/logging"
	"github.com/solwave/solwave/internal/metrics"
	"github.com/solwave/solwave/internal/notification"
	"github.com/solwave/solwave/internal/routes"
	"github.com/solwave/solwave/internal/server"
	"github.com/solwave/solwave/internal/session"
	"github.com/solwave/solwave/internal/wallet"
)

func main() {
	if len(os.Args) > 2 && os.Args[1] == "hash-token" {
		hash, err := auth.HashToken(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel).With("app", cfg.AppName)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	backends, err := infra.Open(ctx, cfg.DatabaseURL, cfg.RedisURL, logger)
	if err != nil {
		return err
	}
	defer backends.Close(logger)

	network, endpoint, err := ledger.ResolveNetwork(cfg.Network)
	if err != nil {
		return err
	}
	if cfg.RPCURL != "" {
		endpoint = cfg.RPCURL
	}
	rpcLedger, err := ledger.NewRPCLedger(endpoint, cfg.Commitment)
	if err != nil {
		return fmt.Errorf("build ledger client: %w", err)
	}
	defer rpcLedger.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	detector := wallet.EnvDetector{
		KeypairPath: cfg.KeypairPath,
		Mnemonic:    cfg.Mnemonic,
		Passphrase:  cfg.Passphrase,
		Account:     cfg.Account,
		Logger:      logger,
	}
	ctrl := session.NewController(detector, rpcLedger,
		session.WithLogger(logger),
		session.WithMetrics(metrics.New(reg)),
		session.WithNetwork(network),
		session.WithConnectTimeout(cfg.ConnectTimeout),
		session.WithFetchTimeout(cfg.FetchTimeout),
	)
	ctrl.Initialize()
	defer ctrl.Close()

	var repo journal.Repository = journal.NewMemoryRepository()
	if backends.DB != nil {
		pg := journal.NewPostgresRepository(backends.DB)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		repo = pg
	}
	recorder := journal.NewRecorder(repo, logger)
	defer recorder.Close()
	ctrl.Subscribe(recorder.Observe)
	ctrl.Subscribe(notification.SessionListener(notification.NewLoggerNotifier(logger), logger))

	verifier, err := auth.NewVerifier(cfg.APITokenHash)
	if err != nil {
		return err
	}

	srv, err := server.New(routes.Deps{
		Cfg:        cfg,
		DB:         backends.DB,
		Cache:      backends.Cache,
		Logger:     logger,
		Controller: ctrl,
		Journal:    repo,
		Verifier:   verifier,
		Gatherer:   reg,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	logger.Info("wallet session daemon starting",
		"address", cfg.Address(),
		"network", network,
		"rpc", rpcLedger.Endpoint(),
		"provider_available", ctrl.ProviderAvailable(),
	)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	// Ends the session so provider key material is released.
	if _, err := ctrl.Disconnect(shutdownCtx); err != nil {
		logger.Warn("disconnect on shutdown", "error", err)
	}
	return nil
}
