package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/fiscal/internal/audit"
	"github.com/JonMunkholm/fiscal/internal/config"
	"github.com/JonMunkholm/fiscal/internal/core"
	"github.com/JonMunkholm/fiscal/internal/logging"
	"github.com/JonMunkholm/fiscal/internal/store"
	"github.com/JonMunkholm/fiscal/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"firestore_enabled", cfg.Audit.FirestoreEnabled(),
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()
	st, err := store.Open(ctx, store.Options{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to database", "dialect", st.Dialect())

	if cfg.Database.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		slog.Info("schema applied")
	}

	trail, closeTrail, err := audit.Open(ctx, &cfg.Audit, st.Queries())
	if err != nil {
		slog.Error("failed to open audit trail", "error", err)
		os.Exit(1)
	}
	defer closeTrail()

	service := core.NewService(st, trail, cfg)
	server := web.NewServer(service, cfg)

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := gracefulShutdown(shutdownCtx, server, service); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}

type httpShutdowner interface {
	Shutdown(ctx context.Context) error
}

type ingestDrainer interface {
	WaitForIngests(ctx context.Context) error
}

// gracefulShutdown closes the listener, then waits for in-flight
// ingestions. It returns once both are done.
func gracefulShutdown(ctx context.Context, srv httpShutdowner, ingests ingestDrainer) error {
	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- srv.Shutdown(ctx) }()

	slog.Info("waiting for ingestions to complete")
	if err := ingests.WaitForIngests(ctx); err != nil {
		slog.Warn("ingestions did not complete in time", "error", err)
	} else {
		slog.Info("all ingestions completed")
	}
	return <-shutdownErr
}
