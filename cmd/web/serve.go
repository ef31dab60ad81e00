package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jimshazmatremoval.com.au/auburn-web/internal/config"
	"jimshazmatremoval.com.au/auburn-web/internal/observability"
	"jimshazmatremoval.com.au/auburn-web/internal/secrets"
)

const defaultShutdownTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, root.envFile)
		},
	}
}

func runServe(ctx context.Context, envFile string) error {
	baseLogger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("web")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		return fmt.Errorf("initialise secret fetcher: %w", err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithEnvFile(envFile),
		config.WithSecretResolver(fetcher),
	)
	if err != nil {
		var vErr *config.ValidationError
		if errors.As(err, &vErr) {
			logger.Error("invalid configuration", zap.Strings("fields", vErr.Fields()))
		}
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Observability.LogLevel != "" && cfg.Observability.LogLevel != os.Getenv("LOG_LEVEL") {
		if leveled, err := observability.NewLogger(cfg.Observability.LogLevel); err == nil {
			baseLogger = leveled
			logger = leveled.Named("web")
			ctx = observability.WithLogger(ctx, logger)
		}
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialise app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("client close error", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	errCh := make(chan error, 1)
	go func() {
		serverLogger.Info("auburn site listening",
			zap.String("site_root", cfg.Site.Root),
			zap.String("mail_transport", cfg.Mail.Transport),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received; draining requests")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

// newSecretFetcher reads its settings straight from the environment because it must exist
// before the configuration that references secrets can load.
func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	projectID := os.Getenv("SITE_SECRETS_PROJECT_ID")
	if projectID == "" {
		projectID = os.Getenv("SITE_ARCHIVE_PROJECT_ID")
	}
	fallback := os.Getenv("SITE_SECRETS_FALLBACK_FILE")
	if fallback == "" {
		fallback = ".secrets.local"
	}
	return secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(projectID),
		secrets.WithFallbackFile(fallback),
	)
}
