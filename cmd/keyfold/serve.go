// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold/internal/auth"
	authpg "github.com/keyfold/keyfold/internal/auth/postgres"
	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/httpapi"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/mail"
	"github.com/keyfold/keyfold/internal/store"
)

const shutdownTimeout = 10 * time.Second

// serveConfig holds the serve command flags not covered by the config file.
type serveConfig struct {
	configFile  string
	autoMigrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	sc := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Keyfold HTTP server",
		Long: `Start the Keyfold server: the credential lifecycle HTTP API plus a
metrics and health endpoint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), sc, cmd, nil)
		},
	}

	cmd.Flags().StringVar(&sc.configFile, "config", "", "config file path")
	cmd.Flags().BoolVar(&sc.autoMigrate, "auto-migrate", false, "run pending database migrations on startup")
	cmd.Flags().String("listen_addr", "", "HTTP listen address")
	cmd.Flags().String("metrics_addr", "", "metrics/health HTTP address")
	cmd.Flags().String("log_format", "", "log format (json or text)")

	return cmd
}

// runServe starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServe(ctx context.Context, sc *serveConfig, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.applyDefaults()

	cfg, err := config.Load(sc.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	// A missing signing secret or database URL is fatal here, before
	// anything is listening.
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.Setup("keyfold", version, cfg.LogFormat, nil)
	slog.SetDefault(logger)

	slog.Info("starting keyfold",
		"listen_addr", cfg.ListenAddr,
		"metrics_addr", cfg.MetricsAddr,
		"log_format", cfg.LogFormat,
	)

	pool, err := deps.PoolFactory(ctx, cfg.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	slog.Info("connected to database")

	if sc.autoMigrate {
		if err := migrateUp(cfg.DatabaseURL); err != nil {
			return err
		}
		slog.Info("migrations applied")
	}

	issuer, err := auth.NewSessionIssuer([]byte(cfg.SessionSecret), cfg.SessionTTL)
	if err != nil {
		return err
	}

	hasher := auth.NewArgon2idHasher()
	users := authpg.NewUserRepository(pool)

	credentials, err := auth.NewCredentialService(users, hasher, issuer)
	if err != nil {
		return err
	}

	mailer, err := deps.MailerFactory(mail.SMTPConfig{
		Addr:     cfg.SMTP.Addr,
		From:     cfg.SMTP.From,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
	})
	if err != nil {
		return err
	}

	resets, err := auth.NewPasswordResetService(users, hasher, mailer, cfg.BaseURL, cfg.ResetTokenTTL)
	if err != nil {
		return err
	}

	obsSrv := deps.ObservabilityServerFactory(cfg.MetricsAddr, func() bool {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Ping(pingCtx) == nil
	})
	obsErrCh, err := obsSrv.Start()
	if err != nil {
		return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = obsSrv.Stop(stopCtx) //nolint:errcheck // Best effort on shutdown
	}()

	handler := httpapi.NewHandler(credentials, resets, obsSrv.Metrics(), logger)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serveErrCh <- serveErr
		}
	}()
	slog.Info("http server started", "addr", cfg.ListenAddr)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		slog.Info("shutdown signal received")
	case serveErr := <-serveErrCh:
		return oops.Code("HTTP_SERVER_FAILED").Wrap(serveErr)
	case obsErr := <-obsErrCh:
		return oops.Code("OBSERVABILITY_FAILED").Wrap(obsErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}

	slog.Info("keyfold stopped")
	return nil
}

// migrateUp applies all pending migrations.
func migrateUp(databaseURL string) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		_ = migrator.Close() //nolint:errcheck // Best effort cleanup
	}()
	return migrator.Up()
}
