// Package main provides the nourish API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kamilpajak/nourish/internal/api"
	"github.com/kamilpajak/nourish/internal/app"
	"github.com/kamilpajak/nourish/internal/auth"
	"github.com/kamilpajak/nourish/internal/config"
	"github.com/kamilpajak/nourish/internal/database"
	"github.com/kamilpajak/nourish/internal/logging"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to nourish.yaml")
		migrateOnly = flag.Bool("migrate", false, "Run migrations and exit")
	)
	flag.Parse()

	if err := run(*configFile, *migrateOnly); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile string, migrateOnly bool) error {
	manager, err := config.NewManager(configFile)
	if err != nil {
		return err
	}
	if err := manager.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg := manager.Config()

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return err
	}
	if f := manager.ConfigFile(); f != "" {
		logger.WithField("file", f).Info("Loaded configuration")
	}

	if migrateOnly {
		if !cfg.Database.Postgres() {
			return errors.New("migrations apply to PostgreSQL only; set NOURISH_DATABASE_URL")
		}
		logger.Info("Running database migrations")
		if err := database.Migrate(cfg.Database.URL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		version, dirty, err := database.SchemaVersion(cfg.Database.URL)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("Migrations complete")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var verifier *auth.Verifier
	if cfg.Auth.Enabled() {
		verifier, err = auth.NewVerifier(ctx, auth.Config{
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
			JWKSURL:  cfg.Auth.JWKSURL,
		})
		if err != nil {
			return fmt.Errorf("failed to create auth verifier: %w", err)
		}
	} else {
		logger.Warn("No auth issuer configured; API is unauthenticated")
	}

	server := api.NewServer(api.Config{
		Service:        a.Service,
		Knowledge:      a.Knowledge,
		AuthVerifier:   verifier,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":     addr,
			"postgres": cfg.Database.Postgres(),
			"auth":     cfg.Auth.Enabled(),
		}).Info("Starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
