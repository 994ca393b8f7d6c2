package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticketgate/internal/api"
	"ticketgate/internal/config"
	"ticketgate/internal/database"
	"ticketgate/internal/logger"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	pflag.StringVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
	pflag.Parse()

	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if *migrateOnly {
		if err := migrate(cfg); err != nil {
			logger.Fatal("Migration failed", "error", err)
		}
		logger.Get().Info("Migrations applied")
		return
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		logger.Fatal("Failed to create server", "error", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Get().Info("Starting server", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown с таймаутом
	g.Go(func() error {
		<-gctx.Done()
		logger.Get().Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Get().Error("Server forced to shutdown", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Get().Warn("Shutdown left work behind", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Get().Error("Server error", "error", err)
	}

	if err := server.Cleanup(); err != nil {
		logger.Get().Error("Error during cleanup", "error", err)
		os.Exit(1)
	}

	logger.Get().Info("Server stopped")
}

func migrate(cfg *config.Config) error {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.RunMigrations()
}
