package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giygas/cleaning-validation-api/catalog"
	"github.com/giygas/cleaning-validation-api/config"
	"github.com/giygas/cleaning-validation-api/data"
	"github.com/giygas/cleaning-validation-api/handlers"
	"github.com/giygas/cleaning-validation-api/health"
	"github.com/giygas/cleaning-validation-api/logging"
	"github.com/giygas/cleaning-validation-api/scheduler"
	"github.com/giygas/cleaning-validation-api/server"
	"github.com/giygas/cleaning-validation-api/store"
	"github.com/giygas/cleaning-validation-api/validation"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		logging.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine, the environment may already be set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	closer := logging.Init(logging.Options{
		Dir:            cfg.LogDir,
		Level:          cfg.LogLevel,
		Env:            cfg.Env,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	defer closer.Close()

	logging.Info("Configuration loaded", "env", cfg.Env, "db", cfg.DBPath, "refresh_interval", cfg.RefreshInterval)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	repo := catalog.NewRepository(db)

	if cfg.SeedFile != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		stats, err := catalog.Seed(ctx, repo, cfg.SeedFile)
		cancel()
		if err != nil {
			return fmt.Errorf("seed from %s: %w", cfg.SeedFile, err)
		}
		logging.Info("Seed applied", "file", cfg.SeedFile, "inserted", stats.Inserts, "skipped", stats.Skipped)
	}

	dataContainer := data.NewDataContainer()
	dataContainer.SetServerStartTime(time.Now())
	refresher := data.NewRefresher(dataContainer, repo)

	sched := scheduler.NewScheduler(dataContainer, refresher, cfg.RefreshInterval)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	handler := handlers.NewHTTPHandler(
		dataContainer,
		validation.NewDataValidator(),
		health.NewHealthChecker(dataContainer, cfg.RefreshInterval),
		refresher,
		repo,
	)
	srv := server.NewServer(cfg, handler)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		logging.Info("Received shutdown signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-serverErr
}
