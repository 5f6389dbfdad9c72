package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rl1809/marketplace/internal/bootstrap"
	"github.com/rl1809/marketplace/internal/config"
	"github.com/rl1809/marketplace/internal/logging"
)

func main() {
	env := os.Getenv("APP_ENV") // dev | prod
	if env == "" {
		env = "dev"
	}

	cfg, err := config.Load("configs", env)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Init(logging.Options{
		Component: cfg.App.Name,
		Level:     cfg.App.LogLevel,
		File:      cfg.App.LogFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := bootstrap.InitWithConfig(ctx, cfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	logger.Info("marketplace starting", "env", env, "storage", cfg.Storage.Driver, "notify", cfg.Notify.Driver)
	if err := app.Run(ctx); err != nil {
		logger.Error("server stopped with error", "error", err)
		cleanup()
		os.Exit(1)
	}
	logger.Info("server stopped")
}
