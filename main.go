package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog/internal/config"
	"catalog/internal/telemetry"
)

func main() {
	cfg := config.Load()

	telem, err := telemetry.New(context.Background(), &cfg.Telemetry, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	logger := telem.Logger

	app, err := NewApp(cfg, telem)
	if err != nil {
		logger.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := app.StartConsumer(); err != nil {
		logger.Error("Failed to start RabbitMQ consumer", slog.String("error", err.Error()))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Starting server", slog.String("address", cfg.AppPort), slog.String("db_driver", cfg.Database.Driver))
		if err := app.Fiber.Listen(cfg.AppPort); err != nil {
			logger.Error("Server failed", slog.String("error", err.Error()))
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		logger.Error("Error during shutdown", slog.String("error", err.Error()))
	}
	if err := telem.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down telemetry", slog.String("error", err.Error()))
	}
	logger.Info("Server gracefully stopped")
}
