// Package main is the entry point for the OPENDART EBITDA service.
// It resolves companies against the DART company directory, fetches filed
// statements through a rate-limited, cached client and serves EBITDA over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/dart-ebitda/internal/config"
	"github.com/aristath/dart-ebitda/internal/di"
	"github.com/aristath/dart-ebitda/internal/server"
	"github.com/aristath/dart-ebitda/pkg/logger"
)

// main is the application entry point. Startup sequence:
//  1. Loads configuration from the environment (.env supported)
//  2. Initializes logging
//  3. Wires dependencies via the DI container
//  4. Starts the job scheduler and the HTTP server
//  5. Waits for a shutdown signal and shuts down gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty || cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting DART EBITDA service")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close cache database")
		}
	}()

	container.Scheduler.Start()

	// Warm the company directory in the background so the first request
	// does not pay for the download.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := container.Resolver.Refresh(ctx, false); err != nil {
			log.Warn().Err(err).Msg("Company directory warm-up failed, will retry on first request")
		}
	}()

	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		Resolver:   container.Resolver,
		Calculator: container.Calculator,
		Cache:      container.Cache,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	container.Scheduler.Stop()

	log.Info().Msg("Server stopped")
}
