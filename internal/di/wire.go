package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/dart-ebitda/internal/config"
)

// Wire builds the container from configuration. Nothing touches the network
// or opens the cache database until first use.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	if err := InitializeServices(container, cfg, log); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := RegisterJobs(container, cfg, log); err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}

// Close releases resources held by the container
func (c *Container) Close() error {
	if c.Cache != nil {
		return c.Cache.Close()
	}
	return nil
}
