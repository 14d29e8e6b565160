package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/dart-ebitda/internal/clientdata"
	"github.com/aristath/dart-ebitda/internal/clients/dart"
	"github.com/aristath/dart-ebitda/internal/config"
	"github.com/aristath/dart-ebitda/internal/corpcode"
	"github.com/aristath/dart-ebitda/internal/database"
	"github.com/aristath/dart-ebitda/internal/domain"
	"github.com/aristath/dart-ebitda/internal/ebitda"
	"github.com/aristath/dart-ebitda/internal/financials"
	"github.com/aristath/dart-ebitda/internal/ratelimit"
	"github.com/aristath/dart-ebitda/internal/retry"
	"github.com/aristath/dart-ebitda/internal/snapshot"
)

// InitializeServices creates the upstream client, storage and services
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Limiter = ratelimit.New(cfg.DART.RateLimitPerSecond, time.Second)

	container.RetryPolicy = retry.New(domain.IsTransient)
	container.RetryPolicy.MaxAttempts = cfg.DART.RetryMaxAttempts

	container.DARTClient = dart.NewClient(cfg.DART.APIKey,
		dart.WithBaseURL(cfg.DART.BaseURL),
		dart.WithTimeout(cfg.DART.Timeout),
		dart.WithLimiter(container.Limiter),
		dart.WithRetry(container.RetryPolicy),
		dart.WithLogger(log),
	)

	container.Cache = clientdata.NewCache(database.Config{
		Path:    cfg.Cache.Path,
		Profile: database.ProfileCache,
		Name:    "cache",
	}, log, clientdata.WithDefaultTTL(clientdata.TTLFromDays(cfg.Cache.ExpiryDays)))

	store, err := newSnapshotStore(cfg, log)
	if err != nil {
		return err
	}
	container.SnapshotStore = store

	container.Resolver = corpcode.NewResolver(container.DARTClient, store, log,
		corpcode.WithExpiry(clientdata.TTLFromDays(cfg.DART.CorpCodeExpiryDays)),
	)

	container.FinancialService = financials.NewService(
		container.DARTClient,
		container.Cache,
		clientdata.TTLFromDays(cfg.Cache.ExpiryDays),
		log,
	)

	container.Calculator = ebitda.NewCalculator(container.FinancialService, log)

	log.Info().
		Str("snapshot", store.Location()).
		Str("cache", cfg.Cache.Path).
		Int("rate_limit_per_second", cfg.DART.RateLimitPerSecond).
		Msg("Services initialized")

	return nil
}

func newSnapshotStore(cfg *config.Config, log zerolog.Logger) (snapshot.Store, error) {
	switch cfg.Snapshot.Backend {
	case config.SnapshotBackendS3:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := snapshot.NewS3Store(ctx, snapshot.S3Config{
			Bucket:    cfg.Snapshot.S3Bucket,
			Key:       cfg.Snapshot.S3Key,
			Region:    cfg.Snapshot.S3Region,
			Endpoint:  cfg.Snapshot.S3Endpoint,
			AccessKey: cfg.Snapshot.S3AccessKey,
			SecretKey: cfg.Snapshot.S3SecretKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 snapshot store: %w", err)
		}
		return store, nil
	default:
		return snapshot.NewFileStore(cfg.Snapshot.Path), nil
	}
}
