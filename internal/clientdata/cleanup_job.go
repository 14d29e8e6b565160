package clientdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob removes expired entries from the response cache.
// It should be scheduled to run daily.
type CleanupJob struct {
	cache   *Cache
	timeout time.Duration
	log     zerolog.Logger
}

// NewCleanupJob creates a new cache cleanup job.
func NewCleanupJob(cache *Cache, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		cache:   cache,
		timeout: time.Minute,
		log:     log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Run executes the cleanup job.
func (j *CleanupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	deleted, err := j.cache.CleanupExpired(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired cache entries")
		return err
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Msg("Cleaned up expired cache entries")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "cache_cleanup"
}
