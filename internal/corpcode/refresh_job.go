package corpcode

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RefreshJob downloads a new company directory on a schedule.
type RefreshJob struct {
	resolver *Resolver
	timeout  time.Duration
	log      zerolog.Logger
}

// NewRefreshJob creates a new directory refresh job.
func NewRefreshJob(resolver *Resolver, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		resolver: resolver,
		timeout:  10 * time.Minute,
		log:      log.With().Str("job", "corp_code_refresh").Logger(),
	}
}

// Run forces a download and republishes the directory. On failure the
// previous directory stays in place.
func (j *RefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	dir, err := j.resolver.Refresh(ctx, true)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to refresh company directory")
		return err
	}

	j.log.Info().Int("records", dir.Len()).Msg("Company directory refreshed")
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *RefreshJob) Name() string {
	return "corp_code_refresh"
}
