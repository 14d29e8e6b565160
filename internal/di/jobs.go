package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/dart-ebitda/internal/clientdata"
	"github.com/aristath/dart-ebitda/internal/config"
	"github.com/aristath/dart-ebitda/internal/corpcode"
	"github.com/aristath/dart-ebitda/internal/scheduler"
)

// RegisterJobs creates the maintenance jobs and registers them with a new scheduler.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	sched := scheduler.New(log)

	jobs := &JobInstances{
		CacheCleanup:    clientdata.NewCleanupJob(container.Cache, log),
		CacheCheck:      scheduler.NewCheckDatabaseJob("cache", container.Cache, log),
		CorpCodeRefresh: corpcode.NewRefreshJob(container.Resolver, log),
	}

	schedules := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Schedule.CacheCleanup, jobs.CacheCleanup},
		{cfg.Schedule.CacheCheck, jobs.CacheCheck},
		{cfg.Schedule.CorpCodeRefresh, jobs.CorpCodeRefresh},
	}
	for _, s := range schedules {
		if err := sched.AddJob(s.schedule, s.job); err != nil {
			return err
		}
	}

	container.Scheduler = sched
	container.Jobs = jobs

	log.Info().Int("jobs", len(schedules)).Msg("Jobs registered")
	return nil
}
