package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/dart-ebitda/internal/database"
	"github.com/rs/zerolog"
)

// ConnProvider hands out a database connection, opening it if needed.
type ConnProvider interface {
	Conn() (*sql.DB, error)
}

// CheckDatabaseJob verifies the integrity of a SQLite database
type CheckDatabaseJob struct {
	name    string
	db      ConnProvider
	timeout time.Duration
	log     zerolog.Logger
}

// NewCheckDatabaseJob creates a job checking the database behind db.
// name identifies the database in logs and in the job name.
func NewCheckDatabaseJob(name string, db ConnProvider, log zerolog.Logger) *CheckDatabaseJob {
	jobName := "check_" + name + "_database"
	return &CheckDatabaseJob{
		name:    name,
		db:      db,
		timeout: 5 * time.Minute,
		log:     log.With().Str("job", jobName).Logger(),
	}
}

// Name returns the job name
func (j *CheckDatabaseJob) Name() string {
	return "check_" + j.name + "_database"
}

// Run executes the integrity check
func (j *CheckDatabaseJob) Run() error {
	if j.db == nil {
		j.log.Warn().Str("database", j.name).Msg("Database not initialized, skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	conn, err := j.db.Conn()
	if err != nil {
		return fmt.Errorf("database %s unavailable: %w", j.name, err)
	}

	start := time.Now()
	if err := database.IntegrityCheck(ctx, conn); err != nil {
		j.log.Error().
			Err(err).
			Str("database", j.name).
			Msg("Database integrity check failed")
		return fmt.Errorf("database %s is corrupted: %w", j.name, err)
	}

	j.log.Info().
		Str("database", j.name).
		Dur("duration", time.Since(start)).
		Msg("Database integrity OK")
	return nil
}
