package di

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/dart-ebitda/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir: dir,
		DART: config.DARTConfig{
			APIKey:             "test-key",
			BaseURL:            "http://127.0.0.1:1",
			RateLimitPerSecond: 5,
			Timeout:            time.Second,
			RetryMaxAttempts:   2,
			CorpCodeExpiryDays: 30,
		},
		Cache: config.CacheConfig{
			Path:       filepath.Join(dir, "cache.db"),
			ExpiryDays: 7,
		},
		Snapshot: config.SnapshotConfig{
			Backend: config.SnapshotBackendFile,
			Path:    filepath.Join(dir, "corp_code.xml"),
		},
		Schedule: config.ScheduleConfig{
			CacheCleanup:    "@daily",
			CacheCheck:      "0 30 3 * * *",
			CorpCodeRefresh: "@weekly",
		},
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	assert.NotNil(t, container.Limiter)
	assert.Equal(t, 2, container.RetryPolicy.MaxAttempts)
	assert.NotNil(t, container.DARTClient)
	assert.NotNil(t, container.Cache)
	assert.Equal(t, cfg.Snapshot.Path, container.SnapshotStore.Location())
	assert.NotNil(t, container.Resolver)
	assert.NotNil(t, container.FinancialService)
	assert.NotNil(t, container.Calculator)
	assert.NotNil(t, container.Scheduler)

	require.NotNil(t, container.Jobs)
	assert.Equal(t, "cache_cleanup", container.Jobs.CacheCleanup.Name())
	assert.Equal(t, "check_cache_database", container.Jobs.CacheCheck.Name())
	assert.Equal(t, "corp_code_refresh", container.Jobs.CorpCodeRefresh.Name())

	assert.NoFileExists(t, cfg.Cache.Path, "cache database opens lazily")
}

func TestWire_CacheJobsOpenDatabase(t *testing.T) {
	cfg := testConfig(t)

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	require.NoError(t, container.Jobs.CacheCleanup.Run())
	require.NoError(t, container.Jobs.CacheCheck.Run())
	assert.FileExists(t, cfg.Cache.Path)
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.CacheCleanup = "whenever"

	_, err := Wire(cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "failed to register jobs")
}
