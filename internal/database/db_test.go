package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), "nested", name+".db"),
		Profile: ProfileCache,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBuildConnectionString(t *testing.T) {
	cache := buildConnectionString("/tmp/x.db", ProfileCache)
	assert.Contains(t, cache, "/tmp/x.db?_pragma=journal_mode(WAL)")
	assert.Contains(t, cache, "synchronous(OFF)")

	standard := buildConnectionString("file:mem?mode=memory", ProfileStandard)
	assert.Contains(t, standard, "file:mem?mode=memory&_pragma=journal_mode(WAL)")
	assert.Contains(t, standard, "synchronous(NORMAL)")
}

func TestNew_CreatesDirectoryAndDefaultsProfile(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "a", "b", "x.db"), Name: "x"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, ProfileStandard, db.Profile())
	assert.True(t, filepath.IsAbs(db.Path()))
	assert.NoError(t, db.QuickCheck(context.Background()))
}

func TestMigrate_CacheSchema(t *testing.T) {
	db := newTestDB(t, "cache")
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx))
	// Idempotent
	require.NoError(t, db.Migrate(ctx))

	var name string
	err := db.Conn().QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_cache_expires_at'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "idx_cache_expires_at", name)
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db := newTestDB(t, "scratch")
	assert.NoError(t, db.Migrate(context.Background()))
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTestDB(t, "cache")
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	boom := errors.New("boom")
	err := WithTransaction(ctx, db.Conn(), func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx,
			"INSERT INTO cache (key, value, created_at, expires_at) VALUES ('k', x'00', 1, 2)")
		require.NoError(t, execErr)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.Conn().QueryRowContext(ctx, "SELECT COUNT(*) FROM cache").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransaction_RecoversPanic(t *testing.T) {
	db := newTestDB(t, "cache")

	err := WithTransaction(context.Background(), db.Conn(), func(*sql.Tx) error {
		panic("oops")
	})
	assert.ErrorContains(t, err, "panic in transaction: oops")
}

func TestGetStats(t *testing.T) {
	db := newTestDB(t, "cache")
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	stats, err := db.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, db.Profile(), stats.Profile)
	assert.Greater(t, stats.PageSize, int64(0))
	assert.Greater(t, stats.PageCount, int64(0))
}

func TestGetStats_ClosedDatabase(t *testing.T) {
	db := newTestDB(t, "cache")
	require.NoError(t, db.Close())

	stats, err := db.GetStats(context.Background())
	assert.Nil(t, stats)
	assert.ErrorContains(t, err, "database cache unreachable")
}

func TestIntegrityCheck(t *testing.T) {
	db := newTestDB(t, "cache")
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	assert.NoError(t, IntegrityCheck(ctx, db.Conn()))
}

func TestIntegrityCheck_ClosedConnection(t *testing.T) {
	db := newTestDB(t, "cache")
	require.NoError(t, db.Close())

	err := IntegrityCheck(context.Background(), db.Conn())
	assert.ErrorContains(t, err, "integrity check failed")
}
