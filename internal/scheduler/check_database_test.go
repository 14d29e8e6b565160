package scheduler

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type connFunc func() (*sql.DB, error)

func (f connFunc) Conn() (*sql.DB, error) { return f() }

func TestCheckDatabaseJob_Name(t *testing.T) {
	job := NewCheckDatabaseJob("cache", nil, zerolog.Nop())
	assert.Equal(t, "check_cache_database", job.Name())
}

func TestCheckDatabaseJob_Run_Healthy(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec("CREATE TABLE t (x INTEGER)")
	require.NoError(t, err)

	job := NewCheckDatabaseJob("cache", connFunc(func() (*sql.DB, error) { return db, nil }), zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestCheckDatabaseJob_Run_NoDatabase(t *testing.T) {
	job := NewCheckDatabaseJob("cache", nil, zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestCheckDatabaseJob_Run_Unavailable(t *testing.T) {
	job := NewCheckDatabaseJob("cache", connFunc(func() (*sql.DB, error) {
		return nil, errors.New("disk gone")
	}), zerolog.Nop())

	err := job.Run()
	assert.ErrorContains(t, err, "database cache unavailable: disk gone")
}

func TestCheckDatabaseJob_Run_ClosedConnection(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	job := NewCheckDatabaseJob("cache", connFunc(func() (*sql.DB, error) { return db, nil }), zerolog.Nop())
	assert.ErrorContains(t, job.Run(), "database cache is corrupted")
}
