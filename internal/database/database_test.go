package database

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/sparkfeed/internal/config"
	"github.com/zfogg/sparkfeed/internal/metrics"
	"github.com/zfogg/sparkfeed/internal/models"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", URL: ":memory:"})
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, Migrate(db))
	require.NoError(t, Health(db))

	for _, model := range []interface{}{&models.Profile{}, &models.Post{}, &models.Reaction{}, &models.Vote{}, &models.Comment{}, &models.Share{}, &models.SparkVersion{}} {
		assert.True(t, db.Migrator().HasTable(model))
	}
	assert.True(t, db.Migrator().HasIndex(&models.Reaction{}, "idx_reactions_post_user"))

	// Migrations are repeatable
	require.NoError(t, Migrate(db))
}

func TestMemoryDatabasesAreIsolated(t *testing.T) {
	a, err := Open(config.DatabaseConfig{Driver: "sqlite", URL: ":memory:"})
	require.NoError(t, err)
	defer Close(a)
	b, err := Open(config.DatabaseConfig{Driver: "sqlite", URL: ":memory:"})
	require.NoError(t, err)
	defer Close(b)

	require.NoError(t, Migrate(a))
	assert.False(t, b.Migrator().HasTable(&models.Post{}))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestMigrateWithoutDatabase(t *testing.T) {
	assert.Error(t, Migrate(nil))
	assert.Error(t, Health(nil))
	assert.NoError(t, Close(nil))
}

func TestQueriesAreCounted(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", URL: ":memory:"})
	require.NoError(t, err)
	defer Close(db)
	require.NoError(t, Migrate(db))

	queries := metrics.Get().DatabaseQueriesTotal
	okBefore := testutil.ToFloat64(queries.WithLabelValues("SELECT", "profiles", "ok"))
	errBefore := testutil.ToFloat64(queries.WithLabelValues("SELECT", "profiles", "error"))

	var p models.Profile
	assert.Error(t, db.First(&p, "id = ?", "missing").Error)

	// A lookup that finds nothing is not a failed query
	assert.Equal(t, okBefore+1, testutil.ToFloat64(queries.WithLabelValues("SELECT", "profiles", "ok")))
	assert.Equal(t, errBefore, testutil.ToFloat64(queries.WithLabelValues("SELECT", "profiles", "error")))
}
