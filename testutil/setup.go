package testutil

import (
	"path/filepath"
	"testing"

	"github.com/kasuganosora/ashenguild/config"
	dbadapter "github.com/kasuganosora/ashenguild/db"
	"github.com/kasuganosora/ashenguild/model"
	"github.com/kasuganosora/ashenguild/pubsub"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates a file-backed SQLite DB in a per-test temp directory
// and runs AutoMigrate. Each test gets its own database file.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode:       dbadapter.ModeSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	}, nil)
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestPubSub creates an in-process PubSub (no Redis required).
func SetupTestPubSub(t *testing.T) pubsub.PubSub {
	t.Helper()
	ps, err := pubsub.New(pubsub.Config{})
	require.NoError(t, err, "SetupTestPubSub: New")
	return ps
}
