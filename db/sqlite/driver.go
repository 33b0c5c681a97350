package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a go-sqlite3 connection string with foreign keys enforced,
// a busy timeout and BEGIN IMMEDIATE transactions so that concurrent
// writers queue on the database lock instead of failing on upgrade.
func DSN(path string) string {
	params := "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if path == ":memory:" {
		return "file::memory:?" + params
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + params
	}
	return "file:" + path + "?" + params + "&_journal_mode=WAL"
}

// Open creates a GORM *DB backed by SQLite (mattn/go-sqlite3).
// The pool is pinned to one connection: SQLite admits a single writer and an
// in-memory database lives only as long as its connection.
func Open(path string, gl logger.Interface) (*gorm.DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: create data dir %q: %w", dir, err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(DSN(path)), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	return db, nil
}
