// Package db opens the guild database for the configured backend.
package db

import (
	"fmt"

	"github.com/kasuganosora/ashenguild/config"
	dbmysql "github.com/kasuganosora/ashenguild/db/mysql"
	dbsqlite "github.com/kasuganosora/ashenguild/db/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

// Open returns a *gorm.DB for the configured database mode. GORM's own log
// goes to log; nil discards it.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gl := newGormLogger(log, cfg.LogQueries, cfg.SlowQuery)
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath, gl)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, dbmysql.Pool{
			MaxOpen: cfg.MySQLMaxOpen,
			MaxIdle: cfg.MySQLMaxIdle,
			MaxLife: cfg.MySQLMaxLife,
		}, gl)
	default:
		return nil, fmt.Errorf("db: unknown mode %q (want %s or %s)", cfg.Mode, ModeSQLite, ModeMySQL)
	}
}
