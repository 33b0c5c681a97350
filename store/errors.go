package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// ErrStoreUnavailable marks failures reaching the store: lost connections,
// lock timeouts and expired operation deadlines. Callers may retry.
var ErrStoreUnavailable = errors.New("store: unavailable")

// ConstraintKind classifies a constraint violation.
type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintOther      ConstraintKind = "other"
)

// ConstraintViolation is returned when a statement breaks a schema constraint.
// Constraint holds the engine's identifier for it: the index name on MySQL,
// the "table.column" list on SQLite.
type ConstraintViolation struct {
	Kind       ConstraintKind
	Constraint string
	Err        error
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("store: %s constraint %q violated: %v", e.Kind, e.Constraint, e.Err)
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

// Matches reports whether the violated constraint is one of names. Each name
// may be an index name or a "table.column" pair.
func (e *ConstraintViolation) Matches(names ...string) bool {
	for _, n := range names {
		if n != "" && strings.Contains(e.Constraint, n) {
			return true
		}
	}
	return false
}

// MySQL server error numbers.
const (
	mysqlDuplicateEntry   = 1062
	mysqlNoReferencedRow  = 1452
	mysqlRowIsReferenced  = 1451
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlock         = 1213
	mysqlServerShutdown   = 1053
	mysqlTooManyConns     = 1040
	mysqlQueryInterrupted = 1317
)

// classify maps driver errors onto ErrStoreUnavailable or *ConstraintViolation.
// Anything else is returned unchanged, including gorm.ErrRecordNotFound.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var cv *ConstraintViolation
	if errors.As(err, &cv) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			kind := ConstraintOther
			switch sqliteErr.ExtendedCode {
			case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
				kind = ConstraintUnique
			case sqlite3.ErrConstraintForeignKey:
				kind = ConstraintForeignKey
			}
			return &ConstraintViolation{Kind: kind, Constraint: sqliteConstraintName(sqliteErr.Error()), Err: err}
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrInterrupt:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return err
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlDuplicateEntry:
			return &ConstraintViolation{Kind: ConstraintUnique, Constraint: mysqlKeyName(mysqlErr.Message), Err: err}
		case mysqlNoReferencedRow, mysqlRowIsReferenced:
			return &ConstraintViolation{Kind: ConstraintForeignKey, Constraint: mysqlErr.Message, Err: err}
		case mysqlLockWaitTimeout, mysqlDeadlock, mysqlServerShutdown, mysqlTooManyConns, mysqlQueryInterrupted:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return err
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return &ConstraintViolation{Kind: ConstraintUnique, Err: err}
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return &ConstraintViolation{Kind: ConstraintForeignKey, Err: err}
	}
	return err
}

// sqliteConstraintName extracts "guilds.name" from
// "UNIQUE constraint failed: guilds.name".
func sqliteConstraintName(msg string) string {
	if i := strings.LastIndex(msg, "failed: "); i >= 0 {
		return strings.TrimSpace(msg[i+len("failed: "):])
	}
	return msg
}

// mysqlKeyName extracts the index name from
// "Duplicate entry 'x' for key 'guilds.idx_guilds_name'".
func mysqlKeyName(msg string) string {
	const marker = "for key '"
	i := strings.LastIndex(msg, marker)
	if i < 0 {
		return msg
	}
	key := strings.TrimSuffix(msg[i+len(marker):], "'")
	if dot := strings.LastIndex(key, "."); dot >= 0 {
		key = key[dot+1:]
	}
	return key
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
