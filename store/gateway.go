package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultTimeout bounds every store call when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Options tunes a Gateway.
type Options struct {
	// Timeout bounds each Exec, Query and WithTransaction call.
	Timeout time.Duration
	// Isolation is requested for transactions. sql.LevelDefault leaves the
	// engine default in place (SQLite serializes writers anyway).
	Isolation sql.IsolationLevel
}

// Gateway owns access to the relational store. It is the only component that
// touches persistent state; repositories run their statements through it.
type Gateway struct {
	db     *gorm.DB
	opts   Options
	logger *zap.Logger
}

// New wraps db. The Gateway is safe for concurrent use.
func New(db *gorm.DB, opts Options, logger *zap.Logger) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{db: db, opts: opts, logger: logger}
}

// Timeout is the bound applied to each call. Callers told the store is
// unavailable can retry after roughly this long.
func (g *Gateway) Timeout() time.Duration { return g.opts.Timeout }

// IsolationFor returns the isolation level to request for a gorm dialector.
func IsolationFor(dialect string) sql.IsolationLevel {
	if dialect == "mysql" {
		return sql.LevelReadCommitted
	}
	return sql.LevelDefault
}

// Exec runs a statement outside any explicit transaction and returns the
// number of affected rows.
func (g *Gateway) Exec(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()
	return execOn(g.db.WithContext(ctx), statement, args...)
}

// Query runs a statement and scans the resulting rows into dest.
func (g *Gateway) Query(ctx context.Context, dest interface{}, statement string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()
	return queryOn(g.db.WithContext(ctx), dest, statement, args...)
}

// WithTransaction runs fn inside one transaction. It commits when fn returns
// nil and rolls back when fn returns an error or panics; a panic is re-raised
// after the rollback. The whole call, fn included, is bounded by the
// configured timeout. Aborted transactions are not retried.
func (g *Gateway) WithTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	var txOpts []*sql.TxOptions
	if g.opts.Isolation != sql.LevelDefault {
		txOpts = append(txOpts, &sql.TxOptions{Isolation: g.opts.Isolation})
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Tx{db: tx})
	}, txOpts...)
	if err == nil {
		return nil
	}

	// A deadline that fires mid-transaction surfaces from the driver in
	// several shapes; the context is the reliable signal.
	if ctxErr := ctx.Err(); ctxErr != nil {
		g.logger.Warn("store transaction aborted", zap.Error(err), zap.Duration("timeout", g.opts.Timeout))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, ctxErr)
	}
	return classify(err)
}

// Ping checks connectivity.
func (g *Gateway) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()
	sqlDB, err := g.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Tx is a handle bound to an open transaction. It must not be used after the
// WithTransaction callback returns.
type Tx struct {
	db *gorm.DB
}

// DB returns the transaction-bound *gorm.DB for model operations.
func (tx *Tx) DB() *gorm.DB { return tx.db }

// Exec runs a statement inside the transaction.
func (tx *Tx) Exec(statement string, args ...interface{}) (int64, error) {
	return execOn(tx.db, statement, args...)
}

// Query runs a statement inside the transaction and scans rows into dest.
func (tx *Tx) Query(dest interface{}, statement string, args ...interface{}) error {
	return queryOn(tx.db, dest, statement, args...)
}

// Wrap classifies an error returned by a gorm call made through DB().
func (tx *Tx) Wrap(err error) error { return classify(err) }

func execOn(db *gorm.DB, statement string, args ...interface{}) (int64, error) {
	res := db.Exec(statement, args...)
	if res.Error != nil {
		return 0, classify(res.Error)
	}
	return res.RowsAffected, nil
}

func queryOn(db *gorm.DB, dest interface{}, statement string, args ...interface{}) error {
	return classify(db.Raw(statement, args...).Scan(dest).Error)
}
