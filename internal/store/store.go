// Package store persists articles, reports, economic events, trade signals
// and trade history in a single embedded sqlite file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/newthinker/aurum/internal/core"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	conn   *sql.DB
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithClock replaces the wall clock used for created_at stamps and all
// time-window queries.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// Open creates or opens a SQLite database at the given path and brings
// the schema up to date.
func Open(dbPath string, logger *zap.Logger, opts ...Option) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// busy_timeout is per connection, so it goes in the DSN to reach every
	// pooled connection.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn, path: dbPath, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.InitSchema(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Ping checks the connection is usable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) nowUTC() string {
	return core.FormatUTC(db.now())
}

// withTx runs fn inside one transaction. Everything fn does must go
// through tx.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// fail logs a store error and wraps it with the store code.
func (db *DB) fail(op string, err error) error {
	db.logger.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return core.WrapError(core.ErrStoreFailed, fmt.Errorf("%s: %w", op, err))
}

func nullFloat(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := core.ParseUTC(s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
