package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS articles (
    id TEXT PRIMARY KEY,
    source TEXT,
    title TEXT NOT NULL,
    published_at TEXT,
    content TEXT,
    keywords TEXT,
    image_url TEXT,
    status TEXT NOT NULL DEFAULT 'NEW',
    is_alerted INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);

CREATE TABLE IF NOT EXISTS reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content TEXT NOT NULL,
    sentiment_score REAL NOT NULL DEFAULT 0,
    trend TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS economic_events (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    currency TEXT NOT NULL,
    impact TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    forecast TEXT,
    previous TEXT,
    actual TEXT,
    status TEXT NOT NULL DEFAULT 'pending'
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON economic_events(timestamp);

CREATE TABLE IF NOT EXISTS trade_signals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    signal_type TEXT NOT NULL,
    source TEXT NOT NULL,
    score REAL NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    processed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_signals_lookup ON trade_signals(symbol, source, created_at);

CREATE TABLE IF NOT EXISTS trade_history (
    ticket TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    order_type TEXT NOT NULL,
    volume REAL NOT NULL,
    open_price REAL,
    status TEXT NOT NULL DEFAULT 'OPEN',
    open_time TEXT NOT NULL
);
`

// column is one additive column; CREATE TABLE above carries only the
// original layout and everything later is layered on through these.
type column struct {
	table string
	name  string
	ddl   string
}

var additiveColumns = []column{
	{"reports", "headline", "TEXT"},
	{"reports", "signal_type", "TEXT"},
	{"reports", "entry_price", "REAL"},
	{"reports", "stop_loss", "REAL"},
	{"reports", "take_profit", "REAL"},
	{"trade_signals", "entry_price", "REAL"},
	{"trade_signals", "stop_loss", "REAL"},
	{"trade_signals", "take_profit", "REAL"},
	{"trade_signals", "reason", "TEXT"},
	{"trade_history", "signal_id", "INTEGER"},
	{"trade_history", "sl", "REAL"},
	{"trade_history", "tp", "REAL"},
	{"trade_history", "close_price", "REAL"},
	{"trade_history", "profit", "REAL"},
	{"trade_history", "close_time", "TEXT"},
	{"trade_history", "mode", "TEXT"},
}

// InitSchema creates missing tables and adds any missing columns with
// DEFAULT NULL. Running it twice is harmless.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}

	existing := make(map[string]map[string]bool)
	for _, c := range additiveColumns {
		cols, ok := existing[c.table]
		if !ok {
			var err error
			cols, err = tableColumns(ctx, db.conn, c.table)
			if err != nil {
				return err
			}
			existing[c.table] = cols
		}
		if cols[c.name] {
			continue
		}

		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s DEFAULT NULL", c.table, c.name, c.ddl)
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
				continue
			}
			return fmt.Errorf("adding %s.%s: %w", c.table, c.name, err)
		}
		cols[c.name] = true
		db.logger.Info("added column", zap.String("table", c.table), zap.String("column", c.name))
	}
	return nil
}

func tableColumns(ctx context.Context, conn *sql.DB, table string) (map[string]bool, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
