package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/aurum/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func openTestDB(t *testing.T) (*DB, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)}
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop(), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, clock
}

func TestOpen_CreatesTables(t *testing.T) {
	db, _ := openTestDB(t)

	for _, table := range []string{"articles", "reports", "economic_events", "trade_signals", "trade_history"} {
		var name string
		err := db.conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	db, _ := openTestDB(t)
	require.NoError(t, db.InitSchema(context.Background()))
	require.NoError(t, db.InitSchema(context.Background()))
}

func TestInitSchema_AddsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	// a database created before the additive columns existed
	legacy, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`CREATE TABLE trade_signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		signal_type TEXT NOT NULL,
		source TEXT NOT NULL,
		score REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0)`)
	require.NoError(t, err)
	_, err = legacy.Exec(`INSERT INTO trade_signals (symbol, signal_type, source, score, created_at) VALUES ('XAUUSD', 'BUY', 'NEWS', 6, '2024-03-06 11:59:00')`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	clock := &testClock{now: time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)}
	db, err := Open(path, zap.NewNop(), WithClock(clock.Now))
	require.NoError(t, err)
	defer db.Close()

	cols, err := tableColumns(context.Background(), db.conn, "trade_signals")
	require.NoError(t, err)
	for _, c := range []string{"entry_price", "stop_loss", "take_profit", "reason"} {
		assert.True(t, cols[c], "column %s should have been added", c)
	}

	sig, err := db.LatestValidSignal(context.Background(), "XAUUSD", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, 0.0, sig.EntryPrice)
	assert.Equal(t, core.SignalBuy, sig.Type)
}

func TestStoredTimestampsAreUTC(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()

	loc := time.FixedZone("ICT", 7*3600)
	clock.now = time.Date(2024, 3, 6, 19, 0, 0, 0, loc)
	_, err := db.SaveSignal(ctx, TradeSignal{Symbol: "XAUUSD", Type: core.SignalBuy, Source: core.SourceNews, Score: 5})
	require.NoError(t, err)

	var created string
	require.NoError(t, db.conn.QueryRow(`SELECT created_at FROM trade_signals`).Scan(&created))
	assert.Equal(t, "2024-03-06 12:00:00", created)

	parsed, err := core.ParseUTC(created)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(clock.now))
}
