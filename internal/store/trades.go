package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/newthinker/aurum/internal/core"
)

const tradeColumns = `ticket, signal_id, symbol, order_type, mode, volume, open_price, sl, tp, close_price, profit, status, open_time, close_time`

// SaveTradeEntry records a freshly confirmed order as OPEN, or as PENDING
// when t.Status says so. A ticket that is already stored is left untouched.
func (db *DB) SaveTradeEntry(ctx context.Context, t Trade) error {
	if t.Ticket == "" {
		return db.fail("save trade entry", fmt.Errorf("empty ticket"))
	}
	openTime := t.OpenTime
	if openTime.IsZero() {
		openTime = db.now()
	}

	status := core.TradeOpen
	if t.Status == core.TradePending {
		status = core.TradePending
	}

	var signalID any
	if t.SignalID > 0 {
		signalID = t.SignalID
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO trade_history (ticket, signal_id, symbol, order_type, mode, volume, open_price, sl, tp, profit, status, open_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			t.Ticket, signalID, t.Symbol, t.OrderType, nullString(t.Mode), t.Volume,
			nullFloat(t.OpenPrice), nullFloat(t.SL), nullFloat(t.TP), status, core.FormatUTC(openTime))
		return err
	})
	if err != nil {
		return db.fail("save trade entry", err)
	}
	return nil
}

// ActivateTrade promotes a PENDING trade to OPEN once its order filled. It
// returns false when the ticket is not PENDING.
func (db *DB) ActivateTrade(ctx context.Context, ticket string) (bool, error) {
	changed, err := db.execChanged(ctx,
		`UPDATE trade_history SET status = ? WHERE ticket = ? AND status = ?`,
		core.TradeOpen, ticket, core.TradePending)
	if err != nil {
		return false, db.fail("activate trade", err)
	}
	return changed, nil
}

// DeletePendingTrade removes a PENDING trade whose order was cancelled
// before it filled. OPEN and CLOSED rows are never removed.
func (db *DB) DeletePendingTrade(ctx context.Context, ticket string) (bool, error) {
	changed, err := db.execChanged(ctx,
		`DELETE FROM trade_history WHERE ticket = ? AND status = ?`,
		ticket, core.TradePending)
	if err != nil {
		return false, db.fail("delete pending trade", err)
	}
	return changed, nil
}

func (db *DB) execChanged(ctx context.Context, query string, args ...any) (bool, error) {
	var changed bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		changed = n > 0
		return err
	})
	return changed, err
}

// UpdateTradeProfit refreshes the floating profit of an OPEN trade.
func (db *DB) UpdateTradeProfit(ctx context.Context, ticket string, profit float64) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE trade_history SET profit = ? WHERE ticket = ? AND status = ?`,
			profit, ticket, core.TradeOpen)
		return err
	})
	if err != nil {
		return db.fail("update trade profit", err)
	}
	return nil
}

// UpdateTradeExit seals an OPEN trade with its broker-reported close. It
// returns false when the ticket is unknown or already closed.
func (db *DB) UpdateTradeExit(ctx context.Context, ticket string, closePrice, profit float64, closeTime time.Time) (bool, error) {
	if closeTime.IsZero() {
		closeTime = db.now()
	}

	var changed bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE trade_history SET close_price = ?, profit = ?, close_time = ?, status = ?
			WHERE ticket = ? AND status = ?`,
			closePrice, profit, core.FormatUTC(closeTime), core.TradeClosed, ticket, core.TradeOpen)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		changed = n > 0
		return err
	})
	if err != nil {
		return false, db.fail("update trade exit", err)
	}
	return changed, nil
}

// SyncTradeData overwrites the price and time fields of a stored trade
// with the given values. Status is not touched.
func (db *DB) SyncTradeData(ctx context.Context, t Trade) error {
	var closeTime any
	if !t.CloseTime.IsZero() {
		closeTime = core.FormatUTC(t.CloseTime)
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE trade_history
			SET open_price = ?, sl = ?, tp = ?, close_price = ?, profit = ?, open_time = ?, close_time = ?
			WHERE ticket = ?`,
			nullFloat(t.OpenPrice), nullFloat(t.SL), nullFloat(t.TP), nullFloat(t.ClosePrice),
			t.Profit, core.FormatUTC(t.OpenTime), closeTime, t.Ticket)
		return err
	})
	if err != nil {
		return db.fail("sync trade data", err)
	}
	return nil
}

// OpenTrades returns every OPEN trade, oldest first.
func (db *DB) OpenTrades(ctx context.Context) ([]Trade, error) {
	trades, err := db.queryTrades(ctx,
		`SELECT `+tradeColumns+` FROM trade_history WHERE status = ? ORDER BY open_time, ticket`, core.TradeOpen)
	if err != nil {
		return nil, db.fail("open trades", err)
	}
	return trades, nil
}

// PendingTrades returns every PENDING trade, oldest first.
func (db *DB) PendingTrades(ctx context.Context) ([]Trade, error) {
	trades, err := db.queryTrades(ctx,
		`SELECT `+tradeColumns+` FROM trade_history WHERE status = ? ORDER BY open_time, ticket`, core.TradePending)
	if err != nil {
		return nil, db.fail("pending trades", err)
	}
	return trades, nil
}

// GetTrade returns a trade by ticket, or nil when absent.
func (db *DB) GetTrade(ctx context.Context, ticket string) (*Trade, error) {
	trades, err := db.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trade_history WHERE ticket = ?`, ticket)
	if err != nil {
		return nil, db.fail("get trade", err)
	}
	if len(trades) == 0 {
		return nil, nil
	}
	return &trades[0], nil
}

// CountOpenTrades returns the number of OPEN trades.
func (db *DB) CountOpenTrades(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trade_history WHERE status = ?`, core.TradeOpen).Scan(&n); err != nil {
		return 0, db.fail("count open trades", err)
	}
	return n, nil
}

func (db *DB) queryTrades(ctx context.Context, query string, args ...any) ([]Trade, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var (
			t          Trade
			signalID   sql.NullInt64
			mode       sql.NullString
			openPrice  sql.NullFloat64
			sl         sql.NullFloat64
			tp         sql.NullFloat64
			closePrice sql.NullFloat64
			profit     sql.NullFloat64
			status     string
			openTime   sql.NullString
			closeTime  sql.NullString
		)
		if err := rows.Scan(&t.Ticket, &signalID, &t.Symbol, &t.OrderType, &mode, &t.Volume,
			&openPrice, &sl, &tp, &closePrice, &profit, &status, &openTime, &closeTime); err != nil {
			return nil, err
		}
		t.SignalID = signalID.Int64
		t.Mode = mode.String
		t.OpenPrice = openPrice.Float64
		t.SL = sl.Float64
		t.TP = tp.Float64
		t.ClosePrice = closePrice.Float64
		t.Profit = profit.Float64
		t.Status = core.TradeStatus(status)
		t.OpenTime = parseTime(openTime)
		t.CloseTime = parseTime(closeTime)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
