package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/newthinker/aurum/internal/core"
)

const signalColumns = `id, symbol, signal_type, source, score, entry_price, stop_loss, take_profit, reason, created_at, processed`

// SaveSignal appends a signal unconditionally and returns its id.
func (db *DB) SaveSignal(ctx context.Context, s TradeSignal) (int64, error) {
	if _, ok := core.ParseSignalSource(string(s.Source)); !ok {
		return 0, db.fail("save signal", fmt.Errorf("unknown source %q", s.Source))
	}
	if s.Score < 0 {
		s.Score = -s.Score
	}

	var id int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO trade_signals (symbol, signal_type, source, score, entry_price, stop_loss, take_profit, reason, created_at, processed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
			s.Symbol, s.Type, s.Source, s.Score,
			nullFloat(s.EntryPrice), nullFloat(s.StopLoss), nullFloat(s.TakeProfit),
			nullString(s.Reason), db.nowUTC())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, db.fail("save signal", err)
	}
	return id, nil
}

// LatestValidSignal returns the signal the trader should act on: the newest
// NEWS signal within ttl wins over any AI_REPORT signal, however recent.
// Without one, the newest AI_REPORT signal within ttl is returned. Nil
// means nothing is valid.
func (db *DB) LatestValidSignal(ctx context.Context, symbol string, ttl time.Duration) (*TradeSignal, error) {
	cutoff := core.FormatUTC(db.now().Add(-ttl))
	for _, source := range []core.SignalSource{core.SourceNews, core.SourceAIReport} {
		signals, err := db.querySignals(ctx, `
			SELECT `+signalColumns+` FROM trade_signals
			WHERE symbol = ? AND source = ? AND created_at >= ?
			ORDER BY created_at DESC, id DESC LIMIT 1`,
			symbol, source, cutoff)
		if err != nil {
			return nil, db.fail("latest valid signal", err)
		}
		if len(signals) > 0 {
			return &signals[0], nil
		}
	}
	return nil, nil
}

// GetSignal returns one signal by id, or nil when absent.
func (db *DB) GetSignal(ctx context.Context, id int64) (*TradeSignal, error) {
	signals, err := db.querySignals(ctx, `SELECT `+signalColumns+` FROM trade_signals WHERE id = ?`, id)
	if err != nil {
		return nil, db.fail("get signal", err)
	}
	if len(signals) == 0 {
		return nil, nil
	}
	return &signals[0], nil
}

// MarkSignalProcessed sets processed=1. Repeated calls are harmless;
// changed reports whether this call did the flip.
func (db *DB) MarkSignalProcessed(ctx context.Context, id int64) (bool, error) {
	var changed bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE trade_signals SET processed = 1 WHERE id = ? AND processed = 0`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		changed = n > 0
		return err
	})
	if err != nil {
		return false, db.fail("mark signal processed", err)
	}
	return changed, nil
}

func (db *DB) querySignals(ctx context.Context, query string, args ...any) ([]TradeSignal, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []TradeSignal
	for rows.Next() {
		var (
			s         TradeSignal
			sigType   string
			source    string
			entry     sql.NullFloat64
			sl        sql.NullFloat64
			tp        sql.NullFloat64
			reason    sql.NullString
			created   sql.NullString
			processed int
		)
		if err := rows.Scan(&s.ID, &s.Symbol, &sigType, &source, &s.Score, &entry, &sl, &tp, &reason, &created, &processed); err != nil {
			return nil, err
		}
		s.Type = core.SignalType(sigType)
		s.Source = core.SignalSource(source)
		s.EntryPrice = entry.Float64
		s.StopLoss = sl.Float64
		s.TakeProfit = tp.Float64
		s.Reason = reason.String
		s.CreatedAt = parseTime(created)
		s.Processed = processed == 1
		signals = append(signals, s)
	}
	return signals, rows.Err()
}
