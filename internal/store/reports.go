package store

import (
	"context"
	"database/sql"

	"github.com/newthinker/aurum/internal/core"
)

// SaveReport appends a report and returns its id.
func (db *DB) SaveReport(ctx context.Context, r Report) (int64, error) {
	var id int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO reports (headline, content, sentiment_score, trend, signal_type, entry_price, stop_loss, take_profit, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			nullString(r.Headline), r.Content, r.SentimentScore, r.Trend, nullString(string(r.SignalType)),
			nullFloat(r.EntryPrice), nullFloat(r.StopLoss), nullFloat(r.TakeProfit), db.nowUTC(),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, db.fail("save report", err)
	}
	return id, nil
}

// LatestReport returns the most recent report, or nil when none exist.
func (db *DB) LatestReport(ctx context.Context) (*Report, error) {
	var (
		r          Report
		headline   sql.NullString
		trend      string
		signalType sql.NullString
		entry      sql.NullFloat64
		sl         sql.NullFloat64
		tp         sql.NullFloat64
		created    sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, headline, content, sentiment_score, trend, signal_type, entry_price, stop_loss, take_profit, created_at
		FROM reports ORDER BY id DESC LIMIT 1`,
	).Scan(&r.ID, &headline, &r.Content, &r.SentimentScore, &trend, &signalType, &entry, &sl, &tp, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, db.fail("latest report", err)
	}

	r.Headline = headline.String
	r.Trend = core.ParseTrend(trend)
	r.SignalType = core.SignalType(signalType.String)
	r.EntryPrice = entry.Float64
	r.StopLoss = sl.Float64
	r.TakeProfit = tp.Float64
	r.CreatedAt = parseTime(created)
	return &r, nil
}
