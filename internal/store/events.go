package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/newthinker/aurum/internal/core"
)

const eventColumns = `id, title, currency, impact, timestamp, forecast, previous, actual, status`

// duplicateBand absorbs timestamp jitter in the weekly feed.
const duplicateBand = 24 * time.Hour

// EventID builds the stable id YYYYMMDDTHHMMSS_CUR_safe_title.
func EventID(ts time.Time, currency, title string) string {
	safe := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, strings.TrimSpace(title))
	return fmt.Sprintf("%s_%s_%s", ts.UTC().Format("20060102T150405"), strings.ToUpper(currency), safe)
}

// UpsertEvent replaces every row for the same title and currency within a
// day of e.Timestamp with e. The highest status among the replaced rows
// survives, as does a non-empty actual when e carries none.
func (db *DB) UpsertEvent(ctx context.Context, e EconomicEvent) error {
	if e.ID == "" {
		e.ID = EventID(e.Timestamp, e.Currency, e.Title)
	}
	lo := core.FormatUTC(e.Timestamp.Add(-duplicateBand))
	hi := core.FormatUTC(e.Timestamp.Add(duplicateBand))

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT status, actual FROM economic_events
			WHERE id = ? OR (title = ? AND currency = ? AND timestamp BETWEEN ? AND ?)`,
			e.ID, e.Title, e.Currency, lo, hi)
		if err != nil {
			return err
		}

		status := core.EventPending
		var actual string
		for rows.Next() {
			var s string
			var a sql.NullString
			if err := rows.Scan(&s, &a); err != nil {
				rows.Close()
				return err
			}
			if st := core.EventStatus(s); st.Rank() > status.Rank() {
				status = st
			}
			if a.String != "" && actual == "" {
				actual = a.String
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if e.Actual == "" {
			e.Actual = actual
		}
		// A post_notified row always carries its actual; without one the
		// strongest state we can keep is pre_notified.
		if status == core.EventPostNotified && e.Actual == "" {
			status = core.EventPreNotified
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM economic_events
			WHERE id = ? OR (title = ? AND currency = ? AND timestamp BETWEEN ? AND ?)`,
			e.ID, e.Title, e.Currency, lo, hi); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO economic_events (`+eventColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Title, e.Currency, e.Impact, core.FormatUTC(e.Timestamp),
			e.Forecast, e.Previous, e.Actual, status)
		return err
	})
	if err != nil {
		return db.fail("upsert event", err)
	}
	return nil
}

// GetEvent returns one event by id, or nil when absent.
func (db *DB) GetEvent(ctx context.Context, id string) (*EconomicEvent, error) {
	events, err := db.queryEvents(ctx, `SELECT `+eventColumns+` FROM economic_events WHERE id = ?`, id)
	if err != nil {
		return nil, db.fail("get event", err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// PendingPreAlerts returns pending High-impact events starting within the
// window, soonest first.
func (db *DB) PendingPreAlerts(ctx context.Context, window time.Duration) ([]EconomicEvent, error) {
	now := db.now()
	events, err := db.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM economic_events
		WHERE status = ? AND impact = ? AND timestamp > ? AND timestamp <= ?
		ORDER BY timestamp`,
		core.EventPending, core.ImpactHigh, core.FormatUTC(now), core.FormatUTC(now.Add(window)))
	if err != nil {
		return nil, db.fail("pending pre alerts", err)
	}
	return events, nil
}

// PendingPostAlerts returns released High-impact events from the last day
// that have an actual but no post alert yet, oldest first.
func (db *DB) PendingPostAlerts(ctx context.Context) ([]EconomicEvent, error) {
	now := db.now()
	events, err := db.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM economic_events
		WHERE status != ? AND impact = ? AND actual IS NOT NULL AND actual != ''
		  AND timestamp <= ? AND timestamp >= ?
		ORDER BY timestamp`,
		core.EventPostNotified, core.ImpactHigh, core.FormatUTC(now), core.FormatUTC(now.Add(-24*time.Hour)))
	if err != nil {
		return nil, db.fail("pending post alerts", err)
	}
	return events, nil
}

// UpdateEventStatus moves an event forward along pending, pre_notified,
// post_notified. Backward moves and post_notified without an actual are
// refused with changed=false.
func (db *DB) UpdateEventStatus(ctx context.Context, id string, status core.EventStatus) (bool, error) {
	if _, ok := core.ParseEventStatus(string(status)); !ok {
		return false, db.fail("update event status", fmt.Errorf("unknown status %q", status))
	}

	var changed bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE economic_events SET status = ?
			WHERE id = ?
			  AND (CASE status WHEN 'pre_notified' THEN 1 WHEN 'post_notified' THEN 2 ELSE 0 END) < ?
			  AND (? != 'post_notified' OR (actual IS NOT NULL AND actual != ''))`,
			status, id, status.Rank(), status)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		changed = n > 0
		return err
	})
	if err != nil {
		return false, db.fail("update event status", err)
	}
	return changed, nil
}

// UpdateEventActual records a released value on the event matching title,
// currency and UTC date. Rows that already have an actual are left alone.
func (db *DB) UpdateEventActual(ctx context.Context, title, currency string, day time.Time, actual string) (bool, error) {
	if strings.TrimSpace(actual) == "" {
		return false, nil
	}

	var changed bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE economic_events SET actual = ?
			WHERE title = ? AND currency = ? AND substr(timestamp, 1, 10) = ?
			  AND (actual IS NULL OR actual = '')`,
			actual, title, currency, day.UTC().Format("2006-01-02"))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		changed = n > 0
		return err
	})
	if err != nil {
		return false, db.fail("update event actual", err)
	}
	return changed, nil
}

// UpcomingHighImpact returns the title of the next High-impact event
// starting within the given duration.
func (db *DB) UpcomingHighImpact(ctx context.Context, within time.Duration) (string, bool, error) {
	now := db.now()
	return db.highImpactTitle(ctx, "upcoming high impact", `
		SELECT title FROM economic_events
		WHERE impact = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp LIMIT 1`,
		core.ImpactHigh, core.FormatUTC(now), core.FormatUTC(now.Add(within)))
}

// RecentHighImpact returns the title of the latest High-impact event that
// started within the given duration.
func (db *DB) RecentHighImpact(ctx context.Context, within time.Duration) (string, bool, error) {
	now := db.now()
	return db.highImpactTitle(ctx, "recent high impact", `
		SELECT title FROM economic_events
		WHERE impact = ? AND timestamp <= ? AND timestamp >= ?
		ORDER BY timestamp DESC LIMIT 1`,
		core.ImpactHigh, core.FormatUTC(now), core.FormatUTC(now.Add(-within)))
}

// HighImpactBetween lists High-impact events starting in [from, to].
func (db *DB) HighImpactBetween(ctx context.Context, from, to time.Time) ([]EconomicEvent, error) {
	events, err := db.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM economic_events
		WHERE impact = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp`,
		core.ImpactHigh, core.FormatUTC(from), core.FormatUTC(to))
	if err != nil {
		return nil, db.fail("high impact between", err)
	}
	return events, nil
}

func (db *DB) highImpactTitle(ctx context.Context, op, query string, args ...any) (string, bool, error) {
	var title string
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(&title)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, db.fail(op, err)
	}
	return title, true, nil
}

func (db *DB) queryEvents(ctx context.Context, query string, args ...any) ([]EconomicEvent, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EconomicEvent
	for rows.Next() {
		var (
			e        EconomicEvent
			impact   string
			ts       sql.NullString
			forecast sql.NullString
			previous sql.NullString
			actual   sql.NullString
			status   string
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.Currency, &impact, &ts, &forecast, &previous, &actual, &status); err != nil {
			return nil, err
		}
		e.Impact = core.Impact(impact)
		e.Timestamp = parseTime(ts)
		e.Forecast = forecast.String
		e.Previous = previous.String
		e.Actual = actual.String
		e.Status = core.EventStatus(status)
		events = append(events, e)
	}
	return events, rows.Err()
}
