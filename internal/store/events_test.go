package store

import (
	"context"
	"testing"
	"time"

	"github.com/newthinker/aurum/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func highEvent(title string, ts time.Time) EconomicEvent {
	return EconomicEvent{
		Title:     title,
		Currency:  "USD",
		Impact:    core.ImpactHigh,
		Timestamp: ts,
		Forecast:  "200K",
		Previous:  "180K",
		Status:    core.EventPending,
	}
}

func countEvents(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.conn.QueryRow(`SELECT COUNT(*) FROM economic_events`).Scan(&n))
	return n
}

func TestEventID(t *testing.T) {
	ts := time.Date(2024, 3, 8, 13, 30, 0, 0, time.UTC)
	assert.Equal(t, "20240308T133000_USD_Non_Farm_Employment_Change", EventID(ts, "usd", "Non-Farm Employment Change"))
}

func TestUpsertEvent_NewRowIsPending(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()

	e := highEvent("CPI m/m", clock.Now().Add(time.Hour))
	e.Status = core.EventPostNotified // caller-supplied status is not trusted
	require.NoError(t, db.UpsertEvent(ctx, e))

	got, err := db.GetEvent(ctx, EventID(e.Timestamp, e.Currency, e.Title))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, core.EventPending, got.Status)
	assert.Empty(t, got.Actual)
}

func TestUpsertEvent_PreservesStatus(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()

	e := highEvent("CPI m/m", clock.Now().Add(time.Hour))
	require.NoError(t, db.UpsertEvent(ctx, e))
	id := EventID(e.Timestamp, e.Currency, e.Title)

	changed, err := db.UpdateEventStatus(ctx, id, core.EventPreNotified)
	require.NoError(t, err)
	require.True(t, changed)

	// resync with a jittered timestamp and refreshed forecast
	e.Timestamp = e.Timestamp.Add(2 * time.Minute)
	e.Forecast = "0.3%"
	require.NoError(t, db.UpsertEvent(ctx, e))

	assert.Equal(t, 1, countEvents(t, db), "duplicates within a day collapse")
	got, err := db.GetEvent(ctx, EventID(e.Timestamp, e.Currency, e.Title))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, core.EventPreNotified, got.Status)
	assert.Equal(t, "0.3%", got.Forecast)
}

func TestUpsertEvent_Twice(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()

	e := highEvent("GDP q/q", clock.Now().Add(3*time.Hour))
	require.NoError(t, db.UpsertEvent(ctx, e))
	require.NoError(t, db.UpsertEvent(ctx, e))
	assert.Equal(t, 1, countEvents(t, db))
}

func TestUpsertEvent_KeepsOtherDays(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertEvent(ctx, highEvent("Unemployment Claims", clock.Now())))
	require.NoError(t, db.UpsertEvent(ctx, highEvent("Unemployment Claims", clock.Now().Add(7*24*time.Hour))))
	assert.Equal(t, 2, countEvents(t, db))
}

func TestUpsertEvent_PreservesActual(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()

	e := highEvent("Non-Farm Employment Change", clock.Now().Add(-10*time.Minute))
	require.NoError(t, db.UpsertEvent(ctx, e))
	id := EventID(e.Timestamp, e.Currency, e.Title)

	ok, err := db.UpdateEventActual(ctx, e.Title, e.Currency, e.Timestamp, "275K")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = db.UpdateEventStatus(ctx, id, core.EventPostNotified)
	require.NoError(t, err)
	require.True(t, ok)

	// schedule resync carries no actual
	require.NoError(t, db.UpsertEvent(ctx, e))
	got, err := db.GetEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "275K", got.Actual)
	assert.Equal(t, core.EventPostNotified, got.Status)
}

func TestUpdateEventStatus_ForwardOnly(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()

	e := highEvent("Retail Sales m/m", clock.Now().Add(-time.Minute))
	require.NoError(t, db.UpsertEvent(ctx, e))
	id := EventID(e.Timestamp, e.Currency, e.Title)

	changed, err := db.UpdateEventStatus(ctx, id, core.EventPostNotified)
	require.NoError(t, err)
	assert.False(t, changed, "post_notified needs an actual")

	changed, err = db.UpdateEventStatus(ctx, id, core.EventPreNotified)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = db.UpdateEventStatus(ctx, id, core.EventPending)
	require.NoError(t, err)
	assert.False(t, changed, "no backward moves")

	changed, err = db.UpdateEventStatus(ctx, id, core.EventPreNotified)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = db.UpdateEventStatus(ctx, id, core.EventStatus("bogus"))
	assert.ErrorIs(t, err, core.ErrStoreFailed)
}

func TestUpdateEventActual_OnlyWhenEmpty(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()

	e := highEvent("CPI m/m", clock.Now())
	require.NoError(t, db.UpsertEvent(ctx, e))

	ok, err := db.UpdateEventActual(ctx, "CPI m/m", "USD", clock.Now(), "0.4%")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.UpdateEventActual(ctx, "CPI m/m", "USD", clock.Now(), "0.5%")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = db.UpdateEventActual(ctx, "CPI m/m", "USD", clock.Now().Add(24*time.Hour), "0.5%")
	require.NoError(t, err)
	assert.False(t, ok, "different UTC date")

	got, err := db.GetEvent(ctx, EventID(e.Timestamp, e.Currency, e.Title))
	require.NoError(t, err)
	assert.Equal(t, "0.4%", got.Actual)
}

func TestPendingAlerts(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()
	now := clock.Now()

	soon := highEvent("FOMC Statement", now.Add(20*time.Minute))
	later := highEvent("ISM Services PMI", now.Add(2*time.Hour))
	low := highEvent("Crude Oil Inventories", now.Add(10*time.Minute))
	low.Impact = core.ImpactLow
	released := highEvent("CPI m/m", now.Add(-5*time.Minute))
	for _, e := range []EconomicEvent{soon, later, low, released} {
		require.NoError(t, db.UpsertEvent(ctx, e))
	}

	pre, err := db.PendingPreAlerts(ctx, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, pre, 1)
	assert.Equal(t, "FOMC Statement", pre[0].Title)

	post, err := db.PendingPostAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, post, "no actual yet")

	_, err = db.UpdateEventActual(ctx, "CPI m/m", "USD", released.Timestamp, "0.2%")
	require.NoError(t, err)
	post, err = db.PendingPostAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, post, 1)
	assert.Equal(t, "0.2%", post[0].Actual)
}

func TestHighImpactWindows(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()
	now := clock.Now()

	// S4 setup: a USD High event 20 minutes ahead
	require.NoError(t, db.UpsertEvent(ctx, highEvent("Non-Farm Employment Change", now.Add(20*time.Minute))))

	title, ok, err := db.UpcomingHighImpact(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Non-Farm Employment Change", title)

	_, ok, err = db.UpcomingHighImpact(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = db.RecentHighImpact(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(30 * time.Minute)
	title, ok, err = db.RecentHighImpact(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Non-Farm Employment Change", title)

	events, err := db.HighImpactBetween(ctx, now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
