package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/analyst"
	"github.com/newthinker/aurum/internal/calendar"
	"github.com/newthinker/aurum/internal/config"
	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/indicator"
	"github.com/newthinker/aurum/internal/monitor"
	"github.com/newthinker/aurum/internal/news"
	"github.com/newthinker/aurum/internal/notifier"
	"github.com/newthinker/aurum/internal/notifier/liveblog"
	"github.com/newthinker/aurum/internal/scheduler"
	"github.com/newthinker/aurum/internal/storage/archive"
	"github.com/newthinker/aurum/internal/store"
	"github.com/newthinker/aurum/internal/trader"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeAnalyst struct {
	market   analyst.MarketAnalysis
	breaking map[string]analyst.BreakingNews // keyed by article title
	release  analyst.ReleaseAnalysis
	checked  []string
}

func (a *fakeAnalyst) AnalyzeMarket(_ context.Context, _ []store.Article, _ indicator.Summary, _ *store.Report) analyst.MarketAnalysis {
	return a.market
}

func (a *fakeAnalyst) CheckBreakingNews(_ context.Context, text string) analyst.BreakingNews {
	for title, b := range a.breaking {
		if len(text) >= len(title) && text[:len(title)] == title {
			a.checked = append(a.checked, title)
			return b
		}
	}
	a.checked = append(a.checked, text)
	return analyst.BreakingNews{Available: true}
}

func (a *fakeAnalyst) AnalyzeRelease(context.Context, store.EconomicEvent) analyst.ReleaseAnalysis {
	return a.release
}

type fakeNotifier struct {
	mu      sync.Mutex
	fail    bool
	claimed map[string]string
	photos  map[string]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{claimed: make(map[string]string), photos: make(map[string]string)}
}

func (n *fakeNotifier) Notify(_ context.Context, key, text string) (bool, map[string]error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return false, map[string]error{"telegram": errors.New("chat api down")}
	}
	if _, ok := n.claimed[key]; ok {
		return false, nil
	}
	n.claimed[key] = text
	return true, nil
}

func (n *fakeNotifier) NotifyPhoto(ctx context.Context, key, photoURL, caption string) (bool, map[string]error) {
	sent, errs := n.Notify(ctx, key, caption)
	if sent {
		n.mu.Lock()
		n.photos[key] = photoURL
		n.mu.Unlock()
	}
	return sent, errs
}

func (n *fakeNotifier) keys() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for k := range n.claimed {
		out = append(out, k)
	}
	return out
}

type fakeBlog struct{ entries []liveblog.Entry }

func (b *fakeBlog) Post(_ context.Context, e liveblog.Entry) error {
	b.entries = append(b.entries, e)
	return nil
}

type fakeNews struct {
	calls []news.Options
	err   error
}

func (f *fakeNews) Ingest(_ context.Context, opts news.Options) ([]store.Article, error) {
	f.calls = append(f.calls, opts)
	return nil, f.err
}

type fakeCalendar struct{ calls int }

func (c *fakeCalendar) Sync(context.Context) (calendar.SyncResult, error) {
	c.calls++
	return calendar.SyncResult{}, nil
}

type newsSignal struct {
	Side  core.SignalType
	Score float64
}

type fakeTrader struct {
	enabled   bool
	straddle  bool
	analyzed  int
	signals   []newsSignal
	straddles int
}

func (t *fakeTrader) Enabled() bool { return t.enabled }

func (t *fakeTrader) AnalyzeAndTrade(_ context.Context, symbol string) (trader.Outcome, error) {
	t.analyzed++
	return trader.Outcome{Action: trader.ActionNoSignal, Symbol: symbol}, nil
}

func (t *fakeTrader) ProcessNewsSignal(_ context.Context, symbol string, side core.SignalType, score float64, _ string) (trader.Outcome, error) {
	t.signals = append(t.signals, newsSignal{Side: side, Score: score})
	return trader.Outcome{Action: trader.ActionPlaced, Mode: trader.ModeNewsSniper, Symbol: symbol, Type: side, Ticket: "5001", At: testNow}, nil
}

func (t *fakeTrader) PlaceStraddle(_ context.Context, symbol string, _ trader.StraddleParams) (*trader.Straddle, error) {
	t.straddles++
	return &trader.Straddle{Symbol: symbol, Price: 2000, PlacedAt: testNow, Legs: []trader.Leg{
		{Ticket: "7001", Type: core.SignalBuyStop, Price: 2002, SL: 2001, TP: 2005},
		{Ticket: "7002", Type: core.SignalSellStop, Price: 1998, SL: 1999, TP: 1995},
	}}, nil
}

func (t *fakeTrader) DefaultStraddle() trader.StraddleParams { return trader.StraddleParams{} }

func (t *fakeTrader) StraddleWindow() (time.Duration, time.Duration) {
	return 90 * time.Second, 150 * time.Second
}

func (t *fakeTrader) StraddleEnabled() bool { return t.straddle }

type fakeMonitor struct{ ticks int }

func (m *fakeMonitor) Tick(context.Context, string) (monitor.Report, error) {
	m.ticks++
	return monitor.Report{}, nil
}

type fakeMarket struct{ bars []core.OHLCV }

func (m fakeMarket) CurrentPrice(context.Context, string) (float64, error) {
	return m.bars[len(m.bars)-1].Close, nil
}

func (m fakeMarket) FetchCandles(context.Context, string, string, int) ([]core.OHLCV, error) {
	return m.bars, nil
}

func risingBars(n int) []core.OHLCV {
	bars := make([]core.OHLCV, n)
	for i := range bars {
		c := 2000 + float64(i)*0.5
		bars[i] = core.OHLCV{Open: c - 0.2, High: c + 1, Low: c - 1, Close: c, Volume: 100, Time: testNow.Add(time.Duration(i-n) * time.Hour)}
	}
	return bars
}

type harness struct {
	runner   *Runner
	db       *store.DB
	analyst  *fakeAnalyst
	notifier *fakeNotifier
	blog     *fakeBlog
	news     *fakeNews
	trader   *fakeTrader
	monitor  *fakeMonitor
	calendar *fakeCalendar
	archive  archive.Storage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "aurum.db"), zap.NewNop(), store.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	arch, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		db:       db,
		analyst:  &fakeAnalyst{breaking: map[string]analyst.BreakingNews{}},
		notifier: newFakeNotifier(),
		blog:     &fakeBlog{},
		news:     &fakeNews{},
		trader:   &fakeTrader{enabled: true, straddle: true},
		monitor:  &fakeMonitor{},
		calendar: &fakeCalendar{},
		archive:  arch,
	}
	h.runner = NewRunner(Env{
		Logger:    zap.NewNop(),
		Store:     db,
		Market:    fakeMarket{bars: risingBars(200)},
		Analyst:   h.analyst,
		Notifier:  h.notifier,
		LiveBlog:  h.blog,
		News:      h.news,
		Calendar:  h.calendar,
		Trader:    h.trader,
		Monitor:   h.monitor,
		Archive:   arch,
		Formatter: notifier.NewFormatter(time.UTC),
		Config:    config.Defaults(),
		Now:       func() time.Time { return testNow },
	})
	return h
}

func (h *harness) insertArticle(t *testing.T, id, title string) {
	t.Helper()
	_, err := h.db.InsertArticle(context.Background(), store.Article{
		ID:          id,
		Source:      "Kitco",
		Title:       title,
		PublishedAt: testNow.Add(-time.Minute),
		Content:     title + ". Gold traders reacted as the dollar moved and yields shifted across the curve.",
		Status:      core.ArticleNew,
	})
	require.NoError(t, err)
}

func reportAnalysis() analyst.MarketAnalysis {
	return analyst.MarketAnalysis{
		Headline:       "Gold firms on softer dollar",
		SentimentScore: 6,
		Trend:          core.TrendBullish,
		BulletPoints:   []string{"Dollar eases", "Yields slip", "ETF inflows"},
		Conclusion:     "Bias stays higher.",
		Signal:         &analyst.TradeIdea{OrderType: core.SignalBuy, EntryPrice: 2000, StopLoss: 1995, TP1: 2010, TP2: 2020},
		Available:      true,
	}
}

func TestDailyReport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.insertArticle(t, "https://kitco.test/a", "Gold steadies")
	h.insertArticle(t, "https://kitco.test/b", "Dollar slips")
	h.analyst.market = reportAnalysis()

	require.NoError(t, h.runner.DailyReport(ctx))

	rep, err := h.db.LatestReport(ctx)
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, "Gold firms on softer dollar", rep.Headline)
	assert.Equal(t, core.SignalBuy, rep.SignalType)

	assert.Contains(t, h.notifier.keys(), "report:1")
	require.Len(t, h.blog.entries, 1)
	assert.Equal(t, "Gold firms on softer dollar", h.blog.entries[0].Title)

	doc, err := h.archive.Read(ctx, "reports/2026/03/10/1.md")
	require.NoError(t, err)
	assert.Contains(t, string(doc), "# Gold firms on softer dollar")

	sig, err := h.db.LatestValidSignal(ctx, "XAUUSD", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, core.SourceAIReport, sig.Source)
	assert.Equal(t, core.SignalBuy, sig.Type)
	assert.Equal(t, 6.0, sig.Score)
	assert.Equal(t, 2010.0, sig.TakeProfit)

	left, err := h.db.UnprocessedArticles(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Equal(t, 1, h.trader.analyzed)
}

func TestDailyReport_WaitSignalNotStored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.insertArticle(t, "https://kitco.test/a", "Gold steadies")
	a := reportAnalysis()
	a.Signal = &analyst.TradeIdea{OrderType: core.SignalWait}
	h.analyst.market = a

	require.NoError(t, h.runner.DailyReport(ctx))

	sig, err := h.db.LatestValidSignal(ctx, "XAUUSD", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestDailyReport_AnalystDownKeepsArticles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.insertArticle(t, "https://kitco.test/a", "Gold steadies")
	h.analyst.market = analyst.MarketAnalysis{}

	err := h.runner.DailyReport(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrLLMFailed))

	left, err := h.db.UnprocessedArticles(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, left, 1)
	assert.Empty(t, h.notifier.keys())
	assert.Zero(t, h.trader.analyzed)
}

func TestRunOnce_SkipTrade(t *testing.T) {
	h := newHarness(t)
	h.insertArticle(t, "https://kitco.test/a", "Gold steadies")
	h.analyst.market = reportAnalysis()

	require.NoError(t, h.runner.RunOnce(context.Background(), ReportOptions{SkipTrade: true}))

	require.Len(t, h.news.calls, 1)
	assert.False(t, h.news.calls[0].Fast)
	assert.Zero(t, h.trader.analyzed)
	assert.Contains(t, h.notifier.keys(), "report:1")
	assert.Zero(t, h.calendar.calls)
	assert.Zero(t, h.monitor.ticks)
}

func TestRunOnce_FullSequence(t *testing.T) {
	h := newHarness(t)
	h.insertArticle(t, "https://kitco.test/a", "Gold steadies")
	h.analyst.market = reportAnalysis()

	require.NoError(t, h.runner.RunOnce(context.Background(), ReportOptions{}))

	require.Len(t, h.news.calls, 1)
	assert.Contains(t, h.notifier.keys(), "report:1")
	assert.Equal(t, 1, h.calendar.calls)
	assert.Equal(t, 1, h.monitor.ticks)
}

func TestRealtimeAlert(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.insertArticle(t, "https://kitco.test/fed", "Breaking: Fed signals faster cuts")
	h.insertArticle(t, "https://kitco.test/outlook", "Weekly gold outlook")
	h.insertArticle(t, "https://kitco.test/war", "War fears grip markets")
	h.analyst.breaking["Breaking: Fed signals faster cuts"] = analyst.BreakingNews{
		IsBreaking: true, Score: 7, Headline: "Fed cuts", Impact: "bullish for gold", Available: true,
	}
	h.analyst.breaking["War fears grip markets"] = analyst.BreakingNews{
		IsBreaking: false, Score: 2, Impact: "mixed", Available: true,
	}

	require.NoError(t, h.runner.RealtimeAlert(ctx))

	require.Len(t, h.news.calls, 1)
	assert.True(t, h.news.calls[0].Fast)
	assert.Equal(t, 5*time.Minute, h.news.calls[0].Lookback)

	assert.NotContains(t, h.analyst.checked, "Weekly gold outlook")
	keys := h.notifier.keys()
	assert.Contains(t, keys, "alert:https://kitco.test/fed")
	assert.Contains(t, keys, "alert:https://kitco.test/war")
	assert.Contains(t, keys, "trade:5001")

	// Only the directional item becomes a signal.
	require.Len(t, h.trader.signals, 1)
	assert.Equal(t, newsSignal{Side: core.SignalBuy, Score: 7}, h.trader.signals[0])

	left, err := h.db.UnalertedNews(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "https://kitco.test/outlook", left[0].ID)
	assert.Len(t, h.blog.entries, 2)
}

func TestRealtimeAlert_FailedDeliveryRetries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.insertArticle(t, "https://kitco.test/fed", "Breaking: Fed hikes")
	h.analyst.breaking["Breaking: Fed hikes"] = analyst.BreakingNews{
		IsBreaking: true, Score: 6, Impact: "bearish for gold", Available: true,
	}
	h.notifier.fail = true

	require.NoError(t, h.runner.RealtimeAlert(ctx))
	left, err := h.db.UnalertedNews(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Len(t, left, 1)
	assert.Empty(t, h.trader.signals)

	h.notifier.fail = false
	require.NoError(t, h.runner.RealtimeAlert(ctx))
	left, err = h.db.UnalertedNews(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, left)
	require.Len(t, h.trader.signals, 1)
	assert.Equal(t, core.SignalSell, h.trader.signals[0].Side)
}

func TestSideFromImpact(t *testing.T) {
	tests := []struct {
		impact string
		want   core.SignalType
	}{
		{"Bullish for gold", core.SignalBuy},
		{"bearish for gold", core.SignalSell},
		{"gold likely to rally", core.SignalBuy},
		{"pressure on bullion, prices to drop", core.SignalSell},
		{"bullish dollar, bearish gold", ""},
		{"unclear", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SideFromImpact(tt.impact), tt.impact)
	}
}

func upsertEvent(t *testing.T, db *store.DB, title string, at time.Time) store.EconomicEvent {
	t.Helper()
	e := store.EconomicEvent{
		ID:        store.EventID(at, "USD", title),
		Title:     title,
		Currency:  "USD",
		Impact:    core.ImpactHigh,
		Timestamp: at,
		Forecast:  "0.3%",
		Previous:  "0.2%",
	}
	require.NoError(t, db.UpsertEvent(context.Background(), e))
	return e
}

func TestEconomicWorker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	upcoming := upsertEvent(t, h.db, "Core CPI m/m", testNow.Add(20*time.Minute))
	released := upsertEvent(t, h.db, "Retail Sales m/m", testNow.Add(-10*time.Minute))
	_, err := h.db.UpdateEventActual(ctx, released.Title, released.Currency, released.Timestamp, "0.9%")
	require.NoError(t, err)
	h.analyst.release = analyst.ReleaseAnalysis{SentimentScore: -7, Trend: core.TrendBearish, Summary: "Strong spending lifts the dollar", Available: true}

	require.NoError(t, h.runner.EconomicWorker(ctx))

	keys := h.notifier.keys()
	assert.Contains(t, keys, "event:"+upcoming.ID+":pre")
	assert.Contains(t, keys, "event:"+released.ID+":post")

	got, err := h.db.GetEvent(ctx, upcoming.ID)
	require.NoError(t, err)
	assert.Equal(t, core.EventPreNotified, got.Status)
	got, err = h.db.GetEvent(ctx, released.ID)
	require.NoError(t, err)
	assert.Equal(t, core.EventPostNotified, got.Status)

	require.Len(t, h.trader.signals, 1)
	assert.Equal(t, core.SignalSell, h.trader.signals[0].Side)

	// A second tick has nothing left to send.
	require.NoError(t, h.runner.EconomicWorker(ctx))
	assert.Len(t, h.trader.signals, 1)
}

func TestEconomicWorker_WeakReleaseNoSignal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	released := upsertEvent(t, h.db, "Retail Sales m/m", testNow.Add(-10*time.Minute))
	_, err := h.db.UpdateEventActual(ctx, released.Title, released.Currency, released.Timestamp, "0.3%")
	require.NoError(t, err)
	h.analyst.release = analyst.ReleaseAnalysis{SentimentScore: 2, Available: true}

	require.NoError(t, h.runner.EconomicWorker(ctx))
	assert.Empty(t, h.trader.signals)
}

func TestEconomicWorker_FailedPreAlertStaysPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	upcoming := upsertEvent(t, h.db, "Core CPI m/m", testNow.Add(20*time.Minute))
	h.notifier.fail = true

	require.NoError(t, h.runner.EconomicWorker(ctx))

	got, err := h.db.GetEvent(ctx, upcoming.ID)
	require.NoError(t, err)
	assert.Equal(t, core.EventPending, got.Status)
}

func TestTradeMonitor_NewsTrapArmsOncePerEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	upsertEvent(t, h.db, "Non-Farm Employment Change", testNow.Add(2*time.Minute))
	upsertEvent(t, h.db, "FOMC Statement", testNow.Add(10*time.Minute))

	require.NoError(t, h.runner.TradeMonitor(ctx))
	require.NoError(t, h.runner.TradeMonitor(ctx))

	assert.Equal(t, 2, h.monitor.ticks)
	assert.Equal(t, 1, h.trader.straddles)
	keys := h.notifier.keys()
	assert.Contains(t, keys, "trade:7001")
	assert.Contains(t, keys, "trade:7002")
}

func TestTradeMonitor_StraddleDisabled(t *testing.T) {
	h := newHarness(t)
	h.trader.straddle = false
	upsertEvent(t, h.db, "Non-Farm Employment Change", testNow.Add(2*time.Minute))

	require.NoError(t, h.runner.TradeMonitor(context.Background()))
	assert.Zero(t, h.trader.straddles)
	assert.Equal(t, 1, h.monitor.ticks)
}

func TestRegister(t *testing.T) {
	h := newHarness(t)
	s := scheduler.New(zap.NewNop(), scheduler.WithLocation(time.UTC))
	require.NoError(t, Register(s, h.runner, config.Defaults().Schedule))

	var names []string
	for _, st := range s.Snapshot() {
		names = append(names, st.Name)
	}
	assert.Equal(t, []string{JobScanNews, JobDailyReport, JobRealtimeAlert, JobEconomic, JobTradeMonitor}, names)

	bad := config.Defaults().Schedule
	bad.ScanTimes = []string{"7am"}
	assert.Error(t, Register(scheduler.New(zap.NewNop()), h.runner, bad))
}

func TestOffsetTimes(t *testing.T) {
	got, err := offsetTimes([]string{"07:00", "13:30", "19:00"}, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"07:15", "13:45", "19:15"}, got)
}

func TestRegister_WeekendGate(t *testing.T) {
	h := newHarness(t)
	s := scheduler.New(zap.NewNop(), scheduler.WithLocation(time.UTC))
	cfg := config.Defaults().Schedule
	require.NoError(t, Register(s, h.runner, cfg))

	// 2026-03-14 is a Saturday; only the interval jobs fire at 07:00.
	s.Tick(context.Background(), time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC))
	s.Wait()
	for _, st := range s.Snapshot() {
		switch st.Name {
		case JobScanNews, JobDailyReport:
			assert.Zero(t, st.Runs, st.Name)
		case JobRealtimeAlert, JobEconomic, JobTradeMonitor:
			assert.EqualValues(t, 1, st.Runs, st.Name)
		}
	}
}
