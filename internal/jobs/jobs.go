// Package jobs holds the scheduled job bodies: news scans, the daily
// report, realtime alerts, the economic calendar worker and the trade
// monitor with its pre-release straddle.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/analyst"
	"github.com/newthinker/aurum/internal/broker"
	"github.com/newthinker/aurum/internal/calendar"
	"github.com/newthinker/aurum/internal/config"
	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/indicator"
	"github.com/newthinker/aurum/internal/monitor"
	"github.com/newthinker/aurum/internal/news"
	"github.com/newthinker/aurum/internal/notifier"
	"github.com/newthinker/aurum/internal/notifier/liveblog"
	"github.com/newthinker/aurum/internal/storage/archive"
	"github.com/newthinker/aurum/internal/store"
	"github.com/newthinker/aurum/internal/trader"
)

// Store is the persistence the jobs read and write directly.
type Store interface {
	UnprocessedArticles(ctx context.Context, limit int) ([]store.Article, error)
	MarkProcessed(ctx context.Context, ids ...string) (int64, error)
	UnalertedNews(ctx context.Context, lookback time.Duration) ([]store.Article, error)
	MarkAlerted(ctx context.Context, id string) (bool, error)
	SaveReport(ctx context.Context, r store.Report) (int64, error)
	LatestReport(ctx context.Context) (*store.Report, error)
	SaveSignal(ctx context.Context, s store.TradeSignal) (int64, error)
	PendingPreAlerts(ctx context.Context, window time.Duration) ([]store.EconomicEvent, error)
	PendingPostAlerts(ctx context.Context) ([]store.EconomicEvent, error)
	UpdateEventStatus(ctx context.Context, id string, status core.EventStatus) (bool, error)
	HighImpactBetween(ctx context.Context, from, to time.Time) ([]store.EconomicEvent, error)
	OpenTrades(ctx context.Context) ([]store.Trade, error)
}

// Analyst is the AI layer.
type Analyst interface {
	AnalyzeMarket(ctx context.Context, articles []store.Article, ta indicator.Summary, prior *store.Report) analyst.MarketAnalysis
	CheckBreakingNews(ctx context.Context, text string) analyst.BreakingNews
	AnalyzeRelease(ctx context.Context, e store.EconomicEvent) analyst.ReleaseAnalysis
}

// Notifier delivers chat messages at most once per key.
type Notifier interface {
	Notify(ctx context.Context, key, text string) (bool, map[string]error)
	NotifyPhoto(ctx context.Context, key, photoURL, caption string) (bool, map[string]error)
}

// LiveBlog publishes entries to the site's live blog.
type LiveBlog interface {
	Post(ctx context.Context, e liveblog.Entry) error
}

// NewsIngestor pulls and stores fresh articles.
type NewsIngestor interface {
	Ingest(ctx context.Context, opts news.Options) ([]store.Article, error)
}

// CalendarSyncer refreshes the economic calendar.
type CalendarSyncer interface {
	Sync(ctx context.Context) (calendar.SyncResult, error)
}

// Trader executes signals against the broker.
type Trader interface {
	Enabled() bool
	AnalyzeAndTrade(ctx context.Context, symbol string) (trader.Outcome, error)
	ProcessNewsSignal(ctx context.Context, symbol string, side core.SignalType, score float64, reason string) (trader.Outcome, error)
	PlaceStraddle(ctx context.Context, symbol string, p trader.StraddleParams) (*trader.Straddle, error)
	DefaultStraddle() trader.StraddleParams
	StraddleWindow() (min, max time.Duration)
	StraddleEnabled() bool
}

// Monitor reconciles open trades with the terminal.
type Monitor interface {
	Tick(ctx context.Context, symbol string) (monitor.Report, error)
}

// Env is everything a job body may touch. LiveBlog, Archive, Broker and
// Trader may be nil when their component is disabled.
type Env struct {
	Logger    *zap.Logger
	Store     Store
	Broker    broker.Broker
	Market    trader.Market
	Analyst   Analyst
	Notifier  Notifier
	LiveBlog  LiveBlog
	News      NewsIngestor
	Calendar  CalendarSyncer
	Trader    Trader
	Monitor   Monitor
	Archive   archive.Storage
	Formatter notifier.Formatter
	Config    *config.Config
	Now       func() time.Time
}

// Runner binds the job bodies to an Env and keeps the state that must
// survive between ticks.
type Runner struct {
	env Env
	log *zap.Logger

	mu    sync.Mutex
	armed map[string]time.Time // event id -> when its straddle was armed
}

// NewRunner creates a Runner. A nil Config takes config.Defaults().
func NewRunner(env Env) *Runner {
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	if env.Config == nil {
		env.Config = config.Defaults()
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.Formatter.Location == nil {
		env.Formatter = notifier.NewFormatter(config.Location(env.Config.App.DisplayTimezone))
	}
	return &Runner{env: env, log: env.Logger, armed: make(map[string]time.Time)}
}

// Env returns the bound environment.
func (r *Runner) Env() Env { return r.env }

func (r *Runner) symbol() string { return r.env.Config.App.Symbol }

func (r *Runner) now() time.Time { return r.env.Now().UTC() }

func (r *Runner) tradingEnabled() bool {
	return r.env.Trader != nil && r.env.Trader.Enabled()
}

// notify sends text and logs per-channel failures.
func (r *Runner) notify(ctx context.Context, key, text string) bool {
	if r.env.Notifier == nil {
		return false
	}
	sent, errs := r.env.Notifier.Notify(ctx, key, text)
	r.logChannelErrors(key, errs)
	return sent
}

func (r *Runner) logChannelErrors(key string, errs map[string]error) {
	for channel, err := range errs {
		r.log.Warn("notification failed", zap.String("key", key), zap.String("channel", channel), zap.Error(err))
	}
}

// delivered reports whether a notification attempt needs no retry: it was
// sent, or it was suppressed as a duplicate, or there is nowhere to send.
func (r *Runner) delivered(ctx context.Context, key, text string) bool {
	if r.env.Notifier == nil {
		return true
	}
	sent, errs := r.env.Notifier.Notify(ctx, key, text)
	r.logChannelErrors(key, errs)
	return sent || len(errs) == 0
}

func (r *Runner) post(ctx context.Context, title, markdown string) {
	if r.env.LiveBlog == nil {
		return
	}
	if err := r.env.LiveBlog.Post(ctx, liveblog.Entry{Title: title, Markdown: markdown}); err != nil {
		r.log.Warn("live blog post failed", zap.String("title", title), zap.Error(err))
	}
}

// announce confirms a placed order on chat.
func (r *Runner) announce(ctx context.Context, out trader.Outcome) {
	if !out.Placed() {
		return
	}
	r.notify(ctx, fmt.Sprintf("trade:%s", out.Ticket), r.env.Formatter.TradeExecuted(notifier.Execution{
		Mode:   out.Mode,
		Symbol: out.Symbol,
		Type:   string(out.Type),
		Volume: out.Volume,
		Price:  out.Price,
		SL:     out.SL,
		TP:     out.TP,
		Ticket: out.Ticket,
		At:     out.At,
	}))
}
