// Package app wires the pipeline components from configuration and runs
// the scheduler and the ops API.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/analyst"
	"github.com/newthinker/aurum/internal/api"
	"github.com/newthinker/aurum/internal/broker"
	"github.com/newthinker/aurum/internal/broker/mock"
	"github.com/newthinker/aurum/internal/calendar"
	"github.com/newthinker/aurum/internal/collector"
	"github.com/newthinker/aurum/internal/collector/polygon"
	"github.com/newthinker/aurum/internal/collector/terminal"
	"github.com/newthinker/aurum/internal/collector/yahoo"
	"github.com/newthinker/aurum/internal/config"
	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/fetch"
	"github.com/newthinker/aurum/internal/jobs"
	"github.com/newthinker/aurum/internal/llm/factory"
	"github.com/newthinker/aurum/internal/metrics"
	"github.com/newthinker/aurum/internal/monitor"
	"github.com/newthinker/aurum/internal/news"
	"github.com/newthinker/aurum/internal/notifier"
	"github.com/newthinker/aurum/internal/notifier/liveblog"
	"github.com/newthinker/aurum/internal/notifier/telegram"
	"github.com/newthinker/aurum/internal/scheduler"
	"github.com/newthinker/aurum/internal/storage/archive"
	"github.com/newthinker/aurum/internal/store"
	"github.com/newthinker/aurum/internal/tracing"
	"github.com/newthinker/aurum/internal/trader"
)

// MockPrice is the quote the in-process terminal starts from.
const MockPrice = 2650.0

// App is the main application orchestrator.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	version string

	db       *store.DB
	archive  archive.Storage
	broker   broker.Broker
	metrics  *metrics.Registry
	tracer   *sdktrace.TracerProvider
	closers  []io.Closer
	trader   *trader.Trader
	sched    *scheduler.Scheduler
	runner   *jobs.Runner
	server   *api.Server
	channels int

	mu      sync.Mutex
	running bool
	closed  bool
}

// Option configures New.
type Option func(*options)

type options struct {
	version string
	now     func() time.Time
	archive archive.Storage
	broker  broker.Broker
	client  *http.Client
}

// WithVersion sets the version reported by the API and traces.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithClock overrides the clock used by the store, jobs and scheduler.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithArchive replaces the configured archive backend.
func WithArchive(s archive.Storage) Option {
	return func(o *options) { o.archive = s }
}

// WithBroker replaces the configured terminal.
func WithBroker(b broker.Broker) Option {
	return func(o *options) { o.broker = b }
}

// WithHTTPClient sets the client used by outbound notifiers and market
// data sources.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// New builds every component from cfg. Components without credentials
// disable themselves and log why; only the store and archive are fatal.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{version: "dev", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger, version: o.version}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	// Metrics
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry()
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: 30 * time.Second, Transport: metrics.Transport(a.metrics, nil)}
	}

	// Tracing
	tp, tracer, err := tracing.Init(context.Background(), cfg.Tracing, o.version)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		a.tracer = tp
	}

	// Persistence
	db, err := store.Open(cfg.Database.Path, logger, store.WithClock(o.now))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.db = db

	a.archive = o.archive
	if a.archive == nil {
		if a.archive, err = archive.New(cfg.Archive); err != nil {
			return nil, fmt.Errorf("opening archive: %w", err)
		}
	}

	// Terminal
	a.broker = o.broker
	if a.broker == nil {
		a.broker = NewBroker(cfg.Broker, logger)
	}
	if a.broker == nil {
		logger.Info("broker disabled, trading and monitoring are off")
	}

	// AI
	provider, err := factory.New(cfg.AI, logger, a.metrics)
	if err != nil {
		logger.Warn("ai analysis disabled", zap.String("provider", cfg.AI.Provider), zap.Error(err))
	}
	an := analyst.New(provider, logger.Named("analyst"))

	// Outbound channels
	notifiers := a.notifiers(cfg, o.client)
	blog := newLiveBlog(cfg.LiveBlog, o.client, logger)

	// Ingestion
	fetcher := fetch.New(logger)
	ingestor := news.New(fetcher, db, cfg.News, logger, news.WithMetrics(a.metrics), news.WithClock(o.now))
	cal := calendar.New(fetcher, db, a.archive, cfg.Calendar, logger, calendar.WithClock(o.now))

	// Trading
	market := newMarket(cfg, a.broker, o.client, logger)
	a.trader = trader.New(db, a.broker, market, cfg.Trader, logger,
		trader.WithStraddle(cfg.Straddle),
		trader.WithMetrics(a.metrics),
		trader.WithClock(o.now),
	)
	mon := monitor.New(db, a.broker, logger, a.metrics)

	env := jobs.Env{
		Logger:    logger,
		Store:     db,
		Broker:    a.broker,
		Market:    market,
		Analyst:   an,
		Notifier:  notifiers,
		News:      ingestor,
		Calendar:  cal,
		Trader:    a.trader,
		Monitor:   mon,
		Archive:   a.archive,
		Formatter: notifier.NewFormatter(config.Location(cfg.App.DisplayTimezone)),
		Config:    cfg,
		Now:       o.now,
	}
	if blog != nil {
		env.LiveBlog = blog
	}
	a.runner = jobs.NewRunner(env)

	// Scheduling
	schedOpts := []scheduler.Option{
		scheduler.WithClock(o.now),
		scheduler.WithLocation(config.Location(cfg.App.Timezone)),
		scheduler.WithMetrics(a.metrics),
	}
	if tracer != nil {
		schedOpts = append(schedOpts, scheduler.WithTracer(tracer))
	}
	a.sched = scheduler.New(logger, schedOpts...)
	if err := jobs.Register(a.sched, a.runner, cfg.Schedule); err != nil {
		return nil, fmt.Errorf("registering jobs: %w", err)
	}
	if err := jobs.RegisterHealth(a.sched, a.runner, cfg.Health); err != nil {
		return nil, fmt.Errorf("registering health check: %w", err)
	}

	// Ops API
	if cfg.Server.Enabled {
		a.server, err = api.NewServer(api.Config{
			Host:        cfg.Server.Host,
			Port:        cfg.Server.Port,
			APIKey:      cfg.Server.APIKey,
			MetricsPath: cfg.Metrics.Path,
		}, api.Dependencies{
			Store:     db,
			Scheduler: a.sched,
			Metrics:   a.metrics,
			Symbol:    cfg.App.Symbol,
			SignalTTL: cfg.Trader.SignalTTL,
			Version:   o.version,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating server: %w", err)
		}
	}

	logger.Info("aurum wired",
		zap.String("symbol", cfg.App.Symbol),
		zap.Bool("ai", an.Enabled()),
		zap.Bool("broker", a.broker != nil),
		zap.Bool("trading", a.trader.Enabled()),
		zap.Int("channels", a.channels),
		zap.Bool("liveblog", blog != nil),
		zap.Bool("server", a.server != nil),
	)
	ok = true
	return a, nil
}

// NewBroker returns the configured terminal client, or nil when the
// broker is disabled.
func NewBroker(cfg config.BrokerConfig, logger *zap.Logger) broker.Broker {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Provider == "mock" {
		logger.Warn("using in-process mock terminal", zap.Float64("price", MockPrice))
		return mock.New(MockPrice).Broker()
	}
	return broker.NewBridgeClient(broker.BridgeConfigFrom(cfg), logger)
}

// notifiers registers every chat channel that has credentials.
func (a *App) notifiers(cfg *config.Config, client *http.Client) *notifier.Registry {
	var d notifier.Deduper = notifier.NewMemoryDeduper()
	if cfg.Dedupe.Backend == "redis" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rc, err := notifier.DialRedis(ctx, cfg.Dedupe.RedisURL)
		cancel()
		if err != nil {
			a.logger.Warn("redis dedupe unavailable, using memory", zap.Error(err))
		} else {
			a.closers = append(a.closers, rc)
			d = notifier.NewRedisDeduper(rc, "")
		}
	}

	reg := notifier.NewRegistry(
		notifier.WithDeduper(d, cfg.Dedupe.TTL),
		notifier.WithMetrics(a.metrics),
		notifier.WithLogger(a.logger),
	)

	if cfg.Telegram.Enabled {
		tg, err := telegram.New(telegram.Config{
			BotToken:      cfg.Telegram.BotToken,
			ChatID:        cfg.Telegram.ChatID,
			APIURL:        cfg.Telegram.APIURL,
			RatePerMinute: cfg.Telegram.RatePerMinute,
			Client:        client,
		})
		if err != nil {
			a.logger.Warn("telegram disabled", zap.Error(err))
		} else if err := reg.Register(tg); err != nil {
			a.logger.Warn("registering telegram", zap.Error(err))
		}
	}
	a.channels = reg.Len()
	return reg
}

func newLiveBlog(cfg config.LiveBlogConfig, client *http.Client, logger *zap.Logger) *liveblog.Poster {
	if !cfg.Enabled {
		return nil
	}
	p, err := liveblog.New(liveblog.Config{
		URL:         cfg.URL,
		User:        cfg.User,
		AppPassword: cfg.AppPassword,
		ParentID:    cfg.LiveBlogID,
		Status:      cfg.Status,
		Client:      client,
	})
	if err != nil {
		logger.Warn("liveblog disabled", zap.Error(err))
		return nil
	}
	return p
}

// newMarket chains the configured candle sources in priority order.
func newMarket(cfg *config.Config, b broker.Broker, client *http.Client, logger *zap.Logger) *collector.Chain {
	symbol := cfg.App.Symbol
	chain := collector.NewChain(logger)
	for _, name := range cfg.MarketData.Providers {
		switch name {
		case "terminal":
			if b == nil {
				continue
			}
			chain.Register(terminal.New(b))
		case "yahoo":
			opts := []yahoo.Option{yahoo.WithHTTPClient(client)}
			if cfg.MarketData.YahooSymbol != "" {
				opts = append(opts, yahoo.WithSymbol(symbol, cfg.MarketData.YahooSymbol))
			}
			chain.Register(yahoo.New(opts...))
		case "polygon":
			pc := cfg.MarketData.Polygon
			var opts []polygon.Option
			if pc.Ticker != "" {
				opts = append(opts, polygon.WithTicker(symbol, pc.Ticker))
			}
			p, err := polygon.NewFromKey(pc.APIKey, pc.RateLimitPerMinute, opts...)
			if err != nil {
				logger.Debug("polygon source skipped", zap.Error(err))
				continue
			}
			chain.Register(p)
		default:
			logger.Warn("unknown market data provider", zap.String("provider", name))
		}
	}
	return chain
}

// Env exposes the job environment, mainly for one-shot commands.
func (a *App) Env() jobs.Env { return a.runner.Env() }

// Scheduler returns the job scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Start runs the scheduler and the ops API until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}
	if a.closed {
		a.mu.Unlock()
		return fmt.Errorf("app closed")
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			a.logger.Info("ops api listening",
				zap.String("host", a.cfg.Server.Host),
				zap.Int("port", a.cfg.Server.Port),
			)
			if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	a.logger.Info("aurum starting", zap.Int("jobs", len(a.sched.Snapshot())))

	schedCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		a.sched.Start(schedCtx)
		close(done)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serverErr:
		a.logger.Error("ops api failed", zap.Error(err))
	}
	cancel()
	<-done

	if a.server != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		if serr := a.server.Shutdown(shutdownCtx); serr != nil {
			a.logger.Warn("ops api shutdown", zap.Error(serr))
		}
	}
	a.logger.Info("aurum stopped")
	return err
}

// RunOnce runs one news scan and one report, then returns.
func (a *App) RunOnce(ctx context.Context, opts jobs.ReportOptions) error {
	return a.runner.RunOnce(ctx, opts)
}

// Close waits for scheduled straddle cleanups, flushes traces and closes
// the store. It is safe to call more than once.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	var errs []error
	if a.sched != nil {
		a.sched.Wait()
	}
	if a.trader != nil {
		a.trader.Wait()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
		cancel()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, core.WrapError(core.ErrStoreFailed, err))
		}
	}
	return errors.Join(errs...)
}
