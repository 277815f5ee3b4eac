// Package trader turns stored signals into broker orders: the news fast
// track, the report path with its news blackout and volume gates, the
// news sniper and the pre-release straddle.
package trader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/broker"
	"github.com/newthinker/aurum/internal/config"
	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/fetch"
	"github.com/newthinker/aurum/internal/indicator"
	"github.com/newthinker/aurum/internal/metrics"
	"github.com/newthinker/aurum/internal/store"
)

// Execution modes written to the trade log and the trade history.
const (
	ModeNewsFast   = "NEWS_FAST"
	ModeReport     = "AI_REPORT"
	ModeNewsSniper = "NEWS_SNIPER"
	ModeStraddle   = "STRADDLE"
	ModeFlatten    = "FLATTEN"
)

// Action is what AnalyzeAndTrade or ProcessNewsSignal ended up doing.
type Action string

const (
	ActionDisabled    Action = "DISABLED"
	ActionNoSignal    Action = "NO_SIGNAL"
	ActionProcessed   Action = "ALREADY_PROCESSED"
	ActionWaitSignal  Action = "WAIT_SIGNAL"
	ActionWaitNews    Action = "WAIT_NEWS_EVENT"
	ActionLowVolume   Action = "LOW_VOLUME"
	ActionPlaced      Action = "PLACED"
	ActionFailed      Action = "FAILED"
	ActionSignalSaved Action = "SIGNAL_SAVED"
	ActionRiskLimit   Action = "RISK_LIMIT"
)

// Outcome describes one trading decision.
type Outcome struct {
	Action   Action
	Mode     string
	SignalID int64
	Symbol   string
	Type     core.SignalType
	Volume   float64
	Price    float64
	SL       float64
	TP       float64
	Ticket   string
	Message  string
	At       time.Time
}

// Placed reports whether an order was confirmed.
func (o Outcome) Placed() bool { return o.Action == ActionPlaced }

// Store is the persistence the trader needs.
type Store interface {
	SaveSignal(ctx context.Context, s store.TradeSignal) (int64, error)
	LatestValidSignal(ctx context.Context, symbol string, ttl time.Duration) (*store.TradeSignal, error)
	MarkSignalProcessed(ctx context.Context, id int64) (bool, error)
	SaveTradeEntry(ctx context.Context, t store.Trade) error
	ActivateTrade(ctx context.Context, ticket string) (bool, error)
	DeletePendingTrade(ctx context.Context, ticket string) (bool, error)
	UpcomingHighImpact(ctx context.Context, within time.Duration) (string, bool, error)
	RecentHighImpact(ctx context.Context, within time.Duration) (string, bool, error)
}

// Market supplies prices and bars.
type Market interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]core.OHLCV, error)
}

// AfterFunc schedules f after d and returns a stop function with the
// semantics of time.Timer.Stop.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

// Trader executes signals against a broker.
type Trader struct {
	store    Store
	broker   broker.Broker
	market   Market
	cfg      config.TraderConfig
	straddle config.StraddleConfig
	log      *ExecLog
	risk     *broker.RiskChecker
	logger   *zap.Logger
	metrics  *metrics.Registry
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	after    AfterFunc

	mu       sync.Mutex
	cleanups map[*Straddle]func() bool
	wg       sync.WaitGroup
}

// Option configures a Trader.
type Option func(*Trader)

// WithClock injects the clock.
func WithClock(now func() time.Time) Option {
	return func(t *Trader) { t.now = now }
}

// WithSleep replaces the retry delay sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Trader) { t.sleep = sleep }
}

// WithAfterFunc replaces time.AfterFunc for straddle cleanups.
func WithAfterFunc(f AfterFunc) Option {
	return func(t *Trader) { t.after = f }
}

// WithExecLog sets the execution log. The default appends to cfg.LogPath.
func WithExecLog(l *ExecLog) Option {
	return func(t *Trader) { t.log = l }
}

// WithMetrics counts orders.
func WithMetrics(m *metrics.Registry) Option {
	return func(t *Trader) { t.metrics = m }
}

// WithStraddle sets the news-trap parameters.
func WithStraddle(cfg config.StraddleConfig) Option {
	return func(t *Trader) { t.straddle = cfg }
}

// New creates a Trader. Zero config values take the package defaults,
// except Enabled.
func New(s Store, b broker.Broker, m Market, cfg config.TraderConfig, logger *zap.Logger, opts ...Option) *Trader {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := config.Defaults()
	fillDefaults(&cfg, d.Trader)

	t := &Trader{
		store:    s,
		broker:   b,
		market:   m,
		cfg:      cfg,
		straddle: d.Straddle,
		logger:   logger,
		now:      time.Now,
		sleep:    fetch.Sleep,
		after: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		cleanups: make(map[*Straddle]func() bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = NewExecLog(cfg.LogPath)
	}
	if rc := riskConfig(cfg); rc.Enabled() && b != nil {
		t.risk = broker.NewRiskChecker(rc, b)
	}
	return t
}

func riskConfig(cfg config.TraderConfig) broker.RiskConfig {
	return broker.RiskConfig{
		MaxOpenPositions: cfg.MaxOpenPositions,
		MaxFloatingLoss:  cfg.MaxFloatingLoss,
		MaxVolume:        cfg.MaxVolume,
	}
}

func fillDefaults(cfg *config.TraderConfig, d config.TraderConfig) {
	if cfg.Volume <= 0 {
		cfg.Volume = d.Volume
	}
	if cfg.SignalTTL <= 0 {
		cfg.SignalTTL = d.SignalTTL
	}
	if cfg.NewsSL <= 0 {
		cfg.NewsSL = d.NewsSL
	}
	if cfg.NewsTP <= 0 {
		cfg.NewsTP = d.NewsTP
	}
	if cfg.ReportSL <= 0 {
		cfg.ReportSL = d.ReportSL
	}
	if cfg.ReportTP <= 0 {
		cfg.ReportTP = d.ReportTP
	}
	if cfg.SniperSLPoints <= 0 {
		cfg.SniperSLPoints = d.SniperSLPoints
	}
	if cfg.SniperTPPoints <= 0 {
		cfg.SniperTPPoints = d.SniperTPPoints
	}
	if cfg.FlattenScore <= 0 {
		cfg.FlattenScore = d.FlattenScore
	}
	if cfg.BlackoutBefore <= 0 {
		cfg.BlackoutBefore = d.BlackoutBefore
	}
	if cfg.BlackoutAfter <= 0 {
		cfg.BlackoutAfter = d.BlackoutAfter
	}
	if cfg.VolumeTimeframe == "" {
		cfg.VolumeTimeframe = d.VolumeTimeframe
	}
	if cfg.VolumePeriod <= 0 {
		cfg.VolumePeriod = d.VolumePeriod
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = d.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = d.RetryDelay
	}
	if cfg.FlattenRounds <= 0 {
		cfg.FlattenRounds = d.FlattenRounds
	}
}

// Enabled reports whether orders may be sent.
func (t *Trader) Enabled() bool { return t.cfg.Enabled && t.broker != nil }

// AnalyzeAndTrade acts on the signal the store ranks first for symbol.
// Gated or failed signals stay unprocessed so a later tick within the TTL
// can take them.
func (t *Trader) AnalyzeAndTrade(ctx context.Context, symbol string) (Outcome, error) {
	out := Outcome{Symbol: symbol, At: t.now().UTC()}
	if !t.Enabled() {
		out.Action = ActionDisabled
		return out, nil
	}

	sig, err := t.store.LatestValidSignal(ctx, symbol, t.cfg.SignalTTL)
	if err != nil {
		return out, err
	}
	if sig == nil {
		out.Action = ActionNoSignal
		return out, nil
	}
	out.SignalID = sig.ID
	out.Type = sig.Type
	if sig.Processed {
		out.Action = ActionProcessed
		return out, nil
	}

	if !sig.Type.IsActionable() {
		if _, err := t.store.MarkSignalProcessed(ctx, sig.ID); err != nil {
			return out, err
		}
		out.Action = ActionWaitSignal
		return out, nil
	}

	if sig.Source == core.SourceNews {
		return t.newsFastTrack(ctx, sig, out)
	}
	return t.reportTrade(ctx, sig, out)
}

// newsFastTrack places a market order with fixed-distance SL/TP around
// the current price.
func (t *Trader) newsFastTrack(ctx context.Context, sig *store.TradeSignal, out Outcome) (Outcome, error) {
	out.Mode = ModeNewsFast
	price, err := t.market.CurrentPrice(ctx, sig.Symbol)
	if err != nil {
		return out, fmt.Errorf("current price: %w", err)
	}

	side := sig.Type.Side()
	sl, tp := levels(side, price, t.cfg.NewsSL, t.cfg.NewsTP)
	req := broker.OrderRequest{Symbol: sig.Symbol, Type: side, Volume: t.cfg.Volume, SL: sl, TP: tp}
	return t.execute(ctx, sig, req, price, out)
}

// reportTrade applies the news blackout and the volume gate before
// placing the report's order.
func (t *Trader) reportTrade(ctx context.Context, sig *store.TradeSignal, out Outcome) (Outcome, error) {
	out.Mode = ModeReport

	if title, ok, err := t.blackout(ctx); err != nil {
		return out, err
	} else if ok {
		out.Action = ActionWaitNews
		out.Message = title
		t.logGate(out, "WAIT_NEWS_EVENT: "+title)
		t.logger.Info("report signal held for high-impact news",
			zap.Int64("signal_id", sig.ID), zap.String("event", title))
		return out, nil
	}

	bars, err := t.market.FetchCandles(ctx, sig.Symbol, t.cfg.VolumeTimeframe, t.cfg.VolumePeriod+2)
	if err != nil {
		return out, fmt.Errorf("volume candles: %w", err)
	}
	if !indicator.VolumeConfirmed(core.Volumes(bars), t.cfg.VolumePeriod) {
		out.Action = ActionLowVolume
		t.logGate(out, "LOW_VOLUME")
		t.logger.Info("report signal held for low volume", zap.Int64("signal_id", sig.ID))
		return out, nil
	}

	price, err := t.market.CurrentPrice(ctx, sig.Symbol)
	if err != nil {
		return out, fmt.Errorf("current price: %w", err)
	}

	req := broker.OrderRequest{Symbol: sig.Symbol, Type: sig.Type, Volume: t.cfg.Volume, SL: sig.StopLoss, TP: sig.TakeProfit}
	if sig.Type.IsPending() {
		if sig.EntryPrice > 0 {
			req.Price = sig.EntryPrice
			price = sig.EntryPrice
		} else {
			req.Type = sig.Type.Side()
		}
	}
	if req.SL <= 0 || req.TP <= 0 {
		req.SL, req.TP = levels(req.Type.Side(), price, t.cfg.ReportSL, t.cfg.ReportTP)
	}
	return t.execute(ctx, sig, req, price, out)
}

// blackout reports a High-impact event just ahead or just behind.
func (t *Trader) blackout(ctx context.Context) (string, bool, error) {
	if title, ok, err := t.store.UpcomingHighImpact(ctx, t.cfg.BlackoutBefore); err != nil || ok {
		return title, ok, err
	}
	return t.store.RecentHighImpact(ctx, t.cfg.BlackoutAfter)
}

// levels returns SL and TP at fixed price distances from price.
func levels(side core.SignalType, price, slDist, tpDist float64) (sl, tp float64) {
	if side == core.SignalSell {
		return round(price + slDist), round(price - tpDist)
	}
	return round(price - slDist), round(price + tpDist)
}

func round(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

// execute places req through the retry wrapper, records the result and
// marks the signal processed on success.
func (t *Trader) execute(ctx context.Context, sig *store.TradeSignal, req broker.OrderRequest, price float64, out Outcome) (Outcome, error) {
	out.Type, out.Volume, out.Price, out.SL, out.TP = req.Type, req.Volume, price, req.SL, req.TP
	if held, ok := t.riskGate(ctx, out); !ok {
		return held, nil
	}

	res, err := t.retryAction(ctx, "order", func(ctx context.Context) (*broker.OrderResult, error) {
		return t.broker.PlaceOrder(ctx, req)
	})
	if err != nil {
		out.Action = ActionFailed
		out.Message = err.Error()
		t.record(out, "FAIL", rawOf(err))
		t.logger.Error("order failed",
			zap.String("mode", out.Mode),
			zap.Int64("signal_id", sig.ID),
			zap.Error(err))
		return out, err
	}

	out.Action = ActionPlaced
	out.Ticket = res.Ticket
	t.record(out, "SUCCESS", res.Raw)
	t.logger.Info("order placed",
		zap.String("mode", out.Mode),
		zap.String("symbol", req.Symbol),
		zap.String("type", string(req.Type)),
		zap.String("ticket", res.Ticket),
		zap.Float64("sl", req.SL),
		zap.Float64("tp", req.TP))

	if err := t.store.SaveTradeEntry(ctx, store.Trade{
		Ticket:    res.Ticket,
		SignalID:  sig.ID,
		Symbol:    req.Symbol,
		OrderType: string(req.Type),
		Mode:      out.Mode,
		Volume:    req.Volume,
		OpenPrice: price,
		SL:        req.SL,
		TP:        req.TP,
		Status:    core.TradeOpen,
		OpenTime:  out.At,
	}); err != nil {
		t.logger.Error("trade entry not saved", zap.String("ticket", res.Ticket), zap.Error(err))
	}
	if _, err := t.store.MarkSignalProcessed(ctx, sig.ID); err != nil {
		return out, err
	}
	return out, nil
}

// riskGate holds the order when an exposure cap is hit. The signal stays
// unprocessed.
func (t *Trader) riskGate(ctx context.Context, out Outcome) (Outcome, bool) {
	if t.risk == nil {
		return out, true
	}
	res := t.risk.Check(ctx, out.Symbol, out.Volume)
	if res.Allowed {
		return out, true
	}
	out.Action = ActionRiskLimit
	out.Message = res.Reason
	t.logGate(out, "RISK_LIMIT: "+res.Reason)
	t.logger.Warn("order held by risk limit",
		zap.String("mode", out.Mode),
		zap.Int64("signal_id", out.SignalID),
		zap.String("reason", res.Reason))
	return out, false
}

// record writes the trade log line and counts the order.
func (t *Trader) record(out Outcome, result, raw string) {
	t.metrics.RecordOrder(out.Mode, result)
	if err := t.log.Record(Entry{
		Time:   out.At,
		Mode:   out.Mode,
		Symbol: out.Symbol,
		Type:   out.Type,
		Volume: out.Volume,
		Price:  out.Price,
		SL:     out.SL,
		TP:     out.TP,
		Result: result,
		Ticket: out.Ticket,
		Raw:    raw,
	}); err != nil {
		t.logger.Warn("trade log write failed", zap.Error(err))
	}
}

// logGate records a held signal without counting an order.
func (t *Trader) logGate(out Outcome, raw string) {
	if err := t.log.Record(Entry{
		Time:   out.At,
		Mode:   out.Mode,
		Symbol: out.Symbol,
		Type:   out.Type,
		Result: string(out.Action),
		Raw:    raw,
	}); err != nil {
		t.logger.Warn("trade log write failed", zap.Error(err))
	}
}

// rawOf extracts the terminal's verbatim answer from an order error.
func rawOf(err error) string {
	var rej *broker.RejectError
	if errors.As(err, &rej) {
		return rej.Raw
	}
	return err.Error()
}
