package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/broker"
	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/store"
)

// cleanupTimeout bounds a deferred straddle cleanup.
const cleanupTimeout = 30 * time.Second

// StraddleParams sizes a straddle in pips.
type StraddleParams struct {
	DistancePips float64
	SLPips       float64
	TPPips       float64
	CleanupAfter time.Duration
}

// DefaultStraddle returns the configured straddle parameters.
func (t *Trader) DefaultStraddle() StraddleParams {
	return StraddleParams{
		DistancePips: t.straddle.DistancePips,
		SLPips:       t.straddle.SLPips,
		TPPips:       t.straddle.TPPips,
		CleanupAfter: t.straddle.CleanupAfter,
	}
}

// StraddleWindow returns how far ahead an event must be for the news
// trap: between lead min and lead max.
func (t *Trader) StraddleWindow() (min, max time.Duration) {
	return t.straddle.LeadMin, t.straddle.LeadMax
}

// StraddleEnabled reports whether the news trap should be armed.
func (t *Trader) StraddleEnabled() bool {
	return t.straddle.Enabled && t.Enabled()
}

// Leg is one pending side of a straddle.
type Leg struct {
	Ticket string
	Type   core.SignalType
	Price  float64
	SL     float64
	TP     float64
}

// Straddle is a placed pair of stop orders.
type Straddle struct {
	Symbol   string
	Price    float64
	Legs     []Leg
	PlacedAt time.Time
}

// PlaceStraddle places a BUY_STOP above and a SELL_STOP below the current
// price and schedules a cleanup that cancels any leg still pending after
// p.CleanupAfter. Every placed leg is stored as a PENDING trade right away
// so the monitor can pick up a fill before the cleanup runs.
func (t *Trader) PlaceStraddle(ctx context.Context, symbol string, p StraddleParams) (*Straddle, error) {
	if !t.Enabled() {
		return nil, core.WrapError(core.ErrBrokerUnavailable, errors.New("trading disabled"))
	}
	pip, err := broker.PipSize(symbol)
	if err != nil {
		return nil, err
	}
	price, err := t.market.CurrentPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("current price: %w", err)
	}

	dist, sl, tp := p.DistancePips*pip, p.SLPips*pip, p.TPPips*pip
	buy := Leg{Type: core.SignalBuyStop, Price: round(price + dist)}
	buy.SL, buy.TP = round(buy.Price-sl), round(buy.Price+tp)
	sell := Leg{Type: core.SignalSellStop, Price: round(price - dist)}
	sell.SL, sell.TP = round(sell.Price+sl), round(sell.Price-tp)

	s := &Straddle{Symbol: symbol, Price: price, PlacedAt: t.now().UTC()}
	var errs []error
	for _, leg := range []Leg{buy, sell} {
		req := broker.OrderRequest{Symbol: symbol, Type: leg.Type, Volume: t.cfg.Volume, SL: leg.SL, TP: leg.TP, Price: leg.Price}
		out := Outcome{Mode: ModeStraddle, Symbol: symbol, Type: leg.Type, Volume: req.Volume, Price: leg.Price, SL: leg.SL, TP: leg.TP, At: s.PlacedAt}

		res, err := t.retryAction(ctx, "straddle", func(ctx context.Context) (*broker.OrderResult, error) {
			return t.broker.PlaceOrder(ctx, req)
		})
		if err != nil {
			t.record(out, "FAIL", rawOf(err))
			errs = append(errs, fmt.Errorf("%s leg: %w", leg.Type, err))
			continue
		}
		out.Ticket = res.Ticket
		t.record(out, "SUCCESS", res.Raw)
		leg.Ticket = res.Ticket
		s.Legs = append(s.Legs, leg)

		if err := t.store.SaveTradeEntry(ctx, store.Trade{
			Ticket:    leg.Ticket,
			Symbol:    symbol,
			OrderType: string(leg.Type),
			Mode:      ModeStraddle,
			Volume:    req.Volume,
			OpenPrice: leg.Price,
			SL:        leg.SL,
			TP:        leg.TP,
			Status:    core.TradePending,
			OpenTime:  s.PlacedAt,
		}); err != nil {
			t.logger.Error("straddle leg not saved", zap.String("ticket", leg.Ticket), zap.Error(err))
		}
	}

	if len(s.Legs) > 0 {
		t.scheduleCleanup(s, p.CleanupAfter)
		t.logger.Info("straddle placed",
			zap.String("symbol", symbol),
			zap.Float64("price", price),
			zap.Int("legs", len(s.Legs)),
			zap.Duration("cleanup_after", p.CleanupAfter))
	}
	return s, errors.Join(errs...)
}

func (t *Trader) scheduleCleanup(s *Straddle, after time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wg.Add(1)
	t.cleanups[s] = t.after(after, func() { t.runCleanup(s) })
}

// runCleanup executes a straddle's cleanup at most once.
func (t *Trader) runCleanup(s *Straddle) {
	t.mu.Lock()
	_, pending := t.cleanups[s]
	delete(t.cleanups, s)
	t.mu.Unlock()
	if !pending {
		return
	}
	defer t.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	t.CleanupStraddle(ctx, s)
}

// CleanupStraddle promotes every leg that is an open position to OPEN and
// cancels the rest, dropping their PENDING rows. A leg that cannot be
// deleted keeps its PENDING row for the monitor to reconcile.
func (t *Trader) CleanupStraddle(ctx context.Context, s *Straddle) {
	open := make(map[string]bool)
	positions, err := t.broker.Positions(ctx, s.Symbol)
	if err != nil {
		t.logger.Warn("straddle cleanup could not list positions, deleting all legs", zap.Error(err))
	}
	for _, p := range positions {
		open[p.Ticket] = true
	}

	for _, leg := range s.Legs {
		if open[leg.Ticket] {
			if _, err := t.store.ActivateTrade(ctx, leg.Ticket); err != nil {
				t.logger.Error("filled straddle leg not activated", zap.String("ticket", leg.Ticket), zap.Error(err))
			}
			continue
		}

		if _, err := t.retryAction(ctx, "delete", func(ctx context.Context) (*broker.OrderResult, error) {
			return t.broker.DeleteOrder(ctx, leg.Ticket)
		}); err != nil {
			t.logger.Warn("straddle leg not deleted, leaving it pending", zap.String("ticket", leg.Ticket), zap.Error(err))
			continue
		}
		if _, err := t.store.DeletePendingTrade(ctx, leg.Ticket); err != nil {
			t.logger.Error("cancelled straddle leg not removed", zap.String("ticket", leg.Ticket), zap.Error(err))
		}
		t.logger.Info("straddle leg cancelled", zap.String("ticket", leg.Ticket), zap.String("type", string(leg.Type)))
	}
}

// Wait runs every cleanup that is still scheduled right away and blocks
// until all cleanups have finished. Call it on shutdown.
func (t *Trader) Wait() {
	t.mu.Lock()
	var due []*Straddle
	for s, stop := range t.cleanups {
		if stop() {
			due = append(due, s)
		}
	}
	t.mu.Unlock()

	for _, s := range due {
		t.runCleanup(s)
	}
	t.wg.Wait()

	if err := t.log.Sync(); err != nil {
		t.logger.Debug("trade log sync failed", zap.Error(err))
	}
}
