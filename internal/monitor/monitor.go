// Package monitor reconciles the trade history with the terminal's open
// positions.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/broker"
	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/metrics"
	"github.com/newthinker/aurum/internal/store"
)

// Store is the trade persistence the monitor needs.
type Store interface {
	OpenTrades(ctx context.Context) ([]store.Trade, error)
	PendingTrades(ctx context.Context) ([]store.Trade, error)
	ActivateTrade(ctx context.Context, ticket string) (bool, error)
	UpdateTradeProfit(ctx context.Context, ticket string, profit float64) error
	UpdateTradeExit(ctx context.Context, ticket string, closePrice, profit float64, closeTime time.Time) (bool, error)
	CountOpenTrades(ctx context.Context) (int, error)
}

// Report summarises one tick.
type Report struct {
	Tracked   int // OPEN rows considered
	Filled    int // PENDING rows promoted to OPEN
	Refreshed int // profit updated from a live position
	Closed    int // sealed from history
	Unsettled int // gone from positions, history not CLOSED yet
	Untracked int // live positions with no OPEN row
}

// Monitor runs reconciliation ticks.
type Monitor struct {
	store   Store
	broker  broker.Broker
	logger  *zap.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

// New creates a Monitor.
func New(s Store, b broker.Broker, logger *zap.Logger, m *metrics.Registry) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{store: s, broker: b, logger: logger, metrics: m, now: time.Now}
}

// Tick refreshes floating profit for tickets the terminal still holds and
// seals tickets it no longer holds once their history reports CLOSED. A
// vanished ticket without a CLOSED deal stays OPEN for the next tick.
// PENDING stop orders are promoted to OPEN first when they show up as a
// position or as a CLOSED deal, so a leg that filled and closed between
// ticks is still recorded.
func (m *Monitor) Tick(ctx context.Context, symbol string) (Report, error) {
	var rep Report
	if m.broker == nil {
		return rep, nil
	}

	trades, err := m.store.OpenTrades(ctx)
	if err != nil {
		return rep, err
	}
	positions, err := m.broker.Positions(ctx, symbol)
	if err != nil {
		return rep, fmt.Errorf("positions: %w", err)
	}

	live := make(map[string]broker.Position, len(positions))
	for _, p := range positions {
		live[p.Ticket] = p
	}

	pending, err := m.store.PendingTrades(ctx)
	if err != nil {
		return rep, err
	}
	for _, t := range pending {
		if t.Symbol != "" && t.Symbol != symbol {
			continue
		}
		if m.fill(ctx, t, live) {
			rep.Filled++
			t.Status = core.TradeOpen
			trades = append(trades, t)
		}
	}
	tracked := make(map[string]bool, len(trades))

	for _, t := range trades {
		if t.Symbol != "" && t.Symbol != symbol {
			continue
		}
		rep.Tracked++
		tracked[t.Ticket] = true

		if p, ok := live[t.Ticket]; ok {
			if err := m.store.UpdateTradeProfit(ctx, t.Ticket, p.Profit); err != nil {
				m.logger.Warn("profit update failed", zap.String("ticket", t.Ticket), zap.Error(err))
				continue
			}
			rep.Refreshed++
			continue
		}

		if m.settle(ctx, t) {
			rep.Closed++
		} else {
			rep.Unsettled++
		}
	}

	for ticket := range live {
		if !tracked[ticket] {
			rep.Untracked++
			m.logger.Warn("position not in trade history", zap.String("ticket", ticket), zap.String("symbol", symbol))
		}
	}

	if n, err := m.store.CountOpenTrades(ctx); err == nil {
		m.metrics.SetOpenTrades(n)
	}
	m.logger.Debug("monitor tick",
		zap.Int("tracked", rep.Tracked),
		zap.Int("filled", rep.Filled),
		zap.Int("refreshed", rep.Refreshed),
		zap.Int("closed", rep.Closed),
		zap.Int("unsettled", rep.Unsettled))
	return rep, nil
}

// fill promotes a PENDING trade whose order became a position or already
// closed. A plain pending order has no deal yet, so lookup errors are
// expected and logged at debug.
func (m *Monitor) fill(ctx context.Context, t store.Trade, live map[string]broker.Position) bool {
	if _, ok := live[t.Ticket]; !ok {
		deal, err := m.broker.Deal(ctx, t.Ticket)
		if err != nil || deal.Status != core.TradeClosed {
			m.logger.Debug("pending order not filled", zap.String("ticket", t.Ticket), zap.Error(err))
			return false
		}
	}
	ok, err := m.store.ActivateTrade(ctx, t.Ticket)
	if err != nil {
		m.logger.Error("filled order not activated", zap.String("ticket", t.Ticket), zap.Error(err))
		return false
	}
	if ok {
		m.logger.Info("pending order filled", zap.String("ticket", t.Ticket), zap.String("mode", t.Mode))
	}
	return ok
}

// settle looks t up in history and seals it when the deal is CLOSED.
func (m *Monitor) settle(ctx context.Context, t store.Trade) bool {
	deal, err := m.broker.Deal(ctx, t.Ticket)
	if err != nil {
		m.logger.Warn("history lookup failed, keeping trade open", zap.String("ticket", t.Ticket), zap.Error(err))
		return false
	}
	if deal.Status != core.TradeClosed {
		m.logger.Debug("ticket absent but not closed", zap.String("ticket", t.Ticket))
		return false
	}

	closeTime := deal.CloseTime
	if closeTime.IsZero() {
		closeTime = m.now().UTC()
	}
	sealed, err := m.store.UpdateTradeExit(ctx, t.Ticket, deal.ClosePrice, deal.Profit, closeTime)
	if err != nil {
		m.logger.Error("trade exit not saved", zap.String("ticket", t.Ticket), zap.Error(err))
		return false
	}
	if sealed {
		m.logger.Info("trade closed",
			zap.String("ticket", t.Ticket),
			zap.String("mode", t.Mode),
			zap.Float64("close_price", deal.ClosePrice),
			zap.Float64("profit", deal.Profit))
	}
	return sealed
}
