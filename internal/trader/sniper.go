package trader

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/broker"
	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/store"
)

// ProcessNewsSignal stores a NEWS signal for side and, when trading is
// enabled, fires a sniper order with SL/TP in points. A score at or above
// the flatten threshold first closes every open position on symbol. The
// sniper is a single attempt; when it fails the signal stays unprocessed
// for the fast track.
func (t *Trader) ProcessNewsSignal(ctx context.Context, symbol string, side core.SignalType, score float64, reason string) (Outcome, error) {
	out := Outcome{Symbol: symbol, Mode: ModeNewsSniper, At: t.now().UTC()}
	side = side.Side()
	if side != core.SignalBuy && side != core.SignalSell {
		return out, fmt.Errorf("news signal needs a direction, got %q", side)
	}
	out.Type = side

	id, err := t.store.SaveSignal(ctx, store.TradeSignal{
		Symbol: symbol,
		Type:   side,
		Source: core.SourceNews,
		Score:  math.Abs(score),
		Reason: reason,
	})
	if err != nil {
		return out, err
	}
	out.SignalID = id
	out.Action = ActionSignalSaved
	t.logger.Info("news signal saved",
		zap.Int64("signal_id", id),
		zap.String("type", string(side)),
		zap.Float64("score", score))

	if !t.Enabled() {
		return out, nil
	}

	if math.Abs(score) >= t.cfg.FlattenScore {
		if left, err := t.Flatten(ctx, symbol); err != nil {
			t.logger.Warn("flatten before sniper incomplete", zap.Int("left_open", left), zap.Error(err))
		}
	}

	req := broker.PointsOrderRequest{
		Symbol:   symbol,
		Type:     side,
		Volume:   t.cfg.Volume,
		SLPoints: t.cfg.SniperSLPoints,
		TPPoints: t.cfg.SniperTPPoints,
	}
	out.Volume = req.Volume
	if held, ok := t.riskGate(ctx, out); !ok {
		return held, nil
	}
	res, err := t.broker.PlacePointsOrder(ctx, req)
	if err != nil {
		out.Action = ActionFailed
		out.Message = err.Error()
		t.record(out, "FAIL", rawOf(err))
		t.logger.Warn("sniper order failed, leaving signal for the fast track",
			zap.Int64("signal_id", id), zap.Error(err))
		return out, nil
	}

	out.Action = ActionPlaced
	out.Ticket = res.Ticket
	t.record(out, "SUCCESS", res.Raw)
	t.logger.Info("sniper order placed",
		zap.String("ticket", res.Ticket),
		zap.String("type", string(side)),
		zap.Int("sl_points", req.SLPoints),
		zap.Int("tp_points", req.TPPoints))

	if err := t.store.SaveTradeEntry(ctx, store.Trade{
		Ticket:    res.Ticket,
		SignalID:  id,
		Symbol:    symbol,
		OrderType: string(side),
		Mode:      ModeNewsSniper,
		Volume:    req.Volume,
		Status:    core.TradeOpen,
		OpenTime:  out.At,
	}); err != nil {
		t.logger.Error("trade entry not saved", zap.String("ticket", res.Ticket), zap.Error(err))
	}
	if _, err := t.store.MarkSignalProcessed(ctx, id); err != nil {
		return out, err
	}
	return out, nil
}

// Flatten closes every open position on symbol, re-checking up to
// FlattenRounds times. It returns how many positions are still open.
func (t *Trader) Flatten(ctx context.Context, symbol string) (int, error) {
	if t.broker == nil {
		return 0, nil
	}
	var open []broker.Position
	for round := 1; round <= t.cfg.FlattenRounds; round++ {
		var err error
		open, err = t.broker.Positions(ctx, symbol)
		if err != nil {
			return 0, fmt.Errorf("positions: %w", err)
		}
		if len(open) == 0 {
			return 0, nil
		}

		for _, p := range open {
			res, err := t.retryAction(ctx, "close", func(ctx context.Context) (*broker.OrderResult, error) {
				return t.broker.ClosePosition(ctx, p.Ticket)
			})
			out := Outcome{Mode: ModeFlatten, Symbol: symbol, Type: p.Type, Volume: p.Volume, Ticket: p.Ticket, At: t.now().UTC()}
			if err != nil {
				if ctx.Err() != nil {
					return len(open), ctx.Err()
				}
				t.record(out, "FAIL", rawOf(err))
				t.logger.Warn("close failed", zap.String("ticket", p.Ticket), zap.Int("round", round), zap.Error(err))
				continue
			}
			t.record(out, "SUCCESS", res.Raw)
		}
	}

	open, err := t.broker.Positions(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("positions: %w", err)
	}
	if len(open) > 0 {
		t.logger.Warn("positions survived flatten",
			zap.String("symbol", symbol),
			zap.Int("left_open", len(open)),
			zap.Int("rounds", t.cfg.FlattenRounds))
		return len(open), fmt.Errorf("%d positions still open after %d rounds", len(open), t.cfg.FlattenRounds)
	}
	return 0, nil
}
