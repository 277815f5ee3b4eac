package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/trader"
)

// armedRetention is how long an armed event id is remembered.
const armedRetention = 24 * time.Hour

// TradeMonitor reconciles open trades and arms the news trap: a
// High-impact release inside the straddle lead window gets one straddle
// per event id.
func (r *Runner) TradeMonitor(ctx context.Context) error {
	var errs []error
	if r.env.Monitor != nil {
		rep, err := r.env.Monitor.Tick(ctx, r.symbol())
		if err != nil {
			errs = append(errs, err)
		} else if rep.Filled > 0 || rep.Closed > 0 || rep.Untracked > 0 {
			r.log.Info("trades reconciled",
				zap.Int("tracked", rep.Tracked),
				zap.Int("filled", rep.Filled),
				zap.Int("closed", rep.Closed),
				zap.Int("unsettled", rep.Unsettled),
				zap.Int("untracked", rep.Untracked))
		}
	}
	if err := r.newsTrap(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Runner) newsTrap(ctx context.Context) error {
	t := r.env.Trader
	if t == nil || !t.StraddleEnabled() {
		return nil
	}
	now := r.now()
	lo, hi := t.StraddleWindow()
	events, err := r.env.Store.HighImpactBetween(ctx, now.Add(lo), now.Add(hi))
	if err != nil {
		return err
	}

	var errs []error
	for _, e := range events {
		if !r.arm(e.ID, now) {
			continue
		}
		log := r.log.With(zap.String("event", e.ID), zap.Time("release", e.Timestamp))
		log.Info("arming news trap")
		s, err := t.PlaceStraddle(ctx, r.symbol(), t.DefaultStraddle())
		if err != nil {
			log.Warn("straddle incomplete", zap.Error(err))
			errs = append(errs, err)
		}
		if s == nil {
			continue
		}
		for _, leg := range s.Legs {
			r.announce(ctx, trader.Outcome{
				Action: trader.ActionPlaced,
				Mode:   trader.ModeStraddle,
				Symbol: s.Symbol,
				Type:   leg.Type,
				Volume: r.env.Config.Trader.Volume,
				Price:  leg.Price,
				SL:     leg.SL,
				TP:     leg.TP,
				Ticket: leg.Ticket,
				At:     s.PlacedAt,
			})
		}
	}
	return errors.Join(errs...)
}

// arm records id and reports whether it was new. Old ids are pruned.
func (r *Runner) arm(id string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, at := range r.armed {
		if now.Sub(at) > armedRetention {
			delete(r.armed, k)
		}
	}
	if _, done := r.armed[id]; done {
		return false
	}
	r.armed[id] = now
	return true
}
