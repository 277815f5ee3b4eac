package jobs

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/store"
)

// EconomicWorker syncs the calendar, then sends pre-release alerts for
// events inside the alert window and post-release alerts for events
// whose actual value has landed. A strong release becomes a news signal.
func (r *Runner) EconomicWorker(ctx context.Context) error {
	var errs []error
	if r.env.Calendar != nil {
		res, err := r.env.Calendar.Sync(ctx)
		if err != nil {
			r.log.Warn("calendar sync incomplete", zap.Error(err))
		}
		r.log.Debug("calendar synced",
			zap.Bool("from_cache", res.FromCache),
			zap.Int("scheduled", res.Scheduled),
			zap.Int("actuals_updated", res.ActualsUpdated))
	}

	if err := r.preAlerts(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.postAlerts(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Runner) preAlerts(ctx context.Context) error {
	events, err := r.env.Store.PendingPreAlerts(ctx, r.env.Config.Calendar.PreAlertWindow)
	if err != nil {
		return err
	}
	now := r.now()
	for _, e := range events {
		if !r.delivered(ctx, "event:"+e.ID+":pre", r.env.Formatter.EventPreAlert(e, now)) {
			continue
		}
		r.advance(ctx, e, core.EventPreNotified)
	}
	return nil
}

func (r *Runner) postAlerts(ctx context.Context) error {
	events, err := r.env.Store.PendingPostAlerts(ctx)
	if err != nil {
		return err
	}
	threshold := r.env.Config.Alerts.TradeScore
	for _, e := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		analysis := r.env.Analyst.AnalyzeRelease(ctx, e)
		if !r.delivered(ctx, "event:"+e.ID+":post", r.env.Formatter.EventPostAlert(e, analysis)) {
			continue
		}
		r.advance(ctx, e, core.EventPostNotified)

		if !analysis.Available || math.Abs(analysis.SentimentScore) < threshold || r.env.Trader == nil {
			continue
		}
		side := core.SignalBuy
		if analysis.SentimentScore < 0 {
			side = core.SignalSell
		}
		out, err := r.env.Trader.ProcessNewsSignal(ctx, r.symbol(), side, analysis.SentimentScore, e.Currency+" "+e.Title)
		if err != nil {
			r.log.Warn("release signal failed", zap.String("event", e.ID), zap.Error(err))
			continue
		}
		r.announce(ctx, out)
	}
	return nil
}

func (r *Runner) advance(ctx context.Context, e store.EconomicEvent, status core.EventStatus) {
	if _, err := r.env.Store.UpdateEventStatus(ctx, e.ID, status); err != nil {
		r.log.Error("event status not updated", zap.String("event", e.ID), zap.String("status", string(status)), zap.Error(err))
		return
	}
	r.log.Info("event alert sent", zap.String("event", e.ID), zap.String("status", string(status)))
}
