package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/alert"
	"github.com/newthinker/aurum/internal/config"
	"github.com/newthinker/aurum/internal/scheduler"
)

// JobHealth is the ops watchdog job.
const JobHealth = "health_check"

// brokerProbeTimeout bounds the reachability probe.
const brokerProbeTimeout = 10 * time.Second

// HealthCheck samples the pipeline and feeds the alert rules.
type HealthCheck struct {
	runner   *Runner
	snapshot func() []scheduler.JobState
	eval     *alert.Evaluator
	rules    []alert.Rule
}

// NewHealthCheck compiles cfg.Rules and binds them to the runner's
// notifier. snapshot supplies the job states.
func NewHealthCheck(r *Runner, snapshot func() []scheduler.JobState, cfg config.HealthConfig) (*HealthCheck, error) {
	rules, err := alert.RulesFrom(cfg.Rules)
	if err != nil {
		return nil, err
	}
	opts := []alert.Option{alert.WithLogger(r.log), alert.WithClock(r.now)}
	if cfg.Cooldown > 0 {
		opts = append(opts, alert.WithCooldown(cfg.Cooldown))
	}
	return &HealthCheck{
		runner:   r,
		snapshot: snapshot,
		eval:     alert.NewEvaluator(r.env.Notifier, opts...),
		rules:    rules,
	}, nil
}

// Sample returns the current health metrics:
//
//	<job>_streak   consecutive failed runs of a job
//	<job>_running  1 while a run is in flight
//	broker_up      1 when the terminal answers CHECK (absent without a broker)
//	open_trades    trades the ledger still holds open
func (h *HealthCheck) Sample(ctx context.Context) map[string]float64 {
	m := make(map[string]float64)
	if h.snapshot != nil {
		for _, st := range h.snapshot() {
			m[st.Name+"_streak"] = float64(st.Streak)
			m[st.Name+"_running"] = boolMetric(st.Running)
		}
	}

	env := h.runner.env
	if env.Broker != nil {
		pctx, cancel := context.WithTimeout(ctx, brokerProbeTimeout)
		_, err := env.Broker.Positions(pctx, h.runner.symbol())
		cancel()
		if err != nil {
			h.runner.log.Debug("broker probe failed", zap.Error(err))
		}
		m["broker_up"] = boolMetric(err == nil)
	}

	if trades, err := env.Store.OpenTrades(ctx); err == nil {
		m["open_trades"] = float64(len(trades))
	} else {
		h.runner.log.Warn("health: open trades unavailable", zap.Error(err))
	}
	return m
}

// Run samples once and evaluates every rule.
func (h *HealthCheck) Run(ctx context.Context) error {
	metrics := h.Sample(ctx)
	if fired := h.eval.EvaluateAll(ctx, h.rules, metrics); len(fired) > 0 {
		h.runner.log.Info("health rules fired", zap.Strings("rules", fired))
	}
	return nil
}

// RegisterHealth adds the watchdog job to s when cfg enables it.
func RegisterHealth(s *scheduler.Scheduler, r *Runner, cfg config.HealthConfig) error {
	if !cfg.Enabled {
		return nil
	}
	h, err := NewHealthCheck(r, s.Snapshot, cfg)
	if err != nil {
		return err
	}
	return s.Add(scheduler.Job{
		Name:     JobHealth,
		Schedule: scheduler.Every(cfg.Interval),
		Run:      h.Run,
		Interval: cfg.Interval,
	})
}

func boolMetric(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
