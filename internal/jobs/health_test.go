package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/broker"
	"github.com/newthinker/aurum/internal/config"
	"github.com/newthinker/aurum/internal/scheduler"
)

// downBroker fails every CHECK.
type downBroker struct {
	broker.Broker
}

func (downBroker) Positions(context.Context, string) ([]broker.Position, error) {
	return nil, errors.New("connection refused")
}

func healthRunner(h *harness, b broker.Broker) *Runner {
	env := h.runner.Env()
	env.Broker = b
	return NewRunner(env)
}

func failingSnapshot() []scheduler.JobState {
	return []scheduler.JobState{
		{Name: JobRealtimeAlert, Streak: 3},
		{Name: JobDailyReport, Running: true},
	}
}

func TestHealthCheck_Sample(t *testing.T) {
	h := newHarness(t)
	hc, err := NewHealthCheck(healthRunner(h, downBroker{}), failingSnapshot, config.Defaults().Health)
	require.NoError(t, err)

	m := hc.Sample(context.Background())
	assert.Equal(t, 3.0, m["realtime_alert_streak"])
	assert.Equal(t, 1.0, m["daily_report_running"])
	assert.Equal(t, 0.0, m["daily_report_streak"])
	assert.Equal(t, 0.0, m["broker_up"])
	assert.Equal(t, 0.0, m["open_trades"])
}

func TestHealthCheck_NoBrokerMetric(t *testing.T) {
	h := newHarness(t)
	hc, err := NewHealthCheck(h.runner, nil, config.Defaults().Health)
	require.NoError(t, err)

	_, ok := hc.Sample(context.Background())["broker_up"]
	assert.False(t, ok)
}

func TestHealthCheck_RunFiresRules(t *testing.T) {
	h := newHarness(t)
	hc, err := NewHealthCheck(healthRunner(h, downBroker{}), failingSnapshot, config.Defaults().Health)
	require.NoError(t, err)

	require.NoError(t, hc.Run(context.Background()))

	var fired []string
	for _, k := range h.notifier.keys() {
		if strings.HasPrefix(k, "health:") {
			fired = append(fired, strings.Split(k, ":")[1])
		}
	}
	// broker_unreachable must hold for ten minutes first.
	assert.Equal(t, []string{"realtime_alert_failing"}, fired)
}

func TestRegisterHealth(t *testing.T) {
	h := newHarness(t)
	cfg := config.Defaults().Health

	s := scheduler.New(zap.NewNop())
	cfg.Enabled = false
	require.NoError(t, RegisterHealth(s, h.runner, cfg))
	assert.Empty(t, s.Snapshot())

	cfg.Enabled = true
	require.NoError(t, RegisterHealth(s, h.runner, cfg))
	require.Len(t, s.Snapshot(), 1)
	assert.Equal(t, JobHealth, s.Snapshot()[0].Name)

	cfg.Rules = []config.HealthRule{{Name: "bad", Expr: "nonsense"}}
	assert.Error(t, RegisterHealth(scheduler.New(zap.NewNop()), h.runner, cfg))
}

func TestHealthCheck_Cooldown(t *testing.T) {
	h := newHarness(t)
	cfg := config.Defaults().Health
	cfg.Cooldown = time.Hour
	hc, err := NewHealthCheck(h.runner, failingSnapshot, cfg)
	require.NoError(t, err)

	require.NoError(t, hc.Run(context.Background()))
	require.NoError(t, hc.Run(context.Background()))
	assert.Len(t, h.notifier.keys(), 1)
}
