package broker

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type positionsBroker struct {
	Broker
	positions []Position
	err       error
}

func (b positionsBroker) Positions(context.Context, string) ([]Position, error) {
	return b.positions, b.err
}

func TestRiskConfig_Enabled(t *testing.T) {
	if (RiskConfig{}).Enabled() {
		t.Error("zero config should be disabled")
	}
	if !(RiskConfig{MaxVolume: 1}).Enabled() {
		t.Error("expected enabled")
	}
}

func TestRiskChecker_Check(t *testing.T) {
	two := []Position{
		{Ticket: "1", Type: "BUY", Volume: 0.01, Profit: -30},
		{Ticket: "2", Type: "SELL", Volume: 0.01, Profit: -25},
	}

	tests := []struct {
		name       string
		cfg        RiskConfig
		broker     positionsBroker
		volume     float64
		wantAllow  bool
		wantReason string
	}{
		{"no limits", RiskConfig{}, positionsBroker{err: errors.New("unused")}, 0.01, true, ""},
		{"under every limit", RiskConfig{MaxOpenPositions: 3, MaxFloatingLoss: 100, MaxVolume: 0.1}, positionsBroker{positions: two}, 0.01, true, ""},
		{"max positions reached", RiskConfig{MaxOpenPositions: 2}, positionsBroker{positions: two}, 0.01, false, "max open positions"},
		{"exactly at loss limit", RiskConfig{MaxFloatingLoss: 55}, positionsBroker{positions: two}, 0.01, false, "floating loss"},
		{"loss under limit", RiskConfig{MaxFloatingLoss: 56}, positionsBroker{positions: two}, 0.01, true, ""},
		{"volume too large", RiskConfig{MaxVolume: 0.05}, positionsBroker{}, 0.1, false, "volume too large"},
		{"check fails closed", RiskConfig{MaxOpenPositions: 5}, positionsBroker{err: errors.New("refused")}, 0.01, false, "failed to get positions"},
		{"volume limit skips CHECK", RiskConfig{MaxVolume: 1}, positionsBroker{err: errors.New("refused")}, 0.01, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewRiskChecker(tt.cfg, tt.broker).Check(context.Background(), "XAUUSD", tt.volume)
			if got.Allowed != tt.wantAllow {
				t.Fatalf("Allowed = %v, want %v (%s)", got.Allowed, tt.wantAllow, got.Reason)
			}
			if !strings.Contains(got.Reason, tt.wantReason) {
				t.Errorf("Reason = %q, want it to contain %q", got.Reason, tt.wantReason)
			}
		})
	}
}
