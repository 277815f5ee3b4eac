package broker

import (
	"context"
	"fmt"
)

// RiskConfig caps exposure before any new order. Zero disables a limit.
type RiskConfig struct {
	// MaxOpenPositions is the most positions the symbol may hold at once.
	MaxOpenPositions int
	// MaxFloatingLoss halts new orders once the summed floating profit of
	// the open positions reaches -MaxFloatingLoss (account currency).
	MaxFloatingLoss float64
	// MaxVolume is the largest lot size one order may carry.
	MaxVolume float64
}

// Enabled reports whether any limit is set.
func (c RiskConfig) Enabled() bool {
	return c.MaxOpenPositions > 0 || c.MaxFloatingLoss > 0 || c.MaxVolume > 0
}

// RiskCheckResult represents the outcome of a risk check.
type RiskCheckResult struct {
	// Allowed indicates whether the order is permitted.
	Allowed bool
	// Reason provides explanation when order is rejected.
	Reason string
}

// RiskChecker validates orders against the live positions on the terminal.
type RiskChecker struct {
	config RiskConfig
	broker Broker
}

// NewRiskChecker creates a new RiskChecker with the given configuration and broker.
func NewRiskChecker(config RiskConfig, broker Broker) *RiskChecker {
	return &RiskChecker{
		config: config,
		broker: broker,
	}
}

// Check validates an order of volume lots on symbol. It fails closed when
// the positions cannot be read.
func (r *RiskChecker) Check(ctx context.Context, symbol string, volume float64) RiskCheckResult {
	if r.config.MaxVolume > 0 && volume > r.config.MaxVolume {
		return RiskCheckResult{
			Allowed: false,
			Reason:  fmt.Sprintf("order volume too large: %s > %s", FormatVolume(volume), FormatVolume(r.config.MaxVolume)),
		}
	}
	if r.config.MaxOpenPositions <= 0 && r.config.MaxFloatingLoss <= 0 {
		return RiskCheckResult{Allowed: true}
	}

	positions, err := r.broker.Positions(ctx, symbol)
	if err != nil {
		return RiskCheckResult{
			Allowed: false,
			Reason:  fmt.Sprintf("failed to get positions: %v", err),
		}
	}

	if r.config.MaxOpenPositions > 0 && len(positions) >= r.config.MaxOpenPositions {
		return RiskCheckResult{
			Allowed: false,
			Reason:  fmt.Sprintf("max open positions reached: %d >= %d", len(positions), r.config.MaxOpenPositions),
		}
	}

	if r.config.MaxFloatingLoss > 0 {
		var floating float64
		for _, p := range positions {
			floating += p.Profit
		}
		if floating <= -r.config.MaxFloatingLoss {
			return RiskCheckResult{
				Allowed: false,
				Reason:  fmt.Sprintf("floating loss limit reached: %.2f <= -%.2f", floating, r.config.MaxFloatingLoss),
			}
		}
	}

	return RiskCheckResult{Allowed: true}
}
