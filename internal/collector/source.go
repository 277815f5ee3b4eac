// Package collector provides OHLCV candles from several market data
// sources with prioritized fallback.
package collector

import (
	"context"

	"github.com/newthinker/aurum/internal/core"
)

// Source is one market data provider.
type Source interface {
	Name() string

	// FetchCandles returns up to count oldest-first bars for timeframe
	// (M1, M5, M15, M30, H1, H4, D1). Times are UTC.
	FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]core.OHLCV, error)
}

// Tail keeps the last count bars.
func Tail(bars []core.OHLCV, count int) []core.OHLCV {
	if count > 0 && len(bars) > count {
		return bars[len(bars)-count:]
	}
	return bars
}
