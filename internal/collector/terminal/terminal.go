// Package terminal serves candles from the trading terminal itself.
package terminal

import (
	"context"

	"github.com/newthinker/aurum/internal/broker"
	"github.com/newthinker/aurum/internal/core"
)

// Candler is the slice of broker.Broker this source needs.
type Candler interface {
	Candles(ctx context.Context, symbol, timeframe string, count int) ([]core.OHLCV, error)
}

var _ Candler = (broker.Broker)(nil)

// Terminal is the highest-priority market data source.
type Terminal struct {
	b Candler
}

// New wraps a broker connection.
func New(b Candler) *Terminal {
	return &Terminal{b: b}
}

func (t *Terminal) Name() string { return "terminal" }

// FetchCandles asks the terminal for count bars.
func (t *Terminal) FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]core.OHLCV, error) {
	return t.b.Candles(ctx, symbol, timeframe, count)
}
