package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/core"
)

// Chain tries its sources in registration order and returns the first
// non-empty series.
type Chain struct {
	mu      sync.RWMutex
	sources []Source
	logger  *zap.Logger
}

// NewChain creates a chain over sources, highest priority first.
func NewChain(logger *zap.Logger, sources ...Source) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chain{logger: logger}
	for _, s := range sources {
		c.Register(s)
	}
	return c
}

// Register appends a source at the lowest priority. A source with the
// same name replaces the earlier one in place.
func (c *Chain) Register(s Source) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.sources {
		if existing.Name() == s.Name() {
			c.sources[i] = s
			return
		}
	}
	c.sources = append(c.sources, s)
}

// Get retrieves a source by name.
func (c *Chain) Get(name string) (Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.sources {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// GetAll returns the sources in priority order.
func (c *Chain) GetAll() []Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Source, len(c.sources))
	copy(out, c.sources)
	return out
}

func (c *Chain) Name() string { return "chain" }

// FetchCandles walks the sources until one returns bars. Each failure is
// logged; when all fail the joined causes are wrapped in
// core.ErrCollectorFailed.
func (c *Chain) FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]core.OHLCV, error) {
	sources := c.GetAll()
	if len(sources) == 0 {
		return nil, core.WrapError(core.ErrCollectorFailed, errors.New("no sources registered"))
	}

	var errs []error
	for i, s := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, err := s.FetchCandles(ctx, symbol, timeframe, count)
		if err == nil && len(bars) == 0 {
			err = core.ErrNoData
		}
		if err == nil {
			if i > 0 {
				c.logger.Info("market data served by fallback source",
					zap.String("source", s.Name()), zap.String("symbol", symbol), zap.String("timeframe", timeframe))
			}
			return Tail(bars, count), nil
		}
		c.logger.Warn("market data source failed",
			zap.String("source", s.Name()),
			zap.String("symbol", symbol),
			zap.String("timeframe", timeframe),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return nil, core.WrapError(core.ErrCollectorFailed, errors.Join(errs...))
}

// CurrentPrice is the close of the most recent M1 bar.
func (c *Chain) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	bars, err := c.FetchCandles(ctx, symbol, "M1", 1)
	if err != nil {
		return 0, err
	}
	return bars[len(bars)-1].Close, nil
}
