package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newthinker/aurum/internal/core"
)

type fakeSource struct {
	name  string
	bars  []core.OHLCV
	err   error
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]core.OHLCV, error) {
	f.calls++
	return f.bars, f.err
}

func series(closes ...float64) []core.OHLCV {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]core.OHLCV, len(closes))
	for i, c := range closes {
		out[i] = core.OHLCV{Close: c, Time: start.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func TestChain_PriorityOrder(t *testing.T) {
	first := &fakeSource{name: "terminal", bars: series(1, 2)}
	second := &fakeSource{name: "yahoo", bars: series(9)}
	c := NewChain(nil, first, second)

	bars, err := c.FetchCandles(context.Background(), "XAUUSD", "H1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 || second.calls != 0 {
		t.Errorf("expected first source only, got %d bars and %d fallback calls", len(bars), second.calls)
	}
}

func TestChain_Fallback(t *testing.T) {
	tests := []struct {
		name  string
		first *fakeSource
	}{
		{"error", &fakeSource{name: "terminal", err: errors.New("down")}},
		{"empty", &fakeSource{name: "terminal"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			second := &fakeSource{name: "yahoo", bars: series(5, 6, 7)}
			c := NewChain(nil, tc.first, second)

			bars, err := c.FetchCandles(context.Background(), "XAUUSD", "H1", 2)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(bars) != 2 || bars[1].Close != 7 {
				t.Errorf("expected trimmed fallback series, got %+v", bars)
			}
		})
	}
}

func TestChain_AllFail(t *testing.T) {
	c := NewChain(nil,
		&fakeSource{name: "terminal", err: core.ErrBrokerUnavailable},
		&fakeSource{name: "yahoo"},
	)

	_, err := c.FetchCandles(context.Background(), "XAUUSD", "H1", 2)
	if !errors.Is(err, core.ErrCollectorFailed) {
		t.Fatalf("expected ErrCollectorFailed, got %v", err)
	}
	if !errors.Is(err, core.ErrBrokerUnavailable) {
		t.Errorf("expected cause to be kept, got %v", err)
	}
}

func TestChain_NoSources(t *testing.T) {
	_, err := NewChain(nil).FetchCandles(context.Background(), "XAUUSD", "H1", 2)
	if !errors.Is(err, core.ErrCollectorFailed) {
		t.Errorf("expected ErrCollectorFailed, got %v", err)
	}
}

func TestChain_Register(t *testing.T) {
	c := NewChain(nil)
	c.Register(&fakeSource{name: "terminal"})
	c.Register(&fakeSource{name: "yahoo"})
	c.Register(&fakeSource{name: "terminal", bars: series(1)})
	c.Register(nil)

	all := c.GetAll()
	if len(all) != 2 || all[0].Name() != "terminal" || all[1].Name() != "yahoo" {
		t.Fatalf("unexpected order: %v", all)
	}
	s, ok := c.Get("terminal")
	if !ok || len(s.(*fakeSource).bars) != 1 {
		t.Error("expected replacement in place")
	}
	if _, ok := c.Get("polygon"); ok {
		t.Error("expected polygon to be absent")
	}
}

func TestChain_CurrentPrice(t *testing.T) {
	c := NewChain(nil, &fakeSource{name: "terminal", bars: series(2010, 2011.5)})

	price, err := c.CurrentPrice(context.Background(), "XAUUSD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 2011.5 {
		t.Errorf("expected 2011.5, got %v", price)
	}
}

func TestTail(t *testing.T) {
	bars := series(1, 2, 3)
	if got := Tail(bars, 0); len(got) != 3 {
		t.Errorf("count 0 keeps all, got %d", len(got))
	}
	if got := Tail(bars, 2); len(got) != 2 || got[0].Close != 2 {
		t.Errorf("unexpected tail %+v", got)
	}
}
