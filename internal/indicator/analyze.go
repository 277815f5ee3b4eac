package indicator

import (
	"fmt"
	"math"
	"strings"

	"github.com/newthinker/aurum/internal/core"
)

// MinBars is the smallest series Analyze accepts.
const MinBars = 20

// Summary is the technical picture fed to the analyst prompt.
type Summary struct {
	Symbol    string
	Interval  string
	Price     float64
	SwingHigh float64
	SwingLow  float64

	RSI   float64
	SMA20 float64
	SMA50 float64 // zero when fewer than 50 bars
	EMA20 float64
	Trend core.Trend

	Fib    []FibLevel
	Levels Levels

	Volume          VolumeRegime
	VolumeConfirmed bool
}

// Analyze computes the indicator summary from oldest-first candles.
func Analyze(bars []core.OHLCV) (Summary, error) {
	if len(bars) < MinBars {
		return Summary{}, core.ErrInsufficientData
	}

	closes := core.Closes(bars)
	volumes := core.Volumes(bars)
	last := bars[len(bars)-1]

	s := Summary{
		Symbol:    last.Symbol,
		Interval:  last.Interval,
		Price:     last.Close,
		SwingHigh: math.Inf(-1),
		SwingLow:  math.Inf(1),
	}
	for _, b := range bars {
		s.SwingHigh = math.Max(s.SwingHigh, b.High)
		s.SwingLow = math.Min(s.SwingLow, b.Low)
	}

	if rsi := RSI(closes, 14); len(rsi) > 0 {
		s.RSI = rsi[len(rsi)-1]
	}
	s.SMA20 = lastOf(SMA(closes, 20))
	s.SMA50 = lastOf(SMA(closes, 50))
	s.EMA20 = lastOf(EMA(closes, 20))
	s.Trend = trend(s)

	s.Fib = Fibonacci(s.SwingHigh, s.SwingLow)
	s.Levels = SupportResistance(bars, 20)
	s.Volume = Regime(volumes, 20)
	s.VolumeConfirmed = VolumeConfirmed(volumes, 20)
	return s, nil
}

func trend(s Summary) core.Trend {
	ref := s.SMA50
	if ref == 0 {
		ref = s.SMA20
	}
	switch {
	case s.Price > ref && s.EMA20 > ref:
		return core.TrendBullish
	case s.Price < ref && s.EMA20 < ref:
		return core.TrendBearish
	default:
		return core.TrendSideway
	}
}

// Text renders the summary as plain lines for an LLM prompt.
func (s Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s %s\n", s.Symbol, s.Interval)
	fmt.Fprintf(&b, "Price: %.2f (swing high %.2f, swing low %.2f)\n", s.Price, s.SwingHigh, s.SwingLow)
	fmt.Fprintf(&b, "Trend: %s\n", s.Trend)
	fmt.Fprintf(&b, "RSI(14): %.1f%s\n", s.RSI, rsiNote(s.RSI))
	fmt.Fprintf(&b, "SMA20: %.2f  EMA20: %.2f", s.SMA20, s.EMA20)
	if s.SMA50 != 0 {
		fmt.Fprintf(&b, "  SMA50: %.2f", s.SMA50)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Support: %.2f  Resistance: %.2f  Pivot: %.2f (S1 %.2f, R1 %.2f)\n",
		s.Levels.Support, s.Levels.Resistance, s.Levels.Pivot, s.Levels.S1, s.Levels.R1)
	b.WriteString("Fibonacci:")
	for _, f := range s.Fib {
		fmt.Fprintf(&b, " %.1f%%=%.2f", f.Ratio*100, f.Price)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Volume: %s (confirmed=%t)\n", s.Volume, s.VolumeConfirmed)
	return b.String()
}

func rsiNote(v float64) string {
	switch {
	case v >= 70:
		return " overbought"
	case v <= 30:
		return " oversold"
	default:
		return ""
	}
}
