package indicator

import (
	"math"

	"github.com/newthinker/aurum/internal/core"
)

// FibRatios are the retracement fractions reported by Fibonacci.
var FibRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

// FibLevel is one retracement price.
type FibLevel struct {
	Ratio float64
	Price float64
}

// Fibonacci returns retracement levels measured down from high: ratio 0
// is the swing high, ratio 1 the swing low.
func Fibonacci(high, low float64) []FibLevel {
	diff := high - low
	levels := make([]FibLevel, len(FibRatios))
	for i, r := range FibRatios {
		levels[i] = FibLevel{Ratio: r, Price: high - diff*r}
	}
	return levels
}

// Levels holds support/resistance over a lookback window plus classic
// floor pivots from the last completed bar.
type Levels struct {
	Support    float64
	Resistance float64
	Pivot      float64
	S1         float64
	R1         float64
}

// SupportResistance uses the lowest low and highest high of the last
// lookback bars. A lookback <= 0 or larger than the series uses all bars.
func SupportResistance(bars []core.OHLCV, lookback int) Levels {
	if len(bars) == 0 {
		return Levels{}
	}
	if lookback <= 0 || lookback > len(bars) {
		lookback = len(bars)
	}
	window := bars[len(bars)-lookback:]

	lv := Levels{Support: math.Inf(1), Resistance: math.Inf(-1)}
	for _, b := range window {
		lv.Support = math.Min(lv.Support, b.Low)
		lv.Resistance = math.Max(lv.Resistance, b.High)
	}

	last := bars[len(bars)-1]
	lv.Pivot = (last.High + last.Low + last.Close) / 3
	lv.S1 = 2*lv.Pivot - last.High
	lv.R1 = 2*lv.Pivot - last.Low
	return lv
}
