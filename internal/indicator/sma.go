package indicator

// SMA returns the simple moving average of series over period, oldest
// first. The result has len(series)-period+1 values, or none when the
// series is shorter than period or period is not positive.
func SMA(series []float64, period int) []float64 {
	if period <= 0 || len(series) < period {
		return []float64{}
	}

	out := make([]float64, 0, len(series)-period+1)
	sum := seed(series, period)
	out = append(out, sum/float64(period))
	for i := period; i < len(series); i++ {
		sum += series[i] - series[i-period]
		out = append(out, sum/float64(period))
	}
	return out
}

// EMA returns the exponential moving average of series, seeded with the
// SMA of the first period values.
func EMA(series []float64, period int) []float64 {
	if period <= 0 || len(series) < period {
		return []float64{}
	}

	out := make([]float64, 0, len(series)-period+1)
	k := 2.0 / float64(period+1)
	ema := seed(series, period) / float64(period)
	out = append(out, ema)
	for i := period; i < len(series); i++ {
		ema += (series[i] - ema) * k
		out = append(out, ema)
	}
	return out
}

func seed(series []float64, period int) float64 {
	var sum float64
	for _, v := range series[:period] {
		sum += v
	}
	return sum
}

// lastOf is the latest value of a series, zero when empty.
func lastOf(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
