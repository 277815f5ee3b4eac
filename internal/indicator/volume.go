package indicator

// VolumeRegime classifies the latest volume against its average.
type VolumeRegime string

const (
	VolumeHigh   VolumeRegime = "HIGH"
	VolumeNormal VolumeRegime = "NORMAL"
	VolumeLow    VolumeRegime = "LOW"
)

// Regime compares the last volume with the SMA of the preceding period
// bars: above 1.5x is HIGH, below 0.5x is LOW.
func Regime(volumes []float64, period int) VolumeRegime {
	if period <= 0 || len(volumes) < period+1 {
		return VolumeNormal
	}
	avg := SMA(volumes[len(volumes)-period-1:len(volumes)-1], period)[0]
	if avg == 0 {
		return VolumeNormal
	}
	ratio := volumes[len(volumes)-1] / avg
	switch {
	case ratio > 1.5:
		return VolumeHigh
	case ratio < 0.5:
		return VolumeLow
	default:
		return VolumeNormal
	}
}

// VolumeConfirmed reports whether at least one of the latest two bars
// trades above the period SMA. It is false when both sit at or below it,
// or when there is not enough data.
func VolumeConfirmed(volumes []float64, period int) bool {
	sma := SMA(volumes, period)
	if len(sma) == 0 || len(volumes) < 2 {
		return false
	}
	avg := sma[len(sma)-1]
	last, prev := volumes[len(volumes)-1], volumes[len(volumes)-2]
	return !(last <= avg && prev <= avg)
}
