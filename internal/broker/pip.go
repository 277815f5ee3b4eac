package broker

import (
	"fmt"
	"strings"

	"github.com/newthinker/aurum/internal/core"
)

var timeframes = map[string]int{
	"M1":  1,
	"M5":  5,
	"M15": 15,
	"M30": 30,
	"H1":  16385,
	"H4":  16388,
	"D1":  16408,
}

// TimeframeCode maps a timeframe name to the terminal's numeric code.
func TimeframeCode(tf string) (int, error) {
	code, ok := timeframes[strings.ToUpper(strings.TrimSpace(tf))]
	if !ok {
		return 0, core.WrapError(core.ErrBrokerProtocol, fmt.Errorf("unknown timeframe %q", tf))
	}
	return code, nil
}

// PipSize returns one pip in price units. Unknown symbol classes fail
// closed with core.ErrBrokerProtocol.
func PipSize(symbol string) (float64, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	switch {
	case s == "XAUUSD":
		return 0.1, nil
	case strings.Contains(s, "JPY"):
		return 0.01, nil
	case isFXPair(s):
		return 0.0001, nil
	default:
		return 0, core.WrapError(core.ErrBrokerProtocol, fmt.Errorf("no pip size for %q", symbol))
	}
}

func isFXPair(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
