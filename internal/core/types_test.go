package core

import (
	"sort"
	"testing"
	"time"
)

func TestParseSignalType(t *testing.T) {
	tests := []struct {
		input  string
		want   SignalType
		wantOK bool
	}{
		{"BUY", SignalBuy, true},
		{"sell", SignalSell, true},
		{"Strong Buy", SignalBuy, true},
		{"buy limit @ 2000", SignalBuyLimit, true},
		{"SELL_STOP", SignalSellStop, true},
		{"Sell Limit", SignalSellLimit, true},
		{"BUY STOP", SignalBuyStop, true},
		{"WAIT", SignalWait, true},
		{"hold", SignalWait, false},
		{"buy or sell", SignalWait, false},
		{"", SignalWait, false},
	}

	for _, tc := range tests {
		got, ok := ParseSignalType(tc.input)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("ParseSignalType(%q) = %s,%v want %s,%v", tc.input, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestSignalType_Side(t *testing.T) {
	if SignalBuyLimit.Side() != SignalBuy {
		t.Error("BUY_LIMIT side should be BUY")
	}
	if SignalSellStop.Side() != SignalSell {
		t.Error("SELL_STOP side should be SELL")
	}
	if SignalWait.IsActionable() {
		t.Error("WAIT should not be actionable")
	}
	if !SignalBuyStop.IsPending() || SignalBuy.IsPending() {
		t.Error("pending classification wrong")
	}
}

func TestParseTrend(t *testing.T) {
	tests := map[string]Trend{
		"BULLISH":  TrendBullish,
		"bearish":  TrendBearish,
		"NEUTRAL":  TrendSideway,
		"SIDEWAYS": TrendSideway,
		"sideway":  TrendSideway,
		"":         TrendSideway,
	}
	for in, want := range tests {
		if got := ParseTrend(in); got != want {
			t.Errorf("ParseTrend(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseImpact(t *testing.T) {
	if i, ok := ParseImpact("HIGH"); !ok || i != ImpactHigh {
		t.Errorf("expected High, got %s", i)
	}
	if _, ok := ParseImpact("extreme"); ok {
		t.Error("unknown impact should not parse")
	}
}

func TestEventStatus_Rank(t *testing.T) {
	if !(EventPending.Rank() < EventPreNotified.Rank() && EventPreNotified.Rank() < EventPostNotified.Rank()) {
		t.Error("ranks must increase along the status machine")
	}
	if _, ok := ParseEventStatus("done"); ok {
		t.Error("unknown status should not parse")
	}
}

func TestFormatUTC_LexicographicOrder(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	times := []time.Time{
		time.Date(2025, 1, 9, 23, 0, 0, 0, loc),
		time.Date(2025, 1, 10, 1, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 8, 5, 9, 0, time.UTC),
	}

	strs := make([]string, len(times))
	for i, tm := range times {
		strs[i] = FormatUTC(tm)
	}
	sort.Strings(strs)

	for i := 1; i < len(strs); i++ {
		a, _ := ParseUTC(strs[i-1])
		b, _ := ParseUTC(strs[i])
		if !a.Before(b) {
			t.Errorf("lexicographic order broken between %s and %s", strs[i-1], strs[i])
		}
	}

	if got := FormatUTC(times[0]); got != "2025-01-09 16:00:00" {
		t.Errorf("expected UTC conversion, got %s", got)
	}
}

func TestClosesAndVolumes(t *testing.T) {
	bars := []OHLCV{{Close: 1, Volume: 10}, {Close: 2, Volume: 20}}
	c, v := Closes(bars), Volumes(bars)
	if c[1] != 2 || v[0] != 10 {
		t.Errorf("unexpected extraction: %v %v", c, v)
	}
}
