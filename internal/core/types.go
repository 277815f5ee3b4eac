package core

import (
	"strings"
	"time"
)

// SignalType is the kind of order a trade signal recommends.
type SignalType string

const (
	SignalBuy       SignalType = "BUY"
	SignalSell      SignalType = "SELL"
	SignalWait      SignalType = "WAIT"
	SignalBuyStop   SignalType = "BUY_STOP"
	SignalSellStop  SignalType = "SELL_STOP"
	SignalBuyLimit  SignalType = "BUY_LIMIT"
	SignalSellLimit SignalType = "SELL_LIMIT"
)

// ParseSignalType is the only tolerant parser in the package: it accepts
// free text such as "Strong Buy" or "SELL LIMIT @ 2010" and reduces it to
// a closed type. Unrecognised text yields SignalWait and false.
func ParseSignalType(s string) (SignalType, bool) {
	u := strings.ToUpper(s)
	buy := strings.Contains(u, "BUY")
	sell := strings.Contains(u, "SELL")
	if buy == sell {
		return SignalWait, strings.Contains(u, "WAIT")
	}

	switch {
	case buy && strings.Contains(u, "LIMIT"):
		return SignalBuyLimit, true
	case buy && strings.Contains(u, "STOP"):
		return SignalBuyStop, true
	case buy:
		return SignalBuy, true
	case strings.Contains(u, "LIMIT"):
		return SignalSellLimit, true
	case strings.Contains(u, "STOP"):
		return SignalSellStop, true
	default:
		return SignalSell, true
	}
}

func (t SignalType) String() string { return string(t) }

// Side reduces the type to BUY or SELL. WAIT has no side.
func (t SignalType) Side() SignalType {
	switch t {
	case SignalBuy, SignalBuyStop, SignalBuyLimit:
		return SignalBuy
	case SignalSell, SignalSellStop, SignalSellLimit:
		return SignalSell
	default:
		return SignalWait
	}
}

// IsPending reports whether the type is executed as a pending order.
func (t SignalType) IsPending() bool {
	switch t {
	case SignalBuyStop, SignalSellStop, SignalBuyLimit, SignalSellLimit:
		return true
	}
	return false
}

// IsActionable reports whether the type leads to an order at all.
func (t SignalType) IsActionable() bool {
	return t.Side() != SignalWait
}

// SignalSource identifies who produced a trade signal.
type SignalSource string

const (
	SourceNews     SignalSource = "NEWS"
	SourceAIReport SignalSource = "AI_REPORT"
)

// ParseSignalSource parses an exact source name.
func ParseSignalSource(s string) (SignalSource, bool) {
	switch SignalSource(strings.ToUpper(strings.TrimSpace(s))) {
	case SourceNews:
		return SourceNews, true
	case SourceAIReport:
		return SourceAIReport, true
	}
	return "", false
}

func (s SignalSource) String() string { return string(s) }

// Trend is the directional view of a report.
type Trend string

const (
	TrendBullish Trend = "BULLISH"
	TrendBearish Trend = "BEARISH"
	TrendSideway Trend = "SIDEWAY"
)

// ParseTrend maps NEUTRAL and SIDEWAYS onto SIDEWAY; anything unknown is
// SIDEWAY as well.
func ParseTrend(s string) Trend {
	switch u := strings.ToUpper(strings.TrimSpace(s)); {
	case strings.HasPrefix(u, "BULL"):
		return TrendBullish
	case strings.HasPrefix(u, "BEAR"):
		return TrendBearish
	default:
		return TrendSideway
	}
}

func (t Trend) String() string { return string(t) }

// Impact is the calendar's importance flag.
type Impact string

const (
	ImpactHigh    Impact = "High"
	ImpactMedium  Impact = "Medium"
	ImpactLow     Impact = "Low"
	ImpactNonEcon Impact = "Non-Econ"
)

// ParseImpact is case-insensitive.
func ParseImpact(s string) (Impact, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ImpactHigh, true
	case "medium":
		return ImpactMedium, true
	case "low":
		return ImpactLow, true
	case "non-econ", "holiday":
		return ImpactNonEcon, true
	}
	return "", false
}

func (i Impact) String() string { return string(i) }

// EventStatus tracks which alerts an economic event has produced.
// Transitions only move forward.
type EventStatus string

const (
	EventPending      EventStatus = "pending"
	EventPreNotified  EventStatus = "pre_notified"
	EventPostNotified EventStatus = "post_notified"
)

// ParseEventStatus parses an exact status name.
func ParseEventStatus(s string) (EventStatus, bool) {
	switch EventStatus(s) {
	case EventPending, EventPreNotified, EventPostNotified:
		return EventStatus(s), true
	}
	return "", false
}

// Rank orders statuses along the one-way machine.
func (s EventStatus) Rank() int {
	switch s {
	case EventPreNotified:
		return 1
	case EventPostNotified:
		return 2
	default:
		return 0
	}
}

func (s EventStatus) String() string { return string(s) }

// TradeStatus is the lifecycle state of a broker-confirmed order.
// PENDING marks a stop order that has not filled yet.
type TradeStatus string

const (
	TradePending TradeStatus = "PENDING"
	TradeOpen    TradeStatus = "OPEN"
	TradeClosed  TradeStatus = "CLOSED"
)

func (s TradeStatus) String() string { return string(s) }

// ArticleStatus marks whether an article has been fed into analysis.
type ArticleStatus string

const (
	ArticleNew       ArticleStatus = "NEW"
	ArticleProcessed ArticleStatus = "PROCESSED"
)

func (s ArticleStatus) String() string { return string(s) }

// OHLCV represents a candlestick/bar. Time is always UTC.
type OHLCV struct {
	Symbol   string
	Interval string // "M1", "M15", "H1"
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	Time     time.Time
}

// Closes extracts close prices in order.
func Closes(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts volumes in order.
func Volumes(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = float64(b.Volume)
	}
	return out
}

// TimeLayout is the storage format for every timestamp. Zero padding
// makes lexicographic order equal to chronological order.
const TimeLayout = "2006-01-02 15:04:05"

// FormatUTC renders t in UTC using TimeLayout.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseUTC parses a TimeLayout string as UTC.
func ParseUTC(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.UTC)
}
