package store

import (
	"time"

	"github.com/newthinker/aurum/internal/core"
)

// Article is one stored news item keyed by its canonical URL.
type Article struct {
	ID          string
	Source      string
	Title       string
	PublishedAt time.Time
	Content     string
	Keywords    []string
	ImageURL    string
	Status      core.ArticleStatus
	IsAlerted   bool
	CreatedAt   time.Time
}

// Report is the persisted output of one market analysis cycle.
type Report struct {
	ID             int64
	Headline       string
	Content        string
	SentimentScore float64
	Trend          core.Trend
	SignalType     core.SignalType // empty when the analysis carried no signal
	EntryPrice     float64
	StopLoss       float64
	TakeProfit     float64
	CreatedAt      time.Time
}

// EconomicEvent is one macro release on the calendar.
type EconomicEvent struct {
	ID        string
	Title     string
	Currency  string
	Impact    core.Impact
	Timestamp time.Time
	Forecast  string
	Previous  string
	Actual    string
	Status    core.EventStatus
}

// TradeSignal is a recommendation waiting to be consumed by the trader.
type TradeSignal struct {
	ID         int64
	Symbol     string
	Type       core.SignalType
	Source     core.SignalSource
	Score      float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Reason     string
	CreatedAt  time.Time
	Processed  bool
}

// Trade is one broker-confirmed order.
type Trade struct {
	Ticket     string
	SignalID   int64
	Symbol     string
	OrderType  string
	Mode       string
	Volume     float64
	OpenPrice  float64
	SL         float64
	TP         float64
	ClosePrice float64
	Profit     float64
	Status     core.TradeStatus
	OpenTime   time.Time
	CloseTime  time.Time
}
