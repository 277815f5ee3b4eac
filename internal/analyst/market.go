package analyst

import (
	"context"
	"fmt"
	"strings"

	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/indicator"
	"github.com/newthinker/aurum/internal/store"
)

// MarketAnalysis is the result of one daily report cycle.
type MarketAnalysis struct {
	Headline       string
	SentimentScore float64 // -10..10
	Trend          core.Trend
	BulletPoints   []string // always three entries
	Conclusion     string
	Signal         *TradeIdea
	Available      bool
}

// TradeIdea is the optional trade recommendation attached to an analysis.
type TradeIdea struct {
	OrderType  core.SignalType
	EntryPrice float64
	StopLoss   float64
	TP1        float64
	TP2        float64
}

// Markdown renders the analysis as the report body.
func (m MarketAnalysis) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", m.Headline)
	fmt.Fprintf(&b, "**Trend:** %s | **Sentiment:** %+.1f\n\n", m.Trend, m.SentimentScore)
	for _, p := range m.BulletPoints {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	fmt.Fprintf(&b, "\n%s\n", m.Conclusion)
	if m.Signal != nil {
		fmt.Fprintf(&b, "\n**Signal:** %s @ %.2f | SL %.2f | TP1 %.2f | TP2 %.2f\n",
			m.Signal.OrderType, m.Signal.EntryPrice, m.Signal.StopLoss, m.Signal.TP1, m.Signal.TP2)
	}
	return b.String()
}

// MarketSchema is the structured output requested for AnalyzeMarket.
var MarketSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"headline":        map[string]any{"type": "string"},
		"sentiment_score": map[string]any{"type": "number"},
		"trend":           map[string]any{"type": "string", "enum": []any{"BULLISH", "BEARISH", "SIDEWAY"}},
		"bullet_points":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"conclusion":      map[string]any{"type": "string"},
		"trade_signal": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"order_type":  map[string]any{"type": "string"},
				"entry_price": map[string]any{"type": "number"},
				"sl":          map[string]any{"type": "number"},
				"tp1":         map[string]any{"type": "number"},
				"tp2":         map[string]any{"type": "number"},
			},
		},
	},
	"required": []any{"headline", "sentiment_score", "trend", "bullet_points", "conclusion"},
}

type marketReply struct {
	Headline       string   `json:"headline"`
	SentimentScore any      `json:"sentiment_score"`
	Trend          string   `json:"trend"`
	BulletPoints   []string `json:"bullet_points"`
	Conclusion     string   `json:"conclusion"`
	TradeSignal    *struct {
		OrderType  string `json:"order_type"`
		EntryPrice any    `json:"entry_price"`
		SL         any    `json:"sl"`
		TP1        any    `json:"tp1"`
		TP2        any    `json:"tp2"`
	} `json:"trade_signal"`
}

const marketSystemPrompt = `You are a senior XAU/USD strategist. Read the news and the technical summary, then write a concise market report.
sentiment_score ranges from -10 (very bearish for gold) to 10 (very bullish). bullet_points has exactly three items.
Only include trade_signal when the setup is clear; order_type is one of BUY, SELL, BUY_LIMIT, SELL_LIMIT, BUY_STOP, SELL_STOP.`

// AnalyzeMarket interprets the latest articles against the technical
// summary and the previous report. The result is always default-filled.
func (a *Analyst) AnalyzeMarket(ctx context.Context, articles []store.Article, ta indicator.Summary, prior *store.Report) MarketAnalysis {
	var reply marketReply
	ok := a.generate(ctx, "analyze_market", marketSystemPrompt, marketPrompt(articles, ta, prior), MarketSchema, &reply)
	if !ok {
		return defaultMarket()
	}
	return fillMarket(reply)
}

func marketPrompt(articles []store.Article, ta indicator.Summary, prior *store.Report) string {
	var sb strings.Builder
	sb.WriteString("## Technical Summary\n")
	sb.WriteString(ta.Text())
	sb.WriteString("\n")

	if prior != nil {
		sb.WriteString("## Previous Report\n")
		fmt.Fprintf(&sb, "Trend %s, sentiment %+.1f: %s\n\n", prior.Trend, prior.SentimentScore,
			truncate(firstNonEmpty(prior.Headline, prior.Content), 300))
	}

	sb.WriteString("## News\n")
	if len(articles) == 0 {
		sb.WriteString("No new articles.\n")
	}
	for i, art := range articles {
		fmt.Fprintf(&sb, "%d. [%s] %s\n%s\n\n", i+1, art.Source, art.Title, truncate(art.Content, 800))
	}
	return sb.String()
}

func defaultMarket() MarketAnalysis {
	return MarketAnalysis{
		Headline:     "Market update",
		Trend:        core.TrendSideway,
		BulletPoints: []string{"-", "-", "-"},
		Conclusion:   "-",
	}
}

func fillMarket(r marketReply) MarketAnalysis {
	m := defaultMarket()
	m.Available = true
	m.Headline = firstNonEmpty(r.Headline, m.Headline)
	m.SentimentScore = clamp(number(r.SentimentScore), -10, 10)
	m.Trend = core.ParseTrend(r.Trend)
	m.Conclusion = firstNonEmpty(r.Conclusion, m.Conclusion)

	points := make([]string, 0, 3)
	for _, p := range r.BulletPoints {
		if p = strings.TrimSpace(p); p != "" && len(points) < 3 {
			points = append(points, p)
		}
	}
	for len(points) < 3 {
		points = append(points, "-")
	}
	m.BulletPoints = points

	if ts := r.TradeSignal; ts != nil {
		if t, ok := core.ParseSignalType(ts.OrderType); ok && t.IsActionable() {
			m.Signal = &TradeIdea{
				OrderType:  t,
				EntryPrice: number(ts.EntryPrice),
				StopLoss:   number(ts.SL),
				TP1:        number(ts.TP1),
				TP2:        number(ts.TP2),
			}
		}
	}
	return m
}
