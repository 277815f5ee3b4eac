package analyst

import (
	"context"
	"fmt"
	"strings"

	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/store"
)

// ReleaseAnalysis interprets an economic release for gold.
type ReleaseAnalysis struct {
	SentimentScore float64 // -10..10, positive is bullish for gold
	Trend          core.Trend
	Summary        string
	Available      bool
}

// ReleaseSchema is the structured output requested for AnalyzeRelease.
var ReleaseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"sentiment_score": map[string]any{"type": "number"},
		"trend":           map[string]any{"type": "string", "enum": []any{"BULLISH", "BEARISH", "SIDEWAY"}},
		"summary":         map[string]any{"type": "string"},
	},
	"required": []any{"sentiment_score", "trend", "summary"},
}

type releaseReply struct {
	SentimentScore any    `json:"sentiment_score"`
	Trend          string `json:"trend"`
	Summary        string `json:"summary"`
}

const releaseSystemPrompt = `You interpret macroeconomic releases for XAU/USD traders.
Compare Actual with Forecast and Previous. sentiment_score ranges from -10 (very bearish for gold) to 10 (very bullish).`

// AnalyzeRelease reads a released event. The result is always
// default-filled.
func (a *Analyst) AnalyzeRelease(ctx context.Context, e store.EconomicEvent) ReleaseAnalysis {
	prompt := fmt.Sprintf("Event: %s (%s)\nActual: %s\nForecast: %s\nPrevious: %s\n",
		e.Title, e.Currency, orDash(e.Actual), orDash(e.Forecast), orDash(e.Previous))

	var reply releaseReply
	if !a.generate(ctx, "analyze_release", releaseSystemPrompt, prompt, ReleaseSchema, &reply) {
		return ReleaseAnalysis{Trend: core.TrendSideway, Summary: "-"}
	}
	return ReleaseAnalysis{
		SentimentScore: clamp(number(reply.SentimentScore), -10, 10),
		Trend:          core.ParseTrend(reply.Trend),
		Summary:        firstNonEmpty(reply.Summary, "-"),
		Available:      true,
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
