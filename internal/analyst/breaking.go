package analyst

import (
	"context"
	"strings"
)

// BreakingNews is the classification of one article.
type BreakingNews struct {
	IsBreaking bool
	Score      float64 // 0..10
	Headline   string
	Summary    string
	Impact     string
	Available  bool
}

// BreakingSchema is the structured output requested for CheckBreakingNews.
var BreakingSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"is_breaking": map[string]any{"type": "boolean"},
		"score":       map[string]any{"type": "number"},
		"headline":    map[string]any{"type": "string"},
		"summary":     map[string]any{"type": "string"},
		"impact":      map[string]any{"type": "string"},
	},
	"required": []any{"is_breaking", "score", "headline", "summary", "impact"},
}

type breakingReply struct {
	IsBreaking any    `json:"is_breaking"`
	Score      any    `json:"score"`
	Headline   string `json:"headline"`
	Summary    string `json:"summary"`
	Impact     string `json:"impact"`
}

const breakingSystemPrompt = `You screen financial news for events that move XAU/USD within the hour.
score ranges from 0 (irrelevant) to 10 (regime-changing). impact states the expected direction for gold, for example "bullish for gold" or "bearish for gold".`

// CheckBreakingNews classifies an article body. The result is always
// default-filled.
func (a *Analyst) CheckBreakingNews(ctx context.Context, text string) BreakingNews {
	var reply breakingReply
	if !a.generate(ctx, "check_breaking_news", breakingSystemPrompt, truncate(text, 4000), BreakingSchema, &reply) {
		return BreakingNews{}
	}
	return BreakingNews{
		IsBreaking: truthy(reply.IsBreaking),
		Score:      clamp(number(reply.Score), 0, 10),
		Headline:   strings.TrimSpace(reply.Headline),
		Summary:    strings.TrimSpace(reply.Summary),
		Impact:     strings.TrimSpace(reply.Impact),
		Available:  true,
	}
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		s := strings.ToLower(strings.TrimSpace(b))
		return s == "true" || s == "yes" || s == "1"
	case float64:
		return b != 0
	}
	return false
}
