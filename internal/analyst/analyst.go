// Package analyst turns raw LLM replies into default-filled market,
// breaking-news and release interpretations.
package analyst

import (
	"context"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/llm"
)

// Analyst wraps an LLM provider with the pipeline's prompts and schemas.
type Analyst struct {
	llm    llm.Provider
	logger *zap.Logger
}

// New creates an Analyst. A nil provider is allowed: every operation then
// returns its default result with Available=false.
func New(provider llm.Provider, logger *zap.Logger) *Analyst {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyst{llm: provider, logger: logger}
}

// Enabled reports whether an LLM provider is configured.
func (a *Analyst) Enabled() bool {
	return a != nil && a.llm != nil
}

// generate calls the provider and decodes the reply into v. It returns
// false on any provider or parse failure, after logging it.
func (a *Analyst) generate(ctx context.Context, op, system, prompt string, schema map[string]any, v any) bool {
	if !a.Enabled() {
		return false
	}
	resp, err := a.llm.Chat(ctx, llm.ChatRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens:    2048,
		Temperature:  0.3,
		JSONMode:     true,
		Schema:       schema,
	})
	if err != nil {
		a.logger.Warn("llm call failed", zap.String("op", op), zap.String("provider", a.llm.Name()), zap.Error(err))
		return false
	}
	if err := llm.ParseJSON(resp.Content, v); err != nil {
		a.logger.Warn("llm reply not parseable", zap.String("op", op), zap.Error(err),
			zap.String("reply", truncate(resp.Content, 200)))
		return false
	}
	return true
}

// number accepts JSON numbers and numeric strings such as "+6.5".
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(n, "+")), 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if n {
			return 1
		}
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
