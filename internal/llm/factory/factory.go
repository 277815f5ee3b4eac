package factory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/config"
	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/llm"
	"github.com/newthinker/aurum/internal/llm/claude"
	"github.com/newthinker/aurum/internal/llm/gemini"
	"github.com/newthinker/aurum/internal/llm/openai"
	"github.com/newthinker/aurum/internal/metrics"
)

// New creates an LLM provider based on configuration. It returns
// core.ErrLLMDisabled when the selected backend has no API keys.
func New(cfg config.AIConfig, logger *zap.Logger, reg *metrics.Registry) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pc, ok := providerConfig(cfg)
	if !ok {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown LLM provider: %s", cfg.Provider))
	}
	if llm.NewKeyRing(pc.APIKeys...).Len() == 0 {
		return nil, core.WrapError(core.ErrLLMDisabled, fmt.Errorf("no API keys for %s", cfg.Provider))
	}

	name := cfg.Provider
	rotate := func() { reg.RecordKeyRotation(name) }
	log := logger.With(zap.String("provider", name))
	timeout := pc.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	httpClient := &http.Client{Timeout: timeout, Transport: metrics.Transport(reg, nil)}

	var (
		p   llm.Provider
		err error
	)
	switch name {
	case "gemini":
		opts := []gemini.Option{
			gemini.WithBaseURL(pc.BaseURL),
			gemini.WithHTTPClient(httpClient),
			gemini.WithLogger(log),
			gemini.WithRotateHook(rotate),
		}
		if policy, ok := overridePolicy(pc, 10, 60*time.Second); ok {
			opts = append(opts, gemini.WithRetryPolicy(policy))
		}
		p, err = gemini.New(pc.APIKeys, pc.Model, opts...)
	case "openai", "groq":
		maxDelay := 60 * time.Second
		ctor := openai.New
		if name == "groq" {
			maxDelay = 20 * time.Second
			ctor = openai.NewGroq
		}
		opts := []openai.Option{
			openai.WithBaseURL(pc.BaseURL),
			openai.WithHTTPClient(httpClient),
			openai.WithLogger(log),
			openai.WithRotateHook(rotate),
		}
		if policy, ok := overridePolicy(pc, 5, maxDelay); ok {
			opts = append(opts, openai.WithRetryPolicy(policy))
		}
		p, err = ctor(pc.APIKeys, pc.Model, opts...)
	case "claude":
		opts := []claude.Option{
			claude.WithBaseURL(pc.BaseURL),
			claude.WithHTTPClient(httpClient),
			claude.WithLogger(log),
			claude.WithRotateHook(rotate),
		}
		if policy, ok := overridePolicy(pc, 5, 60*time.Second); ok {
			opts = append(opts, claude.WithRetryPolicy(policy))
		}
		p, err = claude.New(pc.APIKeys, pc.Model, opts...)
	}
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}

	logger.Info("llm provider ready", zap.String("provider", name), zap.Int("keys", len(pc.APIKeys)))
	return &instrumented{Provider: p, reg: reg}, nil
}

func providerConfig(cfg config.AIConfig) (config.ProviderConfig, bool) {
	switch cfg.Provider {
	case "gemini":
		return cfg.Gemini, true
	case "openai":
		return cfg.OpenAI, true
	case "groq":
		return cfg.Groq, true
	case "claude":
		return cfg.Claude, true
	default:
		return config.ProviderConfig{}, false
	}
}

// overridePolicy builds a policy only when the config sets attempts or
// backoff; otherwise the backend keeps its own defaults.
func overridePolicy(pc config.ProviderConfig, attempts int, maxDelay time.Duration) (llm.RetryPolicy, bool) {
	if pc.MaxAttempts <= 0 && pc.MaxBackoff <= 0 {
		return llm.RetryPolicy{}, false
	}
	if pc.MaxAttempts > 0 {
		attempts = pc.MaxAttempts
	}
	if pc.MaxBackoff > 0 {
		maxDelay = pc.MaxBackoff
	}
	return llm.RetryPolicy{MaxAttempts: attempts, BaseDelay: 2 * time.Second, MaxDelay: maxDelay}, true
}

// instrumented counts every Chat call by outcome.
type instrumented struct {
	llm.Provider
	reg *metrics.Registry
}

func (i *instrumented) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := i.Provider.Chat(ctx, req)
	status := "ok"
	switch {
	case errors.Is(err, core.ErrLLMQuota):
		status = "quota"
	case err != nil:
		status = "error"
	}
	i.reg.RecordLLMRequest(i.Provider.Name(), status)
	return resp, err
}
