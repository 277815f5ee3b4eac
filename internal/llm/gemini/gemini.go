// Package gemini implements llm.Provider over the Gemini API with native
// JSON-schema output.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/newthinker/aurum/internal/llm"
)

const defaultModel = "gemini-2.0-flash"

// Provider implements the LLM interface for Gemini.
type Provider struct {
	ring       *llm.KeyRing
	model      string
	baseURL    string
	httpClient *http.Client
	policy     llm.RetryPolicy
	sleep      llm.SleepFunc
	onRotate   func()
	logger     *zap.Logger

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at another endpoint.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithHTTPClient replaces the HTTP client used by every key.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithRetryPolicy overrides the quota retry budget.
func WithRetryPolicy(policy llm.RetryPolicy) Option {
	return func(p *Provider) { p.policy = policy }
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep llm.SleepFunc) Option {
	return func(p *Provider) { p.sleep = sleep }
}

// WithRotateHook is called after every key rotation.
func WithRotateHook(fn func()) Option {
	return func(p *Provider) { p.onRotate = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates a Gemini provider over one or more API keys.
func New(keys []string, model string, opts ...Option) (*Provider, error) {
	ring := llm.NewKeyRing(keys...)
	if ring.Len() == 0 {
		return nil, fmt.Errorf("API key required")
	}
	if model == "" {
		model = defaultModel
	}
	p := &Provider{
		ring:    ring,
		model:   model,
		policy:  llm.RetryPolicy{MaxAttempts: 10, BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second},
		sleep:   llm.Sleep,
		logger:  zap.NewNop(),
		clients: make(map[string]*genai.Client),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "gemini"
}

// client returns the cached client for key.
func (p *Provider) client(ctx context.Context, key string) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	cc := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	p.clients[key] = c
	return c, nil
}

// Chat sends a chat request to the Gemini API, rotating keys on quota
// errors.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	contents, config := p.buildRequest(req)

	onRotate := func() {
		p.logger.Warn("gemini quota hit, rotating key", zap.Int("keys", p.ring.Len()))
		if p.onRotate != nil {
			p.onRotate()
		}
	}
	return llm.WithKeyRotation(ctx, p.ring, p.policy, p.sleep, onRotate,
		func(ctx context.Context, key string) (*llm.ChatResponse, error) {
			c, err := p.client(ctx, key)
			if err != nil {
				return nil, err
			}
			resp, err := c.Models.GenerateContent(ctx, p.model, contents, config)
			if err != nil {
				return nil, fmt.Errorf("gemini API error: %w", err)
			}
			return toResponse(resp)
		})
}

func (p *Provider) buildRequest(req llm.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.JSONMode || req.Schema != nil {
		config.ResponseMIMEType = "application/json"
	}
	if req.Schema != nil {
		config.ResponseJsonSchema = req.Schema
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}
	return contents, config
}

func toResponse(resp *genai.GenerateContentResponse) (*llm.ChatResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}
	out := &llm.ChatResponse{
		Content:      resp.Text(),
		FinishReason: string(resp.Candidates[0].FinishReason),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
		}
	}
	return out, nil
}
