package openai

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/llm"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// Provider implements the LLM interface for OpenAI and OpenAI-compatible
// endpoints.
type Provider struct {
	name       string
	ring       *llm.KeyRing
	model      string
	baseURL    string
	httpClient *http.Client
	policy     llm.RetryPolicy
	sleep      llm.SleepFunc
	onRotate   func()
	logger     *zap.Logger

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the client at another OpenAI-compatible endpoint.
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

// New creates a new OpenAI provider.
func New(keys []string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return newProvider("openai", keys, model, llm.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
	}, opts...)
}

// NewGroq creates a provider for Groq's OpenAI-compatible API. Groq quotas
// reset quickly, so backoff is capped at 20 s.
func NewGroq(keys []string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	opts = append([]Option{WithBaseURL(GroqBaseURL)}, opts...)
	return newProvider("groq", keys, model, llm.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    20 * time.Second,
	}, opts...)
}

func newProvider(name string, keys []string, model string, policy llm.RetryPolicy, opts ...Option) (*Provider, error) {
	ring := llm.NewKeyRing(keys...)
	if ring.Len() == 0 {
		return nil, fmt.Errorf("API key required")
	}
	p := &Provider{
		name:    name,
		ring:    ring,
		model:   model,
		policy:  policy,
		sleep:   llm.Sleep,
		logger:  zap.NewNop(),
		clients: make(map[string]*openai.Client),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.name
}

// client returns the cached client for key.
func (p *Provider) client(key string) *openai.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c
	}
	cfg := openai.DefaultConfig(key)
	if p.baseURL != "" {
		cfg.BaseURL = p.baseURL
	}
	if p.httpClient != nil {
		cfg.HTTPClient = p.httpClient
	}
	c := openai.NewClientWithConfig(cfg)
	p.clients[key] = c
	return c
}

// Chat sends a chat request, rotating keys on quota errors.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	chatReq := p.buildRequest(req)

	onRotate := func() {
		p.logger.Warn("quota hit, rotating key", zap.String("provider", p.name), zap.Int("keys", p.ring.Len()))
		if p.onRotate != nil {
			p.onRotate()
		}
	}
	return llm.WithKeyRotation(ctx, p.ring, p.policy, p.sleep, onRotate,
		func(ctx context.Context, key string) (*llm.ChatResponse, error) {
			resp, err := p.client(key).CreateChatCompletion(ctx, chatReq)
			if err != nil {
				return nil, fmt.Errorf("%s API error: %w", p.name, err)
			}
			return toResponse(resp), nil
		})
}

func (p *Provider) buildRequest(req llm.ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	system := req.SystemPrompt
	if req.Schema != nil {
		if system != "" {
			system += "\n\n"
		}
		system += llm.SchemaInstruction(req.Schema)
	}
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	}
	if req.JSONMode || req.Schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return chatReq
}

func toResponse(resp openai.ChatCompletionResponse) *llm.ChatResponse {
	out := &llm.ChatResponse{
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
		out.FinishReason = string(resp.Choices[0].FinishReason)
	}
	return out
}
