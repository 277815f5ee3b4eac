package claude

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/llm"
)

// Provider implements the LLM interface for Claude/Anthropic.
type Provider struct {
	ring       *llm.KeyRing
	model      string
	baseURL    string
	httpClient *http.Client
	policy     llm.RetryPolicy
	sleep      llm.SleepFunc
	onRotate   func()
	logger     *zap.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

// WithHTTPClient replaces the HTTP client.
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

// New creates a new Claude provider.
func New(keys []string, model string, opts ...Option) (*Provider, error) {
	ring := llm.NewKeyRing(keys...)
	if ring.Len() == 0 {
		return nil, fmt.Errorf("API key required")
	}
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	p := &Provider{
		ring:   ring,
		model:  model,
		policy: llm.RetryPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second},
		sleep:  llm.Sleep,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "claude"
}

func (p *Provider) client(key string) anthropic.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		// quota retries are driven by the key ring
		option.WithMaxRetries(0),
	}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(p.httpClient))
	}
	return anthropic.NewClient(opts...)
}

// Chat sends a chat request to the Claude API.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	params := p.buildParams(req)

	onRotate := func() {
		p.logger.Warn("claude quota hit, rotating key", zap.Int("keys", p.ring.Len()))
		if p.onRotate != nil {
			p.onRotate()
		}
	}
	return llm.WithKeyRotation(ctx, p.ring, p.policy, p.sleep, onRotate,
		func(ctx context.Context, key string) (*llm.ChatResponse, error) {
			c := p.client(key)
			resp, err := c.Messages.New(ctx, params)
			if err != nil {
				return nil, fmt.Errorf("claude API error: %w", err)
			}

			var text strings.Builder
			for _, block := range resp.Content {
				if block.Type == "text" {
					text.WriteString(block.Text)
				}
			}
			return &llm.ChatResponse{
				Content: text.String(),
				Usage: llm.Usage{
					InputTokens:  int(resp.Usage.InputTokens),
					OutputTokens: int(resp.Usage.OutputTokens),
				},
				FinishReason: string(resp.StopReason),
			}, nil
		})
}

func (p *Provider) buildParams(req llm.ChatRequest) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, len(req.Messages))
	for i, m := range req.Messages {
		if m.Role == "assistant" {
			messages[i] = anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content))
		} else {
			messages[i] = anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}

	system := req.SystemPrompt
	if req.Schema != nil {
		if system != "" {
			system += "\n\n"
		}
		system += llm.SchemaInstruction(req.Schema)
	} else if req.JSONMode {
		if system != "" {
			system += "\n\n"
		}
		system += "Respond with a single JSON object and nothing else."
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}
