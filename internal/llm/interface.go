package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider defines the interface for LLM providers
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest holds the request parameters
type ChatRequest struct {
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	Temperature  float64
	JSONMode     bool
	// Schema is a JSON-schema object describing the expected reply.
	// Backends with native structured output enforce it; the others
	// receive it as an instruction in the system prompt.
	Schema map[string]any
}

// Message represents a chat message
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// ChatResponse holds the response from the LLM
type ChatResponse struct {
	Content      string
	Usage        Usage
	FinishReason string
}

// Usage tracks token consumption
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Generate sends a single user prompt and returns the raw reply text. A
// non-nil schema switches the request into JSON mode.
func Generate(ctx context.Context, p Provider, prompt string, schema map[string]any) (string, error) {
	resp, err := p.Chat(ctx, ChatRequest{
		Messages:    []Message{{Role: "user", Content: prompt}},
		MaxTokens:   2048,
		Temperature: 0.3,
		JSONMode:    schema != nil,
		Schema:      schema,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// SchemaInstruction renders schema as a prompt suffix for backends that
// cannot enforce it natively.
func SchemaInstruction(schema map[string]any) string {
	if schema == nil {
		return ""
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return "Respond with a single JSON object and nothing else."
	}
	return fmt.Sprintf("Respond with a single JSON object and nothing else. It must match this JSON schema: %s", raw)
}
