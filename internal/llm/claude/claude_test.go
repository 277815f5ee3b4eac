package claude

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/aurum/internal/llm"
)

func TestProvider_ImplementsInterface(t *testing.T) {
	var _ llm.Provider = (*Provider)(nil)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(nil, "model")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestBuildParams_SchemaInSystemPrompt(t *testing.T) {
	p, err := New([]string{"k"}, "")
	require.NoError(t, err)

	params := p.buildParams(llm.ChatRequest{
		SystemPrompt: "You are a gold analyst.",
		Messages:     []llm.Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
		Schema:       map[string]any{"type": "object"},
	})
	require.Len(t, params.System, 1)
	assert.Contains(t, params.System[0].Text, "You are a gold analyst.")
	assert.Contains(t, params.System[0].Text, `{"type":"object"}`)
	assert.Len(t, params.Messages, 2)
	assert.Equal(t, int64(1024), params.MaxTokens)
}

func TestChat_RotatesOnOverload(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Api-Key")
		keys = append(keys, key)
		w.Header().Set("Content-Type", "application/json")
		if key == "k1" {
			w.WriteHeader(529)
			w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
			return
		}
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"{\"ok\":true}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":4,"output_tokens":2}}`))
	}))
	defer srv.Close()

	p, err := New([]string{"k1", "k2"}, "claude-test",
		WithBaseURL(srv.URL),
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil }),
	)
	require.NoError(t, err)

	resp, err := p.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Role: "user", Content: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Content)
	assert.Equal(t, []string{"k1", "k2"}, keys)
}
