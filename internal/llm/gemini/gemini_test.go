package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/llm"
)

func TestProvider_ImplementsInterface(t *testing.T) {
	var _ llm.Provider = (*Provider)(nil)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(nil, "model")
	assert.Error(t, err)
	_, err = New([]string{" "}, "model")
	assert.Error(t, err)
}

func TestNew_DefaultModel(t *testing.T) {
	p, err := New([]string{"k"}, "")
	require.NoError(t, err)
	assert.Equal(t, defaultModel, p.model)
	assert.Equal(t, 10, p.policy.MaxAttempts)
	assert.Equal(t, 60*time.Second, p.policy.MaxDelay)
}

func TestChat_StructuredOutputAndKeyRotation(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)
		key := r.Header.Get("x-goog-api-key")
		keys = append(keys, key)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		if key == "k1" {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
			return
		}
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"headline\":\"Gold up\"}"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":5}}`))
	}))
	defer srv.Close()

	rotations := 0
	var slept []time.Duration
	p, err := New([]string{"k1", "k2"}, "gemini-test",
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithSleep(func(ctx context.Context, d time.Duration) error { slept = append(slept, d); return nil }),
		WithRotateHook(func() { rotations++ }),
	)
	require.NoError(t, err)

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"headline": map[string]any{"type": "string"},
		},
	}
	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		SystemPrompt: "You are a gold analyst.",
		Messages:     []llm.Message{{Role: "user", Content: "analyze"}},
		Schema:       schema,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"headline":"Gold up"}`, resp.Content)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.OutputTokens)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, []string{"k1", "k2"}, keys)
	assert.Equal(t, 1, rotations)
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)

	gen, ok := body["generationConfig"].(map[string]any)
	require.True(t, ok, "generationConfig sent")
	assert.Equal(t, "application/json", gen["responseMimeType"])
	assert.Contains(t, gen, "responseJsonSchema")
	assert.Contains(t, body, "systemInstruction")
}

func TestChat_NonQuotaErrorStops(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad schema","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	p, err := New([]string{"k1", "k2"}, "m", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = p.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Role: "user", Content: "x"}}})
	assert.ErrorIs(t, err, core.ErrLLMFailed)
	assert.Equal(t, 1, calls)
}

func TestClientCachedPerKey(t *testing.T) {
	p, err := New([]string{"k1", "k2"}, "m")
	require.NoError(t, err)
	ctx := context.Background()

	a, err := p.client(ctx, "k1")
	require.NoError(t, err)
	b, err := p.client(ctx, "k1")
	require.NoError(t, err)
	c, err := p.client(ctx, "k2")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestBuildRequest_Roles(t *testing.T) {
	p, err := New([]string{"k"}, "m")
	require.NoError(t, err)

	contents, config := p.buildRequest(llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "user", Content: "q"},
			{Role: "assistant", Content: "a"},
		},
		JSONMode:  true,
		MaxTokens: 256,
	})
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "application/json", config.ResponseMIMEType)
	assert.Nil(t, config.ResponseJsonSchema)
	assert.Equal(t, int32(256), config.MaxOutputTokens)
	assert.Nil(t, config.SystemInstruction)
}
