package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/api/job"
	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/metrics"
	"github.com/newthinker/aurum/internal/scheduler"
	"github.com/newthinker/aurum/internal/store"
)

func newTestServer(t *testing.T, apiKey string) (*Server, *store.DB, chan struct{}) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "api.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ran := make(chan struct{}, 1)
	sched := scheduler.New(zap.NewNop())
	require.NoError(t, sched.Add(scheduler.Job{Name: "scan_news", Run: func(context.Context) error {
		ran <- struct{}{}
		return nil
	}}))

	srv, err := NewServer(Config{Host: "localhost", Port: 0, APIKey: apiKey}, Dependencies{
		Store:     db,
		Scheduler: sched,
		Metrics:   metrics.NewRegistry(),
		Symbol:    "XAUUSD",
		Version:   "test",
	}, zap.NewNop())
	require.NoError(t, err)
	return srv, db, ran
}

func do(srv *Server, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv, _, _ := newTestServer(t, "test-key")

	w := do(srv, "GET", "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServer_APIAuth_Required(t *testing.T) {
	srv, _, _ := newTestServer(t, "test-key")

	assert.Equal(t, http.StatusUnauthorized, do(srv, "GET", "/api/status", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(srv, "GET", "/api/status", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(srv, "GET", "/api/status", "test-key").Code)
}

func TestServer_Status(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	w := do(srv, "GET", "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data statusBody `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "XAUUSD", resp.Data.Symbol)
	require.Len(t, resp.Data.Jobs, 1)
	assert.Equal(t, "scan_news", resp.Data.Jobs[0].Name)
}

func TestServer_LatestSignal(t *testing.T) {
	srv, db, _ := newTestServer(t, "")

	w := do(srv, "GET", "/api/signals/latest", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NO_DATA")

	_, err := db.SaveSignal(context.Background(), store.TradeSignal{
		Symbol: "XAUUSD", Type: core.SignalBuy, Source: core.SourceNews, Score: 7,
	})
	require.NoError(t, err)

	w = do(srv, "GET", "/api/signals/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Type":"BUY"`)
}

func TestServer_OpenTradesEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	w := do(srv, "GET", "/api/trades/open", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestServer_LatestReportMissing(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	assert.Equal(t, http.StatusNotFound, do(srv, "GET", "/api/reports/latest", "").Code)
}

func TestServer_RunJob(t *testing.T) {
	srv, _, ran := newTestServer(t, "")

	w := do(srv, "POST", "/api/jobs/scan_news/run", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		Data job.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
	require.Eventually(t, func() bool {
		run, err := srv.runs.Get(resp.Data.ID)
		return err == nil && run.Status == job.StatusComplete
	}, 2*time.Second, 10*time.Millisecond)

	w = do(srv, "GET", "/api/jobs/runs/"+resp.Data.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusNotFound, do(srv, "POST", "/api/jobs/unknown/run", "").Code)
	assert.Equal(t, http.StatusNotFound, do(srv, "GET", "/api/jobs/runs/nope", "").Code)
}

func TestServer_Metrics(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	do(srv, "GET", "/api/health", "")

	w := do(srv, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "http_requests_total"))
}

func TestNewServer_RequiresStore(t *testing.T) {
	_, err := NewServer(Config{}, Dependencies{}, nil)
	assert.Error(t, err)
}
