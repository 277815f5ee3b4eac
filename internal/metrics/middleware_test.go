package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMiddleware_OpsRoutes(t *testing.T) {
	reg := NewRegistry()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/signals/latest", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no signal", http.StatusNotFound)
	})
	mux.HandleFunc("POST /api/jobs/{name}/run", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	h := HTTPMiddleware(reg)(mux)

	tests := []struct {
		method, path string
		wantCode     int
		wantStatus   string
	}{
		{"GET", "/api/health", http.StatusOK, "2xx"},
		{"GET", "/api/signals/latest", http.StatusNotFound, "4xx"},
		{"POST", "/api/jobs/daily_report/run", http.StatusAccepted, "2xx"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		if w.Code != tt.wantCode {
			t.Errorf("%s %s: code %d, want %d", tt.method, tt.path, w.Code, tt.wantCode)
		}
		if got := testutil.ToFloat64(reg.httpRequestsTotal.WithLabelValues(tt.method, tt.path, tt.wantStatus)); got != 1 {
			t.Errorf("%s %s: requests{status=%s} = %v, want 1", tt.method, tt.path, tt.wantStatus, got)
		}
	}

	if n := testutil.CollectAndCount(reg.httpRequestDuration); n != len(tests) {
		t.Errorf("duration series = %d, want %d", n, len(tests))
	}
}

func TestHTTPMiddleware_TracksInFlight(t *testing.T) {
	reg := NewRegistry()

	during := float64(-1)
	h := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(reg.httpRequestsInFlight)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/status", nil))

	if during != 1 {
		t.Errorf("in-flight during request = %v, want 1", during)
	}
	if after := testutil.ToFloat64(reg.httpRequestsInFlight); after != 0 {
		t.Errorf("in-flight after request = %v, want 0", after)
	}
}

func TestHTTPMiddleware_NilRegistry(t *testing.T) {
	h := HTTPMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("expected 418 through a nil registry, got %d", w.Code)
	}
}

func TestClient_UsesCountingTransport(t *testing.T) {
	c := Client(NewRegistry(), 0)
	if _, ok := c.Transport.(*transport); !ok {
		t.Fatalf("transport = %T, want *metrics.transport", c.Transport)
	}
}
