package metrics

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("expected non-nil registry")
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	// Should have go runtime metrics at minimum
	if len(mfs) == 0 {
		t.Error("expected some metrics to be registered")
	}
}

func TestRegistry_RecordRequest_StatusCodes(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			reg := NewRegistry()
			reg.RecordRequest("GET", "/api/status", tt.status, 0.01)

			got := testutil.ToFloat64(reg.httpRequestsTotal.WithLabelValues("GET", "/api/status", tt.expected))
			if got != 1 {
				t.Errorf("expected one request with status %s, got %v", tt.expected, got)
			}
		})
	}
}

func TestRegistry_InFlight(t *testing.T) {
	reg := NewRegistry()

	reg.InFlightInc()
	reg.InFlightInc()
	reg.InFlightDec()

	if got := testutil.ToFloat64(reg.httpRequestsInFlight); got != 1 {
		t.Errorf("expected in-flight gauge to be 1, got %v", got)
	}
}

func TestRegistry_BusinessMetrics(t *testing.T) {
	reg := NewRegistry()

	reg.RecordJobRun("realtime_alert", "ok", 1.5)
	reg.RecordJobRun("realtime_alert", "ok", 0.5)
	reg.RecordJobSkipped("scan_news")
	reg.RecordArticle("Kitco")
	reg.RecordOrder("NEWS_FAST", "SUCCESS")
	reg.RecordLLMRequest("gemini", "error")
	reg.RecordKeyRotation("gemini")
	reg.RecordNotification("telegram", "sent")
	reg.SetOpenTrades(3)

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"job runs", reg.jobRuns.WithLabelValues("realtime_alert", "ok"), 2},
		{"job skipped", reg.jobSkipped.WithLabelValues("scan_news"), 1},
		{"articles", reg.articlesIngested.WithLabelValues("Kitco"), 1},
		{"orders", reg.orders.WithLabelValues("NEWS_FAST", "SUCCESS"), 1},
		{"llm requests", reg.llmRequests.WithLabelValues("gemini", "error"), 1},
		{"key rotations", reg.llmKeyRotations.WithLabelValues("gemini"), 1},
		{"notifications", reg.notifications.WithLabelValues("telegram", "sent"), 1},
		{"open trades", reg.openTrades, 3},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, got)
		}
	}
}

func TestRegistry_NilSafe(t *testing.T) {
	var reg *Registry

	// Should not panic
	reg.RecordRequest("GET", "/", 200, 0.1)
	reg.RecordJobRun("x", "ok", 1)
	reg.RecordJobSkipped("x")
	reg.RecordOrder("NEWS_FAST", "FAIL")
	reg.SetOpenTrades(1)
	reg.RecordOutbound("example.com", 200)
}

func TestTransport_CountsByHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewRegistry()
	client := &http.Client{Transport: Transport(reg, nil)}

	for _, path := range []string{"/ok", "/ok", "/missing"} {
		resp, err := client.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
	}

	u, _ := url.Parse(srv.URL)
	if got := testutil.ToFloat64(reg.outboundRequests.WithLabelValues(u.Host, "2xx")); got != 2 {
		t.Errorf("expected 2 successful requests, got %v", got)
	}
	if got := testutil.ToFloat64(reg.outboundRequests.WithLabelValues(u.Host, "4xx")); got != 1 {
		t.Errorf("expected 1 not-found request, got %v", got)
	}
}

func TestTransport_TransportError(t *testing.T) {
	reg := NewRegistry()
	client := Client(reg, 0)

	_, err := client.Get("http://127.0.0.1:1/unreachable")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if got := testutil.ToFloat64(reg.outboundRequests.WithLabelValues("127.0.0.1:1", "error")); got != 1 {
		t.Errorf("expected one transport error, got %v", got)
	}
}

// Ensure the registry implements prometheus.Gatherer interface
func TestRegistry_ImplementsGatherer(t *testing.T) {
	reg := NewRegistry()
	var _ prometheus.Gatherer = reg
}
