package metrics

import (
	"net/http"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware returns middleware that records HTTP metrics.
func HTTPMiddleware(reg *Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reg.InFlightInc()
			defer reg.InFlightDec()

			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			reg.RecordRequest(r.Method, r.URL.Path, rw.statusCode, duration)
		})
	}
}

// transport counts outbound requests per host.
type transport struct {
	reg  *Registry
	base http.RoundTripper
}

// Transport wraps base so every outbound request is counted in
// aurum_outbound_requests_total. A nil base means http.DefaultTransport.
func Transport(reg *Registry, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{reg: reg, base: base}
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.reg.RecordOutbound(req.URL.Host, 0)
		return nil, err
	}
	t.reg.RecordOutbound(req.URL.Host, resp.StatusCode)
	return resp, nil
}

// Client returns an *http.Client with the counting transport and timeout.
func Client(reg *Registry, timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: Transport(reg, nil)}
}
