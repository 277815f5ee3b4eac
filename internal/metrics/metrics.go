package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics. Every recording method is safe on
// a nil *Registry so components can run without metrics wired.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business metrics
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobSkipped       *prometheus.CounterVec
	articlesIngested *prometheus.CounterVec
	orders           *prometheus.CounterVec
	llmRequests      *prometheus.CounterVec
	llmKeyRotations  *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	openTrades       prometheus.Gauge
	outboundRequests *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Business metrics
	r.jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_job_runs_total",
			Help: "Total number of scheduled job runs",
		},
		[]string{"job", "status"},
	)
	r.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aurum_job_duration_seconds",
			Help:    "Job run duration in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 900},
		},
		[]string{"job"},
	)
	r.jobSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_job_skipped_total",
			Help: "Ticks skipped because the previous run of the family was still active",
		},
		[]string{"job"},
	)
	r.articlesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_articles_ingested_total",
			Help: "Total number of new articles stored",
		},
		[]string{"source"},
	)
	r.orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_orders_total",
			Help: "Total number of order attempts",
		},
		[]string{"mode", "result"},
	)
	r.llmRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_llm_requests_total",
			Help: "Total number of LLM requests",
		},
		[]string{"provider", "status"},
	)
	r.llmKeyRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_llm_key_rotations_total",
			Help: "Total number of API key rotations after quota errors",
		},
		[]string{"provider"},
	)
	r.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_notifications_total",
			Help: "Total number of outbound notifications",
		},
		[]string{"channel", "status"},
	)
	r.openTrades = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aurum_open_trades",
			Help: "Number of trades currently OPEN in the store",
		},
	)
	r.outboundRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_outbound_requests_total",
			Help: "Total number of outbound HTTP requests",
		},
		[]string{"host", "status"},
	)

	reg.MustRegister(r.jobRuns)
	reg.MustRegister(r.jobDuration)
	reg.MustRegister(r.jobSkipped)
	reg.MustRegister(r.articlesIngested)
	reg.MustRegister(r.orders)
	reg.MustRegister(r.llmRequests)
	reg.MustRegister(r.llmKeyRotations)
	reg.MustRegister(r.notifications)
	reg.MustRegister(r.openTrades)
	reg.MustRegister(r.outboundRequests)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	if r == nil {
		return
	}
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Dec()
}

// RecordJobRun records a finished job run; status is "ok", "error" or "panic".
func (r *Registry) RecordJobRun(job, status string, duration float64) {
	if r == nil {
		return
	}
	r.jobRuns.WithLabelValues(job, status).Inc()
	r.jobDuration.WithLabelValues(job).Observe(duration)
}

// RecordJobSkipped records a tick dropped because the family was busy.
func (r *Registry) RecordJobSkipped(job string) {
	if r == nil {
		return
	}
	r.jobSkipped.WithLabelValues(job).Inc()
}

// RecordArticle records one stored article.
func (r *Registry) RecordArticle(source string) {
	if r == nil {
		return
	}
	r.articlesIngested.WithLabelValues(source).Inc()
}

// RecordOrder records an order attempt.
func (r *Registry) RecordOrder(mode, result string) {
	if r == nil {
		return
	}
	r.orders.WithLabelValues(mode, result).Inc()
}

// RecordLLMRequest records one provider call.
func (r *Registry) RecordLLMRequest(provider, status string) {
	if r == nil {
		return
	}
	r.llmRequests.WithLabelValues(provider, status).Inc()
}

// RecordKeyRotation records a key rotation.
func (r *Registry) RecordKeyRotation(provider string) {
	if r == nil {
		return
	}
	r.llmKeyRotations.WithLabelValues(provider).Inc()
}

// RecordNotification records a delivery attempt on a channel.
func (r *Registry) RecordNotification(channel, status string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(channel, status).Inc()
}

// SetOpenTrades sets the open trades gauge.
func (r *Registry) SetOpenTrades(n int) {
	if r == nil {
		return
	}
	r.openTrades.Set(float64(n))
}

// RecordOutbound records an outbound HTTP request. Status 0 means a
// transport error.
func (r *Registry) RecordOutbound(host string, status int) {
	if r == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = statusToString(status)
	}
	r.outboundRequests.WithLabelValues(host, label).Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
