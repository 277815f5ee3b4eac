// Package api serves the ops HTTP surface: health, job status, the latest
// signal and report, open trades and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/api/job"
	"github.com/newthinker/aurum/internal/api/middleware"
	"github.com/newthinker/aurum/internal/api/response"
	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/metrics"
	"github.com/newthinker/aurum/internal/scheduler"
	"github.com/newthinker/aurum/internal/store"
)

// Store is the read side of the database the endpoints expose.
type Store interface {
	Ping(ctx context.Context) error
	LatestValidSignal(ctx context.Context, symbol string, ttl time.Duration) (*store.TradeSignal, error)
	OpenTrades(ctx context.Context) ([]store.Trade, error)
	LatestReport(ctx context.Context) (*store.Report, error)
}

// Scheduler exposes job state and manual triggers.
type Scheduler interface {
	Snapshot() []scheduler.JobState
	RunNow(ctx context.Context, name string) error
}

// Dependencies are the components the handlers read from. Scheduler and
// Metrics may be nil.
type Dependencies struct {
	Store     Store
	Scheduler Scheduler
	Metrics   *metrics.Registry
	Symbol    string
	SignalTTL time.Duration
	Version   string
}

// Server represents the ops HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	deps       Dependencies
	runs       *job.Store
	started    time.Time
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	APIKey      string
	MetricsPath string
}

// NewServer creates the server and its routes.
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Store == nil {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("api: store is required"))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if deps.SignalTTL <= 0 {
		deps.SignalTTL = time.Hour
	}

	mux := http.NewServeMux()
	s := &Server{
		logger:  logger,
		mux:     mux,
		deps:    deps,
		runs:    job.NewStore(100),
		started: time.Now().UTC(),
	}
	s.setupRoutes(cfg)

	handler := metrics.HTTPMiddleware(deps.Metrics)(metrics.LoggingMiddleware(logger)(mux))
	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes(cfg Config) {
	auth := middleware.APIKeyAuth(cfg.APIKey)
	protect := func(h http.HandlerFunc) http.Handler { return auth(h) }

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.Handle("GET /api/status", protect(s.handleStatus))
	s.mux.Handle("GET /api/signals/latest", protect(s.handleLatestSignal))
	s.mux.Handle("GET /api/trades/open", protect(s.handleOpenTrades))
	s.mux.Handle("GET /api/reports/latest", protect(s.handleLatestReport))
	s.mux.Handle("POST /api/jobs/{name}/run", protect(s.handleRunJob))
	s.mux.Handle("GET /api/jobs/runs", protect(s.handleListRuns))
	s.mux.Handle("GET /api/jobs/runs/{id}", protect(s.handleGetRun))

	if s.deps.Metrics != nil {
		s.mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(s.deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		response.Error(w, http.StatusServiceUnavailable, core.WrapError(core.ErrStoreFailed, err))
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusBody struct {
	Version string               `json:"version,omitempty"`
	Symbol  string               `json:"symbol"`
	Started time.Time            `json:"started"`
	Jobs    []scheduler.JobState `json:"jobs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := statusBody{
		Version: s.deps.Version,
		Symbol:  s.deps.Symbol,
		Started: s.started,
		Jobs:    []scheduler.JobState{},
	}
	if s.deps.Scheduler != nil {
		body.Jobs = s.deps.Scheduler.Snapshot()
	}
	response.JSON(w, http.StatusOK, body)
}

func (s *Server) handleLatestSignal(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = s.deps.Symbol
	}
	sig, err := s.deps.Store.LatestValidSignal(r.Context(), symbol, s.deps.SignalTTL)
	if err != nil {
		response.Error(w, 0, err)
		return
	}
	if sig == nil {
		response.Error(w, http.StatusNotFound, core.WrapError(core.ErrNoData, fmt.Errorf("no valid signal for %s", symbol)))
		return
	}
	response.JSON(w, http.StatusOK, sig)
}

func (s *Server) handleOpenTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.deps.Store.OpenTrades(r.Context())
	if err != nil {
		response.Error(w, 0, err)
		return
	}
	if trades == nil {
		trades = []store.Trade{}
	}
	response.JSON(w, http.StatusOK, trades)
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.deps.Store.LatestReport(r.Context())
	if err != nil {
		response.Error(w, 0, err)
		return
	}
	if rep == nil {
		response.Error(w, http.StatusNotFound, core.WrapError(core.ErrNoData, errors.New("no report yet")))
		return
	}
	response.JSON(w, http.StatusOK, rep)
}

// handleRunJob triggers a job in the background and returns the run to
// poll.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if s.deps.Scheduler == nil || !s.hasJob(name) {
		response.Error(w, http.StatusNotFound, core.WrapError(core.ErrNoData, fmt.Errorf("unknown job %q", name)))
		return
	}

	run := s.runs.Create(name)
	ctx := context.WithoutCancel(r.Context())
	go func() {
		s.runs.Start(run.ID)
		err := s.deps.Scheduler.RunNow(ctx, name)
		s.runs.Finish(run.ID, err, errors.Is(err, scheduler.ErrBusy))
	}()
	response.JSON(w, http.StatusAccepted, run)
}

func (s *Server) hasJob(name string) bool {
	for _, st := range s.deps.Scheduler.Snapshot() {
		if st.Name == name {
			return true
		}
	}
	return false
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, s.runs.List())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Get(r.PathValue("id"))
	if err != nil {
		response.Error(w, http.StatusNotFound, core.WrapError(core.ErrNoData, err))
		return
	}
	response.JSON(w, http.StatusOK, run)
}
