// Package scheduler fires jobs on wall-clock schedules with one-minute
// granularity. Each job family runs at most once at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/metrics"
)

// ErrBusy is returned by RunNow while the job is already running.
var ErrBusy = errors.New("scheduler: job already running")

// Job is a named unit of work.
type Job struct {
	Name     string
	Schedule Schedule
	Run      func(ctx context.Context) error
	// Interval is the soft deadline: a run that takes longer logs a
	// warning. Zero disables the warning.
	Interval time.Duration
}

// JobState is a point-in-time view of one job.
type JobState struct {
	Name         string        `json:"name"`
	Running      bool          `json:"running"`
	Runs         int64         `json:"runs"`
	Skips        int64         `json:"skips"`
	Failures     int64         `json:"failures"`
	Streak       int64         `json:"streak"` // consecutive failures
	LastStart    time.Time     `json:"last_start,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
}

type entry struct {
	job     Job
	running atomic.Bool

	mu    sync.Mutex
	state JobState
}

// Scheduler owns the job table and the minute loop.
type Scheduler struct {
	mu      sync.RWMutex
	jobs    []*entry
	byName  map[string]*entry
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Registry
	tracer  trace.Tracer
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock injects the clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLocation sets the zone schedules are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// WithMetrics records job runs and skips.
func WithMetrics(m *metrics.Registry) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithTracer opens one span per run.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) { s.tracer = t }
}

// New creates an empty Scheduler.
func New(logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		byName: make(map[string]*entry),
		loc:    time.Local,
		now:    time.Now,
		logger: logger,
		tracer: noop.NewTracerProvider().Tracer("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(j Job) error {
	if j.Name == "" || j.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a run func")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[j.Name]; exists {
		return fmt.Errorf("scheduler: job %s already registered", j.Name)
	}
	e := &entry{job: j, state: JobState{Name: j.Name}}
	s.jobs = append(s.jobs, e)
	s.byName[j.Name] = e
	return nil
}

// Start ticks on every minute boundary until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)), zap.String("location", s.loc.String()))
	for {
		now := s.now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopping")
			s.Wait()
			return
		case <-timer.C:
			s.Tick(ctx, next)
		}
	}
}

// Tick dispatches every job due at t. Each due job runs in its own
// goroutine; a job whose previous run is still active is skipped.
func (s *Scheduler) Tick(ctx context.Context, t time.Time) {
	local := t.In(s.loc).Truncate(time.Minute)

	s.mu.RLock()
	jobs := append([]*entry(nil), s.jobs...)
	s.mu.RUnlock()

	for _, e := range jobs {
		if e.job.Schedule == nil || !e.job.Schedule.Due(local) {
			continue
		}
		if !e.running.CompareAndSwap(false, true) {
			s.skip(e)
			continue
		}
		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			s.run(ctx, e)
		}(e)
	}
}

// RunNow runs the named job synchronously through the same overlap guard.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	e, ok := s.byName[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %s", name)
	}
	if !e.running.CompareAndSwap(false, true) {
		s.skip(e)
		return ErrBusy
	}
	s.wg.Add(1)
	defer s.wg.Done()
	return s.run(ctx, e)
}

func (s *Scheduler) skip(e *entry) {
	e.mu.Lock()
	e.state.Skips++
	e.mu.Unlock()
	s.metrics.RecordJobSkipped(e.job.Name)
	s.logger.Warn("previous run still active, skipping tick", zap.String("job", e.job.Name))
}

// run executes one job run. The caller has set e.running.
func (s *Scheduler) run(ctx context.Context, e *entry) (err error) {
	defer e.running.Store(false)

	runID := uuid.NewString()
	name := e.job.Name
	ctx, span := s.tracer.Start(ctx, "job."+name, trace.WithAttributes(
		attribute.String("job", name),
		attribute.String("run_id", runID),
	))
	defer span.End()

	log := s.logger.With(zap.String("job", name), zap.String("run_id", runID))
	start := s.now()
	e.mu.Lock()
	e.state.LastStart = start
	e.mu.Unlock()

	if e.job.Interval > 0 {
		overdue := time.AfterFunc(e.job.Interval, func() {
			log.Warn("job exceeded its interval", zap.Duration("interval", e.job.Interval))
		})
		defer overdue.Stop()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Warn("job panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}

		dur := s.now().Sub(start)
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.RecordJobRun(name, status, dur.Seconds())

		e.mu.Lock()
		e.state.Runs++
		e.state.LastDuration = dur
		e.state.LastError = ""
		if err != nil {
			e.state.Failures++
			e.state.Streak++
			e.state.LastError = err.Error()
		} else {
			e.state.Streak = 0
		}
		e.mu.Unlock()

		if err != nil {
			log.Warn("job failed", zap.Duration("duration", dur), zap.Error(err))
		} else {
			log.Debug("job finished", zap.Duration("duration", dur))
		}
	}()

	log.Debug("job started")
	return e.job.Run(ctx)
}

// Snapshot returns the state of every job in registration order.
func (s *Scheduler) Snapshot() []JobState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobState, len(s.jobs))
	for i, e := range s.jobs {
		e.mu.Lock()
		st := e.state
		e.mu.Unlock()
		st.Running = e.running.Load()
		out[i] = st
	}
	return out
}

// Wait blocks until every dispatched run has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
