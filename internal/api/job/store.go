// Package job tracks manually triggered scheduler runs so a caller can
// poll their outcome.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or evicted run ids.
var ErrNotFound = errors.New("job: run not found")

// Status represents run status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped" // the job was already running
)

// Run is one manual trigger of a scheduler job.
type Run struct {
	ID         string     `json:"id"`
	Job        string     `json:"job"`
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Store keeps the most recent runs in memory.
type Store struct {
	mu      sync.RWMutex
	runs    map[string]*Run
	order   []string // insertion order for eviction
	maxSize int
	now     func() time.Time
}

// NewStore creates a store holding at most maxSize runs.
func NewStore(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Store{
		runs:    make(map[string]*Run),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Create records a pending run of jobName.
func (s *Store) Create(jobName string) Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Run{
		ID:        uuid.NewString(),
		Job:       jobName,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if len(s.runs) >= s.maxSize && len(s.order) > 0 {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
	s.runs[r.ID] = r
	s.order = append(s.order, r.ID)
	return *r
}

// Get returns a copy of the run.
func (s *Store) Get(id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return *r, nil
}

// Start marks a run as running.
func (s *Store) Start(id string) error {
	return s.update(id, func(r *Run) { r.Status = StatusRunning })
}

// Finish records the outcome of a run. skipped marks a trigger that found
// the job already running.
func (s *Store) Finish(id string, err error, skipped bool) error {
	return s.update(id, func(r *Run) {
		at := s.now().UTC()
		r.FinishedAt = &at
		switch {
		case skipped:
			r.Status = StatusSkipped
		case err != nil:
			r.Status = StatusFailed
			r.Error = err.Error()
		default:
			r.Status = StatusComplete
		}
	})
}

func (s *Store) update(id string, fn func(*Run)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return ErrNotFound
	}
	fn(r)
	return nil
}

// List returns the runs newest first.
func (s *Store) List() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, *s.runs[s.order[i]])
	}
	return out
}
