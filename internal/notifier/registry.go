package notifier

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/metrics"
)

// Registry manages notifier instances and fans messages out to all of
// them.
type Registry struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier

	dedupe   Deduper
	dedupTTL time.Duration
	metrics  *metrics.Registry
	logger   *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithDeduper sets the guard used by Notify.
func WithDeduper(d Deduper, ttl time.Duration) Option {
	return func(r *Registry) {
		r.dedupe = d
		if ttl > 0 {
			r.dedupTTL = ttl
		}
	}
}

// WithMetrics records every delivery attempt.
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates a new notifier registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		notifiers: make(map[string]Notifier),
		dedupe:    NewMemoryDeduper(),
		dedupTTL:  48 * time.Hour,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a notifier to the registry
func (r *Registry) Register(n Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := n.Name()
	if _, exists := r.notifiers[name]; exists {
		return fmt.Errorf("notifier %s already registered", name)
	}

	r.notifiers[name] = n
	return nil
}

// Get retrieves a notifier by name
func (r *Registry) Get(name string) (Notifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, exists := r.notifiers[name]
	if !exists {
		return nil, fmt.Errorf("notifier %s not found", name)
	}
	return n, nil
}

// GetAll returns all registered notifiers sorted by name.
func (r *Registry) GetAll() []Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Notifier, 0, len(r.notifiers))
	for _, n := range r.notifiers {
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Len reports how many channels are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.notifiers)
}

// NotifyAll sends a message to all registered notifiers
func (r *Registry) NotifyAll(ctx context.Context, text string) map[string]error {
	return r.fanOut(func(n Notifier) error { return n.SendMessage(ctx, text) })
}

// PhotoAll sends a photo to all registered notifiers. An empty URL sends
// the caption as a plain message.
func (r *Registry) PhotoAll(ctx context.Context, photoURL, caption string) map[string]error {
	if photoURL == "" {
		return r.NotifyAll(ctx, caption)
	}
	return r.fanOut(func(n Notifier) error { return n.SendPhoto(ctx, photoURL, caption) })
}

func (r *Registry) fanOut(send func(Notifier) error) map[string]error {
	errs := make(map[string]error)
	for _, n := range r.GetAll() {
		status := "ok"
		if err := send(n); err != nil {
			errs[n.Name()] = err
			status = "error"
			r.logger.Warn("notification failed", zap.String("channel", n.Name()), zap.Error(err))
		}
		r.metrics.RecordNotification(n.Name(), status)
	}
	return errs
}

// Notify sends text once per key. It returns false without sending when
// the key was already claimed. When every channel fails the claim is
// released so a later tick can retry.
func (r *Registry) Notify(ctx context.Context, key, text string) (bool, map[string]error) {
	return r.once(ctx, key, func() map[string]error { return r.NotifyAll(ctx, text) })
}

// NotifyPhoto is Notify for a photo with caption.
func (r *Registry) NotifyPhoto(ctx context.Context, key, photoURL, caption string) (bool, map[string]error) {
	return r.once(ctx, key, func() map[string]error { return r.PhotoAll(ctx, photoURL, caption) })
}

func (r *Registry) once(ctx context.Context, key string, send func() map[string]error) (bool, map[string]error) {
	if r.Len() == 0 {
		return false, nil
	}
	claimed, err := r.dedupe.Claim(ctx, key, r.dedupTTL)
	if err != nil {
		r.logger.Warn("dedupe claim failed, sending anyway", zap.String("key", key), zap.Error(err))
		claimed = true
	}
	if !claimed {
		r.logger.Debug("notification already sent", zap.String("key", key))
		return false, nil
	}

	errs := send()
	if len(errs) == r.Len() {
		if err := r.dedupe.Release(ctx, key); err != nil {
			r.logger.Warn("dedupe release failed", zap.String("key", key), zap.Error(err))
		}
		return false, errs
	}
	return true, errs
}
