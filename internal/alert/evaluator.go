// Package alert raises ops alerts when health metrics break a rule for
// long enough.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers an alert at most once per key.
type Notifier interface {
	Notify(ctx context.Context, key, text string) (bool, map[string]error)
}

// Evaluator evaluates alert rules and sends notifications.
type Evaluator struct {
	notifier Notifier
	cooldown time.Duration
	logger   *zap.Logger

	// pending holds the time each rule started matching.
	pending map[string]time.Time
	// lastFired backs the cooldown.
	lastFired map[string]time.Time

	now func() time.Time

	mu sync.Mutex
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCooldown sets the minimum gap between two firings of one rule.
func WithCooldown(d time.Duration) Option {
	return func(e *Evaluator) { e.cooldown = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator creates a new alert evaluator.
func NewEvaluator(n Notifier, opts ...Option) *Evaluator {
	e := &Evaluator{
		notifier:  n,
		cooldown:  time.Hour,
		logger:    zap.NewNop(),
		pending:   make(map[string]time.Time),
		lastFired: make(map[string]time.Time),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks one rule against metrics and notifies when it has held
// for rule.For and is out of cooldown. It reports whether the rule fired;
// a firing whose every channel failed does not count.
func (e *Evaluator) Evaluate(ctx context.Context, rule Rule, metrics map[string]float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if !rule.Evaluate(metrics) {
		delete(e.pending, rule.Name)
		return false
	}

	if rule.For > 0 {
		since, ok := e.pending[rule.Name]
		if !ok {
			e.pending[rule.Name] = now
			return false
		}
		if now.Sub(since) < rule.For {
			return false
		}
	}

	if last, ok := e.lastFired[rule.Name]; ok && now.Sub(last) < e.cooldown {
		return false
	}

	msg := rule.FormatMessage(metrics)
	key := fmt.Sprintf("health:%s:%d", rule.Name, now.Unix())
	sent, errs := e.notifier.Notify(ctx, key, msg)
	for ch, err := range errs {
		e.logger.Warn("health alert delivery failed", zap.String("rule", rule.Name), zap.String("channel", ch), zap.Error(err))
	}
	if !sent && len(errs) > 0 {
		return false
	}

	e.logger.Warn("health alert fired", zap.String("rule", rule.Name), zap.String("message", msg))
	e.lastFired[rule.Name] = now
	delete(e.pending, rule.Name)
	return true
}

// EvaluateAll evaluates every rule and returns the names that fired.
func (e *Evaluator) EvaluateAll(ctx context.Context, rules []Rule, metrics map[string]float64) []string {
	var fired []string
	for _, rule := range rules {
		if e.Evaluate(ctx, rule, metrics) {
			fired = append(fired, rule.Name)
		}
	}
	return fired
}
