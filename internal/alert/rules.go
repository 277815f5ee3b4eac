package alert

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/aurum/internal/config"
	"github.com/newthinker/aurum/internal/core"
)

var exprPattern = regexp.MustCompile(`^(\w+)\s*(>=|<=|==|!=|>|<)\s*(-?[\d.]+)$`)

// Rule defines an alert rule.
type Rule struct {
	Name     string
	Expr     string
	For      time.Duration
	Severity string
	Message  string

	metric    string
	op        string
	threshold float64
}

// Compile parses Expr. Rules must be compiled before evaluation.
func (r *Rule) Compile() error {
	m := exprPattern.FindStringSubmatch(strings.TrimSpace(r.Expr))
	if len(m) != 4 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("rule %q: expression %q must be \"metric op value\"", r.Name, r.Expr))
	}
	v, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("rule %q: %w", r.Name, err))
	}
	r.metric, r.op, r.threshold = m[1], m[2], v
	return nil
}

// Metric returns the metric the rule reads.
func (r *Rule) Metric() string { return r.metric }

// Evaluate reports whether the rule holds for metrics. A missing metric
// never matches.
func (r *Rule) Evaluate(metrics map[string]float64) bool {
	value, ok := metrics[r.metric]
	if !ok || r.metric == "" {
		return false
	}

	switch r.op {
	case ">":
		return value > r.threshold
	case "<":
		return value < r.threshold
	case ">=":
		return value >= r.threshold
	case "<=":
		return value <= r.threshold
	case "==":
		return value == r.threshold
	case "!=":
		return value != r.threshold
	default:
		return false
	}
}

// FormatMessage renders the alert text with the observed value.
func (r *Rule) FormatMessage(metrics map[string]float64) string {
	return fmt.Sprintf("[%s] %s: %s (%s = %s)",
		strings.ToUpper(r.Severity), r.Name, r.Message,
		r.metric, strconv.FormatFloat(metrics[r.metric], 'f', -1, 64))
}

// RulesFrom compiles the configured rules.
func RulesFrom(cfg []config.HealthRule) ([]Rule, error) {
	rules := make([]Rule, 0, len(cfg))
	for _, c := range cfg {
		r := Rule{Name: c.Name, Expr: c.Expr, For: c.For, Severity: c.Severity, Message: c.Message}
		if r.Severity == "" {
			r.Severity = "warning"
		}
		if err := r.Compile(); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
