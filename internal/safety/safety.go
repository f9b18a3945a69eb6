// Package safety scores drafted protocol text against a denylist of high-risk terms.
package safety

import "strings"

// Evaluator is a pure, deterministic safety scorer.
type Evaluator struct {
	denylist []string
	degraded float64
	baseline float64
}

// NewEvaluator creates an evaluator. Terms are matched case-insensitively as substrings.
func NewEvaluator(denylist []string, degraded, baseline float64) *Evaluator {
	terms := make([]string, 0, len(denylist))
	for _, t := range denylist {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return &Evaluator{denylist: terms, degraded: degraded, baseline: baseline}
}

// Evaluate returns the degraded score if text contains any denylisted term,
// otherwise the baseline score.
func (e *Evaluator) Evaluate(text string) float64 {
	lower := strings.ToLower(text)
	for _, term := range e.denylist {
		if strings.Contains(lower, term) {
			return e.degraded
		}
	}
	return e.baseline
}
