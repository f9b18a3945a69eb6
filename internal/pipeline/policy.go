package pipeline

import "fmt"

// Decision is the supervisor's verdict after each cycle.
type Decision string

const (
	DecisionRevise   Decision = "revise"
	DecisionHalt     Decision = "halt"
	DecisionFinalize Decision = "finalize"
)

// IsTerminal reports whether the decision ends the run.
func (d Decision) IsTerminal() bool {
	return d == DecisionHalt || d == DecisionFinalize
}

// Policy holds the supervisor's constants.
type Policy struct {
	// MinRevisions is the number of revisions required after the first draft
	// before any exit is allowed.
	MinRevisions    int
	SafetyThreshold float64
	MaxIterations   int
}

// DefaultPolicy returns min 1 revision, threshold 0.8 and at most 5 iterations.
func DefaultPolicy() Policy {
	return Policy{MinRevisions: 1, SafetyThreshold: 0.8, MaxIterations: 5}
}

// Validate rejects policies that could not terminate.
func (p Policy) Validate() error {
	if p.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be >= 1, got %d", p.MaxIterations)
	}
	if p.MinRevisions < 0 {
		return fmt.Errorf("min revisions must be >= 0, got %d", p.MinRevisions)
	}
	if p.SafetyThreshold < 0 || p.SafetyThreshold > 1 {
		return fmt.Errorf("safety threshold must be in [0,1], got %v", p.SafetyThreshold)
	}
	return nil
}

// Decide returns the supervisor decision for the state after a full cycle.
//
// The revision floor is checked first, then the safety gate, then the ceiling.
// The ceiling overrides both: at MaxIterations the run never revises again, and an
// unsafe draft halts there instead of finalizing.
func (p Policy) Decide(iteration int, safetyScore float64) Decision {
	atCeiling := iteration >= p.MaxIterations

	if iteration <= p.MinRevisions && !atCeiling {
		return DecisionRevise
	}

	if safetyScore < p.SafetyThreshold {
		if atCeiling {
			return DecisionHalt
		}
		return DecisionRevise
	}

	if atCeiling {
		return DecisionHalt
	}

	return DecisionFinalize
}
