package pipeline

import (
	"context"
	"fmt"
	"log"
)

// Phase is a node of the step graph.
type Phase string

const (
	PhaseDrafting       Phase = "drafting"
	PhaseSafetyChecking Phase = "safety_checking"
	PhaseCritiquing     Phase = "critiquing"
	PhaseDeciding       Phase = "deciding"
	PhaseDone           Phase = "done"
)

// phaseTransitions holds the fixed edges of the graph. Deciding is routed by
// decisionTransitions instead.
var phaseTransitions = map[Phase]Phase{
	PhaseDrafting:       PhaseSafetyChecking,
	PhaseSafetyChecking: PhaseCritiquing,
	PhaseCritiquing:     PhaseDeciding,
}

var decisionTransitions = map[Decision]Phase{
	DecisionRevise:   PhaseDrafting,
	DecisionHalt:     PhaseDone,
	DecisionFinalize: PhaseDone,
}

// NextPhase returns the phase that follows from, using decision only when leaving
// PhaseDeciding.
func NextPhase(from Phase, decision Decision) (Phase, error) {
	if from == PhaseDeciding {
		next, ok := decisionTransitions[decision]
		if !ok {
			return "", fmt.Errorf("unknown decision %q", decision)
		}
		return next, nil
	}

	next, ok := phaseTransitions[from]
	if !ok {
		return "", fmt.Errorf("no transition from phase %q", from)
	}
	return next, nil
}

// Observer is called at cycle boundaries. An error from either hook stops the run
// and is returned unchanged from Machine.Run.
type Observer interface {
	// BeforeDraft runs before every drafting pass.
	BeforeDraft(ctx context.Context, s *State) error
	// AfterDecision runs after every supervisor decision, including the terminal one.
	AfterDecision(ctx context.Context, s *State, d Decision) error
}

// NopObserver ignores every hook.
type NopObserver struct{}

func (NopObserver) BeforeDraft(context.Context, *State) error             { return nil }
func (NopObserver) AfterDecision(context.Context, *State, Decision) error { return nil }

// Machine drives a State through the step graph until the supervisor finalizes or halts.
type Machine struct {
	drafter *Drafter
	scorer  Scorer
	critic  Critic
	policy  Policy
}

// NewMachine creates a machine. The policy must be valid.
func NewMachine(drafter *Drafter, scorer Scorer, critic Critic, policy Policy) (*Machine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid supervisor policy: %w", err)
	}
	return &Machine{drafter: drafter, scorer: scorer, critic: critic, policy: policy}, nil
}

// Policy returns the supervisor policy in use.
func (m *Machine) Policy() Policy {
	return m.policy
}

// Run executes cycles on s until a terminal decision and returns it.
// s is mutated in place; on error it holds the state of the last completed step.
func (m *Machine) Run(ctx context.Context, s *State, obs Observer) (Decision, error) {
	if obs == nil {
		obs = NopObserver{}
	}

	phase := PhaseDrafting
	var decision Decision

	for phase != PhaseDone {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		switch phase {
		case PhaseDrafting:
			if err := obs.BeforeDraft(ctx, s); err != nil {
				return "", err
			}
			if err := m.drafter.Draft(ctx, s); err != nil {
				return "", err
			}

		case PhaseSafetyChecking:
			CheckSafety(m.scorer, s)

		case PhaseCritiquing:
			score, note, err := m.critic.Critique(ctx, s.DraftText)
			if err != nil {
				return "", fmt.Errorf("critique at iteration %d: %w", s.Iteration, err)
			}
			if score < 0 || score > 1 {
				return "", fmt.Errorf("critique at iteration %d: empathy score %v out of range", s.Iteration, score)
			}
			s.EmpathyScore = score
			s.AddNote(AgentCritic, note)

		case PhaseDeciding:
			decision = m.policy.Decide(s.Iteration, s.SafetyScore)
			s.AddNote(AgentSupervisor, fmt.Sprintf("Decision: %s at iteration %d", decision, s.Iteration))
			log.Printf("[Pipeline] Request %s: %s at iteration %d (safety=%s)",
				s.RequestID, decision, s.Iteration, formatScore(s.SafetyScore))
			if err := obs.AfterDecision(ctx, s, decision); err != nil {
				return "", err
			}
		}

		next, err := NextPhase(phase, decision)
		if err != nil {
			return "", err
		}
		phase = next
	}

	return decision, nil
}
