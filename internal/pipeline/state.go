// Package pipeline implements the fixed draft → safety → critique → supervisor step
// graph as an explicit state machine over an in-memory working state.
package pipeline

import (
	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// Agent names recorded on notes.
const (
	AgentDrafter    = "drafter"
	AgentSafety     = "safety"
	AgentCritic     = "critic"
	AgentSupervisor = "supervisor"
	AgentHuman      = "human"
)

// State is the working copy of a request's blackboard state during a run.
// It is owned by a single run and never shared.
type State struct {
	RequestID    string
	UserIntent   string
	DraftText    string
	SafetyScore  float64
	EmpathyScore float64
	Iteration    int
	Notes        []blackboard.Note
}

// NewState returns a fresh state for a first run.
func NewState(requestID, userIntent string) *State {
	return &State{
		RequestID:  requestID,
		UserIntent: userIntent,
		Notes:      []blackboard.Note{},
	}
}

// FromVersion seeds a working state from a stored version. Notes are copied so
// the stored version is never aliased.
func FromVersion(v *blackboard.Version, userIntent string) *State {
	return &State{
		RequestID:    v.RequestID,
		UserIntent:   userIntent,
		DraftText:    v.DraftText,
		SafetyScore:  v.SafetyScore,
		EmpathyScore: v.EmpathyScore,
		Iteration:    v.Iteration,
		Notes:        blackboard.CloneNotes(v.Notes),
	}
}

// AddNote appends one entry to the audit trail.
func (s *State) AddNote(agent, message string) {
	s.Notes = append(s.Notes, blackboard.Note{Agent: agent, Message: message})
}

// ToVersion snapshots the state as a new version of the given kind.
// The version number is left for the caller to set.
func (s *State) ToVersion(kind blackboard.VersionKind, finalized bool) *blackboard.Version {
	return &blackboard.Version{
		RequestID:    s.RequestID,
		Kind:         kind,
		DraftText:    s.DraftText,
		SafetyScore:  s.SafetyScore,
		EmpathyScore: s.EmpathyScore,
		Iteration:    s.Iteration,
		Notes:        blackboard.CloneNotes(s.Notes),
		Finalized:    finalized,
	}
}
