// Package blackboard provides type-safe Go definitions and Redis schema patterns
// for the foundry blackboard. The blackboard is the append-only, versioned record of
// workflow state that every foundry component (runner, lifecycle controller, live
// feed, CLI) reads and writes through a Redis-backed client.
//
// All Redis keys and channels are namespaced by instance name so several foundry
// instances can share one Redis server.
package blackboard

import (
	"fmt"

	"github.com/google/uuid"
)

// Request is one user-initiated workflow instance (a protocol request).
type Request struct {
	ID          string        `json:"id"`            // UUID assigned at creation
	UserIntent  string        `json:"user_intent"`   // Immutable input text
	Status      RequestStatus `json:"status"`        // Current lifecycle status
	CreatedAtMs int64         `json:"created_at_ms"` // Unix timestamp in milliseconds
}

// RequestStatus is the lifecycle status of a request.
type RequestStatus string

const (
	// RequestStatusPending is the status of a request that has been created but not yet started
	RequestStatusPending RequestStatus = "pending"

	// RequestStatusRunning indicates a run is scheduled or in flight
	RequestStatusRunning RequestStatus = "running"

	// RequestStatusHalted indicates the workflow stopped without finalizing (operator halt or iteration ceiling)
	RequestStatusHalted RequestStatus = "halted"

	// RequestStatusDeclined is absorbing: a human rejected the protocol
	RequestStatusDeclined RequestStatus = "declined"

	// RequestStatusApproved is absorbing: a human accepted the final text
	RequestStatusApproved RequestStatus = "approved"

	// RequestStatusCompleted indicates a run finalized and awaits human review
	RequestStatusCompleted RequestStatus = "completed"
)

// AllRequestStatuses lists every valid status in lifecycle order.
var AllRequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusRunning,
	RequestStatusHalted,
	RequestStatusDeclined,
	RequestStatusApproved,
	RequestStatusCompleted,
}

// VersionKind discriminates machine checkpoints from human events on the blackboard.
type VersionKind string

const (
	// VersionKindMachine is a checkpoint written by the runner
	VersionKindMachine VersionKind = "machine"

	// VersionKindHumanFeedback is a rerun seed carrying reviewer feedback
	VersionKindHumanFeedback VersionKind = "human_feedback"

	// VersionKindHumanApprove records human approval of the final text
	VersionKindHumanApprove VersionKind = "human_approve"

	// VersionKindHumanDecline records a human decline with its reason
	VersionKindHumanDecline VersionKind = "human_decline"
)

// Note is one entry of the append-only audit trail carried by every version.
type Note struct {
	Agent   string `json:"agent"`
	Message string `json:"message"`
}

// Version is one immutable snapshot of workflow state for a request.
// Versions of a request form a strictly increasing, gap-tolerant sequence; the
// highest version is the current state.
type Version struct {
	RequestID    string      `json:"request_id"`
	Version      int         `json:"version"` // 0 asks the store to assign latest+1
	Kind         VersionKind `json:"kind"`
	DraftText    string      `json:"draft_text"`
	SafetyScore  float64     `json:"safety_score"`
	EmpathyScore float64     `json:"empathy_score"`
	Iteration    int         `json:"iteration"` // Number of drafting passes so far
	Notes        []Note      `json:"notes"`
	Finalized    bool        `json:"finalized"` // True only for the version that ends the workflow
	CreatedAtMs  int64       `json:"created_at_ms"`
}

// RunJob is a unit of background work for the runner.
// ResumeVersion is zero for a fresh run, otherwise the version number of the seed state.
type RunJob struct {
	RequestID     string `json:"request_id"`
	UserIntent    string `json:"user_intent"`
	ResumeVersion int    `json:"resume_version,omitempty"`
}

// Validate checks if the RequestStatus is a valid enum value.
func (s RequestStatus) Validate() error {
	switch s {
	case RequestStatusPending, RequestStatusRunning, RequestStatusHalted,
		RequestStatusDeclined, RequestStatusApproved, RequestStatusCompleted:
		return nil
	default:
		return fmt.Errorf("unknown request status: %q", s)
	}
}

// IsAbsorbing reports whether no further runs or transitions are permitted.
func (s RequestStatus) IsAbsorbing() bool {
	return s == RequestStatusApproved || s == RequestStatusDeclined
}

// Validate checks if the VersionKind is a valid enum value.
func (k VersionKind) Validate() error {
	switch k {
	case VersionKindMachine, VersionKindHumanFeedback, VersionKindHumanApprove, VersionKindHumanDecline:
		return nil
	default:
		return fmt.Errorf("unknown version kind: %q", k)
	}
}

// Validate checks if the Request has valid field values.
func (r *Request) Validate() error {
	if !isValidUUID(r.ID) {
		return fmt.Errorf("invalid request ID: not a valid UUID")
	}

	if r.UserIntent == "" {
		return fmt.Errorf("user intent cannot be empty")
	}

	if err := r.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	return nil
}

// Validate checks if the Version has valid field values.
// Version 0 is accepted and means "assign the next number".
func (v *Version) Validate() error {
	if !isValidUUID(v.RequestID) {
		return fmt.Errorf("invalid request ID: not a valid UUID")
	}

	if v.Version < 0 {
		return fmt.Errorf("invalid version: must be >= 0, got %d", v.Version)
	}

	if err := v.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid kind: %w", err)
	}

	if v.SafetyScore < 0 || v.SafetyScore > 1 {
		return fmt.Errorf("safety score out of range [0,1]: %v", v.SafetyScore)
	}

	if v.EmpathyScore < 0 || v.EmpathyScore > 1 {
		return fmt.Errorf("empathy score out of range [0,1]: %v", v.EmpathyScore)
	}

	if v.Iteration < 0 {
		return fmt.Errorf("invalid iteration: must be >= 0, got %d", v.Iteration)
	}

	// Only a machine finalize or a human approval may end the workflow
	if v.Finalized && v.Kind != VersionKindMachine && v.Kind != VersionKindHumanApprove {
		return fmt.Errorf("%s version cannot be finalized", v.Kind)
	}

	for i, n := range v.Notes {
		if n.Agent == "" {
			return fmt.Errorf("note %d: agent cannot be empty", i)
		}
	}

	return nil
}

// CloneNotes returns a copy of the notes so a new version can extend them
// without aliasing the previous version's slice.
func CloneNotes(notes []Note) []Note {
	out := make([]Note, len(notes), len(notes)+4)
	copy(out, notes)
	return out
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
