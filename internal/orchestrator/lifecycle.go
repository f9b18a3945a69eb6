package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/Keerthana203/cerina-foundry/internal/pipeline"
	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// Statuses from which a reviewer may still act. Approved and declined are absorbing.
var openStatuses = []blackboard.RequestStatus{
	blackboard.RequestStatusPending,
	blackboard.RequestStatusRunning,
	blackboard.RequestStatusHalted,
	blackboard.RequestStatusCompleted,
}

// Halt only applies before a run has produced a result.
var haltableStatuses = []blackboard.RequestStatus{
	blackboard.RequestStatusPending,
	blackboard.RequestStatusRunning,
	blackboard.RequestStatusHalted,
}

// RequestState is a request together with its current version.
type RequestState struct {
	Request *blackboard.Request `json:"request"`
	Latest  *blackboard.Version `json:"latest,omitempty"` // nil until the first version is written
}

// Controller implements the start / halt / approve / decline / rerun lifecycle.
// Every status change is an atomic compare-and-set in the store.
type Controller struct {
	client     *blackboard.Client
	dispatcher Dispatcher
}

// NewController creates a controller that hands runs to dispatcher.
func NewController(client *blackboard.Client, dispatcher Dispatcher) *Controller {
	return &Controller{client: client, dispatcher: dispatcher}
}

// Start creates a request for intent, marks it running and dispatches a fresh run.
// It returns as soon as the run is handed off.
func (c *Controller) Start(ctx context.Context, intent string) (string, error) {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return "", fmt.Errorf("%w: user intent is empty", ErrInvalidInput)
	}

	req, err := c.client.CreateRequest(ctx, intent, blackboard.RequestStatusPending)
	if err != nil {
		return "", err
	}

	if _, err := c.client.TransitionStatus(ctx, req.ID, blackboard.RequestStatusRunning, blackboard.RequestStatusPending); err != nil {
		return "", translateStoreError(req.ID, err)
	}

	if err := c.dispatcher.Dispatch(ctx, blackboard.RunJob{RequestID: req.ID, UserIntent: intent}); err != nil {
		return req.ID, fmt.Errorf("failed to dispatch run for request %s: %w", req.ID, err)
	}

	c.logEvent("request_started", map[string]interface{}{
		"request_id": req.ID,
	})
	return req.ID, nil
}

// Halt marks the request halted. An in-flight run notices at its next cycle
// boundary and stops. No version is written.
func (c *Controller) Halt(ctx context.Context, requestID string) error {
	prev, err := c.client.TransitionStatus(ctx, requestID, blackboard.RequestStatusHalted, haltableStatuses...)
	if err != nil {
		return translateStoreError(requestID, err)
	}

	c.logEvent("request_halted", map[string]interface{}{
		"request_id":      requestID,
		"previous_status": string(prev),
	})
	return nil
}

// Approve accepts finalText as the final protocol, or the latest draft when
// finalText is empty, and closes the request.
func (c *Controller) Approve(ctx context.Context, requestID, finalText string) (*blackboard.Version, error) {
	latest, err := c.latest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(finalText) == "" {
		if latest == nil || strings.TrimSpace(latest.DraftText) == "" {
			return nil, fmt.Errorf("%w: no final text and no draft to approve", ErrInvalidInput)
		}
		finalText = latest.DraftText
	}

	v := humanVersion(requestID, latest, blackboard.VersionKindHumanApprove, "Approved: final text accepted")
	v.DraftText = finalText
	v.Finalized = true

	if err := c.appendWithStatus(ctx, v, blackboard.RequestStatusApproved); err != nil {
		return nil, err
	}

	c.logEvent("request_approved", map[string]interface{}{
		"request_id": requestID,
		"version":    v.Version,
	})
	return v, nil
}

// Decline closes the request with reason. The recorded version has an empty draft.
func (c *Controller) Decline(ctx context.Context, requestID, reason string) (*blackboard.Version, error) {
	latest, err := c.latest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	message := "Declined"
	if reason = strings.TrimSpace(reason); reason != "" {
		message = "Declined: " + reason
	}

	v := humanVersion(requestID, latest, blackboard.VersionKindHumanDecline, message)
	v.DraftText = ""
	v.SafetyScore = 0
	v.EmpathyScore = 0

	if err := c.appendWithStatus(ctx, v, blackboard.RequestStatusDeclined); err != nil {
		return nil, err
	}

	c.logEvent("request_declined", map[string]interface{}{
		"request_id": requestID,
		"version":    v.Version,
	})
	return v, nil
}

// Rerun seeds a new run from the latest version plus the reviewer's feedback.
// It is refused for approved or declined requests and while another run still
// holds the request's run lock. Returns the seed version.
func (c *Controller) Rerun(ctx context.Context, requestID, feedback string) (*blackboard.Version, error) {
	req, err := c.client.GetRequest(ctx, requestID)
	if err != nil {
		return nil, translateStoreError(requestID, err)
	}
	if req.Status.IsAbsorbing() {
		return nil, fmt.Errorf("%w: request %s is %s", ErrInvalidTransition, requestID, req.Status)
	}

	held, err := c.client.RunLockHeld(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if held {
		return nil, fmt.Errorf("%w: request %s has a run in progress", ErrInvalidTransition, requestID)
	}

	latest, err := c.latest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	message := "Rerun requested"
	if feedback = strings.TrimSpace(feedback); feedback != "" {
		message = "Feedback: " + feedback
	}

	seed := humanVersion(requestID, latest, blackboard.VersionKindHumanFeedback, message)
	if err := c.appendWithStatus(ctx, seed, blackboard.RequestStatusRunning); err != nil {
		return nil, err
	}

	job := blackboard.RunJob{RequestID: requestID, UserIntent: req.UserIntent, ResumeVersion: seed.Version}
	if err := c.dispatcher.Dispatch(ctx, job); err != nil {
		return seed, fmt.Errorf("failed to dispatch rerun for request %s: %w", requestID, err)
	}

	c.logEvent("request_rerun", map[string]interface{}{
		"request_id":     requestID,
		"resume_version": seed.Version,
	})
	return seed, nil
}

// State returns the request and its latest version.
func (c *Controller) State(ctx context.Context, requestID string) (*RequestState, error) {
	req, err := c.client.GetRequest(ctx, requestID)
	if err != nil {
		return nil, translateStoreError(requestID, err)
	}

	latest, err := c.client.LatestVersion(ctx, requestID)
	if err != nil && !blackboard.IsNotFound(err) {
		return nil, err
	}

	return &RequestState{Request: req, Latest: latest}, nil
}

// History returns every version of the request in version order.
func (c *Controller) History(ctx context.Context, requestID string) ([]*blackboard.Version, error) {
	if _, err := c.client.GetRequest(ctx, requestID); err != nil {
		return nil, translateStoreError(requestID, err)
	}
	return c.client.VersionsAfter(ctx, requestID, 0)
}

// latest returns the latest version, nil when none exists, or ErrNotFound for an
// unknown request.
func (c *Controller) latest(ctx context.Context, requestID string) (*blackboard.Version, error) {
	if _, err := c.client.GetRequest(ctx, requestID); err != nil {
		return nil, translateStoreError(requestID, err)
	}

	latest, err := c.client.LatestVersion(ctx, requestID)
	if err != nil {
		if blackboard.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return latest, nil
}

// appendWithStatus writes v with the next free version number and moves the
// request to status in the same step, from any non-absorbing status.
func (c *Controller) appendWithStatus(ctx context.Context, v *blackboard.Version, status blackboard.RequestStatus) error {
	v.Version = 0
	if _, err := c.client.AppendVersionWithStatus(ctx, v, status, openStatuses...); err != nil && v.Version == 0 {
		return translateStoreError(v.RequestID, err)
	}
	return nil
}

// humanVersion carries the latest state forward with one human note appended.
func humanVersion(requestID string, latest *blackboard.Version, kind blackboard.VersionKind, message string) *blackboard.Version {
	v := &blackboard.Version{
		RequestID: requestID,
		Kind:      kind,
		Notes:     []blackboard.Note{},
	}
	if latest != nil {
		v.DraftText = latest.DraftText
		v.SafetyScore = latest.SafetyScore
		v.EmpathyScore = latest.EmpathyScore
		v.Iteration = latest.Iteration
		v.Notes = blackboard.CloneNotes(latest.Notes)
	}
	v.Notes = append(v.Notes, blackboard.Note{Agent: pipeline.AgentHuman, Message: message})
	return v
}

func (c *Controller) logEvent(eventType string, data map[string]interface{}) {
	logEvent("controller", c.client.InstanceName(), eventType, data)
}
