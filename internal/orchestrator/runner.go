package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Keerthana203/cerina-foundry/internal/config"
	"github.com/Keerthana203/cerina-foundry/internal/pipeline"
	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// Reasons a run stops before the supervisor reaches a terminal decision.
var (
	errHaltRequested = errors.New("halt requested")
	errRunClosed     = errors.New("request closed by reviewer")
	errLockLost      = errors.New("run lock lost")
	errSuperseded    = errors.New("checkpoint superseded by a newer version")
	errSeedFinalized = errors.New("latest version is already finalized")
)

// Runner executes one workflow run for a request: it guards against duplicate
// execution, drives the step graph and checkpoints the result.
type Runner struct {
	client     *blackboard.Client
	machine    *pipeline.Machine
	checkpoint string
	lockTTL    time.Duration
}

// NewRunner creates a runner. checkpoint is config.CheckpointRun or config.CheckpointCycle.
func NewRunner(client *blackboard.Client, machine *pipeline.Machine, checkpoint string, lockTTL time.Duration) *Runner {
	if checkpoint == "" {
		checkpoint = config.CheckpointRun
	}
	if lockTTL <= 0 {
		lockTTL = 15 * time.Minute
	}
	return &Runner{
		client:     client,
		machine:    machine,
		checkpoint: checkpoint,
		lockTTL:    lockTTL,
	}
}

// Run executes job to a terminal decision. A request that is not running, or whose
// run lock is held by another run, is skipped silently. Generation failures are
// returned without writing any version; the request stays running.
//
// A reviewer rerun that lands while this run holds the lock appends a feedback
// seed the run's checkpoint then conflicts with. The run picks that seed up under
// the same lock, since the rerun's own job is skipped as a duplicate.
func (r *Runner) Run(ctx context.Context, job blackboard.RunJob) error {
	token := uuid.New().String()

	acquired, err := r.client.AcquireRunLock(ctx, job.RequestID, token, r.lockTTL, blackboard.RequestStatusRunning)
	if err != nil {
		return translateStoreError(job.RequestID, err)
	}
	if !acquired {
		r.logEvent("duplicate_execution_skipped", map[string]interface{}{
			"request_id":     job.RequestID,
			"resume_version": job.ResumeVersion,
		})
		return nil
	}
	defer func() {
		// The run context may already be cancelled; release regardless.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.client.ReleaseRunLock(releaseCtx, job.RequestID, token); err != nil {
			log.Printf("[Runner] Failed to release run lock for %s: %v", job.RequestID, err)
		}
	}()

	for {
		next, err := r.execute(ctx, job, token)
		if err != nil || next == 0 {
			return err
		}

		r.logEvent("run_handoff", map[string]interface{}{
			"request_id":     job.RequestID,
			"resume_version": next,
		})
		job.ResumeVersion = next
	}
}

// execute runs the step graph once from the job's seed. It returns the number of
// a feedback seed that superseded the run's checkpoint, or 0 when nothing is left
// to pick up.
func (r *Runner) execute(ctx context.Context, job blackboard.RunJob, token string) (int, error) {
	state, base, err := r.initialState(ctx, job)
	if errors.Is(err, errSeedFinalized) {
		// A previous run finalized but died before completing the request
		if _, err := r.client.TransitionStatus(ctx, job.RequestID, blackboard.RequestStatusCompleted, blackboard.RequestStatusRunning); err != nil {
			log.Printf("[Runner] Request %s already finalized, status not completed: %v", job.RequestID, err)
		}
		return 0, nil
	}
	if err != nil {
		r.logEvent("run_failed", map[string]interface{}{
			"request_id": job.RequestID,
			"stage":      "load",
			"error":      err.Error(),
		})
		return 0, err
	}

	startTime := time.Now()
	r.logEvent("run_started", map[string]interface{}{
		"request_id":     job.RequestID,
		"base_version":   base,
		"iteration":      state.Iteration,
		"checkpoint":     r.checkpoint,
		"resume_version": job.ResumeVersion,
	})

	obs := &runObserver{
		runner:         r,
		token:          token,
		nextVersion:    base + 1,
		startIteration: state.Iteration,
	}

	decision, err := r.machine.Run(ctx, state, obs)
	switch {
	case errors.Is(err, errHaltRequested):
		return 0, r.finishHalted(ctx, state, obs)

	case errors.Is(err, errSuperseded):
		r.logEvent("checkpoint_superseded", map[string]interface{}{
			"request_id": job.RequestID,
			"version":    obs.nextVersion,
		})
		return r.pendingSeed(ctx, job.RequestID, base)

	case errors.Is(err, errRunClosed), errors.Is(err, errLockLost):
		r.logEvent("run_aborted", map[string]interface{}{
			"request_id": job.RequestID,
			"iteration":  state.Iteration,
			"reason":     err.Error(),
		})
		return 0, nil

	case err != nil:
		r.logEvent("run_failed", map[string]interface{}{
			"request_id": job.RequestID,
			"stage":      "pipeline",
			"iteration":  state.Iteration,
			"error":      err.Error(),
		})
		return 0, fmt.Errorf("run for request %s failed: %w", job.RequestID, err)
	}

	finalized := decision == pipeline.DecisionFinalize
	if r.checkpoint == config.CheckpointRun {
		if err := r.writeCheckpoint(ctx, state, obs.nextVersion, finalized); err != nil {
			if errors.Is(err, errSuperseded) {
				r.logEvent("checkpoint_superseded", map[string]interface{}{
					"request_id": job.RequestID,
					"version":    obs.nextVersion,
				})
				return r.pendingSeed(ctx, job.RequestID, base)
			}
			return 0, err
		}
	}

	target := blackboard.RequestStatusHalted
	if finalized {
		target = blackboard.RequestStatusCompleted
	}
	if _, err := r.client.TransitionStatus(ctx, job.RequestID, target, blackboard.RequestStatusRunning); err != nil {
		var mismatch *blackboard.StatusMismatchError
		if !errors.As(err, &mismatch) {
			return 0, fmt.Errorf("failed to set status %s for request %s: %w", target, job.RequestID, err)
		}
		log.Printf("[Runner] Request %s left as %s (run outcome %s)", job.RequestID, mismatch.Current, decision)
	}

	r.logEvent("run_completed", map[string]interface{}{
		"request_id":  job.RequestID,
		"decision":    string(decision),
		"iteration":   state.Iteration,
		"safety":      state.SafetyScore,
		"duration_ms": time.Since(startTime).Milliseconds(),
	})
	log.Printf("[Runner] Request %s: %s after %d iterations (duration: %v)",
		job.RequestID, decision, state.Iteration, time.Since(startTime).Round(time.Millisecond))

	return 0, nil
}

// pendingSeed returns the number of a feedback seed appended after base while the
// request is still running, or 0 when the newer version closed the request.
func (r *Runner) pendingSeed(ctx context.Context, requestID string, base int) (int, error) {
	req, err := r.client.GetRequest(ctx, requestID)
	if err != nil {
		return 0, translateStoreError(requestID, err)
	}
	if req.Status != blackboard.RequestStatusRunning {
		return 0, nil
	}

	latest, err := r.client.LatestVersion(ctx, requestID)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest version of %s: %w", requestID, err)
	}
	if latest.Kind != blackboard.VersionKindHumanFeedback || latest.Version <= base {
		return 0, nil
	}
	return latest.Version, nil
}

// initialState builds the working state and returns the version number the run
// builds on. A fresh job continues from the latest version when the request has
// one, so the notes trail is never restarted. A resume job is moved forward to a
// newer feedback seed when a later rerun already wrote one.
func (r *Runner) initialState(ctx context.Context, job blackboard.RunJob) (*pipeline.State, int, error) {
	intent := job.UserIntent
	if intent == "" {
		req, err := r.client.GetRequest(ctx, job.RequestID)
		if err != nil {
			return nil, 0, translateStoreError(job.RequestID, err)
		}
		intent = req.UserIntent
	}

	latest, err := r.client.LatestVersion(ctx, job.RequestID)
	if err != nil {
		if !blackboard.IsNotFound(err) {
			return nil, 0, err
		}
		latest = nil
	}

	var seed *blackboard.Version
	switch {
	case job.ResumeVersion == 0:
		seed = latest
	case latest != nil && latest.Version > job.ResumeVersion && latest.Kind == blackboard.VersionKindHumanFeedback:
		seed = latest
	default:
		seed, err = r.client.GetVersion(ctx, job.RequestID, job.ResumeVersion)
		if err != nil {
			if blackboard.IsNotFound(err) {
				return nil, 0, fmt.Errorf("resume version %d of request %s not found", job.ResumeVersion, job.RequestID)
			}
			return nil, 0, err
		}
	}

	if seed == nil {
		return pipeline.NewState(job.RequestID, intent), 0, nil
	}
	if seed.Finalized {
		return nil, 0, errSeedFinalized
	}
	return pipeline.FromVersion(seed, intent), seed.Version, nil
}

// finishHalted checkpoints the unfinished work of a run stopped by a reviewer halt.
func (r *Runner) finishHalted(ctx context.Context, state *pipeline.State, obs *runObserver) error {
	cycles := state.Iteration - obs.startIteration

	if r.checkpoint == config.CheckpointRun && cycles > 0 {
		if err := r.writeCheckpoint(ctx, state, obs.nextVersion, false); err != nil && !errors.Is(err, errSuperseded) {
			return err
		}
	}

	r.logEvent("run_halted", map[string]interface{}{
		"request_id": state.RequestID,
		"iteration":  state.Iteration,
		"cycles":     cycles,
	})
	return nil
}

// writeCheckpoint appends the state as a machine version with an explicit number.
// A number at or below the current latest means a human event won; that is
// reported as errSuperseded.
func (r *Runner) writeCheckpoint(ctx context.Context, state *pipeline.State, version int, finalized bool) error {
	v := state.ToVersion(blackboard.VersionKindMachine, finalized)
	v.Version = version

	n, err := r.client.AppendVersion(ctx, v)
	if err != nil {
		if errors.Is(err, blackboard.ErrVersionConflict) {
			return fmt.Errorf("%w: %v", errSuperseded, err)
		}
		if n == 0 {
			return fmt.Errorf("failed to checkpoint request %s: %w", state.RequestID, err)
		}
		// Written, but the event publish failed. Feeds still poll.
		log.Printf("[Runner] Checkpoint %d of %s written without event: %v", n, state.RequestID, err)
	}

	r.logEvent("checkpoint_written", map[string]interface{}{
		"request_id": state.RequestID,
		"version":    version,
		"iteration":  state.Iteration,
		"finalized":  finalized,
	})
	return nil
}

func (r *Runner) logEvent(eventType string, data map[string]interface{}) {
	logEvent("runner", r.client.InstanceName(), eventType, data)
}

// runObserver enforces cooperative cancellation and per-cycle checkpoints.
type runObserver struct {
	runner         *Runner
	token          string
	nextVersion    int
	startIteration int
}

// BeforeDraft re-reads the request status and refreshes the run lock.
func (o *runObserver) BeforeDraft(ctx context.Context, s *pipeline.State) error {
	req, err := o.runner.client.GetRequest(ctx, s.RequestID)
	if err != nil {
		return translateStoreError(s.RequestID, err)
	}

	switch req.Status {
	case blackboard.RequestStatusRunning:
	case blackboard.RequestStatusHalted:
		return errHaltRequested
	default:
		return fmt.Errorf("%w: status is %s", errRunClosed, req.Status)
	}

	ok, err := o.runner.client.RefreshRunLock(ctx, s.RequestID, o.token, o.runner.lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return errLockLost
	}
	return nil
}

// AfterDecision writes one version per cycle in cycle checkpoint mode.
func (o *runObserver) AfterDecision(ctx context.Context, s *pipeline.State, d pipeline.Decision) error {
	if o.runner.checkpoint != config.CheckpointCycle {
		return nil
	}

	if err := o.runner.writeCheckpoint(ctx, s, o.nextVersion, d == pipeline.DecisionFinalize); err != nil {
		return err
	}
	o.nextVersion++
	return nil
}
