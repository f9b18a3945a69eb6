package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// RecoverRuns re-dispatches every request left in running status by a previous
// process. The run lock de-duplicates against runs that are still alive elsewhere.
// A request whose latest version is already finalized only needs its status
// completed. Returns the number of runs dispatched.
func (e *Engine) RecoverRuns(ctx context.Context) (int, error) {
	log.Printf("[Orchestrator] Starting run recovery...")
	startTime := time.Now()

	running, err := e.client.RequestsByStatus(ctx, blackboard.RequestStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to scan for running requests: %w", err)
	}

	dispatched := 0
	completed := 0

	for _, req := range running {
		job, done, err := recoveryJob(ctx, e.client, req)
		if err != nil {
			log.Printf("[Orchestrator] Warning: Failed to recover request %s: %v", req.ID, err)
			continue
		}

		if done {
			if _, err := e.client.TransitionStatus(ctx, req.ID, blackboard.RequestStatusCompleted, blackboard.RequestStatusRunning); err != nil {
				log.Printf("[Orchestrator] Warning: Failed to complete request %s: %v", req.ID, err)
				continue
			}
			completed++
			continue
		}

		if err := e.pool.Dispatch(ctx, job); err != nil {
			log.Printf("[Orchestrator] Warning: Failed to dispatch recovered run %s: %v", req.ID, err)
			continue
		}
		dispatched++
	}

	duration := time.Since(startTime)
	e.logEvent("recovery_complete", map[string]interface{}{
		"runs_dispatched":    dispatched,
		"requests_completed": completed,
		"duration_ms":        duration.Milliseconds(),
	})

	log.Printf("[Orchestrator] Run recovery complete: %d runs dispatched, %d requests completed (duration: %v)",
		dispatched, completed, duration.Round(time.Millisecond))

	return dispatched, nil
}

// recoveryJob decides how a running request resumes: from its latest version when
// there is one, fresh otherwise. done is true when the latest version is finalized.
func recoveryJob(ctx context.Context, client *blackboard.Client, req *blackboard.Request) (blackboard.RunJob, bool, error) {
	job := blackboard.RunJob{RequestID: req.ID, UserIntent: req.UserIntent}

	latest, err := client.LatestVersion(ctx, req.ID)
	if err != nil {
		if blackboard.IsNotFound(err) {
			return job, false, nil
		}
		return job, false, err
	}

	if latest.Finalized {
		return job, true, nil
	}

	job.ResumeVersion = latest.Version
	return job, false, nil
}
