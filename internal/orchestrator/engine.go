package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// Engine is the serve process: it recovers interrupted runs, then drains the run
// queue into an in-process pool until the context is cancelled.
type Engine struct {
	client         *blackboard.Client
	pool           *Pool
	healthServer   *HealthServer
	dequeueTimeout time.Duration
}

// NewEngine creates a serve engine that executes jobs with runner.
func NewEngine(client *blackboard.Client, runner *Runner, healthAddr string) *Engine {
	return &Engine{
		client:         client,
		pool:           NewPool(runner.Run),
		healthServer:   NewHealthServer(client, healthAddr),
		dequeueTimeout: 2 * time.Second,
	}
}

// Run starts the engine and blocks until ctx is cancelled. In-flight runs are
// cancelled and awaited before returning.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.healthServer.Start(); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}
	defer e.healthServer.Shutdown(context.Background())
	defer e.pool.Shutdown()

	log.Printf("[Orchestrator] Starting for instance '%s'", e.client.InstanceName())

	if _, err := e.RecoverRuns(ctx); err != nil {
		log.Printf("[Orchestrator] Warning: run recovery failed: %v", err)
	}

	for {
		if ctx.Err() != nil {
			log.Printf("[Orchestrator] Shutting down...")
			return nil
		}

		job, err := e.client.DequeueRun(ctx, e.dequeueTimeout)
		if err != nil {
			if blackboard.IsNotFound(err) {
				continue
			}
			if ctx.Err() != nil {
				log.Printf("[Orchestrator] Shutting down...")
				return nil
			}
			log.Printf("[Orchestrator] Dequeue error: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		e.logEvent("run_dequeued", map[string]interface{}{
			"request_id":     job.RequestID,
			"resume_version": job.ResumeVersion,
		})

		if err := e.pool.Dispatch(ctx, *job); err != nil {
			log.Printf("[Orchestrator] Failed to dispatch run for %s: %v", job.RequestID, err)
		}
	}
}

func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	logEvent("orchestrator", e.client.InstanceName(), eventType, data)
}
