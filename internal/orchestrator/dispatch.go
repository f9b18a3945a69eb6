package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// ErrPoolClosed is returned by Pool.Dispatch after Shutdown.
var ErrPoolClosed = errors.New("run pool is shut down")

// Dispatcher hands a run job to background execution and returns immediately.
// Completion is observed only through the store.
type Dispatcher interface {
	Dispatch(ctx context.Context, job blackboard.RunJob) error
}

// RunFunc executes one run job. (*Runner).Run satisfies it.
type RunFunc func(ctx context.Context, job blackboard.RunJob) error

// Pool runs each dispatched job on its own goroutine. Jobs run on a context owned
// by the pool, so they outlive the caller that dispatched them.
type Pool struct {
	run    RunFunc
	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool that executes jobs with run.
func NewPool(run RunFunc) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{run: run, ctx: ctx, cancel: cancel}
}

// Dispatch starts job in the background. The caller's context is not used by the run.
func (p *Pool) Dispatch(_ context.Context, job blackboard.RunJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Go(func() {
		if err := p.run(p.ctx, job); err != nil {
			log.Printf("[Pool] Run for request %s ended with error: %v", job.RequestID, err)
		}
	})
	return nil
}

// Wait blocks until every dispatched job has returned. A panic inside a job is
// recovered and logged.
func (p *Pool) Wait() {
	if r := p.wg.WaitAndRecover(); r != nil {
		log.Printf("[Pool] Recovered panic in run: %s", r.String())
	}
}

// Shutdown stops accepting jobs, cancels in-flight runs and waits for them.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.Wait()
}

// QueueDispatcher enqueues jobs on the store's run queue for a serve process.
type QueueDispatcher struct {
	client *blackboard.Client
}

// NewQueueDispatcher creates a dispatcher backed by the Redis run queue.
func NewQueueDispatcher(client *blackboard.Client) *QueueDispatcher {
	return &QueueDispatcher{client: client}
}

// Dispatch pushes job onto the run queue.
func (q *QueueDispatcher) Dispatch(ctx context.Context, job blackboard.RunJob) error {
	return q.client.EnqueueRun(ctx, &job)
}
