package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Keerthana203/cerina-foundry/internal/config"
	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

func TestPool_RunsJobsInBackground(t *testing.T) {
	var ran atomic.Int32
	release := make(chan struct{})

	pool := NewPool(func(ctx context.Context, job blackboard.RunJob) error {
		<-release
		ran.Add(1)
		return nil
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Dispatch(context.Background(), blackboard.RunJob{RequestID: "r"}))
	}
	assert.Equal(t, int32(0), ran.Load(), "dispatch must not block on the run")

	close(release)
	pool.Wait()
	assert.Equal(t, int32(3), ran.Load())
}

func TestPool_RunOutlivesCallerContext(t *testing.T) {
	var runCtxErr atomic.Value
	pool := NewPool(func(ctx context.Context, job blackboard.RunJob) error {
		time.Sleep(20 * time.Millisecond)
		runCtxErr.Store(ctx.Err() == nil)
		return nil
	})

	callerCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Dispatch(callerCtx, blackboard.RunJob{RequestID: "r"}))
	cancel()

	pool.Wait()
	assert.Equal(t, true, runCtxErr.Load())
}

func TestPool_ShutdownCancelsAndRefuses(t *testing.T) {
	pool := NewPool(func(ctx context.Context, job blackboard.RunJob) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, pool.Dispatch(context.Background(), blackboard.RunJob{RequestID: "r"}))

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not cancel the in-flight run")
	}

	assert.ErrorIs(t, pool.Dispatch(context.Background(), blackboard.RunJob{}), ErrPoolClosed)
}

func TestPool_RecoversPanics(t *testing.T) {
	pool := NewPool(func(ctx context.Context, job blackboard.RunJob) error {
		if job.RequestID == "boom" {
			panic("runner exploded")
		}
		return errors.New("ordinary failure")
	})
	require.NoError(t, pool.Dispatch(context.Background(), blackboard.RunJob{RequestID: "boom"}))
	require.NoError(t, pool.Dispatch(context.Background(), blackboard.RunJob{RequestID: "ok"}))

	assert.NotPanics(t, pool.Wait)
}

func TestQueueDispatcher_EnqueuesJobs(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	q := NewQueueDispatcher(client)
	job := blackboard.RunJob{RequestID: "r", UserIntent: "intent", ResumeVersion: 2}
	require.NoError(t, q.Dispatch(ctx, job))

	got, err := client.DequeueRun(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, job, *got)
}

func TestEngine_DrainsQueue(t *testing.T) {
	client, _ := setupTestClient(t)
	runner := newTestRunner(t, client, &fakeGenerator{}, constantScore(0.95), config.CheckpointRun)

	engine := NewEngine(client, runner, "127.0.0.1:0")
	engine.dequeueTimeout = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	c := NewController(client, NewQueueDispatcher(client))
	id, err := c.Start(context.Background(), "sleep hygiene protocol")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		req, err := client.GetRequest(context.Background(), id)
		return err == nil && req.Status == blackboard.RequestStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestEngine_RecoverRuns(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()
	runner := newTestRunner(t, client, &fakeGenerator{}, constantScore(0.95), config.CheckpointRun)
	engine := NewEngine(client, runner, "127.0.0.1:0")

	// Interrupted before any checkpoint
	fresh := createRunning(t, client, "fresh")

	// Interrupted after the final checkpoint but before the status update
	finished := createRunning(t, client, "finished")
	_, err := client.AppendVersion(ctx, &blackboard.Version{
		RequestID: finished.ID, Kind: blackboard.VersionKindMachine, DraftText: "done", Iteration: 2, Finalized: true,
	})
	require.NoError(t, err)

	// Rerun seed that never ran
	seeded := createRunning(t, client, "seeded")
	_, err = client.AppendVersion(ctx, &blackboard.Version{
		RequestID: seeded.ID, Kind: blackboard.VersionKindHumanFeedback, DraftText: "old", Iteration: 2,
		Notes: []blackboard.Note{{Agent: "human", Message: "Feedback: shorter"}},
	})
	require.NoError(t, err)

	halted, err := client.CreateRequest(ctx, "halted", blackboard.RequestStatusHalted)
	require.NoError(t, err)

	n, err := engine.RecoverRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	engine.pool.Wait()

	assert.Equal(t, blackboard.RequestStatusCompleted, status(t, client, fresh.ID))
	assert.Len(t, history(t, client, fresh.ID), 1)

	assert.Equal(t, blackboard.RequestStatusCompleted, status(t, client, finished.ID))
	assert.Len(t, history(t, client, finished.ID), 1)

	assert.Equal(t, blackboard.RequestStatusCompleted, status(t, client, seeded.ID))
	seededHistory := history(t, client, seeded.ID)
	require.Len(t, seededHistory, 2)
	assert.Equal(t, 3, seededHistory[1].Iteration)

	assert.Equal(t, blackboard.RequestStatusHalted, status(t, client, halted.ID))
	assert.Empty(t, history(t, client, halted.ID))
}
