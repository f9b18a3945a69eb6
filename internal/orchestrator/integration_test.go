//go:build integration

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Keerthana203/cerina-foundry/internal/config"
	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// Run with: go test -tags=integration ./internal/orchestrator

// setupRedis starts a Redis container and returns a client for a fresh instance.
func setupRedis(t *testing.T) *blackboard.Client {
	t.Helper()
	ctx := context.Background()

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	opts, err := redis.ParseURL(fmt.Sprintf("redis://%s:%s", host, port.Port()))
	require.NoError(t, err)

	client, err := blackboard.NewClient(opts, "integration")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIntegration_ConcurrentDispatchRunsOnce(t *testing.T) {
	client := setupRedis(t)
	gen := &fakeGenerator{hook: func(int) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}}
	runner := newTestRunner(t, client, gen, constantScore(0.95), config.CheckpointRun)

	req := createRunning(t, client, "Grounding exercise for panic attacks")
	job := blackboard.RunJob{RequestID: req.ID, UserIntent: req.UserIntent}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, runner.Run(context.Background(), job))
		}()
	}
	wg.Wait()

	versions := history(t, client, req.ID)
	require.Len(t, versions, 1)
	assert.True(t, versions[0].Finalized)
	assert.Equal(t, 2, gen.Calls())
	assert.Equal(t, blackboard.RequestStatusCompleted, status(t, client, req.ID))
}

func TestIntegration_QueueToApproval(t *testing.T) {
	client := setupRedis(t)
	runner := newTestRunner(t, client, &fakeGenerator{}, constantScore(0.95), config.CheckpointCycle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewEngine(client, runner, "127.0.0.1:0").Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	controller := NewController(client, NewQueueDispatcher(client))
	requestID, err := controller.Start(context.Background(), "Behavioural activation plan")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		req, err := client.GetRequest(context.Background(), requestID)
		return err == nil && req.Status == blackboard.RequestStatusCompleted
	}, 15*time.Second, 50*time.Millisecond)

	// One checkpoint per cycle: revise at 1, finalize at 2
	versions := history(t, client, requestID)
	require.Len(t, versions, 2)
	assert.False(t, versions[0].Finalized)
	assert.True(t, versions[1].Finalized)

	approved, err := controller.Approve(context.Background(), requestID, "")
	require.NoError(t, err)
	assert.Equal(t, 3, approved.Version)
	assert.Equal(t, versions[1].DraftText, approved.DraftText)
	assert.Equal(t, blackboard.RequestStatusApproved, status(t, client, requestID))
}
