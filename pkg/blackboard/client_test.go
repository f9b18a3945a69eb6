package blackboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func machineVersion(requestID string, iteration int) *Version {
	return &Version{
		RequestID:    requestID,
		Kind:         VersionKindMachine,
		DraftText:    "draft",
		SafetyScore:  0.95,
		EmpathyScore: 0.9,
		Iteration:    iteration,
		Notes:        []Note{{Agent: "drafter", Message: "Draft revision iteration 1"}},
	}
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-instance", client.InstanceName())
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestPing(t *testing.T) {
	client, _ := setupTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestCreateAndGetRequest(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("creates request with fresh UUID", func(t *testing.T) {
		req, err := client.CreateRequest(ctx, "sleep hygiene protocol", RequestStatusPending)
		require.NoError(t, err)
		assert.True(t, isValidUUID(req.ID))
		assert.NotZero(t, req.CreatedAtMs)

		retrieved, err := client.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, req, retrieved)
	})

	t.Run("rejects empty intent", func(t *testing.T) {
		_, err := client.CreateRequest(ctx, "", RequestStatusPending)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid request")
	})

	t.Run("returns redis.Nil for unknown request", func(t *testing.T) {
		req, err := client.GetRequest(ctx, uuid.New().String())
		assert.Nil(t, req)
		assert.True(t, IsNotFound(err))
	})
}

func TestTransitionStatus(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	req, err := client.CreateRequest(ctx, "intent", RequestStatusPending)
	require.NoError(t, err)

	t.Run("moves from an allowed status", func(t *testing.T) {
		prev, err := client.TransitionStatus(ctx, req.ID, RequestStatusRunning, RequestStatusPending)
		require.NoError(t, err)
		assert.Equal(t, RequestStatusPending, prev)

		got, err := client.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, RequestStatusRunning, got.Status)
	})

	t.Run("rejects a disallowed status without writing", func(t *testing.T) {
		_, err := client.TransitionStatus(ctx, req.ID, RequestStatusCompleted, RequestStatusHalted)
		var mismatch *StatusMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Equal(t, RequestStatusRunning, mismatch.Current)
		assert.Equal(t, RequestStatusCompleted, mismatch.Target)

		got, err := client.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, RequestStatusRunning, got.Status)
	})

	t.Run("unconditional set", func(t *testing.T) {
		require.NoError(t, client.SetRequestStatus(ctx, req.ID, RequestStatusHalted))
		got, err := client.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, RequestStatusHalted, got.Status)
	})

	t.Run("unknown request", func(t *testing.T) {
		_, err := client.TransitionStatus(ctx, uuid.New().String(), RequestStatusRunning)
		assert.True(t, IsNotFound(err))
	})

	t.Run("invalid target status", func(t *testing.T) {
		_, err := client.TransitionStatus(ctx, req.ID, RequestStatus("bogus"))
		assert.Error(t, err)
	})
}

func TestAppendVersion(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	req, err := client.CreateRequest(ctx, "intent", RequestStatusRunning)
	require.NoError(t, err)

	t.Run("assigns increasing numbers", func(t *testing.T) {
		for want := 1; want <= 3; want++ {
			v := machineVersion(req.ID, want)
			n, err := client.AppendVersion(ctx, v)
			require.NoError(t, err)
			assert.Equal(t, want, n)
			assert.Equal(t, want, v.Version)
		}
	})

	t.Run("accepts explicit gap", func(t *testing.T) {
		v := machineVersion(req.ID, 4)
		v.Version = 10
		n, err := client.AppendVersion(ctx, v)
		require.NoError(t, err)
		assert.Equal(t, 10, n)
	})

	t.Run("rejects stale explicit version", func(t *testing.T) {
		v := machineVersion(req.ID, 4)
		v.Version = 10
		_, err := client.AppendVersion(ctx, v)
		assert.ErrorIs(t, err, ErrVersionConflict)

		latest, err := client.LatestVersionNumber(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, latest)
	})

	t.Run("rejects unknown request", func(t *testing.T) {
		_, err := client.AppendVersion(ctx, machineVersion(uuid.New().String(), 1))
		assert.True(t, IsNotFound(err))
	})

	t.Run("rejects invalid version", func(t *testing.T) {
		v := machineVersion(req.ID, 1)
		v.SafetyScore = 1.5
		_, err := client.AppendVersion(ctx, v)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid version")
	})

	t.Run("publishes event after append", func(t *testing.T) {
		sub, err := client.SubscribeVersionEvents(ctx)
		require.NoError(t, err)
		defer sub.Close()

		// Give the subscription time to register with miniredis
		time.Sleep(50 * time.Millisecond)

		v := machineVersion(req.ID, 5)
		v.Finalized = true
		_, err = client.AppendVersion(ctx, v)
		require.NoError(t, err)

		select {
		case event := <-sub.Events():
			assert.Equal(t, req.ID, event.RequestID)
			assert.Equal(t, 11, event.Version)
			assert.True(t, event.Finalized)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for version event")
		}
	})
}

func TestAppendVersionWithStatus(t *testing.T) {
	ctx := context.Background()
	open := []RequestStatus{RequestStatusRunning, RequestStatusHalted, RequestStatusCompleted}

	t.Run("writes version and status together", func(t *testing.T) {
		client, _ := setupTestClient(t)
		req, err := client.CreateRequest(ctx, "intent", RequestStatusCompleted)
		require.NoError(t, err)
		_, err = client.AppendVersion(ctx, machineVersion(req.ID, 1))
		require.NoError(t, err)

		v := machineVersion(req.ID, 1)
		v.Kind = VersionKindHumanApprove
		v.Finalized = true
		n, err := client.AppendVersionWithStatus(ctx, v, RequestStatusApproved, open...)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err := client.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, RequestStatusApproved, got.Status)
	})

	t.Run("status mismatch writes nothing", func(t *testing.T) {
		client, _ := setupTestClient(t)
		req, err := client.CreateRequest(ctx, "intent", RequestStatusDeclined)
		require.NoError(t, err)

		v := machineVersion(req.ID, 1)
		v.Kind = VersionKindHumanFeedback
		_, err = client.AppendVersionWithStatus(ctx, v, RequestStatusRunning, open...)
		var mismatch *StatusMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Equal(t, RequestStatusDeclined, mismatch.Current)
		assert.Equal(t, RequestStatusRunning, mismatch.Target)

		latest, err := client.LatestVersionNumber(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, latest)
	})

	t.Run("version conflict leaves status unchanged", func(t *testing.T) {
		client, _ := setupTestClient(t)
		req, err := client.CreateRequest(ctx, "intent", RequestStatusRunning)
		require.NoError(t, err)
		_, err = client.AppendVersion(ctx, machineVersion(req.ID, 1))
		require.NoError(t, err)

		v := machineVersion(req.ID, 2)
		v.Version = 1
		_, err = client.AppendVersionWithStatus(ctx, v, RequestStatusHalted, open...)
		assert.ErrorIs(t, err, ErrVersionConflict)

		got, err := client.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, RequestStatusRunning, got.Status)
	})

	t.Run("unknown request", func(t *testing.T) {
		client, _ := setupTestClient(t)
		_, err := client.AppendVersionWithStatus(ctx, machineVersion(uuid.New().String(), 1), RequestStatusApproved)
		assert.True(t, IsNotFound(err))
	})

	t.Run("rejects unknown target status", func(t *testing.T) {
		client, _ := setupTestClient(t)
		req, err := client.CreateRequest(ctx, "intent", RequestStatusRunning)
		require.NoError(t, err)
		_, err = client.AppendVersionWithStatus(ctx, machineVersion(req.ID, 1), RequestStatus("archived"))
		assert.Error(t, err)
	})
}

func TestAppendVersion_ConcurrentWritersNeverCollide(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	req, err := client.CreateRequest(ctx, "intent", RequestStatusRunning)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan int, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := client.AppendVersion(ctx, machineVersion(req.ID, 1))
			assert.NoError(t, err)
			results <- n
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool)
	for n := range results {
		assert.False(t, seen[n], "version %d assigned twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, 20)
}

func TestLatestVersionAndVersionsAfter(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	req, err := client.CreateRequest(ctx, "intent", RequestStatusRunning)
	require.NoError(t, err)

	_, err = client.LatestVersion(ctx, req.ID)
	assert.True(t, IsNotFound(err))

	none, err := client.VersionsAfter(ctx, req.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	for i := 1; i <= 4; i++ {
		_, err := client.AppendVersion(ctx, machineVersion(req.ID, i))
		require.NoError(t, err)
	}

	latest, err := client.LatestVersion(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, latest.Version)
	assert.Equal(t, 4, latest.Iteration)
	assert.Equal(t, []Note{{Agent: "drafter", Message: "Draft revision iteration 1"}}, latest.Notes)

	after, err := client.VersionsAfter(ctx, req.ID, 2)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, 3, after[0].Version)
	assert.Equal(t, 4, after[1].Version)
}

func TestRunLock(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	req, err := client.CreateRequest(ctx, "intent", RequestStatusRunning)
	require.NoError(t, err)

	t.Run("second holder is refused", func(t *testing.T) {
		ok, err := client.AcquireRunLock(ctx, req.ID, "token-a", time.Minute, RequestStatusRunning)
		require.NoError(t, err)
		assert.True(t, ok)

		held, err := client.RunLockHeld(ctx, req.ID)
		require.NoError(t, err)
		assert.True(t, held)

		ok, err = client.AcquireRunLock(ctx, req.ID, "token-b", time.Minute, RequestStatusRunning)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("only the owner refreshes and releases", func(t *testing.T) {
		ok, err := client.RefreshRunLock(ctx, req.ID, "token-b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, client.ReleaseRunLock(ctx, req.ID, "token-b"))
		assert.True(t, mr.Exists(RunLockKey("test-instance", req.ID)))

		ok, err = client.RefreshRunLock(ctx, req.ID, "token-a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, client.ReleaseRunLock(ctx, req.ID, "token-a"))
		assert.False(t, mr.Exists(RunLockKey("test-instance", req.ID)))

		held, err := client.RunLockHeld(ctx, req.ID)
		require.NoError(t, err)
		assert.False(t, held)
	})

	t.Run("expired lock can be retaken", func(t *testing.T) {
		ok, err := client.AcquireRunLock(ctx, req.ID, "token-c", time.Second, RequestStatusRunning)
		require.NoError(t, err)
		require.True(t, ok)

		mr.FastForward(2 * time.Second)

		ok, err = client.AcquireRunLock(ctx, req.ID, "token-d", time.Second, RequestStatusRunning)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, client.ReleaseRunLock(ctx, req.ID, "token-d"))
	})

	t.Run("refused when status differs", func(t *testing.T) {
		require.NoError(t, client.SetRequestStatus(ctx, req.ID, RequestStatusHalted))
		ok, err := client.AcquireRunLock(ctx, req.ID, "token-e", time.Minute, RequestStatusRunning)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown request", func(t *testing.T) {
		_, err := client.AcquireRunLock(ctx, uuid.New().String(), "token", time.Minute, RequestStatusRunning)
		assert.True(t, IsNotFound(err))
	})
}

func TestRunQueue(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	job := &RunJob{RequestID: uuid.New().String(), UserIntent: "intent", ResumeVersion: 3}
	require.NoError(t, client.EnqueueRun(ctx, job))

	got, err := client.DequeueRun(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, job, got)

	_, err = client.DequeueRun(ctx, 100*time.Millisecond)
	assert.True(t, IsNotFound(err))
}

func TestListRequests(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	running, err := client.CreateRequest(ctx, "one", RequestStatusRunning)
	require.NoError(t, err)
	halted, err := client.CreateRequest(ctx, "two", RequestStatusHalted)
	require.NoError(t, err)

	all, err := client.ListRequests(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byStatus, err := client.RequestsByStatus(ctx, RequestStatusRunning)
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, running.ID, byStatus[0].ID)

	matches, err := client.ScanRequestIDs(ctx, halted.ID[:8])
	require.NoError(t, err)
	assert.Contains(t, matches, halted.ID)
}

func TestInstanceNamespacing(t *testing.T) {
	mr := miniredis.RunT(t)

	clientA, err := NewClient(&redis.Options{Addr: mr.Addr()}, "instance-a")
	require.NoError(t, err)
	defer clientA.Close()

	clientB, err := NewClient(&redis.Options{Addr: mr.Addr()}, "instance-b")
	require.NoError(t, err)
	defer clientB.Close()

	ctx := context.Background()
	req, err := clientA.CreateRequest(ctx, "intent", RequestStatusRunning)
	require.NoError(t, err)

	_, err = clientB.GetRequest(ctx, req.ID)
	assert.True(t, IsNotFound(err))

	_, err = clientB.AppendVersion(ctx, machineVersion(req.ID, 1))
	assert.True(t, IsNotFound(err))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(redis.Nil))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(errors.New("other")))
}
