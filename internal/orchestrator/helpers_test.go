package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Keerthana203/cerina-foundry/internal/llm"
	"github.com/Keerthana203/cerina-foundry/internal/pipeline"
	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

const testInstance = "test-instance"

func setupTestClient(t *testing.T) (*blackboard.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, testInstance)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

// fakeGenerator returns "draft N" for the Nth call and runs an optional hook first.
type fakeGenerator struct {
	calls atomic.Int32
	hook  func(call int) error
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	n := int(g.calls.Add(1))
	if g.hook != nil {
		if err := g.hook(n); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("draft %d", n), nil
}

func (g *fakeGenerator) Calls() int {
	return int(g.calls.Load())
}

func constantScore(score float64) pipeline.Scorer {
	return pipeline.ScorerFunc(func(string) float64 { return score })
}

func newTestRunner(t *testing.T, client *blackboard.Client, gen llm.Generator, scorer pipeline.Scorer, checkpoint string) *Runner {
	t.Helper()
	machine, err := pipeline.NewMachine(
		pipeline.NewDrafter(gen, llm.Options{Temperature: 0.3, TopP: 0.9, MaxOutputTokens: 600}),
		scorer,
		pipeline.StubCritic{Score: 0.9},
		pipeline.DefaultPolicy(),
	)
	require.NoError(t, err)
	return NewRunner(client, machine, checkpoint, time.Minute)
}

// syncDispatcher runs jobs inline so tests observe the finished run.
type syncDispatcher struct {
	run RunFunc
}

func (d syncDispatcher) Dispatch(ctx context.Context, job blackboard.RunJob) error {
	_ = d.run(ctx, job)
	return nil
}

// recordingDispatcher only records jobs.
type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []blackboard.RunJob
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, job blackboard.RunJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *recordingDispatcher) Jobs() []blackboard.RunJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]blackboard.RunJob(nil), d.jobs...)
}

func createRunning(t *testing.T, client *blackboard.Client, intent string) *blackboard.Request {
	t.Helper()
	req, err := client.CreateRequest(context.Background(), intent, blackboard.RequestStatusRunning)
	require.NoError(t, err)
	return req
}

func history(t *testing.T, client *blackboard.Client, requestID string) []*blackboard.Version {
	t.Helper()
	versions, err := client.VersionsAfter(context.Background(), requestID, 0)
	require.NoError(t, err)
	return versions
}

func status(t *testing.T, client *blackboard.Client, requestID string) blackboard.RequestStatus {
	t.Helper()
	req, err := client.GetRequest(context.Background(), requestID)
	require.NoError(t, err)
	return req.Status
}
