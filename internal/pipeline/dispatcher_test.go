package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	queuemem "github.com/orefield/specharvest/internal/queue/memory"
	"github.com/orefield/specharvest/internal/specs"
)

func TestDispatcherRunsWorkersUntilCanceled(t *testing.T) {
	t.Parallel()

	specURL := "https://www.komatsu.com/en/products/trucks/980e-5"
	fetcher := &fakeFetcher{responses: map[string]specs.FetchResponse{
		specURL: htmlResponse(specURL, `<p>Operating weight: 369,000 kg.</p>`),
	}}
	env := newTestEnv(t, fetcher, Config{}, nil)

	dispatcher := NewDispatcher(env.queue, []*Worker{env.worker}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(done)
	}()

	item := specs.WorkItem{
		RunID:    "run-dispatch",
		Brand:    "Komatsu",
		Model:    "980E-5",
		SeedURLs: []string{specURL},
	}
	require.NoError(t, dispatcher.Enqueue(ctx, item))

	require.Eventually(t, func() bool {
		record, err := env.runStore.GetRun(ctx, item.RunID)
		return err == nil && record.FinishedAt != nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}

func TestDispatcherEnqueueWrapsQueueErrors(t *testing.T) {
	t.Parallel()

	// An unbuffered queue with no consumer forces the context branch.
	dispatcher := NewDispatcher(queuemem.NewQueue(0), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := dispatcher.Enqueue(ctx, specs.WorkItem{RunID: "run-x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue enqueue")
}
