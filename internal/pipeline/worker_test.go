package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orefield/specharvest/internal/extract"
	idgen "github.com/orefield/specharvest/internal/id/uuid"
	"github.com/orefield/specharvest/internal/metrics"
	pubmem "github.com/orefield/specharvest/internal/publisher/memory"
	"github.com/orefield/specharvest/internal/qa"
	queuemem "github.com/orefield/specharvest/internal/queue/memory"
	"github.com/orefield/specharvest/internal/reconcile"
	"github.com/orefield/specharvest/internal/score"
	"github.com/orefield/specharvest/internal/specs"
	storemem "github.com/orefield/specharvest/internal/storage/memory"
	"github.com/orefield/specharvest/internal/urlsafe"
)

type fakeGate struct {
	denied map[string]urlsafe.Decision
}

func (g *fakeGate) Check(_ context.Context, rawURL string) urlsafe.Decision {
	if d, ok := g.denied[rawURL]; ok {
		return d
	}
	return urlsafe.Allow()
}

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]specs.FetchResponse
	errs      map[string]error
	calls     []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req specs.FetchRequest) (specs.FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	f.mu.Unlock()
	if err := f.errs[req.URL]; err != nil {
		return specs.FetchResponse{}, err
	}
	resp, ok := f.responses[req.URL]
	if !ok {
		return specs.FetchResponse{}, fmt.Errorf("no canned response for %s", req.URL)
	}
	return resp, nil
}

func (f *fakeFetcher) callCount() int {
	return len(f.calledURLs())
}

func (f *fakeFetcher) calledURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// blockingFetcher holds the fetch open until the run context dies.
type blockingFetcher struct{}

func (blockingFetcher) Fetch(ctx context.Context, _ specs.FetchRequest) (specs.FetchResponse, error) {
	<-ctx.Done()
	return specs.FetchResponse{}, ctx.Err()
}

type fakeDetector struct{ promote bool }

func (d fakeDetector) ShouldPromote(specs.FetchResponse) bool { return d.promote }

type fakeHasher struct{}

func (fakeHasher) Hash([]byte) (string, error) { return "abc123", nil }

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeSearch struct {
	results []specs.SearchResult
	err     error
}

func (s *fakeSearch) Search(context.Context, string, string, string) ([]specs.SearchResult, error) {
	return s.results, s.err
}

func htmlResponse(rawURL, body string) specs.FetchResponse {
	return specs.FetchResponse{
		URL:         rawURL,
		StatusCode:  http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte("<html><body>" + body + "</body></html>"),
		Duration:    10 * time.Millisecond,
	}
}

type testEnv struct {
	queue     *queuemem.Queue
	specStore *storemem.SpecStore
	runStore  *storemem.RunStore
	blobs     *storemem.BlobStore
	publisher *pubmem.Publisher
	fetcher   *fakeFetcher
	worker    *Worker
}

func newTestEnv(t *testing.T, fetcher *fakeFetcher, cfg Config, mutate func(*Deps)) *testEnv {
	t.Helper()
	metrics.Init()

	catalog := specs.DefaultCatalog()
	clock := fakeClock{now: time.Unix(1700000000, 0).UTC()}
	env := &testEnv{
		queue:     queuemem.NewQueue(8),
		specStore: storemem.NewSpecStore(),
		runStore:  storemem.NewRunStore(clock),
		blobs:     storemem.NewBlobStore(),
		publisher: pubmem.New(),
		fetcher:   fetcher,
	}

	deps := Deps{
		Queue:      env.queue,
		Gate:       &fakeGate{},
		Probe:      fetcher,
		Blobs:      env.blobs,
		Specs:      env.specStore,
		Runs:       env.runStore,
		Publisher:  env.publisher,
		Hasher:     fakeHasher{},
		Clock:      clock,
		Engine:     extract.NewEngine(catalog, idgen.NewGenerator(), zap.NewNop()),
		Scorer:     score.NewScorer(catalog, score.DefaultWeights()),
		Reconciler: reconcile.New(catalog, reconcile.DefaultThresholds(), zap.NewNop()),
		QA:         qa.New(catalog, zap.NewNop()),
		Logger:     zap.NewNop(),
	}
	if mutate != nil {
		mutate(&deps)
	}

	worker, err := New(deps, cfg)
	require.NoError(t, err)
	env.worker = worker
	return env
}

// runItem enqueues the item against a running worker and waits for the run
// to reach a terminal state.
func runItem(t *testing.T, env *testEnv, item specs.WorkItem) specs.RunRecord {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go env.worker.Run(ctx)
	require.NoError(t, env.queue.Enqueue(ctx, item))

	var record specs.RunRecord
	require.Eventually(t, func() bool {
		got, err := env.runStore.GetRun(ctx, item.RunID)
		if err != nil {
			return false
		}
		record = got
		return got.FinishedAt != nil
	}, 2*time.Second, 10*time.Millisecond)
	return record
}

func TestWorkerSuccessFlow(t *testing.T) {
	t.Parallel()

	specURL := "https://www.komatsu.com/en/products/trucks/980e-5"
	fetcher := &fakeFetcher{responses: map[string]specs.FetchResponse{
		specURL: htmlResponse(specURL,
			`<p>The 980E-5 has an operating weight of 369,000 kg and a gross power: 2,700 hp.</p>`),
	}}
	env := newTestEnv(t, fetcher, Config{BlobPrefix: "docs", MaxDocs: 4}, nil)

	record := runItem(t, env, specs.WorkItem{
		RunID:    "run-1",
		Brand:    "Komatsu",
		Model:    "980E-5",
		SeedURLs: []string{specURL},
	})

	assert.Equal(t, specs.RunSucceeded, record.Status)
	assert.Empty(t, record.Error)
	assert.Equal(t, 1, record.Counters.DocumentsFetched)
	assert.Positive(t, record.Counters.Candidates)
	assert.GreaterOrEqual(t, record.Counters.SpecsValidated, 2)

	_, archived := env.blobs.Get("docs/run-1/abc123.html")
	assert.True(t, archived, "raw body must be archived")

	records, err := env.specStore.GetSpecs(context.Background(), "Komatsu", "980E-5")
	require.NoError(t, err)
	byParam := make(map[string]specs.ValidatedSpec)
	for _, r := range records {
		byParam[r.Parameter] = r
	}
	weight, ok := byParam["operating_weight_kg"]
	require.True(t, ok)
	assert.Equal(t, specs.StatusValidated, weight.Status)
	assert.Equal(t, 369000.0, weight.Value.Number)

	assert.Empty(t, env.publisher.Messages(), "validated records raise no review events")
}

func TestWorkerGateDenialFailsRun(t *testing.T) {
	t.Parallel()

	blocked := "https://internal.example.com/specs"
	fetcher := &fakeFetcher{}
	env := newTestEnv(t, fetcher, Config{}, func(d *Deps) {
		d.Gate = &fakeGate{denied: map[string]urlsafe.Decision{
			blocked: urlsafe.Deny(urlsafe.ReasonPrivateIP, "address 10.0.0.5 in 10.0.0.0/8"),
		}}
	})

	record := runItem(t, env, specs.WorkItem{
		RunID:    "run-denied",
		Brand:    "Komatsu",
		Model:    "980E-5",
		SeedURLs: []string{blocked},
	})

	assert.Equal(t, specs.RunFailed, record.Status)
	assert.Equal(t, "no documents were fetched", record.Error)
	assert.Equal(t, 1, record.Counters.FetchesDenied)
	assert.Zero(t, fetcher.callCount(), "denied URLs must never be fetched")
}

func TestWorkerFetchFailureMarksRunFailed(t *testing.T) {
	t.Parallel()

	specURL := "https://www.cat.com/en_US/products/new/equipment/off-highway-trucks/797f"
	fetcher := &fakeFetcher{errs: map[string]error{
		specURL: fmt.Errorf("connect: connection refused"),
	}}
	env := newTestEnv(t, fetcher, Config{}, nil)

	record := runItem(t, env, specs.WorkItem{
		RunID:    "run-fail",
		Brand:    "Caterpillar",
		Model:    "797F",
		SeedURLs: []string{specURL},
	})

	assert.Equal(t, specs.RunFailed, record.Status)
	assert.Contains(t, record.Error, "probe fetch")
	assert.Equal(t, 1, record.Counters.FetchesFailed)
}

func TestWorkerHeadlessPromotion(t *testing.T) {
	t.Parallel()

	specURL := "https://www.komatsu.com/en/products/trucks/980e-5"
	probe := &fakeFetcher{responses: map[string]specs.FetchResponse{
		specURL: htmlResponse(specURL, `<div id="app"></div>`),
	}}
	headless := &fakeFetcher{responses: map[string]specs.FetchResponse{
		specURL: htmlResponse(specURL,
			`<p>The 980E-5 has an operating weight of 369,000 kg.</p>`),
	}}
	env := newTestEnv(t, probe, Config{HeadlessEnabled: true}, func(d *Deps) {
		d.Headless = headless
		d.Detector = fakeDetector{promote: true}
	})

	record := runItem(t, env, specs.WorkItem{
		RunID:    "run-headless",
		Brand:    "Komatsu",
		Model:    "980E-5",
		SeedURLs: []string{specURL},
	})

	assert.Equal(t, specs.RunSucceeded, record.Status)
	assert.Equal(t, 1, headless.callCount(), "detector verdict must trigger a headless re-fetch")

	records, err := env.specStore.GetSpecs(context.Background(), "Komatsu", "980E-5")
	require.NoError(t, err)
	require.NotEmpty(t, records, "extraction must run on the rendered body")
}

func TestWorkerFlaggedSpecPublishesReview(t *testing.T) {
	t.Parallel()

	oemURL := "https://www.komatsu.com/en/products/trucks/980e-5"
	blogURL := "https://heavy-iron-digest.example.com/980e-5-review"
	fetcher := &fakeFetcher{responses: map[string]specs.FetchResponse{
		oemURL:  htmlResponse(oemURL, `<p>Operating weight: 369,000 kg.</p>`),
		blogURL: htmlResponse(blogURL, `<p>Operating weight: 180,000 kg.</p>`),
	}}
	env := newTestEnv(t, fetcher, Config{ReviewTopic: "spec-review"}, nil)

	record := runItem(t, env, specs.WorkItem{
		RunID:    "run-conflict",
		Brand:    "Komatsu",
		Model:    "980E-5",
		SeedURLs: []string{oemURL, blogURL},
	})

	assert.Equal(t, specs.RunSucceeded, record.Status)
	assert.Equal(t, 1, record.Counters.SpecsFlagged)

	messages := env.publisher.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "spec-review", messages[0].Topic)
	payload, ok := messages[0].Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "operating_weight_kg", payload["parameter"])
	assert.Equal(t, string(specs.StatusFlagged), payload["status"])
}

func TestWorkerRimpullCurveStored(t *testing.T) {
	t.Parallel()

	specURL := "https://www.komatsu.com/en/products/trucks/980e-5/performance"
	fetcher := &fakeFetcher{responses: map[string]specs.FetchResponse{
		specURL: htmlResponse(specURL, `
<table>
<tr><th>Gear</th><th>Speed (km/h)</th><th>Rimpull (kN)</th></tr>
<tr><td>1st</td><td>10.5</td><td>950</td></tr>
<tr><td>2nd</td><td>18.2</td><td>700</td></tr>
</table>`),
	}}
	env := newTestEnv(t, fetcher, Config{}, nil)

	record := runItem(t, env, specs.WorkItem{
		RunID:    "run-rimpull",
		Brand:    "Komatsu",
		Model:    "980E-5",
		SeedURLs: []string{specURL},
	})

	assert.Equal(t, specs.RunSucceeded, record.Status)

	curve, err := env.specStore.GetRimpull(context.Background(), "Komatsu", "980E-5")
	require.NoError(t, err)
	require.NotNil(t, curve)
	require.Len(t, curve.Points, 2)
	assert.Equal(t, 950.0, curve.Points[0].ForceKN)
	assert.Empty(t, curve.Flags)
	// rimpull_table method on an OEM domain, plus the table bonus.
	assert.InDelta(t, 0.99, curve.Confidence, 0.001)
}

func TestWorkerSearchDiscovery(t *testing.T) {
	t.Parallel()

	found := "https://www.komatsu.com/en/products/trucks/980e-5"
	fetcher := &fakeFetcher{responses: map[string]specs.FetchResponse{
		found: htmlResponse(found, `<p>Operating weight: 369,000 kg.</p>`),
	}}
	env := newTestEnv(t, fetcher, Config{}, func(d *Deps) {
		d.Search = &fakeSearch{results: []specs.SearchResult{{URL: found}}}
	})

	record := runItem(t, env, specs.WorkItem{
		RunID: "run-search",
		Brand: "Komatsu",
		Model: "980E-5",
	})

	assert.Equal(t, specs.RunSucceeded, record.Status)
	assert.Equal(t, 1, record.Counters.DocumentsFetched)
	assert.Equal(t, []string{found}, fetcher.calledURLs())
}

func TestWorkerRunCanceledViaRegistry(t *testing.T) {
	t.Parallel()

	specURL := "https://www.komatsu.com/en/products/trucks/980e-5"
	registry := NewCancelRegistry()
	env := newTestEnv(t, &fakeFetcher{}, Config{}, func(d *Deps) {
		d.Probe = blockingFetcher{}
		d.Cancels = registry
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.worker.Run(ctx)
	require.NoError(t, env.queue.Enqueue(ctx, specs.WorkItem{
		RunID:    "run-cancel",
		Brand:    "Komatsu",
		Model:    "980E-5",
		SeedURLs: []string{specURL},
	}))

	// Cancel keeps failing until the worker has picked the run up.
	require.Eventually(t, func() bool {
		return registry.Cancel("run-cancel")
	}, 2*time.Second, 10*time.Millisecond)

	var record specs.RunRecord
	require.Eventually(t, func() bool {
		got, err := env.runStore.GetRun(context.Background(), "run-cancel")
		if err != nil {
			return false
		}
		record = got
		return got.FinishedAt != nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, specs.RunCanceled, record.Status)
	assert.Zero(t, record.Counters.DocumentsFetched)
}

func TestCollectURLsDedupesAndCaps(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	env := newTestEnv(t, fetcher, Config{MaxDocs: 2}, func(d *Deps) {
		d.Search = &fakeSearch{results: []specs.SearchResult{
			{URL: "https://a.example.com/spec"},
			{URL: "https://b.example.com/spec"},
			{URL: "https://c.example.com/spec"},
		}}
	})

	urls := env.worker.collectURLs(context.Background(), specs.WorkItem{
		Brand:    "Komatsu",
		Model:    "980E-5",
		SeedURLs: []string{"https://a.example.com/spec"},
	})

	assert.Equal(t, []string{
		"https://a.example.com/spec",
		"https://b.example.com/spec",
	}, urls)
}

func TestDeriveFinalStatus(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	env := newTestEnv(t, fetcher, Config{}, nil)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	status, _ := env.worker.deriveFinalStatus(canceled, specs.RunCounters{DocumentsFetched: 3}, "")
	assert.Equal(t, specs.RunCanceled, status)

	status, errText := env.worker.deriveFinalStatus(context.Background(), specs.RunCounters{}, "")
	assert.Equal(t, specs.RunFailed, status)
	assert.Equal(t, "no documents were fetched", errText)

	status, _ = env.worker.deriveFinalStatus(context.Background(), specs.RunCounters{DocumentsFetched: 1}, "")
	assert.Equal(t, specs.RunSucceeded, status)
}

func TestNewValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{}, Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue is required")
}
