// Package pipeline executes harvest work items: URL discovery, gated
// fetching, extraction, scoring, reconciliation, QA and persistence for one
// (brand, model) machine at a time.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/orefield/specharvest/internal/extract"
	"github.com/orefield/specharvest/internal/metrics"
	"github.com/orefield/specharvest/internal/qa"
	"github.com/orefield/specharvest/internal/reconcile"
	"github.com/orefield/specharvest/internal/score"
	"github.com/orefield/specharvest/internal/specs"
	"github.com/orefield/specharvest/internal/urlsafe"

	"github.com/orefield/specharvest/internal/document"
)

// SafetyGate screens URLs before any fetch. *urlsafe.Gate satisfies it.
type SafetyGate interface {
	Check(ctx context.Context, rawURL string) urlsafe.Decision
}

// Config controls Worker behavior.
type Config struct {
	BlobPrefix      string
	ReviewTopic     string
	MaxDocs         int
	HeadlessEnabled bool
}

// Deps carries every collaborator a Worker needs. Optional fields are
// documented; everything else is required.
type Deps struct {
	Queue      specs.Queue
	Search     specs.SearchClient // optional; seed URLs alone still work
	Gate       SafetyGate
	Probe      specs.Fetcher
	Headless   specs.Fetcher // optional unless HeadlessEnabled
	Detector   specs.HeadlessDetector
	Blobs      specs.BlobStore
	Specs      specs.SpecStore
	Runs       specs.RunStore
	Publisher  specs.Publisher // optional; review events are dropped without it
	Cancels    *CancelRegistry // optional; runs are uncancelable without it
	Hasher     specs.Hasher
	Clock      specs.Clock
	Engine     *extract.Engine
	Scorer     *score.Scorer
	Reconciler *reconcile.Reconciler
	QA         *qa.Pipeline
	Logger     *zap.Logger
}

// Worker consumes queue items and runs the harvest pipeline for each.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker, validating required collaborators.
func New(deps Deps, cfg Config) (*Worker, error) {
	switch {
	case deps.Queue == nil:
		return nil, fmt.Errorf("queue is required")
	case deps.Gate == nil:
		return nil, fmt.Errorf("safety gate is required")
	case deps.Probe == nil:
		return nil, fmt.Errorf("probe fetcher is required")
	case deps.Blobs == nil:
		return nil, fmt.Errorf("blob store is required")
	case deps.Specs == nil:
		return nil, fmt.Errorf("spec store is required")
	case deps.Runs == nil:
		return nil, fmt.Errorf("run store is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("hasher is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.Engine == nil || deps.Scorer == nil || deps.Reconciler == nil || deps.QA == nil:
		return nil, fmt.Errorf("extraction, scoring, reconcile and qa stages are required")
	}
	if cfg.HeadlessEnabled && deps.Headless == nil {
		return nil, fmt.Errorf("headless fetcher is required when headless is enabled")
	}
	if cfg.MaxDocs <= 0 {
		cfg.MaxDocs = 12
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger}, nil
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued work item",
			zap.String("run_id", item.RunID),
			zap.String("brand", item.Brand),
			zap.String("model", item.Model),
		)
		metrics.IncActiveWorkers()
		w.processItem(ctx, item)
		metrics.DecActiveWorkers()
	}
}

func (w *Worker) processItem(ctx context.Context, item specs.WorkItem) {
	if w.deps.Cancels != nil {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		w.deps.Cancels.register(item.RunID, cancel)
		defer w.deps.Cancels.release(item.RunID)
		ctx = runCtx
	}

	if err := w.deps.Runs.StartRun(ctx, item); err != nil {
		w.logger.Error("start run failed", zap.String("run_id", item.RunID), zap.Error(err))
		return
	}

	counters := specs.RunCounters{}
	errText := ""

	urls := w.collectURLs(ctx, item)
	var curves []specs.RimpullCurve
	for _, u := range urls {
		docCurves, err := w.handleURL(ctx, item, u, &counters)
		if err != nil {
			errText = err.Error()
			continue
		}
		curves = append(curves, docCurves...)
	}

	if counters.DocumentsFetched > 0 {
		if err := w.reconcileAndStore(ctx, item, curves, &counters); err != nil {
			errText = err.Error()
		}
	}

	status, errText := w.deriveFinalStatus(ctx, counters, errText)

	// The run row must record cancellation even though ctx is already dead.
	completeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := w.deps.Runs.CompleteRun(completeCtx, item.RunID, status, errText, counters); err != nil {
		w.logger.Error("complete run failed", zap.String("run_id", item.RunID), zap.Error(err))
	}
	metrics.ObserveRun(string(status))
	w.logger.Info("run finished",
		zap.String("run_id", item.RunID),
		zap.String("status", string(status)),
		zap.Int("documents", counters.DocumentsFetched),
		zap.Int("candidates", counters.Candidates),
	)
}

// collectURLs merges seed URLs with search discovery, deduplicates while
// preserving order, and caps the list at the per-item document budget.
func (w *Worker) collectURLs(ctx context.Context, item specs.WorkItem) []string {
	urls := append([]string(nil), item.SeedURLs...)
	if w.deps.Search != nil {
		results, err := w.deps.Search.Search(ctx, item.Brand, item.Model, item.EquipmentClass)
		if err != nil {
			w.logger.Warn("search discovery failed; continuing with seeds",
				zap.String("run_id", item.RunID), zap.Error(err))
		}
		for _, r := range results {
			urls = append(urls, r.URL)
		}
	}

	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if len(out) >= w.cfg.MaxDocs {
			break
		}
	}
	return out
}

func (w *Worker) handleURL(
	ctx context.Context,
	item specs.WorkItem,
	rawURL string,
	counters *specs.RunCounters,
) ([]specs.RimpullCurve, error) {
	decision := w.deps.Gate.Check(ctx, rawURL)
	if !decision.Allowed {
		counters.FetchesDenied++
		metrics.ObserveGateDeny(string(decision.Reason))
		w.logger.Warn("fetch denied by gate",
			zap.String("run_id", item.RunID),
			zap.String("url", rawURL),
			zap.String("reason", string(decision.Reason)),
			zap.String("detail", decision.Detail),
		)
		return nil, nil
	}

	resp, err := w.fetchProbe(ctx, item, rawURL)
	if err != nil {
		counters.FetchesFailed++
		metrics.ObserveDocument(rawURL, "failed")
		w.logger.Error("probe fetch failed",
			zap.String("run_id", item.RunID), zap.String("url", rawURL), zap.Error(err))
		return nil, err
	}

	finalResp := resp
	if promoted, ok := w.maybePromote(ctx, item, rawURL, resp); ok {
		finalResp = promoted
		w.logger.Info("headless promotion applied",
			zap.String("run_id", item.RunID), zap.String("url", rawURL))
	}

	if err := w.archive(ctx, item.RunID, finalResp); err != nil {
		counters.FetchesFailed++
		metrics.ObserveDocument(rawURL, "failed")
		w.logger.Error("archive document failed",
			zap.String("run_id", item.RunID), zap.String("url", rawURL), zap.Error(err))
		return nil, err
	}

	doc, err := document.Parse(finalResp.URL, finalResp.ContentType, finalResp.Body, w.deps.Clock.Now())
	if err != nil {
		counters.FetchesFailed++
		metrics.ObserveDocument(rawURL, "unparsable")
		w.logger.Error("parse document failed",
			zap.String("run_id", item.RunID), zap.String("url", rawURL), zap.Error(err))
		return nil, err
	}
	counters.DocumentsFetched++
	metrics.ObserveDocument(doc.SourceDomain, "fetched")

	return w.extractAndSave(ctx, item, doc, counters)
}

func (w *Worker) fetchProbe(ctx context.Context, item specs.WorkItem, rawURL string) (specs.FetchResponse, error) {
	pageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := w.deps.Probe.Fetch(pageCtx, specs.FetchRequest{
		RunID: item.RunID,
		URL:   rawURL,
	})
	if err != nil {
		return specs.FetchResponse{}, fmt.Errorf("probe fetch: %w", err)
	}
	return resp, nil
}

func (w *Worker) maybePromote(
	ctx context.Context,
	item specs.WorkItem,
	rawURL string,
	resp specs.FetchResponse,
) (specs.FetchResponse, bool) {
	if !w.cfg.HeadlessEnabled || w.deps.Detector == nil || w.deps.Headless == nil {
		return resp, false
	}
	if !w.deps.Detector.ShouldPromote(resp) {
		return resp, false
	}

	headlessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	headlessResp, err := w.deps.Headless.Fetch(headlessCtx, specs.FetchRequest{
		RunID:       item.RunID,
		URL:         rawURL,
		UseHeadless: true,
	})
	if err != nil {
		w.logger.Warn("headless promotion failed",
			zap.String("run_id", item.RunID), zap.String("url", rawURL), zap.Error(err))
		return resp, false
	}
	headlessResp.UsedHeadless = true
	return headlessResp, true
}

func (w *Worker) archive(ctx context.Context, runID string, resp specs.FetchResponse) error {
	hash, err := w.deps.Hasher.Hash(resp.Body)
	if err != nil {
		return fmt.Errorf("hash body: %w", err)
	}
	path := w.buildBlobPath(runID, hash, resp.ContentType)
	if _, err := w.deps.Blobs.PutObject(ctx, path, resp.ContentType, resp.Body); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (w *Worker) buildBlobPath(runID, hash, contentType string) string {
	ext := ".html"
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		ext = ".pdf"
	}
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s%s", runID, hash, ext)
	}
	return fmt.Sprintf("%s/%s/%s%s", prefix, runID, hash, ext)
}

func (w *Worker) extractAndSave(
	ctx context.Context,
	item specs.WorkItem,
	doc specs.RawDocument,
	counters *specs.RunCounters,
) ([]specs.RimpullCurve, error) {
	candidates, err := w.deps.Engine.Extract(doc, item.Brand, item.Model)
	if err != nil {
		return nil, fmt.Errorf("extract candidates: %w", err)
	}

	scored := w.deps.Scorer.ScoreAll(candidates)
	counters.Candidates += len(scored)
	perMethod := make(map[specs.ExtractionMethod]int)
	for _, c := range scored {
		perMethod[c.Method]++
	}
	for method, count := range perMethod {
		metrics.ObserveCandidates(string(method), count)
	}

	if len(scored) > 0 {
		if err := w.deps.Specs.SaveCandidates(ctx, scored); err != nil {
			return nil, fmt.Errorf("save candidates: %w", err)
		}
	}

	curves := w.deps.Engine.ExtractRimpull(doc, item.Brand, item.Model)
	for i := range curves {
		curves[i].Confidence = w.deps.Scorer.ScoreRimpull(doc.URL)
	}
	return curves, nil
}

// reconcileAndStore re-derives every record for the machine from the full
// persisted candidate set, not just this run's finds. Re-running an item is
// therefore a pure refresh: same candidates in, same records out.
func (w *Worker) reconcileAndStore(
	ctx context.Context,
	item specs.WorkItem,
	curves []specs.RimpullCurve,
	counters *specs.RunCounters,
) error {
	all, err := w.deps.Specs.ListCandidates(ctx, item.Brand, item.Model)
	if err != nil {
		return fmt.Errorf("list candidates: %w", err)
	}

	records := w.deps.Reconciler.Reconcile(all)
	final, report := w.deps.QA.Run(records)
	counters.SpecsValidated = report.Validated
	counters.SpecsFlagged = report.Flagged
	counters.SpecsRejected = report.Rejected

	for _, record := range final {
		if err := w.deps.Specs.UpsertSpec(ctx, record); err != nil {
			return fmt.Errorf("upsert spec %s: %w", record.Parameter, err)
		}
		metrics.ObserveSpec(string(record.Status))
		if record.Status != specs.StatusValidated {
			w.publishReview(ctx, item, record)
		}
	}

	if consolidated, ok := w.deps.Reconciler.ConsolidateRimpull(curves); ok {
		if checked, ok := w.deps.QA.RunRimpull(consolidated); ok {
			if err := w.deps.Specs.UpsertRimpull(ctx, checked); err != nil {
				return fmt.Errorf("upsert rimpull: %w", err)
			}
		}
	}
	return nil
}

func (w *Worker) publishReview(ctx context.Context, item specs.WorkItem, record specs.ValidatedSpec) {
	if w.cfg.ReviewTopic == "" || w.deps.Publisher == nil {
		return
	}
	payload := map[string]any{
		"run_id":     item.RunID,
		"brand":      record.Brand,
		"model":      record.Model,
		"parameter":  record.Parameter,
		"status":     string(record.Status),
		"reason":     record.RejectReason,
		"confidence": record.Confidence,
		"timestamp":  w.deps.Clock.Now().Format(time.RFC3339),
	}
	if _, err := w.deps.Publisher.Publish(ctx, w.cfg.ReviewTopic, payload); err != nil {
		w.logger.Error("publish review event failed",
			zap.String("run_id", item.RunID),
			zap.String("parameter", record.Parameter),
			zap.Error(err),
		)
	}
}

func (w *Worker) deriveFinalStatus(
	ctx context.Context,
	counters specs.RunCounters,
	errText string,
) (specs.RunStatus, string) {
	if counters.DocumentsFetched == 0 && errText == "" {
		errText = "no documents were fetched"
	}

	switch {
	case ctx.Err() != nil:
		return specs.RunCanceled, errText
	case counters.DocumentsFetched == 0:
		return specs.RunFailed, errText
	default:
		return specs.RunSucceeded, errText
	}
}
