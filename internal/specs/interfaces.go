package specs

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned by RunStore lookups for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// SpecStore persists reconciled records and candidate sets. Upserts must be
// transactional per (brand, model, parameter) key so two workers cannot
// reconcile the same key concurrently with stale candidate sets.
type SpecStore interface {
	UpsertSpec(ctx context.Context, spec ValidatedSpec) error
	UpsertRimpull(ctx context.Context, curve RimpullCurve) error
	SaveCandidates(ctx context.Context, candidates []ScoredCandidate) error
	ListCandidates(ctx context.Context, brand, model string) ([]ScoredCandidate, error)
	// GetSpecs filters by brand and model; an empty value matches all.
	// Rejected records are persisted for audit but never returned.
	GetSpecs(ctx context.Context, brand, model string) ([]ValidatedSpec, error)
	GetRimpull(ctx context.Context, brand, model string) (*RimpullCurve, error)
}

// RunStore tracks harvest run lifecycle rows.
type RunStore interface {
	StartRun(ctx context.Context, item WorkItem) error
	CompleteRun(ctx context.Context, runID string, status RunStatus, errText string, counters RunCounters) error
	GetRun(ctx context.Context, runID string) (RunRecord, error)
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]RunRecord, error)
}

// BlobStore archives raw fetched bodies for audit and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes review events (flagged conflicts, QA rejections).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless re-fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Queue provides enqueue/dequeue semantics for harvest work items.
type Queue interface {
	Enqueue(ctx context.Context, item WorkItem) error
	Dequeue(ctx context.Context) (WorkItem, error)
}

// SearchClient produces candidate URLs for a (brand, model) pair.
type SearchClient interface {
	Search(ctx context.Context, brand, model, equipmentClass string) ([]SearchResult, error)
}

// Hasher computes digests for deduplication of fetched bodies.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and candidate IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
