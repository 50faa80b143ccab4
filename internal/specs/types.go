// Package specs defines core types shared across subsystems.
package specs

import "time"

// ContentType identifies the format of a fetched document.
type ContentType string

// Supported document formats.
const (
	ContentTypeHTML ContentType = "html"
	ContentTypePDF  ContentType = "pdf"
)

// Table is a rows-by-columns grid of cell strings. No header inference is
// assumed reliable; extraction must tolerate irregular rows.
type Table [][]string

// RawDocument is the fetched content handed to the extraction engine.
// It is immutable once fetched and is not persisted by the core.
type RawDocument struct {
	URL          string
	ContentType  ContentType
	Text         string
	Tables       []Table
	FetchedAt    time.Time
	SourceDomain string
}

// ExtractionMethod records how a candidate was produced.
type ExtractionMethod string

// Extraction methods, from least to most structured.
const (
	MethodRegex        ExtractionMethod = "regex"
	MethodTableCell    ExtractionMethod = "table_cell"
	MethodRimpullTable ExtractionMethod = "rimpull_table"
)

// Value holds a normalized parameter value. Numeric parameters carry Number
// in the parameter's canonical unit; discrete parameters carry Text.
type Value struct {
	Number  float64 `json:"number,omitempty"`
	Text    string  `json:"text,omitempty"`
	Numeric bool    `json:"numeric"`
}

// NumberValue builds a numeric Value.
func NumberValue(n float64) Value {
	return Value{Number: n, Numeric: true}
}

// TextValue builds a discrete Value.
func TextValue(s string) Value {
	return Value{Text: s}
}

// Candidate is one extracted, unvalidated observation of a parameter value
// from one document. Candidates are never mutated after creation.
type Candidate struct {
	ID           string           `json:"id"`
	Brand        string           `json:"brand"`
	Model        string           `json:"model"`
	Parameter    string           `json:"parameter"`
	RawMatch     string           `json:"raw_match"`
	Value        Value            `json:"value"`
	Unit         string           `json:"unit,omitempty"`
	Method       ExtractionMethod `json:"method"`
	SourceURL    string           `json:"source_url"`
	SourceDomain string           `json:"source_domain"`
	SpanStart    int              `json:"span_start"`
	SpanEnd      int              `json:"span_end"`
}

// SourceTier is the coarse trust classification of a document's domain.
type SourceTier string

// Source tiers, ordered from most to least trusted.
const (
	TierOEMPrimary   SourceTier = "oem_primary"
	TierOEMSecondary SourceTier = "oem_secondary"
	TierDealer       SourceTier = "dealer"
	TierThirdParty   SourceTier = "third_party"
	TierUnknown      SourceTier = "unknown"
)

// ScoredCandidate is a Candidate with its derived confidence. Confidence is
// a pure function of tier, method and value plausibility; it is never set
// independently.
type ScoredCandidate struct {
	Candidate
	Confidence float64    `json:"confidence"`
	Tier       SourceTier `json:"tier"`
}

// Status is the terminal state of a reconciled spec record.
type Status string

// Spec record states persisted by the store.
const (
	StatusValidated Status = "validated"
	StatusFlagged   Status = "flagged"
	StatusRejected  Status = "rejected"
)

// ValidatedSpec is the single reconciled record per (brand, model, parameter).
// It is re-derived from scratch on every reconcile run, never patched.
type ValidatedSpec struct {
	Brand        string   `json:"brand"`
	Model        string   `json:"model"`
	Parameter    string   `json:"parameter"`
	Value        Value    `json:"value"`
	Unit         string   `json:"unit,omitempty"`
	Confidence   float64  `json:"confidence"`
	Supporting   []string `json:"supporting_candidates"`
	Conflicting  []string `json:"conflicting_candidates,omitempty"`
	Status       Status   `json:"status"`
	RejectReason string   `json:"reject_reason,omitempty"`
}

// RimpullPoint is one (gear, speed, force) sample on a rimpull curve.
type RimpullPoint struct {
	Gear     int     `json:"gear"`
	SpeedKPH float64 `json:"speed_kph"`
	ForceKN  float64 `json:"force_kn"`
}

// Synthetic gear numbers for non-numbered positions.
const (
	GearDirect  = 8
	GearReverse = 9
)

// RimpullCurve is the tractive-force-versus-speed relationship per gear for
// a haul truck. Flags records monotonicity violations found during QA; the
// offending points are kept, not dropped.
type RimpullCurve struct {
	Brand      string         `json:"brand"`
	Model      string         `json:"model"`
	Points     []RimpullPoint `json:"points"`
	Confidence float64        `json:"confidence"`
	Flags      []string       `json:"flags,omitempty"`
}

// WorkItem is one (brand, model) unit of pipeline work.
type WorkItem struct {
	RunID          string
	Brand          string
	Model          string
	EquipmentClass string
	SeedURLs       []string
}

// RunStatus tracks the lifecycle of a harvest run for one work item.
type RunStatus string

// Run states reported by the pipeline.
const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// RunRecord is the persisted lifecycle row for one harvest run.
type RunRecord struct {
	RunID          string      `json:"run_id"`
	Brand          string      `json:"brand"`
	Model          string      `json:"model"`
	EquipmentClass string      `json:"equipment_class,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     *time.Time  `json:"finished_at,omitempty"`
	Status         RunStatus   `json:"status"`
	Error          string      `json:"error,omitempty"`
	Counters       RunCounters `json:"counters"`
}

// RunCounters tracks per-item pipeline statistics.
type RunCounters struct {
	DocumentsFetched int `json:"documents_fetched"`
	FetchesDenied    int `json:"fetches_denied"`
	FetchesFailed    int `json:"fetches_failed"`
	Candidates       int `json:"candidates"`
	SpecsValidated   int `json:"specs_validated"`
	SpecsFlagged     int `json:"specs_flagged"`
	SpecsRejected    int `json:"specs_rejected"`
}

// FetchRequest captures everything needed to fetch one URL.
type FetchRequest struct {
	RunID       string
	URL         string
	UseHeadless bool
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	ContentType  string
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// SearchResult is one candidate URL produced by the search collaborator.
type SearchResult struct {
	Brand   string `json:"brand"`
	Model   string `json:"model"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Query   string `json:"query"`
}
