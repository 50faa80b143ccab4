package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/orefield/specharvest/internal/specs"
)

// SpecStore keeps reconciled records and candidates in memory. It mirrors
// the ordering guarantees of the Postgres store so the two are
// interchangeable in the pipeline.
type SpecStore struct {
	mu         sync.RWMutex
	records    map[string]specs.ValidatedSpec            // brand|model|parameter
	curves     map[string]specs.RimpullCurve             // brand|model
	candidates map[string]map[string]specs.ScoredCandidate // brand|model -> candidate ID
}

// NewSpecStore returns an empty SpecStore.
func NewSpecStore() *SpecStore {
	return &SpecStore{
		records:    make(map[string]specs.ValidatedSpec),
		curves:     make(map[string]specs.RimpullCurve),
		candidates: make(map[string]map[string]specs.ScoredCandidate),
	}
}

func machineKey(brand, model string) string {
	return brand + "|" + model
}

// UpsertSpec stores the record, replacing any previous version of the key.
func (s *SpecStore) UpsertSpec(_ context.Context, spec specs.ValidatedSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[machineKey(spec.Brand, spec.Model)+"|"+spec.Parameter] = spec
	return nil
}

// UpsertRimpull stores the curve, replacing any previous one for the machine.
func (s *SpecStore) UpsertRimpull(_ context.Context, curve specs.RimpullCurve) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.curves[machineKey(curve.Brand, curve.Model)] = curve
	return nil
}

// SaveCandidates records the batch, ignoring IDs already present.
func (s *SpecStore) SaveCandidates(_ context.Context, candidates []specs.ScoredCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candidates {
		key := machineKey(c.Brand, c.Model)
		byID, ok := s.candidates[key]
		if !ok {
			byID = make(map[string]specs.ScoredCandidate)
			s.candidates[key] = byID
		}
		if _, exists := byID[c.ID]; exists {
			continue
		}
		byID[c.ID] = c
	}
	return nil
}

// ListCandidates returns all candidates for the machine ordered by
// parameter, then ID.
func (s *SpecStore) ListCandidates(_ context.Context, brand, model string) ([]specs.ScoredCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID := s.candidates[machineKey(brand, model)]
	out := make([]specs.ScoredCandidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Parameter != out[j].Parameter {
			return out[i].Parameter < out[j].Parameter
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetSpecs returns reconciled records ordered by brand, model then
// parameter. Empty brand or model matches all. Rejected records are kept
// for audit but never returned here.
func (s *SpecStore) GetSpecs(_ context.Context, brand, model string) ([]specs.ValidatedSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []specs.ValidatedSpec
	for _, record := range s.records {
		if record.Status == specs.StatusRejected {
			continue
		}
		if brand != "" && record.Brand != brand {
			continue
		}
		if model != "" && record.Model != model {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Brand != b.Brand {
			return a.Brand < b.Brand
		}
		if a.Model != b.Model {
			return a.Model < b.Model
		}
		return a.Parameter < b.Parameter
	})
	return out, nil
}

// GetRimpull returns the stored curve or nil when none exists.
func (s *SpecStore) GetRimpull(_ context.Context, brand, model string) (*specs.RimpullCurve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	curve, ok := s.curves[machineKey(brand, model)]
	if !ok {
		return nil, nil
	}
	return &curve, nil
}
