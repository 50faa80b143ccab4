// Package score derives a confidence value for every extracted candidate.
// Scoring is a pure function of the candidate, its source tier and the
// parameter catalog: the same inputs always produce the same confidence.
package score

import (
	"math"

	"github.com/orefield/specharvest/internal/specs"
)

// Weights holds every tunable of the scoring blend. All values live in
// [0, 1]; configuration may override any of them.
type Weights struct {
	Tier               map[specs.SourceTier]float64
	Method             map[specs.ExtractionMethod]float64
	TableBonus         float64
	OutOfRangePenalty  float64
	MissingUnitPenalty float64
}

// DefaultWeights returns the standard scoring weights.
func DefaultWeights() Weights {
	return Weights{
		Tier: map[specs.SourceTier]float64{
			specs.TierOEMPrimary:   1.0,
			specs.TierOEMSecondary: 0.9,
			specs.TierDealer:       0.75,
			specs.TierThirdParty:   0.65,
			specs.TierUnknown:      0.5,
		},
		Method: map[specs.ExtractionMethod]float64{
			specs.MethodRegex:        0.8,
			specs.MethodTableCell:    0.9,
			specs.MethodRimpullTable: 0.9,
		},
		TableBonus:         0.05,
		OutOfRangePenalty:  0.35,
		MissingUnitPenalty: 0.85,
	}
}

// Scorer computes candidate confidence from method, source tier and value
// plausibility.
type Scorer struct {
	catalog specs.Catalog
	weights Weights
}

// NewScorer builds a scorer over the given catalog and weights.
func NewScorer(catalog specs.Catalog, weights Weights) *Scorer {
	return &Scorer{catalog: catalog, weights: weights}
}

// Score attaches a tier and confidence to the candidate. Implausible values
// are down-weighted sharply rather than discarded: cross-validation decides
// their fate with full visibility.
func (s *Scorer) Score(candidate specs.Candidate) specs.ScoredCandidate {
	tier := ClassifyTier(candidate.SourceURL)

	methodWeight := s.weights.Method[candidate.Method]
	tierWeight := s.weights.Tier[tier]

	confidence := methodWeight*0.6 + tierWeight*0.4
	if candidate.Method == specs.MethodTableCell || candidate.Method == specs.MethodRimpullTable {
		confidence += s.weights.TableBonus
	}

	if param, ok := s.catalog.Lookup(candidate.Parameter); ok && param.Numeric {
		if param.Unit != "" && candidate.Unit == "" {
			confidence *= s.weights.MissingUnitPenalty
		}
		if candidate.Value.Number < param.Min || candidate.Value.Number > param.Max {
			confidence *= s.weights.OutOfRangePenalty
		}
	}

	return specs.ScoredCandidate{
		Candidate:  candidate,
		Confidence: clamp01(round3(confidence)),
		Tier:       tier,
	}
}

// ScoreRimpull derives a curve-level confidence from the source URL alone.
// Rimpull points carry no per-point confidence; the curve weight feeds
// consolidation across documents.
func (s *Scorer) ScoreRimpull(sourceURL string) float64 {
	tier := ClassifyTier(sourceURL)
	confidence := s.weights.Method[specs.MethodRimpullTable]*0.6 + s.weights.Tier[tier]*0.4
	confidence += s.weights.TableBonus
	return clamp01(round3(confidence))
}

// ScoreAll scores a batch, preserving order.
func (s *Scorer) ScoreAll(candidates []specs.Candidate) []specs.ScoredCandidate {
	out := make([]specs.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, s.Score(c))
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
