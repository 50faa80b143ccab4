// Package reconcile merges scored candidates from many sources into one
// validated record per (brand, model, parameter). Reconciliation re-derives
// every record from scratch on each run: given the same candidate set it
// produces byte-identical output, so re-running it is always safe.
package reconcile

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/orefield/specharvest/internal/specs"
)

// Thresholds govern how reconciled records are classified.
//
// A record at or above Acceptance with little disagreement is validated;
// everything else is flagged for review. Rejection is not a reconcile
// verdict, it belongs to QA. Visibility is the floor below which a losing
// cluster is dropped from the conflict record instead of being preserved
// for audit.
type Thresholds struct {
	Acceptance   float64
	Disagreement float64
	Visibility   float64
}

// DefaultThresholds returns the standard classification thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Acceptance:   0.75,
		Disagreement: 0.25,
		Visibility:   0.4,
	}
}

// defaultTolerancePct applies to parameters missing from the catalog.
const defaultTolerancePct = 10.0

// Reconciler implements cross-source validation.
type Reconciler struct {
	catalog    specs.Catalog
	thresholds Thresholds
	logger     *zap.Logger
}

// New builds a Reconciler.
func New(catalog specs.Catalog, thresholds Thresholds, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{catalog: catalog, thresholds: thresholds, logger: logger}
}

type groupKey struct {
	brand, model, parameter string
}

// Reconcile groups candidates by (brand, model, parameter) and derives one
// record per group. Output is sorted by key.
func (r *Reconciler) Reconcile(candidates []specs.ScoredCandidate) []specs.ValidatedSpec {
	groups := make(map[groupKey][]specs.ScoredCandidate)
	for _, c := range candidates {
		key := groupKey{brand: c.Brand, model: c.Model, parameter: c.Parameter}
		groups[key] = append(groups[key], c)
	}

	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.brand != b.brand {
			return a.brand < b.brand
		}
		if a.model != b.model {
			return a.model < b.model
		}
		return a.parameter < b.parameter
	})

	out := make([]specs.ValidatedSpec, 0, len(keys))
	for _, key := range keys {
		out = append(out, r.reconcileGroup(key, groups[key]))
	}
	return out
}

type cluster struct {
	members []specs.ScoredCandidate
	mass    float64
	mean    float64
}

func (c *cluster) add(m specs.ScoredCandidate) {
	c.members = append(c.members, m)
	c.mass += m.Confidence
	if m.Value.Numeric {
		total := c.mean*float64(len(c.members)-1) + m.Value.Number
		c.mean = total / float64(len(c.members))
	}
}

func (c *cluster) tierDiversity() int {
	tiers := make(map[specs.SourceTier]struct{}, len(c.members))
	for _, m := range c.members {
		tiers[m.Tier] = struct{}{}
	}
	return len(tiers)
}

// best returns the member with the highest confidence; ties break on the
// smallest candidate ID so the answer never depends on input order.
func (c *cluster) best() specs.ScoredCandidate {
	best := c.members[0]
	for _, m := range c.members[1:] {
		if m.Confidence > best.Confidence ||
			(m.Confidence == best.Confidence && m.ID < best.ID) {
			best = m
		}
	}
	return best
}

func (c *cluster) ids() []string {
	ids := make([]string, 0, len(c.members))
	for _, m := range c.members {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids
}

func (r *Reconciler) reconcileGroup(key groupKey, group []specs.ScoredCandidate) specs.ValidatedSpec {
	// Canonical input order: by value, then ID. Clustering walks values in
	// ascending order, so identical candidate sets always form identical
	// clusters regardless of arrival order.
	sort.Slice(group, func(i, j int) bool {
		a, b := group[i], group[j]
		if a.Value.Numeric != b.Value.Numeric {
			return b.Value.Numeric
		}
		if a.Value.Numeric && a.Value.Number != b.Value.Number {
			return a.Value.Number < b.Value.Number
		}
		if !a.Value.Numeric && a.Value.Text != b.Value.Text {
			return a.Value.Text < b.Value.Text
		}
		return a.ID < b.ID
	})

	tolerance := defaultTolerancePct
	if param, ok := r.catalog.Lookup(key.parameter); ok {
		tolerance = param.TolerancePct
	}
	clusters := buildClusters(group, tolerance)

	winner := pickWinner(clusters)
	best := winner.best()

	var totalMass float64
	for _, c := range clusters {
		totalMass += c.mass
	}
	conflictMass := totalMass - winner.mass

	confidence := best.Confidence
	if len(group) > 1 && totalMass > 0 {
		confidence += 0.1 * (winner.mass / totalMass)
	}
	if len(clusters) > 1 {
		confidence = math.Min(confidence, 0.85)
	}
	confidence = round3(math.Min(confidence, 1.0))

	record := specs.ValidatedSpec{
		Brand:      key.brand,
		Model:      key.model,
		Parameter:  key.parameter,
		Value:      winnerValue(winner, best),
		Unit:       best.Unit,
		Confidence: confidence,
		Supporting: winner.ids(),
	}
	for _, c := range clusters {
		if c == winner {
			continue
		}
		// Losing clusters below the visibility floor are dropped silently
		// instead of being recorded as conflicts.
		if c.best().Confidence < r.thresholds.Visibility {
			continue
		}
		record.Conflicting = append(record.Conflicting, c.ids()...)
	}
	sort.Strings(record.Conflicting)

	disagreement := 0.0
	if totalMass > 0 {
		disagreement = conflictMass / totalMass
	}
	switch {
	case disagreement >= r.thresholds.Disagreement:
		record.Status = specs.StatusFlagged
	case confidence >= r.thresholds.Acceptance:
		record.Status = specs.StatusValidated
	default:
		record.Status = specs.StatusFlagged
	}

	if record.Status == specs.StatusFlagged && len(record.Conflicting) > 0 {
		r.logger.Info("conflicting clusters for parameter",
			zap.String("brand", key.brand),
			zap.String("model", key.model),
			zap.String("parameter", key.parameter),
			zap.Float64("disagreement", round3(disagreement)),
		)
	}
	return record
}

// winnerValue is the confidence-weighted mean of the winning cluster for
// numeric parameters. Discrete parameters take the best member's text, which
// is the cluster's mode since a discrete cluster holds one exact value.
func winnerValue(winner *cluster, best specs.ScoredCandidate) specs.Value {
	if !best.Value.Numeric || winner.mass <= 0 {
		return best.Value
	}
	var weighted float64
	for _, m := range winner.members {
		weighted += m.Value.Number * m.Confidence
	}
	return specs.NumberValue(weighted / winner.mass)
}

// buildClusters groups pre-sorted candidates. Numeric values join a cluster
// while they stay within tolerance of its running mean; discrete values
// cluster by exact normalized text.
func buildClusters(group []specs.ScoredCandidate, tolerancePct float64) []*cluster {
	var clusters []*cluster
	discrete := make(map[string]*cluster)

	for _, m := range group {
		if !m.Value.Numeric {
			text := strings.ToLower(strings.TrimSpace(m.Value.Text))
			if c, ok := discrete[text]; ok {
				c.add(m)
				continue
			}
			c := &cluster{}
			c.add(m)
			discrete[text] = c
			clusters = append(clusters, c)
			continue
		}

		last := lastNumeric(clusters)
		if last != nil && withinTolerance(m.Value.Number, last.mean, tolerancePct) {
			last.add(m)
			continue
		}
		c := &cluster{}
		c.add(m)
		clusters = append(clusters, c)
	}
	return clusters
}

func lastNumeric(clusters []*cluster) *cluster {
	for i := len(clusters) - 1; i >= 0; i-- {
		if clusters[i].members[0].Value.Numeric {
			return clusters[i]
		}
	}
	return nil
}

func withinTolerance(value, mean, tolerancePct float64) bool {
	if mean == 0 {
		return value == 0
	}
	return math.Abs(value-mean)/math.Abs(mean)*100 <= tolerancePct
}

// pickWinner chooses the cluster holding the most confidence mass. Ties
// break on source-tier diversity first: three sources across OEM and dealer
// tiers beat three blog posts that copied each other. Remaining ties fall
// back to the best single confidence, then the smallest member ID.
func pickWinner(clusters []*cluster) *cluster {
	winner := clusters[0]
	for _, c := range clusters[1:] {
		if massLess(winner, c) {
			winner = c
		}
	}
	return winner
}

func massLess(a, b *cluster) bool {
	const eps = 1e-9
	if math.Abs(a.mass-b.mass) > eps {
		return a.mass < b.mass
	}
	if a.tierDiversity() != b.tierDiversity() {
		return a.tierDiversity() < b.tierDiversity()
	}
	ab, bb := a.best(), b.best()
	if ab.Confidence != bb.Confidence {
		return ab.Confidence < bb.Confidence
	}
	return ab.ID > bb.ID
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Describe renders a short human-readable summary of a record, used in
// review events and the status command.
func Describe(record specs.ValidatedSpec) string {
	value := record.Value.Text
	if record.Value.Numeric {
		value = fmt.Sprintf("%g", record.Value.Number)
	}
	return fmt.Sprintf("%s %s %s=%s %s (%s, conf %.3f, %d supporting, %d conflicting)",
		record.Brand, record.Model, record.Parameter, value, record.Unit,
		record.Status, record.Confidence, len(record.Supporting), len(record.Conflicting))
}
