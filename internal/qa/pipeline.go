// Package qa post-validates reconciled records. QA verdicts override
// confidence: a high-confidence record with a physically impossible value is
// rejected no matter how much the sources agreed on it.
package qa

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/orefield/specharvest/internal/specs"
)

// Placeholder shapes that spec sheets use for "no data": dashes, N/A, TBD,
// bare zeros, "contact dealer" and friends.
var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[-–—]+$`),
	regexp.MustCompile(`^[nN]/?[aA]$`),
	regexp.MustCompile(`(?i)^(tbd|tba|pending|ask)$`),
	regexp.MustCompile(`^\*+$`),
	regexp.MustCompile(`^\.+$`),
	regexp.MustCompile(`(?i)^(na|none|null|nil)$`),
	regexp.MustCompile(`^0+(\.0+)?$`),
	regexp.MustCompile(`^\s*$`),
	regexp.MustCompile(`(?i)^(contact|consult|available)`),
	regexp.MustCompile(`(?i)^(option|optional|standard)$`),
}

func isPlaceholder(text string) bool {
	for _, re := range placeholderPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Rimpull point sanity bounds. Wider than the max-rimpull scalar range is
// not needed: individual gear points on real curves stay inside it.
const (
	minRimpullForceKN = 50
	maxRimpullForceKN = 2000
	maxRimpullSpeed   = 80
)

// Report summarizes one QA run.
type Report struct {
	TotalInput int `json:"total_input"`
	Validated  int `json:"validated"`
	Flagged    int `json:"flagged"`
	Rejected   int `json:"rejected"`
}

// Pipeline applies post-reconciliation quality checks.
type Pipeline struct {
	catalog specs.Catalog
	logger  *zap.Logger
}

// New builds a QA pipeline over the given catalog.
func New(catalog specs.Catalog, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{catalog: catalog, logger: logger}
}

// Run checks every record and returns the full set with adjusted statuses.
// Flagged records pass through untouched: they are already queued for human
// review and QA has nothing to add. Validated records can be demoted to
// rejected (placeholder or out-of-bounds value) or to flagged (physical
// constraint violations).
func (p *Pipeline) Run(records []specs.ValidatedSpec) ([]specs.ValidatedSpec, Report) {
	report := Report{TotalInput: len(records)}
	out := make([]specs.ValidatedSpec, len(records))
	copy(out, records)

	for i := range out {
		if out[i].Status != specs.StatusValidated {
			continue
		}
		if reason, bad := p.checkRecord(out[i]); bad {
			p.logger.Info("qa rejected record",
				zap.String("brand", out[i].Brand),
				zap.String("model", out[i].Model),
				zap.String("parameter", out[i].Parameter),
				zap.String("reason", reason),
			)
			out[i].Status = specs.StatusRejected
			out[i].RejectReason = reason
		}
	}

	p.checkPhysicalConstraints(out)

	for _, record := range out {
		switch record.Status {
		case specs.StatusValidated:
			report.Validated++
		case specs.StatusFlagged:
			report.Flagged++
		case specs.StatusRejected:
			report.Rejected++
		}
	}
	return out, report
}

func (p *Pipeline) checkRecord(record specs.ValidatedSpec) (string, bool) {
	if !record.Value.Numeric {
		if isPlaceholder(record.Value.Text) {
			return "placeholder_value", true
		}
		return "", false
	}
	if record.Value.Number == 0 {
		return "placeholder_value", true
	}
	param, ok := p.catalog.Lookup(record.Parameter)
	if !ok || !param.Numeric {
		return "", false
	}
	// Bounds widened beyond the plausibility range: scoring already
	// down-weighted marginal values, QA only kills the impossible ones.
	lo, hi := param.Min*0.5, param.Max*2.0
	if record.Value.Number < lo || record.Value.Number > hi {
		return fmt.Sprintf("out_of_bounds: %g %s not in [%g, %g]",
			record.Value.Number, param.Unit, lo, hi), true
	}
	return "", false
}

// checkPhysicalConstraints demotes validated records that contradict each
// other physically. Today that is one rule: a machine cannot weigh less
// empty than operating.
func (p *Pipeline) checkPhysicalConstraints(records []specs.ValidatedSpec) {
	type machineKey struct{ brand, model string }
	byMachine := make(map[machineKey]map[string]int)
	for i, record := range records {
		if record.Status != specs.StatusValidated || !record.Value.Numeric {
			continue
		}
		key := machineKey{record.Brand, record.Model}
		if byMachine[key] == nil {
			byMachine[key] = make(map[string]int)
		}
		byMachine[key][record.Parameter] = i
	}

	for key, params := range byMachine {
		emptyIdx, hasEmpty := params["empty_weight_kg"]
		operatingIdx, hasOperating := params["operating_weight_kg"]
		if !hasEmpty || !hasOperating {
			continue
		}
		if records[emptyIdx].Value.Number >= records[operatingIdx].Value.Number {
			p.logger.Warn("physical constraint violated: empty weight >= operating weight",
				zap.String("brand", key.brand),
				zap.String("model", key.model),
			)
			records[emptyIdx].Status = specs.StatusFlagged
			records[operatingIdx].Status = specs.StatusFlagged
		}
	}
}

// RunRimpull validates a consolidated rimpull curve. Points with impossible
// force or speed values drop individually; a monotonicity break (force
// rising with gear among forward gears) only flags the curve, since some
// transmissions genuinely overlap. Fewer than two surviving points fails
// the curve.
func (p *Pipeline) RunRimpull(curve specs.RimpullCurve) (specs.RimpullCurve, bool) {
	valid := make([]specs.RimpullPoint, 0, len(curve.Points))
	for _, point := range curve.Points {
		if point.ForceKN < minRimpullForceKN || point.ForceKN > maxRimpullForceKN {
			continue
		}
		if point.SpeedKPH < 0 || point.SpeedKPH > maxRimpullSpeed {
			continue
		}
		valid = append(valid, point)
	}
	if len(valid) < 2 {
		return specs.RimpullCurve{}, false
	}

	out := curve
	out.Points = valid
	for i := 1; i < len(valid); i++ {
		if valid[i].Gear == specs.GearReverse || valid[i-1].Gear == specs.GearReverse {
			continue
		}
		if valid[i].ForceKN > valid[i-1].ForceKN {
			out.Flags = append(out.Flags, fmt.Sprintf(
				"monotonicity: gear %d force %g kN exceeds gear %d force %g kN",
				valid[i].Gear, valid[i].ForceKN, valid[i-1].Gear, valid[i-1].ForceKN))
		}
	}
	return out, true
}
