// Package extract turns fetched documents into spec candidates. Extraction is
// pure: the same document always yields the same candidates, and nothing here
// touches the network or storage.
package extract

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/orefield/specharvest/internal/specs"
)

// maxTextLength bounds regex input. Pages larger than this are truncated
// before matching; spec values live near the top of real spec sheets.
const maxTextLength = 200_000

// Engine runs every parameter matcher against a document's prose and tables.
type Engine struct {
	catalog  specs.Catalog
	matchers []matcher
	byParam  map[string]matcher
	ids      specs.IDGenerator
	logger   *zap.Logger
}

// NewEngine builds an extraction engine over the given parameter catalog.
func NewEngine(catalog specs.Catalog, ids specs.IDGenerator, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	matchers := newMatchers()
	byParam := make(map[string]matcher, len(matchers))
	for _, m := range matchers {
		byParam[m.param] = m
	}
	return &Engine{
		catalog:  catalog,
		matchers: matchers,
		byParam:  byParam,
		ids:      ids,
		logger:   logger,
	}
}

// Extract produces all candidates found in the document's text and tables.
// Prose matchers run concurrently; results are merged and sorted so output
// order does not depend on scheduling.
func (e *Engine) Extract(doc specs.RawDocument, brand, model string) ([]specs.Candidate, error) {
	text := sanitizeText(doc.Text)
	if len(text) > maxTextLength {
		e.logger.Warn("truncating document text",
			zap.String("url", doc.URL),
			zap.Int("original_len", len(text)),
		)
		text = text[:maxTextLength]
	}

	perMatcher := make([][]specs.Candidate, len(e.matchers))
	var wg sync.WaitGroup
	for i, m := range e.matchers {
		wg.Add(1)
		go func(i int, m matcher) {
			defer wg.Done()
			perMatcher[i] = e.matchText(m, text, doc, brand, model)
		}(i, m)
	}
	wg.Wait()

	var candidates []specs.Candidate
	for _, batch := range perMatcher {
		candidates = append(candidates, batch...)
	}
	for _, table := range doc.Tables {
		candidates = append(candidates, e.extractTable(table, doc, brand, model)...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Parameter != b.Parameter {
			return a.Parameter < b.Parameter
		}
		if a.SpanStart != b.SpanStart {
			return a.SpanStart < b.SpanStart
		}
		return a.RawMatch < b.RawMatch
	})
	for i := range candidates {
		id, err := e.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("generating candidate id: %w", err)
		}
		candidates[i].ID = id
	}

	e.logger.Debug("extraction complete",
		zap.String("url", doc.URL),
		zap.String("brand", brand),
		zap.String("model", model),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// ExtractRimpull produces rimpull curves from the document's tables and text.
func (e *Engine) ExtractRimpull(doc specs.RawDocument, brand, model string) []specs.RimpullCurve {
	var curves []specs.RimpullCurve
	for _, table := range doc.Tables {
		if curve, ok := extractRimpullTable(table, brand, model); ok {
			curves = append(curves, curve)
		}
	}
	text := sanitizeText(doc.Text)
	if len(text) > maxTextLength {
		text = text[:maxTextLength]
	}
	if curve, ok := extractRimpullText(text, brand, model); ok {
		curves = append(curves, curve)
	}
	return curves
}

func (e *Engine) matchText(m matcher, text string, doc specs.RawDocument, brand, model string) []specs.Candidate {
	var out []specs.Candidate
	for _, re := range m.patterns {
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			raw := text[idx[0]:idx[1]]
			valueRaw := groupAt(text, idx, 1)
			unitRaw := groupAt(text, idx, 2)
			candidate, ok := e.buildCandidate(m, valueRaw, unitRaw, raw, doc, brand, model)
			if !ok {
				continue
			}
			candidate.SpanStart = idx[0]
			candidate.SpanEnd = idx[1]
			out = append(out, candidate)
		}
	}
	return out
}

func groupAt(text string, idx []int, group int) string {
	lo, hi := 2*group, 2*group+1
	if hi >= len(idx) || idx[lo] < 0 {
		return ""
	}
	return text[idx[lo]:idx[hi]]
}

func (e *Engine) buildCandidate(m matcher, valueRaw, unitRaw, raw string, doc specs.RawDocument, brand, model string) (specs.Candidate, bool) {
	candidate := specs.Candidate{
		Brand:        brand,
		Model:        model,
		Parameter:    m.param,
		RawMatch:     strings.TrimSpace(raw),
		Method:       specs.MethodRegex,
		SourceURL:    doc.URL,
		SourceDomain: doc.SourceDomain,
	}
	if m.discrete {
		cleaned := strings.ToLower(strings.Join(strings.Fields(valueRaw), " "))
		if cleaned == "" {
			return specs.Candidate{}, false
		}
		candidate.Value = specs.TextValue(cleaned)
		return candidate, true
	}

	number, err := strconv.ParseFloat(strings.ReplaceAll(valueRaw, ",", ""), 64)
	if err != nil {
		return specs.Candidate{}, false
	}
	converted, unit, ok := convertToCanonical(m, number, unitRaw)
	if !ok {
		// Unknown unit: keep the raw number but leave the unit empty so the
		// scorer penalizes it.
		candidate.Value = specs.NumberValue(round3(number))
		return candidate, true
	}
	candidate.Value = specs.NumberValue(round3(converted))
	candidate.Unit = unit
	return candidate, true
}

// convertToCanonical converts a raw (value, unit) pair into the matcher's
// canonical unit. Returns ok=false when the unit token is unknown.
func convertToCanonical(m matcher, value float64, unitRaw string) (float64, string, bool) {
	token := cleanUnitToken(unitRaw)
	if m.canon == "" {
		// Unitless parameters such as gear or cylinder counts.
		return value, "", true
	}
	if m.param == "gradeability_pct" && isDegreeToken(token) {
		return math.Tan(value*math.Pi/180) * 100, m.canon, true
	}
	factor, ok := m.units[token]
	if !ok {
		return 0, "", false
	}
	return value * factor, m.canon, true
}

func cleanUnitToken(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

func (e *Engine) extractTable(table specs.Table, doc specs.RawDocument, brand, model string) []specs.Candidate {
	if len(table) == 0 {
		return nil
	}
	// Rimpull grids are handled by the dedicated sub-extractor; their rows
	// would only produce garbage scalar candidates here.
	if isRimpullTable(table) {
		return nil
	}

	var header []string
	rows := table
	if isHeaderRow(table[0]) {
		header = table[0]
		rows = table[1:]
	}
	unitCol, hasUnitCol := 0, false
	if header != nil {
		unitCol, hasUnitCol = findUnitColumn(header)
	}

	var out []specs.Candidate
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		param, ok := mapTableParam(row[0])
		if !ok {
			continue
		}
		m, ok := e.byParam[param]
		if !ok {
			continue
		}

		valueRaw, unitRaw := strings.TrimSpace(row[1]), ""
		if !m.discrete {
			valueRaw, unitRaw = splitValueUnit(row[1])
			switch {
			case hasUnitCol && unitCol < len(row) && strings.TrimSpace(row[unitCol]) != "":
				unitRaw = strings.TrimSpace(row[unitCol])
			case len(row) >= 3 && strings.TrimSpace(row[2]) != "" && looksLikeUnit(strings.TrimSpace(row[2])):
				unitRaw = strings.TrimSpace(row[2])
			}
		}

		rawMatch := strings.TrimSpace(row[0]) + ": " + strings.TrimSpace(row[1])
		candidate, ok := e.buildCandidate(m, valueRaw, unitRaw, rawMatch, doc, brand, model)
		if !ok {
			continue
		}
		candidate.Method = specs.MethodTableCell
		out = append(out, candidate)
	}
	return out
}

// sanitizeText strips control characters that leak out of PDF extraction,
// keeping newlines and tabs.
func sanitizeText(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
