package extract

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orefield/specharvest/internal/specs"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("cand-%03d", s.n), nil
}

func newTestEngine() *Engine {
	return NewEngine(specs.DefaultCatalog(), &seqIDs{}, zap.NewNop())
}

func docWithText(text string) specs.RawDocument {
	return specs.RawDocument{
		URL:          "https://www.komatsu.com/en/products/trucks/980e-5",
		SourceDomain: "komatsu.com",
		ContentType:  specs.ContentTypeHTML,
		Text:         text,
	}
}

func findCandidates(t *testing.T, candidates []specs.Candidate, param string) []specs.Candidate {
	t.Helper()
	var out []specs.Candidate
	for _, c := range candidates {
		if c.Parameter == param {
			out = append(out, c)
		}
	}
	return out
}

func TestExtractProse(t *testing.T) {
	t.Parallel()

	engine := newTestEngine()
	doc := docWithText(`The 980E-5 has an operating weight of 369,000 kg and a
gross power: 2,700 hp. Fuel tank capacity: 4,542 L.
Maximum speed: 64 km/h. Emissions standard: EPA Tier 4 Final.`)

	candidates, err := engine.Extract(doc, "Komatsu", "980E-5")
	require.NoError(t, err)

	weights := findCandidates(t, candidates, "operating_weight_kg")
	require.NotEmpty(t, weights)
	assert.Equal(t, 369000.0, weights[0].Value.Number)
	assert.Equal(t, "kg", weights[0].Unit)
	assert.Equal(t, specs.MethodRegex, weights[0].Method)
	assert.Equal(t, "komatsu.com", weights[0].SourceDomain)

	powers := findCandidates(t, candidates, "engine_power_kw")
	require.NotEmpty(t, powers)
	assert.InDelta(t, 2700*0.7457, powers[0].Value.Number, 0.01)
	assert.Equal(t, "kW", powers[0].Unit)

	tanks := findCandidates(t, candidates, "fuel_tank_l")
	require.NotEmpty(t, tanks)
	assert.Equal(t, 4542.0, tanks[0].Value.Number)

	speeds := findCandidates(t, candidates, "top_speed_kmh")
	require.NotEmpty(t, speeds)
	assert.Equal(t, 64.0, speeds[0].Value.Number)

	emissions := findCandidates(t, candidates, "emissions_standard")
	require.NotEmpty(t, emissions)
	assert.Equal(t, "epa tier 4 final", emissions[0].Value.Text)
	assert.False(t, emissions[0].Value.Numeric)
}

func TestExtractSpanishProse(t *testing.T) {
	t.Parallel()

	engine := newTestEngine()
	doc := docWithText(`Peso operativo: 200 ton. Potencia: 1200 kw.
Capacidad de carga: 180 ton. Presión hidráulica: 350 bar.`)

	candidates, err := engine.Extract(doc, "Caterpillar", "794 AC")
	require.NoError(t, err)

	weights := findCandidates(t, candidates, "operating_weight_kg")
	require.NotEmpty(t, weights)
	assert.Equal(t, 200000.0, weights[0].Value.Number, "tons normalize to kg")

	payloads := findCandidates(t, candidates, "payload_kg")
	require.NotEmpty(t, payloads)
	assert.Equal(t, 180000.0, payloads[0].Value.Number)

	pressures := findCandidates(t, candidates, "hydraulic_pressure_kpa")
	require.NotEmpty(t, pressures)
	assert.Equal(t, 35000.0, pressures[0].Value.Number, "bar normalizes to kPa")
	assert.Equal(t, "kPa", pressures[0].Unit)
}

func TestExtractAssignsUniqueSortedIDs(t *testing.T) {
	t.Parallel()

	engine := newTestEngine()
	doc := docWithText("Operating weight: 100,000 kg. Max speed: 50 km/h.")

	candidates, err := engine.Extract(doc, "Hitachi", "EH4000")
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	seen := map[string]bool{}
	for _, c := range candidates {
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
	for i := 1; i < len(candidates); i++ {
		assert.LessOrEqual(t, candidates[i-1].Parameter, candidates[i].Parameter,
			"candidates must come out sorted by parameter")
	}
}

func TestExtractTruncatesOversizedText(t *testing.T) {
	t.Parallel()

	engine := newTestEngine()
	filler := strings.Repeat("x", maxTextLength+1000)
	doc := docWithText(filler + " operating weight: 100 ton")

	candidates, err := engine.Extract(doc, "Liebherr", "T 282C")
	require.NoError(t, err)
	assert.Empty(t, findCandidates(t, candidates, "operating_weight_kg"),
		"matches past the truncation bound must not be found")

	doc = docWithText("operating weight: 100 ton " + filler)
	candidates, err = engine.Extract(doc, "Liebherr", "T 282C")
	require.NoError(t, err)
	assert.NotEmpty(t, findCandidates(t, candidates, "operating_weight_kg"))
}

func TestExtractMegabyteInputStaysBounded(t *testing.T) {
	t.Parallel()

	engine := newTestEngine()

	// A million characters of near-miss spec prose: numbers with dangling
	// separators that force every pattern to scan and backtrack-bait that a
	// linear-time engine must shrug off.
	chunk := "operating weight 1,2,3,4,5,6,7,8,9,0,,, kg kg kg "
	text := strings.Repeat(chunk, 1_000_000/len(chunk)+1)[:1_000_000]
	require.Len(t, text, 1_000_000)

	start := time.Now()
	candidates, err := engine.Extract(docWithText(text), "Komatsu", "980E-5")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 5*time.Second,
		"a hostile megabyte page must not stall the worker")
	for _, c := range candidates {
		assert.Equal(t, specs.MethodRegex, c.Method)
	}
}

func TestExtractUnknownUnitKeepsValueWithoutUnit(t *testing.T) {
	t.Parallel()

	engine := newTestEngine()
	table := specs.Table{
		{"Specification", "Value"},
		{"Operating weight", "369000 stones"},
	}
	doc := specs.RawDocument{URL: "https://example.com", Tables: []specs.Table{table}}

	candidates, err := engine.Extract(doc, "Komatsu", "980E-5")
	require.NoError(t, err)

	weights := findCandidates(t, candidates, "operating_weight_kg")
	require.Len(t, weights, 1)
	assert.Equal(t, 369000.0, weights[0].Value.Number)
	assert.Empty(t, weights[0].Unit, "unknown unit must stay empty for the scorer to penalize")
}

func TestExtractTable(t *testing.T) {
	t.Parallel()

	engine := newTestEngine()
	table := specs.Table{
		{"Parameter", "Value", "Unit"},
		{"Operating weight", "369,000", "kg"},
		{"Dump height", "6.1", "m"},
		{"Overall height", "7600", "mm"},
		{"Engine model", "Komatsu SSDA18V170", ""},
		{"", "ignored", ""},
		{"unmapped label", "42", "kg"},
	}
	doc := specs.RawDocument{URL: "https://example.com/spec", Tables: []specs.Table{table}}

	candidates, err := engine.Extract(doc, "Komatsu", "980E-5")
	require.NoError(t, err)

	weights := findCandidates(t, candidates, "operating_weight_kg")
	require.Len(t, weights, 1)
	assert.Equal(t, 369000.0, weights[0].Value.Number)
	assert.Equal(t, specs.MethodTableCell, weights[0].Method)

	dump := findCandidates(t, candidates, "dump_height_m")
	require.Len(t, dump, 1, `"dump height" must map to dump height, not overall height`)
	assert.Equal(t, 6.1, dump[0].Value.Number)

	heights := findCandidates(t, candidates, "overall_height_m")
	require.Len(t, heights, 1)
	assert.Equal(t, 7.6, heights[0].Value.Number, "mm normalizes to m")

	engines := findCandidates(t, candidates, "engine_model")
	require.Len(t, engines, 1)
	assert.Equal(t, "komatsu ssda18v170", engines[0].Value.Text)
}

func TestExtractRimpullTable(t *testing.T) {
	t.Parallel()

	engine := newTestEngine()
	table := specs.Table{
		{"Gear", "Speed (km/h)", "Rimpull (kN)"},
		{"1st", "10.5", "950"},
		{"2nd", "18.2", "700"},
		{"park", "n/a", "oops"},
		{"3rd", "25.0", "500"},
		{"Direct", "50.0", "210"},
		{"R", "12.0", "880"},
	}
	doc := specs.RawDocument{URL: "https://example.com/rimpull", Tables: []specs.Table{table}}

	curves := engine.ExtractRimpull(doc, "Caterpillar", "797F")
	require.Len(t, curves, 1)

	points := curves[0].Points
	require.Len(t, points, 5, "the malformed row drops, the rest survive")
	assert.Equal(t, 1, points[0].Gear)
	assert.Equal(t, 950.0, points[0].ForceKN)
	assert.Equal(t, 10.5, points[0].SpeedKPH)
	assert.Equal(t, specs.GearDirect, points[3].Gear)
	assert.Equal(t, specs.GearReverse, points[4].Gear)

	// The same grid must not leak scalar candidates.
	candidates, err := engine.Extract(doc, "Caterpillar", "797F")
	require.NoError(t, err)
	assert.Empty(t, findCandidates(t, candidates, "max_rimpull_kn"))
}

func TestExtractRimpullTablePoundsForce(t *testing.T) {
	t.Parallel()

	engine := newTestEngine()
	table := specs.Table{
		{"Gear", "Tractive effort (lbf)"},
		{"1st", "213,000"},
		{"2nd", "150,000"},
	}
	doc := specs.RawDocument{Tables: []specs.Table{table}}

	curves := engine.ExtractRimpull(doc, "Caterpillar", "797F")
	require.Len(t, curves, 1)
	require.Len(t, curves[0].Points, 2)
	assert.InDelta(t, 947.47, curves[0].Points[0].ForceKN, 0.01)
}

func TestExtractRimpullText(t *testing.T) {
	t.Parallel()

	engine := newTestEngine()
	doc := docWithText(`Rimpull performance by gear 1st: 950 kN, 2nd: 700 kN, 3rd: 500 kN`)

	curves := engine.ExtractRimpull(doc, "Komatsu", "980E-5")
	require.Len(t, curves, 1)
	require.Len(t, curves[0].Points, 3)
	assert.Equal(t, []specs.RimpullPoint{
		{Gear: 1, ForceKN: 950},
		{Gear: 2, ForceKN: 700},
		{Gear: 3, ForceKN: 500},
	}, curves[0].Points)
}

func TestExtractRimpullSinglePointYieldsNothing(t *testing.T) {
	t.Parallel()

	engine := newTestEngine()
	doc := docWithText("1st gear rimpull: 950 kN")

	curves := engine.ExtractRimpull(doc, "Komatsu", "980E-5")
	assert.Empty(t, curves, "fewer than two points is not a curve")
}

func TestNormalizeGear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"1st", 1, true},
		{"1st.", 1, true},
		{"First Gear", 1, true},
		{"LOW", 1, true},
		{"gear 4", 4, true},
		{"7", 7, true},
		{"Direct Drive", specs.GearDirect, true},
		{"d", specs.GearDirect, true},
		{"Rev", specs.GearReverse, true},
		{"park", 0, false},
	}
	for _, tt := range tests {
		got, ok := normalizeGear(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.raw)
		}
	}
}

func TestGradeabilityDegreesConvertToPercent(t *testing.T) {
	t.Parallel()

	engine := newTestEngine()
	doc := docWithText("Max gradeability: 30 °")

	candidates, err := engine.Extract(doc, "Komatsu", "WA1200")
	require.NoError(t, err)
	grades := findCandidates(t, candidates, "gradeability_pct")
	require.NotEmpty(t, grades)
	assert.InDelta(t, 57.735, grades[0].Value.Number, 0.01)
	assert.Equal(t, "%", grades[0].Unit)
}
