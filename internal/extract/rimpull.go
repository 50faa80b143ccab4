package extract

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/orefield/specharvest/internal/specs"
)

// Gear labels seen in rimpull tables, normalized to gear numbers 1..7 plus
// the synthetic Direct and Reverse positions.
var gearAliases = map[string]int{
	"1st": 1, "1st gear": 1, "gear 1": 1, "1": 1, "1ll": 1, "low": 1,
	"first": 1, "first gear": 1,
	"2nd": 2, "2nd gear": 2, "gear 2": 2, "2": 2, "second": 2, "second gear": 2,
	"3rd": 3, "3rd gear": 3, "gear 3": 3, "3": 3, "third": 3, "third gear": 3,
	"4th": 4, "4th gear": 4, "gear 4": 4, "4": 4, "fourth": 4, "fourth gear": 4,
	"5th": 5, "5th gear": 5, "gear 5": 5, "5": 5, "fifth": 5, "fifth gear": 5,
	"6th": 6, "6th gear": 6, "gear 6": 6, "6": 6, "sixth": 6, "sixth gear": 6,
	"7th": 7, "7th gear": 7, "gear 7": 7, "7": 7, "seventh": 7, "seventh gear": 7,
	"d": specs.GearDirect, "direct": specs.GearDirect, "direct drive": specs.GearDirect,
	"r": specs.GearReverse, "rev": specs.GearReverse, "reverse": specs.GearReverse,
	"reverse gear": specs.GearReverse,
}

// normalizeGear resolves a raw gear label to its gear number.
func normalizeGear(raw string) (int, bool) {
	cleaned := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), ".")
	gear, ok := gearAliases[cleaned]
	return gear, ok
}

var (
	gearColKeywords  = []string{"gear", "marcha"}
	speedColKeywords = []string{"speed", "velocidad", "km/h", "kmh"}
	forceKeywords    = []string{"rimpull", "tractive", "drawbar", "force", "pull", "traccion", "tracción"}
	gearKeywords     = []string{"gear", "speed", "marcha", "velocidad"}
)

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// isRimpullTable classifies a table as a rimpull curve. Either the first two
// rows carry gear and force vocabulary, or the first column is gear-like and
// some other column is numeric.
func isRimpullTable(table specs.Table) bool {
	if len(table) < 2 {
		return false
	}
	var sb strings.Builder
	for _, row := range table[:2] {
		for _, cell := range row {
			sb.WriteString(strings.ToLower(cell))
			sb.WriteString(" ")
		}
	}
	headerText := sb.String()
	if containsAny(headerText, gearKeywords) && containsAny(headerText, forceKeywords) {
		return true
	}

	gearRows := 0
	for _, row := range table[1:] {
		if len(row) > 0 {
			if _, ok := normalizeGear(row[0]); ok {
				gearRows++
			}
		}
	}
	if gearRows < 2 {
		return false
	}
	for _, row := range table[1:] {
		for _, cell := range row[1:] {
			if _, err := parseNumber(cell); err == nil {
				return true
			}
		}
	}
	return false
}

func parseNumber(cell string) (float64, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(cell, ",", ""))
	return strconv.ParseFloat(cleaned, 64)
}

// detectForceUnit picks the force unit from header text, defaulting to kN.
func detectForceUnit(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "lbf") || strings.Contains(lower, "lb"):
		return "lbf"
	case strings.Contains(lower, "kgf"):
		return "kgf"
	default:
		return "kn"
	}
}

func forceToCanonicalKN(value float64, unit string) float64 {
	factor, ok := forceToKN[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return value
	}
	return value * factor
}

func findRimpullColumns(header []string) (gearCol, speedCol, forceCol int) {
	gearCol, speedCol, forceCol = -1, -1, -1
	for i, cell := range header {
		lower := strings.ToLower(strings.TrimSpace(cell))
		switch {
		case containsAny(lower, gearColKeywords):
			gearCol = i
		case containsAny(lower, speedColKeywords):
			speedCol = i
		case containsAny(lower, forceKeywords):
			forceCol = i
		}
	}
	return gearCol, speedCol, forceCol
}

// extractRimpullTable pulls a rimpull curve out of a classified table.
// Rows with an unknown gear label or an unparseable force cell are dropped
// individually; the rest of the table still yields a curve. Fewer than two
// surviving points means no curve.
func extractRimpullTable(table specs.Table, brand, model string) (specs.RimpullCurve, bool) {
	if !isRimpullTable(table) {
		return specs.RimpullCurve{}, false
	}
	header := table[0]
	gearCol, speedCol, forceCol := findRimpullColumns(header)
	forceUnit := detectForceUnit(strings.Join(header, " "))

	if gearCol < 0 {
		gearCol = 0
	}
	if forceCol < 0 {
		if speedCol >= 0 {
			for i := range header {
				if i != gearCol && i != speedCol {
					forceCol = i
					break
				}
			}
		}
		if forceCol < 0 {
			forceCol = len(header) - 1
		}
	}

	var points []specs.RimpullPoint
	for _, row := range table[1:] {
		if len(row) <= gearCol || len(row) <= forceCol {
			continue
		}
		gear, ok := normalizeGear(row[gearCol])
		if !ok {
			continue
		}
		force, err := parseNumber(row[forceCol])
		if err != nil {
			continue
		}
		point := specs.RimpullPoint{
			Gear:    gear,
			ForceKN: round2(forceToCanonicalKN(force, forceUnit)),
		}
		if speedCol >= 0 && speedCol < len(row) {
			if speed, err := parseNumber(row[speedCol]); err == nil {
				point.SpeedKPH = speed
			}
		}
		points = append(points, point)
	}
	if len(points) < 2 {
		return specs.RimpullCurve{}, false
	}
	sortRimpullPoints(points)
	return specs.RimpullCurve{Brand: brand, Model: model, Points: points}, true
}

var (
	rimpullLabeledRE = regexp.MustCompile(`(?i)(?:(\w+)\s*(?:gear|marcha)\s*rimpull|rimpull\s*\(?(\w+)\s*(?:gear|marcha)\)?)[:\s]*([0-9][0-9,.]*)\s*(kN|lbf|kgf|lb)`)
	rimpullParenRE   = regexp.MustCompile(`(?i)rimpull\s*\(\s*(\w+)(?:\s*gear)?\s*\)[:\s]*([0-9][0-9,.]*)\s*(kN|lbf|kgf|lb)`)
	rimpullSectionRE = regexp.MustCompile(`(?i)rimpull[^.]{0,500}?(?:(?:\d+(?:st|nd|rd|th))[:\s]+[0-9,.]+\s*(?:kN|lbf|kgf|lb)[\s,;]*)+`)
	rimpullInlineRE  = regexp.MustCompile(`(?i)(\d+(?:st|nd|rd|th))[:\s]+([0-9][0-9,.]*)\s*(kN|lbf|kgf|lb)`)
)

// extractRimpullText pulls rimpull points out of prose such as
// "1st gear rimpull: 950 kN" or inline lists near a rimpull mention.
func extractRimpullText(text, brand, model string) (specs.RimpullCurve, bool) {
	var points []specs.RimpullPoint

	appendPoint := func(gearRaw, valueRaw, unit string) {
		gear, ok := normalizeGear(gearRaw)
		if !ok {
			return
		}
		force, err := parseNumber(valueRaw)
		if err != nil {
			return
		}
		forceKN := round2(forceToCanonicalKN(force, unit))
		for _, p := range points {
			if p.Gear == gear && math.Abs(p.ForceKN-forceKN) < 0.1 {
				return
			}
		}
		points = append(points, specs.RimpullPoint{Gear: gear, ForceKN: forceKN})
	}

	for _, m := range rimpullLabeledRE.FindAllStringSubmatch(text, -1) {
		gearRaw := m[1]
		if gearRaw == "" {
			gearRaw = m[2]
		}
		appendPoint(gearRaw, m[3], m[4])
	}
	for _, m := range rimpullParenRE.FindAllStringSubmatch(text, -1) {
		appendPoint(m[1], m[2], m[3])
	}
	for _, section := range rimpullSectionRE.FindAllString(text, -1) {
		for _, m := range rimpullInlineRE.FindAllStringSubmatch(section, -1) {
			appendPoint(m[1], m[2], m[3])
		}
	}

	if len(points) < 2 {
		return specs.RimpullCurve{}, false
	}
	sortRimpullPoints(points)
	return specs.RimpullCurve{Brand: brand, Model: model, Points: points}, true
}

func sortRimpullPoints(points []specs.RimpullPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].Gear != points[j].Gear {
			return points[i].Gear < points[j].Gear
		}
		return points[i].SpeedKPH < points[j].SpeedKPH
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
