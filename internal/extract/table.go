package extract

import (
	"regexp"
	"sort"
	"strings"
)

// tableAlias maps a label substring seen in spec-sheet tables to a canonical
// parameter name. Aliases are matched longest-first so "dump height" wins
// over "height".
type tableAlias struct {
	label string
	param string
}

var tableAliases = sortAliases(map[string]string{
	// Weights
	"operating weight": "operating_weight_kg",
	"gross weight":     "operating_weight_kg",
	"service weight":   "operating_weight_kg",
	"empty weight":     "empty_weight_kg",
	"tare weight":      "empty_weight_kg",
	"shipping weight":  "empty_weight_kg",
	"dry weight":       "empty_weight_kg",
	// Engine
	"engine power":        "engine_power_kw",
	"net power":           "engine_power_kw",
	"gross power":         "engine_power_kw",
	"rated power":         "engine_power_kw",
	"engine model":        "engine_model",
	"engine type":         "engine_model",
	"engine":              "engine_model",
	"maximum torque":      "torque_nm",
	"max torque":          "torque_nm",
	"torque":              "torque_nm",
	"engine displacement": "displacement_l",
	"displacement":        "displacement_l",
	"number of cylinders": "cylinder_count",
	"cylinders":           "cylinder_count",
	"emission standard":   "emissions_standard",
	"emissions":           "emissions_standard",
	"emission":            "emissions_standard",
	// Capacities
	"bucket capacity":    "bucket_capacity_m3",
	"heaped capacity":    "bucket_capacity_m3",
	"struck capacity":    "bucket_capacity_m3",
	"dipper capacity":    "dipper_capacity_m3",
	"shovel capacity":    "dipper_capacity_m3",
	"rated payload":      "payload_kg",
	"load capacity":      "payload_kg",
	"payload":            "payload_kg",
	"lifting capacity":   "lift_capacity_kg",
	"lift capacity":      "lift_capacity_kg",
	"fuel tank capacity": "fuel_tank_l",
	"fuel tank":          "fuel_tank_l",
	"tank capacity":      "fuel_tank_l",
	// Speeds
	"maximum speed": "top_speed_kmh",
	"max speed":     "top_speed_kmh",
	"top speed":     "top_speed_kmh",
	"travel speed":  "top_speed_kmh",
	"swing speed":   "swing_speed_rpm",
	"slewing speed": "swing_speed_rpm",
	"swing rate":    "swing_speed_rpm",
	// Dimensions
	"overall width":     "overall_width_m",
	"machine width":     "overall_width_m",
	"width":             "overall_width_m",
	"overall length":    "overall_length_m",
	"machine length":    "overall_length_m",
	"length":            "overall_length_m",
	"overall height":    "overall_height_m",
	"machine height":    "overall_height_m",
	"height":            "overall_height_m",
	"dump height":       "dump_height_m",
	"dumping height":    "dump_height_m",
	"loading height":    "dump_height_m",
	"discharge height":  "dump_height_m",
	"max digging depth": "digging_depth_m",
	"digging depth":     "digging_depth_m",
	"excavation depth":  "digging_depth_m",
	"digging reach":     "max_reach_m",
	"maximum reach":     "max_reach_m",
	"max reach":         "max_reach_m",
	"reach":             "max_reach_m",
	"min turning radius": "turning_radius_m",
	"turning radius":     "turning_radius_m",
	"track shoe width":   "track_shoe_width_mm",
	"shoe width":         "track_shoe_width_mm",
	// Hydraulics and forces
	"digging force":      "breakout_force_kn",
	"breakout force":     "breakout_force_kn",
	"bucket force":       "breakout_force_kn",
	"hydraulic pressure": "hydraulic_pressure_kpa",
	"system pressure":    "hydraulic_pressure_kpa",
	"hydraulic flow":     "hydraulic_flow_lpm",
	"main pump flow":     "hydraulic_flow_lpm",
	"pump flow":          "hydraulic_flow_lpm",
	// Misc
	"fuel consumption":  "fuel_consumption_lph",
	"ground pressure":   "ground_pressure_kpa",
	"max gradeability":  "gradeability_pct",
	"gradeability":      "gradeability_pct",
	"max grade":         "gradeability_pct",
	"grade":             "gradeability_pct",
	"transmission type": "transmission_type",
	"transmission":      "transmission_type",
	"tire size":         "tire_size",
	"tyre size":         "tire_size",
	"undercarriage":     "undercarriage_type",
	"track type":        "undercarriage_type",
	"system voltage":    "system_voltage_v",
	"electrical system": "system_voltage_v",
	"voltage":           "system_voltage_v",
	// Rimpull and drivetrain
	"maximum rimpull": "max_rimpull_kn",
	"max rimpull":     "max_rimpull_kn",
	"rimpull":         "max_rimpull_kn",
	"tractive effort": "max_rimpull_kn",
	"tractive force":  "max_rimpull_kn",
	"drawbar pull":    "max_rimpull_kn",
	"retarder speed":  "retarder_speed_kmh",
	"retarder":        "retarder_speed_kmh",
	"forward gears":   "forward_gears",
	"forward speeds":  "forward_gears",
	"number of gears": "forward_gears",
})

func sortAliases(m map[string]string) []tableAlias {
	out := make([]tableAlias, 0, len(m))
	for label, param := range m {
		out = append(out, tableAlias{label: label, param: param})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].label) != len(out[j].label) {
			return len(out[i].label) > len(out[j].label)
		}
		return out[i].label < out[j].label
	})
	return out
}

// mapTableParam resolves a raw table label to a canonical parameter name.
func mapTableParam(raw string) (string, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cleaned == "" {
		return "", false
	}
	for _, alias := range tableAliases {
		if strings.Contains(cleaned, alias.label) {
			return alias.param, true
		}
	}
	return "", false
}

var headerKeywords = []string{
	"parameter", "specification", "spec", "feature", "item",
	"value", "unit", "units", "model", "description",
	"parametro", "valor", "unidad", "especificacion",
}

// isHeaderRow detects label rows so they are not mistaken for data.
func isHeaderRow(row []string) bool {
	joined := strings.ToLower(strings.Join(row, " "))
	for _, kw := range headerKeywords {
		if strings.Contains(joined, kw) {
			return true
		}
	}
	return false
}

var unitColumnNames = map[string]struct{}{
	"unit": {}, "units": {}, "uom": {}, "unidad": {}, "unidades": {},
}

// findUnitColumn returns the index of a dedicated unit column, if any.
func findUnitColumn(header []string) (int, bool) {
	for i, cell := range header {
		if _, ok := unitColumnNames[strings.ToLower(strings.TrimSpace(cell))]; ok {
			return i, true
		}
	}
	return 0, false
}

var knownUnitTokens = map[string]struct{}{
	"kg": {}, "ton": {}, "t": {}, "lb": {}, "hp": {}, "kw": {}, "m": {},
	"mm": {}, "ft": {}, "m3": {}, "m³": {}, "yd3": {}, "km/h": {}, "mph": {},
	"l/h": {}, "kn": {}, "bar": {}, "psi": {}, "mpa": {}, "kpa": {},
	"rpm": {}, "l": {}, "gal": {}, "nm": {}, "v": {}, "%": {}, "°": {},
	"°/s": {}, "l/min": {}, "gpm": {}, "in": {}, "cm": {}, "lbf": {},
	"kgf": {},
}

// looksLikeUnit reports whether a short cell is plausibly a unit token.
func looksLikeUnit(text string) bool {
	if _, ok := knownUnitTokens[strings.ToLower(text)]; ok {
		return true
	}
	return len(text) <= 6
}

var valueUnitRE = regexp.MustCompile(`^([0-9][0-9,.]*)\s*(.*)$`)

// splitValueUnit separates a "2,500 kg" cell into value and unit parts.
func splitValueUnit(raw string) (value, unit string) {
	m := valueUnitRE.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return strings.TrimSpace(raw), ""
	}
	return strings.ReplaceAll(m[1], ",", ""), strings.TrimSpace(m[2])
}
