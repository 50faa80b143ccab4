package extract

import "regexp"

// matcher binds one canonical parameter to its prose patterns and the unit
// conversion table into the parameter's canonical unit. Group 1 of every
// pattern is the value; group 2, when present, is the raw unit token.
type matcher struct {
	param    string
	discrete bool
	canon    string
	units    map[string]float64
	patterns []*regexp.Regexp
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile("(?i)"+e))
	}
	return out
}

// Unit token tables. Keys are cleaned tokens (lower case, single spaces);
// values are multiplicative factors into the canonical unit.
var (
	massToKG = map[string]float64{
		"kg": 1, "ton": 1000, "tonne": 1000, "tonnes": 1000, "t": 1000,
		"metric ton": 1000, "lb": 0.453592,
	}
	powerToKW = map[string]float64{
		"kw": 1, "hp": 0.7457, "ps": 0.7355, "cv": 0.7355,
	}
	torqueToNM = map[string]float64{
		"nm": 1, "n·m": 1, "n.m": 1,
		"knm": 1000, "kn·m": 1000, "kn.m": 1000,
		"lb-ft": 1.35582, "lb ft": 1.35582, "lb·ft": 1.35582,
	}
	volumeToL = map[string]float64{
		"l": 1, "liter": 1, "liters": 1, "litre": 1, "litres": 1,
		"litro": 1, "litros": 1, "cc": 0.001, "cm3": 0.001,
		"gal": 3.78541, "gallon": 3.78541, "gallons": 3.78541,
	}
	bucketToM3 = map[string]float64{
		"m3": 1, "m³": 1, "m²": 1, "cu m": 1, "cu. m": 1, "yd3": 0.764555,
	}
	speedToKMH = map[string]float64{
		"km/h": 1, "kmh": 1, "mph": 1.60934,
	}
	flowToLPH = map[string]float64{
		"l/h": 1, "gal/h": 3.78541,
	}
	forceToKN = map[string]float64{
		"kn": 1, "kgf": 1.0 / 101.972, "lbf": 1.0 / 224.809,
		"lb": 1.0 / 224.809, "tf": 9.80665,
	}
	pressureToKPA = map[string]float64{
		"kpa": 1, "bar": 100, "mpa": 1000, "psi": 6.89476,
		"kg/cm2": 98.0665, "kg/cm²": 98.0665,
	}
	swingToRPM = map[string]float64{
		"rpm": 1, "r/min": 1, "°/s": 1.0 / 6.0, "deg/s": 1.0 / 6.0,
	}
	lengthToM = map[string]float64{
		"m": 1, "mm": 0.001, "cm": 0.01, "ft": 0.3048, "feet": 0.3048,
		"in": 0.0254,
	}
	widthToMM = map[string]float64{
		"mm": 1, "cm": 10, "in": 25.4,
	}
	voltageToV = map[string]float64{
		"v": 1, "volt": 1, "volts": 1,
	}
	flowToLPM = map[string]float64{
		"l/min": 1, "gpm": 3.78541, "gal/min": 3.78541,
	}
	gradeToPct = map[string]float64{
		"%": 1, "percent": 1,
	}
	unitless = map[string]float64{}
)

// newMatchers builds the prose matcher set. Patterns accept both English and
// Spanish spec sheets; the regexp engine is RE2, so no pattern can backtrack
// pathologically, and the caller additionally truncates input to 200 KB.
func newMatchers() []matcher {
	return []matcher{
		{
			param: "operating_weight_kg", canon: "kg", units: massToKG,
			patterns: compileAll(
				`(?:operating|gross|service)\s*weight[:\s]*(?:of\s+)?([0-9][0-9,.]*)\s*(kg|tonnes|ton|t|lb)`,
				`peso\s*operativo[:\s]*([0-9][0-9,.]*)\s*(kg|ton|t)`,
				`weight[:\s]*([0-9][0-9,.]*)\s*(kg|metric\s*ton|ton)`,
			),
		},
		{
			param: "empty_weight_kg", canon: "kg", units: massToKG,
			patterns: compileAll(
				`(?:empty|tare|dry|shipping)\s*weight[:\s]*([0-9][0-9,.]*)\s*(kg|tonnes?|ton|t|lb)`,
				`peso\s*(?:en\s*)?vac[ií]o[:\s]*([0-9][0-9,.]*)\s*(kg|ton|t)`,
			),
		},
		{
			param: "payload_kg", canon: "kg", units: massToKG,
			patterns: compileAll(
				`(?:payload|load)\s*capacity[:\s]*([0-9][0-9,.]*)\s*(tonnes|ton|t|kg|metric\s*ton)`,
				`capacidad\s*(?:de\s*)?carga[:\s]*([0-9][0-9,.]*)\s*(ton|t|kg)`,
				`(?:rated|nominal)\s*payload[:\s]*([0-9][0-9,.]*)\s*(tonnes|ton|t)`,
			),
		},
		{
			param: "lift_capacity_kg", canon: "kg", units: massToKG,
			patterns: compileAll(
				`(?:lifting|lift)\s*capacity[:\s]*([0-9][0-9,.]*)\s*(tonnes?|ton|t|kg|metric\s*ton)`,
				`capacidad\s*(?:de\s*)?(?:elevaci[oó]n|izaje|levante)[:\s]*([0-9][0-9,.]*)\s*(ton|t|kg)`,
			),
		},
		{
			param: "engine_power_kw", canon: "kW", units: powerToKW,
			patterns: compileAll(
				`(?:engine|motor|gross)\s*(?:power|output|rating)[:\s]*([0-9][0-9,.]*)\s*(hp|kw|ps)`,
				`potencia[:\s]*([0-9][0-9,.]*)\s*(hp|kw|cv)`,
				`([0-9][0-9,.]*)\s*(hp|kw)\s*(?:@|at)\s*[0-9]+\s*rpm`,
			),
		},
		{
			param: "engine_model", discrete: true,
			patterns: compileAll(
				`(?:engine|motor)\s*(?:model|type)?[:\s]*((?:Cummins|MTU|Liebherr|Komatsu|Weichai|Shangchai|YuChai|QSK|QST|SAA|WP|SC|YC)\s*[A-Z0-9\-]+)`,
			),
		},
		{
			param: "torque_nm", canon: "Nm", units: torqueToNM,
			patterns: compileAll(
				`(?:max|maximum|peak)?\s*torque[:\s]*([0-9][0-9,.]*)\s*(kN[·.]?m|Nm|N[·.]m|lb[·\-\s]?ft)`,
				`par\s*(?:motor|maximo)?[:\s]*([0-9][0-9,.]*)\s*(kN[·.]?m|Nm|N[·.]m)`,
			),
		},
		{
			param: "displacement_l", canon: "L", units: volumeToL,
			patterns: compileAll(
				`(?:engine\s*)?displacement[:\s]*([0-9][0-9,.]*)\s*(liters?|litres?|cc|cm3|l)`,
				`cilindrada[:\s]*([0-9][0-9,.]*)\s*(litros?|cc|cm3|l)`,
			),
		},
		{
			param: "cylinder_count", canon: "", units: unitless,
			patterns: compileAll(
				`(?:number\s*of\s*)?cylinders?[:\s]*(\d{1,2})`,
				`(\d{1,2})\s*(?:\-\s*)?cylinders?`,
				`n[uú]mero\s*(?:de\s*)?cilindros[:\s]*(\d{1,2})`,
			),
		},
		{
			param: "emissions_standard", discrete: true,
			patterns: compileAll(
				`(?:emissions?)\s*(?:standard|level|tier|stage|norm)[:\s]*((?:EU Stage|EPA Tier|Tier|Stage|China|CHINA)\s*[IViv0-9]+(?:\s*[A-Za-z]*)?)`,
				`((?:EU\s*Stage|EPA\s*Tier|Tier|Stage)\s*[IViv0-9]+(?:\s*(?:Final|Interim|A|B|C))?)`,
			),
		},
		{
			param: "bucket_capacity_m3", canon: "m3", units: bucketToM3,
			patterns: compileAll(
				`bucket\s*capacity[:\s]*([0-9][0-9,.]*)\s*(?:-\s*[0-9,.]+\s*)?(m3|m²|m³|yd3|cu\.?\s*m)`,
				`capacidad\s*(?:de\s*)?balde[:\s]*([0-9][0-9,.]*)\s*(m3|m²|m³)`,
				`(?:heaped|struck)\s*capacity[:\s]*([0-9][0-9,.]*)\s*(m3|yd3|m³)`,
			),
		},
		{
			param: "dipper_capacity_m3", canon: "m3", units: bucketToM3,
			patterns: compileAll(
				`(?:dipper|shovel|front\s*shovel)\s*capacity[:\s]*([0-9][0-9,.]*)\s*(m3|m²|m³|yd3)`,
				`capacidad\s*(?:del?\s*)?cuchar[oó]n[:\s]*([0-9][0-9,.]*)\s*(m3|m²|m³|yd3)`,
			),
		},
		{
			param: "fuel_tank_l", canon: "L", units: volumeToL,
			patterns: compileAll(
				`(?:fuel\s*)?tank\s*capacity[:\s]*([0-9][0-9,.]*)\s*(liters?|litres?|gallons?|gal|l)`,
				`capacidad\s*(?:del?\s*)?tanque[:\s]*([0-9][0-9,.]*)\s*(litros?|gal|l)`,
			),
		},
		{
			param: "top_speed_kmh", canon: "km/h", units: speedToKMH,
			patterns: compileAll(
				`(?:max|maximum|top)\s*speed[:\s]*([0-9][0-9,.]*)\s*(km/h|kmh|mph)`,
				`velocidad\s*m[aá]xima[:\s]*([0-9][0-9,.]*)\s*(km/h|kmh)`,
			),
		},
		{
			param: "retarder_speed_kmh", canon: "km/h", units: speedToKMH,
			patterns: compileAll(
				`(?:retarder|retarding)\s*(?:speed|capacity)[:\s]*([0-9][0-9,.]*)\s*(km/h|mph)`,
			),
		},
		{
			param: "swing_speed_rpm", canon: "rpm", units: swingToRPM,
			patterns: compileAll(
				`(?:swing|slew)\s*speed[:\s]*([0-9][0-9,.]*)\s*(rpm|r/min|°/s|deg/s)`,
				`velocidad\s*(?:de\s*)?giro[:\s]*([0-9][0-9,.]*)\s*(rpm|r/min|°/s)`,
			),
		},
		{
			param: "fuel_consumption_lph", canon: "L/h", units: flowToLPH,
			patterns: compileAll(
				`fuel\s*consumption[:\s]*([0-9][0-9,.]*)\s*(l/h|gal/h)`,
				`consumo\s*(?:de\s*)?combustible[:\s]*([0-9][0-9,.]*)\s*(l/h)`,
			),
		},
		{
			param: "breakout_force_kn", canon: "kN", units: forceToKN,
			patterns: compileAll(
				`(?:digging|breakout|bucket)\s*force[:\s]*([0-9][0-9,.]*)\s*(kN|kgf|lbf|tf)`,
				`fuerza\s*(?:de\s*)?excavaci[oó]n[:\s]*([0-9][0-9,.]*)\s*(kN|kgf|tf)`,
			),
		},
		{
			param: "max_rimpull_kn", canon: "kN", units: forceToKN,
			patterns: compileAll(
				`(?:max|maximum|peak)?\s*rimpull[:\s]*([0-9][0-9,.]*)\s*(kN|kgf|lbf|lb)`,
				`(?:max|maximum)?\s*(?:tractive|drawbar)\s*(?:effort|force|pull)[:\s]*([0-9][0-9,.]*)\s*(kN|kgf|lbf|lb)`,
				`(?:1st|first|low)\s*gear\s*rimpull[:\s]*([0-9][0-9,.]*)\s*(kN|kgf|lbf)`,
			),
		},
		{
			param: "hydraulic_pressure_kpa", canon: "kPa", units: pressureToKPA,
			patterns: compileAll(
				`(?:hydraulic|system)\s*pressure[:\s]*([0-9][0-9,.]*)\s*(bar|psi|MPa|kPa)`,
				`presi[oó]n\s*hidr[aá]ulica[:\s]*([0-9][0-9,.]*)\s*(bar|psi|MPa|kPa)`,
			),
		},
		{
			param: "hydraulic_flow_lpm", canon: "L/min", units: flowToLPM,
			patterns: compileAll(
				`(?:hydraulic|main\s*pump)\s*flow[:\s]*([0-9][0-9,.]*)\s*(l/min|gpm|gal/min)`,
				`caudal\s*hidr[aá]ulico[:\s]*([0-9][0-9,.]*)\s*(l/min)`,
			),
		},
		{
			param: "ground_pressure_kpa", canon: "kPa", units: pressureToKPA,
			patterns: compileAll(
				`ground\s*pressure[:\s]*([0-9][0-9,.]*)\s*(kPa|bar|psi|kg/cm2|kg/cm²)`,
				`presi[oó]n\s*(?:al|sobre\s*el|de)?\s*suelo[:\s]*([0-9][0-9,.]*)\s*(kPa|bar|psi|kg/cm2)`,
			),
		},
		{
			param: "gradeability_pct", canon: "%", units: gradeToPct,
			patterns: compileAll(
				`(?:max|maximum)?\s*(?:gradeability|grade|slope)[:\s]*([0-9][0-9,.]*)\s*(%|percent|degrees?|°)`,
				`pendiente\s*m[aá]xima[:\s]*([0-9][0-9,.]*)\s*(%|grados?|°)`,
			),
		},
		{
			param: "turning_radius_m", canon: "m", units: lengthToM,
			patterns: compileAll(
				`(?:turning|swing)\s*radius[:\s]*([0-9][0-9,.]*)\s*(mm|m|ft|feet)`,
				`radio\s*(?:de\s*)?giro[:\s]*([0-9][0-9,.]*)\s*(mm|m)`,
			),
		},
		{
			param: "digging_depth_m", canon: "m", units: lengthToM,
			patterns: compileAll(
				`(?:max|maximum)?\s*(?:digging|excavation)\s*depth[:\s]*([0-9][0-9,.]*)\s*(mm|m|ft|feet)`,
				`profundidad\s*(?:de\s*)?excavaci[oó]n[:\s]*([0-9][0-9,.]*)\s*(mm|m)`,
			),
		},
		{
			param: "max_reach_m", canon: "m", units: lengthToM,
			patterns: compileAll(
				`(?:max|maximum)?\s*(?:digging|reach)\s*(?:radius|reach|range)[:\s]*([0-9][0-9,.]*)\s*(mm|m|ft|feet)`,
				`alcance\s*m[aá]ximo[:\s]*([0-9][0-9,.]*)\s*(mm|m)`,
			),
		},
		{
			param: "dump_height_m", canon: "m", units: lengthToM,
			patterns: compileAll(
				`(?:dump|dumping|discharge|loading)\s*height[:\s]*([0-9][0-9,.]*)\s*(mm|m|ft|feet)`,
				`(?:dump|loading)\s*clearance[:\s]*([0-9][0-9,.]*)\s*(mm|m|ft)`,
				`altura\s*(?:de\s*)?descarga[:\s]*([0-9][0-9,.]*)\s*(mm|m)`,
			),
		},
		{
			param: "overall_width_m", canon: "m", units: lengthToM,
			patterns: compileAll(
				`(?:overall|total|machine)\s*width[:\s]*([0-9][0-9,.]*)\s*(mm|m|ft|feet|in)`,
				`ancho\s*(?:total|general)?[:\s]*([0-9][0-9,.]*)\s*(mm|m)`,
			),
		},
		{
			param: "overall_length_m", canon: "m", units: lengthToM,
			patterns: compileAll(
				`(?:overall|total|machine)\s*length[:\s]*([0-9][0-9,.]*)\s*(mm|m|ft|feet|in)`,
				`largo\s*(?:total|general)?[:\s]*([0-9][0-9,.]*)\s*(mm|m)`,
			),
		},
		{
			param: "overall_height_m", canon: "m", units: lengthToM,
			patterns: compileAll(
				`(?:overall|total|machine)\s*height[:\s]*([0-9][0-9,.]*)\s*(mm|m|ft|feet|in)`,
				`altura\s*(?:total|general)?[:\s]*([0-9][0-9,.]*)\s*(mm|m)`,
			),
		},
		{
			param: "track_shoe_width_mm", canon: "mm", units: widthToMM,
			patterns: compileAll(
				`(?:track|shoe)\s*width[:\s]*([0-9][0-9,.]*)\s*(mm|in|cm)`,
				`ancho\s*(?:de\s*)?(?:zapata|cadena)[:\s]*([0-9][0-9,.]*)\s*(mm|cm)`,
			),
		},
		{
			param: "system_voltage_v", canon: "V", units: voltageToV,
			patterns: compileAll(
				`(?:system|electrical|battery)\s*voltage[:\s]*([0-9][0-9,.]*)\s*(volts?|v)`,
				`voltaje\s*(?:del?\s*)?sistema[:\s]*([0-9][0-9,.]*)\s*(volt|v)`,
			),
		},
		{
			param: "forward_gears", canon: "", units: unitless,
			patterns: compileAll(
				`(?:forward\s*)?(?:gears?|speeds?)[:\s]*(\d{1,2})\s*(?:forward|fwd)`,
				`(\d{1,2})\s*(?:forward|fwd)\s*/\s*\d{1,2}\s*(?:reverse|rev)`,
				`transmission[:\s]*(\d{1,2})\s*(?:speed|gear)`,
			),
		},
		{
			param: "transmission_type", discrete: true,
			patterns: compileAll(
				`transmission\s*(?:type)?[:\s]*((?:electric|mechanical|hydrostatic|hydrodynamic|automatic|manual|planetary)\s*(?:drive|transmission)?(?:\s\w{1,30})?)`,
				`transmisi[oó]n[:\s]*((?:el[eé]ctrica|mec[aá]nica|hidrost[aá]tica|hidrodin[aá]mica|autom[aá]tica|planetaria)(?:\s\w{1,30})?)`,
			),
		},
		{
			param: "tire_size", discrete: true,
			patterns: compileAll(
				`(?:tire|tyre)\s*size[:\s]*(\d{2,3}[./]\d{2,3}[\s\-]*R?\s*\d{2,3})`,
				`(?:tire|tyre)s?[:\s]*(\d{2,3}\.\d{2}[\s\-]*R?\s*\d{2,3})`,
				`neum[aá]ticos?[:\s]*(\d{2,3}[./]\d{2,3}[\s\-]*R?\s*\d{2,3})`,
			),
		},
		{
			param: "undercarriage_type", discrete: true,
			patterns: compileAll(
				`(?:undercarriage|track)\s*(?:type|system)?[:\s]*((?:single|double|triple)\s*(?:grouser|track)\s*(?:shoe)?(?:\s*\w+)?)`,
			),
		},
	}
}

// isDegreeToken reports whether a gradeability unit token is in degrees.
// Degrees convert to percent grade via tan, which a linear factor cannot
// express, so the caller special-cases it.
func isDegreeToken(token string) bool {
	switch token {
	case "°", "degrees", "degree", "grados", "grado":
		return true
	}
	return false
}
