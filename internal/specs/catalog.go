package specs

// ParamSpec declares one known technical parameter: its canonical unit, the
// physically plausible range in that unit, and the clustering tolerance used
// when reconciling values from different sources. Discrete parameters have no
// unit and cluster by exact normalized string match.
type ParamSpec struct {
	Name         string
	Numeric      bool
	Unit         string
	Min          float64
	Max          float64
	TolerancePct float64
}

// Catalog maps canonical parameter names to their declarations.
type Catalog map[string]ParamSpec

// Lookup returns the declaration for name, if known.
func (c Catalog) Lookup(name string) (ParamSpec, bool) {
	p, ok := c[name]
	return p, ok
}

// DefaultCatalog returns the built-in parameter table for heavy mining
// equipment. Ranges are deliberately generous: they cover everything from a
// 10 t utility excavator to a 450 t ultra-class haul truck. Configuration may
// override any range or tolerance at load time.
func DefaultCatalog() Catalog {
	params := []ParamSpec{
		{Name: "operating_weight_kg", Numeric: true, Unit: "kg", Min: 10_000, Max: 1_500_000, TolerancePct: 5},
		{Name: "empty_weight_kg", Numeric: true, Unit: "kg", Min: 8_000, Max: 1_200_000, TolerancePct: 5},
		{Name: "payload_kg", Numeric: true, Unit: "kg", Min: 20_000, Max: 500_000, TolerancePct: 5},
		{Name: "lift_capacity_kg", Numeric: true, Unit: "kg", Min: 5_000, Max: 500_000, TolerancePct: 5},
		{Name: "engine_power_kw", Numeric: true, Unit: "kW", Min: 37, Max: 3_728, TolerancePct: 3},
		{Name: "engine_model", Numeric: false},
		{Name: "torque_nm", Numeric: true, Unit: "Nm", Min: 100, Max: 30_000, TolerancePct: 5},
		{Name: "displacement_l", Numeric: true, Unit: "L", Min: 3, Max: 120, TolerancePct: 2},
		{Name: "cylinder_count", Numeric: true, Unit: "", Min: 1, Max: 20, TolerancePct: 0},
		{Name: "emissions_standard", Numeric: false},
		{Name: "bucket_capacity_m3", Numeric: true, Unit: "m3", Min: 1, Max: 65, TolerancePct: 8},
		{Name: "dipper_capacity_m3", Numeric: true, Unit: "m3", Min: 1, Max: 65, TolerancePct: 8},
		{Name: "fuel_tank_l", Numeric: true, Unit: "L", Min: 100, Max: 10_000, TolerancePct: 5},
		{Name: "top_speed_kmh", Numeric: true, Unit: "km/h", Min: 5, Max: 70, TolerancePct: 5},
		{Name: "retarder_speed_kmh", Numeric: true, Unit: "km/h", Min: 5, Max: 70, TolerancePct: 10},
		{Name: "swing_speed_rpm", Numeric: true, Unit: "rpm", Min: 1, Max: 15, TolerancePct: 10},
		{Name: "fuel_consumption_lph", Numeric: true, Unit: "L/h", Min: 10, Max: 1_000, TolerancePct: 10},
		{Name: "breakout_force_kn", Numeric: true, Unit: "kN", Min: 50, Max: 3_000, TolerancePct: 5},
		{Name: "max_rimpull_kn", Numeric: true, Unit: "kN", Min: 50, Max: 2_000, TolerancePct: 5},
		{Name: "hydraulic_pressure_kpa", Numeric: true, Unit: "kPa", Min: 10_000, Max: 60_000, TolerancePct: 3},
		{Name: "hydraulic_flow_lpm", Numeric: true, Unit: "L/min", Min: 50, Max: 5_000, TolerancePct: 10},
		{Name: "ground_pressure_kpa", Numeric: true, Unit: "kPa", Min: 20, Max: 300, TolerancePct: 10},
		{Name: "gradeability_pct", Numeric: true, Unit: "%", Min: 10, Max: 70, TolerancePct: 10},
		{Name: "turning_radius_m", Numeric: true, Unit: "m", Min: 3, Max: 30, TolerancePct: 10},
		{Name: "digging_depth_m", Numeric: true, Unit: "m", Min: 1, Max: 25, TolerancePct: 10},
		{Name: "max_reach_m", Numeric: true, Unit: "m", Min: 3, Max: 30, TolerancePct: 10},
		{Name: "dump_height_m", Numeric: true, Unit: "m", Min: 2, Max: 25, TolerancePct: 10},
		{Name: "overall_width_m", Numeric: true, Unit: "m", Min: 2, Max: 15, TolerancePct: 10},
		{Name: "overall_length_m", Numeric: true, Unit: "m", Min: 3, Max: 25, TolerancePct: 10},
		{Name: "overall_height_m", Numeric: true, Unit: "m", Min: 2, Max: 15, TolerancePct: 10},
		{Name: "track_shoe_width_mm", Numeric: true, Unit: "mm", Min: 300, Max: 1_500, TolerancePct: 10},
		{Name: "system_voltage_v", Numeric: true, Unit: "V", Min: 12, Max: 1_200, TolerancePct: 1},
		{Name: "forward_gears", Numeric: true, Unit: "", Min: 1, Max: 12, TolerancePct: 0},
		{Name: "transmission_type", Numeric: false},
		{Name: "tire_size", Numeric: false},
		{Name: "undercarriage_type", Numeric: false},
	}
	catalog := make(Catalog, len(params))
	for _, p := range params {
		catalog[p.Name] = p
	}
	return catalog
}
