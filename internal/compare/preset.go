package compare

import (
	"fmt"

	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/grouping"
	"github.com/banshee-data/esa.report/internal/params"
)

// Preset is a named comparison with a fixed set and the parameter expected
// to vary.
type Preset struct {
	Name        string
	Description string
	Fixed       []params.Field
	Varying     params.Field
}

// Presets are the standard comparisons run against every dataset.
var Presets = []Preset{
	{
		Name:        "beam_energy_sweep",
		Description: "Compare different beam energies with fixed ESA voltage and angle",
		Fixed:       []params.Field{params.ESAVoltage, params.InnerAngle},
		Varying:     params.BeamEnergy,
	},
	{
		Name:        "voltage_sweep",
		Description: "Compare different ESA voltages with fixed beam energy and angle",
		Fixed:       []params.Field{params.BeamEnergy, params.InnerAngle},
		Varying:     params.ESAVoltage,
	},
	{
		Name:        "angle_sweep",
		Description: "Compare different angles with fixed beam energy and ESA voltage",
		Fixed:       []params.Field{params.BeamEnergy, params.ESAVoltage},
		Varying:     params.InnerAngle,
	},
	{
		Name:        "temporal_analysis",
		Description: "Compare measurements over time with fixed experimental parameters",
		Fixed:       []params.Field{params.BeamEnergy, params.ESAVoltage, params.InnerAngle},
		Varying:     params.Timestamp,
	},
}

// LookupPreset returns the preset with the given name.
func LookupPreset(name string) (Preset, error) {
	for _, p := range Presets {
		if p.Name == name {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("unknown comparison preset %q", name)
}

// FindComparisonSets groups records on fixed and keeps the groups of at
// least two members where varying takes at least two distinct values. Other
// parameters may vary too.
func FindComparisonSets(records []*catalog.FileRecord, fixed []params.Field, varying params.Field, angleOverride bool) []grouping.Group {
	groups, _ := grouping.GroupBy(records, fixed, grouping.Options{MinSize: 2, AngleOverride: angleOverride})
	var out []grouping.Group
	for _, g := range groups {
		if distinctCount(g.Members, varying) > 1 {
			out = append(out, g)
		}
	}
	return out
}

// Opportunity is the set of groups available for one preset.
type Opportunity struct {
	Preset Preset
	Groups []grouping.Group
}

// Opportunities runs every preset over records and returns those with at
// least one group, in preset order.
func Opportunities(records []*catalog.FileRecord, angleOverride bool) []Opportunity {
	var out []Opportunity
	for _, p := range Presets {
		groups := FindComparisonSets(records, p.Fixed, p.Varying, angleOverride)
		if len(groups) > 0 {
			out = append(out, Opportunity{Preset: p, Groups: groups})
		}
	}
	return out
}

func distinctCount(members []*catalog.FileRecord, f params.Field) int {
	seen := make(map[params.Value]bool)
	for _, m := range members {
		seen[m.Value(f)] = true
	}
	return len(seen)
}
