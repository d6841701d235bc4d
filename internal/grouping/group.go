// Package grouping partitions catalog records into comparison groups: sets
// of files that share the same values for a chosen list of fixed parameters.
// For each group it detects which single parameter, if any, varies across
// the members.
package grouping

import (
	"sort"
	"strings"

	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/params"
)

// Varying names the parameter that differs across a group's members, or
// one of the sentinels None and Multiple.
type Varying string

const (
	// None means every member shares the same configuration: repeat
	// measurements.
	None Varying = "none"
	// Multiple means more than one parameter varies; the group is not a
	// clean single-variable sweep.
	Multiple Varying = "multiple"
)

// Field returns the varying parameter when exactly one was identified.
func (v Varying) Field() (params.Field, bool) {
	if v == None || v == Multiple || v == "" {
		return "", false
	}
	return params.Field(v), true
}

// FixedValue is one parameter value shared by every member of a group.
type FixedValue struct {
	Field params.Field `json:"field"`
	Value params.Value `json:"-"`
}

// Group is one comparison group.
type Group struct {
	// Fixed is ordered as params.Fields.
	Fixed   []FixedValue
	Varying Varying
	// VaryingFields lists every non-fixed parameter with more than one
	// distinct value; it has one entry when Varying is a field.
	VaryingFields []params.Field
	// Members are in discovery order.
	Members []*catalog.FileRecord
}

// Comparative reports whether the group has enough members to compare.
func (g Group) Comparative() bool {
	return len(g.Members) >= 2
}

// Value returns the fixed value of f.
func (g Group) Value(f params.Field) (params.Value, bool) {
	for _, fv := range g.Fixed {
		if fv.Field == f {
			return fv.Value, true
		}
	}
	return params.Value{}, false
}

// FixedFields returns the names of the fixed parameters.
func (g Group) FixedFields() []params.Field {
	out := make([]params.Field, len(g.Fixed))
	for i, fv := range g.Fixed {
		out[i] = fv.Field
	}
	return out
}

// FixedKey is a stable textual identity of the fixed values, e.g.
// "beam_energy_value=1000,inner_angle_value=62".
func (g Group) FixedKey() string {
	parts := make([]string, len(g.Fixed))
	for i, fv := range g.Fixed {
		parts[i] = string(fv.Field) + "=" + fv.Value.String()
	}
	return strings.Join(parts, ",")
}

// Paths returns the member paths in discovery order.
func (g Group) Paths() []string {
	out := make([]string, len(g.Members))
	for i, m := range g.Members {
		out[i] = m.Path()
	}
	return out
}

// VaryingValues returns the distinct values of the varying parameter,
// ascending. It is empty unless Varying names a field.
func (g Group) VaryingValues() []params.Value {
	f, ok := g.Varying.Field()
	if !ok {
		return nil
	}
	return distinct(g.Members, f)
}

func distinct(members []*catalog.FileRecord, f params.Field) []params.Value {
	seen := make(map[params.Value]bool)
	var out []params.Value
	for _, m := range members {
		v := m.Value(f)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return params.Compare(out[i], out[j]) < 0 })
	return out
}
