package grouping

import (
	"sort"
	"strings"

	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/params"
)

// Options control GroupBy.
type Options struct {
	// MinSize drops groups with fewer members. Values below 1 mean 1.
	MinSize int
	// AngleOverride treats a record with no angle as matching any fixed
	// angle value: the angle is assumed constant for that acquisition.
	AngleOverride bool
}

// DefaultOptions keeps single-member groups and applies the angle override.
func DefaultOptions() Options {
	return Options{MinSize: 1, AngleOverride: true}
}

// Valuer is anything exposing parameters through the uniform accessor.
type Valuer interface {
	Value(params.Field) params.Value
}

// Matches reports whether rec belongs to a group with the given fixed
// values. Values must be equal, with absent equal to absent; with override,
// an absent angle matches any fixed angle.
func Matches(fixed []FixedValue, rec Valuer, override bool) bool {
	for _, fv := range fixed {
		v := rec.Value(fv.Field)
		if v == fv.Value {
			continue
		}
		if override && fv.Field.IsAngle() && v.IsAbsent() {
			continue
		}
		return false
	}
	return true
}

// GroupBy partitions records on the fixed fields and returns the groups
// ordered by their first member, plus the number of groups dropped for
// being smaller than opts.MinSize.
//
// Records carrying every fixed value are partitioned exactly once. With
// the angle override, a record missing a fixed angle joins every group that
// matches its other fixed values; if no such group exists, records missing
// the angle are grouped among themselves.
func GroupBy(records []*catalog.FileRecord, fixed []params.Field, opts Options) ([]Group, int) {
	fixed = normalizeFields(fixed)
	if opts.MinSize < 1 {
		opts.MinSize = 1
	}

	var (
		groups   []*Group
		index    = make(map[string]*Group)
		floating []*catalog.FileRecord
	)

	for _, r := range records {
		if opts.AngleOverride && missingAngle(r, fixed) {
			floating = append(floating, r)
			continue
		}
		key, values := keyOf(r, fixed)
		g, ok := index[key]
		if !ok {
			g = &Group{Fixed: values}
			index[key] = g
			groups = append(groups, g)
		}
		g.Members = append(g.Members, r)
	}
	anchored := groups

	orphanIndex := make(map[string]*Group)
	for _, r := range floating {
		joined := false
		for _, g := range anchored {
			if Matches(g.Fixed, r, true) {
				g.Members = append(g.Members, r)
				joined = true
			}
		}
		if joined {
			continue
		}
		key, values := keyOf(r, fixed)
		g, ok := orphanIndex[key]
		if !ok {
			g = &Group{Fixed: values}
			orphanIndex[key] = g
			groups = append(groups, g)
		}
		g.Members = append(g.Members, r)
	}

	out := make([]Group, 0, len(groups))
	dropped := 0
	for _, g := range groups {
		if len(g.Members) < opts.MinSize {
			dropped++
			continue
		}
		sort.SliceStable(g.Members, func(i, j int) bool {
			return g.Members[i].Index() < g.Members[j].Index()
		})
		g.VaryingFields = varyingFields(g.Members, fixed)
		switch len(g.VaryingFields) {
		case 0:
			g.Varying = None
		case 1:
			g.Varying = Varying(g.VaryingFields[0])
		default:
			g.Varying = Multiple
		}
		out = append(out, *g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Members[0].Index() < out[j].Members[0].Index()
	})
	return out, dropped
}

// normalizeFields removes duplicates and orders fields as params.Fields.
func normalizeFields(fields []params.Field) []params.Field {
	want := make(map[params.Field]bool, len(fields))
	for _, f := range fields {
		want[f] = true
	}
	out := make([]params.Field, 0, len(want))
	for _, f := range params.Fields {
		if want[f] {
			out = append(out, f)
		}
	}
	return out
}

func missingAngle(r Valuer, fixed []params.Field) bool {
	for _, f := range fixed {
		if f.IsAngle() && r.Value(f).IsAbsent() {
			return true
		}
	}
	return false
}

func keyOf(r Valuer, fixed []params.Field) (string, []FixedValue) {
	values := make([]FixedValue, len(fixed))
	parts := make([]string, len(fixed))
	for i, f := range fixed {
		v := r.Value(f)
		values[i] = FixedValue{Field: f, Value: v}
		// Kind prefix keeps absent distinct from any printed value.
		parts[i] = string(rune('0'+v.Kind())) + v.String()
	}
	return strings.Join(parts, "\x00"), values
}

// varyingFields scans the experimental parameters outside the fixed set and
// returns those with more than one distinct value among members. Absent is
// a distinct value.
func varyingFields(members []*catalog.FileRecord, fixed []params.Field) []params.Field {
	isFixed := make(map[params.Field]bool, len(fixed))
	for _, f := range fixed {
		isFixed[f] = true
	}
	var out []params.Field
	for _, f := range params.ExperimentalFields {
		if isFixed[f] {
			continue
		}
		first := members[0].Value(f)
		for _, m := range members[1:] {
			if m.Value(f) != first {
				out = append(out, f)
				break
			}
		}
	}
	return out
}
