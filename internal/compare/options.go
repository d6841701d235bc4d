// Package compare drives the comparative analysis: it enumerates candidate
// fixed-parameter sets, groups the valid catalog records for each, computes
// per-group statistics and returns a deduplicated, deterministically ordered
// list of comparison results.
package compare

import (
	"github.com/banshee-data/esa.report/internal/config"
	"github.com/banshee-data/esa.report/internal/params"
)

// Options control Analyze.
type Options struct {
	// Interesting lists the parameters candidate fixed sets are drawn from.
	Interesting []params.Field
	// MaxFixed bounds the size of a candidate fixed set.
	MaxFixed int
	// MinMembers drops groups with fewer members.
	MinMembers int
	// IncludeMultiple keeps groups where more than one parameter varies.
	IncludeMultiple bool
	// AngleOverride is passed through to the grouping engine.
	AngleOverride bool
}

// DefaultOptions returns singletons and pairs of beam energy, ESA voltage and
// inner angle, groups of at least two, and the angle override.
func DefaultOptions() Options {
	return Options{
		Interesting:   []params.Field{params.BeamEnergy, params.ESAVoltage, params.InnerAngle},
		MaxFixed:      2,
		MinMembers:    2,
		AngleOverride: true,
	}
}

// OptionsFromConfig maps an analysis config onto driver options.
func OptionsFromConfig(cfg *config.AnalysisConfig) Options {
	return Options{
		Interesting:     cfg.GetInterestingParams(),
		MaxFixed:        cfg.GetMaxFixedParams(),
		MinMembers:      cfg.GetMinGroupSize(),
		IncludeMultiple: cfg.GetIncludeMultiple(),
		AngleOverride:   cfg.GetAngleOverride(),
	}
}

// Candidates returns every non-empty subset of fields with at most maxSize
// elements, smaller subsets first, each subset in the order of fields.
// Duplicate fields are ignored.
func Candidates(fields []params.Field, maxSize int) [][]params.Field {
	var uniq []params.Field
	seen := make(map[params.Field]bool)
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			uniq = append(uniq, f)
		}
	}
	if maxSize > len(uniq) {
		maxSize = len(uniq)
	}

	var out [][]params.Field
	var pick func(start, size int, cur []params.Field)
	pick = func(start, size int, cur []params.Field) {
		if len(cur) == size {
			out = append(out, append([]params.Field(nil), cur...))
			return
		}
		for i := start; i < len(uniq); i++ {
			pick(i+1, size, append(cur, uniq[i]))
		}
	}
	for size := 1; size <= maxSize; size++ {
		pick(0, size, nil)
	}
	return out
}
