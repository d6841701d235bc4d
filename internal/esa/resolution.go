package esa

import (
	"sort"

	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/grouping"
	"github.com/banshee-data/esa.report/internal/params"
)

// ResolutionDataset is a set of images at one beam energy and one inner
// angle across several ESA voltages. An absent Angle means the files carry
// no angle and it is assumed constant.
type ResolutionDataset struct {
	BeamEnergy float64
	Angle      params.Value
	Voltages   []float64
	// Azimuths lists the distinct horizontal values when they vary within
	// a voltage step.
	Azimuths []float64
	Members  []*catalog.FileRecord
}

// ResolutionDatasets finds, per beam energy, the inner-angle groups with at
// least minVoltages distinct ESA voltages. With angleOverride, files
// without an angle join every angle group at their energy, as in
// grouping.GroupBy. Only image records with a beam energy and an ESA
// voltage are considered.
func ResolutionDatasets(recs []*catalog.FileRecord, minVoltages int, angleOverride bool) []ResolutionDataset {
	byEnergy := make(map[float64][]*catalog.FileRecord)
	for _, r := range recs {
		if r.BeamEnergy == nil || *r.BeamEnergy == 0 || r.ESAVoltage == nil {
			continue
		}
		if r.FileType != params.FileTypeFITS && r.FileType != params.FileTypeMap {
			continue
		}
		byEnergy[*r.BeamEnergy] = append(byEnergy[*r.BeamEnergy], r)
	}
	energies := make([]float64, 0, len(byEnergy))
	for e := range byEnergy {
		energies = append(energies, e)
	}
	sort.Float64s(energies)

	var out []ResolutionDataset
	opts := grouping.Options{MinSize: max(minVoltages, 1), AngleOverride: angleOverride}
	for _, e := range energies {
		groups, _ := grouping.GroupBy(byEnergy[e], []params.Field{params.InnerAngle}, opts)
		for _, g := range groups {
			ds := ResolutionDataset{BeamEnergy: e, Members: g.Members}
			ds.Angle, _ = g.Value(params.InnerAngle)
			ds.Voltages, ds.Azimuths = sweepAxes(g.Members)
			if len(ds.Voltages) >= minVoltages {
				out = append(out, ds)
			}
		}
	}
	return out
}

// sweepAxes returns the distinct voltages and, when some voltage step holds
// more than one horizontal value, the distinct horizontal values.
func sweepAxes(members []*catalog.FileRecord) (voltages, azimuths []float64) {
	perVoltage := make(map[float64]map[float64]bool)
	for _, m := range members {
		v := *m.ESAVoltage
		if perVoltage[v] == nil {
			perVoltage[v] = make(map[float64]bool)
		}
		if m.Horizontal != nil {
			perVoltage[v][*m.Horizontal] = true
		}
	}
	all := make(map[float64]bool)
	varies := false
	for v, hs := range perVoltage {
		voltages = append(voltages, v)
		if len(hs) > 1 {
			varies = true
		}
		for h := range hs {
			all[h] = true
		}
	}
	sort.Float64s(voltages)
	if varies {
		azimuths = sortedSet(all)
	}
	return voltages, azimuths
}
