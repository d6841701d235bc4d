package esa

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/esa.report/internal/monitoring"
	"github.com/banshee-data/esa.report/internal/params"
)

// ErrNoMeasurements is returned when no region carries both a beam energy
// and a non-zero ESA voltage.
var ErrNoMeasurements = errors.New("no valid measurements for k-factor estimation")

// KFactor returns beam energy (eV) over the magnitude of the ESA voltage
// (V). It is absent when either parameter is absent or zero.
func KFactor(rec params.Record) (float64, bool) {
	if rec.BeamEnergy == nil || rec.ESAVoltage == nil {
		return 0, false
	}
	e, v := *rec.BeamEnergy, *rec.ESAVoltage
	if e == 0 || v == 0 {
		return 0, false
	}
	return e / math.Abs(v), true
}

// Measurement pairs an impact region with its k-factor and deflections.
type Measurement struct {
	Region ImpactRegion `json:"region"`
	// KFactor is E/|V| for the region's record.
	KFactor float64 `json:"k_factor"`
	// TheoreticalDeflection is V/E, a reference value only.
	TheoreticalDeflection float64 `json:"theoretical_deflection"`
	// MeasuredDeflection is the centroid offset from the detector center
	// as a fraction of the half-width.
	MeasuredDeflection float64 `json:"measured_deflection"`
}

// KFactorEstimate aggregates k-factors over a set of measurements. Std is
// the population standard deviation.
type KFactorEstimate struct {
	Mean         float64       `json:"k_factor_mean"`
	Std          float64       `json:"k_factor_std"`
	Median       float64       `json:"k_factor_median"`
	Min          float64       `json:"k_factor_min"`
	Max          float64       `json:"k_factor_max"`
	Measurements []Measurement `json:"measurements"`
}

// Count returns the number of measurements.
func (e KFactorEstimate) Count() int { return len(e.Measurements) }

// KFactors returns the per-measurement values in measurement order.
func (e KFactorEstimate) KFactors() []float64 {
	out := make([]float64, len(e.Measurements))
	for i, m := range e.Measurements {
		out[i] = m.KFactor
	}
	return out
}

// EstimateKFactors computes a k-factor for every region with a beam energy
// and ESA voltage and aggregates them.
func EstimateKFactors(regions []ImpactRegion, opts Options) (KFactorEstimate, error) {
	var est KFactorEstimate
	center := opts.DetectorCenterX
	for _, r := range regions {
		k, ok := KFactor(r.Record.Record)
		if !ok {
			continue
		}
		m := Measurement{
			Region:                r,
			KFactor:               k,
			TheoreticalDeflection: *r.Record.ESAVoltage / *r.Record.BeamEnergy,
		}
		if center != 0 {
			m.MeasuredDeflection = (r.CentroidX - center) / center
		}
		if ar := r.Record.InnerAngleRange; ar != nil {
			monitoring.Debugf("%s collected over angle range %.1f to %.1f, using midpoint %.1f",
				r.Path(), ar.Min, ar.Max, *r.Record.InnerAngle)
		}
		est.Measurements = append(est.Measurements, m)
	}
	if len(est.Measurements) == 0 {
		return est, ErrNoMeasurements
	}

	ks := est.KFactors()
	est.Mean, est.Std = stat.PopMeanStdDev(ks, nil)
	est.Min = floats.Min(ks)
	est.Max = floats.Max(ks)
	est.Median = median(ks)
	return est, nil
}

// median averages the two middle values of an even-length sample.
func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// GroupByBeamEnergy splits measurements per beam energy, ascending.
func GroupByBeamEnergy(ms []Measurement) ([]float64, map[float64][]Measurement) {
	groups := make(map[float64][]Measurement)
	for _, m := range ms {
		e := *m.Region.Record.BeamEnergy
		groups[e] = append(groups[e], m)
	}
	energies := make([]float64, 0, len(groups))
	for e := range groups {
		energies = append(energies, e)
	}
	sort.Float64s(energies)
	return energies, groups
}
