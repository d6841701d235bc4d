package esa

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/monitoring"
)

// ErrNoContributions is returned when no record could be integrated.
var ErrNoContributions = errors.New("no map contributions")

// Contribution is one image's share of an integrated map.
type Contribution struct {
	Record *catalog.FileRecord `json:"-"`

	TotalCounts    float64 `json:"total_counts"`
	PeakCounts     float64 `json:"peak_counts"`
	NonZeroPixels  int     `json:"non_zero_pixels"`
	CollectionTime float64 `json:"collection_time"`
	TimeFromHeader bool    `json:"time_from_header"`
	CountRate      float64 `json:"count_rate"`
	// Scale is the factor applied to bring the image to the target rate.
	Scale         float64 `json:"scale"`
	SignalToNoise float64 `json:"signal_to_noise"`
	DataDensity   float64 `json:"data_density"`
}

// Path returns the source file of the contribution.
func (c Contribution) Path() string { return c.Record.Path() }

// Range is a closed interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MapMetadata describes an integrated map.
type MapMetadata struct {
	Files               int       `json:"total_files"`
	TotalCollectionTime float64   `json:"total_collection_time"`
	TotalRawCounts      float64   `json:"total_raw_counts"`
	BeamEnergies        []float64 `json:"beam_energies"`
	ESAVoltages         []float64 `json:"esa_voltages"`
	ElevationRange      *Range    `json:"elevation_range,omitempty"`
	AzimuthRange        *Range    `json:"azimuth_range,omitempty"`
	TargetCountRate     float64   `json:"target_count_rate"`
	PeakRate            float64   `json:"peak_integrated_rate"`
	TotalRate           float64   `json:"total_integrated_counts"`
	ActivePixels        int       `json:"active_pixels"`
}

// IntegratedMap is the sum of every contributing image after scaling each to
// the same total count rate.
type IntegratedMap struct {
	Map           *mat.Dense
	Contributions []Contribution
	Metadata      MapMetadata
}

// mapCollectionTime estimates the exposure of an image from its peak and
// coverage when the header has none.
func mapCollectionTime(total, peak float64, nonZero int) float64 {
	switch {
	case peak > 1000 && nonZero > 1000:
		return 10
	case peak > 100 && nonZero > 100:
		return 5
	case total > 10:
		return 1
	default:
		return 0.1
	}
}

// fitDetector returns a copy of img padded with zeros or cropped to
// rows x cols, anchored at the origin. Non-finite pixels become zero.
func fitDetector(img *mat.Dense, rows, cols int) *mat.Dense {
	out := mat.NewDense(rows, cols, nil)
	r, c := img.Dims()
	r, c = min(r, rows), min(c, cols)
	out.Slice(0, r, 0, c).(*mat.Dense).Copy(img.Slice(0, r, 0, c))
	out.Apply(func(_, _ int, v float64) float64 { return finite(v) }, out)
	return out
}

// Integrate scales every image in recs to opts.TargetCountRate and sums
// them on a DetectorHeight x DetectorWidth grid. Records that are not
// images or hold no counts are skipped.
func Integrate(recs []*catalog.FileRecord, opts Options) (*IntegratedMap, error) {
	rows, cols := opts.DetectorHeight, opts.DetectorWidth
	acc := mat.NewDense(rows, cols, nil)
	out := &IntegratedMap{Map: acc}

	var scaled mat.Dense
	for _, rec := range recs {
		img, err := imageOf(rec)
		if err != nil {
			logSkip(err)
			continue
		}
		if r, c := img.Dims(); r != rows || c != cols {
			monitoring.Debugf("%s: resizing %dx%d image to %dx%d", rec.Path(), r, c, rows, cols)
		}
		img = fitDetector(img, rows, cols)

		c, ok := contribution(rec, img, opts)
		if !ok {
			monitoring.Logf("Skipping empty map %s", rec.Path())
			continue
		}
		scaled.Scale(c.Scale, img)
		acc.Add(acc, &scaled)
		scaled.Reset()
		out.Contributions = append(out.Contributions, c)
	}
	if len(out.Contributions) == 0 {
		return nil, ErrNoContributions
	}
	out.Metadata = metadata(out, opts)
	monitoring.Logf("Integrated %d maps, %.1fs total collection, peak %.1f counts/s",
		out.Metadata.Files, out.Metadata.TotalCollectionTime, out.Metadata.PeakRate)
	return out, nil
}

func contribution(rec *catalog.FileRecord, img *mat.Dense, opts Options) (Contribution, bool) {
	raw := img.RawMatrix().Data
	c := Contribution{Record: rec}
	var signal, noise []float64
	for _, v := range raw {
		c.TotalCounts += v
		c.PeakCounts = max(c.PeakCounts, v)
		switch {
		case v > 0:
			signal = append(signal, v)
		case v == 0:
			noise = append(noise, v)
		}
		if v != 0 {
			c.NonZeroPixels++
		}
	}
	if c.TotalCounts == 0 {
		return c, false
	}

	if t, ok := ExposureTime(rec.Frame().Header, opts.ExposureKeys); ok {
		c.CollectionTime, c.TimeFromHeader = t, true
	} else {
		c.CollectionTime = mapCollectionTime(c.TotalCounts, c.PeakCounts, c.NonZeroPixels)
	}
	c.CountRate = c.TotalCounts / c.CollectionTime
	c.Scale = 1
	if c.CountRate > 0 {
		c.Scale = opts.TargetCountRate / c.CountRate
	}

	if len(signal) > 0 && len(noise) > 0 {
		_, std := stat.PopMeanStdDev(noise, nil)
		c.SignalToNoise = stat.Mean(signal, nil) / (std + snrEpsilon)
	} else {
		_, std := stat.PopMeanStdDev(raw, nil)
		c.SignalToNoise = c.PeakCounts / (std + snrEpsilon)
	}
	c.DataDensity = float64(c.NonZeroPixels) / float64(len(raw))
	return c, true
}

func metadata(m *IntegratedMap, opts Options) MapMetadata {
	md := MapMetadata{
		Files:           len(m.Contributions),
		TargetCountRate: opts.TargetCountRate,
		PeakRate:        mat.Max(m.Map),
		TotalRate:       mat.Sum(m.Map),
	}
	energies := make(map[float64]bool)
	voltages := make(map[float64]bool)
	for _, c := range m.Contributions {
		md.TotalCollectionTime += c.CollectionTime
		md.TotalRawCounts += c.TotalCounts
		if e := c.Record.BeamEnergy; e != nil {
			energies[*e] = true
		}
		if v := c.Record.ESAVoltage; v != nil {
			voltages[*v] = true
		}
		md.ElevationRange = extend(md.ElevationRange, c.Record.InnerAngle)
		md.AzimuthRange = extend(md.AzimuthRange, c.Record.Horizontal)
	}
	md.BeamEnergies = sortedSet(energies)
	md.ESAVoltages = sortedSet(voltages)
	for _, v := range m.Map.RawMatrix().Data {
		if v != 0 {
			md.ActivePixels++
		}
	}
	return md
}

func extend(r *Range, v *float64) *Range {
	if v == nil {
		return r
	}
	if r == nil {
		return &Range{Min: *v, Max: *v}
	}
	r.Min = min(r.Min, *v)
	r.Max = max(r.Max, *v)
	return r
}

func sortedSet(m map[float64]bool) []float64 {
	out := make([]float64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Float64s(out)
	return out
}
