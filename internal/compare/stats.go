package compare

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/params"
)

// Image metric names, used for aggregates and correlations.
const (
	MetricMin     = "min_value"
	MetricMax     = "max_value"
	MetricMean    = "mean_value"
	MetricStd     = "std_value"
	MetricNonZero = "non_zero_pixels"
)

// ImageMetrics lists the image metrics in report order.
var ImageMetrics = []string{MetricMin, MetricMax, MetricMean, MetricStd, MetricNonZero}

// ImageStats summarises one image member. Non-finite pixels are ignored.
type ImageStats struct {
	Path    string       `json:"path"`
	Varying params.Value `json:"-"`
	Min     float64      `json:"min_value"`
	Max     float64      `json:"max_value"`
	Mean    float64      `json:"mean_value"`
	Std     float64      `json:"std_value"`
	NonZero int          `json:"non_zero_pixels"`
	Pixels  int          `json:"total_pixels"`
}

// Metric returns the named metric.
func (s ImageStats) Metric(name string) float64 {
	switch name {
	case MetricMin:
		return s.Min
	case MetricMax:
		return s.Max
	case MetricMean:
		return s.Mean
	case MetricStd:
		return s.Std
	case MetricNonZero:
		return float64(s.NonZero)
	}
	return math.NaN()
}

// HistogramStats summarises one pulse height distribution member.
type HistogramStats struct {
	Path        string       `json:"path"`
	Varying     params.Value `json:"-"`
	PeakBin     float64      `json:"peak_position"`
	PeakHeight  float64      `json:"peak_height"`
	TotalCounts float64      `json:"total_counts"`
	MeanADC     float64      `json:"mean_adc"`
	StdADC      float64      `json:"std_adc"`
}

// Aggregate describes one metric across the members of a group. Std is the
// sample standard deviation and is zero for a single member.
type Aggregate struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

func imageStats(r *catalog.FileRecord, varying params.Field, hasVarying bool) ImageStats {
	frame := r.Frame()
	all := frame.Values()
	finite := make([]float64, 0, len(all))
	for _, v := range all {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}

	s := ImageStats{Path: r.Path(), NonZero: frame.NonZero(), Pixels: len(all)}
	if hasVarying {
		s.Varying = r.Value(varying)
	}
	if len(finite) == 0 {
		return s
	}
	s.Min = floats.Min(finite)
	s.Max = floats.Max(finite)
	s.Mean, s.Std = stat.PopMeanStdDev(finite, nil)
	return s
}

func histogramStats(r *catalog.FileRecord, varying params.Field, hasVarying bool) HistogramStats {
	h := r.Frame().Histogram
	s := HistogramStats{Path: r.Path()}
	if hasVarying {
		s.Varying = r.Value(varying)
	}
	if h.Len() == 0 {
		return s
	}
	peak := floats.MaxIdx(h.Counts)
	s.PeakBin = h.Bins[peak]
	s.PeakHeight = h.Counts[peak]
	s.TotalCounts = floats.Sum(h.Counts)
	if s.TotalCounts > 0 {
		s.MeanADC, s.StdADC = stat.PopMeanStdDev(h.Bins, h.Counts)
	}
	return s
}

func aggregate(values []float64) Aggregate {
	if len(values) == 0 {
		return Aggregate{}
	}
	a := Aggregate{Min: floats.Min(values), Max: floats.Max(values)}
	if len(values) == 1 {
		a.Mean = values[0]
		return a
	}
	a.Mean, a.Std = stat.MeanStdDev(values, nil)
	return a
}

// correlations returns the Pearson correlation of each image metric with the
// numeric varying value. Members without a numeric value are skipped, and
// metrics with no variance are omitted.
func correlations(images []ImageStats) map[string]float64 {
	var idx []int
	var xs []float64
	for i, s := range images {
		if v, ok := s.Varying.Float(); ok {
			idx = append(idx, i)
			xs = append(xs, v)
		}
	}
	if len(xs) < 2 {
		return nil
	}
	out := make(map[string]float64)
	ys := make([]float64, len(xs))
	for _, m := range ImageMetrics {
		for j, i := range idx {
			ys[j] = images[i].Metric(m)
		}
		if r := stat.Correlation(xs, ys, nil); !math.IsNaN(r) {
			out[m] = r
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
