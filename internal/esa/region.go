// Package esa derives calibration metrics from detector images: impact
// regions, the analyzer k-factor, count rates and integrated count rate
// maps.
package esa

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/config"
	"github.com/banshee-data/esa.report/internal/monitoring"
)

var (
	// ErrNotImage is returned for records without a 2-D image.
	ErrNotImage = errors.New("not an image")
	// ErrNoSignal is returned when an image has no positive pixel.
	ErrNoSignal = errors.New("no signal")
	// ErrWeakSignal is returned when too few pixels exceed the noise threshold.
	ErrWeakSignal = errors.New("insufficient signal")
)

// snrEpsilon keeps the signal-to-noise ratio finite on noiseless images.
const snrEpsilon = 1e-10

// Options hold the thresholds and detector geometry used by the metrics.
type Options struct {
	// NoiseThreshold is the fraction of the peak a pixel must exceed to
	// belong to the impact region.
	NoiseThreshold float64
	MinRegionSize  int
	// DetectorCenterX is the column measured deflections are relative to.
	DetectorCenterX float64
	// ExposureKeys are header keywords searched, in order, for the
	// collection time in seconds.
	ExposureKeys    []string
	TargetCountRate float64
	DetectorWidth   int
	DetectorHeight  int
}

// DefaultOptions returns the settings for the 1024x1024 detector.
func DefaultOptions() Options {
	return OptionsFromConfig(config.EmptyAnalysisConfig())
}

// OptionsFromConfig maps an analysis config onto metric options.
func OptionsFromConfig(cfg *config.AnalysisConfig) Options {
	return Options{
		NoiseThreshold:  cfg.GetNoiseThreshold(),
		MinRegionSize:   cfg.GetMinRegionSize(),
		DetectorCenterX: cfg.GetDetectorCenterX(),
		ExposureKeys:    cfg.GetExposureKeys(),
		TargetCountRate: cfg.GetTargetCountRate(),
		DetectorWidth:   cfg.GetDetectorWidth(),
		DetectorHeight:  cfg.GetDetectorHeight(),
	}
}

// ImpactRegion describes where the beam hit the detector. Intensities are
// relative to the image peak; RawCounts and PeakCounts are in detector
// counts.
type ImpactRegion struct {
	Record *catalog.FileRecord `json:"-"`

	CentroidX float64 `json:"centroid_x"`
	CentroidY float64 `json:"centroid_y"`
	// Area is the number of pixels above the threshold.
	Area           int     `json:"region_area"`
	TotalIntensity float64 `json:"total_intensity"`
	PeakCounts     float64 `json:"peak_counts"`
	RawCounts      float64 `json:"raw_counts"`

	MinX int `json:"min_x"`
	MaxX int `json:"max_x"`
	MinY int `json:"min_y"`
	MaxY int `json:"max_y"`

	SignalToNoise float64 `json:"signal_to_noise"`
	// DataDensity is Area over the image size.
	DataDensity float64 `json:"data_density"`
}

// Path returns the source file of the region.
func (r ImpactRegion) Path() string { return r.Record.Path() }

// ExtractImpactRegion normalises the image to its peak and returns the
// weighted centroid, bounds and quality of the pixels above
// opts.NoiseThreshold. Non-finite pixels count as zero.
func ExtractImpactRegion(rec *catalog.FileRecord, opts Options) (ImpactRegion, error) {
	img, err := imageOf(rec)
	if err != nil {
		return ImpactRegion{}, err
	}
	rows, cols := img.Dims()

	peak := 0.0
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if v := finite(img.At(y, x)); v > peak {
				peak = v
			}
		}
	}
	if peak <= 0 {
		return ImpactRegion{}, fmt.Errorf("%s: %w", rec.Path(), ErrNoSignal)
	}

	region := ImpactRegion{
		Record:     rec,
		PeakCounts: peak,
		MinX:       cols,
		MinY:       rows,
		MaxX:       -1,
		MaxY:       -1,
	}
	var signal, noise []float64
	var sx, sy float64
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			raw := finite(img.At(y, x))
			v := raw / peak
			if v <= opts.NoiseThreshold {
				noise = append(noise, v)
				continue
			}
			signal = append(signal, v)
			sx += v * float64(x)
			sy += v * float64(y)
			region.RawCounts += raw
			region.MinX = min(region.MinX, x)
			region.MaxX = max(region.MaxX, x)
			region.MinY = min(region.MinY, y)
			region.MaxY = max(region.MaxY, y)
		}
	}
	if len(signal) < opts.MinRegionSize || len(signal) == 0 {
		return ImpactRegion{}, fmt.Errorf("%s: %w: %d pixels above threshold", rec.Path(), ErrWeakSignal, len(signal))
	}

	region.Area = len(signal)
	for _, v := range signal {
		region.TotalIntensity += v
	}
	region.CentroidX = sx / region.TotalIntensity
	region.CentroidY = sy / region.TotalIntensity
	region.DataDensity = float64(region.Area) / float64(rows*cols)

	noiseStd := 0.0
	if len(noise) > 0 {
		_, noiseStd = stat.PopMeanStdDev(noise, nil)
	}
	region.SignalToNoise = stat.Mean(signal, nil) / (noiseStd + snrEpsilon)
	return region, nil
}

// ExtractImpactRegions runs ExtractImpactRegion over recs and returns the
// regions found. Records without a usable region are logged and skipped.
func ExtractImpactRegions(recs []*catalog.FileRecord, opts Options) []ImpactRegion {
	var out []ImpactRegion
	for _, r := range recs {
		region, err := ExtractImpactRegion(r, opts)
		if err != nil {
			logSkip(err)
			continue
		}
		out = append(out, region)
	}
	return out
}

func logSkip(err error) {
	monitoring.Logf("Skipping %v", err)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// imageOf returns the record's image, its load error, or ErrNotImage.
func imageOf(rec *catalog.FileRecord) (*mat.Dense, error) {
	if !rec.Valid() {
		return nil, fmt.Errorf("%s: %w", rec.Path(), rec.LoadError())
	}
	frame := rec.Frame()
	if !frame.IsImage() {
		return nil, fmt.Errorf("%s: %w", rec.Path(), ErrNotImage)
	}
	return frame.Image, nil
}
