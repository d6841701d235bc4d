package esa

import (
	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/detector"
	"github.com/banshee-data/esa.report/internal/monitoring"
)

// ExposureTime returns the first positive collection time found under keys.
func ExposureTime(h detector.Header, keys []string) (float64, bool) {
	for _, k := range keys {
		if v, ok := h.Float(k); ok && v > 0 {
			return v, true
		}
	}
	return 0, false
}

// regionCollectionTime estimates the exposure of a region from its
// signal-to-noise ratio when the header has none.
func regionCollectionTime(snr float64) float64 {
	switch {
	case snr > 1000:
		return 10
	case snr > 100:
		return 5
	default:
		return 1
	}
}

// RateMeasurement is the count rate of one impact region at an angular
// position. Elevation is the inner angle and azimuth the horizontal value.
type RateMeasurement struct {
	Region    ImpactRegion `json:"region"`
	Elevation *float64     `json:"elevation,omitempty"`
	Azimuth   *float64     `json:"azimuth,omitempty"`

	CollectionTime float64 `json:"collection_time"`
	// TimeFromHeader is false when CollectionTime was estimated.
	TimeFromHeader bool    `json:"time_from_header"`
	CountRate      float64 `json:"count_rate"`
	// NormalizedIntensity is CountRate over the largest rate in the set.
	NormalizedIntensity float64 `json:"normalized_intensity"`
}

// MeasureRates extracts the impact region of every record, converts region
// counts to a rate and normalises the rates to the largest one. Records
// without a usable region are skipped.
func MeasureRates(recs []*catalog.FileRecord, opts Options) []RateMeasurement {
	var out []RateMeasurement
	for _, region := range ExtractImpactRegions(recs, opts) {
		rec := region.Record
		m := RateMeasurement{
			Region:    region,
			Elevation: rec.InnerAngle,
			Azimuth:   rec.Horizontal,
		}
		if t, ok := ExposureTime(rec.Frame().Header, opts.ExposureKeys); ok {
			m.CollectionTime, m.TimeFromHeader = t, true
		} else {
			m.CollectionTime = regionCollectionTime(region.SignalToNoise)
			monitoring.Debugf("Estimated collection time for %s: %gs (SNR %.1f)", rec.Path(), m.CollectionTime, region.SignalToNoise)
		}
		m.CountRate = region.RawCounts / m.CollectionTime
		out = append(out, m)
	}
	NormalizeRates(out)
	return out
}

// NormalizeRates sets NormalizedIntensity relative to the largest rate.
func NormalizeRates(ms []RateMeasurement) {
	peak := 0.0
	for _, m := range ms {
		peak = max(peak, m.CountRate)
	}
	for i := range ms {
		if peak > 0 {
			ms[i].NormalizedIntensity = ms[i].CountRate / peak
		} else {
			ms[i].NormalizedIntensity = 0
		}
	}
}
