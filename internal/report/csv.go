package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/banshee-data/esa.report/internal/compare"
	"github.com/banshee-data/esa.report/internal/esa"
)

// CSVWriter wraps csv.Writer with methods for comparison output: one
// summary row per group and one member row per file.
type CSVWriter struct {
	Summary *csv.Writer
	Members *csv.Writer
}

// NewCSVWriter creates a new CSVWriter with the given summary and member writers.
func NewCSVWriter(summary, members io.Writer) *CSVWriter {
	return &CSVWriter{
		Summary: csv.NewWriter(summary),
		Members: csv.NewWriter(members),
	}
}

// WriteHeaders writes the headers to both summary and member CSV files.
func (c *CSVWriter) WriteHeaders() {
	c.writeSummaryHeader()
	c.writeMembersHeader()
}

func (c *CSVWriter) writeSummaryHeader() {
	header := []string{"group", "fixed", "varying", "members", "images", "histograms"}
	for _, m := range compare.ImageMetrics {
		header = append(header, m+"_mean", m+"_std")
	}
	for _, m := range compare.ImageMetrics {
		header = append(header, m+"_corr")
	}
	c.Summary.Write(header)
}

func (c *CSVWriter) writeMembersHeader() {
	c.Members.Write([]string{
		"group", "path", "varying_value",
		"min_value", "max_value", "mean_value", "std_value", "non_zero_pixels", "total_pixels",
		"peak_position", "peak_height", "total_counts", "mean_adc", "std_adc",
	})
}

// WriteResult writes one group's summary row and its member rows.
func (c *CSVWriter) WriteResult(n int, r compare.Result) {
	group := fmt.Sprintf("%d", n)
	row := []string{
		group,
		r.FixedKey(),
		string(r.Varying),
		fmt.Sprintf("%d", len(r.Members)),
		fmt.Sprintf("%d", len(r.Images)),
		fmt.Sprintf("%d", len(r.Histograms)),
	}
	for _, m := range compare.ImageMetrics {
		if a, ok := r.ImageSummary[m]; ok {
			row = append(row, fmt.Sprintf("%.6f", a.Mean), fmt.Sprintf("%.6f", a.Std))
		} else {
			row = append(row, "", "")
		}
	}
	for _, m := range compare.ImageMetrics {
		if v, ok := r.Correlations[m]; ok {
			row = append(row, fmt.Sprintf("%.6f", v))
		} else {
			row = append(row, "")
		}
	}
	c.Summary.Write(row)

	for _, s := range r.Images {
		c.Members.Write([]string{
			group, s.Path, s.Varying.String(),
			fmt.Sprintf("%.6f", s.Min),
			fmt.Sprintf("%.6f", s.Max),
			fmt.Sprintf("%.6f", s.Mean),
			fmt.Sprintf("%.6f", s.Std),
			fmt.Sprintf("%d", s.NonZero),
			fmt.Sprintf("%d", s.Pixels),
			"", "", "", "", "",
		})
	}
	for _, s := range r.Histograms {
		c.Members.Write([]string{
			group, s.Path, s.Varying.String(),
			"", "", "", "", "", "",
			fmt.Sprintf("%g", s.PeakBin),
			fmt.Sprintf("%g", s.PeakHeight),
			fmt.Sprintf("%g", s.TotalCounts),
			fmt.Sprintf("%.6f", s.MeanADC),
			fmt.Sprintf("%.6f", s.StdADC),
		})
	}
}

// Flush flushes both writers and returns the first error.
func (c *CSVWriter) Flush() error {
	c.Summary.Flush()
	c.Members.Flush()
	if err := c.Summary.Error(); err != nil {
		return err
	}
	return c.Members.Error()
}

// WriteComparisonCSV writes every result of sum.
func WriteComparisonCSV(summary, members io.Writer, sum compare.Summary) error {
	c := NewCSVWriter(summary, members)
	c.WriteHeaders()
	for i, r := range sum.Results {
		c.WriteResult(i+1, r)
	}
	return c.Flush()
}

// WriteKFactorCSV writes one row per k-factor measurement.
func WriteKFactorCSV(w io.Writer, est esa.KFactorEstimate) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{
		"path", "beam_energy_ev", "esa_voltage", "inner_angle", "inner_angle_range",
		"k_factor", "centroid_x", "centroid_y", "measured_deflection", "theoretical_deflection",
		"region_area", "signal_to_noise",
	})
	for _, m := range est.Measurements {
		rec := m.Region.Record
		angleRange := ""
		if rec.IsAngleRange() {
			angleRange = fmt.Sprintf("%g:%g", rec.InnerAngleRange.Min, rec.InnerAngleRange.Max)
		}
		cw.Write([]string{
			rec.Path(),
			fmt.Sprintf("%g", *rec.BeamEnergy),
			fmt.Sprintf("%g", *rec.ESAVoltage),
			optionalCSV(rec.InnerAngle),
			angleRange,
			fmt.Sprintf("%.6f", m.KFactor),
			fmt.Sprintf("%.3f", m.Region.CentroidX),
			fmt.Sprintf("%.3f", m.Region.CentroidY),
			fmt.Sprintf("%.6f", m.MeasuredDeflection),
			fmt.Sprintf("%.6f", m.TheoreticalDeflection),
			fmt.Sprintf("%d", m.Region.Area),
			fmt.Sprintf("%.3f", m.Region.SignalToNoise),
		})
	}
	cw.Flush()
	return cw.Error()
}

// WriteRatesCSV writes one row per rate measurement.
func WriteRatesCSV(w io.Writer, rates []esa.RateMeasurement) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{
		"path", "beam_energy_ev", "esa_voltage", "elevation", "azimuth",
		"raw_counts", "collection_time", "time_source", "count_rate", "normalized_intensity",
	})
	for _, r := range rates {
		rec := r.Region.Record
		source := "estimated"
		if r.TimeFromHeader {
			source = "header"
		}
		cw.Write([]string{
			rec.Path(),
			optionalCSV(rec.BeamEnergy),
			optionalCSV(rec.ESAVoltage),
			optionalCSV(r.Elevation),
			optionalCSV(r.Azimuth),
			fmt.Sprintf("%g", r.Region.RawCounts),
			fmt.Sprintf("%g", r.CollectionTime),
			source,
			fmt.Sprintf("%.6f", r.CountRate),
			fmt.Sprintf("%.6f", r.NormalizedIntensity),
		})
	}
	cw.Flush()
	return cw.Error()
}

// WriteMapCSV writes the non-zero pixels of an integrated map as x,y,rate.
func WriteMapCSV(w io.Writer, m *esa.IntegratedMap) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"x", "y", "rate"})
	rows, cols := m.Map.Dims()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if v := m.Map.At(y, x); v != 0 {
				cw.Write([]string{fmt.Sprintf("%d", x), fmt.Sprintf("%d", y), fmt.Sprintf("%.6f", v)})
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func optionalCSV(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}
