package report

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/compare"
	"github.com/banshee-data/esa.report/internal/esa"
	"github.com/banshee-data/esa.report/internal/grouping"
	"github.com/banshee-data/esa.report/internal/params"
	"github.com/banshee-data/esa.report/internal/units"
	"github.com/banshee-data/esa.report/internal/version"
)

// Meta is printed at the top of every report.
type Meta struct {
	Generated time.Time
	DataDir   string
	// EnergyUnit is one of units.ValidUnits; empty means eV.
	EnergyUnit string
}

func (m Meta) header(w io.Writer, title string) {
	fmt.Fprintf(w, "# %s\n\n", title)
	fmt.Fprintf(w, "Generated %s from `%s` by esa.report %s (%s).\n\n",
		m.Generated.Format("2006-01-02 15:04:05"), m.DataDir, version.Version, version.GitSHA)
}

// formatValue renders a parameter value, converting beam energies.
func (m Meta) formatValue(f params.Field, v params.Value) string {
	if f == params.BeamEnergy {
		if e, ok := v.Float(); ok {
			return units.FormatEnergy(e, m.EnergyUnit)
		}
	}
	return v.String()
}

func joinValues(vals []params.Value, format func(params.Value) string) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = format(v)
	}
	return strings.Join(parts, ", ")
}

// WriteComparison renders the comparative analysis report: one section per
// group with its fixed and varying parameters and member statistics, then
// the run totals and the excluded files.
func WriteComparison(w io.Writer, sum compare.Summary, meta Meta) error {
	bw := bufio.NewWriter(w)
	meta.header(bw, "Comparative Analysis Report")

	files := make(map[string]bool)
	for _, r := range sum.Results {
		for _, p := range r.Paths() {
			files[p] = true
		}
	}
	fmt.Fprintf(bw, "Analyzed %d files across %d comparison groups.\n\n", len(files), len(sum.Results))

	for i, r := range sum.Results {
		writeResult(bw, i+1, r, meta)
	}

	fmt.Fprintf(bw, "## Summary\n\n")
	fmt.Fprintf(bw, "- Candidate fixed-parameter sets: %d\n", sum.Candidates)
	fmt.Fprintf(bw, "- Comparison groups: %d\n", len(sum.Results))
	fmt.Fprintf(bw, "- Groups below minimum size: %d\n", sum.Insufficient)
	fmt.Fprintf(bw, "- Groups with several varying parameters: %d\n", sum.MultipleDropped)
	fmt.Fprintf(bw, "- Duplicate groups removed: %d\n", sum.Duplicates)
	fmt.Fprintf(bw, "- Excluded files: %d\n\n", len(sum.Excluded))

	writeExcluded(bw, sum.Excluded)
	return bw.Flush()
}

func writeResult(w io.Writer, n int, r compare.Result, meta Meta) {
	fmt.Fprintf(w, "## %d. %s\n\n", n, r.FixedKey())

	fmt.Fprintf(w, "**Fixed parameters:**\n")
	for _, fv := range r.Fixed {
		fmt.Fprintf(w, "- %s: %s\n", fv.Field, meta.formatValue(fv.Field, fv.Value))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "**Varying parameter:** %s\n", r.Varying)
	if f, ok := r.Varying.Field(); ok {
		fmt.Fprintf(w, "**Values:** %s\n", joinValues(r.VaryingValues(), func(v params.Value) string {
			return meta.formatValue(f, v)
		}))
	} else if r.Varying == grouping.Multiple {
		names := make([]string, len(r.VaryingFields))
		for i, f := range r.VaryingFields {
			names[i] = string(f)
		}
		fmt.Fprintf(w, "**Varying together:** %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(w, "**Files analyzed:** %d\n\n", len(r.Members))

	if len(r.Images) > 0 {
		fmt.Fprintf(w, "| File | %s | Min | Max | Mean | Std | Non-zero pixels |\n", r.Varying)
		fmt.Fprintf(w, "|---|---|---|---|---|---|---|\n")
		for _, s := range r.Images {
			fmt.Fprintf(w, "| %s | %s | %.4g | %.4g | %.4g | %.4g | %d |\n",
				filepath.Base(s.Path), s.Varying, s.Min, s.Max, s.Mean, s.Std, s.NonZero)
		}
		fmt.Fprintln(w)

		fmt.Fprintf(w, "| Metric | Mean | Std | Min | Max |\n")
		fmt.Fprintf(w, "|---|---|---|---|---|\n")
		for _, m := range compare.ImageMetrics {
			a := r.ImageSummary[m]
			fmt.Fprintf(w, "| %s | %.4g | %.4g | %.4g | %.4g |\n", m, a.Mean, a.Std, a.Min, a.Max)
		}
		fmt.Fprintln(w)

		if len(r.Correlations) > 0 {
			fmt.Fprintf(w, "**Correlation with %s:**\n", r.Varying)
			for _, m := range compare.ImageMetrics {
				if c, ok := r.Correlations[m]; ok {
					fmt.Fprintf(w, "- %s: %.3f\n", m, c)
				}
			}
			fmt.Fprintln(w)
		}
	}

	if len(r.Histograms) > 0 {
		fmt.Fprintf(w, "| File | %s | Peak bin | Peak height | Total counts | Mean ADC | Std ADC |\n", r.Varying)
		fmt.Fprintf(w, "|---|---|---|---|---|---|---|\n")
		for _, s := range r.Histograms {
			fmt.Fprintf(w, "| %s | %s | %g | %g | %g | %.2f | %.2f |\n",
				filepath.Base(s.Path), s.Varying, s.PeakBin, s.PeakHeight, s.TotalCounts, s.MeanADC, s.StdADC)
		}
		fmt.Fprintln(w)
	}
}

func writeExcluded(w io.Writer, excluded []*catalog.FileRecord) {
	if len(excluded) == 0 {
		return
	}
	fmt.Fprintf(w, "## Excluded files\n\n")
	fmt.Fprintf(w, "| File | Reason |\n")
	fmt.Fprintf(w, "|---|---|\n")
	for _, r := range excluded {
		reason := "not loaded"
		if err := r.LoadError(); err != nil {
			reason = err.Error()
		}
		fmt.Fprintf(w, "| %s | %s |\n", filepath.Base(r.Path()), strings.ReplaceAll(reason, "|", "/"))
	}
	fmt.Fprintln(w)
}

// WriteKFactor renders the k-factor estimate with a per-energy breakdown and
// the individual measurements.
func WriteKFactor(w io.Writer, est esa.KFactorEstimate, excluded []*catalog.FileRecord, meta Meta) error {
	bw := bufio.NewWriter(w)
	meta.header(bw, "ESA K-Factor Analysis")

	fmt.Fprintf(bw, "- Measurements: %d\n", est.Count())
	fmt.Fprintf(bw, "- Mean k-factor: %.4f ± %.4f\n", est.Mean, est.Std)
	fmt.Fprintf(bw, "- Median k-factor: %.4f\n", est.Median)
	fmt.Fprintf(bw, "- Range: %.4f to %.4f\n\n", est.Min, est.Max)

	energies, byEnergy := esa.GroupByBeamEnergy(est.Measurements)
	fmt.Fprintf(bw, "## By beam energy\n\n")
	fmt.Fprintf(bw, "| Beam energy | Measurements | Mean k | Min k | Max k |\n")
	fmt.Fprintf(bw, "|---|---|---|---|---|\n")
	for _, e := range energies {
		ms := byEnergy[e]
		lo, hi, total := ms[0].KFactor, ms[0].KFactor, 0.0
		for _, m := range ms {
			lo, hi = min(lo, m.KFactor), max(hi, m.KFactor)
			total += m.KFactor
		}
		fmt.Fprintf(bw, "| %s | %d | %.4f | %.4f | %.4f |\n",
			units.FormatEnergy(e, meta.EnergyUnit), len(ms), total/float64(len(ms)), lo, hi)
	}
	fmt.Fprintln(bw)

	fmt.Fprintf(bw, "## Measurements\n\n")
	fmt.Fprintf(bw, "| File | Beam energy | ESA voltage (V) | Inner angle | k | Centroid X | Centroid Y | Deflection | SNR |\n")
	fmt.Fprintf(bw, "|---|---|---|---|---|---|---|---|---|\n")
	for _, m := range est.Measurements {
		rec := m.Region.Record
		fmt.Fprintf(bw, "| %s | %s | %g | %s | %.4f | %.1f | %.1f | %.4f | %.1f |\n",
			filepath.Base(rec.Path()), units.FormatEnergy(*rec.BeamEnergy, meta.EnergyUnit), *rec.ESAVoltage,
			angleText(rec.Record), m.KFactor, m.Region.CentroidX, m.Region.CentroidY,
			m.MeasuredDeflection, m.Region.SignalToNoise)
	}
	fmt.Fprintln(bw)

	writeExcluded(bw, excluded)
	return bw.Flush()
}

func angleText(rec params.Record) string {
	switch {
	case rec.IsAngleRange():
		return fmt.Sprintf("%g to %g", rec.InnerAngleRange.Min, rec.InnerAngleRange.Max)
	case rec.InnerAngle != nil:
		return fmt.Sprintf("%g", *rec.InnerAngle)
	}
	return "constant"
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

// WriteRates renders the count rate measurements, the integrated map
// summary and the angular resolution datasets. m and datasets may be nil.
func WriteRates(w io.Writer, rates []esa.RateMeasurement, m *esa.IntegratedMap, datasets []esa.ResolutionDataset, meta Meta) error {
	bw := bufio.NewWriter(w)
	meta.header(bw, "Count Rate Analysis")

	fmt.Fprintf(bw, "## Angular measurements\n\n")
	fmt.Fprintf(bw, "| File | Beam energy | ESA voltage (V) | Elevation | Azimuth | Time (s) | Rate (counts/s) | Normalized |\n")
	fmt.Fprintf(bw, "|---|---|---|---|---|---|---|---|\n")
	for _, r := range rates {
		rec := r.Region.Record
		timeText := fmt.Sprintf("%g", r.CollectionTime)
		if !r.TimeFromHeader {
			timeText += " (est.)"
		}
		energy := "-"
		if rec.BeamEnergy != nil {
			energy = units.FormatEnergy(*rec.BeamEnergy, meta.EnergyUnit)
		}
		fmt.Fprintf(bw, "| %s | %s | %s | %s | %s | %s | %.2f | %.3f |\n",
			filepath.Base(rec.Path()), energy, optional(rec.ESAVoltage), optional(r.Elevation), optional(r.Azimuth),
			timeText, r.CountRate, r.NormalizedIntensity)
	}
	fmt.Fprintln(bw)

	if m != nil {
		md := m.Metadata
		fmt.Fprintf(bw, "## Integrated map\n\n")
		fmt.Fprintf(bw, "- Files: %d\n", md.Files)
		fmt.Fprintf(bw, "- Total collection time: %.1f s\n", md.TotalCollectionTime)
		fmt.Fprintf(bw, "- Total raw counts: %.0f\n", md.TotalRawCounts)
		fmt.Fprintf(bw, "- Beam energies: %s\n", energyList(md.BeamEnergies, meta.EnergyUnit))
		fmt.Fprintf(bw, "- ESA voltages (V): %s\n", floatList(md.ESAVoltages))
		fmt.Fprintf(bw, "- Elevation range: %s\n", rangeText(md.ElevationRange))
		fmt.Fprintf(bw, "- Azimuth range: %s\n", rangeText(md.AzimuthRange))
		fmt.Fprintf(bw, "- Target count rate: %g counts/s\n", md.TargetCountRate)
		fmt.Fprintf(bw, "- Peak integrated rate: %.1f counts/s\n", md.PeakRate)
		fmt.Fprintf(bw, "- Active pixels: %d\n\n", md.ActivePixels)
	}

	if len(datasets) > 0 {
		fmt.Fprintf(bw, "## Angular resolution datasets\n\n")
		fmt.Fprintf(bw, "| Beam energy | Inner angle | ESA voltages (V) | Azimuths | Files |\n")
		fmt.Fprintf(bw, "|---|---|---|---|---|\n")
		for _, d := range datasets {
			angle := d.Angle.String()
			if d.Angle.IsAbsent() {
				angle = "constant"
			}
			az := "-"
			if len(d.Azimuths) > 0 {
				az = floatList(d.Azimuths)
			}
			fmt.Fprintf(bw, "| %s | %s | %s | %s | %d |\n",
				units.FormatEnergy(d.BeamEnergy, meta.EnergyUnit), angle, floatList(d.Voltages), az, len(d.Members))
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

func floatList(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, ", ")
}

func energyList(vs []float64, unit string) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = units.FormatEnergy(v, unit)
	}
	return strings.Join(parts, ", ")
}

func rangeText(r *esa.Range) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%g to %g", r.Min, r.Max)
}

// WriteOpportunities lists the preset comparisons available in the dataset.
func WriteOpportunities(w io.Writer, ops []compare.Opportunity) error {
	bw := bufio.NewWriter(w)
	for _, op := range ops {
		fmt.Fprintf(bw, "%s: %d groups (%s)\n", op.Preset.Name, len(op.Groups), op.Preset.Description)
		for _, g := range op.Groups {
			vals := distinctValues(g, op.Preset.Varying)
			fmt.Fprintf(bw, "  %s: %d files, %s = %s\n", g.FixedKey(), len(g.Members), op.Preset.Varying, vals)
		}
	}
	return bw.Flush()
}

func distinctValues(g grouping.Group, f params.Field) string {
	seen := make(map[params.Value]bool)
	var vals []params.Value
	for _, m := range g.Members {
		v := m.Value(f)
		if !seen[v] {
			seen[v] = true
			vals = append(vals, v)
		}
	}
	sort.Slice(vals, func(i, j int) bool { return params.Compare(vals[i], vals[j]) < 0 })
	return joinValues(vals, params.Value.String)
}
