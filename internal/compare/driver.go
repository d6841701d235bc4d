package compare

import (
	"sort"
	"strings"

	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/grouping"
	"github.com/banshee-data/esa.report/internal/monitoring"
	"github.com/banshee-data/esa.report/internal/params"
)

// Result is one comparison group with its statistics. A group holding both
// images and pulse height distributions carries both views.
type Result struct {
	grouping.Group
	// Candidate is the fixed set the group was first reached through.
	Candidate []params.Field

	Images     []ImageStats
	Histograms []HistogramStats

	// ImageSummary aggregates each image metric across Images.
	ImageSummary map[string]Aggregate
	// Correlations holds the Pearson correlation of each image metric with
	// a numeric varying parameter.
	Correlations map[string]float64
}

// Name is a short label such as "beam_energy_value=1000 / varying esa_voltage_value".
func (r Result) Name() string {
	return r.FixedKey() + " / varying " + string(r.Varying)
}

// Summary is the outcome of one Analyze run.
type Summary struct {
	Results []Result
	// Candidates is the number of fixed sets evaluated.
	Candidates int
	// Insufficient counts groups dropped below the member threshold.
	Insufficient int
	// MultipleDropped counts groups dropped because several parameters varied.
	MultipleDropped int
	// Duplicates counts groups already reached through another candidate.
	Duplicates int
	// Excluded lists records that failed to load or the quality check.
	Excluded []*catalog.FileRecord
}

// Analyze runs every candidate fixed set over the valid records of cat.
// Loading happens on demand unless the catalog was preloaded.
func Analyze(cat *catalog.Catalog, opts Options) Summary {
	valid := cat.Valid()
	sum := Summary{Excluded: cat.Invalid()}
	if len(sum.Excluded) > 0 {
		monitoring.Logf("Excluded %d of %d files from analysis", len(sum.Excluded), cat.Len())
	}
	sum.Results, sum.Candidates, sum.Insufficient, sum.MultipleDropped, sum.Duplicates = analyzeRecords(valid, opts)
	monitoring.Logf("Comparative analysis: %d candidates, %d groups (%d too small, %d multi-varying, %d duplicates)",
		sum.Candidates, len(sum.Results), sum.Insufficient, sum.MultipleDropped, sum.Duplicates)
	return sum
}

func analyzeRecords(valid []*catalog.FileRecord, opts Options) (results []Result, candidates, insufficient, multiple, duplicates int) {
	minSize := opts.MinMembers
	if minSize < 1 {
		minSize = 1
	}
	gopts := grouping.Options{MinSize: minSize, AngleOverride: opts.AngleOverride}

	seen := make(map[string]int)
	for _, cand := range Candidates(opts.Interesting, opts.MaxFixed) {
		candidates++
		groups, dropped := grouping.GroupBy(valid, cand, gopts)
		insufficient += dropped
		for _, g := range groups {
			if g.Varying == grouping.Multiple && !opts.IncludeMultiple {
				multiple++
				continue
			}
			key := identity(g)
			if i, ok := seen[key]; ok {
				duplicates++
				if len(g.Fixed) > len(results[i].Fixed) {
					results[i] = Result{Group: g, Candidate: cand}
				}
				monitoring.Debugf("duplicate group %q (kept %q)", g.FixedKey(), results[i].FixedKey())
				continue
			}
			seen[key] = len(results)
			results = append(results, Result{Group: g, Candidate: cand})
		}
	}

	for i := range results {
		computeStats(&results[i])
	}
	sortResults(results)
	return results, candidates, insufficient, multiple, duplicates
}

// identity is the member set plus the varying parameter; two groups with the
// same identity describe the same comparison.
func identity(g grouping.Group) string {
	p := g.Paths()
	sort.Strings(p)
	return string(g.Varying) + "\x00" + strings.Join(p, "\x00")
}

func computeStats(r *Result) {
	field, hasVarying := r.Varying.Field()
	for _, m := range r.Members {
		frame := m.Frame()
		switch {
		case frame.IsImage():
			r.Images = append(r.Images, imageStats(m, field, hasVarying))
		case frame.IsHistogram():
			r.Histograms = append(r.Histograms, histogramStats(m, field, hasVarying))
		}
	}
	if len(r.Images) == 0 {
		return
	}
	r.ImageSummary = make(map[string]Aggregate, len(ImageMetrics))
	values := make([]float64, len(r.Images))
	for _, metric := range ImageMetrics {
		for i, s := range r.Images {
			values[i] = s.Metric(metric)
		}
		r.ImageSummary[metric] = aggregate(values)
	}
	if hasVarying {
		r.Correlations = correlations(r.Images)
	}
}

// sortResults orders by fixed field names, fixed values, varying name, then
// first member path.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if c := compareFieldSets(a.FixedFields(), b.FixedFields()); c != 0 {
			return c < 0
		}
		for k := range a.Fixed {
			if c := params.Compare(a.Fixed[k].Value, b.Fixed[k].Value); c != 0 {
				return c < 0
			}
		}
		if a.Varying != b.Varying {
			return a.Varying < b.Varying
		}
		return a.Members[0].Path() < b.Members[0].Path()
	})
}

func compareFieldSets(a, b []params.Field) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(string(a[i]), string(b[i])); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}
