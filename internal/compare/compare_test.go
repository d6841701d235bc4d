package compare

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/config"
	"github.com/banshee-data/esa.report/internal/detector"
	"github.com/banshee-data/esa.report/internal/grouping"
	"github.com/banshee-data/esa.report/internal/params"
	"github.com/banshee-data/esa.report/internal/testutil"
)

type mapLoader map[string]*detector.Frame

func (m mapLoader) Load(path string) (*detector.Frame, error) {
	f, ok := m[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return f, nil
}

func img(values ...float64) *detector.Frame {
	return &detector.Frame{Image: mat.NewDense(1, len(values), values)}
}

func phd(bins, counts []float64) *detector.Frame {
	return &detector.Frame{Histogram: &detector.Histogram{Bins: bins, Counts: counts}}
}

// build registers names in order, each with its frame.
func build(t *testing.T, files ...any) *catalog.Catalog {
	t.Helper()
	require.Zero(t, len(files)%2)
	loader := mapLoader{}
	cat := catalog.New(loader)
	for i := 0; i < len(files); i += 2 {
		name := files[i].(testutil.Name).String()
		if f := files[i+1]; f != nil {
			loader[name] = f.(*detector.Frame)
		}
		cat.Register(name)
	}
	return cat
}

func TestCandidates(t *testing.T) {
	got := Candidates(DefaultOptions().Interesting, 2)
	want := [][]params.Field{
		{params.BeamEnergy},
		{params.ESAVoltage},
		{params.InnerAngle},
		{params.BeamEnergy, params.ESAVoltage},
		{params.BeamEnergy, params.InnerAngle},
		{params.ESAVoltage, params.InnerAngle},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Candidates mismatch (-want +got):\n%s", diff)
	}

	assert.Len(t, Candidates(DefaultOptions().Interesting, 3), 7)
	assert.Len(t, Candidates([]params.Field{params.BeamEnergy, params.BeamEnergy}, 2), 1)
	assert.Empty(t, Candidates(nil, 2))
}

func TestAnalyze_VoltageSweep(t *testing.T) {
	cat := build(t,
		testutil.Name{Inner: "62", Beam: "1000", ESA: "-185"}, img(0, 2, 4, 6),
		testutil.Name{Inner: "62", Beam: "1000", ESA: "-181"}, img(0, 4, 8, 12),
	)

	sum := Analyze(cat, DefaultOptions())
	require.Len(t, sum.Results, 1)
	assert.Equal(t, 6, sum.Candidates)
	assert.Equal(t, 6, sum.Insufficient)
	assert.Equal(t, 2, sum.Duplicates)
	assert.Zero(t, sum.MultipleDropped)
	assert.Empty(t, sum.Excluded)

	r := sum.Results[0]
	assert.Equal(t, grouping.Varying(params.ESAVoltage), r.Varying)
	assert.Equal(t, []params.Field{params.BeamEnergy, params.InnerAngle}, r.FixedFields())
	assert.Equal(t, []params.Field{params.BeamEnergy, params.InnerAngle}, r.Candidate)
	assert.Equal(t, "beam_energy_value=1000,inner_angle_value=62 / varying esa_voltage_value", r.Name())

	require.Len(t, r.Images, 2)
	first := r.Images[0]
	assert.Equal(t, 0.0, first.Min)
	assert.Equal(t, 6.0, first.Max)
	assert.Equal(t, 3.0, first.Mean)
	assert.InDelta(t, math.Sqrt(5), first.Std, 1e-12)
	assert.Equal(t, 3, first.NonZero)
	assert.Equal(t, 4, first.Pixels)
	assert.Equal(t, params.NumberValue(-185), first.Varying)

	mean := r.ImageSummary[MetricMean]
	assert.Equal(t, 4.5, mean.Mean)
	assert.InDelta(t, math.Sqrt(4.5), mean.Std, 1e-12)
	assert.Equal(t, 3.0, mean.Min)
	assert.Equal(t, 6.0, mean.Max)

	assert.InDelta(t, 1.0, r.Correlations[MetricMean], 1e-12)
	assert.NotContains(t, r.Correlations, MetricNonZero)
}

func TestAnalyze_OrderAndDedup(t *testing.T) {
	cat := build(t,
		testutil.Name{Inner: "62", Beam: "5000", ESA: "-900"}, img(1),
		testutil.Name{Inner: "62", Beam: "5000", ESA: "-905"}, img(2),
		testutil.Name{Inner: "62", Beam: "1000", ESA: "-181"}, img(3),
		testutil.Name{Inner: "62", Beam: "1000", ESA: "-185"}, img(4),
	)

	sum := Analyze(cat, DefaultOptions())
	require.Len(t, sum.Results, 2)
	assert.Equal(t, 12, sum.Insufficient)
	assert.Equal(t, 1, sum.MultipleDropped)
	assert.Equal(t, 2, sum.Duplicates)

	assert.Equal(t, "beam_energy_value=1000,inner_angle_value=62", sum.Results[0].FixedKey())
	assert.Equal(t, "beam_energy_value=5000,inner_angle_value=62", sum.Results[1].FixedKey())

	// Re-running over the same catalog yields the same groups.
	again := Analyze(cat, DefaultOptions())
	require.Len(t, again.Results, len(sum.Results))
	for i := range sum.Results {
		assert.Equal(t, sum.Results[i].Name(), again.Results[i].Name())
		assert.Equal(t, sum.Results[i].Paths(), again.Results[i].Paths())
	}
}

func TestAnalyze_DiscoveryOrderIndependent(t *testing.T) {
	a := testutil.Name{Inner: "62", Beam: "1000", ESA: "-181"}
	b := testutil.Name{Inner: "62", Beam: "1000", ESA: "-185"}
	c := testutil.Name{Inner: "10", Beam: "5000", ESA: "-900"}
	d := testutil.Name{Inner: "10", Beam: "5000", ESA: "-905"}

	names := func(s Summary) []string {
		var out []string
		for _, r := range s.Results {
			out = append(out, r.Name())
		}
		return out
	}
	one := Analyze(build(t, a, img(1), b, img(2), c, img(3), d, img(4)), DefaultOptions())
	two := Analyze(build(t, d, img(4), c, img(3), b, img(2), a, img(1)), DefaultOptions())
	assert.Equal(t, names(one), names(two))
}

func TestAnalyze_ExcludesInvalid(t *testing.T) {
	zero := testutil.Name{Inner: "62", Beam: "1000", ESA: "-190"}
	missing := testutil.Name{Inner: "62", Beam: "1000", ESA: "-195"}
	cat := build(t,
		testutil.Name{Inner: "62", Beam: "1000", ESA: "-185"}, img(1, 2),
		testutil.Name{Inner: "62", Beam: "1000", ESA: "-181"}, img(3, 4),
		zero, img(0, 0),
		missing, nil,
	)

	sum := Analyze(cat, DefaultOptions())
	require.Len(t, sum.Excluded, 2)
	assert.Equal(t, zero.String(), sum.Excluded[0].Path())
	assert.Equal(t, missing.String(), sum.Excluded[1].Path())

	require.Len(t, sum.Results, 1)
	assert.NotContains(t, sum.Results[0].Paths(), zero.String())
	assert.NotContains(t, sum.Results[0].Paths(), missing.String())
}

func TestAnalyze_Multiple(t *testing.T) {
	files := []any{
		testutil.Name{Inner: "10", Beam: "1000", ESA: "-181"}, img(1),
		testutil.Name{Inner: "20", Beam: "1000", ESA: "-185"}, img(2),
	}

	sum := Analyze(build(t, files...), DefaultOptions())
	assert.Empty(t, sum.Results)
	assert.Equal(t, 1, sum.MultipleDropped)

	opts := DefaultOptions()
	opts.IncludeMultiple = true
	sum = Analyze(build(t, files...), opts)
	require.Len(t, sum.Results, 1)
	assert.Equal(t, grouping.Multiple, sum.Results[0].Varying)
	assert.Nil(t, sum.Results[0].Correlations)
}

func TestAnalyze_Histograms(t *testing.T) {
	cat := build(t,
		testutil.Name{Beam: "1000", ESA: "-181", Ext: ".phd"}, phd([]float64{1, 2, 3}, []float64{1, 2, 1}),
		testutil.Name{Beam: "1000", ESA: "-185", Ext: ".phd"}, phd([]float64{1, 2, 3}, []float64{0, 1, 5}),
	)

	opts := DefaultOptions()
	opts.Interesting = []params.Field{params.BeamEnergy}
	sum := Analyze(cat, opts)
	require.Len(t, sum.Results, 1)

	r := sum.Results[0]
	assert.Empty(t, r.Images)
	assert.Nil(t, r.ImageSummary)
	require.Len(t, r.Histograms, 2)

	h := r.Histograms[0]
	assert.Equal(t, 2.0, h.PeakBin)
	assert.Equal(t, 2.0, h.PeakHeight)
	assert.Equal(t, 4.0, h.TotalCounts)
	assert.InDelta(t, 2.0, h.MeanADC, 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), h.StdADC, 1e-12)
	assert.Equal(t, 3.0, r.Histograms[1].PeakBin)
}

func TestAggregate(t *testing.T) {
	assert.Equal(t, Aggregate{}, aggregate(nil))
	assert.Equal(t, Aggregate{Mean: 7, Min: 7, Max: 7}, aggregate([]float64{7}))
}

func TestImageStats_IgnoresNonFinite(t *testing.T) {
	cat := build(t, testutil.Name{Beam: "1000"}, img(math.NaN(), 2, 4))
	r := cat.All()[0]
	require.True(t, r.Valid())

	s := imageStats(r, "", false)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, 3.0, s.Mean)
	assert.Equal(t, 2, s.NonZero)
	assert.Equal(t, 3, s.Pixels)
}

func TestPresets(t *testing.T) {
	p, err := LookupPreset("voltage_sweep")
	require.NoError(t, err)
	assert.Equal(t, params.ESAVoltage, p.Varying)

	_, err = LookupPreset("nonsense")
	assert.Error(t, err)

	cat := build(t,
		testutil.Name{Inner: "62", Beam: "1000", ESA: "-181"}, img(1),
		testutil.Name{Beam: "1000", ESA: "-185"}, img(1),
		testutil.Name{Inner: "62", Beam: "1000", ESA: "-181", Stamp: "240922-213604"}, img(1),
		testutil.Name{Inner: "62", Beam: "5000", ESA: "-900"}, img(1),
	)

	groups := FindComparisonSets(cat.All(), p.Fixed, p.Varying, true)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Members, 3)

	ops := Opportunities(cat.All(), true)
	var found []string
	for _, o := range ops {
		found = append(found, o.Preset.Name)
	}
	assert.Equal(t, []string{"voltage_sweep", "temporal_analysis"}, found)
}

func TestOptionsFromConfig(t *testing.T) {
	if diff := cmp.Diff(DefaultOptions(), OptionsFromConfig(config.EmptyAnalysisConfig())); diff != "" {
		t.Errorf("OptionsFromConfig(empty) mismatch (-want +got):\n%s", diff)
	}
}
