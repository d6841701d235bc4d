package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/compare"
	"github.com/banshee-data/esa.report/internal/detector"
	"github.com/banshee-data/esa.report/internal/esa"
	"github.com/banshee-data/esa.report/internal/testutil"
	"github.com/banshee-data/esa.report/internal/units"
)

type frameLoader map[string]*detector.Frame

func (l frameLoader) Load(path string) (*detector.Frame, error) {
	if f, ok := l[path]; ok {
		return f, nil
	}
	return nil, errors.New("unreadable")
}

func spot(v float64) *detector.Frame {
	img := mat.NewDense(16, 16, nil)
	for r := 4; r < 8; r++ {
		for c := 4; c < 8; c++ {
			img.Set(r, c, v)
		}
	}
	return &detector.Frame{Image: img, Header: detector.Header{"EXPTIME": "4"}}
}

var meta = Meta{
	Generated:  time.Date(2024, 9, 23, 8, 0, 0, 0, time.UTC),
	DataDir:    "/data/esa",
	EnergyUnit: units.KEV,
}

func sampleCatalog() (*catalog.Catalog, []*catalog.FileRecord) {
	l := frameLoader{}
	cat := catalog.New(l)
	var recs []*catalog.FileRecord
	add := func(n testutil.Name, f *detector.Frame) {
		if f != nil {
			l[n.String()] = f
		}
		recs = append(recs, cat.Register(n.String()))
	}
	add(testutil.Name{Inner: "62", Hor: "79", Beam: "1000", ESA: "-185"}, spot(10))
	add(testutil.Name{Inner: "62", Hor: "79", Beam: "1000", ESA: "-181"}, spot(20))
	add(testutil.Name{Inner: "62", Hor: "79", Beam: "1000", ESA: "-190"}, nil)
	add(testutil.Name{Inner: "62", Hor: "79", Beam: "1000", ESA: "-183", Ext: ".phd"},
		&detector.Frame{Histogram: &detector.Histogram{Bins: []float64{1, 2, 3}, Counts: []float64{1, 4, 1}}})
	return cat, recs
}

func TestListLine(t *testing.T) {
	cat := catalog.New(nil)
	rec := cat.Register("/data/" + testutil.Name{Beam: "1000", ESA: "-181"}.String())
	assert.Equal(t,
		"ACI_ESA_Beam-1000eV_ESA--181.fits  fits voltage_sweep beam_energy_value=1000 esa_voltage_value=-181",
		ListLine(rec))

	rec = cat.Register(testutil.Name{Inner: "84to-118", Hor: "79", Beam: "1000", MCP: "2200-100", Stamp: "240922-213604"}.String())
	line := ListLine(rec)
	assert.Contains(t, line, " inner_angle_value=-17 ")
	assert.Contains(t, line, " horizontal_value=79 ")
	assert.Contains(t, line, ` timestamp="2024-09-22 21:36:04"`)
	assert.True(t, strings.HasSuffix(line, " inner_angle_range=-118..84"), line)
	assert.False(t, rec.Loaded())

	var buf bytes.Buffer
	require.NoError(t, WriteList(&buf, cat.All()))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

func TestWriteComparison(t *testing.T) {
	cat, _ := sampleCatalog()
	sum := compare.Analyze(cat, compare.DefaultOptions())
	require.NotEmpty(t, sum.Results)

	var buf bytes.Buffer
	require.NoError(t, WriteComparison(&buf, sum, meta))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Comparative Analysis Report\n"))
	assert.Contains(t, out, "Generated 2024-09-23 08:00:00 from `/data/esa`")
	assert.Contains(t, out, "- beam_energy_value: 1 keV\n")
	assert.Contains(t, out, "**Varying parameter:** esa_voltage_value\n")
	assert.Contains(t, out, "**Values:** -185, -183, -181\n")
	assert.Contains(t, out, "| Metric | Mean | Std | Min | Max |")
	assert.Contains(t, out, "| Peak bin | Peak height |")
	assert.Contains(t, out, "- Excluded files: 1\n")
	assert.Contains(t, out, "## Excluded files")
	assert.Contains(t, out, testutil.Name{Inner: "62", Hor: "79", Beam: "1000", ESA: "-190"}.String())
	assert.Contains(t, out, "unreadable")
}

func TestWriteComparisonCSV(t *testing.T) {
	cat, _ := sampleCatalog()
	sum := compare.Analyze(cat, compare.DefaultOptions())

	var summary, members bytes.Buffer
	require.NoError(t, WriteComparisonCSV(&summary, &members, sum))

	srows, err := csv.NewReader(&summary).ReadAll()
	require.NoError(t, err)
	require.Len(t, srows, len(sum.Results)+1)
	assert.Equal(t, []string{"group", "fixed", "varying", "members", "images", "histograms"}, srows[0][:6])
	assert.Equal(t, len(srows[0]), len(srows[1]))

	mrows, err := csv.NewReader(&members).ReadAll()
	require.NoError(t, err)
	total := 0
	for _, r := range sum.Results {
		total += len(r.Images) + len(r.Histograms)
	}
	assert.Len(t, mrows, total+1)
	for _, row := range mrows {
		assert.Len(t, row, 14)
	}
}

func TestWriteKFactor(t *testing.T) {
	_, recs := sampleCatalog()
	opts := esa.DefaultOptions()
	est, err := esa.EstimateKFactors(esa.ExtractImpactRegions(recs, opts), opts)
	require.NoError(t, err)
	require.Equal(t, 2, est.Count())

	var buf bytes.Buffer
	require.NoError(t, WriteKFactor(&buf, est, []*catalog.FileRecord{recs[2]}, meta))
	out := buf.String()
	assert.Contains(t, out, "# ESA K-Factor Analysis")
	assert.Contains(t, out, "- Measurements: 2\n")
	assert.Contains(t, out, "| 1 keV | 2 |")
	assert.Contains(t, out, "| 62 | 5.4054 |")
	assert.Contains(t, out, "## Excluded files")

	buf.Reset()
	require.NoError(t, WriteKFactorCSV(&buf, est))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "1000", rows[1][1])
	assert.Equal(t, "-185", rows[1][2])
	assert.Equal(t, "5.405405", rows[1][5])
}

func TestWriteRates(t *testing.T) {
	_, recs := sampleCatalog()
	opts := esa.DefaultOptions()
	opts.DetectorWidth, opts.DetectorHeight = 16, 16

	rates := esa.MeasureRates(recs, opts)
	require.Len(t, rates, 2)
	m, err := esa.Integrate(recs, opts)
	require.NoError(t, err)
	datasets := esa.ResolutionDatasets(recs, 2, true)

	var buf bytes.Buffer
	require.NoError(t, WriteRates(&buf, rates, m, datasets, meta))
	out := buf.String()
	assert.Contains(t, out, "# Count Rate Analysis")
	assert.Contains(t, out, "| 1 keV | -185 | 62 | 79 | 4 | 40.00 | 0.500 |")
	assert.Contains(t, out, "- Files: 2\n")
	assert.Contains(t, out, "- Total collection time: 8.0 s\n")
	assert.Contains(t, out, "- Elevation range: 62 to 62\n")
	assert.Contains(t, out, "## Angular resolution datasets")

	buf.Reset()
	require.NoError(t, WriteRatesCSV(&buf, rates))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "header", rows[1][7])

	buf.Reset()
	require.NoError(t, WriteMapCSV(&buf, m))
	rows, err = csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 17)
	assert.Equal(t, []string{"x", "y", "rate"}, rows[0])
}

func TestWriteOpportunities(t *testing.T) {
	cat, _ := sampleCatalog()
	var buf bytes.Buffer
	require.NoError(t, WriteOpportunities(&buf, compare.Opportunities(cat.All(), true)))
	out := buf.String()
	assert.Contains(t, out, "voltage_sweep: 1 groups")
	assert.Contains(t, out, "esa_voltage_value = -190, -185, -183, -181")
}
