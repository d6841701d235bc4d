package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/esa.report/internal/cli"
	"github.com/banshee-data/esa.report/internal/esa"
	"github.com/banshee-data/esa.report/internal/fsutil"
	"github.com/banshee-data/esa.report/internal/testutil"
	"github.com/banshee-data/esa.report/internal/timeutil"
)

// beamImage is an 8x8 frame with a 4x4 block of counts starting at column c0.
func beamImage(c0 int) []byte {
	pixels := make([]float64, 64)
	for r := 2; r < 6; r++ {
		for c := c0; c < c0+4; c++ {
			pixels[r*8+c] = 100
		}
	}
	return testutil.FITS(8, 8, pixels)
}

func setup(t *testing.T, files map[testutil.Name][]byte, args ...string) (*cli.Options, *fsutil.MemoryFileSystem) {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("/data", 0755))
	for n, data := range files {
		require.NoError(t, mfs.WriteFile("/data/"+n.String(), data, 0644))
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	o := cli.RegisterFlags(fs)
	require.NoError(t, fs.Parse(append([]string{"--data-dir", "/data", "--output-dir", "/out"}, args...)))
	return o, mfs
}

var clock = timeutil.NewMockClock(time.Date(2024, 9, 22, 21, 36, 4, 0, time.UTC))

func TestRun_EstimatesKFactor(t *testing.T) {
	o, mfs := setup(t, map[testutil.Name][]byte{
		{Inner: "62", Beam: "1000", ESA: "-200"}: beamImage(1),
		{Inner: "62", Beam: "1000", ESA: "-250"}: beamImage(3),
		{Inner: "62", Beam: "1000", ESA: "-300"}: nil,
		{Inner: "62", ESA: "-200"}:               beamImage(1), // no beam energy
		{Beam: "1000", ESA: "-200", Ext: ".phd"}: []byte("1\t5\n2\t9\n"),
	})

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), o, mfs, clock, &stdout, &bytes.Buffer{}))
	// k = 1000/200 = 5 and 1000/250 = 4
	assert.Contains(t, stdout.String(), "k = 4.5000 ± 0.5000 (median 4.5000) from 2 of 3 images")

	md, err := mfs.ReadFile("/out/kfactor_analysis.md")
	require.NoError(t, err)
	assert.Contains(t, string(md), "- Measurements: 2")
	assert.Contains(t, string(md), "## Excluded files")

	csvData, err := mfs.ReadFile("/out/kfactor_measurements.csv")
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "5.000000")
	assert.Contains(t, string(csvData), "4.000000")
}

func TestRun_NoMeasurements(t *testing.T) {
	o, mfs := setup(t, map[testutil.Name][]byte{
		{Inner: "62", ESA: "-200"}: beamImage(1),
	})
	err := run(context.Background(), o, mfs, clock, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, esa.ErrNoMeasurements))
	assert.False(t, cli.IsConfigurationError(err))
}

func TestRun_BeamEnergyFilter(t *testing.T) {
	o, mfs := setup(t, map[testutil.Name][]byte{
		{Inner: "62", Beam: "1000", ESA: "-200"}: beamImage(1),
		{Inner: "62", Beam: "5000", ESA: "-500"}: beamImage(2),
	}, "--beam-energy", "5000")

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), o, mfs, clock, &stdout, &bytes.Buffer{}))
	assert.Contains(t, stdout.String(), "k = 10.0000")
	assert.Contains(t, stdout.String(), "from 1 of 1 images")
}
