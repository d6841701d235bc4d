package main

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/esa.report/internal/cli"
	"github.com/banshee-data/esa.report/internal/fsutil"
	"github.com/banshee-data/esa.report/internal/testutil"
	"github.com/banshee-data/esa.report/internal/timeutil"
)

func setup(t *testing.T, args ...string) (*cli.Options, *fsutil.MemoryFileSystem) {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	write := func(n testutil.Name, data []byte) {
		require.NoError(t, mfs.WriteFile("/data/"+n.String(), data, 0644))
	}
	write(testutil.Name{Inner: "62", Hor: "79", Beam: "1000", ESA: "-185"}, testutil.FITS(2, 2, []float64{0, 10, 20, 0}))
	write(testutil.Name{Inner: "62", Hor: "79", Beam: "1000", ESA: "-181"}, testutil.FITS(2, 2, []float64{0, 20, 40, 0}))
	write(testutil.Name{Inner: "62", Hor: "79", Beam: "1000", ESA: "-190"}, nil)

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	o := cli.RegisterFlags(fs)
	require.NoError(t, fs.Parse(append([]string{"--data-dir", "/data", "--output-dir", "/out"}, args...)))
	return o, mfs
}

var clock = timeutil.NewMockClock(time.Date(2024, 9, 22, 21, 36, 4, 0, time.UTC))

func TestRun_WritesReports(t *testing.T) {
	o, mfs := setup(t)
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), o, "", mfs, clock, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "1 comparison groups from 3 files (1 excluded)")

	md, err := mfs.ReadFile("/out/comparative_analysis.md")
	require.NoError(t, err)
	assert.Contains(t, string(md), "esa_voltage_value")
	assert.Contains(t, string(md), "## Excluded files")

	for _, f := range []string{"comparison_summary.csv", "comparison_members.csv", "comparison_opportunities.md"} {
		data, err := mfs.ReadFile("/out/" + f)
		require.NoError(t, err, f)
		assert.NotEmpty(t, data, f)
	}
	members, _ := mfs.ReadFile("/out/comparison_members.csv")
	// header plus one row per member
	assert.Len(t, strings.Split(strings.TrimSpace(string(members)), "\n"), 3)
}

func TestRun_ListOnly(t *testing.T) {
	o, mfs := setup(t, "--list-only")
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), o, "", mfs, clock, &stdout, &stderr))
	assert.Len(t, strings.Split(strings.TrimSpace(stdout.String()), "\n"), 3)

	_, err := mfs.Stat("/out")
	assert.Error(t, err, "list-only must not write reports")
}

func TestRun_ConfigurationError(t *testing.T) {
	o, mfs := setup(t, "--data-dir", "/missing")
	err := run(context.Background(), o, "", mfs, clock, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, cli.IsConfigurationError(err))
}

func TestRun_StoresRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	o, mfs := setup(t, "--db", dbPath)
	require.NoError(t, run(context.Background(), o, "", mfs, clock, &bytes.Buffer{}, &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, history(&out, dbPath, ""))
	line := strings.TrimSpace(out.String())
	assert.Contains(t, line, "2024-09-22 21:36:04")
	assert.Contains(t, line, "groups=1 excluded=1")

	runID := strings.Fields(line)[0]
	out.Reset()
	require.NoError(t, history(&out, dbPath, runID))
	assert.Contains(t, out.String(), "varying esa_voltage_value")
	assert.Contains(t, out.String(), "excluded /data/")
}

func TestRun_Preset(t *testing.T) {
	o, mfs := setup(t)
	require.NoError(t, run(context.Background(), o, "voltage_sweep", mfs, clock, &bytes.Buffer{}, &bytes.Buffer{}))
	ops, err := mfs.ReadFile("/out/comparison_opportunities.md")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(ops), "voltage_sweep: 1 groups"))
	assert.NotContains(t, string(ops), "temporal_analysis")

	o, mfs = setup(t)
	err = run(context.Background(), o, "energy_ramp", mfs, clock, &bytes.Buffer{}, &bytes.Buffer{})
	assert.True(t, cli.IsConfigurationError(err))
}

func TestHistory_RequiresDB(t *testing.T) {
	err := history(&bytes.Buffer{}, "", "")
	assert.True(t, cli.IsConfigurationError(err))
}
