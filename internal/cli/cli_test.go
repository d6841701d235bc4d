package cli

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/esa.report/internal/config"
	"github.com/banshee-data/esa.report/internal/fsutil"
	"github.com/banshee-data/esa.report/internal/testutil"
	"github.com/banshee-data/esa.report/internal/timeutil"
	"github.com/banshee-data/esa.report/internal/units"
)

func dataFS(t *testing.T) *fsutil.MemoryFileSystem {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	for _, n := range []testutil.Name{
		{Inner: "62", Beam: "1000", ESA: "-185"},
		{Inner: "62", Beam: "1000", ESA: "-181"},
		{Inner: "62", Beam: "5000", ESA: "-900"},
	} {
		require.NoError(t, mfs.WriteFile("/data/"+n.String(), testutil.FITS(1, 2, []float64{1, 2}), 0644))
	}
	require.NoError(t, mfs.WriteFile("/data/notes.txt", []byte("x"), 0644))
	return mfs
}

func parse(t *testing.T, args ...string) *Options {
	t.Helper()
	fs := flag.NewFlagSet("esa-compare", flag.ContinueOnError)
	o := RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return o
}

func TestRegisterFlags_Defaults(t *testing.T) {
	o := parse(t)
	assert.Equal(t, "results", o.OutputDir)
	assert.Equal(t, units.EV, o.EnergyUnit)
	assert.Nil(t, o.BeamEnergy)
	assert.False(t, o.ListOnly)
}

func TestValidate(t *testing.T) {
	mfs := dataFS(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing data dir", nil, "--data-dir is required"},
		{"nonexistent data dir", []string{"--data-dir", "/nope"}, "does not exist"},
		{"negative beam energy", []string{"--data-dir", "/data", "--beam-energy", "-5"}, "--beam-energy"},
		{"negative workers", []string{"--data-dir", "/data", "--workers", "-1"}, "--workers"},
		{"unknown unit", []string{"--data-dir", "/data", "--energy-unit", "mev"}, "--energy-unit"},
		{"bad config extension", []string{"--data-dir", "/data", "--config", "cfg.toml"}, "config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parse(t, tt.args...).Validate(mfs)
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	o := parse(t, "--data-dir", "/data")
	require.NoError(t, o.Validate(mfs))
	require.NotNil(t, o.Config)
	assert.Equal(t, 4, o.workers())
}

func TestValidate_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\nnoise_threshold: 1.5\n"), 0644))

	err := parse(t, "--data-dir", "/data", "--config", path).Validate(dataFS(t))
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.True(t, errors.Is(err, config.ErrInvalid))

	require.NoError(t, os.WriteFile(path, []byte("workers: 2\n"), 0644))
	o := parse(t, "--data-dir", "/data", "--config", path)
	require.NoError(t, o.Validate(dataFS(t)))
	assert.Equal(t, 2, o.workers())

	o.Workers = 8
	assert.Equal(t, 8, o.workers())
}

func TestBuildCatalog_BeamFilter(t *testing.T) {
	mfs := dataFS(t)

	o := parse(t, "--data-dir", "/data")
	require.NoError(t, o.Validate(mfs))
	cat, err := o.BuildCatalog(mfs)
	require.NoError(t, err)
	assert.Equal(t, 3, cat.Len())

	o = parse(t, "--data-dir", "/data", "--beam-energy", "1000.5")
	require.NoError(t, o.Validate(mfs))
	cat, err = o.BuildCatalog(mfs)
	require.NoError(t, err)
	require.Equal(t, 2, cat.Len())
	for _, r := range cat.All() {
		assert.Equal(t, 1000.0, *r.BeamEnergy)
		assert.False(t, r.Loaded())
	}

	// An explicit 0 eV filter is a filter, not the unset default.
	o = parse(t, "--data-dir", "/data", "--beam-energy", "0")
	require.NotNil(t, o.BeamEnergy)
	assert.Zero(t, *o.BeamEnergy)
	require.NoError(t, o.Validate(mfs))
	cat, err = o.BuildCatalog(mfs)
	require.NoError(t, err)
	assert.Zero(t, cat.Len())
}

func TestRegisterFlags_BeamEnergyNotANumber(t *testing.T) {
	fs := flag.NewFlagSet("esa-compare", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	RegisterFlags(fs)
	assert.Error(t, fs.Parse([]string{"--beam-energy", "1keV"}))
}

func TestListFiles_DoesNotLoad(t *testing.T) {
	mfs := dataFS(t)
	o := parse(t, "--data-dir", "/data", "--list-only")
	require.NoError(t, o.Validate(mfs))
	cat, err := o.BuildCatalog(mfs)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ListFiles(&buf, cat))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "beam_energy_value=1000")
	for _, r := range cat.All() {
		assert.False(t, r.Loaded())
	}
}

func TestLoad_Progress(t *testing.T) {
	mfs := dataFS(t)
	o := parse(t, "--data-dir", "/data", "--progress", "--workers", "2")
	require.NoError(t, o.Validate(mfs))
	cat, err := o.BuildCatalog(mfs)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, o.Load(context.Background(), cat, &buf))
	assert.Contains(t, buf.String(), "Loading files")
	assert.Len(t, cat.Valid(), 3)
}

func TestWriteFile(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	o := &Options{OutputDir: "/out"}

	path, err := o.WriteFile(mfs, "report.md", func(w io.Writer) error {
		_, err := w.Write([]byte("# Report\n"))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "/out/report.md", path)
	data, err := mfs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Report\n", string(data))

	_, err = o.WriteFile(mfs, "broken.md", func(io.Writer) error { return errors.New("boom") })
	assert.ErrorContains(t, err, "boom")
}

func TestMeta(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2024, 9, 22, 0, 0, 0, 0, time.UTC))
	o := &Options{DataDir: "/data", EnergyUnit: units.KEV}
	m := o.Meta(clock)
	assert.Equal(t, clock.Now(), m.Generated)
	assert.Equal(t, "/data", m.DataDir)
	assert.Equal(t, units.KEV, m.EnergyUnit)
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	PrintVersion(&buf, "esa-compare")
	assert.True(t, strings.HasPrefix(buf.String(), "esa-compare "))
}
