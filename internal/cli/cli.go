// Package cli holds the flag handling and run plumbing shared by the
// esa-compare, esa-kfactor and esa-rates commands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/schollz/progressbar/v3"

	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/config"
	"github.com/banshee-data/esa.report/internal/detector"
	"github.com/banshee-data/esa.report/internal/fsutil"
	"github.com/banshee-data/esa.report/internal/monitoring"
	"github.com/banshee-data/esa.report/internal/report"
	"github.com/banshee-data/esa.report/internal/timeutil"
	"github.com/banshee-data/esa.report/internal/units"
	"github.com/banshee-data/esa.report/internal/version"
)

// ConfigurationError reports invalid command-line arguments or an unusable
// config file. It is raised before any data file is read.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Msg, e.Err)
	}
	return "configuration error: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Options are the flags every analysis command accepts.
type Options struct {
	DataDir     string
	OutputDir   string
	BeamEnergy  *float64 // eV; nil means no filter
	ListOnly    bool
	ConfigPath  string
	DBPath      string
	Workers     int // 0 means the config value
	Verbose     bool
	Progress    bool
	ShowVersion bool
	EnergyUnit  string

	// Config is populated by Validate.
	Config *config.AnalysisConfig
}

// RegisterFlags binds the shared flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Options {
	o := &Options{}
	fs.StringVar(&o.DataDir, "data-dir", "", "Directory of detector files (required)")
	fs.StringVar(&o.OutputDir, "output-dir", "results", "Directory for reports")
	fs.Func("beam-energy", "Only analyse files at this beam energy in eV", func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		o.BeamEnergy = &v
		return nil
	})
	fs.BoolVar(&o.ListOnly, "list-only", false, "List discovered files with their parsed parameters and exit")
	fs.StringVar(&o.ConfigPath, "config", "", "Analysis config file (.json, .yaml)")
	fs.StringVar(&o.DBPath, "db", "", "SQLite database to record the run in")
	fs.IntVar(&o.Workers, "workers", 0, "Parallel file loaders (default from config)")
	fs.BoolVar(&o.Verbose, "verbose", false, "Log parse details and migrations")
	fs.BoolVar(&o.Progress, "progress", false, "Show a progress bar while loading files")
	fs.BoolVar(&o.ShowVersion, "version", false, "Print version and exit")
	fs.StringVar(&o.EnergyUnit, "energy-unit", units.EV, "Beam energy unit in reports ("+units.GetValidUnitsString()+")")
	return o
}

// Validate checks the flags and loads the config file. Every failure is a
// ConfigurationError.
func (o *Options) Validate(fsys fsutil.FileSystem) error {
	if o.DataDir == "" {
		return &ConfigurationError{Msg: "--data-dir is required"}
	}
	if !fsutil.IsDir(fsys, o.DataDir) {
		return &ConfigurationError{Msg: fmt.Sprintf("data directory %s does not exist", o.DataDir)}
	}
	if e := o.BeamEnergy; e != nil && (*e < 0 || math.IsNaN(*e) || math.IsInf(*e, 0)) {
		return &ConfigurationError{Msg: fmt.Sprintf("--beam-energy must be non-negative, got %g", *e)}
	}
	if o.Workers < 0 {
		return &ConfigurationError{Msg: fmt.Sprintf("--workers must be non-negative, got %d", o.Workers)}
	}
	if !units.IsValid(o.EnergyUnit) {
		return &ConfigurationError{Msg: fmt.Sprintf("--energy-unit must be one of %s, got %q", units.GetValidUnitsString(), o.EnergyUnit)}
	}
	if !o.ListOnly && o.OutputDir == "" {
		return &ConfigurationError{Msg: "--output-dir must not be empty"}
	}

	cfg := config.EmptyAnalysisConfig()
	if o.ConfigPath != "" {
		loaded, err := config.LoadAnalysisConfig(o.ConfigPath)
		if err != nil {
			return &ConfigurationError{Msg: "config file " + o.ConfigPath, Err: err}
		}
		cfg = loaded
	}
	o.Config = cfg
	return nil
}

// workers returns the loader concurrency.
func (o *Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return o.config().GetWorkers()
}

func (o *Options) config() *config.AnalysisConfig {
	if o.Config == nil {
		return config.EmptyAnalysisConfig()
	}
	return o.Config
}

// SetupLogging routes analysis logs to the standard logger, with debug
// messages only when verbose.
func SetupLogging(verbose bool) {
	monitoring.SetLogger(log.Printf)
	if verbose {
		monitoring.SetDebugLogger(monitoring.Prefixed("[debug] ", log.Printf))
	} else {
		monitoring.SetDebugLogger(nil)
	}
}

// PrintVersion writes the build identity of the named command.
func PrintVersion(w io.Writer, name string) {
	fmt.Fprintln(w, version.String(name))
}

// BuildCatalog discovers the data directory and applies the beam energy
// filter. Payloads are not loaded.
func (o *Options) BuildCatalog(fsys fsutil.FileSystem) (*catalog.Catalog, error) {
	loader := detector.NewFileLoader(fsys)
	minNonZero := catalog.WithMinNonZero(o.config().GetMinNonZeroPixels())

	all := catalog.New(loader, minNonZero)
	if _, err := all.Discover(fsys, o.DataDir); err != nil {
		return nil, err
	}
	if o.BeamEnergy == nil {
		logSummary(all)
		return all, nil
	}

	want, tol := *o.BeamEnergy, o.config().GetBeamEnergyTolerance()
	filtered := catalog.New(loader, minNonZero)
	for _, r := range all.Filter(func(r *catalog.FileRecord) bool {
		return r.BeamEnergy != nil && math.Abs(*r.BeamEnergy-want) <= tol
	}) {
		filtered.Register(r.Path())
	}
	monitoring.Logf("Beam energy filter %g eV kept %d of %d files", want, filtered.Len(), all.Len())
	logSummary(filtered)
	return filtered, nil
}

func logSummary(cat *catalog.Catalog) {
	s := cat.Summary()
	monitoring.Logf("Catalog: %d files, %d beam energies, %d ESA voltages", s.Total, len(s.BeamEnergies), len(s.ESAVoltages))
	for ft, n := range s.ByFileType {
		monitoring.Debugf("  %s: %d", ft, n)
	}
	if s.First != nil {
		monitoring.Logf("Acquired %s to %s", s.First.Format("2006-01-02 15:04:05"), s.Last.Format("2006-01-02 15:04:05"))
	}
}

// Load reads every payload in parallel, drawing a progress bar on w when
// enabled.
func (o *Options) Load(ctx context.Context, cat *catalog.Catalog, w io.Writer) error {
	var done func(*catalog.FileRecord)
	var bar *progressbar.ProgressBar
	if o.Progress && cat.Len() > 0 {
		bar = newProgressBar("Loading files", cat.Len(), w)
		done = func(*catalog.FileRecord) { _ = bar.Add(1) }
	}
	if err := cat.LoadAll(ctx, o.workers(), done); err != nil {
		return fmt.Errorf("loading %s: %w", o.DataDir, err)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return nil
}

func newProgressBar(description string, total int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(w),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}

// ListFiles prints one line per discovered file.
func ListFiles(w io.Writer, cat *catalog.Catalog) error {
	return report.WriteList(w, cat.All())
}

// Meta is the report header for a run started now.
func (o *Options) Meta(clock timeutil.Clock) report.Meta {
	return report.Meta{
		Generated:  clock.Now(),
		DataDir:    o.DataDir,
		EnergyUnit: o.EnergyUnit,
	}
}

// Create opens name inside the output directory, creating the directory.
func (o *Options) Create(fsys fsutil.FileSystem, name string) (io.WriteCloser, string, error) {
	if err := fsys.MkdirAll(o.OutputDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(o.OutputDir, name)
	f, err := fsys.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, path, nil
}

// WriteFile creates name in the output directory and fills it with write.
func (o *Options) WriteFile(fsys fsutil.FileSystem, name string, write func(io.Writer) error) (string, error) {
	f, path, err := o.Create(fsys, name)
	if err != nil {
		return "", err
	}
	if err := write(f); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	monitoring.Logf("Wrote %s", path)
	return path, nil
}

// Fatal exits with a message suited to err: configuration errors print the
// usage hint.
func Fatal(name string, err error) {
	if IsConfigurationError(err) {
		fmt.Fprintf(os.Stderr, "%s: %v\nRun '%s -h' for usage.\n", name, err, name)
		os.Exit(2)
	}
	log.Fatalf("%s: %v", name, err)
}
