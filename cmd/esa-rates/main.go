// Command esa-rates converts beam images to count rates, integrates them
// into a single count rate map and lists the angular resolution datasets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/esa.report/internal/cli"
	"github.com/banshee-data/esa.report/internal/esa"
	"github.com/banshee-data/esa.report/internal/fsutil"
	"github.com/banshee-data/esa.report/internal/monitoring"
	"github.com/banshee-data/esa.report/internal/report"
	"github.com/banshee-data/esa.report/internal/timeutil"
)

const name = "esa-rates"

var (
	opts        = cli.RegisterFlags(flag.CommandLine)
	minVoltages = flag.Int("min-voltages", 3, "Distinct ESA voltages needed for an angular resolution dataset")
	noMap       = flag.Bool("no-map", false, "Skip the integrated count rate map")
)

func main() {
	flag.Parse()

	if opts.ShowVersion {
		cli.PrintVersion(os.Stdout, name)
		return
	}
	cli.SetupLogging(opts.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := runConfig{minVoltages: *minVoltages, integrate: !*noMap}
	if err := run(ctx, opts, cfg, fsutil.OSFileSystem{}, timeutil.RealClock{}, os.Stdout, os.Stderr); err != nil {
		cli.Fatal(name, err)
	}
}

// runConfig holds the flags specific to this command.
type runConfig struct {
	minVoltages int
	integrate   bool
}

func run(ctx context.Context, o *cli.Options, rc runConfig, fsys fsutil.FileSystem, clock timeutil.Clock, stdout, stderr io.Writer) error {
	if err := o.Validate(fsys); err != nil {
		return err
	}
	if rc.minVoltages < 1 {
		return &cli.ConfigurationError{Msg: fmt.Sprintf("--min-voltages must be at least 1, got %d", rc.minVoltages)}
	}
	cat, err := o.BuildCatalog(fsys)
	if err != nil {
		return err
	}
	if o.ListOnly {
		return cli.ListFiles(stdout, cat)
	}
	if err := o.Load(ctx, cat, stderr); err != nil {
		return err
	}

	eopts := esa.OptionsFromConfig(o.Config)
	valid := cat.Valid()
	rates := esa.MeasureRates(valid, eopts)

	var m *esa.IntegratedMap
	if rc.integrate {
		m, err = esa.Integrate(valid, eopts)
		if errors.Is(err, esa.ErrNoContributions) {
			monitoring.Logf("No images to integrate in %s", o.DataDir)
		} else if err != nil {
			return err
		}
	}
	datasets := esa.ResolutionDatasets(valid, rc.minVoltages, o.Config.GetAngleOverride())

	meta := o.Meta(clock)
	if _, err := o.WriteFile(fsys, "count_rate_analysis.md", func(w io.Writer) error {
		return report.WriteRates(w, rates, m, datasets, meta)
	}); err != nil {
		return err
	}
	if _, err := o.WriteFile(fsys, "count_rates.csv", func(w io.Writer) error {
		return report.WriteRatesCSV(w, rates)
	}); err != nil {
		return err
	}
	if m != nil {
		if _, err := o.WriteFile(fsys, "integrated_map.csv", func(w io.Writer) error {
			return report.WriteMapCSV(w, m)
		}); err != nil {
			return err
		}
	}

	fmt.Fprintf(stdout, "%d count rates, %d resolution datasets from %d files (%d excluded)\n",
		len(rates), len(datasets), cat.Len(), len(cat.Invalid()))
	return nil
}
