// Command esa-kfactor estimates the analyzer constant k = E/|V| from the
// impact regions of beam images taken at known beam energies and voltages.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/cli"
	"github.com/banshee-data/esa.report/internal/esa"
	"github.com/banshee-data/esa.report/internal/fsutil"
	"github.com/banshee-data/esa.report/internal/params"
	"github.com/banshee-data/esa.report/internal/report"
	"github.com/banshee-data/esa.report/internal/timeutil"
)

const name = "esa-kfactor"

var opts = cli.RegisterFlags(flag.CommandLine)

func main() {
	flag.Parse()

	if opts.ShowVersion {
		cli.PrintVersion(os.Stdout, name)
		return
	}
	cli.SetupLogging(opts.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, fsutil.OSFileSystem{}, timeutil.RealClock{}, os.Stdout, os.Stderr); err != nil {
		cli.Fatal(name, err)
	}
}

// kfactorCandidate selects images with both a beam energy and an ESA voltage.
func kfactorCandidate(r *catalog.FileRecord) bool {
	if r.FileType != params.FileTypeFITS && r.FileType != params.FileTypeMap {
		return false
	}
	_, ok := esa.KFactor(r.Record)
	return ok
}

func run(ctx context.Context, o *cli.Options, fsys fsutil.FileSystem, clock timeutil.Clock, stdout, stderr io.Writer) error {
	if err := o.Validate(fsys); err != nil {
		return err
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

	candidates := cat.Filter(kfactorCandidate)
	var valid, excluded []*catalog.FileRecord
	for _, r := range candidates {
		if r.Valid() {
			valid = append(valid, r)
		} else {
			excluded = append(excluded, r)
		}
	}

	eopts := esa.OptionsFromConfig(o.Config)
	regions := esa.ExtractImpactRegions(valid, eopts)
	est, err := esa.EstimateKFactors(regions, eopts)
	if err != nil {
		return fmt.Errorf("k-factor analysis of %s: %w", o.DataDir, err)
	}

	meta := o.Meta(clock)
	if _, err := o.WriteFile(fsys, "kfactor_analysis.md", func(w io.Writer) error {
		return report.WriteKFactor(w, est, excluded, meta)
	}); err != nil {
		return err
	}
	if _, err := o.WriteFile(fsys, "kfactor_measurements.csv", func(w io.Writer) error {
		return report.WriteKFactorCSV(w, est)
	}); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "k = %.4f ± %.4f (median %.4f) from %d of %d images\n",
		est.Mean, est.Std, est.Median, est.Count(), len(candidates))
	return nil
}
