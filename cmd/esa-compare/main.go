// Command esa-compare groups the detector files of a data directory into
// single-parameter comparisons and writes Markdown and CSV reports.
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
	"github.com/banshee-data/esa.report/internal/compare"
	"github.com/banshee-data/esa.report/internal/fsutil"
	"github.com/banshee-data/esa.report/internal/monitoring"
	"github.com/banshee-data/esa.report/internal/report"
	"github.com/banshee-data/esa.report/internal/store"
	"github.com/banshee-data/esa.report/internal/timeutil"
)

const name = "esa-compare"

var (
	opts     = cli.RegisterFlags(flag.CommandLine)
	listRuns = flag.Bool("list-runs", false, "List the runs stored in --db and exit")
	showRun  = flag.String("show-run", "", "Print the groups of a stored run from --db and exit")
	preset   = flag.String("preset", "", "Restrict the opportunities report to one preset (beam_energy_sweep, voltage_sweep, angle_sweep, temporal_analysis)")
)

func main() {
	flag.Parse()

	if opts.ShowVersion {
		cli.PrintVersion(os.Stdout, name)
		return
	}
	cli.SetupLogging(opts.Verbose)

	if *listRuns || *showRun != "" {
		if err := history(os.Stdout, opts.DBPath, *showRun); err != nil {
			cli.Fatal(name, err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, *preset, fsutil.OSFileSystem{}, timeutil.RealClock{}, os.Stdout, os.Stderr); err != nil {
		cli.Fatal(name, err)
	}
}

func run(ctx context.Context, o *cli.Options, presetName string, fsys fsutil.FileSystem, clock timeutil.Clock, stdout, stderr io.Writer) error {
	if err := o.Validate(fsys); err != nil {
		return err
	}
	var only *compare.Preset
	if presetName != "" {
		p, err := compare.LookupPreset(presetName)
		if err != nil {
			return &cli.ConfigurationError{Msg: "--preset", Err: err}
		}
		only = &p
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

	sum := compare.Analyze(cat, compare.OptionsFromConfig(o.Config))
	meta := o.Meta(clock)

	if _, err := o.WriteFile(fsys, "comparative_analysis.md", func(w io.Writer) error {
		return report.WriteComparison(w, sum, meta)
	}); err != nil {
		return err
	}
	if err := writeCSV(o, fsys, sum); err != nil {
		return err
	}
	ops := opportunities(cat.Valid(), only, o.Config.GetAngleOverride())
	if _, err := o.WriteFile(fsys, "comparison_opportunities.md", func(w io.Writer) error {
		return report.WriteOpportunities(w, ops)
	}); err != nil {
		return err
	}

	if o.DBPath != "" {
		if err := saveRun(o.DBPath, clock, sum, o.DataDir); err != nil {
			return err
		}
	}

	fmt.Fprintf(stdout, "%d comparison groups from %d files (%d excluded); reports in %s\n",
		len(sum.Results), cat.Len(), len(sum.Excluded), o.OutputDir)
	return nil
}

// opportunities runs every preset, or only p when set.
func opportunities(records []*catalog.FileRecord, p *compare.Preset, angleOverride bool) []compare.Opportunity {
	if p == nil {
		return compare.Opportunities(records, angleOverride)
	}
	groups := compare.FindComparisonSets(records, p.Fixed, p.Varying, angleOverride)
	return []compare.Opportunity{{Preset: *p, Groups: groups}}
}

func writeCSV(o *cli.Options, fsys fsutil.FileSystem, sum compare.Summary) error {
	summary, summaryPath, err := o.Create(fsys, "comparison_summary.csv")
	if err != nil {
		return err
	}
	defer summary.Close()
	members, membersPath, err := o.Create(fsys, "comparison_members.csv")
	if err != nil {
		return err
	}
	defer members.Close()

	if err := report.WriteComparisonCSV(summary, members, sum); err != nil {
		return fmt.Errorf("failed to write comparison CSV: %w", err)
	}
	if err := summary.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", summaryPath, err)
	}
	if err := members.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", membersPath, err)
	}
	monitoring.Logf("Wrote %s and %s", summaryPath, membersPath)
	return nil
}

func saveRun(path string, clock timeutil.Clock, sum compare.Summary, dataDir string) error {
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	runID, err := store.NewRunStore(db.DB, clock).SaveRun(sum, dataDir)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	monitoring.Logf("Recorded run %s in %s", runID, path)
	return nil
}

// history prints stored runs, or the groups of one run when runID is set.
func history(w io.Writer, path, runID string) error {
	if path == "" {
		return &cli.ConfigurationError{Msg: "--db is required with --list-runs and --show-run"}
	}
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	s := store.NewRunStore(db.DB, nil)

	if runID == "" {
		runs, err := s.ListRuns()
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Fprintf(w, "%s  %s  %s  groups=%d excluded=%d version=%s\n",
				r.RunID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.DataDir, r.Groups, r.Excluded, r.Version)
		}
		return nil
	}

	groups, err := s.LoadGroups(runID)
	if err != nil {
		return err
	}
	for _, g := range groups {
		fmt.Fprintf(w, "%d. %s / varying %s\n", g.Position+1, g.FixedKey, g.Varying)
		for _, m := range g.Members {
			fmt.Fprintf(w, "   %s %s\n", m.VaryingValue, m.Path)
		}
	}
	excluded, err := s.Excluded(runID)
	if err != nil {
		return err
	}
	for _, f := range excluded {
		fmt.Fprintf(w, "excluded %s: %s\n", f.Path, f.Reason)
	}
	return nil
}
