package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/coa-cli/internal/accessibility"
	"github.com/sells-group/coa-cli/internal/config"
)

var computeCmd = &cobra.Command{
	Use:   "compute [travel-times] [land-uses] [output]",
	Short: "Compute cumulative opportunities accessibility tables",
	Long: `Computes, for every (travel-time, land-use) pair, how many opportunities each
origin zone reaches within each travel-time threshold, and writes one output
table per pair.

Travel-time and land-use arguments are ";"-separated dataset names. The output
is a directory (csv), workbook (xlsx), database file (sqlite) or schema (postgres).

Examples:
  coa-cli compute "tt_auto2015_taz2010;tt_transit2015_taz2010" "lu_jobs2010_taz2010" ./out

  # Inputs from a job manifest
  coa-cli compute --manifest jobs.yaml

  # Custom thresholds, fail pairs whose scales differ
  coa-cli compute tt_auto2015_taz2010 lu_pop2010_taz2010 ./out --thresholds 10,20,30 --strict-scale`,
	Args: cobra.RangeArgs(0, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		manifest, _ := cmd.Flags().GetString("manifest")
		allowPartial, _ := cmd.Flags().GetBool("allow-partial")

		job, err := resolveJob(args, manifest)
		if err != nil {
			return err
		}
		opts := computeOptions(cmd.Flags(), cfg.Accessibility, cfg.Output, job)
		if err := accessibility.ValidateThresholds(opts.Thresholds); err != nil {
			return err
		}

		var cl closers
		defer func() {
			if err := cl.Close(); err != nil {
				zap.L().Error("compute: close backends", zap.Error(err))
			}
		}()

		src, err := initSource(ctx, cfg.Source, &cl)
		if err != nil {
			return err
		}
		w, err := initWriter(ctx, cfg.Output, &cl)
		if err != nil {
			return err
		}
		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "compute: open run log")
		}
		if st != nil {
			cl.add(st.Close)
		}

		runner := &accessibility.Runner{
			Source:   src,
			Writer:   w,
			Recorder: recorder(st),
			Progress: accessibility.NewLogProgress(zap.L()),
			Options:  opts,
		}

		summary, err := runner.Run(ctx, job.Output, job.TravelTimes, job.LandUse)
		if err != nil {
			return eris.Wrap(err, "compute")
		}

		formatSummary(os.Stdout, summary)

		if failed := len(summary.Failed()); failed > 0 && !allowPartial {
			return eris.Errorf("compute: %d of %d pairs failed", failed, len(summary.Pairs))
		}
		return nil
	},
}

func init() {
	addComputeFlags(computeCmd.Flags())
	rootCmd.AddCommand(computeCmd)
}

func addComputeFlags(fs *pflag.FlagSet) {
	fs.String("manifest", "", "YAML job manifest listing travel_times, land_use and output")
	fs.IntSlice("thresholds", nil, "travel-time thresholds in minutes (default from config)")
	fs.Bool("strict-scale", false, "fail pairs whose travel-time and land-use scales differ")
	fs.Int("concurrency", 0, "land-use pairs computed in parallel (default from config)")
	fs.Bool("allow-partial", false, "exit zero even if some pairs failed")
}

// job is one compute invocation's inputs.
type job struct {
	TravelTimes []string
	LandUse     []string
	Output      string
	Thresholds  []int
}

// resolveJob reads the inputs from positional arguments or a manifest, but
// not both.
func resolveJob(args []string, manifestPath string) (job, error) {
	if manifestPath != "" {
		if len(args) > 0 {
			return job{}, eris.New("compute: pass either --manifest or positional arguments, not both")
		}
		m, err := config.LoadManifest(manifestPath)
		if err != nil {
			return job{}, err
		}
		return job{TravelTimes: m.TravelTimes, LandUse: m.LandUse, Output: m.Output, Thresholds: m.Thresholds}, nil
	}

	if len(args) != 3 {
		return job{}, eris.Errorf("compute: expected <travel-times> <land-uses> <output>, got %d arguments", len(args))
	}
	j := job{
		TravelTimes: splitList(args[0]),
		LandUse:     splitList(args[1]),
		Output:      args[2],
	}
	switch {
	case len(j.TravelTimes) == 0:
		return job{}, eris.New("compute: no travel-time datasets given")
	case len(j.LandUse) == 0:
		return job{}, eris.New("compute: no land-use datasets given")
	case j.Output == "":
		return job{}, eris.New("compute: no output location given")
	}
	return j, nil
}

// computeOptions layers explicit flags over the manifest over config.
func computeOptions(flags *pflag.FlagSet, ac config.AccessibilityConfig, oc config.OutputConfig, j job) accessibility.Options {
	opts := accessibility.Options{
		Thresholds:  ac.Thresholds,
		StrictScale: ac.StrictScale,
		Concurrency: ac.Concurrency,
		IDLength:    oc.IDLength,
	}
	if len(j.Thresholds) > 0 {
		opts.Thresholds = j.Thresholds
	}
	if flags.Changed("thresholds") {
		opts.Thresholds, _ = flags.GetIntSlice("thresholds")
	}
	if flags.Changed("strict-scale") {
		opts.StrictScale, _ = flags.GetBool("strict-scale")
	}
	if flags.Changed("concurrency") {
		opts.Concurrency, _ = flags.GetInt("concurrency")
	}
	return opts
}

// formatSummary writes one line per pair to out.
func formatSummary(out io.Writer, s *accessibility.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TRAVEL_TIME\tLAND_USE\tOUTPUT\tROWS\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "-----------\t--------\t------\t----\t--------\t-----")
	for _, p := range s.Pairs {
		errMsg := ""
		if p.Err != nil {
			errMsg = p.Err.Error()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			p.TravelTime,
			p.LandUse,
			p.Output,
			p.Rows,
			p.Duration.Round(time.Millisecond),
			errMsg,
		)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "run %s: %d pairs, %d failed\n", s.RunID, len(s.Pairs), len(s.Failed()))
}
