package accessibility

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/coa-cli/internal/dataset"
	"github.com/sells-group/coa-cli/internal/landuse"
	"github.com/sells-group/coa-cli/internal/traveltime"
)

// DefaultIDLength is the width of the scale id column.
const DefaultIDLength = 15

// ScaleMismatchError reports travel-time and land-use datasets built on
// different geographies or scale years.
type ScaleMismatchError struct {
	TravelTime dataset.Identifier
	LandUse    dataset.Identifier
}

func (e *ScaleMismatchError) Error() string {
	return fmt.Sprintf("accessibility: scale mismatch: travel time %s uses %s%s, land use %s uses %s%s",
		e.TravelTime, e.TravelTime.Scale, e.TravelTime.ScaleYear,
		e.LandUse, e.LandUse.Scale, e.LandUse.ScaleYear)
}

// Recorder persists the outcome of each pair.
type Recorder interface {
	BeginRun(ctx context.Context, runID, location string) error
	BeginPair(ctx context.Context, runID, travelTime, landUse, output string) (string, error)
	EndPair(ctx context.Context, pairID string, rows int, pairErr error) error
	EndRun(ctx context.Context, runID string, failed int) error
}

// Options tunes a Runner.
type Options struct {
	Thresholds  []int
	StrictScale bool
	Concurrency int
	IDLength    int
}

// Runner computes accessibility for every (travel-time, land-use) pair and
// writes one output table per pair.
type Runner struct {
	Source   dataset.Source
	Writer   dataset.Writer
	Recorder Recorder
	Progress Progress
	Options  Options
}

// PairResult is the outcome of one (travel-time, land-use) pair.
type PairResult struct {
	TravelTime string
	LandUse    string
	Output     string
	Rows       int
	Err        error
	Duration   time.Duration
}

// Summary is the outcome of a Run.
type Summary struct {
	RunID string
	Pairs []PairResult
}

// Failed returns the pairs that did not produce an output table.
func (s *Summary) Failed() []PairResult {
	var failed []PairResult
	for _, p := range s.Pairs {
		if p.Err != nil {
			failed = append(failed, p)
		}
	}
	return failed
}

type luEntry struct {
	index *landuse.Index
	err   error
}

// Run processes the cross product of travelTimes and landUses, writing into
// location. A failing pair is recorded in the summary and does not stop the
// others. The returned error is reserved for invalid options and run-level
// bookkeeping failures.
func (r *Runner) Run(ctx context.Context, location string, travelTimes, landUses []string) (*Summary, error) {
	opts := r.options()
	if err := ValidateThresholds(opts.Thresholds); err != nil {
		return nil, err
	}
	progress := r.Progress
	if progress == nil {
		progress = NopProgress{}
	}

	runID := uuid.New().String()
	log := zap.L().With(zap.String("component", "accessibility.runner"), zap.String("run_id", runID))
	summary := &Summary{RunID: runID}

	if r.Recorder != nil {
		if err := r.Recorder.BeginRun(ctx, runID, location); err != nil {
			return nil, eris.Wrap(err, "accessibility: record run")
		}
	}

	progress.Start(len(travelTimes) * len(landUses) * len(opts.Thresholds))

	landUse := make(map[string]luEntry, len(landUses))
	for _, name := range landUses {
		if _, ok := landUse[name]; ok {
			continue
		}
		log.Info("processing land use input", zap.String("dataset", name))
		ix, err := landuse.Load(ctx, r.Source, name)
		if err == nil && ix.Identifier().Kind != dataset.KindLandUse {
			log.Warn("land use input does not carry the land use marker", zap.String("dataset", name))
		}
		landUse[name] = luEntry{index: ix, err: err}
	}

	outputs := make(map[string]string)
	for _, ttName := range travelTimes {
		log.Info("processing travel time input", zap.String("dataset", ttName))
		tt, ttErr := traveltime.Load(ctx, r.Source, ttName)
		if ttErr == nil && tt.Identifier().Kind != dataset.KindTravelTime {
			log.Warn("travel time input does not carry the travel time marker", zap.String("dataset", ttName))
		}

		results := make([]PairResult, len(landUses))
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)

		for j, luName := range landUses {
			res := &results[j]
			res.TravelTime = ttName
			res.LandUse = luName

			lu := landUse[luName]
			switch {
			case ttErr != nil:
				res.Err = ttErr
			case lu.err != nil:
				res.Err = lu.err
			default:
				res.Output, res.Err = dataset.OutputName(tt.Identifier(), lu.index.Identifier())
			}
			if res.Err == nil {
				if prev, taken := outputs[res.Output]; taken {
					res.Err = eris.Errorf("accessibility: output table %s already produced by %s", res.Output, prev)
				} else {
					outputs[res.Output] = ttName + " x " + luName
				}
			}

			pairID := r.begin(ctx, log, runID, res)
			if res.Err != nil {
				r.finish(ctx, log, pairID, res, opts, progress)
				continue
			}

			g.Go(func() error {
				r.runPair(gCtx, log, location, tt, lu.index, res, opts)
				r.finish(gCtx, log, pairID, res, opts, progress)
				return nil
			})
		}
		_ = g.Wait()
		summary.Pairs = append(summary.Pairs, results...)
	}

	failed := len(summary.Failed())
	if r.Recorder != nil {
		if err := r.Recorder.EndRun(context.WithoutCancel(ctx), runID, failed); err != nil {
			log.Error("failed to record run completion", zap.Error(err))
		}
	}
	log.Info("accessibility run complete",
		zap.Int("pairs", len(summary.Pairs)),
		zap.Int("failed", failed),
	)
	return summary, nil
}

func (r *Runner) options() Options {
	opts := r.Options
	if opts.Thresholds == nil {
		opts.Thresholds = DefaultThresholds()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.IDLength <= 0 {
		opts.IDLength = DefaultIDLength
	}
	return opts
}

// runPair computes and writes a single output table. The partial table is
// discarded on failure.
func (r *Runner) runPair(ctx context.Context, log *zap.Logger, location string, tt *traveltime.Index, lu *landuse.Index, res *PairResult, opts Options) {
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	log = log.With(zap.String("travel_time", res.TravelTime), zap.String("land_use", res.LandUse), zap.String("output", res.Output))

	if !tt.Identifier().SameScale(lu.Identifier()) {
		mismatch := &ScaleMismatchError{TravelTime: tt.Identifier(), LandUse: lu.Identifier()}
		if opts.StrictScale {
			res.Err = mismatch
			return
		}
		log.Warn("geographic scales of land use and travel time do not match", zap.Error(mismatch))
	}

	table, err := r.Writer.CreateTable(ctx, location, res.Output)
	if err != nil {
		res.Err = eris.Wrapf(err, "accessibility: create table %s", res.Output)
		return
	}

	n, err := writeTable(ctx, table, tt, lu, opts)
	if err != nil {
		if abortErr := table.Abort(context.WithoutCancel(ctx)); abortErr != nil {
			log.Error("failed to discard partial output", zap.Error(abortErr))
		}
		res.Err = err
		return
	}
	res.Rows = n
}

func writeTable(ctx context.Context, table dataset.Table, tt *traveltime.Index, lu *landuse.Index, opts Options) (int, error) {
	for _, col := range Columns(tt.Identifier().Scale, opts.Thresholds, opts.IDLength) {
		if err := table.AddColumn(ctx, col); err != nil {
			return 0, eris.Wrapf(err, "accessibility: add column %s", col.Name)
		}
	}

	rows, err := Compute(ctx, tt, lu, opts.Thresholds)
	if err != nil {
		return 0, err
	}

	for _, row := range rows {
		if err := table.InsertRow(ctx, row.Values()); err != nil {
			return 0, eris.Wrapf(err, "accessibility: insert row %s", row.ID)
		}
	}
	if err := table.Close(ctx); err != nil {
		return 0, eris.Wrapf(err, "accessibility: close table %s", table.Name())
	}
	return len(rows), nil
}

// begin records a pair as running and returns its record id, or "" when
// nothing is recorded.
func (r *Runner) begin(ctx context.Context, log *zap.Logger, runID string, res *PairResult) string {
	if r.Recorder == nil {
		return ""
	}
	pairID, err := r.Recorder.BeginPair(context.WithoutCancel(ctx), runID, res.TravelTime, res.LandUse, res.Output)
	if err != nil {
		log.Error("failed to record pair start",
			zap.String("travel_time", res.TravelTime),
			zap.String("land_use", res.LandUse),
			zap.Error(err),
		)
		return ""
	}
	return pairID
}

// finish records the pair outcome and advances progress by the pair's units.
func (r *Runner) finish(ctx context.Context, log *zap.Logger, pairID string, res *PairResult, opts Options, progress Progress) {
	if res.Err != nil {
		log.Error("pair failed",
			zap.String("travel_time", res.TravelTime),
			zap.String("land_use", res.LandUse),
			zap.Error(res.Err),
		)
	} else {
		log.Info("pair complete",
			zap.String("output", res.Output),
			zap.Int("rows", res.Rows),
			zap.Duration("duration", res.Duration),
		)
	}

	if r.Recorder != nil && pairID != "" {
		if err := r.Recorder.EndPair(context.WithoutCancel(ctx), pairID, res.Rows, res.Err); err != nil {
			log.Error("failed to record pair outcome", zap.String("pair_id", pairID), zap.Error(err))
		}
	}

	for range opts.Thresholds {
		progress.Advance(1)
	}
}
