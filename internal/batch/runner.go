// Package batch runs an enrichment job over the whole item store: load,
// back up, queue, process in checkpointed batches and report.
package batch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/referencias-work/curator-cli/internal/artifact"
	"github.com/referencias-work/curator-cli/internal/model"
	"github.com/referencias-work/curator-cli/internal/store"
)

// CodePanic is reported for an item whose worker panicked.
const CodePanic = "PANIC"

// Options bound the run.
type Options struct {
	BatchSize           int
	Concurrency         int
	MaxItems            int
	PauseBetweenBatches time.Duration
}

// DefaultOptions returns the standard run bounds.
func DefaultOptions() Options {
	return Options{BatchSize: 80, Concurrency: 3, PauseBetweenBatches: 800 * time.Millisecond}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.MaxItems < 0 {
		o.MaxItems = 0
	}
	if o.PauseBetweenBatches < 0 {
		o.PauseBetweenBatches = 0
	}
	return o
}

// Recorder receives run progress, typically for metrics.
type Recorder interface {
	ItemDone(mode model.RunMode, outcome model.Outcome)
	BatchDone(mode model.RunMode)
}

// Runner executes jobs against a store.
type Runner struct {
	Store    store.Store
	Sink     artifact.Sink
	Options  Options
	Recorder Recorder
	// Now defaults to time.Now.
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes job. Per-item failures are counted in the report; only a
// store or sink failure returns an error. Cancelling ctx stops dispatch, the
// in-flight batch is still saved and the report is still written.
func (r *Runner) Run(ctx context.Context, job Job) (*model.Report, error) {
	opts := r.Options.withDefaults()
	started := r.now()
	rep := &model.Report{
		ID:        uuid.NewString(),
		Mode:      job.Mode(),
		Strategy:  job.Strategy(),
		StartedAt: started.UTC(),
		Samples:   []model.ReportSample{},
		Failures:  []model.ReportFailure{},
	}
	log := zap.L().With(zap.String("run_id", rep.ID), zap.String("mode", string(rep.Mode)))

	db, err := r.Store.Load(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "batch: load")
	}

	snapshot, err := store.EncodeDB(db)
	if err != nil {
		return nil, eris.Wrap(err, "batch: encode backup")
	}
	rep.Backup, err = r.Sink.Put(ctx, artifact.BackupName(string(rep.Mode), started), snapshot)
	if err != nil {
		return nil, eris.Wrap(err, "batch: write backup")
	}
	log.Info("batch: backup written", zap.String("backup", rep.Backup))

	queue := job.Queue(db.Items, started)
	rep.Eligible = len(queue)
	if opts.MaxItems > 0 && len(queue) > opts.MaxItems {
		queue = queue[:opts.MaxItems]
	}
	rep.Queued = len(queue)
	log.Info("batch: queue computed",
		zap.Int("items", len(db.Items)),
		zap.Int("eligible", rep.Eligible),
		zap.Int("queued", rep.Queued),
		zap.String("strategy", rep.Strategy),
	)

	// Saves must land even after ctx is cancelled.
	persistCtx := context.WithoutCancel(ctx)
	var mu sync.Mutex

	for start := 0; start < len(queue); start += opts.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+opts.BatchSize, len(queue))
		rep.Batches++

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for _, idx := range queue[start:end] {
			if ctx.Err() != nil {
				break
			}
			ref := &db.Items[idx]
			g.Go(func() error {
				res := r.process(gctx, job, ref)
				mu.Lock()
				r.record(rep, job, ref, res)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		db.Touch(r.now())
		if err := r.Store.Save(persistCtx, db); err != nil {
			return rep, eris.Wrapf(err, "batch: save after batch %d", rep.Batches)
		}
		if r.Recorder != nil {
			r.Recorder.BatchDone(rep.Mode)
		}
		log.Info("batch: batch saved",
			zap.Int("batch", rep.Batches),
			zap.Int("done", end),
			zap.Int("queued", rep.Queued),
		)

		if end < len(queue) && !sleepCtx(ctx, opts.PauseBetweenBatches) {
			break
		}
	}
	rep.Canceled = ctx.Err() != nil
	rep.FinishedAt = r.now().UTC()

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return rep, eris.Wrap(err, "batch: encode report")
	}
	loc, err := r.Sink.Put(persistCtx, artifact.ReportName(string(rep.Mode), started), data)
	if err != nil {
		return rep, eris.Wrap(err, "batch: write report")
	}

	log.Info("batch: run complete",
		zap.String("report", loc),
		zap.Int("processed", rep.Processed),
		zap.Int("updated", rep.Updated),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failed", rep.Failed),
		zap.Int("batches", rep.Batches),
		zap.Bool("canceled", rep.Canceled),
	)
	return rep, nil
}

// process runs one item and turns a panic into a failure.
func (r *Runner) process(ctx context.Context, job Job, ref *model.Reference) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{
				Outcome:   model.OutcomeFailed,
				Processed: true,
				Code:      CodePanic,
				Err:       eris.Errorf("batch: panic: %v", p),
			}
		}
	}()
	return job.Process(ctx, ref, r.now())
}

// record folds one result into the report. Callers hold the report lock.
func (r *Runner) record(rep *model.Report, job Job, ref *model.Reference, res Result) {
	if res.Canceled {
		return
	}
	limit := job.SampleLimit()
	if res.Processed {
		rep.Processed++
	}
	switch res.Outcome {
	case model.OutcomeUpdated:
		rep.Updated++
		if len(rep.Samples) < limit {
			rep.Samples = append(rep.Samples, res.Sample)
		}
	case model.OutcomeFailed:
		rep.Failed++
		if len(rep.Failures) < limit {
			rep.Failures = append(rep.Failures, model.ReportFailure{
				ID: ref.ID, Name: ref.Name, URL: ref.URL, Error: res.Code,
			})
		}
	default:
		rep.Skipped++
	}
	if r.Recorder != nil {
		r.Recorder.ItemDone(rep.Mode, res.Outcome)
	}

	fields := []zap.Field{
		zap.String("id", ref.ID),
		zap.String("site", ref.Label()),
		zap.String("outcome", string(res.Outcome)),
	}
	if res.Err != nil {
		fields = append(fields, zap.String("code", res.Code), zap.Error(res.Err))
	}
	zap.L().Debug("batch: item", fields...)
}

// sleepCtx waits d or until ctx is done. It reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
