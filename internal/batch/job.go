package batch

import (
	"context"
	"time"

	"github.com/referencias-work/curator-cli/internal/model"
)

// Job is one kind of batch enrichment.
type Job interface {
	Mode() model.RunMode
	// Strategy is recorded in the report; empty for single-strategy jobs.
	Strategy() string
	// SampleLimit bounds the report's samples and failures.
	SampleLimit() int
	// Queue returns the indices of eligible items in processing order.
	Queue(items []model.Reference, now time.Time) []int
	// Process enriches one item in place. It never returns an error; the
	// outcome is carried in Result.
	Process(ctx context.Context, ref *model.Reference, now time.Time) Result
}

// Result is the outcome of processing one item.
type Result struct {
	Outcome model.Outcome
	// Processed is false for items skipped before any lookup ran.
	Processed bool
	// Canceled marks an item abandoned because the run was stopped. It is
	// left unmodified and not counted.
	Canceled bool
	Code     string
	Err      error
	Sample   model.ReportSample
}

func canceled(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil
}

func sampleOf(ref *model.Reference) model.ReportSample {
	return model.ReportSample{ID: ref.ID, Name: ref.Name, URL: ref.URL}
}
