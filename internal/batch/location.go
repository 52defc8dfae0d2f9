package batch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/referencias-work/curator-cli/internal/enrich"
	"github.com/referencias-work/curator-cli/internal/model"
)

// LocationSamples bounds the location report lists.
const LocationSamples = 20

// LocationFinder suggests a city and country for a site.
type LocationFinder interface {
	SuggestLocation(ctx context.Context, siteURL string) (model.LocationResult, error)
}

// LocationJob fills city and country for items not yet reviewed by a human.
type LocationJob struct {
	Finder LocationFinder
}

func (j *LocationJob) Mode() model.RunMode { return model.ModeLocation }
func (j *LocationJob) Strategy() string    { return "" }
func (j *LocationJob) SampleLimit() int    { return LocationSamples }

// Queue keeps unreviewed items in store order.
func (j *LocationJob) Queue(items []model.Reference, _ time.Time) []int {
	var q []int
	for i := range items {
		if strings.TrimSpace(items[i].ReviewedAt) == "" {
			q = append(q, i)
		}
	}
	return q
}

// Process overwrites city and country with any non-empty suggestion that
// differs from the stored value.
func (j *LocationJob) Process(ctx context.Context, ref *model.Reference, now time.Time) Result {
	url := strings.TrimSpace(ref.URL)
	if url == "" {
		return Result{Outcome: model.OutcomeSkipped}
	}

	res, err := j.Finder.SuggestLocation(ctx, url)
	if canceled(ctx, err) {
		return Result{Canceled: true, Err: err}
	}
	switch {
	case errors.Is(err, enrich.ErrNoCandidate):
		return Result{Outcome: model.OutcomeSkipped, Processed: true}
	case err != nil:
		return Result{Outcome: model.OutcomeFailed, Processed: true, Code: enrich.Code(err), Err: err}
	}

	changed := false
	if c := strings.TrimSpace(res.City); c != "" && c != model.StringValue(ref.City) {
		ref.City = model.StringPtr(c)
		changed = true
	}
	if c := strings.TrimSpace(res.Country); c != "" && c != model.StringValue(ref.Country) {
		ref.Country = model.StringPtr(c)
		changed = true
	}
	if !changed {
		return Result{Outcome: model.OutcomeSkipped, Processed: true}
	}
	ref.UpdatedAt = model.FormatTime(now)

	s := sampleOf(ref)
	s.City = model.StringValue(ref.City)
	s.Country = model.StringValue(ref.Country)
	s.Source = res.Source
	s.Method = string(res.Method)
	return Result{Outcome: model.OutcomeUpdated, Processed: true, Sample: s}
}
