package batch

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/referencias-work/curator-cli/internal/enrich"
	"github.com/referencias-work/curator-cli/internal/model"
)

const (
	// ThumbnailSamples bounds the thumbnail report lists.
	ThumbnailSamples = 25
	// DefaultMaxAttempts caps retries of items that have been tried before.
	DefaultMaxAttempts = 2
	// DefaultRetryAfter is how long a tried item waits before a retry.
	DefaultRetryAfter = 168 * time.Hour
)

// ThumbnailFinder picks a thumbnail for a site.
type ThumbnailFinder interface {
	FindThumbnail(ctx context.Context, siteURL string, strategy enrich.Strategy) (model.ThumbnailResult, error)
}

// QualityChecker flags stored thumbnails worth replacing.
type QualityChecker interface {
	IsLowQuality(thumbnailURL string) bool
}

// ThumbnailJob finds thumbnails for items with none or a low-quality one.
type ThumbnailJob struct {
	Finder      ThumbnailFinder
	Quality     QualityChecker
	Search      enrich.Strategy
	MaxAttempts int
	RetryAfter  time.Duration
}

func (j *ThumbnailJob) Mode() model.RunMode { return model.ModeThumbnails }
func (j *ThumbnailJob) Strategy() string    { return string(j.search()) }
func (j *ThumbnailJob) SampleLimit() int    { return ThumbnailSamples }

func (j *ThumbnailJob) search() enrich.Strategy {
	if j.Search == "" {
		return enrich.StrategyLadder
	}
	return j.Search
}

func (j *ThumbnailJob) maxAttempts() int {
	if j.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return j.MaxAttempts
}

func (j *ThumbnailJob) retryAfter() time.Duration {
	if j.RetryAfter <= 0 {
		return DefaultRetryAfter
	}
	return j.RetryAfter
}

// Eligible reports whether an item in state st should be queued at now.
// Good thumbnails are never re-queued.
func (j *ThumbnailJob) Eligible(st model.ThumbState, now time.Time) bool {
	expired := st.TriedAt.IsZero() || now.Sub(st.TriedAt) >= j.retryAfter()
	retry := st.Attempts < j.maxAttempts() && expired
	switch st.Status {
	case model.ThumbNeverTried:
		return true
	case model.ThumbFound:
		if !j.Quality.IsLowQuality(st.URL) {
			return false
		}
		return st.Attempts == 0 || retry
	case model.ThumbTriedNotFound:
		return retry
	}
	return false
}

// Queue orders eligible items by fewer attempts, then older last try with
// never-tried first, then store order.
func (j *ThumbnailJob) Queue(items []model.Reference, now time.Time) []int {
	type entry struct {
		idx int
		st  model.ThumbState
	}
	var es []entry
	for i := range items {
		st := items[i].ThumbState()
		if j.Eligible(st, now) {
			es = append(es, entry{idx: i, st: st})
		}
	}
	slices.SortStableFunc(es, func(a, b entry) int {
		if a.st.Attempts != b.st.Attempts {
			return a.st.Attempts - b.st.Attempts
		}
		return a.st.TriedAt.Compare(b.st.TriedAt)
	})
	q := make([]int, len(es))
	for i, e := range es {
		q[i] = e.idx
	}
	return q
}

// Process runs the search and records exactly one attempt, however many
// strategy steps ran. A miss keeps any existing thumbnail.
func (j *ThumbnailJob) Process(ctx context.Context, ref *model.Reference, now time.Time) Result {
	url := strings.TrimSpace(ref.URL)
	if url == "" {
		// Counted so an item without a URL ages out of the queue.
		ref.RecordThumbAttempt(now)
		return Result{Outcome: model.OutcomeSkipped}
	}

	res, err := j.Finder.FindThumbnail(ctx, url, j.search())
	if canceled(ctx, err) {
		return Result{Canceled: true, Err: err}
	}
	ref.RecordThumbAttempt(now)

	switch {
	case errors.Is(err, enrich.ErrNoCandidate):
		markMiss(ref)
		return Result{Outcome: model.OutcomeSkipped, Processed: true}
	case err != nil:
		markMiss(ref)
		return Result{Outcome: model.OutcomeFailed, Processed: true, Code: enrich.Code(err), Err: err}
	case res.URL == "" || res.URL == ref.Thumbnail():
		return Result{Outcome: model.OutcomeSkipped, Processed: true}
	}

	ref.ThumbnailURL = model.StringPtr(res.URL)
	ref.ThumbnailSource = res.Source
	ref.UpdatedAt = model.FormatTime(now)

	s := sampleOf(ref)
	s.ThumbnailURL = res.URL
	s.Source = res.Source
	s.Method = res.Page
	return Result{Outcome: model.OutcomeUpdated, Processed: true, Sample: s}
}

func markMiss(ref *model.Reference) {
	if ref.Thumbnail() == "" {
		ref.ThumbnailSource = model.ThumbSourceNone
	}
}
