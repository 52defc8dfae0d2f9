package model

import "time"

// ThumbStatus is the enrichment state of an item's thumbnail.
type ThumbStatus string

const (
	ThumbNeverTried    ThumbStatus = "never_tried"
	ThumbFound         ThumbStatus = "found"
	ThumbTriedNotFound ThumbStatus = "tried_not_found"
)

// Thumbnail sources recorded in Reference.ThumbnailSource.
const (
	ThumbSourceProject = "project"
	ThumbSourceOG      = "og"
	ThumbSourceDeep    = "deep"
	ThumbSourceNone    = "none"
)

// ThumbState is derived from the stored fields; it is never persisted itself.
type ThumbState struct {
	Status   ThumbStatus
	URL      string
	Attempts int
	// TriedAt is zero when the item was never attempted or the stored
	// timestamp could not be parsed.
	TriedAt time.Time
}

// ThumbState derives the thumbnail state machine position of r.
func (r *Reference) ThumbState() ThumbState {
	st := ThumbState{URL: r.Thumbnail(), Attempts: r.ThumbnailAttempts}
	if st.Attempts < 0 {
		st.Attempts = 0
	}
	if t, ok := ParseTime(r.ThumbnailTriedAt); ok {
		st.TriedAt = t
	}
	switch {
	case st.URL != "":
		st.Status = ThumbFound
	case st.Attempts > 0:
		st.Status = ThumbTriedNotFound
	default:
		st.Status = ThumbNeverTried
	}
	return st
}

// RecordThumbAttempt counts one attempt. Called once per item per run.
func (r *Reference) RecordThumbAttempt(now time.Time) {
	r.ThumbnailAttempts++
	r.ThumbnailTriedAt = FormatTime(now)
}

// ThumbnailResult is the outcome of a thumbnail search for one site.
type ThumbnailResult struct {
	URL    string `json:"thumbnailUrl"`
	Source string `json:"source"`
	// Page names where the winner came from, e.g. "project@/works" or "og@home".
	Page string `json:"page"`
}
