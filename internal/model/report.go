package model

import "time"

// RunMode names the enrichment a batch run performs.
type RunMode string

const (
	ModeLocation   RunMode = "location"
	ModeThumbnails RunMode = "thumbnails"
)

// Outcome classifies what happened to one queued item.
type Outcome string

const (
	OutcomeUpdated Outcome = "updated"
	// OutcomeSkipped covers empty URLs, unchanged values and successful
	// lookups that found nothing. Skipped items follow the normal re-queue policy.
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ReportSample is a bounded record of an updated item.
type ReportSample struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	City         string `json:"city,omitempty"`
	Country      string `json:"country,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Source       string `json:"source,omitempty"`
	Method       string `json:"method,omitempty"`
}

// ReportFailure is a bounded record of a failed item.
type ReportFailure struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Report summarizes one batch run. It is written once, after the last batch.
type Report struct {
	ID         string          `json:"id"`
	Mode       RunMode         `json:"mode"`
	Strategy   string          `json:"strategy,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Backup     string          `json:"backup"`
	Eligible   int             `json:"eligible"`
	Queued     int             `json:"queued"`
	Processed  int             `json:"processed"`
	Updated    int             `json:"updated"`
	Skipped    int             `json:"skipped"`
	Failed     int             `json:"failed"`
	Batches    int             `json:"batches"`
	Canceled   bool            `json:"canceled,omitempty"`
	Samples    []ReportSample  `json:"samples"`
	Failures   []ReportFailure `json:"failures"`
}
