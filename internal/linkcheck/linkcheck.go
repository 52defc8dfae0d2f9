// Package linkcheck reports whether stored image URLs still resolve.
package linkcheck

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxItems bounds one on-demand request.
	MaxItems = 50
	// DefaultConcurrency is the number of checks in flight.
	DefaultConcurrency = 6
	// DefaultTimeout bounds each request.
	DefaultTimeout = 8 * time.Second
)

// StatusFetcher issues a request and returns the final status code.
type StatusFetcher interface {
	Status(ctx context.Context, method, url string, header http.Header, timeout time.Duration) (int, error)
}

// Item is one URL to check.
type Item struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Result is the check outcome. Status is 0 for invalid URLs and transport
// failures.
type Result struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Status int    `json:"status"`
}

// Checker runs HEAD checks with a ranged GET fallback.
type Checker struct {
	fetcher     StatusFetcher
	concurrency int
	timeout     time.Duration
}

// New creates a Checker. Non-positive values use the defaults.
func New(f StatusFetcher, concurrency int, timeout time.Duration) *Checker {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{fetcher: f, concurrency: concurrency, timeout: timeout}
}

// Check probes one URL. Servers that reject HEAD with 403 or 405 get a
// one-byte ranged GET instead.
func (c *Checker) Check(ctx context.Context, raw string) (ok bool, status int) {
	if !isHTTP(raw) {
		return false, 0
	}
	status, err := c.fetcher.Status(ctx, http.MethodHead, raw, nil, c.timeout)
	if err != nil {
		zap.L().Debug("linkcheck: head failed", zap.String("url", raw), zap.Error(err))
		return false, 0
	}
	if status == http.StatusForbidden || status == http.StatusMethodNotAllowed {
		h := http.Header{}
		h.Set("Range", "bytes=0-0")
		status, err = c.fetcher.Status(ctx, http.MethodGet, raw, h, c.timeout)
		if err != nil {
			zap.L().Debug("linkcheck: ranged get failed", zap.String("url", raw), zap.Error(err))
			return false, 0
		}
	}
	return status >= 200 && status < 400, status
}

// CheckAll checks items concurrently. Results keep input order.
func (c *Checker) CheckAll(ctx context.Context, items []Item) []Result {
	results := make([]Result, len(items))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, it := range items {
		g.Go(func() error {
			ok, status := c.Check(ctx, it.URL)
			results[i] = Result{ID: it.ID, OK: ok, Status: status}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func isHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
