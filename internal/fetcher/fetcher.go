// Package fetcher issues bounded-timeout requests to arbitrary third-party
// sites with browser-like headers and classifies every failure.
package fetcher

import (
	"context"
	"net/http"
	"time"
)

// Page is a fetched HTML document decoded to UTF-8.
type Page struct {
	URL         string
	FinalURL    string
	Body        string
	ContentType string
}

// Fetcher defines the outbound HTTP operations used by enrichment.
type Fetcher interface {
	// FetchHTML GETs url and requires a text/html response.
	FetchHTML(ctx context.Context, url string, timeout time.Duration) (*Page, error)

	// FetchJSON GETs url and requires an application/json response. Returns the raw body.
	FetchJSON(ctx context.Context, url string, timeout time.Duration) ([]byte, error)

	// Status issues a bodyless-read request and returns the final status code.
	// Non-2xx statuses are not errors here; only transport failures are.
	Status(ctx context.Context, method, url string, header http.Header, timeout time.Duration) (int, error)
}
