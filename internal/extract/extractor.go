// Package extract pulls image and postal-address candidates out of raw HTML.
// Every function is pure over (pageURL, html).
package extract

import (
	"github.com/referencias-work/curator-cli/internal/heuristics"
	"github.com/referencias-work/curator-cli/internal/model"
)

// Extractor finds candidates in one HTML document.
type Extractor interface {
	// Images returns every image candidate, resolved against pageURL.
	Images(pageURL, html string) []model.ImageCandidate
	// OpenGraph returns the first Open Graph or Twitter image, or "".
	OpenGraph(pageURL, html string) string
	// Address returns the first address signal, JSON-LD before text heuristics.
	Address(html string) (model.Address, bool)
}

// HTML implements Extractor with a goquery DOM pass for images and regex
// scanning for addresses.
type HTML struct {
	tables *heuristics.Tables
	addr   addressScanner
}

// NewHTML creates an extractor over the given tables. Nil uses the defaults.
func NewHTML(tables *heuristics.Tables) *HTML {
	if tables == nil {
		tables = heuristics.Default()
	}
	return &HTML{tables: tables, addr: addressScanner{tables: tables}}
}

// Images implements Extractor.
func (x *HTML) Images(pageURL, html string) []model.ImageCandidate {
	doc := parseDoc(html)
	if doc == nil {
		return nil
	}
	return images(doc, pageURL, x.tables.BackgroundAttrs)
}

// OpenGraph implements Extractor.
func (x *HTML) OpenGraph(pageURL, html string) string {
	doc := parseDoc(html)
	if doc == nil {
		return ""
	}
	return openGraph(doc, pageURL)
}

// Address implements Extractor.
func (x *HTML) Address(html string) (model.Address, bool) {
	if a, ok := JSONLDAddress(html); ok {
		return a, true
	}
	return x.addr.RegexAddress(html)
}
