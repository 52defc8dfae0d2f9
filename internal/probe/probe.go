// Package probe derives the ordered list of pages to visit on a site.
package probe

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/referencias-work/curator-cli/internal/heuristics"
)

// ErrInvalidURL is returned for input that is not an absolute http(s) URL.
var ErrInvalidURL = eris.New("invalid url")

const wpMediaPath = "/wp-json/wp/v2/media?per_page=50&page="

// Prober builds probe lists from the heuristic path tables.
type Prober struct {
	tables *heuristics.Tables
}

// New creates a Prober. Nil tables use the defaults.
func New(tables *heuristics.Tables) *Prober {
	if tables == nil {
		tables = heuristics.Default()
	}
	return &Prober{tables: tables}
}

// Parse validates raw as an absolute http(s) URL.
func Parse(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, eris.Wrap(ErrInvalidURL, "probe: empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidURL, "probe: parse %q", raw)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, eris.Wrapf(ErrInvalidURL, "probe: not an http(s) url %q", raw)
	}
	return u, nil
}

// NormalizeBase drops the fragment and query and strips trailing slashes
// from the path. A bare origin keeps its "/" path.
func NormalizeBase(raw string) (string, error) {
	u, err := Parse(raw)
	if err != nil {
		return "", err
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = ""
	u.ForceQuery = false
	u.Path = trimPath(u.Path)
	u.RawPath = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// LocationPages returns the base, the bare origin, origin+path and then the
// contact/about style paths on the origin.
func (p *Prober) LocationPages(raw string) ([]string, error) {
	base, err := NormalizeBase(raw)
	if err != nil {
		return nil, err
	}
	u, _ := Parse(raw)
	origin := u.Scheme + "://" + u.Host
	basePage := origin + trimPath(u.EscapedPath())

	pages := []string{base, origin, basePage}
	for _, path := range p.tables.LocationPaths {
		pages = append(pages, origin+path)
	}
	return dedupe(pages), nil
}

// ProjectPages returns the project/work paths resolved against the origin.
func (p *Prober) ProjectPages(raw string) ([]string, error) {
	u, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	origin := u.Scheme + "://" + u.Host
	pages := make([]string, 0, len(p.tables.ProjectPaths))
	for _, path := range p.tables.ProjectPaths {
		pages = append(pages, origin+path)
	}
	return dedupe(pages), nil
}

// DeepPages returns the base followed by every deep path appended to the
// base path, so a site living under /studio/ is probed under /studio/.
func (p *Prober) DeepPages(raw string) ([]string, error) {
	base, err := NormalizeBase(raw)
	if err != nil {
		return nil, err
	}
	root := strings.TrimSuffix(base, "/")
	pages := []string{base}
	for _, path := range p.tables.DeepPaths {
		pages = append(pages, root+path)
	}
	return dedupe(pages), nil
}

// WPMediaPages returns the two WordPress REST media listing pages.
func (p *Prober) WPMediaPages(raw string) ([]string, error) {
	base, err := NormalizeBase(raw)
	if err != nil {
		return nil, err
	}
	root := strings.TrimSuffix(base, "/")
	return []string{root + wpMediaPath + "1", root + wpMediaPath + "2"}, nil
}

// Label names a probed page relative to the site for reports: "home" for the
// site itself, otherwise its path.
func Label(base, page string) string {
	if strings.TrimSuffix(page, "/") == strings.TrimSuffix(base, "/") {
		return "home"
	}
	u, err := url.Parse(page)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "home"
	}
	return u.Path
}

func trimPath(p string) string {
	return strings.TrimRight(p, "/")
}

// dedupe keeps the first occurrence, treating a trailing slash as insignificant.
func dedupe(pages []string) []string {
	seen := make(map[string]struct{}, len(pages))
	out := make([]string, 0, len(pages))
	for _, pg := range pages {
		key := strings.TrimSuffix(pg, "/")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, pg)
	}
	return out
}
