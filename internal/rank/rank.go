// Package rank scores image candidates and picks thumbnails.
package rank

import (
	"slices"
	"strings"

	"github.com/referencias-work/curator-cli/internal/heuristics"
	"github.com/referencias-work/curator-cli/internal/model"
)

const (
	// DefaultLimit is how many ranked URLs are returned to a human picker.
	DefaultLimit = 60
	// DefaultStrictThreshold is the minimum strict score a thumbnail needs.
	DefaultStrictThreshold = 10

	minWidth  = 600
	minHeight = 400
)

// Ranker scores URLs with the heuristic tables.
type Ranker struct {
	tables *heuristics.Tables
}

// New creates a Ranker. Nil tables use the defaults.
func New(tables *heuristics.Tables) *Ranker {
	if tables == nil {
		tables = heuristics.Default()
	}
	return &Ranker{tables: tables}
}

// IsGarbage reports whether the URL mentions a garbage token (logo, icon, pixel...).
func (r *Ranker) IsGarbage(url string) bool {
	return heuristics.ContainsAny(strings.ToLower(url), r.tables.GarbageTokens)
}

// FilterGarbage returns the URLs that are not garbage, in input order.
func (r *Ranker) FilterGarbage(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if !r.IsGarbage(u) {
			out = append(out, u)
		}
	}
	return out
}

// LooksLikeImage is the lenient image filter used by the deep pass. URLs
// without an extension are accepted when the path looks like an upload folder.
func (r *Ranker) LooksLikeImage(url string) bool {
	u := strings.ToLower(url)
	if strings.HasPrefix(u, "data:") {
		return false
	}
	return heuristics.ContainsAny(u, []string{
		".jpg", ".jpeg", ".png", ".webp", ".gif",
		"wp-content/uploads", "/uploads/", "/images/", "image",
	})
}

// IsLowQuality reports whether a stored thumbnail should be replaced.
func (r *Ranker) IsLowQuality(thumbnailURL string) bool {
	return strings.TrimSpace(thumbnailURL) == "" || r.IsGarbage(thumbnailURL)
}

// Score is the additive lenient score of a URL.
func (r *Ranker) Score(url string) int {
	u := strings.ToLower(url)
	score := 0
	if strings.Contains(u, "wp-content/uploads") {
		score += 7
	}
	if strings.Contains(u, "/uploads/") {
		score += 5
	}
	if strings.Contains(u, "/images/") {
		score += 3
	}
	if strings.Contains(u, "cdn") {
		score += 2
	}
	if heuristics.ContainsAny(u, r.tables.WorkTokens) {
		score += 3
	}
	if r.IsGarbage(u) {
		score -= 10
	}
	if strings.Contains(u, ".webp") {
		score++
	}
	if heuristics.ContainsAny(u, []string{".jpg", ".jpeg", ".png"}) {
		score++
	}
	return score
}

// Rank dedupes, keeps image-like non-garbage URLs and returns the top limit by
// score. Ties keep discovery order.
func (r *Ranker) Rank(urls []string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	seen := make(map[string]struct{}, len(urls))
	type scored struct {
		url   string
		score int
	}
	var kept []scored
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		if !r.LooksLikeImage(u) || r.IsGarbage(u) {
			continue
		}
		kept = append(kept, scored{url: u, score: r.Score(u)})
	}
	slices.SortStableFunc(kept, func(a, b scored) int { return b.score - a.score })

	out := make([]string, 0, min(limit, len(kept)))
	for _, s := range kept[:min(limit, len(kept))] {
		out = append(out, s.url)
	}
	return out
}

// hasImageFileExt matches a raster extension at the end of the path or just
// before the query string.
func hasImageFileExt(u string) bool {
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp"} {
		if strings.HasSuffix(u, ext) || strings.Contains(u, ext+"?") {
			return true
		}
	}
	return false
}

// ScoreStrict scores an element image for the interactive thumbnail flow.
// SVGs and garbage are rejected outright and report ok=false.
func (r *Ranker) ScoreStrict(c model.ImageCandidate) (score int, ok bool) {
	u := strings.ToLower(c.URL)
	path, _, _ := strings.Cut(u, "?")
	if strings.HasSuffix(path, ".svg") || r.IsGarbage(u) {
		return 0, false
	}

	score = r.Score(u)
	if hasImageFileExt(u) {
		score += 25
	}
	if c.Kind == model.KindSource {
		score += 8
	}
	if c.Kind.IsBackground() {
		score += 10
	}
	if c.Width > 0 && c.Width < minWidth {
		score -= 30
	}
	if c.Height > 0 && c.Height < minHeight {
		score -= 30
	}
	if c.Width >= minWidth {
		score += 15
	}
	if c.Height >= minHeight {
		score += 10
	}
	if heuristics.ContainsAny(strings.ToLower(c.Alt), r.tables.AltTokens) {
		score += 8
	}
	return score, true
}

// AcceptOpenGraph reports whether a page's declared share image may be used as
// a thumbnail. SVGs, garbage and generic share cards are refused.
func (r *Ranker) AcceptOpenGraph(url string) bool {
	u := strings.ToLower(strings.TrimSpace(url))
	if u == "" {
		return false
	}
	path, _, _ := strings.Cut(u, "?")
	if strings.HasSuffix(path, ".svg") || r.IsGarbage(u) {
		return false
	}
	return !heuristics.ContainsAny(u, r.tables.ShareTokens)
}

// BestStrict returns the highest scoring element image at or above threshold.
// Meta, href and JSON-LD candidates are ignored. The first of equal scores wins.
func (r *Ranker) BestStrict(cands []model.ImageCandidate, threshold int) (model.ImageCandidate, bool) {
	var (
		best      model.ImageCandidate
		bestScore int
		found     bool
	)
	for _, c := range cands {
		if !c.Kind.IsDOM() {
			continue
		}
		s, ok := r.ScoreStrict(c)
		if !ok || s < threshold {
			continue
		}
		if !found || s > bestScore {
			best, bestScore, found = c, s, true
		}
	}
	return best, found
}
