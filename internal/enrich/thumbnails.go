package enrich

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/referencias-work/curator-cli/internal/model"
	"github.com/referencias-work/curator-cli/internal/probe"
)

// Strategy selects how hard FindThumbnail looks.
type Strategy string

const (
	// StrategyCheap tries project pages and the home page with strict scoring,
	// then falls back to Open Graph images.
	StrategyCheap Strategy = "cheap"
	// StrategyDeep crawls portfolio paths and WordPress media and takes the
	// best lenient score.
	StrategyDeep Strategy = "deep"
	// StrategyLadder runs cheap and then deep.
	StrategyLadder Strategy = "ladder"
)

// ParseStrategy validates a strategy name. Empty selects ladder.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyLadder:
		return StrategyLadder, nil
	case StrategyCheap:
		return StrategyCheap, nil
	case StrategyDeep:
		return StrategyDeep, nil
	}
	return "", eris.Errorf("enrich: unknown strategy %q", s)
}

// FindThumbnail picks one thumbnail for the site. Pages fetched by an earlier
// step of the ladder are not fetched again.
func (s *Service) FindThumbnail(ctx context.Context, siteURL string, strategy Strategy) (model.ThumbnailResult, error) {
	base, err := probe.NormalizeBase(siteURL)
	if err != nil {
		return model.ThumbnailResult{}, ErrInvalidURL
	}

	ss := s.newSession()
	if strategy == StrategyCheap || strategy == StrategyLadder {
		if res, ok := ss.cheap(ctx, base); ok {
			return res, nil
		}
	}
	if strategy == StrategyDeep || strategy == StrategyLadder {
		if ranked := ss.deep(ctx, base); len(ranked) > 0 {
			return model.ThumbnailResult{URL: ranked[0], Source: model.ThumbSourceDeep, Page: "deep"}, nil
		}
	}
	return model.ThumbnailResult{}, ss.miss(ctx)
}

// Candidates returns the ranked lenient candidate list for a human picker.
func (s *Service) Candidates(ctx context.Context, siteURL string) ([]string, error) {
	base, err := probe.NormalizeBase(siteURL)
	if err != nil {
		return nil, ErrInvalidURL
	}
	ss := s.newSession()
	if ranked := ss.deep(ctx, base); len(ranked) > 0 {
		return ranked, nil
	}
	return nil, ss.miss(ctx)
}

// cheap runs the strict project pass, the strict home pass and the filtered
// Open Graph pass, in that order.
func (ss *session) cheap(ctx context.Context, base string) (model.ThumbnailResult, bool) {
	svc := ss.svc
	projects, err := svc.prober.ProjectPages(base)
	if err != nil {
		return model.ThumbnailResult{}, false
	}
	timeout := svc.policy.PageTimeout

	for _, pageURL := range append(projects, base) {
		if ctx.Err() != nil {
			return model.ThumbnailResult{}, false
		}
		page, ok := ss.html(ctx, pageURL, timeout)
		if !ok {
			continue
		}
		best, ok := svc.ranker.BestStrict(svc.extractor.Images(pageURL, page.Body), svc.policy.StrictThreshold)
		if !ok {
			continue
		}
		return model.ThumbnailResult{
			URL:    best.URL,
			Source: model.ThumbSourceProject,
			Page:   "project@" + probe.Label(base, pageURL),
		}, true
	}

	for _, pageURL := range append([]string{base}, projects...) {
		if ctx.Err() != nil {
			return model.ThumbnailResult{}, false
		}
		page, ok := ss.html(ctx, pageURL, timeout)
		if !ok {
			continue
		}
		og := svc.extractor.OpenGraph(pageURL, page.Body)
		if !svc.ranker.AcceptOpenGraph(og) {
			continue
		}
		return model.ThumbnailResult{
			URL:    og,
			Source: model.ThumbSourceOG,
			Page:   "og@" + probe.Label(base, pageURL),
		}, true
	}
	return model.ThumbnailResult{}, false
}

// deep collects every candidate URL from the deep pages and WordPress media,
// then ranks them leniently.
func (ss *session) deep(ctx context.Context, base string) []string {
	svc := ss.svc
	pages, err := svc.prober.DeepPages(base)
	if err != nil {
		return nil
	}

	var urls []string
	for _, pageURL := range pages {
		if ctx.Err() != nil {
			return nil
		}
		page, ok := ss.html(ctx, pageURL, svc.policy.DeepTimeout)
		if !ok {
			continue
		}
		for _, c := range svc.extractor.Images(pageURL, page.Body) {
			urls = append(urls, c.URL)
		}
	}
	for _, c := range ss.wpMedia(ctx, base) {
		urls = append(urls, c.URL)
	}

	ranked := svc.ranker.Rank(urls, svc.policy.CandidateLimit)
	zap.L().Debug("enrich: deep pass",
		zap.String("url", base),
		zap.Int("collected", len(urls)),
		zap.Int("ranked", len(ranked)),
	)
	return ranked
}
