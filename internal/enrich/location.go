package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/referencias-work/curator-cli/internal/model"
	"github.com/referencias-work/curator-cli/internal/probe"
)

// SuggestLocation visits the location pages in order and returns the first
// address signal found. Pages that fail to fetch are skipped.
func (s *Service) SuggestLocation(ctx context.Context, siteURL string) (model.LocationResult, error) {
	pages, err := s.prober.LocationPages(siteURL)
	if err != nil {
		return model.LocationResult{}, ErrInvalidURL
	}

	ss := s.newSession()
	for _, pageURL := range pages {
		if ctx.Err() != nil {
			break
		}
		page, ok := ss.html(ctx, pageURL, s.policy.LocationTimeout)
		if !ok {
			continue
		}
		addr, found := s.extractor.Address(page.Body)
		if !found {
			continue
		}
		zap.L().Debug("enrich: address found",
			zap.String("url", pageURL),
			zap.String("method", string(addr.Method)),
		)
		return model.LocationResult{Address: addr, Source: pageURL}, nil
	}
	return model.LocationResult{}, ss.miss(ctx)
}

// ValidateURL reports ErrInvalidURL for input no strategy could probe.
func ValidateURL(siteURL string) error {
	if _, err := probe.Parse(siteURL); err != nil {
		return ErrInvalidURL
	}
	return nil
}
