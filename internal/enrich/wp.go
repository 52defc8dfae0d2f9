package enrich

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/referencias-work/curator-cli/internal/extract"
	"github.com/referencias-work/curator-cli/internal/fetcher"
	"github.com/referencias-work/curator-cli/internal/model"
)

type wpMediaItem struct {
	SourceURL string `json:"source_url"`
}

// wpMedia lists WordPress REST media. A failing first page means the site is
// not WordPress and the second page is not requested.
func (ss *session) wpMedia(ctx context.Context, base string) []model.ImageCandidate {
	svc := ss.svc
	pages, err := svc.prober.WPMediaPages(base)
	if err != nil {
		return nil
	}

	var out []model.ImageCandidate
	for _, pageURL := range pages {
		if ctx.Err() != nil {
			break
		}
		body, err := svc.fetcher.FetchJSON(ctx, pageURL, svc.policy.JSONTimeout)
		if err != nil {
			zap.L().Debug("enrich: wp media skipped", zap.String("url", pageURL), zap.String("code", fetcher.CodeOf(err)))
			break
		}
		items := parseWPMedia(base, body)
		if len(items) == 0 {
			break
		}
		out = append(out, items...)
	}
	return out
}

// parseWPMedia reads a media listing, resolving each source_url against base.
// Anything other than an array of objects with a string source_url
// contributes nothing.
func parseWPMedia(base string, body []byte) []model.ImageCandidate {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	var out []model.ImageCandidate
	for _, r := range raw {
		var item wpMediaItem
		if err := json.Unmarshal(r, &item); err != nil {
			continue
		}
		if u := extract.Resolve(base, item.SourceURL); u != "" {
			out = append(out, model.ImageCandidate{URL: u, Kind: model.KindWPMedia})
		}
	}
	return out
}
