package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/referencias-work/curator-cli/internal/model"
)

// metaImageKeys are read in this order; OpenGraph returns the first hit.
var metaImageKeys = []string{"og:image", "og:image:url", "twitter:image", "twitter:image:src"}

var (
	reBackgroundURL = regexp.MustCompile(`(?i)background-image\s*:\s*url\(([^)]+)\)`)
	reJSONImageURL  = regexp.MustCompile(`(?i)"([^"]+\.(?:jpg|jpeg|png|webp|gif)(?:\?[^"]*)?)"`)
)

type imageCollector struct {
	pageURL string
	seen    map[string]struct{}
	out     []model.ImageCandidate
}

func (c *imageCollector) add(raw string, kind model.CandidateKind, w, h int, alt string) {
	abs := Resolve(c.pageURL, strings.Trim(strings.TrimSpace(raw), `'"`))
	if abs == "" {
		return
	}
	// Same URL from the same kind only once; the first occurrence keeps its
	// declared dimensions.
	key := string(kind) + " " + abs
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}
	c.out = append(c.out, model.ImageCandidate{URL: abs, Kind: kind, Width: w, Height: h, Alt: alt})
}

func parseDoc(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		zap.L().Debug("extract: parse html", zap.Error(err))
		return nil
	}
	return doc
}

func metaContent(doc *goquery.Document, key string) []string {
	var out []string
	doc.Find(`meta[property="` + key + `"], meta[name="` + key + `"]`).Each(func(_ int, sel *goquery.Selection) {
		if v := strings.TrimSpace(sel.AttrOr("content", "")); v != "" {
			out = append(out, v)
		}
	})
	return out
}

// images collects every image candidate from the parsed document.
func images(doc *goquery.Document, pageURL string, bgAttrs []string) []model.ImageCandidate {
	c := &imageCollector{pageURL: pageURL, seen: make(map[string]struct{})}

	for _, key := range metaImageKeys {
		for _, v := range metaContent(doc, key) {
			c.add(v, model.KindMeta, 0, 0, "")
		}
	}

	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		w := attrInt(sel, "width")
		h := attrInt(sel, "height")
		alt := strings.TrimSpace(sel.AttrOr("alt", ""))
		for _, a := range []string{"srcset", "data-srcset"} {
			if v := lastSrcsetURL(sel.AttrOr(a, "")); v != "" {
				c.add(v, model.KindImg, w, h, alt)
			}
		}
		for _, a := range []string{"src", "data-src"} {
			if v := sel.AttrOr(a, ""); v != "" {
				c.add(v, model.KindImg, w, h, alt)
			}
		}
	})

	doc.Find("picture source").Each(func(_ int, sel *goquery.Selection) {
		for _, a := range []string{"srcset", "data-srcset"} {
			if v := lastSrcsetURL(sel.AttrOr(a, "")); v != "" {
				c.add(v, model.KindSource, 0, 0, "")
			}
		}
	})

	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		for _, m := range reBackgroundURL.FindAllStringSubmatch(sel.AttrOr("style", ""), -1) {
			c.add(m[1], model.KindBgStyle, 0, 0, "")
		}
	})
	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		for _, m := range reBackgroundURL.FindAllStringSubmatch(sel.Text(), -1) {
			c.add(m[1], model.KindBgStyle, 0, 0, "")
		}
	})

	for _, attr := range bgAttrs {
		doc.Find("[" + attr + "]").Each(func(_ int, sel *goquery.Selection) {
			if v := sel.AttrOr(attr, ""); v != "" {
				c.add(v, model.KindBgData, 0, 0, "")
			}
		})
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		c.add(sel.AttrOr("href", ""), model.KindHref, 0, 0, "")
	})

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		chunk := strings.ReplaceAll(sel.Text(), `\/`, "/")
		for _, m := range reJSONImageURL.FindAllStringSubmatch(chunk, -1) {
			c.add(m[1], model.KindJSONLD, 0, 0, "")
		}
	})

	return c.out
}

// openGraph returns the first meta image, resolved, or "".
func openGraph(doc *goquery.Document, pageURL string) string {
	for _, key := range metaImageKeys {
		for _, v := range metaContent(doc, key) {
			if abs := Resolve(pageURL, v); abs != "" {
				return abs
			}
		}
	}
	return ""
}

func attrInt(sel *goquery.Selection, name string) int {
	v := strings.TrimSpace(sel.AttrOr(name, ""))
	v = strings.TrimSuffix(v, "px")
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
