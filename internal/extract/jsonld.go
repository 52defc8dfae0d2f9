package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/referencias-work/curator-cli/internal/model"
)

var reJSONLD = regexp.MustCompile(`(?is)<script[^>]+type=["']application/ld\+json["'][^>]*>(.*?)</script>`)

// jsonLDBlocks returns the raw contents of every JSON-LD script block.
func jsonLDBlocks(html string) []string {
	matches := reJSONLD.FindAllStringSubmatch(html, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// JSONLDAddress scans JSON-LD blocks for a postal address. Arrays and @graph
// lists are flattened breadth-first; the first object yielding a city or a
// country wins. Malformed blocks are skipped.
func JSONLDAddress(html string) (model.Address, bool) {
	for i, block := range jsonLDBlocks(html) {
		var parsed any
		if err := json.Unmarshal([]byte(strings.TrimSpace(block)), &parsed); err != nil {
			zap.L().Debug("extract: skip json-ld block",
				zap.Int("block", i),
				zap.String("code", "PARSE_ERROR"),
				zap.Error(err),
			)
			continue
		}
		for _, obj := range flattenGraph(parsed) {
			for _, addr := range addressCandidates(obj) {
				city := firstString(addr, "addressLocality", "addressRegion")
				country := countryName(addr["addressCountry"])
				if city != "" || country != "" {
					return model.Address{City: city, Country: country, Method: model.MethodJSONLD}, true
				}
			}
		}
	}
	return model.Address{}, false
}

func flattenGraph(parsed any) []map[string]any {
	var queue []any
	if arr, ok := parsed.([]any); ok {
		queue = append(queue, arr...)
	} else {
		queue = append(queue, parsed)
	}

	var objects []map[string]any
	for len(queue) > 0 {
		head := queue[0]
		queue = queue[1:]
		obj, ok := head.(map[string]any)
		if !ok {
			continue
		}
		objects = append(objects, obj)
		if graph, ok := obj["@graph"].([]any); ok {
			queue = append(queue, graph...)
		}
	}
	return objects
}

// addressCandidates collects address, location.address and location[].address.
func addressCandidates(obj map[string]any) []map[string]any {
	var raw []any
	if v, ok := obj["address"]; ok && v != nil {
		raw = append(raw, v)
	}
	switch loc := obj["location"].(type) {
	case map[string]any:
		if v, ok := loc["address"]; ok && v != nil {
			raw = append(raw, v)
		}
	case []any:
		for _, l := range loc {
			if m, ok := l.(map[string]any); ok && m["address"] != nil {
				raw = append(raw, m["address"])
			}
		}
	}

	var out []map[string]any
	for _, v := range raw {
		switch a := v.(type) {
		case map[string]any:
			out = append(out, a)
		case []any:
			for _, item := range a {
				if m, ok := item.(map[string]any); ok {
					out = append(out, m)
				}
			}
		}
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func countryName(v any) string {
	switch c := v.(type) {
	case string:
		return strings.TrimSpace(c)
	case map[string]any:
		return firstString(c, "name")
	}
	return ""
}
