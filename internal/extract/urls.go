package extract

import (
	"net/url"
	"strings"
)

// Resolve returns ref resolved against base as an absolute http(s) URL.
// It returns "" when either side does not parse, when ref is empty, or when
// the result is not http(s) (data:, mailto:, javascript: and friends).
func Resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(strings.ToLower(ref), "data:") {
		return ""
	}
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := b.ResolveReference(r)
	if (abs.Scheme != "http" && abs.Scheme != "https") || abs.Host == "" {
		return ""
	}
	return abs.String()
}

// lastSrcsetURL returns the URL of the final entry of a srcset list, which
// is conventionally the largest rendition.
func lastSrcsetURL(srcset string) string {
	var last string
	for _, part := range strings.Split(srcset, ",") {
		if p := strings.TrimSpace(part); p != "" {
			last = p
		}
	}
	if last == "" {
		return ""
	}
	return strings.Fields(last)[0]
}
