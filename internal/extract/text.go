package extract

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	reScript     = regexp.MustCompile(`(?is)<script.*?</script>`)
	reStyle      = regexp.MustCompile(`(?is)<style.*?</style>`)
	reBreak      = regexp.MustCompile(`(?i)<br\s*/?>`)
	reBlockClose = regexp.MustCompile(`(?i)</(?:p|div|li|section|address|footer|header|article|main|span|h[1-6])>`)
	reTag        = regexp.MustCompile(`<[^>]+>`)
	reNewlines   = regexp.MustCompile(`\n+`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// StripToLines reduces markup to its visible text, one line per block-level
// element or <br>. Entities are decoded, NBSP becomes a space and the result
// is NFC-normalized so accented city names match the pattern classes.
func StripToLines(raw string) []string {
	s := reScript.ReplaceAllString(raw, " ")
	s = reStyle.ReplaceAllString(s, " ")
	s = reBreak.ReplaceAllString(s, "\n")
	s = reBlockClose.ReplaceAllString(s, "\n")
	s = reTag.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = norm.NFC.String(s)

	parts := reNewlines.Split(s, -1)
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(reSpaces.ReplaceAllString(p, " "))
		if p != "" {
			lines = append(lines, p)
		}
	}
	return lines
}
