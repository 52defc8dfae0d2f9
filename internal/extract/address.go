package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/referencias-work/curator-cli/internal/heuristics"
	"github.com/referencias-work/curator-cli/internal/model"
)

// A capitalized phrase of one to four words on a single line. Accented
// capitals common in Portuguese, Spanish and German place names are allowed.
const placePhrase = `[A-ZÁÉÍÓÚÂÊÔÃÕÄËÏÖÜ][A-Za-zÀ-ÿ.'-]{1,40}(?:[ \t]+[A-Za-zÀ-ÿ.'-]{1,40}){0,3}`

// segmentBounds end the segment a city capture sits in: the city/country
// separators plus the line break used when joining window lines. The em dash
// is not a separator.
const segmentBounds = ",–-•\n"

var (
	reCityCountry  = regexp.MustCompile(`(` + placePhrase + `)[ \t]*(?:,|–|-|•)[ \t]*(` + placePhrase + `)`)
	reCityStateZip = regexp.MustCompile(`(` + placePhrase + `)[ \t]+([A-Z]{2,3})[ \t]+\d{3,5}`)
	reCapitalStart = regexp.MustCompile(`^[A-ZÁÉÍÓÚÂÊÔÃÕÄËÏÖÜ]`)
	reDigitRun2    = regexp.MustCompile(`\d{2,}`)
	reDigitRun3    = regexp.MustCompile(`\d{3,}`)
	reAddressBlock = regexp.MustCompile(`(?is)<address[^>]*>(.*?)</address>`)
	reContactID    = regexp.MustCompile(`(?i)id="contact"`)
)

const (
	contactBefore = 1500
	contactAfter  = 4000
	windowLines   = 2
)

// addressScanner runs the text heuristics against prepared candidate text.
type addressScanner struct {
	tables *heuristics.Tables
}

// RegexAddress scans visible text for a city/country. Sources are tried in
// order: <address> blocks, the vicinity of id="contact", then every line.
func (s addressScanner) RegexAddress(html string) (model.Address, bool) {
	for _, m := range reAddressBlock.FindAllStringSubmatch(html, -1) {
		block := strings.Join(StripToLines(m[1]), " ")
		if a, ok := s.match(block); ok {
			return a, true
		}
	}

	if loc := reContactID.FindStringIndex(html); loc != nil {
		if a, ok := s.tryLines(StripToLines(contactSlice(html, loc[0]))); ok {
			return a, true
		}
	}

	return s.tryLines(StripToLines(html))
}

// tryLines looks at every keyword line, first with the lines after it and
// then with the lines before it.
func (s addressScanner) tryLines(lines []string) (model.Address, bool) {
	for i, line := range lines {
		if !heuristics.ContainsAny(strings.ToLower(line), s.tables.ContactKeywords) {
			continue
		}
		after := lines[i:min(len(lines), i+windowLines+1)]
		if a, ok := s.match(strings.Join(after, "\n")); ok {
			return a, true
		}
		if i == 0 {
			continue
		}
		before := lines[max(0, i-windowLines) : i+1]
		if a, ok := s.match(strings.Join(before, "\n")); ok {
			return a, true
		}
	}
	return model.Address{}, false
}

// match applies the three heuristics in order.
func (s addressScanner) match(text string) (model.Address, bool) {
	if a, ok := s.cityCountry(text); ok {
		return a, true
	}
	if a, ok := s.cityState(text); ok {
		return a, true
	}
	return s.cityFromAddressLine(text)
}

// cityCountry matches "City, Country". The city capture is rejected when
// anything in its delimited segment is noise, so "123 Main St, Austin" does
// not produce a city of "Main St".
func (s addressScanner) cityCountry(text string) (model.Address, bool) {
	m := reCityCountry.FindStringSubmatchIndex(text)
	if m == nil {
		return model.Address{}, false
	}
	segStart := 0
	if i := strings.LastIndexAny(text[:m[2]], segmentBounds); i >= 0 {
		_, size := utf8.DecodeRuneInString(text[i:])
		segStart = i + size
	}
	city, country := text[m[2]:m[3]], text[m[4]:m[5]]
	if isNoise(text[segStart:m[3]]) || isNoise(country) {
		return model.Address{}, false
	}
	return model.Address{
		City:    squash(city),
		Country: squash(country),
		Method:  model.MethodRegex,
	}, true
}

// cityState matches "City ST 12345". A known subdivision code fills in the
// country; an unknown one still yields the city.
func (s addressScanner) cityState(text string) (model.Address, bool) {
	m := reCityStateZip.FindStringSubmatch(text)
	if m == nil || isNoise(m[1]) {
		return model.Address{}, false
	}
	a := model.Address{City: squash(m[1]), Method: model.MethodRegex}
	if country, ok := s.tables.CountryForCode(m[2]); ok {
		a.Country = country
	}
	return a, true
}

// cityFromAddressLine takes the last comma segment of a street-like line.
func (s addressScanner) cityFromAddressLine(text string) (model.Address, bool) {
	var parts []string
	for _, p := range strings.Split(text, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return model.Address{}, false
	}
	last := parts[len(parts)-1]
	if isNoise(last) {
		return model.Address{}, false
	}
	if !reDigitRun2.MatchString(text) && !heuristics.ContainsAny(strings.ToLower(text), s.tables.StreetCues) {
		return model.Address{}, false
	}
	if !reCapitalStart.MatchString(last) {
		return model.Address{}, false
	}
	return model.Address{City: squash(last), Method: model.MethodRegex}, true
}

// squash collapses internal whitespace, including joined line breaks.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isNoise(s string) bool {
	v := strings.ToLower(s)
	return strings.Contains(v, "@") ||
		strings.Contains(v, "http") ||
		strings.Contains(v, "www") ||
		reDigitRun3.MatchString(v)
}

// contactSlice cuts the markup around idx, widened to rune boundaries.
func contactSlice(html string, idx int) string {
	start := max(0, idx-contactBefore)
	end := min(len(html), idx+contactAfter)
	for start > 0 && !isRuneStart(html[start]) {
		start--
	}
	for end < len(html) && !isRuneStart(html[end]) {
		end++
	}
	return html[start:end]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
