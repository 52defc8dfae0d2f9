// Package heuristics holds the lookup tables that drive candidate extraction,
// scoring and page probing. Tables are plain data so they can be overridden
// from a YAML file and replaced in tests.
package heuristics

import (
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Subdivision maps a set of state/province codes to the country name written
// back to the store when one of them is matched.
type Subdivision struct {
	Country string   `yaml:"country"`
	Codes   []string `yaml:"codes"`
}

// Has reports whether code (any case) belongs to the subdivision.
func (s Subdivision) Has(code string) bool {
	code = strings.ToUpper(code)
	return slices.Contains(s.Codes, code)
}

// Tables is the full set of heuristic lookup data. Treat a loaded value as
// read-only; it is shared across goroutines.
type Tables struct {
	GarbageTokens   []string      `yaml:"garbage_tokens"`
	ShareTokens     []string      `yaml:"share_tokens"`
	WorkTokens      []string      `yaml:"work_tokens"`
	AltTokens       []string      `yaml:"alt_tokens"`
	ContactKeywords []string      `yaml:"contact_keywords"`
	StreetCues      []string      `yaml:"street_cues"`
	Subdivisions    []Subdivision `yaml:"subdivisions"`
	LocationPaths   []string      `yaml:"location_paths"`
	ProjectPaths    []string      `yaml:"project_paths"`
	DeepPaths       []string      `yaml:"deep_paths"`
	BackgroundAttrs []string      `yaml:"background_attrs"`
}

// usStates are the US state codes plus DC.
var usStates = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA",
	"HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD",
	"MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ",
	"NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC",
	"SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
	"DC",
}

// Default returns a fresh copy of the built-in tables.
func Default() *Tables {
	return &Tables{
		GarbageTokens: []string{
			"logo", "favicon", "sprite", "icon",
			"analytics", "tracking", "pixel", "doubleclick",
		},
		// Generic share cards and brand marks that sites declare as og:image.
		ShareTokens: []string{
			"og-image", "ogimage", "opengraph", "open-graph", "meta-image", "site-image",
			"social", "share", "default-share", "twitter", "summary_large_image",
			"placeholder", "wordmark", "monogram", "brandmark", "apple-touch-icon",
			"assets/og", "assets/social",
		},
		WorkTokens: []string{"work", "project", "case", "portfolio"},
		AltTokens:  []string{"project", "work", "case"},
		ContactKeywords: []string{
			"contact", "contato", "address", "endereço", "endereco",
			"location", "studio", "office", "impressum", "about", "sobre",
		},
		StreetCues: []string{
			"rua", "street", "st.", "avenida", "av.", "strasse", "straße",
			"calle", "via", "road", "rd.",
		},
		// Order matters: WA and NT are shared and resolve to the first set.
		Subdivisions: []Subdivision{
			{Country: "Estados Unidos", Codes: slices.Clone(usStates)},
			{Country: "Austrália", Codes: []string{"VIC", "NSW", "QLD", "WA", "SA", "TAS", "ACT", "NT"}},
			{Country: "Canadá", Codes: []string{"AB", "BC", "MB", "NB", "NL", "NS", "NT", "NU", "ON", "PE", "QC", "SK", "YT"}},
		},
		LocationPaths: []string{
			"/contact", "/contato", "/about", "/sobre", "/impressum", "/studio", "/work",
		},
		ProjectPaths: []string{
			"/works", "/work", "/projects", "/project", "/portfolio", "/cases", "/case",
			"/selected-work", "/selected-works", "/archive", "/index", "/projects/all",
		},
		DeepPaths: []string{
			"/projects", "/project", "/work", "/works", "/portfolio", "/cases",
			"/case-studies", "/case-study", "/index", "/projetos", "/projeto",
			"/trabalhos", "/trabalho", "/portifolio", "/portfólio", "/sobre", "/about",
		},
		BackgroundAttrs: []string{"data-bg", "data-background", "data-background-image", "data-image"},
	}
}

// Load reads a YAML file whose top-level "heuristics" key holds overrides.
// Every non-empty list replaces the matching default; an empty path returns
// the defaults unchanged.
func Load(path string) (*Tables, error) {
	t := Default()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "heuristics: read %s", path)
	}

	var wrapper struct {
		Heuristics Tables `yaml:"heuristics"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "heuristics: parse")
	}

	t.overlay(&wrapper.Heuristics)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tables) overlay(o *Tables) {
	pick := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = lower(src)
		}
	}
	pick(&t.GarbageTokens, o.GarbageTokens)
	pick(&t.ShareTokens, o.ShareTokens)
	pick(&t.WorkTokens, o.WorkTokens)
	pick(&t.AltTokens, o.AltTokens)
	pick(&t.ContactKeywords, o.ContactKeywords)
	pick(&t.StreetCues, o.StreetCues)
	pick(&t.BackgroundAttrs, o.BackgroundAttrs)
	// Paths keep their case.
	if len(o.LocationPaths) > 0 {
		t.LocationPaths = o.LocationPaths
	}
	if len(o.ProjectPaths) > 0 {
		t.ProjectPaths = o.ProjectPaths
	}
	if len(o.DeepPaths) > 0 {
		t.DeepPaths = o.DeepPaths
	}
	if len(o.Subdivisions) > 0 {
		subs := make([]Subdivision, 0, len(o.Subdivisions))
		for _, s := range o.Subdivisions {
			codes := make([]string, len(s.Codes))
			for i, c := range s.Codes {
				codes[i] = strings.ToUpper(strings.TrimSpace(c))
			}
			subs = append(subs, Subdivision{Country: strings.TrimSpace(s.Country), Codes: codes})
		}
		t.Subdivisions = subs
	}
}

// Validate rejects tables that would make extraction misbehave.
func (t *Tables) Validate() error {
	for _, p := range slices.Concat(t.LocationPaths, t.ProjectPaths, t.DeepPaths) {
		if !strings.HasPrefix(p, "/") {
			return eris.Errorf("heuristics: path %q must start with /", p)
		}
	}
	for _, s := range t.Subdivisions {
		if s.Country == "" {
			return eris.New("heuristics: subdivision without country")
		}
	}
	return nil
}

// CountryForCode returns the country of the first subdivision set holding code.
func (t *Tables) CountryForCode(code string) (string, bool) {
	for _, s := range t.Subdivisions {
		if s.Has(code) {
			return s.Country, true
		}
	}
	return "", false
}

// ContainsAny reports whether s (already lowercased) contains any token.
func ContainsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if tok != "" && strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
