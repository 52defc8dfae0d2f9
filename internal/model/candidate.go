package model

import "strings"

// CandidateKind tags where an image candidate was found.
type CandidateKind string

const (
	KindMeta    CandidateKind = "meta"
	KindImg     CandidateKind = "img"
	KindSource  CandidateKind = "source"
	KindBgStyle CandidateKind = "bg-style"
	KindBgData  CandidateKind = "bg-data"
	KindHref    CandidateKind = "href"
	KindJSONLD  CandidateKind = "jsonld"
	KindWPMedia CandidateKind = "wp-media"
)

// IsBackground reports whether the candidate came from a CSS or data-attribute background.
func (k CandidateKind) IsBackground() bool {
	return strings.HasPrefix(string(k), "bg-")
}

// IsDOM reports whether the candidate is an element image (img, picture
// source or background), the kinds the strict thumbnail pass considers.
func (k CandidateKind) IsDOM() bool {
	return k == KindImg || k == KindSource || k.IsBackground()
}

// ImageCandidate is an image URL discovered on a page. Width and Height are
// the declared attribute values, zero when absent.
type ImageCandidate struct {
	URL    string        `json:"url"`
	Kind   CandidateKind `json:"kind"`
	Width  int           `json:"width,omitempty"`
	Height int           `json:"height,omitempty"`
	Alt    string        `json:"alt,omitempty"`
}

// AddressMethod names the extractor that produced an address.
type AddressMethod string

const (
	MethodJSONLD AddressMethod = "jsonld"
	MethodRegex  AddressMethod = "regex"
)

// Address is a city/country pair found on a page. Either part may be empty.
type Address struct {
	City    string        `json:"city,omitempty"`
	Country string        `json:"country,omitempty"`
	Method  AddressMethod `json:"method,omitempty"`
}

// Empty reports whether no address signal was found.
func (a Address) Empty() bool {
	return a.City == "" && a.Country == ""
}

// LocationResult is a located address together with the page it came from.
type LocationResult struct {
	Address
	Source string `json:"source"`
}
