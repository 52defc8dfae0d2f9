// Package model defines the reference directory records and the transient
// values produced while enriching them.
package model

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// TimeLayout is the ISO-8601 layout used for every timestamp written to the store.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// ownedKeys are the JSON keys decoded into typed Reference fields. Every other
// key is carried through Extra untouched.
var ownedKeys = []string{
	"id", "name", "url",
	"city", "country",
	"thumbnailUrl", "thumbnailSource", "thumbnailAttempts", "thumbnailTriedAt",
	"updatedAt", "reviewedAt",
}

// Reference is one directory entry. Only identity, location, thumbnail and
// bookkeeping fields are typed; catalogue fields owned by the admin UI
// (type, areas, tags, review flags, ...) round-trip through Extra.
type Reference struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`

	City    *string `json:"city"`
	Country *string `json:"country"`

	ThumbnailURL      *string `json:"thumbnailUrl"`
	ThumbnailSource   string  `json:"thumbnailSource,omitempty"`
	ThumbnailAttempts int     `json:"thumbnailAttempts,omitempty"`
	ThumbnailTriedAt  string  `json:"thumbnailTriedAt,omitempty"`

	UpdatedAt  string `json:"updatedAt,omitempty"`
	ReviewedAt string `json:"reviewedAt,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the typed fields and keeps the remaining keys in Extra.
func (r *Reference) UnmarshalJSON(data []byte) error {
	type plain Reference
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range ownedKeys {
		delete(raw, k)
	}
	*r = Reference(p)
	if len(raw) > 0 {
		r.Extra = raw
	}
	return nil
}

// MarshalJSON writes the typed fields in a fixed order followed by the Extra
// keys sorted by name. URLs are not HTML-escaped.
func (r Reference) MarshalJSON() ([]byte, error) {
	w := objectWriter{}
	w.field("id", r.ID)
	w.field("name", r.Name)
	w.field("url", r.URL)
	w.field("city", r.City)
	w.field("country", r.Country)
	w.field("thumbnailUrl", r.ThumbnailURL)
	if r.ThumbnailSource != "" {
		w.field("thumbnailSource", r.ThumbnailSource)
	}
	if r.ThumbnailAttempts != 0 {
		w.field("thumbnailAttempts", r.ThumbnailAttempts)
	}
	if r.ThumbnailTriedAt != "" {
		w.field("thumbnailTriedAt", r.ThumbnailTriedAt)
	}
	if r.UpdatedAt != "" {
		w.field("updatedAt", r.UpdatedAt)
	}
	if r.ReviewedAt != "" {
		w.field("reviewedAt", r.ReviewedAt)
	}

	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		if !slices.Contains(ownedKeys, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		w.field(k, r.Extra[k])
	}
	return w.finish()
}

// objectWriter builds a JSON object key by key. The first error sticks.
type objectWriter struct {
	buf bytes.Buffer
	n   int
	err error
}

func (w *objectWriter) field(key string, v any) {
	if w.err != nil {
		return
	}
	if w.n == 0 {
		w.buf.WriteByte('{')
	} else {
		w.buf.WriteByte(',')
	}
	w.n++
	w.value(key)
	w.buf.WriteByte(':')
	w.value(v)
}

func (w *objectWriter) value(v any) {
	if w.err != nil {
		return
	}
	enc := json.NewEncoder(&w.buf)
	enc.SetEscapeHTML(false)
	if w.err = enc.Encode(v); w.err == nil {
		w.buf.Truncate(w.buf.Len() - 1) // Encode appends a newline
	}
}

func (w *objectWriter) finish() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.n == 0 {
		w.buf.WriteByte('{')
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes(), nil
}

// Thumbnail returns the current thumbnail URL, or "" when unset.
func (r *Reference) Thumbnail() string {
	return StringValue(r.ThumbnailURL)
}

// Label returns the name for log lines, falling back to the URL.
func (r *Reference) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.URL
}

// ReferenceDB is the whole item store as persisted.
type ReferenceDB struct {
	Count     int         `json:"count"`
	Items     []Reference `json:"items"`
	UpdatedAt string      `json:"updatedAt,omitempty"`
}

// Touch refreshes the count and the store-level timestamp.
func (db *ReferenceDB) Touch(now time.Time) {
	db.Count = len(db.Items)
	db.UpdatedAt = FormatTime(now)
}

// StringValue dereferences p, trimming whitespace. Nil yields "".
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// StringPtr returns a pointer to s, or nil for a blank string.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// FormatTime renders t in the store's timestamp layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a stored timestamp. Unparseable or empty values report false.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, TimeLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
