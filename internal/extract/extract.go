// Package extract derives the completion query and mode from editor context.
package extract

import (
	"strings"
	"unicode/utf8"
)

// DefaultMarker switches a request into natural-language mode
const DefaultMarker = "--sql:"

// Mode is the completion mode for one request
type Mode int

const (
	// Continuation extends a partially written query.
	Continuation Mode = iota
	// NaturalLanguage writes a full query from a plain-language instruction.
	NaturalLanguage
)

func (m Mode) String() string {
	switch m {
	case NaturalLanguage:
		return "natural_language"
	default:
		return "continuation"
	}
}

// MarshalText lets Mode appear as a string in JSON output
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Result is the per-request extraction output
type Result struct {
	// RawPrefix is the document text before the cursor.
	RawPrefix string
	Mode      Mode
	// Query is the text to complete or the instruction after the marker.
	Query string
}

// Extractor classifies editor context using a configured marker
type Extractor struct {
	marker string
}

// New returns an extractor for marker, falling back to DefaultMarker when blank
func New(marker string) *Extractor {
	if strings.TrimSpace(marker) == "" {
		marker = DefaultMarker
	}

	return &Extractor{marker: marker}
}

// Marker returns the configured marker
func (e *Extractor) Marker() string {
	return e.marker
}

// Extract uses the default marker
func Extract(document string, cursor int) Result {
	return New(DefaultMarker).Extract(document, cursor)
}

// Extract never fails. The cursor counts runes and is clamped to the document.
func (e *Extractor) Extract(document string, cursor int) Result {
	prefix := prefixAt(document, cursor)

	if at := lastIndexFold(prefix, e.marker); at >= 0 {
		return Result{
			RawPrefix: prefix,
			Mode:      NaturalLanguage,
			Query:     strings.TrimSpace(prefix[at+len(e.marker):]),
		}
	}

	return Result{
		RawPrefix: prefix,
		Mode:      Continuation,
		Query:     strings.TrimSpace(prefix),
	}
}

// prefixAt returns the text before the cursor-th rune
func prefixAt(document string, cursor int) string {
	if cursor <= 0 {
		return ""
	}

	n := 0
	for i := range document {
		if n == cursor {
			return document[:i]
		}
		n++
	}

	return document
}

// lastIndexFold is a case-insensitive strings.LastIndex that only matches at
// rune boundaries.
func lastIndexFold(s, substr string) int {
	if substr == "" {
		return -1
	}

	for i := len(s) - len(substr); i >= 0; i-- {
		if !utf8.RuneStart(s[i]) {
			continue
		}

		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}

	return -1
}
