// Package sanitize cleans raw model output into an insertable suggestion.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

const fence = "```"

// openingFence matches a fence with an optional language tag and its line
// break, or the end of text when the output was cut off after the tag.
var openingFence = regexp.MustCompile("```[A-Za-z0-9_+#.-]*[ \t]*(\r?\n|$)")

// Sanitize strips code fences, then removes a leading copy of query.
// The result may be empty but is never an error.
func Sanitize(raw, query string) string {
	return TrimOverlap(StripFences(raw), query)
}

// StripFences removes every code-fence marker and trims surrounding whitespace
func StripFences(raw string) string {
	text := raw

	// Removing one marker can join backticks into a new one, so loop until
	// the text is stable.
	for strings.Contains(text, fence) {
		text = openingFence.ReplaceAllString(text, "")
		text = strings.ReplaceAll(text, fence, "")
	}

	return strings.TrimSpace(text)
}

// TrimOverlap drops a case-insensitive whole-query prefix from text, keeping
// the remainder's casing. A prefix repeated back to back is dropped each time
// so the result never starts with the query. Partial overlaps such as a
// completion that resumes mid-identifier are left as they are.
func TrimOverlap(text, query string) string {
	q := strings.TrimSpace(query)
	if q == "" {
		return text
	}

	for len(text) >= len(q) && strings.EqualFold(text[:len(q)], q) {
		text = strings.TrimLeftFunc(text[len(q):], unicode.IsSpace)
	}

	return text
}
