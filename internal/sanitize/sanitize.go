// Package sanitize normalizes free text that clients attach to saved runs.
// Labels are shown in terminal tables and rendered into markdown resources,
// so they are reduced to a single plain line.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxLabelLength is the maximum label length in runes, excluding the
// truncation marker.
const MaxLabelLength = 80

var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reLeadingHeading matches markdown heading markers at the start of the label.
	reLeadingHeading = regexp.MustCompile(`^#{1,6}\s+`)

	reBackticks  = regexp.MustCompile("`+")
	reWhitespace = regexp.MustCompile(`\s+`)
)

// Label returns input as a single trimmed line without control characters,
// tags, heading markers or backticks, truncated to MaxLabelLength runes.
func Label(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reBackticks.ReplaceAllString(s, "")
	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = reLeadingHeading.ReplaceAllString(s, "")

	if utf8.RuneCountInString(s) > MaxLabelLength {
		s = string([]rune(s)[:MaxLabelLength]) + "..."
	}
	return s
}

// stripControlChars replaces ASCII control characters with spaces so that
// words separated only by a newline or tab stay apart.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
