// Package sanitize turns user input into plain text before it is stored.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	stripAll   = bluemonday.StrictPolicy()
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Text is for single-line fields such as titles, categories and place names.
// Markup is dropped, line breaks become spaces and the result is trimmed.
// Entities are unescaped again since templates and JSON encoding escape on output.
func Text(input string) string {
	s := plain(input)
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// Multiline is for descriptions and comments. Line breaks survive, normalized
// to \n, with at most one empty line between paragraphs.
func Multiline(input string) string {
	s := strings.ReplaceAll(input, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = blankLines.ReplaceAllString(plain(s), "\n\n")
	return strings.TrimSpace(s)
}

func plain(input string) string {
	s := html.UnescapeString(stripAll.Sanitize(input))
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}
