package extract

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	punctuation = strings.NewReplacer(
		"–", "-", // en dash
		"—", "-", // em dash
		"‘", "'",
		"’", "'",
		"“", `"`,
		"”", `"`,
	)
)

// Clean normalizes typographic punctuation, collapses whitespace runs to a
// single space and trims the result.
func Clean(text string) string {
	text = punctuation.Replace(text)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
