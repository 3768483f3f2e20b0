// Package moveline normalizes administrator-entered solution lines into
// discrete move tokens.
package moveline

import (
	"regexp"
	"strings"
)

// moveNumberRe matches move-number prefixes like "1." or "12.", including
// the black-to-move form "1...".
var moveNumberRe = regexp.MustCompile(`[0-9]+\.(\.\.)?\s*`)

// Normalize converts a raw line such as "1. e4, e5 2.Nf3 Nc6" into the
// ordered token sequence ["e4" "e5" "Nf3" "Nc6"]. Numbering, commas and
// irregular whitespace are stripped. Empty input yields an empty slice.
//
// Normalize is idempotent over its own output joined with single spaces.
func Normalize(raw string) []string {
	s := moveNumberRe.ReplaceAllString(raw, "")
	s = strings.ReplaceAll(s, ",", " ")
	fields := strings.Fields(s)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// NormalizeMove trims a single live-submitted move. Player input is taken
// as-is apart from surrounding whitespace; it never carries numbering.
func NormalizeMove(raw string) string {
	return strings.TrimSpace(raw)
}

// Join renders a token sequence back to the canonical single-space form.
func Join(tokens []string) string {
	return strings.Join(tokens, " ")
}
