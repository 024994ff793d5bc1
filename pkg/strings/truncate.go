// Package strings holds small string helpers shared by the CLI output
// paths.
package strings

import (
	"strings"
)

// DefaultDescriptionMaxLen is the column width description cells are
// truncated to.
const DefaultDescriptionMaxLen = 60

// MinTruncateLen is the smallest usable maxLen: one character plus "...".
const MinTruncateLen = 4

// TruncateDescription collapses a string to a single line and truncates it
// to maxLen characters, appending "..." when it was cut. Whitespace runs
// (newlines included) become single spaces. Slicing is rune-based so
// multi-byte characters never split.
func TruncateDescription(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
