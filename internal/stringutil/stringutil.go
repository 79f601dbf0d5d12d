// Package stringutil provides common string manipulation utilities.
package stringutil

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens a string to maxLen runes with ellipsis.
// Uses rune count for proper UTF-8 handling.
// If maxLen < 4, returns the string unchanged (no room for ellipsis).
func Truncate(s string, maxLen int) string {
	if maxLen < 4 {
		return s
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

// PadRight pads s with spaces to width runes for fixed-width text columns.
// Strings already at or past the width are returned unchanged.
func PadRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

// Slug lowercases s and reduces it to [a-z0-9-]: runs of other characters
// collapse to a single hyphen, with no leading or trailing hyphens.
func Slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}
