package utils

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to at most max bytes without splitting a rune.
// Invalid UTF-8 sequences are dropped so the result can be stored in utf8mb4 columns.
func Truncate(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}
