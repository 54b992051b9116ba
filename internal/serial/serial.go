// Package serial canonicalises device serial numbers before any comparison.
package serial

import "strings"

// Normalize trims surrounding whitespace and upper-cases s.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Equal reports whether a and b name the same serial after normalisation.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// NormalizeAll returns a normalised copy of values, preserving order and blanks.
func NormalizeAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = Normalize(v)
	}
	return out
}
