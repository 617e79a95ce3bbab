// Package jptext normalizes Japanese-locale text scraped from external
// registries: era dates, full/half-width folding, and company name/address
// canonicalization for matching. Outputs are comparison keys, never display
// values.
package jptext

import (
	"strings"
	"unicode"
)

const widthOffset = 0xFEE0

// ToFullWidth folds half-width ASCII alphanumerics into their full-width
// forms so registry text and scraped text compare equal.
func ToFullWidth(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
			b.WriteRune(r + widthOffset)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ToHalfWidthDigits maps full-width digits back to ASCII so strconv and the
// date patterns can consume them.
func ToHalfWidthDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '０' && r <= '９' {
			b.WriteRune(r - widthOffset)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stripSpace removes every whitespace rune, including the ideographic space
// U+3000 common in registry output.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
