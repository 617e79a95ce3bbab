package jptext

import (
	"regexp"
	"strings"
)

var (
	// Prefecture through municipality through the leading block numbers.
	mainAddressPattern = regexp.MustCompile(`^(.+?[都道府県].+?[市区町村].+?[０-９]+([－-][０-９]+)*)`)

	addressPunct = regexp.MustCompile(`[\s　（）()・－-]`)
	chomeSuffix  = regexp.MustCompile(`([０-９]+)丁目`)
	banchiSuffix = regexp.MustCompile(`([０-９]+)番地?`)
	goSuffix     = regexp.MustCompile(`([０-９]+)号`)
	digitRun     = regexp.MustCompile(`[０-９]+`)
)

// NormalizeAddress canonicalizes an address for equality comparison only.
// Half-width alphanumerics are folded to full-width, the 丁目/番地/号 suffixes
// are dropped after their numerals, the string is truncated to the main
// address (prefecture through block numbers, shedding building names and
// parentheses), punctuation is stripped, and a single hyphen is reinserted
// before each remaining digit run so both registry and scraped renderings
// compare equal. Best effort; not suitable for display.
func NormalizeAddress(address string) string {
	s := ToFullWidth(address)
	s = chomeSuffix.ReplaceAllString(s, "$1")
	s = banchiSuffix.ReplaceAllString(s, "$1")
	s = goSuffix.ReplaceAllString(s, "$1")
	if m := mainAddressPattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = addressPunct.ReplaceAllString(s, "")
	s = digitRun.ReplaceAllString(s, "-$0")
	return strings.TrimPrefix(s, "-")
}
