package jptext

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseError reports text this package could not interpret. Scraped text is
// adversarial, so malformed input is a value, not a panic.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("jptext: %s: %q", e.Reason, e.Input)
}

// Year 1 of each era maps to the start year; Gregorian year is
// start + eraYear - 1.
var eraStartYears = map[string]int{
	"明治": 1868,
	"大正": 1912,
	"昭和": 1926,
	"平成": 1989,
	"令和": 2019,
}

var (
	eraDatePattern   = regexp.MustCompile(`(\D+?)(\d{1,2})年(\d{1,2})月(\d{1,2})日`)
	gregorianPattern = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`)
)

// ConvertEraDate converts a Japanese era date such as 令和5年4月1日 to its
// Gregorian calendar date. A 4-digit Gregorian form (2023年04月01日) is
// accepted as a fallback. Anything else, including an unknown era name,
// yields a *ParseError; the function never returns a plausible-looking but
// wrong date.
func ConvertEraDate(text string) (time.Time, error) {
	s := ToHalfWidthDigits(stripSpace(text))

	if m := gregorianPattern.FindStringSubmatch(s); m != nil {
		return makeDate(text, m[1], m[2], m[3])
	}

	m := eraDatePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, &ParseError{Input: text, Reason: "unrecognized date format"}
	}
	era := strings.TrimSpace(m[1])
	start, ok := eraStartYears[era]
	if !ok {
		return time.Time{}, &ParseError{Input: text, Reason: "unknown era " + era}
	}
	eraYear, err := strconv.Atoi(m[2])
	if err != nil || eraYear < 1 {
		return time.Time{}, &ParseError{Input: text, Reason: "invalid era year"}
	}
	return makeDate(text, strconv.Itoa(start+eraYear-1), m[3], m[4])
}

func makeDate(input, year, month, day string) (time.Time, error) {
	y, _ := strconv.Atoi(year)
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range components (13月 becomes January of
	// the next year); reject anything that did not round-trip.
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return time.Time{}, &ParseError{Input: input, Reason: "date components out of range"}
	}
	return t, nil
}
