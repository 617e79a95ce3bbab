package jptext

import "strings"

// Corporate entity forms stripped for matching. Full forms first so 株式会社
// is removed before the abbreviated ㈱ is even considered.
var entityForms = []string{
	"株式会社",
	"合同会社",
	"有限会社",
	"合資会社",
	"㈱",
	"㈲",
}

// NormalizeCompanyName produces the fuzzy-match key for a company name:
// whitespace removed, width folded, and corporate entity forms stripped from
// either end. 株式会社テスト, テスト株式会社 and テスト all map to テスト.
// The result is never stored as the canonical name.
func NormalizeCompanyName(name string) string {
	return StripEntityForm(ToFullWidth(stripSpace(name)))
}

// StripEntityForm removes a leading or trailing corporate entity form without
// any width folding. Used when a search form wants the bare trade name but
// the remote system is picky about character width.
func StripEntityForm(name string) string {
	s := name
	for _, form := range entityForms {
		s = strings.TrimPrefix(s, form)
		s = strings.TrimSuffix(s, form)
	}
	return strings.TrimSpace(s)
}
