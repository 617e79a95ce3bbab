// Package extract turns semi-structured HTML into fixed-width row records.
// Sources render decorative header/spacer rows around the data rows, so the
// extractor drops any row whose cell count differs from the expected width
// rather than failing the document.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FirstText returns the trimmed text of the first node matched by sel, or ""
// when nothing matches.
func FirstText(doc *goquery.Document, sel string) string {
	return strings.TrimSpace(doc.Find(sel).First().Text())
}
