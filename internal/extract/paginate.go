package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// paginationSelector matches the page-number links the listing root exposes.
const paginationSelector = ".pagination a, .page-numbers a"

// MaxPageLabel inspects a listing root document for pagination controls and
// returns the largest integer page label found. ok is false when the page has
// no usable pagination information.
func MaxPageLabel(doc *goquery.Document) (int, bool) {
	if doc == nil {
		return 0, false
	}
	maxLabel := 0
	doc.Find(paginationSelector).Each(func(_ int, sel *goquery.Selection) {
		n, err := strconv.Atoi(strings.TrimSpace(sel.Text()))
		if err != nil {
			return
		}
		if n > maxLabel {
			maxLabel = n
		}
	})
	return maxLabel, maxLabel > 0
}
