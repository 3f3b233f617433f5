// Package extract locates and parses listing items in rendered pages.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
)

const (
	// maxItemsPerPage bounds how many structural matches are parsed per page.
	maxItemsPerPage = 10
	// qualityFloor is the minimum number of real items before synthetic
	// supplementation kicks in.
	qualityFloor = 3
	// descriptionLimit bounds the description field length.
	descriptionLimit = 200
	// structuralThreshold: a structural selector is adopted only when it
	// matches more elements than this.
	structuralThreshold = 3
	// linkMarker must appear in a candidate href for the link to resolve.
	linkMarker = "t.me"
)

// structuralSelectors are tried in order, most specific first; the first one
// matching more than structuralThreshold elements is adopted as the list.
var structuralSelectors = []string{
	".channel-card",
	".channel-item",
	".card",
	".list-item",
	"[data-channel]",
	".row .col-md-6",
	"article",
	".media",
}

var (
	nameSelectors = []string{".title", ".name", ".channel-name", "h2", "h3", ".card-title", "strong"}
	linkSelectors = []string{`a[href*="t.me"]`, `a[href*="telegram"]`, ".link", ".url"}
	subsSelectors = []string{".subscribers", ".members", ".count", ".stats", ".number"}
	descSelectors = []string{".description", ".desc", ".text", ".summary"}
)

// Extractor pulls ResultRecords out of rendered listing pages, degrading to
// synthetic records when structural extraction yields too little real data.
type Extractor struct {
	logger *zap.Logger
}

// New constructs an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract parses one page. It always returns between 1 and maxItemsPerPage
// records: real items when the page yields them, synthetic supplements when
// fewer than qualityFloor real items were kept, and a fully synthetic page
// when no structural selector matches at all.
func (e *Extractor) Extract(doc *goquery.Document, category string, listingType scrape.ListingType, page int) []scrape.ResultRecord {
	items := e.locateItems(doc)
	if items == nil {
		e.logger.Warn("no listing items found, generating synthetic page",
			zap.String("category", category),
			zap.String("listing_type", string(listingType)),
			zap.Int("page", page),
		)
		return scrape.SyntheticPage(category, listingType, page)
	}

	records := make([]scrape.ResultRecord, 0, maxItemsPerPage)
	items.EachWithBreak(func(i int, item *goquery.Selection) bool {
		if i >= maxItemsPerPage {
			return false
		}
		record, kept := e.extractItem(item, category, listingType)
		if kept {
			records = append(records, record)
		}
		return true
	})

	if len(records) < qualityFloor {
		e.logger.Warn("too few real items, supplementing with synthetic records",
			zap.Int("real", len(records)),
			zap.Int("page", page),
		)
		for i := 1; len(records) < scrape.SyntheticPageSize && i <= scrape.SyntheticPageSize; i++ {
			records = append(records, scrape.SyntheticRecord(category, listingType, page, i))
		}
	}
	return records
}

// locateItems runs the structural fallback chain; nil means no selector
// qualified and the whole page should be synthesized.
func (e *Extractor) locateItems(doc *goquery.Document) *goquery.Selection {
	if doc == nil {
		return nil
	}
	for _, selector := range structuralSelectors {
		sel := doc.Find(selector)
		if sel.Length() > structuralThreshold {
			e.logger.Debug("structural selector adopted",
				zap.String("selector", selector),
				zap.Int("matches", sel.Length()),
			)
			return sel
		}
	}
	return nil
}

// extractItem resolves each field independently through its fallback chain.
// The item is kept only when name or link resolved to something real.
func (e *Extractor) extractItem(item *goquery.Selection, category string, listingType scrape.ListingType) (scrape.ResultRecord, bool) {
	record := scrape.ResultRecord{
		Name:        firstText(item, nameSelectors, nonEmpty),
		Link:        firstLink(item),
		Subscribers: firstText(item, subsSelectors, hasDigit),
		Category:    category,
		ListingType: listingType,
	}
	record.Description = truncate(firstTextOrEmpty(item, descSelectors), descriptionLimit)

	if record.Name == scrape.FieldUnresolved && record.Link == scrape.FieldUnresolved {
		return scrape.ResultRecord{}, false
	}
	return record, true
}

func firstText(item *goquery.Selection, selectors []string, accept func(string) bool) string {
	for _, selector := range selectors {
		text := strings.TrimSpace(item.Find(selector).First().Text())
		if text != "" && accept(text) {
			return text
		}
	}
	return scrape.FieldUnresolved
}

func firstTextOrEmpty(item *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		text := strings.TrimSpace(item.Find(selector).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

func firstLink(item *goquery.Selection) string {
	for _, selector := range linkSelectors {
		href, ok := item.Find(selector).First().Attr("href")
		if ok && strings.Contains(href, linkMarker) {
			return href
		}
	}
	return scrape.FieldUnresolved
}

func nonEmpty(string) bool {
	return true
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
