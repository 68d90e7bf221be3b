package domain

import (
	"strings"

	"smartshop-backend/pkg/fuzzy"
	"smartshop-backend/pkg/platform"
)

// accessoryTerms mark listings that are add-ons for the product rather than
// the product itself.
var accessoryTerms = []string{
	"case", "film", "protector", "screen guard", "cable", "charger", "adapter", "strap",
	"保護殼", "保護套", "手機殼", "殼", "保護貼", "玻璃貼", "膜", "充電線", "傳輸線", "充電器", "轉接頭", "支架", "錶帶",
}

// IsRelevant reports whether listing is a plausible offer for query.
func IsRelevant(query string, listing platform.Listing) bool {
	if listing.Price <= 0 {
		return false
	}

	title := strings.ToLower(listing.Title)
	q := strings.ToLower(query)
	for _, term := range accessoryTerms {
		if strings.Contains(title, term) && !strings.Contains(q, term) {
			return false
		}
	}

	return fuzzy.MatchesProduct(query, listing.Title)
}

// Cheapest returns the index of the cheapest relevant listing, preferring the
// earlier listing on ties, or -1.
func Cheapest(query string, listings []platform.Listing) int {
	best := -1
	for i, l := range listings {
		if !IsRelevant(query, l) {
			continue
		}
		if best == -1 || l.Price < listings[best].Price {
			best = i
		}
	}
	return best
}
