// Package platform queries external retail sources for product listings.
package platform

import (
	"context"
	"net/http"
	"time"
)

// Listing is one normalized search result.
type Listing struct {
	Platform string  `json:"platform"`
	Vendor   string  `json:"vendor"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	URL      string  `json:"url"`
}

// Searcher queries one retail platform.
type Searcher interface {
	Name() string
	Search(ctx context.Context, productName string) ([]Listing, error)
}

const defaultLimit = 20

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
