package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const pchomeProductURL = "https://24h.pchome.com.tw/prod/"

// PChomeSearcher queries the PChome 24h public search API.
type PChomeSearcher struct {
	baseURL string
	client  *http.Client
	limit   int
}

func NewPChomeSearcher(baseURL string, client *http.Client) *PChomeSearcher {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &PChomeSearcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limit:   defaultLimit,
	}
}

func (p *PChomeSearcher) Name() string { return "pchome" }

func (p *PChomeSearcher) Search(ctx context.Context, productName string) ([]Listing, error) {
	endpoint := fmt.Sprintf("%s/search/v3.3/all/results?q=%s&page=1&sort=sale/dc", p.baseURL, url.QueryEscape(productName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pchome request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pchome API error (%d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Prods []struct {
			ID    string  `json:"Id"`
			Name  string  `json:"name"`
			Price float64 `json:"price"`
		} `json:"prods"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse pchome response: %w", err)
	}

	listings := make([]Listing, 0, len(result.Prods))
	for _, prod := range result.Prods {
		if len(listings) >= p.limit {
			break
		}
		listings = append(listings, Listing{
			Platform: p.Name(),
			Vendor:   "PChome 24h",
			Title:    prod.Name,
			Price:    prod.Price,
			URL:      pchomeProductURL + prod.ID,
		})
	}
	return listings, nil
}
