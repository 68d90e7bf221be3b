package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// JSONFeedSearcher queries a search proxy that answers
// GET <endpoint>?q=<name> with {"items":[{"title","price","url","vendor"}]}.
// MOMO and Shopee are reached through such proxies.
type JSONFeedSearcher struct {
	name     string
	vendor   string
	endpoint string
	client   *http.Client
}

func NewJSONFeedSearcher(name, vendor, endpoint string, client *http.Client) *JSONFeedSearcher {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &JSONFeedSearcher{name: name, vendor: vendor, endpoint: endpoint, client: client}
}

func (j *JSONFeedSearcher) Name() string { return j.name }

func (j *JSONFeedSearcher) Search(ctx context.Context, productName string) ([]Listing, error) {
	u, err := url.Parse(j.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid %s endpoint: %w", j.name, err)
	}
	q := u.Query()
	q.Set("q", productName)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", j.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s API error (%d): %s", j.name, resp.StatusCode, string(body))
	}

	var result struct {
		Items []struct {
			Title  string  `json:"title"`
			Price  float64 `json:"price"`
			URL    string  `json:"url"`
			Vendor string  `json:"vendor"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", j.name, err)
	}

	listings := make([]Listing, 0, len(result.Items))
	for _, item := range result.Items {
		if len(listings) >= defaultLimit {
			break
		}
		vendor := item.Vendor
		if vendor == "" {
			vendor = j.vendor
		}
		listings = append(listings, Listing{
			Platform: j.name,
			Vendor:   vendor,
			Title:    item.Title,
			Price:    item.Price,
			URL:      item.URL,
		})
	}
	return listings, nil
}
