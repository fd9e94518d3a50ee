// Package sponsored queries the sponsored search service. It is a
// deliberate carve-out from the cache layer: called ad hoc, no caching,
// no retry, no tag integration.
package sponsored

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Placement is one sponsored result.
type Placement struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	ImageURL  string  `json:"image_url"`
	Bid       float64 `json:"bid"`
}

// Client is a one-off fetch client for the sponsored search service.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a sponsored search client. A nil http.Client gets a short
// dedicated timeout: sponsored results are decoration, not content.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 3 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Search returns placements for the term, or nil. The contract is
// "returns an array or nothing": the response may be a bare array or an
// object wrapping a results array, and anything else yields nil.
func (c *Client) Search(ctx context.Context, term string) ([]Placement, error) {
	q := url.Values{"q": {term}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("sponsored: create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sponsored: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("sponsored: read response: %w", err)
	}
	return parsePlacements(body), nil
}

// parsePlacements extracts placements from a bare array or a wrapping
// object. Malformed bodies yield nil rather than an error.
func parsePlacements(body []byte) []Placement {
	root := gjson.ParseBytes(body)
	arr := root
	if !root.IsArray() {
		arr = root.Get("results")
		if !arr.IsArray() {
			return nil
		}
	}
	var out []Placement
	arr.ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		out = append(out, Placement{
			ProductID: v.Get("product_id").String(),
			Title:     v.Get("title").String(),
			ImageURL:  v.Get("image_url").String(),
			Bid:       v.Get("bid").Float(),
		})
		return true
	})
	return out
}
