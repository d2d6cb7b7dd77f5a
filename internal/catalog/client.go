package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrClientNotFound    = errors.New("catalog product not found")
	ErrClientBadStatus   = errors.New("catalog bad status")
	ErrClientUnavailable = errors.New("catalog unavailable")
)

// Client is used by the cart and order services to read authoritative
// product data (price, name, variants, stock).
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		baseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 3 * time.Second},
	}
}

func (c *Client) GetProduct(ctx context.Context, id string) (Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/products/%s", c.BaseURL, url.PathEscape(id)), nil)
	if err != nil {
		return Product{}, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrClientUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Product{}, ErrClientNotFound
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Product{}, fmt.Errorf("%w: status=%d", ErrClientBadStatus, resp.StatusCode)
	}

	var p Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Product{}, fmt.Errorf("%w: decode: %v", ErrClientBadStatus, err)
	}
	return p, nil
}
