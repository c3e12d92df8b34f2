// Package pos is the client for the point-of-sale vendor API: OAuth2+PKCE
// linking, catalog/order reads and idempotent stock updates.
package pos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pitstock/pitstock/internal/config"
)

var (
	ErrNotLinked   = errors.New("POS account is not linked")
	ErrUnavailable = errors.New("POS API unavailable")
)

// APIError is a non-2xx response from the POS API. Workers classify
// retryability by status code.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("POS API error: status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err is a transient POS failure: HTTP 401
// (token refresh race), 429 or any 5xx.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized:
		return true
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return true
	case apiErr.StatusCode >= 500 && apiErr.StatusCode <= 599:
		return true
	}
	return false
}

// TokenSource supplies the current bearer token for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is a POS REST API client.
type Client struct {
	httpClient *http.Client
	config     config.POSConfig
	tokens     TokenSource
	logger     zerolog.Logger
}

// NewClient creates a new POS client.
func NewClient(cfg config.POSConfig, tokens TokenSource, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		config: cfg,
		tokens: tokens,
		logger: logger.With().Str("component", "pos").Logger(),
	}
}

// GetMerchant fetches merchant info.
func (c *Client) GetMerchant(ctx context.Context, merchantID string) (*Merchant, error) {
	endpoint := fmt.Sprintf("%s/v3/merchants/%s", c.config.BaseURL, url.PathEscape(merchantID))

	var merchant Merchant
	if err := c.get(ctx, endpoint, nil, &merchant); err != nil {
		return nil, err
	}
	return &merchant, nil
}

// ListItems fetches one page of the merchant's items.
func (c *Client) ListItems(ctx context.Context, merchantID string, limit, offset int) (*ItemsPage, error) {
	endpoint := fmt.Sprintf("%s/v3/merchants/%s/items", c.config.BaseURL, url.PathEscape(merchantID))
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	var page ItemsPage
	if err := c.get(ctx, endpoint, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListAllItems follows the paging cursor until the listing is exhausted.
func (c *Client) ListAllItems(ctx context.Context, merchantID string) ([]Item, error) {
	const pageSize = 100

	var items []Item
	offset := 0
	for {
		page, err := c.ListItems(ctx, merchantID, pageSize, offset)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Elements...)

		next := nextOffset(page.Next)
		if next < 0 || next <= offset {
			break
		}
		offset = next
	}
	return items, nil
}

// ListOrders fetches one page of the merchant's orders.
func (c *Client) ListOrders(ctx context.Context, merchantID, filter string, limit, offset int) (*OrdersPage, error) {
	endpoint := fmt.Sprintf("%s/v3/merchants/%s/orders", c.config.BaseURL, url.PathEscape(merchantID))
	params := url.Values{}
	if filter != "" {
		params.Set("filter", filter)
	}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	var page OrdersPage
	if err := c.get(ctx, endpoint, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UpdateStock pushes an absolute stock quantity for one POS item. The
// idempotency key protects against duplicate delivery on retries.
func (c *Client) UpdateStock(ctx context.Context, merchantID, itemID string, quantity int, idempotencyKey string) (*StockUpdateResponse, error) {
	endpoint := fmt.Sprintf("%s/v3/merchants/%s/inventory/stock/%s",
		c.config.BaseURL, url.PathEscape(merchantID), url.PathEscape(itemID))

	body, err := json.Marshal(StockUpdateRequest{Quantity: quantity})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	var resp StockUpdateResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("itemId", itemID).
		Int("quantity", quantity).
		Msg("stock update pushed")

	return &resp, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	token, err := c.tokens.Token(req.Context())
	if err != nil {
		return err
	}
	if token == "" {
		return ErrNotLinked
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode POS response: %w", err)
	}
	return nil
}

// nextOffset extracts the offset query parameter from a paging URL.
// Returns -1 when there is no next page.
func nextOffset(next string) int {
	if next == "" {
		return -1
	}
	u, err := url.Parse(next)
	if err != nil {
		return -1
	}
	offset, err := strconv.Atoi(u.Query().Get("offset"))
	if err != nil {
		return -1
	}
	return offset
}
