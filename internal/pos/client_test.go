package pos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitstock/pitstock/internal/config"
)

type staticTokens string

func (s staticTokens) Token(_ context.Context) (string, error) {
	return string(s), nil
}

func newTestClient(serverURL string) *Client {
	return NewClient(config.POSConfig{BaseURL: serverURL, Timeout: 5}, staticTokens("test-token"), zerolog.Nop())
}

func TestUpdateStock(t *testing.T) {
	var gotAuth, gotIdemKey string
	var gotBody StockUpdateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v3/merchants/M123/inventory/stock/POS-1", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotIdemKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(StockUpdateResponse{Status: "ok"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.UpdateStock(context.Background(), "M123", "POS-1", 55, "apply-7-2025-10-06-POS-1")
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "apply-7-2025-10-06-POS-1", gotIdemKey)
	assert.Equal(t, 55, gotBody.Quantity)
	assert.Equal(t, "ok", resp.Status)
}

func TestUpdateStockAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.UpdateStock(context.Background(), "M123", "POS-1", 10, "key")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.True(t, IsRetryable(err))
}

func TestListAllItemsFollowsPaging(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/merchants/M123/items", r.URL.Path)
		offset := r.URL.Query().Get("offset")

		switch offset {
		case "0":
			json.NewEncoder(w).Encode(ItemsPage{
				Elements: []Item{{ID: "A"}, {ID: "B"}},
				Next:     "/v3/merchants/M123/items?limit=100&offset=100",
			})
		default:
			json.NewEncoder(w).Encode(ItemsPage{Elements: []Item{{ID: "C"}}})
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	items, err := client.ListAllItems(context.Background(), "M123")
	require.NoError(t, err)

	require.Len(t, items, 3)
	assert.Equal(t, "A", items[0].ID)
	assert.Equal(t, "C", items[2].ID)
}

func TestClientNotLinked(t *testing.T) {
	client := NewClient(config.POSConfig{BaseURL: "http://unused"}, staticTokens(""), zerolog.Nop())

	_, err := client.GetMerchant(context.Background(), "M123")
	require.ErrorIs(t, err, ErrNotLinked)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusUnauthorized, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
		{http.StatusConflict, false},
	}
	for _, tt := range tests {
		err := &APIError{StatusCode: tt.status}
		assert.Equal(t, tt.want, IsRetryable(err), "status %d", tt.status)
	}

	assert.False(t, IsRetryable(ErrNotLinked))
	assert.False(t, IsRetryable(nil))
}
