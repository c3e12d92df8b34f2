package pos

// Item is a POS inventory item.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SKU      string `json:"sku,omitempty"`
	UnitName string `json:"unitName,omitempty"`
}

// ItemsPage is one page of the merchant item listing.
type ItemsPage struct {
	Elements []Item `json:"elements"`
	Href     string `json:"href,omitempty"`
	Next     string `json:"next,omitempty"`
}

// Merchant describes the linked POS merchant.
type Merchant struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Order is a POS order summary.
type Order struct {
	ID          string `json:"id"`
	State       string `json:"state,omitempty"`
	Total       int64  `json:"total,omitempty"`
	CreatedTime int64  `json:"createdTime,omitempty"`
}

// OrdersPage is one page of the merchant order listing.
type OrdersPage struct {
	Elements []Order `json:"elements"`
	Href     string  `json:"href,omitempty"`
	Next     string  `json:"next,omitempty"`
}

// StockUpdateRequest sets the absolute stock quantity for an item.
type StockUpdateRequest struct {
	Quantity int `json:"quantity"`
}

// StockUpdateResponse is the vendor acknowledgement of a stock update.
type StockUpdateResponse struct {
	Status string `json:"status,omitempty"`
}

// TokenResponse is the OAuth token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	MerchantID   string `json:"merchant_id"`
}
