package catalog

// Location is a restaurant location. Its open time and timezone drive the
// daily reset schedule.
type Location struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	TZ         string `json:"tz"`
	OpenHour   int    `json:"openHour"`
	OpenMinute int    `json:"openMinute"`
}

// Item is a tracked inventory item. POSItemID links it to the vendor
// catalog; local rows are the source of truth.
type Item struct {
	ID         int64   `json:"id"`
	POSItemID  *string `json:"posItemId,omitempty"`
	Name       string  `json:"name"`
	SKU        *string `json:"sku,omitempty"`
	UnitType   string  `json:"unitType"`
	LocationID int64   `json:"locationId"`
}

// SyncResult summarizes a catalog sync run.
type SyncResult struct {
	LocationID int64 `json:"locationId"`
	Fetched    int   `json:"fetched"`
	Created    int   `json:"created"`
	Updated    int   `json:"updated"`
}
