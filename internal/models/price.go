package models

// StoreAvailability carries the store-specific shelf and warranty details
// returned alongside pricing.
type StoreAvailability struct {
	StoreShelfLocation string `json:"store_shelf_location"`
	UrgentLowStock     bool   `json:"urgent_low_stock"`
	Warranty           string `json:"warranty"`
}

// PriceInfo is one immutable price/inventory snapshot for a product.
// Repeated fetches over time are distinct historical records, not updates.
type PriceInfo struct {
	ProductID         string            `json:"product_id"`
	CurrentPrice      *float64          `json:"current_price"`
	OriginalPrice     *float64          `json:"original_price"` // set only when discounted
	SalePrice         *float64          `json:"sale_price"`
	Currency          string            `json:"currency"`
	InStock           bool              `json:"in_stock"`
	InventoryCount    *int              `json:"inventory_count"`
	StoreAvailability StoreAvailability `json:"store_availability"`
	ScrapedAt         string            `json:"scraped_at"`
}
