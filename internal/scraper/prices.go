package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/alejandrocano/ctscrape/internal/config"
	"github.com/alejandrocano/ctscrape/internal/models"
)

// PriceScraper fetches price and inventory snapshots from the retailer's
// price-availability API.
type PriceScraper struct {
	client *Client
	cfg    *config.Config
	logger *slog.Logger
}

// NewPriceScraper creates a PriceScraper sharing the given client.
func NewPriceScraper(client *Client, cfg *config.Config, logger *slog.Logger) *PriceScraper {
	return &PriceScraper{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "price_scraper"),
	}
}

// FlexPrice decodes a price that the upstream represents either as a bare
// number or as an object with a "value" field. Null and malformed values
// decode to a nil Value, never an error.
type FlexPrice struct {
	Value *float64
}

func (p *FlexPrice) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		p.Value = nil
		return nil
	}
	if data[0] == '{' {
		var obj struct {
			Value *float64 `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err == nil {
			p.Value = obj.Value
		}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		p.Value = &n
	}
	return nil
}

// priceSKU is the wire shape of one SKU in the price response. Every
// sub-field may be absent.
type priceSKU struct {
	CurrentPrice       FlexPrice `json:"currentPrice"`
	OriginalPrice      *float64  `json:"originalPrice"`
	IsOnSale           bool      `json:"isOnSale"`
	Sellable           bool      `json:"sellable"`
	StoreShelfLocation string    `json:"storeShelfLocation"`
	IsUrgentLowStock   bool      `json:"isUrgentLowStock"`
	WarrantyMessage    string    `json:"warrantyMessage"`
	Fulfillment        struct {
		Availability struct {
			Quantity *int `json:"quantity"`
		} `json:"availability"`
	} `json:"fulfillment"`
}

type priceResponse struct {
	Skus []priceSKU `json:"skus"`
}

// FetchPrice fetches one price/inventory snapshot for a product. Returns
// (nil, nil) when the API has no data for the product; a transport or
// decode failure is an error for the caller to log and move past.
func (s *PriceScraper) FetchPrice(ctx context.Context, productID, storeID string) (*models.PriceInfo, error) {
	if storeID == "" {
		storeID = s.cfg.API.StoreID
	}

	// The price API wants the numeric code without the 'P' suffix in the
	// body, and with a lowercase 'p' in the query.
	code := cleanProductCode(productID)

	params := url.Values{
		"lang":    {"en_CA"},
		"storeId": {storeID},
		"cache":   {"true"},
		"pCode":   {code + "p"},
	}
	body := map[string]any{
		"skus": []map[string]string{{"code": code}},
	}

	s.logger.Info("fetching price", "product_id", productID, "store_id", storeID)

	var resp priceResponse
	if err := s.client.PostJSON(ctx, s.cfg.API.PriceURL, params, body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Skus) == 0 {
		s.logger.Warn("no price data", "product_id", productID)
		return nil, nil
	}

	sku := resp.Skus[0]

	info := &models.PriceInfo{
		ProductID:      productID,
		CurrentPrice:   sku.CurrentPrice.Value,
		OriginalPrice:  sku.OriginalPrice,
		Currency:       "CAD",
		InStock:        sku.Sellable,
		InventoryCount: sku.Fulfillment.Availability.Quantity,
		StoreAvailability: models.StoreAvailability{
			StoreShelfLocation: defaultString(sku.StoreShelfLocation, "N/A"),
			UrgentLowStock:     sku.IsUrgentLowStock,
			Warranty:           defaultString(sku.WarrantyMessage, "N/A"),
		},
		ScrapedAt: time.Now().Format(time.RFC3339),
	}

	if sku.IsOnSale && info.OriginalPrice != nil && info.CurrentPrice != nil {
		sale := *info.CurrentPrice
		info.SalePrice = &sale
	}

	return info, nil
}

// cleanProductCode strips the P/p suffix from a vendor product identifier.
func cleanProductCode(productID string) string {
	return strings.NewReplacer("P", "", "p", "").Replace(productID)
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
