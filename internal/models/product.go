package models

import (
	"encoding/json"
	"time"
)

// Product is one catalog item being scraped. Created empty by a fetch
// operation, populated incrementally, serialized once per run.
type Product struct {
	ProductID    string           `json:"product_id"`
	Name         string           `json:"name"`
	Category     string           `json:"category"`
	Brand        string           `json:"brand"`
	URL          string           `json:"url"`
	ImageURL     string           `json:"image_url"`
	Rating       *float64         `json:"rating"`
	RatingsCount *int             `json:"ratings_count"`
	PriceInfo    *PriceInfo       `json:"price_info"`
	Reviews      []Review         `json:"reviews"`
	Highlights   json.RawMessage  `json:"highlights"` // opaque pass-through
	Features     []map[string]any `json:"features"`   // opaque pass-through
	ScrapedAt    string           `json:"scraped_at"`
}

// NewProduct creates an empty product shell for the given identifier.
func NewProduct(productID, name string) *Product {
	if name == "" {
		name = "Product " + productID
	}
	return &Product{
		ProductID: productID,
		Name:      name,
		Category:  "Unknown",
		ScrapedAt: time.Now().Format(time.RFC3339),
	}
}

// AddReview appends a review to the product.
func (p *Product) AddReview(r Review) {
	p.Reviews = append(p.Reviews, r)
}

// AverageRating computes the mean over reviews with a known rating.
// Falls back to the catalog rating when no reviews carry one.
func (p *Product) AverageRating() *float64 {
	var sum, n float64
	for _, r := range p.Reviews {
		if r.Rating > 0 {
			sum += float64(r.Rating)
			n++
		}
	}
	if n == 0 {
		return p.Rating
	}
	avg := sum / n
	return &avg
}

// ProductRef is a lightweight search/discovery hit used as batch input.
type ProductRef struct {
	ProductID    string   `json:"product_id"`
	Name         string   `json:"name"`
	Category     string   `json:"category,omitempty"`
	Brand        string   `json:"brand,omitempty"`
	URL          string   `json:"url,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	RatingsCount *int     `json:"ratings_count,omitempty"`
	Badges       []string `json:"badges,omitempty"`
}
