package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is an inventory item as exported by the marketplace.
type Product struct {
	RegisteredAt   time.Time       `json:"registered_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Price          decimal.Decimal `json:"price"`
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	ImageURL       string          `json:"image_url,omitempty"`
	Brand          string          `json:"brand,omitempty"`
	BrandTier      string          `json:"brand_tier,omitempty"`
	Grade          string          `json:"grade,omitempty"`
	Status         string          `json:"status,omitempty"`
	ExtraImageURLs []string        `json:"extra_image_urls,omitempty"`
	DisplayIDs     []string        `json:"display_category_ids,omitempty"`
	Stock          int             `json:"stock"`
}

// ImageURLs returns the primary image followed by the extra images.
func (p Product) ImageURLs() []string {
	urls := make([]string, 0, len(p.ExtraImageURLs)+1)
	if p.ImageURL != "" {
		urls = append(urls, p.ImageURL)
	}
	for _, u := range p.ExtraImageURLs {
		if u != "" && u != p.ImageURL {
			urls = append(urls, u)
		}
	}
	return urls
}

// PlacedProduct is a product together with its current tier and age.
type PlacedProduct struct {
	Product   Product
	Tier      Tier
	DaysSince int
}
