package model

import "time"

// PriceType decides how a tour's base price scales with party size.
type PriceType string

const (
	PricePerPerson PriceType = "per_person"
	PricePerGroup  PriceType = "per_group"
)

// Valid reports whether p is a known price type.
func (p PriceType) Valid() bool {
	return p == PricePerPerson || p == PricePerGroup
}

// Tour is a sellable product owned by a merchant.  Prices are in cents.
type Tour struct {
	ID             string    `json:"id"`
	MerchantID     string    `json:"merchant_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Location       string    `json:"location,omitempty"`
	BasePriceCents int64     `json:"base_price_cents"`
	PriceType      PriceType `json:"price_type"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
