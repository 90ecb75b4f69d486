// Package pricing derives booking prices from a tour's base price.  All
// amounts are integer cents.
package pricing

import (
	"errors"
	"fmt"

	"github.com/iliyamo/tour-booking/internal/model"
)

// ErrInvalid marks every input rejected by Calculate.
var ErrInvalid = errors.New("invalid pricing input")

// Quote is the price breakdown of one booking.
type Quote struct {
	UnitPriceCents  int64 `json:"unit_price_cents"`
	TotalPriceCents int64 `json:"total_price_cents"`
	DiscountCents   int64 `json:"discount_cents"`
	FinalPriceCents int64 `json:"final_price_cents"`
}

// Calculate prices a party of guests.  A per-person tour multiplies the unit
// price by the party size, a per-group tour charges the unit price once.  The
// discount is subtracted from the total and the result is clamped at zero, so
// FinalPriceCents never exceeds TotalPriceCents.
func Calculate(unitPriceCents int64, priceType model.PriceType, guests int, discountCents int64) (Quote, error) {
	if guests < 1 {
		return Quote{}, fmt.Errorf("%w: guests must be at least 1, got %d", ErrInvalid, guests)
	}
	if unitPriceCents < 0 {
		return Quote{}, fmt.Errorf("%w: unit price must not be negative", ErrInvalid)
	}
	if discountCents < 0 {
		return Quote{}, fmt.Errorf("%w: discount must not be negative", ErrInvalid)
	}

	var total int64
	switch priceType {
	case model.PricePerPerson:
		total = unitPriceCents * int64(guests)
	case model.PricePerGroup:
		total = unitPriceCents
	default:
		return Quote{}, fmt.Errorf("%w: unknown price type %q", ErrInvalid, priceType)
	}

	applied := discountCents
	if applied > total {
		applied = total
	}
	return Quote{
		UnitPriceCents:  unitPriceCents,
		TotalPriceCents: total,
		DiscountCents:   applied,
		FinalPriceCents: total - applied,
	}, nil
}
