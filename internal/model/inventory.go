package model

import "time"

// InventoryRecord is the optional capacity row of a tour on one date.
//
// Fields:
//
//	AvailableSpots – countdown of free spots; nil means derive from
//	                 MaxCapacity or the configured default.
//	MaxCapacity    – hard cap; when set the row is maintained by the
//	                 booking engine.
//	IsAvailable    – false closes the date for sale.
type InventoryRecord struct {
	ID             uint64    `json:"-"`
	TourID         string    `json:"tour_id"`
	TourDate       Date      `json:"tour_date"`
	AvailableSpots *int      `json:"available_spots"`
	MaxCapacity    *int      `json:"max_capacity"`
	IsAvailable    bool      `json:"is_available"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Availability is the answer of the availability resolver.
type Availability struct {
	TourID         string `json:"tour_id"`
	TourDate       Date   `json:"tour_date"`
	AvailableSpots int    `json:"available_spots"`
	CanAccommodate bool   `json:"can_accommodate"`
}
