package model

import "time"

// Roles carried in the access token's "role" claim.
const (
	RoleCustomer = "CUSTOMER"
	RoleMerchant = "MERCHANT"
	RoleAdmin    = "ADMIN"
	// RoleGuest is carried by the booking-scoped token handed to a guest
	// at checkout; its subject is the booking id.
	RoleGuest = "GUEST"
)

// User represents an account holder of the marketplace.  PasswordHash is
// never serialized.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Notification is an in-app inbox entry produced by the notification
// worker from a booking event.
type Notification struct {
	ID        string     `json:"id"`
	EventID   string     `json:"-"`
	UserID    *string    `json:"user_id,omitempty"`
	BookingID string     `json:"booking_id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
