package booking

import (
	"errors"
	"fmt"
)

// Sentinel errors of the booking engine.  Handlers translate them into HTTP
// status codes; wrapped errors keep the detail in the message.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrCancellationWindow = errors.New("cancellation window closed")
	// ErrStalePayment marks a payment event that no longer describes the
	// booking, such as a failure for an attempt that was superseded.
	ErrStalePayment = errors.New("stale payment event")
)

// CapacityError reports how many spots were left when a request for more
// guests was refused.
type CapacityError struct {
	AvailableSpots int
	Requested      int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity exceeded: %d spots available, %d requested", e.AvailableSpots, e.Requested)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
