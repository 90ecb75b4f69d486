// Package booking is the booking engine: availability resolution, the
// booking ledger and its state machine, the inventory counter and the
// payment reconciliation listener.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/pricing"
)

// ActorKind says on whose behalf a ledger operation runs.
type ActorKind int

const (
	ActorCustomer ActorKind = iota + 1
	ActorMerchant
	ActorAdmin
	// ActorSystem is the payment listener and other trusted internals.
	ActorSystem
	// ActorGuest holds a booking-scoped token; its ID is the booking id.
	ActorGuest
)

// Actor identifies the caller of a ledger operation.
type Actor struct {
	Kind ActorKind
	ID   string
}

// ActorFromRole maps a token role claim onto an actor.
func ActorFromRole(role, userID string) Actor {
	switch role {
	case model.RoleAdmin:
		return Actor{Kind: ActorAdmin, ID: userID}
	case model.RoleMerchant:
		return Actor{Kind: ActorMerchant, ID: userID}
	case model.RoleGuest:
		return Actor{Kind: ActorGuest, ID: userID}
	default:
		return Actor{Kind: ActorCustomer, ID: userID}
	}
}

// Owns reports whether a made the booking b.  Merchants own the bookings
// they placed as travellers, not the ones on their tours.
func (a Actor) Owns(b model.Booking) bool {
	switch a.Kind {
	case ActorGuest:
		return a.ID != "" && b.UserID == nil && b.ID == a.ID
	case ActorCustomer, ActorMerchant:
		return b.OwnedBy(a.ID)
	}
	return false
}

// Options tune a Ledger.  Zero values fall back to sensible defaults.
type Options struct {
	DefaultCapacity    int
	CancellationCutoff time.Duration
	// Payments is optional.  Without it bookings cannot carry a payment
	// reference at creation and cancellations are never refunded.
	Payments PaymentGateway
	Logger   *slog.Logger
}

// Ledger owns the Booking lifecycle.
type Ledger struct {
	store    Store
	resolver *Resolver
	counter  *Counter
	notifier Notifier
	payments PaymentGateway
	log      *slog.Logger

	defaultCapacity int
	cutoff          time.Duration

	now   func() time.Time
	newID func() string
}

// NewLedger wires a ledger onto store.  A nil notifier discards
// notifications.
func NewLedger(store Store, notifier Notifier, opts Options) *Ledger {
	if opts.DefaultCapacity < 1 {
		opts.DefaultCapacity = 50
	}
	if opts.CancellationCutoff <= 0 {
		opts.CancellationCutoff = 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Ledger{
		store:           store,
		resolver:        NewResolver(store, opts.DefaultCapacity),
		counter:         NewCounter(opts.Logger),
		notifier:        notifier,
		payments:        opts.Payments,
		log:             opts.Logger,
		defaultCapacity: opts.DefaultCapacity,
		cutoff:          opts.CancellationCutoff,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

// Resolver returns the availability resolver sharing the ledger's store and
// default capacity.
func (l *Ledger) Resolver() *Resolver { return l.resolver }

// CreateInput is a booking request.  UserID is empty for guest checkouts,
// which must then carry a contact email.
type CreateInput struct {
	TourID          string
	TourDate        model.Date
	NumberOfGuests  int
	DiscountCents   int64
	FinalPriceCents *int64
	UserID          string
	ContactName     string
	ContactEmail    string
	ContactPhone    string
	SpecialRequests string
	// PaymentRef, when set, names a payment already captured by the
	// provider; the booking is then created confirmed and paid.
	PaymentRef string
}

func (in CreateInput) validate(today model.Date) error {
	var problems []string
	if strings.TrimSpace(in.TourID) == "" {
		problems = append(problems, "tour_id is required")
	}
	switch {
	case in.TourDate.IsZero():
		problems = append(problems, "tour_date is required")
	case in.TourDate.Before(today):
		problems = append(problems, "tour_date is in the past")
	}
	if in.NumberOfGuests < 1 {
		problems = append(problems, "number_of_guests must be at least 1")
	}
	if in.DiscountCents < 0 {
		problems = append(problems, "discount must not be negative")
	}
	if in.FinalPriceCents == nil {
		problems = append(problems, "final_price is required")
	} else if *in.FinalPriceCents < 0 {
		problems = append(problems, "final_price must not be negative")
	}
	if in.UserID == "" && strings.TrimSpace(in.ContactEmail) == "" {
		problems = append(problems, "contact_email is required for guest bookings")
	}
	if len(problems) > 0 {
		return validationf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// Create admits a booking if and only if the tour date has room for it.
// The capacity check, the insert and the counter decrement commit in one
// transaction holding the inventory row lock, so concurrent creates for the
// same tour date are serialized and can never oversell.
func (l *Ledger) Create(ctx context.Context, in CreateInput) (model.Booking, error) {
	if err := in.validate(model.NewDate(l.now())); err != nil {
		return model.Booking{}, err
	}
	paid := false
	if in.PaymentRef != "" {
		if l.payments == nil {
			return model.Booking{}, validationf("payment references are not accepted")
		}
		ok, err := l.payments.VerifyCaptured(ctx, in.PaymentRef, *in.FinalPriceCents)
		if err != nil {
			return model.Booking{}, fmt.Errorf("verify payment: %w", err)
		}
		if !ok {
			return model.Booking{}, validationf("payment %s is not captured for this amount", in.PaymentRef)
		}
		paid = true
	}

	var (
		b     model.Booking
		title string
	)
	err := l.store.InTx(ctx, func(tx Tx) error {
		tour, err := tx.Tour(ctx, in.TourID)
		if err != nil {
			return err
		}
		if !tour.IsActive {
			return validationf("tour is not open for booking")
		}
		q, err := pricing.Calculate(tour.BasePriceCents, tour.PriceType, in.NumberOfGuests, in.DiscountCents)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if q.FinalPriceCents != *in.FinalPriceCents {
			return validationf("final_price %d does not match computed price %d", *in.FinalPriceCents, q.FinalPriceCents)
		}

		inv, err := tx.LockInventory(ctx, tour.ID, in.TourDate, l.defaultCapacity)
		if err != nil {
			return fmt.Errorf("lock inventory: %w", err)
		}
		committed, err := tx.CommittedGuests(ctx, tour.ID, in.TourDate)
		if err != nil {
			return fmt.Errorf("sum committed guests: %w", err)
		}
		if spots := l.resolver.spots(inv, committed); spots < in.NumberOfGuests {
			return &CapacityError{AvailableSpots: spots, Requested: in.NumberOfGuests}
		}

		now := l.now().UTC()
		b = model.Booking{
			ID:              l.newID(),
			TourID:          tour.ID,
			MerchantID:      tour.MerchantID,
			TourDate:        in.TourDate,
			NumberOfGuests:  in.NumberOfGuests,
			UnitPriceCents:  q.UnitPriceCents,
			TotalPriceCents: q.TotalPriceCents,
			DiscountCents:   q.DiscountCents,
			FinalPriceCents: q.FinalPriceCents,
			Status:          model.StatusPending,
			PaymentStatus:   model.PaymentPending,
			ContactName:     strings.TrimSpace(in.ContactName),
			ContactEmail:    strings.TrimSpace(in.ContactEmail),
			ContactPhone:    strings.TrimSpace(in.ContactPhone),
			SpecialRequests: strings.TrimSpace(in.SpecialRequests),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if in.UserID != "" {
			uid := in.UserID
			b.UserID = &uid
		}
		if paid {
			ref := in.PaymentRef
			b.Status = model.StatusConfirmed
			b.PaymentStatus = model.PaymentPaid
			b.PaymentRef = &ref
		}
		if err := tx.InsertBooking(ctx, &b); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		l.counter.Decrement(ctx, tx, tour.ID, in.TourDate, in.NumberOfGuests)
		title = tour.Title
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}

	l.log.InfoContext(ctx, "booking created",
		slog.String("booking_id", b.ID), slog.String("tour_id", b.TourID),
		slog.String("tour_date", b.TourDate.String()), slog.Int("guests", b.NumberOfGuests),
		slog.String("status", string(b.Status)))
	nctx := context.WithoutCancel(ctx)
	l.notifier.NotifyCreated(nctx, b, title)
	if paid {
		l.notifier.NotifyConfirmed(nctx, b, title)
		l.notifier.NotifyPaymentCompleted(nctx, b, title)
	}
	return b, nil
}

// StatusChange is a requested transition of a booking.
type StatusChange struct {
	Status model.BookingStatus
	Actor  Actor
	Reason string
	// MarkPaid records a captured payment along with the transition.
	MarkPaid   bool
	PaymentRef string
	// EventID, when set, deduplicates provider events: a second change
	// carrying the same id is a no-op.
	EventID   string
	EventKind string
	// OnlyUnpaid restricts the change to a pending booking that is still
	// awaiting payment and whose stored payment reference, if any, equals
	// PaymentRef.  Anything else fails with ErrStalePayment.
	OnlyUnpaid bool
}

// UpdateStatus applies a transition of the booking state machine.
//
// Customers may only cancel their own bookings and only before the
// cancellation cutoff.  Only admins complete bookings.  Requesting the state
// the booking is already in is a no-op, which makes redelivered payment
// events harmless.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, ch StatusChange) (model.Booking, error) {
	if !ch.Status.Valid() {
		return model.Booking{}, validationf("unknown status %q", ch.Status)
	}
	if strings.TrimSpace(id) == "" {
		return model.Booking{}, validationf("booking id is required")
	}

	var (
		b          model.Booking
		title      string
		changed    bool
		markedPaid bool
		refundable bool
	)
	err := l.store.InTx(ctx, func(tx Tx) error {
		if ch.EventID != "" {
			first, err := tx.RecordPaymentEvent(ctx, ch.EventID, ch.EventKind, id)
			if err != nil {
				return fmt.Errorf("record payment event: %w", err)
			}
			if !first {
				cur, err := tx.Booking(ctx, id)
				b = cur
				return err
			}
		}

		cur, err := tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		b = cur
		if err := l.authorize(b, ch); err != nil {
			return err
		}
		if ch.OnlyUnpaid {
			if err := unpaid(b, ch.PaymentRef); err != nil {
				return err
			}
		}

		if b.Status == ch.Status {
			if ch.MarkPaid && b.PaymentStatus == model.PaymentPending {
				l.markPaid(&b, ch.PaymentRef)
				markedPaid = true
				return l.save(ctx, tx, &b, &title)
			}
			return nil
		}
		if !model.CanTransition(b.Status, ch.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, ch.Status)
		}
		if ch.Status == model.StatusCompleted && ch.Actor.Kind != ActorAdmin {
			return fmt.Errorf("%w: only admins complete bookings", ErrForbidden)
		}

		now := l.now().UTC()
		switch ch.Status {
		case model.StatusCancelled:
			refundable = l.beforeCutoff(b.TourDate)
			if ch.Actor.Owns(b) && !refundable {
				return fmt.Errorf("%w: cancellations close %s before the tour date", ErrCancellationWindow, l.cutoff)
			}
			b.CancelledAt = &now
			if reason := strings.TrimSpace(ch.Reason); reason != "" {
				b.CancellationReason = &reason
			}
			l.counter.Restore(ctx, tx, b.TourID, b.TourDate, b.NumberOfGuests)
		case model.StatusConfirmed:
			if ch.MarkPaid && b.PaymentStatus == model.PaymentPending {
				l.markPaid(&b, ch.PaymentRef)
				markedPaid = true
			}
		}
		b.Status = ch.Status
		changed = true
		return l.save(ctx, tx, &b, &title)
	})
	if err != nil {
		return model.Booking{}, err
	}
	if !changed && !markedPaid {
		return b, nil
	}

	l.log.InfoContext(ctx, "booking status updated",
		slog.String("booking_id", b.ID), slog.String("status", string(b.Status)),
		slog.String("payment_status", string(b.PaymentStatus)))
	nctx := context.WithoutCancel(ctx)
	switch {
	case changed && b.Status == model.StatusConfirmed:
		l.notifier.NotifyConfirmed(nctx, b, title)
	case changed && b.Status == model.StatusCancelled:
		var refund int64
		if refundable && b.PaymentStatus == model.PaymentPaid {
			if l.refund(nctx, &b) {
				refund = b.FinalPriceCents
			}
		}
		l.notifier.NotifyCancelled(nctx, b, title, refund)
	}
	if markedPaid {
		l.notifier.NotifyPaymentCompleted(nctx, b, title)
	}
	return b, nil
}

func (l *Ledger) authorize(b model.Booking, ch StatusChange) error {
	switch ch.Actor.Kind {
	case ActorAdmin, ActorSystem:
		return nil
	case ActorCustomer, ActorMerchant, ActorGuest:
		if !ch.Actor.Owns(b) {
			if ch.Actor.Kind == ActorMerchant {
				return fmt.Errorf("%w: not allowed to change booking status", ErrForbidden)
			}
			return fmt.Errorf("%w: booking belongs to another user", ErrForbidden)
		}
		if ch.Status != model.StatusCancelled {
			return fmt.Errorf("%w: customers may only cancel", ErrForbidden)
		}
		return nil
	default:
		return fmt.Errorf("%w: not allowed to change booking status", ErrForbidden)
	}
}

func unpaid(b model.Booking, ref string) error {
	if b.Status != model.StatusPending || b.PaymentStatus != model.PaymentPending {
		return fmt.Errorf("%w: booking is %s/%s", ErrStalePayment, b.Status, b.PaymentStatus)
	}
	if ref != "" && b.PaymentRef != nil && *b.PaymentRef != ref {
		return fmt.Errorf("%w: payment %s is not the booking's payment %s", ErrStalePayment, ref, *b.PaymentRef)
	}
	return nil
}

func (l *Ledger) markPaid(b *model.Booking, ref string) {
	b.PaymentStatus = model.PaymentPaid
	if ref != "" {
		b.PaymentRef = &ref
	}
}

func (l *Ledger) save(ctx context.Context, tx Tx, b *model.Booking, title *string) error {
	b.UpdatedAt = l.now().UTC()
	if err := tx.UpdateBooking(ctx, *b); err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if tour, err := tx.Tour(ctx, b.TourID); err == nil {
		*title = tour.Title
	}
	return nil
}

// beforeCutoff reports whether there is more than the cancellation cutoff
// left until the start of the tour date.
func (l *Ledger) beforeCutoff(d model.Date) bool {
	return d.Start().Sub(l.now()) > l.cutoff
}

// refund asks the provider to return the final price of a cancelled paid
// booking and records the refund.  Failures are logged; the cancellation
// stands either way.
func (l *Ledger) refund(ctx context.Context, b *model.Booking) bool {
	if l.payments == nil || b.PaymentRef == nil {
		return false
	}
	if err := l.payments.Refund(ctx, *b.PaymentRef, b.FinalPriceCents); err != nil {
		l.log.ErrorContext(ctx, "refund failed", slog.String("booking_id", b.ID), slog.Any("err", err))
		return false
	}
	err := l.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.LockBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		cur.PaymentStatus = model.PaymentRefunded
		cur.UpdatedAt = l.now().UTC()
		if err := tx.UpdateBooking(ctx, cur); err != nil {
			return err
		}
		*b = cur
		return nil
	})
	if err != nil {
		l.log.ErrorContext(ctx, "record refund failed", slog.String("booking_id", b.ID), slog.Any("err", err))
	}
	return true
}

// Get returns a booking the actor may see: its owner, the tour's merchant
// or an admin.  A guest token sees only the booking it was issued for.
func (l *Ledger) Get(ctx context.Context, id string, actor Actor) (model.Booking, error) {
	b, err := l.store.Booking(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	switch actor.Kind {
	case ActorAdmin, ActorSystem:
		return b, nil
	case ActorMerchant:
		if b.MerchantID == actor.ID || actor.Owns(b) {
			return b, nil
		}
	case ActorCustomer, ActorGuest:
		if actor.Owns(b) {
			return b, nil
		}
	}
	return model.Booking{}, fmt.Errorf("%w: booking belongs to another user", ErrForbidden)
}

// ListForUser returns the bookings of one customer, newest first.
func (l *Ledger) ListForUser(ctx context.Context, userID string) ([]model.Booking, error) {
	if userID == "" {
		return nil, validationf("user id is required")
	}
	return l.store.BookingsByUser(ctx, userID)
}

// ListForMerchant returns the bookings of every tour the merchant owns.
func (l *Ledger) ListForMerchant(ctx context.Context, merchantID string) ([]model.Booking, error) {
	if merchantID == "" {
		return nil, validationf("merchant id is required")
	}
	return l.store.BookingsByMerchant(ctx, merchantID)
}

// IsClientError reports whether err is the caller's fault rather than a
// dependency failure.
func IsClientError(err error) bool {
	for _, target := range []error{ErrValidation, ErrNotFound, ErrCapacityExceeded, ErrForbidden, ErrInvalidTransition, ErrCancellationWindow} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
