// Package notify turns ledger transitions into booking events and consumes
// them again to fill the in-app inbox and email the customer.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/queue"
)

// Publisher is the outbound side of the message broker.
type Publisher interface {
	PublishJSON(ctx context.Context, key, messageID string, v any) error
}

// publishTimeout bounds a single publish from the outbox.
const publishTimeout = 5 * time.Second

// Dispatcher publishes a queue.BookingEvent for every ledger transition.
// Notify calls only enqueue into a bounded outbox drained by Run, so a slow
// or unreachable broker never delays a booking.  A full outbox drops the
// event with a warning; publish failures are logged and dropped as well.
type Dispatcher struct {
	pub   Publisher
	log   *slog.Logger
	now   func() time.Time
	newID func() string

	mu     sync.RWMutex
	closed bool
	outbox chan queue.BookingEvent
}

// NewDispatcher returns a dispatcher over pub with room for size pending
// events.  A nil pub only logs.  Events are published once Run is started.
func NewDispatcher(pub Publisher, log *slog.Logger, size int) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if size < 1 {
		size = 1
	}
	return &Dispatcher{
		pub:    pub,
		log:    log.With(slog.String("component", "notify")),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		outbox: make(chan queue.BookingEvent, size),
	}
}

// Run publishes queued events until Close is called and the outbox is
// empty.
func (d *Dispatcher) Run(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for ev := range d.outbox {
		pctx, cancel := context.WithTimeout(base, publishTimeout)
		d.publish(pctx, ev)
		cancel()
	}
}

// Close stops accepting events.  Run returns after publishing what is
// already queued.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.outbox)
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, ev queue.BookingEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	attrs := []any{slog.String("type", ev.Type), slog.String("booking_id", ev.BookingID), slog.String("event_id", ev.EventID)}
	if d.closed {
		d.log.WarnContext(ctx, "dispatcher closed, booking event dropped", attrs...)
		return
	}
	select {
	case d.outbox <- ev:
	default:
		d.log.WarnContext(ctx, "notification outbox full, booking event dropped", attrs...)
	}
}

func (d *Dispatcher) event(key string, b model.Booking, title string) queue.BookingEvent {
	return queue.BookingEvent{
		EventID:         d.newID(),
		Type:            key,
		BookingID:       b.ID,
		UserID:          b.UserID,
		MerchantID:      b.MerchantID,
		TourID:          b.TourID,
		TourTitle:       title,
		TourDate:        b.TourDate,
		NumberOfGuests:  b.NumberOfGuests,
		FinalPriceCents: b.FinalPriceCents,
		Status:          b.Status,
		PaymentStatus:   b.PaymentStatus,
		ContactName:     b.ContactName,
		ContactEmail:    b.ContactEmail,
		OccurredAt:      d.now(),
	}
}

func (d *Dispatcher) publish(ctx context.Context, ev queue.BookingEvent) {
	attrs := []any{slog.String("type", ev.Type), slog.String("booking_id", ev.BookingID), slog.String("event_id", ev.EventID)}
	if d.pub == nil {
		d.log.InfoContext(ctx, "booking event (no broker)", attrs...)
		return
	}
	if err := d.pub.PublishJSON(ctx, ev.Type, ev.EventID, ev); err != nil {
		d.log.WarnContext(ctx, "publish booking event failed", append(attrs, slog.Any("err", err))...)
		return
	}
	d.log.DebugContext(ctx, "booking event published", attrs...)
}

func (d *Dispatcher) NotifyCreated(ctx context.Context, b model.Booking, title string) {
	d.enqueue(ctx, d.event(queue.KeyBookingCreated, b, title))
}

func (d *Dispatcher) NotifyConfirmed(ctx context.Context, b model.Booking, title string) {
	d.enqueue(ctx, d.event(queue.KeyBookingConfirmed, b, title))
}

func (d *Dispatcher) NotifyCancelled(ctx context.Context, b model.Booking, title string, refundCents int64) {
	ev := d.event(queue.KeyBookingCancelled, b, title)
	ev.RefundCents = refundCents
	d.enqueue(ctx, ev)
}

func (d *Dispatcher) NotifyPaymentCompleted(ctx context.Context, b model.Booking, title string) {
	d.enqueue(ctx, d.event(queue.KeyPaymentCompleted, b, title))
}
