package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/tour-booking/internal/mail"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/queue"
)

// Inbox stores in-app notifications, deduplicated by event id.
type Inbox interface {
	Insert(ctx context.Context, n *model.Notification) (bool, error)
}

// Worker consumes booking events.  Each event produces one inbox entry
// and one email to the booking contact.
type Worker struct {
	inbox Inbox
	mail  mail.Sender
	log   *slog.Logger
}

func NewWorker(inbox Inbox, sender mail.Sender, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{inbox: inbox, mail: sender, log: log.With(slog.String("component", "notify-worker"))}
}

// Delivery adapts Handle to queue.Handler.
func (w *Worker) Delivery(ctx context.Context, d amqp.Delivery) error {
	return w.Handle(ctx, d.RoutingKey, d.Body)
}

// Handle processes one encoded queue.BookingEvent.  Redelivered events are
// recognised by their event id and skipped.  Errors are returned so the
// broker can dead-letter the message.
func (w *Worker) Handle(ctx context.Context, key string, body []byte) error {
	var ev queue.BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("decode booking event: %w", err)
	}
	if ev.Type == "" {
		ev.Type = key
	}
	if ev.EventID == "" || ev.BookingID == "" {
		return fmt.Errorf("booking event without ids (key %s)", key)
	}
	subject, text, ok := compose(ev)
	if !ok {
		w.log.WarnContext(ctx, "unknown event type", slog.String("type", ev.Type))
		return nil
	}

	fresh, err := w.inbox.Insert(ctx, &model.Notification{
		EventID:   ev.EventID,
		UserID:    ev.UserID,
		BookingID: ev.BookingID,
		Kind:      ev.Type,
		Title:     subject,
		Message:   text,
	})
	if err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	if !fresh {
		w.log.InfoContext(ctx, "duplicate event skipped", slog.String("event_id", ev.EventID))
		return nil
	}
	if ev.ContactEmail == "" || w.mail == nil {
		return nil
	}
	msg := mail.Message{
		To:      ev.ContactEmail,
		Subject: subject,
		Text:    greeting(ev.ContactName) + "\n\n" + text,
		HTML:    "<p>" + html.EscapeString(greeting(ev.ContactName)) + "</p><p>" + html.EscapeString(text) + "</p>",
	}
	if err := w.mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("email %s: %w", ev.BookingID, err)
	}
	return nil
}

func greeting(name string) string {
	if name == "" {
		return "Hello,"
	}
	return "Hello " + name + ","
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// compose renders the subject and body for ev.  ok is false for event
// types the worker does not know.
func compose(ev queue.BookingEvent) (subject, text string, ok bool) {
	what := fmt.Sprintf("%s on %s for %d guest(s)", ev.TourTitle, ev.TourDate, ev.NumberOfGuests)
	switch ev.Type {
	case queue.KeyBookingCreated:
		return "Booking received",
			fmt.Sprintf("We received your booking for %s. Total due: %s.", what, formatCents(ev.FinalPriceCents)), true
	case queue.KeyBookingConfirmed:
		return "Booking confirmed", fmt.Sprintf("Your booking for %s is confirmed.", what), true
	case queue.KeyBookingCancelled:
		text := fmt.Sprintf("Your booking for %s was cancelled.", what)
		if ev.RefundCents > 0 {
			text += fmt.Sprintf(" A refund of %s is on its way.", formatCents(ev.RefundCents))
		}
		return "Booking cancelled", text, true
	case queue.KeyPaymentCompleted:
		return "Payment received",
			fmt.Sprintf("We received your payment of %s for %s.", formatCents(ev.FinalPriceCents), what), true
	}
	return "", "", false
}
