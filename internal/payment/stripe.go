// Package payment is the Stripe integration: webhook verification,
// Checkout sessions, capture checks and refunds.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/iliyamo/tour-booking/internal/booking"
	"github.com/iliyamo/tour-booking/internal/model"
)

// ErrSignature is returned for webhook payloads that fail verification.
var ErrSignature = errors.New("invalid webhook signature")

// Stripe event types the listener understands.
const (
	eventCheckoutCompleted      = "checkout.session.completed"
	eventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	eventCheckoutAsyncFailed    = "checkout.session.async_payment_failed"
	eventPaymentIntentFailed    = "payment_intent.payment_failed"
)

// Config holds the Stripe settings.
type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	// SiteURL is where Checkout sends the customer back.
	SiteURL string
}

// Stripe implements booking.PaymentGateway on the Stripe API.
type Stripe struct {
	api           *client.API
	webhookSecret string
	currency      string
	siteURL       string
	log           *slog.Logger
}

// New returns a Stripe client, or nil when no secret key is configured.
func New(cfg Config, log *slog.Logger) *Stripe {
	if cfg.SecretKey == "" {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "usd"
	}
	return &Stripe{
		api:           client.New(cfg.SecretKey, nil),
		webhookSecret: cfg.WebhookSecret,
		currency:      currency,
		siteURL:       strings.TrimRight(cfg.SiteURL, "/"),
		log:           log.With(slog.String("component", "stripe")),
	}
}

// ParseWebhook verifies a webhook delivery and translates it.  ok is false
// for verified events the booking engine does not act on.
func ParseWebhook(payload []byte, sigHeader, secret string) (ev booking.PaymentEvent, ok bool, err error) {
	if secret == "" {
		return booking.PaymentEvent{}, false, fmt.Errorf("%w: webhook secret not configured", ErrSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return booking.PaymentEvent{}, false, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return translate(event)
}

// ParseWebhook verifies with the configured webhook secret.
func (s *Stripe) ParseWebhook(payload []byte, sigHeader string) (booking.PaymentEvent, bool, error) {
	return ParseWebhook(payload, sigHeader, s.webhookSecret)
}

func translate(event stripe.Event) (booking.PaymentEvent, bool, error) {
	out := booking.PaymentEvent{ID: event.ID}
	switch string(event.Type) {
	case eventCheckoutCompleted, eventCheckoutAsyncSucceeded, eventCheckoutAsyncFailed:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return out, false, fmt.Errorf("decode checkout session: %w", err)
		}
		out.BookingID = cs.ClientReferenceID
		if out.BookingID == "" {
			out.BookingID = cs.Metadata["booking_id"]
		}
		if cs.PaymentIntent != nil {
			out.PaymentRef = cs.PaymentIntent.ID
		}
		out.AmountCents = cs.AmountTotal
		switch string(event.Type) {
		case eventCheckoutCompleted:
			// Delayed payment methods complete the session unpaid and
			// follow up with an async event.
			if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
				return out, false, nil
			}
			out.Kind = booking.PaymentSucceeded
		case eventCheckoutAsyncSucceeded:
			out.Kind = booking.AsyncPaymentSucceeded
		default:
			out.Kind = booking.AsyncPaymentFailed
		}
		return out, true, nil
	case eventPaymentIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return out, false, fmt.Errorf("decode payment intent: %w", err)
		}
		out.Kind = booking.PaymentFailed
		out.BookingID = pi.Metadata["booking_id"]
		out.PaymentRef = pi.ID
		out.AmountCents = pi.Amount
		if pi.LastPaymentError != nil {
			out.Reason = pi.LastPaymentError.Msg
		}
		return out, true, nil
	default:
		return out, false, nil
	}
}

// Checkout is a hosted payment page for one booking.
type Checkout struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CreateCheckout opens a Stripe Checkout session charging the booking's
// final price.  The booking id travels as client_reference_id and as
// metadata on both the session and the payment intent.
func (s *Stripe) CreateCheckout(ctx context.Context, b model.Booking, tourTitle string) (Checkout, error) {
	name := tourTitle
	if name == "" {
		name = "Tour booking"
	}
	name = fmt.Sprintf("%s (%s, %d guests)", name, b.TourDate, b.NumberOfGuests)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(b.ID),
		SuccessURL:        stripe.String(s.siteURL + "/bookings/" + b.ID + "?checkout=success"),
		CancelURL:         stripe.String(s.siteURL + "/bookings/" + b.ID + "?checkout=cancelled"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.currency),
				UnitAmount: stripe.Int64(b.FinalPriceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"booking_id": b.ID},
		},
		ExpiresAt: stripe.Int64(time.Now().Add(time.Hour).Unix()),
	}
	if b.ContactEmail != "" {
		params.CustomerEmail = stripe.String(b.ContactEmail)
	}
	params.Context = ctx
	params.AddMetadata("booking_id", b.ID)
	params.SetIdempotencyKey("checkout-" + b.ID + "-" + b.UpdatedAt.UTC().Format("20060102150405"))

	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("create checkout session: %w", err)
	}
	s.log.InfoContext(ctx, "checkout session created", slog.String("booking_id", b.ID), slog.String("session_id", cs.ID))
	return Checkout{SessionID: cs.ID, URL: cs.URL}, nil
}

// VerifyCaptured reports whether the payment intent paymentRef succeeded
// with at least amountCents received.
func (s *Stripe) VerifyCaptured(ctx context.Context, paymentRef string, amountCents int64) (bool, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(paymentRef, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == 404 {
			return false, nil
		}
		return false, fmt.Errorf("get payment intent: %w", err)
	}
	return pi.Status == stripe.PaymentIntentStatusSucceeded && pi.AmountReceived >= amountCents, nil
}

// Refund returns amountCents of paymentRef to the customer.  The
// idempotency key makes a retried refund of the same intent a no-op.
func (s *Stripe) Refund(ctx context.Context, paymentRef string, amountCents int64) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentRef),
		Amount:        stripe.Int64(amountCents),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + paymentRef)
	r, err := s.api.Refunds.New(params)
	if err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	s.log.InfoContext(ctx, "refund created", slog.String("payment_ref", paymentRef),
		slog.String("refund_id", r.ID), slog.Int64("amount_cents", amountCents))
	return nil
}

var _ booking.PaymentGateway = (*Stripe)(nil)
