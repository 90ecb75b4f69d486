package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/iliyamo/tour-booking/internal/booking"
)

const whsec = "whsec_test"

func sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventJSON(id, typ, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2023-10-16","type":%q,"data":{"object":%s}}`, id, typ, object))
}

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    booking.PaymentEvent
		ok      bool
	}{
		{
			name: "paid checkout",
			payload: eventJSON("evt_1", "checkout.session.completed",
				`{"id":"cs_1","object":"checkout.session","client_reference_id":"b-1","payment_status":"paid","payment_intent":"pi_1","amount_total":15000}`),
			want: booking.PaymentEvent{ID: "evt_1", Kind: booking.PaymentSucceeded, BookingID: "b-1", PaymentRef: "pi_1", AmountCents: 15000},
			ok:   true,
		},
		{
			name: "unpaid checkout waits for async event",
			payload: eventJSON("evt_2", "checkout.session.completed",
				`{"id":"cs_2","object":"checkout.session","client_reference_id":"b-2","payment_status":"unpaid"}`),
			ok: false,
		},
		{
			name: "async success via metadata",
			payload: eventJSON("evt_3", "checkout.session.async_payment_succeeded",
				`{"id":"cs_3","object":"checkout.session","metadata":{"booking_id":"b-3"},"payment_intent":"pi_3","amount_total":500}`),
			want: booking.PaymentEvent{ID: "evt_3", Kind: booking.AsyncPaymentSucceeded, BookingID: "b-3", PaymentRef: "pi_3", AmountCents: 500},
			ok:   true,
		},
		{
			name: "async failure",
			payload: eventJSON("evt_4", "checkout.session.async_payment_failed",
				`{"id":"cs_4","object":"checkout.session","client_reference_id":"b-4"}`),
			want: booking.PaymentEvent{ID: "evt_4", Kind: booking.AsyncPaymentFailed, BookingID: "b-4"},
			ok:   true,
		},
		{
			name: "intent failure",
			payload: eventJSON("evt_5", "payment_intent.payment_failed",
				`{"id":"pi_5","object":"payment_intent","amount":900,"metadata":{"booking_id":"b-5"},"last_payment_error":{"message":"card declined"}}`),
			want: booking.PaymentEvent{ID: "evt_5", Kind: booking.PaymentFailed, BookingID: "b-5", PaymentRef: "pi_5", AmountCents: 900, Reason: "card declined"},
			ok:   true,
		},
		{
			name:    "unrelated event",
			payload: eventJSON("evt_6", "customer.created", `{"id":"cus_1","object":"customer"}`),
			ok:      false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParseWebhook(tt.payload, sign(tt.payload, whsec, time.Now()), whsec)
			if err != nil {
				t.Fatalf("ParseWebhook: %v", err)
			}
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("event = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseWebhookRejectsBadSignatures(t *testing.T) {
	payload := eventJSON("evt_1", "checkout.session.completed", `{"id":"cs_1","object":"checkout.session"}`)
	cases := map[string]struct {
		header string
		secret string
	}{
		"wrong secret": {sign(payload, "whsec_other", time.Now()), whsec},
		"stale":        {sign(payload, whsec, time.Now().Add(-time.Hour)), whsec},
		"missing":      {"", whsec},
		"no secret":    {sign(payload, whsec, time.Now()), ""},
	}
	for name, tc := range cases {
		if _, _, err := ParseWebhook(payload, tc.header, tc.secret); !errors.Is(err, ErrSignature) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestNewWithoutKeyIsNil(t *testing.T) {
	if s := New(Config{}, nil); s != nil {
		t.Fatal("expected nil client without a secret key")
	}
}
