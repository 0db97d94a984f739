package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// chargeRefundedEvent matches what Stripe sends at API 2023-10-16: the charge
// carries amount_refunded but no embedded refunds list.
const chargeRefundedEvent = `{
	"id": "evt_refund_1",
	"object": "event",
	"api_version": "2023-10-16",
	"type": "charge.refunded",
	"data": {
		"object": {
			"id": "ch_1",
			"object": "charge",
			"amount": 2500000,
			"amount_refunded": 500000,
			"currency": "usd",
			"payment_intent": "pi_1",
			"refunded": false
		}
	}
}`

func newTestStripeProvider(t *testing.T, handler http.HandlerFunc) *StripeProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	api := &client.API{}
	api.Init("sk_test_123", &stripe.Backends{API: backend, Uploads: backend})
	return &StripeProvider{api: api, webhookSecret: "whsec_test"}
}

func TestDecodeChargeRefundedWithoutEmbeddedRefunds(t *testing.T) {
	var event stripe.Event
	if err := json.Unmarshal([]byte(chargeRefundedEvent), &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}

	out, err := decodeStripeEvent(event)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Type != PaymentEventRefunded || out.PaymentIntentID != "pi_1" || out.AmountRefundedMinor != 500000 {
		t.Fatalf("decoded event: %+v", out)
	}
	if len(out.Refunds) != 0 {
		t.Fatalf("refunds from payload: %+v", out.Refunds)
	}
}

func TestParseWebhookListsRefundsForChargeRefunded(t *testing.T) {
	var listed string
	p := newTestStripeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/refunds" {
			http.NotFound(w, r)
			return
		}
		listed = r.URL.Query().Get("payment_intent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"url": "/v1/refunds",
			"has_more": false,
			"data": [
				{"id": "re_ok", "object": "refund", "amount": 300000, "status": "succeeded", "payment_intent": "pi_1"},
				{"id": "re_wait", "object": "refund", "amount": 200000, "status": "pending", "payment_intent": "pi_1"},
				{"id": "re_bad", "object": "refund", "amount": 100000, "status": "failed", "payment_intent": "pi_1"}
			]
		}`))
	})

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(chargeRefundedEvent),
		Secret:  p.webhookSecret,
	})
	event, err := p.ParseWebhook(context.Background(), signed.Payload, signed.Header)
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if listed != "pi_1" {
		t.Fatalf("listed refunds for %q", listed)
	}
	if len(event.Refunds) != 2 || event.Refunds[0].ID != "re_ok" || event.Refunds[1].ID != "re_wait" {
		t.Fatalf("refunds: %+v", event.Refunds)
	}
	if event.Refunds[0].AmountMinor != 300000 {
		t.Fatalf("refund amount: %d", event.Refunds[0].AmountMinor)
	}

	if _, err := p.ParseWebhook(context.Background(), signed.Payload, "t=1,v1=deadbeef"); !IsKind(err, KindUnauthorized) {
		t.Fatalf("bad signature: got %v", err)
	}
}

func TestParseWebhookSurfacesRefundListFailure(t *testing.T) {
	p := newTestStripeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"type": "api_error", "message": "boom"}}`))
	})

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(chargeRefundedEvent),
		Secret:  p.webhookSecret,
	})
	if _, err := p.ParseWebhook(context.Background(), signed.Payload, signed.Header); err == nil || IsKind(err, KindUnauthorized) {
		t.Fatalf("expected a listing error, got %v", err)
	}
}
