package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type PaymentEventType string

const (
	PaymentEventSucceeded PaymentEventType = "payment_intent.succeeded"
	PaymentEventFailed    PaymentEventType = "payment_intent.payment_failed"
	PaymentEventRefunded  PaymentEventType = "charge.refunded"
)

type PaymentIntentRequest struct {
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
}

type ProviderRefund struct {
	ID          string
	AmountMinor int64
	Status      string
}

// PaymentEvent is a verified provider notification reduced to the fields
// the escrow workflow reads.
type PaymentEvent struct {
	ID                  string
	Type                PaymentEventType
	PaymentIntentID     string
	FailureMessage      string
	AmountRefundedMinor int64
	Refunds             []ProviderRefund
}

// PaymentProvider is the payments backend used by EscrowService.
type PaymentProvider interface {
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, id string) error
	CreateRefund(ctx context.Context, paymentIntentID string, amountMinor int64, idempotencyKey string) (*ProviderRefund, error)
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*PaymentEvent, error)
}

type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	if secretKey == "" {
		log.Printf("⚠️  WARNING: STRIPE_SECRET_KEY is empty!")
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{api: api, webhookSecret: webhookSecret}
}

func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return &PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (p *StripeProvider) CancelPaymentIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := p.api.PaymentIntents.Cancel(id, params); err != nil {
		return fmt.Errorf("stripe cancel payment intent %s: %w", id, err)
	}
	return nil
}

func (p *StripeProvider) CreateRefund(ctx context.Context, paymentIntentID string, amountMinor int64, idempotencyKey string) (*ProviderRefund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(amountMinor),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	r, err := p.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create refund: %w", err)
	}
	return &ProviderRefund{ID: r.ID, AmountMinor: r.Amount, Status: string(r.Status)}, nil
}

func (p *StripeProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*PaymentEvent, error) {
	if p.webhookSecret == "" {
		return nil, fmt.Errorf("webhook secret not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, Unauthorized("Invalid webhook signature")
	}
	out, err := decodeStripeEvent(event)
	if err != nil {
		return nil, err
	}
	// charge.refunded payloads stopped embedding refunds in API 2022-11-15.
	if out.Type == PaymentEventRefunded && len(out.Refunds) == 0 && out.PaymentIntentID != "" {
		if out.Refunds, err = p.listRefunds(ctx, out.PaymentIntentID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *StripeProvider) listRefunds(ctx context.Context, paymentIntentID string) ([]ProviderRefund, error) {
	params := &stripe.RefundListParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Context = ctx

	var refunds []ProviderRefund
	iter := p.api.Refunds.List(params)
	for iter.Next() {
		if r := toProviderRefund(iter.Refund()); r != nil {
			refunds = append(refunds, *r)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe list refunds for %s: %w", paymentIntentID, err)
	}
	return refunds, nil
}

// toProviderRefund drops refunds that never moved money.
func toProviderRefund(r *stripe.Refund) *ProviderRefund {
	if r == nil || r.ID == "" {
		return nil
	}
	switch r.Status {
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return nil
	}
	return &ProviderRefund{ID: r.ID, AmountMinor: r.Amount, Status: string(r.Status)}
}

func decodeStripeEvent(event stripe.Event) (*PaymentEvent, error) {
	out := &PaymentEvent{ID: event.ID, Type: PaymentEventType(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case PaymentEventSucceeded, PaymentEventFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, BadRequest("Invalid payment intent payload")
		}
		out.PaymentIntentID = pi.ID
		if pi.LastPaymentError != nil {
			out.FailureMessage = pi.LastPaymentError.Msg
		}
	case PaymentEventRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, BadRequest("Invalid charge payload")
		}
		if ch.PaymentIntent != nil {
			out.PaymentIntentID = ch.PaymentIntent.ID
		}
		out.AmountRefundedMinor = ch.AmountRefunded
		if ch.Refunds != nil {
			for _, r := range ch.Refunds.Data {
				if pr := toProviderRefund(r); pr != nil {
					out.Refunds = append(out.Refunds, *pr)
				}
			}
		}
	}
	return out, nil
}
