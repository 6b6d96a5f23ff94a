package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type stubIntentAPI struct {
	newParams *stripe.PaymentIntentParams
	newResult *stripe.PaymentIntent
	getResult *stripe.PaymentIntent
	err       error
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.newParams = params
	return s.newResult, s.err
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.getResult, s.err
}

func TestStripeProviderCreatePaymentIntent(t *testing.T) {
	api := &stubIntentAPI{newResult: &stripe.PaymentIntent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret",
		Amount:       5319,
		Currency:     stripe.CurrencyUSD,
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}}
	provider, err := NewStripeProvider(StripeProviderConfig{Clients: &stripeClients{intents: api}})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	intent, err := provider.CreatePaymentIntent(context.Background(), PaymentIntentRequest{
		Amount:         5319,
		Currency:       "USD",
		Metadata:       map[string]string{"cart": "c1"},
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.ClientSecret != "pi_123_secret" || intent.ID != "pi_123" {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if intent.Status != StatusPending {
		t.Fatalf("expected pending, got %s", intent.Status)
	}

	params := api.newParams
	if params == nil {
		t.Fatalf("expected params to be sent")
	}
	if got := stripe.StringValue(params.Currency); got != "usd" {
		t.Fatalf("expected lowercase currency, got %q", got)
	}
	if stripe.Int64Value(params.Amount) != 5319 {
		t.Fatalf("expected amount 5319, got %d", stripe.Int64Value(params.Amount))
	}
	if params.AutomaticPaymentMethods == nil || !stripe.BoolValue(params.AutomaticPaymentMethods.Enabled) {
		t.Fatalf("expected automatic payment methods")
	}
	if stripe.StringValue(params.IdempotencyKey) != "key-1" {
		t.Fatalf("expected idempotency key forwarded")
	}
	if params.Metadata["cart"] != "c1" {
		t.Fatalf("expected metadata forwarded")
	}
}

func TestStripeProviderLookupMapsStatus(t *testing.T) {
	cases := map[stripe.PaymentIntentStatus]Status{
		stripe.PaymentIntentStatusSucceeded:      StatusSucceeded,
		stripe.PaymentIntentStatusCanceled:       StatusFailed,
		stripe.PaymentIntentStatusProcessing:     StatusPending,
		stripe.PaymentIntentStatusRequiresAction: StatusPending,
	}
	for stripeStatus, want := range cases {
		api := &stubIntentAPI{getResult: &stripe.PaymentIntent{
			ID:             "pi_1",
			Amount:         12960,
			AmountReceived: 12960,
			Currency:       stripe.CurrencyUSD,
			Status:         stripeStatus,
		}}
		provider, err := NewStripeProvider(StripeProviderConfig{Clients: &stripeClients{intents: api}})
		if err != nil {
			t.Fatalf("new provider: %v", err)
		}
		details, err := provider.LookupPayment(context.Background(), LookupRequest{IntentID: "pi_1"})
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if details.Status != want {
			t.Fatalf("%s: expected %s, got %s", stripeStatus, want, details.Status)
		}
		if details.Amount != 12960 || details.Currency != "USD" {
			t.Fatalf("unexpected details %+v", details)
		}
	}
}

func TestStripeProviderLookupMissingIntent(t *testing.T) {
	api := &stubIntentAPI{err: &stripe.Error{Code: stripe.ErrorCodeResourceMissing}}
	provider, err := NewStripeProvider(StripeProviderConfig{Clients: &stripeClients{intents: api}})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = provider.LookupPayment(context.Background(), LookupRequest{IntentID: "pi_missing"})
	if !errors.Is(err, ErrIntentNotFound) {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}
}

func TestNewStripeProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
