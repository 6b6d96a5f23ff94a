package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/raistore/storefront/internal/platform/auth"
	"github.com/raistore/storefront/internal/platform/httpx"
	"github.com/raistore/storefront/internal/services"
)

const (
	defaultIntentRateLimit = 10
	paymentIntentScope     = "payments.intents"
)

// PaymentHandlers exposes payment intent creation for the checkout page.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	limiter  *ipRateLimiter
}

// PaymentHandlersOption customises PaymentHandlers.
type PaymentHandlersOption func(*PaymentHandlers)

// WithPaymentRateLimit limits intent creation per client IP. A non-positive limit disables limiting.
func WithPaymentRateLimit(limit int, window time.Duration, clock func() time.Time) PaymentHandlersOption {
	return func(h *PaymentHandlers) {
		h.limiter = newIPRateLimiter(paymentIntentScope, limit, window, clock)
	}
}

// NewPaymentHandlers constructs payment handlers. Anonymous checkouts are allowed.
func NewPaymentHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...PaymentHandlersOption) *PaymentHandlers {
	h := &PaymentHandlers{
		authn:    authn,
		checkout: checkout,
		limiter:  newIPRateLimiter(paymentIntentScope, defaultIntentRateLimit, time.Minute, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.OptionalFirebaseAuth())
	}
	group.Post("/intents", h.createIntent)
}

type createIntentRequest struct {
	Items      []lineItemPayload `json:"items"`
	CouponCode string            `json:"couponCode"`
}

type createIntentResponse struct {
	ClientSecret string            `json:"clientSecret"`
	IntentID     string            `json:"paymentIntentId"`
	Provider     string            `json:"provider"`
	Breakdown    breakdownPayload  `json:"breakdown"`
	Items        []lineItemPayload `json:"items"`
}

func (h *PaymentHandlers) createIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	if !h.limiter.guard(ctx, w, r, "too many payment attempts; try again shortly") {
		return
	}

	var req createIntentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	items, err := lineItemsFromPayload(req.Items)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.CreatePaymentIntentCommand{
		Items:          items,
		CouponCode:     req.CouponCode,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		cmd.UserID = identity.UID
	}

	result, err := h.checkout.CreatePaymentIntent(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, createIntentResponse{
		ClientSecret: result.ClientSecret,
		IntentID:     result.IntentID,
		Provider:     result.Provider,
		Breakdown:    breakdownPayloadOf(result.Breakdown),
		Items:        lineItemPayloads(result.Items),
	})
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr.
func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPricingEmptyCart),
		errors.Is(err, services.ErrPricingInvalidLineItem),
		errors.Is(err, services.ErrPricingInvalidDiscount),
		errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment provider rejected the request", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to create payment intent", http.StatusInternalServerError))
	}
}
