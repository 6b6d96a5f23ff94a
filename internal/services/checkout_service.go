package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/raistore/storefront/internal/payments"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutPaymentFailed indicates the payment provider rejected the intent.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// Metadata keys checkout records on every intent. Order creation reads them back to
// bind the intent to the cart it was opened for.
const (
	intentMetaSubtotal   = "subtotal"
	intentMetaItemCount  = "item_count"
	intentMetaUserID     = "user_id"
	intentMetaCouponCode = "coupon_code"
)

// paymentIntentCreator abstracts payments.Manager for easier testing.
type paymentIntentCreator interface {
	CreatePaymentIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.PaymentIntentRequest) (payments.PaymentIntent, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Pricing    *PricingEngine
	Catalog    CatalogService
	Promotions PromotionService
	Payments   paymentIntentCreator
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	pricing    *PricingEngine
	catalog    CatalogService
	promotions PromotionService
	payments   paymentIntentCreator
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment manager is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &checkoutService{
		pricing:    deps.Pricing,
		catalog:    deps.Catalog,
		promotions: deps.Promotions,
		payments:   deps.Payments,
		logger:     logger,
	}, nil
}

// CreatePaymentIntent re-prices the cart against the catalog and asks the provider for an
// intent covering exactly the derived total.
func (s *checkoutService) CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntentResult, error) {
	if len(cmd.Items) == 0 {
		return PaymentIntentResult{}, ErrPricingEmptyCart
	}

	items, err := repriceItems(ctx, s.catalog, cmd.Items)
	if err != nil {
		return PaymentIntentResult{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	breakdown, err := s.pricing.ComputeBreakdown(items, 0)
	if err != nil {
		return PaymentIntentResult{}, err
	}
	couponCode := ""
	if code := strings.TrimSpace(cmd.CouponCode); code != "" && s.promotions != nil {
		resolution, err := s.promotions.ResolveCoupon(ctx, code, breakdown.Subtotal)
		if err != nil {
			if errors.Is(err, ErrPromotionUnavailable) {
				return PaymentIntentResult{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
			}
			return PaymentIntentResult{}, fmt.Errorf("%w: coupon: %v", ErrCheckoutInvalidInput, err)
		}
		couponCode = resolution.Coupon.Code
		if breakdown, err = s.pricing.ComputeBreakdown(items, resolution.Discount); err != nil {
			return PaymentIntentResult{}, err
		}
	}
	if breakdown.Total <= 0 {
		return PaymentIntentResult{}, fmt.Errorf("%w: nothing to charge", ErrCheckoutInvalidInput)
	}

	userID := strings.TrimSpace(cmd.UserID)
	var key string
	if clientKey := strings.TrimSpace(cmd.IdempotencyKey); clientKey != "" {
		key = paymentIntentIdempotencyKey(clientKey, userID, couponCode, items, breakdown)
	}
	meta := map[string]string{
		intentMetaSubtotal:  strconv.FormatInt(breakdown.Subtotal, 10),
		intentMetaItemCount: strconv.Itoa(len(items)),
	}
	if userID != "" {
		meta[intentMetaUserID] = userID
	}
	if couponCode != "" {
		meta[intentMetaCouponCode] = couponCode
	}

	intent, err := s.payments.CreatePaymentIntent(ctx, payments.PaymentContext{Currency: breakdown.Currency}, payments.PaymentIntentRequest{
		Amount:         breakdown.Total,
		Currency:       breakdown.Currency,
		Metadata:       meta,
		IdempotencyKey: key,
	})
	if err != nil {
		s.logger(ctx, "checkout.intent.failed", map[string]any{
			"amount": breakdown.Total,
			"error":  err.Error(),
		})
		return PaymentIntentResult{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	s.logger(ctx, "checkout.intent.created", map[string]any{
		"intentId": intent.ID,
		"provider": intent.Provider,
		"amount":   breakdown.Total,
	})
	return PaymentIntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Provider:     intent.Provider,
		AmountMinor:  breakdown.Total,
		Breakdown:    breakdown,
		Items:        items,
	}, nil
}

// paymentIntentIdempotencyKey scopes the client's per-checkout key to the caller and
// cart, so a retry reuses its intent while another caller or cart never can. Without
// a client key no key is sent and every request opens a fresh intent.
func paymentIntentIdempotencyKey(clientKey, userID, couponCode string, items []LineItem, breakdown PriceBreakdown) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%d", clientKey, userID, couponCode, breakdown.Total)
	for _, item := range items {
		fmt.Fprintf(&b, "|%s:%s:%s:%s:%d:%d", item.ProductRef.Kind, item.ProductRef.ID, item.SelectedColor, item.SelectedSize, item.UnitPrice, item.Quantity)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
