package services

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	defaultPricingCurrency       = "USD"
	defaultFreeShippingThreshold = 10000
	defaultShippingFee           = 999
	defaultTaxRateBasisPoints    = 800
	basisPointsDenominator       = 10000
)

var (
	// ErrPricingEmptyCart indicates the cart has no line items.
	ErrPricingEmptyCart = errors.New("pricing: cart is empty")
	// ErrPricingInvalidLineItem indicates a line item with a non-positive quantity or a negative price.
	ErrPricingInvalidLineItem = errors.New("pricing: invalid line item")
	// ErrPricingInvalidDiscount indicates a negative coupon discount.
	ErrPricingInvalidDiscount = errors.New("pricing: invalid discount")
)

// PricingConfig holds the engine parameters in minor units.
type PricingConfig struct {
	Currency string
	// FreeShippingOver waives shipping when the subtotal is strictly greater than this amount.
	FreeShippingOver   int64
	ShippingFee        int64
	TaxRateBasisPoints int64
}

// DefaultPricingConfig returns the storefront defaults: free shipping over 100.00, 9.99 flat fee, 8% tax.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Currency:           defaultPricingCurrency,
		FreeShippingOver:   defaultFreeShippingThreshold,
		ShippingFee:        defaultShippingFee,
		TaxRateBasisPoints: defaultTaxRateBasisPoints,
	}
}

// PricingEngine derives price breakdowns. It holds no mutable state and is safe for concurrent use.
type PricingEngine struct {
	cfg PricingConfig
}

// NewPricingEngine validates cfg and constructs an engine.
func NewPricingEngine(cfg PricingConfig) (*PricingEngine, error) {
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if cfg.Currency == "" {
		cfg.Currency = defaultPricingCurrency
	}
	if cfg.FreeShippingOver < 0 || cfg.ShippingFee < 0 {
		return nil, errors.New("pricing engine: shipping parameters must be non-negative")
	}
	if cfg.TaxRateBasisPoints < 0 || cfg.TaxRateBasisPoints > basisPointsDenominator {
		return nil, errors.New("pricing engine: tax rate must be between 0 and 10000 basis points")
	}
	return &PricingEngine{cfg: cfg}, nil
}

// Currency returns the ISO currency the engine prices in.
func (e *PricingEngine) Currency() string {
	return e.cfg.Currency
}

// ComputeBreakdown prices items and applies an already resolved coupon discount.
// Shipping is decided on the subtotal alone and tax never includes shipping or discount.
func (e *PricingEngine) ComputeBreakdown(items []LineItem, couponDiscount int64) (PriceBreakdown, error) {
	if len(items) == 0 {
		return PriceBreakdown{}, ErrPricingEmptyCart
	}
	if couponDiscount < 0 {
		return PriceBreakdown{}, fmt.Errorf("%w: %d", ErrPricingInvalidDiscount, couponDiscount)
	}

	var subtotal int64
	for i, item := range items {
		if item.Quantity <= 0 {
			return PriceBreakdown{}, fmt.Errorf("%w: item %d quantity must be at least 1", ErrPricingInvalidLineItem, i)
		}
		if item.UnitPrice < 0 {
			return PriceBreakdown{}, fmt.Errorf("%w: item %d unit price must be non-negative", ErrPricingInvalidLineItem, i)
		}
		if item.UnitPrice > 0 && int64(item.Quantity) > (math.MaxInt64-subtotal)/item.UnitPrice {
			return PriceBreakdown{}, fmt.Errorf("%w: item %d amount overflows", ErrPricingInvalidLineItem, i)
		}
		subtotal += item.LineTotal()
	}

	shipping := e.cfg.ShippingFee
	if subtotal > e.cfg.FreeShippingOver {
		shipping = 0
	}
	tax := e.taxOn(subtotal)

	total := subtotal + shipping + tax - couponDiscount
	if total < 0 {
		total = 0
	}

	return PriceBreakdown{
		Currency: e.cfg.Currency,
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Discount: couponDiscount,
		Total:    total,
	}, nil
}

// taxOn rounds half away from zero; subtotal is never negative here.
func (e *PricingEngine) taxOn(subtotal int64) int64 {
	rate := e.cfg.TaxRateBasisPoints
	if rate == 0 || subtotal == 0 {
		return 0
	}
	whole := (subtotal / basisPointsDenominator) * rate
	rem := (subtotal % basisPointsDenominator) * rate
	return whole + (rem+basisPointsDenominator/2)/basisPointsDenominator
}
