package services

import "errors"

var (
	// ErrPromotionInvalidCode signals the supplied coupon code is missing or malformed.
	ErrPromotionInvalidCode = errors.New("promotion: invalid coupon code")
	// ErrPromotionInvalidInput signals an invalid coupon definition.
	ErrPromotionInvalidInput = errors.New("promotion: invalid input")
	// ErrPromotionNotFound indicates no coupon exists for the provided code or id.
	ErrPromotionNotFound = errors.New("promotion: coupon not found")
	// ErrPromotionInactive indicates the coupon was deactivated.
	ErrPromotionInactive = errors.New("promotion: coupon inactive")
	// ErrPromotionExpired indicates the coupon expiry has passed.
	ErrPromotionExpired = errors.New("promotion: coupon expired")
	// ErrPromotionUsageExhausted indicates the coupon reached its maximum number of uses.
	ErrPromotionUsageExhausted = errors.New("promotion: coupon usage exhausted")
	// ErrPromotionMinimumNotMet indicates the subtotal is below the coupon minimum.
	ErrPromotionMinimumNotMet = errors.New("promotion: minimum order amount not met")
	// ErrPromotionConflict indicates another coupon already uses the code.
	ErrPromotionConflict = errors.New("promotion: coupon code already exists")
	// ErrPromotionUnavailable indicates the coupon store could not be reached.
	ErrPromotionUnavailable = errors.New("promotion: unavailable")
)
