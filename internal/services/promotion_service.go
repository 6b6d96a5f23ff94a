package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/repositories"
)

var couponCodePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

// PromotionServiceDeps bundles dependencies required to construct a PromotionService implementation.
type PromotionServiceDeps struct {
	Coupons     repositories.CouponRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type promotionService struct {
	repo  repositories.CouponRepository
	clock func() time.Time
	newID func() string
}

// NewPromotionService wires a PromotionService backed by the coupon repository.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("promotion service: coupon repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &promotionService{
		repo:  deps.Coupons,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

// ResolveCoupon validates the coupon for the subtotal and returns the discount it grants.
func (s *promotionService) ResolveCoupon(ctx context.Context, code string, subtotal int64) (CouponResolution, error) {
	code, err := normalizeCouponCode(code)
	if err != nil {
		return CouponResolution{}, err
	}
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return CouponResolution{}, mapPromotionError(err)
	}
	if err := checkCouponUsable(coupon, s.clock(), subtotal); err != nil {
		return CouponResolution{}, err
	}
	return CouponResolution{Coupon: coupon, Discount: CouponDiscount(coupon, subtotal)}, nil
}

// RedeemCoupon increments the usage counter of an existing coupon.
func (s *promotionService) RedeemCoupon(ctx context.Context, code string) error {
	code, err := normalizeCouponCode(code)
	if err != nil {
		return err
	}
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return mapPromotionError(err)
	}
	if err := s.repo.IncrementUsage(ctx, coupon.ID); err != nil {
		return mapPromotionError(err)
	}
	return nil
}

func (s *promotionService) ListActiveCoupons(ctx context.Context) ([]Coupon, error) {
	coupons, err := s.repo.ListActive(ctx, s.clock())
	if err != nil {
		return nil, mapPromotionError(err)
	}
	return coupons, nil
}

func (s *promotionService) CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	coupon, err := couponFromCommand(cmd)
	if err != nil {
		return Coupon{}, err
	}
	if _, err := s.repo.FindByCode(ctx, coupon.Code); err == nil {
		return Coupon{}, fmt.Errorf("%w: %s", ErrPromotionConflict, coupon.Code)
	} else if !errors.Is(mapPromotionError(err), ErrPromotionNotFound) {
		return Coupon{}, mapPromotionError(err)
	}

	now := s.clock()
	coupon.ID = s.newID()
	coupon.CreatedAt = now
	coupon.UpdatedAt = now
	if err := s.repo.Insert(ctx, coupon); err != nil {
		return Coupon{}, mapPromotionError(err)
	}
	return coupon, nil
}

func (s *promotionService) UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	id := strings.TrimSpace(cmd.ID)
	if id == "" {
		return Coupon{}, fmt.Errorf("%w: coupon id is required", ErrPromotionInvalidInput)
	}
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Coupon{}, mapPromotionError(err)
	}
	updated, err := couponFromCommand(cmd)
	if err != nil {
		return Coupon{}, err
	}
	if updated.Code != existing.Code {
		if other, err := s.repo.FindByCode(ctx, updated.Code); err == nil && other.ID != existing.ID {
			return Coupon{}, fmt.Errorf("%w: %s", ErrPromotionConflict, updated.Code)
		}
	}
	updated.ID = existing.ID
	updated.UsedCount = existing.UsedCount
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, updated); err != nil {
		return Coupon{}, mapPromotionError(err)
	}
	return updated, nil
}

// DeactivateCoupon soft-deletes a coupon; redemptions keep referencing it.
func (s *promotionService) DeactivateCoupon(ctx context.Context, couponID string) (Coupon, error) {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return Coupon{}, fmt.Errorf("%w: coupon id is required", ErrPromotionInvalidInput)
	}
	coupon, err := s.repo.FindByID(ctx, couponID)
	if err != nil {
		return Coupon{}, mapPromotionError(err)
	}
	if !coupon.IsActive {
		return coupon, nil
	}
	coupon.IsActive = false
	coupon.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, coupon); err != nil {
		return Coupon{}, mapPromotionError(err)
	}
	return coupon, nil
}

// CouponDiscount computes the discount for subtotal. Percentages round half up and
// the result never exceeds the subtotal.
func CouponDiscount(coupon Coupon, subtotal int64) int64 {
	if subtotal <= 0 || coupon.DiscountValue <= 0 {
		return 0
	}
	var discount int64
	switch coupon.DiscountType {
	case domain.CouponDiscountPercentage:
		discount = (subtotal*coupon.DiscountValue + 50) / 100
	case domain.CouponDiscountFixed:
		discount = coupon.DiscountValue
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount
}

func checkCouponUsable(coupon Coupon, now time.Time, subtotal int64) error {
	switch {
	case !coupon.IsActive:
		return fmt.Errorf("%w: %s", ErrPromotionInactive, coupon.Code)
	case coupon.ExpiresAt != nil && !now.Before(*coupon.ExpiresAt):
		return fmt.Errorf("%w: %s", ErrPromotionExpired, coupon.Code)
	case coupon.MaxUses != nil && coupon.UsedCount >= *coupon.MaxUses:
		return fmt.Errorf("%w: %s", ErrPromotionUsageExhausted, coupon.Code)
	case subtotal < coupon.MinOrderAmount:
		return fmt.Errorf("%w: requires %d", ErrPromotionMinimumNotMet, coupon.MinOrderAmount)
	}
	return nil
}

func couponFromCommand(cmd UpsertCouponCommand) (Coupon, error) {
	code, err := normalizeCouponCode(cmd.Code)
	if err != nil {
		return Coupon{}, err
	}
	discountType := domain.CouponDiscountType(strings.ToLower(strings.TrimSpace(cmd.DiscountType)))
	if discountType == "" {
		discountType = domain.CouponDiscountPercentage
	}
	switch discountType {
	case domain.CouponDiscountPercentage:
		if cmd.DiscountValue <= 0 || cmd.DiscountValue > 100 {
			return Coupon{}, fmt.Errorf("%w: percentage must be between 1 and 100", ErrPromotionInvalidInput)
		}
	case domain.CouponDiscountFixed:
		if cmd.DiscountValue <= 0 {
			return Coupon{}, fmt.Errorf("%w: fixed discount must be positive", ErrPromotionInvalidInput)
		}
	default:
		return Coupon{}, fmt.Errorf("%w: unknown discount type %q", ErrPromotionInvalidInput, cmd.DiscountType)
	}
	if cmd.MinOrderAmount < 0 {
		return Coupon{}, fmt.Errorf("%w: minimum order amount must be non-negative", ErrPromotionInvalidInput)
	}
	if cmd.MaxUses != nil && *cmd.MaxUses < 0 {
		return Coupon{}, fmt.Errorf("%w: max uses must be non-negative", ErrPromotionInvalidInput)
	}
	coupon := Coupon{
		Code:           code,
		Description:    strings.TrimSpace(cmd.Description),
		DiscountType:   discountType,
		DiscountValue:  cmd.DiscountValue,
		MinOrderAmount: cmd.MinOrderAmount,
		MaxUses:        cmd.MaxUses,
		IsActive:       cmd.IsActive,
	}
	if cmd.ExpiresAt != nil {
		expires := cmd.ExpiresAt.UTC()
		coupon.ExpiresAt = &expires
	}
	return coupon, nil
}

func normalizeCouponCode(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if !couponCodePattern.MatchString(normalized) {
		return "", ErrPromotionInvalidCode
	}
	return normalized, nil
}

func mapPromotionError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPromotionNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPromotionConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrPromotionUnavailable, err)
		}
	}
	return err
}
