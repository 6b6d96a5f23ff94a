package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/raistore/storefront/internal/domain"
	pfirestore "github.com/raistore/storefront/internal/platform/firestore"
	"github.com/raistore/storefront/internal/repositories"
)

const couponsCollection = "coupons"

// CouponRepository persists coupons. Usage counters are only ever changed with
// server side increments so concurrent redemptions never lose an update.
type CouponRepository struct {
	base *pfirestore.BaseRepository[couponDocument]
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection, nil, nil)
	return &CouponRepository{base: base}, nil
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

// Insert creates the coupon and fails with a conflict when the id already exists.
func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	if strings.TrimSpace(coupon.ID) == "" {
		return errors.New("coupon insert: id is required")
	}
	return r.base.Create(ctx, coupon.ID, newCouponDocument(coupon))
}

// Update rewrites the editable fields of an existing coupon. The usage counter is left untouched.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	if strings.TrimSpace(coupon.ID) == "" {
		return errors.New("coupon update: id is required")
	}
	doc := newCouponDocument(coupon)
	updates := []firestore.Update{
		{Path: "code", Value: doc.Code},
		{Path: "description", Value: doc.Description},
		{Path: "discountType", Value: doc.DiscountType},
		{Path: "discountValue", Value: doc.DiscountValue},
		{Path: "minOrderAmount", Value: doc.MinOrderAmount},
		{Path: "maxUses", Value: doc.MaxUses},
		{Path: "expiresAt", Value: doc.ExpiresAt},
		{Path: "isActive", Value: doc.IsActive},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
	return r.base.Update(ctx, coupon.ID, updates, firestore.Exists)
}

// FindByID loads the coupon by document id.
func (r *CouponRepository) FindByID(ctx context.Context, couponID string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return domain.Coupon{}, pfirestore.NewNotFoundError("coupons.get", errors.New("coupon id is required"))
	}
	doc, err := r.base.Get(ctx, couponID)
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByCode looks up the coupon by its normalised code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, pfirestore.NewNotFoundError("coupons.find_by_code", fmt.Errorf("coupon %q not found", code))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// ListActive returns active coupons that have not expired at now, newest first.
func (r *CouponRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Coupon, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("coupon repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("isActive", "==", true)
	})
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	coupons := make([]domain.Coupon, 0, len(docs))
	for _, doc := range docs {
		coupon := doc.Data.toDomain(doc.ID)
		if coupon.ExpiresAt != nil && !now.Before(*coupon.ExpiresAt) {
			continue
		}
		coupons = append(coupons, coupon)
	}
	sort.SliceStable(coupons, func(i, j int) bool {
		return coupons[i].CreatedAt.After(coupons[j].CreatedAt)
	})
	return coupons, nil
}

// IncrementUsage bumps the usage counter by one.
func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID string) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return errors.New("coupon increment: id is required")
	}
	return r.base.Update(ctx, couponID, []firestore.Update{
		{Path: "usedCount", Value: firestore.Increment(1)},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
}

type couponDocument struct {
	Code           string     `firestore:"code"`
	Description    string     `firestore:"description"`
	DiscountType   string     `firestore:"discountType"`
	DiscountValue  int64      `firestore:"discountValue"`
	MinOrderAmount int64      `firestore:"minOrderAmount"`
	MaxUses        *int       `firestore:"maxUses"`
	UsedCount      int        `firestore:"usedCount"`
	ExpiresAt      *time.Time `firestore:"expiresAt"`
	IsActive       bool       `firestore:"isActive"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

func newCouponDocument(c domain.Coupon) couponDocument {
	return couponDocument{
		Code:           strings.ToUpper(strings.TrimSpace(c.Code)),
		Description:    c.Description,
		DiscountType:   string(c.DiscountType),
		DiscountValue:  c.DiscountValue,
		MinOrderAmount: c.MinOrderAmount,
		MaxUses:        c.MaxUses,
		UsedCount:      c.UsedCount,
		ExpiresAt:      utcPtr(c.ExpiresAt),
		IsActive:       c.IsActive,
		CreatedAt:      c.CreatedAt.UTC(),
		UpdatedAt:      c.UpdatedAt.UTC(),
	}
}

func (d couponDocument) toDomain(id string) domain.Coupon {
	return domain.Coupon{
		ID:             id,
		Code:           d.Code,
		Description:    d.Description,
		DiscountType:   domain.CouponDiscountType(d.DiscountType),
		DiscountValue:  d.DiscountValue,
		MinOrderAmount: d.MinOrderAmount,
		MaxUses:        d.MaxUses,
		UsedCount:      d.UsedCount,
		ExpiresAt:      utcPtr(d.ExpiresAt),
		IsActive:       d.IsActive,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
}
