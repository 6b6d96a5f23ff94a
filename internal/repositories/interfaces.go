package repositories

import (
	"context"
	"time"

	domain "github.com/raistore/storefront/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists orders. Insert must reject a duplicate order number
// with a conflict error, and a payment intent already held by another order with
// a conflict wrapping ErrPaymentIntentReserved. UpdateStatus must only write when
// the stored status still equals expected.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	UpdateStatus(ctx context.Context, order domain.Order, expected domain.OrderStatus) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
}

// OrderListFilter narrows order listings for customers and administrators.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// ProductRepository reads and maintains catalog products. Upsert must reject a
// slug held by another product with a conflict wrapping ErrSlugTaken. Delete
// reports not found for an unknown id.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindBySlug(ctx context.Context, slug string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.Page[domain.Product], error)
	Upsert(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
}

// ProductListFilter narrows catalog listings. SearchTerms match any folded word of
// the name, brand or description.
type ProductListFilter struct {
	CategoryID   string
	FeaturedOnly bool
	Badge        domain.ProductBadge
	SearchTerms  []string
	ActiveOnly   bool
	Pagination   domain.Pagination
}

// CategoryRepository maintains storefront categories. Upsert must reject a slug
// held by another category with a conflict wrapping ErrSlugTaken.
type CategoryRepository interface {
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	FindBySlug(ctx context.Context, slug string) (domain.Category, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Category, error)
	Upsert(ctx context.Context, category domain.Category) error
}

// WishlistRepository stores the products a user saved. Put reports whether the
// entry was new and fails with a conflict wrapping ErrWishlistFull once limit
// entries exist.
type WishlistRepository interface {
	List(ctx context.Context, userID string, limit int) ([]domain.WishlistItem, error)
	Put(ctx context.Context, userID, productID string, addedAt time.Time, limit int) (bool, error)
	Delete(ctx context.Context, userID, productID string) error
}

// CouponRepository maintains coupon definitions and usage counters.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	FindByID(ctx context.Context, couponID string) (domain.Coupon, error)
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	ListActive(ctx context.Context, now time.Time) ([]domain.Coupon, error)
	IncrementUsage(ctx context.Context, couponID string) error
}

// InventoryRepository stores stock per product variant.
type InventoryRepository interface {
	List(ctx context.Context, filter InventoryListFilter) ([]domain.InventoryRecord, error)
	FindVariant(ctx context.Context, productID, color, size string) (domain.InventoryRecord, error)
	Upsert(ctx context.Context, record domain.InventoryRecord) error
}

// InventoryListFilter narrows inventory listings.
type InventoryListFilter struct {
	ProductID string
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	ListByTarget(ctx context.Context, targetRef string, limit int) ([]domain.AuditLogEntry, error)
}
