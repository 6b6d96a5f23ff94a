package services

import (
	"context"
	"time"

	domain "github.com/raistore/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order           = domain.Order
	OrderStatus     = domain.OrderStatus
	LineItem        = domain.LineItem
	ProductRef      = domain.ProductRef
	PriceBreakdown  = domain.PriceBreakdown
	Customer        = domain.Customer
	Address         = domain.Address
	Product         = domain.Product
	ProductBadge    = domain.ProductBadge
	Category        = domain.Category
	WishlistItem    = domain.WishlistItem
	Coupon          = domain.Coupon
	InventoryRecord = domain.InventoryRecord
	AuditLogEntry   = domain.AuditLogEntry
)

// OrderService owns the order aggregate: creation from a priced cart and
// administrator driven status transitions.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error)
	SetStatus(ctx context.Context, cmd SetOrderStatusCommand) (Order, error)
	OverrideStatus(ctx context.Context, cmd OverrideOrderStatusCommand) (Order, error)
}

// CheckoutService derives the authoritative amount for a cart and opens a payment intent for it.
type CheckoutService interface {
	CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntentResult, error)
}

// CatalogService exposes catalog lookups used for re-pricing, storefront browsing
// and admin maintenance of products and categories.
type CatalogService interface {
	FindProduct(ctx context.Context, productID string) (Product, error)
	FindProductBySlug(ctx context.Context, slug string) (Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) (ProductPage, error)
	UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error
	ListCategories(ctx context.Context, includeInactive bool) ([]Category, error)
	UpsertCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	DeactivateCategory(ctx context.Context, cmd DeactivateCategoryCommand) (Category, error)
}

// WishlistService keeps the products a signed-in customer saved for later.
type WishlistService interface {
	ListWishlist(ctx context.Context, userID string) ([]WishlistItem, error)
	AddToWishlist(ctx context.Context, userID, productID string) (WishlistItem, bool, error)
	RemoveFromWishlist(ctx context.Context, userID, productID string) error
}

// PromotionService resolves and maintains coupon codes.
type PromotionService interface {
	ResolveCoupon(ctx context.Context, code string, subtotal int64) (CouponResolution, error)
	RedeemCoupon(ctx context.Context, code string) error
	ListActiveCoupons(ctx context.Context) ([]Coupon, error)
	CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	DeactivateCoupon(ctx context.Context, couponID string) (Coupon, error)
}

// InventoryService maintains per-variant stock levels.
type InventoryService interface {
	ListInventory(ctx context.Context, productID string) ([]InventoryRecord, error)
	UpsertInventory(ctx context.Context, cmd UpsertInventoryCommand) (InventoryRecord, error)
}

// AuditLogService writes and reads the privileged action trail.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord) error
	ListByTarget(ctx context.Context, targetRef string, limit int) ([]AuditLogEntry, error)
}

// OrderNotifier receives order lifecycle notifications. Implementations may be slow or fail;
// callers dispatch them asynchronously and only log errors.
type OrderNotifier interface {
	NotifyOrderCreated(ctx context.Context, order Order) error
	NotifyStatusChanged(ctx context.Context, order Order, previous OrderStatus) error
}

// CreateOrderCommand carries the confirmed cart submitted by the client.
type CreateOrderCommand struct {
	Customer        Customer
	Items           []LineItem
	CouponCode      string
	Discount        int64
	QuotedBreakdown *PriceBreakdown
	PaymentIntentID string
	PaymentMethod   string
	ShippingAddress *Address
	Notes           string
	ActorID         string
}

// PaymentConfirmation is the out-of-band payment result verified before persisting an order.
type PaymentConfirmation struct {
	IntentID              string
	Succeeded             bool
	AuthorizedAmountMinor int64
	Currency              string
}

// SetOrderStatusCommand requests a transition permitted by the lifecycle table.
type SetOrderStatusCommand struct {
	OrderID string
	Status  string
	ActorID string
}

// OverrideOrderStatusCommand forces a status outside the lifecycle table. Reason and actor are mandatory.
type OverrideOrderStatusCommand struct {
	OrderID   string
	Status    string
	ActorID   string
	Reason    string
	RequestID string
}

// OrderListFilter narrows order listings for customers and administrators.
type OrderListFilter struct {
	UserID   string
	Status   []OrderStatus
	Page     int
	PageSize int
}

// CreatePaymentIntentCommand is the cart the client is about to pay for.
type CreatePaymentIntentCommand struct {
	Items          []LineItem
	CouponCode     string
	UserID         string
	IdempotencyKey string
}

// PaymentIntentResult returns the intent handle together with the server derived breakdown.
type PaymentIntentResult struct {
	IntentID     string
	ClientSecret string
	Provider     string
	AmountMinor  int64
	Breakdown    PriceBreakdown
	Items        []LineItem
}

// CouponResolution is the discount a coupon grants against a subtotal.
type CouponResolution struct {
	Coupon   Coupon
	Discount int64
}

// UpsertCouponCommand creates or updates a coupon definition.
type UpsertCouponCommand struct {
	ID             string
	Code           string
	Description    string
	DiscountType   string
	DiscountValue  int64
	MinOrderAmount int64
	MaxUses        *int
	ExpiresAt      *time.Time
	IsActive       bool
}

// UpsertProductCommand creates or updates a catalog product.
type UpsertProductCommand struct {
	Product Product
}

// DeleteProductCommand removes a product permanently.
type DeleteProductCommand struct {
	ProductID string
	ActorID   string
}

// ProductFilter narrows a catalog listing. Category accepts a category id, slug or
// case-insensitive name. Page is 1-based.
type ProductFilter struct {
	Category        string
	FeaturedOnly    bool
	Badge           string
	Search          string
	IncludeInactive bool
	Page            int
	PageSize        int
}

// ProductPage is one page of a catalog listing. Pages is the page count for the
// requested page size.
type ProductPage struct {
	Items []Product
	Total int
	Page  int
	Pages int
}

// UpsertCategoryCommand creates or updates a category.
type UpsertCategoryCommand struct {
	Category Category
}

// DeactivateCategoryCommand hides a category from the storefront.
type DeactivateCategoryCommand struct {
	CategoryID string
	ActorID    string
}

// UpsertInventoryCommand sets stock for a product variant.
type UpsertInventoryCommand struct {
	ProductID         string
	SKU               string
	Color             string
	Size              string
	Quantity          int
	LowStockThreshold int
}

// AuditLogRecord describes a privileged action prior to sanitisation.
type AuditLogRecord struct {
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Reason    string
	Diff      map[string]AuditLogDiff
	Metadata  map[string]any
	RequestID string

	// SensitiveKeys lists metadata and diff keys whose values are stored as salted hashes.
	SensitiveKeys []string
}

// AuditLogDiff captures a single field change.
type AuditLogDiff struct {
	Before any
	After  any
}
