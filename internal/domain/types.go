package domain

import (
	"regexp"
	"strings"
	"time"
)

// Pagination defines offset-based paging inputs for list operations.
type Pagination struct {
	Page     int
	PageSize int
}

// Offset returns the number of records preceding the requested page.
func (p Pagination) Offset() int {
	if p.Page <= 1 || p.PageSize <= 0 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Page packages list results with the total count matching the filter.
type Page[T any] struct {
	Items []T
	Total int
}

// ProductRefKind tags how a line item references the catalog.
type ProductRefKind string

const (
	// ProductRefCatalog marks items whose identifier resolves against the catalog.
	ProductRefCatalog ProductRefKind = "catalog"
	// ProductRefUntracked marks local or guest items that only carry a client price.
	ProductRefUntracked ProductRefKind = "untracked"
)

var catalogIDPattern = regexp.MustCompile(`(?i)^[a-f\d]{24}$`)

// ProductRef is the tagged reference a line item carries.
type ProductRef struct {
	Kind ProductRefKind
	ID   string
}

// CatalogRef builds a reference to a catalog product.
func CatalogRef(id string) ProductRef {
	return ProductRef{Kind: ProductRefCatalog, ID: strings.TrimSpace(id)}
}

// UntrackedRef builds a reference for an item outside the catalog.
func UntrackedRef() ProductRef {
	return ProductRef{Kind: ProductRefUntracked}
}

// InferProductRef reproduces the legacy client heuristic: only 24 hex character
// identifiers are treated as catalog ids.
func InferProductRef(raw string) ProductRef {
	raw = strings.TrimSpace(raw)
	if catalogIDPattern.MatchString(raw) {
		return CatalogRef(raw)
	}
	return UntrackedRef()
}

// IsCatalog reports whether the reference can be resolved against the catalog.
func (r ProductRef) IsCatalog() bool {
	return r.Kind == ProductRefCatalog && r.ID != ""
}

// LineItem is a single product/quantity/option entry within a cart or order.
type LineItem struct {
	ProductRef    ProductRef
	Name          string
	Brand         string
	ImageURL      string
	UnitPrice     int64
	Quantity      int
	SelectedColor string
	SelectedSize  string
}

// LineTotal returns unit price times quantity in minor units.
func (i LineItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed without a payment confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates payment is confirmed and the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded indicates the order was refunded.
	OrderStatusRefunded OrderStatus = "refunded"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// ParseOrderStatus normalises the raw value and reports whether it is a known status.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	candidate := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, status := range OrderStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further business transition is expected.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// PaymentStatus values observed on orders.
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// Address represents a shipping address. Guest orders may leave it empty.
type Address struct {
	Line       string
	City       string
	Region     string
	PostalCode string
}

// IsZero reports whether no address field is populated.
func (a Address) IsZero() bool {
	return strings.TrimSpace(a.Line) == "" &&
		strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.Region) == "" &&
		strings.TrimSpace(a.PostalCode) == ""
}

// Customer identifies who placed the order: an account, a guest contact, or both.
type Customer struct {
	UserID string
	Name   string
	Email  string
}

// Order captures the persisted order aggregate.
type Order struct {
	ID              string
	OrderNumber     string
	Customer        Customer
	Items           []LineItem
	Breakdown       PriceBreakdown
	Status          OrderStatus
	PaymentStatus   string
	PaymentMethod   string
	PaymentIntentID string
	CouponCode      string
	ShippingAddress *Address
	Notes           string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	RefundedAt      *time.Time
}

// ProductBadge is the merchandising label shown on a product card.
type ProductBadge string

const (
	ProductBadgeBestSeller ProductBadge = "Best Seller"
	ProductBadgeNew        ProductBadge = "New"
	ProductBadgeSale       ProductBadge = "Sale"
	ProductBadgeLimited    ProductBadge = "Limited"
	ProductBadgeTrending   ProductBadge = "Trending"
)

var productBadges = []ProductBadge{
	ProductBadgeBestSeller,
	ProductBadgeNew,
	ProductBadgeSale,
	ProductBadgeLimited,
	ProductBadgeTrending,
}

// ParseProductBadge matches raw case-insensitively against the known badges.
// An empty string parses to the zero badge.
func ParseProductBadge(raw string) (ProductBadge, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", true
	}
	for _, badge := range productBadges {
		if strings.EqualFold(raw, string(badge)) {
			return badge, true
		}
	}
	return "", false
}

// Product is a catalog entry. Prices are in minor units.
type Product struct {
	ID            string
	Name          string
	Slug          string
	Brand         string
	Description   string
	Price         int64
	OriginalPrice *int64
	CategoryID    string
	Subcategory   string
	Images        []string
	Colors        []string
	Sizes         []string
	Features      []string
	Badge         ProductBadge
	Rating        float64
	ReviewCount   int
	IsFeatured    bool
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Category groups products on the storefront. Deleting a category only deactivates it.
type Category struct {
	ID           string
	Name         string
	Slug         string
	Icon         string
	ImageURL     string
	Description  string
	DisplayOrder int
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WishlistItem is a product saved by a signed-in customer. Product is nil when the
// catalog entry has since been removed.
type WishlistItem struct {
	ProductID string
	AddedAt   time.Time
	Product   *Product
}

// CouponDiscountType enumerates how a coupon reduces the order.
type CouponDiscountType string

const (
	// CouponDiscountPercentage reduces the subtotal by DiscountValue percent.
	CouponDiscountPercentage CouponDiscountType = "percentage"
	// CouponDiscountFixed reduces the subtotal by a fixed DiscountValue amount.
	CouponDiscountFixed CouponDiscountType = "fixed"
)

// Coupon describes a redeemable discount code.
type Coupon struct {
	ID             string
	Code           string
	Description    string
	DiscountType   CouponDiscountType
	DiscountValue  int64
	MinOrderAmount int64
	MaxUses        *int
	UsedCount      int
	ExpiresAt      *time.Time
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InventoryRecord tracks stock per product variant.
type InventoryRecord struct {
	ID                string
	ProductID         string
	SKU               string
	Color             string
	Size              string
	Quantity          int
	LowStockThreshold int
	UpdatedAt         time.Time
}

// IsLowStock reports whether the quantity is at or below the threshold.
func (r InventoryRecord) IsLowStock() bool {
	return r.Quantity <= r.LowStockThreshold
}

// AuditLogEntry records privileged actions for later review.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Reason    string
	Diff      map[string]any
	Metadata  map[string]any
	RequestID string
	CreatedAt time.Time
}
