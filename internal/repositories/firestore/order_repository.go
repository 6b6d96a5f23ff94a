package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/raistore/storefront/internal/domain"
	pfirestore "github.com/raistore/storefront/internal/platform/firestore"
	"github.com/raistore/storefront/internal/repositories"
)

const (
	ordersCollection         = "orders"
	orderNumbersCollection   = "orderNumbers"
	paymentIntentsCollection = "paymentIntents"
)

// OrderRepository stores orders and reserves their human facing numbers. Every
// order number owns a document in orderNumbers, and every paid order owns its
// payment intent in paymentIntents, so neither can back two orders.
type OrderRepository struct {
	orders  *pfirestore.BaseRepository[orderDocument]
	numbers *pfirestore.BaseRepository[orderReservationDocument]
	intents *pfirestore.BaseRepository[orderReservationDocument]
	uow     *pfirestore.UnitOfWork
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders:  pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		numbers: pfirestore.NewBaseRepository[orderReservationDocument](provider, orderNumbersCollection, nil, nil),
		intents: pfirestore.NewBaseRepository[orderReservationDocument](provider, paymentIntentsCollection, nil, nil),
		uow:     pfirestore.NewUnitOfWork(provider),
	}, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// Insert writes the order together with its number and payment intent
// reservations. A taken number surfaces as a conflict error; a taken intent as a
// conflict wrapping repositories.ErrPaymentIntentReserved.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	number := strings.TrimSpace(order.OrderNumber)
	if orderID == "" {
		return errors.New("order insert: id is required")
	}
	if number == "" {
		return errors.New("order insert: order number is required")
	}

	doc := newOrderDocument(order)
	intentID := strings.TrimSpace(order.PaymentIntentID)
	return r.uow.RunInTx(ctx, func(ctx context.Context) error {
		reservation := orderReservationDocument{OrderID: orderID, CreatedAt: doc.CreatedAt}
		if intentID != "" {
			if err := r.intents.Create(ctx, intentID, reservation); err != nil {
				var repoErr repositories.RepositoryError
				if errors.As(err, &repoErr) && repoErr.IsConflict() {
					return pfirestore.NewConflictError("orders.reserve_payment_intent",
						fmt.Errorf("%w: %s", repositories.ErrPaymentIntentReserved, intentID))
				}
				return err
			}
		}
		if err := r.numbers.Create(ctx, number, reservation); err != nil {
			return err
		}
		return r.orders.Create(ctx, orderID, doc)
	})
}

// FindByPaymentIntent loads the order holding the intent reservation.
func (r *OrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	if r == nil || r.intents == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return domain.Order{}, pfirestore.NewNotFoundError("orders.find_by_intent", errors.New("payment intent id is required"))
	}
	reservation, err := r.intents.Get(ctx, intentID)
	if err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, reservation.Data.OrderID)
}

// UpdateStatus replaces the stored order only while its status still equals expected.
func (r *OrderRepository) UpdateStatus(ctx context.Context, order domain.Order, expected domain.OrderStatus) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order update: id is required")
	}

	doc := newOrderDocument(order)
	return r.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := r.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if stored := domain.OrderStatus(current.Data.Status); stored != expected {
			return pfirestore.NewConflictError("orders.update_status",
				fmt.Errorf("order %s is %s, expected %s", orderID, stored, expected))
		}
		if current.Data.OrderNumber != doc.OrderNumber {
			return pfirestore.NewConflictError("orders.update_status",
				fmt.Errorf("order %s number cannot change", orderID))
		}
		return r.orders.Set(ctx, orderID, doc)
	})
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, pfirestore.NewNotFoundError("orders.get", errors.New("order id is required"))
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns one page of orders, newest first, with the total matching count.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.Page[domain.Order]{}, errors.New("order repository not initialised")
	}

	where := func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("customer.userId", "==", userID)
		}
		switch len(filter.Status) {
		case 0:
		case 1:
			q = q.Where("status", "==", string(filter.Status[0]))
		default:
			statuses := make([]string, len(filter.Status))
			for i, s := range filter.Status {
				statuses[i] = string(s)
			}
			q = q.Where("status", "in", statuses)
		}
		return q
	}

	total, err := r.orders.Count(ctx, where)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = where(q).OrderBy("createdAt", firestore.Desc)
		if offset := filter.Pagination.Offset(); offset > 0 {
			q = q.Offset(offset)
		}
		if filter.Pagination.PageSize > 0 {
			q = q.Limit(filter.Pagination.PageSize)
		}
		return q
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.Page[domain.Order]{Items: items, Total: total}, nil
}

type orderReservationDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type orderDocument struct {
	OrderNumber     string             `firestore:"orderNumber"`
	Customer        customerDocument   `firestore:"customer"`
	Items           []lineItemDocument `firestore:"items"`
	Currency        string             `firestore:"currency"`
	Subtotal        int64              `firestore:"subtotal"`
	Shipping        int64              `firestore:"shipping"`
	Tax             int64              `firestore:"tax"`
	Discount        int64              `firestore:"discount"`
	Total           int64              `firestore:"total"`
	Status          string             `firestore:"status"`
	PaymentStatus   string             `firestore:"paymentStatus"`
	PaymentMethod   string             `firestore:"paymentMethod,omitempty"`
	PaymentIntentID string             `firestore:"paymentIntentId,omitempty"`
	CouponCode      string             `firestore:"couponCode,omitempty"`
	ShippingAddress *addressDocument   `firestore:"shippingAddress,omitempty"`
	Notes           string             `firestore:"notes,omitempty"`
	Version         int64              `firestore:"version"`
	CreatedAt       time.Time          `firestore:"createdAt"`
	UpdatedAt       time.Time          `firestore:"updatedAt"`
	ShippedAt       *time.Time         `firestore:"shippedAt,omitempty"`
	DeliveredAt     *time.Time         `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time         `firestore:"cancelledAt,omitempty"`
	RefundedAt      *time.Time         `firestore:"refundedAt,omitempty"`
}

type customerDocument struct {
	UserID string `firestore:"userId,omitempty"`
	Name   string `firestore:"name,omitempty"`
	Email  string `firestore:"email,omitempty"`
}

type lineItemDocument struct {
	ProductKind   string `firestore:"productKind"`
	ProductID     string `firestore:"productId,omitempty"`
	Name          string `firestore:"name"`
	Brand         string `firestore:"brand,omitempty"`
	ImageURL      string `firestore:"imageUrl,omitempty"`
	UnitPrice     int64  `firestore:"unitPrice"`
	Quantity      int    `firestore:"quantity"`
	SelectedColor string `firestore:"selectedColor,omitempty"`
	SelectedSize  string `firestore:"selectedSize,omitempty"`
}

type addressDocument struct {
	Line       string `firestore:"line"`
	City       string `firestore:"city"`
	Region     string `firestore:"region"`
	PostalCode string `firestore:"postalCode"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]lineItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = lineItemDocument{
			ProductKind:   string(item.ProductRef.Kind),
			ProductID:     item.ProductRef.ID,
			Name:          item.Name,
			Brand:         item.Brand,
			ImageURL:      item.ImageURL,
			UnitPrice:     item.UnitPrice,
			Quantity:      item.Quantity,
			SelectedColor: item.SelectedColor,
			SelectedSize:  item.SelectedSize,
		}
	}
	doc := orderDocument{
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		Customer: customerDocument{
			UserID: order.Customer.UserID,
			Name:   order.Customer.Name,
			Email:  order.Customer.Email,
		},
		Items:           items,
		Currency:        order.Breakdown.Currency,
		Subtotal:        order.Breakdown.Subtotal,
		Shipping:        order.Breakdown.Shipping,
		Tax:             order.Breakdown.Tax,
		Discount:        order.Breakdown.Discount,
		Total:           order.Breakdown.Total,
		Status:          string(order.Status),
		PaymentStatus:   order.PaymentStatus,
		PaymentMethod:   order.PaymentMethod,
		PaymentIntentID: order.PaymentIntentID,
		CouponCode:      order.CouponCode,
		Notes:           order.Notes,
		Version:         order.Version,
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
		ShippedAt:       utcPtr(order.ShippedAt),
		DeliveredAt:     utcPtr(order.DeliveredAt),
		CancelledAt:     utcPtr(order.CancelledAt),
		RefundedAt:      utcPtr(order.RefundedAt),
	}
	if addr := order.ShippingAddress; addr != nil && !addr.IsZero() {
		doc.ShippingAddress = &addressDocument{
			Line:       addr.Line,
			City:       addr.City,
			Region:     addr.Region,
			PostalCode: addr.PostalCode,
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.LineItem, len(d.Items))
	for i, item := range d.Items {
		ref := domain.UntrackedRef()
		if domain.ProductRefKind(item.ProductKind) == domain.ProductRefCatalog {
			ref = domain.CatalogRef(item.ProductID)
		}
		items[i] = domain.LineItem{
			ProductRef:    ref,
			Name:          item.Name,
			Brand:         item.Brand,
			ImageURL:      item.ImageURL,
			UnitPrice:     item.UnitPrice,
			Quantity:      item.Quantity,
			SelectedColor: item.SelectedColor,
			SelectedSize:  item.SelectedSize,
		}
	}
	order := domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		Customer: domain.Customer{
			UserID: d.Customer.UserID,
			Name:   d.Customer.Name,
			Email:  d.Customer.Email,
		},
		Items: items,
		Breakdown: domain.PriceBreakdown{
			Currency: d.Currency,
			Subtotal: d.Subtotal,
			Shipping: d.Shipping,
			Tax:      d.Tax,
			Discount: d.Discount,
			Total:    d.Total,
		},
		Status:          domain.OrderStatus(d.Status),
		PaymentStatus:   d.PaymentStatus,
		PaymentMethod:   d.PaymentMethod,
		PaymentIntentID: d.PaymentIntentID,
		CouponCode:      d.CouponCode,
		Notes:           d.Notes,
		Version:         d.Version,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
		ShippedAt:       utcPtr(d.ShippedAt),
		DeliveredAt:     utcPtr(d.DeliveredAt),
		CancelledAt:     utcPtr(d.CancelledAt),
		RefundedAt:      utcPtr(d.RefundedAt),
	}
	if d.ShippingAddress != nil {
		order.ShippingAddress = &domain.Address{
			Line:       d.ShippingAddress.Line,
			City:       d.ShippingAddress.City,
			Region:     d.ShippingAddress.Region,
			PostalCode: d.ShippingAddress.PostalCode,
		}
	}
	return order
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}
