package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/platform/auth"
	"github.com/raistore/storefront/internal/platform/httpx"
	"github.com/raistore/storefront/internal/platform/pagination"
	"github.com/raistore/storefront/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100

	reconciliationMessage = "your payment was received but the order could not be recorded; please contact support with your payment reference"
)

var orderPageOptions = pagination.Options{DefaultLimit: defaultOrderPageSize, MaxLimit: maxOrderPageSize}

// OrderHandlers exposes order placement and the customer's order history.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency wraps order creation with the idempotency middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	create := r
	if h.authn != nil {
		create = create.With(h.authn.OptionalFirebaseAuth())
	}
	if h.idempotency != nil {
		create = create.With(h.idempotency)
	}
	create.Post("/", h.createOrder)

	mine := r
	if h.authn != nil {
		mine = mine.With(h.authn.RequireFirebaseAuth())
	}
	mine.Get("/me", h.listMyOrders)
}

type customerPayload struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type createOrderRequest struct {
	Customer        *customerPayload  `json:"customer"`
	Items           []lineItemPayload `json:"items"`
	CouponCode      string            `json:"couponCode"`
	Discount        *decimal.Decimal  `json:"discount"`
	Subtotal        *decimal.Decimal  `json:"subtotal"`
	Shipping        *decimal.Decimal  `json:"shipping"`
	Tax             *decimal.Decimal  `json:"tax"`
	Total           *decimal.Decimal  `json:"total"`
	PaymentIntentID string            `json:"paymentIntentId"`
	PaymentMethod   string            `json:"paymentMethod"`
	ShippingAddress *addressPayload   `json:"shippingAddress"`
	Notes           string            `json:"notes"`
}

// quote returns the client's displayed totals when it sent a complete set.
func (req createOrderRequest) quote() (*domain.PriceBreakdown, error) {
	if req.Subtotal == nil || req.Shipping == nil || req.Tax == nil || req.Total == nil {
		return nil, nil
	}
	var (
		quote domain.PriceBreakdown
		err   error
	)
	fields := []struct {
		name   string
		amount *decimal.Decimal
		dst    *int64
	}{
		{"subtotal", req.Subtotal, &quote.Subtotal},
		{"shipping", req.Shipping, &quote.Shipping},
		{"tax", req.Tax, &quote.Tax},
		{"total", req.Total, &quote.Total},
		{"discount", req.Discount, &quote.Discount},
	}
	for _, f := range fields {
		if f.amount == nil {
			continue
		}
		if *f.dst, err = minorUnitsOf(f.name, *f.amount); err != nil {
			return nil, err
		}
	}
	return &quote, nil
}

type orderPayload struct {
	ID              string            `json:"id"`
	OrderNumber     string            `json:"orderNumber"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"paymentStatus"`
	PaymentMethod   string            `json:"paymentMethod,omitempty"`
	PaymentIntentID string            `json:"paymentIntentId,omitempty"`
	CouponCode      string            `json:"couponCode,omitempty"`
	Customer        customerPayload   `json:"customer"`
	Items           []lineItemPayload `json:"items"`
	breakdownPayload
	ShippingAddress *addressPayload `json:"shippingAddress,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       string          `json:"createdAt"`
	UpdatedAt       string          `json:"updatedAt,omitempty"`
	ShippedAt       string          `json:"shippedAt,omitempty"`
	DeliveredAt     string          `json:"deliveredAt,omitempty"`
	CancelledAt     string          `json:"cancelledAt,omitempty"`
	RefundedAt      string          `json:"refundedAt,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Orders []orderPayload `json:"orders"`
	Total  int            `json:"total"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}

	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	items, err := lineItemsFromPayload(req.Items)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	quote, err := req.quote()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var customer domain.Customer
	if req.Customer != nil {
		customer.Name = req.Customer.Name
		customer.Email = req.Customer.Email
	}
	actorID := "guest"
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && strings.TrimSpace(identity.UID) != "" {
		customer.UserID = identity.UID
		actorID = identity.UID
		if strings.TrimSpace(customer.Name) == "" {
			customer.Name = identity.Name
		}
		if strings.TrimSpace(customer.Email) == "" {
			customer.Email = identity.Email
		}
	}

	cmd := services.CreateOrderCommand{
		Customer:        customer,
		Items:           items,
		CouponCode:      req.CouponCode,
		QuotedBreakdown: quote,
		PaymentIntentID: req.PaymentIntentID,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: addressFromPayload(req.ShippingAddress),
		Notes:           req.Notes,
		ActorID:         actorID,
	}
	if req.Discount != nil {
		if cmd.Discount, err = minorUnitsOf("discount", *req.Discount); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	params, err := pagination.FromRequest(r, orderPageOptions)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		UserID:   identity.UID,
		Page:     params.Page,
		PageSize: params.Limit,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderList(page))
}

func buildOrderList(page domain.Page[domain.Order]) orderListResponse {
	orders := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		orders = append(orders, buildOrderPayload(order))
	}
	return orderListResponse{Orders: orders, Total: page.Total}
}

func buildOrderPayload(order domain.Order) orderPayload {
	return orderPayload{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          string(order.Status),
		PaymentStatus:   order.PaymentStatus,
		PaymentMethod:   order.PaymentMethod,
		PaymentIntentID: order.PaymentIntentID,
		CouponCode:      order.CouponCode,
		Customer: customerPayload{
			UserID: order.Customer.UserID,
			Name:   order.Customer.Name,
			Email:  order.Customer.Email,
		},
		Items:            lineItemPayloads(order.Items),
		breakdownPayload: breakdownPayloadOf(order.Breakdown),
		ShippingAddress:  addressPayloadOf(order.ShippingAddress),
		Notes:            order.Notes,
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
		ShippedAt:        formatTimePtr(order.ShippedAt),
		DeliveredAt:      formatTimePtr(order.DeliveredAt),
		CancelledAt:      formatTimePtr(order.CancelledAt),
		RefundedAt:       formatTimePtr(order.RefundedAt),
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var recErr *services.ReconciliationError
	if errors.As(err, &recErr) {
		httpx.WriteError(ctx, w, httpx.NewError("reconciliation_required", reconciliationMessage, http.StatusBadGateway).
			WithDetails(map[string]any{"paymentIntentId": recErr.PaymentIntentID}))
		return
	}

	switch {
	case errors.Is(err, services.ErrPricingEmptyCart),
		errors.Is(err, services.ErrPricingInvalidLineItem),
		errors.Is(err, services.ErrPricingInvalidDiscount),
		errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrOrderInvalidStatus):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderAmountMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("amount_mismatch", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentNotConfirmed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_confirmed", err.Error(), http.StatusPaymentRequired))
	case errors.Is(err, services.ErrPaymentAlreadyUsed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_already_used", "payment is already attached to another order", http.StatusConflict))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderIllegalTransition):
		httpx.WriteError(ctx, w, httpx.NewError("illegal_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderNumberExhausted),
		errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
