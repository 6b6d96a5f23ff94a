package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/payments"
	"github.com/raistore/storefront/internal/repositories"
)

const (
	defaultOrderNumberAttempts = 5
	defaultOrderPageSize       = 20
	maxOrderPageSize           = 100

	auditActionStatusOverride = "order.status.override"
	instrumentationName       = "github.com/raistore/storefront/internal/services"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderInvalidStatus indicates the requested status is not part of the lifecycle.
	ErrOrderInvalidStatus = errors.New("order: invalid status")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderIllegalTransition indicates the lifecycle table does not allow the requested move.
	ErrOrderIllegalTransition = errors.New("order: illegal status transition")
	// ErrOrderConflict indicates a concurrent writer changed the order first.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderAmountMismatch indicates the derived total differs from the quoted or authorised amount.
	ErrOrderAmountMismatch = errors.New("order: amount mismatch")
	// ErrPaymentNotConfirmed indicates the referenced payment has not succeeded.
	ErrPaymentNotConfirmed = errors.New("order: payment not confirmed")
	// ErrPaymentAlreadyUsed indicates the payment intent already backs a different order.
	ErrPaymentAlreadyUsed = errors.New("order: payment already used")
	// ErrOrderNumberExhausted indicates every generated order number collided.
	ErrOrderNumberExhausted = errors.New("order: order number attempts exhausted")
	// ErrOrderReconciliation matches ReconciliationError: the payment was captured but the order was not stored.
	ErrOrderReconciliation = errors.New("order: reconciliation required")
	// ErrOrderUnavailable indicates the order store or payment provider is temporarily unreachable.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

// orderTransitions lists the statuses reachable from each status through SetStatus.
var orderTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusRefunded},
	domain.OrderStatusDelivered:  {domain.OrderStatusRefunded},
	domain.OrderStatusCancelled:  nil,
	domain.OrderStatusRefunded:   nil,
}

// CanTransition reports whether the lifecycle table allows moving from current to target.
func CanTransition(current, target OrderStatus) bool {
	for _, allowed := range orderTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ReconciliationError reports a captured payment whose order could not be persisted.
// Operators must reconcile it manually.
type ReconciliationError struct {
	PaymentIntentID string
	OrderNumber     string
	AmountMinor     int64
	Err             error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("order: payment %s (%d) captured but order %s was not stored: %v", e.PaymentIntentID, e.AmountMinor, e.OrderNumber, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrOrderReconciliation) match.
func (e *ReconciliationError) Is(target error) bool {
	return target == ErrOrderReconciliation
}

// paymentLookup abstracts payments.Manager for easier testing.
type paymentLookup interface {
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// orderNotificationDispatcher hands notifications off without blocking the caller.
type orderNotificationDispatcher interface {
	DispatchOrderCreated(ctx context.Context, order Order)
	DispatchStatusChanged(ctx context.Context, order Order, previous OrderStatus)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders         repositories.OrderRepository
	Pricing        *PricingEngine
	Catalog        CatalogService
	Promotions     PromotionService
	Payments       paymentLookup
	Notifications  orderNotificationDispatcher
	Audit          AuditLogService
	UnitOfWork     repositories.UnitOfWork
	NumberAttempts int
	Clock          func() time.Time
	IDGenerator    func() string
	OrderNumbers   func() (string, error)
	Meter          metric.Meter
	Tracer         trace.Tracer
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders         repositories.OrderRepository
	pricing        *PricingEngine
	catalog        CatalogService
	promotions     PromotionService
	payments       paymentLookup
	notifications  orderNotificationDispatcher
	audit          AuditLogService
	unitOfWork     repositories.UnitOfWork
	numberAttempts int
	clock          func() time.Time
	newID          func() string
	newNumber      func() (string, error)
	metrics        orderMetrics
	tracer         trace.Tracer
	logger         func(context.Context, string, map[string]any)
}

type orderMetrics struct {
	created        metric.Int64Counter
	transitions    metric.Int64Counter
	mismatches     metric.Int64Counter
	reconciliation metric.Int64Counter
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	attempts := deps.NumberAttempts
	if attempts <= 0 {
		attempts = defaultOrderNumberAttempts
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	numbers := deps.OrderNumbers
	if numbers == nil {
		numbers = NewOrderNumber
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	metrics, err := newOrderMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("order service: metrics: %w", err)
	}

	return &orderService{
		orders:         deps.Orders,
		pricing:        deps.Pricing,
		catalog:        deps.Catalog,
		promotions:     deps.Promotions,
		payments:       deps.Payments,
		notifications:  deps.Notifications,
		audit:          deps.Audit,
		unitOfWork:     unit,
		numberAttempts: attempts,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		newNumber: numbers,
		metrics:   metrics,
		tracer:    tracer,
		logger:    logger,
	}, nil
}

func newOrderMetrics(meter metric.Meter) (orderMetrics, error) {
	var (
		m   orderMetrics
		err error
	)
	if m.created, err = meter.Int64Counter("orders.created", metric.WithDescription("Orders persisted")); err != nil {
		return m, err
	}
	if m.transitions, err = meter.Int64Counter("orders.status_transitions", metric.WithDescription("Order status changes")); err != nil {
		return m, err
	}
	if m.mismatches, err = meter.Int64Counter("orders.amount_mismatches", metric.WithDescription("Orders rejected for amount mismatch")); err != nil {
		return m, err
	}
	if m.reconciliation, err = meter.Int64Counter("orders.reconciliation_required", metric.WithDescription("Captured payments without a stored order")); err != nil {
		return m, err
	}
	return m, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (order Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.create")
	defer func() { endSpan(span, err) }()

	customer, err := normalizeCustomer(cmd.Customer)
	if err != nil {
		return Order{}, err
	}

	items, err := repriceItems(ctx, s.catalog, cmd.Items)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}

	breakdown, couponCode, err := s.priceOrder(ctx, items, cmd)
	if err != nil {
		return Order{}, err
	}

	if cmd.QuotedBreakdown != nil && !cmd.QuotedBreakdown.Equal(breakdown) {
		s.metrics.mismatches.Add(ctx, 1, metric.WithAttributes(attribute.String("source", "quote")))
		return Order{}, fmt.Errorf("%w: quoted total %d, derived total %d", ErrOrderAmountMismatch, cmd.QuotedBreakdown.Total, breakdown.Total)
	}

	var confirmation *PaymentConfirmation
	if intentID := strings.TrimSpace(cmd.PaymentIntentID); intentID != "" {
		if existing, found, err := s.orderForIntent(ctx, intentID, customer, items, breakdown); err != nil || found {
			return existing, err
		}
		confirmed, err := s.confirmPayment(ctx, intentID, customer, breakdown, couponCode)
		if err != nil {
			return Order{}, err
		}
		confirmation = &confirmed
	}

	now := s.clock()
	order = Order{
		ID:              s.newID(),
		Customer:        customer,
		Items:           items,
		Breakdown:       breakdown,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   strings.TrimSpace(cmd.PaymentMethod),
		CouponCode:      couponCode,
		ShippingAddress: normalizeAddress(cmd.ShippingAddress),
		Notes:           strings.TrimSpace(cmd.Notes),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if confirmation != nil {
		order.Status = domain.OrderStatusProcessing
		order.PaymentStatus = domain.PaymentStatusPaid
		order.PaymentIntentID = confirmation.IntentID
	}

	if err := s.insertWithUniqueNumber(ctx, &order); err != nil {
		if confirmation == nil {
			return Order{}, err
		}
		if errors.Is(err, repositories.ErrPaymentIntentReserved) {
			// A concurrent request stored an order for this intent first.
			existing, found, lookupErr := s.orderForIntent(ctx, confirmation.IntentID, customer, items, breakdown)
			switch {
			case lookupErr != nil:
				return Order{}, lookupErr
			case found:
				return existing, nil
			default:
				return Order{}, fmt.Errorf("%w: %s", ErrPaymentAlreadyUsed, confirmation.IntentID)
			}
		}
		recErr := &ReconciliationError{
			PaymentIntentID: confirmation.IntentID,
			OrderNumber:     order.OrderNumber,
			AmountMinor:     confirmation.AuthorizedAmountMinor,
			Err:             err,
		}
		s.metrics.reconciliation.Add(ctx, 1)
		s.logger(ctx, "order.reconciliation_required", map[string]any{
			"severity":      "error",
			"paymentIntent": recErr.PaymentIntentID,
			"orderNumber":   recErr.OrderNumber,
			"amount":        recErr.AmountMinor,
			"error":         err.Error(),
		})
		return Order{}, recErr
	}

	span.SetAttributes(attribute.String("order.number", order.OrderNumber), attribute.String("order.status", string(order.Status)))
	s.metrics.created.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(order.Status))))
	s.logger(ctx, "order.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"status":      string(order.Status),
		"total":       order.Breakdown.Total,
	})

	if couponCode != "" && s.promotions != nil {
		if err := s.promotions.RedeemCoupon(ctx, couponCode); err != nil {
			s.logger(ctx, "order.coupon.redeem_failed", map[string]any{
				"orderId": order.ID,
				"coupon":  couponCode,
				"error":   err.Error(),
			})
		}
	}

	if s.notifications != nil {
		s.notifications.DispatchOrderCreated(ctx, order)
	}
	return order, nil
}

// priceOrder derives the breakdown. The only discount source is a resolved coupon;
// a client supplied discount is accepted only as part of the quote.
func (s *orderService) priceOrder(ctx context.Context, items []LineItem, cmd CreateOrderCommand) (PriceBreakdown, string, error) {
	code := strings.ToUpper(strings.TrimSpace(cmd.CouponCode))
	if code == "" {
		if cmd.Discount != 0 {
			return PriceBreakdown{}, "", fmt.Errorf("%w: a discount requires a coupon code", ErrOrderInvalidInput)
		}
		breakdown, err := s.pricing.ComputeBreakdown(items, 0)
		return breakdown, "", err
	}
	if s.promotions == nil {
		return PriceBreakdown{}, "", fmt.Errorf("%w: coupons are not configured", ErrOrderUnavailable)
	}

	base, err := s.pricing.ComputeBreakdown(items, 0)
	if err != nil {
		return PriceBreakdown{}, "", err
	}
	resolution, err := s.promotions.ResolveCoupon(ctx, code, base.Subtotal)
	if err != nil {
		if errors.Is(err, ErrPromotionUnavailable) {
			return PriceBreakdown{}, "", fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
		return PriceBreakdown{}, "", fmt.Errorf("%w: coupon: %v", ErrOrderInvalidInput, err)
	}
	breakdown, err := s.pricing.ComputeBreakdown(items, resolution.Discount)
	return breakdown, resolution.Coupon.Code, err
}

// orderForIntent returns the order already stored for intentID. A replay of the same
// customer and cart gets that order back; anything else fails with ErrPaymentAlreadyUsed.
func (s *orderService) orderForIntent(ctx context.Context, intentID string, customer Customer, items []LineItem, breakdown PriceBreakdown) (Order, bool, error) {
	existing, err := s.orders.FindByPaymentIntent(ctx, intentID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Order{}, false, nil
		}
		return Order{}, false, s.mapRepositoryError(err)
	}
	if !sameOrderContents(existing, customer, items, breakdown) {
		s.logger(ctx, "order.payment_reused", map[string]any{
			"severity":      "warn",
			"paymentIntent": intentID,
			"orderId":       existing.ID,
		})
		return Order{}, true, fmt.Errorf("%w: intent %s backs order %s", ErrPaymentAlreadyUsed, intentID, existing.OrderNumber)
	}
	return existing, true, nil
}

func sameOrderContents(order Order, customer Customer, items []LineItem, breakdown PriceBreakdown) bool {
	if order.Customer.UserID != customer.UserID || !strings.EqualFold(order.Customer.Email, customer.Email) {
		return false
	}
	if !order.Breakdown.Equal(breakdown) || len(order.Items) != len(items) {
		return false
	}
	for i, item := range items {
		stored := order.Items[i]
		sameRef := stored.ProductRef.Kind == item.ProductRef.Kind &&
			(!item.ProductRef.IsCatalog() || stored.ProductRef.ID == item.ProductRef.ID)
		if !sameRef || stored.UnitPrice != item.UnitPrice || stored.Quantity != item.Quantity ||
			stored.SelectedColor != item.SelectedColor || stored.SelectedSize != item.SelectedSize {
			return false
		}
	}
	return true
}

// confirmPayment looks the intent up with the provider and checks the captured amount
// and the cart recorded on the intent at checkout.
func (s *orderService) confirmPayment(ctx context.Context, intentID string, customer Customer, breakdown PriceBreakdown, couponCode string) (PaymentConfirmation, error) {
	if s.payments == nil {
		return PaymentConfirmation{}, fmt.Errorf("%w: payment provider not configured", ErrOrderUnavailable)
	}
	details, err := s.payments.LookupPayment(ctx, payments.PaymentContext{Currency: breakdown.Currency}, payments.LookupRequest{IntentID: intentID})
	if err != nil {
		if errors.Is(err, payments.ErrIntentNotFound) {
			return PaymentConfirmation{}, fmt.Errorf("%w: %s", ErrPaymentNotConfirmed, intentID)
		}
		return PaymentConfirmation{}, fmt.Errorf("%w: payment lookup: %v", ErrOrderUnavailable, err)
	}

	confirmation := PaymentConfirmation{
		IntentID:              details.IntentID,
		Succeeded:             details.Succeeded(),
		AuthorizedAmountMinor: details.AmountReceived,
		Currency:              strings.ToUpper(details.Currency),
	}
	if confirmation.IntentID == "" {
		confirmation.IntentID = intentID
	}
	if !confirmation.Succeeded {
		return PaymentConfirmation{}, fmt.Errorf("%w: intent %s is %s", ErrPaymentNotConfirmed, intentID, details.Status)
	}
	if err := verifyAuthorizedAmount(breakdown, confirmation); err != nil {
		s.metrics.mismatches.Add(ctx, 1, metric.WithAttributes(attribute.String("source", "payment")))
		s.logger(ctx, "order.amount_mismatch", map[string]any{
			"paymentIntent": intentID,
			"authorized":    confirmation.AuthorizedAmountMinor,
			"derived":       breakdown.Total,
		})
		return PaymentConfirmation{}, err
	}
	if err := verifyIntentCart(details.Metadata, customer.UserID, breakdown, couponCode); err != nil {
		s.metrics.mismatches.Add(ctx, 1, metric.WithAttributes(attribute.String("source", "intent")))
		s.logger(ctx, "order.intent_mismatch", map[string]any{
			"paymentIntent": intentID,
			"error":         err.Error(),
		})
		return PaymentConfirmation{}, err
	}
	return confirmation, nil
}

// verifyIntentCart compares the cart facts checkout stored on the intent with the
// order being placed. Intents created elsewhere carry no subtotal and are refused.
func verifyIntentCart(meta map[string]string, userID string, breakdown PriceBreakdown, couponCode string) error {
	subtotal, ok := meta[intentMetaSubtotal]
	if !ok {
		return fmt.Errorf("%w: intent was not created by checkout", ErrOrderAmountMismatch)
	}
	if subtotal != strconv.FormatInt(breakdown.Subtotal, 10) {
		return fmt.Errorf("%w: intent subtotal %s, derived subtotal %d", ErrOrderAmountMismatch, subtotal, breakdown.Subtotal)
	}
	if paid := meta[intentMetaCouponCode]; !strings.EqualFold(paid, couponCode) {
		return fmt.Errorf("%w: intent coupon %q, order coupon %q", ErrOrderAmountMismatch, paid, couponCode)
	}
	if owner := meta[intentMetaUserID]; owner != "" && owner != userID {
		return fmt.Errorf("%w: intent belongs to another customer", ErrPaymentAlreadyUsed)
	}
	return nil
}

// verifyAuthorizedAmount requires an exact minor unit match in the same currency.
func verifyAuthorizedAmount(breakdown PriceBreakdown, confirmation PaymentConfirmation) error {
	if confirmation.Currency != "" && breakdown.Currency != "" && !strings.EqualFold(confirmation.Currency, breakdown.Currency) {
		return fmt.Errorf("%w: currency %s, expected %s", ErrOrderAmountMismatch, confirmation.Currency, breakdown.Currency)
	}
	if confirmation.AuthorizedAmountMinor != breakdown.Total {
		return fmt.Errorf("%w: authorized %d, expected %d", ErrOrderAmountMismatch, confirmation.AuthorizedAmountMinor, breakdown.Total)
	}
	return nil
}

// insertWithUniqueNumber generates order numbers until the repository accepts one.
func (s *orderService) insertWithUniqueNumber(ctx context.Context, order *Order) error {
	for attempt := 1; attempt <= s.numberAttempts; attempt++ {
		number, err := s.newNumber()
		if err != nil {
			return err
		}
		order.OrderNumber = number

		err = s.runInTx(ctx, func(txCtx context.Context) error {
			return s.orders.Insert(txCtx, *order)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, repositories.ErrPaymentIntentReserved) {
			return err
		}
		if !isRepositoryConflict(err) {
			return s.mapRepositoryError(err)
		}
		s.logger(ctx, "order.number.collision", map[string]any{
			"orderNumber": number,
			"attempt":     attempt,
		})
	}
	return fmt.Errorf("%w: %d attempts", ErrOrderNumberExhausted, s.numberAttempts)
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = defaultOrderPageSize
	}
	if size > maxOrderPageSize {
		size = maxOrderPageSize
	}
	for _, status := range filter.Status {
		if _, ok := domain.ParseOrderStatus(string(status)); !ok {
			return domain.Page[Order]{}, fmt.Errorf("%w: %q", ErrOrderInvalidStatus, status)
		}
	}

	result, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     strings.TrimSpace(filter.UserID),
		Status:     filter.Status,
		Pagination: domain.Pagination{Page: page, PageSize: size},
	})
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return result, nil
}

func (s *orderService) SetStatus(ctx context.Context, cmd SetOrderStatusCommand) (order Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.set_status")
	defer func() { endSpan(span, err) }()

	orderID, target, err := parseStatusCommand(cmd.OrderID, cmd.Status)
	if err != nil {
		return Order{}, err
	}
	actor := strings.TrimSpace(cmd.ActorID)

	var (
		previous OrderStatus
		changed  bool
	)
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		previous = current.Status
		if current.Status == target {
			order, changed = current, false
			return nil
		}
		if !CanTransition(current.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrOrderIllegalTransition, current.Status, target)
		}
		order = s.applyStatus(current, target)
		changed = true
		if err := s.orders.UpdateStatus(txCtx, order, previous); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if changed {
		s.afterStatusChange(ctx, order, previous, actor, false)
	}
	return order, nil
}

func (s *orderService) OverrideStatus(ctx context.Context, cmd OverrideOrderStatusCommand) (order Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.override_status")
	defer func() { endSpan(span, err) }()

	orderID, target, err := parseStatusCommand(cmd.OrderID, cmd.Status)
	if err != nil {
		return Order{}, err
	}
	actor := strings.TrimSpace(cmd.ActorID)
	reason := strings.TrimSpace(cmd.Reason)
	if actor == "" {
		return Order{}, fmt.Errorf("%w: actor is required for an override", ErrOrderInvalidInput)
	}
	if reason == "" {
		return Order{}, fmt.Errorf("%w: reason is required for an override", ErrOrderInvalidInput)
	}
	if s.audit == nil {
		return Order{}, fmt.Errorf("%w: audit log not configured", ErrOrderUnavailable)
	}

	var (
		previous OrderStatus
		changed  bool
	)
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		previous = current.Status
		if current.Status == target {
			order, changed = current, false
			return nil
		}
		order = s.applyStatus(current, target)
		changed = true
		if err := s.orders.UpdateStatus(txCtx, order, previous); err != nil {
			return s.mapRepositoryError(err)
		}
		return s.audit.Record(txCtx, AuditLogRecord{
			Actor:     actor,
			ActorType: "admin",
			Action:    auditActionStatusOverride,
			TargetRef: "orders/" + order.ID,
			Reason:    reason,
			RequestID: cmd.RequestID,
			Diff: map[string]AuditLogDiff{
				"status": {Before: string(previous), After: string(target)},
			},
			Metadata: map[string]any{
				"orderNumber":   order.OrderNumber,
				"allowedByFlow": CanTransition(previous, target),
			},
		})
	})
	if err != nil {
		return Order{}, err
	}
	if changed {
		s.afterStatusChange(ctx, order, previous, actor, true)
	}
	return order, nil
}

// applyStatus returns a copy of order moved to target with its status timestamp stamped.
func (s *orderService) applyStatus(order Order, target OrderStatus) Order {
	now := s.clock()
	order.Status = target
	order.UpdatedAt = now
	order.Version++
	switch target {
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
	case domain.OrderStatusRefunded:
		order.RefundedAt = &now
	}
	return order
}

// afterStatusChange records the transition and dispatches a notification for every status but pending.
func (s *orderService) afterStatusChange(ctx context.Context, order Order, previous OrderStatus, actor string, override bool) {
	s.metrics.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(previous)),
		attribute.String("to", string(order.Status)),
		attribute.Bool("override", override),
	))
	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId":  order.ID,
		"from":     string(previous),
		"to":       string(order.Status),
		"actor":    actor,
		"override": override,
	})
	if order.Status == domain.OrderStatusPending || s.notifications == nil {
		return
	}
	s.notifications.DispatchStatusChanged(ctx, order, previous)
}

func parseStatusCommand(orderID, status string) (string, OrderStatus, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", "", fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ParseOrderStatus(status)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrOrderInvalidStatus, status)
	}
	return orderID, target, nil
}

func normalizeCustomer(c Customer) (Customer, error) {
	c.UserID = strings.TrimSpace(c.UserID)
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	if c.Email != "" {
		addr, err := mail.ParseAddress(c.Email)
		if err != nil {
			return Customer{}, fmt.Errorf("%w: customer email is invalid", ErrOrderInvalidInput)
		}
		c.Email = strings.ToLower(addr.Address)
	}
	return c, nil
}

func normalizeAddress(addr *Address) *Address {
	if addr == nil || addr.IsZero() {
		return nil
	}
	return &Address{
		Line:       strings.TrimSpace(addr.Line),
		City:       strings.TrimSpace(addr.City),
		Region:     strings.TrimSpace(addr.Region),
		PostalCode: strings.TrimSpace(addr.PostalCode),
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func isRepositoryConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
