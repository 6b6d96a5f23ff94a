package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/platform/httpx"
	"github.com/raistore/storefront/internal/platform/jobs"
	"github.com/raistore/storefront/internal/platform/observability"
	"github.com/raistore/storefront/internal/services"
)

// NotificationHandlers receives Pub/Sub push deliveries of order events and emails customers.
type NotificationHandlers struct {
	orders   services.OrderService
	notifier services.OrderNotifier
}

// NewNotificationHandlers constructs the push endpoint handlers. The /internal group applies OIDC.
func NewNotificationHandlers(orders services.OrderService, notifier services.OrderNotifier) *NotificationHandlers {
	return &NotificationHandlers{
		orders:   orders,
		notifier: notifier,
	}
}

// Routes registers the push endpoint under /internal.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/notifications/order-events", h.handleOrderEvent)
}

// handleOrderEvent acknowledges every well-formed delivery, including ones whose
// email fails: notifications are sent at most once.
func (h *NotificationHandlers) handleOrderEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil || h.notifier == nil {
		serviceUnavailable(ctx, w, "notification")
		return
	}
	logger := observability.FromContext(ctx)

	event, err := jobs.DecodePushRequest(r.Body)
	if err != nil {
		logger.Warn("order event rejected", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_event", err.Error(), http.StatusBadRequest))
		return
	}
	fields := []zap.Field{
		zap.String("eventId", event.EventID),
		zap.String("type", event.Type),
		zap.String("orderId", event.OrderID),
	}

	order, err := h.orders.GetOrder(ctx, event.OrderID)
	if err != nil {
		logger.Warn("order event skipped: order lookup failed", append(fields, zap.Error(err))...)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch event.Type {
	case jobs.EventOrderCreated:
		err = h.notifier.NotifyOrderCreated(ctx, order)
	case jobs.EventOrderStatusChanged:
		previous, _ := domain.ParseOrderStatus(event.PreviousStatus)
		err = h.notifier.NotifyStatusChanged(ctx, order, previous)
	}
	if err != nil {
		logger.Error("order notification failed", append(fields, zap.Error(err))...)
	} else {
		logger.Info("order notification sent", fields...)
	}
	w.WriteHeader(http.StatusNoContent)
}
