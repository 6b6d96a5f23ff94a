package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/platform/auth"
	"github.com/raistore/storefront/internal/platform/httpx"
	"github.com/raistore/storefront/internal/platform/pagination"
	"github.com/raistore/storefront/internal/services"
)

// AdminOrderHandlers exposes back-office order management.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
	audit  services.AuditLogService
}

// AdminOrderHandlersOption customises AdminOrderHandlers.
type AdminOrderHandlersOption func(*AdminOrderHandlers)

// WithOrderAuditTrail exposes the audit entries recorded against each order.
func WithOrderAuditTrail(audit services.AuditLogService) AdminOrderHandlersOption {
	return func(h *AdminOrderHandlers) {
		h.audit = audit
	}
}

// NewAdminOrderHandlers constructs admin order handlers guarded by staff roles.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...AdminOrderHandlersOption) *AdminOrderHandlers {
	h := &AdminOrderHandlers{
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

// Routes registers order endpoints under /admin.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	group.Get("/orders", h.listOrders)
	group.Get("/orders/{orderID}", h.getOrder)
	group.Put("/orders/{orderID}/status", h.setStatus)
	group.Post("/orders/{orderID}/status:override", h.overrideStatus)
	group.Get("/orders/{orderID}/audit", h.listAudit)
}

type setOrderStatusRequest struct {
	Status string `json:"status"`
}

type overrideOrderStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	if _, ok := requireRole(ctx, w, auth.RoleStaff, auth.RoleAdmin); !ok {
		return
	}

	params, err := pagination.FromRequest(r, orderPageOptions)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var statuses []domain.OrderStatus
	for _, raw := range pagination.ListValues(r.URL.Query()["status"]) {
		if strings.EqualFold(raw, "all") {
			statuses = nil
			break
		}
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return
		}
		statuses = append(statuses, status)
	}

	page, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		Status:   statuses,
		Page:     params.Page,
		PageSize: params.Limit,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderList(page))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	if _, ok := requireRole(ctx, w, auth.RoleStaff, auth.RoleAdmin); !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) setStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireRole(ctx, w, auth.RoleStaff, auth.RoleAdmin)
	if !ok {
		return
	}

	var req setOrderStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.orders.SetStatus(ctx, services.SetOrderStatusCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Status:  req.Status,
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) overrideStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireRole(ctx, w, auth.RoleAdmin)
	if !ok {
		return
	}

	var req overrideOrderStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "reason is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.OverrideStatus(ctx, services.OverrideOrderStatusCommand{
		OrderID:   strings.TrimSpace(chi.URLParam(r, "orderID")),
		Status:    req.Status,
		ActorID:   identity.UID,
		Reason:    req.Reason,
		RequestID: middleware.GetReqID(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type auditEntryPayload struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	ActorType string         `json:"actorType"`
	Action    string         `json:"action"`
	Reason    string         `json:"reason,omitempty"`
	Diff      map[string]any `json:"diff,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	CreatedAt string         `json:"createdAt"`
}

type auditListResponse struct {
	OrderID string              `json:"orderId"`
	Entries []auditEntryPayload `json:"entries"`
}

// listAudit returns the newest privileged actions recorded against an order. Admin only since
// entries name the acting staff member.
func (h *AdminOrderHandlers) listAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil || h.audit == nil {
		serviceUnavailable(ctx, w, "audit")
		return
	}
	if _, ok := requireRole(ctx, w, auth.RoleAdmin); !ok {
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = n
	}

	order, err := h.orders.GetOrder(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	entries, err := h.audit.ListByTarget(ctx, "orders/"+order.ID, limit)
	if err != nil {
		if errors.Is(err, services.ErrAuditInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("audit_unavailable", "audit trail unavailable", http.StatusServiceUnavailable))
		return
	}

	resp := auditListResponse{OrderID: order.ID, Entries: make([]auditEntryPayload, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, auditEntryPayload{
			ID:        entry.ID,
			Actor:     entry.Actor,
			ActorType: entry.ActorType,
			Action:    entry.Action,
			Reason:    entry.Reason,
			Diff:      entry.Diff,
			Metadata:  entry.Metadata,
			RequestID: entry.RequestID,
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
