package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/platform/auth"
	"github.com/raistore/storefront/internal/platform/httpx"
	"github.com/raistore/storefront/internal/services"
)

// InventoryHandlers exposes per-variant stock maintenance to staff.
type InventoryHandlers struct {
	authn     *auth.Authenticator
	inventory services.InventoryService
}

// NewInventoryHandlers constructs inventory handlers.
func NewInventoryHandlers(authn *auth.Authenticator, inventory services.InventoryService) *InventoryHandlers {
	return &InventoryHandlers{
		authn:     authn,
		inventory: inventory,
	}
}

// Routes registers inventory endpoints under /admin.
func (h *InventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	group.Get("/inventory", h.listInventory)
	group.Put("/inventory", h.upsertInventory)
}

type inventoryPayload struct {
	ID                string `json:"id"`
	ProductID         string `json:"productId"`
	SKU               string `json:"sku,omitempty"`
	Color             string `json:"color,omitempty"`
	Size              string `json:"size,omitempty"`
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"lowStockThreshold"`
	LowStock          bool   `json:"lowStock"`
	UpdatedAt         string `json:"updatedAt,omitempty"`
}

type inventoryRequest struct {
	ProductID         string `json:"productId"`
	SKU               string `json:"sku"`
	Color             string `json:"color"`
	Size              string `json:"size"`
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"lowStockThreshold"`
}

func (h *InventoryHandlers) listInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		serviceUnavailable(ctx, w, "inventory")
		return
	}
	if _, ok := requireRole(ctx, w, auth.RoleStaff, auth.RoleAdmin); !ok {
		return
	}
	records, err := h.inventory.ListInventory(ctx, strings.TrimSpace(r.URL.Query().Get("productId")))
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}
	items := make([]inventoryPayload, 0, len(records))
	for _, record := range records {
		items = append(items, buildInventoryPayload(record))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"inventory": items})
}

func (h *InventoryHandlers) upsertInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		serviceUnavailable(ctx, w, "inventory")
		return
	}
	if _, ok := requireRole(ctx, w, auth.RoleStaff, auth.RoleAdmin); !ok {
		return
	}
	var req inventoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	record, err := h.inventory.UpsertInventory(ctx, services.UpsertInventoryCommand{
		ProductID:         req.ProductID,
		SKU:               req.SKU,
		Color:             req.Color,
		Size:              req.Size,
		Quantity:          req.Quantity,
		LowStockThreshold: req.LowStockThreshold,
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"inventory": buildInventoryPayload(record)})
}

func buildInventoryPayload(record domain.InventoryRecord) inventoryPayload {
	return inventoryPayload{
		ID:                record.ID,
		ProductID:         record.ProductID,
		SKU:               record.SKU,
		Color:             record.Color,
		Size:              record.Size,
		Quantity:          record.Quantity,
		LowStockThreshold: record.LowStockThreshold,
		LowStock:          record.IsLowStock(),
		UpdatedAt:         formatTime(record.UpdatedAt),
	}
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInventoryUnavailable):
		serviceUnavailable(ctx, w, "inventory")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to process inventory request", http.StatusInternalServerError))
	}
}
