package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/raistore/storefront/internal/platform/auth"
	"github.com/raistore/storefront/internal/platform/httpx"
	"github.com/raistore/storefront/internal/services"
)

// WishlistHandlers serves the signed-in customer's saved products under /me/wishlist.
type WishlistHandlers struct {
	authn     *auth.Authenticator
	wishlists services.WishlistService
}

// NewWishlistHandlers constructs wishlist handlers.
func NewWishlistHandlers(authn *auth.Authenticator, wishlists services.WishlistService) *WishlistHandlers {
	return &WishlistHandlers{authn: authn, wishlists: wishlists}
}

// Routes registers the wishlist endpoints.
func (h *WishlistHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/me/wishlist", func(group chi.Router) {
		if h.authn != nil {
			group.Use(h.authn.RequireFirebaseAuth())
		}
		group.Get("/", h.listWishlist)
		group.Post("/", h.addToWishlist)
		group.Delete("/{productID}", h.removeFromWishlist)
	})
}

type wishlistItemPayload struct {
	ProductID string          `json:"productId"`
	AddedAt   string          `json:"addedAt,omitempty"`
	Product   *productPayload `json:"product,omitempty"`
}

type wishlistResponse struct {
	Items []wishlistItemPayload `json:"items"`
}

type wishlistAddRequest struct {
	ProductID string `json:"productId"`
}

type wishlistItemResponse struct {
	Item wishlistItemPayload `json:"item"`
}

func (h *WishlistHandlers) listWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlists == nil {
		serviceUnavailable(ctx, w, "wishlist")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	items, err := h.wishlists.ListWishlist(ctx, identity.UID)
	if err != nil {
		writeWishlistError(ctx, w, err)
		return
	}
	payload := make([]wishlistItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, buildWishlistItemPayload(item))
	}
	httpx.WriteJSON(w, http.StatusOK, wishlistResponse{Items: payload})
}

func (h *WishlistHandlers) addToWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlists == nil {
		serviceUnavailable(ctx, w, "wishlist")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req wishlistAddRequest
	if !decodeBody(w, r, &req) {
		return
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}

	item, created, err := h.wishlists.AddToWishlist(ctx, identity.UID, productID)
	if err != nil {
		writeWishlistError(ctx, w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, status, wishlistItemResponse{Item: buildWishlistItemPayload(item)})
}

func (h *WishlistHandlers) removeFromWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlists == nil {
		serviceUnavailable(ctx, w, "wishlist")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	if err := h.wishlists.RemoveFromWishlist(ctx, identity.UID, productID); err != nil {
		writeWishlistError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildWishlistItemPayload(item services.WishlistItem) wishlistItemPayload {
	payload := wishlistItemPayload{
		ProductID: item.ProductID,
		AddedAt:   formatTime(item.AddedAt),
	}
	if item.Product != nil {
		product := buildProductPayload(*item.Product)
		payload.Product = &product
	}
	return payload
}

func writeWishlistError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrWishlistInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrWishlistProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrWishlistLimitExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_limit", "wishlist limit reached", http.StatusConflict))
	case errors.Is(err, services.ErrWishlistUnavailable):
		serviceUnavailable(ctx, w, "wishlist")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_error", "failed to process wishlist request", http.StatusInternalServerError))
	}
}
