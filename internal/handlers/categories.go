package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/platform/auth"
	"github.com/raistore/storefront/internal/platform/httpx"
	"github.com/raistore/storefront/internal/services"
)

func (h *CatalogHandlers) categoryAdminRoutes(r chi.Router) {
	r.Get("/categories", h.listAllCategories)
	r.Post("/categories", h.upsertCategory)
	r.Put("/categories/{categoryID}", h.upsertCategory)
	r.Delete("/categories/{categoryID}", h.deactivateCategory)
}

type categoryPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Icon         string `json:"icon,omitempty"`
	Image        string `json:"image,omitempty"`
	Description  string `json:"description,omitempty"`
	DisplayOrder int    `json:"displayOrder"`
	IsActive     bool   `json:"isActive"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

type categoryRequest struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Icon         string `json:"icon"`
	Image        string `json:"image"`
	Description  string `json:"description"`
	DisplayOrder int    `json:"displayOrder"`
	IsActive     *bool  `json:"isActive"`
}

type categoryResponse struct {
	Category categoryPayload `json:"category"`
}

type categoryListResponse struct {
	Categories []categoryPayload `json:"categories"`
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	h.writeCategoryList(w, r, false)
}

func (h *CatalogHandlers) listAllCategories(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(r.Context(), w, auth.RoleStaff, auth.RoleAdmin); !ok {
		return
	}
	h.writeCategoryList(w, r, true)
}

func (h *CatalogHandlers) writeCategoryList(w http.ResponseWriter, r *http.Request, includeInactive bool) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	categories, err := h.catalog.ListCategories(ctx, includeInactive)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	payload := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		payload = append(payload, buildCategoryPayload(category))
	}
	httpx.WriteJSON(w, http.StatusOK, categoryListResponse{Categories: payload})
}

func (h *CatalogHandlers) upsertCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	if _, ok := requireRole(ctx, w, auth.RoleStaff, auth.RoleAdmin); !ok {
		return
	}

	var req categoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	category := domain.Category{
		ID:           strings.TrimSpace(chi.URLParam(r, "categoryID")),
		Name:         req.Name,
		Slug:         req.Slug,
		Icon:         req.Icon,
		ImageURL:     req.Image,
		Description:  req.Description,
		DisplayOrder: req.DisplayOrder,
		IsActive:     true,
	}
	if req.IsActive != nil {
		category.IsActive = *req.IsActive
	}

	status := http.StatusOK
	if category.ID == "" {
		status = http.StatusCreated
	}
	saved, err := h.catalog.UpsertCategory(ctx, services.UpsertCategoryCommand{Category: category})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, status, categoryResponse{Category: buildCategoryPayload(saved)})
}

func (h *CatalogHandlers) deactivateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	identity, ok := requireRole(ctx, w, auth.RoleAdmin)
	if !ok {
		return
	}
	category, err := h.catalog.DeactivateCategory(ctx, services.DeactivateCategoryCommand{
		CategoryID: strings.TrimSpace(chi.URLParam(r, "categoryID")),
		ActorID:    identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, categoryResponse{Category: buildCategoryPayload(category)})
}

func buildCategoryPayload(category domain.Category) categoryPayload {
	return categoryPayload{
		ID:           category.ID,
		Name:         category.Name,
		Slug:         category.Slug,
		Icon:         category.Icon,
		Image:        category.ImageURL,
		Description:  category.Description,
		DisplayOrder: category.DisplayOrder,
		IsActive:     category.IsActive,
		CreatedAt:    formatTime(category.CreatedAt),
		UpdatedAt:    formatTime(category.UpdatedAt),
	}
}
