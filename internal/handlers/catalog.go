package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/platform/auth"
	"github.com/raistore/storefront/internal/platform/httpx"
	"github.com/raistore/storefront/internal/platform/pagination"
	"github.com/raistore/storefront/internal/services"
)

var productPageOptions = pagination.Options{DefaultLimit: 20, MaxLimit: 100}

// CatalogHandlers serves product and category lookups plus admin catalog maintenance.
type CatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// Routes registers public product and category endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/slug/{slug}", h.getProductBySlug)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/categories", h.listCategories)
}

// AdminRoutes registers catalog maintenance under /admin.
func (h *CatalogHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	group.Get("/products", h.listAllProducts)
	group.Post("/products", h.upsertProduct)
	group.Put("/products/{productID}", h.upsertProduct)
	group.Delete("/products/{productID}", h.deleteProduct)
	h.categoryAdminRoutes(group)
}

type productPayload struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Slug          string           `json:"slug,omitempty"`
	Brand         string           `json:"brand,omitempty"`
	Description   string           `json:"description,omitempty"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
	CategoryID    string           `json:"categoryId,omitempty"`
	Subcategory   string           `json:"subcategory,omitempty"`
	Images        []string         `json:"images,omitempty"`
	Colors        []string         `json:"colors,omitempty"`
	Sizes         []string         `json:"sizes,omitempty"`
	Features      []string         `json:"features,omitempty"`
	Badge         string           `json:"badge,omitempty"`
	Rating        float64          `json:"rating"`
	ReviewCount   int              `json:"reviewCount"`
	IsFeatured    bool             `json:"isFeatured"`
	IsActive      bool             `json:"isActive"`
	CreatedAt     string           `json:"createdAt,omitempty"`
	UpdatedAt     string           `json:"updatedAt,omitempty"`
}

type productRequest struct {
	Name          string           `json:"name"`
	Slug          string           `json:"slug"`
	Brand         string           `json:"brand"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice"`
	CategoryID    string           `json:"categoryId"`
	Subcategory   string           `json:"subcategory"`
	Images        []string         `json:"images"`
	Colors        []string         `json:"colors"`
	Sizes         []string         `json:"sizes"`
	Features      []string         `json:"features"`
	Badge         string           `json:"badge"`
	Rating        float64          `json:"rating"`
	ReviewCount   int              `json:"reviewCount"`
	IsFeatured    bool             `json:"isFeatured"`
	IsActive      *bool            `json:"isActive"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productListResponse struct {
	Products []productPayload `json:"products"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Pages    int              `json:"pages"`
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	h.writeProductList(w, r, false)
}

func (h *CatalogHandlers) listAllProducts(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(r.Context(), w, auth.RoleStaff, auth.RoleAdmin); !ok {
		return
	}
	includeInactive, err := parseBoolQuery(r, "includeInactive")
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	h.writeProductList(w, r, includeInactive)
}

func (h *CatalogHandlers) writeProductList(w http.ResponseWriter, r *http.Request, includeInactive bool) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	params, err := pagination.FromRequest(r, productPageOptions)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	featured, err := parseBoolQuery(r, "featured")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	page, err := h.catalog.ListProducts(ctx, services.ProductFilter{
		Category:        query.Get("category"),
		FeaturedOnly:    featured,
		Badge:           query.Get("badge"),
		Search:          query.Get("search"),
		IncludeInactive: includeInactive,
		Page:            params.Page,
		PageSize:        params.Limit,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	products := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		products = append(products, buildProductPayload(product))
	}
	httpx.WriteJSON(w, http.StatusOK, productListResponse{
		Products: products,
		Total:    page.Total,
		Page:     page.Page,
		Pages:    page.Pages,
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	product, err := h.catalog.FindProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productID")))
	writeActiveProduct(ctx, w, product, err)
}

func (h *CatalogHandlers) getProductBySlug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	product, err := h.catalog.FindProductBySlug(ctx, chi.URLParam(r, "slug"))
	writeActiveProduct(ctx, w, product, err)
}

// writeActiveProduct hides inactive products from storefront lookups.
func writeActiveProduct(ctx context.Context, w http.ResponseWriter, product services.Product, err error) {
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	if !product.IsActive {
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) upsertProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	if _, ok := requireRole(ctx, w, auth.RoleStaff, auth.RoleAdmin); !ok {
		return
	}

	var req productRequest
	if !decodeBody(w, r, &req) {
		return
	}
	price, err := minorUnitsOf("price", req.Price)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	product := domain.Product{
		ID:          strings.TrimSpace(chi.URLParam(r, "productID")),
		Name:        req.Name,
		Slug:        req.Slug,
		Brand:       req.Brand,
		Description: req.Description,
		Price:       price,
		CategoryID:  req.CategoryID,
		Subcategory: req.Subcategory,
		Images:      req.Images,
		Colors:      req.Colors,
		Sizes:       req.Sizes,
		Features:    req.Features,
		Badge:       domain.ProductBadge(req.Badge),
		Rating:      req.Rating,
		ReviewCount: req.ReviewCount,
		IsFeatured:  req.IsFeatured,
		IsActive:    true,
	}
	if req.OriginalPrice != nil {
		original, err := minorUnitsOf("originalPrice", *req.OriginalPrice)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		product.OriginalPrice = &original
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}

	status := http.StatusOK
	if product.ID == "" {
		status = http.StatusCreated
	}
	saved, err := h.catalog.UpsertProduct(ctx, services.UpsertProductCommand{Product: product})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, status, productResponse{Product: buildProductPayload(saved)})
}

func (h *CatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	identity, ok := requireRole(ctx, w, auth.RoleAdmin)
	if !ok {
		return
	}
	err := h.catalog.DeleteProduct(ctx, services.DeleteProductCommand{
		ProductID: strings.TrimSpace(chi.URLParam(r, "productID")),
		ActorID:   identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildProductPayload(product domain.Product) productPayload {
	payload := productPayload{
		ID:          product.ID,
		Name:        product.Name,
		Slug:        product.Slug,
		Brand:       product.Brand,
		Description: product.Description,
		Price:       domain.FromMinorUnits(product.Price),
		CategoryID:  product.CategoryID,
		Subcategory: product.Subcategory,
		Images:      product.Images,
		Colors:      product.Colors,
		Sizes:       product.Sizes,
		Features:    product.Features,
		Badge:       string(product.Badge),
		Rating:      product.Rating,
		ReviewCount: product.ReviewCount,
		IsFeatured:  product.IsFeatured,
		IsActive:    product.IsActive,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
	if product.OriginalPrice != nil {
		original := domain.FromMinorUnits(*product.OriginalPrice)
		payload.OriginalPrice = &original
	}
	return payload
}

// parseBoolQuery treats a missing parameter as false.
func parseBoolQuery(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New(name + " must be true or false")
	}
	return value, nil
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogCategoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("category_not_found", "category not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogSlugTaken):
		httpx.WriteError(ctx, w, httpx.NewError("slug_taken", "slug is already in use", http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUnavailable):
		serviceUnavailable(ctx, w, "catalog")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
