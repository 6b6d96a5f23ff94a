package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/platform/textutil"
	"github.com/raistore/storefront/internal/repositories"
)

const (
	defaultProductPageSize = 20
	maxProductPageSize     = 100

	auditActionProductDelete      = "catalog.product.delete"
	auditActionCategoryDeactivate = "catalog.category.deactivate"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog mutation.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogProductNotFound indicates the product id does not resolve. Re-pricing treats it as a soft miss.
	ErrCatalogProductNotFound = errors.New("catalog: product not found")
	// ErrCatalogCategoryNotFound indicates the category id does not resolve.
	ErrCatalogCategoryNotFound = errors.New("catalog: category not found")
	// ErrCatalogSlugTaken indicates another product or category already uses the slug.
	ErrCatalogSlugTaken = errors.New("catalog: slug already taken")
	// ErrCatalogUnavailable indicates the catalog backend could not be reached.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service. Categories
// and Audit are optional; without categories the category operations report
// ErrCatalogUnavailable and product filters accept category ids only.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Categories  repositories.CategoryRepository
	Audit       AuditLogService
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	audit      AuditLogService
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		audit:      deps.Audit,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *catalogService) FindProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, ErrCatalogProductNotFound
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapCatalogError(err, ErrCatalogProductNotFound)
	}
	return product, nil
}

func (s *catalogService) FindProductBySlug(ctx context.Context, slug string) (Product, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return Product{}, ErrCatalogProductNotFound
	}
	product, err := s.products.FindBySlug(ctx, slug)
	if err != nil {
		return Product{}, mapCatalogError(err, ErrCatalogProductNotFound)
	}
	return product, nil
}

// ListProducts pages through the catalog newest first. An unknown category yields an
// empty page rather than an error.
func (s *catalogService) ListProducts(ctx context.Context, filter ProductFilter) (ProductPage, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	switch {
	case size <= 0:
		size = defaultProductPageSize
	case size > maxProductPageSize:
		size = maxProductPageSize
	}
	empty := ProductPage{Items: []Product{}, Page: page}

	badge, ok := domain.ParseProductBadge(filter.Badge)
	if !ok {
		return ProductPage{}, fmt.Errorf("%w: unknown badge %q", ErrCatalogInvalidInput, filter.Badge)
	}

	repoFilter := repositories.ProductListFilter{
		FeaturedOnly: filter.FeaturedOnly,
		Badge:        badge,
		ActiveOnly:   !filter.IncludeInactive,
		Pagination:   domain.Pagination{Page: page, PageSize: size},
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		repoFilter.SearchTerms = textutil.SearchTerms(textutil.MaxQueryTerms, search)
		if len(repoFilter.SearchTerms) == 0 {
			return empty, nil
		}
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		categoryID, found, err := s.resolveCategoryID(ctx, category)
		if err != nil {
			return ProductPage{}, err
		}
		if !found {
			return empty, nil
		}
		repoFilter.CategoryID = categoryID
	}

	result, err := s.products.List(ctx, repoFilter)
	if err != nil {
		return ProductPage{}, mapCatalogError(err, ErrCatalogProductNotFound)
	}
	items := result.Items
	if items == nil {
		items = []Product{}
	}
	return ProductPage{
		Items: items,
		Total: result.Total,
		Page:  page,
		Pages: (result.Total + size - 1) / size,
	}, nil
}

// resolveCategoryID accepts an id, a slug or a display name.
func (s *catalogService) resolveCategoryID(ctx context.Context, ref string) (string, bool, error) {
	if s.categories == nil {
		return ref, true, nil
	}
	if category, err := s.categories.FindByID(ctx, ref); err == nil {
		return category.ID, true, nil
	} else if !isRepositoryNotFound(err) {
		return "", false, mapCatalogError(err, ErrCatalogCategoryNotFound)
	}
	if category, err := s.categories.FindBySlug(ctx, strings.ToLower(ref)); err == nil {
		return category.ID, true, nil
	} else if !isRepositoryNotFound(err) {
		return "", false, mapCatalogError(err, ErrCatalogCategoryNotFound)
	}
	categories, err := s.categories.List(ctx, false)
	if err != nil {
		return "", false, mapCatalogError(err, ErrCatalogCategoryNotFound)
	}
	for _, category := range categories {
		if strings.EqualFold(category.Name, ref) {
			return category.ID, true, nil
		}
	}
	return "", false, nil
}

func (s *catalogService) UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	product := cmd.Product
	product.Name = strings.TrimSpace(product.Name)
	product.Brand = strings.TrimSpace(product.Brand)
	product.Subcategory = strings.TrimSpace(product.Subcategory)
	product.CategoryID = strings.TrimSpace(product.CategoryID)
	product.Slug = strings.ToLower(strings.TrimSpace(product.Slug))
	if product.Name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if product.Slug == "" {
		product.Slug = textutil.Slugify(product.Name)
	}
	if product.Slug == "" || product.Slug != textutil.Slugify(product.Slug) {
		return Product{}, fmt.Errorf("%w: slug may only contain lowercase letters, digits and dashes", ErrCatalogInvalidInput)
	}
	if product.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must be non-negative", ErrCatalogInvalidInput)
	}
	if product.OriginalPrice != nil && *product.OriginalPrice < product.Price {
		return Product{}, fmt.Errorf("%w: original price must not be below price", ErrCatalogInvalidInput)
	}
	badge, ok := domain.ParseProductBadge(string(product.Badge))
	if !ok {
		return Product{}, fmt.Errorf("%w: unknown badge %q", ErrCatalogInvalidInput, product.Badge)
	}
	product.Badge = badge
	if product.Rating < 0 || product.Rating > 5 {
		return Product{}, fmt.Errorf("%w: rating must be between 0 and 5", ErrCatalogInvalidInput)
	}
	if product.ReviewCount < 0 {
		return Product{}, fmt.Errorf("%w: review count must be non-negative", ErrCatalogInvalidInput)
	}
	if product.CategoryID != "" && s.categories != nil {
		if _, err := s.categories.FindByID(ctx, product.CategoryID); err != nil {
			if isRepositoryNotFound(err) {
				return Product{}, fmt.Errorf("%w: unknown category %s", ErrCatalogInvalidInput, product.CategoryID)
			}
			return Product{}, mapCatalogError(err, ErrCatalogCategoryNotFound)
		}
	}

	now := s.clock()
	product.ID = strings.TrimSpace(product.ID)
	if product.ID == "" {
		product.ID = s.newID()
		product.CreatedAt = now
	} else if existing, err := s.products.FindByID(ctx, product.ID); err == nil {
		product.CreatedAt = existing.CreatedAt
	} else if !isRepositoryNotFound(err) {
		return Product{}, mapCatalogError(err, ErrCatalogProductNotFound)
	} else {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	if err := s.products.Upsert(ctx, product); err != nil {
		return Product{}, mapCatalogError(err, ErrCatalogProductNotFound)
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return ErrCatalogProductNotFound
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return mapCatalogError(err, ErrCatalogProductNotFound)
	}
	s.recordAudit(ctx, AuditLogRecord{
		Actor:     cmd.ActorID,
		ActorType: "admin",
		Action:    auditActionProductDelete,
		TargetRef: "products/" + productID,
	})
	return nil
}

func (s *catalogService) ListCategories(ctx context.Context, includeInactive bool) ([]Category, error) {
	if s.categories == nil {
		return nil, fmt.Errorf("%w: category repository not configured", ErrCatalogUnavailable)
	}
	categories, err := s.categories.List(ctx, !includeInactive)
	if err != nil {
		return nil, mapCatalogError(err, ErrCatalogCategoryNotFound)
	}
	if categories == nil {
		categories = []Category{}
	}
	return categories, nil
}

func (s *catalogService) UpsertCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	if s.categories == nil {
		return Category{}, fmt.Errorf("%w: category repository not configured", ErrCatalogUnavailable)
	}
	category := cmd.Category
	category.Name = strings.TrimSpace(category.Name)
	category.Slug = strings.ToLower(strings.TrimSpace(category.Slug))
	category.Icon = strings.TrimSpace(category.Icon)
	category.ImageURL = strings.TrimSpace(category.ImageURL)
	if category.Name == "" {
		return Category{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if category.Slug == "" {
		category.Slug = textutil.Slugify(category.Name)
	}
	if category.Slug == "" || category.Slug != textutil.Slugify(category.Slug) {
		return Category{}, fmt.Errorf("%w: slug may only contain lowercase letters, digits and dashes", ErrCatalogInvalidInput)
	}

	now := s.clock()
	category.ID = strings.TrimSpace(category.ID)
	if category.ID == "" {
		category.ID = s.newID()
		category.CreatedAt = now
	} else if existing, err := s.categories.FindByID(ctx, category.ID); err == nil {
		category.CreatedAt = existing.CreatedAt
	} else if isRepositoryNotFound(err) {
		return Category{}, ErrCatalogCategoryNotFound
	} else {
		return Category{}, mapCatalogError(err, ErrCatalogCategoryNotFound)
	}
	category.UpdatedAt = now

	if err := s.categories.Upsert(ctx, category); err != nil {
		return Category{}, mapCatalogError(err, ErrCatalogCategoryNotFound)
	}
	return category, nil
}

// DeactivateCategory hides the category; its products keep their category id.
func (s *catalogService) DeactivateCategory(ctx context.Context, cmd DeactivateCategoryCommand) (Category, error) {
	if s.categories == nil {
		return Category{}, fmt.Errorf("%w: category repository not configured", ErrCatalogUnavailable)
	}
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return Category{}, ErrCatalogCategoryNotFound
	}
	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return Category{}, mapCatalogError(err, ErrCatalogCategoryNotFound)
	}
	if !category.IsActive {
		return category, nil
	}
	category.IsActive = false
	category.UpdatedAt = s.clock()
	if err := s.categories.Upsert(ctx, category); err != nil {
		return Category{}, mapCatalogError(err, ErrCatalogCategoryNotFound)
	}
	s.recordAudit(ctx, AuditLogRecord{
		Actor:     cmd.ActorID,
		ActorType: "admin",
		Action:    auditActionCategoryDeactivate,
		TargetRef: "categories/" + category.ID,
		Diff:      map[string]AuditLogDiff{"isActive": {Before: true, After: false}},
	})
	return category, nil
}

// recordAudit runs after the mutation committed, so a failure is logged rather than returned.
func (s *catalogService) recordAudit(ctx context.Context, record AuditLogRecord) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, record); err != nil {
		s.logger(ctx, "catalog.audit_failed", map[string]any{
			"action": record.Action,
			"target": record.TargetRef,
			"error":  err.Error(),
		})
	}
}

// mapCatalogError translates repository failures; notFound names the missing entity.
func mapCatalogError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repositories.ErrSlugTaken) {
		return fmt.Errorf("%w: %v", ErrCatalogSlugTaken, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	return err
}

// productFinder is the slice of CatalogService the re-pricer needs.
type productFinder interface {
	FindProduct(ctx context.Context, productID string) (Product, error)
}

// repriceItems replaces client prices with catalog prices for items whose reference
// resolves. Unresolvable references keep the client price. Other lookup errors abort.
func repriceItems(ctx context.Context, catalog productFinder, items []LineItem) ([]LineItem, error) {
	out := make([]LineItem, len(items))
	for i, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		item.SelectedColor = strings.TrimSpace(item.SelectedColor)
		item.SelectedSize = strings.TrimSpace(item.SelectedSize)
		out[i] = item
		if catalog == nil || !item.ProductRef.IsCatalog() {
			continue
		}
		product, err := catalog.FindProduct(ctx, item.ProductRef.ID)
		if errors.Is(err, ErrCatalogProductNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i].UnitPrice = product.Price
		if product.Name != "" {
			out[i].Name = product.Name
		}
		if product.Brand != "" {
			out[i].Brand = product.Brand
		}
		if len(product.Images) > 0 && out[i].ImageURL == "" {
			out[i].ImageURL = product.Images[0]
		}
	}
	return out, nil
}
