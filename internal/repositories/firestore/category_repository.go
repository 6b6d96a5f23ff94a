package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/raistore/storefront/internal/domain"
	pfirestore "github.com/raistore/storefront/internal/platform/firestore"
	"github.com/raistore/storefront/internal/repositories"
)

const (
	categoriesCollection    = "categories"
	categorySlugsCollection = "categorySlugs"
)

// CategoryRepository persists storefront categories.
type CategoryRepository struct {
	base  *pfirestore.BaseRepository[categoryDocument]
	slugs slugIndex
	uow   *pfirestore.UnitOfWork
}

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	return &CategoryRepository{
		base:  pfirestore.NewBaseRepository[categoryDocument](provider, categoriesCollection, nil, nil),
		slugs: newSlugIndex(provider, categorySlugsCollection, "categories.reserve_slug"),
		uow:   pfirestore.NewUnitOfWork(provider),
	}, nil
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)

func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return domain.Category{}, pfirestore.NewNotFoundError("categories.get", errors.New("category id is required"))
	}
	doc, err := r.base.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CategoryRepository) FindBySlug(ctx context.Context, slug string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.Category{}, pfirestore.NewNotFoundError("categories.find_by_slug", errors.New("slug is required"))
	}
	owner, err := r.slugs.owner(ctx, slug)
	if err != nil {
		return domain.Category{}, err
	}
	if owner == "" {
		return domain.Category{}, pfirestore.NewNotFoundError("categories.find_by_slug", errors.New("slug not found: "+slug))
	}
	return r.FindByID(ctx, owner)
}

// List returns categories by display order, then name.
func (r *CategoryRepository) List(ctx context.Context, activeOnly bool) ([]domain.Category, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("category repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if activeOnly {
			q = q.Where("isActive", "==", true)
		}
		return q.OrderBy("displayOrder", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Upsert writes the category and moves its slug reservation.
func (r *CategoryRepository) Upsert(ctx context.Context, category domain.Category) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	categoryID := strings.TrimSpace(category.ID)
	if categoryID == "" {
		return errors.New("category upsert: id is required")
	}
	doc := newCategoryDocument(category)
	return r.uow.RunInTx(ctx, func(ctx context.Context) error {
		previous := ""
		existing, err := r.base.Get(ctx, categoryID)
		switch {
		case err == nil:
			previous = existing.Data.Slug
		case !isNotFound(err):
			return err
		}
		if err := r.slugs.checkAvailable(ctx, doc.Slug, categoryID); err != nil {
			return err
		}
		if err := r.slugs.move(ctx, previous, doc.Slug, categoryID, doc.UpdatedAt); err != nil {
			return err
		}
		return r.base.Set(ctx, categoryID, doc)
	})
}

type categoryDocument struct {
	Name         string    `firestore:"name"`
	Slug         string    `firestore:"slug"`
	Icon         string    `firestore:"icon,omitempty"`
	ImageURL     string    `firestore:"imageUrl,omitempty"`
	Description  string    `firestore:"description,omitempty"`
	DisplayOrder int       `firestore:"displayOrder"`
	IsActive     bool      `firestore:"isActive"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func newCategoryDocument(c domain.Category) categoryDocument {
	return categoryDocument{
		Name:         c.Name,
		Slug:         strings.TrimSpace(c.Slug),
		Icon:         c.Icon,
		ImageURL:     c.ImageURL,
		Description:  c.Description,
		DisplayOrder: c.DisplayOrder,
		IsActive:     c.IsActive,
		CreatedAt:    c.CreatedAt.UTC(),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
}

func (d categoryDocument) toDomain(id string) domain.Category {
	return domain.Category{
		ID:           id,
		Name:         d.Name,
		Slug:         d.Slug,
		Icon:         d.Icon,
		ImageURL:     d.ImageURL,
		Description:  d.Description,
		DisplayOrder: d.DisplayOrder,
		IsActive:     d.IsActive,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}
