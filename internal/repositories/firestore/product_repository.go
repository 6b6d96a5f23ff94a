package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/raistore/storefront/internal/domain"
	pfirestore "github.com/raistore/storefront/internal/platform/firestore"
	"github.com/raistore/storefront/internal/platform/textutil"
	"github.com/raistore/storefront/internal/repositories"
)

const (
	productsCollection     = "products"
	productSlugsCollection = "productSlugs"
)

// ProductRepository reads and writes catalog products. Slugs are reserved in a
// side collection so FindBySlug is a point read and uniqueness holds under races.
type ProductRepository struct {
	base  *pfirestore.BaseRepository[productDocument]
	slugs slugIndex
	uow   *pfirestore.UnitOfWork
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base:  pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		slugs: newSlugIndex(provider, productSlugsCollection, "products.reserve_slug"),
		uow:   pfirestore.NewUnitOfWork(provider),
	}, nil
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// FindByID loads the product by catalog id.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, pfirestore.NewNotFoundError("products.get", errors.New("product id is required"))
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return productFromDocument(doc), nil
}

// FindBySlug resolves the slug reservation and loads the owning product.
func (r *ProductRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.Product{}, pfirestore.NewNotFoundError("products.find_by_slug", errors.New("slug is required"))
	}
	owner, err := r.slugs.owner(ctx, slug)
	if err != nil {
		return domain.Product{}, err
	}
	if owner == "" {
		return domain.Product{}, pfirestore.NewNotFoundError("products.find_by_slug", errors.New("slug not found: "+slug))
	}
	return r.FindByID(ctx, owner)
}

// List returns one page of products, newest first, together with the total match count.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.Page[domain.Product]{}, errors.New("product repository not initialised")
	}

	where := func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("isActive", "==", true)
		}
		if categoryID := strings.TrimSpace(filter.CategoryID); categoryID != "" {
			q = q.Where("categoryId", "==", categoryID)
		}
		if filter.FeaturedOnly {
			q = q.Where("isFeatured", "==", true)
		}
		if filter.Badge != "" {
			q = q.Where("badge", "==", string(filter.Badge))
		}
		if terms := filter.SearchTerms; len(terms) > 0 {
			if len(terms) > textutil.MaxQueryTerms {
				terms = terms[:textutil.MaxQueryTerms]
			}
			q = q.Where("searchTerms", "array-contains-any", terms)
		}
		return q
	}

	total, err := r.base.Count(ctx, where)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = where(q).OrderBy("createdAt", firestore.Desc)
		if offset := filter.Pagination.Offset(); offset > 0 {
			q = q.Offset(offset)
		}
		if filter.Pagination.PageSize > 0 {
			q = q.Limit(filter.Pagination.PageSize)
		}
		return q
	})
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}

	items := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		items = append(items, productFromDocument(doc))
	}
	return domain.Page[domain.Product]{Items: items, Total: total}, nil
}

// Upsert writes the full product document and moves its slug reservation.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return errors.New("product upsert: id is required")
	}
	doc := newProductDocument(product)
	return r.uow.RunInTx(ctx, func(ctx context.Context) error {
		previous := ""
		existing, err := r.base.Get(ctx, productID)
		switch {
		case err == nil:
			previous = existing.Data.Slug
		case !isNotFound(err):
			return err
		}
		if err := r.slugs.checkAvailable(ctx, doc.Slug, productID); err != nil {
			return err
		}
		if err := r.slugs.move(ctx, previous, doc.Slug, productID, doc.UpdatedAt); err != nil {
			return err
		}
		return r.base.Set(ctx, productID, doc)
	})
}

// Delete removes the product and frees its slug.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return pfirestore.NewNotFoundError("products.delete", errors.New("product id is required"))
	}
	return r.uow.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := r.base.Get(ctx, productID)
		if err != nil {
			return err
		}
		if err := r.slugs.release(ctx, existing.Data.Slug); err != nil {
			return err
		}
		return r.base.Delete(ctx, productID)
	})
}

type productDocument struct {
	Name          string    `firestore:"name"`
	Slug          string    `firestore:"slug,omitempty"`
	Brand         string    `firestore:"brand,omitempty"`
	Description   string    `firestore:"description,omitempty"`
	Price         int64     `firestore:"price"`
	OriginalPrice *int64    `firestore:"originalPrice,omitempty"`
	CategoryID    string    `firestore:"categoryId,omitempty"`
	Subcategory   string    `firestore:"subcategory,omitempty"`
	Images        []string  `firestore:"images,omitempty"`
	Colors        []string  `firestore:"colors,omitempty"`
	Sizes         []string  `firestore:"sizes,omitempty"`
	Features      []string  `firestore:"features,omitempty"`
	Badge         string    `firestore:"badge,omitempty"`
	Rating        float64   `firestore:"rating"`
	ReviewCount   int       `firestore:"reviewCount"`
	IsFeatured    bool      `firestore:"isFeatured"`
	IsActive      bool      `firestore:"isActive"`
	SearchTerms   []string  `firestore:"searchTerms,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func newProductDocument(p domain.Product) productDocument {
	return productDocument{
		Name:          p.Name,
		Slug:          strings.TrimSpace(p.Slug),
		Brand:         p.Brand,
		Description:   p.Description,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		CategoryID:    strings.TrimSpace(p.CategoryID),
		Subcategory:   p.Subcategory,
		Images:        append([]string(nil), p.Images...),
		Colors:        append([]string(nil), p.Colors...),
		Sizes:         append([]string(nil), p.Sizes...),
		Features:      append([]string(nil), p.Features...),
		Badge:         string(p.Badge),
		Rating:        p.Rating,
		ReviewCount:   p.ReviewCount,
		IsFeatured:    p.IsFeatured,
		IsActive:      p.IsActive,
		SearchTerms:   textutil.SearchTerms(textutil.MaxIndexedTerms, p.Name, p.Brand, p.Description),
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}

func productFromDocument(doc pfirestore.Document[productDocument]) domain.Product {
	product := doc.Data.toDomain(doc.ID)
	if product.CreatedAt.IsZero() {
		product.CreatedAt = doc.CreateTime
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = doc.UpdateTime
	}
	return product
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:            id,
		Name:          d.Name,
		Slug:          d.Slug,
		Brand:         d.Brand,
		Description:   d.Description,
		Price:         d.Price,
		OriginalPrice: d.OriginalPrice,
		CategoryID:    d.CategoryID,
		Subcategory:   d.Subcategory,
		Images:        d.Images,
		Colors:        d.Colors,
		Sizes:         d.Sizes,
		Features:      d.Features,
		Badge:         domain.ProductBadge(d.Badge),
		Rating:        d.Rating,
		ReviewCount:   d.ReviewCount,
		IsFeatured:    d.IsFeatured,
		IsActive:      d.IsActive,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}
