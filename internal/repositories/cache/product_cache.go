package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/repositories"
)

const defaultProductTTL = 5 * time.Minute

// Client is the subset of the Redis client used by the cache.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// ProductCacheOptions configures the read-through product cache.
type ProductCacheOptions struct {
	Namespace string
	TTL       time.Duration
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// ProductCache decorates a ProductRepository with a Redis read-through cache.
// Redis failures degrade to the underlying repository.
type ProductCache struct {
	next      repositories.ProductRepository
	client    Client
	namespace string
	ttl       time.Duration
	logger    func(context.Context, string, map[string]any)
}

// NewProductCache wraps next with a cache backed by client.
func NewProductCache(next repositories.ProductRepository, client Client, opts ProductCacheOptions) (*ProductCache, error) {
	if next == nil {
		return nil, errors.New("product cache: repository is required")
	}
	if client == nil {
		return nil, errors.New("product cache: redis client is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultProductTTL
	}
	namespace := strings.TrimSpace(opts.Namespace)
	if namespace == "" {
		namespace = "storefront"
	}
	logger := opts.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ProductCache{next: next, client: client, namespace: namespace, ttl: ttl, logger: logger}, nil
}

var _ repositories.ProductRepository = (*ProductCache)(nil)

// FindByID serves the product from Redis when present, otherwise loads and caches it.
func (c *ProductCache) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	key := c.key(productID)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedProduct
		decodeErr := json.Unmarshal(raw, &cached)
		if decodeErr == nil {
			return cached.toDomain(), nil
		}
		c.logger(ctx, "cache.product.decode_failed", map[string]any{"productId": productID, "error": decodeErr.Error()})
	case errors.Is(err, redis.Nil):
	default:
		c.logger(ctx, "cache.product.get_failed", map[string]any{"productId": productID, "error": err.Error()})
	}

	product, err := c.next.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	payload, err := json.Marshal(newCachedProduct(product))
	if err != nil {
		return product, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger(ctx, "cache.product.set_failed", map[string]any{"productId": productID, "error": err.Error()})
	}
	return product, nil
}

// Upsert writes through to the repository and evicts the cached copy.
func (c *ProductCache) Upsert(ctx context.Context, product domain.Product) error {
	if err := c.next.Upsert(ctx, product); err != nil {
		return err
	}
	c.evict(ctx, product.ID)
	return nil
}

// FindBySlug and List read through to the repository; only id lookups on the
// pricing path are cached.
func (c *ProductCache) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	return c.next.FindBySlug(ctx, slug)
}

func (c *ProductCache) List(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	return c.next.List(ctx, filter)
}

// Delete removes the product and evicts the cached copy so re-pricing stops using it.
func (c *ProductCache) Delete(ctx context.Context, productID string) error {
	if err := c.next.Delete(ctx, productID); err != nil {
		return err
	}
	c.evict(ctx, productID)
	return nil
}

func (c *ProductCache) evict(ctx context.Context, productID string) {
	if err := c.client.Del(ctx, c.key(productID)).Err(); err != nil {
		c.logger(ctx, "cache.product.evict_failed", map[string]any{"productId": productID, "error": err.Error()})
	}
}

func (c *ProductCache) key(productID string) string {
	return fmt.Sprintf("%s:product:%s", c.namespace, strings.TrimSpace(productID))
}

type cachedProduct struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug,omitempty"`
	Brand         string    `json:"brand,omitempty"`
	Description   string    `json:"description,omitempty"`
	Price         int64     `json:"price"`
	OriginalPrice *int64    `json:"originalPrice,omitempty"`
	CategoryID    string    `json:"categoryId,omitempty"`
	Subcategory   string    `json:"subcategory,omitempty"`
	Images        []string  `json:"images,omitempty"`
	Colors        []string  `json:"colors,omitempty"`
	Sizes         []string  `json:"sizes,omitempty"`
	Features      []string  `json:"features,omitempty"`
	Badge         string    `json:"badge,omitempty"`
	Rating        float64   `json:"rating,omitempty"`
	ReviewCount   int       `json:"reviewCount,omitempty"`
	IsFeatured    bool      `json:"isFeatured,omitempty"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func newCachedProduct(p domain.Product) cachedProduct {
	return cachedProduct{
		ID:            p.ID,
		Name:          p.Name,
		Slug:          p.Slug,
		Brand:         p.Brand,
		Description:   p.Description,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		CategoryID:    p.CategoryID,
		Subcategory:   p.Subcategory,
		Images:        p.Images,
		Colors:        p.Colors,
		Sizes:         p.Sizes,
		Features:      p.Features,
		Badge:         string(p.Badge),
		Rating:        p.Rating,
		ReviewCount:   p.ReviewCount,
		IsFeatured:    p.IsFeatured,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (c cachedProduct) toDomain() domain.Product {
	return domain.Product{
		ID:            c.ID,
		Name:          c.Name,
		Slug:          c.Slug,
		Brand:         c.Brand,
		Description:   c.Description,
		Price:         c.Price,
		OriginalPrice: c.OriginalPrice,
		CategoryID:    c.CategoryID,
		Subcategory:   c.Subcategory,
		Images:        c.Images,
		Colors:        c.Colors,
		Sizes:         c.Sizes,
		Features:      c.Features,
		Badge:         domain.ProductBadge(c.Badge),
		Rating:        c.Rating,
		ReviewCount:   c.ReviewCount,
		IsFeatured:    c.IsFeatured,
		IsActive:      c.IsActive,
		CreatedAt:     c.CreatedAt.UTC(),
		UpdatedAt:     c.UpdatedAt.UTC(),
	}
}
