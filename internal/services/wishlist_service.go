package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raistore/storefront/internal/repositories"
)

const defaultWishlistLimit = 100

var (
	// ErrWishlistInvalidInput indicates a missing user or product id.
	ErrWishlistInvalidInput = errors.New("wishlist: invalid input")
	// ErrWishlistProductNotFound indicates the product is unknown or no longer sold.
	ErrWishlistProductNotFound = errors.New("wishlist: product not found")
	// ErrWishlistLimitExceeded indicates the wishlist already holds the maximum number of products.
	ErrWishlistLimitExceeded = errors.New("wishlist: limit exceeded")
	// ErrWishlistUnavailable indicates the wishlist store could not be reached.
	ErrWishlistUnavailable = errors.New("wishlist: unavailable")
)

// WishlistServiceDeps bundles constructor inputs for the wishlist service.
type WishlistServiceDeps struct {
	Wishlists repositories.WishlistRepository
	Catalog   CatalogService
	Limit     int
	Clock     func() time.Time
}

type wishlistService struct {
	wishlists repositories.WishlistRepository
	catalog   productFinder
	limit     int
	clock     func() time.Time
}

// NewWishlistService constructs the wishlist service. A non-positive limit uses the default cap.
func NewWishlistService(deps WishlistServiceDeps) (WishlistService, error) {
	if deps.Wishlists == nil {
		return nil, errors.New("wishlist service: wishlist repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("wishlist service: catalog is required")
	}
	limit := deps.Limit
	if limit <= 0 {
		limit = defaultWishlistLimit
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &wishlistService{
		wishlists: deps.Wishlists,
		catalog:   deps.Catalog,
		limit:     limit,
		clock:     func() time.Time { return clock().UTC() },
	}, nil
}

// ListWishlist returns saved products newest first. Entries whose product was
// deleted are returned without a product so clients can offer to remove them.
func (s *wishlistService) ListWishlist(ctx context.Context, userID string) ([]WishlistItem, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrWishlistInvalidInput)
	}
	items, err := s.wishlists.List(ctx, userID, s.limit)
	if err != nil {
		return nil, mapWishlistError(err)
	}
	out := make([]WishlistItem, 0, len(items))
	for _, item := range items {
		product, err := s.catalog.FindProduct(ctx, item.ProductID)
		switch {
		case err == nil:
			item.Product = &product
		case errors.Is(err, ErrCatalogProductNotFound):
		default:
			return nil, fmt.Errorf("%w: %v", ErrWishlistUnavailable, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// AddToWishlist saves an active product. The bool reports whether the entry is new;
// saving a product twice is not an error and leaves AddedAt zero.
func (s *wishlistService) AddToWishlist(ctx context.Context, userID, productID string) (WishlistItem, bool, error) {
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return WishlistItem{}, false, fmt.Errorf("%w: user and product ids are required", ErrWishlistInvalidInput)
	}
	product, err := s.catalog.FindProduct(ctx, productID)
	if errors.Is(err, ErrCatalogProductNotFound) || (err == nil && !product.IsActive) {
		return WishlistItem{}, false, ErrWishlistProductNotFound
	}
	if err != nil {
		return WishlistItem{}, false, fmt.Errorf("%w: %v", ErrWishlistUnavailable, err)
	}

	now := s.clock()
	created, err := s.wishlists.Put(ctx, userID, productID, now, s.limit)
	if err != nil {
		return WishlistItem{}, false, mapWishlistError(err)
	}
	item := WishlistItem{ProductID: productID, Product: &product}
	if created {
		item.AddedAt = now
	}
	return item, created, nil
}

func (s *wishlistService) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return fmt.Errorf("%w: user and product ids are required", ErrWishlistInvalidInput)
	}
	if err := s.wishlists.Delete(ctx, userID, productID); err != nil {
		return mapWishlistError(err)
	}
	return nil
}

func mapWishlistError(err error) error {
	if errors.Is(err, repositories.ErrWishlistFull) {
		return fmt.Errorf("%w: %v", ErrWishlistLimitExceeded, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrWishlistUnavailable, err)
	}
	return err
}
