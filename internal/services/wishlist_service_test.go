package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/repositories"
)

type wishlistFullError struct{ stubRepositoryError }

func (wishlistFullError) IsConflict() bool { return true }
func (wishlistFullError) Unwrap() error    { return repositories.ErrWishlistFull }

type stubWishlistRepo struct {
	items   map[string][]domain.WishlistItem
	limits  []int
	putErr  error
	listErr error
}

func (s *stubWishlistRepo) List(_ context.Context, userID string, limit int) ([]domain.WishlistItem, error) {
	s.limits = append(s.limits, limit)
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.items[userID], nil
}

func (s *stubWishlistRepo) Put(_ context.Context, userID, productID string, addedAt time.Time, limit int) (bool, error) {
	if s.putErr != nil {
		return false, s.putErr
	}
	for _, item := range s.items[userID] {
		if item.ProductID == productID {
			return false, nil
		}
	}
	if len(s.items[userID]) >= limit {
		return false, wishlistFullError{}
	}
	if s.items == nil {
		s.items = map[string][]domain.WishlistItem{}
	}
	s.items[userID] = append(s.items[userID], domain.WishlistItem{ProductID: productID, AddedAt: addedAt})
	return true, nil
}

func (s *stubWishlistRepo) Delete(_ context.Context, userID, productID string) error {
	kept := s.items[userID][:0]
	for _, item := range s.items[userID] {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	s.items[userID] = kept
	return nil
}

func newTestWishlistService(t *testing.T, repo *stubWishlistRepo, catalog CatalogService, limit int, now time.Time) WishlistService {
	t.Helper()
	svc, err := NewWishlistService(WishlistServiceDeps{
		Wishlists: repo,
		Catalog:   catalog,
		Limit:     limit,
		Clock:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewWishlistService: %v", err)
	}
	return svc
}

func TestWishlistAdd(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	catalog := &stubCatalog{products: map[string]domain.Product{
		"p1": {ID: "p1", Name: "Tee", IsActive: true},
		"p2": {ID: "p2", Name: "Cap", IsActive: true},
		"p3": {ID: "p3", Name: "Retired", IsActive: false},
	}}
	repo := &stubWishlistRepo{}
	svc := newTestWishlistService(t, repo, catalog, 1, now)
	ctx := context.Background()

	item, created, err := svc.AddToWishlist(ctx, "user-1", " p1 ")
	if err != nil {
		t.Fatalf("AddToWishlist: %v", err)
	}
	if !created || !item.AddedAt.Equal(now) || item.Product == nil || item.Product.Name != "Tee" {
		t.Fatalf("unexpected item %#v created=%v", item, created)
	}

	again, created, err := svc.AddToWishlist(ctx, "user-1", "p1")
	if err != nil || created || !again.AddedAt.IsZero() {
		t.Fatalf("saving twice should be a no-op, got %#v created=%v err=%v", again, created, err)
	}

	if _, _, err := svc.AddToWishlist(ctx, "user-1", "p2"); !errors.Is(err, ErrWishlistLimitExceeded) {
		t.Fatalf("expected ErrWishlistLimitExceeded, got %v", err)
	}
	for _, productID := range []string{"p3", "p404"} {
		if _, _, err := svc.AddToWishlist(ctx, "user-2", productID); !errors.Is(err, ErrWishlistProductNotFound) {
			t.Fatalf("%s: expected ErrWishlistProductNotFound, got %v", productID, err)
		}
	}
	if _, _, err := svc.AddToWishlist(ctx, "", "p1"); !errors.Is(err, ErrWishlistInvalidInput) {
		t.Fatalf("expected ErrWishlistInvalidInput, got %v", err)
	}
	if len(repo.items["user-2"]) != 0 {
		t.Fatalf("rejected products must not be stored")
	}

	repo.putErr = stubRepositoryError{unavailable: true}
	if _, _, err := svc.AddToWishlist(ctx, "user-3", "p1"); !errors.Is(err, ErrWishlistUnavailable) {
		t.Fatalf("expected ErrWishlistUnavailable, got %v", err)
	}
}

func TestWishlistListKeepsDeletedProducts(t *testing.T) {
	added := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	catalog := &stubCatalog{products: map[string]domain.Product{"p1": {ID: "p1", Name: "Tee", IsActive: true}}}
	repo := &stubWishlistRepo{items: map[string][]domain.WishlistItem{
		"user-1": {{ProductID: "p1", AddedAt: added}, {ProductID: "gone", AddedAt: added}},
	}}
	svc := newTestWishlistService(t, repo, catalog, 0, added)

	items, err := svc.ListWishlist(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListWishlist: %v", err)
	}
	if len(items) != 2 || items[0].Product == nil || items[1].Product != nil {
		t.Fatalf("unexpected items %#v", items)
	}
	if repo.limits[0] != defaultWishlistLimit {
		t.Fatalf("expected default limit, got %d", repo.limits[0])
	}

	empty, err := svc.ListWishlist(context.Background(), "user-2")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v %v", empty, err)
	}

	catalog.err = fmt.Errorf("%w: timeout", ErrCatalogUnavailable)
	if _, err := svc.ListWishlist(context.Background(), "user-1"); !errors.Is(err, ErrWishlistUnavailable) {
		t.Fatalf("expected ErrWishlistUnavailable, got %v", err)
	}
}

func TestWishlistRemove(t *testing.T) {
	repo := &stubWishlistRepo{items: map[string][]domain.WishlistItem{"user-1": {{ProductID: "p1"}, {ProductID: "p2"}}}}
	svc := newTestWishlistService(t, repo, &stubCatalog{}, 0, time.Now())

	if err := svc.RemoveFromWishlist(context.Background(), "user-1", "p1"); err != nil {
		t.Fatalf("RemoveFromWishlist: %v", err)
	}
	if len(repo.items["user-1"]) != 1 || repo.items["user-1"][0].ProductID != "p2" {
		t.Fatalf("unexpected items %#v", repo.items["user-1"])
	}
	if err := svc.RemoveFromWishlist(context.Background(), "user-1", " "); !errors.Is(err, ErrWishlistInvalidInput) {
		t.Fatalf("expected ErrWishlistInvalidInput, got %v", err)
	}
}

func TestNewWishlistServiceRequiresDeps(t *testing.T) {
	if _, err := NewWishlistService(WishlistServiceDeps{Catalog: &stubCatalog{}}); err == nil {
		t.Fatalf("expected error without repository")
	}
	if _, err := NewWishlistService(WishlistServiceDeps{Wishlists: &stubWishlistRepo{}}); err == nil {
		t.Fatalf("expected error without catalog")
	}
}
