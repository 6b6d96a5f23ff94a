package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/raistore/storefront/internal/domain"
	pfirestore "github.com/raistore/storefront/internal/platform/firestore"
	"github.com/raistore/storefront/internal/repositories"
)

const wishlistCollectionPattern = "users/%s/wishlist"

// WishlistRepository keeps saved products per user, one document per product id.
type WishlistRepository struct {
	provider *pfirestore.Provider
}

// NewWishlistRepository constructs a Firestore-backed wishlist repository.
func NewWishlistRepository(provider *pfirestore.Provider) (*WishlistRepository, error) {
	if provider == nil {
		return nil, errors.New("wishlist repository requires firestore provider")
	}
	return &WishlistRepository{provider: provider}, nil
}

var _ repositories.WishlistRepository = (*WishlistRepository)(nil)

// List returns the newest entries first, at most limit when positive.
func (r *WishlistRepository) List(ctx context.Context, userID string, limit int) ([]domain.WishlistItem, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}
	query := coll.OrderBy("addedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var items []domain.WishlistItem
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("wishlist.list", err)
		}
		var doc wishlistDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode wishlist entry %s: %w", snap.Ref.ID, err)
		}
		items = append(items, domain.WishlistItem{ProductID: snap.Ref.ID, AddedAt: doc.AddedAt.UTC()})
	}
	return items, nil
}

// Put stores the entry unless it already exists. Re-adding keeps the original addedAt.
func (r *WishlistRepository) Put(ctx context.Context, userID, productID string, addedAt time.Time, limit int) (bool, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return false, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return false, errors.New("wishlist repository: product id is required")
	}

	created := false
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false
		docRef := coll.Doc(productID)
		if _, err := tx.Get(docRef); err == nil {
			return nil
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		if limit > 0 {
			snaps, err := tx.Documents(coll.Select("addedAt").Limit(limit)).GetAll()
			if err != nil {
				return err
			}
			if len(snaps) >= limit {
				return pfirestore.NewConflictError("wishlist.put", fmt.Errorf("%w: %d items", repositories.ErrWishlistFull, limit))
			}
		}

		if err := tx.Set(docRef, wishlistDocument{ProductRef: productsCollection + "/" + productID, AddedAt: addedAt.UTC()}); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, pfirestore.WrapError("wishlist.put", err)
	}
	return created, nil
}

// Delete removes the entry. Removing a product that is not saved succeeds.
func (r *WishlistRepository) Delete(ctx context.Context, userID, productID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("wishlist repository: product id is required")
	}
	if _, err := coll.Doc(productID).Delete(ctx); err != nil {
		return pfirestore.WrapError("wishlist.delete", err)
	}
	return nil
}

func (r *WishlistRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("wishlist repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("wishlist repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(wishlistCollectionPattern, uid)), nil
}

type wishlistDocument struct {
	ProductRef string    `firestore:"productRef"`
	AddedAt    time.Time `firestore:"addedAt"`
}
