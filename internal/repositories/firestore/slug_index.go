package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pfirestore "github.com/raistore/storefront/internal/platform/firestore"
	"github.com/raistore/storefront/internal/repositories"
)

// slugIndex maps slugs to the record that owns them. Callers run it inside a
// transaction and must finish every read (owner) before the first write.
type slugIndex struct {
	docs *pfirestore.BaseRepository[slugReservationDocument]
	op   string
}

type slugReservationDocument struct {
	OwnerID   string    `firestore:"ownerId"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newSlugIndex(provider *pfirestore.Provider, collection, op string) slugIndex {
	return slugIndex{
		docs: pfirestore.NewBaseRepository[slugReservationDocument](provider, collection, nil, nil),
		op:   op,
	}
}

// owner returns the id holding slug, or "" when the slug is free.
func (s slugIndex) owner(ctx context.Context, slug string) (string, error) {
	doc, err := s.docs.Get(ctx, slug)
	if isNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Data.OwnerID), nil
}

// checkAvailable fails with a conflict when slug belongs to a record other than ownerID.
func (s slugIndex) checkAvailable(ctx context.Context, slug, ownerID string) error {
	if slug == "" {
		return nil
	}
	holder, err := s.owner(ctx, slug)
	if err != nil {
		return err
	}
	if holder != "" && holder != ownerID {
		return pfirestore.NewConflictError(s.op, fmt.Errorf("%w: %s", repositories.ErrSlugTaken, slug))
	}
	return nil
}

// move claims next for ownerID and releases previous when the slug changed.
func (s slugIndex) move(ctx context.Context, previous, next, ownerID string, at time.Time) error {
	if previous != "" && previous != next {
		if err := s.docs.Delete(ctx, previous); err != nil {
			return err
		}
	}
	if next == "" {
		return nil
	}
	return s.docs.Set(ctx, next, slugReservationDocument{OwnerID: ownerID, UpdatedAt: at.UTC()})
}

func (s slugIndex) release(ctx context.Context, slug string) error {
	if slug == "" {
		return nil
	}
	return s.docs.Delete(ctx, slug)
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
