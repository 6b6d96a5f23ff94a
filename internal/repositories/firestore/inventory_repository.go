package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/raistore/storefront/internal/domain"
	pfirestore "github.com/raistore/storefront/internal/platform/firestore"
	"github.com/raistore/storefront/internal/repositories"
)

const inventoryCollection = "inventory"

// InventoryRepository stores one document per product variant.
type InventoryRepository struct {
	base *pfirestore.BaseRepository[inventoryDocument]
}

// NewInventoryRepository constructs a Firestore-backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[inventoryDocument](provider, inventoryCollection, nil, nil)
	return &InventoryRepository{base: base}, nil
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)

// List returns every variant record, optionally restricted to a single product.
func (r *InventoryRepository) List(ctx context.Context, filter repositories.InventoryListFilter) ([]domain.InventoryRecord, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if productID := strings.TrimSpace(filter.ProductID); productID != "" {
			q = q.Where("productId", "==", productID)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	records := make([]domain.InventoryRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.Data.toDomain(doc.ID))
	}
	return records, nil
}

// FindVariant loads the record for a product colour and size combination.
func (r *InventoryRepository) FindVariant(ctx context.Context, productID, color, size string) (domain.InventoryRecord, error) {
	if r == nil || r.base == nil {
		return domain.InventoryRecord{}, errors.New("inventory repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID).
			Where("color", "==", strings.TrimSpace(color)).
			Where("size", "==", strings.TrimSpace(size)).
			Limit(1)
	})
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	if len(docs) == 0 {
		return domain.InventoryRecord{}, pfirestore.NewNotFoundError("inventory.find_variant",
			fmt.Errorf("no inventory for %s %s/%s", productID, color, size))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// Upsert writes the variant record under its id.
func (r *InventoryRepository) Upsert(ctx context.Context, record domain.InventoryRecord) error {
	if r == nil || r.base == nil {
		return errors.New("inventory repository not initialised")
	}
	recordID := strings.TrimSpace(record.ID)
	if recordID == "" {
		return errors.New("inventory upsert: id is required")
	}
	return r.base.Set(ctx, recordID, newInventoryDocument(record))
}

type inventoryDocument struct {
	ProductID         string    `firestore:"productId"`
	SKU               string    `firestore:"sku,omitempty"`
	Color             string    `firestore:"color"`
	Size              string    `firestore:"size"`
	Quantity          int       `firestore:"quantity"`
	LowStockThreshold int       `firestore:"lowStockThreshold"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

func newInventoryDocument(r domain.InventoryRecord) inventoryDocument {
	return inventoryDocument{
		ProductID:         strings.TrimSpace(r.ProductID),
		SKU:               strings.TrimSpace(r.SKU),
		Color:             strings.TrimSpace(r.Color),
		Size:              strings.TrimSpace(r.Size),
		Quantity:          r.Quantity,
		LowStockThreshold: r.LowStockThreshold,
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func (d inventoryDocument) toDomain(id string) domain.InventoryRecord {
	return domain.InventoryRecord{
		ID:                id,
		ProductID:         d.ProductID,
		SKU:               d.SKU,
		Color:             d.Color,
		Size:              d.Size,
		Quantity:          d.Quantity,
		LowStockThreshold: d.LowStockThreshold,
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}
