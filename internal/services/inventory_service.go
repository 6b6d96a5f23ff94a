package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/raistore/storefront/internal/repositories"
)

const defaultLowStockThreshold = 5

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryUnavailable indicates the inventory store could not be reached.
	ErrInventoryUnavailable = errors.New("inventory: unavailable")
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory   repositories.InventoryRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.InventoryRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo:   deps.Inventory,
		clock:  func() time.Time { return clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

// ListInventory returns variants ordered by color then size. An empty product id lists everything.
func (s *inventoryService) ListInventory(ctx context.Context, productID string) ([]InventoryRecord, error) {
	records, err := s.repo.List(ctx, repositories.InventoryListFilter{ProductID: strings.TrimSpace(productID)})
	if err != nil {
		return nil, mapInventoryError(err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ProductID != records[j].ProductID {
			return records[i].ProductID < records[j].ProductID
		}
		if records[i].Color != records[j].Color {
			return records[i].Color < records[j].Color
		}
		return records[i].Size < records[j].Size
	})
	return records, nil
}

// UpsertInventory sets the stock of the (product, color, size) variant, creating it when missing.
func (s *inventoryService) UpsertInventory(ctx context.Context, cmd UpsertInventoryCommand) (InventoryRecord, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return InventoryRecord{}, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	if cmd.Quantity < 0 {
		return InventoryRecord{}, fmt.Errorf("%w: quantity must be non-negative", ErrInventoryInvalidInput)
	}
	if cmd.LowStockThreshold < 0 {
		return InventoryRecord{}, fmt.Errorf("%w: low stock threshold must be non-negative", ErrInventoryInvalidInput)
	}
	color := strings.TrimSpace(cmd.Color)
	size := strings.TrimSpace(cmd.Size)

	record, err := s.repo.FindVariant(ctx, productID, color, size)
	switch {
	case err == nil:
	case isRepositoryNotFound(err):
		record = InventoryRecord{
			ID:                s.newID(),
			ProductID:         productID,
			Color:             color,
			Size:              size,
			LowStockThreshold: defaultLowStockThreshold,
		}
	default:
		return InventoryRecord{}, mapInventoryError(err)
	}

	if sku := strings.TrimSpace(cmd.SKU); sku != "" {
		record.SKU = sku
	}
	record.Quantity = cmd.Quantity
	if cmd.LowStockThreshold > 0 {
		record.LowStockThreshold = cmd.LowStockThreshold
	}
	record.UpdatedAt = s.clock()

	if err := s.repo.Upsert(ctx, record); err != nil {
		return InventoryRecord{}, mapInventoryError(err)
	}
	if record.IsLowStock() {
		s.logger(ctx, "inventory.low_stock", map[string]any{
			"productId": record.ProductID,
			"sku":       record.SKU,
			"quantity":  record.Quantity,
			"threshold": record.LowStockThreshold,
		})
	}
	return record, nil
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func mapInventoryError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
	}
	return err
}
