package handlers

import (
	"context"
	"errors"
	"net/http"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/platform/auth"
	"github.com/raistore/storefront/internal/services"
)

func withIdentity(req *http.Request, uid string, roles ...string) *http.Request {
	identity := &auth.Identity{UID: uid, Email: uid + "@example.com", Name: "Test " + uid, Roles: roles}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

type stubOrderService struct {
	createFn   func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn      func(context.Context, string) (services.Order, error)
	listFn     func(context.Context, services.OrderListFilter) (domain.Page[services.Order], error)
	setFn      func(context.Context, services.SetOrderStatusCommand) (services.Order, error)
	overrideFn func(context.Context, services.OverrideOrderStatusCommand) (services.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.Page[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.Page[services.Order]{}, nil
}

func (s *stubOrderService) SetStatus(ctx context.Context, cmd services.SetOrderStatusCommand) (services.Order, error) {
	if s.setFn != nil {
		return s.setFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) OverrideStatus(ctx context.Context, cmd services.OverrideOrderStatusCommand) (services.Order, error) {
	if s.overrideFn != nil {
		return s.overrideFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

type stubCheckoutService struct {
	createFn func(context.Context, services.CreatePaymentIntentCommand) (services.PaymentIntentResult, error)
	calls    int
}

func (s *stubCheckoutService) CreatePaymentIntent(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntentResult, error) {
	s.calls++
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.PaymentIntentResult{}, errors.New("not implemented")
}

type stubCatalogService struct {
	findFn           func(context.Context, string) (services.Product, error)
	findBySlugFn     func(context.Context, string) (services.Product, error)
	listFn           func(context.Context, services.ProductFilter) (services.ProductPage, error)
	upsertFn         func(context.Context, services.UpsertProductCommand) (services.Product, error)
	deleteFn         func(context.Context, services.DeleteProductCommand) error
	listCategoriesFn func(context.Context, bool) ([]services.Category, error)
	upsertCategoryFn func(context.Context, services.UpsertCategoryCommand) (services.Category, error)
	deactivateFn     func(context.Context, services.DeactivateCategoryCommand) (services.Category, error)
}

func (s *stubCatalogService) FindProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return services.Product{}, services.ErrCatalogProductNotFound
}

func (s *stubCatalogService) UpsertProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, cmd)
	}
	return cmd.Product, nil
}

func (s *stubCatalogService) FindProductBySlug(ctx context.Context, slug string) (services.Product, error) {
	if s.findBySlugFn != nil {
		return s.findBySlugFn(ctx, slug)
	}
	return services.Product{}, services.ErrCatalogProductNotFound
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductFilter) (services.ProductPage, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return services.ProductPage{Page: 1}, nil
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, cmd services.DeleteProductCommand) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return nil
}

func (s *stubCatalogService) ListCategories(ctx context.Context, includeInactive bool) ([]services.Category, error) {
	if s.listCategoriesFn != nil {
		return s.listCategoriesFn(ctx, includeInactive)
	}
	return nil, nil
}

func (s *stubCatalogService) UpsertCategory(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error) {
	if s.upsertCategoryFn != nil {
		return s.upsertCategoryFn(ctx, cmd)
	}
	return cmd.Category, nil
}

func (s *stubCatalogService) DeactivateCategory(ctx context.Context, cmd services.DeactivateCategoryCommand) (services.Category, error) {
	if s.deactivateFn != nil {
		return s.deactivateFn(ctx, cmd)
	}
	return services.Category{}, services.ErrCatalogCategoryNotFound
}

type stubWishlistService struct {
	listFn   func(context.Context, string) ([]services.WishlistItem, error)
	addFn    func(context.Context, string, string) (services.WishlistItem, bool, error)
	removeFn func(context.Context, string, string) error
}

func (s *stubWishlistService) ListWishlist(ctx context.Context, userID string) ([]services.WishlistItem, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubWishlistService) AddToWishlist(ctx context.Context, userID, productID string) (services.WishlistItem, bool, error) {
	if s.addFn != nil {
		return s.addFn(ctx, userID, productID)
	}
	return services.WishlistItem{}, false, errors.New("not implemented")
}

func (s *stubWishlistService) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	if s.removeFn != nil {
		return s.removeFn(ctx, userID, productID)
	}
	return nil
}

type stubPromotionService struct {
	resolveFn    func(context.Context, string, int64) (services.CouponResolution, error)
	listFn       func(context.Context) ([]services.Coupon, error)
	createFn     func(context.Context, services.UpsertCouponCommand) (services.Coupon, error)
	updateFn     func(context.Context, services.UpsertCouponCommand) (services.Coupon, error)
	deactivateFn func(context.Context, string) (services.Coupon, error)
}

func (s *stubPromotionService) ResolveCoupon(ctx context.Context, code string, subtotal int64) (services.CouponResolution, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, code, subtotal)
	}
	return services.CouponResolution{}, services.ErrPromotionNotFound
}

func (s *stubPromotionService) RedeemCoupon(context.Context, string) error { return nil }

func (s *stubPromotionService) ListActiveCoupons(ctx context.Context) ([]services.Coupon, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubPromotionService) CreateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Coupon{}, errors.New("not implemented")
}

func (s *stubPromotionService) UpdateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Coupon{}, errors.New("not implemented")
}

func (s *stubPromotionService) DeactivateCoupon(ctx context.Context, couponID string) (services.Coupon, error) {
	if s.deactivateFn != nil {
		return s.deactivateFn(ctx, couponID)
	}
	return services.Coupon{}, errors.New("not implemented")
}

type stubInventoryService struct {
	listFn   func(context.Context, string) ([]services.InventoryRecord, error)
	upsertFn func(context.Context, services.UpsertInventoryCommand) (services.InventoryRecord, error)
}

func (s *stubInventoryService) ListInventory(ctx context.Context, productID string) ([]services.InventoryRecord, error) {
	if s.listFn != nil {
		return s.listFn(ctx, productID)
	}
	return nil, nil
}

func (s *stubInventoryService) UpsertInventory(ctx context.Context, cmd services.UpsertInventoryCommand) (services.InventoryRecord, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, cmd)
	}
	return services.InventoryRecord{}, errors.New("not implemented")
}

type statusNotification struct {
	order    services.Order
	previous services.OrderStatus
}

type stubNotifier struct {
	created []services.Order
	changed []statusNotification
	err     error
}

func (s *stubNotifier) NotifyOrderCreated(_ context.Context, order services.Order) error {
	s.created = append(s.created, order)
	return s.err
}

func (s *stubNotifier) NotifyStatusChanged(_ context.Context, order services.Order, previous services.OrderStatus) error {
	s.changed = append(s.changed, statusNotification{order: order, previous: previous})
	return s.err
}
