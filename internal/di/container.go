package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/raistore/storefront/internal/payments"
	"github.com/raistore/storefront/internal/platform/config"
	"github.com/raistore/storefront/internal/platform/observability"
	"github.com/raistore/storefront/internal/repositories"
	"github.com/raistore/storefront/internal/services"
)

// PaymentGateway is the subset of payments.Manager consumed by checkout and order creation.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.PaymentIntentRequest) (payments.PaymentIntent, error)
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// Repositories groups the persistence contracts the services are built on.
// Categories and Wishlists are optional.
type Repositories struct {
	Orders     repositories.OrderRepository
	Products   repositories.ProductRepository
	Categories repositories.CategoryRepository
	Wishlists  repositories.WishlistRepository
	Coupons    repositories.CouponRepository
	Inventory  repositories.InventoryRepository
	AuditLogs  repositories.AuditLogRepository
	UnitOfWork repositories.UnitOfWork
}

// Dependencies carries the non-repository collaborators.
type Dependencies struct {
	Payments PaymentGateway
	// Notifiers receive order events through the dispatcher. None disables notifications.
	Notifiers []services.OrderNotifier
	// OrderEmails, when set, serves the internal push endpoint.
	OrderEmails services.OrderNotifier
	Logger      *zap.Logger
	Clock       func() time.Time
	IDGenerator func() string
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Pricing       *services.PricingEngine
	Catalog       services.CatalogService
	Wishlist      services.WishlistService
	Promotions    services.PromotionService
	Inventory     services.InventoryService
	Audit         services.AuditLogService
	Checkout      services.CheckoutService
	Orders        services.OrderService
	Notifications *services.NotificationDispatcher
	OrderEmails   services.OrderNotifier
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services
}

// NewContainer constructs the service graph. Missing repositories are reported together.
func NewContainer(cfg config.Config, repos Repositories, deps Dependencies) (*Container, error) {
	var missing []string
	if repos.Orders == nil {
		missing = append(missing, "orders")
	}
	if repos.Products == nil {
		missing = append(missing, "products")
	}
	if repos.Coupons == nil {
		missing = append(missing, "coupons")
	}
	if repos.Inventory == nil {
		missing = append(missing, "inventory")
	}
	if repos.AuditLogs == nil {
		missing = append(missing, "audit logs")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("di: missing repositories %v", missing)
	}
	if deps.Payments == nil {
		return nil, errors.New("di: payment gateway is required")
	}

	svc, err := buildServices(cfg, repos, deps)
	if err != nil {
		return nil, err
	}
	return &Container{
		Config:       cfg,
		Repositories: repos,
		Services:     svc,
	}, nil
}

// Close waits for in-flight notifications to finish or ctx to expire.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Services.Notifications == nil {
		return nil
	}
	return c.Services.Notifications.Wait(ctx)
}

func buildServices(cfg config.Config, repos Repositories, deps Dependencies) (Services, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	var svc Services

	pricing, err := services.NewPricingEngine(services.PricingConfig{
		Currency:           cfg.Pricing.Currency,
		FreeShippingOver:   cfg.Pricing.FreeShippingOver,
		ShippingFee:        cfg.Pricing.ShippingFee,
		TaxRateBasisPoints: cfg.Pricing.TaxRateBasisPoints,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository:  repos.AuditLogs,
		Clock:       clock,
		IDGenerator: deps.IDGenerator,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build audit log service: %w", err)
	}
	svc.Audit = auditSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:    repos.Products,
		Categories:  repos.Categories,
		Audit:       auditSvc,
		Clock:       clock,
		IDGenerator: deps.IDGenerator,
		Logger:      observability.EventLogger(logger, "catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	if repos.Wishlists != nil {
		wishlistSvc, err := services.NewWishlistService(services.WishlistServiceDeps{
			Wishlists: repos.Wishlists,
			Catalog:   catalogSvc,
			Clock:     clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build wishlist service: %w", err)
		}
		svc.Wishlist = wishlistSvc
	}

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Coupons:     repos.Coupons,
		Clock:       clock,
		IDGenerator: deps.IDGenerator,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	svc.Promotions = promotionSvc

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory:   repos.Inventory,
		Clock:       clock,
		IDGenerator: deps.IDGenerator,
		Logger:      observability.EventLogger(logger, "inventory"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Pricing:    pricing,
		Catalog:    catalogSvc,
		Promotions: promotionSvc,
		Payments:   deps.Payments,
		Logger:     observability.EventLogger(logger, "checkout"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	orderDeps := services.OrderServiceDeps{
		Orders:         repos.Orders,
		Pricing:        pricing,
		Catalog:        catalogSvc,
		Promotions:     promotionSvc,
		Payments:       deps.Payments,
		Audit:          auditSvc,
		UnitOfWork:     repos.UnitOfWork,
		NumberAttempts: cfg.Orders.NumberAttempts,
		Clock:          clock,
		IDGenerator:    deps.IDGenerator,
		Logger:         observability.EventLogger(logger, "orders"),
	}
	if len(deps.Notifiers) > 0 {
		dispatcher, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
			Notifiers: deps.Notifiers,
			Timeout:   cfg.Notifications.DispatchTimeout,
			Logger:    observability.EventLogger(logger, "notifications"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification dispatcher: %w", err)
		}
		svc.Notifications = dispatcher
		orderDeps.Notifications = dispatcher
	} else {
		logger.Warn("di: no order notifiers configured; order emails and events are disabled")
	}
	svc.OrderEmails = deps.OrderEmails

	orderSvc, err := services.NewOrderService(orderDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	return svc, nil
}
