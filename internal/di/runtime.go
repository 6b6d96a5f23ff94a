package di

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/raistore/storefront/internal/payments"
	"github.com/raistore/storefront/internal/platform/config"
	pfirestore "github.com/raistore/storefront/internal/platform/firestore"
	"github.com/raistore/storefront/internal/platform/jobs"
	"github.com/raistore/storefront/internal/platform/mailer"
	"github.com/raistore/storefront/internal/platform/observability"
	"github.com/raistore/storefront/internal/repositories"
	"github.com/raistore/storefront/internal/repositories/cache"
	firestoreRepo "github.com/raistore/storefront/internal/repositories/firestore"
	"github.com/raistore/storefront/internal/services"
)

// Runtime owns the external clients behind a Container.
type Runtime struct {
	*Container
	Firestore *pfirestore.Provider
	Redis     *redis.Client

	closers []func(context.Context) error
	logger  *zap.Logger
}

// NewRuntime connects Firestore and the optional Redis, Stripe, Brevo and Pub/Sub
// integrations described by cfg, then builds the service container on top.
func NewRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{logger: logger}
	container, err := rt.build(ctx, cfg)
	if err != nil {
		_ = rt.Close(context.Background())
		return nil, err
	}
	rt.Container = container
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context, cfg config.Config) (*Container, error) {
	logger := rt.logger

	rt.Firestore = pfirestore.NewProvider(cfg.Firestore)
	if _, err := rt.Firestore.Client(ctx); err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	rt.closers = append(rt.closers, rt.Firestore.Close)

	repos, err := rt.firestoreRepositories(cfg)
	if err != nil {
		return nil, err
	}

	gateway, err := newPaymentGateway(cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := Dependencies{Payments: gateway, Logger: logger}

	if strings.TrimSpace(cfg.Email.BrevoAPIKey) != "" {
		emails, err := newOrderEmailNotifier(cfg, logger)
		if err != nil {
			return nil, err
		}
		deps.OrderEmails = emails
	} else {
		logger.Warn("email: brevo api key not configured; order emails are disabled")
	}

	if topicID := strings.TrimSpace(cfg.PubSub.OrderEventsTopic); topicID != "" {
		publisher, err := rt.orderEventPublisher(ctx, cfg.PubSub.ProjectID, topicID)
		if err != nil {
			return nil, err
		}
		// Emails are sent by the push subscriber once the event is published.
		deps.Notifiers = append(deps.Notifiers, publisher)
	} else if deps.OrderEmails != nil {
		deps.Notifiers = append(deps.Notifiers, deps.OrderEmails)
	}

	return NewContainer(cfg, repos, deps)
}

func (rt *Runtime) firestoreRepositories(cfg config.Config) (Repositories, error) {
	orders, err := firestoreRepo.NewOrderRepository(rt.Firestore)
	if err != nil {
		return Repositories{}, fmt.Errorf("order repository: %w", err)
	}
	products, err := firestoreRepo.NewProductRepository(rt.Firestore)
	if err != nil {
		return Repositories{}, fmt.Errorf("product repository: %w", err)
	}
	categories, err := firestoreRepo.NewCategoryRepository(rt.Firestore)
	if err != nil {
		return Repositories{}, fmt.Errorf("category repository: %w", err)
	}
	wishlists, err := firestoreRepo.NewWishlistRepository(rt.Firestore)
	if err != nil {
		return Repositories{}, fmt.Errorf("wishlist repository: %w", err)
	}
	coupons, err := firestoreRepo.NewCouponRepository(rt.Firestore)
	if err != nil {
		return Repositories{}, fmt.Errorf("coupon repository: %w", err)
	}
	inventory, err := firestoreRepo.NewInventoryRepository(rt.Firestore)
	if err != nil {
		return Repositories{}, fmt.Errorf("inventory repository: %w", err)
	}
	audit, err := firestoreRepo.NewAuditLogRepository(rt.Firestore)
	if err != nil {
		return Repositories{}, fmt.Errorf("audit log repository: %w", err)
	}

	var productRepo repositories.ProductRepository = products
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		rt.Redis = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func(context.Context) error { return rt.Redis.Close() })
		cached, err := cache.NewProductCache(products, rt.Redis, cache.ProductCacheOptions{
			Namespace: "raistore",
			TTL:       cfg.Redis.ProductTTL,
			Logger:    observability.EventLogger(rt.logger, "product_cache"),
		})
		if err != nil {
			return Repositories{}, fmt.Errorf("product cache: %w", err)
		}
		productRepo = cached
	}

	return Repositories{
		Orders:     orders,
		Products:   productRepo,
		Categories: categories,
		Wishlists:  wishlists,
		Coupons:    coupons,
		Inventory:  inventory,
		AuditLogs:  audit,
		UnitOfWork: pfirestore.NewUnitOfWork(rt.Firestore),
	}, nil
}

func (rt *Runtime) orderEventPublisher(ctx context.Context, projectID, topicID string) (*jobs.PubSubOrderEventPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	rt.closers = append(rt.closers, func(context.Context) error {
		topic.Stop()
		return client.Close()
	})
	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

func newPaymentGateway(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.Stripe.APIKey,
		Logger: observability.EventLogger(logger, "stripe"),
	})
	if err != nil {
		return nil, fmt.Errorf("stripe provider: %w", err)
	}
	manager, err := payments.NewManager(map[string]payments.Provider{"stripe": stripe})
	if err != nil {
		return nil, fmt.Errorf("payment manager: %w", err)
	}
	return manager, nil
}

func newOrderEmailNotifier(cfg config.Config, logger *zap.Logger) (*services.OrderEmailNotifier, error) {
	sender, err := mailer.NewBrevoClient(mailer.BrevoConfig{
		APIKey:  cfg.Email.BrevoAPIKey,
		BaseURL: cfg.Email.BaseURL,
		Sender: mailer.Address{
			Name:  cfg.Email.SenderName,
			Email: cfg.Email.SenderEmail,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("brevo client: %w", err)
	}
	lang, err := language.Parse(cfg.Email.Locale)
	if err != nil {
		lang = language.AmericanEnglish
	}
	renderer, err := mailer.NewRenderer(lang)
	if err != nil {
		return nil, fmt.Errorf("mail renderer: %w", err)
	}
	return services.NewOrderEmailNotifier(services.OrderEmailNotifierDeps{
		Sender:    sender,
		Renderer:  renderer,
		OrdersURL: strings.TrimRight(cfg.Email.StoreURL, "/") + "/orders",
		Logger:    observability.EventLogger(logger, "order_email"),
	})
}

// HealthChecks returns readiness checks for the connected backends.
func (rt *Runtime) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"firestore": rt.Firestore.Ping,
	}
	if rt.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rt.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Close drains pending notifications and releases clients in reverse order of creation.
func (rt *Runtime) Close(ctx context.Context) error {
	if rt == nil {
		return nil
	}
	var errs []error
	if rt.Container != nil {
		if err := rt.Container.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain notifications: %w", err))
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
