package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/raistore/storefront/internal/di"
	"github.com/raistore/storefront/internal/platform/config"
	"github.com/raistore/storefront/internal/platform/observability"
	"github.com/raistore/storefront/internal/platform/secrets"
	"github.com/raistore/storefront/internal/services"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	app := newApp(openOrders(logger.Named("orderctl")), os.Stdout)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openOrders loads the same configuration as the API and builds the order service on it.
func openOrders(logger *zap.Logger) openFunc {
	return func(ctx context.Context) (services.OrderService, func() error, error) {
		fetcher, err := secrets.NewFetcher(ctx,
			secrets.WithLogger(logger.Named("secrets")),
			secrets.WithProject(os.Getenv("API_FIREBASE_PROJECT_ID")),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("secret fetcher: %w", err)
		}
		cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
		if err != nil {
			_ = fetcher.Close()
			return nil, nil, fmt.Errorf("load configuration: %w", err)
		}
		rt, err := di.NewRuntime(ctx, cfg, logger)
		if err != nil {
			_ = fetcher.Close()
			return nil, nil, err
		}
		closeFn := func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Notifications.DispatchTimeout+5*time.Second)
			defer cancel()
			err := rt.Close(closeCtx)
			_ = fetcher.Close()
			return err
		}
		return rt.Services.Orders, closeFn, nil
	}
}
