package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const defaultNotificationTimeout = 10 * time.Second

// NotificationDispatcherDeps configures the asynchronous notification fan-out.
type NotificationDispatcherDeps struct {
	Notifiers []OrderNotifier
	Timeout   time.Duration
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// NotificationDispatcher runs notifiers on background goroutines once an order change is durable.
// Delivery is at most once: failures are logged and never retried or returned.
type NotificationDispatcher struct {
	notifiers []OrderNotifier
	timeout   time.Duration
	logger    func(context.Context, string, map[string]any)
	wg        sync.WaitGroup
}

// NewNotificationDispatcher constructs a dispatcher. Nil notifiers are skipped.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (*NotificationDispatcher, error) {
	notifiers := make([]OrderNotifier, 0, len(deps.Notifiers))
	for _, n := range deps.Notifiers {
		if n != nil {
			notifiers = append(notifiers, n)
		}
	}
	if len(notifiers) == 0 {
		return nil, errors.New("notification dispatcher: at least one notifier is required")
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &NotificationDispatcher{
		notifiers: notifiers,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// DispatchOrderCreated notifies every notifier about a new order without blocking.
func (d *NotificationDispatcher) DispatchOrderCreated(ctx context.Context, order Order) {
	d.dispatch(ctx, "order.created", order, func(ctx context.Context, n OrderNotifier) error {
		return n.NotifyOrderCreated(ctx, order)
	})
}

// DispatchStatusChanged notifies every notifier about a status change without blocking.
func (d *NotificationDispatcher) DispatchStatusChanged(ctx context.Context, order Order, previous OrderStatus) {
	d.dispatch(ctx, "order.status_changed", order, func(ctx context.Context, n OrderNotifier) error {
		return n.NotifyStatusChanged(ctx, order, previous)
	})
}

// Wait blocks until in-flight notifications finish or ctx ends.
func (d *NotificationDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *NotificationDispatcher) dispatch(ctx context.Context, kind string, order Order, send func(context.Context, OrderNotifier) error) {
	if d == nil {
		return
	}
	// Notifications outlive the request. Request values such as the logger are kept.
	base := context.WithoutCancel(ctx)
	for _, notifier := range d.notifiers {
		d.wg.Add(1)
		go func(n OrderNotifier) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()
			if err := d.safeSend(ctx, n, send); err != nil {
				d.logger(ctx, "order.notification_failed", map[string]any{
					"kind":        kind,
					"orderId":     order.ID,
					"orderNumber": order.OrderNumber,
					"notifier":    fmt.Sprintf("%T", n),
					"error":       err.Error(),
				})
			}
		}(notifier)
	}
}

func (d *NotificationDispatcher) safeSend(ctx context.Context, n OrderNotifier, send func(context.Context, OrderNotifier) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return send(ctx, n)
}
