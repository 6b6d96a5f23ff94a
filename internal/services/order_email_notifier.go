package services

import (
	"context"
	"errors"
	"html/template"
	"strings"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/platform/mailer"
	"github.com/raistore/storefront/internal/platform/observability"
)

type statusEmail struct {
	label   string
	message string
	color   template.CSS
}

// statusEmails has no pending entry: new orders get the confirmation email instead.
var statusEmails = map[domain.OrderStatus]statusEmail{
	domain.OrderStatusProcessing: {"Being Processed", "Your order is currently being prepared and will be dispatched soon.", "#facc15"},
	domain.OrderStatusShipped:    {"Shipped", "Great news! Your order is on its way. Expect delivery within 3-5 business days.", "#38bdf8"},
	domain.OrderStatusDelivered:  {"Delivered", "Your order has been delivered. We hope you love your purchase!", "#4ade80"},
	domain.OrderStatusCancelled:  {"Cancelled", "Your order has been cancelled. If you have any questions, please contact our support team.", "#f87171"},
	domain.OrderStatusRefunded:   {"Refunded", "Your refund has been initiated and should reflect within 5-7 business days.", "#a78bfa"},
}

// OrderEmailNotifierDeps configures the email notifier.
type OrderEmailNotifierDeps struct {
	Sender    mailer.Sender
	Renderer  *mailer.Renderer
	OrdersURL string
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// OrderEmailNotifier emails customers about new orders and status changes.
type OrderEmailNotifier struct {
	sender    mailer.Sender
	renderer  *mailer.Renderer
	ordersURL string
	logger    func(context.Context, string, map[string]any)
}

// NewOrderEmailNotifier validates dependencies and builds the notifier.
func NewOrderEmailNotifier(deps OrderEmailNotifierDeps) (*OrderEmailNotifier, error) {
	if deps.Sender == nil {
		return nil, errors.New("order email notifier: sender is required")
	}
	if deps.Renderer == nil {
		return nil, errors.New("order email notifier: renderer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &OrderEmailNotifier{
		sender:    deps.Sender,
		renderer:  deps.Renderer,
		ordersURL: strings.TrimSpace(deps.OrdersURL),
		logger:    logger,
	}, nil
}

// NotifyOrderCreated sends the order confirmation email.
func (n *OrderEmailNotifier) NotifyOrderCreated(ctx context.Context, order Order) error {
	if !n.hasRecipient(ctx, order, "order.created") {
		return nil
	}
	msg, err := n.renderer.OrderConfirmation(recipientOf(order), n.orderView(order))
	if err != nil {
		return err
	}
	return n.send(ctx, order, msg)
}

// NotifyStatusChanged sends the status email. Pending has no email.
func (n *OrderEmailNotifier) NotifyStatusChanged(ctx context.Context, order Order, previous OrderStatus) error {
	info, ok := statusEmails[order.Status]
	if !ok {
		return nil
	}
	if !n.hasRecipient(ctx, order, "order.status_changed") {
		return nil
	}
	msg, err := n.renderer.StatusUpdate(recipientOf(order), mailer.StatusView{
		Order:   n.orderView(order),
		Label:   info.label,
		Message: info.message,
		Color:   info.color,
	})
	if err != nil {
		return err
	}
	return n.send(ctx, order, msg)
}

func (n *OrderEmailNotifier) send(ctx context.Context, order Order, msg mailer.Message) error {
	if err := n.sender.Send(ctx, msg); err != nil {
		return err
	}
	n.logger(ctx, "order.email.sent", map[string]any{
		"orderNumber": order.OrderNumber,
		"recipient":   observability.MaskEmail(msg.To.Email),
		"subject":     msg.Subject,
	})
	return nil
}

func (n *OrderEmailNotifier) hasRecipient(ctx context.Context, order Order, kind string) bool {
	if strings.TrimSpace(order.Customer.Email) != "" {
		return true
	}
	n.logger(ctx, "order.email.skipped", map[string]any{
		"orderNumber": order.OrderNumber,
		"kind":        kind,
		"reason":      "no customer email",
	})
	return false
}

func (n *OrderEmailNotifier) orderView(order Order) mailer.OrderView {
	lines := make([]mailer.OrderLine, len(order.Items))
	for i, item := range order.Items {
		lines[i] = mailer.OrderLine{
			Name:     item.Name,
			Color:    item.SelectedColor,
			Size:     item.SelectedSize,
			Quantity: item.Quantity,
			Total:    item.LineTotal(),
		}
	}
	view := mailer.OrderView{
		CustomerName: order.Customer.Name,
		OrderNumber:  order.OrderNumber,
		Currency:     order.Breakdown.Currency,
		Items:        lines,
		Subtotal:     order.Breakdown.Subtotal,
		Discount:     order.Breakdown.Discount,
		Shipping:     order.Breakdown.Shipping,
		Tax:          order.Breakdown.Tax,
		Total:        order.Breakdown.Total,
		OrdersURL:    n.ordersURL,
	}
	if addr := order.ShippingAddress; addr != nil {
		view.Address = []string{addr.Line, joinNonEmpty(", ", addr.City, addr.Region), addr.PostalCode}
	}
	return view
}

func recipientOf(order Order) mailer.Address {
	return mailer.Address{Name: order.Customer.Name, Email: order.Customer.Email}
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}
