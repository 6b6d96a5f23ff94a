package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"github.com/raistore/storefront/internal/services"
)

const (
	// EventOrderCreated is published once an order is stored.
	EventOrderCreated = "order.created"
	// EventOrderStatusChanged is published after every status change.
	EventOrderStatusChanged = "order.status_changed"

	maxPushBody = 1 << 20
)

// ErrInvalidEvent indicates a message that does not carry a usable order event.
var ErrInvalidEvent = errors.New("order event: invalid payload")

// OrderEvent is the thin message published for order notifications. Consumers load the order by id.
type OrderEvent struct {
	EventID        string    `json:"eventId"`
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// PubSubOrderEventPublisher publishes order events to a Pub/Sub topic. It satisfies services.OrderNotifier.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	clock   func() time.Time
	newID   func() string
}

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	return &PubSubOrderEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
		clock:   time.Now,
		newID:   uuid.NewString,
	}, nil
}

// NotifyOrderCreated publishes an order.created event.
func (p *PubSubOrderEventPublisher) NotifyOrderCreated(ctx context.Context, order services.Order) error {
	_, err := p.publish(ctx, OrderEvent{
		Type:        EventOrderCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
	})
	return err
}

// NotifyStatusChanged publishes an order.status_changed event.
func (p *PubSubOrderEventPublisher) NotifyStatusChanged(ctx context.Context, order services.Order, previous services.OrderStatus) error {
	_, err := p.publish(ctx, OrderEvent{
		Type:           EventOrderStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(previous),
		Status:         string(order.Status),
	})
	return err
}

func (p *PubSubOrderEventPublisher) publish(ctx context.Context, event OrderEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub order publisher: not initialised")
	}
	event.EventID = p.newID()
	event.OccurredAt = p.clock().UTC()

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.EventID)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "status", event.Status)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish order event: %w", err)
	}
	return id, nil
}

// DecodeOrderEvent parses and validates a published event payload.
func DecodeOrderEvent(data []byte) (OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return OrderEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	switch event.Type {
	case EventOrderCreated, EventOrderStatusChanged:
	default:
		return OrderEvent{}, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, event.Type)
	}
	if strings.TrimSpace(event.OrderID) == "" {
		return OrderEvent{}, fmt.Errorf("%w: order id is required", ErrInvalidEvent)
	}
	return event, nil
}

// pushEnvelope is the body Pub/Sub push subscriptions POST to an endpoint.
type pushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// DecodePushRequest reads a Pub/Sub push body and returns the order event it carries.
func DecodePushRequest(body io.Reader) (OrderEvent, error) {
	var envelope pushEnvelope
	if err := json.NewDecoder(io.LimitReader(body, maxPushBody)).Decode(&envelope); err != nil {
		return OrderEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if len(envelope.Message.Data) == 0 {
		return OrderEvent{}, fmt.Errorf("%w: empty message", ErrInvalidEvent)
	}
	return DecodeOrderEvent(envelope.Message.Data)
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
