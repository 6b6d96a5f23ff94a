package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/services"
)

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestPubSubOrderEventPublisherStatusChanged(t *testing.T) {
	srv, topic := newTestTopic(t)

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}
	occurred := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	publisher.clock = func() time.Time { return occurred }
	publisher.newID = func() string { return "evt-1" }

	order := services.Order{ID: "01HX", OrderNumber: "ORD-ABCD1234", Status: domain.OrderStatusShipped}
	if err := publisher.NotifyStatusChanged(context.Background(), order, domain.OrderStatusProcessing); err != nil {
		t.Fatalf("NotifyStatusChanged: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	event, err := DecodeOrderEvent(messages[0].Data)
	if err != nil {
		t.Fatalf("DecodeOrderEvent: %v", err)
	}
	if event.EventID != "evt-1" || event.Type != EventOrderStatusChanged || event.OrderID != "01HX" {
		t.Fatalf("unexpected event %#v", event)
	}
	if event.PreviousStatus != "processing" || event.Status != "shipped" || !event.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected statuses %#v", event)
	}
	if attr := messages[0].Attributes["type"]; attr != EventOrderStatusChanged {
		t.Fatalf("expected type attribute, got %q", attr)
	}
	if _, ok := messages[0].Attributes["orderNumber"]; ok {
		t.Fatalf("order number should only travel in the payload")
	}
}

func TestPubSubOrderEventPublisherCreatedHasNoPrevious(t *testing.T) {
	srv, topic := newTestTopic(t)
	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}
	order := services.Order{ID: "01HY", OrderNumber: "ORD-ZZZZ0000", Status: domain.OrderStatusPending}
	if err := publisher.NotifyOrderCreated(context.Background(), order); err != nil {
		t.Fatalf("NotifyOrderCreated: %v", err)
	}
	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if strings.Contains(string(messages[0].Data), "previousStatus") {
		t.Fatalf("created event should omit previousStatus: %s", messages[0].Data)
	}
	if id := messages[0].Attributes["eventId"]; id == "" {
		t.Fatalf("expected generated event id")
	}
}

func TestNewPubSubOrderEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubOrderEventPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}

func TestDecodePushRequest(t *testing.T) {
	payload, _ := json.Marshal(OrderEvent{EventID: "e", Type: EventOrderCreated, OrderID: "01HX", Status: "pending"})
	body := `{"message":{"data":"` + base64.StdEncoding.EncodeToString(payload) + `","messageId":"1"},"subscription":"projects/p/subscriptions/s"}`

	event, err := DecodePushRequest(strings.NewReader(body))
	if err != nil {
		t.Fatalf("DecodePushRequest: %v", err)
	}
	if event.OrderID != "01HX" || event.Type != EventOrderCreated {
		t.Fatalf("unexpected event %#v", event)
	}
}

func TestDecodePushRequestRejectsBadPayloads(t *testing.T) {
	unknown, _ := json.Marshal(OrderEvent{Type: "order.deleted", OrderID: "x"})
	noOrder, _ := json.Marshal(OrderEvent{Type: EventOrderCreated})
	cases := map[string]string{
		"not json":     `{`,
		"empty data":   `{"message":{}}`,
		"unknown type": `{"message":{"data":"` + base64.StdEncoding.EncodeToString(unknown) + `"}}`,
		"missing id":   `{"message":{"data":"` + base64.StdEncoding.EncodeToString(noOrder) + `"}}`,
	}
	for name, body := range cases {
		if _, err := DecodePushRequest(strings.NewReader(body)); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("%s: expected ErrInvalidEvent, got %v", name, err)
		}
	}
}
