package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/storefront/internal/platform/textutil"
	"github.com/hanko-field/storefront/internal/services"
)

// orderEventMessage is the JSON body consumed by mailers and fulfilment workers.
type orderEventMessage struct {
	Type       string            `json:"type"`
	OrderID    string            `json:"orderId"`
	UserID     string            `json:"userId"`
	ItemID     string            `json:"itemId,omitempty"`
	ReturnID   string            `json:"returnId,omitempty"`
	Status     string            `json:"status,omitempty"`
	Amount     int64             `json:"amount,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// PubSubOrderEventPublisher publishes order lifecycle events to a Pub/Sub topic.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.OrderEventPublisher = (*PubSubOrderEventPublisher)(nil)

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order events: topic is required")
	}
	return &PubSubOrderEventPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishOrderEvent blocks until Pub/Sub acknowledges the message. Events of one order share an
// ordering key so consumers see them in commit order when the topic enables ordering.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order events: not initialised")
	}

	data, err := p.marshal(orderEventMessage{
		Type:       event.Type,
		OrderID:    event.OrderID,
		UserID:     event.UserID,
		ItemID:     event.ItemID,
		ReturnID:   event.ReturnID,
		Status:     event.Status,
		Amount:     event.Amount,
		OccurredAt: event.OccurredAt.UTC(),
		Metadata:   textutil.NormalizeStringMap(event.Metadata),
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "userId", event.UserID)

	msg := &pubsub.Message{Data: data, Attributes: attrs}
	if p.topic.EnableMessageOrdering {
		msg.OrderingKey = event.OrderID
	}
	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish order event %s: %w", event.Type, err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
