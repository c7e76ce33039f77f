// Package events publishes order status changes to RabbitMQ.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Kiongsoh/CS50W/internal/domain/order"
)

// Exchange is the topic exchange order events are published to.
const Exchange = "kitchen.orders"

// RoutingKey returns the routing key of an event, e.g. "order.accepted".
func RoutingKey(e order.Event) string {
	return "order." + string(e.To)
}

// Encode renders an event as JSON.
func Encode(e order.Event) []byte {
	var w jx.Encoder
	w.ObjStart()
	w.FieldStart("order_id")
	w.Int64(e.OrderID)
	w.FieldStart("customer_id")
	w.Int64(e.CustomerID)
	w.FieldStart("restaurant_id")
	w.Int64(e.RestaurantID)
	w.FieldStart("from")
	w.Str(string(e.From))
	w.FieldStart("to")
	w.Str(string(e.To))
	w.FieldStart("total_price")
	w.Str(e.Total.StringFixed(2))
	w.FieldStart("at")
	w.Str(e.At.UTC().Format(time.RFC3339Nano))
	w.ObjEnd()
	return w.Bytes()
}

// Dialer opens AMQP channels.
type Dialer interface {
	Channel() (*amqp.Channel, error)
	IsClosed() bool
}

var _ order.Notifier = (*Publisher)(nil)

// Publisher implements order.Notifier over an AMQP connection.
type Publisher struct {
	conn Dialer
}

// NewPublisher declares the exchange and returns a Publisher.
func NewPublisher(conn Dialer) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %q: %w", Exchange, err)
	}
	return &Publisher{conn: conn}, nil
}

// OrderChanged publishes e as a persistent message.
func (p *Publisher) OrderChanged(ctx context.Context, e order.Event) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	err = ch.PublishWithContext(ctx, Exchange, RoutingKey(e), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    fmt.Sprintf("%d-%s", e.OrderID, e.To),
		Timestamp:    e.At,
		Body:         Encode(e),
	})
	if err != nil {
		return fmt.Errorf("publish order %d event: %w", e.OrderID, err)
	}
	return nil
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

func (Nop) OrderChanged(context.Context, order.Event) error { return nil }
