package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"fleet/internal/service"
)

// Channel is the part of *amqp091.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// NotificationPublisher is a service.Notifier that publishes each
// notification as a persistent JSON message routed by its type, e.g.
// "notification.trip_requested".
type NotificationPublisher struct {
	ch       Channel
	exchange string
}

// NewNotificationPublisher creates a new NotificationPublisher.
func NewNotificationPublisher(ch Channel, exchange string) *NotificationPublisher {
	return &NotificationPublisher{ch: ch, exchange: exchange}
}

// Notify implements service.Notifier.
func (p *NotificationPublisher) Notify(ctx context.Context, n service.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(n.Type),
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			MessageId:    n.ID,
		})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// RoutingKey returns the routing key for a notification type.
func RoutingKey(t service.NotificationType) string {
	return "notification." + strings.ToLower(string(t))
}

var _ service.Notifier = (*NotificationPublisher)(nil)
