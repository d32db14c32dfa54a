// Package mq publishes dispatch notifications to RabbitMQ.
package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	dialAttempts = 10
	dialBackoff  = 3 * time.Second
)

// Connect dials url, retrying while the broker comes up, and declares the
// durable topic exchange notifications are published to.
func Connect(ctx context.Context, url, exchange string, logger *zap.Logger) (*amqp091.Connection, *amqp091.Channel, error) {
	var err error
	for i := 0; i < dialAttempts; i++ {
		var conn *amqp091.Connection
		conn, err = amqp091.Dial(url)
		if err == nil {
			ch, chErr := conn.Channel()
			if chErr != nil {
				conn.Close()
				return nil, nil, fmt.Errorf("failed to open channel: %w", chErr)
			}
			if declErr := ch.ExchangeDeclare(exchange, amqp091.ExchangeTopic, true, false, false, false, nil); declErr != nil {
				conn.Close()
				return nil, nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, declErr)
			}
			return conn, ch, nil
		}

		logger.Warn("rabbitmq not ready, retrying", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(dialBackoff):
		}
	}

	return nil, nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
}
