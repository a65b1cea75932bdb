// Package rabbitmq publishes outbox messages to a RabbitMQ topic exchange
// when the service runs with OUTBOX_BROKER=rabbitmq.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type Producer struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewProducer dials RabbitMQ, declares a durable topic exchange and puts the
// channel into confirm mode so Produce waits for the broker ack.
func NewProducer(amqpURL, exchange string, logger *zap.Logger) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
	}

	p := &Producer{conn: conn, exchange: exchange, logger: logger}
	if err := p.openChannel(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *Producer) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	p.channel = ch
	return nil
}

// Produce publishes value with the topic as routing key.
func (p *Producer) Produce(ctx context.Context, key, topic string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.channel.IsClosed() {
		p.logger.Warn("RabbitMQ channel closed, reopening", zap.String("exchange", p.exchange))
		if err := p.openChannel(); err != nil {
			return err
		}
	}

	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx, p.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    key,
		Timestamp:    time.Now().UTC(),
		Body:         value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to exchange %s: %w", p.exchange, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for rabbitmq confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("rabbitmq nacked message for routing key %s", topic)
	}
	p.logger.Debug("Message published to RabbitMQ", zap.String("exchange", p.exchange), zap.String("routing_key", topic))
	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("failed to close rabbitmq connection: %w", err)
		}
	}
	p.logger.Info("RabbitMQ producer closed.")
	return nil
}
