package kafka_infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler определяет контракт для обработчика Kafka-сообщений.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// Consumer определяет интерфейс для Kafka-потребителя.
type Consumer interface {
	Start(ctx context.Context, handler MessageHandler) error
	Stop()
}

// messageReader is the part of *kafka.Reader the consumer loop uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaConsumer struct {
	reader     messageReader
	logger     *zap.Logger
	topic      string
	groupID    string
	retryDelay time.Duration
	cancel     context.CancelFunc
}

func NewConsumer(brokerURLs []string, groupID, topic string, logger *zap.Logger) Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:                brokerURLs,
		GroupID:                groupID,
		Topic:                  topic,
		MinBytes:               10e3,
		MaxBytes:               10e6,
		ReadBatchTimeout:       1 * time.Second,
		Logger:                 kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:            kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Error(fmt.Sprintf(msg, args...)) }),
		HeartbeatInterval:      3 * time.Second,
		CommitInterval:         0,
		PartitionWatchInterval: 5 * time.Second,
		MaxAttempts:            3,
	})

	return newConsumer(reader, groupID, topic, logger)
}

func newConsumer(reader messageReader, groupID, topic string, logger *zap.Logger) *kafkaConsumer {
	return &kafkaConsumer{
		reader:     reader,
		logger:     logger,
		topic:      topic,
		groupID:    groupID,
		retryDelay: time.Second,
	}
}

// Start blocks until ctx is cancelled or Stop is called. The offset of a
// message is committed only when the handler succeeds, so a failed message
// is redelivered after a restart or rebalance.
func (c *kafkaConsumer) Start(ctx context.Context, handler MessageHandler) error {
	consumerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	c.logger.Info("Kafka consumer starting", zap.String("topic", c.topic), zap.String("group_id", c.groupID))

	for {
		msg, err := c.reader.FetchMessage(consumerCtx)
		if err != nil {
			if consumerCtx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Kafka consumer context cancelled, stopping reader.")
				return c.reader.Close()
			}
			c.logger.Error("Failed to fetch message from Kafka", zap.Error(err))
			if !c.sleep(consumerCtx) {
				return c.reader.Close()
			}
			continue
		}

		if handlerErr := handler(consumerCtx, msg); handlerErr != nil {
			c.logger.Error("Error handling Kafka message, will not commit offset",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(handlerErr),
			)
			if !c.sleep(consumerCtx) {
				return c.reader.Close()
			}
			continue
		}

		if commitErr := c.reader.CommitMessages(consumerCtx, msg); commitErr != nil {
			c.logger.Error("Failed to commit offset for Kafka message",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(commitErr),
			)
			continue
		}
		c.logger.Debug("Kafka message offset committed",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
		)
	}
}

func (c *kafkaConsumer) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.retryDelay):
		return true
	}
}

func (c *kafkaConsumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.logger.Info("Kafka consumer stop signal sent.")
}
