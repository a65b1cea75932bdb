package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"musicstore/internal/domain"
	"musicstore/internal/domain/event"
	kafka_infra "musicstore/internal/infrastructure/kafka"
)

type CreditProcessor interface {
	ProcessIncomingCredit(ctx context.Context, evt event.AccountCreditRequestedEvent, source domain.InboxMessage) error
}

// AccountCreditMessageHandler applies billing credits. Undecodable messages
// are logged and skipped; processing errors are returned so the offset is
// not committed.
func AccountCreditMessageHandler(processor CreditProcessor, consumerGroup string, logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		logger.Info("Received Kafka message for account credit",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.String("key", string(msg.Key)),
		)

		var creditEvent event.AccountCreditRequestedEvent
		if err := json.Unmarshal(msg.Value, &creditEvent); err != nil {
			logger.Error("Failed to unmarshal Kafka message value to AccountCreditRequestedEvent",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}
		if creditEvent.EventID == "" {
			creditEvent.EventID = fmt.Sprintf("%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
		}

		source := domain.InboxMessage{
			KafkaTopic:     msg.Topic,
			KafkaPartition: msg.Partition,
			KafkaOffset:    msg.Offset,
			ConsumerGroup:  consumerGroup,
			Payload:        msg.Value,
		}
		if err := processor.ProcessIncomingCredit(ctx, creditEvent, source); err != nil {
			logger.Error("Failed to process account credit event",
				zap.String("event_id", creditEvent.EventID),
				zap.Int64("user_id", creditEvent.UserID),
				zap.Error(err),
			)
			return fmt.Errorf("failed to process account credit event %s: %w", creditEvent.EventID, err)
		}

		logger.Info("Successfully processed account credit event",
			zap.String("event_id", creditEvent.EventID),
			zap.Int64("user_id", creditEvent.UserID),
		)
		return nil
	}
}
