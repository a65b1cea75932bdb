package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"musicstore/internal/domain"
	"musicstore/internal/metrics"
)

type OutboxRepository interface {
	GetPendingMessages(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error)
	UpdateMessageStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.OutboxMessageStatus) error
	RegisterFailedAttemptTx(ctx context.Context, querier domain.Querier, id string, maxAttempts int) error
}

// Producer is implemented by the Kafka and RabbitMQ publishers.
type Producer interface {
	Produce(ctx context.Context, key, topic string, value []byte) error
	Close() error
}

const defaultMaxAttempts = 10

type Processor struct {
	db           *sql.DB
	outboxRepo   OutboxRepository
	producer     Producer
	pollInterval time.Duration
	pollTimeout  time.Duration
	batchSize    int
	maxAttempts  int
	logger       *zap.Logger
}

func NewProcessor(
	db *sql.DB,
	outboxRepo OutboxRepository,
	producer Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Processor {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Processor{
		db:           db,
		outboxRepo:   outboxRepo,
		producer:     producer,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		batchSize:    batchSize,
		maxAttempts:  defaultMaxAttempts,
		logger:       logger,
	}
}

// Start polls the outbox until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor...", zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor context cancelled, stopping.")
			return
		case <-ticker.C:
			if _, err := p.processOutboxMessages(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("Failed to process outbox batch", zap.Error(err))
			}
		}
	}
}

// processOutboxMessages publishes one batch inside a single transaction and
// returns how many messages were sent.
func (p *Processor) processOutboxMessages(ctx context.Context) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin outbox transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	queryCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	messages, err := p.outboxRepo.GetPendingMessages(queryCtx, tx, p.batchSize)
	cancel()
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages found.")
		return 0, tx.Rollback()
	}

	p.logger.Info("Found pending outbox messages", zap.Int("count", len(messages)))

	sent := 0
	for _, msg := range messages {
		if err := p.producer.Produce(ctx, msg.Key, msg.Topic, msg.Payload); err != nil {
			metrics.RecordOutboxPublish("error")
			p.logger.Error("Failed to publish outbox message",
				zap.String("message_id", msg.ID),
				zap.String("message_type", msg.MessageType),
				zap.String("topic", msg.Topic),
				zap.Int("attempts", msg.Attempts+1),
				zap.Error(err))
			if err := p.outboxRepo.RegisterFailedAttemptTx(ctx, tx, msg.ID, p.maxAttempts); err != nil {
				tx.Rollback()
				return sent, err
			}
			continue
		}

		if err := p.outboxRepo.UpdateMessageStatusTx(ctx, tx, msg.ID, domain.OutboxStatusSent); err != nil {
			tx.Rollback()
			return sent, err
		}
		metrics.RecordOutboxPublish("sent")
		sent++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit outbox transaction: %w", err)
	}
	p.logger.Info("Outbox batch processed", zap.Int("sent", sent), zap.Int("failed", len(messages)-sent))
	return sent, nil
}
