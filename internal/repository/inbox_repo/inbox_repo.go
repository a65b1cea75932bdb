package inbox_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"musicstore/internal/domain"
)

const uniqueViolation = "23505"

type inboxRepository struct {
	db *sql.DB
}

func NewInboxRepository(db *sql.DB) *inboxRepository {
	return &inboxRepository{db: db}
}

// CreateMessageTx records an incoming event. A second event with the same id
// yields domain.ErrMessageAlreadyProcessed.
func (r *inboxRepository) CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error {
	query := `
		INSERT INTO inbox_messages (id, kafka_topic, kafka_partition, kafka_offset, consumer_group, payload, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := querier.ExecContext(ctx, query,
		msg.ID,
		msg.KafkaTopic,
		msg.KafkaPartition,
		msg.KafkaOffset,
		msg.ConsumerGroup,
		msg.Payload,
		string(msg.Status),
		msg.ReceivedAt,
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrMessageAlreadyProcessed
		}
		return fmt.Errorf("failed to create inbox message: %w", err)
	}
	return nil
}

func (r *inboxRepository) UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.InboxMessageStatus) error {
	query := `
		UPDATE inbox_messages
		SET status = $1, processed_at = CASE WHEN $1::VARCHAR = 'PROCESSED' THEN $2 ELSE processed_at END
		WHERE id = $3
	`
	res, err := querier.ExecContext(ctx, query, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update inbox message status %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for inbox message update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("inbox message with id %s not found for status update", id)
	}
	return nil
}
