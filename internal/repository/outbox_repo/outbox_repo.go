package outbox_repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"musicstore/internal/domain"
)

type outboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *outboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (id, aggregate_id, aggregate_type, message_type, topic, key_value, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := querier.ExecContext(ctx, query,
		msg.ID,
		msg.AggregateID,
		msg.AggregateType,
		msg.MessageType,
		msg.Topic,
		msg.Key,
		msg.Payload,
		string(msg.Status),
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	return nil
}

// GetPendingMessages locks up to limit pending rows. Call it inside a
// transaction so concurrent processors skip each other's batch.
func (r *outboxRepository) GetPendingMessages(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error) {
	query := `
		SELECT id, aggregate_id, aggregate_type, message_type, topic, key_value, payload, status, attempts, created_at, sent_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := querier.QueryContext(ctx, query, string(domain.OutboxStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.OutboxMessage
	for rows.Next() {
		msg := domain.OutboxMessage{}
		var (
			status string
			sentAt sql.NullTime
		)
		err := rows.Scan(
			&msg.ID,
			&msg.AggregateID,
			&msg.AggregateType,
			&msg.MessageType,
			&msg.Topic,
			&msg.Key,
			&msg.Payload,
			&status,
			&msg.Attempts,
			&msg.CreatedAt,
			&sentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		msg.Status = domain.OutboxMessageStatus(status)
		if sentAt.Valid {
			msg.SentAt = &sentAt.Time
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}

	return messages, nil
}

func (r *outboxRepository) UpdateMessageStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.OutboxMessageStatus) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, sent_at = $2
		WHERE id = $3
	`
	var sentAt sql.NullTime
	if status == domain.OutboxStatusSent {
		sentAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	res, err := querier.ExecContext(ctx, query, string(status), sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to update outbox message status for id %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for outbox update (id %s): %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no outbox message found with id %s to update status", id)
	}
	return nil
}

// RegisterFailedAttemptTx counts a failed publish and parks the message as
// FAILED once maxAttempts is reached.
func (r *outboxRepository) RegisterFailedAttemptTx(ctx context.Context, querier domain.Querier, id string, maxAttempts int) error {
	query := `
		UPDATE outbox_messages
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= $1 THEN $2 ELSE status END
		WHERE id = $3
	`
	if _, err := querier.ExecContext(ctx, query, maxAttempts, string(domain.OutboxStatusFailed), id); err != nil {
		return fmt.Errorf("failed to register failed attempt for outbox message %s: %w", id, err)
	}
	return nil
}
