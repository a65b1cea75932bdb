package domain

import "time"

type OutboxMessageStatus string

const (
	OutboxStatusPending OutboxMessageStatus = "PENDING"
	OutboxStatusSent    OutboxMessageStatus = "SENT"
	OutboxStatusFailed  OutboxMessageStatus = "FAILED"
)

// OutboxMessage - событие леджера, записанное в той же транзакции, что и изменение баланса.
type OutboxMessage struct {
	ID            string
	AggregateID   string
	AggregateType string
	MessageType   string
	Topic         string
	Key           string
	Payload       []byte
	Status        OutboxMessageStatus
	Attempts      int
	CreatedAt     time.Time
	SentAt        *time.Time
}
