package outbox

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"musicstore/internal/domain"
	"musicstore/internal/util"
)

const aggregateAccount = "account"

// NewAccountMessage builds a pending outbox message keyed by user, so every
// event of one account lands in the same partition in order.
func NewAccountMessage(userID int64, messageType, topic string, payload any, now time.Time) (*domain.OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", messageType, err)
	}
	key := strconv.FormatInt(userID, 10)
	return &domain.OutboxMessage{
		ID:            util.NewID(),
		AggregateID:   key,
		AggregateType: aggregateAccount,
		MessageType:   messageType,
		Topic:         topic,
		Key:           key,
		Payload:       body,
		Status:        domain.OutboxStatusPending,
		CreatedAt:     now,
	}, nil
}
