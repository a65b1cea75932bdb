package util

import (
	"github.com/google/uuid"
)

// NewID returns a random UUIDv4 string used for ledger, ownership and outbox rows.
func NewID() string {
	return uuid.New().String()
}
