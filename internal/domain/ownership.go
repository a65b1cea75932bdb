package domain

import "time"

// Ownership grants the user a bought item. It references the purchase ledger entry.
type Ownership struct {
	ID            string
	UserID        int64
	Item          ItemRef
	TransactionID string
	CreatedAt     time.Time
}
