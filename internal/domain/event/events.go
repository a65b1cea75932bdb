package event

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypePurchaseCompleted = "purchase.completed"
	TypeAccountCredited   = "account.credited"
)

// PurchaseCompletedEvent is published after a Buy commits.
type PurchaseCompletedEvent struct {
	EntryID         string          `json:"entry_id"`
	UserID          int64           `json:"user_id"`
	ItemKind        string          `json:"item_kind"`
	ItemID          int64           `json:"item_id"`
	Amount          decimal.Decimal `json:"amount"`
	Balance         decimal.Decimal `json:"balance"`
	PaymentMethodID *int64          `json:"payment_method_id,omitempty"`
	ChargeID        string          `json:"charge_id,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// AccountCreditedEvent is published for top-ups and incoming refunds.
type AccountCreditedEvent struct {
	EntryID   string          `json:"entry_id"`
	UserID    int64           `json:"user_id"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
	Reference string          `json:"reference,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AccountCreditRequestedEvent приходит из топика биллинга: пополнение или возврат, оформленные вне магазина.
type AccountCreditRequestedEvent struct {
	EventID   string          `json:"event_id"`
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      string          `json:"kind"`
	Reference string          `json:"reference"`
	Timestamp time.Time       `json:"timestamp"`
}
