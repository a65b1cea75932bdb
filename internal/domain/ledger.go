package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type LedgerEntryKind string

const (
	LedgerKindPurchase LedgerEntryKind = "purchase"
	LedgerKindTopUp    LedgerEntryKind = "topup"
	LedgerKindRefund   LedgerEntryKind = "refund"
)

func (k LedgerEntryKind) Valid() bool {
	switch k {
	case LedgerKindPurchase, LedgerKindTopUp, LedgerKindRefund:
		return true
	}
	return false
}

// LedgerEntry is an append-only record of a balance change.
// Purchases are negative, top-ups and refunds are positive.
type LedgerEntry struct {
	ID              string
	UserID          int64
	Amount          decimal.Decimal
	Kind            LedgerEntryKind
	PaymentMethodID *int64
	ExternalRef     string
	CreatedAt       time.Time
}

type LedgerPage struct {
	Entries  []LedgerEntry
	Total    int
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	// MaxPage keeps (page-1)*pageSize within int.
	MaxPage = math.MaxInt / MaxPageSize
)

// NormalizePage clamps paging parameters to the supported range.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// ValidCreditAmount reports whether amount can be credited: positive and
// representable with cents.
func ValidCreditAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}
