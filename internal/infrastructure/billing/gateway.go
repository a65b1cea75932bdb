// Package billing talks to the external payment provider that charges a
// user's payment method when the store balance is short.
package billing

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrChargeDeclined = errors.New("charge declined by payment provider")

// Gateway charges and refunds payment methods.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*Charge, error)
	Refund(ctx context.Context, chargeID string) error
}

type ChargeRequest struct {
	UserID          int64
	PaymentMethodID int64
	MethodDetails   string
	Amount          decimal.Decimal
	IdempotencyKey  string
}

// Charge is a captured payment. Amount may exceed the requested amount when
// the provider applies a minimum charge.
type Charge struct {
	ID     string
	Amount decimal.Decimal
}
