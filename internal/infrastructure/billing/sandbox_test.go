package billing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSandbox(t *testing.T) {
	sandbox := NewSandbox(zap.NewNop())

	charge, err := sandbox.Charge(context.Background(), ChargeRequest{MethodDetails: "tok_ok", Amount: decimal.NewFromInt(3)})
	require.NoError(t, err)
	assert.True(t, charge.Amount.Equal(decimal.NewFromInt(3)))

	_, err = sandbox.Charge(context.Background(), ChargeRequest{MethodDetails: "decline_card", Amount: decimal.NewFromInt(3)})
	assert.ErrorIs(t, err, ErrChargeDeclined)

	require.NoError(t, sandbox.Refund(context.Background(), charge.ID))
	assert.True(t, sandbox.Refunded(charge.ID))
	assert.Error(t, sandbox.Refund(context.Background(), "missing"))
}

func TestSandboxHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSandbox(zap.NewNop()).Charge(ctx, ChargeRequest{MethodDetails: "tok", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, context.Canceled)
}
