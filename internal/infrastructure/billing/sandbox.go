package billing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"musicstore/internal/util"
)

const declinePrefix = "decline"

// Sandbox approves every charge unless the method details start with "decline".
// It is used for local runs and tests.
type Sandbox struct {
	mu       sync.Mutex
	charges  map[string]*Charge
	refunded map[string]bool
	logger   *zap.Logger
}

func NewSandbox(logger *zap.Logger) *Sandbox {
	return &Sandbox{
		charges:  make(map[string]*Charge),
		refunded: make(map[string]bool),
		logger:   logger,
	}
}

func (s *Sandbox) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.ToLower(req.MethodDetails), declinePrefix) {
		s.logger.Info("Sandbox charge declined",
			zap.Int64("user_id", req.UserID),
			zap.Int64("payment_method_id", req.PaymentMethodID))
		return nil, ErrChargeDeclined
	}

	charge := &Charge{ID: "sbx_" + util.NewID(), Amount: req.Amount}

	s.mu.Lock()
	s.charges[charge.ID] = charge
	s.mu.Unlock()

	s.logger.Info("Sandbox charge approved",
		zap.String("charge_id", charge.ID),
		zap.Int64("user_id", req.UserID),
		zap.String("amount", req.Amount.String()))
	return charge, nil
}

func (s *Sandbox) Refund(ctx context.Context, chargeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.charges[chargeID]; !ok {
		return fmt.Errorf("unknown sandbox charge %s", chargeID)
	}
	s.refunded[chargeID] = true
	s.logger.Info("Sandbox charge refunded", zap.String("charge_id", chargeID))
	return nil
}

// Refunded reports whether the charge was refunded.
func (s *Sandbox) Refunded(chargeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refunded[chargeID]
}
