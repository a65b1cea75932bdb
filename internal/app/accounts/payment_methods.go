package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"musicstore/internal/domain"
)

// CreatePaymentMethod stores a new method. Marking it default demotes the
// owner's previous default in the same transaction.
func (s *accountService) CreatePaymentMethod(ctx context.Context, ownerID int64, title, details string, isDefault bool) (*domain.PaymentMethod, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domain.ErrInvalidTitle
	}

	method := &domain.PaymentMethod{
		OwnerID:   ownerID,
		Title:     title,
		Details:   details,
		IsDefault: isDefault,
		CreatedAt: time.Now().UTC(),
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if isDefault {
			if err := s.methodRepo.ClearDefaultTx(ctx, tx, ownerID); err != nil {
				return err
			}
		}
		return s.methodRepo.CreateTx(ctx, tx, method)
	})
	if err != nil {
		s.logger.Error("Не удалось создать платежный метод", zap.Int64("user_id", ownerID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Платежный метод создан", zap.Int64("user_id", ownerID), zap.Int64("payment_method_id", method.ID), zap.Bool("is_default", isDefault))
	return method, nil
}

func (s *accountService) ListPaymentMethods(ctx context.Context, ownerID int64) ([]domain.PaymentMethod, error) {
	return s.methodRepo.ListByOwner(ctx, ownerID)
}

func (s *accountService) SetDefaultPaymentMethod(ctx context.Context, ownerID, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.methodRepo.GetForOwnerTx(ctx, tx, ownerID, id); err != nil {
			return err
		}
		if err := s.methodRepo.ClearDefaultTx(ctx, tx, ownerID); err != nil {
			return err
		}
		return s.methodRepo.SetDefaultTx(ctx, tx, ownerID, id)
	})
}

// DeletePaymentMethod hides the method; ledger entries keep referencing it.
func (s *accountService) DeletePaymentMethod(ctx context.Context, ownerID, id int64) error {
	if err := s.methodRepo.SoftDeleteTx(ctx, s.db, ownerID, id); err != nil {
		return err
	}
	s.logger.Info("Платежный метод удален", zap.Int64("user_id", ownerID), zap.Int64("payment_method_id", id))
	return nil
}

func (s *accountService) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("не удалось начать транзакцию: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Не удалось откатить транзакцию", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("не удалось зафиксировать транзакцию: %w", err)
	}
	return nil
}
