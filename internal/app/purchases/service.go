package purchases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"musicstore/internal/app/ledger"
	"musicstore/internal/domain"
	"musicstore/internal/domain/event"
	"musicstore/internal/infrastructure/billing"
	"musicstore/internal/metrics"
	"musicstore/internal/repository/catalog_repo"
	"musicstore/internal/repository/ownership_repo"
	"musicstore/internal/repository/payment_methods_repo"
	"musicstore/internal/util"
)

const refundTimeout = 10 * time.Second

type PurchaseService interface {
	Buy(ctx context.Context, userID int64, ref domain.ItemRef, paymentMethodID *int64) (*domain.PurchaseResult, error)
	IsBought(ctx context.Context, userID int64, ref domain.ItemRef) (bool, error)
	ListOwned(ctx context.Context, userID int64, kind domain.ItemKind) ([]domain.Ownership, error)
}

type purchaseService struct {
	db            *sql.DB
	catalogRepo   catalog_repo.CatalogRepository
	ownershipRepo ownership_repo.OwnershipRepository
	methodRepo    payment_methods_repo.PaymentMethodRepository
	ledger        *ledger.Writer
	gateway       billing.Gateway
	chargeTimeout time.Duration
	logger        *zap.Logger
}

func NewPurchaseService(
	db *sql.DB,
	catalogRepo catalog_repo.CatalogRepository,
	ownershipRepo ownership_repo.OwnershipRepository,
	methodRepo payment_methods_repo.PaymentMethodRepository,
	ledgerWriter *ledger.Writer,
	gateway billing.Gateway,
	chargeTimeout time.Duration,
	logger *zap.Logger,
) PurchaseService {
	return &purchaseService{
		db:            db,
		catalogRepo:   catalogRepo,
		ownershipRepo: ownershipRepo,
		methodRepo:    methodRepo,
		ledger:        ledgerWriter,
		gateway:       gateway,
		chargeTimeout: chargeTimeout,
		logger:        logger,
	}
}

// Buy grants the user ownership of the item, paying from the balance and
// charging paymentMethodID for the shortfall when the balance is too low.
// Either everything (ownership, ledger entries, balance, outbox event) is
// committed or nothing is.
func (s *purchaseService) Buy(ctx context.Context, userID int64, ref domain.ItemRef, paymentMethodID *int64) (*domain.PurchaseResult, error) {
	item, price, err := s.loadItem(ctx, ref)
	if err != nil {
		metrics.RecordPurchase(string(ref.Kind), outcomeOf(err))
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("Не удалось начать транзакцию для покупки", zap.Int64("user_id", userID), zap.Stringer("item", ref), zap.Error(err))
		return nil, fmt.Errorf("не удалось начать транзакцию: %w", err)
	}

	var charge *billing.Charge
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Восстановлена паника во время транзакции покупки, выполняется откат", zap.Int64("user_id", userID), zap.Stringer("item", ref), zap.Any("panic", r))
			tx.Rollback()
			s.refund(charge, userID)
			panic(r)
		}
	}()

	result, err := s.buyTx(ctx, tx, userID, item, price, paymentMethodID, &charge)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Не удалось откатить транзакцию покупки", zap.Int64("user_id", userID), zap.Error(rbErr))
		}
		s.refund(charge, userID)
		metrics.RecordPurchase(string(ref.Kind), outcomeOf(err))
		if domain.IsBusinessError(err) {
			s.logger.Info("Покупка отклонена", zap.Int64("user_id", userID), zap.Stringer("item", ref), zap.Error(err))
			return nil, err
		}
		s.logger.Error("Не удалось выполнить покупку, транзакция откачена", zap.Int64("user_id", userID), zap.Stringer("item", ref), zap.Error(err))
		return nil, fmt.Errorf("не удалось выполнить покупку %s: %w", ref, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Не удалось зафиксировать транзакцию покупки", zap.Int64("user_id", userID), zap.Stringer("item", ref), zap.Error(err))
		s.refund(charge, userID)
		metrics.RecordPurchase(string(ref.Kind), "error")
		return nil, fmt.Errorf("не удалось зафиксировать транзакцию: %w", err)
	}

	metrics.RecordPurchase(string(ref.Kind), "success")
	s.logger.Info("Покупка успешно завершена",
		zap.Int64("user_id", userID),
		zap.Stringer("item", ref),
		zap.String("entry_id", result.EntryID),
		zap.String("price", price.String()),
		zap.String("balance", result.Balance.String()),
		zap.Bool("charged", charge != nil))
	return result, nil
}

func (s *purchaseService) buyTx(ctx context.Context, tx *sql.Tx, userID int64, item domain.Purchasable, price decimal.Decimal, paymentMethodID *int64, charge **billing.Charge) (*domain.PurchaseResult, error) {
	ref := item.Ref()
	account, err := s.ledger.LockAccount(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить счет пользователя %d: %w", userID, err)
	}

	if cover := item.CoveredBy(); cover != nil {
		covered, err := s.ownershipRepo.OwnsTx(ctx, tx, userID, *cover)
		if err != nil {
			return nil, err
		}
		if covered {
			return nil, domain.ErrItemAlreadyBought
		}
	}

	now := time.Now().UTC()
	purchaseEntryID := util.NewID()
	created, err := s.ownershipRepo.CreateTx(ctx, tx, &domain.Ownership{
		ID:            util.NewID(),
		UserID:        userID,
		Item:          ref,
		TransactionID: purchaseEntryID,
		CreatedAt:     now,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, domain.ErrItemAlreadyBought
	}

	if account.Balance.LessThan(price) {
		if paymentMethodID == nil {
			return nil, domain.ErrNotEnoughMoney
		}
		method, err := s.methodRepo.GetForOwnerTx(ctx, tx, userID, *paymentMethodID)
		if err != nil {
			return nil, err
		}

		shortfall := price.Sub(account.Balance)
		c, err := s.charge(ctx, userID, method, shortfall, purchaseEntryID)
		if err != nil {
			s.logger.Warn("Списание с платежного метода не прошло",
				zap.Int64("user_id", userID),
				zap.Int64("payment_method_id", method.ID),
				zap.String("shortfall", shortfall.String()),
				zap.Error(err))
			return nil, fmt.Errorf("%w: %v", domain.ErrNotEnoughMoney, err)
		}
		*charge = c

		topUp := &domain.LedgerEntry{
			ID:              util.NewID(),
			UserID:          userID,
			Amount:          c.Amount,
			Kind:            domain.LedgerKindTopUp,
			PaymentMethodID: &method.ID,
			ExternalRef:     c.ID,
			CreatedAt:       now,
		}
		if err := s.ledger.Post(ctx, tx, account, topUp); err != nil {
			return nil, fmt.Errorf("не удалось зачислить списание %s: %w", c.ID, err)
		}
	}

	purchase := &domain.LedgerEntry{
		ID:          purchaseEntryID,
		UserID:      userID,
		Amount:      price.Neg(),
		Kind:        domain.LedgerKindPurchase,
		ExternalRef: ref.String(),
		CreatedAt:   now,
	}
	if err := s.ledger.Post(ctx, tx, account, purchase); err != nil {
		return nil, err
	}

	evt := event.PurchaseCompletedEvent{
		EntryID:   purchaseEntryID,
		UserID:    userID,
		ItemKind:  string(ref.Kind),
		ItemID:    ref.ID,
		Amount:    price,
		Balance:   account.Balance,
		Timestamp: now,
	}
	if c := *charge; c != nil {
		evt.PaymentMethodID = paymentMethodID
		evt.ChargeID = c.ID
	}
	if err := s.ledger.Emit(ctx, tx, userID, event.TypePurchaseCompleted, evt); err != nil {
		return nil, err
	}

	result := &domain.PurchaseResult{
		Balance: account.Balance,
		Item:    ref,
		EntryID: purchaseEntryID,
		Content: item.UnlockedContent(),
	}
	if c := *charge; c != nil {
		result.ChargeID = c.ID
	}
	return result, nil
}

// loadItem returns the item with the price it is sold for.
func (s *purchaseService) loadItem(ctx context.Context, ref domain.ItemRef) (domain.Purchasable, decimal.Decimal, error) {
	item, err := s.catalogRepo.GetItem(ctx, s.db, ref)
	if err != nil {
		return nil, decimal.Zero, err
	}
	details := item.Details()
	if !details.Purchasable() {
		s.logger.Warn("Попытка купить товар без цены", zap.Stringer("item", ref))
		return nil, decimal.Zero, domain.ErrItemNotPurchasable
	}
	return item, *details.Price, nil
}

func (s *purchaseService) charge(ctx context.Context, userID int64, method *domain.PaymentMethod, amount decimal.Decimal, idempotencyKey string) (*billing.Charge, error) {
	chargeCtx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	defer cancel()

	start := time.Now()
	c, err := s.gateway.Charge(chargeCtx, billing.ChargeRequest{
		UserID:          userID,
		PaymentMethodID: method.ID,
		MethodDetails:   method.Details,
		Amount:          amount,
		IdempotencyKey:  idempotencyKey,
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, billing.ErrChargeDeclined) {
			outcome = "declined"
		} else if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.RecordCharge(outcome, time.Since(start))
		return nil, err
	}
	metrics.RecordCharge("success", time.Since(start))
	return c, nil
}

// refund compensates a captured charge whose purchase did not commit.
func (s *purchaseService) refund(charge *billing.Charge, userID int64) {
	if charge == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refundTimeout)
	defer cancel()

	if err := s.gateway.Refund(ctx, charge.ID); err != nil {
		metrics.RecordRefund("error")
		s.logger.Error("Не удалось вернуть списание после отката покупки, требуется ручная обработка",
			zap.Int64("user_id", userID),
			zap.String("charge_id", charge.ID),
			zap.String("amount", charge.Amount.String()),
			zap.Error(err))
		return
	}
	metrics.RecordRefund("success")
	s.logger.Info("Списание возвращено после отката покупки", zap.Int64("user_id", userID), zap.String("charge_id", charge.ID))
}

func (s *purchaseService) IsBought(ctx context.Context, userID int64, ref domain.ItemRef) (bool, error) {
	return s.ownershipRepo.IsBought(ctx, userID, ref)
}

func (s *purchaseService) ListOwned(ctx context.Context, userID int64, kind domain.ItemKind) ([]domain.Ownership, error) {
	return s.ownershipRepo.ListByUser(ctx, userID, kind)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrItemAlreadyBought):
		return "already_bought"
	case errors.Is(err, domain.ErrNotEnoughMoney):
		return "not_enough_money"
	case errors.Is(err, domain.ErrPaymentNotFound):
		return "payment_not_found"
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrItemNotPurchasable):
		return "not_purchasable"
	default:
		return "error"
	}
}
