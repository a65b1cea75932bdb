package accounts

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
	"musicstore/internal/repository/accounts_repo"
	"musicstore/internal/repository/inbox_repo"
	"musicstore/internal/repository/ledger_repo"
	"musicstore/internal/repository/payment_methods_repo"
	"musicstore/internal/util"
)

const refundTimeout = 10 * time.Second

type AccountService interface {
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	ListLedger(ctx context.Context, userID int64, page, pageSize int) (*domain.LedgerPage, error)
	TopUp(ctx context.Context, userID, paymentMethodID int64, amount decimal.Decimal) (*domain.Account, error)
	ProcessIncomingCredit(ctx context.Context, evt event.AccountCreditRequestedEvent, source domain.InboxMessage) error

	CreatePaymentMethod(ctx context.Context, ownerID int64, title, details string, isDefault bool) (*domain.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, ownerID int64) ([]domain.PaymentMethod, error)
	SetDefaultPaymentMethod(ctx context.Context, ownerID, id int64) error
	DeletePaymentMethod(ctx context.Context, ownerID, id int64) error
}

type accountService struct {
	db            *sql.DB
	accountRepo   accounts_repo.AccountRepository
	ledgerRepo    ledger_repo.LedgerRepository
	methodRepo    payment_methods_repo.PaymentMethodRepository
	inboxRepo     inbox_repo.InboxRepository
	ledger        *ledger.Writer
	gateway       billing.Gateway
	chargeTimeout time.Duration
	logger        *zap.Logger
}

func NewAccountService(
	db *sql.DB,
	accountRepo accounts_repo.AccountRepository,
	ledgerRepo ledger_repo.LedgerRepository,
	methodRepo payment_methods_repo.PaymentMethodRepository,
	inboxRepo inbox_repo.InboxRepository,
	ledgerWriter *ledger.Writer,
	gateway billing.Gateway,
	chargeTimeout time.Duration,
	logger *zap.Logger,
) AccountService {
	return &accountService{
		db:            db,
		accountRepo:   accountRepo,
		ledgerRepo:    ledgerRepo,
		methodRepo:    methodRepo,
		inboxRepo:     inboxRepo,
		ledger:        ledgerWriter,
		gateway:       gateway,
		chargeTimeout: chargeTimeout,
		logger:        logger,
	}
}

// GetBalance creates an empty account on first access.
func (s *accountService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	if err := s.accountRepo.EnsureAccountTx(ctx, s.db, userID); err != nil {
		return decimal.Zero, fmt.Errorf("не удалось создать счет для пользователя %d: %w", userID, err)
	}
	account, err := s.accountRepo.GetAccountForUser(ctx, userID)
	if err != nil {
		s.logger.Warn("Не удалось получить счет для пользователя", zap.Int64("user_id", userID), zap.Error(err))
		return decimal.Zero, fmt.Errorf("не удалось получить счет для пользователя %d: %w", userID, err)
	}
	return account.Balance, nil
}

func (s *accountService) ListLedger(ctx context.Context, userID int64, page, pageSize int) (*domain.LedgerPage, error) {
	page, pageSize = domain.NormalizePage(page, pageSize)

	total, err := s.ledgerRepo.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledgerRepo.ListByUser(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	return &domain.LedgerPage{
		Entries:  entries,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// TopUp charges the payment method and credits the account with the
// captured amount. A charge whose transaction fails to commit is refunded.
func (s *accountService) TopUp(ctx context.Context, userID, paymentMethodID int64, amount decimal.Decimal) (*domain.Account, error) {
	if !domain.ValidCreditAmount(amount) {
		metrics.RecordCredit(string(domain.LedgerKindTopUp), "invalid")
		return nil, domain.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("Не удалось начать транзакцию для пополнения", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("не удалось начать транзакцию: %w", err)
	}

	var charge *billing.Charge
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Восстановлена паника во время транзакции пополнения, выполняется откат", zap.Int64("user_id", userID), zap.Any("panic", r))
			tx.Rollback()
			s.refund(charge, userID)
			panic(r)
		}
	}()

	account, err := s.topUpTx(ctx, tx, userID, paymentMethodID, amount, &charge)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Не удалось откатить транзакцию пополнения", zap.Int64("user_id", userID), zap.Error(rbErr))
		}
		s.refund(charge, userID)
		metrics.RecordCredit(string(domain.LedgerKindTopUp), "rejected")
		if domain.IsBusinessError(err) {
			s.logger.Info("Пополнение отклонено", zap.Int64("user_id", userID), zap.Int64("payment_method_id", paymentMethodID), zap.Error(err))
			return nil, err
		}
		s.logger.Error("Не удалось выполнить пополнение, транзакция откачена", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("не удалось выполнить пополнение: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Не удалось зафиксировать транзакцию пополнения", zap.Int64("user_id", userID), zap.Error(err))
		s.refund(charge, userID)
		metrics.RecordCredit(string(domain.LedgerKindTopUp), "error")
		return nil, fmt.Errorf("не удалось зафиксировать транзакцию: %w", err)
	}

	metrics.RecordCredit(string(domain.LedgerKindTopUp), "success")
	s.logger.Info("Счет успешно пополнен",
		zap.Int64("user_id", userID),
		zap.Int64("payment_method_id", paymentMethodID),
		zap.String("amount", charge.Amount.String()),
		zap.String("balance", account.Balance.String()),
		zap.String("charge_id", charge.ID))
	return account, nil
}

func (s *accountService) topUpTx(ctx context.Context, tx *sql.Tx, userID, paymentMethodID int64, amount decimal.Decimal, charge **billing.Charge) (*domain.Account, error) {
	account, err := s.ledger.LockAccount(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить счет пользователя %d: %w", userID, err)
	}

	method, err := s.methodRepo.GetForOwnerTx(ctx, tx, userID, paymentMethodID)
	if err != nil {
		return nil, err
	}

	entryID := util.NewID()
	c, err := s.charge(ctx, userID, method, amount, entryID)
	if err != nil {
		s.logger.Warn("Списание для пополнения не прошло",
			zap.Int64("user_id", userID),
			zap.Int64("payment_method_id", method.ID),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentDeclined, err)
	}
	*charge = c

	now := time.Now().UTC()
	entry := &domain.LedgerEntry{
		ID:              entryID,
		UserID:          userID,
		Amount:          c.Amount,
		Kind:            domain.LedgerKindTopUp,
		PaymentMethodID: &method.ID,
		ExternalRef:     c.ID,
		CreatedAt:       now,
	}
	if err := s.ledger.Post(ctx, tx, account, entry); err != nil {
		return nil, fmt.Errorf("не удалось зачислить списание %s: %w", c.ID, err)
	}

	evt := event.AccountCreditedEvent{
		EntryID:   entryID,
		UserID:    userID,
		Kind:      string(domain.LedgerKindTopUp),
		Amount:    c.Amount,
		Balance:   account.Balance,
		Reference: c.ID,
		Timestamp: now,
	}
	if err := s.ledger.Emit(ctx, tx, userID, event.TypeAccountCredited, evt); err != nil {
		return nil, err
	}
	return account, nil
}

// ProcessIncomingCredit applies a credit that billing issued outside the
// store. The inbox row keyed by event id makes redelivery a no-op. Events
// that can never be applied are recorded as FAILED and acknowledged.
func (s *accountService) ProcessIncomingCredit(ctx context.Context, evt event.AccountCreditRequestedEvent, source domain.InboxMessage) error {
	log := s.logger.With(zap.String("event_id", evt.EventID), zap.Int64("user_id", evt.UserID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("Не удалось начать транзакцию для обработки inbox", zap.Error(err))
		return fmt.Errorf("не удалось начать транзакцию: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("Восстановлена паника во время транзакции обработки inbox, выполняется откат", zap.Any("panic", r))
			tx.Rollback()
			panic(r)
		}
	}()

	inboxMsg := source
	inboxMsg.ID = evt.EventID
	inboxMsg.Status = domain.InboxStatusNew
	inboxMsg.ReceivedAt = time.Now().UTC()

	if err := s.inboxRepo.CreateMessageTx(ctx, tx, &inboxMsg); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("Не удалось откатить транзакцию после ошибки записи inbox", zap.Error(rbErr))
		}
		if errors.Is(err, domain.ErrMessageAlreadyProcessed) {
			log.Info("Входящее начисление уже обработано (проверка идемпотентности)")
			metrics.RecordCredit(evt.Kind, "duplicate")
			return nil
		}
		log.Error("Не удалось создать сообщение inbox", zap.Error(err))
		return fmt.Errorf("не удалось записать входящее событие: %w", err)
	}

	status := domain.InboxStatusProcessed
	if err := s.applyCreditTx(ctx, tx, evt); err != nil {
		if !errors.Is(err, domain.ErrInvalidAmount) {
			log.Error("Не удалось применить начисление, транзакция откачена", zap.Error(err))
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("Не удалось откатить транзакцию после сбоя начисления", zap.Error(rbErr))
			}
			return fmt.Errorf("не удалось применить начисление из события %s: %w", evt.EventID, err)
		}
		log.Warn("Входящее начисление некорректно, помечаем inbox как проваленный",
			zap.String("kind", evt.Kind),
			zap.String("amount", evt.Amount.String()))
		status = domain.InboxStatusFailed
	}

	if err := s.inboxRepo.UpdateStatusTx(ctx, tx, evt.EventID, status); err != nil {
		log.Error("Не удалось обновить статус сообщения inbox", zap.String("status", string(status)), zap.Error(err))
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("Не удалось откатить транзакцию после ошибки обновления статуса inbox", zap.Error(rbErr))
		}
		return fmt.Errorf("не удалось пометить событие %s: %w", evt.EventID, err)
	}

	if err := tx.Commit(); err != nil {
		log.Error("Не удалось зафиксировать транзакцию для обработки inbox", zap.Error(err))
		return fmt.Errorf("не удалось зафиксировать транзакцию: %w", err)
	}

	if status == domain.InboxStatusFailed {
		metrics.RecordCredit(evt.Kind, "invalid")
		return nil
	}
	metrics.RecordCredit(evt.Kind, "success")
	log.Info("Входящее начисление успешно обработано", zap.String("kind", evt.Kind), zap.String("amount", evt.Amount.String()))
	return nil
}

func (s *accountService) applyCreditTx(ctx context.Context, tx *sql.Tx, evt event.AccountCreditRequestedEvent) error {
	kind := domain.LedgerEntryKind(evt.Kind)
	if kind != domain.LedgerKindTopUp && kind != domain.LedgerKindRefund {
		return fmt.Errorf("%w: unsupported credit kind %q", domain.ErrInvalidAmount, evt.Kind)
	}
	if evt.UserID <= 0 || !domain.ValidCreditAmount(evt.Amount) {
		return domain.ErrInvalidAmount
	}

	account, err := s.ledger.LockAccount(ctx, tx, evt.UserID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	entry := &domain.LedgerEntry{
		ID:          util.NewID(),
		UserID:      evt.UserID,
		Amount:      evt.Amount,
		Kind:        kind,
		ExternalRef: evt.Reference,
		CreatedAt:   now,
	}
	if err := s.ledger.Post(ctx, tx, account, entry); err != nil {
		return err
	}

	return s.ledger.Emit(ctx, tx, evt.UserID, event.TypeAccountCredited, event.AccountCreditedEvent{
		EntryID:   entry.ID,
		UserID:    evt.UserID,
		Kind:      evt.Kind,
		Amount:    evt.Amount,
		Balance:   account.Balance,
		Reference: evt.Reference,
		Timestamp: now,
	})
}

func (s *accountService) charge(ctx context.Context, userID int64, method *domain.PaymentMethod, amount decimal.Decimal, idempotencyKey string) (*billing.Charge, error) {
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
	switch {
	case err == nil:
		metrics.RecordCharge("success", time.Since(start))
		return c, nil
	case errors.Is(err, billing.ErrChargeDeclined):
		metrics.RecordCharge("declined", time.Since(start))
	case errors.Is(err, context.DeadlineExceeded):
		metrics.RecordCharge("timeout", time.Since(start))
	default:
		metrics.RecordCharge("error", time.Since(start))
	}
	return nil, err
}

func (s *accountService) refund(charge *billing.Charge, userID int64) {
	if charge == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refundTimeout)
	defer cancel()

	if err := s.gateway.Refund(ctx, charge.ID); err != nil {
		metrics.RecordRefund("error")
		s.logger.Error("Не удалось вернуть списание после отката пополнения, требуется ручная обработка",
			zap.Int64("user_id", userID),
			zap.String("charge_id", charge.ID),
			zap.String("amount", charge.Amount.String()),
			zap.Error(err))
		return
	}
	metrics.RecordRefund("success")
	s.logger.Info("Списание возвращено после отката пополнения", zap.Int64("user_id", userID), zap.String("charge_id", charge.ID))
}
