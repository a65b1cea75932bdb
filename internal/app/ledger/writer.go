// Package ledger keeps the account balance and the ledger in step: every
// balance change goes through Post, which appends the matching entry.
package ledger

import (
	"context"
	"fmt"
	"time"

	"musicstore/internal/domain"
	"musicstore/internal/outbox"
	"musicstore/internal/repository/accounts_repo"
	"musicstore/internal/repository/ledger_repo"
	"musicstore/internal/repository/outbox_repo"
)

type Writer struct {
	accountRepo accounts_repo.AccountRepository
	ledgerRepo  ledger_repo.LedgerRepository
	outboxRepo  outbox_repo.OutboxRepository
	topic       string
}

func NewWriter(
	accountRepo accounts_repo.AccountRepository,
	ledgerRepo ledger_repo.LedgerRepository,
	outboxRepo outbox_repo.OutboxRepository,
	topic string,
) *Writer {
	return &Writer{
		accountRepo: accountRepo,
		ledgerRepo:  ledgerRepo,
		outboxRepo:  outboxRepo,
		topic:       topic,
	}
}

// LockAccount creates the account if needed and locks its row for the rest
// of the transaction. All balance mutations of a user serialize here.
func (w *Writer) LockAccount(ctx context.Context, querier domain.Querier, userID int64) (*domain.Account, error) {
	if err := w.accountRepo.EnsureAccountTx(ctx, querier, userID); err != nil {
		return nil, err
	}
	return w.accountRepo.GetAccountForUserTx(ctx, querier, userID)
}

// Post applies entry.Amount to the locked account and appends the entry.
// account.Balance is updated to the stored value.
func (w *Writer) Post(ctx context.Context, querier domain.Querier, account *domain.Account, entry *domain.LedgerEntry) error {
	balance, err := w.accountRepo.UpdateBalanceTx(ctx, querier, account.ID, entry.Amount)
	if err != nil {
		return err
	}
	if err := w.ledgerRepo.CreateTx(ctx, querier, entry); err != nil {
		return err
	}
	account.Balance = balance
	return nil
}

// Emit queues an account event in the outbox of the current transaction.
func (w *Writer) Emit(ctx context.Context, querier domain.Querier, userID int64, messageType string, payload any) error {
	msg, err := outbox.NewAccountMessage(userID, messageType, w.topic, payload, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := w.outboxRepo.CreateMessageTx(ctx, querier, msg); err != nil {
		return fmt.Errorf("failed to queue %s for user %d: %w", messageType, userID, err)
	}
	return nil
}
