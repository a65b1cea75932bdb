package accounts_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"musicstore/internal/domain"
	"musicstore/internal/util"
)

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *accountRepository {
	return &accountRepository{db: db}
}

// EnsureAccountTx creates an empty account for the user unless one exists.
func (r *accountRepository) EnsureAccountTx(ctx context.Context, querier domain.Querier, userID int64) error {
	query := `
		INSERT INTO accounts (id, user_id, balance, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := querier.ExecContext(ctx, query, util.NewID(), userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to ensure account for user %d: %w", userID, err)
	}
	return nil
}

// GetAccountForUserTx locks the account row until the surrounding transaction ends.
func (r *accountRepository) GetAccountForUserTx(ctx context.Context, querier domain.Querier, userID int64) (*domain.Account, error) {
	query := `
		SELECT id, user_id, balance, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE
	`
	return scanAccount(querier.QueryRowContext(ctx, query, userID), userID)
}

func (r *accountRepository) GetAccountForUser(ctx context.Context, userID int64) (*domain.Account, error) {
	query := `
		SELECT id, user_id, balance, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
	`
	return scanAccount(r.db.QueryRowContext(ctx, query, userID), userID)
}

func scanAccount(row *sql.Row, userID int64) (*domain.Account, error) {
	account := &domain.Account{}
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account for user %d: %w", userID, err)
	}
	return account, nil
}

// UpdateBalanceTx applies delta and returns the new balance. A change that
// would make the balance negative is refused with domain.ErrNotEnoughMoney.
func (r *accountRepository) UpdateBalanceTx(ctx context.Context, querier domain.Querier, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $1, updated_at = $2
		WHERE id = $3 AND balance + $1 >= 0
		RETURNING balance
	`
	var balance decimal.Decimal
	err := querier.QueryRowContext(ctx, query, delta, time.Now().UTC(), accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, domain.ErrNotEnoughMoney
		}
		return decimal.Zero, fmt.Errorf("failed to update account balance for %s: %w", accountID, err)
	}
	return balance, nil
}
