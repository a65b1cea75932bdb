package accounts_repo

import (
	"context"

	"github.com/shopspring/decimal"

	"musicstore/internal/domain"
)

type AccountRepository interface {
	EnsureAccountTx(ctx context.Context, querier domain.Querier, userID int64) error
	GetAccountForUserTx(ctx context.Context, querier domain.Querier, userID int64) (*domain.Account, error)
	GetAccountForUser(ctx context.Context, userID int64) (*domain.Account, error)
	UpdateBalanceTx(ctx context.Context, querier domain.Querier, accountID string, delta decimal.Decimal) (decimal.Decimal, error)
}
