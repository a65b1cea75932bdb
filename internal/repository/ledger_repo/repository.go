package ledger_repo

import (
	"context"

	"musicstore/internal/domain"
)

type LedgerRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, entry *domain.LedgerEntry) error
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.LedgerEntry, error)
	CountByUser(ctx context.Context, userID int64) (int, error)
}
