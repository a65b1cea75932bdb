package ownership_repo

import (
	"context"

	"musicstore/internal/domain"
)

type OwnershipRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, ownership *domain.Ownership) (bool, error)
	OwnsTx(ctx context.Context, querier domain.Querier, userID int64, ref domain.ItemRef) (bool, error)
	IsBought(ctx context.Context, userID int64, ref domain.ItemRef) (bool, error)
	OwnedItemIDs(ctx context.Context, userID int64, kind domain.ItemKind, ids []int64) (map[int64]bool, error)
	ListByUser(ctx context.Context, userID int64, kind domain.ItemKind) ([]domain.Ownership, error)
}
