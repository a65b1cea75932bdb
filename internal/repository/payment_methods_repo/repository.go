package payment_methods_repo

import (
	"context"

	"musicstore/internal/domain"
)

type PaymentMethodRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, method *domain.PaymentMethod) error
	GetForOwnerTx(ctx context.Context, querier domain.Querier, ownerID, id int64) (*domain.PaymentMethod, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.PaymentMethod, error)
	ClearDefaultTx(ctx context.Context, querier domain.Querier, ownerID int64) error
	SetDefaultTx(ctx context.Context, querier domain.Querier, ownerID, id int64) error
	SoftDeleteTx(ctx context.Context, querier domain.Querier, ownerID, id int64) error
}
