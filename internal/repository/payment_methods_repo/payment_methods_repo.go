package payment_methods_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"musicstore/internal/domain"
)

type paymentMethodRepository struct {
	db *sql.DB
}

func NewPaymentMethodRepository(db *sql.DB) *paymentMethodRepository {
	return &paymentMethodRepository{db: db}
}

func (r *paymentMethodRepository) CreateTx(ctx context.Context, querier domain.Querier, method *domain.PaymentMethod) error {
	query := `
		INSERT INTO payment_methods (owner_id, title, details, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := querier.QueryRowContext(ctx, query,
		method.OwnerID,
		method.Title,
		method.Details,
		method.IsDefault,
		method.CreatedAt,
	).Scan(&method.ID)
	if err != nil {
		return fmt.Errorf("failed to create payment method for user %d: %w", method.OwnerID, err)
	}
	return nil
}

// GetForOwnerTx resolves a live method of the owner. Foreign, deleted and
// missing methods all yield domain.ErrPaymentNotFound.
func (r *paymentMethodRepository) GetForOwnerTx(ctx context.Context, querier domain.Querier, ownerID, id int64) (*domain.PaymentMethod, error) {
	query := `
		SELECT id, owner_id, title, details, is_default, created_at
		FROM payment_methods
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL
	`
	method := &domain.PaymentMethod{}
	err := querier.QueryRowContext(ctx, query, id, ownerID).Scan(
		&method.ID,
		&method.OwnerID,
		&method.Title,
		&method.Details,
		&method.IsDefault,
		&method.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment method %d: %w", id, err)
	}
	return method, nil
}

func (r *paymentMethodRepository) ListByOwner(ctx context.Context, ownerID int64) ([]domain.PaymentMethod, error) {
	query := `
		SELECT id, owner_id, title, details, is_default, created_at
		FROM payment_methods
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY is_default DESC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods for user %d: %w", ownerID, err)
	}
	defer rows.Close()

	var methods []domain.PaymentMethod
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Title, &m.Details, &m.IsDefault, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		methods = append(methods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment methods: %w", err)
	}
	return methods, nil
}

func (r *paymentMethodRepository) ClearDefaultTx(ctx context.Context, querier domain.Querier, ownerID int64) error {
	query := `
		UPDATE payment_methods
		SET is_default = FALSE
		WHERE owner_id = $1 AND is_default AND deleted_at IS NULL
	`
	if _, err := querier.ExecContext(ctx, query, ownerID); err != nil {
		return fmt.Errorf("failed to clear default payment method for user %d: %w", ownerID, err)
	}
	return nil
}

func (r *paymentMethodRepository) SetDefaultTx(ctx context.Context, querier domain.Querier, ownerID, id int64) error {
	query := `
		UPDATE payment_methods
		SET is_default = TRUE
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL
	`
	return r.execOwned(ctx, querier, query, id, ownerID)
}

func (r *paymentMethodRepository) SoftDeleteTx(ctx context.Context, querier domain.Querier, ownerID, id int64) error {
	query := `
		UPDATE payment_methods
		SET deleted_at = $3, is_default = FALSE
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL
	`
	return r.execOwned(ctx, querier, query, id, ownerID, time.Now().UTC())
}

func (r *paymentMethodRepository) execOwned(ctx context.Context, querier domain.Querier, query string, id, ownerID int64, extra ...any) error {
	args := append([]any{id, ownerID}, extra...)
	res, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update payment method %d: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for payment method %d: %w", id, err)
	}
	if rowsAffected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}
