package ledger_repo

import (
	"context"
	"database/sql"
	"fmt"

	"musicstore/internal/domain"
)

type ledgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *ledgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) CreateTx(ctx context.Context, querier domain.Querier, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, user_id, amount, kind, payment_method_id, external_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var methodID sql.NullInt64
	if entry.PaymentMethodID != nil {
		methodID = sql.NullInt64{Int64: *entry.PaymentMethodID, Valid: true}
	}
	externalRef := sql.NullString{String: entry.ExternalRef, Valid: entry.ExternalRef != ""}

	_, err := querier.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Amount,
		string(entry.Kind),
		methodID,
		externalRef,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create %s ledger entry for user %d: %w", entry.Kind, entry.UserID, err)
	}
	return nil
}

// ListByUser returns the user's entries, newest first. Entries of one
// transaction share created_at and come back in reverse insert order.
func (r *ledgerRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.LedgerEntry, error) {
	query := `
		SELECT id, user_id, amount, kind, payment_method_id, external_ref, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries for user %d: %w", userID, err)
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, limit)
	for rows.Next() {
		var (
			entry       domain.LedgerEntry
			kind        string
			methodID    sql.NullInt64
			externalRef sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Amount, &kind, &methodID, &externalRef, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entry.Kind = domain.LedgerEntryKind(kind)
		if methodID.Valid {
			id := methodID.Int64
			entry.PaymentMethodID = &id
		}
		entry.ExternalRef = externalRef.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}

func (r *ledgerRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count ledger entries for user %d: %w", userID, err)
	}
	return total, nil
}
