package ownership_repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"musicstore/internal/domain"
)

var ownershipTables = map[domain.ItemKind]string{
	domain.ItemKindTrack: "bought_tracks",
	domain.ItemKindAlbum: "bought_albums",
}

func tableFor(kind domain.ItemKind) (string, error) {
	table, ok := ownershipTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown item kind %q", kind)
	}
	return table, nil
}

type ownershipRepository struct {
	db *sql.DB
}

func NewOwnershipRepository(db *sql.DB) *ownershipRepository {
	return &ownershipRepository{db: db}
}

// CreateTx inserts the ownership row and reports whether it was created.
// false means the user already owns the item.
func (r *ownershipRepository) CreateTx(ctx context.Context, querier domain.Querier, ownership *domain.Ownership) (bool, error) {
	table, err := tableFor(ownership.Item.Kind)
	if err != nil {
		return false, err
	}
	query := `
		INSERT INTO ` + table + ` (id, user_id, item_id, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, item_id) DO NOTHING
	`
	res, err := querier.ExecContext(ctx, query,
		ownership.ID,
		ownership.UserID,
		ownership.Item.ID,
		ownership.TransactionID,
		ownership.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create ownership of %s for user %d: %w", ownership.Item, ownership.UserID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for ownership insert: %w", err)
	}
	return rowsAffected == 1, nil
}

// OwnsTx reports whether the user holds an ownership row for exactly ref.
func (r *ownershipRepository) OwnsTx(ctx context.Context, querier domain.Querier, userID int64, ref domain.ItemRef) (bool, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return false, err
	}
	query := `SELECT EXISTS (SELECT 1 FROM ` + table + ` WHERE user_id = $1 AND item_id = $2)`

	var owns bool
	if err := querier.QueryRowContext(ctx, query, userID, ref.ID).Scan(&owns); err != nil {
		return false, fmt.Errorf("failed to check ownership of %s for user %d: %w", ref, userID, err)
	}
	return owns, nil
}

// IsBought treats a track as bought when its album is bought.
func (r *ownershipRepository) IsBought(ctx context.Context, userID int64, ref domain.ItemRef) (bool, error) {
	var query string
	switch ref.Kind {
	case domain.ItemKindTrack:
		query = `
			SELECT EXISTS (SELECT 1 FROM bought_tracks WHERE user_id = $1 AND item_id = $2)
			    OR EXISTS (
			        SELECT 1 FROM bought_albums ba
			        JOIN tracks t ON t.album_id = ba.item_id
			        WHERE ba.user_id = $1 AND t.id = $2
			    )
		`
	case domain.ItemKindAlbum:
		query = `SELECT EXISTS (SELECT 1 FROM bought_albums WHERE user_id = $1 AND item_id = $2)`
	default:
		return false, fmt.Errorf("unknown item kind %q", ref.Kind)
	}

	var bought bool
	if err := r.db.QueryRowContext(ctx, query, userID, ref.ID).Scan(&bought); err != nil {
		return false, fmt.Errorf("failed to check ownership of %s for user %d: %w", ref, userID, err)
	}
	return bought, nil
}

// OwnedItemIDs returns the subset of ids the user owns.
func (r *ownershipRepository) OwnedItemIDs(ctx context.Context, userID int64, kind domain.ItemKind, ids []int64) (map[int64]bool, error) {
	owned := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return owned, nil
	}

	var query string
	switch kind {
	case domain.ItemKindTrack:
		query = `
			SELECT t.id FROM tracks t
			WHERE t.id = ANY($2)
			  AND (EXISTS (SELECT 1 FROM bought_tracks bt WHERE bt.user_id = $1 AND bt.item_id = t.id)
			    OR EXISTS (SELECT 1 FROM bought_albums ba WHERE ba.user_id = $1 AND ba.item_id = t.album_id))
		`
	case domain.ItemKindAlbum:
		query = `SELECT item_id FROM bought_albums WHERE user_id = $1 AND item_id = ANY($2)`
	default:
		return nil, fmt.Errorf("unknown item kind %q", kind)
	}

	rows, err := r.db.QueryContext(ctx, query, userID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query owned %ss for user %d: %w", kind, userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan owned item id: %w", err)
		}
		owned[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating owned items: %w", err)
	}
	return owned, nil
}

func (r *ownershipRepository) ListByUser(ctx context.Context, userID int64, kind domain.ItemKind) ([]domain.Ownership, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT id, user_id, item_id, transaction_id, created_at
		FROM ` + table + `
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned %ss for user %d: %w", kind, userID, err)
	}
	defer rows.Close()

	var result []domain.Ownership
	for rows.Next() {
		o := domain.Ownership{Item: domain.ItemRef{Kind: kind}}
		if err := rows.Scan(&o.ID, &o.UserID, &o.Item.ID, &o.TransactionID, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ownership: %w", err)
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ownerships: %w", err)
	}
	return result, nil
}
