package catalog_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"musicstore/internal/domain"
)

const purchasableFilter = `price IS NOT NULL AND price >= 0`

type catalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *catalogRepository {
	return &catalogRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (*domain.Track, error) {
	var (
		track   domain.Track
		albumID sql.NullInt64
		price   decimal.NullDecimal
	)
	err := row.Scan(
		&track.ID,
		&albumID,
		&track.Title,
		&track.Author,
		&price,
		&track.FullVersion,
		&track.FreeVersion,
		&track.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if albumID.Valid {
		id := albumID.Int64
		track.AlbumID = &id
	}
	if price.Valid {
		p := price.Decimal
		track.Price = &p
	}
	if track.FreeVersion == "" {
		track.FreeVersion = domain.FreePreview(track.FullVersion)
	}
	return &track, nil
}

func scanAlbum(row rowScanner) (*domain.Album, error) {
	var (
		album    domain.Album
		price    decimal.NullDecimal
		trackIDs pq.Int64Array
	)
	err := row.Scan(
		&album.ID,
		&album.Title,
		&album.Author,
		&album.Image,
		&price,
		&album.CreatedAt,
		&trackIDs,
	)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		p := price.Decimal
		album.Price = &p
	}
	album.TrackIDs = []int64(trackIDs)
	return &album, nil
}

const trackColumns = `id, album_id, title, author, price, full_version, free_version, created_at`

const albumColumns = `a.id, a.title, a.author, a.image, a.price, a.created_at,
		ARRAY(SELECT t.id FROM tracks t WHERE t.album_id = a.id ORDER BY t.id)`

func (r *catalogRepository) GetTrack(ctx context.Context, querier domain.Querier, id int64) (*domain.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = $1`
	track, err := scanTrack(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get track %d: %w", id, err)
	}
	return track, nil
}

func (r *catalogRepository) GetAlbum(ctx context.Context, querier domain.Querier, id int64) (*domain.Album, error) {
	query := `SELECT ` + albumColumns + ` FROM albums a WHERE a.id = $1`
	album, err := scanAlbum(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get album %d: %w", id, err)
	}
	return album, nil
}

// GetItem loads the track or album ref points at.
func (r *catalogRepository) GetItem(ctx context.Context, querier domain.Querier, ref domain.ItemRef) (domain.Purchasable, error) {
	switch ref.Kind {
	case domain.ItemKindTrack:
		track, err := r.GetTrack(ctx, querier, ref.ID)
		if err != nil {
			return nil, err
		}
		return track, nil
	case domain.ItemKindAlbum:
		album, err := r.GetAlbum(ctx, querier, ref.ID)
		if err != nil {
			return nil, err
		}
		return album, nil
	}
	return nil, domain.ErrItemNotFound
}

func (r *catalogRepository) ListPurchasableTracks(ctx context.Context, limit, offset int) ([]domain.Track, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks WHERE `+purchasableFilter).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tracks: %w", err)
	}

	query := `SELECT ` + trackColumns + ` FROM tracks WHERE ` + purchasableFilter + ` ORDER BY id LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]domain.Track, 0, limit)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, *track)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating tracks: %w", err)
	}
	return tracks, total, nil
}

func (r *catalogRepository) ListPurchasableAlbums(ctx context.Context, limit, offset int) ([]domain.Album, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM albums WHERE `+purchasableFilter).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count albums: %w", err)
	}

	query := `SELECT ` + albumColumns + ` FROM albums a WHERE a.price IS NOT NULL AND a.price >= 0 ORDER BY a.id LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list albums: %w", err)
	}
	defer rows.Close()

	albums := make([]domain.Album, 0, limit)
	for rows.Next() {
		album, err := scanAlbum(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan album: %w", err)
		}
		albums = append(albums, *album)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating albums: %w", err)
	}
	return albums, total, nil
}
