package catalog_repo

import (
	"context"

	"musicstore/internal/domain"
)

// CatalogRepository reads items written by the catalog import job.
type CatalogRepository interface {
	GetTrack(ctx context.Context, querier domain.Querier, id int64) (*domain.Track, error)
	GetAlbum(ctx context.Context, querier domain.Querier, id int64) (*domain.Album, error)
	GetItem(ctx context.Context, querier domain.Querier, ref domain.ItemRef) (domain.Purchasable, error)
	ListPurchasableTracks(ctx context.Context, limit, offset int) ([]domain.Track, int, error)
	ListPurchasableAlbums(ctx context.Context, limit, offset int) ([]domain.Album, int, error)
}
