// Package catalog serves the purchasable listings. Items are written by the
// catalog import job; this package only reads them.
package catalog

import (
	"context"

	"go.uber.org/zap"

	"musicstore/internal/domain"
	"musicstore/internal/repository/catalog_repo"
	"musicstore/internal/repository/ownership_repo"
)

type TrackView struct {
	domain.Track
	IsBought bool
	// Content is the full version for owners and the free preview otherwise.
	Content string
}

type AlbumView struct {
	domain.Album
	IsBought bool
}

type TrackPage struct {
	Items    []TrackView
	Total    int
	Page     int
	PageSize int
}

type AlbumPage struct {
	Items    []AlbumView
	Total    int
	Page     int
	PageSize int
}

type CatalogService interface {
	ListTracks(ctx context.Context, userID int64, page, pageSize int) (*TrackPage, error)
	ListAlbums(ctx context.Context, userID int64, page, pageSize int) (*AlbumPage, error)
}

type catalogService struct {
	catalogRepo   catalog_repo.CatalogRepository
	ownershipRepo ownership_repo.OwnershipRepository
	logger        *zap.Logger
}

func NewCatalogService(catalogRepo catalog_repo.CatalogRepository, ownershipRepo ownership_repo.OwnershipRepository, logger *zap.Logger) CatalogService {
	return &catalogService{
		catalogRepo:   catalogRepo,
		ownershipRepo: ownershipRepo,
		logger:        logger,
	}
}

func (s *catalogService) ListTracks(ctx context.Context, userID int64, page, pageSize int) (*TrackPage, error) {
	page, pageSize = domain.NormalizePage(page, pageSize)
	tracks, total, err := s.catalogRepo.ListPurchasableTracks(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	owned, err := s.ownershipRepo.OwnedItemIDs(ctx, userID, domain.ItemKindTrack, ids)
	if err != nil {
		return nil, err
	}

	items := make([]TrackView, len(tracks))
	for i, t := range tracks {
		view := TrackView{Track: t, IsBought: owned[t.ID], Content: t.FreeVersion}
		if view.IsBought {
			view.Content = t.FullVersion
		}
		items[i] = view
	}
	return &TrackPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *catalogService) ListAlbums(ctx context.Context, userID int64, page, pageSize int) (*AlbumPage, error) {
	page, pageSize = domain.NormalizePage(page, pageSize)
	albums, total, err := s.catalogRepo.ListPurchasableAlbums(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(albums))
	for i, a := range albums {
		ids[i] = a.ID
	}
	owned, err := s.ownershipRepo.OwnedItemIDs(ctx, userID, domain.ItemKindAlbum, ids)
	if err != nil {
		return nil, err
	}

	items := make([]AlbumView, len(albums))
	for i, a := range albums {
		items[i] = AlbumView{Album: a, IsBought: owned[a.ID]}
	}
	return &AlbumPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}
