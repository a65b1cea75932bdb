package engagement

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"musicstore/internal/domain"
	"musicstore/internal/repository/catalog_repo"
	"musicstore/internal/repository/engagement_repo"
)

type EngagementService interface {
	Like(ctx context.Context, userID, trackID int64) error
	Unlike(ctx context.Context, userID, trackID int64) error
	Listen(ctx context.Context, userID, trackID int64) error
	IsLiked(ctx context.Context, userID, trackID int64) (bool, error)
	CountLikes(ctx context.Context, trackID int64) (int, error)
	CountListens(ctx context.Context, trackID int64) (int, error)
	Stats(ctx context.Context, userID, trackID int64) (*domain.TrackStats, error)
}

type engagementService struct {
	db             *sql.DB
	catalogRepo    catalog_repo.CatalogRepository
	engagementRepo engagement_repo.EngagementRepository
	logger         *zap.Logger
}

func NewEngagementService(
	db *sql.DB,
	catalogRepo catalog_repo.CatalogRepository,
	engagementRepo engagement_repo.EngagementRepository,
	logger *zap.Logger,
) EngagementService {
	return &engagementService{
		db:             db,
		catalogRepo:    catalogRepo,
		engagementRepo: engagementRepo,
		logger:         logger,
	}
}

func (s *engagementService) trackExists(ctx context.Context, trackID int64) error {
	_, err := s.catalogRepo.GetTrack(ctx, s.db, trackID)
	return err
}

// Like is idempotent.
func (s *engagementService) Like(ctx context.Context, userID, trackID int64) error {
	if err := s.trackExists(ctx, trackID); err != nil {
		return err
	}
	if err := s.engagementRepo.Like(ctx, userID, trackID); err != nil {
		s.logger.Error("Не удалось поставить лайк", zap.Int64("user_id", userID), zap.Int64("track_id", trackID), zap.Error(err))
		return err
	}
	return nil
}

// Unlike is idempotent; removing an absent like is not an error.
func (s *engagementService) Unlike(ctx context.Context, userID, trackID int64) error {
	if err := s.trackExists(ctx, trackID); err != nil {
		return err
	}
	return s.engagementRepo.Unlike(ctx, userID, trackID)
}

func (s *engagementService) Listen(ctx context.Context, userID, trackID int64) error {
	if err := s.trackExists(ctx, trackID); err != nil {
		return err
	}
	if err := s.engagementRepo.Listen(ctx, userID, trackID); err != nil {
		s.logger.Error("Не удалось записать прослушивание", zap.Int64("user_id", userID), zap.Int64("track_id", trackID), zap.Error(err))
		return err
	}
	return nil
}

func (s *engagementService) IsLiked(ctx context.Context, userID, trackID int64) (bool, error) {
	return s.engagementRepo.IsLiked(ctx, userID, trackID)
}

func (s *engagementService) CountLikes(ctx context.Context, trackID int64) (int, error) {
	return s.engagementRepo.CountLikes(ctx, trackID)
}

func (s *engagementService) CountListens(ctx context.Context, trackID int64) (int, error) {
	return s.engagementRepo.CountListens(ctx, trackID)
}

func (s *engagementService) Stats(ctx context.Context, userID, trackID int64) (*domain.TrackStats, error) {
	if err := s.trackExists(ctx, trackID); err != nil {
		return nil, err
	}
	likes, err := s.engagementRepo.CountLikes(ctx, trackID)
	if err != nil {
		return nil, err
	}
	listens, err := s.engagementRepo.CountListens(ctx, trackID)
	if err != nil {
		return nil, err
	}
	liked, err := s.engagementRepo.IsLiked(ctx, userID, trackID)
	if err != nil {
		return nil, err
	}
	return &domain.TrackStats{
		TrackID: trackID,
		Likes:   likes,
		Listens: listens,
		IsLiked: liked,
	}, nil
}
