package engagement_repo

import (
	"context"
)

type EngagementRepository interface {
	Like(ctx context.Context, userID, trackID int64) error
	Unlike(ctx context.Context, userID, trackID int64) error
	Listen(ctx context.Context, userID, trackID int64) error
	IsLiked(ctx context.Context, userID, trackID int64) (bool, error)
	CountLikes(ctx context.Context, trackID int64) (int, error)
	CountListens(ctx context.Context, trackID int64) (int, error)
}
