package domain

import "time"

type LikeTrack struct {
	UserID    int64
	TrackID   int64
	CreatedAt time.Time
}

type ListenTrack struct {
	ID        int64
	UserID    int64
	TrackID   int64
	CreatedAt time.Time
}

type TrackStats struct {
	TrackID int64
	Likes   int
	Listens int
	IsLiked bool
}
