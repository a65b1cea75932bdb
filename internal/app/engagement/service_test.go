package engagement

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"musicstore/internal/domain"
	"musicstore/internal/repository/catalog_repo"
	"musicstore/internal/repository/engagement_repo"
)

func newTestService(t *testing.T) (EngagementService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewEngagementService(db, catalog_repo.NewCatalogRepository(db), engagement_repo.NewEngagementRepository(db), zap.NewNop())
	return svc, mock
}

func expectTrack(mock sqlmock.Sqlmock, id int64) {
	mock.ExpectQuery("FROM tracks WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "album_id", "title", "author", "price", "full_version", "free_version", "created_at"}).
			AddRow(id, nil, "Song", "Band", "1.00", "lyrics", "", time.Now()))
}

func TestLikeIsIdempotent(t *testing.T) {
	svc, mock := newTestService(t)

	for i := 0; i < 2; i++ {
		expectTrack(mock, 5)
		mock.ExpectExec("INSERT INTO like_tracks").
			WithArgs(int64(1), int64(5), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, int64(1-i)))
	}

	require.NoError(t, svc.Like(context.Background(), 1, 5))
	require.NoError(t, svc.Like(context.Background(), 1, 5))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlikeWithoutLike(t *testing.T) {
	svc, mock := newTestService(t)

	expectTrack(mock, 5)
	mock.ExpectExec("DELETE FROM like_tracks").
		WithArgs(int64(1), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, svc.Unlike(context.Background(), 1, 5))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListenUnknownTrack(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("FROM tracks").
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	err := svc.Listen(context.Background(), 1, 404)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	svc, mock := newTestService(t)

	expectTrack(mock, 5)
	mock.ExpectQuery("FROM like_tracks WHERE track_id").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("FROM listen_tracks WHERE track_id").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(17))
	mock.ExpectQuery("FROM like_tracks WHERE user_id").
		WithArgs(int64(1), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	stats, err := svc.Stats(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.TrackStats{TrackID: 5, Likes: 3, Listens: 17, IsLiked: true}, *stats)
	require.NoError(t, mock.ExpectationsWereMet())
}
