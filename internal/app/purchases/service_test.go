package purchases

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"musicstore/internal/app/ledger"
	"musicstore/internal/domain"
	"musicstore/internal/infrastructure/billing"
	"musicstore/internal/repository/accounts_repo"
	"musicstore/internal/repository/catalog_repo"
	"musicstore/internal/repository/ledger_repo"
	"musicstore/internal/repository/outbox_repo"
	"musicstore/internal/repository/ownership_repo"
	"musicstore/internal/repository/payment_methods_repo"
)

const (
	userID    = int64(42)
	accountID = "acc-42"
)

// decimalArg matches a decimal query argument by value.
type decimalArg string

func (d decimalArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	got, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return got.Equal(decimal.RequireFromString(string(d)))
}

type fakeGateway struct {
	mu       sync.Mutex
	err      error
	delay    time.Duration
	extra    decimal.Decimal
	requests []billing.ChargeRequest
	refunds  []string
}

func (g *fakeGateway) Charge(ctx context.Context, req billing.ChargeRequest) (*billing.Charge, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.delay):
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return &billing.Charge{ID: "ch_1", Amount: req.Amount.Add(g.extra)}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, chargeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, chargeID)
	return nil
}

func newTestService(t *testing.T, gw billing.Gateway, chargeTimeout time.Duration) (PurchaseService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	writer := ledger.NewWriter(
		accounts_repo.NewAccountRepository(db),
		ledger_repo.NewLedgerRepository(db),
		outbox_repo.NewOutboxRepository(db),
		"ledger_events",
	)
	svc := NewPurchaseService(
		db,
		catalog_repo.NewCatalogRepository(db),
		ownership_repo.NewOwnershipRepository(db),
		payment_methods_repo.NewPaymentMethodRepository(db),
		writer,
		gw,
		chargeTimeout,
		zap.NewNop(),
	)
	return svc, mock
}

func expectTrack(mock sqlmock.Sqlmock, id int64, albumID, price any) {
	mock.ExpectQuery("FROM tracks WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "album_id", "title", "author", "price", "full_version", "free_version", "created_at"}).
			AddRow(id, albumID, "Song", "Band", price, "full lyrics of the song", "", time.Now()))
}

func expectAlbum(mock sqlmock.Sqlmock, id int64, price any) {
	mock.ExpectQuery("FROM albums a WHERE a.id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author", "image", "price", "created_at", "array"}).
			AddRow(id, "LP", "Band", "", price, time.Now(), "{}"))
}

func expectLockAccount(mock sqlmock.Sqlmock, balance string) {
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WithArgs(sqlmock.AnyArg(), userID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM accounts\\s+WHERE user_id = \\$1\\s+FOR UPDATE").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance", "created_at", "updated_at"}).
			AddRow(accountID, userID, balance, time.Now(), time.Now()))
}

func expectOwnershipInsert(mock sqlmock.Sqlmock, table string, itemID int64, created bool) {
	affected := int64(0)
	if created {
		affected = 1
	}
	mock.ExpectExec("INSERT INTO "+table).
		WithArgs(sqlmock.AnyArg(), userID, itemID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, affected))
}

func expectPost(mock sqlmock.Sqlmock, delta, newBalance, kind string) {
	mock.ExpectQuery("UPDATE accounts").
		WithArgs(decimalArg(delta), sqlmock.AnyArg(), accountID).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(newBalance))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(sqlmock.AnyArg(), userID, decimalArg(delta), kind, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func expectOutbox(mock sqlmock.Sqlmock) {
	mock.ExpectExec("INSERT INTO outbox_messages").
		WithArgs(sqlmock.AnyArg(), "42", "account", "purchase.completed", "ledger_events", "42", sqlmock.AnyArg(), "PENDING", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func expectPaymentMethod(mock sqlmock.Sqlmock, id int64, details string) {
	mock.ExpectQuery("FROM payment_methods").
		WithArgs(id, userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "title", "details", "is_default", "created_at"}).
			AddRow(id, userID, "Card", details, false, time.Now()))
}

func methodRef(id int64) *int64 { return &id }

func TestBuyAlbumFromBalance(t *testing.T) {
	gw := &fakeGateway{}
	svc, mock := newTestService(t, gw, time.Second)

	expectAlbum(mock, 1, "10.00")
	mock.ExpectBegin()
	expectLockAccount(mock, "15.00")
	expectOwnershipInsert(mock, "bought_albums", 1, true)
	expectPost(mock, "-10", "5.00", "purchase")
	expectOutbox(mock)
	mock.ExpectCommit()

	result, err := svc.Buy(context.Background(), userID, domain.AlbumRef(1), nil)
	require.NoError(t, err)
	assert.True(t, result.Balance.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, domain.AlbumRef(1), result.Item)
	assert.Nil(t, result.Content)
	assert.Empty(t, result.ChargeID)
	assert.Empty(t, gw.requests)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyTrackChargesShortfall(t *testing.T) {
	gw := &fakeGateway{}
	svc, mock := newTestService(t, gw, time.Second)

	expectTrack(mock, 3, nil, "10.00")
	mock.ExpectBegin()
	expectLockAccount(mock, "3.00")
	expectOwnershipInsert(mock, "bought_tracks", 3, true)
	expectPaymentMethod(mock, 5, "tok_visa")
	expectPost(mock, "7", "10.00", "topup")
	expectPost(mock, "-10", "0.00", "purchase")
	expectOutbox(mock)
	mock.ExpectCommit()

	result, err := svc.Buy(context.Background(), userID, domain.TrackRef(3), methodRef(5))
	require.NoError(t, err)

	require.Len(t, gw.requests, 1)
	assert.True(t, gw.requests[0].Amount.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, "tok_visa", gw.requests[0].MethodDetails)
	assert.Equal(t, result.EntryID, gw.requests[0].IdempotencyKey)

	assert.True(t, result.Balance.IsZero())
	assert.Equal(t, "ch_1", result.ChargeID)
	require.NotNil(t, result.Content)
	assert.Equal(t, "full lyrics of the song", *result.Content)
	assert.Empty(t, gw.refunds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyKeepsChargeAboveShortfall(t *testing.T) {
	gw := &fakeGateway{extra: decimal.NewFromInt(3)}
	svc, mock := newTestService(t, gw, time.Second)

	expectAlbum(mock, 1, "10.00")
	mock.ExpectBegin()
	expectLockAccount(mock, "3.00")
	expectOwnershipInsert(mock, "bought_albums", 1, true)
	expectPaymentMethod(mock, 5, "tok_visa")
	expectPost(mock, "10", "13.00", "topup")
	expectPost(mock, "-10", "3.00", "purchase")
	expectOutbox(mock)
	mock.ExpectCommit()

	result, err := svc.Buy(context.Background(), userID, domain.AlbumRef(1), methodRef(5))
	require.NoError(t, err)
	assert.True(t, result.Balance.Equal(decimal.NewFromInt(3)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyNotEnoughMoneyWithoutPaymentMethod(t *testing.T) {
	gw := &fakeGateway{}
	svc, mock := newTestService(t, gw, time.Second)

	expectAlbum(mock, 1, "10.00")
	mock.ExpectBegin()
	expectLockAccount(mock, "3.00")
	expectOwnershipInsert(mock, "bought_albums", 1, true)
	mock.ExpectRollback()

	_, err := svc.Buy(context.Background(), userID, domain.AlbumRef(1), nil)
	assert.ErrorIs(t, err, domain.ErrNotEnoughMoney)
	assert.Empty(t, gw.requests)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyPaymentMethodNotFound(t *testing.T) {
	gw := &fakeGateway{}
	svc, mock := newTestService(t, gw, time.Second)

	expectAlbum(mock, 1, "10.00")
	mock.ExpectBegin()
	expectLockAccount(mock, "3.00")
	expectOwnershipInsert(mock, "bought_albums", 1, true)
	mock.ExpectQuery("FROM payment_methods").
		WithArgs(int64(99), userID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := svc.Buy(context.Background(), userID, domain.AlbumRef(1), methodRef(99))
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	assert.Empty(t, gw.requests)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyAlreadyBought(t *testing.T) {
	gw := &fakeGateway{}
	svc, mock := newTestService(t, gw, time.Second)

	expectAlbum(mock, 1, "10.00")
	mock.ExpectBegin()
	expectLockAccount(mock, "50.00")
	expectOwnershipInsert(mock, "bought_albums", 1, false)
	mock.ExpectRollback()

	_, err := svc.Buy(context.Background(), userID, domain.AlbumRef(1), methodRef(5))
	assert.ErrorIs(t, err, domain.ErrItemAlreadyBought)
	assert.Empty(t, gw.requests)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyTrackOwnedThroughAlbum(t *testing.T) {
	svc, mock := newTestService(t, &fakeGateway{}, time.Second)

	expectTrack(mock, 3, int64(9), "1.00")
	mock.ExpectBegin()
	expectLockAccount(mock, "50.00")
	mock.ExpectQuery(regexp.QuoteMeta("FROM bought_albums WHERE user_id = $1 AND item_id = $2")).
		WithArgs(userID, int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := svc.Buy(context.Background(), userID, domain.TrackRef(3), nil)
	assert.ErrorIs(t, err, domain.ErrItemAlreadyBought)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyTrackOfUnownedAlbum(t *testing.T) {
	svc, mock := newTestService(t, &fakeGateway{}, time.Second)

	expectTrack(mock, 3, int64(9), "1.00")
	mock.ExpectBegin()
	expectLockAccount(mock, "5.00")
	mock.ExpectQuery(regexp.QuoteMeta("FROM bought_albums WHERE user_id = $1 AND item_id = $2")).
		WithArgs(userID, int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	expectOwnershipInsert(mock, "bought_tracks", 3, true)
	expectPost(mock, "-1", "4.00", "purchase")
	expectOutbox(mock)
	mock.ExpectCommit()

	result, err := svc.Buy(context.Background(), userID, domain.TrackRef(3), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TrackRef(3), result.Item)
	require.NotNil(t, result.Content)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyChargeFailures(t *testing.T) {
	tests := []struct {
		name    string
		gateway *fakeGateway
	}{
		{"declined", &fakeGateway{err: billing.ErrChargeDeclined}},
		{"provider error", &fakeGateway{err: errors.New("502 bad gateway")}},
		{"timeout", &fakeGateway{delay: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newTestService(t, tt.gateway, 20*time.Millisecond)

			expectAlbum(mock, 1, "10.00")
			mock.ExpectBegin()
			expectLockAccount(mock, "3.00")
			expectOwnershipInsert(mock, "bought_albums", 1, true)
			expectPaymentMethod(mock, 5, "tok")
			mock.ExpectRollback()

			_, err := svc.Buy(context.Background(), userID, domain.AlbumRef(1), methodRef(5))
			assert.ErrorIs(t, err, domain.ErrNotEnoughMoney)
			assert.Empty(t, tt.gateway.refunds)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBuyRefundsChargeWhenCommitFails(t *testing.T) {
	gw := &fakeGateway{}
	svc, mock := newTestService(t, gw, time.Second)

	expectAlbum(mock, 1, "10.00")
	mock.ExpectBegin()
	expectLockAccount(mock, "3.00")
	expectOwnershipInsert(mock, "bought_albums", 1, true)
	expectPaymentMethod(mock, 5, "tok")
	expectPost(mock, "7", "10.00", "topup")
	expectPost(mock, "-10", "0.00", "purchase")
	expectOutbox(mock)
	mock.ExpectCommit().WillReturnError(errors.New("connection lost"))

	_, err := svc.Buy(context.Background(), userID, domain.AlbumRef(1), methodRef(5))
	require.Error(t, err)
	assert.False(t, domain.IsBusinessError(err))
	assert.Equal(t, []string{"ch_1"}, gw.refunds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyRefundsChargeWhenLedgerWriteFails(t *testing.T) {
	gw := &fakeGateway{}
	svc, mock := newTestService(t, gw, time.Second)

	expectAlbum(mock, 1, "10.00")
	mock.ExpectBegin()
	expectLockAccount(mock, "3.00")
	expectOwnershipInsert(mock, "bought_albums", 1, true)
	expectPaymentMethod(mock, 5, "tok")
	expectPost(mock, "7", "10.00", "topup")
	mock.ExpectQuery("UPDATE accounts").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := svc.Buy(context.Background(), userID, domain.AlbumRef(1), methodRef(5))
	require.Error(t, err)
	assert.Equal(t, []string{"ch_1"}, gw.refunds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyRejectsItemsWithoutPrice(t *testing.T) {
	tests := []struct {
		name  string
		price any
	}{
		{"null price", nil},
		{"negative price", "-1.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newTestService(t, &fakeGateway{}, time.Second)
			expectTrack(mock, 3, nil, tt.price)

			_, err := svc.Buy(context.Background(), userID, domain.TrackRef(3), nil)
			assert.ErrorIs(t, err, domain.ErrItemNotPurchasable)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBuyUnknownItem(t *testing.T) {
	svc, mock := newTestService(t, &fakeGateway{}, time.Second)
	mock.ExpectQuery("FROM albums").
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := svc.Buy(context.Background(), userID, domain.AlbumRef(404), nil)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestIsBought(t *testing.T) {
	svc, mock := newTestService(t, &fakeGateway{}, time.Second)
	mock.ExpectQuery("FROM bought_albums WHERE user_id").
		WithArgs(userID, int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	bought, err := svc.IsBought(context.Background(), userID, domain.AlbumRef(1))
	require.NoError(t, err)
	assert.True(t, bought)
}
