package accounts_repo

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musicstore/internal/domain"
)

var accountColumns = []string{"id", "user_id", "balance", "created_at", "updated_at"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestEnsureAccountTx(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureAccountTx(context.Background(), db, 7))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccountForUserTx(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepository(db)
	now := time.Now()

	mock.ExpectQuery("FROM accounts\\s+WHERE user_id = \\$1\\s+FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow("acc-1", int64(7), "12.50", now, now))

	account, err := repo.GetAccountForUserTx(context.Background(), db, 7)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", account.ID)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("12.5")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccountForUserNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery("FROM accounts").
		WithArgs(int64(8)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetAccountForUser(context.Background(), 8)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestUpdateBalanceTx(t *testing.T) {
	t.Run("applies delta", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewAccountRepository(db)

		mock.ExpectQuery("UPDATE accounts").
			WithArgs("-4", sqlmock.AnyArg(), "acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("6.00"))

		balance, err := repo.UpdateBalanceTx(context.Background(), db, "acc-1", decimal.NewFromInt(-4))
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.NewFromInt(6)))
	})

	t.Run("refuses to go negative", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewAccountRepository(db)

		mock.ExpectQuery("UPDATE accounts").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.UpdateBalanceTx(context.Background(), db, "acc-1", decimal.NewFromInt(-100))
		assert.ErrorIs(t, err, domain.ErrNotEnoughMoney)
	})

	t.Run("wraps driver errors", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewAccountRepository(db)

		mock.ExpectQuery("UPDATE accounts").
			WillReturnError(errors.New("connection reset"))

		_, err := repo.UpdateBalanceTx(context.Background(), db, "acc-1", decimal.NewFromInt(1))
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrNotEnoughMoney)
	})
}
