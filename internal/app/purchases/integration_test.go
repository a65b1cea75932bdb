package purchases

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
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
	"musicstore/internal/util"
	"musicstore/migrations"
)

// openTestDB connects to TEST_POSTGRES_DSN and applies the schema; the test
// is skipped when the variable is not set.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())
	require.NoError(t, migrations.Up(db))
	return db
}

func newIntegrationService(db *sql.DB, gw billing.Gateway) PurchaseService {
	writer := ledger.NewWriter(
		accounts_repo.NewAccountRepository(db),
		ledger_repo.NewLedgerRepository(db),
		outbox_repo.NewOutboxRepository(db),
		"ledger_events",
	)
	return NewPurchaseService(
		db,
		catalog_repo.NewCatalogRepository(db),
		ownership_repo.NewOwnershipRepository(db),
		payment_methods_repo.NewPaymentMethodRepository(db),
		writer,
		gw,
		time.Second,
		zap.NewNop(),
	)
}

func TestConcurrentBuySameItemSucceedsOnce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	userID := time.Now().UnixNano() % 1_000_000_000
	var albumID int64
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO albums (title, author, image, price, created_at) VALUES ('LP', 'Band', '', 10, NOW()) RETURNING id`,
	).Scan(&albumID))
	_, err := db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, balance, created_at, updated_at) VALUES ($1, $2, 25, NOW(), NOW())`,
		util.NewID(), userID)
	require.NoError(t, err)

	svc := newIntegrationService(db, billing.NewSandbox(zap.NewNop()))

	const buyers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		other     []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Buy(ctx, userID, domain.AlbumRef(albumID), nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrItemAlreadyBought):
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 1, successes)

	var balance decimal.Decimal
	require.NoError(t, db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&balance))
	assert.True(t, balance.Equal(decimal.NewFromInt(15)), "balance %s", balance)

	var entries, owned int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE user_id = $1 AND kind = 'purchase'`, userID).Scan(&entries))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bought_albums WHERE user_id = $1`, userID).Scan(&owned))
	assert.Equal(t, 1, entries)
	assert.Equal(t, 1, owned)
}

func TestBuyWithShortfallListsPurchaseBeforeTopUp(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	userID := time.Now().UnixNano()%1_000_000_000 + 1_000_000_000
	var albumID, methodID int64
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO albums (title, author, image, price, created_at) VALUES ('EP', 'Band', '', 10, NOW()) RETURNING id`,
	).Scan(&albumID))
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO payment_methods (owner_id, title, details, created_at) VALUES ($1, 'Card', 'tok_visa', NOW()) RETURNING id`,
		userID,
	).Scan(&methodID))
	_, err := db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, balance, created_at, updated_at) VALUES ($1, $2, 3, NOW(), NOW())`,
		util.NewID(), userID)
	require.NoError(t, err)

	svc := newIntegrationService(db, billing.NewSandbox(zap.NewNop()))
	result, err := svc.Buy(ctx, userID, domain.AlbumRef(albumID), &methodID)
	require.NoError(t, err)
	assert.True(t, result.Balance.IsZero())

	for i := 0; i < 5; i++ {
		entries, err := ledger_repo.NewLedgerRepository(db).ListByUser(ctx, userID, 10, 0)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, domain.LedgerKindPurchase, entries[0].Kind)
		assert.Equal(t, result.EntryID, entries[0].ID)
		assert.Equal(t, domain.LedgerKindTopUp, entries[1].Kind)
		assert.True(t, entries[0].CreatedAt.Equal(entries[1].CreatedAt))
	}
}
