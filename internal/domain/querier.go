package domain

import (
	"context"
	"database/sql"
)

// Querier - общий интерфейс *sql.DB и *sql.Tx, чтобы репозитории работали и внутри транзакции, и без нее.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
