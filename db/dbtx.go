// ABOUTME: Minimal DB abstraction shared by table operations
// ABOUTME: DBTX is satisfied by both *sql.DB and *sql.Tx; WithTx wraps a function in a transaction
package db

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql used by table operations. Both *sql.DB
// and *sql.Tx satisfy this interface, so reconciliation code can run the same
// operations inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
func WithTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
