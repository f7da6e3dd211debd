// Package db is the thin SQL layer repositories are written against. The
// interfaces are satisfied directly by *sql.Rows, *sql.Row and sql.Result.
package db

import "context"

type Database interface {
	Querier
	// Transaction runs fn in a single transaction.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
	Ping(ctx context.Context) error
	Close() error
}

type Transaction interface {
	Querier
	Commit() error
	Rollback() error
}

type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

type Row interface {
	Scan(dest ...interface{}) error
}

type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}
