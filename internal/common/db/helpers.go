package db

import (
	"context"
	"database/sql"
	"errors"
)

// Querier is what repositories need. Both Database and Transaction satisfy it.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// GetQuerier picks tx when a repository call runs inside a transaction.
func GetQuerier(database Database, tx Transaction) Querier {
	if tx != nil {
		return tx
	}
	return database
}

func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
