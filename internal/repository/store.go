package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Store bundles the repositories over one connection or transaction.
type Store struct {
	db *sql.DB // nil when the store is bound to a transaction

	Documents  *DocumentRepo
	Alerts     *AlertRepo
	Exceptions *ExceptionRepo
}

func NewStore(db *sql.DB) *Store {
	return newStore(db, db)
}

func newStore(db *sql.DB, conn DBTX) *Store {
	return &Store{
		db:         db,
		Documents:  NewDocumentRepo(conn),
		Alerts:     NewAlertRepo(conn),
		Exceptions: NewExceptionRepo(conn),
	}
}

// WithTx runs fn against a store bound to a single transaction, committing
// when fn returns nil. Calling WithTx on a transaction-bound store reuses
// the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(newStore(nil, sqlTx)); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
