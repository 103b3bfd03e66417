package txn

import (
	"context"
	"database/sql"

	"github.com/chararch/minibatch"
)

// DefaultTxManager TransactionManager over a database/sql pool. The
// transaction handed to writers is a *sql.Tx.
type DefaultTxManager struct {
	db   *sql.DB
	opts *sql.TxOptions
}

// NewTransactionManager create a TransactionManager instance
func NewTransactionManager(db *sql.DB) *DefaultTxManager {
	return &DefaultTxManager{
		db: db,
	}
}

// WithIsolation sets the isolation level of the chunk transactions
func (tm *DefaultTxManager) WithIsolation(level sql.IsolationLevel) *DefaultTxManager {
	tm.opts = &sql.TxOptions{Isolation: level}
	return tm
}

// BeginTx begin a transaction
func (tm *DefaultTxManager) BeginTx(ctx context.Context) (interface{}, error) {
	tx, err := tm.db.BeginTx(ctx, tm.opts)
	if err != nil {
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "start transaction failed", err)
	}
	return tx, nil
}

// Commit commit a transaction
func (tm *DefaultTxManager) Commit(ctx context.Context, tx interface{}) error {
	tx1, ok := tx.(*sql.Tx)
	if !ok {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "unexpected transaction type:%T", tx)
	}
	if err := tx1.Commit(); err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "transaction commit failed", err)
	}
	return nil
}

// Rollback rollback a transaction
func (tm *DefaultTxManager) Rollback(ctx context.Context, tx interface{}) error {
	tx1, ok := tx.(*sql.Tx)
	if !ok {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "unexpected transaction type:%T", tx)
	}
	if err := tx1.Rollback(); err != nil && err != sql.ErrTxDone {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "transaction rollback failed", err)
	}
	return nil
}

// NopTxManager is used by steps whose writer needs no transaction. BeginTx
// returns nil.
type NopTxManager struct{}

func (NopTxManager) BeginTx(ctx context.Context) (interface{}, error) {
	return nil, nil
}

func (NopTxManager) Commit(ctx context.Context, tx interface{}) error {
	return nil
}

func (NopTxManager) Rollback(ctx context.Context, tx interface{}) error {
	return nil
}
