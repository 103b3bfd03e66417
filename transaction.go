package minibatch

import "context"

// TransactionManager used by chunk step to execute chunk process in a transaction.
type TransactionManager interface {
	BeginTx(ctx context.Context) (tx interface{}, err error)
	Commit(ctx context.Context, tx interface{}) error
	Rollback(ctx context.Context, tx interface{}) error
}
