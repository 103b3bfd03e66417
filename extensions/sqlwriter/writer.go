// Package sqlwriter writes chunk items with a parameterized statement inside
// the chunk transaction opened by txn.DefaultTxManager.
package sqlwriter

import (
	"context"
	"database/sql"

	"github.com/chararch/minibatch"
	"github.com/chararch/minibatch/adapters/dialect"
)

// ArgsMapper returns the statement arguments for one item
type ArgsMapper[T any] func(item T) []interface{}

// Writer executes query once per item. The statement is prepared once per
// chunk on the chunk's *sql.Tx.
type Writer[T any] struct {
	query string
	args  ArgsMapper[T]
}

// New returns a Writer for query, written with ? placeholders and rebound for
// the dialect.
func New[T any](d dialect.Dialect, query string, args ArgsMapper[T]) *Writer[T] {
	return &Writer[T]{query: d.Rebind(query), args: args}
}

func (w *Writer[T]) Write(ctx context.Context, items []T, chunkCtx *minibatch.ChunkContext) error {
	tx, ok := chunkCtx.Tx.(*sql.Tx)
	if !ok {
		return minibatch.NewBatchError(minibatch.ErrCodeConfig, "sql writer needs a *sql.Tx, got:%T", chunkCtx.Tx)
	}
	stmt, err := tx.PrepareContext(ctx, w.query)
	if err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "prepare statement failed", err)
	}
	defer stmt.Close()
	for i, item := range items {
		if _, err = stmt.ExecContext(ctx, w.args(item)...); err != nil {
			return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "write item %d of chunk %d failed", i+1, chunkCtx.ChunkNo, err)
		}
	}
	return nil
}
