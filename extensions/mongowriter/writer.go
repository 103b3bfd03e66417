// Package mongowriter inserts chunk items into a MongoDB collection, inside
// the session transaction opened by txn.MongoTxManager when there is one.
package mongowriter

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chararch/minibatch"
)

// DocMapper converts an item to the document stored for it
type DocMapper[T any] func(item T) interface{}

type Writer[T any] struct {
	collection *mongo.Collection
	doc        DocMapper[T]
}

func New[T any](collection *mongo.Collection, doc DocMapper[T]) *Writer[T] {
	return &Writer[T]{collection: collection, doc: doc}
}

func (w *Writer[T]) Write(ctx context.Context, items []T, chunkCtx *minibatch.ChunkContext) error {
	docs := make([]interface{}, 0, len(items))
	for _, item := range items {
		docs = append(docs, w.doc(item))
	}
	if chunkCtx.Tx != nil {
		sess, ok := chunkCtx.Tx.(mongo.Session)
		if !ok {
			return minibatch.NewBatchError(minibatch.ErrCodeConfig, "mongo writer needs a mongo.Session, got:%T", chunkCtx.Tx)
		}
		ctx = mongo.NewSessionContext(ctx, sess)
	}
	// ordered: the first failing document aborts the rest
	if _, err := w.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "insert %d documents of chunk %d failed", len(docs), chunkCtx.ChunkNo, err)
	}
	return nil
}
