package txn

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/chararch/minibatch"
)

// MongoTxManager runs every chunk in a multi-document transaction. The
// transaction handed to writers is a mongo.Session with a started
// transaction; writers bind it with mongo.NewSessionContext. Transactions
// need a replica set or sharded cluster.
type MongoTxManager struct {
	client *mongo.Client
}

func NewMongoTxManager(client *mongo.Client) *MongoTxManager {
	return &MongoTxManager{client: client}
}

func (tm *MongoTxManager) BeginTx(ctx context.Context) (interface{}, error) {
	sess, err := tm.client.StartSession()
	if err != nil {
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "start mongo session failed", err)
	}
	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err = sess.StartTransaction(opts); err != nil {
		sess.EndSession(ctx)
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "start mongo transaction failed", err)
	}
	return sess, nil
}

func (tm *MongoTxManager) Commit(ctx context.Context, tx interface{}) error {
	sess, ok := tx.(mongo.Session)
	if !ok {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "unexpected transaction type:%T", tx)
	}
	defer sess.EndSession(ctx)
	if err := sess.CommitTransaction(ctx); err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "mongo transaction commit failed", err)
	}
	return nil
}

func (tm *MongoTxManager) Rollback(ctx context.Context, tx interface{}) error {
	sess, ok := tx.(mongo.Session)
	if !ok {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "unexpected transaction type:%T", tx)
	}
	defer sess.EndSession(ctx)
	if err := sess.AbortTransaction(ctx); err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "mongo transaction abort failed", err)
	}
	return nil
}
