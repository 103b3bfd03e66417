package sqlwriter

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/chararch/minibatch"
	"github.com/chararch/minibatch/adapters/dialect"
)

type pair struct {
	a, b string
}

func pairArgs(p pair) []interface{} {
	return []interface{}{p.a, p.b}
}

func TestWriter_WritesEveryItemInTheChunkTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO people (first_name, last_name) VALUES (@p1, @p2)"))
	prep.ExpectExec().WithArgs("JILL", "DOE").WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("JOE", "DOE").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	w := New(dialect.SQLServer, "INSERT INTO people (first_name, last_name) VALUES (?, ?)", pairArgs)
	err = w.Write(context.Background(), []pair{{"JILL", "DOE"}, {"JOE", "DOE"}}, &minibatch.ChunkContext{ChunkNo: 1, Tx: tx})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_StopsAtFirstFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO people")
	prep.ExpectExec().WithArgs("JILL", "DOE").WillReturnError(errors.New("data too long"))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	w := New(dialect.MySQL, "INSERT INTO people (first_name, last_name) VALUES (?, ?)", pairArgs)
	err = w.Write(context.Background(), []pair{{"JILL", "DOE"}, {"JOE", "DOE"}}, &minibatch.ChunkContext{ChunkNo: 4, Tx: tx})
	require.Error(t, err)
	require.Contains(t, err.Error(), "write item 1 of chunk 4 failed")
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_NeedsSQLTx(t *testing.T) {
	w := New(dialect.MySQL, "INSERT INTO people (first_name, last_name) VALUES (?, ?)", pairArgs)
	err := w.Write(context.Background(), []pair{{"A", "B"}}, &minibatch.ChunkContext{})
	require.Error(t, err)
	require.Equal(t, minibatch.ErrCodeConfig, minibatch.ErrorCode(err))
}
