package people

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/chararch/minibatch"
	"github.com/chararch/minibatch/adapters/dialect"
	"github.com/chararch/minibatch/adapters/repository"
	"github.com/chararch/minibatch/adapters/txn"
	"github.com/chararch/minibatch/extensions/files"
)

func TestMapLine(t *testing.T) {
	p, err := MapLine([]string{" Jill ", "Doe"})
	require.NoError(t, err)
	require.Equal(t, Person{FirstName: "Jill", LastName: "Doe"}, p)
	require.Equal(t, "firstName: Jill, lastName: Doe", p.String())

	_, err = MapLine([]string{"", " "})
	require.Error(t, err)
}

func TestUpperCaseProcessor(t *testing.T) {
	in := Person{FirstName: "Jane", LastName: "Doe"}
	out, err := UpperCaseProcessor{}.Process(in)
	require.NoError(t, err)
	require.Equal(t, Person{FirstName: "JANE", LastName: "DOE"}, out)
	require.Equal(t, Person{FirstName: "Jane", LastName: "Doe"}, in)

	again, err := UpperCaseProcessor{}.Process(in)
	require.NoError(t, err)
	require.Equal(t, out, again)
}

func TestSQLStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewSQLStore(db, dialect.MySQL)
	ctx := context.Background()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS people").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.InitSchema(ctx))

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(insertPerson))
	prep.ExpectExec().WithArgs("JILL", "DOE").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Writer().Write(ctx, []Person{{"JILL", "DOE"}}, &minibatch.ChunkContext{ChunkNo: 1, Tx: tx}))
	require.NoError(t, tx.Commit())

	mock.ExpectQuery("SELECT first_name, last_name FROM people").
		WillReturnRows(sqlmock.NewRows([]string{"first_name", "last_name"}).AddRow("JILL", "DOE"))
	people, err := store.FindAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []Person{{"JILL", "DOE"}}, people)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("find all", func(mt *mtest.T) {
		ns := mt.DB.Name() + ".people"
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
				bson.D{{Key: "first_name", Value: "JILL"}, {Key: "last_name", Value: "DOE"}},
				bson.D{{Key: "first_name", Value: "JOE"}, {Key: "last_name", Value: "DOE"}}),
		)
		people, err := NewMongoStore(mt.DB).FindAll(context.Background())
		require.NoError(mt, err)
		require.Equal(mt, []Person{{"JILL", "DOE"}, {"JOE", "DOE"}}, people)
	})

	mt.Run("writer", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		err := NewMongoStore(mt.DB).Writer().Write(context.Background(), []Person{{"JILL", "DOE"}}, &minibatch.ChunkContext{ChunkNo: 1})
		require.NoError(mt, err)
	})
}

type failingStore struct {
	err error
}

func (s failingStore) FindAll(ctx context.Context) ([]Person, error) {
	return nil, s.err
}

func newEngine(t *testing.T, opts JobOptions) minibatch.Engine {
	repo := repository.NewMemory()
	stepFactory := minibatch.NewStepBuilderFactory(repo, txn.NopTxManager{})
	jobFactory := minibatch.NewJobBuilderFactory(repo)
	engine := minibatch.NewEngine(repo)
	require.NoError(t, engine.Register(NewJob(jobFactory, stepFactory, opts)))
	return engine
}

func TestImportJob_SampleData(t *testing.T) {
	store := NewMemoryStore()
	engine := newEngine(t, JobOptions{
		Input:  files.FileObjectModel{FileName: "{input.file}"},
		Writer: store,
		Verify: store,
	})

	execution, err := engine.Start(context.Background(), JobName, `{"input.file":"testdata/sample-data.csv"}`)
	require.NoError(t, err)
	require.Equal(t, minibatch.COMPLETED, execution.JobStatus)
	require.NoError(t, execution.ListenerErrors)
	require.Equal(t, int64(5), execution.ReadCount())
	require.Equal(t, int64(5), execution.WriteCount())
	stored, err := store.FindAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Person{
		{"JILL", "DOE"}, {"JOE", "DOE"}, {"JUSTIN", "DOE"}, {"JANE", "DOE"}, {"JOHN", "DOE"},
	}, stored)
	require.Equal(t, int64(1), execution.StepExecutions[0].CommitCount)
}

func TestImportJob_MalformedLineWithRejects(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(input, []byte("Jill,Doe\nJoe\nJane,Doe\n"), 0o644))
	rejects := files.NewRejectWriter(files.FileObjectModel{FileName: filepath.Join(dir, "rejects-{run.id}.txt")})
	store := NewMemoryStore()
	engine := newEngine(t, JobOptions{
		Input:      files.FileObjectModel{FileName: input},
		ChunkSize:  1,
		SkipPolicy: minibatch.SkipLimit(1),
		Writer:     store,
		Reject:     rejects,
	})

	execution, err := engine.Start(context.Background(), JobName, "")
	require.NoError(t, err)
	require.Equal(t, minibatch.COMPLETED, execution.JobStatus)
	require.Equal(t, int64(3), execution.ReadCount())
	require.Equal(t, int64(2), execution.WriteCount())
	require.Equal(t, int64(1), execution.SkipCount())

	bs, err := os.ReadFile(filepath.Join(dir, "rejects-1.txt"))
	require.NoError(t, err)
	require.Equal(t, "Joe\n", string(bs))
}

func TestImportJob_FailFastNamesTheLine(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(input, []byte("Jill,Doe\nJoe,Doe\nJustin\nJane,Doe\nJohn,Doe\n"), 0o644))
	store := NewMemoryStore()
	engine := newEngine(t, JobOptions{Input: files.FileObjectModel{FileName: input}, Writer: store})

	execution, err := engine.Start(context.Background(), JobName, "")
	require.Error(t, err)
	require.Equal(t, minibatch.FAILED, execution.JobStatus)
	var pe *minibatch.ParseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, int64(3), pe.Line)
	stored, _ := store.FindAll(context.Background())
	require.Empty(t, stored)
}

func TestVerificationListener(t *testing.T) {
	ctx := context.Background()
	execution := &minibatch.JobExecution{JobStatus: minibatch.COMPLETED}
	step := &minibatch.StepExecution{WriteCount: 2}
	execution.StepExecutions = []*minibatch.StepExecution{step}

	store := NewMemoryStore()
	require.NoError(t, store.Write(ctx, []Person{{"JILL", "DOE"}, {"JOE", "DOE"}}, &minibatch.ChunkContext{}))
	l := NewVerificationListener(store)
	require.NoError(t, l.BeforeJob(ctx, execution))
	require.NoError(t, l.AfterJob(ctx, execution))

	step.WriteCount = 3
	require.Error(t, l.AfterJob(ctx, execution))

	require.Error(t, NewVerificationListener(failingStore{errors.New("connection reset")}).AfterJob(ctx, execution))

	// failed runs are not verified
	execution.JobStatus = minibatch.FAILED
	require.NoError(t, l.AfterJob(ctx, execution))
}
