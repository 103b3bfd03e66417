package cli

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/chararch/minibatch"
	"github.com/chararch/minibatch/adapters/dialect"
	"github.com/chararch/minibatch/adapters/repository"
	"github.com/chararch/minibatch/adapters/txn"
	"github.com/chararch/minibatch/extensions/files"
	"github.com/chararch/minibatch/internal/config"
	"github.com/chararch/minibatch/internal/people"
)

// app holds the connections and the engine of one command invocation
type app struct {
	cfg        *config.Config
	db         *sql.DB
	dialect    dialect.Dialect
	mongo      *mongo.Client
	repository minibatch.Repository
	engine     minibatch.Engine
	inputFile  string
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	minibatch.SetLogger(minibatch.NewLogger(os.Stdout, minibatch.ParseLevel(cfg.LogLevel)))
	minibatch.SetMaxRunningJobs(cfg.MaxRunningJobs)

	a := &app{cfg: cfg, inputFile: cfg.InputFile}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	if d, ok := cfg.SQLDialect(); ok {
		a.dialect = d
		if a.db, err = connectSQL(ctx, d, cfg.SQLConnString); err != nil {
			return nil, err
		}
	}
	if cfg.Sink == config.StoreMongo {
		if a.mongo, err = connectMongo(ctx, cfg.MongoConnString); err != nil {
			return nil, err
		}
	}

	if cfg.MetaStore == config.StoreMemory {
		a.repository = repository.NewMemory()
	} else {
		if cfg.InitSchema {
			if err = repository.InitSchema(ctx, a.db, a.dialect); err != nil {
				return nil, err
			}
		}
		a.repository = repository.New(a.db, a.dialect)
	}
	a.engine = minibatch.NewEngine(a.repository)
	return a, nil
}

func connectSQL(ctx context.Context, d dialect.Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "open %v database failed", d, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "connect to %v database failed", d, err)
	}
	minibatch.DefaultLogger.Info(ctx, "connected to %v database", d)
	return db, nil
}

func connectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "create mongo client failed", err)
	}
	if err = client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "connect to mongo failed", err)
	}
	minibatch.DefaultLogger.Info(ctx, "connected to mongo")
	return client, nil
}

// registerImportJob builds importUserJob for the configured sink and registers
// it with the engine.
func (a *app) registerImportJob(ctx context.Context) error {
	cfg := a.cfg
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	opts := people.JobOptions{
		Input: files.FileObjectModel{
			FileName:  "{" + minibatch.ParamInputFile + "}",
			Delimiter: cfg.Delimiter(),
			Header:    cfg.InputHeader,
			Encoding:  cfg.InputEncoding,
			Checksum:  cfg.InputChecksum,
		},
		ChunkSize:  cfg.ChunkSize,
		SkipPolicy: policy,
	}

	var txMgr minibatch.TransactionManager
	var initSchema func(ctx context.Context) error
	switch cfg.Sink {
	case config.StoreMySQL, config.StoreSQLServer:
		store := people.NewSQLStore(a.db, a.dialect)
		opts.Writer, opts.Verify = store.Writer(), store
		txMgr = txn.NewTransactionManager(a.db)
		initSchema = store.InitSchema
	case config.StoreMongo:
		store := people.NewMongoStore(a.mongo.Database(cfg.MongoDatabase))
		opts.Writer, opts.Verify = store.Writer(), store
		txMgr = txn.NewMongoTxManager(a.mongo)
	default:
		store := people.NewMemoryStore()
		opts.Writer, opts.Verify = store.Writer(), store
		txMgr = txn.NopTxManager{}
	}
	stepFactory := minibatch.NewStepBuilderFactory(a.repository, txMgr)

	if cfg.InitSchema && initSchema != nil {
		opts.Before = append(opts.Before, stepFactory.Get("init_schema").Handler(initSchema).Build())
	}
	if cfg.FTPHost != "" {
		staged := filepath.Join(cfg.StageDir, filepath.Base(cfg.InputFile))
		remote := &files.FTPFileSystem{Host: cfg.FTPHost, Port: cfg.FTPPort, User: cfg.FTPUser, Password: cfg.FTPPassword}
		stageStep := stepFactory.Get("stage_input").
			Handler(files.NewCopier(files.FileMove{
				FromFileName:  cfg.InputFile,
				FromFileStore: remote,
				ToFileName:    staged,
				ToFileStore:   &files.LocalFileSystem{},
				Checksum:      cfg.InputChecksum,
			})).Build()
		opts.Before = append(opts.Before, stageStep)
		a.inputFile = staged
	}
	if cfg.RejectFile != "" {
		opts.Reject = files.NewRejectWriter(files.FileObjectModel{FileName: cfg.RejectFile})
	}

	job := people.NewJob(minibatch.NewJobBuilderFactory(a.repository), stepFactory, opts)
	minibatch.DefaultLogger.Debug(ctx, "job %v built with %d steps", job.Name(), len(job.Steps()))
	return a.engine.Register(job)
}

func (a *app) jobParams() minibatch.Parameters {
	params := minibatch.NewParameters()
	params.Set(minibatch.ParamInputFile, a.inputFile)
	return params
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.mongo.Disconnect(ctx)
	}
}
