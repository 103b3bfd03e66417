package people

import (
	"context"
	"database/sql"
	"embed"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chararch/minibatch"
	"github.com/chararch/minibatch/adapters/dialect"
	"github.com/chararch/minibatch/extensions/mongowriter"
	"github.com/chararch/minibatch/extensions/sqlwriter"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const insertPerson = "INSERT INTO people (first_name, last_name) VALUES (?, ?)"

// Store gives read access to the imported people
type Store interface {
	FindAll(ctx context.Context) ([]Person, error)
}

// SQLStore is the people table of a MySQL or SQL Server database
type SQLStore struct {
	db      *sql.DB
	dialect dialect.Dialect
}

func NewSQLStore(db *sql.DB, d dialect.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

// InitSchema creates the people table if it does not exist
func (s *SQLStore) InitSchema(ctx context.Context) error {
	ddl, err := schemaFS.ReadFile("schema/" + string(s.dialect) + ".sql")
	if err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeConfig, "no people schema for dialect:%v", s.dialect, err)
	}
	for _, stmt := range strings.Split(string(ddl), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err = s.db.ExecContext(ctx, stmt); err != nil {
			return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "create people table failed", err)
		}
	}
	return nil
}

// Writer inserts people with one parameterized statement per person
func (s *SQLStore) Writer() minibatch.Writer[Person] {
	return sqlwriter.New[Person](s.dialect, insertPerson, func(p Person) []interface{} {
		return []interface{}{p.FirstName, p.LastName}
	})
}

func (s *SQLStore) FindAll(ctx context.Context) ([]Person, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT first_name, last_name FROM people ORDER BY person_id")
	if err != nil {
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "query people failed", err)
	}
	defer rows.Close()
	result := make([]Person, 0)
	for rows.Next() {
		var p Person
		if err = rows.Scan(&p.FirstName, &p.LastName); err != nil {
			return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "scan person failed", err)
		}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "query people failed", err)
	}
	return result, nil
}

// MongoStore is the people collection of a MongoDB database
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection("people")}
}

func (s *MongoStore) Writer() minibatch.Writer[Person] {
	return mongowriter.New[Person](s.collection, func(p Person) interface{} {
		return p
	})
}

func (s *MongoStore) FindAll(ctx context.Context) ([]Person, error) {
	cursor, err := s.collection.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "query people failed", err)
	}
	result := make([]Person, 0)
	if err = cursor.All(ctx, &result); err != nil {
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "decode people failed", err)
	}
	return result, nil
}
