// Package config loads the settings of peoplebatch from environment
// variables, populated from a .env file by main.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/chararch/minibatch"
	"github.com/chararch/minibatch/adapters/dialect"
)

// sinks and metadata stores
const (
	StoreMemory    = "memory"
	StoreMySQL     = "mysql"
	StoreSQLServer = "sqlserver"
	StoreMongo     = "mongo"
)

// Config holds all settings of a run. Command line flags override the values
// loaded from the environment.
type Config struct {
	LogLevel       string
	MaxRunningJobs int

	InputFile      string
	InputDelimiter string
	InputHeader    bool
	InputEncoding  string
	InputChecksum  string

	ChunkSize  int
	SkipPolicy string
	SkipLimit  int64
	RejectFile string

	// Sink is memory, mysql, sqlserver or mongo
	Sink string
	// MetaStore is memory, mysql or sqlserver
	MetaStore  string
	InitSchema bool

	SQLConnString   string
	MongoConnString string
	MongoDatabase   string

	// FTPHost, when set, makes InputFile a path on the FTP server, copied to
	// StageDir before it is read.
	FTPHost     string
	FTPPort     int
	FTPUser     string
	FTPPassword string
	StageDir    string
}

// Load reads the configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		InputFile:       getEnv("INPUT_FILE", "testdata/sample-data.csv"),
		InputDelimiter:  getEnv("INPUT_DELIMITER", ","),
		InputEncoding:   getEnv("INPUT_ENCODING", "utf-8"),
		InputChecksum:   getEnv("INPUT_CHECKSUM", ""),
		SkipPolicy:      getEnv("SKIP_POLICY", "fail-fast"),
		RejectFile:      getEnv("REJECT_FILE", ""),
		Sink:            getEnv("SINK", StoreMemory),
		MetaStore:       getEnv("META_STORE", StoreMemory),
		SQLConnString:   getEnv("SQL_CONNECTION_STRING", ""),
		MongoConnString: getEnv("MONGO_CONNECTION_STRING", ""),
		MongoDatabase:   getEnv("MONGO_DATABASE", "batch"),
		FTPHost:         getEnv("FTP_HOST", ""),
		FTPUser:         getEnv("FTP_USER", "anonymous"),
		FTPPassword:     getEnv("FTP_PASSWORD", ""),
		StageDir:        getEnv("STAGE_DIR", os.TempDir()),
	}
	var err error
	if cfg.MaxRunningJobs, err = getInt("MAX_RUNNING_JOBS", minibatch.DefaultJobPoolSize); err != nil {
		return nil, err
	}
	if cfg.ChunkSize, err = getInt("CHUNK_SIZE", minibatch.DefaultChunkSize); err != nil {
		return nil, err
	}
	if cfg.FTPPort, err = getInt("FTP_PORT", 21); err != nil {
		return nil, err
	}
	skipLimit, err := getInt("SKIP_LIMIT", 0)
	if err != nil {
		return nil, err
	}
	cfg.SkipLimit = int64(skipLimit)
	if cfg.InputHeader, err = getBool("INPUT_HEADER", false); err != nil {
		return nil, err
	}
	if cfg.InitSchema, err = getBool("INIT_SCHEMA", false); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values a run depends on
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return errors.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.MaxRunningJobs <= 0 {
		return errors.Errorf("max running jobs must be positive, got %d", c.MaxRunningJobs)
	}
	if strings.TrimSpace(c.InputFile) == "" {
		return errors.New("no input file")
	}
	if utf8.RuneCountInString(c.InputDelimiter) != 1 {
		return errors.Errorf("delimiter must be a single character, got %q", c.InputDelimiter)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	switch c.Sink {
	case StoreMemory, StoreMongo:
	case StoreMySQL, StoreSQLServer:
		if c.SQLConnString == "" {
			return errors.Errorf("sink %s needs SQL_CONNECTION_STRING", c.Sink)
		}
	default:
		return errors.Errorf("unknown sink: %s", c.Sink)
	}
	if c.Sink == StoreMongo && c.MongoConnString == "" {
		return errors.New("sink mongo needs MONGO_CONNECTION_STRING")
	}
	switch c.MetaStore {
	case StoreMemory:
	case StoreMySQL, StoreSQLServer:
		if c.SQLConnString == "" {
			return errors.Errorf("meta store %s needs SQL_CONNECTION_STRING", c.MetaStore)
		}
		if (c.Sink == StoreMySQL || c.Sink == StoreSQLServer) && c.Sink != c.MetaStore {
			return errors.Errorf("sink %s and meta store %s share SQL_CONNECTION_STRING and must be the same database", c.Sink, c.MetaStore)
		}
	default:
		return errors.Errorf("unknown meta store: %s", c.MetaStore)
	}
	return nil
}

// Policy returns the configured skip policy
func (c *Config) Policy() (minibatch.SkipPolicy, error) {
	return minibatch.ParseSkipPolicy(c.SkipPolicy, c.SkipLimit)
}

// Delimiter returns the input field delimiter
func (c *Config) Delimiter() rune {
	r, _ := utf8.DecodeRuneInString(c.InputDelimiter)
	return r
}

// SQLDialect returns the dialect of the SQL database, if any is used
func (c *Config) SQLDialect() (dialect.Dialect, bool) {
	for _, s := range []string{c.Sink, c.MetaStore} {
		if s == StoreMySQL || s == StoreSQLServer {
			d, err := dialect.Parse(s)
			return d, err == nil
		}
	}
	return "", false
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return i, nil
}

func getBool(key string, def bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
