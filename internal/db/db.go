package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const (
	DriverSqlite   = "sqlite3"
	DriverPostgres = "postgres"

	memoryPath = ":memory:"

	// database/sql name registered by pgx/v5/stdlib
	pgxDriverName = "pgx"
)

// options shared by the sqlite and postgres constructors
type config struct {
	path            string
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

// Option configures a database handle
type Option func(*config)

// WithPath sets the sqlite database file. ":memory:" (the default) keeps everything in memory
func WithPath(path string) Option {
	return func(c *config) {
		c.path = path
	}
}

// WithMaxOpenConns caps the number of open connections
func WithMaxOpenConns(n int) Option {
	return func(c *config) {
		c.maxOpenConns = n
	}
}

// WithMaxIdleConns sets the idle connection pool size
func WithMaxIdleConns(n int) Option {
	return func(c *config) {
		c.maxIdleConns = n
	}
}

// WithConnMaxLifetime recycles connections older than d
func WithConnMaxLifetime(d time.Duration) Option {
	return func(c *config) {
		c.connMaxLifetime = d
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{
		path:         memoryPath,
		maxIdleConns: 2,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewSqliteDb opens a sqlite database with foreign keys, WAL and a busy timeout enabled on every connection.
func NewSqliteDb(opts ...Option) (*sqlx.DB, error) {
	cfg := newConfig(opts)

	var dsn string
	if cfg.path == memoryPath {
		// every connection to :memory: is a separate database
		cfg.maxOpenConns = 1
		cfg.maxIdleConns = 1
		cfg.connMaxLifetime = 0
		dsn = sqliteMemoryDSN()
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = sqliteFileDSN(cfg.path)
	}

	slog.Info("db", "driver", driverID, "path", cfg.path)
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	applyPool(db, cfg)

	return db, nil
}

// NewPostgresDb connects to postgres through the pgx stdlib driver.
func NewPostgresDb(dsn string, opts ...Option) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	cfg := newConfig(opts)

	slog.Info("db", "driver", pgxDriverName)
	db, err := sqlx.Connect(pgxDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	applyPool(db, cfg)

	return db, nil
}

// Open picks the backend by driver name. path is used by sqlite, dsn by postgres.
func Open(driver, path, dsn string, opts ...Option) (*sqlx.DB, error) {
	switch driver {
	case "", DriverSqlite:
		return NewSqliteDb(append([]Option{WithPath(path)}, opts...)...)
	case DriverPostgres:
		return NewPostgresDb(dsn, opts...)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

func applyPool(db *sqlx.DB, cfg *config) {
	if cfg.maxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.maxOpenConns)
	}
	if cfg.maxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.maxIdleConns)
	}
	if cfg.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.connMaxLifetime)
	}
}

// IsPostgres reports whether db talks to postgres
func IsPostgres(db *sqlx.DB) bool {
	return db.DriverName() == pgxDriverName
}
