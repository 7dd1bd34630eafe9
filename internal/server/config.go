package server

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/docsync/internal/db"
	"github.com/openmined/docsync/internal/remote/s3remote"
	"github.com/openmined/docsync/internal/server/auth"
	"github.com/ulule/limiter/v3"
)

const (
	DefaultAddr         = "127.0.0.1:8080"
	DefaultRateLimit    = "600-M"
	DefaultPollInterval = 5 * time.Minute

	RemoteS3     = "s3"
	RemoteMemory = "memory"
)

type Config struct {
	DataDir  string       `mapstructure:"data_dir"`
	LogLevel string       `mapstructure:"log_level"`
	HTTP     HTTPConfig   `mapstructure:"http"`
	DB       DBConfig     `mapstructure:"db"`
	Auth     auth.Config  `mapstructure:"auth"`
	Remote   RemoteConfig `mapstructure:"remote"`
	Repo     RepoConfig   `mapstructure:"repo"`
	Poller   PollerConfig `mapstructure:"poller"`
}

type HTTPConfig struct {
	Addr      string `mapstructure:"addr"`
	CertFile  string `mapstructure:"cert_file"`
	KeyFile   string `mapstructure:"key_file"`
	RateLimit string `mapstructure:"rate_limit"`
	// CORSOrigins are the browser origins allowed to call the API, any origin when empty
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	// Path of the sqlite file, relative to data_dir when not absolute
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

type RemoteConfig struct {
	Driver string          `mapstructure:"driver"`
	S3     s3remote.Config `mapstructure:"s3"`
	// AuthorizeURL is the page users are sent to when linking their account
	AuthorizeURL string `mapstructure:"authorize_url"`
}

type RepoConfig struct {
	// ContentDir holds file bodies, relative to data_dir when not absolute
	ContentDir string `mapstructure:"content_dir"`
	// ShareHost is the first segment of every remote path
	ShareHost string `mapstructure:"share_host"`
}

type PollerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Sites    []string      `mapstructure:"sites"`
	Ignore   []string      `mapstructure:"ignore"`
	LockFile string        `mapstructure:"lock_file"`
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("`data_dir` is required")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	for _, v := range []interface{ Validate() error }{&c.HTTP, &c.DB, &c.Auth, &c.Remote, &c.Repo, &c.Poller} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *HTTPConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("http `addr` is required")
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("http `cert_file` and `key_file` must be set together")
	}
	if c.RateLimit != "" {
		if _, err := limiter.NewRateFromFormatted(c.RateLimit); err != nil {
			return fmt.Errorf("http `rate_limit`: %w", err)
		}
	}
	for _, origin := range c.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("http `cors_origins`: %q must be * or start with http:// or https://", origin)
		}
	}
	return nil
}

func (c *HTTPConfig) TLS() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

func (c *DBConfig) Validate() error {
	switch c.Driver {
	case db.DriverSqlite:
		if c.Path == "" {
			return fmt.Errorf("db `path` is required for sqlite3")
		}
	case db.DriverPostgres:
		if c.DSN == "" {
			return fmt.Errorf("db `dsn` is required for postgres")
		}
	default:
		return fmt.Errorf("db `driver` must be %q or %q, got %q", db.DriverSqlite, db.DriverPostgres, c.Driver)
	}
	return nil
}

func (c *RemoteConfig) Validate() error {
	switch c.Driver {
	case RemoteS3:
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("remote s3: %w", err)
		}
	case RemoteMemory:
	default:
		return fmt.Errorf("remote `driver` must be %q or %q, got %q", RemoteS3, RemoteMemory, c.Driver)
	}
	if c.AuthorizeURL == "" {
		return fmt.Errorf("remote `authorize_url` is required")
	}
	return nil
}

func (c *RepoConfig) Validate() error {
	if c.ContentDir == "" {
		return fmt.Errorf("repo `content_dir` is required")
	}
	if c.ShareHost == "" || strings.Contains(c.ShareHost, "/") {
		return fmt.Errorf("repo `share_host` must be a single path segment, got %q", c.ShareHost)
	}
	return nil
}

func (c *PollerConfig) Validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("poller `interval` must not be negative")
	}
	for _, pattern := range c.Sites {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("poller `sites`: invalid pattern %q", pattern)
		}
	}
	return nil
}

// resolve makes relative paths absolute under data_dir
func (c *Config) resolve(p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

func (c *Config) DBPath() string       { return c.resolve(c.DB.Path) }
func (c *Config) ContentPath() string  { return c.resolve(c.Repo.ContentDir) }
func (c *Config) PollLockPath() string { return c.resolve(c.Poller.LockFile) }

func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, errors.New("`log_level` must be one of debug, info, warn, error")
}
