package storage

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/paddock-io/paddock/internal/config"
)

// Pool defaults sized for a single-threaded batch pipeline: one writer
// plus a few connections for quality probes and audit bookkeeping.
const (
	defaultMaxOpenConns    = 4
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

// ErrDatabaseURLEmpty indicates no database URL was configured.
var ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")

// Config holds PostgreSQL connection settings. The URL stays private so
// credentials never leak through struct dumps; log MaskDatabaseURL
// instead.
type Config struct {
	databaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfig reads connection settings from the environment, falling
// back to the pool defaults.
func LoadConfig() *Config {
	return &Config{
		databaseURL:     config.GetEnvStr("DATABASE_URL", ""),
		MaxOpenConns:    config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
	}
}

// Validate checks that a database URL is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// MaskDatabaseURL returns the databaseURL with any password replaced,
// safe for logging. A URL that does not parse is masked wholesale since
// it could still carry credentials.
func (c *Config) MaskDatabaseURL() string {
	if c.databaseURL == "" {
		return ""
	}

	u, err := url.Parse(c.databaseURL)
	if err != nil {
		return "(unparsable database URL)"
	}

	if u.User == nil {
		return c.databaseURL
	}

	if password, ok := u.User.Password(); !ok || password == "" {
		return c.databaseURL
	}

	u.User = url.UserPassword(u.User.Username(), "***")

	return u.String()
}
