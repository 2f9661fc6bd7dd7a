// Package config loads campusetl settings from environment variables.
// Defaults are applied for unset values and everything is validated on
// startup so misconfiguration fails before any file is read.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Pipeline PipelineConfig
	Ledger   LedgerConfig
	Sink     SinkConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// PipelineConfig holds settings shared by every table run.
type PipelineConfig struct {
	// SourceDir is where source exports are looked up (default: .)
	SourceDir string `env:"ETL_SOURCE_DIR" default:"."`

	// Catalog is an optional YAML or TOML table catalog. Empty means the
	// built-in university tables.
	Catalog string `env:"ETL_CATALOG"`

	// ChunkSize overrides every table's chunk size when > 0 (default: 0)
	ChunkSize int `env:"ETL_CHUNK_SIZE" default:"0"`

	// MaxIssues bounds the structural issues kept per run (default: 50)
	MaxIssues int `env:"ETL_MAX_ISSUES" default:"50"`

	// SpillDir holds cleaned chunks between stages. Empty means the
	// system temp directory.
	SpillDir string `env:"ETL_SPILL_DIR"`

	// Locale decides day/month order for ambiguous dates (default: en-US)
	Locale string `env:"ETL_LOCALE" default:"en-US"`

	// TwoDigitYearPivot moves two-digit years this far in the future back a
	// century (default: 20)
	TwoDigitYearPivot int `env:"ETL_TWO_DIGIT_YEAR_PIVOT" default:"20"`

	// MaxConcurrentRuns is the number of tables that may run at once (default: 4)
	MaxConcurrentRuns int `env:"ETL_MAX_CONCURRENT_RUNS" default:"4"`

	// RunWaitTime is how long a table waits for a run slot (default: 30s)
	RunWaitTime time.Duration `env:"ETL_RUN_WAIT_TIME" default:"30s"`
}

// LedgerConfig selects where run state is recorded.
type LedgerConfig struct {
	// Driver is memory, sqlite or postgres (default: sqlite)
	Driver string `env:"LEDGER_DRIVER" default:"sqlite"`

	// DSN is the sqlite path or PostgreSQL connection string (default: campusetl.db)
	DSN string `env:"LEDGER_DSN" default:"campusetl.db"`

	// MaxOpenConns is the maximum number of open connections (default: 10)
	MaxOpenConns int `env:"LEDGER_MAX_OPEN_CONNS" default:"10"`

	// MaxIdleConns is the number of idle connections kept (default: 2)
	MaxIdleConns int `env:"LEDGER_MAX_IDLE_CONNS" default:"2"`

	// ConnMaxLifetime is the maximum lifetime of a connection (default: 1h)
	ConnMaxLifetime time.Duration `env:"LEDGER_CONN_MAX_LIFETIME" default:"1h"`
}

// SinkConfig selects where valid records are written.
type SinkConfig struct {
	// Driver is none or postgres (default: none)
	Driver string `env:"SINK_DRIVER" default:"none"`

	// DatabaseURL is the destination PostgreSQL connection string.
	// DATABASE_URL is accepted for compatibility.
	DatabaseURL string `env:"SINK_DATABASE_URL" envAlt:"DATABASE_URL"`

	// Schema holds the destination tables (default: public)
	Schema string `env:"SINK_SCHEMA" default:"public"`

	// MaxConns is the maximum number of pool connections (default: 4)
	MaxConns int `env:"SINK_MAX_CONNS" default:"4"`
}

// ServerConfig holds status API settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 127.0.0.1)
	Host string `env:"SERVER_HOST" default:"127.0.0.1"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 30s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
