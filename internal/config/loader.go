package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves one environment variable. os.LookupEnv is one.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads configuration through lookup. Every malformed variable is
// reported, not only the first.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	if err := errors.Join(fill(reflect.ValueOf(cfg).Elem(), lookup)...); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// fill sets every env-tagged field of the struct v, descending into nested
// sections.
func fill(v reflect.Value, lookup LookupFunc) []error {
	var errs []error
	for _, field := range reflect.VisibleFields(v.Type()) {
		dst := v.FieldByIndex(field.Index)
		if !field.IsExported() {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			errs = append(errs, fill(dst, lookup)...)
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := envValue(lookup, name, field.Tag.Get("envAlt"))
		if !ok {
			raw = field.Tag.Get("default")
		}
		if raw == "" {
			continue
		}
		if err := parseInto(dst, raw); err != nil {
			errs = append(errs, fmt.Errorf("invalid value for %s=%q: %w", name, raw, err))
		}
	}
	return errs
}

// envValue returns the first non-empty value of the primary or alternate
// variable.
func envValue(lookup LookupFunc, names ...string) (string, bool) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if v, ok := lookup(n); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

var durationType = reflect.TypeOf(time.Duration(0))

// parseInto converts raw to the field's kind.
func parseInto(dst reflect.Value, raw string) error {
	if dst.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		dst.SetInt(int64(d))
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		dst.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, dst.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		dst.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		dst.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type: %s", dst.Kind())
	}
	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Pipeline validation
	if c.Pipeline.SourceDir == "" {
		errs = append(errs, "ETL_SOURCE_DIR must not be empty")
	}
	if c.Pipeline.ChunkSize < 0 {
		errs = append(errs, "ETL_CHUNK_SIZE must be non-negative")
	}
	if c.Pipeline.MaxIssues <= 0 {
		errs = append(errs, "ETL_MAX_ISSUES must be positive")
	}
	if c.Pipeline.TwoDigitYearPivot < 0 || c.Pipeline.TwoDigitYearPivot > 99 {
		errs = append(errs, fmt.Sprintf("ETL_TWO_DIGIT_YEAR_PIVOT (%d) must be 0-99", c.Pipeline.TwoDigitYearPivot))
	}
	if c.Pipeline.MaxConcurrentRuns <= 0 {
		errs = append(errs, "ETL_MAX_CONCURRENT_RUNS must be positive")
	}
	if c.Pipeline.RunWaitTime <= 0 {
		errs = append(errs, "ETL_RUN_WAIT_TIME must be positive")
	}
	if c.Pipeline.Catalog != "" {
		ext := strings.ToLower(filepath.Ext(c.Pipeline.Catalog))
		if ext != ".yaml" && ext != ".yml" && ext != ".toml" {
			errs = append(errs, fmt.Sprintf("ETL_CATALOG (%q) must be a .yaml, .yml or .toml file", c.Pipeline.Catalog))
		}
	}

	// Ledger validation
	switch strings.ToLower(c.Ledger.Driver) {
	case "memory":
	case "sqlite":
		if c.Ledger.DSN == "" {
			errs = append(errs, "LEDGER_DSN is required for the sqlite ledger")
		}
	case "postgres":
		if !strings.HasPrefix(c.Ledger.DSN, "postgres://") && !strings.HasPrefix(c.Ledger.DSN, "postgresql://") {
			errs = append(errs, "LEDGER_DSN must be a postgres:// URL for the postgres ledger")
		}
	default:
		errs = append(errs, fmt.Sprintf("LEDGER_DRIVER (%q) must be one of: memory, sqlite, postgres", c.Ledger.Driver))
	}
	if c.Ledger.MaxOpenConns <= 0 {
		errs = append(errs, "LEDGER_MAX_OPEN_CONNS must be positive")
	}
	if c.Ledger.MaxIdleConns < 0 {
		errs = append(errs, "LEDGER_MAX_IDLE_CONNS must be non-negative")
	}
	if c.Ledger.MaxOpenConns < c.Ledger.MaxIdleConns {
		errs = append(errs, fmt.Sprintf("LEDGER_MAX_OPEN_CONNS (%d) must be >= LEDGER_MAX_IDLE_CONNS (%d)",
			c.Ledger.MaxOpenConns, c.Ledger.MaxIdleConns))
	}

	// Sink validation
	switch strings.ToLower(c.Sink.Driver) {
	case "none":
	case "postgres":
		if c.Sink.DatabaseURL == "" {
			errs = append(errs, "SINK_DATABASE_URL is required for the postgres sink")
		}
		if c.Sink.Schema == "" {
			errs = append(errs, "SINK_SCHEMA must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("SINK_DRIVER (%q) must be one of: none, postgres", c.Sink.Driver))
	}
	if c.Sink.MaxConns <= 0 {
		errs = append(errs, "SINK_MAX_CONNS must be positive")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Connection strings are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Pipeline: {SourceDir: %q, Catalog: %q, ChunkSize: %d, Locale: %q}, ",
		c.Pipeline.SourceDir, c.Pipeline.Catalog, c.Pipeline.ChunkSize, c.Pipeline.Locale)
	fmt.Fprintf(&b, "Ledger: {Driver: %q, DSN: %s}, ", c.Ledger.Driver, maskDSN(c.Ledger.Driver, c.Ledger.DSN))
	fmt.Fprintf(&b, "Sink: {Driver: %q, DatabaseURL: %s, Schema: %q}, ",
		c.Sink.Driver, maskDSN("postgres", c.Sink.DatabaseURL), c.Sink.Schema)
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

// maskDSN hides connection strings that may carry credentials. A sqlite
// path is shown as is.
func maskDSN(driver, dsn string) string {
	if dsn == "" {
		return `""`
	}
	if strings.EqualFold(driver, "sqlite") {
		return strconv.Quote(dsn)
	}
	return "[MASKED]"
}
