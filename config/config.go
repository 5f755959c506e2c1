// Package config loads the runtime configuration and builds the
// components it describes.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/consql"
	"github.com/syssam/consql/cursor"
	"github.com/syssam/consql/dialect"
	"github.com/syssam/consql/dialect/sql"
	"github.com/syssam/consql/dialect/sql/drivers"
	"github.com/syssam/consql/sqlt"
	"github.com/syssam/consql/store"
	"github.com/syssam/consql/token"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONSQL_"

// Config is the root configuration structure.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Pagination PaginationConfig `yaml:"pagination"`
	Store      StoreConfig      `yaml:"store"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig configures the database connection.
type DatabaseConfig struct {
	Dialect      string `yaml:"dialect"` // "postgres", "mysql" or "sqlite"
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PaginationConfig configures cursor tokens.
type PaginationConfig struct {
	Secret       string `yaml:"secret"`
	Signer       string `yaml:"signer"` // "sha1", "hmac-sha256" or "blake2b"
	DefaultLimit int    `yaml:"default_limit"`
	MaxLimit     int    `yaml:"max_limit"`
}

// StoreConfig configures statement execution.
type StoreConfig struct {
	Templates string        `yaml:"templates"` // directory of template overrides
	SlowQuery time.Duration `yaml:"slow_query"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables in
// it, then applies overrides and defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(&cfg)
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	CONSQL_DATABASE_DIALECT     - postgres, mysql or sqlite (default: sqlite)
//	CONSQL_DATABASE_DSN         - data source name (required)
//	CONSQL_PAGINATION_SECRET    - cursor token secret
//	CONSQL_PAGINATION_SIGNER    - sha1, hmac-sha256 or blake2b (default: sha1)
//	CONSQL_PAGINATION_LIMIT     - default page size (default: 100)
//	CONSQL_PAGINATION_MAX_LIMIT - maximum page size (default: 100)
//	CONSQL_STORE_TEMPLATES      - template override directory
//	CONSQL_STORE_SLOW_QUERY     - slow statement threshold (default: 1s)
//	CONSQL_STORE_CACHE_TTL      - list cache TTL (default: 0, no expiry)
//	CONSQL_LOG_LEVEL            - debug, info, warn, error (default: info)
//	CONSQL_LOG_FORMAT           - json or text (default: json)
func LoadFromEnv() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("apply env: %w", err)
	}
	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	str("DATABASE_DIALECT", &cfg.Database.Dialect)
	str("DATABASE_DSN", &cfg.Database.DSN)
	num("DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	str("PAGINATION_SECRET", &cfg.Pagination.Secret)
	str("PAGINATION_SIGNER", &cfg.Pagination.Signer)
	num("PAGINATION_LIMIT", &cfg.Pagination.DefaultLimit)
	num("PAGINATION_MAX_LIMIT", &cfg.Pagination.MaxLimit)
	str("STORE_TEMPLATES", &cfg.Store.Templates)
	dur("STORE_SLOW_QUERY", &cfg.Store.SlowQuery)
	dur("STORE_CACHE_TTL", &cfg.Store.CacheTTL)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	return errors.Join(errs...)
}

func setDefaults(cfg *Config) {
	if cfg.Database.Dialect == "" {
		cfg.Database.Dialect = dialect.SQLite
	}
	if cfg.Pagination.Signer == "" {
		cfg.Pagination.Signer = "sha1"
	}
	if cfg.Pagination.MaxLimit == 0 {
		cfg.Pagination.MaxLimit = cursor.MaxLimit
	}
	if cfg.Pagination.DefaultLimit == 0 {
		cfg.Pagination.DefaultLimit = min(cursor.DefaultLimit, cfg.Pagination.MaxLimit)
	}
	if cfg.Store.SlowQuery == 0 {
		cfg.Store.SlowQuery = time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if !dialect.Valid(c.Database.Dialect) {
		errs = append(errs, fmt.Errorf("database.dialect: unsupported %q", c.Database.Dialect))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn: required"))
	}
	if c.Database.MaxOpenConns < 0 {
		errs = append(errs, errors.New("database.max_open_conns: must not be negative"))
	}
	if _, err := token.SignerByName(c.Pagination.Signer); err != nil {
		errs = append(errs, fmt.Errorf("pagination.signer: %w", err))
	}
	if c.Pagination.MaxLimit < 1 {
		errs = append(errs, errors.New("pagination.max_limit: must be positive"))
	}
	if c.Pagination.DefaultLimit < 1 || c.Pagination.DefaultLimit > c.Pagination.MaxLimit {
		errs = append(errs, fmt.Errorf("pagination.default_limit: must be within [1, %d]", c.Pagination.MaxLimit))
	}
	if c.Store.SlowQuery < 0 || c.Store.CacheTTL < 0 {
		errs = append(errs, errors.New("store: durations must not be negative"))
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if f := c.Logging.Format; f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("logging.format: unsupported %q", f))
	}
	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return l, nil
}

// NewLogger returns a logger writing to w in the configured format.
func (c LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Codec returns the token codec for cursor tokens.
func (c *Config) Codec(logger *slog.Logger) (*token.Codec, error) {
	signer, err := token.SignerByName(c.Pagination.Signer)
	if err != nil {
		return nil, err
	}
	return token.NewCodec(c.Pagination.Secret, token.WithSigner(signer), token.WithLogger(logger)), nil
}

// Pager returns the cursor pager.
func (c *Config) Pager(logger *slog.Logger) (*cursor.Pager, error) {
	codec, err := c.Codec(logger)
	if err != nil {
		return nil, err
	}
	return cursor.NewPager(codec,
		cursor.WithMaxLimit(c.Pagination.MaxLimit),
		cursor.WithDefaultLimit(c.Pagination.DefaultLimit),
	)
}

// Renderer returns the statement renderer, reading overrides from the
// templates directory when set.
func (c *Config) Renderer(logger *slog.Logger) (*sqlt.Renderer, error) {
	opts := []sqlt.Option{sqlt.WithLogger(logger)}
	if c.Store.Templates != "" {
		opts = append(opts, sqlt.WithFS(os.DirFS(c.Store.Templates)))
	}
	return sqlt.New(c.Database.Dialect, opts...)
}

// Open opens the database and wraps it with statement statistics and the
// slow statement log.
func (c *Config) Open(logger *slog.Logger) (*sql.StatsDriver, error) {
	drv, err := drivers.Open(c.Database.Dialect, c.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.Database.Dialect, err)
	}
	if c.Database.MaxOpenConns > 0 {
		drv.DB().SetMaxOpenConns(c.Database.MaxOpenConns)
	}
	return sql.NewStatsDriver(drv,
		sql.WithSlowThreshold(c.Store.SlowQuery),
		sql.WithLogger(logger),
	), nil
}

// NewStore builds a store running on exec. cache may be nil.
func (c *Config) NewStore(exec dialect.ExecQuerier, cache consql.Cache, logger *slog.Logger) (*store.Store, error) {
	r, err := c.Renderer(logger)
	if err != nil {
		return nil, err
	}
	p, err := c.Pager(logger)
	if err != nil {
		return nil, err
	}
	opts := []store.Option{store.WithLogger(logger)}
	if cache != nil {
		opts = append(opts, store.WithCache(cache, c.Store.CacheTTL))
	}
	return store.New(exec, r, p, opts...), nil
}
