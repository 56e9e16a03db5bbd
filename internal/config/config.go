// Package config loads engine and CLI settings.
//
// Settings come from a YAML file. A .env file next to it, when present, is
// loaded into the environment first, and ${VAR} references in string
// settings are expanded. A missing file yields Default().
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/beanplan/internal/querysql"
)

// DefaultFile is the config file name looked up by the CLI.
const DefaultFile = "beanplan.yaml"

// Config holds every setting.
type Config struct {
	// Dialect selects SQL rendering: sqlite, postgres, ansi or rownumber.
	Dialect string `yaml:"dialect"`

	// Database is the SQLite file the run command executes against.
	Database string `yaml:"database"`

	// Model is the CUE entity definition file or directory.
	Model string `yaml:"model"`

	// Dataset is an optional YAML dataset seeded into Database.
	Dataset string `yaml:"dataset"`

	// DefaultBatchSize applies to QUERY joins without a batch size.
	DefaultBatchSize int `yaml:"default_batch_size"`

	// LazyBatchSize applies to LAZY joins without a batch size.
	LazyBatchSize int `yaml:"lazy_batch_size"`

	// ColumnAliases appends c0, c1... aliases to selected columns.
	ColumnAliases bool `yaml:"column_aliases"`

	// MaxStatements bounds the statements of one execution, lazy loads
	// included. Zero disables the limit.
	MaxStatements int `yaml:"max_statements"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Dialect:          "sqlite",
		Database:         ":memory:",
		DefaultBatchSize: 100,
		LazyBatchSize:    10,
		MaxStatements:    1000,
	}
}

// Load reads the config file at path. A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := loadEnvFile(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		cfg.expandEnv()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// relative paths are relative to the config file
	dir := filepath.Dir(path)
	cfg.Model = resolve(dir, cfg.Model)
	cfg.Dataset = resolve(dir, cfg.Dataset)
	if cfg.Database != ":memory:" {
		cfg.Database = resolve(dir, cfg.Database)
	}
	return cfg, nil
}

// Parse decodes YAML over Default(), expands environment references and
// validates the result. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.expandEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var problems []error
	if _, err := querysql.DialectFor(c.Dialect); err != nil {
		problems = append(problems, err)
	}
	if c.DefaultBatchSize <= 0 {
		problems = append(problems, fmt.Errorf("default_batch_size must be positive, got %d", c.DefaultBatchSize))
	}
	if c.LazyBatchSize <= 0 {
		problems = append(problems, fmt.Errorf("lazy_batch_size must be positive, got %d", c.LazyBatchSize))
	}
	if c.MaxStatements < 0 {
		problems = append(problems, fmt.Errorf("max_statements must not be negative, got %d", c.MaxStatements))
	}
	if c.Database == "" {
		problems = append(problems, errors.New("database must be set"))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(problems...))
	}
	return nil
}

// DialectImpl returns the configured dialect.
func (c *Config) DialectImpl() (querysql.Dialect, error) {
	return querysql.DialectFor(c.Dialect)
}

func (c *Config) expandEnv() {
	c.Dialect = os.ExpandEnv(c.Dialect)
	c.Database = os.ExpandEnv(c.Database)
	c.Model = os.ExpandEnv(c.Model)
	c.Dataset = os.ExpandEnv(c.Dataset)
}

// loadEnvFile loads a .env file if it exists. Variables already set in the
// environment win.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
