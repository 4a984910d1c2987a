// Package config loads libraryctl settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"library-ledger/library"
)

// DefaultPath is where libraryctl looks for its config when --config is not given.
const DefaultPath = "libraryctl.yaml"

const defaultConfigYAML = `# libraryctl configuration

database:
  # SQLite file holding the catalog and loan ledger. Created on first use.
  path: library.db

loans:
  # Loan period used when "issue" is run without --days.
  default_days: 14
  # Overdue fine per day, in minor currency units (cents).
  fine_per_day: 10
  # Days past due before fines start.
  grace_days: 0

log:
  # debug, info, warn or error
  level: info
  # text or json
  format: text
`

// DatabaseConfig locates the ledger file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoansConfig is the loan and fine policy.
type LoansConfig struct {
	DefaultDays int   `yaml:"default_days"`
	FinePerDay  int64 `yaml:"fine_per_day"`
	GraceDays   int   `yaml:"grace_days"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config models libraryctl.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Loans    LoansConfig    `yaml:"loans"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "library.db"},
		Loans:    LoansConfig{DefaultDays: library.DefaultLoanDays, FinePerDay: library.DefaultFinePolicy.PerDay},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the config at path. A missing file is created with the
// commented defaults. Keys left out of the file keep their defaults, and a
// relative database path resolves against the config file's directory.
func Load(path string) (*Config, error) {
	if err := ensureConfig(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.normalize(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func ensureConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("config: write default %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize(baseDir string) {
	c.Database.Path = strings.TrimSpace(c.Database.Path)
	if c.Database.Path == "" {
		c.Database.Path = Default().Database.Path
	}
	if !filepath.IsAbs(c.Database.Path) && baseDir != "" && baseDir != "." {
		c.Database.Path = filepath.Join(baseDir, c.Database.Path)
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

// Validate rejects settings the ledger cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Loans.DefaultDays <= 0 {
		errs = append(errs, fmt.Errorf("loans.default_days must be > 0, got %d", c.Loans.DefaultDays))
	}
	if c.Loans.FinePerDay < 0 {
		errs = append(errs, fmt.Errorf("loans.fine_per_day must be >= 0, got %d", c.Loans.FinePerDay))
	}
	if c.Loans.GraceDays < 0 {
		errs = append(errs, fmt.Errorf("loans.grace_days must be >= 0, got %d", c.Loans.GraceDays))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// FinePolicy converts the loan settings for the ledger.
func (c *Config) FinePolicy() library.FinePolicy {
	return library.FinePolicy{PerDay: c.Loans.FinePerDay, GraceDays: c.Loans.GraceDays}
}

// Logger builds the slog logger described by the log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
}
