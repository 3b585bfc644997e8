package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultWorkers processes records sequentially.
const DefaultWorkers = 1

// Config represents the main configuration for idecrypt.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Workers    int              `toml:"workers"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
	Staging    StagingConfig    `toml:"staging"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// EncryptionConfig selects the keybag backend used to unlock backups.
type EncryptionConfig struct {
	Type string `toml:"type"` // "age" (default) or "test"
}

// DatabaseConfig represents configuration for the run-history database.
// The Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// StagingConfig configures where the fallback staging file is created.
type StagingConfig struct {
	TempDir string `toml:"temp_dir,omitempty"` // empty means the system temp directory
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `toml:"textfile_path,omitempty"` // empty disables the export
}

// NewConfig creates a new Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Workers: DefaultWorkers,
		Encryption: EncryptionConfig{
			Type: "age",
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
	}
}

// Validate rejects backend types no factory knows how to build.
func (c *Config) Validate() error {
	switch c.Encryption.Type {
	case "age", "test":
	default:
		return fmt.Errorf("unknown encryption type %q", c.Encryption.Type)
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.DataDir == "" {
			return errors.New("database.data_dir is required for sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database type %q", c.Database.Type)
	}
	return nil
}

// Decode reads TOML from r over cfg. Keys absent from r keep the values already in cfg.
func Decode(r io.Reader, cfg *Config) error {
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// Encode writes cfg to w as TOML.
func Encode(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Load reads the config at path, or returns NewConfig(baseDir) when no file
// exists there. Keys missing from the file keep their defaults.
func Load(path, baseDir string) (*Config, error) {
	cfg := NewConfig(baseDir)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := Decode(f, cfg); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes cfg to a new file at path. An existing file is left untouched.
func Init(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("config file already exists at %s", path)
		}
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := Encode(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
