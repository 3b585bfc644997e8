package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override the default locations.
const (
	envConfigPath = "IDECRYPT_CONFIG_PATH"
	envHome       = "IDECRYPT_HOME"
)

// GetDefaults returns application default paths:
//   - config_path: $IDECRYPT_CONFIG_PATH or ~/.config/idecrypt.toml
//   - base_dir: $IDECRYPT_HOME or ~/.local/share/idecrypt
//   - log_dir, db_dir: under base_dir
func GetDefaults() (map[string]string, error) {
	configPath, err := envOrHome(envConfigPath, ".config", "idecrypt.toml")
	if err != nil {
		return nil, err
	}

	baseDir, err := envOrHome(envHome, ".local", "share", "idecrypt")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"db_dir":      filepath.Join(baseDir, "db"),
	}, nil
}

// envOrHome returns the value of env, or the path under the user's home
// directory when env is unset or empty.
func envOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
