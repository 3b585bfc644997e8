package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:    "/home/user/.local/share/idecrypt",
		LogDir:     "/home/user/.local/share/idecrypt/log",
		Workers:    4,
		Encryption: EncryptionConfig{Type: "test"},
		Database:   DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/idecrypt/db"},
		Staging:    StagingConfig{TempDir: "/var/tmp"},
		Metrics:    MetricsConfig{TextfilePath: "/var/lib/node_exporter/idecrypt.prom"},
	}

	var buf bytes.Buffer
	if err := Encode(&buf, original); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got := &Config{}
	if err := Decode(&buf, got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Workers != 4 {
		t.Errorf("Workers = %d, want 4", got.Workers)
	}
	if got.Encryption.Type != "test" {
		t.Errorf("Encryption.Type = %q, want %q", got.Encryption.Type, "test")
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
	if got.Staging.TempDir != "/var/tmp" {
		t.Errorf("Staging.TempDir = %q, want %q", got.Staging.TempDir, "/var/tmp")
	}
	if got.Metrics.TextfilePath != original.Metrics.TextfilePath {
		t.Errorf("Metrics.TextfilePath = %q, want %q", got.Metrics.TextfilePath, original.Metrics.TextfilePath)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/idecrypt")

	if cfg.BaseDir != "/data/idecrypt" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/idecrypt")
	}
	if cfg.LogDir != "/data/idecrypt/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/idecrypt/log")
	}
	if cfg.Workers != DefaultWorkers {
		t.Errorf("Workers = %d, want %d", cfg.Workers, DefaultWorkers)
	}
	if cfg.Encryption.Type != "age" {
		t.Errorf("Encryption.Type = %q, want %q", cfg.Encryption.Type, "age")
	}
	if cfg.Database.Type != "sqlite" || cfg.Database.DataDir != "/data/idecrypt/db" {
		t.Errorf("Database = %+v, want sqlite in /data/idecrypt/db", cfg.Database)
	}
	if cfg.Metrics.TextfilePath != "" {
		t.Errorf("Metrics.TextfilePath = %q, want empty", cfg.Metrics.TextfilePath)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "idecrypt.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "idecrypt.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "test keybag in memory", mutate: func(c *Config) {
			c.Encryption.Type = "test"
			c.Database = DatabaseConfig{Type: "memory"}
		}},
		{name: "unknown encryption", mutate: func(c *Config) { c.Encryption.Type = "rot13" }, wantErr: true},
		{name: "unknown database", mutate: func(c *Config) { c.Database.Type = "postgres" }, wantErr: true},
		{name: "sqlite without data dir", mutate: func(c *Config) { c.Database.DataDir = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/data/idecrypt")
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		dir := t.TempDir()

		cfg, err := Load(filepath.Join(dir, "absent.toml"), dir)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.BaseDir != dir {
			t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, dir)
		}
		if cfg.Encryption.Type != "age" {
			t.Errorf("Encryption.Type = %q, want %q", cfg.Encryption.Type, "age")
		}
	})

	t.Run("partial file keeps defaults for missing keys", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "idecrypt.toml")
		content := "workers = 8\n\n[metrics]\ntextfile_path = \"/tmp/idecrypt.prom\"\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path, dir)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Workers != 8 {
			t.Errorf("Workers = %d, want 8", cfg.Workers)
		}
		if cfg.Metrics.TextfilePath != "/tmp/idecrypt.prom" {
			t.Errorf("Metrics.TextfilePath = %q", cfg.Metrics.TextfilePath)
		}
		if cfg.Database.Type != "sqlite" {
			t.Errorf("Database.Type = %q, want default %q", cfg.Database.Type, "sqlite")
		}
		if cfg.LogDir != filepath.Join(dir, "log") {
			t.Errorf("LogDir = %q, want default", cfg.LogDir)
		}
	})

	t.Run("non-positive workers reset to default", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "idecrypt.toml")
		if err := os.WriteFile(path, []byte("workers = 0\n"), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path, dir)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Workers != DefaultWorkers {
			t.Errorf("Workers = %d, want %d", cfg.Workers, DefaultWorkers)
		}
	})

	t.Run("reads file written by Init", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "idecrypt.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := Load(path, "/elsewhere")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
		if got.BaseDir != dir {
			t.Errorf("BaseDir = %q, want %q from file", got.BaseDir, dir)
		}
	})

	t.Run("unknown backend is an error", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "idecrypt.toml")
		if err := os.WriteFile(path, []byte("[encryption]\ntype = \"rot13\"\n"), 0644); err != nil {
			t.Fatal(err)
		}

		if _, err := Load(path, dir); err == nil {
			t.Fatal("Load() expected error for unknown encryption type")
		}
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "idecrypt.toml")
		if err := os.WriteFile(path, []byte("workers = [\n"), 0644); err != nil {
			t.Fatal(err)
		}

		if _, err := Load(path, dir); err == nil {
			t.Fatal("Load() expected error for malformed file")
		}
	})
}
