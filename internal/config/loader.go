package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/vaultd/internal/logging"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. VAULTD_* environment variables (VAULTD_SERVER_PORT,
//     VAULTD_STORAGE_DATA_DIR, etc.)
//  2. YAML config file (~/.config/vaultd/config.yaml)
//  3. Hardcoded defaults
//
// Config files must have 0600 or 0400 permissions; weaker permissions are
// rejected since the file may name the data directory holding credential
// hashes. Files larger than 1MB are rejected.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "vaultd", "config.yaml")
	}

	// Load from YAML file if it exists
	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the file descriptor to avoid a
		// TOCTOU race between the permission check and the read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}

		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with VAULTD_-prefixed environment variables; unprefixed
	// ambient variables never leak into config keys.
	// Example: VAULTD_STORAGE_DATA_DIR -> storage.data_dir
	if err := k.Load(env.Provider("VAULTD_", ".", func(s string) string {
		// Strip the prefix, then split on the first underscore only:
		// section.field_name.
		lower := strings.ToLower(strings.TrimPrefix(s, "VAULTD_"))
		parts := strings.SplitN(lower, "_", 2)

		if len(parts) == 1 {
			return lower
		}

		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(k, &cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	// Skip permission check on Windows (different permission model)
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
// Fields where zero is a meaningful setting (max_upload_bytes, overlap)
// are defaulted only when no source provided them at all.
func applyDefaults(k *koanf.Koanf, cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Storage.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Storage.DataDir = filepath.Join(home, ".local", "share", "vaultd")
		}
	}
	if cfg.Storage.OperationTimeout == 0 {
		cfg.Storage.OperationTimeout = Duration(30 * time.Second)
	}
	if cfg.Storage.MaxUploadBytes == 0 && !k.Exists("storage.max_upload_bytes") {
		cfg.Storage.MaxUploadBytes = 50 * 1024 * 1024 // 50MB
	}

	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = 12
	}
	if cfg.Auth.MasterBcryptCost == 0 {
		cfg.Auth.MasterBcryptCost = 14
	}

	if cfg.Chunking.WindowSize == 0 {
		cfg.Chunking.WindowSize = 500
	}
	if cfg.Chunking.Overlap == 0 && !k.Exists("chunking.overlap") {
		cfg.Chunking.Overlap = 50
	}

	if cfg.Logging.Level == "" || cfg.Logging.Format == "" {
		defaults := logging.NewDefaultConfig()
		if cfg.Logging.Level == "" {
			cfg.Logging.Level = defaults.Level
		}
		if cfg.Logging.Format == "" {
			cfg.Logging.Format = defaults.Format
		}
		if cfg.Logging.Fields == nil {
			cfg.Logging.Fields = defaults.Fields
		}
		if cfg.Logging.Redaction.Fields == nil {
			cfg.Logging.Redaction = defaults.Redaction
		}
	}
}
