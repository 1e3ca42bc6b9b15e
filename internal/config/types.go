// Package config provides configuration loading for vaultd.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/vaultd/internal/logging"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the root vaultd configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Storage  StorageConfig  `koanf:"storage"`
	Auth     AuthConfig     `koanf:"auth"`
	Chunking ChunkingConfig `koanf:"chunking"`
	Logging  logging.Config `koanf:"logging"`
}

// ServerConfig controls the health/metrics HTTP listener.
type ServerConfig struct {
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StorageConfig controls on-disk layout and I/O bounds.
type StorageConfig struct {
	// DataDir holds the registry store, tenant stores, tenant vault
	// folders, and the master credential hash.
	DataDir string `koanf:"data_dir"`

	// OperationTimeout bounds any single store or file operation so one
	// slow tenant disk cannot tie up callers indefinitely.
	OperationTimeout Duration `koanf:"operation_timeout"`

	// MaxUploadBytes rejects uploads larger than this size. Zero
	// disables the limit.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
}

// AuthConfig controls credential hashing.
type AuthConfig struct {
	// BcryptCost is used for tenant admin passwords.
	BcryptCost int `koanf:"bcrypt_cost"`

	// MasterBcryptCost is used for the process-wide master credential.
	// Higher than BcryptCost since the master secret unlocks every tenant.
	MasterBcryptCost int `koanf:"master_bcrypt_cost"`
}

// ChunkingConfig controls knowledge document chunking.
type ChunkingConfig struct {
	WindowSize int `koanf:"window_size"`
	Overlap    int `koanf:"overlap"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage data_dir is required")
	}
	if c.Storage.MaxUploadBytes < 0 {
		return fmt.Errorf("storage max_upload_bytes cannot be negative")
	}
	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth bcrypt_cost %d out of range (10-31)", c.Auth.BcryptCost)
	}
	if c.Auth.MasterBcryptCost < c.Auth.BcryptCost || c.Auth.MasterBcryptCost > 31 {
		return fmt.Errorf("auth master_bcrypt_cost %d must be >= bcrypt_cost and <= 31", c.Auth.MasterBcryptCost)
	}
	if c.Chunking.WindowSize <= 0 {
		return fmt.Errorf("chunking window_size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.WindowSize {
		return fmt.Errorf("chunking overlap %d must be in [0, window_size)", c.Chunking.Overlap)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
