package credentials

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fyrsmithlabs/vaultd/internal/logging"
)

// masterSecretBytes is the entropy of the generated master secret.
// 32 bytes = 256 bits, well above the 128-bit floor.
const masterSecretBytes = 32

// masterCredentialFile is the name of the hash file under the data dir.
const masterCredentialFile = "master.credential"

// AdminHashLookup fetches a tenant admin's stored password hash.
// Satisfied by *tenantstore.Provisioner.
type AdminHashLookup interface {
	AdminPasswordHash(ctx context.Context, tenantID int64) (string, error)
}

// Config configures credential hashing costs.
type Config struct {
	// BcryptCost is used for tenant admin passwords (minimum 10).
	BcryptCost int

	// MasterBcryptCost is used for the master credential. Higher than
	// BcryptCost since the master secret overrides every tenant.
	MasterBcryptCost int
}

// DefaultConfig returns sensible hashing defaults.
func DefaultConfig() *Config {
	return &Config{
		BcryptCost:       12,
		MasterBcryptCost: 14,
	}
}

// Service provides master and tenant-admin credential operations.
type Service interface {
	// EnsureMaster establishes the master credential if absent. On first
	// run it returns the plaintext secret exactly once (created=true).
	// Every later call returns ("", false, nil); the plaintext is never
	// retrievable again.
	EnsureMaster(ctx context.Context) (plaintext string, created bool, err error)

	// VerifyMaster reports whether candidate matches the master secret.
	// A missing credential file yields false, never an error.
	VerifyMaster(candidate string) bool

	// VerifyTenantAdmin reports whether candidate matches the tenant
	// admin's password. Any lookup failure yields false.
	VerifyTenantAdmin(ctx context.Context, tenantID int64, candidate string) bool

	// MasterPresent reports whether a master credential has been established.
	MasterPresent() bool

	// HashPassword hashes a tenant admin password at the configured cost.
	HashPassword(password string) (string, error)
}

// service implements the Service interface.
type service struct {
	cfg        *Config
	masterPath string
	lookup     AdminHashLookup
	logger     *logging.Logger
}

// NewService creates the credential service. The master hash file lives
// directly under dataDir.
func NewService(cfg *Config, dataDir string, lookup AdminHashLookup, logger *logging.Logger) (Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BcryptCost < 10 {
		return nil, fmt.Errorf("bcrypt cost %d below minimum 10", cfg.BcryptCost)
	}
	if cfg.MasterBcryptCost < cfg.BcryptCost {
		return nil, fmt.Errorf("master bcrypt cost %d below admin cost %d", cfg.MasterBcryptCost, cfg.BcryptCost)
	}
	if dataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if lookup == nil {
		return nil, errors.New("admin hash lookup is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &service{
		cfg:        cfg,
		masterPath: filepath.Join(dataDir, masterCredentialFile),
		lookup:     lookup,
		logger:     logger.Named("credentials"),
	}, nil
}

// EnsureMaster generates and persists the master credential on first run.
// Generation failure (e.g. unwritable filesystem) is returned to the caller
// and is fatal at startup.
func (s *service) EnsureMaster(ctx context.Context) (string, bool, error) {
	if _, err := os.Stat(s.masterPath); err == nil {
		return "", false, nil
	} else if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("stat master credential: %w", err)
	}

	raw := make([]byte, masterSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", false, fmt.Errorf("generating master secret: %w", err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.cfg.MasterBcryptCost)
	if err != nil {
		return "", false, fmt.Errorf("hashing master secret: %w", err)
	}

	// O_EXCL guards against two processes racing the first run: exactly one
	// writer wins, so two retrievable plaintexts can never exist.
	f, err := os.OpenFile(s.masterPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("persisting master credential: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(hash); err != nil {
		// Remove the partial file so the next start can regenerate.
		_ = os.Remove(s.masterPath)
		return "", false, fmt.Errorf("writing master credential: %w", err)
	}

	s.logger.Info(ctx, "master credential generated",
		zap.String("path", s.masterPath),
		zap.String("audit", "master_credential_created"))

	return plaintext, true, nil
}

// VerifyMaster compares candidate against the persisted master hash.
func (s *service) VerifyMaster(candidate string) bool {
	hash, err := os.ReadFile(s.masterPath)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(candidate)) == nil
}

// VerifyTenantAdmin compares candidate against the tenant admin's hash.
func (s *service) VerifyTenantAdmin(ctx context.Context, tenantID int64, candidate string) bool {
	hash, err := s.lookup.AdminPasswordHash(ctx, tenantID)
	if err != nil {
		// Unknown tenant and wrong password are indistinguishable to the
		// caller; anything else would allow tenant id enumeration.
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

// MasterPresent reports whether the master hash file exists.
func (s *service) MasterPresent() bool {
	_, err := os.Stat(s.masterPath)
	return err == nil
}

// HashPassword hashes a tenant admin password.
func (s *service) HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
