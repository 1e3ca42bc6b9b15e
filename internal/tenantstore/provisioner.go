package tenantstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/vaultd/internal/logging"
)

// Common errors.
var (
	// ErrInvalidTenantID indicates a non-positive tenant id.
	ErrInvalidTenantID = errors.New("invalid tenant ID")

	// ErrClosed indicates the provisioner has been shut down.
	ErrClosed = errors.New("provisioner is closed")

	// ErrNoAdminUser indicates the tenant store has no admin user row.
	ErrNoAdminUser = errors.New("tenant has no admin user")
)

// Provisioner creates and owns per-tenant SQLite stores.
//
// Handles are cached in an explicit map keyed by tenant id (one live
// connection per tenant, not per request). All access to a tenant's data
// funnels through the methods on this type.
type Provisioner struct {
	dataDir string
	logger  *logging.Logger

	mu      sync.RWMutex
	handles map[int64]*gorm.DB
	closed  bool
}

// NewProvisioner creates a provisioner rooted at dataDir/stores.
func NewProvisioner(dataDir string, logger *logging.Logger) (*Provisioner, error) {
	if dataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	storesDir := filepath.Join(dataDir, "stores")
	if err := os.MkdirAll(storesDir, 0700); err != nil {
		return nil, fmt.Errorf("creating stores directory: %w", err)
	}

	return &Provisioner{
		dataDir: storesDir,
		logger:  logger.Named("tenantstore"),
		handles: make(map[int64]*gorm.DB),
	}, nil
}

// Bootstrap creates the tenant's store (if absent) and applies its schema.
// Safe to call repeatedly: AutoMigrate is idempotent and never duplicates
// rows.
func (p *Provisioner) Bootstrap(ctx context.Context, tenantID int64) error {
	if tenantID <= 0 {
		return ErrInvalidTenantID
	}

	db, err := p.openHandle(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("bootstrap tenant %d: %w", tenantID, err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&TenantUser{}, &KnowledgeDocument{}, &KnowledgeChunk{}); err != nil {
		return fmt.Errorf("migrating tenant %d schema: %w", tenantID, err)
	}

	p.logger.Debug(ctx, "tenant store bootstrapped", zap.Int64("tenant_id", tenantID))
	return nil
}

// Handle returns the cached tenant-scoped handle, bootstrapping lazily on
// first access. Lazy creation yields an empty (but valid) store, which is
// acceptable for read paths; write paths must have gone through Bootstrap
// during tenant creation.
func (p *Provisioner) Handle(ctx context.Context, tenantID int64) (*gorm.DB, error) {
	if tenantID <= 0 {
		return nil, ErrInvalidTenantID
	}

	p.mu.RLock()
	db, ok := p.handles[tenantID]
	closed := p.closed
	p.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if ok {
		return db.WithContext(ctx), nil
	}

	if err := p.Bootstrap(ctx, tenantID); err != nil {
		return nil, err
	}

	p.mu.RLock()
	db = p.handles[tenantID]
	p.mu.RUnlock()
	if db == nil {
		return nil, ErrClosed
	}
	return db.WithContext(ctx), nil
}

// Run executes a statement against the tenant's store. The query must be
// parameterized; args are always bound, never interpolated.
func (p *Provisioner) Run(ctx context.Context, tenantID int64, query string, args ...any) error {
	db, err := p.Handle(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := db.Exec(query, args...).Error; err != nil {
		return fmt.Errorf("tenant %d exec: %w", tenantID, err)
	}
	return nil
}

// Get runs a query against the tenant's store and returns the first row as
// a column→value map, or nil if there are no rows.
func (p *Provisioner) Get(ctx context.Context, tenantID int64, query string, args ...any) (map[string]any, error) {
	rows, err := p.All(ctx, tenantID, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// All runs a query against the tenant's store and returns every row as a
// column→value map.
func (p *Provisioner) All(ctx context.Context, tenantID int64, query string, args ...any) ([]map[string]any, error) {
	db, err := p.Handle(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	rows, err := db.Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("tenant %d query: %w", tenantID, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("tenant %d columns: %w", tenantID, err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("tenant %d scan: %w", tenantID, err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tenant %d rows: %w", tenantID, err)
	}

	return out, nil
}

// SeedAdminUser inserts the tenant's admin user with a pre-hashed password.
// Called once during tenant creation, after Bootstrap.
func (p *Provisioner) SeedAdminUser(ctx context.Context, tenantID int64, username, email, passwordHash string) error {
	db, err := p.Handle(ctx, tenantID)
	if err != nil {
		return err
	}

	user := TenantUser{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		IsAdmin:      true,
	}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("seeding admin user for tenant %d: %w", tenantID, err)
	}
	return nil
}

// AdminPasswordHash returns the bcrypt hash of the tenant's admin user.
func (p *Provisioner) AdminPasswordHash(ctx context.Context, tenantID int64) (string, error) {
	db, err := p.Handle(ctx, tenantID)
	if err != nil {
		return "", err
	}

	var user TenantUser
	err = db.Where("is_admin = ?", true).Order("id").First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNoAdminUser
	}
	if err != nil {
		return "", fmt.Errorf("looking up admin for tenant %d: %w", tenantID, err)
	}
	return user.PasswordHash, nil
}

// Destroy closes the tenant's handle and irrecoverably deletes the store
// file. Only full tenant deletion calls this.
func (p *Provisioner) Destroy(ctx context.Context, tenantID int64) error {
	if tenantID <= 0 {
		return ErrInvalidTenantID
	}

	p.logger.Warn(ctx, "destroying tenant store",
		zap.Int64("tenant_id", tenantID),
		zap.String("audit", "tenant_store_destroy"))

	p.mu.Lock()
	db, ok := p.handles[tenantID]
	delete(p.handles, tenantID)
	p.mu.Unlock()

	if ok {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	path := p.dbPath(tenantID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing tenant %d store: %w", tenantID, err)
	}
	return nil
}

// Close shuts down every cached handle. The provisioner is unusable after.
func (p *Provisioner) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	for id, db := range p.handles {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("closing tenant %d handle: %w", id, err)
			}
		}
	}
	p.handles = make(map[int64]*gorm.DB)
	return firstErr
}

// openHandle opens (or returns) the cached handle for a tenant.
func (p *Provisioner) openHandle(_ context.Context, tenantID int64) (*gorm.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if db, ok := p.handles[tenantID]; ok {
		return db, nil
	}

	db, err := gorm.Open(sqlite.Open(p.dbPath(tenantID)), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	// SQLite allows one writer; a single connection serializes writes to
	// this tenant in submission order.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	p.handles[tenantID] = db
	return db, nil
}

// dbPath returns the on-disk location of a tenant's store.
func (p *Provisioner) dbPath(tenantID int64) string {
	return filepath.Join(p.dataDir, fmt.Sprintf("tenant_%d.db", tenantID))
}
