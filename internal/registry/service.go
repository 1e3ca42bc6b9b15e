package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/vaultd/internal/logging"
)

// Common errors.
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrDuplicateTenant     = errors.New("tenant name already exists")
	ErrDuplicateMembership = errors.New("membership already exists")
	ErrBootstrapFailed     = errors.New("tenant bootstrap failed")
	ErrNotSourceAdmin      = errors.New("approver is not an admin of the source tenant")
	ErrRequestNotFound     = errors.New("copy request not found")
	ErrRequestDecided      = errors.New("copy request already decided")
)

// StoreProvisioner is the slice of the tenant store provisioner the
// registry needs during tenant creation and destruction.
type StoreProvisioner interface {
	Bootstrap(ctx context.Context, tenantID int64) error
	SeedAdminUser(ctx context.Context, tenantID int64, username, email, passwordHash string) error
	Destroy(ctx context.Context, tenantID int64) error
}

// VaultProvisioner creates and destroys tenant vault folders.
// Satisfied by the File Vault service.
type VaultProvisioner interface {
	CreateTenantFolder(ctx context.Context, tenantID int64, tenantName string) error
	RemoveTenantFolder(ctx context.Context, tenantID int64) error
}

// PasswordHasher hashes tenant admin passwords.
// Satisfied by the credentials service.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// CreateTenantRequest carries everything needed to provision a tenant.
type CreateTenantRequest struct {
	Name          string
	Industry      string
	Description   string
	CreatedBy     string
	AdminEmail    string
	AdminPassword string
}

// Validate checks required fields.
func (r *CreateTenantRequest) Validate() error {
	if r.Name == "" {
		return errors.New("tenant name is required")
	}
	if r.CreatedBy == "" {
		return errors.New("createdBy is required")
	}
	if r.AdminPassword == "" {
		return errors.New("admin password is required")
	}
	return nil
}

// Service provides tenant directory operations.
type Service interface {
	// CreateTenant allocates a tenant id, inserts the tenant row with the
	// creator as its first admin membership, and synchronously bootstraps
	// the tenant's store and vault folder. Bootstrap failure rolls the
	// tenant back entirely.
	CreateTenant(ctx context.Context, req *CreateTenantRequest) (int64, error)

	// AddMembership inserts a membership and, if isAdmin, atomically
	// increments the tenant's admin count.
	AddMembership(ctx context.Context, tenantID int64, username, email string, isAdmin bool) error

	// ListTenants returns tenants with status=active.
	ListTenants(ctx context.Context) ([]Tenant, error)

	// GetTenant returns one tenant by id.
	GetTenant(ctx context.Context, tenantID int64) (*Tenant, error)

	// GetAdmins returns the admin memberships of a tenant.
	GetAdmins(ctx context.Context, tenantID int64) ([]Membership, error)

	// CreateCopyRequest opens a pending cross-tenant copy request.
	CreateCopyRequest(ctx context.Context, sourceTenantID, targetTenantID int64, requestingUser string, dlpAcknowledged bool) (int64, error)

	// ApproveCopyRequest marks a pending request approved. The approver
	// must hold an admin membership of the source tenant.
	ApproveCopyRequest(ctx context.Context, requestID int64, approvingAdmin string, dlpAcknowledged bool) error

	// RejectCopyRequest marks a pending request rejected (terminal).
	RejectCopyRequest(ctx context.Context, requestID int64, decidingAdmin string) error

	// DestroyTenant removes the tenant row and destroys its store and
	// vault folder. Irreversible.
	DestroyTenant(ctx context.Context, tenantID int64) error

	// Close releases the registry store handle.
	Close() error
}

// service implements the Service interface.
type service struct {
	db     *gorm.DB
	stores StoreProvisioner
	vault  VaultProvisioner
	hasher PasswordHasher
	logger *logging.Logger
}

// NewService opens (or creates) the registry store at dataDir/registry.db
// and applies its schema.
func NewService(dataDir string, stores StoreProvisioner, vault VaultProvisioner, hasher PasswordHasher, logger *logging.Logger) (Service, error) {
	if dataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if stores == nil {
		return nil, errors.New("store provisioner is required")
	}
	if vault == nil {
		return nil, errors.New("vault provisioner is required")
	}
	if hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(dataDir, "registry.db")), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening registry store: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Tenant{}, &Membership{}, &CopyRequest{}); err != nil {
		return nil, fmt.Errorf("migrating registry schema: %w", err)
	}

	return &service{
		db:     db,
		stores: stores,
		vault:  vault,
		hasher: hasher,
		logger: logger.Named("registry"),
	}, nil
}

func (s *service) CreateTenant(ctx context.Context, req *CreateTenantRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, fmt.Errorf("validate: %w", err)
	}

	var existing Tenant
	err := s.db.WithContext(ctx).Where("name = ?", req.Name).First(&existing).Error
	if err == nil {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateTenant, req.Name)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("checking tenant name: %w", err)
	}

	// Insert the tenant row and the creator's admin membership together.
	// The first membership is always the creator with IsAdmin=true, so a
	// tenant is admin-capable from the moment it exists.
	tenant := Tenant{
		Name:        req.Name,
		Industry:    req.Industry,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
		AdminCount:  1,
		Status:      TenantStatusActive,
		CreatedAt:   time.Now().UTC(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}
		membership := Membership{
			TenantID:  tenant.ID,
			Username:  req.CreatedBy,
			Email:     req.AdminEmail,
			IsAdmin:   true,
			CreatedAt: time.Now().UTC(),
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return 0, fmt.Errorf("inserting tenant: %w", err)
	}

	// Provision the isolated store and vault folder synchronously. Any
	// failure unwinds the registry rows: no tenant without a usable store.
	if err := s.provision(ctx, tenant.ID, req); err != nil {
		s.rollbackTenant(ctx, tenant.ID)
		return 0, fmt.Errorf("%w: %v", ErrBootstrapFailed, err)
	}

	s.logger.Info(ctx, "tenant created",
		zap.Int64("tenant_id", tenant.ID),
		zap.String("name", req.Name),
		zap.String("created_by", req.CreatedBy))

	return tenant.ID, nil
}

// provision bootstraps the tenant store, seeds the admin user, and creates
// the vault folder.
func (s *service) provision(ctx context.Context, tenantID int64, req *CreateTenantRequest) error {
	passwordHash, err := s.hasher.HashPassword(req.AdminPassword)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}
	if err := s.stores.Bootstrap(ctx, tenantID); err != nil {
		return err
	}
	if err := s.stores.SeedAdminUser(ctx, tenantID, req.CreatedBy, req.AdminEmail, passwordHash); err != nil {
		return err
	}
	return s.vault.CreateTenantFolder(ctx, tenantID, req.Name)
}

// rollbackTenant removes the registry rows and any partially provisioned
// store after a bootstrap failure.
func (s *service) rollbackTenant(ctx context.Context, tenantID int64) {
	if err := s.stores.Destroy(ctx, tenantID); err != nil {
		s.logger.Warn(ctx, "rollback: destroying partial tenant store failed",
			zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
	if err := s.vault.RemoveTenantFolder(ctx, tenantID); err != nil {
		s.logger.Warn(ctx, "rollback: removing partial vault folder failed",
			zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Membership{}, "tenant_id = ?", tenantID).Error; err != nil {
			return err
		}
		return tx.Delete(&Tenant{}, "id = ?", tenantID).Error
	})
	if err != nil {
		s.logger.Error(ctx, "rollback: removing tenant rows failed",
			zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
}

func (s *service) AddMembership(ctx context.Context, tenantID int64, username, email string, isAdmin bool) error {
	if username == "" {
		return errors.New("username is required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tenant Tenant
		if err := tx.First(&tenant, tenantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %d", ErrTenantNotFound, tenantID)
			}
			return err
		}

		var count int64
		if err := tx.Model(&Membership{}).
			Where("tenant_id = ? AND username = ?", tenantID, username).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s in tenant %d", ErrDuplicateMembership, username, tenantID)
		}

		membership := Membership{
			TenantID:  tenantID,
			Username:  username,
			Email:     email,
			IsAdmin:   isAdmin,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}

		if isAdmin {
			// Same transaction as the insert, so the admin-count invariant
			// holds even if a later statement fails.
			if err := tx.Model(&Tenant{}).Where("id = ?", tenantID).
				UpdateColumn("admin_count", gorm.Expr("admin_count + 1")).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) ListTenants(ctx context.Context) ([]Tenant, error) {
	var tenants []Tenant
	err := s.db.WithContext(ctx).
		Where("status = ?", TenantStatusActive).
		Order("id").
		Find(&tenants).Error
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	return tenants, nil
}

func (s *service) GetTenant(ctx context.Context, tenantID int64) (*Tenant, error) {
	var tenant Tenant
	err := s.db.WithContext(ctx).First(&tenant, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrTenantNotFound, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching tenant %d: %w", tenantID, err)
	}
	return &tenant, nil
}

func (s *service) GetAdmins(ctx context.Context, tenantID int64) ([]Membership, error) {
	var admins []Membership
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_admin = ?", tenantID, true).
		Order("id").
		Find(&admins).Error
	if err != nil {
		return nil, fmt.Errorf("listing admins for tenant %d: %w", tenantID, err)
	}
	return admins, nil
}

func (s *service) CreateCopyRequest(ctx context.Context, sourceTenantID, targetTenantID int64, requestingUser string, dlpAcknowledged bool) (int64, error) {
	for _, id := range []int64{sourceTenantID, targetTenantID} {
		if _, err := s.GetTenant(ctx, id); err != nil {
			return 0, err
		}
	}

	req := CopyRequest{
		SourceTenantID:  sourceTenantID,
		TargetTenantID:  targetTenantID,
		RequestingUser:  requestingUser,
		Status:          CopyRequestPending,
		DLPAcknowledged: dlpAcknowledged,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		return 0, fmt.Errorf("creating copy request: %w", err)
	}
	return req.ID, nil
}

func (s *service) ApproveCopyRequest(ctx context.Context, requestID int64, approvingAdmin string, dlpAcknowledged bool) error {
	return s.decideCopyRequest(ctx, requestID, approvingAdmin, CopyRequestApproved, dlpAcknowledged)
}

func (s *service) RejectCopyRequest(ctx context.Context, requestID int64, decidingAdmin string) error {
	return s.decideCopyRequest(ctx, requestID, decidingAdmin, CopyRequestRejected, false)
}

// decideCopyRequest transitions a pending request to a terminal state.
// The decider must hold an admin membership of the source tenant; this is
// the sole gate that can unlock a bulk cross-tenant read.
func (s *service) decideCopyRequest(ctx context.Context, requestID int64, admin, status string, dlpAcknowledged bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req CopyRequest
		if err := tx.First(&req, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %d", ErrRequestNotFound, requestID)
			}
			return err
		}
		if req.Status != CopyRequestPending {
			return fmt.Errorf("%w: %d is %s", ErrRequestDecided, requestID, req.Status)
		}

		var count int64
		if err := tx.Model(&Membership{}).
			Where("tenant_id = ? AND username = ? AND is_admin = ?", req.SourceTenantID, admin, true).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: %s for tenant %d", ErrNotSourceAdmin, admin, req.SourceTenantID)
		}

		now := time.Now().UTC()
		req.Status = status
		req.ApprovingAdmin = admin
		req.DecidedAt = &now
		if dlpAcknowledged {
			req.DLPAcknowledged = true
		}

		s.logger.Info(ctx, "copy request decided",
			zap.Int64("request_id", requestID),
			zap.String("status", status),
			zap.String("admin", admin),
			zap.String("audit", "copy_request_decision"))

		return tx.Save(&req).Error
	})
}

func (s *service) DestroyTenant(ctx context.Context, tenantID int64) error {
	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	s.logger.Warn(ctx, "destroying tenant",
		zap.Int64("tenant_id", tenantID),
		zap.String("name", tenant.Name),
		zap.String("audit", "tenant_destroy"))

	if err := s.stores.Destroy(ctx, tenantID); err != nil {
		return fmt.Errorf("destroying store of tenant %d: %w", tenantID, err)
	}
	if err := s.vault.RemoveTenantFolder(ctx, tenantID); err != nil {
		return fmt.Errorf("removing vault folder of tenant %d: %w", tenantID, err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Membership{}, "tenant_id = ?", tenantID).Error; err != nil {
			return err
		}
		return tx.Delete(&Tenant{}, "id = ?", tenantID).Error
	})
}

func (s *service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("accessing registry connection: %w", err)
	}
	return sqlDB.Close()
}
