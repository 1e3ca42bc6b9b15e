package registry

import "time"

// Tenant statuses.
const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
)

// Copy request statuses. Rejected is terminal, like approved; a request
// that is never decided stays pending indefinitely.
const (
	CopyRequestPending  = "pending"
	CopyRequestApproved = "approved"
	CopyRequestRejected = "rejected"
)

// Tenant is one isolated company unit.
type Tenant struct {
	ID          int64  `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;not null"`
	Industry    string
	Description string
	CreatedBy   string
	AdminCount  int    `gorm:"not null;default:0"`
	Status      string `gorm:"not null;default:active"`
	CreatedAt   time.Time
}

// Membership ties a user to a tenant. Unique on (TenantID, Username).
type Membership struct {
	ID        int64  `gorm:"primaryKey"`
	TenantID  int64  `gorm:"uniqueIndex:idx_membership_tenant_user;not null"`
	Username  string `gorm:"uniqueIndex:idx_membership_tenant_user;not null"`
	Email     string
	IsAdmin   bool
	CreatedAt time.Time
}

// CopyRequest is the only sanctioned path for cross-tenant data movement.
// It must be approved by an admin of the source tenant before any copy
// executes.
type CopyRequest struct {
	ID              int64 `gorm:"primaryKey"`
	SourceTenantID  int64 `gorm:"index;not null"`
	TargetTenantID  int64 `gorm:"not null"`
	RequestingUser  string
	ApprovingAdmin  string
	Status          string `gorm:"not null;default:pending"`
	DLPAcknowledged bool
	CreatedAt       time.Time
	DecidedAt       *time.Time
}
