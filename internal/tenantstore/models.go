package tenantstore

import "time"

// TenantUser is a user row local to one tenant's store. The tenant admin's
// bcrypt hash lives here and is consulted by vault access checks.
type TenantUser struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string
	PasswordHash string `gorm:"not null"`
	IsAdmin      bool   `gorm:"index"`
	CreatedAt    time.Time
}

// KnowledgeDocument is the indexed-text representation of one vault file.
type KnowledgeDocument struct {
	ID         string `gorm:"primaryKey"` // uuid, assigned by the indexing pipeline
	Title      string `gorm:"not null"`
	Content    string
	SourcePath string
	UploadedBy string
	CreatedAt  time.Time
}

// KnowledgeChunk is one overlapping window of a document's content.
// Chunks never outlive their parent document.
type KnowledgeChunk struct {
	ID         uint   `gorm:"primaryKey"`
	DocumentID string `gorm:"index;not null"`
	Seq        int    `gorm:"not null"`
	Text       string
	// Embedding is reserved for a future semantic index; always empty today.
	Embedding []byte
}
