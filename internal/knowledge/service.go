package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vaultd/internal/logging"
	"github.com/fyrsmithlabs/vaultd/internal/tenantstore"
)

// ErrDocumentNotFound indicates a deindex request for an unknown document.
var ErrDocumentNotFound = errors.New("knowledge document not found")

// Config configures the indexing pipeline.
type Config struct {
	// WindowSize is the chunk window in runes (default 500).
	WindowSize int

	// Overlap is the backfill from the previous window in runes (default 50).
	Overlap int
}

// DefaultConfig returns the default chunking parameters.
func DefaultConfig() *Config {
	return &Config{
		WindowSize: 500,
		Overlap:    50,
	}
}

// Service indexes vault files into a tenant's store and removes the derived
// documents when the source file is deleted.
type Service struct {
	provisioner *tenantstore.Provisioner
	extractor   Extractor
	chunker     *Chunker
	logger      *logging.Logger
}

// NewService creates the indexing pipeline.
func NewService(cfg *Config, provisioner *tenantstore.Provisioner, extractor Extractor, logger *logging.Logger) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if provisioner == nil {
		return nil, errors.New("provisioner is required")
	}
	if extractor == nil {
		extractor = NewDefaultExtractor()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Service{
		provisioner: provisioner,
		extractor:   extractor,
		chunker:     NewChunker(cfg.WindowSize, cfg.Overlap),
		logger:      logger.Named("knowledge"),
	}, nil
}

// Index extracts text from an uploaded file and persists one document plus
// its chunks in the tenant's store. Empty content still produces exactly
// one document with zero chunks.
func (s *Service) Index(ctx context.Context, tenantID int64, userID, filename string, data []byte, mimeType string) (string, error) {
	db, err := s.provisioner.Handle(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("indexing %s: %w", filename, err)
	}

	content, err := s.extractor.Extract(filename, data, mimeType)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", filename, err)
	}

	doc := tenantstore.KnowledgeDocument{
		ID:         uuid.NewString(),
		Title:      filename,
		Content:    content,
		SourcePath: filename,
		UploadedBy: userID,
		CreatedAt:  time.Now().UTC(),
	}

	pieces := s.chunker.Split(content)
	chunks := make([]tenantstore.KnowledgeChunk, len(pieces))
	for i, text := range pieces {
		chunks[i] = tenantstore.KnowledgeChunk{
			DocumentID: doc.ID,
			Seq:        i,
			Text:       text,
		}
	}

	if err := db.Create(&doc).Error; err != nil {
		return "", fmt.Errorf("persisting document for %s: %w", filename, err)
	}
	if len(chunks) > 0 {
		if err := db.Create(&chunks).Error; err != nil {
			// Roll the parent back so a half-indexed document never lingers.
			_ = db.Delete(&tenantstore.KnowledgeDocument{}, "id = ?", doc.ID).Error
			return "", fmt.Errorf("persisting chunks for %s: %w", filename, err)
		}
	}

	s.logger.Info(ctx, "file indexed",
		zap.String("document_id", doc.ID),
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)))

	return doc.ID, nil
}

// Deindex deletes all chunks for the document, then the document row
// itself, in that order. A failure mid-operation can therefore leave a
// chunkless document, never a dangling chunk.
func (s *Service) Deindex(ctx context.Context, tenantID int64, documentID string) error {
	if documentID == "" {
		return ErrDocumentNotFound
	}

	db, err := s.provisioner.Handle(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("deindexing %s: %w", documentID, err)
	}

	if err := db.Delete(&tenantstore.KnowledgeChunk{}, "document_id = ?", documentID).Error; err != nil {
		return fmt.Errorf("deleting chunks of %s: %w", documentID, err)
	}

	res := db.Delete(&tenantstore.KnowledgeDocument{}, "id = ?", documentID)
	if res.Error != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}

	s.logger.Info(ctx, "document deindexed", zap.String("document_id", documentID))
	return nil
}

// DocumentCount returns the number of documents in a tenant's store.
// The drift reconciliation pass uses this to sanity-check the index.
func (s *Service) DocumentCount(ctx context.Context, tenantID int64) (int64, error) {
	db, err := s.provisioner.Handle(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.Model(&tenantstore.KnowledgeDocument{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting documents for tenant %d: %w", tenantID, err)
	}
	return count, nil
}
