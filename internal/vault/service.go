package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vaultd/internal/logging"
	"github.com/fyrsmithlabs/vaultd/internal/sanitize"
)

// Vault errors. AccessDenied and InvalidPath deliberately carry no detail
// so callers cannot distinguish wrong password from missing tenant or
// probe the filesystem layout.
var (
	// ErrTenantNotFound indicates the tenant has no provisioned folder.
	ErrTenantNotFound = errors.New("tenant folder not found")

	// ErrAccessDenied indicates a failed password or master check.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidPath indicates a malformed or traversal-attempting
	// stored filename.
	ErrInvalidPath = errors.New("invalid stored filename")

	// ErrFileNotFound indicates no manifest entry for the stored filename.
	ErrFileNotFound = errors.New("file not found in vault")

	// ErrUploadTooLarge indicates the upload exceeds the configured limit.
	ErrUploadTooLarge = errors.New("upload exceeds size limit")
)

// Indexer derives and removes knowledge documents for vault files.
// Satisfied by *knowledge.Service.
type Indexer interface {
	Index(ctx context.Context, tenantID int64, userID, filename string, data []byte, mimeType string) (string, error)
	Deindex(ctx context.Context, tenantID int64, documentID string) error
}

// CredentialVerifier performs the two-tier access check.
// Satisfied by credentials.Service.
type CredentialVerifier interface {
	VerifyMaster(candidate string) bool
	VerifyTenantAdmin(ctx context.Context, tenantID int64, candidate string) bool
	MasterPresent() bool
}

// FolderWatcher is notified when tenant folders appear and disappear.
// Satisfied by *watcher.Watcher. Optional; a nil watcher disables drift
// observation.
type FolderWatcher interface {
	Watch(tenantID int64, dir string) error
	Unwatch(tenantID int64)
}

// Config configures the file vault.
type Config struct {
	// DataDir is the root under which tenant folders live.
	DataDir string

	// MaxUploadBytes rejects uploads larger than this size. Zero or
	// negative disables the limit.
	MaxUploadBytes int64
}

// UploadRequest carries one file upload.
type UploadRequest struct {
	Filename string
	Data     []byte
	MimeType string
}

// Stats summarizes one tenant's vault usage.
type Stats struct {
	FileCount int   `json:"file_count"`
	TotalSize int64 `json:"total_size"`
}

// Service is the password-gated per-tenant file store.
type Service interface {
	// CreateTenantFolder creates the tenant's directory with owner-only
	// permissions, writes an empty manifest, and registers the folder
	// with the drift watcher. Idempotent.
	CreateTenantFolder(ctx context.Context, tenantID int64, tenantName string) error

	// RemoveTenantFolder deletes the tenant's folder and everything in
	// it. Only full tenant deletion calls this.
	RemoveTenantFolder(ctx context.Context, tenantID int64) error

	// VerifyAccess performs the two-tier access check: master secret if
	// isMaster, otherwise the tenant admin's password. A false result is
	// terminal; callers must not retry with the same password.
	VerifyAccess(ctx context.Context, tenantID int64, password string, isMaster bool) bool

	// Upload stores the file, indexes it synchronously, and appends the
	// manifest entry last. Indexing failure degrades to a warning; the
	// upload still succeeds with IndexingFailed set.
	Upload(ctx context.Context, tenantID int64, userID string, req UploadRequest) (VaultFile, error)

	// Delete de-indexes the file's knowledge document, unlinks the file,
	// and removes the manifest entry, in that order.
	Delete(ctx context.Context, tenantID int64, storedFilename string) error

	// List returns copies of the tenant's manifest entries.
	List(ctx context.Context, tenantID int64) ([]VaultFile, error)

	// Stats returns the tenant's file count and total size.
	Stats(ctx context.Context, tenantID int64) (Stats, error)

	// Download returns the file's bytes after the same path checks as
	// Delete.
	Download(ctx context.Context, tenantID int64, storedFilename string) ([]byte, error)

	// MasterCredentialPresent reports whether the process master
	// credential has been established.
	MasterCredentialPresent() bool

	// Tracked reports whether a stored filename has a manifest entry.
	// Used by the drift watcher; never performs filesystem access beyond
	// the manifest read.
	Tracked(tenantID int64, storedFilename string) bool
}

// service implements the Service interface.
type service struct {
	cfg      *Config
	verifier CredentialVerifier
	indexer  Indexer
	watcher  FolderWatcher
	logger   *logging.Logger

	// mu guards tenantMu; each tenant's mutex serializes that tenant's
	// manifest read-modify-write. Operations on different tenants never
	// contend.
	mu       sync.Mutex
	tenantMu map[int64]*sync.Mutex

	// stampMu guards lastStamp, the monotonic upload timestamp.
	stampMu   sync.Mutex
	lastStamp int64
}

// NewService creates the file vault rooted at cfg.DataDir. The watcher
// may be nil.
func NewService(cfg *Config, verifier CredentialVerifier, indexer Indexer, fw FolderWatcher, logger *logging.Logger) (Service, error) {
	if cfg == nil || cfg.DataDir == "" {
		return nil, errors.New("data dir is required")
	}
	if verifier == nil {
		return nil, errors.New("credential verifier is required")
	}
	if indexer == nil {
		return nil, errors.New("indexer is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "vault"), 0o700); err != nil {
		return nil, fmt.Errorf("creating vault root: %w", err)
	}

	return &service{
		cfg:      cfg,
		verifier: verifier,
		indexer:  indexer,
		watcher:  fw,
		logger:   logger.Named("vault"),
		tenantMu: make(map[int64]*sync.Mutex),
	}, nil
}

func (s *service) CreateTenantFolder(ctx context.Context, tenantID int64, tenantName string) error {
	if tenantID <= 0 {
		return fmt.Errorf("%w: tenant id %d", ErrTenantNotFound, tenantID)
	}

	dir := s.tenantDir(tenantID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating tenant folder: %w", err)
	}

	mu := s.tenantMutex(tenantID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := os.Stat(filepath.Join(dir, manifestFilename)); os.IsNotExist(err) {
		if err := saveManifest(dir, newManifest()); err != nil {
			return err
		}
	}

	if s.watcher != nil {
		if err := s.watcher.Watch(tenantID, dir); err != nil {
			s.logger.Warn(ctx, "drift watching unavailable for tenant",
				zap.Int64("tenant_id", tenantID), zap.Error(err))
		}
	}

	s.logger.Info(ctx, "tenant folder created",
		zap.Int64("tenant_id", tenantID),
		zap.String("tenant_name", tenantName))
	return nil
}

func (s *service) RemoveTenantFolder(ctx context.Context, tenantID int64) error {
	mu := s.tenantMutex(tenantID)
	mu.Lock()
	defer mu.Unlock()

	dir := s.tenantDir(tenantID)

	// Audit before the destructive step.
	s.logger.Info(ctx, "removing tenant folder",
		zap.Int64("tenant_id", tenantID))

	if s.watcher != nil {
		s.watcher.Unwatch(tenantID)
	}

	if m, err := loadManifest(dir); err == nil {
		BytesStored.Sub(float64(m.TotalSize))
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing tenant folder: %w", err)
	}
	return nil
}

func (s *service) VerifyAccess(ctx context.Context, tenantID int64, password string, isMaster bool) bool {
	var ok bool
	if isMaster {
		ok = s.verifier.VerifyMaster(password)
	} else {
		ok = s.verifier.VerifyTenantAdmin(ctx, tenantID, password)
	}

	if !ok {
		AccessDenialsTotal.Inc()
		s.logger.Warn(ctx, "vault access denied",
			zap.Int64("tenant_id", tenantID),
			zap.Bool("master", isMaster))
	}
	return ok
}

func (s *service) Upload(ctx context.Context, tenantID int64, userID string, req UploadRequest) (VaultFile, error) {
	if s.cfg.MaxUploadBytes > 0 && int64(len(req.Data)) > s.cfg.MaxUploadBytes {
		UploadsTotal.WithLabelValues("error").Inc()
		return VaultFile{}, fmt.Errorf("%w: %d bytes", ErrUploadTooLarge, len(req.Data))
	}

	dir := s.tenantDir(tenantID)
	if _, err := os.Stat(dir); err != nil {
		UploadsTotal.WithLabelValues("error").Inc()
		return VaultFile{}, fmt.Errorf("%w: tenant %d", ErrTenantNotFound, tenantID)
	}

	mu := s.tenantMutex(tenantID)
	mu.Lock()
	defer mu.Unlock()

	storedName := fmt.Sprintf("%d_%s", s.nextStamp(), sanitize.Filename(req.Filename))
	path := filepath.Join(dir, storedName)

	if err := os.WriteFile(path, req.Data, 0o600); err != nil {
		UploadsTotal.WithLabelValues("error").Inc()
		return VaultFile{}, fmt.Errorf("writing file: %w", err)
	}

	entry := VaultFile{
		TenantID:       tenantID,
		StoredFilename: storedName,
		OriginalName:   req.Filename,
		SizeBytes:      int64(len(req.Data)),
		MimeType:       req.MimeType,
		UploadedAt:     time.Now(),
	}

	// The vault is the source of truth and the index a derived
	// convenience, so extraction failure does not fail the upload.
	docID, err := s.indexer.Index(ctx, tenantID, userID, storedName, req.Data, req.MimeType)
	if err != nil {
		entry.IndexingFailed = true
		IndexingFailuresTotal.Inc()
		s.logger.Warn(ctx, "knowledge indexing failed, file stored unindexed",
			zap.Int64("tenant_id", tenantID),
			zap.String("stored_filename", storedName),
			zap.Error(err))
	} else {
		entry.KnowledgeDocID = docID
	}

	// Manifest append is last: a crash before here leaves an orphan file
	// for the drift watcher, never a dangling manifest entry.
	m, err := loadManifest(dir)
	if err != nil {
		UploadsTotal.WithLabelValues("error").Inc()
		return VaultFile{}, err
	}
	m.add(entry)
	if err := saveManifest(dir, m); err != nil {
		UploadsTotal.WithLabelValues("error").Inc()
		return VaultFile{}, err
	}

	UploadsTotal.WithLabelValues("success").Inc()
	BytesStored.Add(float64(entry.SizeBytes))

	s.logger.Info(ctx, "file uploaded",
		zap.Int64("tenant_id", tenantID),
		zap.String("stored_filename", storedName),
		zap.Int64("size_bytes", entry.SizeBytes),
		zap.String("uploaded_by", userID))
	return entry, nil
}

func (s *service) Delete(ctx context.Context, tenantID int64, storedFilename string) error {
	dir := s.tenantDir(tenantID)

	path, err := sanitize.ValidateStoredFilename(dir, storedFilename)
	if err != nil {
		s.logger.Warn(ctx, "path traversal attempt rejected",
			zap.Int64("tenant_id", tenantID),
			zap.String("stored_filename", storedFilename))
		DeletesTotal.WithLabelValues("error").Inc()
		return ErrInvalidPath
	}

	if _, err := os.Stat(dir); err != nil {
		DeletesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: tenant %d", ErrTenantNotFound, tenantID)
	}

	mu := s.tenantMutex(tenantID)
	mu.Lock()
	defer mu.Unlock()

	m, err := loadManifest(dir)
	if err != nil {
		DeletesTotal.WithLabelValues("error").Inc()
		return err
	}
	idx := m.find(storedFilename)
	if idx < 0 {
		DeletesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %s", ErrFileNotFound, storedFilename)
	}
	entry := m.Files[idx]

	// Audit before any mutation.
	s.logger.Info(ctx, "deleting vault file",
		zap.Int64("tenant_id", tenantID),
		zap.String("stored_filename", storedFilename),
		zap.String("knowledge_doc_id", entry.KnowledgeDocID))

	// Index cleanup happens first: a crash mid-operation leaves at worst
	// an untracked file, never an index entry with no backing file.
	if entry.KnowledgeDocID != "" {
		if err := s.indexer.Deindex(ctx, tenantID, entry.KnowledgeDocID); err != nil {
			DeletesTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("removing knowledge document: %w", err)
		}
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		DeletesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("removing file: %w", err)
	}

	m.remove(idx)
	if err := saveManifest(dir, m); err != nil {
		DeletesTotal.WithLabelValues("error").Inc()
		return err
	}

	DeletesTotal.WithLabelValues("success").Inc()
	BytesStored.Sub(float64(entry.SizeBytes))
	return nil
}

func (s *service) List(ctx context.Context, tenantID int64) ([]VaultFile, error) {
	m, err := s.snapshot(tenantID)
	if err != nil {
		return nil, err
	}

	files := make([]VaultFile, len(m.Files))
	copy(files, m.Files)
	return files, nil
}

func (s *service) Stats(ctx context.Context, tenantID int64) (Stats, error) {
	m, err := s.snapshot(tenantID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{FileCount: m.FileCount, TotalSize: m.TotalSize}, nil
}

func (s *service) Download(ctx context.Context, tenantID int64, storedFilename string) ([]byte, error) {
	dir := s.tenantDir(tenantID)

	path, err := sanitize.ValidateStoredFilename(dir, storedFilename)
	if err != nil {
		s.logger.Warn(ctx, "path traversal attempt rejected",
			zap.Int64("tenant_id", tenantID),
			zap.String("stored_filename", storedFilename))
		DownloadsTotal.WithLabelValues("error").Inc()
		return nil, ErrInvalidPath
	}

	mu := s.tenantMutex(tenantID)
	mu.Lock()
	defer mu.Unlock()

	m, err := loadManifest(dir)
	if err != nil {
		DownloadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: tenant %d", ErrTenantNotFound, tenantID)
	}
	if m.find(storedFilename) < 0 {
		DownloadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, storedFilename)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		DownloadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("reading file: %w", err)
	}

	DownloadsTotal.WithLabelValues("success").Inc()
	return data, nil
}

func (s *service) MasterCredentialPresent() bool {
	return s.verifier.MasterPresent()
}

func (s *service) Tracked(tenantID int64, storedFilename string) bool {
	m, err := s.snapshot(tenantID)
	if err != nil {
		return false
	}
	return m.find(storedFilename) >= 0
}

// snapshot loads a tenant's manifest under its mutex. A missing folder or
// manifest surfaces as ErrTenantNotFound.
func (s *service) snapshot(tenantID int64) (*manifest, error) {
	mu := s.tenantMutex(tenantID)
	mu.Lock()
	defer mu.Unlock()

	m, err := loadManifest(s.tenantDir(tenantID))
	if err != nil {
		return nil, fmt.Errorf("%w: tenant %d", ErrTenantNotFound, tenantID)
	}
	return m, nil
}

// tenantDir returns the tenant's folder under the vault root.
func (s *service) tenantDir(tenantID int64) string {
	return filepath.Join(s.cfg.DataDir, "vault", fmt.Sprintf("tenant_%d", tenantID))
}

// tenantMutex returns the mutex serializing one tenant's manifest writes.
func (s *service) tenantMutex(tenantID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.tenantMu[tenantID]
	if !ok {
		mu = &sync.Mutex{}
		s.tenantMu[tenantID] = mu
	}
	return mu
}

// nextStamp returns a strictly increasing nanosecond timestamp so two
// uploads in the same instant cannot collide on a stored filename.
func (s *service) nextStamp() int64 {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	now := time.Now().UnixNano()
	if now <= s.lastStamp {
		now = s.lastStamp + 1
	}
	s.lastStamp = now
	return now
}
