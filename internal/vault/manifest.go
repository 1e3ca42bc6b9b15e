package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// manifestFilename is the manifest's name inside each tenant folder.
const manifestFilename = "manifest.json"

// VaultFile describes one stored file. Callers receive copies; mutating a
// returned VaultFile never touches the manifest.
type VaultFile struct {
	TenantID       int64     `json:"tenant_id"`
	StoredFilename string    `json:"stored_filename"`
	OriginalName   string    `json:"original_name"`
	SizeBytes      int64     `json:"size_bytes"`
	MimeType       string    `json:"mime_type"`
	UploadedAt     time.Time `json:"uploaded_at"`
	KnowledgeDocID string    `json:"knowledge_doc_id,omitempty"`

	// IndexingFailed marks an upload whose text extraction or chunking
	// failed. The file is still stored; a later reconciliation pass may
	// re-attempt indexing.
	IndexingFailed bool `json:"indexing_failed,omitempty"`
}

// manifest is the on-disk metadata record for one tenant folder.
type manifest struct {
	FileCount int         `json:"file_count"`
	TotalSize int64       `json:"total_size"`
	Files     []VaultFile `json:"files"`
}

// newManifest returns an empty manifest with a non-nil file slice so the
// serialized form always carries "files": [].
func newManifest() *manifest {
	return &manifest{Files: []VaultFile{}}
}

// find returns the index of the entry with the given stored filename,
// or -1 if absent.
func (m *manifest) find(storedFilename string) int {
	for i := range m.Files {
		if m.Files[i].StoredFilename == storedFilename {
			return i
		}
	}
	return -1
}

// add appends an entry and recomputes the counters.
func (m *manifest) add(f VaultFile) {
	m.Files = append(m.Files, f)
	m.FileCount = len(m.Files)
	m.TotalSize += f.SizeBytes
}

// remove drops the entry at index i and recomputes the counters.
func (m *manifest) remove(i int) {
	m.TotalSize -= m.Files[i].SizeBytes
	m.Files = append(m.Files[:i], m.Files[i+1:]...)
	m.FileCount = len(m.Files)
}

// loadManifest reads and parses a tenant folder's manifest.
func loadManifest(tenantDir string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(tenantDir, manifestFilename))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	m := newManifest()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Files == nil {
		m.Files = []VaultFile{}
	}
	return m, nil
}

// saveManifest writes the manifest atomically: temp file in the same
// directory, fsync-free rename. Callers must hold the tenant's mutex.
func saveManifest(tenantDir string, m *manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	target := filepath.Join(tenantDir, manifestFilename)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing manifest: %w", err)
	}
	return nil
}
