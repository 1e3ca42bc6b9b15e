package tenantstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vaultd/internal/logging"
)

func newTestProvisioner(t *testing.T) *Provisioner {
	t.Helper()
	p, err := NewProvisioner(t.TempDir(), logging.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestBootstrap_Idempotent(t *testing.T) {
	p := newTestProvisioner(t)
	ctx := context.Background()

	require.NoError(t, p.Bootstrap(ctx, 1))
	require.NoError(t, p.Bootstrap(ctx, 1))
	require.NoError(t, p.Bootstrap(ctx, 1))

	_, err := os.Stat(p.dbPath(1))
	require.NoError(t, err)
}

func TestBootstrap_InvalidTenantID(t *testing.T) {
	p := newTestProvisioner(t)

	err := p.Bootstrap(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidTenantID)

	err = p.Bootstrap(context.Background(), -5)
	assert.ErrorIs(t, err, ErrInvalidTenantID)
}

func TestIsolation_QueriesNeverCrossTenants(t *testing.T) {
	p := newTestProvisioner(t)
	ctx := context.Background()

	require.NoError(t, p.Bootstrap(ctx, 1))
	require.NoError(t, p.Bootstrap(ctx, 2))

	// Identical schema, identical row ids, different content.
	require.NoError(t, p.Run(ctx, 1,
		"INSERT INTO knowledge_documents (id, title, content, source_path, uploaded_by, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		"doc-1", "a.txt", "tenant one secret", "/a", "alice", "2026-01-01"))
	require.NoError(t, p.Run(ctx, 2,
		"INSERT INTO knowledge_documents (id, title, content, source_path, uploaded_by, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		"doc-1", "a.txt", "tenant two secret", "/a", "bob", "2026-01-01"))

	row1, err := p.Get(ctx, 1, "SELECT content FROM knowledge_documents WHERE id = ?", "doc-1")
	require.NoError(t, err)
	row2, err := p.Get(ctx, 2, "SELECT content FROM knowledge_documents WHERE id = ?", "doc-1")
	require.NoError(t, err)

	assert.Equal(t, "tenant one secret", row1["content"])
	assert.Equal(t, "tenant two secret", row2["content"])

	// Mutating tenant 1 leaves tenant 2 untouched.
	require.NoError(t, p.Run(ctx, 1, "DELETE FROM knowledge_documents"))

	gone, err := p.Get(ctx, 1, "SELECT content FROM knowledge_documents WHERE id = ?", "doc-1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	still, err := p.Get(ctx, 2, "SELECT content FROM knowledge_documents WHERE id = ?", "doc-1")
	require.NoError(t, err)
	require.NotNil(t, still)
	assert.Equal(t, "tenant two secret", still["content"])
}

func TestHandle_LazyBootstrapForReads(t *testing.T) {
	p := newTestProvisioner(t)
	ctx := context.Background()

	// No explicit Bootstrap. A read against an unknown tenant transparently
	// creates an empty store instead of failing.
	rows, err := p.All(ctx, 7, "SELECT * FROM knowledge_documents")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSeedAdminUser_AndLookup(t *testing.T) {
	p := newTestProvisioner(t)
	ctx := context.Background()

	require.NoError(t, p.Bootstrap(ctx, 3))

	_, err := p.AdminPasswordHash(ctx, 3)
	assert.ErrorIs(t, err, ErrNoAdminUser)

	require.NoError(t, p.SeedAdminUser(ctx, 3, "admin", "admin@acme.test", "$2a$12$fakehash"))

	hash, err := p.AdminPasswordHash(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "$2a$12$fakehash", hash)
}

func TestDestroy_RemovesStoreFile(t *testing.T) {
	p := newTestProvisioner(t)
	ctx := context.Background()

	require.NoError(t, p.Bootstrap(ctx, 4))
	path := p.dbPath(4)
	_, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, p.Destroy(ctx, 4))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Destroying an already-destroyed tenant is not an error.
	require.NoError(t, p.Destroy(ctx, 4))
}

func TestClose_RejectsFurtherUse(t *testing.T) {
	p, err := NewProvisioner(t.TempDir(), logging.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, p.Bootstrap(context.Background(), 1))
	require.NoError(t, p.Close())

	_, err = p.Handle(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)

	// Close is idempotent.
	require.NoError(t, p.Close())
}

func TestNewProvisioner_CreatesStoresDir(t *testing.T) {
	dir := t.TempDir()
	p, err := NewProvisioner(dir, nil)
	require.NoError(t, err)
	defer p.Close()

	info, err := os.Stat(filepath.Join(dir, "stores"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
