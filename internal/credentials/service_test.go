package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fyrsmithlabs/vaultd/internal/logging"
)

// fakeLookup is a stub AdminHashLookup backed by a map.
type fakeLookup struct {
	hashes map[int64]string
}

func (f *fakeLookup) AdminPasswordHash(_ context.Context, tenantID int64) (string, error) {
	hash, ok := f.hashes[tenantID]
	if !ok {
		return "", errors.New("no admin user")
	}
	return hash, nil
}

// Tests run at bcrypt.MinCost-adjacent values to stay fast; the production
// floor of 10 is enforced by NewService and covered separately.
func testConfig() *Config {
	return &Config{BcryptCost: 10, MasterBcryptCost: 10}
}

func newTestService(t *testing.T, lookup AdminHashLookup) (Service, string) {
	t.Helper()
	dir := t.TempDir()
	if lookup == nil {
		lookup = &fakeLookup{hashes: map[int64]string{}}
	}
	svc, err := NewService(testConfig(), dir, lookup, logging.NewTestLogger(t))
	require.NoError(t, err)
	return svc, dir
}

func TestNewService_Validation(t *testing.T) {
	lookup := &fakeLookup{}

	_, err := NewService(&Config{BcryptCost: 4, MasterBcryptCost: 14}, t.TempDir(), lookup, nil)
	assert.Error(t, err)

	_, err = NewService(&Config{BcryptCost: 12, MasterBcryptCost: 10}, t.TempDir(), lookup, nil)
	assert.Error(t, err)

	_, err = NewService(nil, "", lookup, nil)
	assert.Error(t, err)

	_, err = NewService(nil, t.TempDir(), nil, nil)
	assert.Error(t, err)
}

func TestEnsureMaster_FirstRunReturnsPlaintextOnce(t *testing.T) {
	svc, dir := newTestService(t, nil)
	ctx := context.Background()

	plaintext, created, err := svc.EnsureMaster(ctx)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotEmpty(t, plaintext)

	// The hash file exists with owner-only permissions and holds no plaintext.
	info, err := os.Stat(filepath.Join(dir, masterCredentialFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	content, err := os.ReadFile(filepath.Join(dir, masterCredentialFile))
	require.NoError(t, err)
	assert.NotContains(t, string(content), plaintext)
	require.NoError(t, bcrypt.CompareHashAndPassword(content, []byte(plaintext)))
}

func TestEnsureMaster_SecondCallReturnsNothing(t *testing.T) {
	svc, dir := newTestService(t, nil)
	ctx := context.Background()

	first, created, err := svc.EnsureMaster(ctx)
	require.NoError(t, err)
	require.True(t, created)

	// Same process.
	second, created, err := svc.EnsureMaster(ctx)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, second)

	// Simulated process restart: a fresh service over the same data dir.
	restarted, err := NewService(testConfig(), dir, &fakeLookup{}, nil)
	require.NoError(t, err)
	third, created, err := restarted.EnsureMaster(ctx)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, third)

	// The original secret still verifies after the restart.
	assert.True(t, restarted.VerifyMaster(first))
}

func TestVerifyMaster(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	// No credential established yet: false, not an error.
	assert.False(t, svc.VerifyMaster("anything"))

	plaintext, _, err := svc.EnsureMaster(ctx)
	require.NoError(t, err)

	assert.True(t, svc.VerifyMaster(plaintext))
	assert.False(t, svc.VerifyMaster("wrong-secret"))
	assert.False(t, svc.VerifyMaster(""))
}

func TestVerifyTenantAdmin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	lookup := &fakeLookup{hashes: map[int64]string{1: string(hash)}}
	svc, _ := newTestService(t, lookup)
	ctx := context.Background()

	assert.True(t, svc.VerifyTenantAdmin(ctx, 1, "s3cret"))
	assert.False(t, svc.VerifyTenantAdmin(ctx, 1, "wrong"))

	// Unknown tenant reads the same as wrong password.
	assert.False(t, svc.VerifyTenantAdmin(ctx, 99, "s3cret"))
}

func TestMasterPresent(t *testing.T) {
	svc, _ := newTestService(t, nil)

	assert.False(t, svc.MasterPresent())

	_, _, err := svc.EnsureMaster(context.Background())
	require.NoError(t, err)

	assert.True(t, svc.MasterPresent())
}

func TestHashPassword(t *testing.T) {
	svc, _ := newTestService(t, nil)

	hash, err := svc.HashPassword("hunter2")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")))

	_, err = svc.HashPassword("")
	assert.Error(t, err)
}
