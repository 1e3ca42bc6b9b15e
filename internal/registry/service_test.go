package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vaultd/internal/logging"
)

// fakeStores records provisioner calls and can be told to fail.
type fakeStores struct {
	bootstrapped map[int64]bool
	seeded       map[int64]string
	destroyed    map[int64]bool
	failOn       string
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		bootstrapped: map[int64]bool{},
		seeded:       map[int64]string{},
		destroyed:    map[int64]bool{},
	}
}

func (f *fakeStores) Bootstrap(_ context.Context, tenantID int64) error {
	if f.failOn == "bootstrap" {
		return errors.New("disk full")
	}
	f.bootstrapped[tenantID] = true
	return nil
}

func (f *fakeStores) SeedAdminUser(_ context.Context, tenantID int64, username, _, hash string) error {
	if f.failOn == "seed" {
		return errors.New("seed failed")
	}
	f.seeded[tenantID] = username + ":" + hash
	return nil
}

func (f *fakeStores) Destroy(_ context.Context, tenantID int64) error {
	f.destroyed[tenantID] = true
	return nil
}

// fakeVault records folder operations.
type fakeVault struct {
	created map[int64]string
	removed map[int64]bool
	failOn  string
}

func newFakeVault() *fakeVault {
	return &fakeVault{created: map[int64]string{}, removed: map[int64]bool{}}
}

func (f *fakeVault) CreateTenantFolder(_ context.Context, tenantID int64, name string) error {
	if f.failOn == "create" {
		return errors.New("mkdir failed")
	}
	f.created[tenantID] = name
	return nil
}

func (f *fakeVault) RemoveTenantFolder(_ context.Context, tenantID int64) error {
	f.removed[tenantID] = true
	return nil
}

// fakeHasher avoids bcrypt cost in registry tests.
type fakeHasher struct{}

func (fakeHasher) HashPassword(password string) (string, error) {
	return "hashed:" + password, nil
}

func newTestRegistry(t *testing.T) (Service, *fakeStores, *fakeVault) {
	t.Helper()
	stores := newFakeStores()
	vault := newFakeVault()
	svc, err := NewService(t.TempDir(), stores, vault, fakeHasher{}, logging.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, stores, vault
}

func acmeRequest() *CreateTenantRequest {
	return &CreateTenantRequest{
		Name:          "Acme",
		Industry:      "technology",
		Description:   "widgets",
		CreatedBy:     "alice",
		AdminEmail:    "alice@acme.test",
		AdminPassword: "s3cret",
	}
}

func TestCreateTenant(t *testing.T) {
	svc, stores, vault := newTestRegistry(t)
	ctx := context.Background()

	id, err := svc.CreateTenant(ctx, acmeRequest())
	require.NoError(t, err)
	require.Positive(t, id)

	assert.True(t, stores.bootstrapped[id])
	assert.Equal(t, "alice:hashed:s3cret", stores.seeded[id])
	assert.Equal(t, "Acme", vault.created[id])

	tenant, err := svc.GetTenant(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Acme", tenant.Name)
	assert.Equal(t, "technology", tenant.Industry)
	assert.Equal(t, TenantStatusActive, tenant.Status)
	assert.Equal(t, 1, tenant.AdminCount)

	// The creator is the first, admin-capable membership.
	admins, err := svc.GetAdmins(ctx, id)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "alice", admins[0].Username)
	assert.True(t, admins[0].IsAdmin)
}

func TestCreateTenant_DuplicateName(t *testing.T) {
	svc, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := svc.CreateTenant(ctx, acmeRequest())
	require.NoError(t, err)

	_, err = svc.CreateTenant(ctx, acmeRequest())
	assert.ErrorIs(t, err, ErrDuplicateTenant)
}

func TestCreateTenant_BootstrapFailureRollsBack(t *testing.T) {
	for _, failOn := range []string{"bootstrap", "seed"} {
		t.Run("fail on "+failOn, func(t *testing.T) {
			stores := newFakeStores()
			stores.failOn = failOn
			vault := newFakeVault()
			svc, err := NewService(t.TempDir(), stores, vault, fakeHasher{}, logging.NewNopLogger())
			require.NoError(t, err)
			defer svc.Close()

			ctx := context.Background()
			_, err = svc.CreateTenant(ctx, acmeRequest())
			require.ErrorIs(t, err, ErrBootstrapFailed)

			// No partial tenant remains registered.
			tenants, err := svc.ListTenants(ctx)
			require.NoError(t, err)
			assert.Empty(t, tenants)
		})
	}
}

func TestCreateTenant_VaultFolderFailureRollsBack(t *testing.T) {
	stores := newFakeStores()
	vault := newFakeVault()
	vault.failOn = "create"
	svc, err := NewService(t.TempDir(), stores, vault, fakeHasher{}, logging.NewNopLogger())
	require.NoError(t, err)
	defer svc.Close()

	ctx := context.Background()
	id, err := svc.CreateTenant(ctx, acmeRequest())
	require.ErrorIs(t, err, ErrBootstrapFailed)
	assert.Zero(t, id)

	// The partially bootstrapped store was destroyed during rollback.
	assert.NotEmpty(t, stores.destroyed)

	tenants, err := svc.ListTenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestCreateTenant_Validation(t *testing.T) {
	svc, _, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, mutate := range []func(*CreateTenantRequest){
		func(r *CreateTenantRequest) { r.Name = "" },
		func(r *CreateTenantRequest) { r.CreatedBy = "" },
		func(r *CreateTenantRequest) { r.AdminPassword = "" },
	} {
		req := acmeRequest()
		mutate(req)
		_, err := svc.CreateTenant(ctx, req)
		assert.Error(t, err)
	}
}

func TestAddMembership(t *testing.T) {
	svc, _, _ := newTestRegistry(t)
	ctx := context.Background()

	id, err := svc.CreateTenant(ctx, acmeRequest())
	require.NoError(t, err)

	require.NoError(t, svc.AddMembership(ctx, id, "bob", "bob@acme.test", false))
	require.NoError(t, svc.AddMembership(ctx, id, "carol", "carol@acme.test", true))

	tenant, err := svc.GetTenant(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, tenant.AdminCount)

	admins, err := svc.GetAdmins(ctx, id)
	require.NoError(t, err)
	assert.Len(t, admins, 2)
}

func TestAddMembership_Duplicate(t *testing.T) {
	svc, _, _ := newTestRegistry(t)
	ctx := context.Background()

	id, err := svc.CreateTenant(ctx, acmeRequest())
	require.NoError(t, err)

	require.NoError(t, svc.AddMembership(ctx, id, "bob", "bob@acme.test", true))

	err = svc.AddMembership(ctx, id, "bob", "other@acme.test", false)
	require.ErrorIs(t, err, ErrDuplicateMembership)

	// The failed insert must not have bumped the admin count.
	tenant, err := svc.GetTenant(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, tenant.AdminCount)
}

func TestAddMembership_UnknownTenant(t *testing.T) {
	svc, _, _ := newTestRegistry(t)

	err := svc.AddMembership(context.Background(), 404, "bob", "", false)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestListTenants_ActiveOnly(t *testing.T) {
	svc, _, _ := newTestRegistry(t)
	ctx := context.Background()

	id1, err := svc.CreateTenant(ctx, acmeRequest())
	require.NoError(t, err)

	req2 := acmeRequest()
	req2.Name = "Globex"
	id2, err := svc.CreateTenant(ctx, req2)
	require.NoError(t, err)

	// Suspend Globex directly through the store.
	impl := svc.(*service)
	require.NoError(t, impl.db.Model(&Tenant{}).Where("id = ?", id2).
		Update("status", TenantStatusSuspended).Error)

	tenants, err := svc.ListTenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, id1, tenants[0].ID)
}

func TestCopyRequestLifecycle(t *testing.T) {
	svc, _, _ := newTestRegistry(t)
	ctx := context.Background()

	source, err := svc.CreateTenant(ctx, acmeRequest())
	require.NoError(t, err)
	req2 := acmeRequest()
	req2.Name = "Globex"
	req2.CreatedBy = "gloria"
	target, err := svc.CreateTenant(ctx, req2)
	require.NoError(t, err)

	reqID, err := svc.CreateCopyRequest(ctx, source, target, "bob", false)
	require.NoError(t, err)
	require.Positive(t, reqID)

	// A non-admin of the source cannot approve.
	err = svc.ApproveCopyRequest(ctx, reqID, "gloria", true)
	require.ErrorIs(t, err, ErrNotSourceAdmin)

	// The source tenant's admin can.
	require.NoError(t, svc.ApproveCopyRequest(ctx, reqID, "alice", true))

	// Terminal: cannot decide twice.
	err = svc.ApproveCopyRequest(ctx, reqID, "alice", true)
	assert.ErrorIs(t, err, ErrRequestDecided)
	err = svc.RejectCopyRequest(ctx, reqID, "alice")
	assert.ErrorIs(t, err, ErrRequestDecided)
}

func TestRejectCopyRequest(t *testing.T) {
	svc, _, _ := newTestRegistry(t)
	ctx := context.Background()

	source, err := svc.CreateTenant(ctx, acmeRequest())
	require.NoError(t, err)
	req2 := acmeRequest()
	req2.Name = "Globex"
	target, err := svc.CreateTenant(ctx, req2)
	require.NoError(t, err)

	reqID, err := svc.CreateCopyRequest(ctx, source, target, "bob", false)
	require.NoError(t, err)

	require.NoError(t, svc.RejectCopyRequest(ctx, reqID, "alice"))

	err = svc.ApproveCopyRequest(ctx, reqID, "alice", true)
	assert.ErrorIs(t, err, ErrRequestDecided)
}

func TestCreateCopyRequest_UnknownTenant(t *testing.T) {
	svc, _, _ := newTestRegistry(t)
	ctx := context.Background()

	id, err := svc.CreateTenant(ctx, acmeRequest())
	require.NoError(t, err)

	_, err = svc.CreateCopyRequest(ctx, id, 404, "bob", false)
	assert.ErrorIs(t, err, ErrTenantNotFound)

	_, err = svc.CreateCopyRequest(ctx, 404, id, "bob", false)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestDestroyTenant(t *testing.T) {
	svc, stores, vault := newTestRegistry(t)
	ctx := context.Background()

	id, err := svc.CreateTenant(ctx, acmeRequest())
	require.NoError(t, err)

	require.NoError(t, svc.DestroyTenant(ctx, id))

	assert.True(t, stores.destroyed[id])
	assert.True(t, vault.removed[id])

	_, err = svc.GetTenant(ctx, id)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}
