// Package services provides the centralized service registry for vaultd.
//
// Registry pattern for accessing all core services (tenants, credentials,
// vault, knowledge, stores, watcher). Use NewRegistry() to create a
// registry with service instances, then accessor methods to retrieve
// individual services.
package services

import (
	"github.com/fyrsmithlabs/vaultd/internal/credentials"
	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/registry"
	"github.com/fyrsmithlabs/vaultd/internal/tenantstore"
	"github.com/fyrsmithlabs/vaultd/internal/vault"
	"github.com/fyrsmithlabs/vaultd/internal/watcher"
)

// Registry provides access to all vaultd services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Tenants() registry.Service
	Credentials() credentials.Service
	Vault() vault.Service
	Knowledge() *knowledge.Service
	Stores() *tenantstore.Provisioner
	Watcher() *watcher.Watcher
}

// Options configures the registry with service instances.
type Options struct {
	Tenants     registry.Service
	Credentials credentials.Service
	Vault       vault.Service
	Knowledge   *knowledge.Service
	Stores      *tenantstore.Provisioner
	Watcher     *watcher.Watcher
}

// serviceRegistry is the concrete implementation of Registry.
type serviceRegistry struct {
	tenants     registry.Service
	credentials credentials.Service
	vault       vault.Service
	knowledge   *knowledge.Service
	stores      *tenantstore.Provisioner
	watcher     *watcher.Watcher
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &serviceRegistry{
		tenants:     opts.Tenants,
		credentials: opts.Credentials,
		vault:       opts.Vault,
		knowledge:   opts.Knowledge,
		stores:      opts.Stores,
		watcher:     opts.Watcher,
	}
}

func (r *serviceRegistry) Tenants() registry.Service        { return r.tenants }
func (r *serviceRegistry) Credentials() credentials.Service { return r.credentials }
func (r *serviceRegistry) Vault() vault.Service             { return r.vault }
func (r *serviceRegistry) Knowledge() *knowledge.Service    { return r.knowledge }
func (r *serviceRegistry) Stores() *tenantstore.Provisioner { return r.stores }
func (r *serviceRegistry) Watcher() *watcher.Watcher        { return r.watcher }
