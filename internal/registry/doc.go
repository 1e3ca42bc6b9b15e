// Package registry is the single global directory of tenants.
//
// It owns the registry store (tenant identity, memberships, cross-tenant
// copy requests), which is independent of any tenant's own store. Tenant
// creation synchronously provisions the tenant's isolated store and vault
// folder; if provisioning fails the tenant row is rolled back, so a tenant
// without a usable store can never exist.
package registry
