// Package tenantstore provisions and owns one isolated data store per tenant.
//
// Each tenant gets its own SQLite database file under the data directory.
// Handles are created lazily, cached for the process lifetime, and owned by
// an explicit Provisioner instance so lifetime and teardown are testable.
// The tenant id passed to every method is the sole isolation boundary: no
// code path can obtain a handle for one tenant and touch another tenant's
// rows.
package tenantstore
