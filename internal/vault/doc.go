// Package vault implements per-tenant on-disk file storage with a JSON
// manifest, password-gated access, and synchronous knowledge indexing.
//
// The central invariant is manifest/disk consistency: a manifest entry
// always points at an existing file. Upload appends to the manifest last,
// so a crash leaves at worst an orphan file for the drift watcher to
// report, never a dangling manifest entry. Delete de-indexes first for
// the mirror-image reason.
package vault
