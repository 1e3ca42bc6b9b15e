// Package credentials manages the process-wide master credential and
// verification of per-tenant admin passwords.
//
// The master secret is generated exactly once per install: the plaintext is
// returned a single time for out-of-band display and only its bcrypt hash
// is persisted, with owner-only file permissions. Verification failures are
// always reported as a plain false so callers cannot distinguish "not yet
// initialized" from "wrong password".
package credentials
