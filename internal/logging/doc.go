// Package logging provides structured, context-aware logging for vaultd.
//
// It wraps go.uber.org/zap with tenant/request correlation fields pulled
// from context.Context and redaction of sensitive fields (passwords,
// credentials) so that vault access checks never leak secrets into logs.
package logging
