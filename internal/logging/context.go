package logging

import (
	"context"

	"go.uber.org/zap"
)

// Context key types
type tenantCtxKey struct{}
type requestCtxKey struct{}

// WithTenantID returns a context carrying the tenant id for log correlation.
func WithTenantID(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

// TenantIDFromContext returns the tenant id from context, or 0 if absent.
func TenantIDFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(tenantCtxKey{}).(int64); ok {
		return id
	}
	return 0
}

// WithRequestID returns a context carrying a request id for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request id from context, or "" if absent.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)

	if tenantID := TenantIDFromContext(ctx); tenantID != 0 {
		fields = append(fields, zap.Int64("tenant.id", tenantID))
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}
