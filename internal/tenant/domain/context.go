package domain

import (
	"context"

	"github.com/google/uuid"
)

type tenantKey struct{}

// WithTenant binds ctx to a tenant. Request handlers do this once per request.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// FromContext returns the tenant bound to ctx. Background and administrative
// work runs without one.
func FromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(tenantKey{}).(uuid.UUID)
	return id, ok
}

// CanAccess reports whether ctx may act on target: either no tenant is bound or
// the bound tenant is target.
func CanAccess(ctx context.Context, target uuid.UUID) bool {
	current, ok := FromContext(ctx)
	return !ok || current == target
}
