package shared

import "context"

// Tenant identifies the organization and acting user for a request.
// Authentication happens upstream; handlers trust the resolved identity.
type Tenant struct {
	OrganizationID int64
	ActorID        int64
}

type tenantContextKey struct{}

// ContextWithTenant stores the tenant in context.
func ContextWithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// TenantFromContext extracts the tenant from context. The zero value means
// no tenant was resolved.
func TenantFromContext(ctx context.Context) Tenant {
	t, _ := ctx.Value(tenantContextKey{}).(Tenant)
	return t
}
