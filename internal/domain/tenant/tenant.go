// Package tenant defines the multi-tenant execution model. Every scan, store
// query, and job submission runs on behalf of exactly one tenant, carried
// through the call chain via the context.
package tenant

import (
	"context"
	"errors"
)

// Tenant identifies an isolated logical project whose requests and scans are
// processed independently of all other tenants.
type Tenant string

func (t Tenant) String() string { return string(t) }

// ErrNoTenant indicates an operation that requires a tenant was invoked on a
// context without one bound.
var ErrNoTenant = errors.New("no tenant bound to context")

// Resolver enumerates the tenants the dispatcher must serve. Implementations
// typically read from a shared configuration store.
type Resolver interface {
	// ActiveTenants returns the tenants currently enabled for processing.
	ActiveTenants(ctx context.Context) ([]Tenant, error)
}

type ctxKey struct{}

// WithTenant binds a tenant to the context for the duration of a call chain.
func WithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext extracts the tenant bound to the context.
func FromContext(ctx context.Context) (Tenant, error) {
	t, ok := ctx.Value(ctxKey{}).(Tenant)
	if !ok || t == "" {
		return "", ErrNoTenant
	}
	return t, nil
}

// MustFromContext extracts the tenant bound to the context and panics if none
// is bound. Reserve for code paths that are unreachable without a tenant.
func MustFromContext(ctx context.Context) Tenant {
	t, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return t
}
