// Package postgres implements the tenant registry on PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbview/dispatch/internal/domain/tenant"
	"github.com/orbview/dispatch/internal/infra/storage"
)

var _ tenant.Resolver = (*tenantStore)(nil)

type tenantStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewTenantStore creates a new PostgreSQL-backed tenant resolver with tracing
// capabilities.
func NewTenantStore(pool *pgxpool.Pool, tracer trace.Tracer) *tenantStore {
	return &tenantStore{db: pool, tracer: tracer}
}

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// ActiveTenants returns all tenants scan scheduling should iterate over.
func (s *tenantStore) ActiveTenants(ctx context.Context) ([]tenant.Tenant, error) {
	var out []tenant.Tenant
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.list_active_tenants", defaultDBAttributes, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `SELECT name FROM tenants WHERE active ORDER BY name`)
		if err != nil {
			return fmt.Errorf("list active tenants error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("scan tenant row error: %w", err)
			}
			out = append(out, tenant.Tenant(name))
		}
		return rows.Err()
	})
	return out, err
}

// Ensure registers a tenant if it is not already known. Existing tenants keep
// their active flag.
func (s *tenantStore) Ensure(ctx context.Context, t tenant.Tenant) error {
	dbAttrs := append(defaultDBAttributes, attribute.String("tenant", t.String()))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.ensure_tenant", dbAttrs, func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, `
			INSERT INTO tenants (name) VALUES ($1)
			ON CONFLICT (name) DO NOTHING`,
			t.String(),
		)
		if err != nil {
			return fmt.Errorf("ensure tenant error: %w", err)
		}
		return nil
	})
}
