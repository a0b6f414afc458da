// Package postgres implements the queued job repository on PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbview/dispatch/internal/domain/jobs"
	"github.com/orbview/dispatch/internal/domain/tenant"
	"github.com/orbview/dispatch/internal/infra/storage"
)

var _ jobs.Repository = (*jobStore)(nil)

type jobStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewJobStore creates a new PostgreSQL-backed job repository with tracing
// capabilities.
func NewJobStore(pool *pgxpool.Pool, tracer trace.Tracer) *jobStore {
	return &jobStore{db: pool, tracer: tracer}
}

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// CreateQueued persists the job in its queued state.
func (s *jobStore) CreateQueued(ctx context.Context, rec jobs.Record) error {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}

	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", rec.JobID.String()),
		attribute.String("kind", rec.Batch.Kind.String()),
		attribute.Int("request_count", len(rec.Batch.RequestIDs)),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.create_queued_job", dbAttrs, func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, `
			INSERT INTO jobs (job_id, tenant, kind, handler_id, priority, request_ids, submitted_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.JobID, t.String(), rec.Batch.Kind.String(), rec.Batch.HandlerID,
			int(rec.Batch.Priority), rec.Batch.RequestIDs, rec.SubmittedBy,
		)
		if err != nil {
			return fmt.Errorf("insert queued job error: %w", err)
		}
		return nil
	})
}
