// Package postgres implements the request backlog repository on PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbview/dispatch/internal/domain/requests"
	"github.com/orbview/dispatch/internal/domain/tenant"
	"github.com/orbview/dispatch/internal/infra/storage"
)

// requestStore implements requests.Repository using PostgreSQL as the backing
// store. Every query is scoped to the tenant bound to the calling context;
// page iteration relies on the id-ascending ordering the requests table
// primary key provides.
var _ requests.Repository = (*requestStore)(nil)

type requestStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewRequestStore creates a new PostgreSQL-backed request repository with
// tracing capabilities.
func NewRequestStore(pool *pgxpool.Pool, tracer trace.Tracer) *requestStore {
	return &requestStore{db: pool, tracer: tracer}
}

// defaultDBAttributes defines standard OpenTelemetry attributes for database operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// Create persists a new request and assigns its storage id.
func (s *requestStore) Create(ctx context.Context, req *requests.Request) error {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}

	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("request_id", req.RequestID()),
		attribute.String("status", req.Status().String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.create_request", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		var id int64
		err := s.db.QueryRow(ctx, `
			INSERT INTO requests (request_id, tenant, content_type, source, session, status, worker_type, error_detail, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			req.RequestID(), t.String(), req.ContentType(), req.Source(), req.Session(),
			req.Status().String(), req.WorkerType(), req.ErrDetail(), req.CreatedAt(),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert request error: %w", err)
		}

		*req = *requests.ReconstructRequest(
			id, req.RequestID(), t, req.ContentType(), req.Source(), req.Session(),
			req.Status(), req.WorkerType(), req.ErrDetail(), req.CreatedAt(),
		)
		return nil
	})
}

// Search returns up to limit requests matching the filter, ordered by storage
// id ascending. The cursor resumes iteration strictly after the given id.
func (s *requestStore) Search(
	ctx context.Context,
	filter requests.SearchFilter,
	cursor requests.Cursor,
	limit int,
) ([]*requests.Request, requests.Cursor, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, cursor, err
	}

	dbAttrs := append(
		defaultDBAttributes,
		attribute.Int("limit", limit),
		attribute.Int64("after_id", cursor.AfterID),
		attribute.Int("status_count", len(filter.Statuses)),
	)

	var out []*requests.Request
	next := cursor

	err = storage.ExecuteAndTrace(ctx, s.tracer, "postgres.search_requests", dbAttrs, func(ctx context.Context) error {
		var horizon pgtype.Timestamptz
		if filter.HasHorizon() {
			horizon = pgtype.Timestamptz{Time: filter.CreatedBefore, Valid: true}
		}

		rows, err := s.db.Query(ctx, `
			SELECT id, request_id, content_type, source, session, status, worker_type, error_detail, created_at
			FROM requests
			WHERE tenant = $1
			  AND status = ANY($2)
			  AND (cardinality($3::text[]) = 0 OR content_type = ANY($3::text[]))
			  AND ($4::timestamptz IS NULL OR created_at < $4)
			  AND id > $5
			ORDER BY id ASC
			LIMIT $6`,
			t.String(), statusStrings(filter.Statuses), filter.ContentTypes, horizon, cursor.AfterID, limit,
		)
		if err != nil {
			return fmt.Errorf("search requests query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			req, err := scanRequest(rows, t)
			if err != nil {
				return err
			}
			out = append(out, req)
			next = requests.Cursor{AfterID: req.ID()}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, cursor, err
	}

	return out, next, nil
}

// UpdateStatus atomically moves all identified requests to the new status.
func (s *requestStore) UpdateStatus(ctx context.Context, ids []int64, status requests.Status) (int64, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}

	dbAttrs := append(
		defaultDBAttributes,
		attribute.Int("request_count", len(ids)),
		attribute.String("new_status", status.String()),
	)

	var updated int64
	err = storage.ExecuteAndTrace(ctx, s.tracer, "postgres.update_requests_status", dbAttrs, func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, `
			UPDATE requests
			SET status = $3, updated_at = now()
			WHERE tenant = $1 AND id = ANY($2)`,
			t.String(), ids, status.String(),
		)
		if err != nil {
			return fmt.Errorf("update requests status error: %w", err)
		}
		updated = tag.RowsAffected()
		return nil
	})
	return updated, err
}

// UpdateOutcome records a worker-reported outcome for a single request.
func (s *requestStore) UpdateOutcome(ctx context.Context, id int64, status requests.Status, errDetail string) error {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}

	dbAttrs := append(
		defaultDBAttributes,
		attribute.Int64("request_id", id),
		attribute.String("new_status", status.String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.update_request_outcome", dbAttrs, func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, `
			UPDATE requests
			SET status = $3, error_detail = $4, updated_at = now()
			WHERE tenant = $1 AND id = $2`,
			t.String(), id, status.String(), errDetail,
		)
		if err != nil {
			return fmt.Errorf("update request outcome error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return requests.ErrRequestNotFound
		}
		return nil
	})
}

// CountByContentTypesAndStatus counts backlog entries matching any of the
// content types in the given status.
func (s *requestStore) CountByContentTypesAndStatus(
	ctx context.Context,
	contentTypes []string,
	status requests.Status,
) (int64, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}

	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("status", status.String()),
		attribute.Int("content_type_count", len(contentTypes)),
	)

	var count int64
	err = storage.ExecuteAndTrace(ctx, s.tracer, "postgres.count_requests", dbAttrs, func(ctx context.Context) error {
		err := s.db.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM requests
			WHERE tenant = $1 AND status = $2 AND content_type = ANY($3)`,
			t.String(), status.String(), contentTypes,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("count requests error: %w", err)
		}
		return nil
	})
	return count, err
}

// FindByRequestIDs returns the requests with the given business ids.
func (s *requestStore) FindByRequestIDs(ctx context.Context, requestIDs []string) ([]*requests.Request, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	dbAttrs := append(defaultDBAttributes, attribute.Int("request_id_count", len(requestIDs)))

	var out []*requests.Request
	err = storage.ExecuteAndTrace(ctx, s.tracer, "postgres.find_requests_by_request_ids", dbAttrs, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `
			SELECT id, request_id, content_type, source, session, status, worker_type, error_detail, created_at
			FROM requests
			WHERE tenant = $1 AND request_id = ANY($2)`,
			t.String(), requestIDs,
		)
		if err != nil {
			return fmt.Errorf("find requests query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			req, err := scanRequest(rows, t)
			if err != nil {
				return err
			}
			out = append(out, req)
		}
		return rows.Err()
	})
	return out, err
}

// DeleteByIDs removes the identified requests outright.
func (s *requestStore) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}

	dbAttrs := append(defaultDBAttributes, attribute.Int("request_count", len(ids)))

	var deleted int64
	err = storage.ExecuteAndTrace(ctx, s.tracer, "postgres.delete_requests", dbAttrs, func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, `DELETE FROM requests WHERE tenant = $1 AND id = ANY($2)`, t.String(), ids)
		if err != nil {
			return fmt.Errorf("delete requests error: %w", err)
		}
		deleted = tag.RowsAffected()
		return nil
	})
	return deleted, err
}

func scanRequest(rows pgx.Rows, t tenant.Tenant) (*requests.Request, error) {
	var (
		id          int64
		requestID   string
		contentType string
		source      string
		session     string
		status      string
		workerType  string
		errDetail   string
		createdAt   time.Time
	)
	if err := rows.Scan(&id, &requestID, &contentType, &source, &session, &status, &workerType, &errDetail, &createdAt); err != nil {
		return nil, fmt.Errorf("scan request row error: %w", err)
	}

	return requests.ReconstructRequest(
		id, requestID, t, contentType, source, session,
		requests.ParseStatus(status), workerType, errDetail, createdAt,
	), nil
}

func statusStrings(statuses []requests.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.String()
	}
	return out
}
