// Package responses applies the terminal outcomes the external job runtime
// reports back for dispatched and deleted requests.
package responses

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbview/dispatch/internal/domain/requests"
	"github.com/orbview/dispatch/internal/domain/tenant"
	"github.com/orbview/dispatch/pkg/common/logger"
)

// Result classifies one request's terminal outcome as reported by the job
// runtime.
type Result string

const (
	// ResultProcessed means the worker consumed the request successfully; the
	// backlog row is removed.
	ResultProcessed Result = "PROCESSED"

	// ResultFailed means the worker failed; the request returns to the
	// blocked set as ERROR with the reported detail.
	ResultFailed Result = "FAILED"

	// ResultInvalidContent means the worker rejected the request's content;
	// it returns to the blocked set as INVALID_CONTENT.
	ResultInvalidContent Result = "INVALID_CONTENT"

	// ResultDeleted means a delete job purged the request.
	ResultDeleted Result = "DELETED"
)

// Outcome is one request's reported result.
type Outcome struct {
	RequestID string
	Result    Result
	Detail    string
}

// Service applies reported outcomes against the backlog. Outcome writes
// interleave safely with a running scan: they use store-level atomic updates
// and only touch statuses outside the scan's filter.
type Service struct {
	requestRepo requests.Repository
	notifier    requests.SessionNotifier

	logger *logger.Logger
	tracer trace.Tracer
}

// NewService creates an outcome application service.
func NewService(requestRepo requests.Repository, notifier requests.SessionNotifier, log *logger.Logger, tracer trace.Tracer) *Service {
	return &Service{
		requestRepo: requestRepo,
		notifier:    notifier,
		logger:      log.With("component", "responses_service"),
		tracer:      tracer,
	}
}

// Apply records the outcomes for the tenant bound to the context. An outcome
// that references an unknown request or an illegal status transition is
// logged and skipped; the rest are still applied.
func (s *Service) Apply(ctx context.Context, outcomes []Outcome) error {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "responses_service.apply",
		trace.WithAttributes(
			attribute.String("tenant", t.String()),
			attribute.Int("outcome_count", len(outcomes)),
		))
	defer span.End()

	requestIDs := make([]string, len(outcomes))
	for i, o := range outcomes {
		requestIDs[i] = o.RequestID
	}

	found, err := s.requestRepo.FindByRequestIDs(ctx, requestIDs)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("loading requests for outcomes: %w", err)
	}
	byRequestID := make(map[string]*requests.Request, len(found))
	for _, req := range found {
		byRequestID[req.RequestID()] = req
	}

	for _, outcome := range outcomes {
		req, ok := byRequestID[outcome.RequestID]
		if !ok {
			s.logger.Warn(ctx, "outcome for unknown request", "request_id", outcome.RequestID)
			continue
		}
		if err := s.applyOne(ctx, t, req, outcome); err != nil {
			s.logger.Warn(ctx, "failed to apply outcome",
				"request_id", outcome.RequestID, "result", string(outcome.Result), "error", err)
		}
	}
	return nil
}

func (s *Service) applyOne(ctx context.Context, t tenant.Tenant, req *requests.Request, outcome Outcome) error {
	switch outcome.Result {
	case ResultProcessed:
		// Worker consumed the request; the backlog row is done.
		if _, err := s.requestRepo.DeleteByIDs(ctx, []int64{req.ID()}); err != nil {
			return err
		}
		return nil

	case ResultDeleted:
		if err := req.TransitionTo(requests.StatusDeleted); err != nil {
			return err
		}
		if _, err := s.requestRepo.DeleteByIDs(ctx, []int64{req.ID()}); err != nil {
			return err
		}

	case ResultFailed:
		if err := s.applyFailure(ctx, req, requests.StatusError, outcome.Detail); err != nil {
			return err
		}

	case ResultInvalidContent:
		if err := s.applyFailure(ctx, req, requests.StatusInvalidContent, outcome.Detail); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown outcome result %q", outcome.Result)
	}

	s.notifySession(ctx, t, req)
	return nil
}

func (s *Service) applyFailure(ctx context.Context, req *requests.Request, status requests.Status, detail string) error {
	if err := req.MarkFailed(status, detail); err != nil {
		return err
	}
	return s.requestRepo.UpdateOutcome(ctx, req.ID(), status, detail)
}

// notifySession forwards the outcome to session accounting, best-effort.
func (s *Service) notifySession(ctx context.Context, t tenant.Tenant, req *requests.Request) {
	if req.Source() == "" || req.Session() == "" {
		return
	}
	_ = s.notifier.Notify(ctx, requests.SessionUpdate{
		Tenant:    t,
		Source:    req.Source(),
		Session:   req.Session(),
		Status:    req.Status(),
		Count:     1,
		UpdatedAt: time.Now().UTC(),
	})
}
