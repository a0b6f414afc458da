package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbview/dispatch/internal/domain/jobs"
	"github.com/orbview/dispatch/internal/domain/requests"
	"github.com/orbview/dispatch/internal/domain/tenant"
	"github.com/orbview/dispatch/pkg/common/logger"
)

// PageProcessor drains the backlog slice a scan selected, one page at a time.
// Each page is its own unit of work: submit the page's ids as a job batch,
// then flip their status to the scan target. Because the status flip removes
// those rows from the filter's result set, every iteration re-queries with
// the original filter and a request id can never appear in two batches.
type PageProcessor struct {
	requestRepo requests.Repository
	dispatcher  jobs.Dispatcher
	notifier    requests.SessionNotifier

	pageSize int

	logger  *logger.Logger
	metrics DispatchMetrics
	tracer  trace.Tracer
}

// NewPageProcessor creates a page processor with the given page size.
func NewPageProcessor(
	requestRepo requests.Repository,
	dispatcher jobs.Dispatcher,
	notifier requests.SessionNotifier,
	pageSize int,
	log *logger.Logger,
	metrics DispatchMetrics,
	tracer trace.Tracer,
) *PageProcessor {
	return &PageProcessor{
		requestRepo: requestRepo,
		dispatcher:  dispatcher,
		notifier:    notifier,
		pageSize:    pageSize,
		logger:      log.With("component", "page_processor"),
		metrics:     metrics,
		tracer:      tracer,
	}
}

// Process repeatedly claims one page of requests matching the filter and
// hands it off, until an empty page terminates the loop. Returns the number
// of requests moved to the target status and the number of job batches
// submitted. A page failure aborts the loop; pages already handed off stay
// committed.
func (p *PageProcessor) Process(
	ctx context.Context,
	filter requests.SearchFilter,
	target requests.Status,
	kind jobs.Kind,
) (int64, int, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, 0, err
	}

	ctx, span := p.tracer.Start(ctx, "page_processor.process",
		trace.WithAttributes(
			attribute.String("tenant", t.String()),
			attribute.String("target_status", target.String()),
			attribute.String("job_kind", kind.String()),
			attribute.Int("page_size", p.pageSize),
		))
	defer span.End()

	var (
		totalMoved   int64
		totalBatches int
	)

	for {
		// Claimed rows vacate the filter, so every page starts from the top.
		page, _, err := p.requestRepo.Search(ctx, filter, requests.Cursor{}, p.pageSize)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "page query failed")
			return totalMoved, totalBatches, fmt.Errorf("searching page: %w", err)
		}
		if len(page) == 0 {
			break
		}

		moved, err := p.processPage(ctx, t, page, target, kind)
		totalMoved += moved
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "page processing failed")
			return totalMoved, totalBatches, err
		}
		totalBatches++

		p.metrics.IncPagesProcessed(ctx)
		p.metrics.ObservePageSize(ctx, len(page))
	}

	span.SetAttributes(
		attribute.Int64("requests_moved", totalMoved),
		attribute.Int("batches_submitted", totalBatches),
	)
	p.metrics.AddRequestsMoved(ctx, totalMoved)
	return totalMoved, totalBatches, nil
}

// processPage hands off a single page: submit the batch first, then mark the
// rows. Submit-then-mark means a failure between the two steps re-delivers
// the batch on the next scan rather than stranding requests in the target
// status with no job.
func (p *PageProcessor) processPage(
	ctx context.Context,
	t tenant.Tenant,
	page []*requests.Request,
	target requests.Status,
	kind jobs.Kind,
) (int64, error) {
	ids := make([]int64, len(page))
	for i, req := range page {
		ids[i] = req.ID()
	}

	batch := jobs.Batch{
		Tenant:     t,
		Kind:       kind,
		RequestIDs: ids,
		Priority:   jobs.PriorityRequestScan,
		HandlerID:  jobs.HandlerForKind(kind),
	}

	handle, err := p.dispatcher.Submit(ctx, batch)
	if err != nil {
		p.metrics.IncBatchSubmitErrors(ctx)
		return 0, fmt.Errorf("submitting job batch: %w", err)
	}
	p.metrics.IncBatchesSubmitted(ctx)

	moved, err := p.requestRepo.UpdateStatus(ctx, ids, target)
	if err != nil {
		return 0, fmt.Errorf("updating status for job %s: %w", handle.JobID, err)
	}

	p.logger.Debug(ctx, "page handed off",
		"job_id", handle.JobID,
		"kind", kind.String(),
		"request_count", len(ids),
		"moved", moved,
	)

	p.notifySessions(ctx, t, page, target)
	return moved, nil
}

// notifySessions emits one session accounting update per (source, session)
// pair seen in the page. Best-effort: failures are logged by the notifier and
// never fail the page.
func (p *PageProcessor) notifySessions(ctx context.Context, t tenant.Tenant, page []*requests.Request, target requests.Status) {
	type sessionKey struct{ source, session string }

	counts := make(map[sessionKey]int)
	for _, req := range page {
		if req.Source() == "" || req.Session() == "" {
			continue
		}
		counts[sessionKey{req.Source(), req.Session()}]++
	}

	now := time.Now().UTC()
	for key, count := range counts {
		_ = p.notifier.Notify(ctx, requests.SessionUpdate{
			Tenant:    t,
			Source:    key.source,
			Session:   key.session,
			Status:    target,
			Count:     count,
			UpdatedAt: now,
		})
	}
}
