package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/orbview/dispatch/internal/infra/eventbus/kafka"
)

// DispatchMetrics defines metrics operations needed by the scan engine.
type DispatchMetrics interface {
	// EventBus metrics.
	kafka.EventBusMetrics

	// Scan lifecycle metrics.
	IncScansStarted(ctx context.Context)
	IncScansSkipped(ctx context.Context) // lock busy, pre-check negative
	IncScansFailed(ctx context.Context)
	ObserveScanDuration(ctx context.Context, duration time.Duration)

	// Page metrics.
	IncPagesProcessed(ctx context.Context)
	ObservePageSize(ctx context.Context, size int)

	// Hand-off metrics.
	AddRequestsMoved(ctx context.Context, count int64)
	IncBatchesSubmitted(ctx context.Context)
	IncBatchSubmitErrors(ctx context.Context)
}

var _ DispatchMetrics = (*dispatchMetrics)(nil)

type dispatchMetrics struct {
	messagesPublished metric.Int64Counter
	publishErrors     metric.Int64Counter

	scansStarted metric.Int64Counter
	scansSkipped metric.Int64Counter
	scansFailed  metric.Int64Counter
	scanDuration metric.Float64Histogram

	pagesProcessed metric.Int64Counter
	pageSize       metric.Int64Histogram

	requestsMoved    metric.Int64Counter
	batchesSubmitted metric.Int64Counter
	batchSubmitErrs  metric.Int64Counter
}

const namespace = "dispatcher"

// NewDispatchMetrics creates a new dispatch metrics instance.
func NewDispatchMetrics(mp metric.MeterProvider) (*dispatchMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(dispatchMetrics)
	var err error

	if m.messagesPublished, err = meter.Int64Counter(
		"messages_published_total",
		metric.WithDescription("Total number of messages published"),
	); err != nil {
		return nil, err
	}

	if m.publishErrors, err = meter.Int64Counter(
		"publish_errors_total",
		metric.WithDescription("Total number of publish errors"),
	); err != nil {
		return nil, err
	}

	if m.scansStarted, err = meter.Int64Counter(
		"scans_started_total",
		metric.WithDescription("Total number of scans started"),
	); err != nil {
		return nil, err
	}

	if m.scansSkipped, err = meter.Int64Counter(
		"scans_skipped_total",
		metric.WithDescription("Total number of scans skipped (lock busy or empty backlog)"),
	); err != nil {
		return nil, err
	}

	if m.scansFailed, err = meter.Int64Counter(
		"scans_failed_total",
		metric.WithDescription("Total number of scans that failed"),
	); err != nil {
		return nil, err
	}

	if m.scanDuration, err = meter.Float64Histogram(
		"scan_duration_seconds",
		metric.WithDescription("Time taken to run one scan"),
	); err != nil {
		return nil, err
	}

	if m.pagesProcessed, err = meter.Int64Counter(
		"pages_processed_total",
		metric.WithDescription("Total number of backlog pages processed"),
	); err != nil {
		return nil, err
	}

	if m.pageSize, err = meter.Int64Histogram(
		"page_size",
		metric.WithDescription("Number of requests claimed per page"),
	); err != nil {
		return nil, err
	}

	if m.requestsMoved, err = meter.Int64Counter(
		"requests_moved_total",
		metric.WithDescription("Total number of requests moved to their scan target status"),
	); err != nil {
		return nil, err
	}

	if m.batchesSubmitted, err = meter.Int64Counter(
		"batches_submitted_total",
		metric.WithDescription("Total number of job batches submitted"),
	); err != nil {
		return nil, err
	}

	if m.batchSubmitErrs, err = meter.Int64Counter(
		"batch_submit_errors_total",
		metric.WithDescription("Total number of job batch submission errors"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *dispatchMetrics) IncMessagePublished(ctx context.Context, topic string) {
	m.messagesPublished.Add(ctx, 1)
}

func (m *dispatchMetrics) IncPublishError(ctx context.Context, topic string) {
	m.publishErrors.Add(ctx, 1)
}

func (m *dispatchMetrics) IncScansStarted(ctx context.Context) { m.scansStarted.Add(ctx, 1) }
func (m *dispatchMetrics) IncScansSkipped(ctx context.Context) { m.scansSkipped.Add(ctx, 1) }
func (m *dispatchMetrics) IncScansFailed(ctx context.Context)  { m.scansFailed.Add(ctx, 1) }

func (m *dispatchMetrics) ObserveScanDuration(ctx context.Context, duration time.Duration) {
	m.scanDuration.Record(ctx, duration.Seconds())
}

func (m *dispatchMetrics) IncPagesProcessed(ctx context.Context) { m.pagesProcessed.Add(ctx, 1) }

func (m *dispatchMetrics) ObservePageSize(ctx context.Context, size int) {
	m.pageSize.Record(ctx, int64(size))
}

func (m *dispatchMetrics) AddRequestsMoved(ctx context.Context, count int64) {
	m.requestsMoved.Add(ctx, count)
}

func (m *dispatchMetrics) IncBatchesSubmitted(ctx context.Context) { m.batchesSubmitted.Add(ctx, 1) }
func (m *dispatchMetrics) IncBatchSubmitErrors(ctx context.Context) {
	m.batchSubmitErrs.Add(ctx, 1)
}
