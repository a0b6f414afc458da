package main

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/orbview/dispatch/internal/app/dispatch"
	appjobs "github.com/orbview/dispatch/internal/app/jobs"
	"github.com/orbview/dispatch/internal/app/workers"
	"github.com/orbview/dispatch/internal/config"
	"github.com/orbview/dispatch/internal/config/fileloader"
	"github.com/orbview/dispatch/internal/infra/eventbus/kafka"
	lockStore "github.com/orbview/dispatch/internal/infra/locking/postgres"
	"github.com/orbview/dispatch/internal/infra/notify"
	jobStore "github.com/orbview/dispatch/internal/infra/storage/jobs/postgres"
	requestStore "github.com/orbview/dispatch/internal/infra/storage/requests/postgres"
	tenantStore "github.com/orbview/dispatch/internal/infra/storage/tenants/postgres"
	"github.com/orbview/dispatch/pkg/common"
	"github.com/orbview/dispatch/pkg/common/logger"
	"github.com/orbview/dispatch/pkg/common/otel"
)

const serviceType = "dispatcher"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	var log *logger.Logger

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}

			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("DISPATCHER-%s", hostname)
	metadata := map[string]string{
		"service":   svcName,
		"hostname":  hostname,
		"pod":       os.Getenv("POD_NAME"),
		"namespace": os.Getenv("POD_NAMESPACE"),
		"app":       serviceType,
	}

	log = logger.NewWithMetadata(os.Stdout, logger.LevelDebug, svcName, traceIDFn, logEvents, metadata)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prob, err := strconv.ParseFloat(os.Getenv("OTEL_SAMPLING_RATIO"), 64)
	if err != nil {
		log.Error(ctx, "failed to parse OTEL_SAMPLING_RATIO", "error", err)
		os.Exit(1)
	}
	tp, telemetryTeardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      os.Getenv("OTEL_SERVICE_NAME"),
		ExporterEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ExcludedRoutes: map[string]struct{}{
			"/v1/health":    {},
			"/v1/readiness": {},
		},
		Probability: prob,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"k8s.pod.name":     os.Getenv("POD_NAME"),
			"k8s.namespace":    os.Getenv("POD_NAMESPACE"),
			"k8s.container.id": hostname,
		},
		InsecureExporter: true,
	})
	if err != nil {
		log.Error(ctx, "failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer telemetryTeardown(ctx)

	tracer := tp.Tracer(os.Getenv("OTEL_SERVICE_NAME"))

	ready := &atomic.Bool{}
	healthServer := common.NewHealthServer(ready)
	defer func() {
		if err := healthServer.Server().Shutdown(ctx); err != nil {
			log.Error(ctx, "Error shutting down health server", "error", err)
		}
	}()

	settings, err := config.LoadSettings(os.Getenv("DISPATCH_CONFIG_FILE"))
	if err != nil {
		log.Error(ctx, "failed to load settings", "error", err)
		os.Exit(1)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := os.Getenv("POSTGRES_USER")
		password := os.Getenv("POSTGRES_PASSWORD")
		host := os.Getenv("POSTGRES_HOST")
		dbname := os.Getenv("POSTGRES_DB")

		if user == "" {
			user = "postgres"
		}
		if password == "" {
			password = "postgres"
		}
		if host == "" {
			host = "postgres"
		}
		if dbname == "" {
			dbname = "dispatch"
		}

		dsn = fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable",
			user, password, host, dbname)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		log.Error(ctx, "failed to parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MinConns = 5
	poolCfg.MaxConns = 20
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error(ctx, "failed to open db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := runMigrations(ctx, pool); err != nil {
		log.Error(ctx, "failed to run migrations", "error", err)
		os.Exit(1)
	}

	log.Info(ctx, "Migrations applied successfully. Starting application...")

	mp := otel.GetMeterProvider()
	metricCollector, err := dispatch.NewDispatchMetrics(mp)
	if err != nil {
		log.Error(ctx, "failed to create metrics collector", "error", err)
		os.Exit(1)
	}

	kafkaCfg := &kafka.Config{
		Brokers:       strings.Split(os.Getenv("KAFKA_BROKERS"), ","),
		JobBatchTopic: os.Getenv("KAFKA_JOB_BATCH_TOPIC"),
		SessionTopic:  os.Getenv("KAFKA_SESSION_TOPIC"),
		ClientID:      svcName,
		ServiceType:   serviceType,
	}

	eventBus, err := kafka.ConnectWithRetry(kafkaCfg, log, metricCollector, tracer)
	if err != nil {
		log.Error(ctx, "failed to connect event bus", "error", err)
		os.Exit(1)
	}

	eventPublisher := kafka.NewDomainEventPublisher(eventBus)

	requestRepo := requestStore.NewRequestStore(pool, tracer)
	tenantRepo := tenantStore.NewTenantStore(pool, tracer)
	jobRepo := jobStore.NewJobStore(pool, tracer)
	lockSvc := lockStore.NewLockService(pool, log, tracer)

	notifier := notify.NewSessionNotifier(eventPublisher, log, tracer)
	jobDispatcher := appjobs.NewDispatcher(jobRepo, eventPublisher, svcName, log, tracer)

	registry := workers.NewRegistry(
		fileloader.NewFileLoader(settings.WorkerConfigPath),
		settings.WorkerTTL,
		log,
		tracer,
	)
	if err := registry.Refresh(ctx); err != nil {
		log.Error(ctx, "failed to load worker configuration", "error", err)
		os.Exit(1)
	}

	processor := dispatch.NewPageProcessor(
		requestRepo, jobDispatcher, notifier, settings.PageSize, log, metricCollector, tracer)

	orchestrator := dispatch.NewScanOrchestrator(
		registry, requestRepo, processor, lockSvc, settings.LockLease, log, metricCollector, tracer)

	scheduler := dispatch.NewScheduler(orchestrator, tenantRepo, dispatch.SchedulerConfig{
		Schedule:          settings.ScanSchedule,
		TenantConcurrency: settings.TenantConcurrency,
		TriggersPerSecond: settings.ScanTriggersPerSecond,
		TriggerBurst:      settings.ScanTriggerBurst,
	}, log, tracer)

	// A worker coming back alive triggers an immediate scan pass instead of
	// waiting for the next cron tick.
	registry.OnAvailable(func(workerType string) { scheduler.TriggerNow() })

	// Reload the worker configuration periodically.
	go func() {
		ticker := time.NewTicker(settings.WorkerTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := registry.Refresh(ctx); err != nil {
					log.Error(ctx, "failed to refresh worker configuration", "error", err)
				}
			}
		}
	}()

	go func() {
		metricsAddr := os.Getenv("METRICS_ADDR")
		if metricsAddr == "" {
			metricsAddr = ":9090"
		}
		if err := common.RunMetricsServer(metricsAddr); err != nil {
			log.Error(ctx, "metrics server error", "error", err)
		}
	}()

	log.Info(ctx, "Dispatcher initialized")
	ready.Store(true)

	errCh := make(chan error, 1)
	go func() {
		if err := scheduler.Run(ctx); err != nil && err != context.Canceled {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		log.Info(ctx, "Received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := eventBus.Close(); err != nil {
			log.Error(shutdownCtx, "Failed to close event bus", "error", err)
		}

	case err := <-errCh:
		log.Error(ctx, "Scheduler error", "error", err)
		os.Exit(1)
	}
}

// runMigrations uses golang-migrate to apply all up migrations from "db/migrations".
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("could not acquire connection: %w", err)
	}
	defer conn.Release()

	db := stdlib.OpenDBFromPool(pool)

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create pgx driver: %w", err)
	}

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "file:///app/db/migrations"
	}
	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}
