package main

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/campwise/energy-entitlement-worker/internal/audit"
	"github.com/campwise/energy-entitlement-worker/internal/booking"
	"github.com/campwise/energy-entitlement-worker/internal/config"
	"github.com/campwise/energy-entitlement-worker/internal/db"
	"github.com/campwise/energy-entitlement-worker/internal/dispatch"
	"github.com/campwise/energy-entitlement-worker/internal/enforce"
	"github.com/campwise/energy-entitlement-worker/internal/ledger"
	"github.com/campwise/energy-entitlement-worker/internal/metrics"
	"github.com/campwise/energy-entitlement-worker/internal/mq"
	"github.com/campwise/energy-entitlement-worker/internal/notifier"
	"github.com/campwise/energy-entitlement-worker/internal/notify"
	"github.com/campwise/energy-entitlement-worker/internal/sched"
	"github.com/campwise/energy-entitlement-worker/internal/telemetry"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

// ProvideDBPool creates the shared PostgreSQL pool
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideMQConnection creates the shared RabbitMQ connection
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvideMetrics creates the sweep metric set
func ProvideMetrics() *metrics.Metrics {
	return metrics.New()
}

// ProvideLedger creates the entitlement ledger repository
func ProvideLedger(pool *db.Pool) *ledger.Repository {
	return ledger.NewRepository(pool)
}

// ProvideTelemetryStore creates the telemetry reader
func ProvideTelemetryStore(pool *db.Pool) *telemetry.Store {
	return telemetry.NewStore(pool)
}

// ProvideBookingSource creates the booking reader
func ProvideBookingSource(pool *db.Pool) *booking.Source {
	return booking.NewSource(pool)
}

// ProvideCommandQueue creates the command dispatch queue
func ProvideCommandQueue(pool *db.Pool) *dispatch.Queue {
	return dispatch.NewQueue(pool)
}

// ProvideAuditRecorder creates the notification audit recorder
func ProvideAuditRecorder(pool *db.Pool) *audit.Recorder {
	return audit.NewRecorder(pool)
}

// ProvideNotifyPublisher creates the notification transport
func ProvideNotifyPublisher(conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*notify.Publisher, error) {
	return notify.NewPublisher(conn, cfg.RabbitMQ.NotifyExchange, cfg.RabbitMQ.NotifyRoutingKey, logger)
}

// ProvideEnforcementService creates the enforcement sweep
func ProvideEnforcementService(
	repo *ledger.Repository,
	store *telemetry.Store,
	bookings *booking.Source,
	queue *dispatch.Queue,
	m *metrics.Metrics,
	logger *zap.Logger,
) *enforce.Service {
	return enforce.NewService(repo, store, bookings, queue, m, logger)
}

// ProvideNotifierService creates the threshold notifier sweep
func ProvideNotifierService(
	repo *ledger.Repository,
	store *telemetry.Store,
	bookings *booking.Source,
	publisher *notify.Publisher,
	recorder *audit.Recorder,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *notifier.Service {
	return notifier.NewService(
		repo,
		store,
		bookings,
		publisher,
		recorder,
		m,
		logger,
		cfg.RabbitMQ.WarningTemplateKey,
		cfg.Warning,
	)
}

func startMetricsServer(lc fx.Lifecycle, logger *zap.Logger, m *metrics.Metrics, cfg *config.Config) {
	metrics.StartServer(lc, logger, m, cfg.ServicePort)
}

// startSweeps wires the two periodic jobs into the fx lifecycle. Each runs
// on its own interval and budget; they share state only through the ledger.
func startSweeps(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *zap.Logger,
	enforcement *enforce.Service,
	warnings *notifier.Service,
) {
	ctx, cancel := context.WithCancel(context.Background())

	enforceSched := sched.New(
		"enforce",
		time.Duration(cfg.Enforce.SweepIntervalSeconds)*time.Second,
		time.Duration(cfg.Enforce.SweepTimeoutSeconds)*time.Second,
		enforcement.Sweep,
		logger,
	)
	warningSched := sched.New(
		"warning",
		time.Duration(cfg.Warning.SweepIntervalSeconds)*time.Second,
		time.Duration(cfg.Warning.SweepTimeoutSeconds)*time.Second,
		warnings.Sweep,
		logger,
	)

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			go enforceSched.Run(ctx)
			go warningSched.Run(ctx)
			logger.Info("sweep schedulers started",
				zap.Int("enforce_interval_seconds", cfg.Enforce.SweepIntervalSeconds),
				zap.Int("warning_interval_seconds", cfg.Warning.SweepIntervalSeconds),
			)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			logger.Info("sweep schedulers stopped")
			return nil
		},
	})
}
