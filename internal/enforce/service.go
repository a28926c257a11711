package enforce

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campwise/energy-entitlement-worker/internal/accounting"
	"github.com/campwise/energy-entitlement-worker/internal/db"
	"github.com/campwise/energy-entitlement-worker/internal/dispatch"
	"github.com/campwise/energy-entitlement-worker/internal/logging"
	"github.com/campwise/energy-entitlement-worker/internal/metrics"
)

const jobName = "enforce"

// Cutoff reasons, also used as metric labels.
const (
	reasonDepleted = "depleted"
	reasonExpired  = "expired"
)

// Ledger is the slice of the entitlement ledger enforcement needs.
type Ledger interface {
	ListActiveEntitlements(ctx context.Context, bookingID int64) ([]db.Entitlement, error)
	UpdateEntitlementStatus(ctx context.Context, entitlementID uuid.UUID, newStatus string) error
}

// TelemetryReader provides the latest sample per meter.
type TelemetryReader interface {
	GetLatestSample(ctx context.Context, meterID string) (*db.MeterSample, error)
}

// BookingSource lists the bookings subject to enforcement.
type BookingSource interface {
	ListCheckedInWithMeter(ctx context.Context) ([]db.BookingMeter, error)
}

// CommandQueue enqueues device actuation intents.
type CommandQueue interface {
	Enqueue(ctx context.Context, meterID, command, value string) error
}

// Service is the enforcement sweep: for every checked-in booking with a
// meter it decides whether entitlement is exhausted and, if so, requests a
// power cutoff and closes out the base entitlement.
type Service struct {
	ledger    Ledger
	telemetry TelemetryReader
	bookings  BookingSource
	commands  CommandQueue
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new enforcement service
func NewService(
	ledger Ledger,
	telemetry TelemetryReader,
	bookings BookingSource,
	commands CommandQueue,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		ledger:    ledger,
		telemetry: telemetry,
		bookings:  bookings,
		commands:  commands,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Sweep runs one enforcement pass. Only infrastructure failures (the
// booking list itself is unreachable) abort the sweep; per-booking failures
// are logged and isolated, and re-running is safe because every write is a
// monotonic transition or a harmless duplicate enqueue.
func (s *Service) Sweep(ctx context.Context) error {
	started := s.now()

	bookings, err := s.bookings.ListCheckedInWithMeter(ctx)
	if err != nil {
		return fmt.Errorf("failed to list bookings for enforcement: %w", err)
	}

	checked := 0
	shutOff := 0
	for _, b := range bookings {
		if ctx.Err() != nil {
			s.logger.Warn("sweep budget exhausted, deferring remaining bookings",
				zap.Int("remaining", len(bookings)-checked),
			)
			break
		}

		checked++
		s.metrics.BookingsChecked.WithLabelValues(jobName).Inc()

		cut, err := s.evaluateBooking(ctx, b)
		if err != nil {
			s.metrics.SweepErrors.WithLabelValues(jobName).Inc()
			logging.WithBooking(s.logger, b.BookingID).Error("enforcement failed for booking", zap.Error(err))
			continue
		}
		if cut {
			shutOff++
		}
	}

	s.metrics.SweepsTotal.WithLabelValues(jobName).Inc()
	s.metrics.SweepDuration.WithLabelValues(jobName).Observe(s.now().Sub(started).Seconds())

	s.logger.Info("enforcement sweep complete",
		zap.Int("bookings_checked", checked),
		zap.Int("meters_shut_off", shutOff),
	)

	return nil
}

// evaluateBooking applies the cutoff rules to one booking. Quantity
// exhaustion is checked before time exhaustion, so a booking triggers at
// most one reason per sweep.
func (s *Service) evaluateBooking(ctx context.Context, b db.BookingMeter) (bool, error) {
	log := logging.WithBooking(s.logger, b.BookingID)

	sample, err := s.telemetry.GetLatestSample(ctx, b.MeterID)
	if err != nil {
		return false, err
	}
	if sample == nil {
		// Consumption is undefined without telemetry; assume nothing.
		s.metrics.BookingsSkipped.WithLabelValues(jobName, "no_telemetry").Inc()
		log.Debug("no telemetry for meter, skipping", zap.String("meter_id", b.MeterID))
		return false, nil
	}

	entitlements, err := s.ledger.ListActiveEntitlements(ctx, b.BookingID)
	if err != nil {
		return false, err
	}
	if len(entitlements) == 0 {
		s.metrics.BookingsSkipped.WithLabelValues(jobName, "no_entitlements").Inc()
		return false, nil
	}

	base := accounting.ActiveBase(entitlements)
	granted := accounting.TotalGranted(entitlements)
	consumed := accounting.TotalConsumed(entitlements, sample.CumulativeEnergy)

	if consumed >= granted {
		log.Info("entitlement exhausted, cutting power",
			zap.String("meter_id", b.MeterID),
			zap.Float64("granted", granted),
			zap.Float64("consumed", consumed),
		)
		return true, s.cutOff(ctx, b, base, db.EntitlementDepleted, reasonDepleted)
	}

	if base != nil && base.DurationHours != nil {
		duration := time.Duration(*base.DurationHours) * time.Hour
		if s.now().Sub(base.CreatedAt) >= duration {
			log.Info("entitlement period over, cutting power",
				zap.String("meter_id", b.MeterID),
				zap.Int("duration_hours", *base.DurationHours),
			)
			return true, s.cutOff(ctx, b, base, db.EntitlementExpired, reasonExpired)
		}
	}

	return false, nil
}

// cutOff enqueues the OFF command and closes out the base entitlement.
// Addons are left active so their grants stay visible in accounting; a
// booking with a non-active base entitlement reads as fully inactive
// upstream. The command goes first but ordering is not safety-critical: a
// failed status flip is retried next sweep because the exhaustion condition
// persists, and the device treats repeated OFF as a no-op.
func (s *Service) cutOff(ctx context.Context, b db.BookingMeter, base *db.Entitlement, status, reason string) error {
	if err := s.commands.Enqueue(ctx, b.MeterID, dispatch.CommandSetState, dispatch.ValueOff); err != nil {
		return fmt.Errorf("failed to enqueue cutoff command: %w", err)
	}
	s.metrics.MetersShutOff.WithLabelValues(reason).Inc()

	if base == nil {
		return nil
	}
	if err := s.ledger.UpdateEntitlementStatus(ctx, base.ID, status); err != nil {
		return fmt.Errorf("failed to mark base entitlement %s: %w", status, err)
	}
	return nil
}
