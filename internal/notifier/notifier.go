package notifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campwise/energy-entitlement-worker/internal/accounting"
	"github.com/campwise/energy-entitlement-worker/internal/config"
	"github.com/campwise/energy-entitlement-worker/internal/db"
	"github.com/campwise/energy-entitlement-worker/internal/logging"
	"github.com/campwise/energy-entitlement-worker/internal/metrics"
)

const jobName = "warning"

// Customer classes with configured thresholds.
const (
	ClassShortStay = "short_stay"
	ClassSeasonal  = "seasonal"
)

// Ledger is the slice of the entitlement ledger the notifier needs.
type Ledger interface {
	ListActiveEntitlements(ctx context.Context, bookingID int64) ([]db.Entitlement, error)
	SetWarningSent(ctx context.Context, bookingID int64) error
}

// TelemetryReader provides the latest sample per meter.
type TelemetryReader interface {
	GetLatestSample(ctx context.Context, meterID string) (*db.MeterSample, error)
}

// BookingSource lists bookings and resolves guest contacts.
type BookingSource interface {
	ListCheckedInWithMeter(ctx context.Context) ([]db.BookingMeter, error)
	ResolveContact(ctx context.Context, bookingID int64) (name string, address string, err error)
}

// Sender requests delivery of one notification.
type Sender interface {
	Send(ctx context.Context, address, templateKey string, params map[string]string) error
}

// Auditor records per-attempt diagnostics.
type Auditor interface {
	Record(ctx context.Context, bookingID int64, outcome, reason string, remainingUnits float64) error
}

// Service warns a guest once before their power is cut. The warning_sent
// latch makes the warning one-shot per booking across sweeps; it is only
// set after the transport accepted the message, so transport failures are
// retried on the next sweep automatically.
type Service struct {
	ledger      Ledger
	telemetry   TelemetryReader
	bookings    BookingSource
	sender      Sender
	auditor     Auditor
	metrics     *metrics.Metrics
	logger      *zap.Logger
	templateKey string
	thresholds  config.WarningConfig
}

// NewService creates a new threshold notifier
func NewService(
	ledger Ledger,
	telemetry TelemetryReader,
	bookings BookingSource,
	sender Sender,
	auditor Auditor,
	m *metrics.Metrics,
	logger *zap.Logger,
	templateKey string,
	thresholds config.WarningConfig,
) *Service {
	return &Service{
		ledger:      ledger,
		telemetry:   telemetry,
		bookings:    bookings,
		sender:      sender,
		auditor:     auditor,
		metrics:     m,
		logger:      logger,
		templateKey: templateKey,
		thresholds:  thresholds,
	}
}

// Sweep runs one warning pass over all enforceable bookings. Per-booking
// failures are isolated; only an unreachable booking list aborts the sweep.
func (s *Service) Sweep(ctx context.Context) error {
	started := time.Now()

	bookings, err := s.bookings.ListCheckedInWithMeter(ctx)
	if err != nil {
		return fmt.Errorf("failed to list bookings for warnings: %w", err)
	}

	checked := 0
	sent := 0
	for _, b := range bookings {
		if ctx.Err() != nil {
			s.logger.Warn("warning sweep budget exhausted, deferring remaining bookings",
				zap.Int("remaining", len(bookings)-checked),
			)
			break
		}

		checked++
		s.metrics.BookingsChecked.WithLabelValues(jobName).Inc()

		didSend, err := s.evaluateBooking(ctx, b)
		if err != nil {
			s.metrics.SweepErrors.WithLabelValues(jobName).Inc()
			logging.WithBooking(s.logger, b.BookingID).Error("warning evaluation failed", zap.Error(err))
			continue
		}
		if didSend {
			sent++
		}
	}

	s.metrics.SweepsTotal.WithLabelValues(jobName).Inc()
	s.metrics.SweepDuration.WithLabelValues(jobName).Observe(time.Since(started).Seconds())

	s.logger.Info("warning sweep complete",
		zap.Int("bookings_checked", checked),
		zap.Int("warnings_sent", sent),
	)

	return nil
}

func (s *Service) evaluateBooking(ctx context.Context, b db.BookingMeter) (bool, error) {
	log := logging.WithBooking(s.logger, b.BookingID)

	entitlements, err := s.ledger.ListActiveEntitlements(ctx, b.BookingID)
	if err != nil {
		return false, err
	}
	if len(entitlements) == 0 {
		s.metrics.BookingsSkipped.WithLabelValues(jobName, "no_entitlements").Inc()
		return false, nil
	}

	sample, err := s.telemetry.GetLatestSample(ctx, b.MeterID)
	if err != nil {
		return false, err
	}
	if sample == nil {
		s.metrics.BookingsSkipped.WithLabelValues(jobName, "no_telemetry").Inc()
		return false, nil
	}

	remaining := accounting.Remaining(entitlements, sample.CumulativeEnergy)
	if remaining >= s.thresholdFor(b.CustomerClass) {
		s.metrics.Warnings.WithLabelValues("skipped_above_threshold").Inc()
		return false, nil
	}

	if warningSent(entitlements) {
		s.metrics.Warnings.WithLabelValues("skipped_already_warned").Inc()
		return false, nil
	}

	name, address, err := s.bookings.ResolveContact(ctx, b.BookingID)
	if err != nil {
		return false, err
	}
	if address == "" {
		// Terminal for this attempt: no amount of retrying fixes a missing
		// address, only a data change does.
		s.metrics.Warnings.WithLabelValues(db.NotificationFailed).Inc()
		s.recordOutcome(ctx, b.BookingID, db.NotificationFailed, "no contact address on file", remaining)
		log.Warn("cannot warn guest, no contact address on file")
		return false, nil
	}

	params := map[string]string{
		"customer_name":   name,
		"remaining_units": fmt.Sprintf("%.1f", remaining),
	}
	if err := s.sender.Send(ctx, address, s.templateKey, params); err != nil {
		// Latch stays unset so the next sweep retries.
		s.metrics.Warnings.WithLabelValues(db.NotificationFailed).Inc()
		s.recordOutcome(ctx, b.BookingID, db.NotificationFailed, fmt.Sprintf("transport error: %v", err), remaining)
		log.Error("failed to send low-balance warning", zap.Error(err))
		return false, nil
	}

	if err := s.ledger.SetWarningSent(ctx, b.BookingID); err != nil {
		// The warning went out; a failed latch write means at worst one
		// duplicate on the next sweep.
		log.Error("failed to latch warning_sent", zap.Error(err))
	}

	s.metrics.Warnings.WithLabelValues(db.NotificationSent).Inc()
	s.recordOutcome(ctx, b.BookingID, db.NotificationSent, "", remaining)
	log.Info("low-balance warning sent", zap.Float64("remaining_units", remaining))

	return true, nil
}

// thresholdFor maps a customer class to its warning threshold. An unknown
// class gets the larger configured threshold so the guest is warned early
// rather than late.
func (s *Service) thresholdFor(class string) float64 {
	switch class {
	case ClassShortStay:
		return s.thresholds.ShortStayThresholdUnit
	case ClassSeasonal:
		return s.thresholds.SeasonalThresholdUnit
	default:
		if s.thresholds.SeasonalThresholdUnit > s.thresholds.ShortStayThresholdUnit {
			return s.thresholds.SeasonalThresholdUnit
		}
		return s.thresholds.ShortStayThresholdUnit
	}
}

// warningSent reports whether any entitlement in the booking's active set
// already carries the latch.
func warningSent(entitlements []db.Entitlement) bool {
	for _, e := range entitlements {
		if e.WarningSent {
			return true
		}
	}
	return false
}

func (s *Service) recordOutcome(ctx context.Context, bookingID int64, outcome, reason string, remaining float64) {
	if err := s.auditor.Record(ctx, bookingID, outcome, reason, remaining); err != nil {
		logging.WithBooking(s.logger, bookingID).Error("failed to record notification outcome", zap.Error(err))
	}
}
