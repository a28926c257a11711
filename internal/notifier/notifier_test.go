package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campwise/energy-entitlement-worker/internal/config"
	"github.com/campwise/energy-entitlement-worker/internal/db"
	"github.com/campwise/energy-entitlement-worker/internal/metrics"
)

const testTemplateKey = "energy_low_balance"

var testThresholds = config.WarningConfig{
	ShortStayThresholdUnit: 2.0,
	SeasonalThresholdUnit:  5.0,
}

type fakeLedger struct {
	entitlements map[int64][]db.Entitlement
	latchErr     error
}

func (f *fakeLedger) ListActiveEntitlements(ctx context.Context, bookingID int64) ([]db.Entitlement, error) {
	var active []db.Entitlement
	for _, e := range f.entitlements[bookingID] {
		if e.Status == db.EntitlementActive {
			active = append(active, e)
		}
	}
	return active, nil
}

func (f *fakeLedger) SetWarningSent(ctx context.Context, bookingID int64) error {
	if f.latchErr != nil {
		return f.latchErr
	}
	list := f.entitlements[bookingID]
	for i := range list {
		if list[i].Status == db.EntitlementActive {
			list[i].WarningSent = true
		}
	}
	f.entitlements[bookingID] = list
	return nil
}

type fakeTelemetry struct {
	samples map[string]*db.MeterSample
}

func (f *fakeTelemetry) GetLatestSample(ctx context.Context, meterID string) (*db.MeterSample, error) {
	return f.samples[meterID], nil
}

type contact struct {
	name    string
	address string
}

type fakeBookings struct {
	bookings []db.BookingMeter
	contacts map[int64]contact
}

func (f *fakeBookings) ListCheckedInWithMeter(ctx context.Context) ([]db.BookingMeter, error) {
	return f.bookings, nil
}

func (f *fakeBookings) ResolveContact(ctx context.Context, bookingID int64) (string, string, error) {
	c := f.contacts[bookingID]
	return c.name, c.address, nil
}

type sentMessage struct {
	address     string
	templateKey string
	params      map[string]string
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (f *fakeSender) Send(ctx context.Context, address, templateKey string, params map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{address, templateKey, params})
	return nil
}

type auditEntry struct {
	bookingID int64
	outcome   string
	reason    string
}

type fakeAuditor struct {
	entries []auditEntry
}

func (f *fakeAuditor) Record(ctx context.Context, bookingID int64, outcome, reason string, remainingUnits float64) error {
	f.entries = append(f.entries, auditEntry{bookingID, outcome, reason})
	return nil
}

func newTestService(ledger *fakeLedger, telem *fakeTelemetry, bookings *fakeBookings, sender *fakeSender, auditor *fakeAuditor) *Service {
	return NewService(ledger, telem, bookings, sender, auditor, metrics.New(), zap.NewNop(), testTemplateKey, testThresholds)
}

func activeBase(bookingID int64, granted, baseline float64) db.Entitlement {
	return db.Entitlement{
		ID:             uuid.New(),
		BookingID:      bookingID,
		Kind:           db.KindBase,
		UnitsGranted:   granted,
		BaselineEnergy: baseline,
		Status:         db.EntitlementActive,
		CreatedAt:      time.Now(),
	}
}

func TestSweep_SendsWarningBelowThreshold(t *testing.T) {
	// 1.5 units remaining against a short-stay threshold of 2.
	ledger := &fakeLedger{entitlements: map[int64][]db.Entitlement{
		1: {activeBase(1, 5, 100.0)},
	}}
	telem := &fakeTelemetry{samples: map[string]*db.MeterSample{"M-01": {MeterID: "M-01", CumulativeEnergy: 103.5}}}
	bookings := &fakeBookings{
		bookings: []db.BookingMeter{{BookingID: 1, MeterID: "M-01", CustomerClass: ClassShortStay}},
		contacts: map[int64]contact{1: {name: "A. Vries", address: "a.vries@example.com"}},
	}
	sender := &fakeSender{}
	auditor := &fakeAuditor{}

	svc := newTestService(ledger, telem, bookings, sender, auditor)
	if err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("Expected one warning sent, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.address != "a.vries@example.com" || msg.templateKey != testTemplateKey {
		t.Errorf("Unexpected message: %+v", msg)
	}
	if msg.params["customer_name"] != "A. Vries" {
		t.Errorf("Expected customer name in params, got %q", msg.params["customer_name"])
	}
	if msg.params["remaining_units"] != "1.5" {
		t.Errorf("Expected remaining_units 1.5, got %q", msg.params["remaining_units"])
	}

	if !ledger.entitlements[1][0].WarningSent {
		t.Error("Expected warning_sent latch to be set after successful send")
	}
	if len(auditor.entries) != 1 || auditor.entries[0].outcome != db.NotificationSent {
		t.Errorf("Expected one sent audit record, got %+v", auditor.entries)
	}
}

func TestSweep_LatchPreventsDuplicateWarnings(t *testing.T) {
	ledger := &fakeLedger{entitlements: map[int64][]db.Entitlement{
		1: {activeBase(1, 5, 100.0)},
	}}
	telem := &fakeTelemetry{samples: map[string]*db.MeterSample{"M-01": {MeterID: "M-01", CumulativeEnergy: 103.5}}}
	bookings := &fakeBookings{
		bookings: []db.BookingMeter{{BookingID: 1, MeterID: "M-01", CustomerClass: ClassShortStay}},
		contacts: map[int64]contact{1: {name: "A. Vries", address: "a.vries@example.com"}},
	}
	sender := &fakeSender{}
	auditor := &fakeAuditor{}

	svc := newTestService(ledger, telem, bookings, sender, auditor)
	for i := 0; i < 5; i++ {
		if err := svc.Sweep(context.Background()); err != nil {
			t.Fatalf("Sweep %d failed: %v", i, err)
		}
	}

	if len(sender.sent) != 1 {
		t.Errorf("Expected exactly one warning across repeated sweeps, got %d", len(sender.sent))
	}
}

func TestSweep_TransportFailureRetriesNextSweep(t *testing.T) {
	ledger := &fakeLedger{entitlements: map[int64][]db.Entitlement{
		1: {activeBase(1, 5, 100.0)},
	}}
	telem := &fakeTelemetry{samples: map[string]*db.MeterSample{"M-01": {MeterID: "M-01", CumulativeEnergy: 103.5}}}
	bookings := &fakeBookings{
		bookings: []db.BookingMeter{{BookingID: 1, MeterID: "M-01", CustomerClass: ClassShortStay}},
		contacts: map[int64]contact{1: {name: "A. Vries", address: "a.vries@example.com"}},
	}
	sender := &fakeSender{err: errors.New("broker unavailable")}
	auditor := &fakeAuditor{}

	svc := newTestService(ledger, telem, bookings, sender, auditor)
	if err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if ledger.entitlements[1][0].WarningSent {
		t.Error("Latch must not be set when the transport failed")
	}
	if len(auditor.entries) != 1 || auditor.entries[0].outcome != db.NotificationFailed {
		t.Fatalf("Expected one failed audit record, got %+v", auditor.entries)
	}

	// Transport recovers; next sweep must retry and latch.
	sender.err = nil
	if err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("Second sweep failed: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Errorf("Expected the retry to send one warning, got %d", len(sender.sent))
	}
	if !ledger.entitlements[1][0].WarningSent {
		t.Error("Expected latch set after successful retry")
	}
}

func TestSweep_AboveThresholdSkips(t *testing.T) {
	// 3.0 units remaining, short-stay threshold 2.
	ledger := &fakeLedger{entitlements: map[int64][]db.Entitlement{
		1: {activeBase(1, 5, 100.0)},
	}}
	telem := &fakeTelemetry{samples: map[string]*db.MeterSample{"M-01": {MeterID: "M-01", CumulativeEnergy: 102.0}}}
	bookings := &fakeBookings{
		bookings: []db.BookingMeter{{BookingID: 1, MeterID: "M-01", CustomerClass: ClassShortStay}},
		contacts: map[int64]contact{1: {name: "A. Vries", address: "a.vries@example.com"}},
	}
	sender := &fakeSender{}
	auditor := &fakeAuditor{}

	svc := newTestService(ledger, telem, bookings, sender, auditor)
	if err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if len(sender.sent) != 0 {
		t.Errorf("Expected no warning above threshold, got %d", len(sender.sent))
	}
}

func TestSweep_SeasonalClassWarnsEarlier(t *testing.T) {
	// 3.0 units remaining: above the short-stay threshold but below the
	// seasonal one.
	ledger := &fakeLedger{entitlements: map[int64][]db.Entitlement{
		1: {activeBase(1, 5, 100.0)},
	}}
	telem := &fakeTelemetry{samples: map[string]*db.MeterSample{"M-01": {MeterID: "M-01", CumulativeEnergy: 102.0}}}
	bookings := &fakeBookings{
		bookings: []db.BookingMeter{{BookingID: 1, MeterID: "M-01", CustomerClass: ClassSeasonal}},
		contacts: map[int64]contact{1: {name: "B. Jansen", address: "b.jansen@example.com"}},
	}
	sender := &fakeSender{}
	auditor := &fakeAuditor{}

	svc := newTestService(ledger, telem, bookings, sender, auditor)
	if err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Errorf("Expected seasonal guest to be warned at 3.0 remaining, got %d sends", len(sender.sent))
	}
}

func TestSweep_MissingAddressRecordsFailureWithoutLatch(t *testing.T) {
	ledger := &fakeLedger{entitlements: map[int64][]db.Entitlement{
		1: {activeBase(1, 5, 100.0)},
	}}
	telem := &fakeTelemetry{samples: map[string]*db.MeterSample{"M-01": {MeterID: "M-01", CumulativeEnergy: 103.5}}}
	bookings := &fakeBookings{
		bookings: []db.BookingMeter{{BookingID: 1, MeterID: "M-01", CustomerClass: ClassShortStay}},
		contacts: map[int64]contact{},
	}
	sender := &fakeSender{}
	auditor := &fakeAuditor{}

	svc := newTestService(ledger, telem, bookings, sender, auditor)
	if err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if len(sender.sent) != 0 {
		t.Errorf("Expected no send without a contact address, got %d", len(sender.sent))
	}
	if len(auditor.entries) != 1 || auditor.entries[0].outcome != db.NotificationFailed {
		t.Fatalf("Expected one failed audit record, got %+v", auditor.entries)
	}
	if auditor.entries[0].reason != "no contact address on file" {
		t.Errorf("Unexpected failure reason: %q", auditor.entries[0].reason)
	}
	if ledger.entitlements[1][0].WarningSent {
		t.Error("Latch must stay unset when no address is on file")
	}
}

func TestSweep_SkipsBookingWithoutTelemetry(t *testing.T) {
	ledger := &fakeLedger{entitlements: map[int64][]db.Entitlement{
		1: {activeBase(1, 5, 100.0)},
	}}
	telem := &fakeTelemetry{samples: map[string]*db.MeterSample{}}
	bookings := &fakeBookings{
		bookings: []db.BookingMeter{{BookingID: 1, MeterID: "M-01", CustomerClass: ClassShortStay}},
		contacts: map[int64]contact{1: {name: "A. Vries", address: "a.vries@example.com"}},
	}
	sender := &fakeSender{}
	auditor := &fakeAuditor{}

	svc := newTestService(ledger, telem, bookings, sender, auditor)
	if err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if len(sender.sent) != 0 || len(auditor.entries) != 0 {
		t.Error("Expected booking without telemetry to be skipped entirely")
	}
}

func TestThresholdFor_UnknownClassUsesLargerThreshold(t *testing.T) {
	svc := newTestService(&fakeLedger{}, &fakeTelemetry{}, &fakeBookings{}, &fakeSender{}, &fakeAuditor{})

	got := svc.thresholdFor("day_visitor")
	if got != testThresholds.SeasonalThresholdUnit {
		t.Errorf("Expected fallback to the larger threshold %f, got %f", testThresholds.SeasonalThresholdUnit, got)
	}
}
