package db

import (
	"time"

	"github.com/google/uuid"
)

// Entitlement statuses. Transitions are one-way: active is the initial
// state, depleted and expired are terminal.
const (
	EntitlementActive   = "active"
	EntitlementDepleted = "depleted"
	EntitlementExpired  = "expired"
)

// Entitlement kinds. A booking has at most one active base entitlement;
// addons stack on top of it.
const (
	KindBase  = "base"
	KindAddon = "addon"
)

// Entitlement represents one purchased energy grant for a booking.
type Entitlement struct {
	ID               uuid.UUID
	BookingID        int64
	Kind             string
	UnitsGranted     float64
	BaselineEnergy   float64
	AccumulatedUsage float64
	DurationHours    *int
	Status           string
	WarningSent      bool
	CreatedAt        time.Time
}

// MeterSample is one row of the append-only telemetry stream.
// CumulativeEnergy is non-decreasing per meter for the lifetime of an
// assignment.
type MeterSample struct {
	MeterID          string
	SampledAt        time.Time
	CumulativeEnergy float64
	PowerWatts       float64
	CurrentAmps      float64
}

// CommandPending is the only command status this worker writes; the
// device-facing channel owns the rest of the lifecycle.
const CommandPending = "pending"

// MeterCommand is a device actuation intent row.
type MeterCommand struct {
	ID        uuid.UUID
	MeterID   string
	Command   string
	Value     string
	Status    string
	CreatedAt time.Time
}

// BookingMeter is the enforcement view of a checked-in booking: which meter
// it occupies and which customer class its warning threshold comes from.
type BookingMeter struct {
	BookingID     int64
	MeterID       string
	CustomerClass string
}

// Notification outcomes recorded in the audit log.
const (
	NotificationSent    = "sent"
	NotificationSkipped = "skipped"
	NotificationFailed  = "failed"
)

// NotificationRecord is one audit row for a warning attempt.
type NotificationRecord struct {
	ID             uuid.UUID
	BookingID      int64
	Outcome        string
	Reason         string
	RemainingUnits float64
	CreatedAt      time.Time
}
