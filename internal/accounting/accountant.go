package accounting

import (
	"github.com/campwise/energy-entitlement-worker/internal/db"
)

// Consumed returns the energy attributed to one entitlement given the
// meter's current cumulative reading. The baseline snapshot is the meter
// reading at the moment the entitlement became effective; accumulated usage
// carries consumption over from a previous meter after a swap.
func Consumed(e db.Entitlement, cumulativeEnergy float64) float64 {
	consumed := cumulativeEnergy - e.BaselineEnergy
	if consumed < 0 {
		consumed = 0
	}
	return consumed + e.AccumulatedUsage
}

// TotalGranted sums granted units over all active entitlements of one
// booking. Base and addon grants stack.
func TotalGranted(entitlements []db.Entitlement) float64 {
	total := 0.0
	for _, e := range entitlements {
		if e.Status != db.EntitlementActive {
			continue
		}
		total += e.UnitsGranted
	}
	return total
}

// TotalConsumed sums Consumed over all active entitlements of one booking
// against the same cumulative reading.
func TotalConsumed(entitlements []db.Entitlement, cumulativeEnergy float64) float64 {
	total := 0.0
	for _, e := range entitlements {
		if e.Status != db.EntitlementActive {
			continue
		}
		total += Consumed(e, cumulativeEnergy)
	}
	return total
}

// Remaining returns granted minus consumed units for one booking.
func Remaining(entitlements []db.Entitlement, cumulativeEnergy float64) float64 {
	return TotalGranted(entitlements) - TotalConsumed(entitlements, cumulativeEnergy)
}

// ActiveBase returns the booking's active base entitlement, or nil if none.
// At most one base entitlement is active per booking.
func ActiveBase(entitlements []db.Entitlement) *db.Entitlement {
	for i := range entitlements {
		e := &entitlements[i]
		if e.Status == db.EntitlementActive && e.Kind == db.KindBase {
			return e
		}
	}
	return nil
}
