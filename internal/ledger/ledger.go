package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campwise/energy-entitlement-worker/internal/db"
)

// Tx is an alias for pgx.Tx
type Tx = pgx.Tx

// Repository handles entitlement ledger operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new ledger repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActiveEntitlements returns all active entitlements for a booking,
// base first so the active base is deterministic for enforcement.
func (r *Repository) ListActiveEntitlements(ctx context.Context, bookingID int64) ([]db.Entitlement, error) {
	query := `
		SELECT id, booking_id, kind, units_granted, baseline_energy,
		       accumulated_usage, duration_hours, status, warning_sent, created_at
		FROM entitlements
		WHERE booking_id = $1 AND status = 'active'
		ORDER BY kind ASC, created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active entitlements: %w", err)
	}
	defer rows.Close()

	var entitlements []db.Entitlement
	for rows.Next() {
		var e db.Entitlement
		if err := rows.Scan(
			&e.ID,
			&e.BookingID,
			&e.Kind,
			&e.UnitsGranted,
			&e.BaselineEnergy,
			&e.AccumulatedUsage,
			&e.DurationHours,
			&e.Status,
			&e.WarningSent,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entitlement: %w", err)
		}
		entitlements = append(entitlements, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entitlements, nil
}

// UpdateEntitlementStatus transitions an entitlement out of active. Only
// depleted and expired are accepted and the transition is one-way: a row
// already out of active is left untouched, so re-running a sweep against
// the same exhausted booking is a no-op.
func (r *Repository) UpdateEntitlementStatus(ctx context.Context, entitlementID uuid.UUID, newStatus string) error {
	if newStatus != db.EntitlementDepleted && newStatus != db.EntitlementExpired {
		return fmt.Errorf("invalid entitlement status transition to %q", newStatus)
	}

	query := `
		UPDATE entitlements
		SET status = $1
		WHERE id = $2 AND status = 'active'
	`

	if _, err := r.pool.Exec(ctx, query, newStatus, entitlementID); err != nil {
		return fmt.Errorf("failed to update entitlement status: %w", err)
	}

	return nil
}

// SetWarningSent latches the low-balance warning flag on the booking's
// current active entitlement set.
func (r *Repository) SetWarningSent(ctx context.Context, bookingID int64) error {
	query := `
		UPDATE entitlements
		SET warning_sent = true
		WHERE booking_id = $1 AND status = 'active'
	`

	if _, err := r.pool.Exec(ctx, query, bookingID); err != nil {
		return fmt.Errorf("failed to set warning_sent: %w", err)
	}

	return nil
}

// InsertEntitlement records a newly purchased grant. The payment collaborator
// supplies the baseline snapshot (the meter's latest cumulative reading at
// purchase time).
func (r *Repository) InsertEntitlement(ctx context.Context, e *db.Entitlement) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = db.EntitlementActive
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO entitlements (
			id, booking_id, kind, units_granted, baseline_energy,
			accumulated_usage, duration_hours, status, warning_sent, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.BookingID,
		e.Kind,
		e.UnitsGranted,
		e.BaselineEnergy,
		e.AccumulatedUsage,
		e.DurationHours,
		e.Status,
		e.WarningSent,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entitlement: %w", err)
	}

	return nil
}

// TransferEntitlementBaseline moves an entitlement onto a new meter when
// staff reassign a guest mid-stay. Consumption measured against the old
// meter is folded into accumulated_usage and the baseline is reset against
// the new meter, all in one transaction, so the guest is neither charged
// twice nor reset to zero. The booking's meter assignment is updated in the
// same transaction.
func (r *Repository) TransferEntitlementBaseline(ctx context.Context, entitlementID uuid.UUID, newMeterID string, newBaselineEnergy float64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		bookingID      int64
		baseline       float64
		oldMeterID     *string
		oldFinalEnergy *float64
	)

	query := `
		SELECT e.booking_id, e.baseline_energy, b.meter_id
		FROM entitlements e
		JOIN bookings b ON b.id = e.booking_id
		WHERE e.id = $1 AND e.status = 'active'
		FOR UPDATE OF e
	`
	if err := tx.QueryRow(ctx, query, entitlementID).Scan(&bookingID, &baseline, &oldMeterID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("no active entitlement %s to transfer", entitlementID)
		}
		return fmt.Errorf("failed to lock entitlement for transfer: %w", err)
	}

	if oldMeterID != nil {
		sampleQuery := `
			SELECT cumulative_energy
			FROM meter_samples
			WHERE meter_id = $1
			ORDER BY sampled_at DESC
			LIMIT 1
		`
		var final float64
		err := tx.QueryRow(ctx, sampleQuery, *oldMeterID).Scan(&final)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to read final sample of meter %s: %w", *oldMeterID, err)
		}
		if err == nil {
			oldFinalEnergy = &final
		}
	}

	// Without a final sample the old-meter consumption is undefined and
	// nothing is folded.
	folded := 0.0
	if oldFinalEnergy != nil {
		folded = *oldFinalEnergy - baseline
		if folded < 0 {
			folded = 0
		}
	}

	updateQuery := `
		UPDATE entitlements
		SET accumulated_usage = accumulated_usage + $1, baseline_energy = $2
		WHERE id = $3
	`
	if _, err := tx.Exec(ctx, updateQuery, folded, newBaselineEnergy, entitlementID); err != nil {
		return fmt.Errorf("failed to rebase entitlement: %w", err)
	}

	reassignQuery := `
		UPDATE bookings
		SET meter_id = $1
		WHERE id = $2
	`
	if _, err := tx.Exec(ctx, reassignQuery, newMeterID, bookingID); err != nil {
		return fmt.Errorf("failed to reassign booking meter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}

	return nil
}
