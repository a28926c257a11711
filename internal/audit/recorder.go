package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campwise/energy-entitlement-worker/internal/db"
)

// Recorder writes notification diagnostics so staff can answer "why did
// this guest (not) get a warning".
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder creates a new audit recorder
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Record inserts one notification audit row.
func (r *Recorder) Record(ctx context.Context, bookingID int64, outcome, reason string, remainingUnits float64) error {
	rec := db.NotificationRecord{
		ID:             uuid.New(),
		BookingID:      bookingID,
		Outcome:        outcome,
		Reason:         reason,
		RemainingUnits: remainingUnits,
		CreatedAt:      time.Now(),
	}

	query := `
		INSERT INTO notification_log (id, booking_id, outcome, reason, remaining_units, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.BookingID,
		rec.Outcome,
		rec.Reason,
		rec.RemainingUnits,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record notification outcome: %w", err)
	}

	return nil
}
