package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campwise/energy-entitlement-worker/internal/db"
)

// Device command vocabulary understood by the downlink channel. Repeated
// OFF commands are a no-op at the device, so duplicate enqueues are
// harmless and not de-duplicated here.
const (
	CommandSetState = "set_state"
	ValueOff        = "OFF"
)

// Queue is a write-once intent log for device commands. Rows are created
// pending; the external device-facing channel consumes them and owns the
// delivered/failed transitions. Enqueue success means "actuation
// requested", never "actuation confirmed".
type Queue struct {
	pool *pgxpool.Pool
}

// NewQueue creates a new command dispatch queue
func NewQueue(pool *pgxpool.Pool) *Queue {
	return &Queue{pool: pool}
}

// Enqueue inserts a pending command for a meter.
func (q *Queue) Enqueue(ctx context.Context, meterID, command, value string) error {
	cmd := db.MeterCommand{
		ID:        uuid.New(),
		MeterID:   meterID,
		Command:   command,
		Value:     value,
		Status:    db.CommandPending,
		CreatedAt: time.Now(),
	}

	query := `
		INSERT INTO meter_commands (id, meter_id, command, value, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := q.pool.Exec(ctx, query,
		cmd.ID,
		cmd.MeterID,
		cmd.Command,
		cmd.Value,
		cmd.Status,
		cmd.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue command for meter %s: %w", meterID, err)
	}

	return nil
}
