package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campwise/energy-entitlement-worker/internal/db"
)

// Store reads the append-only meter sample stream. This worker never writes
// telemetry.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new telemetry store reader
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetLatestSample returns the most recent sample for a meter, or (nil, nil)
// when no telemetry exists yet. Callers must skip the booking in that case
// rather than assume zero or infinite usage.
func (s *Store) GetLatestSample(ctx context.Context, meterID string) (*db.MeterSample, error) {
	query := `
		SELECT meter_id, sampled_at, cumulative_energy, power_watts, current_amps
		FROM meter_samples
		WHERE meter_id = $1
		ORDER BY sampled_at DESC
		LIMIT 1
	`

	var sample db.MeterSample
	err := s.pool.QueryRow(ctx, query, meterID).Scan(
		&sample.MeterID,
		&sample.SampledAt,
		&sample.CumulativeEnergy,
		&sample.PowerWatts,
		&sample.CurrentAmps,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest sample for meter %s: %w", meterID, err)
	}

	return &sample, nil
}
