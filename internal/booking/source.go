package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campwise/energy-entitlement-worker/internal/db"
)

// Source provides read-only access to the booking records owned by the
// guest-services collaborator.
type Source struct {
	pool *pgxpool.Pool
}

// NewSource creates a new booking source
func NewSource(pool *pgxpool.Pool) *Source {
	return &Source{pool: pool}
}

// ListCheckedInWithMeter returns every checked-in booking that has a meter
// assigned, together with its customer class.
func (s *Source) ListCheckedInWithMeter(ctx context.Context) ([]db.BookingMeter, error) {
	query := `
		SELECT b.id, b.meter_id, b.customer_class
		FROM bookings b
		WHERE b.checked_in = true AND b.meter_id IS NOT NULL
		ORDER BY b.id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query checked-in bookings: %w", err)
	}
	defer rows.Close()

	var bookings []db.BookingMeter
	for rows.Next() {
		var b db.BookingMeter
		if err := rows.Scan(&b.BookingID, &b.MeterID, &b.CustomerClass); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return bookings, nil
}

// ResolveContact returns the customer's name and email address for a
// booking. Either string may be empty when the underlying record is
// missing or has no address on file.
func (s *Source) ResolveContact(ctx context.Context, bookingID int64) (name string, address string, err error) {
	query := `
		SELECT c.name, COALESCE(c.email, '')
		FROM bookings b
		JOIN customers c ON c.id = b.customer_id
		WHERE b.id = $1
	`

	err = s.pool.QueryRow(ctx, query, bookingID).Scan(&name, &address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", nil
		}
		return "", "", fmt.Errorf("failed to resolve contact for booking %d: %w", bookingID, err)
	}

	return name, address, nil
}
