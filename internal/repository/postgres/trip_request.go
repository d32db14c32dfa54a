package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fleet/internal/domain"
	"fleet/internal/repository"
)

const tripRequestColumns = `id, trip_id, driver_id, status, created_at, expires_at, responded_at`

// TripRequestRepository is a PostgreSQL implementation of repository.TripRequestRepository.
type TripRequestRepository struct {
	q Querier
}

// NewTripRequestRepository creates a trip request repository over q, which is either the
// pool or an open transaction.
func NewTripRequestRepository(q Querier) *TripRequestRepository {
	return &TripRequestRepository{q: q}
}

// Create inserts a request, skipping pairs that already exist.
func (r *TripRequestRepository) Create(ctx context.Context, req *domain.TripRequest) (bool, error) {
	query := `
		INSERT INTO trip_requests (` + tripRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (trip_id, driver_id) DO NOTHING
	`

	result, err := r.q.ExecContext(ctx, query,
		req.ID,
		req.TripID,
		req.DriverID,
		req.Status,
		req.CreatedAt,
		req.ExpiresAt,
		nullTime(req.RespondedAt),
	)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

// GetByTripAndDriver retrieves the request for a (trip, driver) pair.
func (r *TripRequestRepository) GetByTripAndDriver(ctx context.Context, tripID, driverID string) (*domain.TripRequest, error) {
	query := `SELECT ` + tripRequestColumns + ` FROM trip_requests WHERE trip_id = $1 AND driver_id = $2`

	req, err := scanTripRequest(r.q.QueryRowContext(ctx, query, tripID, driverID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return req, err
}

// ListByTrip returns every request for a trip.
func (r *TripRequestRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.TripRequest, error) {
	query := `SELECT ` + tripRequestColumns + ` FROM trip_requests WHERE trip_id = $1 ORDER BY created_at, driver_id`
	return r.list(ctx, query, tripID)
}

// ListPendingByDriver returns a driver's outstanding offers.
func (r *TripRequestRepository) ListPendingByDriver(ctx context.Context, driverID string) ([]*domain.TripRequest, error) {
	query := `
		SELECT ` + tripRequestColumns + ` FROM trip_requests
		WHERE driver_id = $1 AND status = 'PENDING'
		ORDER BY expires_at
	`
	return r.list(ctx, query, driverID)
}

// Transition moves a request out of PENDING.
func (r *TripRequestRepository) Transition(ctx context.Context, id string, status domain.TripRequestStatus, respondedAt *time.Time) (bool, error) {
	query := `UPDATE trip_requests SET status = $1, responded_at = $2 WHERE id = $3 AND status = 'PENDING'`

	result, err := r.q.ExecContext(ctx, query, status, nullTime(respondedAt), id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

// RejectPending rejects the still-pending siblings of exceptID.
func (r *TripRequestRepository) RejectPending(ctx context.Context, tripID, exceptID string) ([]*domain.TripRequest, error) {
	query := `
		UPDATE trip_requests SET status = 'REJECTED'
		WHERE trip_id = $1 AND status = 'PENDING' AND id <> $2
		RETURNING ` + tripRequestColumns
	return r.list(ctx, query, tripID, exceptID)
}

// CountPending counts the PENDING requests of a trip.
func (r *TripRequestRepository) CountPending(ctx context.Context, tripID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trip_requests WHERE trip_id = $1 AND status = 'PENDING'`, tripID,
	).Scan(&count)
	return count, err
}

// ListTripsWithOverdue returns trips that own overdue PENDING requests.
func (r *TripRequestRepository) ListTripsWithOverdue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT DISTINCT trip_id FROM trip_requests
		WHERE status = 'PENDING' AND expires_at < $1
		ORDER BY trip_id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tripIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tripIDs = append(tripIDs, id)
	}
	return tripIDs, rows.Err()
}

// ExpireOverdue marks a trip's overdue PENDING requests EXPIRED.
func (r *TripRequestRepository) ExpireOverdue(ctx context.Context, tripID string, now time.Time) ([]*domain.TripRequest, error) {
	query := `
		UPDATE trip_requests SET status = 'EXPIRED'
		WHERE trip_id = $1 AND status = 'PENDING' AND expires_at < $2
		RETURNING ` + tripRequestColumns
	return r.list(ctx, query, tripID, now)
}

func (r *TripRequestRepository) list(ctx context.Context, query string, args ...any) ([]*domain.TripRequest, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*domain.TripRequest
	for rows.Next() {
		req, err := scanTripRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func scanTripRequest(row scanner) (*domain.TripRequest, error) {
	var req domain.TripRequest
	var respondedAt sql.NullTime
	if err := row.Scan(
		&req.ID,
		&req.TripID,
		&req.DriverID,
		&req.Status,
		&req.CreatedAt,
		&req.ExpiresAt,
		&respondedAt,
	); err != nil {
		return nil, err
	}
	req.RespondedAt = toTimePtr(respondedAt)
	return &req, nil
}

// Ensure TripRequestRepository implements repository.TripRequestRepository.
var _ repository.TripRequestRepository = (*TripRequestRepository)(nil)
