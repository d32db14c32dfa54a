package postgres

import (
	"context"

	"fleet/internal/domain"
	"fleet/internal/repository"
)

// TrackingRepository is a PostgreSQL implementation of repository.TrackingRepository.
type TrackingRepository struct {
	q Querier
}

// NewTrackingRepository creates a tracking repository over q, which is either the
// pool or an open transaction.
func NewTrackingRepository(q Querier) *TrackingRepository {
	return &TrackingRepository{q: q}
}

// Append stores a tracking sample.
func (r *TrackingRepository) Append(ctx context.Context, entry *domain.TrackingLog) error {
	query := `
		INSERT INTO tracking_logs (id, trip_id, driver_id, lat, lng, speed, heading, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.q.ExecContext(ctx, query,
		entry.ID,
		entry.TripID,
		entry.DriverID,
		entry.Location.Lat,
		entry.Location.Lng,
		entry.Location.Speed,
		entry.Location.Heading,
		entry.RecordedAt,
	)
	return err
}

// ListByTrip returns a trip's samples in recording order.
func (r *TrackingRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.TrackingLog, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, trip_id, driver_id, lat, lng, speed, heading, recorded_at
		FROM tracking_logs WHERE trip_id = $1
		ORDER BY recorded_at, id
	`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.TrackingLog
	for rows.Next() {
		var e domain.TrackingLog
		if err := rows.Scan(
			&e.ID,
			&e.TripID,
			&e.DriverID,
			&e.Location.Lat,
			&e.Location.Lng,
			&e.Location.Speed,
			&e.Location.Heading,
			&e.RecordedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Ensure TrackingRepository implements repository.TrackingRepository.
var _ repository.TrackingRepository = (*TrackingRepository)(nil)
