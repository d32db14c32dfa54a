package postgres

import (
	"context"
	"database/sql"
	"errors"

	"fleet/internal/domain"
	"fleet/internal/repository"
)

const tripColumns = `
	id, trip_number, customer_id, driver_id, vehicle_id, vehicle_type, temperature_required,
	origin, destination, scheduled_at, price, currency, status, notes, created_at,
	assigned_at, started_at, en_route_at, at_pickup_at, picked_up_at, in_transit_at,
	at_destination_at, delivered_at, cancelled_at`

// TripRepository is a PostgreSQL implementation of repository.TripRepository.
type TripRepository struct {
	q Querier
}

// NewTripRepository creates a trip repository over q, which is either the
// pool or an open transaction.
func NewTripRepository(q Querier) *TripRepository {
	return &TripRepository{q: q}
}

// Create persists a new trip.
func (r *TripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	query := `
		INSERT INTO trips (` + tripColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	_, err := r.q.ExecContext(ctx, query,
		trip.ID,
		trip.TripNumber,
		trip.CustomerID,
		nullString(trip.DriverID),
		nullString(trip.VehicleID),
		nullString(trip.VehicleType),
		nullString(trip.TemperatureRequired),
		trip.Origin,
		trip.Destination,
		trip.ScheduledAt,
		trip.Price,
		trip.Currency,
		trip.Status,
		nullString(trip.Notes),
		trip.CreatedAt,
		nullTime(trip.AssignedAt),
		nullTime(trip.StartedAt),
		nullTime(trip.EnRouteAt),
		nullTime(trip.AtPickupAt),
		nullTime(trip.PickedUpAt),
		nullTime(trip.InTransitAt),
		nullTime(trip.AtDestinationAt),
		nullTime(trip.DeliveredAt),
		nullTime(trip.CancelledAt),
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetByID retrieves a trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`
	return scanTrip(r.q.QueryRowContext(ctx, query, id))
}

// GetByIDForUpdate retrieves a trip and holds a row lock on it for the rest
// of the transaction.
func (r *TripRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1 FOR UPDATE`
	return scanTrip(r.q.QueryRowContext(ctx, query, id))
}

// AssignDriver sets driver_id only while it is still NULL.
func (r *TripRepository) AssignDriver(ctx context.Context, tripID, driverID string) (bool, error) {
	query := `UPDATE trips SET driver_id = $1 WHERE id = $2 AND driver_id IS NULL`

	result, err := r.q.ExecContext(ctx, query, driverID, tripID)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

// Update updates an existing trip.
func (r *TripRepository) Update(ctx context.Context, trip *domain.Trip) error {
	query := `
		UPDATE trips
		SET driver_id = $1, status = $2, notes = $3,
		    assigned_at = $4, started_at = $5, en_route_at = $6, at_pickup_at = $7,
		    picked_up_at = $8, in_transit_at = $9, at_destination_at = $10,
		    delivered_at = $11, cancelled_at = $12
		WHERE id = $13
	`

	result, err := r.q.ExecContext(ctx, query,
		nullString(trip.DriverID),
		trip.Status,
		nullString(trip.Notes),
		nullTime(trip.AssignedAt),
		nullTime(trip.StartedAt),
		nullTime(trip.EnRouteAt),
		nullTime(trip.AtPickupAt),
		nullTime(trip.PickedUpAt),
		nullTime(trip.InTransitAt),
		nullTime(trip.AtDestinationAt),
		nullTime(trip.DeliveredAt),
		nullTime(trip.CancelledAt),
		trip.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func scanTrip(row scanner) (*domain.Trip, error) {
	var trip domain.Trip
	var driverID, vehicleID, vehicleType, temperature, notes sql.NullString
	var assignedAt, startedAt, enRouteAt, atPickupAt, pickedUpAt sql.NullTime
	var inTransitAt, atDestinationAt, deliveredAt, cancelledAt sql.NullTime

	err := row.Scan(
		&trip.ID,
		&trip.TripNumber,
		&trip.CustomerID,
		&driverID,
		&vehicleID,
		&vehicleType,
		&temperature,
		&trip.Origin,
		&trip.Destination,
		&trip.ScheduledAt,
		&trip.Price,
		&trip.Currency,
		&trip.Status,
		&notes,
		&trip.CreatedAt,
		&assignedAt,
		&startedAt,
		&enRouteAt,
		&atPickupAt,
		&pickedUpAt,
		&inTransitAt,
		&atDestinationAt,
		&deliveredAt,
		&cancelledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	trip.DriverID = driverID.String
	trip.VehicleID = vehicleID.String
	trip.VehicleType = vehicleType.String
	trip.TemperatureRequired = temperature.String
	trip.Notes = notes.String
	trip.AssignedAt = toTimePtr(assignedAt)
	trip.StartedAt = toTimePtr(startedAt)
	trip.EnRouteAt = toTimePtr(enRouteAt)
	trip.AtPickupAt = toTimePtr(atPickupAt)
	trip.PickedUpAt = toTimePtr(pickedUpAt)
	trip.InTransitAt = toTimePtr(inTransitAt)
	trip.AtDestinationAt = toTimePtr(atDestinationAt)
	trip.DeliveredAt = toTimePtr(deliveredAt)
	trip.CancelledAt = toTimePtr(cancelledAt)

	return &trip, nil
}

// Ensure TripRepository implements repository.TripRepository.
var _ repository.TripRepository = (*TripRepository)(nil)
