package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"fleet/internal/domain"
	"fleet/internal/repository"
)

const driverSelect = `
	SELECT d.id, COALESCE(d.name, ''), COALESCE(d.phone, ''), d.is_available,
	       ARRAY(SELECT c.vehicle_type FROM driver_vehicle_types c WHERE c.driver_id = d.id ORDER BY c.vehicle_type),
	       (SELECT COUNT(*) FROM trips t WHERE t.driver_id = d.id AND t.status NOT IN ('DELIVERED', 'CANCELLED'))
	FROM drivers d`

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	q Querier
}

// NewDriverRepository creates a driver repository over q, which is either the
// pool or an open transaction.
func NewDriverRepository(q Querier) *DriverRepository {
	return &DriverRepository{q: q}
}

// Create adds a new driver and its capability rows. Run it inside
// Store.WithTx when both inserts must land together.
func (r *DriverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	query := `INSERT INTO drivers (id, name, phone, is_available) VALUES ($1, $2, $3, $4)`
	_, err := r.q.ExecContext(ctx, query, driver.ID, nullString(driver.Name), nullString(driver.Phone), driver.IsAvailable)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return err
	}

	if len(driver.VehicleTypes) == 0 {
		return nil
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO driver_vehicle_types (driver_id, vehicle_type)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING
	`, driver.ID, pq.Array(driver.VehicleTypes))
	return err
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	driver, err := scanDriver(r.q.QueryRowContext(ctx, driverSelect+` WHERE d.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return driver, err
}

// ListAvailable returns available drivers capable of vehicleType.
func (r *DriverRepository) ListAvailable(ctx context.Context, vehicleType string) ([]*domain.Driver, error) {
	query := driverSelect + ` WHERE d.is_available ORDER BY d.id`
	args := []any{}
	if vehicleType != "" {
		query = driverSelect + `
			WHERE d.is_available
			  AND EXISTS (SELECT 1 FROM driver_vehicle_types c WHERE c.driver_id = d.id AND c.vehicle_type = $1)
			ORDER BY d.id`
		args = append(args, vehicleType)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, driver)
	}
	return drivers, rows.Err()
}

// HasCapabilities reports whether the capability table has any row.
func (r *DriverRepository) HasCapabilities(ctx context.Context) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM driver_vehicle_types)`).Scan(&exists)
	return exists, err
}

// SetAvailability updates the availability flag of a driver.
func (r *DriverRepository) SetAvailability(ctx context.Context, id string, available bool) error {
	query := `UPDATE drivers SET is_available = $1 WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, available, id)
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

func scanDriver(row scanner) (*domain.Driver, error) {
	var driver domain.Driver
	var vehicleTypes []string
	if err := row.Scan(
		&driver.ID,
		&driver.Name,
		&driver.Phone,
		&driver.IsAvailable,
		pq.Array(&vehicleTypes),
		&driver.ActiveTrips,
	); err != nil {
		return nil, err
	}
	driver.VehicleTypes = vehicleTypes
	return &driver, nil
}

// Ensure DriverRepository implements repository.DriverRepository.
var _ repository.DriverRepository = (*DriverRepository)(nil)
