package repository

import (
	"context"

	"fleet/internal/domain"
)

// DriverRepository defines the persistence operations for drivers.
type DriverRepository interface {
	// Create adds a new driver together with its vehicle-type capabilities.
	Create(ctx context.Context, driver *domain.Driver) error

	// GetByID retrieves a driver by ID, including the derived active-trip count.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// ListAvailable returns available drivers capable of vehicleType.
	// An empty vehicleType returns every available driver.
	ListAvailable(ctx context.Context, vehicleType string) ([]*domain.Driver, error)

	// HasCapabilities reports whether any capability row exists at all.
	HasCapabilities(ctx context.Context) (bool, error)

	// SetAvailability flips the driver's availability flag.
	SetAvailability(ctx context.Context, id string, available bool) error
}
