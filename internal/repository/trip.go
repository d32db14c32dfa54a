package repository

import (
	"context"

	"fleet/internal/domain"
)

// TripRepository defines the persistence operations for trips.
type TripRepository interface {
	// Create persists a new trip.
	Create(ctx context.Context, trip *domain.Trip) error

	// GetByID retrieves a trip by ID.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)

	// GetByIDForUpdate retrieves a trip and locks its row until the
	// surrounding transaction ends. Outside a transaction it behaves like GetByID.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error)

	// AssignDriver sets the trip's driver only if none is assigned yet.
	// Returns false when another driver already holds the trip.
	AssignDriver(ctx context.Context, tripID, driverID string) (bool, error)

	// Update writes status, timestamps and the remaining mutable fields.
	Update(ctx context.Context, trip *domain.Trip) error
}
