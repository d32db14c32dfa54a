package repository

import (
	"context"
	"time"

	"fleet/internal/domain"
)

// TripRequestRepository defines the persistence operations for trip requests.
type TripRequestRepository interface {
	// Create inserts a request unless one already exists for the same
	// (trip, driver) pair. Returns false when the pair was already present.
	Create(ctx context.Context, req *domain.TripRequest) (bool, error)

	// GetByTripAndDriver retrieves the request offered to driverID for tripID.
	GetByTripAndDriver(ctx context.Context, tripID, driverID string) (*domain.TripRequest, error)

	// ListByTrip returns every request for a trip, oldest first.
	ListByTrip(ctx context.Context, tripID string) ([]*domain.TripRequest, error)

	// ListPendingByDriver returns the driver's outstanding offers.
	ListPendingByDriver(ctx context.Context, driverID string) ([]*domain.TripRequest, error)

	// Transition moves a PENDING request to status. Returns false if the
	// request was no longer PENDING.
	Transition(ctx context.Context, id string, status domain.TripRequestStatus, respondedAt *time.Time) (bool, error)

	// RejectPending rejects every PENDING request of a trip except exceptID
	// and returns the rejected requests.
	RejectPending(ctx context.Context, tripID, exceptID string) ([]*domain.TripRequest, error)

	// CountPending counts the PENDING requests of a trip.
	CountPending(ctx context.Context, tripID string) (int, error)

	// ListTripsWithOverdue returns IDs of trips owning PENDING requests whose
	// deadline is before now.
	ListTripsWithOverdue(ctx context.Context, now time.Time) ([]string, error)

	// ExpireOverdue marks a trip's overdue PENDING requests EXPIRED and
	// returns them.
	ExpireOverdue(ctx context.Context, tripID string, now time.Time) ([]*domain.TripRequest, error)
}
