package repository

import (
	"context"

	"fleet/internal/domain"
)

// TrackingRepository defines the persistence operations for tracking samples.
type TrackingRepository interface {
	// Append stores a new sample. Samples are never modified.
	Append(ctx context.Context, entry *domain.TrackingLog) error

	// ListByTrip returns a trip's samples in recording order.
	ListByTrip(ctx context.Context, tripID string) ([]*domain.TrackingLog, error)
}

// InvoiceRepository defines the persistence operations for invoices.
type InvoiceRepository interface {
	// Create persists a new invoice. Returns ErrConflict if the trip already has one.
	Create(ctx context.Context, invoice *domain.Invoice) error

	// GetByTripID retrieves a trip's invoice.
	GetByTripID(ctx context.Context, tripID string) (*domain.Invoice, error)
}

// Store groups the repositories behind one transactional boundary.
type Store interface {
	Trips() TripRepository
	Drivers() DriverRepository
	Requests() TripRequestRepository
	Tracking() TrackingRepository
	Invoices() InvoiceRepository

	// WithTx runs fn in a single transaction with read-committed or stronger
	// isolation. A non-nil error from fn rolls the transaction back. Calling
	// WithTx on a Store that is already transactional runs fn in place.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
