package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet/internal/domain"
	"fleet/internal/redis"
	"fleet/internal/repository"
)

// TrackingService records driver positions while a trip is under way.
type TrackingService struct {
	store         repository.Store
	locationStore redis.LocationStoreInterface
	logger        *zap.Logger
	now           func() time.Time
}

// NewTrackingService creates a new TrackingService. locationStore may be nil.
func NewTrackingService(store repository.Store, locationStore redis.LocationStoreInterface, logger *zap.Logger) *TrackingService {
	return &TrackingService{
		store:         store,
		locationStore: locationStore,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// RecordLocationRequest contains the parameters for recording a position.
type RecordLocationRequest struct {
	DriverID string
	TripID   string
	Location domain.Location
}

// Record appends a tracking sample for the driver's trip and refreshes the
// driver's live position. Live position failures are logged only.
func (s *TrackingService) Record(ctx context.Context, req RecordLocationRequest) (*domain.TrackingLog, error) {
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if !req.Location.Valid() {
		return nil, ErrInvalidLocation
	}

	trip, err := s.store.Trips().GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID != req.DriverID {
		return nil, ErrForbidden
	}
	if !underWay(trip.Status) {
		return nil, ErrTripNotActive
	}

	entry := &domain.TrackingLog{
		ID:         uuid.NewString(),
		TripID:     trip.ID,
		DriverID:   req.DriverID,
		Location:   req.Location,
		RecordedAt: s.now(),
	}
	if err := s.store.Tracking().Append(ctx, entry); err != nil {
		return nil, err
	}

	if s.locationStore != nil {
		if err := s.locationStore.UpdateLocation(ctx, req.DriverID, req.Location.Lat, req.Location.Lng); err != nil {
			s.logger.Warn("failed to update live location", zap.String("driver_id", req.DriverID), zap.Error(err))
		}
	}

	return entry, nil
}

// LiveLocation returns the driver's last broadcast position, or nil when the
// driver is not broadcasting.
func (s *TrackingService) LiveLocation(ctx context.Context, driverID string) (*redis.DriverLocation, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	if s.locationStore == nil {
		return nil, nil
	}
	return s.locationStore.GetLocation(ctx, driverID)
}

func underWay(status domain.TripStatus) bool {
	switch status {
	case domain.TripStatusAssigned,
		domain.TripStatusInProgress,
		domain.TripStatusEnRoutePickup,
		domain.TripStatusAtPickup,
		domain.TripStatusPickedUp,
		domain.TripStatusInTransit,
		domain.TripStatusAtDestination:
		return true
	default:
		return false
	}
}
