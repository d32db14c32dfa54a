package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet/internal/domain"
	"fleet/internal/redis"
	"fleet/internal/repository"
)

const defaultRequestTTL = 15 * time.Minute

// DispatcherConfig tunes the dispatcher.
type DispatcherConfig struct {
	// RequestTTL is how long an offer stays open. Zero selects 15 minutes.
	RequestTTL time.Duration
	// CapabilityFallback makes every available driver eligible while no
	// driver has any vehicle type registered.
	CapabilityFallback bool
	// Now overrides the clock. Nil selects time.Now in UTC.
	Now func() time.Time
}

// Dispatcher offers trips to drivers, settles their answers and drives the
// trip through its lifecycle. It is the only writer of Driver.IsAvailable.
//
// Every operation runs in one store transaction that locks the trip row
// first. Notifications and live-location cleanup run after commit and never
// fail the operation.
type Dispatcher struct {
	store         repository.Store
	invoices      *InvoiceBuilder
	notifications *NotificationService
	locations     redis.LocationStoreInterface
	cfg           DispatcherConfig
	logger        *zap.Logger
}

// NewDispatcher creates a new Dispatcher. locations may be nil.
func NewDispatcher(
	store repository.Store,
	invoices *InvoiceBuilder,
	notifications *NotificationService,
	locations redis.LocationStoreInterface,
	cfg DispatcherConfig,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.RequestTTL <= 0 {
		cfg.RequestTTL = defaultRequestTTL
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		store:         store,
		invoices:      invoices,
		notifications: notifications,
		locations:     locations,
		cfg:           cfg,
		logger:        logger,
	}
}

// effects are deferred until the transaction that produced them commits.
type effects []func(ctx context.Context)

func (e *effects) add(fn func(ctx context.Context)) {
	*e = append(*e, fn)
}

func (e effects) run(ctx context.Context) {
	for _, fn := range e {
		fn(ctx)
	}
}

// BroadcastResult reports the outcome of a broadcast.
type BroadcastResult struct {
	RequestsCreated    int      `json:"requests_created"`
	CandidateDriverIDs []string `json:"candidate_driver_ids"`
}

// Broadcast offers a trip to every eligible driver. Drivers already holding
// a request for the trip are not offered it again, so repeating a broadcast
// only reaches new candidates.
func (s *Dispatcher) Broadcast(ctx context.Context, tripID string) (*BroadcastResult, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	var result *BroadcastResult
	var fx effects
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		trip, err := tx.Trips().GetByIDForUpdate(ctx, tripID)
		if err != nil {
			return err
		}
		if !dispatchable(trip) {
			return ErrTripNotDispatchable
		}

		drivers, err := s.eligibleDrivers(ctx, tx, trip.VehicleType)
		if err != nil {
			return err
		}
		if len(drivers) == 0 {
			return ErrNoCandidates
		}

		now := s.cfg.Now()
		result = &BroadcastResult{CandidateDriverIDs: make([]string, 0, len(drivers))}
		for _, d := range drivers {
			req := &domain.TripRequest{
				ID:        uuid.NewString(),
				TripID:    trip.ID,
				DriverID:  d.ID,
				Status:    domain.TripRequestPending,
				CreatedAt: now,
				ExpiresAt: now.Add(s.cfg.RequestTTL),
			}
			created, err := tx.Requests().Create(ctx, req)
			if err != nil {
				return err
			}
			result.CandidateDriverIDs = append(result.CandidateDriverIDs, d.ID)
			if created {
				result.RequestsCreated++
				fx.add(func(ctx context.Context) { s.notifications.NotifyTripRequested(ctx, trip, req) })
			}
		}

		if trip.Status != domain.TripStatusDriverRequested {
			trip.Status = domain.TripStatusDriverRequested
			if err := tx.Trips().Update(ctx, trip); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fx.run(ctx)
	s.logger.Info("trip broadcast",
		zap.String("trip_id", tripID),
		zap.Int("requests_created", result.RequestsCreated),
		zap.Int("candidates", len(result.CandidateDriverIDs)),
	)
	return result, nil
}

func dispatchable(trip *domain.Trip) bool {
	if trip.HasDriver() {
		return false
	}
	switch trip.Status {
	case domain.TripStatusPending, domain.TripStatusDriverRequested, domain.TripStatusDriverRejected:
		return true
	default:
		return false
	}
}

func (s *Dispatcher) eligibleDrivers(ctx context.Context, tx repository.Store, vehicleType string) ([]*domain.Driver, error) {
	drivers, err := tx.Drivers().ListAvailable(ctx, vehicleType)
	if err != nil || len(drivers) > 0 || vehicleType == "" || !s.cfg.CapabilityFallback {
		return drivers, err
	}

	has, err := tx.Drivers().HasCapabilities(ctx)
	if err != nil || has {
		return nil, err
	}
	return tx.Drivers().ListAvailable(ctx, "")
}

// ResolveRequest is a driver's answer to an offer.
type ResolveRequest struct {
	TripID   string
	DriverID string
	Decision domain.Decision
}

// Resolve settles a driver's answer. Of any number of concurrent ACCEPTs for
// one trip exactly one wins; the others get ErrAlreadyProcessed. An answer
// after the deadline expires the request, applies the exhaustion rule and
// returns ErrRequestExpired.
func (s *Dispatcher) Resolve(ctx context.Context, req ResolveRequest) (*domain.Trip, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if !req.Decision.Valid() {
		return nil, ErrInvalidDecision
	}

	var trip *domain.Trip
	var expired bool
	var fx effects
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		t, err := tx.Trips().GetByIDForUpdate(ctx, req.TripID)
		if err != nil {
			return err
		}
		offer, err := tx.Requests().GetByTripAndDriver(ctx, req.TripID, req.DriverID)
		if err != nil {
			return err
		}
		if offer.Status != domain.TripRequestPending {
			return ErrAlreadyProcessed
		}

		now := s.cfg.Now()
		if offer.Overdue(now) {
			if _, err := tx.Requests().Transition(ctx, offer.ID, domain.TripRequestExpired, nil); err != nil {
				return err
			}
			fx.add(func(ctx context.Context) { s.notifications.NotifyRequestExpired(ctx, t, offer) })
			if _, err := s.settleIfExhausted(ctx, tx, t, now, &fx); err != nil {
				return err
			}
			trip, expired = t, true
			return nil
		}

		if req.Decision == domain.DecisionAccept {
			err = s.accept(ctx, tx, t, offer, now, &fx)
		} else {
			err = s.reject(ctx, tx, t, offer, now, &fx)
		}
		trip = t
		return err
	})
	if err != nil {
		return nil, err
	}

	fx.run(ctx)
	if expired {
		return nil, ErrRequestExpired
	}
	s.logger.Info("trip request resolved",
		zap.String("trip_id", req.TripID),
		zap.String("driver_id", req.DriverID),
		zap.String("decision", string(req.Decision)),
		zap.String("trip_status", string(trip.Status)),
	)
	return trip, nil
}

func (s *Dispatcher) accept(ctx context.Context, tx repository.Store, trip *domain.Trip, offer *domain.TripRequest, now time.Time, fx *effects) error {
	if trip.HasDriver() || trip.Status.Terminal() {
		return ErrAlreadyProcessed
	}

	moved, err := tx.Requests().Transition(ctx, offer.ID, domain.TripRequestAccepted, &now)
	if err != nil {
		return err
	}
	if !moved {
		return ErrAlreadyProcessed
	}

	assigned, err := tx.Trips().AssignDriver(ctx, trip.ID, offer.DriverID)
	if err != nil {
		return err
	}
	if !assigned {
		return ErrAlreadyProcessed
	}

	trip.DriverID = offer.DriverID
	trip.Status = domain.TripStatusAssigned
	trip.Stamp(domain.TripStatusAssigned, now)
	if err := tx.Trips().Update(ctx, trip); err != nil {
		return err
	}
	if err := tx.Drivers().SetAvailability(ctx, offer.DriverID, false); err != nil {
		return err
	}

	siblings, err := tx.Requests().RejectPending(ctx, trip.ID, offer.ID)
	if err != nil {
		return err
	}

	for _, sib := range siblings {
		fx.add(func(ctx context.Context) { s.notifications.NotifyRequestWithdrawn(ctx, trip, sib) })
	}
	fx.add(func(ctx context.Context) { s.notifications.NotifyDriverAssigned(ctx, trip) })
	return nil
}

func (s *Dispatcher) reject(ctx context.Context, tx repository.Store, trip *domain.Trip, offer *domain.TripRequest, now time.Time, fx *effects) error {
	moved, err := tx.Requests().Transition(ctx, offer.ID, domain.TripRequestRejected, &now)
	if err != nil {
		return err
	}
	if !moved {
		return ErrAlreadyProcessed
	}

	_, err = s.settleIfExhausted(ctx, tx, trip, now, fx)
	return err
}

// settleIfExhausted cancels a trip that is still waiting for a driver once
// none of its requests is PENDING. Every unassigned, non-terminal status
// qualifies: Apply can move a trip off DRIVER_REQUESTED while offers are
// still open. It reports whether the trip was cancelled. The caller must
// hold the trip lock.
func (s *Dispatcher) settleIfExhausted(ctx context.Context, tx repository.Store, trip *domain.Trip, now time.Time, fx *effects) (bool, error) {
	if trip.HasDriver() || trip.Status.Terminal() {
		return false, nil
	}

	pending, err := tx.Requests().CountPending(ctx, trip.ID)
	if err != nil || pending > 0 {
		return false, err
	}

	trip.Status = domain.TripStatusCancelled
	trip.Stamp(domain.TripStatusCancelled, now)
	if err := tx.Trips().Update(ctx, trip); err != nil {
		return false, err
	}

	fx.add(func(ctx context.Context) {
		s.logger.Info("trip cancelled, no driver accepted", zap.String("trip_id", trip.ID))
		s.notifications.NotifyNoDriverAvailable(ctx, trip)
	})
	return true, nil
}

// ApplyRequest is a status change requested by an actor.
type ApplyRequest struct {
	TripID   string
	Status   domain.TripStatus
	Actor    domain.Actor
	Location *domain.Location
}

// Apply moves a trip to a new status following the transition table.
func (s *Dispatcher) Apply(ctx context.Context, req ApplyRequest) (*domain.Trip, error) {
	if err := validateApply(req); err != nil {
		return nil, err
	}

	var trip *domain.Trip
	var fx effects
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		t, err := tx.Trips().GetByIDForUpdate(ctx, req.TripID)
		if err != nil {
			return err
		}
		if err := s.applyLocked(ctx, tx, t, req, &fx); err != nil {
			return err
		}
		trip = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	fx.run(ctx)
	return trip, nil
}

// Cancel cancels a trip on behalf of its customer or an administrator. A
// trip still waiting for a driver is cancelled by force and its open offers
// are withdrawn; any other trip follows the transition table.
func (s *Dispatcher) Cancel(ctx context.Context, tripID string, actor domain.Actor) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	var trip *domain.Trip
	var fx effects
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		t, err := tx.Trips().GetByIDForUpdate(ctx, tripID)
		if err != nil {
			return err
		}
		if t.Status == domain.TripStatusDriverRequested {
			err = s.cancelRequested(ctx, tx, t, actor, &fx)
		} else {
			err = s.applyLocked(ctx, tx, t, ApplyRequest{TripID: tripID, Status: domain.TripStatusCancelled, Actor: actor}, &fx)
		}
		trip = t
		return err
	})
	if err != nil {
		return nil, err
	}

	fx.run(ctx)
	return trip, nil
}

// CancelRequested force-cancels a DRIVER_REQUESTED trip and rejects its outstanding requests.
func (s *Dispatcher) CancelRequested(ctx context.Context, tripID string, actor domain.Actor) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	var trip *domain.Trip
	var fx effects
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		t, err := tx.Trips().GetByIDForUpdate(ctx, tripID)
		if err != nil {
			return err
		}
		trip = t
		return s.cancelRequested(ctx, tx, t, actor, &fx)
	})
	if err != nil {
		return nil, err
	}

	fx.run(ctx)
	return trip, nil
}

func (s *Dispatcher) cancelRequested(ctx context.Context, tx repository.Store, trip *domain.Trip, actor domain.Actor, fx *effects) error {
	if !actor.IsAdmin() && !(actor.Role == domain.RoleCustomer && actor.ID == trip.CustomerID) {
		return ErrForbidden
	}
	if trip.Status != domain.TripStatusDriverRequested {
		return &InvalidTransitionError{From: trip.Status, To: domain.TripStatusCancelled}
	}

	withdrawn, err := tx.Requests().RejectPending(ctx, trip.ID, "")
	if err != nil {
		return err
	}

	now := s.cfg.Now()
	trip.Status = domain.TripStatusCancelled
	trip.Stamp(domain.TripStatusCancelled, now)
	if err := tx.Trips().Update(ctx, trip); err != nil {
		return err
	}

	for _, req := range withdrawn {
		fx.add(func(ctx context.Context) { s.notifications.NotifyRequestWithdrawn(ctx, trip, req) })
	}
	fx.add(func(ctx context.Context) { s.notifications.NotifyTripCancelled(ctx, trip, actor.ID) })
	return nil
}

func validateApply(req ApplyRequest) error {
	if req.TripID == "" {
		return ErrInvalidTripID
	}
	if !req.Status.Valid() {
		return ErrInvalidStatus
	}
	if req.Location != nil && !req.Location.Valid() {
		return ErrInvalidLocation
	}
	return nil
}

// applyLocked performs an actor-driven transition. The caller must hold the trip lock.
func (s *Dispatcher) applyLocked(ctx context.Context, tx repository.Store, trip *domain.Trip, req ApplyRequest, fx *effects) error {
	selfAssign, ok := authorize(trip, req.Actor, req.Status)
	if !ok {
		return ErrForbidden
	}

	from := trip.Status
	if !domain.CanTransition(from, req.Status) {
		return &InvalidTransitionError{From: from, To: req.Status}
	}

	now := s.cfg.Now()
	if selfAssign {
		assigned, err := tx.Trips().AssignDriver(ctx, trip.ID, req.Actor.ID)
		if err != nil {
			return err
		}
		if !assigned {
			return ErrAlreadyProcessed
		}
		trip.DriverID = req.Actor.ID
		if err := tx.Drivers().SetAvailability(ctx, req.Actor.ID, false); err != nil {
			return err
		}
	}

	trip.Status = req.Status
	trip.Stamp(req.Status, now)
	if err := tx.Trips().Update(ctx, trip); err != nil {
		return err
	}

	if req.Status == domain.TripStatusDelivered {
		if err := s.issueInvoice(ctx, tx, trip, now, fx); err != nil {
			return err
		}
	}

	if req.Status.Terminal() && trip.HasDriver() {
		if err := tx.Drivers().SetAvailability(ctx, trip.DriverID, true); err != nil {
			return err
		}
		driverID := trip.DriverID
		fx.add(func(ctx context.Context) { s.stopLiveLocation(ctx, driverID) })
	}

	if req.Location != nil {
		entry := &domain.TrackingLog{
			ID:         uuid.NewString(),
			TripID:     trip.ID,
			DriverID:   trip.DriverID,
			Location:   *req.Location,
			RecordedAt: now,
		}
		if err := tx.Tracking().Append(ctx, entry); err != nil {
			return err
		}
	}

	if req.Status == domain.TripStatusCancelled {
		fx.add(func(ctx context.Context) { s.notifications.NotifyTripCancelled(ctx, trip, req.Actor.ID) })
	} else {
		fx.add(func(ctx context.Context) { s.notifications.NotifyTripStatusChanged(ctx, trip, from) })
	}

	s.logger.Debug("trip status applied",
		zap.String("trip_id", trip.ID),
		zap.String("from", string(from)),
		zap.String("to", string(req.Status)),
		zap.String("actor_id", req.Actor.ID),
	)
	return nil
}

// authorize reports whether actor may move trip to status, and whether the
// move also assigns the acting driver to an unassigned trip.
func authorize(trip *domain.Trip, actor domain.Actor, status domain.TripStatus) (selfAssign, ok bool) {
	switch actor.Role {
	case domain.RoleAdmin:
		return false, true
	case domain.RoleDriver:
		if trip.HasDriver() {
			return false, trip.DriverID == actor.ID
		}
		return status == domain.TripStatusInProgress, status == domain.TripStatusInProgress
	case domain.RoleCustomer:
		return false, status == domain.TripStatusCancelled && trip.CustomerID == actor.ID
	default:
		return false, false
	}
}

func (s *Dispatcher) issueInvoice(ctx context.Context, tx repository.Store, trip *domain.Trip, deliveredAt time.Time, fx *effects) error {
	_, err := tx.Invoices().GetByTripID(ctx, trip.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	inv := s.invoices.Build(trip, deliveredAt)
	if err := tx.Invoices().Create(ctx, inv); err != nil {
		return err
	}
	fx.add(func(ctx context.Context) { s.notifications.NotifyInvoiceIssued(ctx, inv) })
	return nil
}

func (s *Dispatcher) stopLiveLocation(ctx context.Context, driverID string) {
	if s.locations == nil {
		return
	}
	if err := s.locations.RemoveLocation(ctx, driverID); err != nil {
		s.logger.Warn("failed to stop live location", zap.String("driver_id", driverID), zap.Error(err))
	}
}
