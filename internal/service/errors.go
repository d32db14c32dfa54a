package service

import (
	"errors"
	"fmt"

	"fleet/internal/domain"
)

var (
	// ErrForbidden is returned when the actor may not perform the operation on the trip.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyProcessed is returned when a request was already answered or the race was lost.
	ErrAlreadyProcessed = errors.New("trip request already processed")

	// ErrRequestExpired is returned when a driver answers after the request deadline.
	ErrRequestExpired = errors.New("trip request expired")

	// ErrNoCandidates is returned when no driver is eligible for a trip.
	ErrNoCandidates = errors.New("no eligible drivers")

	// ErrTripNotDispatchable is returned when broadcasting a trip that already has a driver or is finished.
	ErrTripNotDispatchable = errors.New("trip cannot be dispatched in its current state")

	// ErrInvalidTransition is matched by every *InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid trip status transition")

	// ErrInvalidTripID is returned when trip ID is empty.
	ErrInvalidTripID = errors.New("invalid trip id")

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidDecision is returned for anything other than ACCEPT or REJECT.
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrInvalidStatus is returned for an unknown trip status.
	ErrInvalidStatus = errors.New("invalid trip status")

	// ErrInvalidLocation is returned when location coordinates are invalid.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrTripNotActive is returned when recording a location for a trip that is not under way.
	ErrTripNotActive = errors.New("trip is not active")
)

// InvalidTransitionError reports a status change missing from the transition table.
type InvalidTransitionError struct {
	From domain.TripStatus
	To   domain.TripStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid trip status transition from %s to %s", e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) hold.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
