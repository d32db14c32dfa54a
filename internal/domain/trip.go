package domain

import "time"

// TripStatus represents the operational status of a trip.
type TripStatus string

const (
	TripStatusPending         TripStatus = "PENDING"
	TripStatusDriverRequested TripStatus = "DRIVER_REQUESTED"
	TripStatusDriverAccepted  TripStatus = "DRIVER_ACCEPTED"
	TripStatusDriverRejected  TripStatus = "DRIVER_REJECTED"
	TripStatusAssigned        TripStatus = "ASSIGNED"
	TripStatusInProgress      TripStatus = "IN_PROGRESS"
	TripStatusEnRoutePickup   TripStatus = "EN_ROUTE_PICKUP"
	TripStatusAtPickup        TripStatus = "AT_PICKUP"
	TripStatusPickedUp        TripStatus = "PICKED_UP"
	TripStatusInTransit       TripStatus = "IN_TRANSIT"
	TripStatusAtDestination   TripStatus = "AT_DESTINATION"
	TripStatusDelivered       TripStatus = "DELIVERED"
	TripStatusCancelled       TripStatus = "CANCELLED"
)

// TripStatuses lists every status in lifecycle order.
var TripStatuses = []TripStatus{
	TripStatusPending,
	TripStatusDriverRequested,
	TripStatusDriverAccepted,
	TripStatusDriverRejected,
	TripStatusAssigned,
	TripStatusInProgress,
	TripStatusEnRoutePickup,
	TripStatusAtPickup,
	TripStatusPickedUp,
	TripStatusInTransit,
	TripStatusAtDestination,
	TripStatusDelivered,
	TripStatusCancelled,
}

// AllowedTransitions is the trip state flow for actor-driven status updates.
// Statuses missing from the map have no outgoing transitions.
var AllowedTransitions = map[TripStatus][]TripStatus{
	TripStatusPending:         {TripStatusAssigned, TripStatusCancelled},
	TripStatusDriverRequested: {TripStatusDriverAccepted, TripStatusDriverRejected},
	TripStatusDriverAccepted:  {TripStatusAssigned},
	TripStatusDriverRejected:  {TripStatusPending},
	TripStatusAssigned:        {TripStatusEnRoutePickup, TripStatusInProgress, TripStatusDelivered, TripStatusCancelled},
	TripStatusInProgress:      {TripStatusEnRoutePickup, TripStatusPickedUp, TripStatusInTransit, TripStatusDelivered, TripStatusCancelled},
	TripStatusEnRoutePickup:   {TripStatusAtPickup, TripStatusDelivered, TripStatusCancelled},
	TripStatusAtPickup:        {TripStatusPickedUp, TripStatusDelivered, TripStatusCancelled},
	TripStatusPickedUp:        {TripStatusInTransit, TripStatusDelivered, TripStatusCancelled},
	TripStatusInTransit:       {TripStatusAtDestination, TripStatusDelivered, TripStatusCancelled},
	TripStatusAtDestination:   {TripStatusDelivered, TripStatusCancelled},
}

// CanTransition reports whether a trip may move from one status to another.
func CanTransition(from, to TripStatus) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known trip status.
func (s TripStatus) Valid() bool {
	for _, known := range TripStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing transitions.
func (s TripStatus) Terminal() bool {
	return s == TripStatusDelivered || s == TripStatusCancelled
}

// Trip represents a shipment job.
type Trip struct {
	ID                  string
	TripNumber          string
	CustomerID          string
	DriverID            string // empty until a driver is assigned
	VehicleID           string
	VehicleType         string // required capability, e.g. "refrigerated"; empty means any
	TemperatureRequired string
	Origin              string
	Destination         string
	ScheduledAt         time.Time
	Price               float64
	Currency            string
	Status              TripStatus
	Notes               string
	CreatedAt           time.Time

	AssignedAt      *time.Time
	StartedAt       *time.Time
	EnRouteAt       *time.Time
	AtPickupAt      *time.Time
	PickedUpAt      *time.Time
	InTransitAt     *time.Time
	AtDestinationAt *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
}

// HasDriver reports whether a driver has been assigned.
func (t *Trip) HasDriver() bool {
	return t.DriverID != ""
}

// Stamp records the first entry time for status. Re-entry keeps the existing stamp.
// It reports whether a stamp was written.
func (t *Trip) Stamp(status TripStatus, at time.Time) bool {
	field := t.stampField(status)
	if field == nil || *field != nil {
		return false
	}
	ts := at
	*field = &ts
	return true
}

func (t *Trip) stampField(status TripStatus) **time.Time {
	switch status {
	case TripStatusAssigned:
		return &t.AssignedAt
	case TripStatusInProgress:
		return &t.StartedAt
	case TripStatusEnRoutePickup:
		return &t.EnRouteAt
	case TripStatusAtPickup:
		return &t.AtPickupAt
	case TripStatusPickedUp:
		return &t.PickedUpAt
	case TripStatusInTransit:
		return &t.InTransitAt
	case TripStatusAtDestination:
		return &t.AtDestinationAt
	case TripStatusDelivered:
		return &t.DeliveredAt
	case TripStatusCancelled:
		return &t.CancelledAt
	default:
		return nil
	}
}
