package domain

import "time"

// TripRequestStatus represents the state of an offer made to a driver.
type TripRequestStatus string

const (
	TripRequestPending  TripRequestStatus = "PENDING"
	TripRequestAccepted TripRequestStatus = "ACCEPTED"
	TripRequestRejected TripRequestStatus = "REJECTED"
	TripRequestExpired  TripRequestStatus = "EXPIRED"
)

// Decision is a driver's answer to a trip request.
type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

// Valid reports whether d is ACCEPT or REJECT.
func (d Decision) Valid() bool {
	return d == DecisionAccept || d == DecisionReject
}

// TripRequest is a time-boxed offer of one trip to one driver.
// A request never re-enters PENDING once it has left it.
type TripRequest struct {
	ID          string
	TripID      string
	DriverID    string
	Status      TripRequestStatus
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RespondedAt *time.Time
}

// Overdue reports whether the request is past its deadline at now.
func (r *TripRequest) Overdue(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
