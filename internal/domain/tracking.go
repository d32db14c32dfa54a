package domain

import "time"

// Location is a point sample reported by a driver's device.
type Location struct {
	Lat     float64
	Lng     float64
	Speed   float64 // km/h
	Heading float64 // degrees from north
}

// Valid reports whether the coordinates are within range.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// TrackingLog is an immutable position sample recorded while a trip is active.
type TrackingLog struct {
	ID         string
	TripID     string
	DriverID   string
	Location   Location
	RecordedAt time.Time
}
