package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleet/internal/domain"
	"fleet/internal/repository"
	"fleet/internal/service"
)

// TripHandler handles HTTP requests for trips.
type TripHandler struct {
	dispatcher *service.Dispatcher
	store      repository.Store
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(dispatcher *service.Dispatcher, store repository.Store) *TripHandler {
	return &TripHandler{dispatcher: dispatcher, store: store}
}

// TripResponse is the HTTP response for trip operations.
type TripResponse struct {
	ID              string  `json:"id"`
	TripNumber      string  `json:"trip_number"`
	CustomerID      string  `json:"customer_id"`
	DriverID        string  `json:"driver_id,omitempty"`
	VehicleType     string  `json:"vehicle_type,omitempty"`
	Origin          string  `json:"origin"`
	Destination     string  `json:"destination"`
	Price           float64 `json:"price"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
	AssignedAt      string  `json:"assigned_at,omitempty"`
	StartedAt       string  `json:"started_at,omitempty"`
	EnRouteAt       string  `json:"en_route_at,omitempty"`
	AtPickupAt      string  `json:"at_pickup_at,omitempty"`
	PickedUpAt      string  `json:"picked_up_at,omitempty"`
	InTransitAt     string  `json:"in_transit_at,omitempty"`
	AtDestinationAt string  `json:"at_destination_at,omitempty"`
	DeliveredAt     string  `json:"delivered_at,omitempty"`
	CancelledAt     string  `json:"cancelled_at,omitempty"`
}

func toTripResponse(t *domain.Trip) TripResponse {
	return TripResponse{
		ID:              t.ID,
		TripNumber:      t.TripNumber,
		CustomerID:      t.CustomerID,
		DriverID:        t.DriverID,
		VehicleType:     t.VehicleType,
		Origin:          t.Origin,
		Destination:     t.Destination,
		Price:           t.Price,
		Currency:        t.Currency,
		Status:          string(t.Status),
		AssignedAt:      formatTime(t.AssignedAt),
		StartedAt:       formatTime(t.StartedAt),
		EnRouteAt:       formatTime(t.EnRouteAt),
		AtPickupAt:      formatTime(t.AtPickupAt),
		PickedUpAt:      formatTime(t.PickedUpAt),
		InTransitAt:     formatTime(t.InTransitAt),
		AtDestinationAt: formatTime(t.AtDestinationAt),
		DeliveredAt:     formatTime(t.DeliveredAt),
		CancelledAt:     formatTime(t.CancelledAt),
	}
}

// TripRequestResponse is the HTTP response for a single offer.
type TripRequestResponse struct {
	ID          string `json:"id"`
	TripID      string `json:"trip_id"`
	DriverID    string `json:"driver_id"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	ExpiresAt   string `json:"expires_at"`
	RespondedAt string `json:"responded_at,omitempty"`
}

func toTripRequestResponses(reqs []*domain.TripRequest) []TripRequestResponse {
	out := make([]TripRequestResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, TripRequestResponse{
			ID:          r.ID,
			TripID:      r.TripID,
			DriverID:    r.DriverID,
			Status:      string(r.Status),
			CreatedAt:   r.CreatedAt.Format(time.RFC3339),
			ExpiresAt:   r.ExpiresAt.Format(time.RFC3339),
			RespondedAt: formatTime(r.RespondedAt),
		})
	}
	return out
}

// LocationBody is a position sample in a request body.
type LocationBody struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Speed   float64 `json:"speed"`
	Heading float64 `json:"heading"`
}

func (l LocationBody) toDomain() domain.Location {
	return domain.Location{Lat: l.Lat, Lng: l.Lng, Speed: l.Speed, Heading: l.Heading}
}

// RespondRequest is the HTTP request body for answering an offer.
type RespondRequest struct {
	Decision string `json:"decision"`
}

// UpdateStatusRequest is the HTTP request body for a status change.
type UpdateStatusRequest struct {
	Status   string        `json:"status"`
	Location *LocationBody `json:"location"`
}

// Broadcast handles POST /v1/trips/:id/broadcast
func (h *TripHandler) Broadcast(c *gin.Context) {
	result, err := h.dispatcher.Broadcast(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, result)
}

// Respond handles POST /v1/trips/:id/respond
func (h *TripHandler) Respond(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	trip, err := h.dispatcher.Resolve(c.Request.Context(), service.ResolveRequest{
		TripID:   c.Param("id"),
		DriverID: a.ID,
		Decision: domain.Decision(req.Decision),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// UpdateStatus handles POST /v1/trips/:id/status
func (h *TripHandler) UpdateStatus(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	apply := service.ApplyRequest{
		TripID: c.Param("id"),
		Status: domain.TripStatus(req.Status),
		Actor:  a,
	}
	if req.Location != nil {
		loc := req.Location.toDomain()
		apply.Location = &loc
	}

	trip, err := h.dispatcher.Apply(c.Request.Context(), apply)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// Cancel handles POST /v1/trips/:id/cancel
func (h *TripHandler) Cancel(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	trip, err := h.dispatcher.Cancel(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// Get handles GET /v1/trips/:id
func (h *TripHandler) Get(c *gin.Context) {
	trip, ok := h.visibleTrip(c)
	if !ok {
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// ListRequests handles GET /v1/trips/:id/requests
func (h *TripHandler) ListRequests(c *gin.Context) {
	trip, ok := h.visibleTrip(c)
	if !ok {
		return
	}

	reqs, err := h.store.Requests().ListByTrip(c.Request.Context(), trip.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"requests": toTripRequestResponses(reqs)})
}

// TrackingResponse is a single tracking sample.
type TrackingResponse struct {
	ID         string       `json:"id"`
	DriverID   string       `json:"driver_id"`
	Location   LocationBody `json:"location"`
	RecordedAt string       `json:"recorded_at"`
}

// ListTracking handles GET /v1/trips/:id/tracking
func (h *TripHandler) ListTracking(c *gin.Context) {
	trip, ok := h.visibleTrip(c)
	if !ok {
		return
	}

	logs, err := h.store.Tracking().ListByTrip(c.Request.Context(), trip.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]TrackingResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, TrackingResponse{
			ID:       l.ID,
			DriverID: l.DriverID,
			Location: LocationBody{
				Lat:     l.Location.Lat,
				Lng:     l.Location.Lng,
				Speed:   l.Location.Speed,
				Heading: l.Location.Heading,
			},
			RecordedAt: l.RecordedAt.Format(time.RFC3339),
		})
	}
	respondJSON(c, http.StatusOK, gin.H{"tracking": out})
}

// visibleTrip loads the trip named in the path if the caller may see it:
// administrators, the trip's customer and its assigned driver.
func (h *TripHandler) visibleTrip(c *gin.Context) (*domain.Trip, bool) {
	a, ok := actor(c)
	if !ok {
		return nil, false
	}

	trip, err := h.store.Trips().GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}

	switch {
	case a.IsAdmin(),
		a.Role == domain.RoleCustomer && a.ID == trip.CustomerID,
		a.Role == domain.RoleDriver && a.ID == trip.DriverID:
		return trip, true
	}
	respondError(c, service.ErrForbidden)
	return nil, false
}
