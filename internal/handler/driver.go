package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleet/internal/domain"
	"fleet/internal/repository"
	"fleet/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	tracking *service.TrackingService
	store    repository.Store
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(tracking *service.TrackingService, store repository.Store) *DriverHandler {
	return &DriverHandler{tracking: tracking, store: store}
}

// RecordLocationRequest is the HTTP request body for a position sample.
type RecordLocationRequest struct {
	TripID string `json:"trip_id"`
	LocationBody
}

// PendingRequests handles GET /v1/drivers/:id/requests
func (h *DriverHandler) PendingRequests(c *gin.Context) {
	driverID, ok := h.self(c)
	if !ok {
		return
	}

	reqs, err := h.store.Requests().ListPendingByDriver(c.Request.Context(), driverID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"requests": toTripRequestResponses(reqs)})
}

// RecordLocation handles POST /v1/drivers/:id/location
func (h *DriverHandler) RecordLocation(c *gin.Context) {
	driverID, ok := h.self(c)
	if !ok {
		return
	}

	var req RecordLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	entry, err := h.tracking.Record(c.Request.Context(), service.RecordLocationRequest{
		DriverID: driverID,
		TripID:   req.TripID,
		Location: req.toDomain(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, TrackingResponse{
		ID:         entry.ID,
		DriverID:   entry.DriverID,
		Location:   req.LocationBody,
		RecordedAt: entry.RecordedAt.Format(time.RFC3339),
	})
}

// LiveLocation handles GET /v1/drivers/:id/location
func (h *DriverHandler) LiveLocation(c *gin.Context) {
	driverID, ok := h.self(c)
	if !ok {
		return
	}

	loc, err := h.tracking.LiveLocation(c.Request.Context(), driverID)
	if err != nil {
		respondError(c, err)
		return
	}
	if loc == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "driver is not broadcasting a location"})
		return
	}
	respondJSON(c, http.StatusOK, loc)
}

// self returns the driver named in the path if the caller is that driver or
// an administrator.
func (h *DriverHandler) self(c *gin.Context) (string, bool) {
	a, ok := actor(c)
	if !ok {
		return "", false
	}
	driverID := c.Param("id")
	if a.IsAdmin() || (a.Role == domain.RoleDriver && a.ID == driverID) {
		return driverID, true
	}
	respondError(c, service.ErrForbidden)
	return "", false
}
