package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet/internal/service"
)

// DispatchHandler exposes operational dispatch endpoints.
type DispatchHandler struct {
	sweeper *service.Sweeper
}

// NewDispatchHandler creates a new DispatchHandler.
func NewDispatchHandler(sweeper *service.Sweeper) *DispatchHandler {
	return &DispatchHandler{sweeper: sweeper}
}

// Sweep handles POST /v1/dispatch/sweep
func (h *DispatchHandler) Sweep(c *gin.Context) {
	result, err := h.sweeper.SweepExpired(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, result)
}
