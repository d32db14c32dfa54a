package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"fleet/internal/domain"
	"fleet/internal/repository"
	"fleet/internal/service"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{repository.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("load trip: %w", repository.ErrNotFound), http.StatusNotFound},
		{service.ErrInvalidDecision, http.StatusBadRequest},
		{service.ErrInvalidStatus, http.StatusBadRequest},
		{service.ErrForbidden, http.StatusForbidden},
		{&service.InvalidTransitionError{From: domain.TripStatusDelivered, To: domain.TripStatusCancelled}, http.StatusConflict},
		{service.ErrAlreadyProcessed, http.StatusConflict},
		{service.ErrTripNotDispatchable, http.StatusConflict},
		{service.ErrTripNotActive, http.StatusConflict},
		{service.ErrRequestExpired, http.StatusGone},
		{service.ErrNoCandidates, http.StatusServiceUnavailable},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mapErrorToHTTPStatus(tt.err), tt.err.Error())
	}
}
