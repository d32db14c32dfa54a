package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet/internal/domain"
	"fleet/internal/repository"
)

func TestStore_WithTxCommitsAndRollsBack(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.Trips().Create(ctx, &domain.Trip{ID: "t1", Status: domain.TripStatusPending}))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx repository.Store) error {
		ok, err := tx.Trips().AssignDriver(ctx, "t1", "d1")
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.Trips().GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, got.DriverID)

	err = store.WithTx(ctx, func(tx repository.Store) error {
		_, err := tx.Trips().AssignDriver(ctx, "t1", "d2")
		return err
	})
	require.NoError(t, err)

	got, err = store.Trips().GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "d2", got.DriverID)
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.Trips().Create(ctx, &domain.Trip{ID: "t1", Status: domain.TripStatusPending}))

	got, err := store.Trips().GetByID(ctx, "t1")
	require.NoError(t, err)
	got.Status = domain.TripStatusDelivered

	again, err := store.Trips().GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TripStatusPending, again.Status)
}

func TestRequestRepository_Lifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	for _, r := range []*domain.TripRequest{
		{ID: "r1", TripID: "t1", DriverID: "d1", Status: domain.TripRequestPending, ExpiresAt: now.Add(-time.Minute)},
		{ID: "r2", TripID: "t1", DriverID: "d2", Status: domain.TripRequestPending, ExpiresAt: now.Add(time.Minute)},
		{ID: "r3", TripID: "t2", DriverID: "d1", Status: domain.TripRequestPending, ExpiresAt: now.Add(-time.Minute)},
	} {
		created, err := store.Requests().Create(ctx, r)
		require.NoError(t, err)
		require.True(t, created)
	}

	created, err := store.Requests().Create(ctx, &domain.TripRequest{ID: "r4", TripID: "t1", DriverID: "d1"})
	require.NoError(t, err)
	assert.False(t, created)

	trips, err := store.Requests().ListTripsWithOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, trips)

	expired, err := store.Requests().ExpireOverdue(ctx, "t1", now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "r1", expired[0].ID)
	assert.Equal(t, domain.TripRequestExpired, expired[0].Status)

	pending, err := store.Requests().CountPending(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	moved, err := store.Requests().Transition(ctx, "r1", domain.TripRequestAccepted, &now)
	require.NoError(t, err)
	assert.False(t, moved)

	rejected, err := store.Requests().RejectPending(ctx, "t1", "")
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "r2", rejected[0].ID)

	mine, err := store.Requests().ListPendingByDriver(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "r3", mine[0].ID)
}

func TestDriverRepository_ActiveTripsAndCapabilities(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	has, err := store.Drivers().HasCapabilities(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.Drivers().Create(ctx, &domain.Driver{ID: "d2", IsAvailable: true, VehicleTypes: []string{"reefer"}}))
	require.NoError(t, store.Drivers().Create(ctx, &domain.Driver{ID: "d1", IsAvailable: true, VehicleTypes: []string{"reefer", "flatbed"}}))
	require.NoError(t, store.Drivers().Create(ctx, &domain.Driver{ID: "d3", IsAvailable: true, VehicleTypes: []string{"flatbed"}}))
	require.NoError(t, store.Trips().Create(ctx, &domain.Trip{ID: "t1", DriverID: "d1", Status: domain.TripStatusInTransit}))
	require.NoError(t, store.Trips().Create(ctx, &domain.Trip{ID: "t2", DriverID: "d1", Status: domain.TripStatusDelivered}))

	got, err := store.Drivers().ListAvailable(ctx, "reefer")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d1", got[0].ID)
	assert.Equal(t, 1, got[0].ActiveTrips)
	assert.Equal(t, "d2", got[1].ID)

	require.NoError(t, store.Drivers().SetAvailability(ctx, "d3", false))
	got, err = store.Drivers().ListAvailable(ctx, "flatbed")
	require.NoError(t, err)
	require.Len(t, got, 1)

	err = store.Drivers().SetAvailability(ctx, "missing", true)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInvoiceRepository_OnePerTrip(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Invoices().Create(ctx, &domain.Invoice{ID: "i1", TripID: "t1"}))
	err := store.Invoices().Create(ctx, &domain.Invoice{ID: "i2", TripID: "t1"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = store.Invoices().GetByTripID(ctx, "t2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
