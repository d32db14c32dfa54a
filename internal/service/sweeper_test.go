package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fleet/internal/domain"
	"fleet/internal/redis"
	"fleet/internal/service"
)

func TestSweepExpired_SoleRequestCancelsTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.addDriver(t, "d1", "refrigerated")
	f.addTrip(t, "t1", "refrigerated")
	_, err := f.dispatcher.Broadcast(ctx, "t1")
	require.NoError(t, err)

	res, err := f.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExpiredCount, "nothing is overdue yet")

	f.clock.Advance(16 * time.Minute)
	res, err = f.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredCount)
	assert.Equal(t, []string{"t1"}, res.CancelledTrips)

	assert.Equal(t, domain.TripRequestExpired, f.request(t, "t1", "d1").Status)
	assert.Equal(t, domain.TripStatusCancelled, f.trip(t, "t1").Status)
	assert.Len(t, f.notifier.ofType(service.NotificationRequestExpired), 1)
	assert.Len(t, f.notifier.ofType(service.NotificationNoDriverAvailable), 1)

	res, err = f.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExpiredCount)
	assert.Len(t, f.notifier.ofType(service.NotificationNoDriverAvailable), 1)
}

func TestSweepExpired_CancelsTripMovedBackToPending(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.addDriver(t, "d1", "refrigerated")
	f.addTrip(t, "t1", "refrigerated")
	_, err := f.dispatcher.Broadcast(ctx, "t1")
	require.NoError(t, err)

	for _, st := range []domain.TripStatus{domain.TripStatusDriverRejected, domain.TripStatusPending} {
		_, err := f.dispatcher.Apply(ctx, service.ApplyRequest{TripID: "t1", Status: st, Actor: admin})
		require.NoError(t, err)
	}

	f.clock.Advance(16 * time.Minute)
	res, err := f.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredCount)
	assert.Equal(t, []string{"t1"}, res.CancelledTrips)
	assert.Equal(t, domain.TripStatusCancelled, f.trip(t, "t1").Status)
}

func TestSweepExpired_LeavesTripWithPendingSibling(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.addDriver(t, "d1", "refrigerated")
	f.addTrip(t, "t1", "refrigerated")
	_, err := f.dispatcher.Broadcast(ctx, "t1")
	require.NoError(t, err)

	// d2 joins through a later broadcast, so its deadline is later.
	f.clock.Advance(10 * time.Minute)
	f.addDriver(t, "d2", "refrigerated")
	_, err = f.dispatcher.Broadcast(ctx, "t1")
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	res, err := f.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredCount)
	assert.Empty(t, res.CancelledTrips)
	assert.Equal(t, domain.TripStatusDriverRequested, f.trip(t, "t1").Status)

	_, err = f.dispatcher.Resolve(ctx, service.ResolveRequest{TripID: "t1", DriverID: "d2", Decision: domain.DecisionAccept})
	require.NoError(t, err)
}

func TestSweepExpired_DoesNotTouchAssignedTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.assigned(t, "t1", "d1")

	f.clock.Advance(time.Hour)
	res, err := f.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExpiredCount)
	assert.Equal(t, domain.TripStatusAssigned, f.trip(t, "t1").Status)
}

func TestSweepExpired_RacingAcceptsStayConsistent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.addDriver(t, "d1", "refrigerated")
	f.addDriver(t, "d2", "refrigerated")
	f.addTrip(t, "t1", "refrigerated")
	_, err := f.dispatcher.Broadcast(ctx, "t1")
	require.NoError(t, err)
	f.clock.Advance(15 * time.Minute)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = f.dispatcher.Resolve(ctx, service.ResolveRequest{TripID: "t1", DriverID: "d1", Decision: domain.DecisionAccept})
	}()
	go func() {
		defer wg.Done()
		f.clock.Advance(time.Second)
		_, _ = f.sweeper.SweepExpired(ctx)
	}()
	wg.Wait()

	trip := f.trip(t, "t1")
	reqs, err := f.store.Requests().ListByTrip(ctx, "t1")
	require.NoError(t, err)

	accepted := 0
	for _, r := range reqs {
		assert.NotEqual(t, domain.TripRequestPending, r.Status)
		if r.Status == domain.TripRequestAccepted {
			accepted++
		}
	}
	if accepted == 1 {
		assert.Equal(t, domain.TripStatusAssigned, trip.Status)
		assert.Equal(t, "d1", trip.DriverID)
	} else {
		assert.Equal(t, domain.TripStatusCancelled, trip.Status)
		assert.Empty(t, trip.DriverID)
	}
}

func TestSweeper_RunHoldsLeaderLock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locks := redis.NewLockStore(client)

	f.addDriver(t, "d1", "refrigerated")
	f.addTrip(t, "t1", "refrigerated")
	_, err := f.dispatcher.Broadcast(context.Background(), "t1")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	// Another replica holds the lock: this one must not sweep.
	held, err := locks.Acquire(context.Background(), "dispatch:sweeper", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, held)

	sweeper := service.NewSweeper(f.dispatcher, locks, nil, 10*time.Millisecond, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, domain.TripStatusDriverRequested, f.trip(t, "t1").Status)

	require.NoError(t, locks.Release(context.Background(), held))
	assert.Eventually(t, func() bool {
		trip, err := f.store.Trips().GetByID(context.Background(), "t1")
		return err == nil && trip.Status == domain.TripStatusCancelled
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
