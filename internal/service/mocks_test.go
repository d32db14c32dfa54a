package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fleet/internal/domain"
	"fleet/internal/redis"
	"fleet/internal/repository"
	"fleet/internal/repository/memory"
	"fleet/internal/service"
)

// recordingNotifier captures every notification it is handed.
type recordingNotifier struct {
	mu    sync.Mutex
	sent  []service.Notification
	Error error
}

func (r *recordingNotifier) Notify(_ context.Context, n service.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.Error
}

func (r *recordingNotifier) ofType(typ service.NotificationType) []service.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []service.Notification
	for _, n := range r.sent {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// mockLocationStore is an in-memory LocationStoreInterface.
type mockLocationStore struct {
	mu        sync.Mutex
	locations map[string]redis.DriverLocation

	RemoveCallCount int32
}

func newMockLocationStore() *mockLocationStore {
	return &mockLocationStore{locations: make(map[string]redis.DriverLocation)}
}

func (m *mockLocationStore) UpdateLocation(_ context.Context, driverID string, lat, lng float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[driverID] = redis.DriverLocation{DriverID: driverID, Lat: lat, Lng: lng}
	return nil
}

func (m *mockLocationStore) GetLocation(_ context.Context, driverID string) (*redis.DriverLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.locations[driverID]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

func (m *mockLocationStore) RemoveLocation(_ context.Context, driverID string) error {
	atomic.AddInt32(&m.RemoveCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locations, driverID)
	return nil
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixture wires a Dispatcher over the in-memory store.
type fixture struct {
	store      *memory.Store
	notifier   *recordingNotifier
	locations  *mockLocationStore
	clock      *fakeClock
	dispatcher *service.Dispatcher
	sweeper    *service.Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	f := &fixture{
		store:     memory.NewStore(),
		notifier:  &recordingNotifier{},
		locations: newMockLocationStore(),
		clock:     &fakeClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)},
	}
	f.dispatcher = f.newDispatcher(t, f.store)
	f.sweeper = service.NewSweeper(f.dispatcher, nil, nil, time.Minute, logger)
	return f
}

// newDispatcher builds a dispatcher sharing the fixture's sinks and clock over store.
func (f *fixture) newDispatcher(t *testing.T, store repository.Store) *service.Dispatcher {
	t.Helper()
	logger := zaptest.NewLogger(t)
	invoices := service.NewInvoiceBuilder(service.InvoiceSettings{
		TaxRate:     0.15,
		HandlingFee: 50,
		DueDays:     30,
		Currency:    "SAR",
	}, nil)
	return service.NewDispatcher(
		store,
		invoices,
		service.NewNotificationService(f.notifier, logger),
		f.locations,
		service.DispatcherConfig{RequestTTL: 15 * time.Minute, CapabilityFallback: true, Now: f.clock.Now},
		logger,
	)
}

// failingInvoiceStore fails every invoice insert, inside or outside a transaction.
type failingInvoiceStore struct {
	repository.Store
}

func (s failingInvoiceStore) Invoices() repository.InvoiceRepository {
	return failingInvoiceRepo{s.Store.Invoices()}
}

func (s failingInvoiceStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.WithTx(ctx, func(tx repository.Store) error {
		return fn(failingInvoiceStore{tx})
	})
}

type failingInvoiceRepo struct {
	repository.InvoiceRepository
}

func (failingInvoiceRepo) Create(context.Context, *domain.Invoice) error {
	return errInvoiceStore
}

var errInvoiceStore = errors.New("invoice store unavailable")

func (f *fixture) addDriver(t *testing.T, id string, vehicleTypes ...string) {
	t.Helper()
	require.NoError(t, f.store.Drivers().Create(context.Background(), &domain.Driver{
		ID:           id,
		Name:         "Driver " + id,
		IsAvailable:  true,
		VehicleTypes: vehicleTypes,
	}))
}

func (f *fixture) addTrip(t *testing.T, id, vehicleType string) {
	t.Helper()
	require.NoError(t, f.store.Trips().Create(context.Background(), &domain.Trip{
		ID:          id,
		TripNumber:  "TRP-" + id,
		CustomerID:  "customer-1",
		VehicleType: vehicleType,
		Origin:      "Jeddah",
		Destination: "Riyadh",
		Price:       1000,
		Currency:    "SAR",
		Status:      domain.TripStatusPending,
		CreatedAt:   f.clock.Now(),
	}))
}

func (f *fixture) trip(t *testing.T, id string) *domain.Trip {
	t.Helper()
	trip, err := f.store.Trips().GetByID(context.Background(), id)
	require.NoError(t, err)
	return trip
}

func (f *fixture) driver(t *testing.T, id string) *domain.Driver {
	t.Helper()
	d, err := f.store.Drivers().GetByID(context.Background(), id)
	require.NoError(t, err)
	return d
}

func (f *fixture) request(t *testing.T, tripID, driverID string) *domain.TripRequest {
	t.Helper()
	r, err := f.store.Requests().GetByTripAndDriver(context.Background(), tripID, driverID)
	require.NoError(t, err)
	return r
}

// assigned creates tripID and lets driverID win it, leaving the trip ASSIGNED.
func (f *fixture) assigned(t *testing.T, tripID, driverID string) {
	t.Helper()
	ctx := context.Background()
	f.addDriver(t, driverID, "flatbed")
	f.addTrip(t, tripID, "flatbed")
	_, err := f.dispatcher.Broadcast(ctx, tripID)
	require.NoError(t, err)
	_, err = f.dispatcher.Resolve(ctx, service.ResolveRequest{TripID: tripID, DriverID: driverID, Decision: domain.DecisionAccept})
	require.NoError(t, err)
}

var admin = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
