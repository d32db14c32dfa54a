package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fleet/internal/domain"
	"fleet/internal/handler"
	"fleet/internal/middleware"
	internalRedis "fleet/internal/redis"
	"fleet/internal/repository/memory"
	"fleet/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	store  *memory.Store
	tokens *middleware.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memory.NewStore()
	locations := internalRedis.NewLocationStore(client)
	notifications := service.NewNotificationService(service.NewLogNotifier(logger), logger)
	invoices := service.NewInvoiceBuilder(service.InvoiceSettings{TaxRate: 0.15, DueDays: 30, Currency: "SAR"}, nil)
	dispatcher := service.NewDispatcher(store, invoices, notifications, locations,
		service.DispatcherConfig{RequestTTL: 15 * time.Minute, CapabilityFallback: true}, logger)
	sweeper := service.NewSweeper(dispatcher, internalRedis.NewLockStore(client), nil, time.Minute, logger)
	tracking := service.NewTrackingService(store, locations, logger)
	tokens := middleware.NewJWTManager("test-secret", time.Hour)

	router := NewRouter(RouterDeps{
		TripHandler:     handler.NewTripHandler(dispatcher, store),
		DriverHandler:   handler.NewDriverHandler(tracking, store),
		DispatchHandler: handler.NewDispatchHandler(sweeper),
		Tokens:          tokens,
		RedisClient:     client,
		Logger:          logger,
	})

	ctx := context.Background()
	for _, id := range []string{"driver-1", "driver-2"} {
		require.NoError(t, store.Drivers().Create(ctx, &domain.Driver{ID: id, Name: id, IsAvailable: true, VehicleTypes: []string{"reefer"}}))
	}
	require.NoError(t, store.Trips().Create(ctx, &domain.Trip{
		ID:          "trip-1",
		TripNumber:  "TRP-0001",
		CustomerID:  "customer-1",
		VehicleType: "reefer",
		Origin:      "Dammam",
		Destination: "Riyadh",
		Price:       2000,
		Currency:    "SAR",
		Status:      domain.TripStatusPending,
		CreatedAt:   time.Now().UTC(),
	}))

	return &testServer{router: router, store: store, tokens: tokens}
}

func (s *testServer) do(t *testing.T, as domain.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as.ID != "" {
		token, err := s.tokens.Issue(as)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

var (
	adminActor    = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
	customerActor = domain.Actor{ID: "customer-1", Role: domain.RoleCustomer}
	driver1       = domain.Actor{ID: "driver-1", Role: domain.RoleDriver}
	driver2       = domain.Actor{ID: "driver-2", Role: domain.RoleDriver}
)

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, domain.Actor{}, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_RequiresAuth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, domain.Actor{}, http.MethodGet, "/v1/trips/trip-1", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_DispatchFlow(t *testing.T) {
	s := newTestServer(t)

	// Only administrators broadcast.
	w := s.do(t, customerActor, http.MethodPost, "/v1/trips/trip-1/broadcast", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, adminActor, http.MethodPost, "/v1/trips/trip-1/broadcast", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2, decode(t, w)["requests_created"])

	w = s.do(t, driver1, http.MethodGet, "/v1/drivers/driver-1/requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["requests"], 1)

	w = s.do(t, driver2, http.MethodGet, "/v1/drivers/driver-1/requests", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, driver1, http.MethodPost, "/v1/trips/trip-1/respond", gin.H{"decision": "MAYBE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, driver1, http.MethodPost, "/v1/trips/trip-1/respond", gin.H{"decision": "ACCEPT"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "ASSIGNED", body["status"])
	assert.Equal(t, "driver-1", body["driver_id"])

	w = s.do(t, driver2, http.MethodPost, "/v1/trips/trip-1/respond", gin.H{"decision": "ACCEPT"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, adminActor, http.MethodGet, "/v1/trips/trip-1/requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	statuses := map[string]string{}
	for _, r := range decode(t, w)["requests"].([]any) {
		m := r.(map[string]any)
		statuses[m["driver_id"].(string)] = m["status"].(string)
	}
	assert.Equal(t, map[string]string{"driver-1": "ACCEPTED", "driver-2": "REJECTED"}, statuses)

	// Skipping ahead is refused by the transition table.
	w = s.do(t, driver1, http.MethodPost, "/v1/trips/trip-1/status", gin.H{"status": "AT_DESTINATION"})
	assert.Equal(t, http.StatusConflict, w.Code)

	for _, st := range []string{"IN_PROGRESS", "EN_ROUTE_PICKUP"} {
		w = s.do(t, driver1, http.MethodPost, "/v1/trips/trip-1/status", gin.H{
			"status":   st,
			"location": gin.H{"lat": 26.42, "lng": 50.09},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = s.do(t, driver1, http.MethodPost, "/v1/drivers/driver-1/location", gin.H{
		"trip_id": "trip-1", "lat": 26.2, "lng": 50.1, "speed": 80,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, driver1, http.MethodGet, "/v1/drivers/driver-1/location", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, customerActor, http.MethodGet, "/v1/trips/trip-1/tracking", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["tracking"], 3)

	// Another driver can neither view nor move the trip.
	w = s.do(t, driver2, http.MethodGet, "/v1/trips/trip-1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, driver2, http.MethodPost, "/v1/trips/trip-1/status", gin.H{"status": "AT_PICKUP"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, customerActor, http.MethodPost, "/v1/trips/trip-1/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CANCELLED", decode(t, w)["status"])

	// The driver stopped broadcasting once the trip ended.
	w = s.do(t, driver1, http.MethodGet, "/v1/drivers/driver-1/location", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CancelWhileRequested(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, adminActor, http.MethodPost, "/v1/trips/trip-1/broadcast", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, domain.Actor{ID: "customer-2", Role: domain.RoleCustomer}, http.MethodPost, "/v1/trips/trip-1/cancel", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, driver1, http.MethodPost, "/v1/trips/trip-1/cancel", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, customerActor, http.MethodPost, "/v1/trips/trip-1/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CANCELLED", decode(t, w)["status"])

	w = s.do(t, driver1, http.MethodGet, "/v1/drivers/driver-1/requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["requests"])
}

func TestRouter_ErrorMapping(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, adminActor, http.MethodGet, "/v1/trips/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, adminActor, http.MethodPost, "/v1/trips/missing/broadcast", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, driver1, http.MethodPost, "/v1/trips/trip-1/respond", gin.H{"decision": "ACCEPT"})
	assert.Equal(t, http.StatusNotFound, w.Code, "no request was ever made to driver-1")

	w = s.do(t, adminActor, http.MethodPost, "/v1/trips/trip-1/status", gin.H{"status": "FLYING"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_Sweep(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, driver1, http.MethodPost, "/v1/dispatch/sweep", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, adminActor, http.MethodPost, "/v1/dispatch/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["expired_count"])
}
