package app

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fleet/internal/domain"
	"fleet/internal/handler"
	"fleet/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TripHandler     *handler.TripHandler
	DriverHandler   *handler.DriverHandler
	DispatchHandler *handler.DispatchHandler
	Tokens          middleware.TokenParser
	RedisClient     *redis.Client // optional; enables Idempotency-Key replay
	NewRelicApp     *newrelic.Application
	Logger          *zap.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
	}))

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}
	router.Use(middleware.RequestLogger(deps.Logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	v1.Use(middleware.Auth(deps.Tokens))
	if deps.RedisClient != nil {
		v1.Use(middleware.Idempotency(deps.RedisClient, deps.Logger))
	}
	{
		adminOnly := middleware.RequireRole(domain.RoleAdmin)

		trips := v1.Group("/trips")
		{
			trips.GET("/:id", deps.TripHandler.Get)
			trips.GET("/:id/requests", deps.TripHandler.ListRequests)
			trips.GET("/:id/tracking", deps.TripHandler.ListTracking)
			trips.POST("/:id/broadcast", adminOnly, deps.TripHandler.Broadcast)
			trips.POST("/:id/respond", middleware.RequireRole(domain.RoleDriver), deps.TripHandler.Respond)
			trips.POST("/:id/status", deps.TripHandler.UpdateStatus)
			trips.POST("/:id/cancel", middleware.RequireRole(domain.RoleCustomer, domain.RoleAdmin), deps.TripHandler.Cancel)
		}

		drivers := v1.Group("/drivers")
		{
			drivers.GET("/:id/requests", deps.DriverHandler.PendingRequests)
			drivers.POST("/:id/location", deps.DriverHandler.RecordLocation)
			drivers.GET("/:id/location", deps.DriverHandler.LiveLocation)
		}

		dispatch := v1.Group("/dispatch", adminOnly)
		{
			dispatch.POST("/sweep", deps.DispatchHandler.Sweep)
		}
	}

	return router
}
