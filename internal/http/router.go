// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"flashfood/internal/http/handlers"
	"flashfood/internal/http/middleware"
	"flashfood/internal/infra"
	"flashfood/internal/realtime"
)

type RouterDeps struct {
	Verifier infra.TokenVerifier
	Registry *realtime.Registry
	Dispatch handlers.Dispatcher
	Orders   handlers.OrderService
	Matching handlers.OfferService
	Location handlers.LocationUpdater
	Stats    handlers.StatsRecomputer
	Log      *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Logging(log), middleware.Recovery(log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.Auth(d.Verifier)

	ws := handlers.NewWSHandler(d.Registry, d.Dispatch, d.Location, log)
	r.GET("/ws", auth, ws.Connect)

	api := r.Group("/api", auth)

	dispatchHandler := handlers.NewDispatchHandler(d.Dispatch)
	api.POST("/drivers/:driver_id/orders/:order_id/claim", dispatchHandler.Claim)
	api.POST("/progress/:id/advance", dispatchHandler.Advance)
	api.POST("/orders/:id/tip", dispatchHandler.Tip)

	orderHandler := handlers.NewOrderHandler(d.Orders, d.Matching)
	api.GET("/orders/:id", orderHandler.Get)
	api.PUT("/orders/:id/status", orderHandler.UpdateStatus)
	api.POST("/orders/:id/offer", orderHandler.Offer)

	driverHandler := handlers.NewDriverHandler(d.Location, d.Stats)
	api.PUT("/drivers/:driver_id/location", driverHandler.UpdateLocation)
	api.POST("/drivers/:driver_id/stats/recompute", driverHandler.RecomputeStats)

	return r
}
