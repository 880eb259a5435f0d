// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"porter/internal/http/handlers"
	"porter/internal/http/middleware"
	"porter/internal/modules/cancellation"
	"porter/internal/modules/order"
	"porter/internal/modules/tracking"
	"porter/internal/ws"
)

type RouterDeps struct {
	Orders       *order.Service
	Cancellation *cancellation.Service
	Tracking     *tracking.Service
	Gateway      *ws.Gateway
}

func NewRouter(deps RouterDeps) http.Handler {
	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery())

	orderHandler := handlers.NewOrderHandler(deps.Orders, deps.Cancellation)
	r.POST("/api/orders", orderHandler.Create)
	r.GET("/api/orders/:id", orderHandler.Get)
	r.POST("/api/orders/:id/cancel", orderHandler.Cancel)

	trackingHandler := handlers.NewTrackingHandler(deps.Tracking, deps.Orders)
	r.GET("/api/orders/:id/location", trackingHandler.Snapshot)
	r.PATCH("/api/orders/:id/location/:role", trackingHandler.UpdateLocation)

	if deps.Gateway != nil {
		r.GET("/ws", deps.Gateway.Handle)
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
