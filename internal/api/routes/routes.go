package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farebid/dispatch/internal/api/handlers"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, nrApp *newrelic.Application) {
	// Add New Relic middleware if enabled
	if nrApp != nil {
		r.Use(nrgin.Middleware(nrApp))
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	// Prometheus scrape endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// WebSocket connection
		v1.GET("/ws", h.HandleWebSocket)

		// Ride request and bidding endpoints
		requests := v1.Group("/requests")
		{
			requests.POST("", h.CreateRequest)
			requests.GET("/open", h.OpenRequests)
			requests.GET("/:id", h.GetRequest)
			requests.POST("/:id/cancel", h.CancelRequest)
			requests.POST("/:id/bids", h.SubmitBid)
			requests.GET("/:id/bids", h.ListBids)
			requests.POST("/:id/accept", h.AcceptBid)
		}

		// Active ride endpoints
		rides := v1.Group("/rides")
		{
			rides.GET("/:id", h.GetRide)
			rides.POST("/:id/verify-code", h.VerifyCode)
			rides.POST("/:id/complete", h.CompleteRide)
		}

		// Ride chat endpoints
		chats := v1.Group("/chats")
		{
			chats.POST("/:id/messages", h.SendMessage)
			chats.GET("/:id/messages", h.ChatHistory)
			chats.GET("/:id/replay", h.ChatReplay)
			chats.POST("/:id/read", h.AckRead)
		}

		// Driver endpoints
		v1.POST("/drivers/status", h.SetDriverStatus)

		// Ride history
		v1.GET("/history", h.RideHistory)

		// Operator endpoints
		admin := v1.Group("/admin")
		{
			admin.GET("/rides/needs-support", h.NeedsSupport)
		}
	}
}
