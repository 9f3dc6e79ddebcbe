package router

import (
	"context"
	"net/http"
	"time"

	"github.com/cuongbtq/print-relay/internal/api/auth"
	"github.com/cuongbtq/print-relay/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// Options configures the parts of the router outside handler dependencies.
type Options struct {
	Verifier       *auth.Verifier
	AllowedOrigins []string
	ServiceName    string
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(opts.AllowedOrigins))

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "print-relay-api"
	}

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := deps.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": serviceName,
				"error":   err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	})

	printRequestHandler := handler.NewPrintRequestHandler(deps)
	deviceHandler := handler.NewDeviceHandler(deps)
	monitorHandler := handler.NewMonitorHandler(deps)

	// API v1 routes, scoped to the token's owner
	v1 := r.Group("/api/v1")
	v1.Use(auth.Middleware(opts.Verifier, deps.Monitors.Suspend, deps.Logger))
	{
		requests := v1.Group("/print-requests")
		{
			requests.POST("", printRequestHandler.Create)
			requests.GET("", printRequestHandler.List)
			requests.GET("/stats", printRequestHandler.Stats)
			requests.GET("/:id", printRequestHandler.Get)
			requests.POST("/:id/resubmit", printRequestHandler.Resubmit)
		}

		v1.GET("/devices", deviceHandler.List)

		monitor := v1.Group("/monitor")
		{
			monitor.GET("/pending", monitorHandler.Pending)
			monitor.GET("/events", monitorHandler.Events)
			monitor.POST("/jobs/:id/print", monitorHandler.Print)
			monitor.POST("/jobs/:id/complete", monitorHandler.Complete)
			monitor.POST("/jobs/:id/cancel", monitorHandler.Cancel)
			monitor.GET("/settings", monitorHandler.GetSettings)
			monitor.PUT("/settings", monitorHandler.UpdateSettings)
		}
	}

	return r
}
