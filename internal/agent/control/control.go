// Package control serves the standalone agent's local HTTP endpoints.
package control

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/print-relay/internal/agent"
	"github.com/cuongbtq/print-relay/internal/api/router"
	"github.com/gin-gonic/gin"
)

// Agent is the part of the standalone agent exposed over HTTP.
type Agent interface {
	Status(ctx context.Context) agent.Status
	PrintAllPending(ctx context.Context) (agent.BatchResult, error)
}

// Handler handles the control routes
type Handler struct {
	agent  Agent
	logger *slog.Logger
}

// NewRouter builds the control server routes. It is meant to listen on a
// loopback address only.
func NewRouter(a Agent, logger *slog.Logger) *gin.Engine {
	h := &Handler{agent: a, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(router.LoggerMiddleware(logger))

	g := r.Group("/agent")
	{
		g.GET("/status", h.Status)
		g.POST("/print-all", h.PrintAll)
	}

	return r
}

// Status handles GET /agent/status
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.agent.Status(c.Request.Context()))
}

// PrintAll handles POST /agent/print-all
// Blocks until every pending request has been attempted.
func (h *Handler) PrintAll(c *gin.Context) {
	result, err := h.agent.PrintAllPending(c.Request.Context())
	if err != nil {
		h.logger.Error("Batch print failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "store_unavailable",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
