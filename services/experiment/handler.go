package experiment

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumenlabs/lumen/pkg/cache"
)

// Handler exposes the experiment REST surface.
type Handler struct {
	service *Service
	limiter *cache.RateLimiter
	logger  *slog.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// WithRateLimiter enables per-client rate limiting on submissions.
func (h *Handler) WithRateLimiter(limiter *cache.RateLimiter) *Handler {
	h.limiter = limiter
	return h
}

// Register mounts the routes on the router.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)

	experiments := r.Group("/experiments")
	{
		experiments.GET("/", h.list)
		experiments.POST("/", h.create)
		experiments.GET("/:id/", h.get)
		experiments.GET("/:id/export/csv/", h.exportCSV)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) list(c *gin.Context) {
	summaries, err := h.service.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *Handler) get(c *gin.Context) {
	exp, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, exp)
}

func (h *Handler) create(c *gin.Context) {
	if h.limiter != nil {
		allowed, err := h.limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			h.logger.WarnContext(c.Request.Context(), "rate limiter unavailable", "error", err)
		} else if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "submission rate limit exceeded"})
			return
		}
	}

	var create Create
	if err := c.ShouldBindJSON(&create); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	exp, err := h.service.Submit(c.Request.Context(), create)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, exp)
}

func (h *Handler) exportCSV(c *gin.Context) {
	id := c.Param("id")

	// Resolve before streaming so a missing id still gets a JSON 404.
	if _, err := h.service.Get(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=experiment_%s.csv", id))

	if err := h.service.ExportCSV(c.Request.Context(), id, c.Writer); err != nil {
		h.logger.ErrorContext(c.Request.Context(), "CSV export failed", "experiment_id", id, "error", err)
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.ErrorContext(c.Request.Context(), "request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
