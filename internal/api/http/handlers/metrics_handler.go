package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/repository"
)

// MetricsHandler exposes windowed per-channel pipeline statistics.
type MetricsHandler struct {
	metrics repository.MetricsRepository
}

// NewMetricsHandler constructs handler.
func NewMetricsHandler(metrics repository.MetricsRepository) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Window handles GET /metrics?channel=email&from=...&to=...
// The window defaults to the trailing 24 hours.
func (h *MetricsHandler) Window(c *fiber.Ctx) error {
	now := time.Now()
	from := now.Add(-24 * time.Hour)
	to := now

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid from timestamp")
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid to timestamp")
		}
		to = parsed
	}
	if !to.After(from) {
		return fiber.NewError(http.StatusBadRequest, "window must end after it starts")
	}

	var channel *domain.Channel
	if raw := c.Query("channel"); raw != "" {
		parsed, err := domain.ParseChannel(raw)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "unknown channel")
		}
		channel = &parsed
	}

	stats, err := h.metrics.Aggregate(c.UserContext(), channel, from, to)
	if err != nil {
		return err
	}
	if stats == nil {
		stats = []repository.ChannelWindowStats{}
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"from":     from,
			"to":       to,
			"channels": stats,
		},
	})
}
