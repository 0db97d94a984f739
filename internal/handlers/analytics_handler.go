package handlers

import (
	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/middleware"
	"DealRoom/internal/services"
)

type AnalyticsHandler struct {
	analytics *services.AnalyticsService
}

func NewAnalyticsHandler(analytics *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

func (h *AnalyticsHandler) Investor(c *fiber.Ctx) error {
	stats, err := h.analytics.Investor(c.UserContext(), middleware.Viewer(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

func (h *AnalyticsHandler) Operator(c *fiber.Ctx) error {
	stats, err := h.analytics.Operator(c.UserContext(), middleware.Viewer(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}
