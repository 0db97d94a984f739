package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"DealRoom/internal/middleware"
	"DealRoom/internal/services"
)

type DealRequest struct {
	Title            *string          `json:"title" validate:"omitempty,max=200"`
	Category         *string          `json:"category" validate:"omitempty,max=100"`
	Description      *string          `json:"description"`
	MinimumCheckSize *string          `json:"minimum_check_size" validate:"omitempty,max=50"`
	TargetRaise      *decimal.Decimal `json:"target_raise"`
	Status           *string          `json:"status"`
	OperatorID       *uint            `json:"operator_id"`
}

func (r *DealRequest) input() services.DealInput {
	return services.DealInput{
		Title:            r.Title,
		Category:         r.Category,
		Description:      r.Description,
		MinimumCheckSize: r.MinimumCheckSize,
		TargetRaise:      r.TargetRaise,
		Status:           r.Status,
		OperatorID:       r.OperatorID,
	}
}

type DealHandler struct {
	deals *services.DealService
}

func NewDealHandler(deals *services.DealService) *DealHandler {
	return &DealHandler{deals: deals}
}

func (h *DealHandler) List(c *fiber.Ctx) error {
	deals, err := h.deals.List(c.UserContext(), middleware.Viewer(c), c.Query("status"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"deals": deals,
		"count": len(deals),
	})
}

func (h *DealHandler) Get(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	deal, err := h.deals.Get(c.UserContext(), middleware.Viewer(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"deal": deal})
}

func (h *DealHandler) Create(c *fiber.Ctx) error {
	req := new(DealRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	deal, err := h.deals.Create(c.UserContext(), middleware.Viewer(c), req.input())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Deal created successfully",
		"deal":    deal,
	})
}

func (h *DealHandler) Update(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	req := new(DealRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	deal, err := h.deals.Update(c.UserContext(), middleware.Viewer(c), id, req.input())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Deal updated successfully",
		"deal":    deal,
	})
}

func (h *DealHandler) Delete(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.deals.Delete(c.UserContext(), middleware.Viewer(c), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Deal deleted successfully"})
}
