package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"DealRoom/internal/middleware"
	"DealRoom/internal/services"
)

type CreateInvestmentRequest struct {
	DealID uint            `json:"deal_id" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
	Commit bool            `json:"commit"`
	Notes  string          `json:"notes" validate:"max=2000"`
}

type InvestmentHandler struct {
	commitments *services.CommitmentService
}

func NewInvestmentHandler(commitments *services.CommitmentService) *InvestmentHandler {
	return &InvestmentHandler{commitments: commitments}
}

func (h *InvestmentHandler) Create(c *fiber.Ctx) error {
	req := new(CreateInvestmentRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	commitment, err := h.commitments.Create(c.UserContext(), middleware.Viewer(c), services.CreateCommitmentInput{
		DealID: req.DealID,
		Amount: req.Amount,
		Commit: req.Commit,
		Notes:  req.Notes,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Investment created successfully",
		"investment": commitment,
	})
}

// Commit moves a draft commitment to committed.
func (h *InvestmentHandler) Commit(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	commitment, err := h.commitments.Commit(c.UserContext(), middleware.Viewer(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":    "Investment committed",
		"investment": commitment,
	})
}

func (h *InvestmentHandler) ListMine(c *fiber.Ctx) error {
	commitments, err := h.commitments.ListMine(c.UserContext(), middleware.Viewer(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"investments": commitments,
		"count":       len(commitments),
	})
}

func (h *InvestmentHandler) Get(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	commitment, err := h.commitments.Get(c.UserContext(), middleware.Viewer(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"investment": commitment})
}
