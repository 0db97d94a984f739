package handlers

import (
	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/middleware"
	"DealRoom/internal/services"
)

type InvestmentActionRequest struct {
	Action string `json:"action" validate:"required"`
	Notes  string `json:"notes" validate:"max=2000"`
}

type ReviewRequest struct {
	Action    string `json:"action" validate:"required,oneof=approve reject"`
	RiskLevel string `json:"risk_level"`
	Reason    string `json:"reason" validate:"max=2000"`
}

func (r *ReviewRequest) input() services.ReviewInput {
	return services.ReviewInput{
		Action:    services.ReviewAction(r.Action),
		RiskLevel: r.RiskLevel,
		Reason:    r.Reason,
	}
}

type AdminHandler struct {
	escrow *services.EscrowService
	kyc    *services.KYCService
}

func NewAdminHandler(escrow *services.EscrowService, kyc *services.KYCService) *AdminHandler {
	return &AdminHandler{escrow: escrow, kyc: kyc}
}

func page(c *fiber.Ctx, key string, items any, total int64, limit, offset int) error {
	limit, offset = services.PageBounds(limit, offset)
	return c.JSON(fiber.Map{
		key:      items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetInvestments lists commitments filtered by status and funding status.
func (h *AdminHandler) GetInvestments(c *fiber.Ctx) error {
	f := services.CommitmentFilter{
		Status:        c.Query("status"),
		FundingStatus: c.Query("funding_status"),
		Limit:         c.QueryInt("limit", 50),
		Offset:        c.QueryInt("offset", 0),
	}
	rows, total, err := h.escrow.ListCommitments(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return page(c, "investments", rows, total, f.Limit, f.Offset)
}

// UpdateInvestment applies fund, complete, cancel or flag to a commitment.
func (h *AdminHandler) UpdateInvestment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	req := new(InvestmentActionRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	commitment, err := h.escrow.ApplyAdminAction(c.UserContext(), middleware.Viewer(c), id, services.AdminAction(req.Action), req.Notes)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":    "Investment updated",
		"investment": commitment,
	})
}

func (h *AdminHandler) GetEscrow(c *fiber.Ctx) error {
	limit, offset := c.QueryInt("limit", 50), c.QueryInt("offset", 0)
	rows, total, err := h.escrow.ListEscrow(c.UserContext(), c.Query("payment_status"), limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return page(c, "escrow_transactions", rows, total, limit, offset)
}

func (h *AdminHandler) reviewFilter(c *fiber.Ctx) services.ReviewFilter {
	return services.ReviewFilter{
		Status: c.Query("status"),
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
}

func (h *AdminHandler) GetKYCSubmissions(c *fiber.Ctx) error {
	f := h.reviewFilter(c)
	rows, total, err := h.kyc.ListKYC(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return page(c, "submissions", rows, total, f.Limit, f.Offset)
}

func (h *AdminHandler) GetKYCSubmission(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	sub, err := h.kyc.GetKYC(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"submission": sub})
}

func (h *AdminHandler) ReviewKYCSubmission(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	req := new(ReviewRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	sub, err := h.kyc.ReviewKYC(c.UserContext(), middleware.Viewer(c), id, req.input())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":    "KYC submission reviewed",
		"submission": sub,
	})
}

func (h *AdminHandler) GetVerifications(c *fiber.Ctx) error {
	f := h.reviewFilter(c)
	rows, total, err := h.kyc.ListVerifications(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return page(c, "verifications", rows, total, f.Limit, f.Offset)
}

func (h *AdminHandler) GetVerification(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	v, err := h.kyc.GetVerification(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"verification": v})
}

func (h *AdminHandler) ReviewVerification(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	req := new(ReviewRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	v, err := h.kyc.ReviewVerification(c.UserContext(), middleware.Viewer(c), id, req.input())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":      "Verification reviewed",
		"verification": v,
	})
}
