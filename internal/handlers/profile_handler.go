package handlers

import (
	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/middleware"
	"DealRoom/internal/services"
)

type UpdateProfileRequest struct {
	FullName           *string  `json:"full_name" validate:"omitempty,max=120"`
	Company            *string  `json:"company" validate:"omitempty,max=120"`
	Bio                *string  `json:"bio" validate:"omitempty,max=2000"`
	CheckSize          *string  `json:"check_size"`
	InvestmentTimeline *string  `json:"investment_timeline"`
	Categories         []string `json:"categories"`
	Tags               []string `json:"tags"`
}

type ProfileHandler struct {
	auth       *services.AuthService
	disclosure *services.DisclosureService
}

func NewProfileHandler(auth *services.AuthService, disclosure *services.DisclosureService) *ProfileHandler {
	return &ProfileHandler{auth: auth, disclosure: disclosure}
}

// Me returns the caller's own profile.
func (h *ProfileHandler) Me(c *fiber.Ctx) error {
	p, err := h.auth.Profile(c.UserContext(), middleware.Viewer(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"user": p})
}

func (h *ProfileHandler) UpdateMe(c *fiber.Ctx) error {
	req := new(UpdateProfileRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	p, err := h.auth.UpdateProfile(c.UserContext(), middleware.Viewer(c), services.ProfileUpdate{
		FullName:           req.FullName,
		Company:            req.Company,
		Bio:                req.Bio,
		CheckSize:          req.CheckSize,
		InvestmentTimeline: req.InvestmentTimeline,
		Categories:         req.Categories,
		Tags:               req.Tags,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Profile updated successfully",
		"user":    p,
	})
}

// Investor returns an investor profile at the disclosure level the caller is entitled to.
func (h *ProfileHandler) Investor(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	view, err := h.disclosure.InvestorProfile(c.UserContext(), middleware.Viewer(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"investor": view})
}
