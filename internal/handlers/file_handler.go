package handlers

import (
	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/middleware"
	"DealRoom/internal/services"
)

// VerificationHandler accepts KYC documents and accreditation requests as
// multipart uploads.
type VerificationHandler struct {
	kyc *services.KYCService
}

func NewVerificationHandler(kyc *services.KYCService) *VerificationHandler {
	return &VerificationHandler{kyc: kyc}
}

// SubmitKYC expects a "document" file and a "document_type" field.
func (h *VerificationHandler) SubmitKYC(c *fiber.Ctx) error {
	file, err := c.FormFile("document")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No document provided",
		})
	}
	sub, err := h.kyc.SubmitKYC(c.UserContext(), middleware.Viewer(c), c.FormValue("document_type"), file)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "KYC submitted for review",
		"submission": sub,
	})
}

// SubmitVerification expects a "method" field, optional "notes" and an
// optional "evidence" file.
func (h *VerificationHandler) SubmitVerification(c *fiber.Ctx) error {
	// Evidence is optional, so a missing file is not an error.
	file, _ := c.FormFile("evidence")
	req, err := h.kyc.SubmitVerification(c.UserContext(), middleware.Viewer(c), c.FormValue("method"), c.FormValue("notes"), file)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":      "Verification submitted for review",
		"verification": req,
	})
}
