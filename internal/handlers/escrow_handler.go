package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"DealRoom/internal/middleware"
	"DealRoom/internal/services"
)

type CreatePaymentIntentRequest struct {
	CommitmentID uint `json:"commitment_id" validate:"required"`
}

type RefundRequest struct {
	EscrowTransactionID uint             `json:"escrow_transaction_id" validate:"required"`
	Amount              *decimal.Decimal `json:"amount"`
}

// EscrowHandler serves the payment-provider endpoints.
type EscrowHandler struct {
	escrow   *services.EscrowService
	provider services.PaymentProvider
}

func NewEscrowHandler(escrow *services.EscrowService, provider services.PaymentProvider) *EscrowHandler {
	return &EscrowHandler{escrow: escrow, provider: provider}
}

// CreatePaymentIntent starts funding a committed investment.
func (h *EscrowHandler) CreatePaymentIntent(c *fiber.Ctx) error {
	req := new(CreatePaymentIntentRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	result, err := h.escrow.CreatePaymentIntent(c.UserContext(), middleware.Viewer(c), req.CommitmentID)
	if err != nil {
		return respondError(c, err)
	}
	status := fiber.StatusCreated
	if result.Reused {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(result)
}

// Refund asks the provider for a refund. Local state changes when the
// provider confirms it through the webhook.
func (h *EscrowHandler) Refund(c *fiber.Ctx) error {
	req := new(RefundRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	result, err := h.escrow.Refund(c.UserContext(), middleware.Viewer(c), req.EscrowTransactionID, req.Amount)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Refund requested",
		"refund":  result,
	})
}

// Webhook applies signed provider events. A 5xx tells the provider to redeliver.
func (h *EscrowHandler) Webhook(c *fiber.Ctx) error {
	signature := c.Get("Stripe-Signature")
	if signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing Stripe-Signature header",
		})
	}
	event, err := h.provider.ParseWebhook(c.UserContext(), c.Body(), signature)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.escrow.HandlePaymentEvent(c.UserContext(), event); err != nil {
		log.Printf("❌ Failed to apply payment event %s: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process event",
		})
	}
	return c.JSON(fiber.Map{"received": true})
}
