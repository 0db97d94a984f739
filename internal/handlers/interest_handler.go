package handlers

import (
	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/middleware"
	"DealRoom/internal/services"
)

type ExpressInterestRequest struct {
	DealID  uint   `json:"deal_id" validate:"required"`
	Message string `json:"message" validate:"max=2000"`
}

type SendMessageRequest struct {
	Body string `json:"body" validate:"required,max=5000"`
}

// InterestHandler serves introductions and the conversations they open.
type InterestHandler struct {
	interests     *services.InterestService
	conversations *services.ConversationService
}

func NewInterestHandler(interests *services.InterestService, conversations *services.ConversationService) *InterestHandler {
	return &InterestHandler{interests: interests, conversations: conversations}
}

func (h *InterestHandler) Express(c *fiber.Ctx) error {
	req := new(ExpressInterestRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	interest, err := h.interests.Express(c.UserContext(), middleware.Viewer(c), req.DealID, req.Message)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Interest sent to the deal operator",
		"interest": interest,
	})
}

func (h *InterestHandler) List(c *fiber.Ctx) error {
	interests, err := h.interests.List(c.UserContext(), middleware.Viewer(c), c.Query("status"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"interests": interests,
		"count":     len(interests),
	})
}

func (h *InterestHandler) Accept(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	decision, err := h.interests.Accept(c.UserContext(), middleware.Viewer(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(decision)
}

func (h *InterestHandler) Reject(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	decision, err := h.interests.Reject(c.UserContext(), middleware.Viewer(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(decision)
}

func (h *InterestHandler) ListConversations(c *fiber.Ctx) error {
	conversations, err := h.conversations.List(c.UserContext(), middleware.Viewer(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"conversations": conversations,
		"count":         len(conversations),
	})
}

func (h *InterestHandler) Messages(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	messages, err := h.conversations.Messages(c.UserContext(), middleware.Viewer(c), id, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"messages": messages,
		"count":    len(messages),
	})
}

func (h *InterestHandler) SendMessage(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	req := new(SendMessageRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	msg, err := h.conversations.Send(c.UserContext(), middleware.Viewer(c), id, req.Body)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": msg})
}
