package handlers

import (
	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/middleware"
	"DealRoom/internal/models"
	"DealRoom/internal/services"
)

type MarkReadRequest struct {
	IDs []uint `json:"ids"`
	All bool   `json:"all"`
}

type DeleteNotificationsRequest struct {
	IDs      []uint `json:"ids"`
	ReadOnly bool   `json:"read_only"`
}

type SendNotificationRequest struct {
	UserID          uint           `json:"user_id"`
	BroadcastAdmins bool           `json:"broadcast_admins"`
	Type            string         `json:"type"`
	Title           string         `json:"title" validate:"required,max=255"`
	Message         string         `json:"message" validate:"required"`
	Link            string         `json:"link"`
	Data            map[string]any `json:"data"`
}

type NotificationHandler struct {
	notify *services.NotificationService
}

func NewNotificationHandler(notify *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notify: notify}
}

// GetNotifications returns the caller's inbox page with unread count.
func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	result, err := h.notify.List(
		c.UserContext(),
		middleware.Viewer(c).ID,
		c.QueryBool("unread_only", false),
		c.QueryInt("limit", 20),
		c.QueryInt("offset", 0),
	)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	req := new(MarkReadRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	n, err := h.notify.MarkRead(c.UserContext(), middleware.Viewer(c).ID, req.IDs, req.All)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Notifications marked as read",
		"updated": n,
	})
}

func (h *NotificationHandler) Delete(c *fiber.Ctx) error {
	req := new(DeleteNotificationsRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	n, err := h.notify.Delete(c.UserContext(), middleware.Viewer(c).ID, req.IDs, req.ReadOnly)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Notifications deleted",
		"deleted": n,
	})
}

// Send creates notifications on behalf of internal services.
func (h *NotificationHandler) Send(c *fiber.Ctx) error {
	req := new(SendNotificationRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	if req.UserID == 0 && !req.BroadcastAdmins {
		return respondError(c, services.BadRequest("user_id or broadcast_admins is required"))
	}
	in := services.NotificationInput{
		Type:    models.NotificationType(req.Type),
		Title:   req.Title,
		Message: req.Message,
		Link:    req.Link,
		Data:    req.Data,
	}
	if in.Type == "" {
		in.Type = models.NotificationSystem
	}

	sent := 0
	if req.UserID != 0 {
		if _, err := h.notify.Create(c.UserContext(), req.UserID, in); err != nil {
			return respondError(c, err)
		}
		sent++
	}
	if req.BroadcastAdmins {
		n, err := h.notify.CreateForAdmins(c.UserContext(), in)
		if err != nil {
			return respondError(c, err)
		}
		sent += n
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Notification sent",
		"sent":    sent,
	})
}
