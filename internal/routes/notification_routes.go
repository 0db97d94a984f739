package routes

import (
	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/middleware"
)

func SetupNotificationRoutes(app *fiber.App, d *Deps) {
	notifications := app.Group("/api/notifications")
	authed := d.Auth.Authenticate()

	notifications.Get("/", authed, d.Notifications.GetNotifications)
	notifications.Patch("/read", authed, d.Notifications.MarkRead)
	notifications.Delete("/", authed, d.Notifications.Delete)

	// Service-to-service
	notifications.Post("/send", middleware.InternalSecret(d.InternalSecret), d.Notifications.Send)
}
