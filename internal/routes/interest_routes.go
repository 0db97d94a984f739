package routes

import (
	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/middleware"
	"DealRoom/internal/models"
)

func SetupInterestRoutes(app *fiber.App, d *Deps) {
	authed := d.Auth.Authenticate()
	operator := middleware.RequireRoles(models.Operator{})

	interests := app.Group("/api/interests")
	interests.Post("/", authed, middleware.RequireRoles(models.Investor{}), d.Interests.Express)
	interests.Get("/", authed, d.Interests.List)
	interests.Patch("/:id/accept", authed, operator, d.Interests.Accept)
	interests.Patch("/:id/reject", authed, operator, d.Interests.Reject)

	conversations := app.Group("/api/conversations")
	conversations.Get("/", authed, d.Interests.ListConversations)
	conversations.Get("/:id/messages", authed, d.Interests.Messages)
	conversations.Post("/:id/messages", authed, d.Interests.SendMessage)
}
