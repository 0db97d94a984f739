package routes

import (
	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/middleware"
	"DealRoom/internal/models"
)

func SetupDealRoutes(app *fiber.App, d *Deps) {
	deals := app.Group("/api/deals")
	authed := d.Auth.Authenticate()

	deals.Get("/", d.Auth.OptionalAuth(), d.Deals.List)
	deals.Get("/:id", d.Auth.OptionalAuth(), d.Deals.Get)
	deals.Post("/", authed, middleware.RequireRoles(models.Operator{}, models.Admin{}), d.Deals.Create)
	deals.Patch("/:id", authed, middleware.RequireRoles(models.Operator{}, models.Admin{}), d.Deals.Update)
	deals.Delete("/:id", authed, middleware.AdminOnly(), d.Deals.Delete)
}
