package routes

import (
	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/middleware"
	"DealRoom/internal/models"
)

// SetupInvestmentRoutes covers commitments and the payment provider endpoints.
func SetupInvestmentRoutes(app *fiber.App, d *Deps) {
	authed := d.Auth.Authenticate()
	investor := middleware.RequireRoles(models.Investor{})

	investments := app.Group("/api/investments")
	investments.Post("/", authed, investor, d.Investments.Create)
	investments.Get("/", authed, investor, d.Investments.ListMine)
	investments.Get("/:id", authed, d.Investments.Get)
	investments.Patch("/:id/commit", authed, investor, d.Investments.Commit)

	stripe := app.Group("/api/stripe")
	stripe.Post("/create-payment-intent", authed, investor, d.Escrow.CreatePaymentIntent)
	stripe.Post("/refund", authed, middleware.AdminOnly(), d.Escrow.Refund)

	// Signed by the provider, no session
	stripe.Post("/webhook", d.Escrow.Webhook)
}
