package routes

import (
	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/middleware"
	"DealRoom/internal/models"
)

// SetupProfileRoutes covers the caller's own profile, investor views and
// verification submissions.
func SetupProfileRoutes(app *fiber.App, d *Deps) {
	api := app.Group("/api")
	authed := d.Auth.Authenticate()

	api.Get("/me", authed, d.Profiles.Me)
	api.Patch("/me", authed, d.Profiles.UpdateMe)

	// Disclosure level depends on who is asking, anonymous included
	api.Get("/investors/:id", d.Auth.OptionalAuth(), d.Profiles.Investor)

	api.Post("/kyc", authed, middleware.RequireRoles(models.Investor{}, models.Operator{}), d.Verifications.SubmitKYC)
	api.Post("/verifications", authed, middleware.RequireRoles(models.Investor{}), d.Verifications.SubmitVerification)

	api.Get("/investor/analytics", authed, middleware.RequireRoles(models.Investor{}), d.Analytics.Investor)
	api.Get("/operator/analytics", authed, middleware.RequireRoles(models.Operator{}), d.Analytics.Operator)
}
