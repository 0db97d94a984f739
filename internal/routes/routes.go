package routes

import (
	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/handlers"
	"DealRoom/internal/middleware"
)

// Deps carries the handlers and guards the route tables are built from.
type Deps struct {
	Auth           *middleware.Auth
	InternalSecret string

	Users         *handlers.AuthHandler
	Profiles      *handlers.ProfileHandler
	Deals         *handlers.DealHandler
	Investments   *handlers.InvestmentHandler
	Escrow        *handlers.EscrowHandler
	Admin         *handlers.AdminHandler
	Verifications *handlers.VerificationHandler
	Interests     *handlers.InterestHandler
	Notifications *handlers.NotificationHandler
	Analytics     *handlers.AnalyticsHandler
}

// Setup registers every route group under /api.
func Setup(app *fiber.App, d *Deps) {
	SetupRoutes(app, d)
	SetupProfileRoutes(app, d)
	SetupDealRoutes(app, d)
	SetupInvestmentRoutes(app, d)
	SetupInterestRoutes(app, d)
	SetupNotificationRoutes(app, d)
	SetupAdminRoutes(app, d)
}

func SetupRoutes(app *fiber.App, d *Deps) {
	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", d.Users.Signup)
	auth.Post("/login", d.Users.Login)
	auth.Post("/logout", d.Auth.OptionalAuth(), d.Users.Logout)
	auth.Post("/admin/initialize", d.Users.InitializeAdmin)

	// Health check
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "DealRoom",
		})
	})
}
