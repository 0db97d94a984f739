package routes

import (
	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/middleware"
)

func SetupAdminRoutes(app *fiber.App, d *Deps) {
	admin := app.Group("/api/admin", d.Auth.Authenticate(), middleware.AdminOnly())

	// Investment management
	admin.Get("/investments", d.Admin.GetInvestments)
	admin.Patch("/investments/:id", d.Admin.UpdateInvestment)
	admin.Get("/escrow", d.Admin.GetEscrow)

	// KYC review
	admin.Get("/kyc", d.Admin.GetKYCSubmissions)
	admin.Get("/kyc/:id", d.Admin.GetKYCSubmission)
	admin.Patch("/kyc/:id", d.Admin.ReviewKYCSubmission)

	// Accreditation review
	admin.Get("/verifications", d.Admin.GetVerifications)
	admin.Get("/verifications/:id", d.Admin.GetVerification)
	admin.Patch("/verifications/:id", d.Admin.ReviewVerification)
}
