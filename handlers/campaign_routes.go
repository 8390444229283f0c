// handlers/campaign_routes.go
package handlers

import (
	"nft-campaign-system/middleware"
	"nft-campaign-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCampaignRoutes(app *fiber.App, campaignService *services.CampaignService, preMintService *services.PreMintService) {
	// 🔓 Public reads — no user context, but still behind Gateway auth
	app.Get("/campaigns", campaignService.GetAllCampaigns)
	app.Get("/campaigns/:id", campaignService.GetCampaign)
	app.Get("/campaigns/:id/check-eligibility/:userId", campaignService.CheckEligibility)

	// 🔐 Secured routes — require user context (userID, roles)
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/campaigns", campaignService.CreateCampaign)
	secured.Post("/campaigns/:id/submit-for-approval", campaignService.SubmitForApproval)
	secured.Post("/campaigns/:id/approve", campaignService.Approve)
	secured.Post("/campaigns/:id/reject", campaignService.Reject)
	secured.Post("/campaigns/:id/pre-mint", preMintService.PreMint)
	secured.Patch("/campaigns/:id/status", campaignService.UpdateStatus)
}
