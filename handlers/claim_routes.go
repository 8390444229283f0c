// handlers/claim_routes.go
package handlers

import (
	"nft-campaign-system/middleware"
	"nft-campaign-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupClaimRoutes(app *fiber.App, claimService *services.ClaimService, walletService *services.WalletService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/campaign-claims/:id/claim", claimService.Claim)
	secured.Get("/user/claims", claimService.GetUserClaims)

	secured.Get("/user/wallet", walletService.GetWallet)
	secured.Post("/user/wallet", walletService.BindWallet)
}
