package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"nft-campaign-system/handlers"
	"nft-campaign-system/middleware"
	"nft-campaign-system/models"
	"nft-campaign-system/services"
	"nft-campaign-system/utils"
	"nft-campaign-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitObjectStore(); err != nil {
		log.Fatal("failed to initialize object store client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Campaign{},
		&models.ClaimRecord{},
		&models.SupplyLedger{},
		&models.SupplyReservation{},
		&models.EscrowToken{},
		&models.WalletBinding{},
		&models.UserStats{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	chainServiceURL := os.Getenv("CHAIN_SERVICE_URL")
	if chainServiceURL == "" {
		log.Fatal("CHAIN_SERVICE_URL environment variable not set")
	}
	identityServiceURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityServiceURL == "" {
		log.Fatal("IDENTITY_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("NFT_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("NFT_SERVICE_TOKEN environment variable not set")
	}

	chainClient := services.NewChainServiceClient(chainServiceURL, serviceToken)

	supplyService := services.NewSupplyService(db)
	eligibilityService := services.NewEligibilityService(db)
	campaignService := services.NewCampaignService(db, supplyService, eligibilityService)
	walletService := services.NewWalletService(db)

	claimService := services.NewClaimService(db, chainClient, eligibilityService, supplyService)
	claimService.Metadata = utils.NewMetadataStore()

	preMintService := services.NewPreMintService(db, chainClient)
	preMintService.Metadata = claimService.Metadata

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconcileWorker := workers.NewReconcileWorker(db, chainClient, supplyService)
	reconcileWorker.Start(ctx)

	identitySyncWorker := workers.NewIdentitySyncWorker(db, identityServiceURL, serviceToken)
	identitySyncWorker.Start(ctx)

	campaignService.StartMaintenanceScheduler()

	handlers.SetupCampaignRoutes(app, campaignService, preMintService)
	handlers.SetupClaimRoutes(app, claimService, walletService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Claim Reconciliation Worker running")
	log.Println("✅ Identity Sync Worker running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
