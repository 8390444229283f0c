// services/wallet_service.go
package services

import (
	"errors"
	"log"
	"time"

	"nft-campaign-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WalletService struct {
	DB *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{DB: db}
}

// BindWallet sets the authenticated user's active wallet. Last write wins;
// confirmed claims keep their own snapshot address, so rebinding never
// touches history.
func (s *WalletService) BindWallet(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found in context"})
	}

	var req struct {
		Chain   string `json:"chain"`
		Address string `json:"address"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "address is required"})
	}
	if req.Chain == "" {
		req.Chain = "ethereum"
	}

	binding := models.WalletBinding{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		Chain:          req.Chain,
		Address:        req.Address,
		IsActive:       true,
		BoundAt:        time.Now(),
	}
	if err := s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"chain", "address", "is_active", "bound_at", "updated_at",
		}),
	}).Create(&binding).Error; err != nil {
		log.Printf("DB Error binding wallet: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to bind wallet"})
	}

	return c.JSON(fiber.Map{"message": "wallet bound", "wallet": binding})
}

// GetWallet returns the authenticated user's active wallet binding
func (s *WalletService) GetWallet(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found in context"})
	}

	var binding models.WalletBinding
	if err := s.DB.Where("external_user_id = ? AND is_active = ?", userID, true).First(&binding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No wallet bound"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(binding)
}
