// services/premint_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"nft-campaign-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PreMintService bulk-mints a campaign's supply to its escrow wallet before
// activation. The pre_minted transition and the escrow pool seeding commit
// in one transaction — a reverted batch mint leaves the campaign untouched.
type PreMintService struct {
	DB       *gorm.DB
	Chain    ChainGateway
	Metadata MetadataPublisher

	ConfirmTimeout   time.Duration
	MinConfirmations int
}

func NewPreMintService(db *gorm.DB, chain ChainGateway) *PreMintService {
	return &PreMintService{
		DB:               db,
		Chain:            chain,
		ConfirmTimeout:   5 * time.Minute,
		MinConfirmations: 1,
	}
}

// PreMint handles POST /campaigns/:id/pre-mint {escrow_wallet}
func (s *PreMintService) PreMint(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid campaign ID"})
	}

	var req struct {
		EscrowWallet string `json:"escrow_wallet"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.EscrowWallet == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "escrow_wallet is required"})
	}

	var campaign models.Campaign
	if err := s.DB.First(&campaign, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Campaign not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	// idempotent replay: the pool is already seeded
	if campaign.Status == models.CampaignStatusPreMinted {
		return c.JSON(fiber.Map{
			"message":        "campaign already pre-minted",
			"tx_hash":        campaign.PreMintTxHash,
			"token_id_start": campaign.TokenIDStart,
			"token_id_end":   campaign.TokenIDEnd,
		})
	}

	batch, err := s.Execute(c.UserContext(), &campaign, req.EscrowWallet)
	if err != nil {
		var invalid *InvalidTransitionError
		if errors.As(err, &invalid) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": invalid.Error()})
		}
		switch {
		case errors.Is(err, ErrReverted):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "pre-mint transaction reverted"})
		case errors.Is(err, ErrInsufficientFunds):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "insufficient funds for pre-mint"})
		case errors.Is(err, ErrNetworkUnavailable), errors.Is(err, ErrConfirmationTimeout):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "chain unavailable, try again later"})
		}
		log.Printf("Pre-mint failed for campaign %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"message":        "campaign pre-minted successfully",
		"tx_hash":        batch.TxHash,
		"token_count":    len(batch.TokenIDs),
		"token_id_start": campaign.TokenIDStart,
		"token_id_end":   campaign.TokenIDEnd,
	})
}

// Execute mints the batch, waits for finality, then commits the status
// transition, escrow metadata, ledger counters, and token pool atomically.
func (s *PreMintService) Execute(ctx context.Context, campaign *models.Campaign, escrowWallet string) (*BatchMintResult, error) {
	// Dry-run the transition before touching the chain; the real status write
	// happens in the DB transaction below.
	probe := *campaign
	probe.EscrowAddress = escrowWallet
	if err := ApplyTransition(&probe, EventPreMint); err != nil {
		return nil, err
	}

	metadataURI := campaign.ImageURL
	if s.Metadata != nil {
		uri, err := s.Metadata.PublishTokenMetadata(ctx, campaign, "escrow-batch")
		if err != nil {
			return nil, fmt.Errorf("metadata publication failed: %w", err)
		}
		metadataURI = uri
	}

	batch, err := s.Chain.MintBatch(ctx, escrowWallet, campaign.TotalSupply, metadataURI)
	if err != nil {
		return nil, err
	}
	if int64(len(batch.TokenIDs)) != campaign.TotalSupply {
		// Partial mints must not seed a pool smaller than the ledger believes
		return nil, fmt.Errorf("batch mint returned %d tokens, expected %d", len(batch.TokenIDs), campaign.TotalSupply)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.ConfirmTimeout)
	defer cancel()
	confirmation, err := s.Chain.WaitForConfirmation(confirmCtx, batch.TxHash, s.MinConfirmations)
	if err != nil {
		return nil, err
	}
	if confirmation.Status == TxReverted {
		return nil, ErrReverted
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		campaign.EscrowAddress = escrowWallet
		if err := ApplyTransition(campaign, EventPreMint); err != nil {
			return err
		}
		campaign.PreMintTxHash = batch.TxHash
		campaign.TokenIDStart = batch.TokenIDs[0]
		campaign.TokenIDEnd = batch.TokenIDs[len(batch.TokenIDs)-1]
		campaign.MintedCount = int64(len(batch.TokenIDs))
		if err := tx.Save(campaign).Error; err != nil {
			return fmt.Errorf("failed to update campaign: %w", err)
		}

		ledger := models.SupplyLedger{
			CampaignID:  campaign.ID,
			TotalSupply: campaign.TotalSupply,
			Unlimited:   false,
			Minted:      int64(len(batch.TokenIDs)),
		}
		if err := tx.Create(&ledger).Error; err != nil {
			return fmt.Errorf("failed to seed supply ledger: %w", err)
		}

		tokens := make([]models.EscrowToken, 0, len(batch.TokenIDs))
		for _, tokenID := range batch.TokenIDs {
			tokens = append(tokens, models.EscrowToken{
				ID:         uuid.NewString(),
				CampaignID: campaign.ID,
				TokenID:    tokenID,
			})
		}
		if err := tx.Create(&tokens).Error; err != nil {
			return fmt.Errorf("failed to seed escrow token pool: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Pre-minted %d token(s) to escrow %s for campaign %s (tx %s)",
		len(batch.TokenIDs), escrowWallet, campaign.ID, batch.TxHash)
	return batch, nil
}
