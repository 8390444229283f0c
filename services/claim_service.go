// services/claim_service.go
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

// ClaimErrorCode distinguishes "try again later" from "you are not eligible"
// from "sold out" for the caller
type ClaimErrorCode string

const (
	ClaimErrValidation        ClaimErrorCode = "validation"
	ClaimErrCampaignNotFound  ClaimErrorCode = "campaign_not_found"
	ClaimErrCampaignNotActive ClaimErrorCode = "campaign_not_active"
	ClaimErrIneligible        ClaimErrorCode = "ineligible"
	ClaimErrExhausted         ClaimErrorCode = "exhausted"
	ClaimErrNoWallet          ClaimErrorCode = "no_wallet_bound"
	ClaimErrChainFailed       ClaimErrorCode = "chain_failed"
	ClaimErrTryAgainLater     ClaimErrorCode = "try_again_later"
	ClaimErrInternal          ClaimErrorCode = "internal"
)

type ClaimError struct {
	Code   ClaimErrorCode `json:"code"`
	Reason string         `json:"reason"`
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("claim failed (%s): %s", e.Code, e.Reason)
}

func (e *ClaimError) HTTPStatus() int {
	switch e.Code {
	case ClaimErrValidation:
		return fiber.StatusBadRequest
	case ClaimErrCampaignNotFound:
		return fiber.StatusNotFound
	case ClaimErrIneligible:
		return fiber.StatusForbidden
	case ClaimErrCampaignNotActive, ClaimErrExhausted:
		return fiber.StatusConflict
	case ClaimErrNoWallet:
		return fiber.StatusPreconditionFailed
	case ClaimErrChainFailed:
		return fiber.StatusBadGateway
	case ClaimErrTryAgainLater:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

const (
	ClaimResultConfirmed = "confirmed"
	ClaimResultPending   = "pending"
)

type ClaimResult struct {
	ClaimID string `json:"claim_id"`
	Status  string `json:"status"` // confirmed | pending
	TokenID *int64 `json:"token_id,omitempty"`
	TxHash  string `json:"transaction_hash,omitempty"`
	// AlreadyClaimed marks an idempotent replay collapsing onto an existing record
	AlreadyClaimed bool `json:"already_claimed,omitempty"`
}

// MetadataPublisher produces the token metadata URI attached to on-demand
// mints (implemented by the object-store uploader in utils)
type MetadataPublisher interface {
	PublishTokenMetadata(ctx context.Context, campaign *models.Campaign, claimID string) (string, error)
}

// ClaimService orchestrates one claim end-to-end: active check, fresh
// eligibility, supply reservation, mint-or-transfer with bounded retries,
// confirmation, and ledger commit/release.
type ClaimService struct {
	DB          *gorm.DB
	Chain       ChainGateway
	Eligibility *EligibilityService
	Supply      *SupplyService
	Metadata    MetadataPublisher

	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	ConfirmTimeout   time.Duration
	MinConfirmations int
}

func NewClaimService(db *gorm.DB, chain ChainGateway, eligibility *EligibilityService, supply *SupplyService) *ClaimService {
	return &ClaimService{
		DB:               db,
		Chain:            chain,
		Eligibility:      eligibility,
		Supply:           supply,
		MaxAttempts:      3,
		BackoffBase:      500 * time.Millisecond,
		BackoffCap:       5 * time.Second,
		ConfirmTimeout:   60 * time.Second,
		MinConfirmations: 1,
	}
}

// Claim handles POST /campaign-claims/:id/claim for the authenticated user
func (s *ClaimService) Claim(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found in context"})
	}
	campaignID := c.Params("id")
	if _, err := uuid.Parse(campaignID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid campaign ID"})
	}

	result, err := s.ExecuteClaim(c.UserContext(), campaignID, userID)
	if err != nil {
		var claimErr *ClaimError
		if errors.As(err, &claimErr) {
			return c.Status(claimErr.HTTPStatus()).JSON(fiber.Map{
				"error": claimErr.Reason,
				"code":  claimErr.Code,
			})
		}
		log.Printf("Claim failed unexpectedly for campaign %s user %s: %v", campaignID, userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "claim failed"})
	}

	status := fiber.StatusOK
	if result.Status == ClaimResultPending {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(result)
}

// ExecuteClaim runs the claim algorithm. Safe to call again after a failed
// outcome; a repeat while a non-failed record exists collapses onto that
// record instead of double-claiming.
func (s *ClaimService) ExecuteClaim(ctx context.Context, campaignID, userID string) (*ClaimResult, error) {
	var campaign models.Campaign
	if err := s.DB.First(&campaign, "id = ?", campaignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ClaimError{Code: ClaimErrCampaignNotFound, Reason: "campaign not found"}
		}
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}

	// Snapshot read, no lock: a campaign pausing mid-claim does not abort
	// in-flight claims, only blocks new ones.
	if campaign.Status != models.CampaignStatusActive {
		return nil, &ClaimError{Code: ClaimErrCampaignNotActive, Reason: "campaign is not accepting claims"}
	}

	// Idempotency fast path: collapse onto an existing non-failed record
	if result, ok := s.existingClaimResult(campaignID, userID); ok {
		return result, nil
	}

	// Authoritative eligibility check — always re-evaluated on fresh context,
	// never trusted from a preview
	claimCtx, err := s.Eligibility.BuildContext(&campaign, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to build claim context: %w", err)
	}
	verdict, err := Evaluate(&campaign, claimCtx)
	if err != nil {
		return nil, fmt.Errorf("eligibility evaluation failed: %w", err)
	}
	if !verdict.Eligible {
		return nil, &ClaimError{Code: ClaimErrIneligible, Reason: verdict.Reason}
	}

	reservation, claim, err := s.Supply.Reserve(campaignID, userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrExhausted):
			return nil, &ClaimError{Code: ClaimErrExhausted, Reason: "this campaign is sold out"}
		case errors.Is(err, ErrAlreadyClaimed):
			if result, ok := s.existingClaimResult(campaignID, userID); ok {
				return result, nil
			}
			return nil, &ClaimError{Code: ClaimErrIneligible, Reason: "you have already claimed this campaign"}
		case errors.Is(err, ErrNoLedger):
			log.Printf("🚨 [ANOMALY] Active campaign %s has no supply ledger", campaignID)
			return nil, &ClaimError{Code: ClaimErrTryAgainLater, Reason: "campaign is not ready for claims, try again later"}
		}
		return nil, fmt.Errorf("reservation failed: %w", err)
	}

	wallet, err := s.resolveWallet(userID)
	if err != nil {
		s.releaseQuietly(reservation.ID, "no wallet bound")
		return nil, err
	}

	return s.submitAndSettle(ctx, &campaign, reservation, claim, wallet)
}

// existingClaimResult returns the idempotent response for a live claim record
func (s *ClaimService) existingClaimResult(campaignID, userID string) (*ClaimResult, bool) {
	var existing models.ClaimRecord
	err := s.DB.Where("campaign_id = ? AND external_user_id = ? AND status <> ?",
		campaignID, userID, models.ClaimStatusFailed).
		First(&existing).Error
	if err != nil {
		return nil, false
	}

	result := &ClaimResult{
		ClaimID:        existing.ID,
		TokenID:        existing.TokenID,
		TxHash:         existing.TxHash,
		AlreadyClaimed: true,
	}
	if existing.Status == models.ClaimStatusConfirmed {
		result.Status = ClaimResultConfirmed
	} else {
		result.Status = ClaimResultPending
	}
	return result, true
}

func (s *ClaimService) resolveWallet(userID string) (string, error) {
	var binding models.WalletBinding
	err := s.DB.Where("external_user_id = ? AND is_active = ?", userID, true).First(&binding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", &ClaimError{Code: ClaimErrNoWallet, Reason: "bind a wallet before claiming"}
		}
		return "", fmt.Errorf("failed to resolve wallet: %w", err)
	}
	return binding.Address, nil
}

// submitAndSettle broadcasts the chain transaction and settles the claim.
// Retries on transient failures reuse the same reservation — they resume,
// never re-reserve.
func (s *ClaimService) submitAndSettle(ctx context.Context, campaign *models.Campaign, reservation *models.SupplyReservation, claim *models.ClaimRecord, wallet string) (*ClaimResult, error) {
	preMinted := campaign.Distribution == models.DistributionPreMint

	var escrowToken *models.EscrowToken
	var metadataURI string
	if preMinted {
		var err error
		escrowToken, err = s.assignEscrowToken(campaign.ID, claim.ID)
		if err != nil {
			log.Printf("🚨 [ANOMALY] Campaign %s reservation succeeded but escrow pool is empty", campaign.ID)
			s.releaseQuietly(reservation.ID, "escrow pool empty")
			return nil, &ClaimError{Code: ClaimErrTryAgainLater, Reason: "claim could not be fulfilled, try again later"}
		}
	} else {
		metadataURI = campaign.ImageURL
		if s.Metadata != nil {
			uri, err := s.Metadata.PublishTokenMetadata(ctx, campaign, claim.ID)
			if err != nil {
				s.releaseQuietly(reservation.ID, "metadata publication failed")
				return nil, &ClaimError{Code: ClaimErrTryAgainLater, Reason: "claim could not be prepared, try again later"}
			}
			metadataURI = uri
		}
	}

	var tokenID int64
	var txHash string
	for attempt := 1; ; attempt++ {
		var err error
		if preMinted {
			tokenID = escrowToken.TokenID
			txHash, err = s.Chain.TransferEscrowed(ctx, escrowToken.TokenID, wallet)
		} else {
			var minted *MintResult
			minted, err = s.Chain.MintTo(ctx, wallet, metadataURI)
			if err == nil {
				tokenID = minted.TokenID
				txHash = minted.TxHash
			}
		}
		if err == nil {
			break
		}

		if errors.Is(err, ErrNetworkUnavailable) && attempt < s.MaxAttempts {
			log.Printf("⚠️ Chain submit attempt %d/%d for claim %s failed: %v", attempt, s.MaxAttempts, claim.ID, err)
			if s.backoff(ctx, attempt) {
				continue
			}
			// caller went away between attempts; nothing was broadcast
			s.unassignEscrowToken(claim.ID)
			s.releaseQuietly(reservation.ID, "claim cancelled before submit")
			return nil, &ClaimError{Code: ClaimErrTryAgainLater, Reason: "the network is busy, try again later"}
		}

		// fatal for this attempt, or retries exhausted
		s.unassignEscrowToken(claim.ID)
		switch {
		case errors.Is(err, ErrInsufficientFunds):
			s.releaseQuietly(reservation.ID, "insufficient escrow funds")
			return nil, &ClaimError{Code: ClaimErrChainFailed, Reason: "campaign funds are depleted, contact the brand"}
		case errors.Is(err, ErrReverted):
			s.logRevertAnomaly(campaign, wallet)
			s.releaseQuietly(reservation.ID, "transaction reverted on submit")
			return nil, &ClaimError{Code: ClaimErrChainFailed, Reason: "the chain rejected this claim"}
		default:
			s.releaseQuietly(reservation.ID, "chain unavailable")
			return nil, &ClaimError{Code: ClaimErrTryAgainLater, Reason: "the network is busy, try again later"}
		}
	}

	now := time.Now()
	if err := s.DB.Model(&models.ClaimRecord{}).
		Where("id = ?", claim.ID).
		Updates(map[string]interface{}{
			"status":         models.ClaimStatusSubmitted,
			"wallet_address": wallet,
			"tx_hash":        txHash,
			"token_id":       tokenID,
			"submitted_at":   now,
		}).Error; err != nil {
		// Transaction is broadcast; the reconciliation sweep will settle it
		log.Printf("❌ Failed to mark claim %s submitted (tx %s): %v", claim.ID, txHash, err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.ConfirmTimeout)
	defer cancel()
	confirmation, err := s.Chain.WaitForConfirmation(confirmCtx, txHash, s.MinConfirmations)
	if err != nil {
		// Broadcast already happened — never release here. The sweep resolves
		// the record from authoritative chain reads.
		log.Printf("⏳ Claim %s left in submitted (tx %s): %v", claim.ID, txHash, err)
		return &ClaimResult{
			ClaimID: claim.ID,
			Status:  ClaimResultPending,
			TokenID: &tokenID,
			TxHash:  txHash,
		}, nil
	}

	if confirmation.Status == TxReverted {
		s.unassignEscrowToken(claim.ID)
		s.logRevertAnomaly(campaign, wallet)
		s.releaseQuietly(reservation.ID, "transaction reverted")
		return nil, &ClaimError{Code: ClaimErrChainFailed, Reason: "the chain rejected this claim"}
	}

	if err := s.Supply.Commit(reservation.ID, tokenID, txHash, !preMinted); err != nil {
		if errors.Is(err, ErrReservationSettled) {
			log.Printf("🚨 [ANOMALY] Reservation %s settled before commit (claim %s)", reservation.ID, claim.ID)
		} else {
			log.Printf("❌ Failed to commit reservation %s for claim %s: %v", reservation.ID, claim.ID, err)
		}
	}

	return &ClaimResult{
		ClaimID: claim.ID,
		Status:  ClaimResultConfirmed,
		TokenID: &tokenID,
		TxHash:  txHash,
	}, nil
}

// backoff sleeps with exponential growth capped at BackoffCap; false when
// the context is cancelled
func (s *ClaimService) backoff(ctx context.Context, attempt int) bool {
	delay := s.BackoffBase << (attempt - 1)
	if delay > s.BackoffCap {
		delay = s.BackoffCap
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// assignEscrowToken takes one unassigned pre-minted token from the pool.
// The guarded update makes each token claimable exactly once.
func (s *ClaimService) assignEscrowToken(campaignID, claimID string) (*models.EscrowToken, error) {
	for i := 0; i < 5; i++ {
		var token models.EscrowToken
		err := s.DB.Where("campaign_id = ? AND claim_id IS NULL", campaignID).
			Order("token_id").First(&token).Error
		if err != nil {
			return nil, fmt.Errorf("no escrow token available: %w", err)
		}
		res := s.DB.Model(&models.EscrowToken{}).
			Where("id = ? AND claim_id IS NULL", token.ID).
			Update("claim_id", claimID)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			return &token, nil
		}
		// lost the race for this token, pick another
	}
	return nil, fmt.Errorf("could not assign an escrow token for campaign %s", campaignID)
}

func (s *ClaimService) unassignEscrowToken(claimID string) {
	if err := s.DB.Model(&models.EscrowToken{}).
		Where("claim_id = ?", claimID).
		Update("claim_id", nil).Error; err != nil {
		log.Printf("⚠️ Failed to return escrow token for claim %s: %v", claimID, err)
	}
}

func (s *ClaimService) releaseQuietly(reservationID, reason string) {
	if err := s.Supply.Release(reservationID, reason); err != nil && !errors.Is(err, ErrReservationSettled) {
		log.Printf("❌ Failed to release reservation %s: %v", reservationID, err)
	}
}

// logRevertAnomaly surfaces off-chain/on-chain eligibility divergence: the
// chain is authoritative, so an eligible verdict followed by a revert is a
// consistency anomaly for operators, not a guess to be papered over.
func (s *ClaimService) logRevertAnomaly(campaign *models.Campaign, wallet string) {
	if campaign.RuleType != models.RuleRewardTypeUniqueness {
		return
	}
	log.Printf("🚨 [ANOMALY] Chain rejected claim for wallet %s on campaign %s: off-chain eligibility said eligible but contract disagreed (reward type %s)",
		wallet, campaign.ID, campaign.Type)
}

// GetUserClaims returns the authenticated user's claim history
func (s *ClaimService) GetUserClaims(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found in context"})
	}

	var claims []models.ClaimRecord
	if err := s.DB.Where("external_user_id = ?", userID).
		Order("created_at DESC").
		Find(&claims).Error; err != nil {
		log.Printf("DB Error fetching user claims: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch claims"})
	}

	return c.JSON(claims)
}
