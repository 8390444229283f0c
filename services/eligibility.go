// services/eligibility.go
package services

import (
	"errors"
	"fmt"

	"nft-campaign-system/models"

	"gorm.io/gorm"
)

// ClaimContext is the snapshot the evaluator runs against. It must be built
// fresh for the authoritative check inside the orchestrator — a preview
// verdict is never trusted at claim time.
type ClaimContext struct {
	ExternalUserID string
	WalletAddress  string
	ReadingStreak  int
	Communities    []string

	// HasActiveClaim: a non-failed ClaimRecord exists for this campaign
	HasActiveClaim bool
	// HasRewardTypeToken: a confirmed claim of the same campaign type exists,
	// campaign-independent (off-chain mirror of the contract's hasRewardType)
	HasRewardTypeToken bool
	// ClaimedCount: campaign claimed counter at evaluation time. Racy by
	// nature; the supply ledger re-verifies atomically at reservation.
	ClaimedCount int64
}

// Verdict is a structured eligibility result. Business ineligibility is a
// negative verdict, never an error.
type Verdict struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

func eligible() Verdict {
	return Verdict{Eligible: true}
}

func ineligible(reason string) Verdict {
	return Verdict{Eligible: false, Reason: reason}
}

// Evaluate applies the campaign's eligibility rule to the context. Pure and
// deterministic; errors only on malformed rule data.
func Evaluate(campaign *models.Campaign, ctx *ClaimContext) (Verdict, error) {
	if ctx == nil {
		return Verdict{}, fmt.Errorf("claim context is required")
	}
	if ctx.HasActiveClaim {
		return ineligible("you have already claimed this campaign"), nil
	}

	switch campaign.RuleType {
	case models.RuleOpen:
		return eligible(), nil

	case models.RuleRewardTypeUniqueness:
		if ctx.HasRewardTypeToken {
			return ineligible(fmt.Sprintf("you already hold a %s reward", campaign.Type)), nil
		}
		return eligible(), nil

	case models.RuleFirstNClaimants:
		if campaign.Unlimited {
			return Verdict{}, fmt.Errorf("first_n_claimants rule requires a finite supply")
		}
		if ctx.ClaimedCount >= campaign.TotalSupply {
			return ineligible("all claims have been taken"), nil
		}
		return eligible(), nil

	case models.RuleMinStreak:
		threshold := campaign.RuleParams.Threshold
		if threshold <= 0 {
			return Verdict{}, fmt.Errorf("min_streak rule requires a positive threshold")
		}
		if ctx.ReadingStreak < threshold {
			return ineligible(fmt.Sprintf("requires a reading streak of at least %d days", threshold)), nil
		}
		return eligible(), nil

	case models.RuleCommunityMembership:
		communityID := campaign.RuleParams.CommunityID
		if communityID == "" {
			return Verdict{}, fmt.Errorf("community_membership rule requires a community id")
		}
		for _, c := range ctx.Communities {
			if c == communityID {
				return eligible(), nil
			}
		}
		return ineligible("reserved for community members"), nil

	case models.RuleWalletAllowlist:
		if len(campaign.RuleParams.Allowlist) == 0 {
			return Verdict{}, fmt.Errorf("wallet_allowlist rule requires a non-empty allowlist")
		}
		for _, addr := range campaign.RuleParams.Allowlist {
			if addr == ctx.WalletAddress && addr != "" {
				return eligible(), nil
			}
		}
		return ineligible("your wallet is not on the allowlist"), nil
	}

	return Verdict{}, fmt.Errorf("unknown eligibility rule type %q", campaign.RuleType)
}

type EligibilityService struct {
	DB *gorm.DB
}

func NewEligibilityService(db *gorm.DB) *EligibilityService {
	return &EligibilityService{DB: db}
}

// BuildContext assembles a fresh ClaimContext from current DB state. Callers
// must not cache the result across requests.
func (s *EligibilityService) BuildContext(campaign *models.Campaign, userID string) (*ClaimContext, error) {
	ctx := &ClaimContext{ExternalUserID: userID}

	var binding models.WalletBinding
	err := s.DB.Where("external_user_id = ? AND is_active = ?", userID, true).First(&binding).Error
	if err == nil {
		ctx.WalletAddress = binding.Address
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load wallet binding: %w", err)
	}

	var stats models.UserStats
	err = s.DB.Where("external_user_id = ?", userID).First(&stats).Error
	if err == nil {
		ctx.ReadingStreak = stats.ReadingStreak
		ctx.Communities = stats.Communities
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load user stats: %w", err)
	}

	var activeClaims int64
	if err := s.DB.Model(&models.ClaimRecord{}).
		Where("campaign_id = ? AND external_user_id = ? AND status <> ?",
			campaign.ID, userID, models.ClaimStatusFailed).
		Count(&activeClaims).Error; err != nil {
		return nil, fmt.Errorf("failed to count campaign claims: %w", err)
	}
	ctx.HasActiveClaim = activeClaims > 0

	// Confirmed claims for any campaign of the same type
	var typeClaims int64
	if err := s.DB.Model(&models.ClaimRecord{}).
		Joins("JOIN campaigns ON campaigns.id = claim_records.campaign_id").
		Where("claim_records.external_user_id = ? AND claim_records.status = ? AND campaigns.type = ?",
			userID, models.ClaimStatusConfirmed, campaign.Type).
		Count(&typeClaims).Error; err != nil {
		return nil, fmt.Errorf("failed to count reward-type claims: %w", err)
	}
	ctx.HasRewardTypeToken = typeClaims > 0

	var ledger models.SupplyLedger
	err = s.DB.Where("campaign_id = ?", campaign.ID).First(&ledger).Error
	if err == nil {
		ctx.ClaimedCount = ledger.Claimed
	} else if errors.Is(err, gorm.ErrRecordNotFound) {
		ctx.ClaimedCount = campaign.ClaimedCount
	} else {
		return nil, fmt.Errorf("failed to load supply ledger: %w", err)
	}

	return ctx, nil
}
