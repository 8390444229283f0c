package models

import (
	"time"

	gorm "gorm.io/gorm"
)

// CampaignType classifies what the issued token grants the holder
type CampaignType string

const (
	CampaignTypeReward      CampaignType = "reward"
	CampaignTypeAccess      CampaignType = "access"
	CampaignTypePhygital    CampaignType = "phygital"
	CampaignTypeAchievement CampaignType = "achievement"
)

type CampaignRarity string

const (
	RarityCommon    CampaignRarity = "common"
	RarityRare      CampaignRarity = "rare"
	RarityEpic      CampaignRarity = "epic"
	RarityLegendary CampaignRarity = "legendary"
)

// DistributionMethod controls how claims are fulfilled on-chain:
// on_demand mints per claim, pre_mint transfers from an escrow pool.
type DistributionMethod string

const (
	DistributionOnDemand DistributionMethod = "on_demand"
	DistributionPreMint  DistributionMethod = "pre_mint"
)

// CampaignStatus is the lifecycle state. Transitions are enforced by the
// state machine in services — never write this column directly from handlers.
type CampaignStatus string

const (
	CampaignStatusDraft           CampaignStatus = "draft"
	CampaignStatusPendingApproval CampaignStatus = "pending_approval"
	CampaignStatusApproved        CampaignStatus = "approved"
	CampaignStatusRejected        CampaignStatus = "rejected"
	CampaignStatusPreMinted       CampaignStatus = "pre_minted"
	CampaignStatusActive          CampaignStatus = "active"
	CampaignStatusPaused          CampaignStatus = "paused"
	CampaignStatusCompleted       CampaignStatus = "completed"
)

// Campaign represents a brand reward program issuing NFTs to claimants
type Campaign struct {
	ID          string         `gorm:"primaryKey;type:uuid" json:"id"`
	BrandID     string         `gorm:"index;not null" json:"brand_id"`
	Name        string         `gorm:"not null" json:"name"`
	Slug        string         `gorm:"uniqueIndex" json:"slug"`
	Description string         `gorm:"type:text" json:"description"`
	ImageURL    string         `gorm:"type:text" json:"image_url"`
	Type        CampaignType   `gorm:"not null" json:"type"`
	Rarity      CampaignRarity `gorm:"not null;default:'common'" json:"rarity"`

	Distribution DistributionMethod `gorm:"not null;default:'on_demand'" json:"distribution"`

	// TotalSupply is ignored when Unlimited is set
	TotalSupply int64 `gorm:"not null;default:0" json:"total_supply"`
	Unlimited   bool  `gorm:"not null;default:false" json:"unlimited"`

	RuleType   RuleType   `gorm:"not null;default:'open'" json:"rule_type"`
	RuleParams RuleParams `gorm:"serializer:json" json:"rule_params"`

	Status CampaignStatus `gorm:"not null;default:'draft';index" json:"status"`

	// Escrow/minting metadata, set by the pre-mint step
	EscrowAddress string `json:"escrow_address,omitempty"`
	PreMintTxHash string `json:"pre_mint_tx_hash,omitempty"`
	TokenIDStart  int64  `json:"token_id_start,omitempty"`
	TokenIDEnd    int64  `json:"token_id_end,omitempty"`

	// Counters mirror the supply ledger for read paths; the ledger row is
	// authoritative during claims. Invariant: claimed <= minted <= total.
	MintedCount   int64 `gorm:"not null;default:0" json:"minted_count"`
	ClaimedCount  int64 `gorm:"not null;default:0" json:"claimed_count"`
	RedeemedCount int64 `gorm:"not null;default:0" json:"redeemed_count"`

	StartAt *time.Time `json:"start_at,omitempty"`
	EndAt   *time.Time `json:"end_at,omitempty"`

	// Approval audit trail
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	ApprovedBy      string     `json:"approved_by,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// RemainingSupply returns how many claims the campaign can still accept.
// Meaningless for unlimited campaigns.
func (c *Campaign) RemainingSupply() int64 {
	if c.Unlimited {
		return -1
	}
	remaining := c.TotalSupply - c.ClaimedCount
	if remaining < 0 {
		return 0
	}
	return remaining
}
