package models

import "time"

// EscrowToken is one pre-minted token held by the campaign's escrow wallet.
// ClaimID is set when a claim takes the token; each token is transferred at
// most once.
type EscrowToken struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	CampaignID string    `gorm:"uniqueIndex:idx_escrow_campaign_token;index;not null" json:"campaign_id"`
	TokenID    int64     `gorm:"uniqueIndex:idx_escrow_campaign_token;not null" json:"token_id"`
	ClaimID    *string   `gorm:"index" json:"claim_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
