package models

import "time"

// ClaimStatus tracks a claim attempt from reservation to settlement
type ClaimStatus string

const (
	ClaimStatusReserved  ClaimStatus = "reserved"
	ClaimStatusSubmitted ClaimStatus = "submitted"
	ClaimStatusConfirmed ClaimStatus = "confirmed"
	ClaimStatusFailed    ClaimStatus = "failed"
)

// ClaimRecord is the audit record of one claim attempt. Rows are never
// deleted. Invariant: at most one non-failed record per (campaign, user) —
// enforced by the supply service inside the reservation transaction.
type ClaimRecord struct {
	ID             string      `gorm:"primaryKey;type:uuid" json:"id"`
	CampaignID     string      `gorm:"index:idx_claims_campaign_user;not null" json:"campaign_id"`
	ExternalUserID string      `gorm:"index:idx_claims_campaign_user;index;not null" json:"external_user_id"`
	WalletAddress  string      `json:"wallet_address"` // snapshot at claim time
	Status         ClaimStatus `gorm:"not null;index" json:"status"`
	ReservationID  string      `gorm:"index" json:"reservation_id,omitempty"`
	TxHash         string      `gorm:"index" json:"tx_hash,omitempty"`
	TokenID        *int64      `json:"token_id,omitempty"`
	FailureReason  string      `json:"failure_reason,omitempty"`
	SubmittedAt    *time.Time  `json:"submitted_at,omitempty"`
	SettledAt      *time.Time  `json:"settled_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Settled reports whether the claim reached a terminal state
func (c *ClaimRecord) Settled() bool {
	return c.Status == ClaimStatusConfirmed || c.Status == ClaimStatusFailed
}
