package models

import "time"

// SupplyLedger holds the per-campaign counters. Reserved is a short-lived
// hold for in-flight claims; it is converted to claimed on confirmation or
// released on failure. Mutated only through guarded UPDATEs in the supply
// service, never via Save.
type SupplyLedger struct {
	CampaignID  string    `gorm:"primaryKey;type:uuid" json:"campaign_id"`
	TotalSupply int64     `gorm:"not null" json:"total_supply"`
	Unlimited   bool      `gorm:"not null;default:false" json:"unlimited"`
	Reserved    int64     `gorm:"not null;default:0" json:"reserved"`
	Minted      int64     `gorm:"not null;default:0" json:"minted"`
	Claimed     int64     `gorm:"not null;default:0" json:"claimed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// SupplyReservation is the lease behind a reservation token. A held row past
// ExpiresAt whose claim never reached submitted is swept back to the pool.
type SupplyReservation struct {
	ID             string            `gorm:"primaryKey;type:uuid" json:"id"`
	CampaignID     string            `gorm:"index;not null" json:"campaign_id"`
	ExternalUserID string            `gorm:"not null" json:"external_user_id"`
	Status         ReservationStatus `gorm:"not null;index" json:"status"`
	ExpiresAt      time.Time         `gorm:"index;not null" json:"expires_at"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}
