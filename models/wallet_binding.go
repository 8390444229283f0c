package models

import (
	"time"

	"gorm.io/gorm"
)

// WalletBinding mirrors the user's active wallet from the identity service.
// At most one active binding per user (last-write-wins). Confirmed claims
// keep their own snapshot address, so rebinding never rewrites history.
type WalletBinding struct {
	ID             string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	ExternalUserID string    `gorm:"uniqueIndex;not null" json:"external_user_id"`
	Chain          string    `gorm:"type:varchar(64);not null" json:"chain"`
	Address        string    `gorm:"type:varchar(128);not null;index" json:"address"`
	IsActive       bool      `gorm:"not null" json:"is_active"`
	BoundAt        time.Time `gorm:"not null" json:"bound_at"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"index"`
}
