package models

import "time"

// UserStats mirrors engagement data from the identity service (reading
// streak, community memberships). The eligibility context builder reads it
// fresh per claim; the identity sync worker keeps it current.
type UserStats struct {
	ExternalUserID string    `gorm:"primaryKey" json:"external_user_id"`
	ReadingStreak  int       `gorm:"not null;default:0" json:"reading_streak"`
	Communities    []string  `gorm:"serializer:json" json:"communities"`
	SyncedAt       time.Time `gorm:"not null" json:"synced_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MemberOf reports membership in the given community id
func (s *UserStats) MemberOf(communityID string) bool {
	for _, c := range s.Communities {
		if c == communityID {
			return true
		}
	}
	return false
}
