// services/supply_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"nft-campaign-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrExhausted: no remaining supply; the N+1th concurrent caller for N
	// remaining slots always gets this, never a false success
	ErrExhausted = errors.New("campaign supply exhausted")
	// ErrAlreadyClaimed: a non-failed claim record exists for this user
	ErrAlreadyClaimed = errors.New("user already has an active claim for this campaign")
	// ErrNoLedger: campaign has no supply ledger row (not activated)
	ErrNoLedger = errors.New("no supply ledger for campaign")
	// ErrReservationSettled: the reservation was already committed or released
	ErrReservationSettled = errors.New("reservation already settled")
)

// SupplyService is the sole serialization point for claim capacity. The
// guarded single-statement UPDATE on the ledger row makes reservation
// success linearizable; everything downstream of a successful reservation
// runs without further locking.
type SupplyService struct {
	DB *gorm.DB
	// LeaseTTL bounds how long an uncommitted reservation can hold capacity
	LeaseTTL time.Duration
}

func NewSupplyService(db *gorm.DB) *SupplyService {
	return &SupplyService{
		DB:       db,
		LeaseTTL: 5 * time.Minute,
	}
}

// EnsureLedger creates the counters row for a campaign if missing
func (s *SupplyService) EnsureLedger(campaign *models.Campaign) error {
	ledger := models.SupplyLedger{
		CampaignID:  campaign.ID,
		TotalSupply: campaign.TotalSupply,
		Unlimited:   campaign.Unlimited,
		Minted:      campaign.MintedCount,
		Claimed:     campaign.ClaimedCount,
	}
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}},
		DoNothing: true,
	}).Create(&ledger).Error
}

// Reserve atomically takes one slot of remaining supply and creates the
// claim record in `reserved` status. The duplicate-claim check runs inside
// the same transaction, serialized per campaign by the ledger row update, so
// the one-active-claim-per-user invariant holds under concurrency.
func (s *SupplyService) Reserve(campaignID, userID string) (*models.SupplyReservation, *models.ClaimRecord, error) {
	var reservation models.SupplyReservation
	var claim models.ClaimRecord

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SupplyLedger{}).
			Where("campaign_id = ? AND (unlimited = ? OR reserved + claimed < total_supply)", campaignID, true).
			Update("reserved", gorm.Expr("reserved + 1"))
		if res.Error != nil {
			return fmt.Errorf("failed to reserve supply: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var ledger models.SupplyLedger
			if err := tx.Where("campaign_id = ?", campaignID).First(&ledger).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNoLedger
				}
				return err
			}
			return ErrExhausted
		}

		var activeClaims int64
		if err := tx.Model(&models.ClaimRecord{}).
			Where("campaign_id = ? AND external_user_id = ? AND status <> ?",
				campaignID, userID, models.ClaimStatusFailed).
			Count(&activeClaims).Error; err != nil {
			return fmt.Errorf("failed to check existing claims: %w", err)
		}
		if activeClaims > 0 {
			// rollback undoes the reserved increment
			return ErrAlreadyClaimed
		}

		reservation = models.SupplyReservation{
			ID:             uuid.NewString(),
			CampaignID:     campaignID,
			ExternalUserID: userID,
			Status:         models.ReservationHeld,
			ExpiresAt:      time.Now().Add(s.LeaseTTL),
		}
		if err := tx.Create(&reservation).Error; err != nil {
			return fmt.Errorf("failed to create reservation: %w", err)
		}

		claim = models.ClaimRecord{
			ID:             uuid.NewString(),
			CampaignID:     campaignID,
			ExternalUserID: userID,
			Status:         models.ClaimStatusReserved,
			ReservationID:  reservation.ID,
		}
		if err := tx.Create(&claim).Error; err != nil {
			return fmt.Errorf("failed to create claim record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &reservation, &claim, nil
}

// Commit converts a held reservation into a confirmed claim. mintedNew marks
// on-demand mints, which also bump the minted counter.
func (s *SupplyService) Commit(reservationID string, tokenID int64, txHash string, mintedNew bool) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SupplyReservation{}).
			Where("id = ? AND status = ?", reservationID, models.ReservationHeld).
			Update("status", models.ReservationCommitted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrReservationSettled
		}

		var reservation models.SupplyReservation
		if err := tx.Where("id = ?", reservationID).First(&reservation).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"reserved": gorm.Expr("reserved - 1"),
			"claimed":  gorm.Expr("claimed + 1"),
		}
		if mintedNew {
			updates["minted"] = gorm.Expr("minted + 1")
		}
		ledgerRes := tx.Model(&models.SupplyLedger{}).
			Where("campaign_id = ? AND reserved > 0", reservation.CampaignID).
			Updates(updates)
		if ledgerRes.Error != nil {
			return ledgerRes.Error
		}
		if ledgerRes.RowsAffected == 0 {
			return fmt.Errorf("supply ledger counters out of sync for campaign %s", reservation.CampaignID)
		}

		now := time.Now()
		if err := tx.Model(&models.ClaimRecord{}).
			Where("reservation_id = ?", reservationID).
			Updates(map[string]interface{}{
				"status":     models.ClaimStatusConfirmed,
				"token_id":   tokenID,
				"tx_hash":    txHash,
				"settled_at": now,
			}).Error; err != nil {
			return err
		}

		// keep the campaign's read-path mirror in step
		campaignUpdates := map[string]interface{}{
			"claimed_count": gorm.Expr("claimed_count + 1"),
		}
		if mintedNew {
			campaignUpdates["minted_count"] = gorm.Expr("minted_count + 1")
		}
		return tx.Model(&models.Campaign{}).
			Where("id = ?", reservation.CampaignID).
			Updates(campaignUpdates).Error
	})
}

// Release returns a held reservation's slot to the pool and fails the claim
func (s *SupplyService) Release(reservationID, reason string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SupplyReservation{}).
			Where("id = ? AND status = ?", reservationID, models.ReservationHeld).
			Update("status", models.ReservationReleased)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrReservationSettled
		}

		var reservation models.SupplyReservation
		if err := tx.Where("id = ?", reservationID).First(&reservation).Error; err != nil {
			return err
		}

		ledgerRes := tx.Model(&models.SupplyLedger{}).
			Where("campaign_id = ? AND reserved > 0", reservation.CampaignID).
			Update("reserved", gorm.Expr("reserved - 1"))
		if ledgerRes.Error != nil {
			return ledgerRes.Error
		}
		if ledgerRes.RowsAffected == 0 {
			return fmt.Errorf("supply ledger counters out of sync for campaign %s", reservation.CampaignID)
		}

		now := time.Now()
		return tx.Model(&models.ClaimRecord{}).
			Where("reservation_id = ?", reservationID).
			Updates(map[string]interface{}{
				"status":         models.ClaimStatusFailed,
				"failure_reason": reason,
				"settled_at":     now,
			}).Error
	})
}

// ReleaseExpired sweeps held reservations past their lease whose claim never
// reached `submitted`, so crashed claims cannot permanently lock capacity.
// Claims already broadcast are left for the reconciliation sweep — the chain
// has the final word on those.
func (s *SupplyService) ReleaseExpired() int {
	var expired []models.SupplyReservation
	if err := s.DB.Where("status = ? AND expires_at < ?", models.ReservationHeld, time.Now()).
		Find(&expired).Error; err != nil {
		log.Printf("[SUPPLY] ❌ Failed to list expired reservations: %v", err)
		return 0
	}

	released := 0
	for _, r := range expired {
		var claim models.ClaimRecord
		if err := s.DB.Where("reservation_id = ?", r.ID).First(&claim).Error; err != nil {
			log.Printf("[SUPPLY] ⚠️ No claim record for expired reservation %s: %v", r.ID, err)
			continue
		}
		if claim.Status != models.ClaimStatusReserved {
			continue
		}
		if err := s.Release(r.ID, "reservation lease expired"); err != nil {
			if !errors.Is(err, ErrReservationSettled) {
				log.Printf("[SUPPLY] ❌ Failed to release expired reservation %s: %v", r.ID, err)
			}
			continue
		}
		released++
	}
	if released > 0 {
		log.Printf("[SUPPLY] ✅ Released %d expired reservation(s) back to the pool", released)
	}
	return released
}
