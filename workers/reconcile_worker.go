package workers

import (
	"context"
	"errors"
	"log"
	"time"

	"nft-campaign-system/models"
	"nft-campaign-system/services"

	"gorm.io/gorm"
)

// ReconcileWorker settles claims stuck in `submitted` past the confirmation
// window. The chain is authoritative: ownership reads decide confirm vs
// release, and every off-chain/on-chain disagreement is logged for operators
// — never silently dropped.
type ReconcileWorker struct {
	db         *gorm.DB
	chain      services.ChainGateway
	supply     *services.SupplyService
	interval   time.Duration
	stuckAfter time.Duration
}

func NewReconcileWorker(db *gorm.DB, chain services.ChainGateway, supply *services.SupplyService) *ReconcileWorker {
	return &ReconcileWorker{
		db:         db,
		chain:      chain,
		supply:     supply,
		interval:   1 * time.Minute,
		stuckAfter: 2 * time.Minute,
	}
}

func (w *ReconcileWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Claim Reconciliation Worker…")
	go w.run(ctx)
}

func (w *ReconcileWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Sweep(ctx)
		case <-ctx.Done():
			log.Println("⏹️ Claim Reconciliation Worker stopped")
			return
		}
	}
}

// Sweep resolves every claim stuck in submitted. Returns how many were settled.
func (w *ReconcileWorker) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-w.stuckAfter)

	var stuck []models.ClaimRecord
	if err := w.db.Where("status = ? AND submitted_at < ?", models.ClaimStatusSubmitted, cutoff).
		Find(&stuck).Error; err != nil {
		log.Printf("[RECONCILE] ❌ Failed to list stuck claims: %v", err)
		return 0
	}
	if len(stuck) == 0 {
		return 0
	}

	log.Printf("[RECONCILE] 🔎 Found %d claim(s) stuck in submitted", len(stuck))

	settled := 0
	for _, claim := range stuck {
		if w.resolve(ctx, &claim) {
			settled++
		}
		if ctx.Err() != nil {
			break
		}
	}
	if settled > 0 {
		log.Printf("[RECONCILE] ✅ Settled %d stuck claim(s)", settled)
	}
	return settled
}

func (w *ReconcileWorker) resolve(ctx context.Context, claim *models.ClaimRecord) bool {
	if claim.TokenID == nil {
		log.Printf("🚨 [ANOMALY] Claim %s is submitted without a token id (tx %s) — cannot reconcile automatically", claim.ID, claim.TxHash)
		return false
	}

	var campaign models.Campaign
	if err := w.db.First(&campaign, "id = ?", claim.CampaignID).Error; err != nil {
		log.Printf("[RECONCILE] ❌ Failed to load campaign %s for claim %s: %v", claim.CampaignID, claim.ID, err)
		return false
	}

	owner, err := w.chain.GetOwnership(ctx, *claim.TokenID)
	if err != nil {
		// transient — retry on the next sweep
		log.Printf("[RECONCILE] ⚠️ Ownership read failed for token %d (claim %s): %v", *claim.TokenID, claim.ID, err)
		return false
	}

	mintedNew := campaign.Distribution != models.DistributionPreMint

	if owner == claim.WalletAddress {
		if err := w.supply.Commit(claim.ReservationID, *claim.TokenID, claim.TxHash, mintedNew); err != nil {
			if errors.Is(err, services.ErrReservationSettled) {
				log.Printf("🚨 [ANOMALY] Claim %s confirmed on-chain but its reservation was already settled", claim.ID)
			} else {
				log.Printf("[RECONCILE] ❌ Failed to commit claim %s: %v", claim.ID, err)
			}
			return false
		}
		log.Printf("[RECONCILE] ✅ Claim %s confirmed via ownership read (token %d → %s)", claim.ID, *claim.TokenID, owner)
		return true
	}

	// The claimant never received the token. Cross-check the contract's own
	// reward-type view before giving the slot back.
	if campaign.RuleType == models.RuleRewardTypeUniqueness {
		hasReward, checkErr := w.chain.HasRewardType(ctx, string(campaign.Type), claim.WalletAddress)
		if checkErr == nil && hasReward {
			log.Printf("🚨 [ANOMALY] Wallet %s holds a %s reward on-chain but does not own token %d from claim %s",
				claim.WalletAddress, campaign.Type, *claim.TokenID, claim.ID)
		}
	}

	if campaign.Distribution == models.DistributionPreMint {
		if err := w.db.Model(&models.EscrowToken{}).
			Where("claim_id = ?", claim.ID).
			Update("claim_id", nil).Error; err != nil {
			log.Printf("[RECONCILE] ⚠️ Failed to return escrow token for claim %s: %v", claim.ID, err)
		}
	}

	if err := w.supply.Release(claim.ReservationID, "transaction never confirmed"); err != nil {
		if !errors.Is(err, services.ErrReservationSettled) {
			log.Printf("[RECONCILE] ❌ Failed to release claim %s: %v", claim.ID, err)
		}
		return false
	}
	log.Printf("🚨 [ANOMALY] Claim %s released: token %d is owned by %s, not claimant %s (tx %s)",
		claim.ID, *claim.TokenID, owner, claim.WalletAddress, claim.TxHash)
	return true
}
