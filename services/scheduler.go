// services/scheduler.go
package services

import (
	"log"
	"time"

	"nft-campaign-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartMaintenanceScheduler runs the periodic supply and lifecycle jobs:
// expired reservation leases go back to the pool, and active campaigns whose
// supply ran out or whose end date passed are completed automatically.
func (s *CampaignService) StartMaintenanceScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: release expired reservation leases
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			s.Supply.ReleaseExpired()
		}),
	)

	// Every minute: exhaust campaigns that are done
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var campaigns []models.Campaign
			err := s.DB.Where("status = ?", models.CampaignStatusActive).
				Find(&campaigns).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}

			for _, campaign := range campaigns {
				if !campaignExhaustable(&campaign) {
					continue
				}
				if err := ApplyTransition(&campaign, EventExhaust); err != nil {
					log.Printf("[Scheduler] Cannot exhaust campaign %s: %v", campaign.ID, err)
					continue
				}
				if err := s.DB.Save(&campaign).Error; err != nil {
					log.Printf("[Scheduler] Failed to complete campaign %s: %v", campaign.ID, err)
				} else {
					log.Printf("✅ Auto-completed campaign: %s", campaign.Name)
				}
			}
		}),
	)
}
