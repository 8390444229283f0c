// services/state_machine.go
package services

import (
	"fmt"

	"nft-campaign-system/models"
)

// CampaignEvent is an operator- or system-triggered lifecycle event
type CampaignEvent string

const (
	EventSubmit   CampaignEvent = "submit"
	EventApprove  CampaignEvent = "approve"
	EventReject   CampaignEvent = "reject"
	EventPreMint  CampaignEvent = "pre_mint"
	EventActivate CampaignEvent = "activate"
	EventPause    CampaignEvent = "pause"
	EventResume   CampaignEvent = "resume"
	EventExhaust  CampaignEvent = "exhaust"
)

// InvalidTransitionError reports an edge not present in the transition table.
// The machine never silently no-ops.
type InvalidTransitionError struct {
	From  models.CampaignStatus
	Event CampaignEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q not allowed from status %q", e.Event, e.From)
}

// transitions is the full table of legal status edges. paused → active is the
// only reversible edge; everything else is monotonic.
var transitions = map[models.CampaignStatus]map[CampaignEvent]models.CampaignStatus{
	models.CampaignStatusDraft: {
		EventSubmit: models.CampaignStatusPendingApproval,
	},
	models.CampaignStatusPendingApproval: {
		EventApprove: models.CampaignStatusApproved,
		EventReject:  models.CampaignStatusRejected,
	},
	models.CampaignStatusApproved: {
		EventPreMint:  models.CampaignStatusPreMinted,
		EventActivate: models.CampaignStatusActive,
	},
	models.CampaignStatusPreMinted: {
		EventActivate: models.CampaignStatusActive,
	},
	models.CampaignStatusActive: {
		EventPause:   models.CampaignStatusPaused,
		EventExhaust: models.CampaignStatusCompleted,
	},
	models.CampaignStatusPaused: {
		EventResume: models.CampaignStatusActive,
	},
}

// NextStatus resolves the target status for an event, or an
// InvalidTransitionError if the table has no such edge.
func NextStatus(from models.CampaignStatus, ev CampaignEvent) (models.CampaignStatus, error) {
	if edges, ok := transitions[from]; ok {
		if to, ok := edges[ev]; ok {
			return to, nil
		}
	}
	return "", &InvalidTransitionError{From: from, Event: ev}
}

// ApplyTransition validates the edge plus the campaign-level guards and
// mutates the in-memory status. Persisting the change is the caller's job.
func ApplyTransition(c *models.Campaign, ev CampaignEvent) error {
	to, err := NextStatus(c.Status, ev)
	if err != nil {
		return err
	}

	switch ev {
	case EventSubmit:
		if err := validateForSubmit(c); err != nil {
			return err
		}
	case EventPreMint:
		if c.Distribution != models.DistributionPreMint {
			return fmt.Errorf("pre-mint only applies to pre_mint distribution campaigns")
		}
		if c.Unlimited {
			return fmt.Errorf("pre-mint requires a finite total supply")
		}
		if c.EscrowAddress == "" {
			return fmt.Errorf("escrow wallet must be resolved before pre-mint")
		}
	case EventActivate:
		// pre_mint campaigns must pass through pre_minted first
		if c.Distribution == models.DistributionPreMint && c.Status == models.CampaignStatusApproved {
			return fmt.Errorf("pre_mint campaign must be pre-minted before activation")
		}
	}

	c.Status = to
	return nil
}

// validateForSubmit checks the required-fields guard on draft → pending_approval
func validateForSubmit(c *models.Campaign) error {
	if c.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if c.BrandID == "" {
		return fmt.Errorf("campaign brand is required")
	}
	switch c.Type {
	case models.CampaignTypeReward, models.CampaignTypeAccess, models.CampaignTypePhygital, models.CampaignTypeAchievement:
	default:
		return fmt.Errorf("invalid campaign type %q", c.Type)
	}
	if !c.Unlimited && c.TotalSupply <= 0 {
		return fmt.Errorf("total_supply must be positive unless the campaign is unlimited")
	}
	if !c.RuleType.Valid() {
		return fmt.Errorf("invalid eligibility rule type %q", c.RuleType)
	}
	if c.Distribution == models.DistributionPreMint && c.Unlimited {
		return fmt.Errorf("pre_mint distribution requires a finite supply")
	}
	return nil
}
