// services/campaign_service.go
package services

import (
	"errors"
	"log"
	"time"

	"nft-campaign-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type CampaignService struct {
	DB          *gorm.DB
	Supply      *SupplyService
	Eligibility *EligibilityService
}

func NewCampaignService(db *gorm.DB, supply *SupplyService, eligibility *EligibilityService) *CampaignService {
	return &CampaignService{DB: db, Supply: supply, Eligibility: eligibility}
}

// --- Brand Handlers ---

// CreateCampaign creates a new campaign in draft
func (s *CampaignService) CreateCampaign(c *fiber.Ctx) error {
	var req struct {
		BrandID      string                    `json:"brand_id"`
		Name         string                    `json:"name"`
		Description  string                    `json:"description"`
		ImageURL     string                    `json:"image_url"`
		Type         models.CampaignType       `json:"type"`
		Rarity       models.CampaignRarity     `json:"rarity"`
		Distribution models.DistributionMethod `json:"distribution"`
		TotalSupply  int64                     `json:"total_supply"`
		Unlimited    bool                      `json:"unlimited"`
		RuleType     models.RuleType           `json:"rule_type"`
		RuleParams   models.RuleParams         `json:"rule_params"`
		StartAt      *time.Time                `json:"start_at"`
		EndAt        *time.Time                `json:"end_at"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	if req.BrandID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "brand_id is required"})
	}
	if req.RuleType == "" {
		req.RuleType = models.RuleOpen
	}
	if !req.RuleType.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid rule_type"})
	}
	if req.Rarity == "" {
		req.Rarity = models.RarityCommon
	}
	if req.Distribution == "" {
		req.Distribution = models.DistributionOnDemand
	}

	campaign := &models.Campaign{
		ID:           uuid.NewString(),
		BrandID:      req.BrandID,
		Name:         req.Name,
		Slug:         slug.Make(req.Name) + "-" + uuid.NewString()[:8],
		Description:  req.Description,
		ImageURL:     req.ImageURL,
		Type:         req.Type,
		Rarity:       req.Rarity,
		Distribution: req.Distribution,
		TotalSupply:  req.TotalSupply,
		Unlimited:    req.Unlimited,
		RuleType:     req.RuleType,
		RuleParams:   req.RuleParams,
		Status:       models.CampaignStatusDraft,
		StartAt:      req.StartAt,
		EndAt:        req.EndAt,
	}

	if err := s.DB.Create(campaign).Error; err != nil {
		log.Printf("DB Error creating campaign: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create campaign"})
	}

	return c.Status(fiber.StatusCreated).JSON(campaign)
}

// GetCampaign fetches a single campaign
func (s *CampaignService) GetCampaign(c *fiber.Ctx) error {
	campaign, errResp := s.loadCampaign(c)
	if campaign == nil {
		return errResp
	}
	return c.JSON(campaign)
}

// GetAllCampaigns lists campaigns, optionally filtered by status or brand
func (s *CampaignService) GetAllCampaigns(c *fiber.Ctx) error {
	query := s.DB.Order("created_at DESC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if brandID := c.Query("brand_id"); brandID != "" {
		query = query.Where("brand_id = ?", brandID)
	}

	var campaigns []models.Campaign
	if err := query.Find(&campaigns).Error; err != nil {
		log.Printf("DB Error fetching campaigns: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch campaigns"})
	}
	return c.JSON(campaigns)
}

// --- Lifecycle Handlers ---

// SubmitForApproval moves draft → pending_approval
func (s *CampaignService) SubmitForApproval(c *fiber.Ctx) error {
	campaign, errResp := s.loadCampaign(c)
	if campaign == nil {
		return errResp
	}

	if err := ApplyTransition(campaign, EventSubmit); err != nil {
		return transitionError(c, err)
	}
	now := time.Now()
	campaign.SubmittedAt = &now

	if err := s.DB.Save(campaign).Error; err != nil {
		log.Printf("DB Error submitting campaign: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to submit campaign"})
	}
	return c.JSON(fiber.Map{"message": "campaign submitted for approval", "campaign": campaign})
}

// Approve moves pending_approval → approved (operator only)
func (s *CampaignService) Approve(c *fiber.Ctx) error {
	if !hasOperatorRole(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "operator role required"})
	}

	campaign, errResp := s.loadCampaign(c)
	if campaign == nil {
		return errResp
	}

	if err := ApplyTransition(campaign, EventApprove); err != nil {
		return transitionError(c, err)
	}
	now := time.Now()
	campaign.ApprovedAt = &now
	campaign.ApprovedBy, _ = c.Locals("user_id").(string)

	if err := s.DB.Save(campaign).Error; err != nil {
		log.Printf("DB Error approving campaign: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to approve campaign"})
	}
	return c.JSON(fiber.Map{"message": "campaign approved", "campaign": campaign})
}

// Reject moves pending_approval → rejected; a reason is required
func (s *CampaignService) Reject(c *fiber.Ctx) error {
	if !hasOperatorRole(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "operator role required"})
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil || req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rejection reason is required"})
	}

	campaign, errResp := s.loadCampaign(c)
	if campaign == nil {
		return errResp
	}

	if err := ApplyTransition(campaign, EventReject); err != nil {
		return transitionError(c, err)
	}
	campaign.RejectionReason = req.Reason

	if err := s.DB.Save(campaign).Error; err != nil {
		log.Printf("DB Error rejecting campaign: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to reject campaign"})
	}
	return c.JSON(fiber.Map{"message": "campaign rejected", "campaign": campaign})
}

// UpdateStatus handles PATCH /campaigns/:id/status for activate/pause/resume
// and operator-forced completion. Every edge goes through the transition
// table — nothing is written directly.
func (s *CampaignService) UpdateStatus(c *fiber.Ctx) error {
	var req struct {
		Status models.CampaignStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	campaign, errResp := s.loadCampaign(c)
	if campaign == nil {
		return errResp
	}

	var event CampaignEvent
	switch req.Status {
	case models.CampaignStatusActive:
		if campaign.Status == models.CampaignStatusPaused {
			event = EventResume
		} else {
			event = EventActivate
		}
	case models.CampaignStatusPaused:
		event = EventPause
	case models.CampaignStatusCompleted:
		if !campaignExhaustable(campaign) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "campaign can only complete when supply is exhausted or the end date has passed",
			})
		}
		event = EventExhaust
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported target status"})
	}

	if err := ApplyTransition(campaign, event); err != nil {
		return transitionError(c, err)
	}

	if event == EventActivate {
		if err := s.Supply.EnsureLedger(campaign); err != nil {
			log.Printf("DB Error ensuring supply ledger for campaign %s: %v", campaign.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to prepare supply ledger"})
		}
	}

	if err := s.DB.Save(campaign).Error; err != nil {
		log.Printf("DB Error updating campaign status: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update campaign status"})
	}
	return c.JSON(fiber.Map{"message": "campaign status updated", "campaign": campaign})
}

// CheckEligibility is the preview endpoint. The verdict is advisory only —
// the orchestrator re-evaluates on fresh context at claim time.
func (s *CampaignService) CheckEligibility(c *fiber.Ctx) error {
	campaign, errResp := s.loadCampaign(c)
	if campaign == nil {
		return errResp
	}

	userID := c.Params("userId")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user id is required"})
	}

	if campaign.Status != models.CampaignStatusActive {
		return c.JSON(Verdict{Eligible: false, Reason: "campaign is not accepting claims"})
	}

	ctx, err := s.Eligibility.BuildContext(campaign, userID)
	if err != nil {
		log.Printf("Failed to build eligibility context: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to evaluate eligibility"})
	}
	verdict, err := Evaluate(campaign, ctx)
	if err != nil {
		log.Printf("Eligibility evaluation failed for campaign %s: %v", campaign.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to evaluate eligibility"})
	}
	return c.JSON(verdict)
}

// --- helpers ---

func (s *CampaignService) loadCampaign(c *fiber.Ctx) (*models.Campaign, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid campaign ID"})
	}

	var campaign models.Campaign
	if err := s.DB.First(&campaign, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Campaign not found"})
		}
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return &campaign, nil
}

func transitionError(c *fiber.Ctx, err error) error {
	var invalid *InvalidTransitionError
	if errors.As(err, &invalid) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": invalid.Error(), "code": "invalid_transition"})
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

func hasOperatorRole(c *fiber.Ctx) bool {
	roles, _ := c.Locals("user_roles").([]string)
	for _, r := range roles {
		if r == "operator" || r == "admin" {
			return true
		}
	}
	return false
}

func campaignExhaustable(campaign *models.Campaign) bool {
	if !campaign.Unlimited && campaign.ClaimedCount >= campaign.TotalSupply {
		return true
	}
	return campaign.EndAt != nil && campaign.EndAt.Before(time.Now())
}
