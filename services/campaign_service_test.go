package services

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"nft-campaign-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newCampaignApp(t *testing.T) (*fiber.App, *CampaignService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	svc := NewCampaignService(db, NewSupplyService(db), NewEligibilityService(db))

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID := c.Get("X-User-ID"); userID != "" {
			c.Locals("user_id", userID)
		}
		if roles := c.Get("X-User-Roles"); roles != "" {
			c.Locals("user_roles", strings.Split(roles, ","))
		}
		return c.Next()
	})

	app.Post("/campaigns", svc.CreateCampaign)
	app.Get("/campaigns/:id", svc.GetCampaign)
	app.Post("/campaigns/:id/submit-for-approval", svc.SubmitForApproval)
	app.Post("/campaigns/:id/approve", svc.Approve)
	app.Post("/campaigns/:id/reject", svc.Reject)
	app.Patch("/campaigns/:id/status", svc.UpdateStatus)
	app.Get("/campaigns/:id/check-eligibility/:userId", svc.CheckEligibility)
	return app, svc, db
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

var operatorHeaders = map[string]string{
	"X-User-ID":    "op-1",
	"X-User-Roles": "operator",
}

func TestCampaignApprovalFlow(t *testing.T) {
	app, _, db := newCampaignApp(t)

	status, body := doJSON(t, app, "POST", "/campaigns", fiber.Map{
		"brand_id":     "brand-1",
		"name":         "Summer Reading Drop",
		"type":         "reward",
		"total_supply": 100,
	}, nil)
	require.Equal(t, fiber.StatusCreated, status)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, string(models.CampaignStatusDraft), body["status"])
	assert.True(t, strings.HasPrefix(body["slug"].(string), "summer-reading-drop-"))

	status, _ = doJSON(t, app, "POST", "/campaigns/"+id+"/submit-for-approval", nil, nil)
	require.Equal(t, fiber.StatusOK, status)

	// approval is operator-gated
	status, _ = doJSON(t, app, "POST", "/campaigns/"+id+"/approve", nil, map[string]string{"X-User-ID": "someone"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = doJSON(t, app, "POST", "/campaigns/"+id+"/approve", nil, operatorHeaders)
	require.Equal(t, fiber.StatusOK, status)

	var stored models.Campaign
	require.NoError(t, db.First(&stored, "id = ?", id).Error)
	assert.Equal(t, models.CampaignStatusApproved, stored.Status)
	assert.Equal(t, "op-1", stored.ApprovedBy)
	assert.NotNil(t, stored.ApprovedAt)
	assert.NotNil(t, stored.SubmittedAt)
}

func TestCampaignRejectRequiresReason(t *testing.T) {
	app, _, db := newCampaignApp(t)

	campaign := newTestCampaign(models.CampaignStatusPendingApproval, 10)
	require.NoError(t, db.Create(campaign).Error)

	status, _ := doJSON(t, app, "POST", "/campaigns/"+campaign.ID+"/reject", fiber.Map{}, operatorHeaders)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = doJSON(t, app, "POST", "/campaigns/"+campaign.ID+"/reject",
		fiber.Map{"reason": "artwork violates guidelines"}, operatorHeaders)
	require.Equal(t, fiber.StatusOK, status)

	var stored models.Campaign
	require.NoError(t, db.First(&stored, "id = ?", campaign.ID).Error)
	assert.Equal(t, models.CampaignStatusRejected, stored.Status)
	assert.Equal(t, "artwork violates guidelines", stored.RejectionReason)
}

func TestCampaignStatusTransitions(t *testing.T) {
	app, _, db := newCampaignApp(t)

	campaign := newTestCampaign(models.CampaignStatusApproved, 10)
	require.NoError(t, db.Create(campaign).Error)

	// activation creates the supply ledger
	status, _ := doJSON(t, app, "PATCH", "/campaigns/"+campaign.ID+"/status",
		fiber.Map{"status": "active"}, operatorHeaders)
	require.Equal(t, fiber.StatusOK, status)

	var ledger models.SupplyLedger
	require.NoError(t, db.Where("campaign_id = ?", campaign.ID).First(&ledger).Error)
	assert.Equal(t, int64(10), ledger.TotalSupply)

	status, _ = doJSON(t, app, "PATCH", "/campaigns/"+campaign.ID+"/status",
		fiber.Map{"status": "paused"}, operatorHeaders)
	require.Equal(t, fiber.StatusOK, status)

	// resume maps back onto active from paused
	status, _ = doJSON(t, app, "PATCH", "/campaigns/"+campaign.ID+"/status",
		fiber.Map{"status": "active"}, operatorHeaders)
	require.Equal(t, fiber.StatusOK, status)

	// completion is gated on exhaustion or expiry
	status, _ = doJSON(t, app, "PATCH", "/campaigns/"+campaign.ID+"/status",
		fiber.Map{"status": "completed"}, operatorHeaders)
	assert.Equal(t, fiber.StatusConflict, status)

	require.NoError(t, db.Model(&models.Campaign{}).
		Where("id = ?", campaign.ID).
		Update("claimed_count", 10).Error)
	status, _ = doJSON(t, app, "PATCH", "/campaigns/"+campaign.ID+"/status",
		fiber.Map{"status": "completed"}, operatorHeaders)
	assert.Equal(t, fiber.StatusOK, status)

	// direct jumps outside the table are rejected
	draft := newTestCampaign(models.CampaignStatusDraft, 10)
	require.NoError(t, db.Create(draft).Error)
	status, body := doJSON(t, app, "PATCH", "/campaigns/"+draft.ID+"/status",
		fiber.Map{"status": "active"}, operatorHeaders)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "invalid_transition", body["code"])
}

func TestCheckEligibilityPreview(t *testing.T) {
	app, _, db := newCampaignApp(t)

	campaign := newTestCampaign(models.CampaignStatusActive, 10)
	campaign.RuleType = models.RuleMinStreak
	campaign.RuleParams = models.RuleParams{Threshold: 7}
	require.NoError(t, db.Create(campaign).Error)

	userID := "reader-1"
	require.NoError(t, db.Create(&models.UserStats{
		ExternalUserID: userID,
		ReadingStreak:  3,
	}).Error)

	status, body := doJSON(t, app, "GET", "/campaigns/"+campaign.ID+"/check-eligibility/"+userID, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["eligible"])
	assert.NotEmpty(t, body["reason"])

	require.NoError(t, db.Model(&models.UserStats{}).
		Where("external_user_id = ?", userID).
		Update("reading_streak", 9).Error)

	status, body = doJSON(t, app, "GET", "/campaigns/"+campaign.ID+"/check-eligibility/"+userID, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["eligible"])

	// previews against non-active campaigns answer ineligible, not an error
	paused := newTestCampaign(models.CampaignStatusPaused, 10)
	require.NoError(t, db.Create(paused).Error)
	status, body = doJSON(t, app, "GET", "/campaigns/"+paused.ID+"/check-eligibility/"+userID, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["eligible"])
}
