package services

import (
	"testing"

	"nft-campaign-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateOpenRule(t *testing.T) {
	c := newTestCampaign(models.CampaignStatusActive, 10)

	v, err := Evaluate(c, &ClaimContext{})
	require.NoError(t, err)
	assert.True(t, v.Eligible)

	v, err = Evaluate(c, &ClaimContext{HasActiveClaim: true})
	require.NoError(t, err)
	assert.False(t, v.Eligible)
	assert.NotEmpty(t, v.Reason)
}

func TestEvaluateRewardTypeUniqueness(t *testing.T) {
	c := newTestCampaign(models.CampaignStatusActive, 10)
	c.RuleType = models.RuleRewardTypeUniqueness

	v, err := Evaluate(c, &ClaimContext{HasRewardTypeToken: true})
	require.NoError(t, err)
	assert.False(t, v.Eligible)

	v, err = Evaluate(c, &ClaimContext{HasRewardTypeToken: false})
	require.NoError(t, err)
	assert.True(t, v.Eligible)
}

func TestEvaluateFirstNClaimants(t *testing.T) {
	c := newTestCampaign(models.CampaignStatusActive, 5)
	c.RuleType = models.RuleFirstNClaimants

	v, err := Evaluate(c, &ClaimContext{ClaimedCount: 4})
	require.NoError(t, err)
	assert.True(t, v.Eligible)

	// a stale "eligible" preview becomes a rejection once supply is gone
	v, err = Evaluate(c, &ClaimContext{ClaimedCount: 5})
	require.NoError(t, err)
	assert.False(t, v.Eligible)

	c.Unlimited = true
	_, err = Evaluate(c, &ClaimContext{})
	assert.Error(t, err, "first_n_claimants on unlimited supply is malformed")
}

func TestEvaluateMinStreak(t *testing.T) {
	c := newTestCampaign(models.CampaignStatusActive, 10)
	c.RuleType = models.RuleMinStreak
	c.RuleParams = models.RuleParams{Threshold: 7}

	v, err := Evaluate(c, &ClaimContext{ReadingStreak: 6})
	require.NoError(t, err)
	assert.False(t, v.Eligible)

	v, err = Evaluate(c, &ClaimContext{ReadingStreak: 7})
	require.NoError(t, err)
	assert.True(t, v.Eligible)

	c.RuleParams = models.RuleParams{}
	_, err = Evaluate(c, &ClaimContext{ReadingStreak: 100})
	assert.Error(t, err, "missing threshold is malformed")
}

func TestEvaluateCommunityMembership(t *testing.T) {
	c := newTestCampaign(models.CampaignStatusActive, 10)
	c.RuleType = models.RuleCommunityMembership
	c.RuleParams = models.RuleParams{CommunityID: "book-club"}

	v, err := Evaluate(c, &ClaimContext{Communities: []string{"chess", "book-club"}})
	require.NoError(t, err)
	assert.True(t, v.Eligible)

	v, err = Evaluate(c, &ClaimContext{Communities: []string{"chess"}})
	require.NoError(t, err)
	assert.False(t, v.Eligible)

	c.RuleParams = models.RuleParams{}
	_, err = Evaluate(c, &ClaimContext{})
	assert.Error(t, err, "missing community id is malformed")
}

func TestEvaluateWalletAllowlist(t *testing.T) {
	c := newTestCampaign(models.CampaignStatusActive, 10)
	c.RuleType = models.RuleWalletAllowlist
	c.RuleParams = models.RuleParams{Allowlist: []string{"0xaaa", "0xbbb"}}

	v, err := Evaluate(c, &ClaimContext{WalletAddress: "0xbbb"})
	require.NoError(t, err)
	assert.True(t, v.Eligible)

	v, err = Evaluate(c, &ClaimContext{WalletAddress: "0xccc"})
	require.NoError(t, err)
	assert.False(t, v.Eligible)

	// an unbound wallet never matches, even against an empty entry
	c.RuleParams = models.RuleParams{Allowlist: []string{""}}
	v, err = Evaluate(c, &ClaimContext{WalletAddress: ""})
	require.NoError(t, err)
	assert.False(t, v.Eligible)

	c.RuleParams = models.RuleParams{}
	_, err = Evaluate(c, &ClaimContext{WalletAddress: "0xaaa"})
	assert.Error(t, err, "empty allowlist is malformed")
}

func TestEvaluateUnknownRule(t *testing.T) {
	c := newTestCampaign(models.CampaignStatusActive, 10)
	c.RuleType = "mystery"
	_, err := Evaluate(c, &ClaimContext{})
	assert.Error(t, err)
}

func TestBuildContext(t *testing.T) {
	db := newTestDB(t)
	svc := NewEligibilityService(db)

	campaign := newTestCampaign(models.CampaignStatusActive, 10)
	require.NoError(t, db.Create(campaign).Error)

	userID := uuid.NewString()
	bindWallet(t, db, userID, "0xuser")
	require.NoError(t, db.Create(&models.UserStats{
		ExternalUserID: userID,
		ReadingStreak:  12,
		Communities:    []string{"book-club"},
	}).Error)

	// a confirmed claim on another campaign of the same type
	other := newTestCampaign(models.CampaignStatusActive, 10)
	require.NoError(t, db.Create(other).Error)
	require.NoError(t, db.Create(&models.ClaimRecord{
		ID:             uuid.NewString(),
		CampaignID:     other.ID,
		ExternalUserID: userID,
		Status:         models.ClaimStatusConfirmed,
	}).Error)

	ctx, err := svc.BuildContext(campaign, userID)
	require.NoError(t, err)
	assert.Equal(t, "0xuser", ctx.WalletAddress)
	assert.Equal(t, 12, ctx.ReadingStreak)
	assert.Equal(t, []string{"book-club"}, ctx.Communities)
	assert.False(t, ctx.HasActiveClaim)
	assert.True(t, ctx.HasRewardTypeToken)

	// a failed claim on this campaign does not count as active
	require.NoError(t, db.Create(&models.ClaimRecord{
		ID:             uuid.NewString(),
		CampaignID:     campaign.ID,
		ExternalUserID: userID,
		Status:         models.ClaimStatusFailed,
	}).Error)
	ctx, err = svc.BuildContext(campaign, userID)
	require.NoError(t, err)
	assert.False(t, ctx.HasActiveClaim)

	// a reserved claim does
	require.NoError(t, db.Create(&models.ClaimRecord{
		ID:             uuid.NewString(),
		CampaignID:     campaign.ID,
		ExternalUserID: userID,
		Status:         models.ClaimStatusReserved,
	}).Error)
	ctx, err = svc.BuildContext(campaign, userID)
	require.NoError(t, err)
	assert.True(t, ctx.HasActiveClaim)
}
