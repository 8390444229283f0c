package services

import (
	"errors"
	"testing"

	"nft-campaign-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignLifecycleOnDemand(t *testing.T) {
	c := newTestCampaign(models.CampaignStatusDraft, 100)

	require.NoError(t, ApplyTransition(c, EventSubmit))
	assert.Equal(t, models.CampaignStatusPendingApproval, c.Status)

	require.NoError(t, ApplyTransition(c, EventApprove))
	assert.Equal(t, models.CampaignStatusApproved, c.Status)

	require.NoError(t, ApplyTransition(c, EventActivate))
	assert.Equal(t, models.CampaignStatusActive, c.Status)

	require.NoError(t, ApplyTransition(c, EventPause))
	assert.Equal(t, models.CampaignStatusPaused, c.Status)

	require.NoError(t, ApplyTransition(c, EventResume))
	assert.Equal(t, models.CampaignStatusActive, c.Status)

	require.NoError(t, ApplyTransition(c, EventExhaust))
	assert.Equal(t, models.CampaignStatusCompleted, c.Status)
}

func TestCampaignLifecyclePreMint(t *testing.T) {
	c := newTestCampaign(models.CampaignStatusDraft, 10)
	c.Distribution = models.DistributionPreMint

	require.NoError(t, ApplyTransition(c, EventSubmit))
	require.NoError(t, ApplyTransition(c, EventApprove))

	// activation before pre-mint must fail for pre_mint distribution
	err := ApplyTransition(c, EventActivate)
	require.Error(t, err)
	assert.Equal(t, models.CampaignStatusApproved, c.Status)

	// pre-mint requires a resolved escrow wallet
	err = ApplyTransition(c, EventPreMint)
	require.Error(t, err)

	c.EscrowAddress = "0xescrow"
	require.NoError(t, ApplyTransition(c, EventPreMint))
	assert.Equal(t, models.CampaignStatusPreMinted, c.Status)

	require.NoError(t, ApplyTransition(c, EventActivate))
	assert.Equal(t, models.CampaignStatusActive, c.Status)
}

func TestRejectIsTerminal(t *testing.T) {
	c := newTestCampaign(models.CampaignStatusPendingApproval, 10)

	require.NoError(t, ApplyTransition(c, EventReject))
	assert.Equal(t, models.CampaignStatusRejected, c.Status)

	for _, ev := range []CampaignEvent{EventSubmit, EventApprove, EventActivate, EventPause, EventExhaust} {
		err := ApplyTransition(c, ev)
		var invalid *InvalidTransitionError
		assert.ErrorAs(t, err, &invalid, "event %s must be rejected from rejected", ev)
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	cases := []struct {
		from  models.CampaignStatus
		event CampaignEvent
	}{
		{models.CampaignStatusDraft, EventActivate},
		{models.CampaignStatusDraft, EventApprove},
		{models.CampaignStatusDraft, EventExhaust},
		{models.CampaignStatusPendingApproval, EventPreMint},
		{models.CampaignStatusPendingApproval, EventActivate},
		{models.CampaignStatusActive, EventSubmit},
		{models.CampaignStatusActive, EventApprove},
		{models.CampaignStatusPaused, EventPause},
		{models.CampaignStatusPaused, EventExhaust},
		{models.CampaignStatusCompleted, EventActivate},
		{models.CampaignStatusCompleted, EventResume},
	}

	for _, tc := range cases {
		c := newTestCampaign(tc.from, 10)
		err := ApplyTransition(c, tc.event)
		var invalid *InvalidTransitionError
		require.Error(t, err, "%s from %s", tc.event, tc.from)
		assert.True(t, errors.As(err, &invalid), "%s from %s must be InvalidTransition, got %v", tc.event, tc.from, err)
		assert.Equal(t, tc.from, c.Status, "status must not change on rejected transition")
	}
}

func TestSubmitGuards(t *testing.T) {
	t.Run("missing name", func(t *testing.T) {
		c := newTestCampaign(models.CampaignStatusDraft, 10)
		c.Name = ""
		assert.Error(t, ApplyTransition(c, EventSubmit))
		assert.Equal(t, models.CampaignStatusDraft, c.Status)
	})

	t.Run("zero supply without unlimited", func(t *testing.T) {
		c := newTestCampaign(models.CampaignStatusDraft, 0)
		assert.Error(t, ApplyTransition(c, EventSubmit))
	})

	t.Run("unlimited supply allowed", func(t *testing.T) {
		c := newTestCampaign(models.CampaignStatusDraft, 0)
		c.Unlimited = true
		assert.NoError(t, ApplyTransition(c, EventSubmit))
	})

	t.Run("invalid rule type", func(t *testing.T) {
		c := newTestCampaign(models.CampaignStatusDraft, 10)
		c.RuleType = "bogus"
		assert.Error(t, ApplyTransition(c, EventSubmit))
	})

	t.Run("unlimited pre_mint rejected", func(t *testing.T) {
		c := newTestCampaign(models.CampaignStatusDraft, 0)
		c.Unlimited = true
		c.Distribution = models.DistributionPreMint
		assert.Error(t, ApplyTransition(c, EventSubmit))
	})
}
