package models

// RuleType tags which eligibility rule variant a campaign uses
type RuleType string

const (
	// RuleOpen: anyone may claim once
	RuleOpen RuleType = "open"
	// RuleRewardTypeUniqueness: one confirmed token per reward-type category,
	// across campaigns. Mirrors the contract's hasRewardType check.
	RuleRewardTypeUniqueness RuleType = "reward_type_uniqueness"
	// RuleFirstNClaimants: first-come-first-served up to total supply
	RuleFirstNClaimants RuleType = "first_n_claimants"
	// RuleMinStreak: reading streak must meet Threshold
	RuleMinStreak RuleType = "min_streak"
	// RuleCommunityMembership: claimant must belong to CommunityID
	RuleCommunityMembership RuleType = "community_membership"
	// RuleWalletAllowlist: claimant's bound wallet must be in Allowlist
	RuleWalletAllowlist RuleType = "wallet_allowlist"
)

// RuleParams carries only the parameters its rule type reads; stored as a
// JSON column on the campaign row.
type RuleParams struct {
	Threshold   int      `json:"threshold,omitempty"`
	CommunityID string   `json:"community_id,omitempty"`
	Allowlist   []string `json:"allowlist,omitempty"`
}

func (t RuleType) Valid() bool {
	switch t {
	case RuleOpen, RuleRewardTypeUniqueness, RuleFirstNClaimants,
		RuleMinStreak, RuleCommunityMembership, RuleWalletAllowlist:
		return true
	}
	return false
}
