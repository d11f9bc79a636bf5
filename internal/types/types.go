package types

import (
	"fmt"
	"strings"
	"time"
)

// Rule is one version of an audit rule. Versions of the same rule share a
// stable Code; each version gets a monotonically increasing Version number.
type Rule struct {
	ID             string         `json:"id"`
	Code           string         `json:"code"`
	Version        int            `json:"version"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	State          RuleState      `json:"state"`
	ConditionTree  *ConditionNode `json:"condition_tree"`
	ReplacesRuleID string         `json:"replaces_rule_id,omitempty"`
	CreatedBy      string         `json:"created_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	PublishedAt    *time.Time     `json:"published_at,omitempty"`
	DisabledAt     *time.Time     `json:"disabled_at,omitempty"`

	// Claims is populated on reads that join rule_evidence_claims.
	Claims []*RuleClaim `json:"claims,omitempty"`
}

// Validate checks if the rule has valid field values
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return fmt.Errorf("code is required")
	}
	if len(r.Name) == 0 {
		return fmt.Errorf("name is required")
	}
	if len(r.Name) > 500 {
		return fmt.Errorf("name must be 500 characters or less (got %d)", len(r.Name))
	}
	if !r.State.IsValid() {
		return fmt.Errorf("invalid state: %s", r.State)
	}
	if r.ConditionTree == nil {
		return fmt.Errorf("condition_tree is required")
	}
	return nil
}

// RuleState represents the lifecycle state of a rule version
type RuleState string

const (
	RuleStateDraft     RuleState = "draft"
	RuleStatePublished RuleState = "published"
	RuleStateDisabled  RuleState = "disabled"
)

// IsValid checks if the rule state value is valid
func (s RuleState) IsValid() bool {
	switch s {
	case RuleStateDraft, RuleStatePublished, RuleStateDisabled:
		return true
	}
	return false
}

// CanTransitionTo checks if a transition from this state to the target state
// is valid. Publishing is irreversible; disabling is terminal.
func (s RuleState) CanTransitionTo(target RuleState) bool {
	switch s {
	case RuleStateDraft:
		return target == RuleStatePublished || target == RuleStateDisabled
	case RuleStatePublished:
		return target == RuleStateDisabled
	case RuleStateDisabled:
		return false
	}
	return false
}

// EvidenceClaim is a reusable evidence requirement. Rules reference claims;
// they never own them.
type EvidenceClaim struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Weight    float64   `json:"weight"`
	Criteria  []string  `json:"criteria,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the evidence claim has valid field values
func (c *EvidenceClaim) Validate() error {
	if strings.TrimSpace(c.Category) == "" {
		return fmt.Errorf("category is required")
	}
	if strings.TrimSpace(c.Type) == "" {
		return fmt.Errorf("type is required")
	}
	if len(c.Name) == 0 {
		return fmt.Errorf("name is required")
	}
	if c.Weight < 0 || c.Weight > 1 {
		return fmt.Errorf("weight must be between 0 and 1 (got %g)", c.Weight)
	}
	return nil
}

// RuleClaim is the rule↔claim association with the per-rule required flag.
// The same claim can be required by one rule and optional for another.
type RuleClaim struct {
	Claim     *EvidenceClaim `json:"claim"`
	Required  bool           `json:"required"`
	SortOrder int            `json:"sort_order"`
}

// ClaimAttachment names a claim to associate with a rule in AttachClaims.
type ClaimAttachment struct {
	ClaimID   string `json:"claim_id"`
	Required  bool   `json:"required"`
	SortOrder int    `json:"sort_order"`
}

// RuleFilter is used to filter rule queries
type RuleFilter struct {
	State  *RuleState
	Code   *string
	Search string
	Limit  int
}
