package types

import "time"

// AuditWorkflow is one generation of the rule-evaluation run for an audit.
// Generations are monotonic per audit; a new generation never mutates an
// older one.
type AuditWorkflow struct {
	ID             string                   `json:"id"`
	AuditID        string                   `json:"audit_id"`
	Generation     int                      `json:"generation"`
	Status         WorkflowStatus           `json:"status"`
	OverallScore   *float64                 `json:"overall_score,omitempty"`
	Certification  Certification            `json:"certification"`
	CategoryScores map[string]CategoryScore `json:"category_scores,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`

	// Claims is populated on reads that join audit_workflow_claims.
	Claims []*WorkflowClaim `json:"claims,omitempty"`
}

// WorkflowStatus represents the processing state of a workflow generation
type WorkflowStatus string

const (
	WorkflowGenerated          WorkflowStatus = "generated"
	WorkflowProcessing         WorkflowStatus = "processing"
	WorkflowProcessingComplete WorkflowStatus = "processing_complete"
	WorkflowProcessingFailed   WorkflowStatus = "processing_failed"
)

// IsValid checks if the workflow status value is valid
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowGenerated, WorkflowProcessing, WorkflowProcessingComplete, WorkflowProcessingFailed:
		return true
	}
	return false
}

// Certification is the tier awarded to a completed workflow
type Certification string

const (
	CertNone   Certification = "none"
	CertBronze Certification = "bronze"
	CertSilver Certification = "silver"
	CertGold   Certification = "gold"
)

// CategoryScore is the per-category rollup stored on a workflow
type CategoryScore struct {
	Score     float64 `json:"score"`
	HasClaims bool    `json:"has_claims"`
}

// WorkflowClaim is one evidence-claim requirement instance attached to a
// workflow generation. Required is true if any matched rule required the
// claim. Owned by exactly one workflow and deleted with it.
type WorkflowClaim struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	ClaimID    string         `json:"claim_id"`
	Claim      *EvidenceClaim `json:"claim,omitempty"`
	Required   bool           `json:"required"`
	Status     ClaimStatus    `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`

	// Sources is populated on reads that join audit_workflow_claim_sources.
	Sources []*ClaimSource `json:"sources,omitempty"`
}

// ClaimStatus is the legacy convenience flag on a workflow claim
type ClaimStatus string

const (
	ClaimRequired  ClaimStatus = "required"
	ClaimSatisfied ClaimStatus = "satisfied"
)

// ClaimSource records which rule version caused a workflow claim to be
// included. A claim required by three matched rules has three source rows.
type ClaimSource struct {
	WorkflowClaimID string `json:"workflow_claim_id"`
	RuleID          string `json:"rule_id"`
	RuleCode        string `json:"rule_code"`
	RuleVersion     int    `json:"rule_version"`
	Required        bool   `json:"required"`
}

// RuleMatch is the evaluation record for one (workflow, published rule) pair.
// Written for every published rule whether it matched, did not match, or
// errored, so a generation run leaves a full audit trail.
type RuleMatch struct {
	WorkflowID  string `json:"workflow_id"`
	RuleID      string `json:"rule_id"`
	RuleCode    string `json:"rule_code"`
	RuleVersion int    `json:"rule_version"`
	Matched     bool   `json:"matched"`
	Error       string `json:"error,omitempty"`
}
