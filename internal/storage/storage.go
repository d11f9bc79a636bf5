package storage

import (
	"context"
	"time"

	"github.com/ecovet/ecovet/internal/storage/sqlite"
	"github.com/ecovet/ecovet/internal/types"
)

// Storage defines the interface for audit storage backends
type Storage interface {
	// Rules
	CreateRule(ctx context.Context, rule *types.Rule, actor string) error
	GetRule(ctx context.Context, id string) (*types.Rule, error)
	ListRules(ctx context.Context, filter types.RuleFilter) ([]*types.Rule, error)
	UpdateRuleDraft(ctx context.Context, id string, updates map[string]interface{}, actor string) error
	TransitionRuleState(ctx context.Context, id string, target types.RuleState, actor string) error
	DeleteRule(ctx context.Context, id string) error
	ReplaceRuleClaims(ctx context.Context, ruleID string, attachments []types.ClaimAttachment, actor string) error

	// Evidence claims
	CreateClaim(ctx context.Context, claim *types.EvidenceClaim) error
	GetClaim(ctx context.Context, id string) (*types.EvidenceClaim, error)
	ListClaims(ctx context.Context, category string) ([]*types.EvidenceClaim, error)
	DeleteClaim(ctx context.Context, id string) error

	// Audits
	CreateAudit(ctx context.Context, audit *types.Audit) error
	GetAudit(ctx context.Context, id string) (*types.Audit, error)
	GetAuditSnapshot(ctx context.Context, auditID string) (map[string]interface{}, error)

	// Workflows. CreateWorkflow persists the workflow, its claim set, claim
	// sources, and rule-match rows as one atomic unit, allocating the next
	// generation number for the audit inside the transaction.
	CreateWorkflow(ctx context.Context, wf *types.AuditWorkflow, claims []*types.WorkflowClaim, matches []*types.RuleMatch) error
	GetWorkflow(ctx context.Context, id string) (*types.AuditWorkflow, error)
	GetLatestWorkflow(ctx context.Context, auditID string) (*types.AuditWorkflow, error)
	ListRuleMatches(ctx context.Context, workflowID string) ([]*types.RuleMatch, error)
	UpdateWorkflowStatus(ctx context.Context, id string, status types.WorkflowStatus) error
	UpdateWorkflowRollup(ctx context.Context, id string, status types.WorkflowStatus, overall *float64, cert types.Certification, categories map[string]types.CategoryScore) error
	GetWorkflowClaim(ctx context.Context, id string) (*types.WorkflowClaim, error)
	UpdateWorkflowClaimStatus(ctx context.Context, workflowClaimID string, status types.ClaimStatus) error

	// Evidence submissions
	CreateSubmission(ctx context.Context, sub *types.EvidenceSubmission) error
	GetSubmission(ctx context.Context, id string) (*types.EvidenceSubmission, error)
	ListSubmissions(ctx context.Context, filter types.SubmissionFilter) ([]*types.EvidenceSubmission, error)
	TransitionSubmission(ctx context.Context, id string, target types.SubmissionStatus) error
	CompleteSubmission(ctx context.Context, sub *types.EvidenceSubmission) error
	FailSubmission(ctx context.Context, id string, errorMessage string) error
	ReviewSubmission(ctx context.Context, id string, decision types.ReviewDecision, reviewer string) error
	RequeueStaleSubmissions(ctx context.Context, olderThan time.Duration) (int, error)

	// Config
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".ecovet/ecovet.db"
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".ecovet/ecovet.db",
	}
}

// NewStorage creates a new SQLite storage backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = ".ecovet/ecovet.db"
	}

	return sqlite.New(cfg.Path)
}
