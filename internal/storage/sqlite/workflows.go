package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ecovet/ecovet/internal/types"
)

// maxGenerationRetries bounds retry-on-conflict for generation allocation.
// Conflicts only happen when two writers race the same audit, so a couple of
// retries is plenty.
const maxGenerationRetries = 3

// CreateWorkflow persists a workflow generation, its claim set, claim
// sources, and rule-match rows as one atomic unit. The generation number is
// computed as max(existing)+1 inside the transaction; the
// UNIQUE(audit_id, generation) constraint catches racing writers from other
// processes and the insert is retried with a fresh number.
func (s *SQLiteStorage) CreateWorkflow(ctx context.Context, wf *types.AuditWorkflow, claims []*types.WorkflowClaim, matches []*types.RuleMatch) error {
	var lastErr error
	for attempt := 0; attempt <= maxGenerationRetries; attempt++ {
		err := s.createWorkflowOnce(ctx, wf, claims, matches)
		if err == nil {
			return nil
		}
		if !isUniqueConstraintErr(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("generation allocation conflicted %d times for audit %s: %w",
		maxGenerationRetries+1, wf.AuditID, lastErr)
}

func (s *SQLiteStorage) createWorkflowOnce(ctx context.Context, wf *types.AuditWorkflow, claims []*types.WorkflowClaim, matches []*types.RuleMatch) error {
	conn, commit, cleanup, err := s.immediateTx(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	// Verify the audit exists before any writes
	var auditCount int
	err = conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM audits WHERE id = ?`, wf.AuditID).Scan(&auditCount)
	if err != nil {
		return fmt.Errorf("failed to check audit: %w", err)
	}
	if auditCount == 0 {
		return fmt.Errorf("audit %s: %w", wf.AuditID, ErrNotFound)
	}

	var maxGen sql.NullInt64
	err = conn.QueryRowContext(ctx,
		`SELECT MAX(generation) FROM audit_workflows WHERE audit_id = ?`, wf.AuditID).Scan(&maxGen)
	if err != nil {
		return fmt.Errorf("failed to query max generation: %w", err)
	}
	wf.Generation = 1
	if maxGen.Valid {
		wf.Generation = int(maxGen.Int64) + 1
	}

	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	now := time.Now()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	if wf.Status == "" {
		wf.Status = types.WorkflowGenerated
	}
	if wf.Certification == "" {
		wf.Certification = types.CertNone
	}

	categoryJSON, err := json.Marshal(wf.CategoryScores)
	if err != nil {
		return fmt.Errorf("failed to marshal category scores: %w", err)
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO audit_workflows (
			id, audit_id, generation, status, overall_score, certification,
			category_scores, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, wf.ID, wf.AuditID, wf.Generation, wf.Status, wf.OverallScore,
		wf.Certification, string(categoryJSON), wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}

	for _, claim := range claims {
		if claim.ID == "" {
			claim.ID = uuid.NewString()
		}
		claim.WorkflowID = wf.ID
		claim.CreatedAt = now
		if claim.Status == "" {
			claim.Status = types.ClaimRequired
		}

		_, err = conn.ExecContext(ctx, `
			INSERT INTO audit_workflow_claims (id, workflow_id, claim_id, required, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, claim.ID, claim.WorkflowID, claim.ClaimID, claim.Required, claim.Status, claim.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert workflow claim %s: %w", claim.ClaimID, err)
		}

		for _, src := range claim.Sources {
			src.WorkflowClaimID = claim.ID
			_, err = conn.ExecContext(ctx, `
				INSERT INTO audit_workflow_claim_sources (workflow_claim_id, rule_id, rule_code, rule_version, required)
				VALUES (?, ?, ?, ?, ?)
			`, src.WorkflowClaimID, src.RuleID, src.RuleCode, src.RuleVersion, src.Required)
			if err != nil {
				return fmt.Errorf("failed to insert claim source for rule %s: %w", src.RuleID, err)
			}
		}
	}

	for _, match := range matches {
		match.WorkflowID = wf.ID
		_, err = conn.ExecContext(ctx, `
			INSERT INTO audit_workflow_rule_matches (workflow_id, rule_id, rule_code, rule_version, matched, error)
			VALUES (?, ?, ?, ?, ?, ?)
		`, match.WorkflowID, match.RuleID, match.RuleCode, match.RuleVersion, match.Matched, match.Error)
		if err != nil {
			return fmt.Errorf("failed to insert rule match for rule %s: %w", match.RuleID, err)
		}
	}

	return commit()
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetWorkflow retrieves a workflow by ID with claims and their sources joined
func (s *SQLiteStorage) GetWorkflow(ctx context.Context, id string) (*types.AuditWorkflow, error) {
	return s.scanWorkflow(ctx, s.db.QueryRowContext(ctx, `
		SELECT id, audit_id, generation, status, overall_score, certification,
		       category_scores, created_at, updated_at
		FROM audit_workflows
		WHERE id = ?
	`, id))
}

// GetLatestWorkflow retrieves the highest-generation workflow for an audit
func (s *SQLiteStorage) GetLatestWorkflow(ctx context.Context, auditID string) (*types.AuditWorkflow, error) {
	return s.scanWorkflow(ctx, s.db.QueryRowContext(ctx, `
		SELECT id, audit_id, generation, status, overall_score, certification,
		       category_scores, created_at, updated_at
		FROM audit_workflows
		WHERE audit_id = ?
		ORDER BY generation DESC
		LIMIT 1
	`, auditID))
}

func (s *SQLiteStorage) scanWorkflow(ctx context.Context, row rowScanner) (*types.AuditWorkflow, error) {
	var wf types.AuditWorkflow
	var overallScore sql.NullFloat64
	var categoryJSON string

	err := row.Scan(&wf.ID, &wf.AuditID, &wf.Generation, &wf.Status,
		&overallScore, &wf.Certification, &categoryJSON, &wf.CreatedAt, &wf.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if overallScore.Valid {
		wf.OverallScore = &overallScore.Float64
	}
	if err := json.Unmarshal([]byte(categoryJSON), &wf.CategoryScores); err != nil {
		return nil, fmt.Errorf("failed to unmarshal category scores: %w", err)
	}

	claims, err := s.workflowClaims(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	wf.Claims = claims
	return &wf, nil
}

// workflowClaims loads the claim set for a workflow, with the underlying
// evidence claims and provenance sources joined.
func (s *SQLiteStorage) workflowClaims(ctx context.Context, workflowID string) ([]*types.WorkflowClaim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wc.id, wc.workflow_id, wc.claim_id, wc.required, wc.status, wc.created_at,
		       c.category, c.type, c.name, c.weight, c.criteria, c.created_at, c.updated_at
		FROM audit_workflow_claims wc
		JOIN evidence_claims c ON c.id = wc.claim_id
		WHERE wc.workflow_id = ?
		ORDER BY c.category ASC, c.name ASC
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow claims: %w", err)
	}
	defer rows.Close()

	var claims []*types.WorkflowClaim
	for rows.Next() {
		var wc types.WorkflowClaim
		var claim types.EvidenceClaim
		var criteriaJSON string

		err := rows.Scan(&wc.ID, &wc.WorkflowID, &wc.ClaimID, &wc.Required, &wc.Status, &wc.CreatedAt,
			&claim.Category, &claim.Type, &claim.Name, &claim.Weight, &criteriaJSON,
			&claim.CreatedAt, &claim.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow claim: %w", err)
		}
		claim.ID = wc.ClaimID
		if err := json.Unmarshal([]byte(criteriaJSON), &claim.Criteria); err != nil {
			return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
		}
		wc.Claim = &claim
		claims = append(claims, &wc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, wc := range claims {
		sources, err := s.claimSources(ctx, wc.ID)
		if err != nil {
			return nil, err
		}
		wc.Sources = sources
	}
	return claims, nil
}

func (s *SQLiteStorage) claimSources(ctx context.Context, workflowClaimID string) ([]*types.ClaimSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_claim_id, rule_id, rule_code, rule_version, required
		FROM audit_workflow_claim_sources
		WHERE workflow_claim_id = ?
		ORDER BY rule_code ASC, rule_version ASC
	`, workflowClaimID)
	if err != nil {
		return nil, fmt.Errorf("failed to query claim sources: %w", err)
	}
	defer rows.Close()

	var sources []*types.ClaimSource
	for rows.Next() {
		var src types.ClaimSource
		if err := rows.Scan(&src.WorkflowClaimID, &src.RuleID, &src.RuleCode, &src.RuleVersion, &src.Required); err != nil {
			return nil, fmt.Errorf("failed to scan claim source: %w", err)
		}
		sources = append(sources, &src)
	}
	return sources, rows.Err()
}

// ListRuleMatches returns the full evaluation trail for a workflow generation
func (s *SQLiteStorage) ListRuleMatches(ctx context.Context, workflowID string) ([]*types.RuleMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_id, rule_id, rule_code, rule_version, matched, error
		FROM audit_workflow_rule_matches
		WHERE workflow_id = ?
		ORDER BY rule_code ASC, rule_version ASC
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule matches: %w", err)
	}
	defer rows.Close()

	var matches []*types.RuleMatch
	for rows.Next() {
		var m types.RuleMatch
		if err := rows.Scan(&m.WorkflowID, &m.RuleID, &m.RuleCode, &m.RuleVersion, &m.Matched, &m.Error); err != nil {
			return nil, fmt.Errorf("failed to scan rule match: %w", err)
		}
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

// UpdateWorkflowStatus sets the workflow status
func (s *SQLiteStorage) UpdateWorkflowStatus(ctx context.Context, id string, status types.WorkflowStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: invalid workflow status %s", ErrValidation, status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE audit_workflows SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update workflow status: %w", err)
	}
	return checkAffected(res, "workflow", id)
}

// UpdateWorkflowRollup writes the aggregate processing outcome in one update
func (s *SQLiteStorage) UpdateWorkflowRollup(ctx context.Context, id string, status types.WorkflowStatus, overall *float64, cert types.Certification, categories map[string]types.CategoryScore) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: invalid workflow status %s", ErrValidation, status)
	}
	categoryJSON, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("failed to marshal category scores: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE audit_workflows
		SET status = ?, overall_score = ?, certification = ?, category_scores = ?, updated_at = ?
		WHERE id = ?
	`, status, overall, cert, string(categoryJSON), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update workflow rollup: %w", err)
	}
	return checkAffected(res, "workflow", id)
}

// GetWorkflowClaim retrieves one workflow claim with its evidence claim joined
func (s *SQLiteStorage) GetWorkflowClaim(ctx context.Context, id string) (*types.WorkflowClaim, error) {
	var wc types.WorkflowClaim
	var claim types.EvidenceClaim
	var criteriaJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT wc.id, wc.workflow_id, wc.claim_id, wc.required, wc.status, wc.created_at,
		       c.category, c.type, c.name, c.weight, c.criteria, c.created_at, c.updated_at
		FROM audit_workflow_claims wc
		JOIN evidence_claims c ON c.id = wc.claim_id
		WHERE wc.id = ?
	`, id).Scan(&wc.ID, &wc.WorkflowID, &wc.ClaimID, &wc.Required, &wc.Status, &wc.CreatedAt,
		&claim.Category, &claim.Type, &claim.Name, &claim.Weight, &criteriaJSON,
		&claim.CreatedAt, &claim.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow claim %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow claim: %w", err)
	}

	claim.ID = wc.ClaimID
	if err := json.Unmarshal([]byte(criteriaJSON), &claim.Criteria); err != nil {
		return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
	}
	wc.Claim = &claim
	return &wc, nil
}

// UpdateWorkflowClaimStatus sets the legacy convenience flag on a workflow claim
func (s *SQLiteStorage) UpdateWorkflowClaimStatus(ctx context.Context, workflowClaimID string, status types.ClaimStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE audit_workflow_claims SET status = ? WHERE id = ?`,
		status, workflowClaimID)
	if err != nil {
		return fmt.Errorf("failed to update workflow claim status: %w", err)
	}
	return checkAffected(res, "workflow claim", workflowClaimID)
}

func checkAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}
