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

// CreateRule inserts a new rule version. The version number is allocated
// inside a BEGIN IMMEDIATE transaction as max(existing versions for the
// code)+1, so concurrent creators of the same code cannot collide.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *types.Rule, actor string) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	treeJSON, err := json.Marshal(rule.ConditionTree)
	if err != nil {
		return fmt.Errorf("failed to marshal condition tree: %w", err)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	rule.CreatedBy = actor
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	conn, commit, cleanup, err := s.immediateTx(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	// Allocate version inside the write lock
	var maxVersion sql.NullInt64
	err = conn.QueryRowContext(ctx,
		`SELECT MAX(version) FROM rules WHERE code = ?`, rule.Code).Scan(&maxVersion)
	if err != nil {
		return fmt.Errorf("failed to query max version for code %s: %w", rule.Code, err)
	}
	rule.Version = 1
	if maxVersion.Valid {
		rule.Version = int(maxVersion.Int64) + 1
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO rules (
			id, code, version, name, description, state, condition_tree,
			replaces_rule_id, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rule.ID, rule.Code, rule.Version, rule.Name, rule.Description,
		rule.State, string(treeJSON), nullString(rule.ReplacesRuleID),
		rule.CreatedBy, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return commit()
}

// GetRule retrieves a rule by ID with its claim associations joined
func (s *SQLiteStorage) GetRule(ctx context.Context, id string) (*types.Rule, error) {
	rule, err := s.scanRule(ctx, s.db.QueryRowContext(ctx, `
		SELECT id, code, version, name, description, state, condition_tree,
		       replaces_rule_id, created_by, created_at, updated_at,
		       published_at, disabled_at
		FROM rules
		WHERE id = ?
	`, id))
	if err != nil {
		return nil, err
	}

	claims, err := s.ruleClaims(ctx, rule.ID)
	if err != nil {
		return nil, err
	}
	rule.Claims = claims
	return rule, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLiteStorage) scanRule(ctx context.Context, row rowScanner) (*types.Rule, error) {
	var rule types.Rule
	var treeJSON string
	var replacesRuleID sql.NullString
	var publishedAt, disabledAt sql.NullTime

	err := row.Scan(
		&rule.ID, &rule.Code, &rule.Version, &rule.Name, &rule.Description,
		&rule.State, &treeJSON, &replacesRuleID, &rule.CreatedBy,
		&rule.CreatedAt, &rule.UpdatedAt, &publishedAt, &disabledAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	if err := json.Unmarshal([]byte(treeJSON), &rule.ConditionTree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal condition tree for rule %s: %w", rule.ID, err)
	}
	if replacesRuleID.Valid {
		rule.ReplacesRuleID = replacesRuleID.String
	}
	if publishedAt.Valid {
		rule.PublishedAt = &publishedAt.Time
	}
	if disabledAt.Valid {
		rule.DisabledAt = &disabledAt.Time
	}
	return &rule, nil
}

// ruleClaims loads the claim associations for one rule, ordered by sort_order
func (s *SQLiteStorage) ruleClaims(ctx context.Context, ruleID string) ([]*types.RuleClaim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.category, c.type, c.name, c.weight, c.criteria,
		       c.created_at, c.updated_at, rc.required, rc.sort_order
		FROM rule_evidence_claims rc
		JOIN evidence_claims c ON c.id = rc.claim_id
		WHERE rc.rule_id = ?
		ORDER BY rc.sort_order ASC, c.id ASC
	`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule claims: %w", err)
	}
	defer rows.Close()

	var claims []*types.RuleClaim
	for rows.Next() {
		var claim types.EvidenceClaim
		var criteriaJSON string
		var rc types.RuleClaim

		err := rows.Scan(
			&claim.ID, &claim.Category, &claim.Type, &claim.Name, &claim.Weight,
			&criteriaJSON, &claim.CreatedAt, &claim.UpdatedAt,
			&rc.Required, &rc.SortOrder,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule claim: %w", err)
		}
		if err := json.Unmarshal([]byte(criteriaJSON), &claim.Criteria); err != nil {
			return nil, fmt.Errorf("failed to unmarshal criteria for claim %s: %w", claim.ID, err)
		}
		rc.Claim = &claim
		claims = append(claims, &rc)
	}
	return claims, rows.Err()
}

// ListRules finds rules matching the filter, with claim associations joined
func (s *SQLiteStorage) ListRules(ctx context.Context, filter types.RuleFilter) ([]*types.Rule, error) {
	whereClauses := []string{}
	args := []interface{}{}

	if filter.State != nil {
		whereClauses = append(whereClauses, "state = ?")
		args = append(args, *filter.State)
	}
	if filter.Code != nil {
		whereClauses = append(whereClauses, "code = ?")
		args = append(args, *filter.Code)
	}
	if filter.Search != "" {
		whereClauses = append(whereClauses, "(name LIKE ? OR description LIKE ? OR code LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = "WHERE " + strings.Join(whereClauses, " AND ")
	}
	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	querySQL := fmt.Sprintf(`
		SELECT id, code, version, name, description, state, condition_tree,
		       replaces_rule_id, created_by, created_at, updated_at,
		       published_at, disabled_at
		FROM rules
		%s
		ORDER BY code ASC, version DESC
		%s
	`, whereSQL, limitSQL)

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*types.Rule
	for rows.Next() {
		rule, err := s.scanRule(ctx, rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rule := range rules {
		claims, err := s.ruleClaims(ctx, rule.ID)
		if err != nil {
			return nil, err
		}
		rule.Claims = claims
	}
	return rules, nil
}

// Allowed fields for draft update to prevent SQL injection
var allowedRuleUpdateFields = map[string]bool{
	"name":           true,
	"description":    true,
	"condition_tree": true,
}

// UpdateRuleDraft updates mutable fields on a DRAFT rule. Published and
// disabled rules are immutable except for disabling.
func (s *SQLiteStorage) UpdateRuleDraft(ctx context.Context, id string, updates map[string]interface{}, actor string) error {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if rule.State != types.RuleStateDraft {
		return fmt.Errorf("%w: rule %s is %s, only draft rules are mutable", ErrStateConflict, id, rule.State)
	}

	setClauses := []string{"updated_at = ?"}
	args := []interface{}{time.Now()}

	for key, value := range updates {
		if !allowedRuleUpdateFields[key] {
			return fmt.Errorf("%w: invalid field for update: %s", ErrValidation, key)
		}
		if key == "condition_tree" {
			node, ok := value.(*types.ConditionNode)
			if !ok {
				return fmt.Errorf("%w: condition_tree must be a condition node", ErrValidation)
			}
			treeJSON, err := json.Marshal(node)
			if err != nil {
				return fmt.Errorf("failed to marshal condition tree: %w", err)
			}
			value = string(treeJSON)
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", key))
		args = append(args, value)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE rules SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

// TransitionRuleState applies a lifecycle transition, stamping published_at
// or disabled_at as appropriate. Disabling an already-disabled rule is an
// idempotent no-op; every other illegal transition is a state conflict.
func (s *SQLiteStorage) TransitionRuleState(ctx context.Context, id string, target types.RuleState, actor string) error {
	if !target.IsValid() {
		return fmt.Errorf("%w: invalid target state %s", ErrValidation, target)
	}

	conn, commit, cleanup, err := s.immediateTx(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var current types.RuleState
	err = conn.QueryRowContext(ctx, `SELECT state FROM rules WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read rule state: %w", err)
	}

	if current == types.RuleStateDisabled && target == types.RuleStateDisabled {
		return commit() // idempotent
	}
	if !current.CanTransitionTo(target) {
		return fmt.Errorf("%w: cannot transition rule %s from %s to %s", ErrStateConflict, id, current, target)
	}

	now := time.Now()
	switch target {
	case types.RuleStatePublished:
		_, err = conn.ExecContext(ctx,
			`UPDATE rules SET state = ?, published_at = ?, updated_at = ? WHERE id = ?`,
			target, now, now, id)
	case types.RuleStateDisabled:
		_, err = conn.ExecContext(ctx,
			`UPDATE rules SET state = ?, disabled_at = ?, updated_at = ? WHERE id = ?`,
			target, now, now, id)
	default:
		return fmt.Errorf("%w: cannot transition rule %s to %s", ErrStateConflict, id, target)
	}
	if err != nil {
		return fmt.Errorf("failed to transition rule state: %w", err)
	}

	return commit()
}

// DeleteRule deletes a draft or disabled rule. Published rules and rules
// referenced by workflow claim sources or rule-match rows are protected.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id string) error {
	conn, commit, cleanup, err := s.immediateTx(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var state types.RuleState
	err = conn.QueryRowContext(ctx, `SELECT state FROM rules WHERE id = ?`, id).Scan(&state)
	if err == sql.ErrNoRows {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read rule state: %w", err)
	}

	if state == types.RuleStatePublished {
		return fmt.Errorf("%w: cannot delete published rule %s", ErrStateConflict, id)
	}

	var refs int
	err = conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM audit_workflow_claim_sources WHERE rule_id = ?) +
			(SELECT COUNT(*) FROM audit_workflow_rule_matches WHERE rule_id = ?) +
			(SELECT COUNT(*) FROM rules WHERE replaces_rule_id = ?)
	`, id, id, id).Scan(&refs)
	if err != nil {
		return fmt.Errorf("failed to count rule references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("%w: rule %s is referenced by %d rows", ErrReferentialConflict, id, refs)
	}

	if _, err := conn.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	return commit()
}

// ReplaceRuleClaims fully replaces a rule's claim associations with
// delete-then-reinsert semantics. The claim set is part of the versioned
// rule, so only DRAFT rules accept it; a published rule gets a new version
// via clone instead.
func (s *SQLiteStorage) ReplaceRuleClaims(ctx context.Context, ruleID string, attachments []types.ClaimAttachment, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var state types.RuleState
	err = tx.QueryRowContext(ctx, `SELECT state FROM rules WHERE id = ?`, ruleID).Scan(&state)
	if err == sql.ErrNoRows {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read rule state: %w", err)
	}
	if state != types.RuleStateDraft {
		return fmt.Errorf("%w: cannot replace claims on %s rule %s", ErrStateConflict, state, ruleID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rule_evidence_claims WHERE rule_id = ?`, ruleID); err != nil {
		return fmt.Errorf("failed to clear rule claims: %w", err)
	}

	for _, att := range attachments {
		var claimExists int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM evidence_claims WHERE id = ?`, att.ClaimID).Scan(&claimExists)
		if err != nil {
			return fmt.Errorf("failed to check claim %s: %w", att.ClaimID, err)
		}
		if claimExists == 0 {
			return fmt.Errorf("claim %s: %w", att.ClaimID, ErrNotFound)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO rule_evidence_claims (rule_id, claim_id, required, sort_order)
			VALUES (?, ?, ?, ?)
		`, ruleID, att.ClaimID, att.Required, att.SortOrder)
		if err != nil {
			return fmt.Errorf("failed to attach claim %s: %w", att.ClaimID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE rules SET updated_at = ? WHERE id = ?`, time.Now(), ruleID); err != nil {
		return fmt.Errorf("failed to touch rule: %w", err)
	}

	return tx.Commit()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
