package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ecovet/ecovet/internal/types"
)

// CreateClaim inserts a new evidence claim
func (s *SQLiteStorage) CreateClaim(ctx context.Context, claim *types.EvidenceClaim) error {
	if err := claim.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	now := time.Now()
	claim.CreatedAt = now
	claim.UpdatedAt = now

	criteriaJSON, err := json.Marshal(claim.Criteria)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evidence_claims (id, category, type, name, weight, criteria, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, claim.ID, claim.Category, claim.Type, claim.Name, claim.Weight,
		string(criteriaJSON), claim.CreatedAt, claim.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

// GetClaim retrieves an evidence claim by ID
func (s *SQLiteStorage) GetClaim(ctx context.Context, id string) (*types.EvidenceClaim, error) {
	var claim types.EvidenceClaim
	var criteriaJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, category, type, name, weight, criteria, created_at, updated_at
		FROM evidence_claims
		WHERE id = ?
	`, id).Scan(&claim.ID, &claim.Category, &claim.Type, &claim.Name,
		&claim.Weight, &criteriaJSON, &claim.CreatedAt, &claim.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("claim %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}

	if err := json.Unmarshal([]byte(criteriaJSON), &claim.Criteria); err != nil {
		return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
	}
	return &claim, nil
}

// ListClaims lists evidence claims, optionally filtered by category
func (s *SQLiteStorage) ListClaims(ctx context.Context, category string) ([]*types.EvidenceClaim, error) {
	query := `
		SELECT id, category, type, name, weight, criteria, created_at, updated_at
		FROM evidence_claims
	`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY category ASC, name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var claims []*types.EvidenceClaim
	for rows.Next() {
		var claim types.EvidenceClaim
		var criteriaJSON string
		err := rows.Scan(&claim.ID, &claim.Category, &claim.Type, &claim.Name,
			&claim.Weight, &criteriaJSON, &claim.CreatedAt, &claim.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		if err := json.Unmarshal([]byte(criteriaJSON), &claim.Criteria); err != nil {
			return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
		}
		claims = append(claims, &claim)
	}
	return claims, rows.Err()
}

// DeleteClaim deletes an evidence claim unless a rule or workflow still
// references it.
func (s *SQLiteStorage) DeleteClaim(ctx context.Context, id string) error {
	conn, commit, cleanup, err := s.immediateTx(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var exists int
	err = conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM evidence_claims WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check claim: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("claim %s: %w", id, ErrNotFound)
	}

	var refs int
	err = conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM rule_evidence_claims WHERE claim_id = ?) +
			(SELECT COUNT(*) FROM audit_workflow_claims WHERE claim_id = ?)
	`, id, id).Scan(&refs)
	if err != nil {
		return fmt.Errorf("failed to count claim references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("%w: claim %s is referenced by %d rows", ErrReferentialConflict, id, refs)
	}

	if _, err := conn.ExecContext(ctx, `DELETE FROM evidence_claims WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete claim: %w", err)
	}
	return commit()
}
