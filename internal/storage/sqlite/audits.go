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

// CreateAudit inserts an audit record with its snapshot document
func (s *SQLiteStorage) CreateAudit(ctx context.Context, audit *types.Audit) error {
	if err := audit.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	now := time.Now()
	audit.CreatedAt = now
	audit.UpdatedAt = now

	snapshotJSON, err := json.Marshal(audit.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audits (id, brand_name, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, audit.ID, audit.BrandName, string(snapshotJSON), audit.CreatedAt, audit.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit: %w", err)
	}
	return nil
}

// GetAudit retrieves an audit by ID
func (s *SQLiteStorage) GetAudit(ctx context.Context, id string) (*types.Audit, error) {
	var audit types.Audit
	var snapshotJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, brand_name, snapshot, created_at, updated_at
		FROM audits
		WHERE id = ?
	`, id).Scan(&audit.ID, &audit.BrandName, &snapshotJSON, &audit.CreatedAt, &audit.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("audit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit: %w", err)
	}

	if err := json.Unmarshal([]byte(snapshotJSON), &audit.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &audit, nil
}

// GetAuditSnapshot returns the audit's structured snapshot document. The
// JSON round-trip through the column means callers always get an independent
// deep copy; mutating it cannot affect stored state or other readers.
func (s *SQLiteStorage) GetAuditSnapshot(ctx context.Context, auditID string) (map[string]interface{}, error) {
	audit, err := s.GetAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	return audit.Snapshot, nil
}
