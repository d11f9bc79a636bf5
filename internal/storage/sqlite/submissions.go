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

// CreateSubmission inserts a new evidence submission in pending state
func (s *SQLiteStorage) CreateSubmission(ctx context.Context, sub *types.EvidenceSubmission) error {
	if sub.Status == "" {
		sub.Status = types.SubmissionPending
	}
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.SubmittedAt = time.Now()

	// Resolve the owning workflow from the claim so callers don't have to
	if sub.WorkflowID == "" {
		err := s.db.QueryRowContext(ctx,
			`SELECT workflow_id FROM audit_workflow_claims WHERE id = ?`, sub.WorkflowClaimID).Scan(&sub.WorkflowID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("workflow claim %s: %w", sub.WorkflowClaimID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to resolve workflow for claim: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evidence_submissions (
			id, workflow_claim_id, workflow_id, file_path, file_name, mime_type,
			status, submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.ID, sub.WorkflowClaimID, sub.WorkflowID, sub.FilePath, sub.FileName,
		sub.MimeType, sub.Status, sub.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

// GetSubmission retrieves a submission by ID
func (s *SQLiteStorage) GetSubmission(ctx context.Context, id string) (*types.EvidenceSubmission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, `
		SELECT id, workflow_claim_id, workflow_id, file_path, file_name, mime_type,
		       status, match_decision, confidence_score, classification,
		       extracted_content, analysis_response, evaluation_reasons,
		       review_decision, reviewed_by, error_message,
		       submitted_at, processing_started_at, processed_at
		FROM evidence_submissions
		WHERE id = ?
	`, id))
	if err == errNoSubmissionRow {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	return sub, err
}

var errNoSubmissionRow = fmt.Errorf("no submission row")

func scanSubmission(row rowScanner) (*types.EvidenceSubmission, error) {
	var sub types.EvidenceSubmission
	var confidence sql.NullFloat64
	var reasonsJSON string
	var startedAt, processedAt sql.NullTime

	err := row.Scan(
		&sub.ID, &sub.WorkflowClaimID, &sub.WorkflowID, &sub.FilePath,
		&sub.FileName, &sub.MimeType, &sub.Status, &sub.MatchDecision,
		&confidence, &sub.Classification, &sub.ExtractedContent,
		&sub.AnalysisResponse, &reasonsJSON, &sub.ReviewDecision,
		&sub.ReviewedBy, &sub.ErrorMessage, &sub.SubmittedAt,
		&startedAt, &processedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errNoSubmissionRow
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}

	if confidence.Valid {
		sub.ConfidenceScore = &confidence.Float64
	}
	if startedAt.Valid {
		sub.ProcessingStartedAt = &startedAt.Time
	}
	if processedAt.Valid {
		sub.ProcessedAt = &processedAt.Time
	}
	if reasonsJSON != "" {
		if err := json.Unmarshal([]byte(reasonsJSON), &sub.EvaluationReasons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evaluation reasons: %w", err)
		}
	}
	return &sub, nil
}

// ListSubmissions finds submissions matching the filter
func (s *SQLiteStorage) ListSubmissions(ctx context.Context, filter types.SubmissionFilter) ([]*types.EvidenceSubmission, error) {
	whereClauses := []string{}
	args := []interface{}{}

	if filter.WorkflowID != "" {
		whereClauses = append(whereClauses, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != nil {
		whereClauses = append(whereClauses, "status = ?")
		args = append(args, *filter.Status)
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
		SELECT id, workflow_claim_id, workflow_id, file_path, file_name, mime_type,
		       status, match_decision, confidence_score, classification,
		       extracted_content, analysis_response, evaluation_reasons,
		       review_decision, reviewed_by, error_message,
		       submitted_at, processing_started_at, processed_at
		FROM evidence_submissions
		%s
		ORDER BY submitted_at ASC
		%s
	`, whereSQL, limitSQL)

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*types.EvidenceSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// TransitionSubmission applies a state-machine transition, stamping
// processing_started_at when the submission is picked up. The transition is
// committed on its own so a crash mid-processing is externally observable as
// "stuck in processing" rather than silently lost.
func (s *SQLiteStorage) TransitionSubmission(ctx context.Context, id string, target types.SubmissionStatus) error {
	if !target.IsValid() {
		return fmt.Errorf("%w: invalid submission status %s", ErrValidation, target)
	}

	conn, commit, cleanup, err := s.immediateTx(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var current types.SubmissionStatus
	err = conn.QueryRowContext(ctx, `SELECT status FROM evidence_submissions WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read submission status: %w", err)
	}

	if !current.CanTransitionTo(target) {
		return fmt.Errorf("%w: cannot transition submission %s from %s to %s", ErrStateConflict, id, current, target)
	}

	if target == types.SubmissionProcessing {
		_, err = conn.ExecContext(ctx,
			`UPDATE evidence_submissions SET status = ?, processing_started_at = ? WHERE id = ?`,
			target, time.Now(), id)
	} else {
		_, err = conn.ExecContext(ctx,
			`UPDATE evidence_submissions SET status = ? WHERE id = ?`, target, id)
	}
	if err != nil {
		return fmt.Errorf("failed to transition submission: %w", err)
	}

	return commit()
}

// CompleteSubmission writes the analysis outcome and terminal status in one
// update. The caller fills the derived fields on the submission.
func (s *SQLiteStorage) CompleteSubmission(ctx context.Context, sub *types.EvidenceSubmission) error {
	if !sub.Status.IsValid() {
		return fmt.Errorf("%w: invalid submission status %s", ErrValidation, sub.Status)
	}

	reasonsJSON := ""
	if sub.EvaluationReasons != nil {
		var err error
		reasonsJSON, err = sub.EvaluationReasons.MarshalReasons()
		if err != nil {
			return err
		}
	}

	now := time.Now()
	sub.ProcessedAt = &now

	res, err := s.db.ExecContext(ctx, `
		UPDATE evidence_submissions
		SET status = ?, match_decision = ?, confidence_score = ?, classification = ?,
		    extracted_content = ?, analysis_response = ?, evaluation_reasons = ?,
		    processed_at = ?
		WHERE id = ?
	`, sub.Status, sub.MatchDecision, sub.ConfidenceScore, sub.Classification,
		sub.ExtractedContent, sub.AnalysisResponse, reasonsJSON, now, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to complete submission: %w", err)
	}
	return checkAffected(res, "submission", sub.ID)
}

// FailSubmission marks a submission processing_failed with diagnostics
func (s *SQLiteStorage) FailSubmission(ctx context.Context, id string, errorMessage string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE evidence_submissions
		SET status = ?, error_message = ?, processed_at = ?
		WHERE id = ?
	`, types.SubmissionProcessingFailed, errorMessage, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to fail submission: %w", err)
	}
	return checkAffected(res, "submission", id)
}

// ReviewSubmission records a human review decision on a processed submission
func (s *SQLiteStorage) ReviewSubmission(ctx context.Context, id string, decision types.ReviewDecision, reviewer string) error {
	if !decision.IsValid() {
		return fmt.Errorf("%w: invalid review decision %s", ErrValidation, decision)
	}

	sub, err := s.GetSubmission(ctx, id)
	if err != nil {
		return err
	}
	if sub.Status != types.SubmissionProcessingComplete && sub.Status != types.SubmissionNeedsReview {
		return fmt.Errorf("%w: submission %s is %s, only processed submissions can be reviewed",
			ErrStateConflict, id, sub.Status)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE evidence_submissions SET review_decision = ?, reviewed_by = ? WHERE id = ?
	`, decision, reviewer, id)
	if err != nil {
		return fmt.Errorf("failed to review submission: %w", err)
	}
	return nil
}

// RequeueStaleSubmissions returns submissions stuck in processing past the
// threshold to pending. The pipeline has no mid-flight cancellation, so a
// crash between pickup and completion leaves rows here; this is the
// operational sweep that reconciles them.
func (s *SQLiteStorage) RequeueStaleSubmissions(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		UPDATE evidence_submissions
		SET status = ?, processing_started_at = NULL
		WHERE status = ? AND processing_started_at < ?
	`, types.SubmissionPending, types.SubmissionProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale submissions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}
