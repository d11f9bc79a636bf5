package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ecovet/ecovet/internal/types"
)

// createTestWorkflowClaim creates an audit, workflow, and one workflow claim
func createTestWorkflowClaim(t *testing.T, store *SQLiteStorage) (*types.AuditWorkflow, *types.WorkflowClaim) {
	t.Helper()
	ctx := context.Background()
	audit := createTestAudit(t, store)
	claim := createTestClaim(t, store, "materials", "Organic certificate")

	wf := &types.AuditWorkflow{AuditID: audit.ID}
	claims := []*types.WorkflowClaim{{ClaimID: claim.ID, Required: true}}
	if err := store.CreateWorkflow(ctx, wf, claims, nil); err != nil {
		t.Fatalf("Failed to create workflow: %v", err)
	}
	return wf, claims[0]
}

func createTestSubmission(t *testing.T, store *SQLiteStorage, wc *types.WorkflowClaim) *types.EvidenceSubmission {
	t.Helper()
	sub := &types.EvidenceSubmission{
		WorkflowClaimID: wc.ID,
		FilePath:        "evidence/cert.pdf",
		FileName:        "cert.pdf",
		MimeType:        "application/pdf",
	}
	if err := store.CreateSubmission(context.Background(), sub); err != nil {
		t.Fatalf("Failed to create submission: %v", err)
	}
	return sub
}

func TestCreateSubmissionResolvesWorkflow(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	wf, wc := createTestWorkflowClaim(t, store)
	sub := createTestSubmission(t, store, wc)

	if sub.WorkflowID != wf.ID {
		t.Errorf("Expected workflow %s resolved from claim, got %s", wf.ID, sub.WorkflowID)
	}
	if sub.Status != types.SubmissionPending {
		t.Errorf("Expected pending_processing, got %s", sub.Status)
	}
}

func TestCreateSubmissionUnknownClaim(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	sub := &types.EvidenceSubmission{WorkflowClaimID: "nonexistent", FilePath: "x.pdf"}
	err := store.CreateSubmission(context.Background(), sub)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTransitionSubmissionStateMachine(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	_, wc := createTestWorkflowClaim(t, store)
	sub := createTestSubmission(t, store, wc)

	// pending → complete skips processing and must be rejected
	err := store.TransitionSubmission(ctx, sub.ID, types.SubmissionProcessingComplete)
	if !errors.Is(err, ErrStateConflict) {
		t.Errorf("Expected ErrStateConflict, got %v", err)
	}

	// pending → processing stamps the start time
	if err := store.TransitionSubmission(ctx, sub.ID, types.SubmissionProcessing); err != nil {
		t.Fatalf("Transition to processing failed: %v", err)
	}
	got, _ := store.GetSubmission(ctx, sub.ID)
	if got.Status != types.SubmissionProcessing {
		t.Errorf("Expected processing, got %s", got.Status)
	}
	if got.ProcessingStartedAt == nil {
		t.Error("Expected processing_started_at to be stamped")
	}

	// processing → needs_review is terminal for the automated stage
	if err := store.TransitionSubmission(ctx, sub.ID, types.SubmissionNeedsReview); err != nil {
		t.Fatalf("Transition to needs_review failed: %v", err)
	}
	err = store.TransitionSubmission(ctx, sub.ID, types.SubmissionProcessing)
	if !errors.Is(err, ErrStateConflict) {
		t.Errorf("Expected ErrStateConflict from terminal state, got %v", err)
	}
}

func TestCompleteSubmissionStoresAnalysisOutcome(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	_, wc := createTestWorkflowClaim(t, store)
	sub := createTestSubmission(t, store, wc)
	if err := store.TransitionSubmission(ctx, sub.ID, types.SubmissionProcessing); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	confidence := 87.0
	sub.Status = types.SubmissionProcessingComplete
	sub.MatchDecision = types.DecisionMatch
	sub.ConfidenceScore = &confidence
	sub.Classification = "certificate"
	sub.ExtractedContent = "GOTS certificate no. 1234"
	sub.AnalysisResponse = `{"overall_verdict":"pass"}`
	sub.EvaluationReasons = &types.EvaluationReasons{
		Verdict: "pass",
		ClaimReasoning: []types.ClaimReasoning{
			{Criterion: "issued by an accredited body", Satisfied: true, Reasoning: "issuer is GOTS-approved", Confidence: 0.9},
		},
	}

	if err := store.CompleteSubmission(ctx, sub); err != nil {
		t.Fatalf("CompleteSubmission failed: %v", err)
	}

	got, err := store.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission failed: %v", err)
	}
	if got.Status != types.SubmissionProcessingComplete {
		t.Errorf("Expected processing_complete, got %s", got.Status)
	}
	if got.MatchDecision != types.DecisionMatch {
		t.Errorf("Expected match, got %s", got.MatchDecision)
	}
	if got.ConfidenceScore == nil || *got.ConfidenceScore != 87.0 {
		t.Errorf("Expected confidence 87, got %v", got.ConfidenceScore)
	}
	if got.AnalysisResponse == "" {
		t.Error("Expected raw analysis response to be stored verbatim")
	}
	if got.EvaluationReasons == nil || got.EvaluationReasons.Verdict != "pass" {
		t.Errorf("Evaluation reasons not round-tripped: %+v", got.EvaluationReasons)
	}
	if got.ProcessedAt == nil {
		t.Error("Expected processed_at to be stamped")
	}
}

func TestFailSubmissionCapturesDiagnostics(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	_, wc := createTestWorkflowClaim(t, store)
	sub := createTestSubmission(t, store, wc)
	_ = store.TransitionSubmission(ctx, sub.ID, types.SubmissionProcessing)

	if err := store.FailSubmission(ctx, sub.ID, "analysis service unavailable"); err != nil {
		t.Fatalf("FailSubmission failed: %v", err)
	}

	got, _ := store.GetSubmission(ctx, sub.ID)
	if got.Status != types.SubmissionProcessingFailed {
		t.Errorf("Expected processing_failed, got %s", got.Status)
	}
	if got.ErrorMessage != "analysis service unavailable" {
		t.Errorf("Expected error message captured, got %q", got.ErrorMessage)
	}
	if got.ProcessedAt == nil {
		t.Error("Expected processed_at to be stamped on failure")
	}
}

func TestReviewSubmission(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	_, wc := createTestWorkflowClaim(t, store)
	sub := createTestSubmission(t, store, wc)

	// Pending submissions cannot be reviewed
	err := store.ReviewSubmission(ctx, sub.ID, types.ReviewAccepted, "auditor")
	if !errors.Is(err, ErrStateConflict) {
		t.Errorf("Expected ErrStateConflict reviewing pending submission, got %v", err)
	}

	_ = store.TransitionSubmission(ctx, sub.ID, types.SubmissionProcessing)
	_ = store.TransitionSubmission(ctx, sub.ID, types.SubmissionNeedsReview)

	if err := store.ReviewSubmission(ctx, sub.ID, types.ReviewAccepted, "auditor"); err != nil {
		t.Fatalf("ReviewSubmission failed: %v", err)
	}
	got, _ := store.GetSubmission(ctx, sub.ID)
	if got.ReviewDecision != types.ReviewAccepted {
		t.Errorf("Expected accepted, got %s", got.ReviewDecision)
	}
	if got.ReviewedBy != "auditor" {
		t.Errorf("Expected reviewer recorded, got %q", got.ReviewedBy)
	}
}

func TestRequeueStaleSubmissions(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	_, wc := createTestWorkflowClaim(t, store)
	stuck := createTestSubmission(t, store, wc)
	fresh := createTestSubmission(t, store, wc)

	_ = store.TransitionSubmission(ctx, stuck.ID, types.SubmissionProcessing)
	_ = store.TransitionSubmission(ctx, fresh.ID, types.SubmissionProcessing)

	// Backdate the stuck submission's pickup time
	_, err := store.db.ExecContext(ctx,
		`UPDATE evidence_submissions SET processing_started_at = ? WHERE id = ?`,
		time.Now().Add(-2*time.Hour), stuck.ID)
	if err != nil {
		t.Fatalf("Failed to backdate submission: %v", err)
	}

	n, err := store.RequeueStaleSubmissions(ctx, time.Hour)
	if err != nil {
		t.Fatalf("RequeueStaleSubmissions failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 requeued submission, got %d", n)
	}

	gotStuck, _ := store.GetSubmission(ctx, stuck.ID)
	if gotStuck.Status != types.SubmissionPending {
		t.Errorf("Expected stuck submission requeued to pending, got %s", gotStuck.Status)
	}
	gotFresh, _ := store.GetSubmission(ctx, fresh.ID)
	if gotFresh.Status != types.SubmissionProcessing {
		t.Errorf("Expected fresh submission untouched, got %s", gotFresh.Status)
	}
}
