package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EvidenceSubmission is one uploaded file attached to one workflow claim,
// plus the outcome of its automated evaluation.
type EvidenceSubmission struct {
	ID               string             `json:"id"`
	WorkflowClaimID  string             `json:"workflow_claim_id"`
	WorkflowID       string             `json:"workflow_id"`
	FilePath         string             `json:"file_path"`
	FileName         string             `json:"file_name"`
	MimeType         string             `json:"mime_type"`
	Status           SubmissionStatus   `json:"status"`
	MatchDecision    MatchDecision      `json:"match_decision,omitempty"`
	ConfidenceScore  *float64           `json:"confidence_score,omitempty"`
	Classification   string             `json:"classification,omitempty"`
	ExtractedContent string             `json:"extracted_content,omitempty"`
	AnalysisResponse string             `json:"analysis_response,omitempty"` // raw analyzer payload, stored verbatim
	EvaluationReasons *EvaluationReasons `json:"evaluation_reasons,omitempty"`
	ReviewDecision   ReviewDecision     `json:"review_decision,omitempty"`
	ReviewedBy       string             `json:"reviewed_by,omitempty"`
	ErrorMessage     string             `json:"error_message,omitempty"`
	SubmittedAt      time.Time          `json:"submitted_at"`
	ProcessingStartedAt *time.Time      `json:"processing_started_at,omitempty"`
	ProcessedAt      *time.Time         `json:"processed_at,omitempty"`
}

// Validate checks if the submission has valid field values
func (s *EvidenceSubmission) Validate() error {
	if s.WorkflowClaimID == "" {
		return fmt.Errorf("workflow_claim_id is required")
	}
	if s.FilePath == "" {
		return fmt.Errorf("file_path is required")
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", s.Status)
	}
	if s.ConfidenceScore != nil && (*s.ConfidenceScore < 0 || *s.ConfidenceScore > 100) {
		return fmt.Errorf("confidence_score must be between 0 and 100 (got %g)", *s.ConfidenceScore)
	}
	return nil
}

// SubmissionStatus represents the automated processing state of a submission
type SubmissionStatus string

const (
	SubmissionPending            SubmissionStatus = "pending_processing"
	SubmissionProcessing         SubmissionStatus = "processing"
	SubmissionProcessingComplete SubmissionStatus = "processing_complete"
	SubmissionNeedsReview        SubmissionStatus = "needs_review"
	SubmissionProcessingFailed   SubmissionStatus = "processing_failed"
)

// IsValid checks if the submission status value is valid
func (s SubmissionStatus) IsValid() bool {
	switch s {
	case SubmissionPending, SubmissionProcessing, SubmissionProcessingComplete,
		SubmissionNeedsReview, SubmissionProcessingFailed:
		return true
	}
	return false
}

// ValidTransitions defines the valid state transitions for the submission
// state machine.
//
// State Machine Diagram:
//
//	pending_processing → processing → processing_complete
//	                         ↓      ↘ needs_review
//	                         ↓
//	                  processing_failed
//
// processing_failed submissions may be requeued to pending_processing by the
// stale-submission reaper. Human review (accepted/rejected) is an annotation
// on terminal states, not a further automated transition.
func (s SubmissionStatus) ValidTransitions() []SubmissionStatus {
	switch s {
	case SubmissionPending:
		return []SubmissionStatus{SubmissionProcessing}
	case SubmissionProcessing:
		return []SubmissionStatus{SubmissionProcessingComplete, SubmissionNeedsReview, SubmissionProcessingFailed, SubmissionPending}
	case SubmissionProcessingFailed:
		return []SubmissionStatus{SubmissionPending}
	case SubmissionProcessingComplete, SubmissionNeedsReview:
		return []SubmissionStatus{} // Terminal for the automated stage
	default:
		return []SubmissionStatus{}
	}
}

// CanTransitionTo checks if a transition from this status to the target
// status is valid
func (s SubmissionStatus) CanTransitionTo(target SubmissionStatus) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// MatchDecision is the automated verdict on whether a document satisfies its
// claim
type MatchDecision string

const (
	DecisionMatch       MatchDecision = "match"
	DecisionNoMatch     MatchDecision = "no_match"
	DecisionNeedsReview MatchDecision = "needs_review"
)

// ReviewDecision is the human annotation on a processed submission
type ReviewDecision string

const (
	ReviewAccepted ReviewDecision = "accepted"
	ReviewRejected ReviewDecision = "rejected"
)

// IsValid checks if the review decision value is valid
func (d ReviewDecision) IsValid() bool {
	return d == ReviewAccepted || d == ReviewRejected
}

// EvaluationReasons is the structured reasoning stored alongside a processed
// submission. Recommendations are only populated when the verdict is not a
// pass.
type EvaluationReasons struct {
	Verdict         string            `json:"verdict"`
	ClaimReasoning  []ClaimReasoning  `json:"claim_reasoning"`
	Recommendations []string          `json:"recommendations,omitempty"`
}

// ClaimReasoning is the analyzer's per-criterion reasoning
type ClaimReasoning struct {
	Criterion string  `json:"criterion"`
	Satisfied bool    `json:"satisfied"`
	Reasoning string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// MarshalReasons serializes evaluation reasons for the JSON column
func (r *EvaluationReasons) MarshalReasons() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal evaluation reasons: %w", err)
	}
	return string(b), nil
}

// SubmissionFilter is used to filter submission queries
type SubmissionFilter struct {
	WorkflowID string
	Status     *SubmissionStatus
	Limit      int
}
