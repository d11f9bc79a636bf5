// Package pipeline drives evidence submissions through analysis.
//
// Each submission is an independent unit of work with its own transactions:
// one submission failing never rolls back or blocks another. A bounded pool
// caps how many analyzer calls run at once.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ecovet/ecovet/internal/analysis"
	"github.com/ecovet/ecovet/internal/files"
	"github.com/ecovet/ecovet/internal/scoring"
	"github.com/ecovet/ecovet/internal/storage"
	"github.com/ecovet/ecovet/internal/types"
)

// DefaultMaxConcurrent is the default ceiling on simultaneous analyzer calls
const DefaultMaxConcurrent = 5

// Pipeline processes evidence submissions against the document analyzer
type Pipeline struct {
	store         storage.Storage
	fileStore     files.Store
	analyzer      analysis.DocumentAnalyzer
	maxConcurrent int64
}

// Config holds pipeline configuration
type Config struct {
	Store         storage.Storage
	FileStore     files.Store
	Analyzer      analysis.DocumentAnalyzer
	MaxConcurrent int // Simultaneous analyzer calls (default: 5)
}

// New creates a new evidence pipeline
func New(cfg *Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.FileStore == nil {
		return nil, fmt.Errorf("file store is required")
	}
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	maxConcurrent := int64(cfg.MaxConcurrent)
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Pipeline{
		store:         cfg.Store,
		fileStore:     cfg.FileStore,
		analyzer:      cfg.Analyzer,
		maxConcurrent: maxConcurrent,
	}, nil
}

// ProcessOne runs a single submission through analysis.
//
// The PENDING_PROCESSING to PROCESSING transition is committed before the
// analyzer is invoked, so a crash mid-call leaves the submission visibly
// stuck in PROCESSING instead of silently lost. Analysis and file failures
// are recorded on the submission as PROCESSING_FAILED and never propagate;
// the returned error only reports work that could not be claimed at all.
func (p *Pipeline) ProcessOne(ctx context.Context, submissionID string) (err error) {
	if err := p.store.TransitionSubmission(ctx, submissionID, types.SubmissionProcessing); err != nil {
		return fmt.Errorf("failed to claim submission %s: %w", submissionID, err)
	}

	// A panic below must surface as a failed submission, not take down
	// sibling workers.
	defer func() {
		if r := recover(); r != nil {
			p.failSubmission(ctx, submissionID, fmt.Sprintf("panic during processing: %v", r))
			err = nil
		}
	}()

	sub, err := p.store.GetSubmission(ctx, submissionID)
	if err != nil {
		p.failSubmission(ctx, submissionID, fmt.Sprintf("failed to load submission: %v", err))
		return nil
	}

	wc, err := p.store.GetWorkflowClaim(ctx, sub.WorkflowClaimID)
	if err != nil {
		p.failSubmission(ctx, submissionID, fmt.Sprintf("failed to load workflow claim: %v", err))
		return nil
	}

	content, err := p.fileStore.Fetch(ctx, sub.FilePath)
	if err != nil {
		p.failSubmission(ctx, submissionID, fmt.Sprintf("failed to fetch evidence file: %v", err))
		return nil
	}
	if content == nil {
		p.failSubmission(ctx, submissionID, fmt.Sprintf("evidence file not found: %s", sub.FilePath))
		return nil
	}

	result, err := p.analyzer.Analyze(ctx, &analysis.Document{
		FileName: sub.FileName,
		MimeType: sub.MimeType,
		Content:  content,
		Claim:    wc.Claim,
	})
	if err != nil {
		p.failSubmission(ctx, submissionID, fmt.Sprintf("analysis failed: %v", err))
		return nil
	}

	p.applyResult(ctx, sub, result)
	return nil
}

// applyResult maps the analyzer verdict onto the submission and persists it
func (p *Pipeline) applyResult(ctx context.Context, sub *types.EvidenceSubmission, result *analysis.Result) {
	switch result.OverallVerdict {
	case analysis.VerdictPass:
		sub.Status = types.SubmissionProcessingComplete
		sub.MatchDecision = types.DecisionMatch
	case analysis.VerdictFail:
		// A clear non-match is recorded in fields; the pipeline run itself
		// completed normally.
		sub.Status = types.SubmissionProcessingComplete
		sub.MatchDecision = types.DecisionNoMatch
	default:
		sub.Status = types.SubmissionNeedsReview
		sub.MatchDecision = types.DecisionNeedsReview
	}

	confidence := result.ConfidenceScore
	sub.ConfidenceScore = &confidence
	sub.Classification = result.Classification
	sub.ExtractedContent = result.ExtractedContent
	sub.AnalysisResponse = result.Raw

	reasons := &types.EvaluationReasons{Verdict: result.OverallVerdict}
	for _, eval := range result.ClaimEvaluations {
		reasons.ClaimReasoning = append(reasons.ClaimReasoning, types.ClaimReasoning{
			Criterion:  eval.Criterion,
			Satisfied:  eval.Satisfied,
			Reasoning:  eval.Reasoning,
			Confidence: eval.Confidence,
		})
	}
	if result.OverallVerdict != analysis.VerdictPass {
		reasons.Recommendations = result.Recommendations
	}
	sub.EvaluationReasons = reasons

	if err := p.store.CompleteSubmission(ctx, sub); err != nil {
		p.failSubmission(ctx, sub.ID, fmt.Sprintf("failed to persist analysis outcome: %v", err))
		return
	}

	if sub.MatchDecision == types.DecisionMatch {
		if err := p.store.UpdateWorkflowClaimStatus(ctx, sub.WorkflowClaimID, types.ClaimSatisfied); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to mark workflow claim %s satisfied: %v\n", sub.WorkflowClaimID, err)
		}
	}
}

func (p *Pipeline) failSubmission(ctx context.Context, submissionID, message string) {
	fmt.Fprintf(os.Stderr, "Warning: submission %s failed: %s\n", submissionID, message)
	if err := p.store.FailSubmission(ctx, submissionID, message); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to record failure for submission %s: %v\n", submissionID, err)
	}
}

// ProcessWorkflowSubmissions processes every pending submission of a
// workflow under the concurrency ceiling, then rolls workflow status and
// scores up from the aggregate outcomes. The rollup runs even when
// submissions failed; a rollup failure is logged, never returned, so it
// cannot mask per-submission outcomes.
func (p *Pipeline) ProcessWorkflowSubmissions(ctx context.Context, workflowID string) error {
	pending := types.SubmissionPending
	subs, err := p.store.ListSubmissions(ctx, types.SubmissionFilter{
		WorkflowID: workflowID,
		Status:     &pending,
	})
	if err != nil {
		return fmt.Errorf("failed to list pending submissions: %w", err)
	}

	if err := p.store.UpdateWorkflowStatus(ctx, workflowID, types.WorkflowProcessing); err != nil {
		return fmt.Errorf("failed to mark workflow processing: %w", err)
	}

	fmt.Printf("Processing %d submissions for workflow %s (max %d concurrent)\n",
		len(subs), workflowID, p.maxConcurrent)

	sem := semaphore.NewWeighted(p.maxConcurrent)
	var wg sync.WaitGroup
	for _, sub := range subs {
		if err := sem.Acquire(ctx, 1); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: stopped dispatching submissions: %v\n", err)
			break
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)
			if err := p.ProcessOne(ctx, id); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}(sub.ID)
	}
	wg.Wait()

	if err := p.rollup(ctx, workflowID); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: workflow %s rollup failed: %v\n", workflowID, err)
	}
	return nil
}

// rollup recomputes workflow status, scores, and certification from the
// current submission outcomes.
func (p *Pipeline) rollup(ctx context.Context, workflowID string) error {
	wf, err := p.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}

	subs, err := p.store.ListSubmissions(ctx, types.SubmissionFilter{WorkflowID: workflowID})
	if err != nil {
		return err
	}
	byClaim := map[string][]*types.EvidenceSubmission{}
	anyFailed := false
	for _, sub := range subs {
		byClaim[sub.WorkflowClaimID] = append(byClaim[sub.WorkflowClaimID], sub)
		if sub.Status == types.SubmissionProcessingFailed {
			anyFailed = true
		}
	}

	outcomes := make([]scoring.ClaimOutcome, 0, len(wf.Claims))
	for _, wc := range wf.Claims {
		outcomes = append(outcomes, scoring.ClaimOutcome{
			Category:  wc.Claim.Category,
			Weight:    wc.Claim.Weight,
			Required:  wc.Required,
			Satisfied: scoring.Satisfied(byClaim[wc.ID]),
		})
	}
	overall, cert, categories := scoring.Compute(outcomes)

	status := types.WorkflowProcessingComplete
	if anyFailed {
		status = types.WorkflowProcessingFailed
	}

	return p.store.UpdateWorkflowRollup(ctx, workflowID, status, overall, cert, categories)
}

// Review records an auditor's decision on a submission and refreshes the
// workflow rollup so scores reflect the override.
func (p *Pipeline) Review(ctx context.Context, submissionID string, decision types.ReviewDecision, reviewer string) error {
	sub, err := p.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if err := p.store.ReviewSubmission(ctx, submissionID, decision, reviewer); err != nil {
		return err
	}
	if err := p.rollup(ctx, sub.WorkflowID); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: workflow %s rollup failed after review: %v\n", sub.WorkflowID, err)
	}
	return nil
}

// RequeueStale returns submissions stuck in PROCESSING past the threshold
// to PENDING_PROCESSING so a later pass can pick them up again. Covers
// crashes between claiming a submission and recording its outcome.
func (p *Pipeline) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	return p.store.RequeueStaleSubmissions(ctx, olderThan)
}
