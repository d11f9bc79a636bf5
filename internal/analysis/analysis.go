// Package analysis provides AI-powered document analysis for evidence
// submissions.
package analysis

import (
	"context"

	"github.com/ecovet/ecovet/internal/types"
)

// Verdict values returned by the document analyzer
const (
	VerdictPass        = "pass"
	VerdictFail        = "fail"
	VerdictNeedsReview = "needs_review"
)

// Document is the analyzer input: one uploaded evidence file plus the claim
// it was submitted against.
type Document struct {
	FileName string
	MimeType string
	Content  []byte
	Claim    *types.EvidenceClaim
}

// ClaimEvaluation is the analyzer's judgment on one acceptance criterion
type ClaimEvaluation struct {
	Criterion  string  `json:"criterion"`
	Satisfied  bool    `json:"satisfied"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// Result is the structured outcome of analyzing one document against a claim.
// Raw carries the verbatim response payload so the full analysis is
// preserved even if this struct loses fields over time.
type Result struct {
	OverallVerdict       string            `json:"overall_verdict"`
	ConfidenceScore      float64           `json:"confidence_score"`
	Classification       string            `json:"classification"`
	ExtractedContent     string            `json:"extracted_content"`
	ClaimEvaluations     []ClaimEvaluation `json:"claim_evaluations"`
	AuthenticityAnalysis string            `json:"authenticity_analysis"`
	IssuerAnalysis       string            `json:"issuer_analysis"`
	Recommendations      []string          `json:"recommendations"`

	Raw string `json:"-"`
}

// DocumentAnalyzer analyzes an evidence document against a claim's
// acceptance criteria. Implementations must be safe for concurrent use.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, doc *Document) (*Result, error)
}
