package analysis

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Default analyzer models. Document analysis needs vision-grade reasoning,
// so the default is Sonnet.
//
// Environment variable overrides:
// - ECOVET_MODEL_ANALYSIS: Override the analysis model
const (
	ModelSonnet = "claude-sonnet-4-5-20250929"
)

// GetAnalysisModel returns the analysis model, checking ECOVET_MODEL_ANALYSIS first
func GetAnalysisModel() string {
	if model := os.Getenv("ECOVET_MODEL_ANALYSIS"); model != "" {
		return model
	}
	return ModelSonnet
}

// maxDocumentBytes caps how much of a document is sent for analysis
const maxDocumentBytes = 4 * 1024 * 1024

// Analyzer is the Anthropic-backed document analyzer
type Analyzer struct {
	client         *anthropic.Client
	model          string
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	limiter        *rate.Limiter
}

// Compile-time check that Analyzer implements DocumentAnalyzer
var _ DocumentAnalyzer = (*Analyzer)(nil)

// Config holds analyzer configuration
type Config struct {
	APIKey string // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model  string // Model to use (default: claude-sonnet-4-5-20250929)
	Retry  RetryConfig
}

// NewAnalyzer creates a new Anthropic-backed document analyzer
func NewAnalyzer(cfg *Config) (*Analyzer, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetAnalysisModel()
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	var circuitBreaker *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		circuitBreaker = NewCircuitBreaker(
			retry.FailureThreshold,
			retry.SuccessThreshold,
			retry.OpenTimeout,
		)
	}

	var concurrencySem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	var limiter *rate.Limiter
	if retry.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(retry.RequestsPerSecond), 1)
	}

	return &Analyzer{
		client:         &client,
		model:          model,
		retry:          retry,
		circuitBreaker: circuitBreaker,
		concurrencySem: concurrencySem,
		limiter:        limiter,
	}, nil
}

// Analyze runs one document through the model and returns the structured
// verdict. Transport and parse failures come back as errors; a judgment the
// model could not make confidently comes back as a needs_review verdict.
func (a *Analyzer) Analyze(ctx context.Context, doc *Document) (*Result, error) {
	if doc == nil || doc.Claim == nil {
		return nil, fmt.Errorf("document and claim are required")
	}

	startTime := time.Now()
	prompt := a.buildAnalysisPrompt(doc)

	var response *anthropic.Message
	err := a.retryWithBackoff(ctx, "document-analysis", func(attemptCtx context.Context) error {
		resp, apiErr := a.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: 4096,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var responseText string
	for _, block := range response.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	result, err := parseAnalysisResponse(responseText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}

	fmt.Printf("Document analysis for %s: verdict=%s, confidence=%.1f, duration=%v\n",
		doc.FileName, result.OverallVerdict, result.ConfidenceScore, time.Since(startTime))

	return result, nil
}

// buildAnalysisPrompt assembles the claim criteria and the document payload.
// Text documents go in verbatim; binary formats are base64-encoded.
func (a *Analyzer) buildAnalysisPrompt(doc *Document) string {
	var sb strings.Builder

	sb.WriteString("You are a sustainability-audit evidence reviewer. ")
	sb.WriteString("Analyze the document below and judge whether it substantiates the evidence claim.\n\n")

	sb.WriteString(fmt.Sprintf("Evidence claim: %s\n", doc.Claim.Name))
	sb.WriteString(fmt.Sprintf("Category: %s\n", doc.Claim.Category))
	sb.WriteString(fmt.Sprintf("Expected document type: %s\n", doc.Claim.Type))
	sb.WriteString("Acceptance criteria:\n")
	for i, criterion := range doc.Claim.Criteria {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, criterion))
	}

	content := doc.Content
	truncated := false
	if len(content) > maxDocumentBytes {
		content = content[:maxDocumentBytes]
		truncated = true
	}

	sb.WriteString(fmt.Sprintf("\nDocument file name: %s\n", doc.FileName))
	sb.WriteString(fmt.Sprintf("Document MIME type: %s\n", doc.MimeType))
	if truncated {
		sb.WriteString("Note: the document was truncated for analysis.\n")
	}
	if isTextMime(doc.MimeType) && utf8.Valid(content) {
		sb.WriteString("\nDocument content:\n")
		sb.Write(content)
		sb.WriteString("\n")
	} else {
		sb.WriteString("\nDocument content (base64):\n")
		sb.WriteString(base64.StdEncoding.EncodeToString(content))
		sb.WriteString("\n")
	}

	sb.WriteString(`
Respond with ONLY a JSON object in this exact format:
{
  "overall_verdict": "pass|fail|needs_review",
  "confidence_score": 0-100,
  "classification": "what kind of document this is",
  "extracted_content": "the key facts extracted from the document",
  "claim_evaluations": [
    {"criterion": "...", "satisfied": true, "reasoning": "...", "confidence": 0.0-1.0}
  ],
  "authenticity_analysis": "signs the document is or is not genuine",
  "issuer_analysis": "who issued the document and whether they are credible",
  "recommendations": ["what the brand should submit instead, if anything"]
}

Verdict rules:
- "pass" only if every acceptance criterion is clearly satisfied
- "fail" if any criterion is clearly violated or the document is unrelated
- "needs_review" if the document is plausible but you cannot decide with confidence
`)

	return sb.String()
}

func isTextMime(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/csv":
		return true
	}
	return false
}
