package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled regular expressions for response cleanup
var (
	codeFenceRegex     = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
)

// parseAnalysisResponse parses the model's response into a Result. Models
// sometimes wrap JSON in code fences or prose, so it falls back through
// progressively aggressive extraction before giving up.
func parseAnalysisResponse(text string) (*Result, error) {
	candidates := []string{strings.TrimSpace(text)}

	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := objectRegex.FindString(text); m != "" {
		candidates = append(candidates, m)
	}

	var lastErr error
	for _, candidate := range candidates {
		if candidate == "" || candidate[0] != '{' {
			continue
		}
		for _, attempt := range []string{candidate, trailingCommaRegex.ReplaceAllString(candidate, "$1")} {
			var result Result
			if err := json.Unmarshal([]byte(attempt), &result); err != nil {
				lastErr = err
				continue
			}
			if err := validateResult(&result); err != nil {
				lastErr = err
				continue
			}
			result.Raw = attempt
			return &result, nil
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no JSON object found")
	}
	return nil, fmt.Errorf("%w (response: %s)", lastErr, truncateString(text, 200))
}

func validateResult(r *Result) error {
	switch r.OverallVerdict {
	case VerdictPass, VerdictFail, VerdictNeedsReview:
	default:
		return fmt.Errorf("invalid overall_verdict %q", r.OverallVerdict)
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 100 {
		return fmt.Errorf("confidence_score %v out of range", r.ConfidenceScore)
	}
	return nil
}

// truncateString truncates long strings for error messages and logs
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
