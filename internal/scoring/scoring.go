// Package scoring computes category scores, the overall score, and the
// certification tier for a processed workflow.
package scoring

import (
	"sort"

	"github.com/ecovet/ecovet/internal/types"
)

// Certification tier thresholds on the overall score
const (
	GoldThreshold   = 90.0
	SilverThreshold = 75.0
	BronzeThreshold = 60.0
)

// ClaimOutcome is one workflow claim's contribution to the rollup
type ClaimOutcome struct {
	Category  string
	Weight    float64
	Required  bool
	Satisfied bool
}

// Satisfied reports whether any of a claim's submissions substantiates it.
// An automated MATCH counts unless an auditor overrode it with a rejection;
// an auditor ACCEPTED counts regardless of the automated decision.
func Satisfied(subs []*types.EvidenceSubmission) bool {
	for _, sub := range subs {
		if sub.ReviewDecision == types.ReviewRejected {
			continue
		}
		if sub.ReviewDecision == types.ReviewAccepted {
			return true
		}
		if sub.Status == types.SubmissionProcessingComplete && sub.MatchDecision == types.DecisionMatch {
			return true
		}
	}
	return false
}

// Compute rolls claim outcomes up into per-category scores, an overall score,
// and a certification tier.
//
// Per category, the score is 100 * (satisfied required weight / total
// required weight). A category whose claims are all optional scores 100,
// since nothing mandatory is outstanding. The overall score is the mean of
// categories that have claims; with no claims at all there is no overall
// score and no certification.
func Compute(outcomes []ClaimOutcome) (overall *float64, cert types.Certification, categories map[string]types.CategoryScore) {
	type tally struct {
		requiredWeight  float64
		satisfiedWeight float64
	}
	tallies := map[string]*tally{}

	for _, o := range outcomes {
		tl, ok := tallies[o.Category]
		if !ok {
			tl = &tally{}
			tallies[o.Category] = tl
		}
		if !o.Required {
			continue
		}
		tl.requiredWeight += o.Weight
		if o.Satisfied {
			tl.satisfiedWeight += o.Weight
		}
	}

	categories = map[string]types.CategoryScore{}
	var names []string
	for name := range tallies {
		names = append(names, name)
	}
	sort.Strings(names)

	var sum float64
	for _, name := range names {
		tl := tallies[name]
		score := 100.0
		if tl.requiredWeight > 0 {
			score = 100.0 * tl.satisfiedWeight / tl.requiredWeight
		}
		categories[name] = types.CategoryScore{Score: score, HasClaims: true}
		sum += score
	}

	if len(names) == 0 {
		return nil, types.CertNone, categories
	}

	mean := sum / float64(len(names))
	return &mean, Certify(mean), categories
}

// Certify maps an overall score to a certification tier
func Certify(score float64) types.Certification {
	switch {
	case score >= GoldThreshold:
		return types.CertGold
	case score >= SilverThreshold:
		return types.CertSilver
	case score >= BronzeThreshold:
		return types.CertBronze
	default:
		return types.CertNone
	}
}
