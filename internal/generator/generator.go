// Package generator builds audit workflows by evaluating published rules
// against an audit's snapshot and aggregating the evidence claims of the
// rules that matched.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ecovet/ecovet/internal/condition"
	"github.com/ecovet/ecovet/internal/storage"
	"github.com/ecovet/ecovet/internal/types"
)

// Generator evaluates the published rule set against audit snapshots
type Generator struct {
	store storage.Storage
}

func New(store storage.Storage) (*Generator, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	return &Generator{store: store}, nil
}

// Generate evaluates every published rule against the audit's snapshot and
// persists a new workflow generation atomically. Every rule gets a match
// record, including rules whose trees failed validation or evaluation; a
// malformed rule is recorded with its error and skipped, it never aborts
// the run.
func (g *Generator) Generate(ctx context.Context, auditID string) (*types.AuditWorkflow, error) {
	snapshot, err := g.store.GetAuditSnapshot(ctx, auditID)
	if err != nil {
		return nil, err
	}

	published := types.RuleStatePublished
	rules, err := g.store.ListRules(ctx, types.RuleFilter{State: &published})
	if err != nil {
		return nil, fmt.Errorf("failed to list published rules: %w", err)
	}

	matches := make([]*types.RuleMatch, 0, len(rules))
	aggregated := map[string]*types.WorkflowClaim{}
	var claimOrder []string

	for _, rule := range rules {
		match := &types.RuleMatch{
			RuleID:      rule.ID,
			RuleCode:    rule.Code,
			RuleVersion: rule.Version,
		}

		valid, matched, errs := condition.ValidateAndEvaluate(rule.ConditionTree, snapshot)
		switch {
		case !valid || len(errs) > 0:
			match.Error = strings.Join(errs, "; ")
		case matched != nil:
			match.Matched = *matched
		}
		matches = append(matches, match)

		if !match.Matched {
			continue
		}

		for _, rc := range rule.Claims {
			wc, seen := aggregated[rc.Claim.ID]
			if !seen {
				wc = &types.WorkflowClaim{
					ClaimID: rc.Claim.ID,
					Claim:   rc.Claim,
					Status:  types.ClaimRequired,
				}
				aggregated[rc.Claim.ID] = wc
				claimOrder = append(claimOrder, rc.Claim.ID)
			}
			// A claim demanded as required by any matching rule stays required
			if rc.Required {
				wc.Required = true
			}
			wc.Sources = append(wc.Sources, &types.ClaimSource{
				RuleID:      rule.ID,
				RuleCode:    rule.Code,
				RuleVersion: rule.Version,
				Required:    rc.Required,
			})
		}
	}

	claims := make([]*types.WorkflowClaim, 0, len(aggregated))
	for _, id := range claimOrder {
		claims = append(claims, aggregated[id])
	}

	wf := &types.AuditWorkflow{AuditID: auditID}
	if err := g.store.CreateWorkflow(ctx, wf, claims, matches); err != nil {
		return nil, err
	}

	return g.store.GetWorkflow(ctx, wf.ID)
}
