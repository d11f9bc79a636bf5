package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/ecovet/ecovet/internal/types"
)

func TestCreateRuleAssignsSequentialVersions(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	first := createTestRule(t, store, "R-ORGANIC")
	second := createTestRule(t, store, "R-ORGANIC")
	other := createTestRule(t, store, "R-LABOR")

	if first.Version != 1 {
		t.Errorf("Expected version 1, got %d", first.Version)
	}
	if second.Version != 2 {
		t.Errorf("Expected version 2, got %d", second.Version)
	}
	if other.Version != 1 {
		t.Errorf("Expected version 1 for new code, got %d", other.Version)
	}
}

func TestCreateRuleRejectsInvalidRule(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	rule := &types.Rule{Code: "", Name: "no code", State: types.RuleStateDraft, ConditionTree: testTree()}
	err := store.CreateRule(context.Background(), rule, "test-actor")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
}

func TestGetRuleRoundTripsConditionTree(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	rule := createTestRule(t, store, "R-TREE")

	got, err := store.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if got.ConditionTree == nil || got.ConditionTree.Kind != types.NodeGroup {
		t.Fatalf("Condition tree not round-tripped: %+v", got.ConditionTree)
	}
	if len(got.ConditionTree.Children) != 1 {
		t.Errorf("Expected 1 child, got %d", len(got.ConditionTree.Children))
	}
	if got.ConditionTree.Children[0].FieldPath != "brand.country" {
		t.Errorf("Unexpected field path %q", got.ConditionTree.Children[0].FieldPath)
	}
}

func TestGetRuleNotFound(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	_, err := store.GetRule(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTransitionRuleState(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	rule := createTestRule(t, store, "R-LIFECYCLE")

	// draft → published stamps published_at
	if err := store.TransitionRuleState(ctx, rule.ID, types.RuleStatePublished, "test-actor"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	got, _ := store.GetRule(ctx, rule.ID)
	if got.State != types.RuleStatePublished {
		t.Errorf("Expected published, got %s", got.State)
	}
	if got.PublishedAt == nil {
		t.Error("Expected published_at to be stamped")
	}

	// published → published is a conflict (publish is one-shot)
	err := store.TransitionRuleState(ctx, rule.ID, types.RuleStatePublished, "test-actor")
	if !errors.Is(err, ErrStateConflict) {
		t.Errorf("Expected ErrStateConflict on double publish, got %v", err)
	}

	// published → disabled stamps disabled_at
	if err := store.TransitionRuleState(ctx, rule.ID, types.RuleStateDisabled, "test-actor"); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	got, _ = store.GetRule(ctx, rule.ID)
	if got.State != types.RuleStateDisabled {
		t.Errorf("Expected disabled, got %s", got.State)
	}
	if got.DisabledAt == nil {
		t.Error("Expected disabled_at to be stamped")
	}

	// disabled → disabled is an idempotent no-op
	if err := store.TransitionRuleState(ctx, rule.ID, types.RuleStateDisabled, "test-actor"); err != nil {
		t.Errorf("Expected idempotent disable, got %v", err)
	}

	// disabled → published is never legal
	err = store.TransitionRuleState(ctx, rule.ID, types.RuleStatePublished, "test-actor")
	if !errors.Is(err, ErrStateConflict) {
		t.Errorf("Expected ErrStateConflict, got %v", err)
	}
}

func TestMultipleVersionsOfSameCodeCanBePublished(t *testing.T) {
	// The system deliberately does not enforce "one published version per
	// code"; version bump just inserts a new row. Assert the permissive
	// behavior explicitly so a future structural constraint shows up as a
	// test change.
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	v1 := createTestRule(t, store, "R-MULTI")
	v2 := createTestRule(t, store, "R-MULTI")

	if err := store.TransitionRuleState(ctx, v1.ID, types.RuleStatePublished, "a"); err != nil {
		t.Fatalf("Publish v1 failed: %v", err)
	}
	if err := store.TransitionRuleState(ctx, v2.ID, types.RuleStatePublished, "a"); err != nil {
		t.Fatalf("Publish v2 failed: %v", err)
	}

	published := types.RuleStatePublished
	code := "R-MULTI"
	rules, err := store.ListRules(ctx, types.RuleFilter{State: &published, Code: &code})
	if err != nil {
		t.Fatalf("ListRules failed: %v", err)
	}
	if len(rules) != 2 {
		t.Errorf("Expected 2 published versions, got %d", len(rules))
	}
}

func TestUpdateRuleDraftOnly(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	rule := createTestRule(t, store, "R-MUTABLE")

	err := store.UpdateRuleDraft(ctx, rule.ID, map[string]interface{}{"name": "Renamed"}, "test-actor")
	if err != nil {
		t.Fatalf("UpdateRuleDraft failed: %v", err)
	}
	got, _ := store.GetRule(ctx, rule.ID)
	if got.Name != "Renamed" {
		t.Errorf("Expected renamed rule, got %q", got.Name)
	}

	// Published rules are immutable
	if err := store.TransitionRuleState(ctx, rule.ID, types.RuleStatePublished, "test-actor"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	err = store.UpdateRuleDraft(ctx, rule.ID, map[string]interface{}{"name": "Again"}, "test-actor")
	if !errors.Is(err, ErrStateConflict) {
		t.Errorf("Expected ErrStateConflict for published rule update, got %v", err)
	}

	// Unknown fields are rejected
	draft := createTestRule(t, store, "R-FIELDS")
	err = store.UpdateRuleDraft(ctx, draft.ID, map[string]interface{}{"state": "published"}, "test-actor")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for disallowed field, got %v", err)
	}
}

func TestDeleteRule(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	// Draft rules are deletable
	draft := createTestRule(t, store, "R-DEL-DRAFT")
	if err := store.DeleteRule(ctx, draft.ID); err != nil {
		t.Fatalf("Delete draft failed: %v", err)
	}
	if _, err := store.GetRule(ctx, draft.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	// Published rules are not
	published := createTestRule(t, store, "R-DEL-PUB")
	if err := store.TransitionRuleState(ctx, published.ID, types.RuleStatePublished, "a"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := store.DeleteRule(ctx, published.ID); !errors.Is(err, ErrStateConflict) {
		t.Errorf("Expected ErrStateConflict deleting published rule, got %v", err)
	}

	// Disabled rules are deletable again
	if err := store.TransitionRuleState(ctx, published.ID, types.RuleStateDisabled, "a"); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if err := store.DeleteRule(ctx, published.ID); err != nil {
		t.Errorf("Delete disabled failed: %v", err)
	}
}

func TestDeleteRuleReferencedByWorkflowIsConflict(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	rule := createTestRule(t, store, "R-REFERENCED")
	if err := store.TransitionRuleState(ctx, rule.ID, types.RuleStatePublished, "a"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	audit := createTestAudit(t, store)
	claim := createTestClaim(t, store, "materials", "Organic cotton certificate")

	wf := &types.AuditWorkflow{AuditID: audit.ID}
	claims := []*types.WorkflowClaim{{
		ClaimID:  claim.ID,
		Required: true,
		Sources: []*types.ClaimSource{{
			RuleID: rule.ID, RuleCode: rule.Code, RuleVersion: rule.Version, Required: true,
		}},
	}}
	matches := []*types.RuleMatch{{RuleID: rule.ID, RuleCode: rule.Code, RuleVersion: rule.Version, Matched: true}}
	if err := store.CreateWorkflow(ctx, wf, claims, matches); err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	if err := store.TransitionRuleState(ctx, rule.ID, types.RuleStateDisabled, "a"); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	err := store.DeleteRule(ctx, rule.ID)
	if !errors.Is(err, ErrReferentialConflict) {
		t.Errorf("Expected ErrReferentialConflict, got %v", err)
	}
}

func TestReplaceRuleClaims(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	rule := createTestRule(t, store, "R-CLAIMS")
	c1 := createTestClaim(t, store, "materials", "Claim one")
	c2 := createTestClaim(t, store, "labor", "Claim two")
	c3 := createTestClaim(t, store, "energy", "Claim three")

	err := store.ReplaceRuleClaims(ctx, rule.ID, []types.ClaimAttachment{
		{ClaimID: c1.ID, Required: true, SortOrder: 0},
		{ClaimID: c2.ID, Required: false, SortOrder: 1},
	}, "test-actor")
	if err != nil {
		t.Fatalf("ReplaceRuleClaims failed: %v", err)
	}

	got, _ := store.GetRule(ctx, rule.ID)
	if len(got.Claims) != 2 {
		t.Fatalf("Expected 2 claims, got %d", len(got.Claims))
	}
	if got.Claims[0].Claim.ID != c1.ID || !got.Claims[0].Required {
		t.Errorf("Unexpected first claim: %+v", got.Claims[0])
	}

	// Replace semantics: a second call fully swaps the set
	err = store.ReplaceRuleClaims(ctx, rule.ID, []types.ClaimAttachment{
		{ClaimID: c3.ID, Required: true, SortOrder: 0},
	}, "test-actor")
	if err != nil {
		t.Fatalf("ReplaceRuleClaims swap failed: %v", err)
	}
	got, _ = store.GetRule(ctx, rule.ID)
	if len(got.Claims) != 1 {
		t.Fatalf("Expected 1 claim after replace, got %d", len(got.Claims))
	}
	if got.Claims[0].Claim.ID != c3.ID {
		t.Errorf("Expected claim three, got %s", got.Claims[0].Claim.ID)
	}

	// Unknown claim id aborts the whole replacement
	err = store.ReplaceRuleClaims(ctx, rule.ID, []types.ClaimAttachment{
		{ClaimID: "nonexistent", Required: true},
	}, "test-actor")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown claim, got %v", err)
	}
	got, _ = store.GetRule(ctx, rule.ID)
	if len(got.Claims) != 1 {
		t.Errorf("Failed replacement should not have cleared claims, got %d", len(got.Claims))
	}
}

func TestReplaceRuleClaimsDraftOnly(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	rule := createTestRule(t, store, "R-FROZEN")
	c1 := createTestClaim(t, store, "materials", "Claim one")
	c2 := createTestClaim(t, store, "labor", "Claim two")

	err := store.ReplaceRuleClaims(ctx, rule.ID, []types.ClaimAttachment{
		{ClaimID: c1.ID, Required: true},
	}, "test-actor")
	if err != nil {
		t.Fatalf("ReplaceRuleClaims on draft failed: %v", err)
	}

	// The claim set is frozen with the rest of the rule at publish time
	if err := store.TransitionRuleState(ctx, rule.ID, types.RuleStatePublished, "test-actor"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	err = store.ReplaceRuleClaims(ctx, rule.ID, []types.ClaimAttachment{
		{ClaimID: c2.ID, Required: true},
	}, "test-actor")
	if !errors.Is(err, ErrStateConflict) {
		t.Errorf("Expected ErrStateConflict replacing claims on published rule, got %v", err)
	}
	got, _ := store.GetRule(ctx, rule.ID)
	if len(got.Claims) != 1 || got.Claims[0].Claim.ID != c1.ID {
		t.Errorf("Published rule claim set should be unchanged, got %+v", got.Claims)
	}

	// Same for disabled rules
	if err := store.TransitionRuleState(ctx, rule.ID, types.RuleStateDisabled, "test-actor"); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	err = store.ReplaceRuleClaims(ctx, rule.ID, []types.ClaimAttachment{
		{ClaimID: c2.ID, Required: true},
	}, "test-actor")
	if !errors.Is(err, ErrStateConflict) {
		t.Errorf("Expected ErrStateConflict replacing claims on disabled rule, got %v", err)
	}
}
