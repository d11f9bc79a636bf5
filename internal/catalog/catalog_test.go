package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecovet/ecovet/internal/storage"
	"github.com/ecovet/ecovet/internal/storage/sqlite"
	"github.com/ecovet/ecovet/internal/types"
)

func setupCatalog(t *testing.T) (*Catalog, storage.Storage) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cat, err := New(store)
	require.NoError(t, err)
	return cat, store
}

func validTree() *types.ConditionNode {
	return types.Group(types.LogicalAnd,
		types.Condition("brand.country", types.OpEquals, "DE", types.FieldString))
}

func TestCreateRejectsInvalidTree(t *testing.T) {
	cat, _ := setupCatalog(t)

	bad := types.Group(types.LogicalAnd,
		&types.ConditionNode{Kind: types.NodeCondition, Operator: types.OpEquals, Value: "DE"})
	_, err := cat.Create(context.Background(), RuleSpec{Code: "R-1", Name: "Bad", ConditionTree: bad}, "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrValidation)
	assert.Contains(t, err.Error(), "field_path")
}

func TestCreateStartsAsDraftVersionOne(t *testing.T) {
	cat, _ := setupCatalog(t)

	rule, err := cat.Create(context.Background(), RuleSpec{
		Code: "R-1", Name: "German brands", ConditionTree: validTree(),
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.RuleStateDraft, rule.State)
	assert.Equal(t, 1, rule.Version)
	assert.Equal(t, "alice", rule.CreatedBy)
}

func TestPublishLifecycle(t *testing.T) {
	cat, _ := setupCatalog(t)
	ctx := context.Background()

	rule, err := cat.Create(ctx, RuleSpec{Code: "R-1", Name: "Rule", ConditionTree: validTree()}, "alice")
	require.NoError(t, err)

	require.NoError(t, cat.Publish(ctx, rule.ID, "alice"))

	got, err := cat.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RuleStatePublished, got.State)
	assert.NotNil(t, got.PublishedAt)

	// Published rules reject draft edits
	err = cat.Update(ctx, rule.ID, map[string]interface{}{"name": "Renamed"}, "alice")
	assert.ErrorIs(t, err, storage.ErrStateConflict)

	// Disable is allowed and idempotent
	require.NoError(t, cat.Disable(ctx, rule.ID, "alice"))
	require.NoError(t, cat.Disable(ctx, rule.ID, "alice"))
	got, _ = cat.Get(ctx, rule.ID)
	assert.Equal(t, types.RuleStateDisabled, got.State)
	assert.NotNil(t, got.DisabledAt)
}

func TestCloneCopiesTreeAndClaims(t *testing.T) {
	cat, store := setupCatalog(t)
	ctx := context.Background()

	claim := &types.EvidenceClaim{
		Category: "materials",
		Type:     "certificate",
		Name:     "Organic certificate",
		Weight:   0.5,
		Criteria: []string{"currently valid"},
	}
	require.NoError(t, store.CreateClaim(ctx, claim))

	source, err := cat.Create(ctx, RuleSpec{Code: "R-1", Name: "Source", ConditionTree: validTree()}, "alice")
	require.NoError(t, err)
	require.NoError(t, cat.AttachClaims(ctx, source.ID, []types.ClaimAttachment{
		{ClaimID: claim.ID, Required: true},
	}, "alice"))
	require.NoError(t, cat.Publish(ctx, source.ID, "alice"))

	clone, err := cat.Clone(ctx, source.ID, "bob")
	require.NoError(t, err)

	assert.Equal(t, source.Code, clone.Code)
	assert.Equal(t, 2, clone.Version)
	assert.Equal(t, types.RuleStateDraft, clone.State)
	assert.Equal(t, source.ID, clone.ReplacesRuleID)
	assert.Equal(t, "bob", clone.CreatedBy)
	require.Len(t, clone.Claims, 1)
	assert.Equal(t, claim.ID, clone.Claims[0].Claim.ID)
	assert.True(t, clone.Claims[0].Required)

	// The clone owns an independent tree
	clone.ConditionTree.Children[0].Value = "FR"
	original, _ := cat.Get(ctx, source.ID)
	assert.Equal(t, "DE", original.ConditionTree.Children[0].Value)

	// Publishing the clone leaves the original untouched
	require.NoError(t, cat.Publish(ctx, clone.ID, "bob"))
	published, err := cat.Get(ctx, clone.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RuleStatePublished, published.State)
	assert.Equal(t, source.Code, published.Code)
	assert.Equal(t, 2, published.Version)
	assert.Equal(t, source.ID, published.ReplacesRuleID)

	original, err = cat.Get(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RuleStatePublished, original.State)
	assert.Equal(t, 1, original.Version)
	assert.Equal(t, "DE", original.ConditionTree.Children[0].Value)
	require.Len(t, original.Claims, 1)
	assert.Equal(t, claim.ID, original.Claims[0].Claim.ID)
}

func TestAttachClaimsRejectedAfterPublish(t *testing.T) {
	cat, store := setupCatalog(t)
	ctx := context.Background()

	first := &types.EvidenceClaim{Category: "materials", Type: "certificate", Name: "First", Weight: 0.5}
	second := &types.EvidenceClaim{Category: "labor", Type: "certificate", Name: "Second", Weight: 0.5}
	require.NoError(t, store.CreateClaim(ctx, first))
	require.NoError(t, store.CreateClaim(ctx, second))

	rule, err := cat.Create(ctx, RuleSpec{Code: "R-1", Name: "Rule", ConditionTree: validTree()}, "alice")
	require.NoError(t, err)
	require.NoError(t, cat.AttachClaims(ctx, rule.ID, []types.ClaimAttachment{
		{ClaimID: first.ID, Required: true},
	}, "alice"))
	require.NoError(t, cat.Publish(ctx, rule.ID, "alice"))

	err = cat.AttachClaims(ctx, rule.ID, []types.ClaimAttachment{
		{ClaimID: second.ID, Required: true},
	}, "alice")
	assert.ErrorIs(t, err, storage.ErrStateConflict)

	got, err := cat.Get(ctx, rule.ID)
	require.NoError(t, err)
	require.Len(t, got.Claims, 1)
	assert.Equal(t, first.ID, got.Claims[0].Claim.ID)
}

func TestCloneOfDraftIsAllowed(t *testing.T) {
	cat, _ := setupCatalog(t)
	ctx := context.Background()

	source, err := cat.Create(ctx, RuleSpec{Code: "R-1", Name: "Draft", ConditionTree: validTree()}, "alice")
	require.NoError(t, err)

	clone, err := cat.Clone(ctx, source.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, clone.Version)
}

func TestPublishRevalidatesTree(t *testing.T) {
	cat, store := setupCatalog(t)
	ctx := context.Background()

	rule, err := cat.Create(ctx, RuleSpec{Code: "R-1", Name: "Rule", ConditionTree: validTree()}, "alice")
	require.NoError(t, err)

	// Corrupt the tree behind the service's back
	bad := types.Group(types.LogicalAnd, &types.ConditionNode{Kind: types.NodeCondition})
	require.NoError(t, store.UpdateRuleDraft(ctx, rule.ID, map[string]interface{}{"condition_tree": bad}, "alice"))

	err = cat.Publish(ctx, rule.ID, "alice")
	assert.ErrorIs(t, err, storage.ErrValidation)

	got, _ := cat.Get(ctx, rule.ID)
	assert.Equal(t, types.RuleStateDraft, got.State)
}

func TestDeletePublishedRejected(t *testing.T) {
	cat, _ := setupCatalog(t)
	ctx := context.Background()

	rule, err := cat.Create(ctx, RuleSpec{Code: "R-1", Name: "Rule", ConditionTree: validTree()}, "alice")
	require.NoError(t, err)
	require.NoError(t, cat.Publish(ctx, rule.ID, "alice"))

	assert.ErrorIs(t, cat.Delete(ctx, rule.ID), storage.ErrStateConflict)

	require.NoError(t, cat.Disable(ctx, rule.ID, "alice"))
	assert.NoError(t, cat.Delete(ctx, rule.ID))
}

func TestListFiltersByState(t *testing.T) {
	cat, _ := setupCatalog(t)
	ctx := context.Background()

	a, _ := cat.Create(ctx, RuleSpec{Code: "R-A", Name: "A", ConditionTree: validTree()}, "alice")
	_, err := cat.Create(ctx, RuleSpec{Code: "R-B", Name: "B", ConditionTree: validTree()}, "alice")
	require.NoError(t, err)
	require.NoError(t, cat.Publish(ctx, a.ID, "alice"))

	publishedState := types.RuleStatePublished
	published, err := cat.List(ctx, types.RuleFilter{State: &publishedState})
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, "R-A", published[0].Code)

	all, err := cat.List(ctx, types.RuleFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
