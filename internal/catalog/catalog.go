// Package catalog manages the rule lifecycle: draft → published → disabled,
// versioning and cloning, and claim associations.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/ecovet/ecovet/internal/condition"
	"github.com/ecovet/ecovet/internal/storage"
	"github.com/ecovet/ecovet/internal/types"
)

// Catalog is the rule catalog service
type Catalog struct {
	store storage.Storage
}

// New creates a new rule catalog
func New(store storage.Storage) (*Catalog, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	return &Catalog{store: store}, nil
}

// RuleSpec describes a new rule version to create
type RuleSpec struct {
	Code          string
	Name          string
	Description   string
	ConditionTree *types.ConditionNode
}

// Create creates a new DRAFT rule. The version number is allocated by the
// storage layer as max(existing versions for the code)+1.
func (c *Catalog) Create(ctx context.Context, spec RuleSpec, author string) (*types.Rule, error) {
	if valid, errs := condition.Validate(spec.ConditionTree); !valid {
		return nil, fmt.Errorf("%w: invalid condition tree: %s", storage.ErrValidation, strings.Join(errs, "; "))
	}

	rule := &types.Rule{
		Code:          spec.Code,
		Name:          spec.Name,
		Description:   spec.Description,
		State:         types.RuleStateDraft,
		ConditionTree: spec.ConditionTree,
	}
	if err := c.store.CreateRule(ctx, rule, author); err != nil {
		return nil, err
	}
	return rule, nil
}

// Get retrieves a rule with its claim associations
func (c *Catalog) Get(ctx context.Context, ruleID string) (*types.Rule, error) {
	return c.store.GetRule(ctx, ruleID)
}

// List finds rules matching the filter
func (c *Catalog) List(ctx context.Context, filter types.RuleFilter) ([]*types.Rule, error) {
	return c.store.ListRules(ctx, filter)
}

// Update modifies mutable fields on a DRAFT rule
func (c *Catalog) Update(ctx context.Context, ruleID string, updates map[string]interface{}, actor string) error {
	if tree, ok := updates["condition_tree"]; ok {
		node, isNode := tree.(*types.ConditionNode)
		if !isNode {
			return fmt.Errorf("%w: condition_tree must be a condition node", storage.ErrValidation)
		}
		if valid, errs := condition.Validate(node); !valid {
			return fmt.Errorf("%w: invalid condition tree: %s", storage.ErrValidation, strings.Join(errs, "; "))
		}
	}
	return c.store.UpdateRuleDraft(ctx, ruleID, updates, actor)
}

// Clone produces a new DRAFT version of an existing rule: same code, next
// version number, a deep copy of the condition tree, the same claim
// associations, and ReplacesRuleID pointing at the source. This is how a
// published rule is edited without mutating history.
func (c *Catalog) Clone(ctx context.Context, ruleID string, author string) (*types.Rule, error) {
	source, err := c.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	clone := &types.Rule{
		Code:           source.Code,
		Name:           source.Name,
		Description:    source.Description,
		State:          types.RuleStateDraft,
		ConditionTree:  cloneTree(source.ConditionTree),
		ReplacesRuleID: source.ID,
	}
	if err := c.store.CreateRule(ctx, clone, author); err != nil {
		return nil, err
	}

	if len(source.Claims) > 0 {
		attachments := make([]types.ClaimAttachment, 0, len(source.Claims))
		for _, rc := range source.Claims {
			attachments = append(attachments, types.ClaimAttachment{
				ClaimID:   rc.Claim.ID,
				Required:  rc.Required,
				SortOrder: rc.SortOrder,
			})
		}
		if err := c.store.ReplaceRuleClaims(ctx, clone.ID, attachments, author); err != nil {
			return nil, fmt.Errorf("failed to copy claim associations: %w", err)
		}
	}

	return c.store.GetRule(ctx, clone.ID)
}

func cloneTree(node *types.ConditionNode) *types.ConditionNode {
	if node == nil {
		return nil
	}
	copied := *node
	if len(node.Children) > 0 {
		copied.Children = make([]*types.ConditionNode, len(node.Children))
		for i, child := range node.Children {
			copied.Children[i] = cloneTree(child)
		}
	}
	return &copied
}

// Publish transitions a DRAFT rule to PUBLISHED. Irreversible. The condition
// tree is re-validated so an invalid rule can never go live.
func (c *Catalog) Publish(ctx context.Context, ruleID string, actor string) error {
	rule, err := c.store.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	if valid, errs := condition.Validate(rule.ConditionTree); !valid {
		return fmt.Errorf("%w: cannot publish rule with invalid condition tree: %s",
			storage.ErrValidation, strings.Join(errs, "; "))
	}
	return c.store.TransitionRuleState(ctx, ruleID, types.RuleStatePublished, actor)
}

// Disable transitions a rule to DISABLED from any prior state. Idempotent.
func (c *Catalog) Disable(ctx context.Context, ruleID string, actor string) error {
	return c.store.TransitionRuleState(ctx, ruleID, types.RuleStateDisabled, actor)
}

// Delete removes a DRAFT or DISABLED rule. Published rules and rules still
// referenced by workflow history are rejected with structured conflicts.
func (c *Catalog) Delete(ctx context.Context, ruleID string) error {
	return c.store.DeleteRule(ctx, ruleID)
}

// AttachClaims fully replaces the rule's claim associations. Only DRAFT
// rules accept this; editing a published rule's claim set means cloning it.
func (c *Catalog) AttachClaims(ctx context.Context, ruleID string, attachments []types.ClaimAttachment, actor string) error {
	return c.store.ReplaceRuleClaims(ctx, ruleID, attachments, actor)
}
