package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecovet/ecovet/internal/types"
)

func sampleRecord() map[string]interface{} {
	return map[string]interface{}{
		"brand": map[string]interface{}{
			"country":  "DE",
			"employees": float64(240),
			"organic":  true,
			"label":    "",
		},
		"materials": map[string]interface{}{
			"cotton": map[string]interface{}{
				"share": float64(62.5),
			},
		},
		"category": "Apparel",
	}
}

func TestValidateAcceptsWellFormedTree(t *testing.T) {
	tree := types.Group(types.LogicalAnd,
		types.Condition("brand.country", types.OpEquals, "DE", types.FieldString),
		types.Group(types.LogicalOr,
			types.Condition("brand.organic", types.OpIs, "true", types.FieldBoolean),
			types.Condition("materials.cotton.share", types.OpGte, "50", types.FieldNumber),
		),
	)

	valid, errs := Validate(tree)
	assert.True(t, valid)
	assert.Empty(t, errs)
}

func TestValidateRejectsNonGroupRoot(t *testing.T) {
	tree := types.Condition("brand.country", types.OpEquals, "DE", types.FieldString)

	valid, errs := Validate(tree)
	assert.False(t, valid)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "root node must be a group")
}

func TestValidateNamesEveryMissingField(t *testing.T) {
	// A condition with no field_path, operator, or field_type should produce
	// one error per missing field, all collected in a single pass.
	tree := types.Group(types.LogicalAnd, &types.ConditionNode{Kind: types.NodeCondition})

	valid, errs := Validate(tree)
	assert.False(t, valid)

	joined := ""
	for _, e := range errs {
		joined += e + "\n"
	}
	assert.Contains(t, joined, "field_path")
	assert.Contains(t, joined, "operator")
	assert.Contains(t, joined, "field_type")
	assert.Contains(t, joined, "value")
}

func TestValidateTraversesDeepTrees(t *testing.T) {
	// The malformed node is four levels down. Validation must reach it.
	bad := &types.ConditionNode{Kind: types.NodeCondition, FieldPath: "x"}
	tree := types.Group(types.LogicalAnd,
		types.Group(types.LogicalOr,
			types.Group(types.LogicalAnd,
				types.Group(types.LogicalOr, bad),
			),
		),
	)

	valid, errs := Validate(tree)
	assert.False(t, valid)
	assert.NotEmpty(t, errs)
}

func TestValidateCollectsSiblingErrors(t *testing.T) {
	tree := types.Group(types.LogicalAnd,
		&types.ConditionNode{Kind: types.NodeCondition},
		&types.ConditionNode{Kind: types.NodeGroup, Logical: "XOR"},
		types.Condition("ok.path", types.OpExists, "", types.FieldString),
	)

	valid, errs := Validate(tree)
	assert.False(t, valid)
	// First sibling contributes 4 errors, second contributes 2 (bad logical,
	// no children); the valid third contributes none.
	assert.GreaterOrEqual(t, len(errs), 5)
}

func TestValidateRejectsEmptyGroup(t *testing.T) {
	tree := types.Group(types.LogicalAnd)

	valid, errs := Validate(tree)
	assert.False(t, valid)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "no children")
}

func TestEvaluateGroupSemantics(t *testing.T) {
	truthy := types.Condition("category", types.OpEquals, "Apparel", types.FieldString)
	falsy := types.Condition("category", types.OpEquals, "Footwear", types.FieldString)

	tests := []struct {
		name string
		tree *types.ConditionNode
		want bool
	}{
		{"AND true,true", types.Group(types.LogicalAnd, truthy, truthy), true},
		{"AND true,false", types.Group(types.LogicalAnd, truthy, falsy), false},
		{"OR false,true", types.Group(types.LogicalOr, falsy, truthy), true},
		{"OR false,false", types.Group(types.LogicalOr, falsy, falsy), false},
		{"nested", types.Group(types.LogicalAnd, truthy, types.Group(types.LogicalOr, falsy, truthy)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.tree, sampleRecord()))
		})
	}
}

func TestEvaluateOperators(t *testing.T) {
	tests := []struct {
		name string
		cond *types.ConditionNode
		want bool
	}{
		{"equals match", types.Condition("brand.country", types.OpEquals, "DE", types.FieldString), true},
		{"equals mismatch", types.Condition("brand.country", types.OpEquals, "FR", types.FieldString), false},
		{"not_equals", types.Condition("brand.country", types.OpNotEquals, "FR", types.FieldString), true},
		{"contains", types.Condition("category", types.OpContains, "pparel", types.FieldString), true},
		{"is case-insensitive", types.Condition("brand.country", types.OpIs, "de", types.FieldString), true},
		{"gte numeric", types.Condition("materials.cotton.share", types.OpGte, "50", types.FieldNumber), true},
		{"gte false", types.Condition("materials.cotton.share", types.OpGte, "80", types.FieldNumber), false},
		{"lte numeric", types.Condition("brand.employees", types.OpLte, "250", types.FieldNumber), true},
		{"gte unparseable value is false not error", types.Condition("brand.country", types.OpGte, "10", types.FieldNumber), false},
		{"boolean equals", types.Condition("brand.organic", types.OpEquals, "true", types.FieldBoolean), true},
		{"number equals without decimal point", types.Condition("brand.employees", types.OpEquals, "240", types.FieldNumber), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := types.Group(types.LogicalAnd, tt.cond)
			assert.Equal(t, tt.want, Evaluate(tree, sampleRecord()))
		})
	}
}

func TestEvaluateMissingFieldsFailClosed(t *testing.T) {
	record := sampleRecord()

	// equals on a missing field is false, never a panic.
	missing := types.Group(types.LogicalAnd,
		types.Condition("brand.nonexistent.deep", types.OpEquals, "x", types.FieldString))
	assert.False(t, Evaluate(missing, record))

	// Traversing through a scalar is also just false.
	throughScalar := types.Group(types.LogicalAnd,
		types.Condition("category.sub.key", types.OpEquals, "x", types.FieldString))
	assert.False(t, Evaluate(throughScalar, record))

	// exists distinguishes missing from present-but-empty.
	assert.False(t, Evaluate(types.Group(types.LogicalAnd,
		types.Condition("brand.nonexistent", types.OpExists, "", types.FieldString)), record))
	assert.True(t, Evaluate(types.Group(types.LogicalAnd,
		types.Condition("brand.label", types.OpExists, "", types.FieldString)), record))
}

func TestEvaluateNilRecord(t *testing.T) {
	tree := types.Group(types.LogicalOr,
		types.Condition("a.b", types.OpExists, "", types.FieldString))
	assert.False(t, Evaluate(tree, nil))
}

func TestValidateAndEvaluate(t *testing.T) {
	t.Run("invalid tree skips evaluation", func(t *testing.T) {
		tree := types.Group(types.LogicalAnd)
		valid, matched, errs := ValidateAndEvaluate(tree, sampleRecord())
		assert.False(t, valid)
		assert.Nil(t, matched)
		assert.NotEmpty(t, errs)
	})

	t.Run("valid tree without record", func(t *testing.T) {
		tree := types.Group(types.LogicalAnd,
			types.Condition("brand.country", types.OpEquals, "DE", types.FieldString))
		valid, matched, errs := ValidateAndEvaluate(tree, nil)
		assert.True(t, valid)
		assert.Nil(t, matched)
		assert.Empty(t, errs)
	})

	t.Run("valid tree with record", func(t *testing.T) {
		tree := types.Group(types.LogicalAnd,
			types.Condition("brand.country", types.OpEquals, "DE", types.FieldString))
		valid, matched, errs := ValidateAndEvaluate(tree, sampleRecord())
		assert.True(t, valid)
		require.NotNil(t, matched)
		assert.True(t, *matched)
		assert.Empty(t, errs)
	})
}
