// Package condition validates and evaluates rule condition trees against
// audit snapshots.
//
// Evaluation follows a fail-closed policy: a malformed or missing field makes
// the individual condition false, never an error. One bad leaf must not abort
// evaluation of an otherwise-valid tree, and one bad tree must not block
// workflow generation for the other rules (the generator records the failure
// and moves on).
package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ecovet/ecovet/internal/types"
)

// missing is the sentinel for a field path that does not resolve in the
// snapshot. Distinct from an empty string, which is a present value.
type missingValue struct{}

var missing = missingValue{}

// Validate structurally checks a condition tree. It returns whether the tree
// is valid plus one error string per violation. Traversal covers every node
// at every depth; a failing node contributes an error but does not stop
// traversal of its siblings.
func Validate(root *types.ConditionNode) (bool, []string) {
	var errs []string
	if root == nil {
		return false, []string{"condition tree is empty"}
	}
	if root.Kind != types.NodeGroup {
		errs = append(errs, "root node must be a group")
	}
	validateNode(root, "root", &errs)
	return len(errs) == 0, errs
}

func validateNode(node *types.ConditionNode, path string, errs *[]string) {
	if node == nil {
		*errs = append(*errs, fmt.Sprintf("%s: node is nil", path))
		return
	}

	switch node.Kind {
	case types.NodeGroup:
		if !node.Logical.IsValid() {
			*errs = append(*errs, fmt.Sprintf("%s: invalid logical operator %q", path, node.Logical))
		}
		if len(node.Children) == 0 {
			*errs = append(*errs, fmt.Sprintf("%s: group has no children", path))
		}
		for i, child := range node.Children {
			validateNode(child, fmt.Sprintf("%s.children[%d]", path, i), errs)
		}

	case types.NodeCondition:
		if node.FieldPath == "" {
			*errs = append(*errs, fmt.Sprintf("%s: missing field_path", path))
		}
		if node.Operator == "" {
			*errs = append(*errs, fmt.Sprintf("%s: missing operator", path))
		} else if !node.Operator.IsValid() {
			*errs = append(*errs, fmt.Sprintf("%s: invalid operator %q", path, node.Operator))
		}
		if node.FieldType == "" {
			*errs = append(*errs, fmt.Sprintf("%s: missing field_type", path))
		} else if !node.FieldType.IsValid() {
			*errs = append(*errs, fmt.Sprintf("%s: invalid field_type %q", path, node.FieldType))
		}
		// Value may legitimately be empty for exists, but the field itself
		// must be declared for every other operator.
		if node.Value == "" && node.Operator != types.OpExists {
			*errs = append(*errs, fmt.Sprintf("%s: missing value", path))
		}

	default:
		*errs = append(*errs, fmt.Sprintf("%s: unknown node kind %q", path, node.Kind))
	}
}

// Evaluate evaluates a condition tree against an audit snapshot. The caller
// is expected to have validated the tree first; an unexpected node shape
// evaluates to false rather than panicking.
func Evaluate(root *types.ConditionNode, record map[string]interface{}) bool {
	return evaluateNode(root, record)
}

func evaluateNode(node *types.ConditionNode, record map[string]interface{}) bool {
	if node == nil {
		return false
	}

	switch node.Kind {
	case types.NodeGroup:
		switch node.Logical {
		case types.LogicalAnd:
			for _, child := range node.Children {
				if !evaluateNode(child, record) {
					return false
				}
			}
			return len(node.Children) > 0
		case types.LogicalOr:
			for _, child := range node.Children {
				if evaluateNode(child, record) {
					return true
				}
			}
			return false
		}
		return false

	case types.NodeCondition:
		return evaluateCondition(node, record)
	}

	return false
}

func evaluateCondition(node *types.ConditionNode, record map[string]interface{}) bool {
	resolved := resolvePath(record, node.FieldPath)

	if node.Operator == types.OpExists {
		_, isMissing := resolved.(missingValue)
		return !isMissing
	}

	if _, isMissing := resolved.(missingValue); isMissing {
		return false
	}

	actual := stringify(resolved)
	expected := node.Value

	switch node.Operator {
	case types.OpEquals:
		return actual == expected
	case types.OpNotEquals:
		return actual != expected
	case types.OpContains:
		return strings.Contains(actual, expected)
	case types.OpIs:
		return strings.EqualFold(actual, expected)
	case types.OpGte:
		a, b, ok := parseFloats(actual, expected)
		return ok && a >= b
	case types.OpLte:
		a, b, ok := parseFloats(actual, expected)
		return ok && a <= b
	}

	return false
}

// resolvePath walks a dot-delimited path through nested maps. Any missing
// intermediate key yields the missing sentinel, never an error.
func resolvePath(record map[string]interface{}, fieldPath string) interface{} {
	if record == nil {
		return missing
	}

	var current interface{} = record
	for _, segment := range strings.Split(fieldPath, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return missing
		}
		current, ok = m[segment]
		if !ok {
			return missing
		}
	}
	return current
}

// stringify renders a snapshot value for string comparison. JSON numbers
// decode as float64; whole floats print without a trailing ".0" so that a
// snapshot value 5 compares equal to a rule value "5".
func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func parseFloats(a, b string) (float64, float64, bool) {
	fa, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, false
	}
	fb, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, false
	}
	return fa, fb, true
}

// ValidateAndEvaluate validates a tree and, if valid and a record is
// supplied, evaluates it. Evaluation-time panics are captured as error
// strings with matched left nil; they are data, not control flow.
func ValidateAndEvaluate(root *types.ConditionNode, record map[string]interface{}) (valid bool, matched *bool, errs []string) {
	valid, errs = Validate(root)
	if !valid {
		return false, nil, errs
	}
	if record == nil {
		return true, nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			matched = nil
			errs = append(errs, fmt.Sprintf("evaluation panic: %v", r))
		}
	}()

	result := Evaluate(root, record)
	return true, &result, nil
}
