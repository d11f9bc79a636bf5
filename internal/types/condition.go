package types

// ConditionNode is one node of a rule's condition tree. A node is either a
// group (Logical + Children) or a leaf condition (FieldPath/Operator/Value/
// FieldType); Kind tags which.
type ConditionNode struct {
	Kind NodeKind `json:"kind"`

	// Group fields
	Logical  Logical          `json:"logical,omitempty"`
	Children []*ConditionNode `json:"children,omitempty"`

	// Condition fields
	FieldPath string    `json:"field_path,omitempty"`
	Operator  Operator  `json:"operator,omitempty"`
	Value     string    `json:"value,omitempty"`
	FieldType FieldType `json:"field_type,omitempty"`
}

// NodeKind tags a condition node as a group or a leaf condition
type NodeKind string

const (
	NodeGroup     NodeKind = "group"
	NodeCondition NodeKind = "condition"
)

// Logical is the boolean connective of a group node
type Logical string

const (
	LogicalAnd Logical = "AND"
	LogicalOr  Logical = "OR"
)

// IsValid checks if the logical connective is valid
func (l Logical) IsValid() bool {
	return l == LogicalAnd || l == LogicalOr
}

// Operator is the comparison applied by a leaf condition
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpContains  Operator = "contains"
	OpGte       Operator = "gte"
	OpLte       Operator = "lte"
	OpIs        Operator = "is"
	OpExists    Operator = "exists"
)

// IsValid checks if the operator value is valid
func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpGte, OpLte, OpIs, OpExists:
		return true
	}
	return false
}

// FieldType is the declared type of the audit field a condition reads
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldEnum    FieldType = "enum"
)

// IsValid checks if the field type value is valid
func (t FieldType) IsValid() bool {
	switch t {
	case FieldString, FieldNumber, FieldBoolean, FieldEnum:
		return true
	}
	return false
}

// Group builds a group node. Test and fixture helper.
func Group(logical Logical, children ...*ConditionNode) *ConditionNode {
	return &ConditionNode{Kind: NodeGroup, Logical: logical, Children: children}
}

// Condition builds a leaf condition node. Test and fixture helper.
func Condition(fieldPath string, op Operator, value string, fieldType FieldType) *ConditionNode {
	return &ConditionNode{
		Kind:      NodeCondition,
		FieldPath: fieldPath,
		Operator:  op,
		Value:     value,
		FieldType: fieldType,
	}
}
