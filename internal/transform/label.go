package transform

import "fmt"

// Kind is what a Label targets.
type Kind uint8

const (
	// KindPreUnit targets a whole unit before any member is voted on.
	KindPreUnit Kind = iota
	// KindUnit targets a whole unit after its members.
	KindUnit
	KindField
	KindMethod

	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindPreUnit:
		return "PRE_UNIT"
	case KindUnit:
		return "UNIT"
	case KindField:
		return "FIELD"
	case KindMethod:
		return "METHOD"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is one of the four known kinds.
func (k Kind) Valid() bool { return k < numKinds }

// NodeType is the node representation a kind operates on.
func (k Kind) NodeType() NodeType {
	switch k {
	case KindField:
		return NodeField
	case KindMethod:
		return NodeMethod
	}
	return NodeUnit
}

// Label identifies a rewrite target. It is comparable and used as a map key.
type Label struct {
	Unit      string
	Member    string
	Signature string
	Kind      Kind
}

func UnitLabel(unit string) Label {
	return Label{Unit: unit, Kind: KindUnit}
}

func PreUnitLabel(unit string) Label {
	return Label{Unit: unit, Kind: KindPreUnit}
}

func FieldLabel(unit, field string) Label {
	return Label{Unit: unit, Member: field, Kind: KindField}
}

func MethodLabel(unit, method, signature string) Label {
	return Label{Unit: unit, Member: method, Signature: signature, Kind: KindMethod}
}

func (l Label) String() string {
	return fmt.Sprintf("Target : %s {%s} {%s} {%s}", l.Kind, l.Unit, l.Member, l.Signature)
}
