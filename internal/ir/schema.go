package ir

import "strings"

// Access is the access/modifier bitmask shared by units and members.
type Access uint16

const (
	AccPublic    Access = 0x0001
	AccPrivate   Access = 0x0002
	AccProtected Access = 0x0004
	AccStatic    Access = 0x0008
	AccFinal     Access = 0x0010
	AccInterface Access = 0x0200
	AccAbstract  Access = 0x0400
	AccSynthetic Access = 0x1000

	visibilityMask = AccPublic | AccPrivate | AccProtected
)

// DefaultVersion is the format version given to synthesized units.
const DefaultVersion = 1

// RootUnit is the implicit super unit of every unit that declares none.
const RootUnit = "Object"

func (a Access) Has(flag Access) bool { return a&flag != 0 }

// WithVisibility replaces the visibility bits, keeping every other modifier.
func (a Access) WithVisibility(v Access) Access {
	return (a &^ visibilityMask) | (v & visibilityMask)
}

func (a Access) String() string {
	var parts []string
	switch {
	case a.Has(AccPublic):
		parts = append(parts, "public")
	case a.Has(AccPrivate):
		parts = append(parts, "private")
	case a.Has(AccProtected):
		parts = append(parts, "protected")
	}
	if a.Has(AccStatic) {
		parts = append(parts, "static")
	}
	if a.Has(AccFinal) {
		parts = append(parts, "final")
	}
	if a.Has(AccAbstract) {
		parts = append(parts, "abstract")
	}
	if a.Has(AccInterface) {
		parts = append(parts, "interface")
	}
	if a.Has(AccSynthetic) {
		parts = append(parts, "synthetic")
	}
	return strings.Join(parts, " ")
}

// Unit is the mutable in-memory representation of one code unit.
// Fields and Methods keep their declaration order.
type Unit struct {
	Version    int       `json:"version" msgpack:"version" yaml:"version"`
	Access     Access    `json:"access" msgpack:"access" yaml:"access"`
	Name       string    `json:"name" msgpack:"name" yaml:"name"`
	Super      string    `json:"super,omitempty" msgpack:"super,omitempty" yaml:"super,omitempty"`
	Interfaces []string  `json:"interfaces,omitempty" msgpack:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	Source     string    `json:"source,omitempty" msgpack:"source,omitempty" yaml:"source,omitempty"`
	Fields     []*Field  `json:"fields" msgpack:"fields" yaml:"fields"`
	Methods    []*Method `json:"methods" msgpack:"methods" yaml:"methods"`
}

// Field is a field-like member of a unit.
type Field struct {
	Access     Access `json:"access" msgpack:"access" yaml:"access"`
	Name       string `json:"name" msgpack:"name" yaml:"name"`
	Descriptor string `json:"descriptor" msgpack:"descriptor" yaml:"descriptor"`
	Tag        string `json:"tag,omitempty" msgpack:"tag,omitempty" yaml:"tag,omitempty"`
	Value      any    `json:"value,omitempty" msgpack:"value,omitempty" yaml:"value,omitempty"`
}

// Method is a method-like member. MaxStack, MaxLocals and FrameSum are
// derived metadata regenerated by the codec according to recompute flags.
type Method struct {
	Access     Access   `json:"access" msgpack:"access" yaml:"access"`
	Name       string   `json:"name" msgpack:"name" yaml:"name"`
	Descriptor string   `json:"descriptor" msgpack:"descriptor" yaml:"descriptor"`
	Exceptions []string `json:"exceptions,omitempty" msgpack:"exceptions,omitempty" yaml:"exceptions,omitempty"`
	Insns      []Insn   `json:"insns,omitempty" msgpack:"insns,omitempty" yaml:"insns,omitempty"`
	Source     string   `json:"source,omitempty" msgpack:"source,omitempty" yaml:"source,omitempty"`
	MaxStack   uint16   `json:"max_stack" msgpack:"max_stack" yaml:"max_stack"`
	MaxLocals  uint16   `json:"max_locals" msgpack:"max_locals" yaml:"max_locals"`
	FrameSum   uint64   `json:"frame_sum,omitempty" msgpack:"frame_sum,omitempty" yaml:"frame_sum,omitempty"`
}

// Insn is one instruction of a method body.
type Insn struct {
	Op   Opcode   `json:"op" msgpack:"op" yaml:"op"`
	Args []string `json:"args,omitempty" msgpack:"args,omitempty" yaml:"args,omitempty"`
}

// Field returns the first field with the given name.
func (u *Unit) Field(name string) *Field {
	for _, f := range u.Fields {
		if f != nil && f.Name == name {
			return f
		}
	}
	return nil
}

// Method returns the first method matching name and descriptor. An empty
// descriptor matches any overload.
func (u *Unit) Method(name, descriptor string) *Method {
	for _, m := range u.Methods {
		if m == nil || m.Name != name {
			continue
		}
		if descriptor == "" || m.Descriptor == descriptor {
			return m
		}
	}
	return nil
}

// MemberNames lists "name" for fields and "name descriptor" for methods in
// member order.
func (u *Unit) MemberNames() []string {
	out := make([]string, 0, len(u.Fields)+len(u.Methods))
	for _, f := range u.Fields {
		out = append(out, f.Name)
	}
	for _, m := range u.Methods {
		out = append(out, m.Name+" "+m.Descriptor)
	}
	return out
}

// ParamCount returns the number of parameters in a method descriptor of the
// form "(T1,T2)R". Malformed descriptors report zero.
func ParamCount(descriptor string) int {
	open := strings.IndexByte(descriptor, '(')
	end := strings.IndexByte(descriptor, ')')
	if open != 0 || end < open {
		return 0
	}
	params := strings.TrimSpace(descriptor[open+1 : end])
	if params == "" {
		return 0
	}
	return strings.Count(params, ",") + 1
}

// MethodDescriptor builds a descriptor from parameter and result types.
func MethodDescriptor(params []string, results []string) string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(strings.Join(params, ","))
	b.WriteByte(')')
	switch len(results) {
	case 0:
	case 1:
		b.WriteString(results[0])
	default:
		b.WriteByte('(')
		b.WriteString(strings.Join(results, ","))
		b.WriteByte(')')
	}
	return b.String()
}
