package transform

import (
	"fmt"

	"weaver/internal/ir"
)

// Simple is a transformer that always votes YES for a single target and
// applies fn to the node.
type Simple[N Node] struct {
	target Label
	fn     func(N) N
	labels []string
}

func newSimple[N Node](target Label, fn func(N) N, labels []string) *Simple[N] {
	if fn == nil {
		panic("transform: simple transformer needs a function")
	}
	return &Simple[N]{target: target, fn: fn, labels: labels}
}

// SimpleUnit rewrites the whole unit after its members.
func SimpleUnit(unit string, fn func(*ir.Unit) *ir.Unit, labels ...string) *Simple[*ir.Unit] {
	return newSimple(UnitLabel(unit), fn, labels)
}

// SimplePreUnit rewrites the whole unit before its members.
func SimplePreUnit(unit string, fn func(*ir.Unit) *ir.Unit, labels ...string) *Simple[*ir.Unit] {
	return newSimple(PreUnitLabel(unit), fn, labels)
}

func SimpleField(unit, field string, fn func(*ir.Field) *ir.Field, labels ...string) *Simple[*ir.Field] {
	return newSimple(FieldLabel(unit, field), fn, labels)
}

func SimpleMethod(unit, method, signature string, fn func(*ir.Method) *ir.Method, labels ...string) *Simple[*ir.Method] {
	return newSimple(MethodLabel(unit, method, signature), fn, labels)
}

func (s *Simple[N]) Vote(*VotingContext) Vote { return VoteYes }

func (s *Simple[N]) Apply(node N, _ *VotingContext) (N, error) { return s.fn(node), nil }

func (s *Simple[N]) Targets() []Label { return []Label{s.target} }

func (s *Simple[N]) Labels() []string { return s.labels }

func (s *Simple[N]) String() string {
	desc := s.target.Unit
	switch s.target.Kind {
	case KindField:
		desc += "." + s.target.Member
	case KindMethod:
		desc += "." + s.target.Member + s.target.Signature
	}
	return fmt.Sprintf("Simple[%s]", desc)
}
