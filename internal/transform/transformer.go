package transform

import (
	"fmt"

	"weaver/internal/ir"
)

// Vote is a transformer's answer for the current voting round.
type Vote uint8

const (
	// VoteYes asks to be applied now.
	VoteYes Vote = iota
	// VoteNo leaves the vote for this label for good.
	VoteNo
	// VoteDefer waits for another transformer to go first.
	VoteDefer
	// VoteReject aborts the rewrite of the whole unit.
	VoteReject
)

func (v Vote) String() string {
	switch v {
	case VoteYes:
		return "YES"
	case VoteNo:
		return "NO"
	case VoteDefer:
		return "DEFER"
	case VoteReject:
		return "REJECT"
	}
	return fmt.Sprintf("Vote(%d)", uint8(v))
}

// NodeType is the representation a transformer rewrites.
type NodeType uint8

const (
	NodeUnit NodeType = iota
	NodeField
	NodeMethod
)

func (n NodeType) String() string {
	switch n {
	case NodeUnit:
		return "unit"
	case NodeField:
		return "field"
	case NodeMethod:
		return "method"
	}
	return fmt.Sprintf("NodeType(%d)", uint8(n))
}

// Node is the closed set of representations transformers operate on.
type Node interface {
	*ir.Unit | *ir.Field | *ir.Method
}

// Transformer is a provider's rewriter for one node type. Apply receives
// the node under vote and returns the node to carry into later rounds.
type Transformer[N Node] interface {
	Vote(ctx *VotingContext) Vote
	Apply(node N, ctx *VotingContext) (N, error)
	Targets() []Label
}

// Labeler optionally names a transformer inside its provider. The names are
// written to the audit trail.
type Labeler interface {
	Labels() []string
}

var defaultLabels = []string{"default"}

// Provider owns transformers; its name attributes them in the audit trail.
type Provider interface {
	Name() string
}

// ProviderName is a Provider that is only a name.
type ProviderName string

func (p ProviderName) Name() string { return string(p) }

// Holder pairs a transformer with the provider that registered it.
type Holder struct {
	owner  Provider
	node   NodeType
	labels []string
	impl   any
	vote   func(*VotingContext) Vote
	apply  func(any, *VotingContext) (any, error)
}

func nodeTypeOf[N Node]() NodeType {
	var zero N
	switch any(zero).(type) {
	case *ir.Field:
		return NodeField
	case *ir.Method:
		return NodeMethod
	}
	return NodeUnit
}

// Wrap builds the Holder for t owned by owner.
func Wrap[N Node](t Transformer[N], owner Provider) *Holder {
	labels := defaultLabels
	if l, ok := any(t).(Labeler); ok && len(l.Labels()) > 0 {
		labels = l.Labels()
	}
	return &Holder{
		owner:  owner,
		node:   nodeTypeOf[N](),
		labels: labels,
		impl:   t,
		vote:   t.Vote,
		apply: func(node any, ctx *VotingContext) (any, error) {
			n, ok := node.(N)
			if !ok {
				return nil, fmt.Errorf("%w: %T cannot rewrite %T", ErrNodeType, t, node)
			}
			out, err := t.Apply(n, ctx)
			if err != nil {
				return nil, err
			}
			if isNilNode(out) {
				return nil, fmt.Errorf("%w: %T returned a nil %s", ErrNodeType, t, nodeTypeOf[N]())
			}
			return out, nil
		},
	}
}

func isNilNode(node any) bool {
	switch n := node.(type) {
	case *ir.Unit:
		return n == nil
	case *ir.Field:
		return n == nil
	case *ir.Method:
		return n == nil
	}
	return node == nil
}

func (h *Holder) Owner() Provider { return h.owner }

func (h *Holder) NodeType() NodeType { return h.node }

func (h *Holder) Labels() []string { return h.labels }

// Transformer returns the wrapped transformer.
func (h *Holder) Transformer() any { return h.impl }

func (h *Holder) String() string {
	owner := "<none>"
	if h.owner != nil {
		owner = h.owner.Name()
	}
	if s, ok := h.impl.(fmt.Stringer); ok {
		return owner + "/" + s.String()
	}
	return fmt.Sprintf("%s/%T", owner, h.impl)
}
