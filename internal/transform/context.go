package transform

import (
	"crypto/sha256"
	"sync"

	"weaver/internal/audit"
	"weaver/internal/ir"
)

// VotingContext is the per-rewrite state shown to transformers while they
// vote and apply. It lives for one Rewrite call and is never shared.
type VotingContext struct {
	unit   string
	exists bool
	reason string
	digest func() []byte
	trail  *audit.Trail

	// node is the element currently under vote. It is overwritten between
	// the pre-unit, member and unit rounds.
	node any
}

func newVotingContext(unit string, input []byte, exists bool, reason string, trail *audit.Trail) *VotingContext {
	return &VotingContext{
		unit:   unit,
		exists: exists,
		reason: reason,
		trail:  trail,
		digest: sync.OnceValue(func() []byte {
			sum := sha256.Sum256(input)
			return sum[:]
		}),
	}
}

// UnitName is the name of the unit being rewritten.
func (c *VotingContext) UnitName() string { return c.unit }

// Exists is false when the unit is being synthesized from nothing.
func (c *VotingContext) Exists() bool { return c.exists }

// Reason is the caller supplied reason tag.
func (c *VotingContext) Reason() string { return c.reason }

// InitialDigest is the SHA-256 of the input bytes, computed on first use.
// Synthesized units report the digest of empty input.
func (c *VotingContext) InitialDigest() []byte {
	out := c.digest()
	return append([]byte(nil), out...)
}

// Activities returns the audit entries recorded for this unit so far.
func (c *VotingContext) Activities() []audit.Activity {
	if c.trail == nil {
		return nil
	}
	return c.trail.ActivitiesFor(c.unit)
}

// Node is the element currently being voted on.
func (c *VotingContext) Node() any { return c.node }

func (c *VotingContext) setNode(n any) { c.node = n }

// MatchUnit applies pred to the current node when it is a unit.
func (c *VotingContext) MatchUnit(pred func(*ir.Unit) bool) bool {
	u, ok := c.node.(*ir.Unit)
	return ok && u != nil && pred(u)
}

// MatchField applies pred to the current node when it is a field.
func (c *VotingContext) MatchField(pred func(*ir.Field) bool) bool {
	f, ok := c.node.(*ir.Field)
	return ok && f != nil && pred(f)
}

// MatchMethod applies pred to the current node when it is a method.
func (c *VotingContext) MatchMethod(pred func(*ir.Method) bool) bool {
	m, ok := c.node.(*ir.Method)
	return ok && m != nil && pred(m)
}

// MatchInsn reports whether pred holds for any instruction of the current
// method node.
func (c *VotingContext) MatchInsn(pred func(index int, insn ir.Insn) bool) bool {
	m, ok := c.node.(*ir.Method)
	if !ok || m == nil {
		return false
	}
	matched := false
	for i, insn := range m.Insns {
		if pred(i, insn) {
			matched = true
		}
	}
	return matched
}
