package codec

import (
	"fmt"
	"strconv"

	"fortio.org/safecast"
	"github.com/cespare/xxhash/v2"

	"weaver/internal/ir"
)

// computeMaxs walks the instructions in order and records the deepest
// operand stack and the highest local slot touched.
func computeMaxs(m *ir.Method) error {
	locals := ir.ParamCount(m.Descriptor)
	if !m.Access.Has(ir.AccStatic) {
		locals++
	}
	depth, deepest := 0, 0
	for i, insn := range m.Insns {
		depth += insn.StackEffect()
		if depth < 0 {
			return fmt.Errorf("stack underflow at instruction %d (%s)", i, insn.Op)
		}
		if depth > deepest {
			deepest = depth
		}
		if (insn.Op == ir.OpLoad || insn.Op == ir.OpStore) && len(insn.Args) > 0 {
			slot, err := strconv.Atoi(insn.Args[0])
			if err != nil {
				return fmt.Errorf("instruction %d: bad local slot %q", i, insn.Args[0])
			}
			if slot+1 > locals {
				locals = slot + 1
			}
		}
		if insn.Terminal() {
			depth = 0
		}
	}

	stack, err := safecast.Conv[uint16](deepest)
	if err != nil {
		return fmt.Errorf("max stack: %w", err)
	}
	maxLocals, err := safecast.Conv[uint16](locals)
	if err != nil {
		return fmt.Errorf("max locals: %w", err)
	}
	m.MaxStack = stack
	m.MaxLocals = maxLocals
	return nil
}

// frameSum fingerprints the control-flow relevant shape of a method body.
func frameSum(m *ir.Method) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(m.Descriptor)
	for _, insn := range m.Insns {
		_, _ = d.WriteString("|")
		_, _ = d.WriteString(string(insn.Op))
		for _, a := range insn.Args {
			_, _ = d.WriteString(" ")
			_, _ = d.WriteString(a)
		}
	}
	return d.Sum64()
}
