package ir

// Opcode names an instruction.
type Opcode string

const (
	OpNop    Opcode = "nop"
	OpConst  Opcode = "const"
	OpLoad   Opcode = "load"
	OpStore  Opcode = "store"
	OpGet    Opcode = "get"
	OpPut    Opcode = "put"
	OpCall   Opcode = "call"
	OpAdd    Opcode = "add"
	OpPop    Opcode = "pop"
	OpDup    Opcode = "dup"
	OpJump   Opcode = "jump"
	OpBranch Opcode = "branch"
	OpReturn Opcode = "return"
	OpThrow  Opcode = "throw"
)

// stackEffect is the fixed operand stack delta of simple opcodes. OpCall is
// computed from its descriptor argument.
var stackEffect = map[Opcode]int{
	OpNop:    0,
	OpConst:  1,
	OpLoad:   1,
	OpStore:  -1,
	OpGet:    0,
	OpPut:    -2,
	OpAdd:    -1,
	OpPop:    -1,
	OpDup:    1,
	OpJump:   0,
	OpBranch: -1,
	OpReturn: 0,
	OpThrow:  -1,
}

// StackEffect returns how many operand slots an instruction pushes
// (positive) or pops (negative).
func (i Insn) StackEffect() int {
	if i.Op == OpCall {
		// call owner name descriptor: pops receiver and params, pushes one result
		// unless the descriptor ends with ")".
		if len(i.Args) < 3 {
			return 0
		}
		desc := i.Args[2]
		delta := -(ParamCount(desc) + 1)
		if len(desc) > 0 && desc[len(desc)-1] != ')' {
			delta++
		}
		return delta
	}
	return stackEffect[i.Op]
}

// Terminal reports whether control never falls through the instruction.
func (i Insn) Terminal() bool {
	return i.Op == OpReturn || i.Op == OpThrow || i.Op == OpJump
}
