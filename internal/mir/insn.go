package mir

// InsnType identifies the operation an instruction performs
type InsnType uint8

const (
	InsnNop InsnType = iota
	InsnConst
	InsnConstString
	InsnMove
	InsnMoveException // binds the caught value at a handler entry
	InsnInvoke
	InsnArith
	InsnDiv
	InsnArrayGet
	InsnArrayPut
	InsnFieldGet
	InsnFieldPut
	InsnNewInstance
	InsnCheckCast
	InsnMonitorEnter
	InsnMonitorExit
	InsnIf
	InsnGoto
	InsnSwitch
	InsnReturn
	InsnThrow
)

var insnTypeNames = [...]string{
	InsnNop:           "nop",
	InsnConst:         "const",
	InsnConstString:   "const-string",
	InsnMove:          "move",
	InsnMoveException: "move-exception",
	InsnInvoke:        "invoke",
	InsnArith:         "arith",
	InsnDiv:           "div",
	InsnArrayGet:      "aget",
	InsnArrayPut:      "aput",
	InsnFieldGet:      "iget",
	InsnFieldPut:      "iput",
	InsnNewInstance:   "new-instance",
	InsnCheckCast:     "check-cast",
	InsnMonitorEnter:  "monitor-enter",
	InsnMonitorExit:   "monitor-exit",
	InsnIf:            "if",
	InsnGoto:          "goto",
	InsnSwitch:        "switch",
	InsnReturn:        "return",
	InsnThrow:         "throw",
}

func (t InsnType) String() string {
	if int(t) < len(insnTypeNames) {
		return insnTypeNames[t]
	}
	return "unknown"
}

// InsnFlag marks per-instruction properties
type InsnFlag uint8

const (
	// InsnTryEnter marks the first instruction of a protected range
	InsnTryEnter InsnFlag = 1 << iota
	// InsnTryLeave marks the last instruction of a protected range
	InsnTryLeave
	// InsnDontInline keeps the instruction's result in its own variable
	InsnDontInline
)

// Insn is a single lifted instruction
type Insn struct {
	Type   InsnType
	Offset int
	Result *RegisterArg
	Args   []Arg
	Flags  InsnFlag

	// Catch lists the handlers covering this instruction, nil if none.
	Catch *CatchAttr
	// ExcHandler marks the first instruction of a raw handler entry.
	ExcHandler *ExcHandlerAttr
}

// NewInsn creates an instruction at the given bytecode offset.
func NewInsn(typ InsnType, offset int) *Insn {
	return &Insn{Type: typ, Offset: offset}
}

// Has reports whether all given flags are set.
func (i *Insn) Has(f InsnFlag) bool { return i.Flags&f == f }

// Add sets the given flags.
func (i *Insn) Add(f InsnFlag) { i.Flags |= f }

// CanThrowException reports whether the instruction may raise an exception
// at runtime. Only throwing instructions keep their catch coverage.
func (i *Insn) CanThrowException() bool {
	switch i.Type {
	case InsnNop, InsnConst, InsnConstString, InsnMove, InsnMoveException,
		InsnIf, InsnGoto, InsnReturn:
		return false
	default:
		return true
	}
}
