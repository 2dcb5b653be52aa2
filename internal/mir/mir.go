// Package mir holds the method-level IR consumed by the block passes: a
// control-flow graph of basic blocks stored in an arena, the instructions in
// each block, and the exception handler model attached to them.
package mir

import (
	"fmt"
	"math"
)

// Module represents a decompiled class: a named collection of methods
type Module struct {
	Name    string
	Methods []*Method
}

// BlockID addresses a basic block inside its method's arena.
// IDs are never reused, so they stay valid after blocks are detached.
type BlockID uint32

// NoBlock is the sentinel for "no block".
const NoBlock BlockID = math.MaxUint32

// IsValid returns true if the ID refers to a block.
func (id BlockID) IsValid() bool { return id != NoBlock }

func (id BlockID) String() string {
	if id == NoBlock {
		return "B-"
	}
	return fmt.Sprintf("B%d", uint32(id))
}

// ArgType is a fully qualified reference type name such as "java.io.IOException".
type ArgType string

// Throwable is the root of all catchable types; a handler for it catches everything.
const Throwable ArgType = "java.lang.Throwable"

func (t ArgType) String() string { return string(t) }

// Arg represents an instruction operand or a handler's bound argument
type Arg interface {
	argNode()
	ArgType() ArgType
}

// RegFlag marks properties of a register operand
type RegFlag uint8

const (
	// RegCustomDeclare means the variable is declared by its defining construct
	// (a catch clause) rather than by a regular declaration.
	RegCustomDeclare RegFlag = 1 << iota
)

// RegisterArg is a virtual register operand with an assigned type
type RegisterArg struct {
	Reg   int
	Type  ArgType
	Flags RegFlag
}

func (*RegisterArg) argNode()           {}
func (r *RegisterArg) ArgType() ArgType { return r.Type }

// Has reports whether all given flags are set.
func (r *RegisterArg) Has(f RegFlag) bool { return r.Flags&f == f }

// SameReg reports whether both operands address the same register.
func (r *RegisterArg) SameReg(other *RegisterArg) bool {
	return other != nil && r.Reg == other.Reg
}

// NamedArg is a synthetic operand that is not backed by a register,
// used for handler arguments the method body never reads.
type NamedArg struct {
	Name string
	Type ArgType
}

func (*NamedArg) argNode()           {}
func (n *NamedArg) ArgType() ArgType { return n.Type }
