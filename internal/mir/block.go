package mir

import "strings"

// Flag marks structural properties of a basic block
type Flag uint16

const (
	FlagSynthetic Flag = 1 << iota
	// FlagRemove is a tombstone; the block is detached at the next checkpoint.
	FlagRemove
	FlagTryEnter
	FlagTryLeave
	FlagExcTopSplitter
	FlagExcBottomSplitter
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagSynthetic, "synthetic"},
	{FlagRemove, "remove"},
	{FlagTryEnter, "try-enter"},
	{FlagTryLeave, "try-leave"},
	{FlagExcTopSplitter, "exc-top-splitter"},
	{FlagExcBottomSplitter, "exc-bottom-splitter"},
}

func (f Flag) String() string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, ",")
}

// BasicBlock represents a basic block in the CFG.
// Edges are stored as block IDs so rewiring never leaves dangling references.
type BasicBlock struct {
	ID          BlockID
	StartOffset int
	Insns       []*Insn
	Flags       Flag

	Preds      []BlockID
	Succs      []BlockID
	CleanSuccs []BlockID

	// Catch is set when every throwing instruction shares the same coverage.
	Catch *CatchAttr
	// Handler is set on a handler entry block.
	Handler *ExcHandlerAttr
	// TryBlock is the innermost finalized try region covering this block.
	TryBlock *TryCatchBlockAttr
	// TmpEdge is the source of a temporary edge keeping a handler reachable
	// until handlers are initialized.
	TmpEdge BlockID

	detached bool
}

// Has reports whether all given flags are set.
func (b *BasicBlock) Has(f Flag) bool { return b.Flags&f == f }

// Add sets the given flags.
func (b *BasicBlock) Add(f Flag) { b.Flags |= f }

// Clear unsets the given flags.
func (b *BasicBlock) Clear(f Flag) { b.Flags &^= f }

// Append adds instructions to the end of the block and returns the block.
func (b *BasicBlock) Append(insns ...*Insn) *BasicBlock {
	b.Insns = append(b.Insns, insns...)
	return b
}

// FirstInsn returns the first instruction, or nil if the block is empty.
func (b *BasicBlock) FirstInsn() *Insn {
	if len(b.Insns) == 0 {
		return nil
	}
	return b.Insns[0]
}

// LastInsn returns the last instruction, or nil if the block is empty.
func (b *BasicBlock) LastInsn() *Insn {
	if len(b.Insns) == 0 {
		return nil
	}
	return b.Insns[len(b.Insns)-1]
}

// IsLastInsn reports whether the block ends with an instruction of the given type.
func (b *BasicBlock) IsLastInsn(typ InsnType) bool {
	last := b.LastInsn()
	return last != nil && last.Type == typ
}

func (b *BasicBlock) String() string {
	return b.ID.String()
}

func containsID(ids []BlockID, id BlockID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func removeID(ids []BlockID, id BlockID) []BlockID {
	for i, x := range ids {
		if x == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
