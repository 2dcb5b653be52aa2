package mir

import (
	"fmt"
	"strings"
)

// Dump returns a human-readable listing of the method's live blocks,
// their edges and attributes, followed by the try regions.
func (m *Method) Dump() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("method %s (enter %s, exit %s) {\n", m.Name, m.Enter, m.Exit))

	// Handlers
	if len(m.handlers) > 0 {
		b.WriteString("  // Handlers:\n")
		for _, h := range m.handlers {
			b.WriteString(fmt.Sprintf("  //   %s\n", h))
		}
		b.WriteString("\n")
	}

	// Basic blocks
	for _, block := range m.Blocks() {
		b.WriteString(block.PrettyPrint())
	}

	// Try regions
	for _, tb := range m.TryBlocks {
		b.WriteString(fmt.Sprintf("  %s\n", tb))
	}

	b.WriteString("}")
	return b.String()
}

// PrettyPrint returns a human-readable string representation of a basic block
func (bb *BasicBlock) PrettyPrint() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %s @0x%x", bb.ID, bb.StartOffset))
	if bb.Flags != 0 {
		b.WriteString(fmt.Sprintf(" [%s]", bb.Flags))
	}
	b.WriteString(fmt.Sprintf(" preds: %s succs: %s\n", idList(bb.Preds), idList(bb.Succs)))

	if bb.Handler != nil {
		b.WriteString(fmt.Sprintf("    // handler entry: %s\n", bb.Handler.Handler))
	}
	if bb.Catch != nil {
		b.WriteString(fmt.Sprintf("    // %s\n", bb.Catch))
	}
	if bb.TryBlock != nil {
		b.WriteString(fmt.Sprintf("    // in try #%d\n", bb.TryBlock.ID()))
	}

	for _, insn := range bb.Insns {
		b.WriteString("    ")
		b.WriteString(insn.PrettyPrint())
		b.WriteString("\n")
	}
	return b.String()
}

// PrettyPrint returns a one-line representation of the instruction
func (i *Insn) PrettyPrint() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%04x: ", i.Offset))
	if i.Result != nil {
		b.WriteString(argString(i.Result))
		b.WriteString(" = ")
	}
	b.WriteString(i.Type.String())
	if len(i.Args) > 0 {
		args := make([]string, len(i.Args))
		for n, arg := range i.Args {
			args[n] = argString(arg)
		}
		b.WriteString(" ")
		b.WriteString(strings.Join(args, ", "))
	}
	if i.Has(InsnDontInline) {
		b.WriteString(" // don't inline")
	}
	return b.String()
}

func argString(arg Arg) string {
	switch a := arg.(type) {
	case *RegisterArg:
		if a.Type != "" {
			return fmt.Sprintf("r%d:%s", a.Reg, a.Type)
		}
		return fmt.Sprintf("r%d", a.Reg)
	case *NamedArg:
		return fmt.Sprintf("%s:%s", a.Name, a.Type)
	default:
		return "?"
	}
}

func idList(ids []BlockID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
