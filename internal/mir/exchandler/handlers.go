package exchandler

import "github.com/unravel-dec/unravel/internal/mir"

// unusedArgName names the bound argument of a handler that never reads the
// caught value.
const unusedArgName = "unused"

// initExcHandlers turns every raw handler entry into an initialized handler
// with an entry block and a body. Blocks created here are not revisited.
func (p *processor) initExcHandlers() {
	for _, id := range p.m.BlockIDs() {
		block := p.m.Block(id)
		first := block.FirstInsn()
		if first == nil || first.ExcHandler == nil {
			continue
		}
		attr := first.ExcHandler
		first.ExcHandler = nil
		p.removeTmpConnection(block)

		h := attr.Handler
		if len(block.Preds) == 0 {
			h.SetHandlerBlock(id)
			block.Handler = attr
			h.AddBlock(id)
			for _, dominated := range p.domTree().CollectDominatedBy(id, id) {
				h.AddBlock(dominated)
			}
		} else {
			// Normal flow already reaches the block: give the handler an
			// empty entry of its own.
			empty := p.m.NewBlock(block.StartOffset)
			empty.Add(mir.FlagSynthetic)
			empty.Handler = attr
			p.m.Connect(empty.ID, id)
			h.SetHandlerBlock(empty.ID)
			h.AddBlock(empty.ID)
		}
		fixMoveExceptionInsn(block, h)
	}
}

func (p *processor) removeTmpConnection(block *mir.BasicBlock) {
	if !block.TmpEdge.IsValid() {
		return
	}
	p.m.RemoveConnection(block.TmpEdge, block.ID)
	block.TmpEdge = mir.NoBlock
}

// fixMoveExceptionInsn binds the handler argument to the move-exception
// result of the entry block, typed with the handler's catch type.
func fixMoveExceptionInsn(block *mir.BasicBlock, h *mir.ExceptionHandler) {
	argType := h.ArgType()
	me := block.LastInsn()
	if me != nil && me.Type == mir.InsnMoveException && me.Result != nil {
		res := &mir.RegisterArg{
			Reg:   me.Result.Reg,
			Type:  argType,
			Flags: me.Result.Flags | mir.RegCustomDeclare,
		}
		me.Result = res
		me.Add(mir.InsnDontInline)
		h.SetArg(res)
		return
	}
	h.SetArg(&mir.NamedArg{Name: unusedArgName, Type: argType})
}

// removeExcHandler marks the handler and its body for removal and drops any
// edge from the method entry to its entry block.
func (p *processor) removeExcHandler(h *mir.ExceptionHandler) {
	h.MarkForRemove(p.m)
	if p.m.Enter.IsValid() && h.HandlerBlock().IsValid() {
		p.m.RemoveConnection(p.m.Enter, h.HandlerBlock())
	}
}
