package exchandler

import "github.com/unravel-dec/unravel/internal/mir"

// checkForMultiCatch collapses handlers that only bind the exception and jump
// to the same code into one handler with several catch types.
func (p *processor) checkForMultiCatch(tryBlocks []*mir.TryCatchBlockAttr) {
	merged := false
	for _, tb := range tryBlocks {
		if p.mergeMultiCatch(tb) {
			merged = true
		}
	}
	if merged {
		p.m.DetachMarked()
		p.m.ClearExceptionHandlers()
	}
}

func (p *processor) mergeMultiCatch(tb *mir.TryCatchBlockAttr) bool {
	handlers := tb.Handlers()
	if len(handlers) < 2 {
		return false
	}
	for _, h := range handlers {
		if h.IsRemoved() || len(h.Blocks()) != 1 {
			return false
		}
		block := p.m.Block(h.HandlerBlock())
		if len(block.Insns) != 1 || !block.IsLastInsn(mir.InsnMoveException) {
			return false
		}
	}

	handlerBlocks := mir.BlockSet()
	successors := mir.BlockSet()
	for _, h := range handlers {
		block := p.m.Block(h.HandlerBlock())
		handlerBlocks.Add(block.ID)
		successors.Append(block.Succs...)
	}
	if successors.Cardinality() != 1 {
		return false
	}
	succ, _ := successors.Pop()
	if !mir.BlockSet(p.m.Block(succ).Preds...).Equal(handlerBlocks) {
		return false
	}

	first := p.m.Block(handlers[0].HandlerBlock()).LastInsn().Result
	if first == nil {
		return false
	}
	for _, h := range handlers[1:] {
		if !first.SameReg(p.m.Block(h.HandlerBlock()).LastInsn().Result) {
			return false
		}
	}

	result := handlers[0]
	for _, h := range handlers[1:] {
		result.AddCatchTypes(h.CatchTypes())
		h.MarkForRemove(p.m)
	}
	p.log.Debug().Stringer("try_block", tb).Stringer("handler", result).Msg("merged multi-catch")
	return true
}
