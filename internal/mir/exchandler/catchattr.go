package exchandler

import "github.com/unravel-dec/unravel/internal/mir"

// processCatchAttr drops coverage from instructions that cannot throw, then
// promotes the coverage shared by all remaining instructions to the block.
func (p *processor) processCatchAttr() {
	for _, block := range p.m.Blocks() {
		for _, insn := range block.Insns {
			if insn.Catch != nil && !insn.CanThrowException() {
				insn.Catch = nil
			}
		}
	}
	for _, block := range p.m.Blocks() {
		common := commonCatchAttr(block)
		if common == nil {
			continue
		}
		block.Catch = common
		for _, insn := range block.Insns {
			if insn.Has(mir.InsnTryEnter) {
				block.Add(mir.FlagTryEnter)
			}
			if insn.Has(mir.InsnTryLeave) {
				block.Add(mir.FlagTryLeave)
			}
		}
	}
}

// commonCatchAttr returns the coverage carried by every covered instruction
// of the block, or nil if they disagree or none is covered.
func commonCatchAttr(block *mir.BasicBlock) *mir.CatchAttr {
	var common *mir.CatchAttr
	for _, insn := range block.Insns {
		if insn.Catch == nil {
			continue
		}
		if common == nil {
			common = insn.Catch
			continue
		}
		if !common.Equal(insn.Catch) {
			return nil
		}
	}
	return common
}
