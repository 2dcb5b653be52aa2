package exchandler

import "github.com/unravel-dec/unravel/internal/mir"

// removeMonitorExit drops the monitor-exit instructions a compiler emits at
// the start of handlers guarding a synchronized section. Scanning of a block
// stops at its first monitor-enter.
func (p *processor) removeMonitorExit(h *mir.ExceptionHandler) {
	for _, id := range h.Blocks() {
		block := p.m.Block(id)
		kept := block.Insns[:0]
		removing := true
		for _, insn := range block.Insns {
			if insn.Type == mir.InsnMonitorEnter {
				removing = false
			}
			if removing && insn.Type == mir.InsnMonitorExit {
				p.log.Debug().Stringer("block", id).Int("offset", insn.Offset).Msg("removed monitor-exit from handler")
				continue
			}
			kept = append(kept, insn)
		}
		block.Insns = kept
	}
}
