package exchandler

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/unravel-dec/unravel/internal/diag"
	"github.com/unravel-dec/unravel/internal/mir"
)

// prepareTryBlocks groups covered blocks by handler and combines the groups
// into a forest of try regions with sorted handlers.
func (p *processor) prepareTryBlocks() ([]*mir.TryCatchBlockAttr, error) {
	blocksByHandler := make(map[*mir.ExceptionHandler][]mir.BlockID)
	for _, block := range p.m.Blocks() {
		if block.Catch == nil {
			continue
		}
		for _, h := range block.Catch.Handlers() {
			blocksByHandler[h] = append(blocksByHandler[h], block.ID)
		}
	}
	if p.debugEnabled() {
		for _, h := range p.m.Handlers() {
			p.log.Debug().
				Stringer("handler", h).
				Str("throw_blocks", idList(blocksByHandler[h])).
				Str("handler_blocks", idList(h.Blocks())).
				Msg("input exception handler")
		}
	}

	if len(blocksByHandler) == 0 {
		for _, h := range p.m.Handlers() {
			p.removeExcHandler(h)
		}
	} else {
		for _, h := range p.m.Handlers() {
			if len(blocksByHandler[h]) != 0 && h.HandlerBlock().IsValid() {
				continue
			}
			p.removeExcHandler(h)
			p.m.AddWarning(diag.StageExcHandlers, diag.CodeExcHandlerUnreachable,
				fmt.Sprintf("exception handler %s is never reachable, dropped", h))
		}
	}
	p.m.DetachMarked()
	p.m.ClearExceptionHandlers()
	if !p.m.HasExceptionHandlers() {
		return nil, nil
	}

	var tryBlocks []*mir.TryCatchBlockAttr
	for _, h := range p.m.Handlers() {
		// a handler is never inside its own try
		body := mir.BlockSet(h.Blocks()...)
		var blocks []mir.BlockID
		for _, id := range blocksByHandler[h] {
			if !body.Contains(id) {
				blocks = append(blocks, id)
			}
		}
		tryBlocks = append(tryBlocks, p.newTryBlock([]*mir.ExceptionHandler{h}, blocks))
	}

	if len(tryBlocks) > 1 {
		restart := true
		for restart {
			tryBlocks, restart = p.combineTryCatchBlocks(tryBlocks)
		}
	}
	p.checkForMultiCatch(tryBlocks)
	tryBlocks = p.clearTryBlocks(tryBlocks)
	if err := p.sortHandlers(tryBlocks); err != nil {
		return nil, err
	}

	if p.debugEnabled() {
		for _, tb := range tryBlocks {
			p.log.Debug().Stringer("try_block", tb).Msg("result try-catch block")
		}
	}
	return tryBlocks, nil
}

func (p *processor) newTryBlock(handlers []*mir.ExceptionHandler, blocks []mir.BlockID) *mir.TryCatchBlockAttr {
	tb := mir.NewTryCatchBlockAttr(p.nextTryID, handlers, blocks)
	p.nextTryID++
	return tb
}

// combineTryCatchBlocks applies the first applicable combination and reports
// whether the scan has to restart.
func (p *processor) combineTryCatchBlocks(tryBlocks []*mir.TryCatchBlockAttr) ([]*mir.TryCatchBlockAttr, bool) {
	for _, outer := range tryBlocks {
		for _, inner := range tryBlocks {
			if outer == inner || inner.OuterTryBlock() != nil {
				continue
			}
			if result, restart := p.checkTryCatchRelation(tryBlocks, outer, inner); restart {
				return result, true
			}
		}
	}
	return tryBlocks, false
}

func (p *processor) checkTryCatchRelation(tryBlocks []*mir.TryCatchBlockAttr, outer, inner *mir.TryCatchBlockAttr) ([]*mir.TryCatchBlockAttr, bool) {
	if mir.BlockSet(outer.Blocks()...).Equal(mir.BlockSet(inner.Blocks()...)) {
		handlers := concatHandlers(outer.Handlers(), inner.Handlers())
		merged := p.newTryBlock(handlers, outer.Blocks())
		return replaceTryBlocks(tryBlocks, merged, outer, inner), true
	}

	handlerBlocks := mir.BlockSet()
	for _, h := range inner.Handlers() {
		handlerBlocks.Append(h.Blocks()...)
	}
	coveredByOuter := func(id mir.BlockID) bool {
		c := p.m.Block(id).Catch
		return c != nil && sameHandlerSet(c.Handlers(), outer.Handlers())
	}

	catchInHandler := false
	handlerBlocks.Each(func(id mir.BlockID) bool {
		catchInHandler = coveredByOuter(id)
		return catchInHandler
	})
	catchInTry := false
	for _, id := range inner.Blocks() {
		if coveredByOuter(id) {
			catchInTry = true
			break
		}
	}
	blocksOutsideHandler := false
	for _, id := range outer.Blocks() {
		if !handlerBlocks.Contains(id) {
			blocksOutsideHandler = true
			break
		}
	}

	makeInner := catchInHandler && (catchInTry || blocksOutsideHandler)
	if makeInner && outer.HasAncestor(inner) {
		// nesting would close a cycle
		return tryBlocks, false
	}
	if makeInner && inner.IsAllHandler() {
		// a catch-all handler can't be an inner one
		outer.SetBlocks(mir.ConcatDistinct(outer.Blocks(), inner.Blocks()))
		for _, child := range append([]*mir.TryCatchBlockAttr(nil), inner.InnerTryBlocks()...) {
			child.DetachFromOuter()
			child.SetOuterTryBlock(outer)
		}
		inner.Clear()
		return removeTryBlock(tryBlocks, inner), true
	}
	if makeInner {
		merged := mir.ConcatDistinct(outer.Blocks(), inner.Blocks())
		inner.SetHandlers(subtractHandlers(inner.Handlers(), outer.Handlers()))
		inner.SetOuterTryBlock(outer)
		outer.SetBlocks(merged)
		return tryBlocks, false
	}
	if containsAllHandlers(inner.Handlers(), outer.Handlers()) {
		blocks := mir.ConcatDistinct(outer.Blocks(), inner.Blocks())
		handlers := concatHandlers(outer.Handlers(), inner.Handlers())
		merged := p.newTryBlock(handlers, blocks)
		return replaceTryBlocks(tryBlocks, merged, outer, inner), true
	}
	return tryBlocks, false
}

// replaceTryBlocks swaps the old regions for merged, which takes over their
// inner regions and, when it does not close a cycle, their outer region.
func replaceTryBlocks(tryBlocks []*mir.TryCatchBlockAttr, merged *mir.TryCatchBlockAttr, old ...*mir.TryCatchBlockAttr) []*mir.TryCatchBlockAttr {
	isOld := func(tb *mir.TryCatchBlockAttr) bool {
		for _, o := range old {
			if o == tb {
				return true
			}
		}
		return false
	}

	var parent *mir.TryCatchBlockAttr
	for _, o := range old {
		candidate := o.OuterTryBlock()
		if candidate == nil || isOld(candidate) {
			continue
		}
		descendant := false
		for _, other := range old {
			if candidate.HasAncestor(other) {
				descendant = true
			}
		}
		if !descendant {
			parent = candidate
			break
		}
	}

	for _, o := range old {
		o.DetachFromOuter()
		for _, child := range append([]*mir.TryCatchBlockAttr(nil), o.InnerTryBlocks()...) {
			child.DetachFromOuter()
			if !isOld(child) {
				child.SetOuterTryBlock(merged)
			}
		}
	}
	if parent != nil {
		merged.SetOuterTryBlock(parent)
	}

	result := make([]*mir.TryCatchBlockAttr, 0, len(tryBlocks))
	for _, tb := range tryBlocks {
		if !isOld(tb) {
			result = append(result, tb)
		}
	}
	return append(result, merged)
}

func removeTryBlock(tryBlocks []*mir.TryCatchBlockAttr, tb *mir.TryCatchBlockAttr) []*mir.TryCatchBlockAttr {
	result := make([]*mir.TryCatchBlockAttr, 0, len(tryBlocks))
	for _, other := range tryBlocks {
		if other != tb {
			result = append(result, other)
		}
	}
	return result
}

// clearTryBlocks drops removed blocks and handlers from every region and
// discards regions left empty. Inner regions of a discarded region move to
// its outer region.
func (p *processor) clearTryBlocks(tryBlocks []*mir.TryCatchBlockAttr) []*mir.TryCatchBlockAttr {
	live := make([]*mir.TryCatchBlockAttr, 0, len(tryBlocks))
	for _, tb := range tryBlocks {
		var blocks []mir.BlockID
		for _, id := range tb.Blocks() {
			if !p.m.Block(id).Has(mir.FlagRemove) {
				blocks = append(blocks, id)
			}
		}
		tb.SetBlocks(blocks)

		var handlers []*mir.ExceptionHandler
		for _, h := range tb.Handlers() {
			if !h.IsRemoved() {
				handlers = append(handlers, h)
			}
		}
		tb.SetHandlers(handlers)

		if len(blocks) != 0 && len(handlers) != 0 {
			live = append(live, tb)
			continue
		}
		p.log.Debug().Stringer("try_block", tb).Msg("dropping empty try block")
		parent := tb.OuterTryBlock()
		tb.DetachFromOuter()
		for _, child := range append([]*mir.TryCatchBlockAttr(nil), tb.InnerTryBlocks()...) {
			child.DetachFromOuter()
			if parent != nil {
				child.SetOuterTryBlock(parent)
			}
		}
	}

	p.m.ClearExceptionHandlers()
	p.m.DetachMarked()
	return live
}

func concatHandlers(a, b []*mir.ExceptionHandler) []*mir.ExceptionHandler {
	result := append([]*mir.ExceptionHandler(nil), a...)
	for _, h := range b {
		if !containsHandler(result, h) {
			result = append(result, h)
		}
	}
	return result
}

func subtractHandlers(a, b []*mir.ExceptionHandler) []*mir.ExceptionHandler {
	var result []*mir.ExceptionHandler
	for _, h := range a {
		if !containsHandler(b, h) {
			result = append(result, h)
		}
	}
	return result
}

func containsAllHandlers(list, sub []*mir.ExceptionHandler) bool {
	for _, h := range sub {
		if !containsHandler(list, h) {
			return false
		}
	}
	return true
}

func containsHandler(list []*mir.ExceptionHandler, h *mir.ExceptionHandler) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}

func sameHandlerSet(a, b []*mir.ExceptionHandler) bool {
	return mapset.NewThreadUnsafeSet(a...).Equal(mapset.NewThreadUnsafeSet(b...))
}

func idList(ids []mir.BlockID) string {
	return fmt.Sprint(ids)
}
