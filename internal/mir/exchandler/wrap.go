package exchandler

import (
	"github.com/golang-collections/go-datastructures/queue"
	"github.com/pkg/errors"

	"github.com/unravel-dec/unravel/internal/mir"
)

// connectExcHandlers wraps every try region with top and bottom splitters
// and connects them to the handlers. A region whose top block is not wired
// into the graph yet (it sits in a handler of another region) is postponed
// to the end of the queue.
func (p *processor) connectExcHandlers(tryBlocks []*mir.TryCatchBlockAttr) error {
	if len(tryBlocks) == 0 {
		return nil
	}
	limit := len(tryBlocks) * p.cfg.wrapLimitFactor
	q := queue.New(int64(len(tryBlocks)))
	for _, tb := range tryBlocks {
		if err := q.Put(tb); err != nil {
			return errors.Wrap(err, "queue try block")
		}
	}

	count := 0
	for !q.Empty() {
		items, err := q.Get(1)
		if err != nil {
			return errors.Wrap(err, "dequeue try block")
		}
		tb := items[0].(*mir.TryCatchBlockAttr)
		complete, err := p.wrapBlocksWithTryCatch(tb)
		if err != nil {
			return err
		}
		count++
		if complete {
			continue
		}
		// completed regions never requeue, so only a retry can exceed the limit
		if count >= limit {
			return invariantf(p.m.Name, "try blocks wrapping queue limit reached after %d attempts", count)
		}
		if err := q.Put(tb); err != nil {
			return errors.Wrap(err, "requeue try block")
		}
	}
	return nil
}

func (p *processor) wrapBlocksWithTryCatch(tb *mir.TryCatchBlockAttr) (bool, error) {
	m := p.m
	m.UpdateAllCleanSuccessors()

	blocks := tb.Blocks()
	top, ready, err := p.searchTopBlock(blocks)
	if err != nil || !ready {
		return false, err
	}
	if len(m.Block(top).Preds) == 0 && top != m.Enter {
		return false, nil
	}
	bottom := p.searchBottomBlock(blocks)
	p.log.Debug().Int("try_block", tb.ID()).Stringer("top", top).Stringer("bottom", bottom).Msg("try block split")

	topSplitter, err := p.getTopSplitterBlock(top)
	if err != nil {
		return false, err
	}
	topSplitter.Add(mir.FlagExcTopSplitter | mir.FlagSynthetic)

	totalHandlerBlocks := 0
	for _, h := range tb.Handlers() {
		totalHandlerBlocks += len(h.Blocks())
	}

	bottomSplitter := mir.NoBlock
	if bottom.IsValid() && totalHandlerBlocks != 0 {
		bottomSplitter = m.BlockWithFlag(m.Block(bottom).Succs, mir.FlagExcBottomSplitter)
		if !bottomSplitter.IsValid() {
			bottomSplitter = m.NewBlock(-1).ID
		}
		m.Block(bottomSplitter).Add(mir.FlagExcBottomSplitter | mir.FlagSynthetic)
		m.Connect(bottom, bottomSplitter)
	}
	p.log.Debug().Int("try_block", tb.ID()).
		Stringer("top_splitter", topSplitter.ID).
		Stringer("bottom_splitter", bottomSplitter).
		Msg("try block splitters")

	p.connectSplittersAndHandlers(tb, topSplitter.ID, bottomSplitter)

	for _, id := range blocks {
		block := m.Block(id)
		// a region nested at any depth wins over the regions enclosing it
		if block.TryBlock == nil || tb.HasAncestor(block.TryBlock) {
			block.TryBlock = tb
		}
	}
	tb.SetTopSplitter(topSplitter.ID)

	m.UpdateCleanSuccessors(topSplitter.ID)
	if bottomSplitter.IsValid() {
		m.UpdateCleanSuccessors(bottomSplitter)
	}
	return true, nil
}

// searchTopBlock finds the block the region is entered through. It reports
// not ready when the blocks hang off a handler that is not connected yet.
func (p *processor) searchTopBlock(blocks []mir.BlockID) (mir.BlockID, bool, error) {
	m := p.m
	if top := m.TopBlock(blocks); top.IsValid() {
		return p.adjustTopBlock(top), true, nil
	}

	tree := p.domTree()
	members := mir.BlockSet(blocks...)
	topDom := tree.CommonDominator(blocks)
	if !topDom.IsValid() && m.Enter.IsValid() {
		// Blocks in a handler body that is not wired yet have no common
		// dominator with the rest; the region is entered from the method.
		var entered []mir.BlockID
		for _, id := range blocks {
			if tree.Dominates(m.Enter, id) {
				entered = append(entered, id)
			}
		}
		if len(entered) == 0 {
			return mir.NoBlock, false, nil
		}
		topDom = tree.CommonDominator(entered)
	}
	if topDom.IsValid() {
		d := m.Block(topDom)
		// the dominator is one step above the region when the region already
		// contains its successor
		if d.Has(mir.FlagExcTopSplitter) && len(d.CleanSuccs) == 1 && members.Contains(d.CleanSuccs[0]) {
			return d.CleanSuccs[0], true, nil
		}
		if len(d.Succs) == 1 && members.Contains(d.Succs[0]) {
			return d.Succs[0], true, nil
		}
		return p.adjustTopBlock(topDom), true, nil
	}

	return mir.NoBlock, false, invariantf(m.Name, "failed to find top block for try-catch from %v", blocks)
}

// adjustTopBlock undoes lifting of the top block by other handlers' blocks.
func (p *processor) adjustTopBlock(top mir.BlockID) mir.BlockID {
	block := p.m.Block(top)
	if len(block.Succs) == 1 && block.Catch == nil {
		return block.Succs[0]
	}
	return top
}

// searchBottomBlock finds the block the region is left through, or NoBlock
// if its paths never join. Predecessors of the join point that can't be
// reached from the region are moved to a new block in front of it.
func (p *processor) searchBottomBlock(blocks []mir.BlockID) mir.BlockID {
	m := p.m
	if bottom := m.BottomBlock(blocks); bottom.IsValid() {
		return bottom
	}
	cross := p.domTree().PathCross(blocks)
	if !cross.IsValid() {
		return mir.NoBlock
	}

	members := mir.BlockSet(blocks...)
	var outside []mir.BlockID
	for _, pred := range m.Block(cross).Preds {
		if !members.Contains(pred) && !m.AtLeastOnePathExists(blocks, pred) {
			outside = append(outside, pred)
		}
	}
	if len(outside) == 0 {
		return cross
	}

	splitCross := m.SplitTop(cross)
	splitCross.Add(mir.FlagSynthetic)
	for _, pred := range outside {
		m.ReplaceConnection(pred, splitCross.ID, cross)
	}
	return splitCross.ID
}

// getTopSplitterBlock returns the splitter in front of top, reusing one that
// is already there.
func (p *processor) getTopSplitterBlock(top mir.BlockID) (*mir.BasicBlock, error) {
	m := p.m
	if top == m.Enter {
		enter := m.Block(m.Enter)
		if len(enter.Succs) == 0 {
			return nil, invariantf(m.Name, "enter block %s has no successor to split", m.Enter)
		}
		return m.SplitTop(enter.Succs[0]), nil
	}

	block := m.Block(top)
	if exist := m.BlockWithFlag(block.Preds, mir.FlagExcTopSplitter); exist.IsValid() {
		return m.Block(exist), nil
	}
	// reuse a splitter on an empty simple path below top
	if len(block.CleanSuccs) == 1 && len(block.Insns) == 0 {
		other := m.BlockWithFlag(block.CleanSuccs, mir.FlagExcTopSplitter)
		if other.IsValid() && len(m.Block(other).Preds) == 1 {
			return m.Block(other), nil
		}
	}
	return m.SplitTop(top), nil
}

// connectSplittersAndHandlers adds edges from both splitters to the
// handlers of the region and of every region enclosing it.
func (p *processor) connectSplittersAndHandlers(tb *mir.TryCatchBlockAttr, top, bottom mir.BlockID) {
	for ; tb != nil; tb = tb.OuterTryBlock() {
		for _, h := range tb.Handlers() {
			p.m.Connect(top, h.HandlerBlock())
			if bottom.IsValid() {
				p.m.Connect(bottom, h.HandlerBlock())
			}
		}
	}
}
