package dom

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/unravel-dec/unravel/internal/mir"
)

// IsReachable reports whether the block hangs off one of the tree's roots.
func (t *Tree) IsReachable(id mir.BlockID) bool {
	return int(id) < t.virtual && t.doms[id] != nil
}

// Idom returns the immediate dominator of the block, or NoBlock for roots
// and unreachable blocks.
func (t *Tree) Idom(id mir.BlockID) mir.BlockID {
	if !t.IsReachable(id) {
		return mir.NoBlock
	}
	parent := t.idom[id]
	if parent < 0 || parent == t.virtual {
		return mir.NoBlock
	}
	return mir.BlockID(parent)
}

// Dominates reports whether a dominates b. Every block dominates itself.
func (t *Tree) Dominates(a, b mir.BlockID) bool {
	return t.IsReachable(b) && t.doms[b].Contains(uint32(a))
}

// Dominators returns a copy of the set of blocks dominating the block.
func (t *Tree) Dominators(id mir.BlockID) *roaring.Bitmap {
	if !t.IsReachable(id) {
		return roaring.New()
	}
	return t.doms[id].Clone()
}

// Frontier returns the dominance frontier of the block in ID order.
func (t *Tree) Frontier(id mir.BlockID) []mir.BlockID {
	if !t.IsReachable(id) {
		return nil
	}
	return toIDs(t.frontier[id])
}

// CommonDominator returns the lowest block dominating every given block, or
// NoBlock if they share no dominator below the virtual root.
func (t *Tree) CommonDominator(blocks []mir.BlockID) mir.BlockID {
	if len(blocks) == 0 {
		return mir.NoBlock
	}
	var common *roaring.Bitmap
	for _, b := range blocks {
		if !t.IsReachable(b) {
			return mir.NoBlock
		}
		if common == nil {
			common = t.doms[b].Clone()
		} else {
			common.And(t.doms[b])
		}
	}
	// The common dominators form a chain; the lowest comes last in RPO.
	lowest, lowestNum := mir.NoBlock, -1
	it := common.Iterator()
	for it.HasNext() {
		id := mir.BlockID(it.Next())
		if n := t.rpoNum[id]; n > lowestNum {
			lowest, lowestNum = id, n
		}
	}
	return lowest
}

// PathCross returns the nearest block where control flow from all given
// blocks joins: their common dominance frontier if it is a single block,
// otherwise the block reachable from all of them through clean edges with
// the smallest total distance. Returns NoBlock if the paths never meet.
func (t *Tree) PathCross(blocks []mir.BlockID) mir.BlockID {
	if len(blocks) == 0 {
		return mir.NoBlock
	}
	var cross *roaring.Bitmap
	for _, b := range blocks {
		if !t.IsReachable(b) {
			continue
		}
		if cross == nil {
			cross = t.frontier[b].Clone()
		} else {
			cross.And(t.frontier[b])
		}
	}
	if cross == nil {
		cross = roaring.New()
	}
	for _, b := range blocks {
		cross.Remove(uint32(b))
	}
	if cross.GetCardinality() == 1 {
		return mir.BlockID(cross.Minimum())
	}

	// Fall back to the clean-edge confluence point.
	members := mir.BlockSet(blocks...)
	total := make(map[mir.BlockID]int)
	hits := make(map[mir.BlockID]int)
	for _, b := range blocks {
		for id, d := range t.cleanDistances(b) {
			if members.Contains(id) {
				continue
			}
			total[id] += d
			hits[id]++
		}
	}

	candidates := make([]mir.BlockID, 0, len(hits))
	for id, n := range hits {
		if n != len(blocks) {
			continue
		}
		if !cross.IsEmpty() && !cross.Contains(uint32(id)) {
			continue
		}
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		return mir.NoBlock
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if total[a] != total[b] {
			return total[a] < total[b]
		}
		return a < b
	})
	return candidates[0]
}

// cleanDistances returns the BFS distance from start to every block reachable
// through clean edges, start excluded
func (t *Tree) cleanDistances(start mir.BlockID) map[mir.BlockID]int {
	dist := make(map[mir.BlockID]int)
	visited := mir.BlockSet(start)
	worklist := []mir.BlockID{start}
	level := map[mir.BlockID]int{start: 0}

	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]

		for _, succ := range t.m.Block(id).CleanSuccs {
			if visited.Contains(succ) {
				continue
			}
			visited.Add(succ)
			level[succ] = level[id] + 1
			dist[succ] = level[succ]
			worklist = append(worklist, succ)
		}
	}
	return dist
}

// CollectDominatedBy returns every block reachable from start, following
// exceptional edges too, that is dominated by dominator. The walk stops at
// blocks outside the dominated region.
func (t *Tree) CollectDominatedBy(dominator, start mir.BlockID) []mir.BlockID {
	var result []mir.BlockID
	visited := mir.BlockSet()

	var collect func(id mir.BlockID)
	collect = func(id mir.BlockID) {
		if visited.Contains(id) {
			return
		}
		visited.Add(id)
		for _, succ := range t.m.Block(id).Succs {
			if t.Dominates(dominator, succ) {
				if !visited.Contains(succ) {
					result = append(result, succ)
				}
				collect(succ)
			}
		}
	}
	collect(start)
	return result
}

func toIDs(bm *roaring.Bitmap) []mir.BlockID {
	raw := bm.ToArray()
	ids := make([]mir.BlockID, len(raw))
	for i, v := range raw {
		ids[i] = mir.BlockID(v)
	}
	return ids
}
