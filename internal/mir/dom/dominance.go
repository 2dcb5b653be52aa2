// Package dom computes dominator trees and dominance frontiers over a
// method's block graph and answers the region-boundary queries built on them.
package dom

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/unravel-dec/unravel/internal/mir"
)

// Tree is the dominator tree of a method at one point in time.
//
// The tree hangs off a virtual root whose children are the enter block and
// every other live block without predecessors (handler entries that are
// not wired into the graph yet). Blocks reachable from several of those
// roots are dominated only by the virtual root.
type Tree struct {
	m       *mir.Method
	version uint64

	// Slices are indexed by BlockID; index len-1 is the virtual root.
	idom     []int
	rpoNum   []int
	doms     []*roaring.Bitmap
	frontier []*roaring.Bitmap
	virtual  int
}

// Compute builds the dominator tree and the dominance frontier of every block.
// Edges of all kinds are followed, exceptional ones included.
func Compute(m *mir.Method) *Tree {
	n := m.NumIDs()
	t := &Tree{
		m:        m,
		version:  m.Version(),
		idom:     make([]int, n+1),
		rpoNum:   make([]int, n+1),
		doms:     make([]*roaring.Bitmap, n+1),
		frontier: make([]*roaring.Bitmap, n+1),
		virtual:  n,
	}
	for i := range t.idom {
		t.idom[i] = -1
		t.rpoNum[i] = -1
	}

	roots := collectRoots(m)
	rpo := reversePostOrder(m, roots)

	// Step 1: number blocks in reverse post-order, virtual root first
	t.rpoNum[t.virtual] = 0
	for i, id := range rpo {
		t.rpoNum[id] = i + 1
	}

	isRoot := make(map[mir.BlockID]bool, len(roots))
	for _, r := range roots {
		isRoot[r] = true
	}

	// Step 2: iterate to a fixpoint (Cooper, Harvey, Kennedy)
	t.idom[t.virtual] = t.virtual
	changed := true
	for changed {
		changed = false
		for _, id := range rpo {
			newIdom := -1
			if isRoot[id] {
				newIdom = t.virtual
			}
			for _, pred := range m.Block(id).Preds {
				p := int(pred)
				if t.rpoNum[p] < 0 || t.idom[p] < 0 {
					// unreachable or not processed yet
					continue
				}
				if newIdom < 0 {
					newIdom = p
				} else {
					newIdom = t.intersect(p, newIdom)
				}
			}
			if newIdom >= 0 && t.idom[id] != newIdom {
				t.idom[id] = newIdom
				changed = true
			}
		}
	}

	// Step 3: materialize dominator sets, parents before children
	for _, id := range rpo {
		set := roaring.New()
		if parent := t.idom[id]; parent >= 0 && parent != t.virtual {
			set.Or(t.doms[parent])
		}
		set.Add(uint32(id))
		t.doms[id] = set
		t.frontier[id] = roaring.New()
	}

	// Step 4: dominance frontiers of join points
	for _, id := range rpo {
		preds := t.reachablePreds(id)
		if len(preds) < 2 {
			continue
		}
		for _, pred := range preds {
			runner := int(pred)
			for runner != t.idom[id] && runner != t.virtual && runner >= 0 {
				t.frontier[runner].Add(uint32(id))
				runner = t.idom[runner]
			}
		}
	}

	return t
}

// Stale reports whether the method was mutated after the tree was built.
func (t *Tree) Stale() bool {
	return t.m.Version() != t.version
}

// intersect finds the closest common dominator of two processed nodes
func (t *Tree) intersect(b1, b2 int) int {
	for b1 != b2 {
		for t.rpoNum[b1] > t.rpoNum[b2] {
			b1 = t.idom[b1]
		}
		for t.rpoNum[b2] > t.rpoNum[b1] {
			b2 = t.idom[b2]
		}
	}
	return b1
}

func (t *Tree) reachablePreds(id mir.BlockID) []mir.BlockID {
	var preds []mir.BlockID
	for _, p := range t.m.Block(id).Preds {
		if t.rpoNum[p] >= 0 {
			preds = append(preds, p)
		}
	}
	return preds
}

// collectRoots returns the enter block followed by every other live block
// that has no predecessors
func collectRoots(m *mir.Method) []mir.BlockID {
	var roots []mir.BlockID
	if m.Enter.IsValid() && m.IsLive(m.Enter) {
		roots = append(roots, m.Enter)
	}
	for _, b := range m.Blocks() {
		if b.ID != m.Enter && len(b.Preds) == 0 {
			roots = append(roots, b.ID)
		}
	}
	return roots
}

// reversePostOrder returns the blocks reachable from the roots in reverse
// post-order. Unreachable blocks are excluded.
func reversePostOrder(m *mir.Method, roots []mir.BlockID) []mir.BlockID {
	visited := make([]bool, m.NumIDs())
	var order []mir.BlockID

	var dfs func(id mir.BlockID)
	dfs = func(id mir.BlockID) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, s := range m.Block(id).Succs {
			dfs(s)
		}
		order = append(order, id)
	}
	// Later roots first so that the enter block ends up at the front.
	for i := len(roots) - 1; i >= 0; i-- {
		dfs(roots[i])
	}

	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}
