package mir

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// IsPathExists reports whether end is reachable from start through clean edges.
func (m *Method) IsPathExists(start, end BlockID) bool {
	if start == end || containsID(m.arena[start].CleanSuccs, end) {
		return true
	}
	visited := mapset.NewThreadUnsafeSet[BlockID]()
	worklist := []BlockID{start}

	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]

		if visited.Contains(id) {
			continue
		}
		visited.Add(id)

		for _, succ := range m.arena[id].CleanSuccs {
			if succ == end {
				return true
			}
			worklist = append(worklist, succ)
		}
	}
	return false
}

// AtLeastOnePathExists reports whether end is reachable from any of the blocks.
func (m *Method) AtLeastOnePathExists(blocks []BlockID, end BlockID) bool {
	for _, b := range blocks {
		if m.IsPathExists(b, end) {
			return true
		}
	}
	return false
}

// TopBlock returns the block from which every other block in the list is
// reachable, or NoBlock if there is none.
func (m *Method) TopBlock(blocks []BlockID) BlockID {
	if len(blocks) == 1 {
		return blocks[0]
	}
	for _, from := range blocks {
		top := true
		for _, to := range blocks {
			if from != to && !m.IsPathExists(from, to) {
				top = false
				break
			}
		}
		if top {
			return from
		}
	}
	return NoBlock
}

// BottomBlock returns the block reachable from every other block in the
// list, or NoBlock if there is none.
func (m *Method) BottomBlock(blocks []BlockID) BlockID {
	if len(blocks) == 1 {
		return blocks[0]
	}
	for _, candidate := range blocks {
		bottom := true
		for _, from := range blocks {
			if candidate != from && !m.IsPathExists(from, candidate) {
				bottom = false
				break
			}
		}
		if bottom {
			return candidate
		}
	}
	return NoBlock
}

// BlockWithFlag returns the first of the blocks carrying the flag, or NoBlock.
func (m *Method) BlockWithFlag(blocks []BlockID, f Flag) BlockID {
	for _, id := range blocks {
		if m.arena[id].Has(f) {
			return id
		}
	}
	return NoBlock
}

// BlockSet collects block IDs into an unsynchronized set.
func BlockSet(ids ...BlockID) mapset.Set[BlockID] {
	return mapset.NewThreadUnsafeSet[BlockID](ids...)
}

// ConcatDistinct appends the IDs of b missing from a, keeping order.
func ConcatDistinct(a, b []BlockID) []BlockID {
	seen := BlockSet(a...)
	result := append([]BlockID(nil), a...)
	for _, id := range b {
		if !seen.Contains(id) {
			seen.Add(id)
			result = append(result, id)
		}
	}
	return result
}
