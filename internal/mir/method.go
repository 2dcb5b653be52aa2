package mir

import (
	"github.com/unravel-dec/unravel/internal/diag"
)

// Method is the control-flow graph of one method together with its
// exception handlers. Blocks live in an arena indexed by BlockID; the
// method is owned by a single goroutine while passes run over it.
type Method struct {
	Name string

	arena []*BasicBlock
	order []BlockID

	Enter BlockID
	Exit  BlockID

	handlers  []*ExceptionHandler
	TryBlocks []*TryCatchBlockAttr

	version     uint64
	diagnostics []diag.Diagnostic
}

// NewMethod creates an empty method.
func NewMethod(name string) *Method {
	return &Method{
		Name:  name,
		Enter: NoBlock,
		Exit:  NoBlock,
	}
}

// NewBlock appends a new empty block to the arena and the live block list.
func (m *Method) NewBlock(startOffset int) *BasicBlock {
	b := &BasicBlock{
		ID:          BlockID(len(m.arena)),
		StartOffset: startOffset,
		TmpEdge:     NoBlock,
	}
	m.arena = append(m.arena, b)
	m.order = append(m.order, b.ID)
	m.version++
	return b
}

// Block returns the block with the given ID, including detached blocks.
func (m *Method) Block(id BlockID) *BasicBlock {
	if int(id) >= len(m.arena) {
		return nil
	}
	return m.arena[id]
}

// Blocks returns the live blocks in creation order.
func (m *Method) Blocks() []*BasicBlock {
	blocks := make([]*BasicBlock, len(m.order))
	for i, id := range m.order {
		blocks[i] = m.arena[id]
	}
	return blocks
}

// BlockIDs returns the IDs of the live blocks in creation order.
func (m *Method) BlockIDs() []BlockID {
	return append([]BlockID(nil), m.order...)
}

// NumIDs returns the number of IDs ever allocated; every BlockID is below it.
func (m *Method) NumIDs() int { return len(m.arena) }

// IsLive reports whether the block is still part of the graph.
func (m *Method) IsLive(id BlockID) bool {
	return int(id) < len(m.arena) && !m.arena[id].detached
}

// Version changes every time blocks or edges are added or removed.
// Analyses compare it to detect stale results.
func (m *Method) Version() uint64 { return m.version }

// AddHandler registers an exception handler with the method and assigns its id.
func (m *Method) AddHandler(h *ExceptionHandler) *ExceptionHandler {
	h.id = len(m.handlers)
	for _, existing := range m.handlers {
		if existing.id >= h.id {
			h.id = existing.id + 1
		}
	}
	m.handlers = append(m.handlers, h)
	return h
}

// Handlers returns the method's handlers.
func (m *Method) Handlers() []*ExceptionHandler { return m.handlers }

// HasExceptionHandlers reports whether any handler is registered.
func (m *Method) HasExceptionHandlers() bool { return len(m.handlers) != 0 }

// ClearExceptionHandlers drops handlers marked for removal.
func (m *Method) ClearExceptionHandlers() {
	live := m.handlers[:0]
	for _, h := range m.handlers {
		if !h.IsRemoved() {
			live = append(live, h)
		}
	}
	m.handlers = live
}

// Connect adds the edge from -> to if it is not present yet.
func (m *Method) Connect(from, to BlockID) {
	src, dst := m.arena[from], m.arena[to]
	if !containsID(src.Succs, to) {
		src.Succs = append(src.Succs, to)
	}
	if !containsID(dst.Preds, from) {
		dst.Preds = append(dst.Preds, from)
	}
	m.version++
}

// RemoveConnection deletes the edge from -> to if present.
func (m *Method) RemoveConnection(from, to BlockID) {
	src, dst := m.arena[from], m.arena[to]
	src.Succs = removeID(src.Succs, to)
	src.CleanSuccs = removeID(src.CleanSuccs, to)
	dst.Preds = removeID(dst.Preds, from)
	m.version++
}

// ReplaceConnection redirects the edge source -> oldDest to source -> newDest,
// keeping the position of the edge in source's successor list.
func (m *Method) ReplaceConnection(source, oldDest, newDest BlockID) {
	src := m.arena[source]
	for i, s := range src.Succs {
		if s == oldDest {
			if containsID(src.Succs, newDest) {
				src.Succs = append(src.Succs[:i], src.Succs[i+1:]...)
			} else {
				src.Succs[i] = newDest
			}
			break
		}
	}
	m.arena[oldDest].Preds = removeID(m.arena[oldDest].Preds, source)
	if dst := m.arena[newDest]; !containsID(dst.Preds, source) {
		dst.Preds = append(dst.Preds, source)
	}
	m.version++
}

// SplitTop inserts a new empty block in front of block: every predecessor is
// redirected to the new block, which then falls through to block.
func (m *Method) SplitTop(id BlockID) *BasicBlock {
	block := m.arena[id]
	newBlock := m.NewBlock(block.StartOffset)
	for _, pred := range append([]BlockID(nil), block.Preds...) {
		m.ReplaceConnection(pred, id, newBlock.ID)
	}
	m.Connect(newBlock.ID, id)
	return newBlock
}

// DetachMarked removes every block flagged FlagRemove from the graph,
// dropping all of its edges. Detached blocks stay addressable by ID.
func (m *Method) DetachMarked() {
	live := m.order[:0]
	var removed []BlockID
	for _, id := range m.order {
		if m.arena[id].Has(FlagRemove) {
			m.arena[id].detached = true
			removed = append(removed, id)
		} else {
			live = append(live, id)
		}
	}
	m.order = live
	for _, id := range removed {
		b := m.arena[id]
		for _, pred := range append([]BlockID(nil), b.Preds...) {
			m.RemoveConnection(pred, id)
		}
		for _, succ := range append([]BlockID(nil), b.Succs...) {
			m.RemoveConnection(id, succ)
		}
	}
	if len(removed) != 0 {
		m.version++
	}
}

// IsExceptionHandlerPath reports whether entering the block means taking
// exceptional control flow.
func (m *Method) IsExceptionHandlerPath(id BlockID) bool {
	b := m.arena[id]
	if b.Handler != nil || b.Has(FlagExcBottomSplitter) || b.Has(FlagRemove) {
		return true
	}
	if b.Has(FlagSynthetic) && len(b.Succs) == 1 {
		return m.arena[b.Succs[0]].Handler != nil
	}
	return false
}

// UpdateCleanSuccessors recomputes the successors of a block reached through
// normal control flow only.
func (m *Method) UpdateCleanSuccessors(id BlockID) {
	b := m.arena[id]
	clean := make([]BlockID, 0, len(b.Succs))
	for _, s := range b.Succs {
		if !m.IsExceptionHandlerPath(s) {
			clean = append(clean, s)
		}
	}
	b.CleanSuccs = clean
}

// UpdateAllCleanSuccessors recomputes clean successors for every live block.
func (m *Method) UpdateAllCleanSuccessors() {
	for _, id := range m.order {
		m.UpdateCleanSuccessors(id)
	}
}

// AddDiagnostic attaches a diagnostic to the method.
func (m *Method) AddDiagnostic(d diag.Diagnostic) {
	if d.Location.Method == "" {
		d.Location.Method = m.Name
	}
	m.diagnostics = append(m.diagnostics, d)
}

// AddWarning attaches a warning produced by the given stage.
func (m *Method) AddWarning(stage diag.Stage, code diag.Code, msg string) {
	m.AddDiagnostic(diag.Diagnostic{
		Stage:    stage,
		Severity: diag.SeverityWarning,
		Code:     code,
		Message:  msg,
		Location: diag.Location{Offset: -1},
	})
}

// AddError attaches an error; later passes skip the method.
func (m *Method) AddError(stage diag.Stage, code diag.Code, msg string, cause error) {
	m.AddDiagnostic(diag.Diagnostic{
		Stage:    stage,
		Severity: diag.SeverityError,
		Code:     code,
		Message:  msg,
		Location: diag.Location{Offset: -1},
		Cause:    cause,
	})
}

// Diagnostics returns everything reported for the method so far.
func (m *Method) Diagnostics() []diag.Diagnostic { return m.diagnostics }

// HasErrors reports whether an error diagnostic is attached.
func (m *Method) HasErrors() bool {
	for _, d := range m.diagnostics {
		if d.Severity == diag.SeverityError {
			return true
		}
	}
	return false
}
