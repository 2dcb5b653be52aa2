package mir

import (
	"fmt"
	"sort"
	"strings"
)

// ExceptionHandler is one logical catch clause
type ExceptionHandler struct {
	id            int
	handlerOffset int
	catchTypes    []ArgType
	handlerBlock  BlockID
	blocks        []BlockID
	arg           Arg
	removed       bool
}

// NewExceptionHandler creates a handler for the raw handler record at
// handlerOffset. No catch types, or Throwable among them, means catch-all.
// The id is assigned when the handler is added to a method.
func NewExceptionHandler(handlerOffset int, catchTypes ...ArgType) *ExceptionHandler {
	h := &ExceptionHandler{
		id:            -1,
		handlerOffset: handlerOffset,
		handlerBlock:  NoBlock,
	}
	h.addCatchTypes(catchTypes)
	return h
}

func (h *ExceptionHandler) ID() int               { return h.id }
func (h *ExceptionHandler) HandlerOffset() int    { return h.handlerOffset }
func (h *ExceptionHandler) HandlerBlock() BlockID { return h.handlerBlock }
func (h *ExceptionHandler) Blocks() []BlockID     { return h.blocks }
func (h *ExceptionHandler) Arg() Arg              { return h.arg }
func (h *ExceptionHandler) IsRemoved() bool       { return h.removed }

// CatchTypes returns the declared types in declaration order.
func (h *ExceptionHandler) CatchTypes() []ArgType { return h.catchTypes }

// SetHandlerBlock records the entry block of the handler.
func (h *ExceptionHandler) SetHandlerBlock(id BlockID) { h.handlerBlock = id }

// AddBlock adds a block to the handler body, ignoring duplicates.
func (h *ExceptionHandler) AddBlock(id BlockID) {
	if !containsID(h.blocks, id) {
		h.blocks = append(h.blocks, id)
	}
}

// SetArg records the variable the caught value is bound to.
func (h *ExceptionHandler) SetArg(arg Arg) { h.arg = arg }

// IsCatchAll reports whether the handler catches every throwable.
func (h *ExceptionHandler) IsCatchAll() bool {
	if len(h.catchTypes) == 0 {
		return true
	}
	for _, t := range h.catchTypes {
		if t == Throwable {
			return true
		}
	}
	return false
}

// ArgType returns the declared type of the bound exception variable.
func (h *ExceptionHandler) ArgType() ArgType {
	if h.IsCatchAll() || len(h.catchTypes) != 1 {
		return Throwable
	}
	return h.catchTypes[0]
}

// AddCatchTypes merges the given types into the handler, as done when several
// handlers collapse into one multi-catch clause.
func (h *ExceptionHandler) AddCatchTypes(types []ArgType) {
	h.addCatchTypes(types)
	if reg, ok := h.arg.(*RegisterArg); ok {
		reg.Type = h.ArgType()
	}
}

func (h *ExceptionHandler) addCatchTypes(types []ArgType) {
	for _, t := range types {
		found := false
		for _, existing := range h.catchTypes {
			if existing == t {
				found = true
				break
			}
		}
		if !found {
			h.catchTypes = append(h.catchTypes, t)
		}
	}
}

// MarkForRemove flags the handler and its whole body for removal.
func (h *ExceptionHandler) MarkForRemove(m *Method) {
	h.removed = true
	for _, id := range h.blocks {
		m.Block(id).Add(FlagRemove)
	}
}

func (h *ExceptionHandler) String() string {
	var types string
	if h.IsCatchAll() {
		types = "all"
	} else {
		names := make([]string, len(h.catchTypes))
		for i, t := range h.catchTypes {
			names[i] = string(t)
		}
		types = strings.Join(names, " | ")
	}
	return fmt.Sprintf("Handler#%d(%s @0x%x -> %s)", h.id, types, h.handlerOffset, h.handlerBlock)
}

// CatchAttr is the immutable set of handlers active at an instruction or
// block, ordered by handler offset.
type CatchAttr struct {
	handlers []*ExceptionHandler
}

// NewCatchAttr builds a deduplicated, offset-ordered catch attribute.
func NewCatchAttr(handlers ...*ExceptionHandler) *CatchAttr {
	list := make([]*ExceptionHandler, 0, len(handlers))
	for _, h := range handlers {
		dup := false
		for _, existing := range list {
			if existing == h {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, h)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].handlerOffset != list[j].handlerOffset {
			return list[i].handlerOffset < list[j].handlerOffset
		}
		return list[i].id < list[j].id
	})
	return &CatchAttr{handlers: list}
}

// Handlers returns the handlers in offset order. The slice must not be modified.
func (c *CatchAttr) Handlers() []*ExceptionHandler { return c.handlers }

// Equal reports whether both attributes cover the same handlers.
func (c *CatchAttr) Equal(other *CatchAttr) bool {
	if c == other {
		return true
	}
	if c == nil || other == nil {
		return false
	}
	return sameHandlers(c.handlers, other.handlers)
}

// sameHandlers reports whether both lists hold the same handlers in the same order.
func sameHandlers(a, b []*ExceptionHandler) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *CatchAttr) String() string {
	parts := make([]string, len(c.handlers))
	for i, h := range c.handlers {
		parts[i] = h.String()
	}
	return "Catch: " + strings.Join(parts, ", ")
}

// ExcHandlerAttr marks a block or instruction as the entry of a handler
type ExcHandlerAttr struct {
	Handler *ExceptionHandler
}

// TryCatchBlockAttr is one reconstructed try region
type TryCatchBlockAttr struct {
	id          int
	handlers    []*ExceptionHandler
	blocks      []BlockID
	outer       *TryCatchBlockAttr
	inner       []*TryCatchBlockAttr
	topSplitter BlockID
}

// NewTryCatchBlockAttr creates a region. The slices are copied.
func NewTryCatchBlockAttr(id int, handlers []*ExceptionHandler, blocks []BlockID) *TryCatchBlockAttr {
	return &TryCatchBlockAttr{
		id:          id,
		handlers:    append([]*ExceptionHandler(nil), handlers...),
		blocks:      append([]BlockID(nil), blocks...),
		topSplitter: NoBlock,
	}
}

func (t *TryCatchBlockAttr) ID() int                              { return t.id }
func (t *TryCatchBlockAttr) Handlers() []*ExceptionHandler        { return t.handlers }
func (t *TryCatchBlockAttr) Blocks() []BlockID                    { return t.blocks }
func (t *TryCatchBlockAttr) OuterTryBlock() *TryCatchBlockAttr    { return t.outer }
func (t *TryCatchBlockAttr) InnerTryBlocks() []*TryCatchBlockAttr { return t.inner }
func (t *TryCatchBlockAttr) TopSplitter() BlockID                 { return t.topSplitter }

func (t *TryCatchBlockAttr) SetHandlers(handlers []*ExceptionHandler) { t.handlers = handlers }
func (t *TryCatchBlockAttr) SetBlocks(blocks []BlockID)               { t.blocks = blocks }
func (t *TryCatchBlockAttr) SetTopSplitter(id BlockID)                { t.topSplitter = id }

// SetOuterTryBlock links the region under outer and registers it as outer's inner region.
func (t *TryCatchBlockAttr) SetOuterTryBlock(outer *TryCatchBlockAttr) {
	t.outer = outer
	outer.inner = append(outer.inner, t)
}

// DetachFromOuter unlinks the region from its outer region, if any.
func (t *TryCatchBlockAttr) DetachFromOuter() {
	if t.outer == nil {
		return
	}
	inner := t.outer.inner[:0]
	for _, in := range t.outer.inner {
		if in != t {
			inner = append(inner, in)
		}
	}
	t.outer.inner = inner
	t.outer = nil
}

// HasAncestor reports whether other is reachable from t by following outer links.
func (t *TryCatchBlockAttr) HasAncestor(other *TryCatchBlockAttr) bool {
	for cur := t.outer; cur != nil; cur = cur.outer {
		if cur == other {
			return true
		}
	}
	return false
}

// IsAllHandler reports whether the region's only handler is a catch-all.
func (t *TryCatchBlockAttr) IsAllHandler() bool {
	return len(t.handlers) == 1 && t.handlers[0].IsCatchAll()
}

// Clear empties the region so that cleanup drops it.
func (t *TryCatchBlockAttr) Clear() {
	t.handlers = nil
	t.blocks = nil
}

func (t *TryCatchBlockAttr) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "TryCatch #%d {", t.id)
	for i, h := range t.handlers {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(h.String())
	}
	b.WriteString("} blocks: [")
	for i, id := range t.blocks {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(id.String())
	}
	b.WriteString("]")
	if t.outer != nil {
		fmt.Fprintf(&b, " outer: #%d", t.outer.id)
	}
	if len(t.inner) > 0 {
		b.WriteString(" inner: [")
		for i, in := range t.inner {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "#%d", in.id)
		}
		b.WriteString("]")
	}
	return b.String()
}
