package exchandler

import "github.com/unravel-dec/unravel/internal/mir"

// sortHandlers puts the handlers of every region in catch order: a handler
// for a subtype precedes one for its supertype, unrelated types are ordered
// by name and catch-all handlers come last.
func (p *processor) sortHandlers(tryBlocks []*mir.TryCatchBlockAttr) error {
	for _, tb := range tryBlocks {
		handlers := tb.Handlers()
		for i, h := range handlers {
			if containsHandler(handlers[i+1:], h) {
				return invariantf(p.m.Name, "same handler %s twice in try block #%d", h, tb.ID())
			}
		}
		tb.SetHandlers(orderHandlers(handlers, p.cfg.hierarchy))
	}
	return nil
}

// orderHandlers is a topological sort of the typed handlers over the subtype
// relation. Among handlers that are ready the one with the smallest type name
// goes first, which also breaks cycles in a malformed hierarchy.
func orderHandlers(handlers []*mir.ExceptionHandler, hierarchy mir.TypeHierarchy) []*mir.ExceptionHandler {
	var typed, catchAll []*mir.ExceptionHandler
	for _, h := range handlers {
		if h.IsCatchAll() {
			catchAll = append(catchAll, h)
		} else {
			typed = append(typed, h)
		}
	}

	// before[i] counts the unplaced handlers that must precede typed[i]
	before := make([]int, len(typed))
	for i, a := range typed {
		for j, b := range typed {
			if i != j && hierarchy.IsSubtype(primaryType(b), primaryType(a)) {
				before[i]++
			}
		}
	}

	result := make([]*mir.ExceptionHandler, 0, len(handlers))
	placed := make([]bool, len(typed))
	for len(result) < len(typed) {
		next := -1
		for i, h := range typed {
			if placed[i] {
				continue
			}
			if next < 0 || readyFirst(before[i], before[next], h, typed[next]) {
				next = i
			}
		}
		placed[next] = true
		result = append(result, typed[next])
		for i, h := range typed {
			if !placed[i] && hierarchy.IsSubtype(primaryType(typed[next]), primaryType(h)) {
				before[i]--
			}
		}
	}
	return append(result, catchAll...)
}

// readyFirst reports whether a candidate with pending count na and handler a
// should be placed before one with nb and b.
func readyFirst(na, nb int, a, b *mir.ExceptionHandler) bool {
	if (na == 0) != (nb == 0) {
		return na == 0
	}
	ta, tb := primaryType(a), primaryType(b)
	if ta != tb {
		return ta < tb
	}
	return a.ID() < b.ID()
}

func primaryType(h *mir.ExceptionHandler) mir.ArgType {
	if types := h.CatchTypes(); len(types) != 0 {
		return types[0]
	}
	return mir.Throwable
}
