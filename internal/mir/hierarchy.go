package mir

// TypeHierarchy answers subtype queries between reference types.
type TypeHierarchy interface {
	// IsSubtype reports whether sub is a strict subtype of super.
	IsSubtype(sub, super ArgType) bool
}

// ClassHierarchy is a TypeHierarchy backed by a map from each class to its
// direct superclass. Every class is assumed to descend from Throwable.
type ClassHierarchy struct {
	parents map[ArgType]ArgType
}

// NewClassHierarchy creates an empty hierarchy.
func NewClassHierarchy() *ClassHierarchy {
	return &ClassHierarchy{parents: make(map[ArgType]ArgType)}
}

// Add declares parent as the direct superclass of cls and returns the hierarchy.
func (h *ClassHierarchy) Add(cls, parent ArgType) *ClassHierarchy {
	h.parents[cls] = parent
	return h
}

// IsSubtype implements TypeHierarchy.
func (h *ClassHierarchy) IsSubtype(sub, super ArgType) bool {
	if sub == super {
		return false
	}
	if super == Throwable {
		return true
	}
	seen := make(map[ArgType]bool)
	for cur, ok := h.parents[sub]; ok; cur, ok = h.parents[cur] {
		if cur == super {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
	}
	return false
}
