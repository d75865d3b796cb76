// unwind.go - exception propagation: catcher lookup against a thrown
// Exception's type name, walking try-frames innermost-first and each
// prototype's C3-linearised ancestor chain.
//
// Grounded on debug_backtrace.go's frame-walking idiom and the vector-
// table style dispatch in cpu_ie32.go's handleInterrupt, generalised from
// "pick the one handler that matches this interrupt number" to "pick the
// nearest try-frame whose catcher map matches this exception's type or one
// of its ancestors".

package viua

// Prototype describes a user-defined exception/object class: its name and
// its pre-linearised ancestor chain (nearest ancestor first), computed
// once at `class`/`derive` registration time per spec.md §9(iii) -- the
// unwinder never re-linearises at lookup time.
type Prototype struct {
	Name      string
	Ancestors []string // C3-linearised, does not include Name itself
}

// linearizeC3 computes the C3 linearization of a class's ancestor chain
// given each parent's own already-linearised chain, merging left-to-right
// and always preferring the first parent's order (the standard C3 merge
// rule: take the head of the first list that doesn't appear in the tail of
// any other list).
func linearizeC3(parents [][]string) ([]string, error) {
	lists := make([][]string, 0, len(parents)+1)
	lists = append(lists, parents...)
	lists = append(lists, parentNames(parents))

	var result []string
	for {
		lists = dropEmpty(lists)
		if len(lists) == 0 {
			return result, nil
		}
		var head string
		found := false
		for _, l := range lists {
			if len(l) == 0 {
				continue
			}
			candidate := l[0]
			if !appearsInTail(candidate, lists) {
				head = candidate
				found = true
				break
			}
		}
		if !found {
			return nil, NewVMError(ErrType, "inconsistent ancestor hierarchy, cannot linearize")
		}
		result = append(result, head)
		lists = removeFromHeads(lists, head)
	}
}

func parentNames(parents [][]string) []string {
	names := make([]string, 0, len(parents))
	for _, p := range parents {
		if len(p) > 0 {
			names = append(names, p[0])
		}
	}
	return names
}

func dropEmpty(lists [][]string) [][]string {
	out := lists[:0:0]
	for _, l := range lists {
		if len(l) > 0 {
			out = append(out, l)
		}
	}
	return out
}

func appearsInTail(candidate string, lists [][]string) bool {
	for _, l := range lists {
		for i := 1; i < len(l); i++ {
			if l[i] == candidate {
				return true
			}
		}
	}
	return false
}

func removeFromHeads(lists [][]string, name string) [][]string {
	out := make([][]string, 0, len(lists))
	for _, l := range lists {
		if len(l) > 0 && l[0] == name {
			l = l[1:]
		}
		if len(l) > 0 {
			out = append(out, l)
		}
	}
	return out
}

// findCatcher walks the stack's try-frames innermost-first, and within
// each try-frame's catcher map, tests the thrown exception's own type
// name followed by each ancestor in the prototype's linearised chain,
// returning the first match.
func findCatcher(s *Stack, exc *Exception, protos map[string]*Prototype) (*TryFrame, CatchTarget, bool) {
	names := append([]string{exc.Kind}, ancestorsOf(exc.Kind, protos)...)
	for i := len(s.TryFrames) - 1; i >= 0; i-- {
		tf := s.TryFrames[i]
		for _, name := range names {
			if target, ok := tf.Catchers[name]; ok {
				return tf, target, true
			}
		}
	}
	return nil, CatchTarget{}, false
}

func ancestorsOf(typeName string, protos map[string]*Prototype) []string {
	if p, ok := protos[typeName]; ok {
		return p.Ancestors
	}
	return nil
}

// exceptionFromVMError, which renders a runtime VMError as a thrown
// Exception Value, lives in value.go alongside the rest of the Value
// variants, since Exception is a Value constructor rather than an
// unwinder-internal type.
