// Package lang implements the pfq-lang virtual machine (spec §4.4):
// descriptor validation, linking, and evaluation of the functional program
// of monadic actions, predicates, properties, and combinators.
package lang

import "fmt"

// Kind is the node variant in a functional_descr graph.
type Kind int

const (
	KindMonadic Kind = iota
	KindHighOrder
	KindPredicate
	KindCombinator
)

// ComboKind selects a combinator's boolean operation.
type ComboKind int

const (
	ComboAnd ComboKind = iota
	ComboOr
	ComboXor
	ComboNot
)

// noIndex marks an absent link (successor, child, or predicate index).
const noIndex = -1

// Descr is one entry of the flat functional_descr array that describes a
// program before compilation (spec §4.4.2).
type Descr struct {
	Kind   Kind
	Symbol string
	Arg    []byte // nil iff the node carries no POD argument
	// PIndex is the high-order node's bound predicate/combinator index.
	PIndex int
	// LIndex/RIndex are successor indices for monadic/high-order nodes, or
	// child predicate/combinator indices for a binary combinator. A unary
	// combinator (not) only uses LIndex.
	LIndex, RIndex int
	// Combo is meaningful only when Kind == KindCombinator.
	Combo ComboKind
}

// ValidationError names the rejected node.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("lang: invalid program at node %d: %s", e.Index, e.Reason)
}

// Validate checks a descriptor array against spec §4.4.2's rejection
// rules. entryPoint names the program's single entry index.
func Validate(descrs []Descr, entryPoint int) error {
	n := len(descrs)
	if entryPoint < 0 || entryPoint >= n {
		return &ValidationError{entryPoint, "entry_point out of range"}
	}
	if k := descrs[entryPoint].Kind; k != KindMonadic && k != KindHighOrder {
		return &ValidationError{entryPoint, "entry node is not monadic or high-order"}
	}

	for i, d := range descrs {
		if d.Kind != KindCombinator && d.Symbol == "" {
			return &ValidationError{i, "null symbol"}
		}

		// (arg_ptr == nil) must equal (arg_size == 0): a node either
		// carries no Arg, or a non-empty one.
		if (d.Kind == KindMonadic || d.Kind == KindPredicate) && d.Arg != nil && len(d.Arg) == 0 {
			return &ValidationError{i, "zero-length argument with non-null pointer"}
		}

		switch d.Kind {
		case KindCombinator:
			if err := checkChild(descrs, i, d.LIndex); err != nil {
				return err
			}
			if d.Combo != ComboNot {
				if err := checkChild(descrs, i, d.RIndex); err != nil {
					return err
				}
			}
		case KindMonadic, KindHighOrder:
			if d.Kind == KindHighOrder {
				if d.PIndex < 0 || d.PIndex >= n {
					return &ValidationError{i, "pindex out of range"}
				}
				pk := descrs[d.PIndex].Kind
				if pk != KindPredicate && pk != KindCombinator {
					return &ValidationError{i, "pindex does not reference a predicate or combinator"}
				}
			}
			if d.LIndex != noIndex {
				if err := checkSuccessor(descrs, i, d.LIndex); err != nil {
					return err
				}
			}
			if d.RIndex != noIndex {
				if err := checkSuccessor(descrs, i, d.RIndex); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkChild(descrs []Descr, owner, idx int) error {
	if idx < 0 || idx >= len(descrs) {
		return &ValidationError{owner, "combinator child index out of range"}
	}
	ck := descrs[idx].Kind
	if ck != KindPredicate && ck != KindCombinator {
		return &ValidationError{owner, "combinator child is not a predicate or combinator"}
	}
	return nil
}

func checkSuccessor(descrs []Descr, owner, idx int) error {
	if idx < 0 || idx >= len(descrs) {
		return &ValidationError{owner, "successor index out of range"}
	}
	sk := descrs[idx].Kind
	if sk != KindMonadic && sk != KindHighOrder {
		return &ValidationError{owner, "successor does not reference a monadic or high-order node"}
	}
	return nil
}
