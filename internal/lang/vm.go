package lang

import (
	"fmt"

	"github.com/pfq-dev/go-pfq/internal/packet"
	"github.com/pfq-dev/go-pfq/internal/symtab"
)

// runtimeNode is a linked, symbol-resolved node ready for evaluation.
type runtimeNode struct {
	kind   Kind
	symbol string

	monadic     symtab.MonadicFn
	highOrderFn func(state interface{}, predResult bool, skb *packet.Descriptor) (*packet.Descriptor, error)
	pIndex      int

	predicate symtab.PredicateFn
	combo     ComboKind
	lChild    int
	rChild    int

	left, right int
	state       interface{}
	fini        symtab.FiniFn
}

// Program is a compiled pfq-lang graph: a context arena of linked runtime
// nodes plus the entry index. It implements group.Program.
type Program struct {
	name  string
	nodes []runtimeNode
	entry int
}

// Name identifies the program, satisfying group.Program.
func (p *Program) Name() string { return p.name }

// Compile validates descrs then links them against the registry, per
// spec §4.4.3. Context-arena sizing follows the corrected design noted in
// spec §9: size * sizeof(node) + header, rather than the source's
// undersized allocation.
func Compile(name string, descrs []Descr, entryPoint int, reg *symtab.Registry) (*Program, error) {
	if err := Validate(descrs, entryPoint); err != nil {
		return nil, err
	}

	p := &Program{name: name, entry: entryPoint, nodes: make([]runtimeNode, len(descrs))}

	var initialized []int
	fail := func(idx int, err error) (*Program, error) {
		for i := len(initialized) - 1; i >= 0; i-- {
			n := &p.nodes[initialized[i]]
			if n.fini != nil {
				n.fini(n.state)
			}
		}
		return nil, fmt.Errorf("lang: compile failed at node %d (%s): %w", idx, descrs[idx].Symbol, err)
	}

	for i, d := range descrs {
		n := &p.nodes[i]
		n.kind = d.Kind
		n.symbol = d.Symbol
		n.left, n.right = d.LIndex, d.RIndex
		n.lChild, n.rChild = d.LIndex, d.RIndex
		n.combo = d.Combo
		n.pIndex = d.PIndex

		switch d.Kind {
		case KindMonadic:
			e, err := reg.LookupMonadic(d.Symbol)
			if err != nil {
				return fail(i, err)
			}
			n.monadic = e.Fn
			if e.Init != nil {
				state, err := e.Init(d.Arg)
				if err != nil {
					return fail(i, err)
				}
				n.state, n.fini = state, e.Fini
			}
		case KindHighOrder:
			e, err := reg.LookupMonadic(d.Symbol)
			if err != nil {
				return fail(i, err)
			}
			if !e.HighOrder {
				return fail(i, fmt.Errorf("symbol %q is not high-order", d.Symbol))
			}
			n.highOrderFn = e.HighOrderFn
			if e.Init != nil {
				state, err := e.Init(d.Arg)
				if err != nil {
					return fail(i, err)
				}
				n.state, n.fini = state, e.Fini
			}
		case KindPredicate:
			e, err := reg.LookupPredicate(d.Symbol)
			if err != nil {
				return fail(i, err)
			}
			n.predicate = e.Fn
			if e.Init != nil {
				state, err := e.Init(d.Arg)
				if err != nil {
					return fail(i, err)
				}
				n.state, n.fini = state, e.Fini
			}
		case KindCombinator:
			// purely structural, no symbol resolution needed
		}
		initialized = append(initialized, i)
	}
	return p, nil
}

// Close runs every node's fini hook in reverse order, releasing resources
// acquired by Compile. Replacing a group's program or freeing a group
// does not call it.
func (p *Program) Close() {
	for i := len(p.nodes) - 1; i >= 0; i-- {
		n := &p.nodes[i]
		if n.fini != nil {
			n.fini(n.state)
		}
	}
}

// evalPredicate recursively evaluates the predicate/combinator subtree
// rooted at idx.
func (p *Program) evalPredicate(idx int, skb *packet.Descriptor) bool {
	if idx < 0 || idx >= len(p.nodes) {
		return false
	}
	n := &p.nodes[idx]
	switch n.kind {
	case KindPredicate:
		if n.predicate == nil {
			return false
		}
		return n.predicate(n.state, skb)
	case KindCombinator:
		switch n.combo {
		case ComboNot:
			return !p.evalPredicate(n.lChild, skb)
		case ComboAnd:
			return p.evalPredicate(n.lChild, skb) && p.evalPredicate(n.rChild, skb)
		case ComboOr:
			return p.evalPredicate(n.lChild, skb) || p.evalPredicate(n.rChild, skb)
		case ComboXor:
			return p.evalPredicate(n.lChild, skb) != p.evalPredicate(n.rChild, skb)
		}
	}
	return false
}

// Eval runs the monadic walk described by spec §4.4.4's pseudocode.
func Eval(p *Program, skb *packet.Descriptor) (*packet.Descriptor, error) {
	skb.CB.Right = true
	idx := p.entry
	for {
		n := &p.nodes[idx]
		var err error
		switch n.kind {
		case KindMonadic:
			skb, err = n.monadic(n.state, skb)
		case KindHighOrder:
			result := p.evalPredicate(n.pIndex, skb)
			skb, err = n.highOrderFn(n.state, result, skb)
		default:
			return nil, fmt.Errorf("lang: eval reached non-monadic node %d", idx)
		}
		if err != nil {
			return nil, err
		}
		if skb == nil {
			return nil, nil
		}
		if skb.CB.Action == packet.ActionDrop || skb.CB.StopWalk {
			return skb, nil
		}
		next := n.left
		if skb.CB.Right {
			next = n.right
		}
		if next == noIndex {
			return skb, nil
		}
		idx = next
	}
}

// Compile's make([]runtimeNode, len(descrs)) above sizes the node table
// exactly to the descriptor count; the source's allocator undersized this
// table (spec §9's corrected-design note), a bug that cannot recur here
// since Go slices own their length.
