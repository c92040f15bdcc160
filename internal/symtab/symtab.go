// Package symtab implements the pfq-lang symbol table (spec §4.8): a
// registry of named function implementations, resolved at program compile
// time and never on the per-packet hot path.
package symtab

import (
	"fmt"
	"sync"

	"github.com/pfq-dev/go-pfq/internal/packet"
)

// MonadicFn is a monadic step: SkBuff -> Action SkBuff. A nil returned
// descriptor means the packet was consumed (dropped).
type MonadicFn func(state interface{}, skb *packet.Descriptor) (*packet.Descriptor, error)

// PredicateFn is SkBuff -> Bool.
type PredicateFn func(state interface{}, skb *packet.Descriptor) bool

// PropertyFn is SkBuff -> Optional<u64>; ok=false means "absent".
type PropertyFn func(skb *packet.Descriptor) (value uint64, ok bool)

// InitFn binds a node's raw argument arena into opaque per-node state.
type InitFn func(arg []byte) (state interface{}, err error)

// FiniFn releases state allocated by InitFn.
type FiniFn func(state interface{})

// MonadicEntry is a registered monadic or high-order function. HighOrder
// entries receive the result of their bound predicate, which the VM
// evaluates from the node's predicate index, through HighOrderFn.
type MonadicEntry struct {
	Name      string
	HighOrder bool
	Fn        MonadicFn
	// HighOrderFn receives the bound predicate already evaluated against
	// the current packet (spec's EVAL_PREDICATE happens once per step).
	HighOrderFn func(state interface{}, predResult bool, skb *packet.Descriptor) (*packet.Descriptor, error)
	Init        InitFn
	Fini        FiniFn
}

// PredicateEntry is a registered predicate.
type PredicateEntry struct {
	Name string
	Fn   PredicateFn
	Init InitFn
	Fini FiniFn
}

// PropertyEntry is a registered property accessor, referenced by
// comparison predicates (spec §4.4.4).
type PropertyEntry struct {
	Name string
	Fn   PropertyFn
}

// Registry is the two-catalogue symbol table: monadic (monadic + high
// order) and predicate (predicate + combinator built-ins are not
// registered here; combinators are structural, not named symbols).
// Registration is protected by a reader-writer lock; resolution only
// happens at compile time.
type Registry struct {
	mu        sync.RWMutex
	monadic   map[string]MonadicEntry
	predicate map[string]PredicateEntry
	property  map[string]PropertyEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		monadic:   make(map[string]MonadicEntry),
		predicate: make(map[string]PredicateEntry),
		property:  make(map[string]PropertyEntry),
	}
}

// RegisterMonadic adds or replaces a monadic/high-order entry.
func (r *Registry) RegisterMonadic(e MonadicEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monadic[e.Name] = e
}

// RegisterPredicate adds or replaces a predicate entry.
func (r *Registry) RegisterPredicate(e PredicateEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicate[e.Name] = e
}

// RegisterProperty adds or replaces a property entry.
func (r *Registry) RegisterProperty(e PropertyEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.property[e.Name] = e
}

// LookupMonadic resolves a monadic/high-order symbol by name.
func (r *Registry) LookupMonadic(name string) (MonadicEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.monadic[name]
	if !ok {
		return MonadicEntry{}, fmt.Errorf("symtab: unknown monadic symbol %q", name)
	}
	return e, nil
}

// LookupPredicate resolves a predicate symbol by name.
func (r *Registry) LookupPredicate(name string) (PredicateEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.predicate[name]
	if !ok {
		return PredicateEntry{}, fmt.Errorf("symtab: unknown predicate symbol %q", name)
	}
	return e, nil
}

// LookupProperty resolves a property symbol by name.
func (r *Registry) LookupProperty(name string) (PropertyEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.property[name]
	if !ok {
		return PropertyEntry{}, fmt.Errorf("symtab: unknown property symbol %q", name)
	}
	return e, nil
}
