// Package traits keeps the registry of trait implementations and decides,
// for each method call, whether it resolves to a concrete function at
// compile time or goes through a per-value dispatch table.
package traits

import (
	"fmt"
	"sort"

	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// Method is a callable method implementation or trait method slot.
type Method struct {
	// Sig is the signature without the receiver.
	Sig *types.Function
	// Data belongs to the checker: the definition or specialization that
	// implements the method.
	Data interface{}
	// Symbol is the mangled name of the implementing function.
	Symbol string
	Name   string
	// MutSelf is set when the receiver is taken as &mut self.
	MutSelf bool
}

// Info describes a declared trait.
type Info struct {
	sigs   map[string]*types.Function
	Name   string
	Params []types.TypeParam
	// Slots lists method names in dispatch table order.
	Slots []string
}

// Sig returns the signature of method name for the trait instance t.
func (i *Info) Sig(t *types.Trait, name string) (*types.Function, int, bool) {
	for slot, n := range i.Slots {
		if n != name {
			continue
		}
		sig := i.sigs[name]
		if len(i.Params) > 0 {
			s, err := types.Bind(i.Params, t.Args)
			if err == nil {
				sig = types.Substitute(sig, s).(*types.Function)
			}
		}
		return sig, slot, true
	}
	return nil, 0, false
}

// Impl records that Concrete implements Trait.
type Impl struct {
	Trait    *types.Trait
	Concrete types.Type
	Methods  map[string]*Method
}

// DispatchTable is the per-value table of function pointers plus type tag
// stored alongside a value bound to a trait-typed location.
type DispatchTable struct {
	Trait    *types.Trait
	Concrete types.Type
	Name     string
	Entries  []*Method
	TypeTag  int
}

// Registry holds traits, impls and dispatch tables of one session.
type Registry struct {
	traits  map[string]*Info
	impls   map[string]*Impl
	tables  map[string]*DispatchTable
	tags    map[string]int
	ordered []*DispatchTable
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		traits: make(map[string]*Info),
		impls:  make(map[string]*Impl),
		tables: make(map[string]*DispatchTable),
		tags:   make(map[string]int),
	}
}

// DeclareTrait registers a trait's method signatures in slot order.
func (r *Registry) DeclareTrait(name string, params []types.TypeParam, slots []string, sigs map[string]*types.Function) *Info {
	info := &Info{Name: name, Params: params, Slots: slots, sigs: sigs}
	r.traits[name] = info
	return info
}

// Trait returns the declared trait name.
func (r *Registry) Trait(name string) (*Info, bool) {
	info, ok := r.traits[name]
	return info, ok
}

func implKey(trait *types.Trait, concrete types.Type) string {
	return trait.String() + " for " + concrete.String()
}

// RegisterImpl records an implementation. A second implementation for the
// same (trait, concrete type) pair fails with *DuplicateImplError and the
// first is retained.
func (r *Registry) RegisterImpl(trait *types.Trait, concrete types.Type, methods map[string]*Method) error {
	key := implKey(trait, concrete)
	if _, exists := r.impls[key]; exists {
		return &DuplicateImplError{Trait: trait, Concrete: concrete}
	}
	r.impls[key] = &Impl{Trait: trait, Concrete: concrete, Methods: methods}
	r.TypeTag(concrete)
	return nil
}

// Lookup returns the impl registered for exactly (trait, concrete).
func (r *Registry) Lookup(trait *types.Trait, concrete types.Type) (*Impl, bool) {
	impl, ok := r.impls[implKey(trait, concrete)]
	return impl, ok
}

// Implements implements types.Conformance.
func (r *Registry) Implements(trait *types.Trait, concrete types.Type) bool {
	_, ok := r.Lookup(trait, concrete)
	return ok
}

// ImplsOf returns every impl of concrete, ordered by trait.
func (r *Registry) ImplsOf(concrete types.Type) []*Impl {
	var out []*Impl
	for _, impl := range r.impls {
		if types.Equal(impl.Concrete, concrete) {
			out = append(out, impl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Trait.String() < out[j].Trait.String() })
	return out
}

// TypeTag returns the stable runtime tag of a concrete type, assigning one
// on first use. Tags start at 1.
func (r *Registry) TypeTag(concrete types.Type) int {
	key := concrete.String()
	if tag, ok := r.tags[key]; ok {
		return tag
	}
	tag := len(r.tags) + 1
	r.tags[key] = tag
	return tag
}

// Table returns the dispatch table for concrete values bound to trait,
// building it on first use.
func (r *Registry) Table(trait *types.Trait, concrete types.Type) (*DispatchTable, error) {
	key := implKey(trait, concrete)
	if t, ok := r.tables[key]; ok {
		return t, nil
	}

	impl, ok := r.impls[key]
	if !ok {
		return nil, &NoImplementationError{Receiver: concrete, Trait: trait}
	}
	info, ok := r.traits[trait.Name]
	if !ok {
		return nil, fmt.Errorf("trait %s is not declared", trait.Name)
	}

	table := &DispatchTable{
		Trait:    trait,
		Concrete: concrete,
		Name:     fmt.Sprintf("%s.vtable.%s", concrete, trait),
		TypeTag:  r.TypeTag(concrete),
	}
	for _, name := range info.Slots {
		m, ok := impl.Methods[name]
		if !ok {
			return nil, &NoImplementationError{Receiver: concrete, Method: name, Trait: trait}
		}
		table.Entries = append(table.Entries, m)
	}

	r.tables[key] = table
	r.ordered = append(r.ordered, table)
	return table, nil
}

// Tables returns the dispatch tables in creation order.
func (r *Registry) Tables() []*DispatchTable {
	return r.ordered
}
