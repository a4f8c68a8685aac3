package traits

import (
	"fmt"

	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// TargetKind classifies call targets.
type TargetKind int

const (
	// TargetStatic calls a function known at compile time.
	TargetStatic TargetKind = iota
	// TargetDynamic calls through a dispatch table slot.
	TargetDynamic
	// TargetValue calls a function value held in a variable or field.
	TargetValue
)

func (k TargetKind) String() string {
	switch k {
	case TargetStatic:
		return "static"
	case TargetDynamic:
		return "dynamic"
	case TargetValue:
		return "value"
	default:
		return "unknown"
	}
}

// Target is the resolved target of a call.
type Target struct {
	Method *Method
	Trait  *types.Trait
	Sig    *types.Function
	Kind   TargetKind
	Slot   int
}

func (t Target) String() string {
	switch t.Kind {
	case TargetStatic:
		if t.Method != nil {
			return t.Method.Symbol
		}
	case TargetDynamic:
		return fmt.Sprintf("%s[%d]", t.Trait, t.Slot)
	}
	return t.Kind.String()
}

// MethodSource finds methods declared directly on a concrete type.
type MethodSource interface {
	Method(concrete types.Type, name string) (*Method, bool)
}

// ResolveCall resolves receiver.method(...). A concrete receiver resolves
// statically: to its own method if present, else to the implementation
// registered for the exact (trait, concrete) pair. A trait-typed receiver
// resolves to a dispatch table slot.
func (r *Registry) ResolveCall(receiver types.Type, method string, bound *types.Trait, own MethodSource) (Target, error) {
	receiver = types.Deref(receiver)

	if t, ok := receiver.(*types.Trait); ok {
		info, ok := r.traits[t.Name]
		if !ok {
			return Target{}, &NoImplementationError{Receiver: receiver, Method: method}
		}
		sig, slot, ok := info.Sig(t, method)
		if !ok {
			return Target{}, &NoImplementationError{Receiver: receiver, Method: method, Trait: t}
		}
		return Target{Kind: TargetDynamic, Trait: t, Slot: slot, Sig: sig}, nil
	}

	if own != nil {
		if m, ok := own.Method(receiver, method); ok {
			return Target{Kind: TargetStatic, Method: m, Sig: m.Sig}, nil
		}
	}

	if bound != nil {
		if impl, ok := r.Lookup(bound, receiver); ok {
			if m, ok := impl.Methods[method]; ok {
				return Target{Kind: TargetStatic, Method: m, Trait: bound, Sig: m.Sig}, nil
			}
		}
		return Target{}, &NoImplementationError{Receiver: receiver, Method: method, Trait: bound}
	}

	var found *Method
	var via *types.Trait
	for _, impl := range r.ImplsOf(receiver) {
		if m, ok := impl.Methods[method]; ok {
			if found != nil && found != m {
				return Target{}, &NoImplementationError{Receiver: receiver, Method: method, Ambiguous: true}
			}
			found, via = m, impl.Trait
		}
	}
	if found == nil {
		return Target{}, &NoImplementationError{Receiver: receiver, Method: method}
	}
	return Target{Kind: TargetStatic, Method: found, Trait: via, Sig: found.Sig}, nil
}
