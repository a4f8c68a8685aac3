package types

import (
	"fmt"
	"sort"
	"strings"
)

// ====== Substitution ======

// Subst binds generic parameter names to types for one instantiation.
type Subst map[string]Type

// String renders the bindings in name order.
func (s Subst) String() string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "=" + s[n].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Substitute replaces every parameter bound in s. Unchanged subtrees are
// returned as is, so the result shares structure with t.
func Substitute(t Type, s Subst) Type {
	if t == nil || len(s) == 0 {
		return t
	}

	switch t := t.(type) {
	case *Param:
		if r, ok := s[t.Name]; ok {
			return r
		}
		return t

	case *Instance:
		if args, changed := substituteList(t.Args, s); changed {
			return &Instance{Name: t.Name, Args: args}
		}
		return t

	case *Trait:
		if args, changed := substituteList(t.Args, s); changed {
			return &Trait{Name: t.Name, Args: args}
		}
		return t

	case *Function:
		params, changed := substituteList(t.Params, s)
		res := Substitute(t.Result, s)
		if changed || res != t.Result {
			return &Function{Params: params, Result: res}
		}
		return t

	case *Reference:
		if target := Substitute(t.Target, s); target != t.Target {
			return &Reference{Target: target, Mutable: t.Mutable}
		}
		return t

	case *Nullable:
		if inner := Substitute(t.Inner, s); inner != t.Inner {
			return &Nullable{Inner: inner}
		}
		return t
	}

	return t
}

func substituteList(ts []Type, s Subst) ([]Type, bool) {
	changed := false
	out := make([]Type, len(ts))
	for i, t := range ts {
		out[i] = Substitute(t, s)
		if out[i] != t {
			changed = true
		}
	}
	return out, changed
}

// ====== Unification ======

// MismatchError reports disagreeing type structure.
type MismatchError struct {
	Expected Type
	Actual   Type
	// Param is set when the mismatch is a conflicting parameter binding.
	Param string
}

func (e *MismatchError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("conflicting types for type parameter %s: %s and %s", e.Param, e.Expected, e.Actual)
	}
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
}

// AmbiguousError reports a parameter no argument could bind.
type AmbiguousError struct {
	Param string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("cannot infer type parameter %s; specify it explicitly", e.Param)
}

// Unify binds parameters of formal by matching it against actual,
// recording bindings into s. Leaves without parameters are not compared;
// conversion rules check them once the substitution is complete.
func Unify(formal, actual Type, s Subst) error {
	if formal == nil || actual == nil || !HasParams(formal) || IsUnresolved(actual) {
		return nil
	}

	switch f := formal.(type) {
	case *Param:
		if bound, ok := s[f.Name]; ok {
			if IsUntyped(actual) && literalFits(actual, bound) {
				return nil
			}
			if !Equal(bound, Default(actual)) {
				return &MismatchError{Expected: bound, Actual: Default(actual), Param: f.Name}
			}
			return nil
		}
		s[f.Name] = Default(actual)
		return nil

	case *Reference:
		if a, ok := actual.(*Reference); ok {
			return Unify(f.Target, a.Target, s)
		}
		return Unify(f.Target, actual, s)

	case *Nullable:
		switch a := actual.(type) {
		case *Nullable:
			return Unify(f.Inner, a.Inner, s)
		case *Primitive:
			if a.Group == GroupNone {
				return nil
			}
		}
		return Unify(f.Inner, actual, s)
	}

	// Borrowed actuals match owner formals structurally.
	actual = Deref(actual)

	switch f := formal.(type) {
	case *Instance:
		a, ok := actual.(*Instance)
		if !ok || a.Name != f.Name || len(a.Args) != len(f.Args) {
			return &MismatchError{Expected: formal, Actual: actual}
		}
		return unifyList(f.Args, a.Args, s)

	case *Trait:
		a, ok := actual.(*Trait)
		if !ok || a.Name != f.Name || len(a.Args) != len(f.Args) {
			// A concrete value bound to a generic trait is matched by impls.
			return nil
		}
		return unifyList(f.Args, a.Args, s)

	case *Function:
		a, ok := actual.(*Function)
		if !ok || len(a.Params) != len(f.Params) {
			return &MismatchError{Expected: formal, Actual: actual}
		}
		if err := unifyList(f.Params, a.Params, s); err != nil {
			return err
		}
		return Unify(orVoid(f.Result), orVoid(a.Result), s)
	}

	return nil
}

func unifyList(formals, actuals []Type, s Subst) error {
	for i := range formals {
		if err := Unify(formals[i], actuals[i], s); err != nil {
			return err
		}
	}
	return nil
}

// TypeParam is a resolved type parameter with an optional default.
type TypeParam struct {
	Default Type
	Name    string
}

// ParamNames returns the names of params in order.
func ParamNames(params []TypeParam) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}

// Infer computes the substitution for a generic signature. Explicit type
// arguments bind every parameter on their own. Otherwise arguments with
// concrete types bind first, then untyped literal arguments, then
// parameter defaults.
func Infer(params []TypeParam, explicit []Type, formals, actuals []Type) (Subst, error) {
	if len(explicit) > 0 {
		// Arguments are checked against the explicit binding by the caller.
		return Bind(params, explicit)
	}

	s := Subst{}

	n := len(formals)
	if len(actuals) < n {
		n = len(actuals)
	}

	for pass := 0; pass < 2; pass++ {
		for i := 0; i < n; i++ {
			if IsUntyped(actuals[i]) != (pass == 1) {
				continue
			}
			if err := Unify(formals[i], actuals[i], s); err != nil {
				return s, err
			}
		}
	}

	for _, p := range params {
		if _, ok := s[p.Name]; ok {
			continue
		}
		if p.Default == nil {
			return s, &AmbiguousError{Param: p.Name}
		}
		s[p.Name] = Substitute(p.Default, s)
	}

	return s, nil
}

// CheckArity validates a count of explicit type arguments against params,
// allowing trailing parameters with defaults to be omitted.
func CheckArity(params []TypeParam, n int) error {
	required := 0
	for i, p := range params {
		if p.Default == nil {
			required = i + 1
		}
	}
	if n < required || n > len(params) {
		return &ArityError{Want: len(params), Got: n}
	}
	return nil
}

// Bind builds the substitution for explicit arguments, filling omitted
// trailing parameters from their defaults.
func Bind(params []TypeParam, args []Type) (Subst, error) {
	if err := CheckArity(params, len(args)); err != nil {
		return nil, err
	}
	s := Subst{}
	for i, p := range params {
		if i < len(args) {
			s[p.Name] = args[i]
		} else {
			s[p.Name] = Substitute(p.Default, s)
		}
	}
	return s, nil
}
