package types

import (
	"fmt"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/position"
)

// ====== Annotation Resolution ======

// NamedKind classifies what a type name refers to.
type NamedKind int

const (
	NamedPrimitive NamedKind = iota
	NamedParam
	NamedClass
	NamedTrait
	NamedAlias
	NamedTuple
)

// Named is the binding of a type name visible in a namespace.
type Named struct {
	// Type is the resolved type for primitives, parameters and aliases.
	Type   Type
	Name   string
	Params []TypeParam
	Kind   NamedKind
}

// Namespace looks up type names. Scopes from the symbols package
// implement it.
type Namespace interface {
	LookupType(name string) (*Named, bool)
}

// UnknownTypeError reports a type name that is not in scope.
type UnknownTypeError struct {
	Name string
	Span position.Span
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %s", e.Name)
}

// ArityError reports a wrong number of type arguments.
type ArityError struct {
	Name string
	Span position.Span
	Want int
	Got  int
}

func (e *ArityError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("expected %d type arguments, got %d", e.Want, e.Got)
	}
	return fmt.Sprintf("%s expects %d type arguments, got %d", e.Name, e.Want, e.Got)
}

// Resolve converts a type annotation into a canonical Type.
func Resolve(expr ast.TypeExpr, ns Namespace) (Type, error) {
	switch e := expr.(type) {
	case nil:
		return Void, nil

	case *ast.RefType:
		target, err := Resolve(e.Elem, ns)
		if err != nil {
			return nil, err
		}
		return &Reference{Target: target, Mutable: e.Mutable}, nil

	case *ast.NullableType:
		inner, err := Resolve(e.Elem, ns)
		if err != nil {
			return nil, err
		}
		return &Nullable{Inner: inner}, nil

	case *ast.FuncType:
		params, err := resolveList(e.Params, ns)
		if err != nil {
			return nil, err
		}
		res, err := Resolve(e.Result, ns)
		if err != nil {
			return nil, err
		}
		return &Function{Params: params, Result: res}, nil

	case *ast.NamedType:
		return resolveNamed(e, ns)
	}

	return nil, fmt.Errorf("unsupported type annotation %T", expr)
}

func resolveNamed(e *ast.NamedType, ns Namespace) (Type, error) {
	if e.Name == "none" && len(e.Args) == 0 {
		return None, nil
	}

	n, ok := ns.LookupType(e.Name)
	if !ok {
		return nil, &UnknownTypeError{Name: e.Name, Span: e.Span}
	}

	args, err := resolveList(e.Args, ns)
	if err != nil {
		return nil, err
	}

	switch n.Kind {
	case NamedPrimitive, NamedParam, NamedAlias:
		if len(args) != 0 {
			return nil, &ArityError{Name: e.Name, Span: e.Span, Want: 0, Got: len(args)}
		}
		return n.Type, nil

	case NamedTuple:
		if len(args) == 0 || len(args) > MaxTupleElements {
			return nil, &ArityError{Name: e.Name, Span: e.Span, Want: MaxTupleElements, Got: len(args)}
		}
		return Tuple(args...), nil
	}

	s, err := Bind(n.Params, args)
	if err != nil {
		return nil, &ArityError{Name: e.Name, Span: e.Span, Want: len(n.Params), Got: len(args)}
	}
	full := make([]Type, len(n.Params))
	for i, p := range n.Params {
		full[i] = s[p.Name]
	}
	if len(full) == 0 {
		full = nil
	}

	if n.Kind == NamedTrait {
		return &Trait{Name: n.Name, Args: full}, nil
	}
	return &Instance{Name: n.Name, Args: full}, nil
}

func resolveList(exprs []ast.TypeExpr, ns Namespace) ([]Type, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	out := make([]Type, len(exprs))
	for i, e := range exprs {
		t, err := Resolve(e, ns)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// ToExpr renders t back into a type annotation. Resolving the result in a
// namespace holding the same names yields a type Equal to t.
func ToExpr(t Type) ast.TypeExpr {
	switch t := t.(type) {
	case *Primitive:
		return &ast.NamedType{Name: Default(t).String()}
	case *Param:
		return &ast.NamedType{Name: t.Name}
	case *Instance:
		return &ast.NamedType{Name: t.Name, Args: toExprs(t.Args)}
	case *Trait:
		return &ast.NamedType{Name: t.Name, Args: toExprs(t.Args)}
	case *Reference:
		return &ast.RefType{Elem: ToExpr(t.Target), Mutable: t.Mutable}
	case *Nullable:
		return &ast.NullableType{Elem: ToExpr(t.Inner)}
	case *Function:
		var res ast.TypeExpr
		if !IsVoid(t.Result) {
			res = ToExpr(t.Result)
		}
		return &ast.FuncType{Params: toExprs(t.Params), Result: res}
	}
	return &ast.NamedType{Name: t.String()}
}

func toExprs(ts []Type) []ast.TypeExpr {
	if len(ts) == 0 {
		return nil
	}
	out := make([]ast.TypeExpr, len(ts))
	for i, t := range ts {
		out[i] = ToExpr(t)
	}
	return out
}

// SubstExprs converts a substitution into annotation form for cloning
// generic definitions.
func SubstExprs(s Subst) ast.TypeSubst {
	out := make(ast.TypeSubst, len(s))
	for name, t := range s {
		out[name] = ToExpr(t)
	}
	return out
}
