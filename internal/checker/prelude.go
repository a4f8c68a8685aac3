package checker

import (
	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/position"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// ExceptionTrait is the trait every exception class implements.
const ExceptionTrait = "Exception"

// Builtin functions handled by the checker itself.
const (
	BuiltinPrint = "print"
	BuiltinLen   = "len"
	BuiltinRange = "range"
)

// NewUniverse creates the root scope with primitives, tuple and the
// builtin functions. Prelude classes are declared into it by
// CheckPrelude.
func NewUniverse() *symbols.Scope {
	u := symbols.NewUniverse()
	for _, p := range types.Primitives {
		u.DeclareType(symbols.SymbolPrimitive, &types.Named{Name: p.Name, Kind: types.NamedPrimitive, Type: p}, nil, position.Span{})
	}
	u.DeclareType(symbols.SymbolPrimitive, &types.Named{Name: "tuple", Kind: types.NamedTuple}, nil, position.Span{})
	for _, name := range []string{BuiltinPrint, BuiltinLen, BuiltinRange} {
		u.Declare(&symbols.Symbol{Name: name, Kind: symbols.SymbolBuiltin})
	}
	return u
}

func tname(name string, args ...ast.TypeExpr) *ast.NamedType {
	return &ast.NamedType{Name: name, Args: args}
}

func tparams(names ...string) []*ast.TypeParam {
	out := make([]*ast.TypeParam, len(names))
	for i, n := range names {
		out[i] = &ast.TypeParam{Name: n}
	}
	return out
}

func builtinMethod(name string, mutSelf bool, result ast.TypeExpr, params ...*ast.Param) *ast.FunctionDef {
	ps := append([]*ast.Param{{Name: "self", Mutable: mutSelf}}, params...)
	return &ast.FunctionDef{Name: name, Params: ps, Result: result, Extern: true}
}

func param(name string, t ast.TypeExpr) *ast.Param {
	return &ast.Param{Name: name, Type: t}
}

// PreludeModule returns the builtin declarations: container classes whose
// methods are implemented by the runtime, the Exception trait and the
// Error base exception.
func PreludeModule() *ast.Module {
	T, K, V := tname("T"), tname("K"), tname("V")
	refT := &ast.RefType{Elem: T}
	refK := &ast.RefType{Elem: K}

	list := &ast.ClassDef{
		Name:       "list",
		TypeParams: tparams("T"),
		Methods: []*ast.FunctionDef{
			builtinMethod("append", true, nil, param("item", T)),
			builtinMethod("insert", true, nil, param("index", tname("int")), param("item", T)),
			builtinMethod("pop", true, T),
			builtinMethod("clear", true, nil),
			builtinMethod("contains", false, tname("bool"), param("item", refT)),
		},
	}
	dict := &ast.ClassDef{
		Name:       "dict",
		TypeParams: tparams("K", "V"),
		Methods: []*ast.FunctionDef{
			builtinMethod("get", false, &ast.NullableType{Elem: &ast.RefType{Elem: V}}, param("key", refK)),
			builtinMethod("contains", false, tname("bool"), param("key", refK)),
			builtinMethod("keys", false, tname("list", K)),
			builtinMethod("remove", true, nil, param("key", refK)),
		},
	}
	set := &ast.ClassDef{
		Name:       "set",
		TypeParams: tparams("T"),
		Methods: []*ast.FunctionDef{
			builtinMethod("add", true, nil, param("item", T)),
			builtinMethod("contains", false, tname("bool"), param("item", refT)),
		},
	}
	array := &ast.ClassDef{
		Name:       "array",
		TypeParams: tparams("T"),
		Methods: []*ast.FunctionDef{
			builtinMethod("__init__", true, nil, param("size", tname("int"))),
		},
	}
	rng := &ast.ClassDef{Name: "range"}

	exception := &ast.TraitDef{Name: ExceptionTrait}
	errorClass := &ast.ClassDef{
		Name:   "Error",
		Bases:  []ast.TypeExpr{tname(ExceptionTrait)},
		Fields: []*ast.Field{{Name: "message", Type: tname("str")}},
		Methods: []*ast.FunctionDef{{
			Name:   "__init__",
			Params: []*ast.Param{{Name: "self"}, param("message", tname("str"))},
			Body: []ast.Stmt{&ast.Assign{
				Target: &ast.Attribute{X: &ast.Name{ID: "self"}, Name: "message"},
				Value:  &ast.Name{ID: "message"},
			}},
		}},
	}

	return &ast.Module{
		Name: "builtins",
		Body: []ast.Stmt{list, dict, set, array, rng, exception, errorClass},
	}
}
