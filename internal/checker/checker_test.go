package checker

import (
	"context"
	"testing"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/config"
	"github.com/ragazzi-robotics/ragaz/internal/diagnostic"
	"github.com/ragazzi-robotics/ragaz/internal/generics"
	"github.com/ragazzi-robotics/ragaz/internal/position"
	"github.com/ragazzi-robotics/ragaz/internal/traits"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

type fixture struct {
	checker *Checker
	engine  *generics.Engine
	diags   *diagnostic.Engine
}

func run(t *testing.T, opts config.Options, body ...ast.Stmt) *fixture {
	t.Helper()
	fx := &fixture{
		engine: generics.NewEngine(opts.MaxInstantiationDepth, nil),
		diags:  diagnostic.NewEngine(),
	}
	fx.checker = New(opts, NewUniverse(), traits.NewRegistry(), fx.engine, fx.diags, nil)
	ctx := context.Background()
	fx.checker.CheckPrelude(ctx, PreludeModule())
	if fx.diags.HasErrors() {
		t.Fatalf("Unexpected prelude diagnostics: %v", fx.diags.Diagnostics())
	}
	fx.checker.Check(ctx, &ast.Module{Name: "main", Body: body})
	return fx
}

func at(line int) position.Span { return position.At("main.ry", line, 1) }

func named(name string, args ...ast.TypeExpr) *ast.NamedType {
	return &ast.NamedType{Name: name, Args: args}
}

func id(name string, line int) *ast.Name { return &ast.Name{ID: name, Span: at(line)} }

func intLit(v int64, line int) *ast.IntLit { return &ast.IntLit{Value: v, Span: at(line)} }

func str(v string, line int) *ast.StrLit { return &ast.StrLit{Value: v, Span: at(line)} }

func call(fn ast.Expr, line int, args ...ast.Expr) *ast.Call {
	return &ast.Call{Func: fn, Args: args, Span: at(line)}
}

func apply(name string, line int, args ...ast.TypeExpr) *ast.TypeApply {
	return &ast.TypeApply{X: id(name, line), TypeArgs: args, Span: at(line)}
}

func method(x ast.Expr, name string, line int) *ast.Attribute {
	return &ast.Attribute{X: x, Name: name, Span: at(line)}
}

func exprStmt(e ast.Expr) *ast.ExprStmt { return &ast.ExprStmt{X: e, Span: e.GetSpan()} }

func varDecl(name string, t ast.TypeExpr, v ast.Expr, line int) *ast.VarDecl {
	return &ast.VarDecl{Name: name, Type: t, Value: v, Span: at(line), NameSpan: at(line)}
}

func self() *ast.Param { return &ast.Param{Name: "self"} }

func identityDef() *ast.FunctionDef {
	return &ast.FunctionDef{
		Name:       "identity",
		TypeParams: []*ast.TypeParam{{Name: "T"}},
		Params:     []*ast.Param{{Name: "x", Type: named("T")}},
		Result:     named("T"),
		Body:       []ast.Stmt{&ast.Return{Value: id("x", 1), Span: at(1)}},
		Span:       at(1),
	}
}

func specNames(e *generics.Engine, kind generics.TemplateKind) []string {
	var names []string
	for _, s := range e.Emission() {
		if s.Template.Kind == kind {
			names = append(names, s.Name)
		}
	}
	return names
}

func TestPreludeDeclaresContainers(t *testing.T) {
	fx := run(t, config.Default())
	names := map[string]bool{}
	for _, tmpl := range fx.engine.Templates() {
		if tmpl.Kind == generics.TemplateClass {
			names[tmpl.Name] = true
		}
	}
	for _, want := range []string{"list", "dict", "set", "array"} {
		if !names[want] {
			t.Errorf("Expected prelude class template %s", want)
		}
	}
	if n := len(fx.engine.Emission()); n != 0 {
		t.Errorf("Expected no specializations before use, got %d", n)
	}
}

func TestGenericFunctionSpecializedPerArgumentTuple(t *testing.T) {
	fx := run(t, config.Default(),
		identityDef(),
		exprStmt(call(apply("identity", 2, named("int")), 2, intLit(5, 2))),
		exprStmt(call(apply("identity", 3, named("str")), 3, str("a", 3))),
		exprStmt(call(id("identity", 4), 4, str("b", 4))),
		exprStmt(call(apply("identity", 5, named("int")), 5, intLit(7, 5))),
	)
	if fx.diags.HasErrors() {
		t.Fatalf("Unexpected diagnostics: %v", fx.diags.Diagnostics())
	}
	got := specNames(fx.engine, generics.TemplateFunction)
	if len(got) != 2 || got[0] != "identity<int>" || got[1] != "identity<str>" {
		t.Errorf("Expected [identity<int> identity<str>], got %v", got)
	}
}

func TestNestedInstantiationMismatchReportedAtOuterCall(t *testing.T) {
	inner := call(apply("identity", 2, named("str")), 2, str("a", 2))
	outer := &ast.Call{Func: apply("identity", 1, named("int")), Args: []ast.Expr{inner}, Span: at(1)}
	fx := run(t, config.Default(), identityDef(), exprStmt(outer))

	errs := fx.diags.Errors()
	if len(errs) != 1 {
		t.Fatalf("Expected 1 error, got %v", errs)
	}
	if errs[0].Kind != diagnostic.TypeMismatchError {
		t.Errorf("Expected TypeMismatchError, got %s", errs[0].Kind)
	}
	if errs[0].Span != outer.Span {
		t.Errorf("Expected error at %s, got %s", outer.Span, errs[0].Span)
	}
	if got := specNames(fx.engine, generics.TemplateFunction); len(got) != 2 {
		t.Errorf("Expected both specializations, got %v", got)
	}
}

func TestRunawayInstantiationReportedOnce(t *testing.T) {
	grow := &ast.FunctionDef{
		Name:       "grow",
		TypeParams: []*ast.TypeParam{{Name: "T"}},
		Params:     []*ast.Param{{Name: "x", Type: named("T")}},
		Body: []ast.Stmt{exprStmt(call(id("grow", 2), 2,
			&ast.ListLit{Elts: []ast.Expr{id("x", 2)}, Span: at(2)}))},
		Span: at(1),
	}
	start := call(id("grow", 4), 4, intLit(1, 4))
	opts := config.Default()
	opts.MaxInstantiationDepth = 8
	fx := run(t, opts, grow, exprStmt(start))

	errs := fx.diags.Errors()
	if len(errs) != 1 || errs[0].Kind != diagnostic.InstantiationDepthExceededError {
		t.Fatalf("Expected 1 InstantiationDepthExceededError, got %v", errs)
	}
	if errs[0].Span != start.Span {
		t.Errorf("Expected the error at the outermost call %s, got %s", start.Span, errs[0].Span)
	}
}

func pairDef() *ast.ClassDef {
	assign := func(field string, line int) ast.Stmt {
		return &ast.Assign{Target: method(id("self", line), field, line), Value: id(field, line), Span: at(line)}
	}
	return &ast.ClassDef{
		Name:       "Pair",
		TypeParams: []*ast.TypeParam{{Name: "A"}, {Name: "B"}},
		Fields: []*ast.Field{
			{Name: "first", Type: named("A")},
			{Name: "second", Type: named("B")},
		},
		Methods: []*ast.FunctionDef{{
			Name:   "__init__",
			Params: []*ast.Param{{Name: "self"}, {Name: "first", Type: named("A")}, {Name: "second", Type: named("B")}},
			Body:   []ast.Stmt{assign("first", 11), assign("second", 12)},
			Span:   at(10),
		}},
		Span: at(9),
	}
}

func TestGenericClassConstructorSpecializesOnce(t *testing.T) {
	construct := func(line int) ast.Stmt {
		return exprStmt(call(apply("Pair", line, named("int"), named("float")), line,
			intLit(1, line), &ast.FloatLit{Value: 2.0, Span: at(line)}))
	}
	fx := run(t, config.Default(), pairDef(), construct(1), construct(2))
	if fx.diags.HasErrors() {
		t.Fatalf("Unexpected diagnostics: %v", fx.diags.Diagnostics())
	}

	classes := specNames(fx.engine, generics.TemplateClass)
	if len(classes) != 1 || classes[0] != "Pair<int, float>" {
		t.Errorf("Expected [Pair<int, float>], got %v", classes)
	}
	methods := specNames(fx.engine, generics.TemplateMethod)
	if len(methods) != 1 {
		t.Errorf("Expected exactly one method specialization, got %v", methods)
	}
}

func TestGenericMethodSpecializesOncePerClassArguments(t *testing.T) {
	pair := pairDef()
	pair.Methods = append(pair.Methods, &ast.FunctionDef{
		Name:   "get_first",
		Params: []*ast.Param{self()},
		Result: named("A"),
		Body:   []ast.Stmt{&ast.Return{Value: method(id("self", 14), "first", 14), Span: at(14)}},
		Span:   at(13),
	})
	construct := func(name string, line int) ast.Stmt {
		return varDecl(name, nil, call(apply("Pair", line, named("int"), named("float")), line,
			intLit(1, line), &ast.FloatLit{Value: 2.0, Span: at(line)}), line)
	}
	first := func(name string, line int) ast.Stmt {
		return exprStmt(call(id("print", line), line, call(method(id(name, line), "get_first", line), line)))
	}
	fx := run(t, config.Default(), pair, construct("p", 1), construct("q", 2), first("p", 3), first("q", 4))
	if fx.diags.HasErrors() {
		t.Fatalf("Unexpected diagnostics: %v", fx.diags.Diagnostics())
	}

	got := 0
	for _, name := range specNames(fx.engine, generics.TemplateMethod) {
		if name == "Pair<int, float>.get_first" {
			got++
		}
	}
	if got != 1 {
		t.Errorf("Expected one Pair<int, float>.get_first, got %v", specNames(fx.engine, generics.TemplateMethod))
	}
}

func calcTrait() *ast.TraitDef {
	return &ast.TraitDef{
		Name: "Calc",
		Methods: []*ast.FunctionDef{{
			Name:   "add",
			Params: []*ast.Param{self(), {Name: "x", Type: named("int")}},
			Result: named("int"),
		}},
		Span: at(1),
	}
}

func calcInt(bases ...ast.TypeExpr) *ast.ClassDef {
	return &ast.ClassDef{
		Name:  "CalcInt",
		Bases: bases,
		Methods: []*ast.FunctionDef{{
			Name:   "add",
			Params: []*ast.Param{self(), {Name: "x", Type: named("int")}},
			Result: named("int"),
			Body:   []ast.Stmt{&ast.Return{Value: id("x", 4), Span: at(4)}},
			Span:   at(3),
		}},
		Span: at(2),
	}
}

func TestCallResolution(t *testing.T) {
	dynamic := call(method(id("c", 6), "add", 6), 6, intLit(1, 6))
	use := &ast.FunctionDef{
		Name:   "use",
		Params: []*ast.Param{{Name: "c", Type: named("Calc")}},
		Result: named("int"),
		Body:   []ast.Stmt{&ast.Return{Value: dynamic, Span: at(6)}},
		Span:   at(5),
	}
	static := call(method(id("ci", 8), "add", 8), 8, intLit(2, 8))
	bound := call(id("CalcInt", 9), 9)

	fx := run(t, config.Default(),
		calcTrait(), calcInt(named("Calc")), use,
		varDecl("ci", nil, call(id("CalcInt", 7), 7), 7),
		exprStmt(static),
		exprStmt(call(id("use", 9), 9, bound)),
	)
	if fx.diags.HasErrors() {
		t.Fatalf("Unexpected diagnostics: %v", fx.diags.Diagnostics())
	}
	info := fx.checker.Info()

	tests := []struct {
		name string
		call *ast.Call
		kind traits.TargetKind
	}{
		{"trait receiver", dynamic, traits.TargetDynamic},
		{"concrete receiver", static, traits.TargetStatic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, ok := info.Targets[tt.call]
			if !ok {
				t.Fatal("Expected a resolved target")
			}
			if target.Kind != tt.kind {
				t.Errorf("Expected %s target, got %s", tt.kind, target.Kind)
			}
		})
	}

	if target := info.Targets[dynamic]; target.Slot != 0 || target.Trait == nil || target.Trait.Name != "Calc" {
		t.Errorf("Expected slot 0 of Calc, got %s", target)
	}
	if fn := info.Callees[static]; fn == nil || fn.Name != "CalcInt.add" {
		t.Errorf("Expected callee CalcInt.add, got %v", fn)
	}
	if conv := info.Convs[static.Func.(*ast.Attribute).X]; conv != types.ConvBorrow {
		t.Errorf("Expected the receiver to be borrowed, got %s", conv)
	}
	table, ok := info.Tables[bound]
	if !ok {
		t.Fatal("Expected a dispatch table for the trait-typed argument")
	}
	if len(table.Entries) != 1 || table.Entries[0].Symbol != "CalcInt.add" {
		t.Errorf("Expected table [CalcInt.add], got %v", table.Entries)
	}
}

func TestGenericTraitDispatch(t *testing.T) {
	calc := &ast.TraitDef{
		Name:       "Calc",
		TypeParams: []*ast.TypeParam{{Name: "T"}},
		Methods: []*ast.FunctionDef{{
			Name:   "add",
			Params: []*ast.Param{self(), {Name: "x", Type: named("T")}},
			Result: named("T"),
		}},
		Span: at(1),
	}
	bound := call(id("CalcInt", 5), 5)
	dynamic := call(method(id("c", 6), "add", 6), 6, intLit(1, 6))
	static := call(method(id("d", 8), "add", 8), 8, intLit(2, 8))

	fx := run(t, config.Default(),
		calc, calcInt(named("Calc", named("int"))),
		varDecl("c", named("Calc", named("int")), bound, 5),
		exprStmt(dynamic),
		varDecl("d", named("CalcInt"), call(id("CalcInt", 7), 7), 7),
		exprStmt(static),
	)
	if fx.diags.HasErrors() {
		t.Fatalf("Unexpected diagnostics: %v", fx.diags.Diagnostics())
	}
	info := fx.checker.Info()

	target := info.Targets[dynamic]
	if target.Kind != traits.TargetDynamic {
		t.Fatalf("Expected a dynamic target for c.add, got %s", target.Kind)
	}
	if target.Trait == nil || target.Trait.String() != "Calc<int>" {
		t.Errorf("Expected dispatch through Calc<int>, got %v", target.Trait)
	}
	if target.Sig == nil || target.Sig.Result.String() != "int" {
		t.Errorf("Expected add to return int through Calc<int>, got %v", target.Sig)
	}
	table, ok := info.Tables[bound]
	if !ok {
		t.Fatal("Expected a dispatch table for the Calc<int> binding")
	}
	if len(table.Entries) != 1 || table.Entries[0].Symbol != "CalcInt.add" {
		t.Errorf("Expected table [CalcInt.add], got %v", table.Entries)
	}

	if got := info.Targets[static].Kind; got != traits.TargetStatic {
		t.Errorf("Expected a static target for d.add, got %s", got)
	}
	if fn := info.Callees[static]; fn == nil || fn.Name != "CalcInt.add" {
		t.Errorf("Expected callee CalcInt.add, got %v", fn)
	}
}

func TestNumericConversionStrictness(t *testing.T) {
	tests := []struct {
		name     string
		autoCast bool
		errors   int
	}{
		{"auto cast", true, 0},
		{"strict", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := config.Default()
			opts.AutoCast = tt.autoCast
			fx := run(t, opts,
				varDecl("i", named("int"), intLit(1, 1), 1),
				varDecl("f", named("float"), id("i", 2), 2),
				varDecl("g", named("float"), intLit(3, 3), 3),
			)
			if got := fx.diags.Count(diagnostic.StrictTypeError); got != tt.errors {
				t.Errorf("Expected %d strict errors, got %d: %v", tt.errors, got, fx.diags.Diagnostics())
			}
			if got := len(fx.diags.Errors()); got != tt.errors {
				t.Errorf("Expected %d errors in total, got %d", tt.errors, got)
			}
		})
	}
}

func TestDeclarationErrors(t *testing.T) {
	tests := []struct {
		name string
		body []ast.Stmt
		kind diagnostic.Kind
	}{
		{
			name: "duplicate impl",
			body: []ast.Stmt{calcTrait(), calcInt(named("Calc"), named("Calc"))},
			kind: diagnostic.DuplicateImplError,
		},
		{
			name: "unknown type",
			body: []ast.Stmt{varDecl("x", named("Foo"), intLit(1, 1), 1)},
			kind: diagnostic.UnknownTypeError,
		},
		{
			name: "raise at top level",
			body: []ast.Stmt{&ast.Raise{Value: call(id("Error", 1), 1, str("boom", 1)), Span: at(1)}},
			kind: diagnostic.InvalidRaiseError,
		},
		{
			name: "bare raise outside except",
			body: []ast.Stmt{&ast.FunctionDef{Name: "f", Body: []ast.Stmt{&ast.Raise{Span: at(2)}}, Span: at(1)}},
			kind: diagnostic.InvalidRaiseError,
		},
		{
			name: "raise a non exception",
			body: []ast.Stmt{&ast.FunctionDef{Name: "f", Body: []ast.Stmt{&ast.Raise{Value: intLit(1, 2), Span: at(2)}}, Span: at(1)}},
			kind: diagnostic.InvalidExceptTypeError,
		},
		{
			name: "missing trait method",
			body: []ast.Stmt{calcTrait(), &ast.ClassDef{Name: "Empty", Bases: []ast.TypeExpr{named("Calc")}, Span: at(2)}},
			kind: diagnostic.NoImplementationError,
		},
		{
			name: "duplicate type parameter",
			body: []ast.Stmt{&ast.FunctionDef{
				Name:       "twice",
				TypeParams: []*ast.TypeParam{{Name: "T"}, {Name: "T"}},
				Params:     []*ast.Param{{Name: "x", Type: named("T")}},
				Span:       at(1),
			}},
			kind: diagnostic.DuplicateTypeParamError,
		},
		{
			name: "empty list without annotation",
			body: []ast.Stmt{varDecl("xs", nil, &ast.ListLit{Span: at(1)}, 1)},
			kind: diagnostic.AmbiguousInferenceError,
		},
		{
			name: "wrong type argument count",
			body: []ast.Stmt{varDecl("xs", named("list", named("int"), named("int")), nil, 1)},
			kind: diagnostic.ArityError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := run(t, config.Default(), tt.body...)
			if got := fx.diags.Count(tt.kind); got != 1 {
				t.Errorf("Expected 1 %s, got %d: %v", tt.kind, got, fx.diags.Diagnostics())
			}
		})
	}
}

func TestJumpsNeedAnEnclosingLoop(t *testing.T) {
	whileTrue := func(body ...ast.Stmt) ast.Stmt {
		return &ast.While{Cond: &ast.BoolLit{Value: true, Span: at(1)}, Body: body, Span: at(1)}
	}
	brk := func(line int) ast.Stmt { return &ast.Break{Span: at(line)} }
	tests := []struct {
		name   string
		body   []ast.Stmt
		errors int
	}{
		{"break at top level", []ast.Stmt{brk(1)}, 1},
		{"continue in a function", []ast.Stmt{&ast.FunctionDef{Name: "f",
			Body: []ast.Stmt{&ast.Continue{Span: at(2)}}, Span: at(1)}}, 1},
		{"break after the loop", []ast.Stmt{whileTrue(brk(2)), brk(3)}, 1},
		{"break in a while", []ast.Stmt{whileTrue(brk(2))}, 0},
		{"continue in a for", []ast.Stmt{&ast.For{Var: "i", VarSpan: at(1), Iter: call(id("range", 1), 1, intLit(3, 1)),
			Body: []ast.Stmt{&ast.Continue{Span: at(2)}}, Span: at(1)}}, 0},
		{"break in a handler inside a loop", []ast.Stmt{whileTrue(&ast.Try{
			Body:     []ast.Stmt{&ast.Pass{Span: at(2)}},
			Handlers: []*ast.ExceptClause{{Body: []ast.Stmt{brk(4)}, Span: at(3)}},
			Span:     at(2),
		})}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := run(t, config.Default(), tt.body...)
			if got := fx.diags.Count(diagnostic.InvalidJumpError); got != tt.errors {
				t.Errorf("Expected %d InvalidJumpError, got %d: %v", tt.errors, got, fx.diags.Diagnostics())
			}
			if got := len(fx.diags.Errors()); got != tt.errors {
				t.Errorf("Expected %d errors in total, got %d: %v", tt.errors, got, fx.diags.Errors())
			}
		})
	}
}

func TestNullableNarrowing(t *testing.T) {
	narrowed := id("x", 3)
	guarded := &ast.FunctionDef{
		Name:   "guarded",
		Params: []*ast.Param{{Name: "x", Type: &ast.NullableType{Elem: named("int")}}},
		Result: named("int"),
		Body: []ast.Stmt{
			&ast.If{
				Cond: &ast.Binary{X: id("x", 2), Op: "is not", Y: &ast.NoneLit{Span: at(2)}, Span: at(2)},
				Body: []ast.Stmt{&ast.Return{Value: narrowed, Span: at(3)}},
				Span: at(2),
			},
			&ast.Return{Value: intLit(0, 4), Span: at(4)},
		},
		Span: at(1),
	}
	unguarded := &ast.FunctionDef{
		Name:   "unguarded",
		Params: []*ast.Param{{Name: "x", Type: &ast.NullableType{Elem: named("int")}}},
		Result: named("int"),
		Body:   []ast.Stmt{&ast.Return{Value: id("x", 6), Span: at(6)}},
		Span:   at(5),
	}

	fx := run(t, config.Default(), guarded, unguarded)
	if got, ok := fx.checker.Info().Narrowed[narrowed]; !ok || !types.Equal(got, types.Int) {
		t.Errorf("Expected x narrowed to int, got %v", got)
	}
	errs := fx.diags.Errors()
	if len(errs) != 1 || errs[0].Kind != diagnostic.TypeMismatchError || errs[0].Span != at(6) {
		t.Errorf("Expected one mismatch at %s, got %v", at(6), errs)
	}
}

func TestPrintArguments(t *testing.T) {
	opaque := &ast.ClassDef{Name: "Opaque", Span: at(1)}
	tests := []struct {
		name string
		call *ast.Call
		kind diagnostic.Kind
		want int
	}{
		{"primitives", call(id("print", 2), 2, intLit(1, 2), str("a", 2)), diagnostic.TypeMismatchError, 0},
		{"class without __str__", call(id("print", 2), 2, call(id("Opaque", 2), 2)), diagnostic.TypeMismatchError, 1},
		{"file keyword", &ast.Call{Func: id("print", 2), Args: []ast.Expr{str("a", 2)},
			Keywords: []*ast.Keyword{{Name: "file", Value: intLit(2, 2), Span: at(2)}}, Span: at(2)}, diagnostic.ArgumentError, 0},
		{"unknown keyword", &ast.Call{Func: id("print", 2), Args: []ast.Expr{str("a", 2)},
			Keywords: []*ast.Keyword{{Name: "end", Value: str("", 2), Span: at(2)}}, Span: at(2)}, diagnostic.ArgumentError, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := run(t, config.Default(), opaque, exprStmt(tt.call))
			if got := fx.diags.Count(tt.kind); got != tt.want {
				t.Errorf("Expected %d %s, got %d: %v", tt.want, tt.kind, got, fx.diags.Diagnostics())
			}
			if fx.checker.Info().Builtins[tt.call] != BuiltinPrint {
				t.Errorf("Expected the call to resolve to the print builtin")
			}
		})
	}
}

func TestUnusedVariableWarning(t *testing.T) {
	body := []ast.Stmt{&ast.FunctionDef{
		Name: "f",
		Body: []ast.Stmt{
			varDecl("a", named("int"), intLit(1, 2), 2),
			varDecl("_b", named("int"), intLit(2, 3), 3),
			varDecl("c", named("int"), intLit(3, 4), 4),
			exprStmt(call(id("print", 5), 5, id("c", 5))),
		},
		Span: at(1),
	}}

	tests := []struct {
		name string
		warn bool
		want int
	}{
		{"enabled", true, 1},
		{"disabled", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := config.Default()
			opts.WarnUnused = tt.warn
			fx := run(t, opts, body...)
			if got := fx.diags.Count(diagnostic.UnusedVariableWarning); got != tt.want {
				t.Errorf("Expected %d warnings, got %d", tt.want, got)
			}
			if fx.diags.HasErrors() {
				t.Errorf("Expected no errors, got %v", fx.diags.Errors())
			}
		})
	}
}

func TestLiteralDefaults(t *testing.T) {
	lit := intLit(4, 1)
	flt := &ast.FloatLit{Value: 1.5, Span: at(2)}
	fx := run(t, config.Default(),
		varDecl("n", nil, lit, 1),
		varDecl("x", nil, flt, 2),
		exprStmt(call(id("print", 3), 3, id("n", 3), id("x", 3))),
	)
	info := fx.checker.Info()
	if got := info.TypeOf(lit); !types.Equal(got, types.Int) {
		t.Errorf("Expected int literal to default to int, got %v", got)
	}
	if got := info.TypeOf(flt); !types.Equal(got, types.Float) {
		t.Errorf("Expected float literal to default to float, got %v", got)
	}
}
