package lowering

import (
	"context"
	"strings"
	"testing"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/checker"
	"github.com/ragazzi-robotics/ragaz/internal/config"
	"github.com/ragazzi-robotics/ragaz/internal/diagnostic"
	"github.com/ragazzi-robotics/ragaz/internal/generics"
	"github.com/ragazzi-robotics/ragaz/internal/mir"
	"github.com/ragazzi-robotics/ragaz/internal/position"
	"github.com/ragazzi-robotics/ragaz/internal/traits"
)

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

func exprStmt(e ast.Expr) *ast.ExprStmt { return &ast.ExprStmt{X: e, Span: e.GetSpan()} }

func varDecl(name string, t ast.TypeExpr, v ast.Expr, line int) *ast.VarDecl {
	return &ast.VarDecl{Name: name, Type: t, Value: v, Span: at(line), NameSpan: at(line)}
}

func ret(v ast.Expr, line int) *ast.Return { return &ast.Return{Value: v, Span: at(line)} }

func funcDef(name string, result ast.TypeExpr, params []*ast.Param, body ...ast.Stmt) *ast.FunctionDef {
	return &ast.FunctionDef{Name: name, Result: result, Params: params, Body: body, Span: at(1)}
}

type fixture struct {
	info   *checker.Info
	module *mir.Module
}

// lower checks the module body and lowers every emitted function.
func lower(t *testing.T, body ...ast.Stmt) *fixture {
	t.Helper()
	opts := config.Default()
	diags := diagnostic.NewEngine()
	engine := generics.NewEngine(opts.MaxInstantiationDepth, nil)
	registry := traits.NewRegistry()
	c := checker.New(opts, checker.NewUniverse(), registry, engine, diags, nil)
	ctx := context.Background()
	c.CheckPrelude(ctx, checker.PreludeModule())
	c.Check(ctx, &ast.Module{Name: "main", Body: body, Span: at(1)})
	if diags.HasErrors() {
		t.Fatalf("Unexpected checker diagnostics: %v", diags.Errors())
	}

	m, err := Lower(NewProgram("main", c.Info(), engine.Emission(), registry.Tables()))
	if err != nil {
		t.Fatalf("Unexpected lowering error: %v", err)
	}
	return &fixture{info: c.Info(), module: m}
}

func (fx *fixture) function(t *testing.T, name string) *mir.Function {
	t.Helper()
	for _, f := range fx.module.Functions {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("Expected function %s in:\n%s", name, fx.module)
	return nil
}

func instrs(f *mir.Function) []mir.Instr {
	var out []mir.Instr
	for _, b := range f.Blocks {
		out = append(out, b.Instr...)
	}
	return out
}

func calls(f *mir.Function) map[string]bool {
	out := make(map[string]bool)
	for _, in := range instrs(f) {
		if c, ok := in.(mir.Call); ok {
			out[c.Callee] = true
		}
	}
	return out
}

func hasBlock(f *mir.Function, prefix string) bool {
	for _, b := range f.Blocks {
		if strings.HasPrefix(b.Name, prefix) {
			return true
		}
	}
	return false
}

func TestMangle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"main.__main__", "main.__main__"},
		{"identity<int>", "identity$int_"},
		{"Pair<int, float>.__init__", "Pair$int$float_.__init__"},
		{"geo.Pair<int, float>.__init__", "geo.Pair$int$float_.__init__"},
		{"peek<&mut str>", "peek$mut_str_"},
		{"apply<def(int) -> str>", "apply$fn$int$to$str_"},
		{"find<int?>", "find$int$opt_"},
	}
	for _, tt := range tests {
		if got := Mangle(tt.in); got != tt.want {
			t.Errorf("Mangle(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func identityDef() *ast.FunctionDef {
	return &ast.FunctionDef{
		Name:       "identity",
		TypeParams: []*ast.TypeParam{{Name: "T"}},
		Params:     []*ast.Param{{Name: "x", Type: named("T")}},
		Result:     named("T"),
		Body:       []ast.Stmt{ret(id("x", 1), 1)},
		Span:       at(1),
	}
}

func TestSpecializationsAreEmittedUnderMangledNames(t *testing.T) {
	use := &ast.TypeApply{X: id("identity", 2), TypeArgs: []ast.TypeExpr{named("int")}, Span: at(2)}
	fx := lower(t, identityDef(), varDecl("x", named("int"), call(use, 2, intLit(5, 2)), 2))

	for _, f := range fx.module.Functions {
		if f.Name == "main.identity" {
			t.Errorf("Expected the generic template not to be emitted")
		}
	}
	spec := fx.function(t, "main.identity$int_")
	if len(spec.Parameters) != 1 || spec.Result != "int" {
		t.Errorf("Expected main.identity$int_(x) int, got %d parameters returning %s", len(spec.Parameters), spec.Result)
	}
	if main := fx.function(t, "main.__main__"); !calls(main)["main.identity$int_"] {
		t.Errorf("Expected main to call main.identity$int_, got:\n%s", main)
	}
}

func calcTrait() *ast.TraitDef {
	return &ast.TraitDef{
		Name: "Calc",
		Methods: []*ast.FunctionDef{{
			Name:   "add",
			Params: []*ast.Param{{Name: "self"}, {Name: "x", Type: named("int")}},
			Result: named("int"),
		}},
		Span: at(1),
	}
}

func calcInt() *ast.ClassDef {
	return &ast.ClassDef{
		Name:  "CalcInt",
		Bases: []ast.TypeExpr{named("Calc")},
		Methods: []*ast.FunctionDef{{
			Name:   "add",
			Params: []*ast.Param{{Name: "self"}, {Name: "x", Type: named("int")}},
			Result: named("int"),
			Body:   []ast.Stmt{ret(id("x", 4), 4)},
			Span:   at(3),
		}},
		Span: at(2),
	}
}

func TestTraitCallsGoThroughTheDispatchTable(t *testing.T) {
	dynamic := call(&ast.Attribute{X: id("c", 6), Name: "add", Span: at(6)}, 6, intLit(1, 6))
	use := funcDef("use", named("int"), []*ast.Param{{Name: "c", Type: named("Calc")}}, ret(dynamic, 6))
	fx := lower(t, calcTrait(), calcInt(), use, exprStmt(call(id("use", 7), 7, call(id("CalcInt", 7), 7))))

	var dyn *mir.CallDynamic
	for _, in := range instrs(fx.function(t, "main.use")) {
		if c, ok := in.(mir.CallDynamic); ok {
			dyn = &c
		}
	}
	if dyn == nil {
		t.Fatalf("Expected a dynamic call in use, got:\n%s", fx.function(t, "main.use"))
	}
	if dyn.Trait != "Calc" || dyn.Slot != 0 {
		t.Errorf("Expected slot 0 of Calc, got %s[%d]", dyn.Trait, dyn.Slot)
	}

	var object *mir.MakeAggregate
	for _, in := range instrs(fx.function(t, "main.__main__")) {
		if a, ok := in.(mir.MakeAggregate); ok && a.Kind == mir.AggTraitObject {
			object = &a
		}
	}
	if object == nil || object.Table != "main.CalcInt.vtable.Calc" {
		t.Fatalf("Expected a trait object built with main.CalcInt.vtable.Calc, got %v", object)
	}

	if len(fx.module.Tables) != 1 {
		t.Fatalf("Expected 1 dispatch table, got %d", len(fx.module.Tables))
	}
	tab := fx.module.Tables[0]
	if tab.Name != "main.CalcInt.vtable.Calc" || len(tab.Entries) != 1 || tab.Entries[0] != "main.CalcInt.add" {
		t.Errorf("Expected main.CalcInt.vtable.Calc with entries [main.CalcInt.add], got %s %v", tab.Name, tab.Entries)
	}
}

func TestTryInstallsLandingPad(t *testing.T) {
	raise := &ast.Raise{Value: call(id("Error", 3), 3, str("boom", 3)), Span: at(3)}
	try := &ast.Try{
		Body: []ast.Stmt{raise},
		Handlers: []*ast.ExceptClause{{
			Type: named("Error"), Name: "e", NameSpan: at(4), Span: at(4),
			Body: []ast.Stmt{ret(intLit(1, 5), 5)},
		}},
		Span: at(2),
	}
	fx := lower(t, funcDef("risky", named("int"), nil, try, ret(intLit(0, 6), 6)))

	errorID := -1
	for _, e := range fx.module.Exceptions {
		if e.Name == "Error" {
			errorID = e.ID
		}
	}
	if errorID <= mir.BaseExceptionID {
		t.Fatalf("Expected Error to have an exception id, got %v", fx.module.Exceptions)
	}

	f := fx.function(t, "main.risky")
	var body *mir.BasicBlock
	for _, b := range f.Blocks {
		if strings.HasPrefix(b.Name, "try_body") {
			body = b
		}
	}
	if body == nil || body.Pad == nil {
		t.Fatalf("Expected a try body covered by a landing pad, got:\n%s", f)
	}
	if len(body.Pad.Clauses) != 1 || body.Pad.Clauses[0].TypeID != errorID ||
		!strings.HasPrefix(body.Pad.Clauses[0].Target, "except") {
		t.Errorf("Expected one clause for id %d leading to the handler, got %v", errorID, body.Pad.Clauses)
	}

	var raised *mir.Raise
	for _, in := range body.Instr {
		if r, ok := in.(mir.Raise); ok {
			raised = &r
		}
	}
	if raised == nil || raised.TypeID != errorID {
		t.Errorf("Expected the body to raise id %d, got %v", errorID, raised)
	}
	for _, b := range f.Blocks {
		if strings.HasPrefix(b.Name, "except") && b.Pad != nil {
			t.Errorf("Expected handler %s outside the landing pad", b.Name)
		}
	}
}

func TestLoopsAndBranches(t *testing.T) {
	loop := &ast.While{
		Cond: &ast.Binary{X: id("x", 2), Op: "<", Y: intLit(10, 2), Span: at(2)},
		Body: []ast.Stmt{
			&ast.Assign{Target: id("x", 3), Op: "+=", Value: intLit(1, 3), Span: at(3)},
			&ast.If{
				Cond: &ast.Binary{X: id("x", 4), Op: "==", Y: intLit(5, 4), Span: at(4)},
				Body: []ast.Stmt{&ast.Break{Span: at(5)}},
				Span: at(4),
			},
		},
		Span: at(2),
	}
	fx := lower(t, &ast.VarDecl{Name: "x", Type: named("int"), Value: intLit(0, 1), Mutable: true, Span: at(1), NameSpan: at(1)}, loop)

	main := fx.function(t, "main.__main__")
	for _, prefix := range []string{"while_header", "while_body", "while_exit", "if_then", "if_cont"} {
		if !hasBlock(main, prefix) {
			t.Errorf("Expected a %s block, got:\n%s", prefix, main)
		}
	}
	var add, less bool
	for _, in := range instrs(main) {
		switch in := in.(type) {
		case mir.BinOp:
			add = add || in.Op == mir.OpAdd
		case mir.Cmp:
			less = less || in.Pred == mir.CmpSLT
		}
	}
	if !add || !less {
		t.Errorf("Expected an add and a signed less-than, got:\n%s", main)
	}
}

func TestForUsesTheIteratorProtocol(t *testing.T) {
	loop := &ast.For{
		Var:     "i",
		VarSpan: at(1),
		Iter:    call(id("range", 1), 1, intLit(3, 1)),
		Body:    []ast.Stmt{exprStmt(call(id("print", 2), 2, id("i", 2)))},
		Span:    at(1),
	}
	fx := lower(t, loop)

	got := calls(fx.function(t, "main.__main__"))
	for _, want := range []string{RuntimeRange, RuntimeIter, RuntimeIterHasNext, RuntimeIterNext, RuntimePrint} {
		if !got[want] {
			t.Errorf("Expected a call to %s, got %v", want, got)
		}
	}
}

func TestExternFunctionsAreDeclarations(t *testing.T) {
	ext := &ast.FunctionDef{
		Name:   "clock",
		Result: named("int"),
		Extern: true,
		Span:   at(1),
	}
	fx := lower(t, ext, varDecl("now", nil, call(id("clock", 2), 2), 2))

	f := fx.function(t, "clock")
	if !f.Extern || len(f.Blocks) != 0 {
		t.Errorf("Expected an extern declaration without blocks, got:\n%s", f)
	}
	if !calls(fx.function(t, "main.__main__"))["clock"] {
		t.Errorf("Expected main to call clock")
	}
}

func TestEscapingValuesLiveOnTheHeap(t *testing.T) {
	kept := varDecl("s", named("str"), str("a", 2), 2)
	local := varDecl("u", named("str"), str("b", 3), 3)
	counter := varDecl("n", named("int"), intLit(1, 4), 4)
	fx := lower(t, funcDef("make", named("str"), nil,
		kept, local, counter,
		exprStmt(call(id("print", 5), 5, id("u", 5), id("n", 5))),
		ret(id("s", 6), 6),
	))
	ann := NewAnnotations(fx.info)

	tests := []struct {
		name string
		decl *ast.VarDecl
		want Storage
	}{
		{"returned", kept, Heap},
		{"borrowed by print", local, Stack},
		{"copy value", counter, Stack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sym := fx.info.Defs[tt.decl]
			if sym == nil {
				t.Fatal("Expected a symbol for the declaration")
			}
			if got := ann.StorageClass(sym); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}

	var heap []string
	for _, in := range instrs(fx.function(t, "main.make")) {
		if a, ok := in.(mir.Alloca); ok && a.Heap {
			heap = append(heap, a.Name)
		}
	}
	if len(heap) != 1 || heap[0] != "s" {
		t.Errorf("Expected only s allocated on the heap, got %v", heap)
	}
}

func TestOwnedValuesAreDroppedWhereTheyDie(t *testing.T) {
	b := varDecl("b", nil, str("Dirty Deeds", 2), 2)
	b.Mutable = true
	foo := funcDef("foo", nil, nil,
		b,
		&ast.If{
			Cond: &ast.BoolLit{Value: true, Span: at(3)},
			Body: []ast.Stmt{
				varDecl("a", nil, str("Done", 4), 4),
				varDecl("c", nil, str("Dirt Cheap", 5), 5),
				&ast.Assign{Target: id("b", 6), Value: id("a", 6), Span: at(6)},
			},
			Span: at(3),
		},
	)
	f := lower(t, foo).function(t, "main.foo")

	slots := make(map[string]string)
	for _, in := range instrs(f) {
		if a, ok := in.(mir.Alloca); ok {
			slots[a.Dst] = a.Name
		}
	}
	loaded := make(map[string]string)
	var events []string
	for _, in := range instrs(f) {
		switch in := in.(type) {
		case mir.Load:
			loaded[in.Dst] = slots[in.Addr.Ref]
		case mir.Store:
			if name := slots[in.Addr.Ref]; name != "" && name != "tmp" {
				events = append(events, "store:"+name)
			}
		case mir.Drop:
			events = append(events, "drop:"+loaded[in.Val.Ref])
		}
	}

	want := "store:b store:a store:c drop:b store:b drop:c drop:b"
	if got := strings.Join(events, " "); got != want {
		t.Errorf("Expected %q, got %q in:\n%s", want, got, f)
	}
}
