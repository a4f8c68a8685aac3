package ownership

import (
	"context"
	"strings"
	"testing"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/checker"
	"github.com/ragazzi-robotics/ragaz/internal/config"
	"github.com/ragazzi-robotics/ragaz/internal/diagnostic"
	"github.com/ragazzi-robotics/ragaz/internal/generics"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
	"github.com/ragazzi-robotics/ragaz/internal/traits"
)

// planFor checks def and returns its drop plan. def must be free of
// ownership errors.
func planFor(t *testing.T, def *ast.FunctionDef) (*Drops, *checker.Function, *checker.Info) {
	t.Helper()
	opts := config.Default()
	diags := diagnostic.NewEngine()
	c := checker.New(opts, checker.NewUniverse(), traits.NewRegistry(), generics.NewEngine(opts.MaxInstantiationDepth, nil), diags, nil)
	ctx := context.Background()
	c.CheckPrelude(ctx, checker.PreludeModule())
	c.Check(ctx, &ast.Module{Name: "own", Body: []ast.Stmt{def}, Span: at(1)})
	if diags.HasErrors() {
		t.Fatalf("Unexpected checker diagnostics: %v", diags.Errors())
	}
	for _, fn := range c.Info().Functions {
		if fn.Def != def {
			continue
		}
		if ds := Check(fn, c.Info(), opts); len(ds) > 0 {
			t.Fatalf("Unexpected ownership diagnostics: %v", ds)
		}
		return Plan(fn, c.Info()), fn, c.Info()
	}
	t.Fatalf("Function %s was not checked", def.Name)
	return nil, nil, nil
}

func nameList(syms []*symbols.Symbol) string {
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = s.Name
	}
	return strings.Join(out, ",")
}

func funcOf(name string, params []*ast.Param, body ...ast.Stmt) *ast.FunctionDef {
	return &ast.FunctionDef{Name: name, Params: params, Body: body, Span: at(1)}
}

func TestDirtyDeeds(t *testing.T) {
	rebind := assign(id("b", 5), id("a", 5), 5)
	inner := ifTrue(2,
		decl("a", nil, str("Done", 3), 3),
		decl("c", nil, str("Dirt Cheap", 4), 4),
		rebind,
	)
	drops, fn, info := planFor(t, funcOf("foo", nil, mutDecl("b", nil, str("Dirty Deeds", 1), 1), inner))

	if !drops.Reassigned[rebind] {
		t.Errorf("Expected the old value of b to be dropped before b = a")
	}
	if got := nameList(drops.Ends[info.Scopes[inner]]); got != "c" {
		t.Errorf("Expected the if scope to drop c only, got %q", got)
	}
	if got := nameList(drops.Ends[fn.Scope]); got != "b" {
		t.Errorf("Expected the function scope to drop b, got %q", got)
	}
}

func TestScopeEndDrops(t *testing.T) {
	tests := []struct {
		name string
		def  *ast.FunctionDef
		want string
	}{
		{"latest declaration first", funcOf("f", nil,
			decl("a", nil, str("x", 1), 1),
			decl("b", nil, str("y", 2), 2),
		), "b,a"},
		{"moved value", funcOf("f", nil,
			decl("a", nil, str("x", 1), 1),
			decl("b", nil, id("a", 2), 2),
		), "b"},
		{"moved on one path", funcOf("f", nil,
			decl("a", nil, str("x", 1), 1),
			ifTrue(2, decl("b", nil, id("a", 3), 3)),
		), ""},
		{"deleted value", funcOf("f", nil,
			decl("a", nil, str("x", 1), 1),
			&ast.Del{Target: id("a", 2), Span: at(2)},
		), ""},
		{"copy values", funcOf("f", nil,
			decl("n", nil, &ast.IntLit{Value: 1, Span: at(1)}, 1),
			decl("r", nil, ref(id("n", 2), false, 2), 2),
		), ""},
		{"borrowed parameter", funcOf("f", []*ast.Param{{Name: "s", Type: typ("str"), Span: at(1)}},
			printOf(id("s", 2), 2),
		), "s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drops, fn, _ := planFor(t, tt.def)
			if got := nameList(drops.Ends[fn.Scope]); got != tt.want {
				t.Errorf("Expected %q dropped at the end, got %q", tt.want, got)
			}
		})
	}
}

func TestJumpsDropWhatTheyLeave(t *testing.T) {
	ret := &ast.Return{Value: id("s", 3), Span: at(3)}
	keep := funcOf("keep", nil, decl("s", nil, str("x", 1), 1), decl("u", nil, str("y", 2), 2), ret)
	keep.Result = typ("str")

	brk := &ast.Break{Span: at(4)}
	loop := &ast.While{
		Cond: &ast.BoolLit{Value: true, Span: at(2)},
		Body: []ast.Stmt{decl("inner", nil, str("y", 3), 3), brk},
		Span: at(2),
	}
	spin := funcOf("spin", nil, decl("outer", nil, str("x", 1), 1), loop)

	tests := []struct {
		name string
		def  *ast.FunctionDef
		jump ast.Stmt
		want string
	}{
		{"return keeps the returned value", keep, ret, "u"},
		{"break leaves the loop body only", spin, brk, "inner"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drops, _, _ := planFor(t, tt.def)
			if got := nameList(drops.Jumps[tt.jump]); got != tt.want {
				t.Errorf("Expected %q dropped by the jump, got %q", tt.want, got)
			}
		})
	}
}

func TestShadowingReleasesThePreviousBinding(t *testing.T) {
	first := decl("s", nil, str("one", 1), 1)
	second := decl("s", nil, str("two", 2), 2)
	drops, fn, info := planFor(t, funcOf("twice", nil, first, second))

	if drops.Shadowed[second] != info.Defs[first] {
		t.Errorf("Expected the second declaration to release the first s, got %v", drops.Shadowed[second])
	}
	ends := drops.Ends[fn.Scope]
	if len(ends) != 1 || ends[0] != info.Defs[second] {
		t.Errorf("Expected only the second s dropped at the end, got %q", nameList(ends))
	}
}
