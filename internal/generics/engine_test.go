package generics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

func identityDef() *ast.FunctionDef {
	return &ast.FunctionDef{
		Name:       "identity",
		TypeParams: []*ast.TypeParam{{Name: "T"}},
		Params:     []*ast.Param{{Name: "x", Type: &ast.NamedType{Name: "T"}}},
		Result:     &ast.NamedType{Name: "T"},
		Body:       []ast.Stmt{&ast.Return{Value: &ast.Name{ID: "x"}}},
	}
}

func newIdentity(t *testing.T, e *Engine) *Template {
	t.Helper()
	tmpl, err := e.Define(TemplateFunction, "identity", []types.TypeParam{{Name: "T"}}, identityDef(), nil)
	if err != nil {
		t.Fatalf("Define: %v", err)
	}
	return tmpl
}

func TestInstantiateCachesByKey(t *testing.T) {
	e := NewEngine(8, nil)
	var expansions int32
	e.SetExpander(ExpanderFunc(func(ctx context.Context, spec *Specialization) error {
		atomic.AddInt32(&expansions, 1)
		return nil
	}))
	tmpl := newIdentity(t, e)
	ctx := context.Background()

	a, err := e.Instantiate(ctx, tmpl, []types.Type{types.Int})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	b, _ := e.Instantiate(ctx, tmpl, []types.Type{types.Int})
	c, _ := e.Instantiate(ctx, tmpl, []types.Type{types.Str})

	if a != b {
		t.Error("Expected identical specialization for identical arguments")
	}
	if a == c {
		t.Error("Expected distinct specializations for distinct arguments")
	}
	if a.Name != "identity<int>" || c.Name != "identity<str>" {
		t.Errorf("Expected identity<int> and identity<str>, got %s and %s", a.Name, c.Name)
	}
	if expansions != 2 {
		t.Errorf("Expected 2 expansions, got %d", expansions)
	}

	emitted := e.Emission()
	if len(emitted) != 2 || emitted[0] != a || emitted[1] != c {
		t.Errorf("Expected emission [identity<int> identity<str>], got %v", emitted)
	}
}

func TestInstantiateSubstitutesClone(t *testing.T) {
	e := NewEngine(8, nil)
	tmpl := newIdentity(t, e)

	spec, err := e.Instantiate(context.Background(), tmpl, []types.Type{&types.Instance{Name: "list", Args: []types.Type{types.Str}}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if spec.Func == tmpl.Func {
		t.Fatal("Expected a cloned definition")
	}
	if got := spec.Func.Params[0].Type.String(); got != "list<str>" {
		t.Errorf("Expected parameter type list<str>, got %s", got)
	}
	if spec.Func.TypeParams != nil {
		t.Error("Expected specialized definition to have no type parameters")
	}
	if tmpl.Func.Params[0].Type.String() != "T" {
		t.Error("Expected template to remain generic")
	}
}

func TestInstantiateConcurrentRequests(t *testing.T) {
	e := NewEngine(8, nil)
	var expansions int32
	release := make(chan struct{})
	e.SetExpander(ExpanderFunc(func(ctx context.Context, spec *Specialization) error {
		atomic.AddInt32(&expansions, 1)
		<-release
		return nil
	}))
	tmpl := newIdentity(t, e)

	const n = 8
	results := make([]*Specialization, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = e.Instantiate(context.Background(), tmpl, []types.Type{types.F32})
		}(i)
	}
	close(release)
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("Expected every request to observe one specialization")
		}
	}
	if expansions != 1 {
		t.Errorf("Expected one expansion, got %d", expansions)
	}
	if len(e.Emission()) != 1 {
		t.Errorf("Expected one emitted specialization, got %d", len(e.Emission()))
	}
}

func TestCacheHitWaitsForAnotherGoroutinesExpansion(t *testing.T) {
	e := NewEngine(8, nil)
	started, release := make(chan struct{}), make(chan struct{})
	e.SetExpander(ExpanderFunc(func(ctx context.Context, spec *Specialization) error {
		close(started)
		<-release
		spec.Data = "checked"
		return nil
	}))
	tmpl := newIdentity(t, e)
	args := []types.Type{types.Int}

	go e.Instantiate(context.Background(), tmpl, args)
	<-started

	got := make(chan *Specialization, 1)
	go func() {
		spec, _ := e.Instantiate(context.Background(), tmpl, args)
		got <- spec
	}()
	select {
	case spec := <-got:
		t.Fatalf("Expected the request to wait for the expansion, got ready=%v", spec.Ready())
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	spec := <-got
	if !spec.Ready() || spec.Data != "checked" {
		t.Errorf("Expected a finished specialization, got ready=%v data=%v", spec.Ready(), spec.Data)
	}

	// A waiting request gives up with its context.
	blocked := make(chan struct{})
	e.SetExpander(ExpanderFunc(func(ctx context.Context, spec *Specialization) error {
		close(blocked)
		<-ctx.Done()
		return nil
	}))
	first, stop := context.WithCancel(context.Background())
	defer stop()
	go e.Instantiate(first, tmpl, []types.Type{types.Str})
	<-blocked

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Instantiate(ctx, tmpl, []types.Type{types.Str}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSelfReferentialInstantiation(t *testing.T) {
	e := NewEngine(8, nil)
	node, err := e.Define(TemplateClass, "Node", []types.TypeParam{{Name: "T"}}, nil, &ast.ClassDef{Name: "Node"})
	if err != nil {
		t.Fatal(err)
	}

	var inner *Specialization
	e.SetExpander(ExpanderFunc(func(ctx context.Context, spec *Specialization) error {
		var err error
		inner, err = e.Instantiate(ctx, spec.Template, spec.Args)
		if inner.Ready() {
			t.Error("Expected the in-progress entry to be returned")
		}
		return err
	}))

	spec, err := e.Instantiate(context.Background(), node, []types.Type{types.Int})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if inner != spec {
		t.Error("Expected recursive request to see the placeholder")
	}
	if !spec.Ready() {
		t.Error("Expected specialization to be ready after expansion")
	}
}

func TestInstantiationDepthExceeded(t *testing.T) {
	e := NewEngine(5, nil)
	tmpl := newIdentity(t, e)

	e.SetExpander(ExpanderFunc(func(ctx context.Context, spec *Specialization) error {
		// identity<T> instantiates identity<list<T>>.
		next := &types.Instance{Name: "list", Args: []types.Type{spec.Args[0]}}
		_, err := e.Instantiate(ctx, spec.Template, []types.Type{next})
		return err
	}))

	_, err := e.Instantiate(context.Background(), tmpl, []types.Type{types.Int})
	var de *DepthError
	if !errors.As(err, &de) {
		t.Fatalf("Expected DepthError, got %v", err)
	}
	if de.Limit != 5 || len(de.Chain) != 6 {
		t.Errorf("Expected limit 5 and chain of 6, got %d and %v", de.Limit, de.Chain)
	}
	if de.Chain[0] != "identity<int>" {
		t.Errorf("Expected chain to start at identity<int>, got %s", de.Chain[0])
	}
	if len(e.Emission()) != 0 {
		t.Errorf("Expected failed specializations not to be emitted, got %d", len(e.Emission()))
	}
}

func TestArityAndDuplicates(t *testing.T) {
	e := NewEngine(8, nil)
	tmpl := newIdentity(t, e)

	_, err := e.Instantiate(context.Background(), tmpl, []types.Type{types.Int, types.Str})
	var ar *types.ArityError
	if !errors.As(err, &ar) || ar.Want != 1 || ar.Got != 2 {
		t.Errorf("Expected arity error, got %v", err)
	}

	_, err = e.Define(TemplateFunction, "f", []types.TypeParam{{Name: "T"}, {Name: "T"}}, identityDef(), nil)
	var dp *DuplicateParamError
	if !errors.As(err, &dp) || dp.Name != "T" {
		t.Errorf("Expected duplicate T, got %v", err)
	}

	m := &ast.FunctionDef{Name: "map", Params: []*ast.Param{{Name: "self"}}}
	_, err = e.DefineMethod("Pair", []types.TypeParam{{Name: "A"}, {Name: "B"}}, m, []types.TypeParam{{Name: "A"}})
	if !errors.As(err, &dp) || dp.Name != "A" {
		t.Errorf("Expected method parameter shadowing to fail, got %v", err)
	}

	if _, err := Compose(types.Subst{"A": types.Int}, types.Subst{"A": types.Str}); !errors.As(err, &dp) {
		t.Errorf("Expected Compose to reject shadowing, got %v", err)
	}
	s, err := Compose(types.Subst{"A": types.Int, "B": types.Float}, types.Subst{"U": types.Str})
	if err != nil || len(s) != 3 {
		t.Errorf("Expected union of 3 bindings, got %v (%v)", s, err)
	}
}

func TestMethodSpecializationName(t *testing.T) {
	e := NewEngine(8, nil)
	get := &ast.FunctionDef{
		Name:   "first",
		Params: []*ast.Param{{Name: "self"}},
		Result: &ast.NamedType{Name: "A"},
	}
	tmpl, err := e.DefineMethod("Pair", []types.TypeParam{{Name: "A"}, {Name: "B"}}, get, nil)
	if err != nil {
		t.Fatal(err)
	}

	spec, err := e.Instantiate(context.Background(), tmpl, []types.Type{types.Int, types.Float})
	if err != nil {
		t.Fatal(err)
	}
	if spec.Name != "Pair<int, float>.first" {
		t.Errorf("Expected Pair<int, float>.first, got %s", spec.Name)
	}
	if spec.Func.Result.String() != "int" {
		t.Errorf("Expected result int, got %s", spec.Func.Result)
	}
}
