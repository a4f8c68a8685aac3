// Package generics implements monomorphization: every generic function,
// class or method is specialized once per distinct tuple of concrete type
// arguments, and the specialization is cached for the rest of the
// compilation unit.
package generics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// TemplateKind classifies generic definitions.
type TemplateKind int

const (
	TemplateFunction TemplateKind = iota
	TemplateClass
	TemplateMethod
)

func (k TemplateKind) String() string {
	switch k {
	case TemplateFunction:
		return "function"
	case TemplateClass:
		return "class"
	case TemplateMethod:
		return "method"
	default:
		return "unknown"
	}
}

// Template is a generic definition.
type Template struct {
	Func  *ast.FunctionDef
	Class *ast.ClassDef
	// Owner is the class name of a method template.
	Owner string
	Name  string
	// Params are the type parameters; for methods the class parameters
	// come first, followed by the method's own.
	Params []types.TypeParam
	// OwnerArity is the number of leading class parameters of a method.
	OwnerArity int
	ID         int
	Kind       TemplateKind
}

func (t *Template) String() string {
	return fmt.Sprintf("%s %s<%s>", t.Kind, t.qualified(), strings.Join(types.ParamNames(t.Params), ", "))
}

func (t *Template) qualified() string {
	if t.Kind == TemplateMethod {
		return t.Owner + "." + t.Name
	}
	return t.Name
}

// Key identifies one instantiation: the definition and the canonical
// rendering of its argument tuple.
type Key struct {
	Args string
	Def  int
}

func (k Key) String() string {
	return fmt.Sprintf("%d<%s>", k.Def, k.Args)
}

// MakeKey returns the cache key of t instantiated with args.
func MakeKey(t *Template, args []types.Type) Key {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return Key{Def: t.ID, Args: strings.Join(parts, ", ")}
}

// Specialization is one concrete copy of a template.
type Specialization struct {
	// Type is the instance type of a class, or the signature of a function,
	// set by the expander before it checks any body.
	Type types.Type
	// Data belongs to the expander.
	Data     interface{}
	Err      error
	Template *Template
	Subst    types.Subst
	// Func is the substituted clone of a function or method.
	Func *ast.FunctionDef
	// Class is the substituted clone of a class; method bodies are left out
	// because methods are specialized separately on use.
	Class  *ast.ClassDef
	Parent *Specialization
	Name   string
	Args   []types.Type
	Key    Key
	Depth  int
	ready  bool
	// done is closed once expansion has completed.
	done chan struct{}
}

// Ready reports whether expansion has completed.
func (s *Specialization) Ready() bool { return s.ready }

// Expander type-checks a freshly cloned specialization. It may
// instantiate further specializations through the same engine.
type Expander interface {
	Expand(ctx context.Context, spec *Specialization) error
}

// ExpanderFunc adapts a function to Expander.
type ExpanderFunc func(ctx context.Context, spec *Specialization) error

// Expand implements Expander.
func (f ExpanderFunc) Expand(ctx context.Context, spec *Specialization) error { return f(ctx, spec) }

// Engine owns the monomorphization cache of one compilation session.
type Engine struct {
	expander  Expander
	log       *slog.Logger
	cache     map[Key]*Specialization
	group     singleflight.Group
	templates []*Template
	order     []*Specialization
	maxDepth  int
	mu        sync.Mutex
}

// NewEngine creates an engine bounding instantiation chains at maxDepth.
func NewEngine(maxDepth int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		cache:    make(map[Key]*Specialization),
		maxDepth: maxDepth,
		log:      logger,
	}
}

// SetExpander installs the callback that checks specialized bodies.
func (e *Engine) SetExpander(x Expander) {
	e.expander = x
}

// Define registers a generic definition. Duplicate parameter names fail
// with *DuplicateParamError.
func (e *Engine) Define(kind TemplateKind, name string, params []types.TypeParam, fn *ast.FunctionDef, class *ast.ClassDef) (*Template, error) {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if seen[p.Name] {
			return nil, &DuplicateParamError{Name: p.Name, Def: name}
		}
		seen[p.Name] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t := &Template{ID: len(e.templates) + 1, Kind: kind, Name: name, Params: params, Func: fn, Class: class}
	e.templates = append(e.templates, t)
	return t, nil
}

// DefineMethod registers a method of a generic class, or a generic method
// of any class. Method parameters must not shadow class parameters.
func (e *Engine) DefineMethod(owner string, classParams []types.TypeParam, fn *ast.FunctionDef, methodParams []types.TypeParam) (*Template, error) {
	params := make([]types.TypeParam, 0, len(classParams)+len(methodParams))
	params = append(params, classParams...)
	params = append(params, methodParams...)

	t, err := e.Define(TemplateMethod, fn.Name, params, fn, nil)
	if err != nil {
		return nil, err
	}
	t.Owner = owner
	t.OwnerArity = len(classParams)
	return t, nil
}

type chainKey struct{}

// WithParent records spec as the requester of instantiations made with
// the returned context.
func WithParent(ctx context.Context, spec *Specialization) context.Context {
	return context.WithValue(ctx, chainKey{}, spec)
}

func parentOf(ctx context.Context) *Specialization {
	spec, _ := ctx.Value(chainKey{}).(*Specialization)
	return spec
}

// Instantiate returns the specialization of t for args, creating it on
// first use. Repeated requests for the same key return the identical
// specialization. A request made from within the key's own expansion gets
// the in-progress entry; any other request waits until the entry is ready.
// Two goroutines whose expansions request each other's keys deadlock, so
// mutually recursive templates must be instantiated from one goroutine.
func (e *Engine) Instantiate(ctx context.Context, t *Template, args []types.Type) (*Specialization, error) {
	if err := types.CheckArity(t.Params, len(args)); err != nil {
		return nil, &types.ArityError{Name: t.qualified(), Want: len(t.Params), Got: len(args)}
	}

	subst, err := types.Bind(t.Params, args)
	if err != nil {
		return nil, err
	}
	full := make([]types.Type, len(t.Params))
	for i, p := range t.Params {
		full[i] = subst[p.Name]
		if types.HasParams(full[i]) {
			return nil, fmt.Errorf("instantiate %s: type argument %s is not concrete", t.qualified(), full[i])
		}
	}

	key := MakeKey(t, full)

	e.mu.Lock()
	if spec, ok := e.cache[key]; ok {
		ready, err := spec.ready, spec.Err
		e.mu.Unlock()
		if ready || onChain(ctx, spec) {
			return spec, err
		}
		return e.wait(ctx, spec)
	}
	e.mu.Unlock()

	parent := parentOf(ctx)
	depth := 1
	if parent != nil {
		depth = parent.Depth + 1
	}
	if depth > e.maxDepth {
		return nil, &DepthError{Limit: e.maxDepth, Chain: chainOf(parent, specName(t, full))}
	}

	v, err, _ := e.group.Do(key.String(), func() (interface{}, error) {
		e.mu.Lock()
		if spec, ok := e.cache[key]; ok {
			e.mu.Unlock()
			return e.wait(ctx, spec)
		}
		spec := &Specialization{
			Key:      key,
			Template: t,
			Args:     full,
			Subst:    subst,
			Name:     specName(t, full),
			Parent:   parent,
			Depth:    depth,
			done:     make(chan struct{}),
		}
		spec.clone()
		// In-progress entry: recursive requests for key see it.
		e.cache[key] = spec
		e.order = append(e.order, spec)
		e.mu.Unlock()

		e.log.Debug("instantiate", "name", spec.Name, "kind", t.Kind.String(), "depth", depth)

		var expandErr error
		if e.expander != nil {
			expandErr = e.expander.Expand(WithParent(ctx, spec), spec)
		}

		e.mu.Lock()
		spec.Err = expandErr
		spec.ready = true
		e.mu.Unlock()
		close(spec.done)
		return spec, expandErr
	})

	spec, _ := v.(*Specialization)
	return spec, err
}

// wait blocks until spec, expanded by another goroutine, is ready.
func (e *Engine) wait(ctx context.Context, spec *Specialization) (*Specialization, error) {
	select {
	case <-spec.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return spec, spec.Err
}

// onChain reports whether spec is being expanded by the requester of ctx.
func onChain(ctx context.Context, spec *Specialization) bool {
	for p := parentOf(ctx); p != nil; p = p.Parent {
		if p == spec {
			return true
		}
	}
	return false
}

func (s *Specialization) clone() {
	sub := types.SubstExprs(s.Subst)
	t := s.Template

	switch t.Kind {
	case TemplateFunction, TemplateMethod:
		s.Func = ast.CloneFunc(t.Func, sub)
		s.Func.TypeParams = nil
	case TemplateClass:
		c := &ast.ClassDef{Name: s.Name, Span: t.Class.Span}
		for _, b := range t.Class.Bases {
			c.Bases = append(c.Bases, ast.CloneType(b, sub))
		}
		for _, f := range t.Class.Fields {
			c.Fields = append(c.Fields, &ast.Field{Name: f.Name, Type: ast.CloneType(f.Type, sub), Mutable: f.Mutable, Span: f.Span})
		}
		for _, m := range t.Class.Methods {
			sig := ast.CloneFunc(&ast.FunctionDef{Name: m.Name, TypeParams: m.TypeParams, Params: m.Params,
				Result: m.Result, Span: m.Span, Extern: m.Extern}, sub)
			c.Methods = append(c.Methods, sig)
		}
		s.Class = c
	}
}

func specName(t *Template, args []types.Type) string {
	if t.Kind == TemplateMethod {
		owner := &types.Instance{Name: t.Owner, Args: args[:t.OwnerArity]}
		return owner.String() + "." + (&types.Instance{Name: t.Name, Args: args[t.OwnerArity:]}).String()
	}
	return (&types.Instance{Name: t.Name, Args: args}).String()
}

func chainOf(parent *Specialization, last string) []string {
	var chain []string
	for s := parent; s != nil; s = s.Parent {
		chain = append(chain, s.Name)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return append(chain, last)
}

// Lookup returns the cached specialization for key, if any.
func (e *Engine) Lookup(key Key) (*Specialization, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	spec, ok := e.cache[key]
	return spec, ok
}

// Emission returns the successfully expanded specializations in creation
// order. Each key appears once.
func (e *Engine) Emission() []*Specialization {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Specialization, 0, len(e.order))
	for _, s := range e.order {
		if s.ready && s.Err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Templates returns every registered template.
func (e *Engine) Templates() []*Template {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Template(nil), e.templates...)
}

// Compose merges a class-level and a method-level substitution. A method
// parameter may not reuse a class parameter name.
func Compose(class, method types.Subst) (types.Subst, error) {
	out := make(types.Subst, len(class)+len(method))
	for n, t := range class {
		out[n] = t
	}
	for n, t := range method {
		if _, dup := out[n]; dup {
			return nil, &DuplicateParamError{Name: n}
		}
		out[n] = t
	}
	return out, nil
}
