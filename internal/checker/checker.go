// Package checker type-checks ragaz modules. It resolves every annotation,
// infers statement-local types, instantiates generic definitions on first
// concrete use and resolves every call to its target. The results are
// recorded in Info for the ownership and lowering passes.
package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/config"
	"github.com/ragazzi-robotics/ragaz/internal/diagnostic"
	"github.com/ragazzi-robotics/ragaz/internal/generics"
	"github.com/ragazzi-robotics/ragaz/internal/position"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
	"github.com/ragazzi-robotics/ragaz/internal/traits"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// Function is a concrete function or method checked by the checker.
type Function struct {
	Def   *ast.FunctionDef
	Sig   *types.Function
	Class *Class
	Spec  *generics.Specialization
	Scope *symbols.Scope
	// Symbol is the function's binding in its module scope, if any.
	Symbol *symbols.Symbol
	// Name is the function's name within its module. Methods carry their
	// class and specializations their type arguments.
	Name string
	// Module is the declaring module, empty for prelude definitions.
	Module string
	Params []*symbols.Symbol
	// Extern functions are implemented outside the program; builtin
	// methods of prelude classes are extern too.
	Extern  bool
	MutSelf bool
	// TopLevel marks the function holding a module's top-level statements.
	TopLevel bool
	checked  bool
}

// IsMethod reports whether the function has a self receiver.
func (f *Function) IsMethod() bool { return f.Class != nil }

// LinkName returns the program-wide symbol of the function. Extern and
// prelude functions keep their plain name so the runtime can provide them.
func (f *Function) LinkName() string {
	if f.Extern || f.Module == "" {
		return f.Name
	}
	return f.Module + "." + f.Name
}

// Field is a class attribute.
type Field struct {
	Type    types.Type
	Name    string
	Index   int
	Mutable bool
}

// Class is a concrete class: either non-generic or one specialization of
// a generic class.
type Class struct {
	Type    *types.Instance
	Def     *ast.ClassDef
	Spec    *generics.Specialization
	Traits  []*types.Trait
	methods map[string]*methodEntry
	fields  map[string]*Field
	Name    string
	// Module is the declaring module, empty for prelude classes.
	Module string
	Fields []*Field
}

// Field returns the named attribute.
func (c *Class) Field(name string) (*Field, bool) {
	f, ok := c.fields[name]
	return f, ok
}

// methodEntry is a method of a concrete class. Generic methods, and all
// methods of generic classes, are specialized on first use.
type methodEntry struct {
	decl      *ast.FunctionDef
	fn        *Function
	tmpl      *generics.Template
	method    *traits.Method
	classArgs []types.Type
}

// Info holds the annotations computed by the checker.
type Info struct {
	// Types is the concrete type of every checked expression.
	Types map[ast.Expr]types.Type
	// Targets is the resolved target of every call.
	Targets map[*ast.Call]traits.Target
	// Callees is the concrete function a static call or constructor
	// invokes; builtins have no entry.
	Callees map[*ast.Call]*Function
	// Builtins names the builtin a call invokes.
	Builtins map[*ast.Call]string
	// Constructors maps constructor calls to the class they create.
	Constructors map[*ast.Call]*Class
	// Receivers maps method calls to their receiver expression.
	Receivers map[*ast.Call]ast.Expr
	// FuncValues maps expressions denoting a function value to it.
	FuncValues map[ast.Expr]*Function
	// Uses resolves names to symbols.
	Uses map[*ast.Name]*symbols.Symbol
	// Defs maps declaring nodes to the symbol they introduce.
	Defs map[ast.Node]*symbols.Symbol
	// Convs records implicit conversions applied at binding sites.
	Convs map[ast.Expr]types.Conversion
	// Tables records dispatch tables built where a concrete value is bound
	// to a trait-typed location.
	Tables map[ast.Expr]*traits.DispatchTable
	// Excepts holds the resolved type of each except clause.
	Excepts map[*ast.ExceptClause]types.Type
	// Scopes maps function definitions and block-owning statements to
	// the scope of their body. The else branch of an If is in ElseScopes.
	Scopes     map[ast.Node]*symbols.Scope
	ElseScopes map[*ast.If]*symbols.Scope
	// MethodFuncs maps method records to the function implementing them
	// once it exists.
	MethodFuncs map[*traits.Method]*Function
	// Narrowed records names read at a nullable symbol inside an
	// "is not None" branch, with the unwrapped type.
	Narrowed map[*ast.Name]types.Type
	// StrMethods maps print arguments of class type to their __str__.
	StrMethods map[ast.Expr]*Function
	// Functions lists concrete functions in check order.
	Functions []*Function
	// Classes lists concrete classes in creation order.
	Classes []*Class
}

// TypeOf returns the recorded type of e.
func (i *Info) TypeOf(e ast.Expr) types.Type {
	if t, ok := i.Types[e]; ok {
		return t
	}
	return nil
}

func newInfo() *Info {
	return &Info{
		Types:        make(map[ast.Expr]types.Type),
		Targets:      make(map[*ast.Call]traits.Target),
		Callees:      make(map[*ast.Call]*Function),
		Builtins:     make(map[*ast.Call]string),
		Constructors: make(map[*ast.Call]*Class),
		Receivers:    make(map[*ast.Call]ast.Expr),
		FuncValues:   make(map[ast.Expr]*Function),
		Uses:         make(map[*ast.Name]*symbols.Symbol),
		Defs:         make(map[ast.Node]*symbols.Symbol),
		Convs:        make(map[ast.Expr]types.Conversion),
		Tables:       make(map[ast.Expr]*traits.DispatchTable),
		Excepts:      make(map[*ast.ExceptClause]types.Type),
		Scopes:       make(map[ast.Node]*symbols.Scope),
		ElseScopes:   make(map[*ast.If]*symbols.Scope),
		MethodFuncs:  make(map[*traits.Method]*Function),
		Narrowed:     make(map[*ast.Name]types.Type),
		StrMethods:   make(map[ast.Expr]*Function),
	}
}

// site records where a template was declared.
type site struct {
	scope *symbols.Scope
	// owner is the class template of a method template.
	owner *generics.Template
	// cls is the class of a generic method of a non-generic class.
	cls *Class
}

type diagKey struct {
	span position.Span
	msg  string
	kind diagnostic.Kind
}

// Checker type-checks modules of one compilation session.
type Checker struct {
	opts     config.Options
	diags    *diagnostic.Engine
	log      *slog.Logger
	universe *symbols.Scope
	registry *traits.Registry
	engine   *generics.Engine
	info     *Info
	sites    map[*generics.Template]*site
	classes  map[*symbols.Symbol]*Class
	// classTemplates maps generic class symbols to their template.
	classTemplates map[*symbols.Symbol]*generics.Template
	funcTemplates  map[*symbols.Symbol]*generics.Template
	// methodTemplates holds the method templates of each generic class.
	methodTemplates map[*generics.Template]map[string]*generics.Template
	// formals caches template signatures in terms of their parameters.
	formals    map[*generics.Template]*types.Function
	byType     map[string]*Class
	functions  map[*symbols.Symbol]*Function
	reported   map[diagKey]bool
	pending    []*Function
	// runaway holds, per expansion in progress, the first depth error
	// raised inside it.
	runaway    []*generics.DepthError
	unresolved int
}

// New creates a checker sharing the session's registries. The checker
// installs itself as the engine's expander.
func New(opts config.Options, universe *symbols.Scope, registry *traits.Registry, engine *generics.Engine,
	diags *diagnostic.Engine, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Checker{
		opts:            opts,
		diags:           diags,
		log:             logger,
		universe:        universe,
		registry:        registry,
		engine:          engine,
		info:            newInfo(),
		sites:           make(map[*generics.Template]*site),
		classes:         make(map[*symbols.Symbol]*Class),
		classTemplates:  make(map[*symbols.Symbol]*generics.Template),
		funcTemplates:   make(map[*symbols.Symbol]*generics.Template),
		methodTemplates: make(map[*generics.Template]map[string]*generics.Template),
		formals:         make(map[*generics.Template]*types.Function),
		byType:          make(map[string]*Class),
		functions:       make(map[*symbols.Symbol]*Function),
		reported:        make(map[diagKey]bool),
	}
	engine.SetExpander(c)
	return c
}

// Info returns the annotations recorded so far.
func (c *Checker) Info() *Info { return c.info }

// CheckPrelude declares modules directly into the universe so that every
// later module sees their definitions. A later prelude module may replace
// a builtin class by declaring one with the same name.
func (c *Checker) CheckPrelude(ctx context.Context, modules ...*ast.Module) {
	scopes := make([]*symbols.Scope, len(modules))
	for i := range modules {
		scopes[i] = c.universe
	}
	c.run(ctx, modules, scopes)
}

// Check declares and checks user modules, each in its own module scope.
func (c *Checker) Check(ctx context.Context, modules ...*ast.Module) {
	scopes := make([]*symbols.Scope, len(modules))
	for i, m := range modules {
		scopes[i] = symbols.NewScope(c.universe, symbols.ScopeModule, m.Name)
	}
	c.run(ctx, modules, scopes)
}

func (c *Checker) run(ctx context.Context, modules []*ast.Module, scopes []*symbols.Scope) {
	phases := []func(context.Context, *symbols.Scope, *ast.Module){
		c.collect,
		c.declareTemplates,
		c.declareAliases,
		c.declareTraits,
		c.declareClasses,
		c.declareFunctions,
	}
	for _, phase := range phases {
		for i, m := range modules {
			phase(ctx, scopes[i], m)
		}
	}
	c.drain(ctx)
}

// drain checks non-generic functions whose bodies are still pending.
func (c *Checker) drain(ctx context.Context) {
	for len(c.pending) > 0 {
		fn := c.pending[0]
		c.pending = c.pending[1:]
		c.checkFunction(ctx, fn)
	}
}

func (c *Checker) errorf(kind diagnostic.Kind, span position.Span, format string, args ...interface{}) *diagnostic.Diagnostic {
	d := diagnostic.New(kind, span, format, args...)
	key := diagKey{span: span, msg: d.Message, kind: kind}
	if c.reported[key] {
		return d
	}
	c.reported[key] = true
	c.diags.Add(d)
	return d
}

func (c *Checker) fresh() types.Type {
	c.unresolved++
	return &types.Unresolved{ID: c.unresolved}
}

// report converts an error from the type, generics or traits packages into
// a diagnostic at span.
func (c *Checker) report(err error, span position.Span) *diagnostic.Diagnostic {
	var (
		mm  *types.MismatchError
		st  *types.StrictError
		amb *types.AmbiguousError
		unk *types.UnknownTypeError
		ar  *types.ArityError
		ni  *types.NotImplementedError
		dp  *generics.DuplicateParamError
		de  *generics.DepthError
		di  *traits.DuplicateImplError
		nim *traits.NoImplementationError
	)
	switch {
	case errors.As(err, &unk):
		if unk.Span.IsValid() {
			span = unk.Span
		}
		return c.errorf(diagnostic.UnknownTypeError, span, "%s", unk)
	case errors.As(err, &ar):
		if ar.Span.IsValid() {
			span = ar.Span
		}
		return c.errorf(diagnostic.ArityError, span, "%s", ar)
	case errors.As(err, &st):
		return c.errorf(diagnostic.StrictTypeError, span, "%s", st)
	case errors.As(err, &mm):
		return c.errorf(diagnostic.TypeMismatchError, span, "%s", mm)
	case errors.As(err, &amb):
		return c.errorf(diagnostic.AmbiguousInferenceError, span, "%s", amb)
	case errors.As(err, &ni):
		return c.errorf(diagnostic.NoImplementationError, span, "%s", ni)
	case errors.As(err, &dp):
		return c.errorf(diagnostic.DuplicateTypeParamError, span, "%s", dp)
	case errors.As(err, &de):
		if n := len(c.runaway); n > 0 {
			if c.runaway[n-1] == nil {
				c.runaway[n-1] = de
			}
			return diagnostic.New(diagnostic.InstantiationDepthExceededError, span, "%s", de)
		}
		return c.errorf(diagnostic.InstantiationDepthExceededError, span, "%s", de)
	case errors.As(err, &di):
		return c.errorf(diagnostic.DuplicateImplError, span, "%s", di)
	case errors.As(err, &nim):
		return c.errorf(diagnostic.NoImplementationError, span, "%s", nim)
	}
	return c.errorf(diagnostic.TypeMismatchError, span, "%v", err)
}

// resolve resolves a type annotation and instantiates any generic class it
// names.
func (c *Checker) resolve(ctx context.Context, scope *symbols.Scope, expr ast.TypeExpr) types.Type {
	t, err := types.Resolve(expr, scope)
	if err != nil {
		span := position.Span{}
		if expr != nil {
			span = expr.GetSpan()
		}
		c.report(err, span)
		return c.fresh()
	}
	if err := c.realize(ctx, scope, t); err != nil {
		c.report(err, expr.GetSpan())
	}
	return t
}

// realize instantiates every class mentioned by t.
func (c *Checker) realize(ctx context.Context, scope *symbols.Scope, t types.Type) error {
	switch t := t.(type) {
	case *types.Instance:
		for _, a := range t.Args {
			if err := c.realize(ctx, scope, a); err != nil {
				return err
			}
		}
		if t.Name == "tuple" || types.HasParams(t) {
			return nil
		}
		_, err := c.classOf(ctx, scope, t)
		return err
	case *types.Trait:
		for _, a := range t.Args {
			if err := c.realize(ctx, scope, a); err != nil {
				return err
			}
		}
	case *types.Reference:
		return c.realize(ctx, scope, t.Target)
	case *types.Nullable:
		return c.realize(ctx, scope, t.Inner)
	case *types.Function:
		for _, p := range t.Params {
			if err := c.realize(ctx, scope, p); err != nil {
				return err
			}
		}
		return c.realize(ctx, scope, t.Result)
	}
	return nil
}

// classOf returns the concrete class of an instance type.
func (c *Checker) classOf(ctx context.Context, scope *symbols.Scope, t *types.Instance) (*Class, error) {
	sym := scope.Lookup(t.Name)
	if sym == nil || sym.Kind != symbols.SymbolClass {
		return nil, &types.UnknownTypeError{Name: t.Name}
	}
	if cls, ok := c.classes[sym]; ok {
		return cls, nil
	}
	tmpl, ok := c.classTemplates[sym]
	if !ok {
		def, isClass := sym.Decl.(*ast.ClassDef)
		if !isClass {
			return nil, fmt.Errorf("class %s is not declared", t.Name)
		}
		if len(t.Args) > 0 {
			return nil, &types.ArityError{Name: t.Name, Want: 0, Got: len(t.Args)}
		}
		return c.declareClass(ctx, sym, def), nil
	}
	spec, err := c.engine.Instantiate(ctx, tmpl, t.Args)
	if spec == nil || spec.Data == nil {
		if err == nil {
			err = fmt.Errorf("class %s could not be instantiated", t)
		}
		return nil, err
	}
	return spec.Data.(*Class), err
}

// classFor returns the class of the receiver type t, if t is a class.
func (c *Checker) classFor(ctx context.Context, scope *symbols.Scope, t types.Type) (*Class, bool) {
	inst, ok := types.Deref(t).(*types.Instance)
	if !ok || inst.Name == "tuple" {
		return nil, false
	}
	cls, err := c.classOf(ctx, scope, inst)
	if err != nil || cls == nil {
		return nil, false
	}
	return cls, true
}

// isException reports whether t is a legal exception type.
func (c *Checker) isException(t types.Type) bool {
	switch t := t.(type) {
	case *types.Trait:
		return t.Name == ExceptionTrait
	case *types.Instance:
		return c.registry.Implements(&types.Trait{Name: ExceptionTrait}, t)
	case *types.Unresolved:
		return true
	}
	return false
}
