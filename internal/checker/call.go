package checker

import (
	"context"
	"errors"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/diagnostic"
	"github.com/ragazzi-robotics/ragaz/internal/generics"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
	"github.com/ragazzi-robotics/ragaz/internal/traits"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// ====== Calls ======

func (c *Checker) call(ctx context.Context, f *funcCtx, call *ast.Call, expected types.Type) types.Type {
	switch fx := call.Func.(type) {
	case *ast.Name:
		sym := f.scope.Lookup(fx.ID)
		if sym == nil {
			c.errorf(diagnostic.UnknownNameError, fx.Span, "undefined name %s", fx.ID)
			c.evalArgs(ctx, f, call, nil)
			return c.fresh()
		}
		c.info.Uses[fx] = sym
		switch sym.Kind {
		case symbols.SymbolBuiltin:
			return c.builtin(ctx, f, call, fx.ID)
		case symbols.SymbolFunction:
			if tmpl, ok := c.funcTemplates[sym]; ok {
				fn, res := c.genericCall(ctx, f, call, fx.ID, tmpl, nil, nil, expected)
				if fn != nil {
					c.info.Targets[call] = staticTarget(fn)
				}
				return res
			}
			if fn, ok := c.functions[sym]; ok {
				return c.staticCall(ctx, f, call, fn)
			}
			c.evalArgs(ctx, f, call, nil)
			return c.fresh()
		case symbols.SymbolClass:
			return c.construct(ctx, f, call, sym, nil, expected)
		case symbols.SymbolAlias:
			return c.constructAlias(ctx, f, call, sym)
		}
		if sym.Kind.IsValue() {
			return c.valueCall(ctx, f, call, c.expr(ctx, f, fx, nil))
		}
		c.errorf(diagnostic.TypeMismatchError, fx.Span, "%s %s is not callable", sym.Kind, fx.ID)
		c.evalArgs(ctx, f, call, nil)
		return c.fresh()

	case *ast.TypeApply:
		explicit, ok := c.typeArgs(ctx, f, fx.TypeArgs)
		if !ok {
			c.evalArgs(ctx, f, call, nil)
			return c.fresh()
		}
		switch x := fx.X.(type) {
		case *ast.Name:
			sym := f.scope.Lookup(x.ID)
			if sym == nil {
				c.errorf(diagnostic.UnknownNameError, x.Span, "undefined name %s", x.ID)
				c.evalArgs(ctx, f, call, nil)
				return c.fresh()
			}
			c.info.Uses[x] = sym
			if tmpl, ok := c.funcTemplates[sym]; ok {
				fn, res := c.genericCall(ctx, f, call, x.ID, tmpl, nil, explicit, expected)
				if fn != nil {
					c.info.Targets[call] = staticTarget(fn)
				}
				return res
			}
			if sym.Kind == symbols.SymbolClass {
				return c.construct(ctx, f, call, sym, explicit, expected)
			}
			c.errorf(diagnostic.ArityError, fx.Span, "%s takes no type arguments", x.ID)
			c.evalArgs(ctx, f, call, nil)
			return c.fresh()
		case *ast.Attribute:
			return c.methodCall(ctx, f, call, x, explicit, expected)
		}
		c.errorf(diagnostic.TypeMismatchError, fx.Span, "%s is not a generic function", fx.X)
		c.evalArgs(ctx, f, call, nil)
		return c.fresh()

	case *ast.Attribute:
		return c.methodCall(ctx, f, call, fx, nil, expected)
	}

	return c.valueCall(ctx, f, call, c.expr(ctx, f, call.Func, nil))
}

func staticTarget(fn *Function) traits.Target {
	name := fn.Name
	if fn.Def != nil {
		name = fn.Def.Name
	}
	return traits.Target{
		Kind:   traits.TargetStatic,
		Sig:    fn.Sig,
		Method: &traits.Method{Name: name, Symbol: fn.Name, Sig: fn.Sig, MutSelf: fn.MutSelf, Data: fn},
	}
}

// evalArgs checks call arguments. expected guides each argument whose
// formal type is already concrete.
func (c *Checker) evalArgs(ctx context.Context, f *funcCtx, call *ast.Call, expected []types.Type) ([]types.Type, bool) {
	ts := make([]types.Type, len(call.Args))
	ok := true
	for i, a := range call.Args {
		var hint types.Type
		if i < len(expected) && expected[i] != nil && !types.HasParams(expected[i]) {
			hint = expected[i]
		}
		ts[i] = c.expr(ctx, f, a, hint)
		if types.IsUnresolved(ts[i]) {
			ok = false
		}
	}
	for _, kw := range call.Keywords {
		c.expr(ctx, f, kw.Value, nil)
		c.errorf(diagnostic.ArgumentError, kw.Span, "unexpected keyword argument %s", kw.Name)
	}
	return ts, ok
}

// bindArgs converts each argument to its parameter type. A mismatch is
// reported at the call with the argument as related information.
func (c *Checker) bindArgs(ctx context.Context, call *ast.Call, name string, params, actuals []types.Type) {
	if len(actuals) != len(params) {
		c.errorf(diagnostic.ArgumentError, call.Span, "%s expects %d arguments, got %d", name, len(params), len(actuals))
		return
	}
	for i, a := range call.Args {
		if types.IsUnresolved(actuals[i]) {
			continue
		}
		if err := c.convert(ctx, params[i], a, actuals[i], types.SiteArgument); err != nil {
			c.report(err, call.Span).WithRelated(a.GetSpan(), "argument %d has type %s", i+1, actuals[i])
		}
	}
}

func (c *Checker) staticCall(ctx context.Context, f *funcCtx, call *ast.Call, fn *Function) types.Type {
	actuals, _ := c.evalArgs(ctx, f, call, fn.Sig.Params)
	c.bindArgs(ctx, call, fn.Name, fn.Sig.Params, actuals)
	c.info.Callees[call] = fn
	c.info.Targets[call] = staticTarget(fn)
	c.info.Types[call.Func] = fn.Sig
	return fn.Sig.Result
}

func (c *Checker) valueCall(ctx context.Context, f *funcCtx, call *ast.Call, t types.Type) types.Type {
	ft, ok := types.Deref(t).(*types.Function)
	if !ok {
		if !types.IsUnresolved(t) {
			c.errorf(diagnostic.TypeMismatchError, call.Func.GetSpan(), "%s is not callable", t)
		}
		c.evalArgs(ctx, f, call, nil)
		return c.fresh()
	}
	actuals, _ := c.evalArgs(ctx, f, call, ft.Params)
	c.bindArgs(ctx, call, call.Func.String(), ft.Params, actuals)
	c.info.Targets[call] = traits.Target{Kind: traits.TargetValue, Sig: ft}
	return ft.Result
}

// genericCall infers the type arguments of a generic function or method
// call, instantiates it and binds the arguments. classArgs are the owner
// class arguments of a method template.
func (c *Checker) genericCall(ctx context.Context, f *funcCtx, call *ast.Call, name string, tmpl *generics.Template,
	classArgs, explicit []types.Type, expected types.Type) (*Function, types.Type) {
	formals := c.formalsOf(ctx, tmpl)
	own := tmpl.Params[tmpl.OwnerArity:]
	if len(classArgs) > 0 {
		s, err := types.Bind(tmpl.Params[:tmpl.OwnerArity], classArgs)
		if err != nil {
			c.report(err, call.Span)
			return nil, c.fresh()
		}
		formals = types.Substitute(formals, s).(*types.Function)
	}

	hints := formals.Params
	if explicit != nil {
		if err := types.CheckArity(own, len(explicit)); err != nil {
			c.report(&types.ArityError{Name: name, Want: len(own), Got: len(explicit)}, call.Span)
			c.evalArgs(ctx, f, call, nil)
			return nil, c.fresh()
		}
		s, _ := types.Bind(own, explicit)
		hints = types.Substitute(formals, s).(*types.Function).Params
	}

	actuals, ok := c.evalArgs(ctx, f, call, hints)
	if !ok {
		return nil, c.fresh()
	}
	if len(actuals) != len(formals.Params) {
		c.errorf(diagnostic.ArgumentError, call.Span, "%s expects %d arguments, got %d", name, len(formals.Params), len(actuals))
		return nil, c.fresh()
	}

	s, err := types.Infer(own, explicit, formals.Params, actuals)
	var amb *types.AmbiguousError
	if errors.As(err, &amb) && expected != nil && !types.IsUnresolved(expected) {
		// The expected result type may bind what the arguments left open.
		fs := append(append([]types.Type(nil), formals.Params...), formals.Result)
		as := append(append([]types.Type(nil), actuals...), expected)
		s, err = types.Infer(own, nil, fs, as)
	}
	if err != nil {
		c.report(err, call.Span)
		return nil, c.fresh()
	}

	args := make([]types.Type, 0, len(classArgs)+len(own))
	args = append(args, classArgs...)
	for _, p := range own {
		args = append(args, s[p.Name])
	}
	spec, err := c.engine.Instantiate(ctx, tmpl, args)
	if err != nil {
		c.report(err, call.Span)
	}
	if spec == nil || spec.Data == nil {
		return nil, c.fresh()
	}

	fn := spec.Data.(*Function)
	c.bindArgs(ctx, call, fn.Name, fn.Sig.Params, actuals)
	c.info.Callees[call] = fn
	return fn, fn.Sig.Result
}

// ====== Constructors ======

// construct checks Class(args). Type arguments of a generic class come
// from explicit arguments, the expected type, or the __init__ arguments,
// in that order.
func (c *Checker) construct(ctx context.Context, f *funcCtx, call *ast.Call, sym *symbols.Symbol, explicit []types.Type, expected types.Type) types.Type {
	tmpl, generic := c.classTemplates[sym]
	if !generic {
		if len(explicit) > 0 {
			c.report(&types.ArityError{Name: sym.Name, Want: 0, Got: len(explicit)}, call.Span)
		}
		cls, err := c.classOf(ctx, f.scope, &types.Instance{Name: sym.Name})
		if err != nil || cls == nil {
			if err != nil {
				c.report(err, call.Span)
			}
			c.evalArgs(ctx, f, call, nil)
			return c.fresh()
		}
		return c.initCall(ctx, f, call, cls, nil)
	}

	args := explicit
	if args == nil {
		if want := expectedInstance(expected, sym.Name); want != nil {
			args = want.Args
		}
	}
	var actuals []types.Type
	if args == nil {
		var formals []types.Type
		if mt, ok := c.methodTemplates[tmpl]["__init__"]; ok {
			formals = c.formalsOf(ctx, mt).Params
		}
		var ok bool
		actuals, ok = c.evalArgs(ctx, f, call, formals)
		if !ok {
			return c.fresh()
		}
		n := len(formals)
		if len(actuals) < n {
			n = len(actuals)
		}
		s, err := types.Infer(tmpl.Params, nil, formals[:n], actuals[:n])
		if err != nil {
			c.report(err, call.Span)
			return c.fresh()
		}
		for _, p := range tmpl.Params {
			args = append(args, s[p.Name])
		}
	}

	cls, err := c.classOf(ctx, f.scope, &types.Instance{Name: sym.Name, Args: args})
	if err != nil {
		c.report(err, call.Span)
	}
	if cls == nil {
		if actuals == nil {
			c.evalArgs(ctx, f, call, nil)
		}
		return c.fresh()
	}
	return c.initCall(ctx, f, call, cls, actuals)
}

// constructAlias checks a constructor call through a type alias naming a
// class instance.
func (c *Checker) constructAlias(ctx context.Context, f *funcCtx, call *ast.Call, sym *symbols.Symbol) types.Type {
	inst, ok := sym.Type.(*types.Instance)
	if !ok || inst.Name == "tuple" {
		c.errorf(diagnostic.TypeMismatchError, call.Func.GetSpan(), "type %s is not a class", sym.Name)
		c.evalArgs(ctx, f, call, nil)
		return c.fresh()
	}
	cls, err := c.classOf(ctx, f.scope, inst)
	if err != nil || cls == nil {
		if err != nil {
			c.report(err, call.Span)
		}
		c.evalArgs(ctx, f, call, nil)
		return c.fresh()
	}
	return c.initCall(ctx, f, call, cls, nil)
}

// initCall binds constructor arguments to __init__. actuals holds the
// argument types when they were already checked for inference.
func (c *Checker) initCall(ctx context.Context, f *funcCtx, call *ast.Call, cls *Class, actuals []types.Type) types.Type {
	c.info.Constructors[call] = cls
	var params []types.Type
	if entry, ok := cls.methods["__init__"]; ok {
		fn, err := c.methodFunction(ctx, entry, nil)
		if err != nil {
			c.report(err, call.Span)
		}
		if fn == nil {
			if actuals == nil {
				c.evalArgs(ctx, f, call, nil)
			}
			return cls.Type
		}
		params = fn.Sig.Params
		c.info.Callees[call] = fn
		c.info.Targets[call] = traits.Target{Kind: traits.TargetStatic, Method: entry.method, Sig: fn.Sig}
	}
	if actuals == nil {
		actuals, _ = c.evalArgs(ctx, f, call, params)
	}
	c.bindArgs(ctx, call, cls.Name, params, actuals)
	return cls.Type
}

// ====== Methods ======

func (c *Checker) methodCall(ctx context.Context, f *funcCtx, call *ast.Call, attr *ast.Attribute, explicit []types.Type, expected types.Type) types.Type {
	rt := c.expr(ctx, f, attr.X, nil)
	if types.IsUnresolved(rt) {
		c.evalArgs(ctx, f, call, nil)
		return rt
	}
	base := types.Deref(rt)
	if _, ok := base.(*types.Nullable); ok {
		c.errorf(diagnostic.TypeMismatchError, attr.Span, "%s may be None; compare it with None first", attr.X)
		c.evalArgs(ctx, f, call, nil)
		return c.fresh()
	}

	if cls, ok := c.classFor(ctx, f.scope, base); ok {
		if fld, ok := cls.Field(attr.Name); ok {
			if ft, ok := fld.Type.(*types.Function); ok {
				c.info.Types[attr] = ft
				return c.valueCall(ctx, f, call, ft)
			}
		}
	}

	target, err := c.registry.ResolveCall(base, attr.Name, nil, c)
	if err != nil {
		c.report(err, call.Span)
		c.evalArgs(ctx, f, call, nil)
		return c.fresh()
	}
	if attr.Name == "__init__" || attr.Name == "__del__" {
		c.errorf(diagnostic.TypeMismatchError, attr.Span, "%s cannot be called directly", attr.Name)
	}
	c.info.Receivers[call] = attr.X

	if target.Kind == traits.TargetDynamic {
		if len(explicit) > 0 {
			c.report(&types.ArityError{Name: attr.Name, Want: 0, Got: len(explicit)}, call.Span)
		}
		actuals, _ := c.evalArgs(ctx, f, call, target.Sig.Params)
		c.bindArgs(ctx, call, attr.Name, target.Sig.Params, actuals)
		c.info.Targets[call] = target
		return target.Sig.Result
	}

	if _, ref := rt.(*types.Reference); !ref {
		if target.Method.MutSelf {
			c.info.Convs[attr.X] = types.ConvBorrowMut
		} else {
			c.info.Convs[attr.X] = types.ConvBorrow
		}
	}

	entry, ok := target.Method.Data.(*methodEntry)
	if !ok {
		c.evalArgs(ctx, f, call, nil)
		return c.fresh()
	}

	var fn *Function
	if entry.tmpl != nil && len(entry.tmpl.Params) > entry.tmpl.OwnerArity {
		var res types.Type
		fn, res = c.genericCall(ctx, f, call, target.Method.Symbol, entry.tmpl, entry.classArgs, explicit, expected)
		if fn == nil {
			return res
		}
	} else {
		if len(explicit) > 0 {
			c.report(&types.ArityError{Name: target.Method.Symbol, Want: 0, Got: len(explicit)}, call.Span)
		}
		fn, err = c.methodFunction(ctx, entry, nil)
		if err != nil {
			c.report(err, call.Span)
		}
		if fn == nil {
			c.evalArgs(ctx, f, call, nil)
			return c.fresh()
		}
		actuals, _ := c.evalArgs(ctx, f, call, fn.Sig.Params)
		c.bindArgs(ctx, call, fn.Name, fn.Sig.Params, actuals)
	}

	c.info.Callees[call] = fn
	target.Sig = fn.Sig
	c.info.Targets[call] = target
	return fn.Sig.Result
}

// ====== Builtins ======

func (c *Checker) builtin(ctx context.Context, f *funcCtx, call *ast.Call, name string) types.Type {
	c.info.Builtins[call] = name
	switch name {
	case BuiltinPrint:
		for _, a := range call.Args {
			t := c.expr(ctx, f, a, nil)
			if types.IsUntyped(t) {
				t = types.Default(t)
				c.settle(a, t)
			}
			c.printable(ctx, f, a, t)
		}
		for _, kw := range call.Keywords {
			if kw.Name != "file" {
				c.errorf(diagnostic.ArgumentError, kw.Span, "print() got an unexpected keyword argument %s", kw.Name)
				c.expr(ctx, f, kw.Value, nil)
				continue
			}
			kt := c.expr(ctx, f, kw.Value, types.Int)
			c.bind(ctx, types.Int, kw.Value, kt, kw.Value.GetSpan())
		}
		return types.Void

	case BuiltinLen:
		if len(call.Args) != 1 || len(call.Keywords) > 0 {
			c.errorf(diagnostic.ArgumentError, call.Span, "len() expects 1 argument, got %d", len(call.Args)+len(call.Keywords))
			c.evalArgs(ctx, f, call, nil)
			return types.Int
		}
		a := call.Args[0]
		t := c.expr(ctx, f, a, nil)
		if types.IsUnresolved(t) {
			return types.Int
		}
		if !sized(types.Deref(t)) {
			c.errorf(diagnostic.TypeMismatchError, a.GetSpan(), "object of type %s has no len()", t)
		}
		c.borrowArg(a, t)
		return types.Int

	case BuiltinRange:
		if len(call.Args) < 1 || len(call.Args) > 2 {
			c.errorf(diagnostic.ArgumentError, call.Span, "range() expects 1 or 2 arguments, got %d", len(call.Args))
		}
		actuals, _ := c.evalArgs(ctx, f, call, []types.Type{types.Int, types.Int})
		for i, a := range call.Args {
			c.bind(ctx, types.Int, a, actuals[i], a.GetSpan())
		}
		return c.instance(ctx, f, call.Span, "range")
	}
	return c.fresh()
}

// borrowArg marks an owner passed to a builtin as borrowed for the call.
func (c *Checker) borrowArg(a ast.Expr, t types.Type) {
	if _, ref := t.(*types.Reference); !ref && !types.IsCopy(t) {
		c.info.Convs[a] = types.ConvBorrow
	}
}

func sized(t types.Type) bool {
	if types.Equal(t, types.Str) {
		return true
	}
	inst, ok := t.(*types.Instance)
	if !ok {
		return false
	}
	switch inst.Name {
	case "list", "dict", "set", "array", "tuple":
		return true
	}
	return false
}

// printable accepts primitives and classes with a __str__ method
// returning str.
func (c *Checker) printable(ctx context.Context, f *funcCtx, a ast.Expr, t types.Type) {
	if types.IsUnresolved(t) {
		return
	}
	base := types.Deref(t)
	if p, ok := base.(*types.Primitive); ok && p.Group != types.GroupVoid && p.Group != types.GroupNone {
		c.borrowArg(a, t)
		return
	}
	if cls, ok := c.classFor(ctx, f.scope, base); ok {
		if entry, ok := cls.methods["__str__"]; ok && len(entry.method.Sig.Params) == 0 && types.Equal(entry.method.Sig.Result, types.Str) {
			fn, err := c.methodFunction(ctx, entry, nil)
			if err != nil {
				c.report(err, a.GetSpan())
			}
			if fn != nil {
				c.info.StrMethods[a] = fn
			}
			c.borrowArg(a, t)
			return
		}
	}
	c.errorf(diagnostic.TypeMismatchError, a.GetSpan(), "cannot print %s: it is neither a primitive nor a class with __str__", t)
}
