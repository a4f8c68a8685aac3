package checker

import (
	"context"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/diagnostic"
	"github.com/ragazzi-robotics/ragaz/internal/generics"
	"github.com/ragazzi-robotics/ragaz/internal/position"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// ====== Expressions ======

// expr checks e and records its type. expected, when set, guides literal
// and generic inference; the caller still binds the result.
func (c *Checker) expr(ctx context.Context, f *funcCtx, e ast.Expr, expected types.Type) types.Type {
	t := c.exprType(ctx, f, e, expected)
	if t == nil {
		t = c.fresh()
	}
	c.info.Types[e] = t
	if types.IsUntyped(t) {
		f.untyped = append(f.untyped, e)
	}
	return t
}

func (c *Checker) exprType(ctx context.Context, f *funcCtx, e ast.Expr, expected types.Type) types.Type {
	switch e := e.(type) {
	case *ast.Name:
		return c.name(f, e)
	case *ast.IntLit:
		return types.AnyInt
	case *ast.FloatLit:
		return types.AnyFloat
	case *ast.StrLit:
		return types.Str
	case *ast.BoolLit:
		return types.Bool
	case *ast.NoneLit:
		return types.None
	case *ast.Call:
		return c.call(ctx, f, e, expected)
	case *ast.TypeApply:
		return c.funcValue(ctx, f, e)
	case *ast.Attribute:
		return c.attribute(ctx, f, e)
	case *ast.Index:
		return c.index(ctx, f, e)
	case *ast.RefExpr:
		return c.ref(ctx, f, e, expected)
	case *ast.Binary:
		return c.binary(ctx, f, e)
	case *ast.Unary:
		return c.unary(ctx, f, e, expected)
	case *ast.TupleLit:
		return c.tuple(ctx, f, e, expected)
	case *ast.ListLit:
		return c.collection(ctx, f, "list", e.Elts, e.Span, expected)
	case *ast.SetLit:
		return c.collection(ctx, f, "set", e.Elts, e.Span, expected)
	case *ast.DictLit:
		return c.dict(ctx, f, e, expected)
	case *ast.Cast:
		return c.cast(ctx, f, e)
	}
	c.errorf(diagnostic.TypeMismatchError, e.GetSpan(), "unsupported expression %s", e)
	return c.fresh()
}

func (c *Checker) name(f *funcCtx, e *ast.Name) types.Type {
	sym := f.scope.Lookup(e.ID)
	if sym == nil {
		c.errorf(diagnostic.UnknownNameError, e.Span, "undefined name %s", e.ID)
		return c.fresh()
	}
	c.info.Uses[e] = sym

	switch sym.Kind {
	case symbols.SymbolVariable, symbols.SymbolParameter:
		sym.Used = true
		if inner, ok := f.narrow[sym]; ok {
			c.info.Narrowed[e] = inner
			return inner
		}
		return sym.Type
	case symbols.SymbolFunction:
		if _, generic := c.funcTemplates[sym]; generic {
			c.errorf(diagnostic.AmbiguousInferenceError, e.Span, "generic function %s needs explicit type arguments to be used as a value", e.ID)
			return c.fresh()
		}
		fn, ok := c.functions[sym]
		if !ok {
			return c.fresh()
		}
		c.info.FuncValues[e] = fn
		return fn.Sig
	}
	c.errorf(diagnostic.TypeMismatchError, e.Span, "%s %s is not a value", sym.Kind, e.ID)
	return c.fresh()
}

// funcValue checks an explicit instantiation used as a function value.
func (c *Checker) funcValue(ctx context.Context, f *funcCtx, e *ast.TypeApply) types.Type {
	name, ok := e.X.(*ast.Name)
	var tmpl *generics.Template
	if ok {
		if sym := f.scope.Lookup(name.ID); sym != nil {
			c.info.Uses[name] = sym
			tmpl = c.funcTemplates[sym]
		}
	}
	if tmpl == nil {
		c.errorf(diagnostic.TypeMismatchError, e.Span, "%s is not a generic function", e.X)
		return c.fresh()
	}
	args, ok := c.typeArgs(ctx, f, e.TypeArgs)
	if !ok {
		return c.fresh()
	}
	spec, err := c.engine.Instantiate(ctx, tmpl, args)
	if err != nil {
		c.report(err, e.Span)
	}
	if spec == nil || spec.Data == nil {
		return c.fresh()
	}
	fn := spec.Data.(*Function)
	c.info.FuncValues[e] = fn
	return fn.Sig
}

func (c *Checker) typeArgs(ctx context.Context, f *funcCtx, exprs []ast.TypeExpr) ([]types.Type, bool) {
	out := make([]types.Type, len(exprs))
	ok := true
	for i, x := range exprs {
		out[i] = c.resolve(ctx, f.scope, x)
		if types.IsUnresolved(out[i]) {
			ok = false
		}
	}
	return out, ok
}

func (c *Checker) attribute(ctx context.Context, f *funcCtx, e *ast.Attribute) types.Type {
	xt := c.expr(ctx, f, e.X, nil)
	if types.IsUnresolved(xt) {
		return xt
	}
	base := types.Deref(xt)
	if _, ok := base.(*types.Nullable); ok {
		c.errorf(diagnostic.TypeMismatchError, e.Span, "%s may be None; compare it with None first", e.X)
		return c.fresh()
	}
	if cls, ok := c.classFor(ctx, f.scope, base); ok {
		if fld, ok := cls.Field(e.Name); ok {
			return fld.Type
		}
		if _, ok := cls.methods[e.Name]; ok {
			c.errorf(diagnostic.TypeMismatchError, e.Span, "method %s.%s must be called", cls.Name, e.Name)
			return c.fresh()
		}
	}
	c.errorf(diagnostic.UnknownNameError, e.Span, "%s has no attribute %s", base, e.Name)
	return c.fresh()
}

func (c *Checker) index(ctx context.Context, f *funcCtx, e *ast.Index) types.Type {
	xt := c.expr(ctx, f, e.X, nil)
	if types.IsUnresolved(xt) {
		c.expr(ctx, f, e.Index, nil)
		return xt
	}
	base := types.Deref(xt)

	if types.Equal(base, types.Str) {
		c.bindIndex(ctx, f, types.Int, e.Index)
		return types.Str
	}
	inst, _ := base.(*types.Instance)
	if inst != nil {
		switch inst.Name {
		case "list", "array":
			c.bindIndex(ctx, f, types.Int, e.Index)
			return inst.Args[0]
		case "dict":
			c.bindIndex(ctx, f, inst.Args[0], e.Index)
			return inst.Args[1]
		case "tuple":
			lit, ok := e.Index.(*ast.IntLit)
			if !ok || lit.Value < 0 || int(lit.Value) >= len(inst.Args) {
				c.expr(ctx, f, e.Index, nil)
				c.errorf(diagnostic.TypeMismatchError, e.Index.GetSpan(), "tuple index must be a constant between 0 and %d", len(inst.Args)-1)
				return c.fresh()
			}
			c.info.Types[e.Index] = types.Int
			return inst.Args[lit.Value]
		}
	}
	c.expr(ctx, f, e.Index, nil)
	c.errorf(diagnostic.TypeMismatchError, e.Span, "cannot index %s", xt)
	return c.fresh()
}

func (c *Checker) bindIndex(ctx context.Context, f *funcCtx, want types.Type, x ast.Expr) {
	it := c.expr(ctx, f, x, want)
	c.bind(ctx, want, x, it, x.GetSpan())
}

func (c *Checker) ref(ctx context.Context, f *funcCtx, e *ast.RefExpr, expected types.Type) types.Type {
	var want types.Type
	if r, ok := expected.(*types.Reference); ok {
		want = r.Target
	}
	xt := c.expr(ctx, f, e.X, want)
	switch e.X.(type) {
	case *ast.Name, *ast.Attribute, *ast.Index:
	default:
		c.errorf(diagnostic.TypeMismatchError, e.Span, "cannot take a reference to %s", e.X)
		return c.fresh()
	}
	if types.IsUnresolved(xt) {
		return xt
	}
	return types.RefTo(xt, e.Mutable)
}

var comparisons = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

var bitwise = map[string]bool{"&": true, "|": true, "^": true, "<<": true, ">>": true}

func (c *Checker) binary(ctx context.Context, f *funcCtx, e *ast.Binary) types.Type {
	switch {
	case e.Op == "and" || e.Op == "or":
		for _, x := range []ast.Expr{e.X, e.Y} {
			t := c.expr(ctx, f, x, types.Bool)
			c.bind(ctx, types.Bool, x, t, x.GetSpan())
		}
		return types.Bool

	case e.Op == "is" || e.Op == "is not":
		xt := c.expr(ctx, f, e.X, nil)
		yt := c.expr(ctx, f, e.Y, nil)
		if !nullish(xt) && !nullish(yt) {
			c.errorf(diagnostic.TypeMismatchError, e.Span, "%q compares a nullable value with None; got %s and %s", e.Op, xt, yt)
		}
		return types.Bool

	case comparisons[e.Op]:
		xt := c.expr(ctx, f, e.X, nil)
		yt := c.expr(ctx, f, e.Y, operandHint(xt))
		if types.IsUnresolved(xt) || types.IsUnresolved(yt) {
			return types.Bool
		}
		if types.IsNumeric(xt) && types.IsNumeric(yt) {
			w := c.arith(e.Op, e.X, e.Y, xt, yt, e.Span)
			if types.IsUntyped(w) {
				c.settle(e.X, types.Default(w))
				c.settle(e.Y, types.Default(w))
			}
			return types.Bool
		}
		if !types.Equal(types.Deref(xt), types.Deref(yt)) {
			c.errorf(diagnostic.TypeMismatchError, e.Span, "cannot compare %s with %s", xt, yt)
		}
		return types.Bool
	}

	xt := c.expr(ctx, f, e.X, nil)
	yt := c.expr(ctx, f, e.Y, operandHint(xt))
	return c.arith(e.Op, e.X, e.Y, xt, yt, e.Span)
}

func nullish(t types.Type) bool {
	if _, ok := t.(*types.Nullable); ok {
		return true
	}
	return types.Equal(t, types.None) || types.IsUnresolved(t)
}

func operandHint(t types.Type) types.Type {
	if types.IsUntyped(t) {
		return nil
	}
	return t
}

// arith decides the result of a numeric or string operator and settles
// untyped operands to the operation type.
func (c *Checker) arith(op string, x, y ast.Expr, xt, yt types.Type, span position.Span) types.Type {
	if types.IsUnresolved(xt) {
		return xt
	}
	if types.IsUnresolved(yt) {
		return yt
	}
	xp, xok := xt.(*types.Primitive)
	yp, yok := yt.(*types.Primitive)
	if xok && yok && types.IsNumeric(xp) && types.IsNumeric(yp) {
		if bitwise[op] && (!types.IsInteger(xp) || !types.IsInteger(yp)) {
			c.errorf(diagnostic.TypeMismatchError, span, "operator %s needs integer operands, got %s and %s", op, xt, yt)
			return c.fresh()
		}
		w, err := types.Arithmetic(xp, yp, c.opts.AutoCast)
		if err != nil {
			c.report(err, span)
			return c.fresh()
		}
		if !types.IsUntyped(w) {
			c.settle(x, w)
			c.settle(y, w)
		}
		return w
	}
	if op == "+" && types.Equal(xt, types.Str) && types.Equal(yt, types.Str) {
		return types.Str
	}
	c.errorf(diagnostic.TypeMismatchError, span, "unsupported operand types for %s: %s and %s", op, xt, yt)
	return c.fresh()
}

func (c *Checker) unary(ctx context.Context, f *funcCtx, e *ast.Unary, expected types.Type) types.Type {
	if e.Op == "not" {
		t := c.expr(ctx, f, e.X, types.Bool)
		c.bind(ctx, types.Bool, e.X, t, e.X.GetSpan())
		return types.Bool
	}
	t := c.expr(ctx, f, e.X, expected)
	if types.IsUnresolved(t) {
		return t
	}
	ok := types.IsNumeric(t)
	if e.Op == "~" {
		ok = types.IsInteger(t)
	}
	if !ok {
		c.errorf(diagnostic.TypeMismatchError, e.Span, "bad operand type for unary %s: %s", e.Op, t)
		return c.fresh()
	}
	return t
}

// expectedInstance unwraps expected to an instance named name.
func expectedInstance(expected types.Type, name string) *types.Instance {
	if n, ok := expected.(*types.Nullable); ok {
		expected = n.Inner
	}
	inst, ok := types.Deref(expected).(*types.Instance)
	if !ok || inst.Name != name {
		return nil
	}
	return inst
}

func (c *Checker) tuple(ctx context.Context, f *funcCtx, e *ast.TupleLit, expected types.Type) types.Type {
	if len(e.Elts) == 0 || len(e.Elts) > types.MaxTupleElements {
		c.errorf(diagnostic.ArityError, e.Span, "a tuple holds 1 to %d elements, got %d", types.MaxTupleElements, len(e.Elts))
		return c.fresh()
	}
	want := expectedInstance(expected, "tuple")
	if want != nil && len(want.Args) != len(e.Elts) {
		want = nil
	}
	elems := make([]types.Type, len(e.Elts))
	for i, x := range e.Elts {
		var hint types.Type
		if want != nil {
			hint = want.Args[i]
		}
		t := c.expr(ctx, f, x, hint)
		if hint != nil {
			c.bind(ctx, hint, x, t, x.GetSpan())
			t = hint
		} else {
			t = c.inferred(x, t)
		}
		elems[i] = t
	}
	return types.Tuple(elems...)
}

func (c *Checker) collection(ctx context.Context, f *funcCtx, name string, elts []ast.Expr, span position.Span, expected types.Type) types.Type {
	var elem types.Type
	if want := expectedInstance(expected, name); want != nil && len(want.Args) == 1 {
		elem = want.Args[0]
	}
	if elem == nil && len(elts) == 0 {
		c.errorf(diagnostic.AmbiguousInferenceError, span, "cannot infer the element type of an empty %s; annotate it", name)
		return c.fresh()
	}
	for _, x := range elts {
		t := c.expr(ctx, f, x, elem)
		if types.IsUnresolved(t) {
			continue
		}
		if elem == nil {
			elem = c.inferred(x, t)
			continue
		}
		c.bind(ctx, elem, x, t, x.GetSpan())
	}
	if elem == nil {
		return c.fresh()
	}
	return c.instance(ctx, f, span, name, elem)
}

func (c *Checker) dict(ctx context.Context, f *funcCtx, e *ast.DictLit, expected types.Type) types.Type {
	var key, val types.Type
	if want := expectedInstance(expected, "dict"); want != nil && len(want.Args) == 2 {
		key, val = want.Args[0], want.Args[1]
	}
	if key == nil && len(e.Keys) == 0 {
		c.errorf(diagnostic.AmbiguousInferenceError, e.Span, "cannot infer the key and value types of an empty dict; annotate it")
		return c.fresh()
	}
	for i := range e.Keys {
		key = c.element(ctx, f, e.Keys[i], key)
		val = c.element(ctx, f, e.Values[i], val)
	}
	if key == nil || val == nil {
		return c.fresh()
	}
	return c.instance(ctx, f, e.Span, "dict", key, val)
}

// element checks one collection element against want, or infers want
// from it.
func (c *Checker) element(ctx context.Context, f *funcCtx, x ast.Expr, want types.Type) types.Type {
	t := c.expr(ctx, f, x, want)
	if types.IsUnresolved(t) {
		return want
	}
	if want == nil {
		return c.inferred(x, t)
	}
	c.bind(ctx, want, x, t, x.GetSpan())
	return want
}

// instance builds a builtin container type and instantiates its class.
func (c *Checker) instance(ctx context.Context, f *funcCtx, span position.Span, name string, args ...types.Type) types.Type {
	t := &types.Instance{Name: name, Args: args}
	for _, a := range args {
		if types.IsUnresolved(a) {
			return t
		}
	}
	if err := c.realize(ctx, f.scope, t); err != nil {
		c.report(err, span)
	}
	return t
}

func (c *Checker) cast(ctx context.Context, f *funcCtx, e *ast.Cast) types.Type {
	to := c.resolve(ctx, f.scope, e.Type)
	xt := c.expr(ctx, f, e.X, nil)
	if types.IsUnresolved(to) || types.IsUnresolved(xt) {
		return to
	}
	if types.IsUntyped(xt) {
		if types.IsNumeric(to) {
			c.settle(e.X, to)
			return to
		}
		c.settle(e.X, types.Default(xt))
		xt = types.Default(xt)
	}
	switch {
	case types.Equal(xt, to):
	case types.IsNumeric(xt) && types.IsNumeric(to):
	case types.IsInteger(to) && types.Equal(xt, types.Bool):
	default:
		c.errorf(diagnostic.TypeMismatchError, e.Span, "cannot cast %s to %s", xt, to)
	}
	return to
}

// ====== Binding ======

// settle fixes the type of an untyped literal expression to t, or to its
// default when t is not a typed number.
func (c *Checker) settle(e ast.Expr, t types.Type) {
	cur, ok := c.info.Types[e]
	if !ok || !types.IsUntyped(cur) {
		return
	}
	if !types.IsNumeric(t) || types.IsUntyped(t) {
		t = types.Default(cur)
	}
	c.info.Types[e] = t
	switch e := e.(type) {
	case *ast.Binary:
		if !comparisons[e.Op] {
			c.settle(e.X, t)
			c.settle(e.Y, t)
		}
	case *ast.Unary:
		c.settle(e.X, t)
	}
}

// convert binds a value of type from, computed by e, to a location of
// type to, recording the conversion and any dispatch table it needs.
func (c *Checker) convert(ctx context.Context, to types.Type, e ast.Expr, from types.Type, site types.Site) error {
	conv, err := types.Convert(to, from, c.opts.AutoCast, site, c.registry)
	if err != nil {
		return err
	}
	if types.IsUntyped(from) {
		target := to
		if n, ok := to.(*types.Nullable); ok {
			target = n.Inner
		}
		c.settle(e, target)
		if conv == types.ConvNumeric {
			conv = types.ConvIdentity
		}
	}
	if conv == types.ConvTrait {
		table, ok := c.table(ctx, to.(*types.Trait), types.Deref(from), e.GetSpan())
		if !ok {
			return nil
		}
		c.info.Tables[e] = table
	}
	if conv != types.ConvIdentity {
		c.info.Convs[e] = conv
	}
	return nil
}

// bind converts at an assignment site and reports failures at span.
func (c *Checker) bind(ctx context.Context, to types.Type, e ast.Expr, from types.Type, span position.Span) bool {
	if err := c.convert(ctx, to, e, from, types.SiteAssign); err != nil {
		c.report(err, span)
		return false
	}
	return true
}
