package checker

import (
	"context"
	"strings"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/diagnostic"
	"github.com/ragazzi-robotics/ragaz/internal/position"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// funcCtx is the state of checking one function body.
type funcCtx struct {
	fn    *Function
	scope *symbols.Scope
	// narrow maps nullable symbols to their unwrapped type inside an
	// "is not None" branch.
	narrow map[*symbols.Symbol]types.Type
	// untyped lists expressions recorded with an untyped literal type;
	// the ones still untyped at the end default to int or float.
	untyped  []ast.Expr
	locals   []*symbols.Symbol
	handlers int
	// loops counts the loops enclosing the statement being checked.
	loops int
}

func (f *funcCtx) open(name string) *symbols.Scope {
	f.scope = symbols.NewScope(f.scope, symbols.ScopeBlock, name)
	return f.scope
}

func (f *funcCtx) close() {
	f.scope = f.scope.Parent()
}

// checkFunction checks the body of fn once.
func (c *Checker) checkFunction(ctx context.Context, fn *Function) {
	if fn.checked {
		return
	}
	fn.checked = true
	c.info.Functions = append(c.info.Functions, fn)
	if fn.Extern {
		return
	}

	c.log.Debug("check function", "name", fn.Name)
	f := &funcCtx{fn: fn, scope: fn.Scope, narrow: make(map[*symbols.Symbol]types.Type)}
	c.stmts(ctx, f, fn.Def.Body)
	c.finish(f)
}

func (c *Checker) finish(f *funcCtx) {
	for _, e := range f.untyped {
		if t := c.info.Types[e]; types.IsUntyped(t) {
			c.settle(e, types.Default(t))
		}
	}
	if !c.opts.WarnUnused {
		return
	}
	for _, sym := range f.locals {
		if !sym.Used && !strings.HasPrefix(sym.Name, "_") {
			c.errorf(diagnostic.UnusedVariableWarning, sym.DeclSpan, "variable %s is declared but never used", sym.Name)
		}
	}
}

func (c *Checker) stmts(ctx context.Context, f *funcCtx, list []ast.Stmt) {
	for _, s := range list {
		c.stmt(ctx, f, s)
	}
}

// declareLocal binds a new variable in the current block.
func (c *Checker) declareLocal(f *funcCtx, decl ast.Node, name string, t types.Type, mutable bool, span position.Span) *symbols.Symbol {
	if !span.IsValid() {
		span = decl.GetSpan()
	}
	sym := f.scope.Declare(&symbols.Symbol{
		Name:     name,
		Kind:     symbols.SymbolVariable,
		Type:     t,
		Mutable:  mutable,
		Decl:     decl,
		DeclSpan: span,
	})
	c.info.Defs[decl] = sym
	f.locals = append(f.locals, sym)
	return sym
}

// inferred returns the type a variable initialized by e takes.
func (c *Checker) inferred(e ast.Expr, t types.Type) types.Type {
	switch {
	case types.IsUntyped(t):
		t = types.Default(t)
		c.settle(e, t)
	case types.Equal(t, types.None):
		c.errorf(diagnostic.AmbiguousInferenceError, e.GetSpan(), "cannot infer a type from None; annotate the variable")
		return c.fresh()
	case types.IsVoid(t):
		c.errorf(diagnostic.TypeMismatchError, e.GetSpan(), "%s has no value", e)
		return c.fresh()
	}
	return t
}

func (c *Checker) stmt(ctx context.Context, f *funcCtx, s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VarDecl:
		var declared types.Type
		if s.Type != nil {
			declared = c.resolve(ctx, f.scope, s.Type)
		}
		t := declared
		switch {
		case s.Value != nil:
			vt := c.expr(ctx, f, s.Value, declared)
			if declared != nil {
				c.bind(ctx, declared, s.Value, vt, s.Value.GetSpan())
			} else {
				t = c.inferred(s.Value, vt)
			}
		case declared == nil:
			c.errorf(diagnostic.AmbiguousInferenceError, s.Span, "cannot infer the type of %s without a value or annotation", s.Name)
			t = c.fresh()
		}
		c.declareLocal(f, s, s.Name, t, s.Mutable, s.NameSpan)

	case *ast.Assign:
		if s.Op != "" {
			c.augAssign(ctx, f, s)
			return
		}
		c.assign(ctx, f, s)

	case *ast.ExprStmt:
		c.expr(ctx, f, s.X, nil)

	case *ast.Return:
		c.ret(ctx, f, s)

	case *ast.If:
		ct := c.expr(ctx, f, s.Cond, types.Bool)
		c.bind(ctx, types.Bool, s.Cond, ct, s.Cond.GetSpan())
		sym, inner, positive := c.narrowing(s.Cond)

		c.info.Scopes[s] = f.open("if")
		restore := f.narrowTo(sym, inner, positive)
		c.stmts(ctx, f, s.Body)
		restore()
		f.close()

		if len(s.Else) > 0 {
			c.info.ElseScopes[s] = f.open("else")
			restore := f.narrowTo(sym, inner, !positive)
			c.stmts(ctx, f, s.Else)
			restore()
			f.close()
		}

	case *ast.While:
		ct := c.expr(ctx, f, s.Cond, types.Bool)
		c.bind(ctx, types.Bool, s.Cond, ct, s.Cond.GetSpan())
		c.info.Scopes[s] = f.open("while")
		f.loops++
		c.stmts(ctx, f, s.Body)
		f.loops--
		f.close()

	case *ast.For:
		it := c.expr(ctx, f, s.Iter, nil)
		elem := c.elementType(it)
		if elem == nil {
			if !types.IsUnresolved(it) {
				c.errorf(diagnostic.TypeMismatchError, s.Iter.GetSpan(), "cannot iterate over %s", it)
			}
			elem = c.fresh()
		}
		if _, ref := it.(*types.Reference); !ref && !types.IsCopy(it) {
			c.info.Convs[s.Iter] = types.ConvBorrow
		}
		c.info.Scopes[s] = f.open("for")
		c.declareLocal(f, s, s.Var, elem, false, s.VarSpan)
		f.loops++
		c.stmts(ctx, f, s.Body)
		f.loops--
		f.close()

	case *ast.Break:
		if f.loops == 0 {
			c.errorf(diagnostic.InvalidJumpError, s.Span, "break outside a loop")
		}

	case *ast.Continue:
		if f.loops == 0 {
			c.errorf(diagnostic.InvalidJumpError, s.Span, "continue outside a loop")
		}

	case *ast.Pass:

	case *ast.Try:
		c.info.Scopes[s] = f.open("try")
		c.stmts(ctx, f, s.Body)
		f.close()
		for _, h := range s.Handlers {
			c.handler(ctx, f, h)
		}

	case *ast.Raise:
		c.raise(ctx, f, s)

	case *ast.Del:
		sym := f.scope.Lookup(s.Target.ID)
		if sym == nil || !sym.Kind.IsValue() {
			c.errorf(diagnostic.UnknownNameError, s.Target.Span, "undefined variable %s", s.Target.ID)
			return
		}
		sym.Used = true
		c.info.Uses[s.Target] = sym
		c.info.Types[s.Target] = sym.Type
		delete(f.narrow, sym)

	case *ast.FunctionDef, *ast.ClassDef, *ast.TraitDef, *ast.AliasDef:
		c.errorf(diagnostic.TypeMismatchError, s.GetSpan(), "definitions are only allowed at module level")
	}
}

func (c *Checker) assign(ctx context.Context, f *funcCtx, s *ast.Assign) {
	switch t := s.Target.(type) {
	case *ast.Name:
		if sym := f.scope.Lookup(t.ID); sym != nil && sym.Kind.IsValue() {
			vt := c.expr(ctx, f, s.Value, sym.Type)
			c.bind(ctx, sym.Type, s.Value, vt, s.Value.GetSpan())
			c.info.Uses[t] = sym
			c.info.Types[t] = sym.Type
			delete(f.narrow, sym)
			return
		}
		// Assigning an unbound name declares it.
		vt := c.expr(ctx, f, s.Value, nil)
		st := c.inferred(s.Value, vt)
		sym := c.declareLocal(f, t, t.ID, st, false, t.Span)
		c.info.Uses[t] = sym
		c.info.Types[t] = st

	case *ast.Attribute, *ast.Index:
		tt := c.expr(ctx, f, t, nil)
		vt := c.expr(ctx, f, s.Value, tt)
		c.bind(ctx, tt, s.Value, vt, s.Value.GetSpan())

	default:
		c.errorf(diagnostic.TypeMismatchError, s.Target.GetSpan(), "cannot assign to %s", s.Target)
		c.expr(ctx, f, s.Value, nil)
	}
}

func (c *Checker) augAssign(ctx context.Context, f *funcCtx, s *ast.Assign) {
	op := strings.TrimSuffix(s.Op, "=")
	switch s.Target.(type) {
	case *ast.Name, *ast.Attribute, *ast.Index:
	default:
		c.errorf(diagnostic.TypeMismatchError, s.Target.GetSpan(), "cannot assign to %s", s.Target)
		return
	}
	tt := c.expr(ctx, f, s.Target, nil)
	vt := c.expr(ctx, f, s.Value, tt)
	rt := c.arith(op, s.Target, s.Value, tt, vt, s.Span)
	if types.IsUnresolved(rt) || types.IsUnresolved(tt) {
		return
	}
	if _, err := types.Convert(tt, rt, c.opts.AutoCast, types.SiteAssign, c.registry); err != nil {
		c.report(err, s.Span)
	}
}

func (c *Checker) ret(ctx context.Context, f *funcCtx, s *ast.Return) {
	if f.fn.TopLevel {
		c.errorf(diagnostic.TypeMismatchError, s.Span, "return outside of a function")
		return
	}
	res := f.fn.Sig.Result
	if s.Value == nil {
		if !types.IsVoid(res) {
			c.errorf(diagnostic.TypeMismatchError, s.Span, "missing return value: %s returns %s", f.fn.Name, res)
		}
		return
	}
	vt := c.expr(ctx, f, s.Value, res)
	if types.IsVoid(res) {
		if !types.IsUnresolved(vt) {
			c.errorf(diagnostic.TypeMismatchError, s.Value.GetSpan(), "%s returns void, not %s", f.fn.Name, vt)
		}
		return
	}
	c.bind(ctx, res, s.Value, vt, s.Value.GetSpan())
}

func (c *Checker) handler(ctx context.Context, f *funcCtx, h *ast.ExceptClause) {
	var ht types.Type = &types.Trait{Name: ExceptionTrait}
	if h.Type != nil {
		ht = c.resolve(ctx, f.scope, h.Type)
		if !c.isException(ht) {
			c.errorf(diagnostic.InvalidExceptTypeError, h.Type.GetSpan(), "%s is not an exception type; it must implement %s", ht, ExceptionTrait)
		}
	}
	c.info.Excepts[h] = ht

	c.info.Scopes[h] = f.open("except")
	if h.Name != "" {
		c.declareLocal(f, h, h.Name, ht, false, h.NameSpan)
	}
	f.handlers++
	c.stmts(ctx, f, h.Body)
	f.handlers--
	f.close()
}

func (c *Checker) raise(ctx context.Context, f *funcCtx, s *ast.Raise) {
	if f.fn.TopLevel {
		c.errorf(diagnostic.InvalidRaiseError, s.Span, "raise outside of a function")
	}
	if s.Value == nil {
		if f.handlers == 0 {
			c.errorf(diagnostic.InvalidRaiseError, s.Span, "bare raise outside of an except clause")
		}
		return
	}
	vt := c.expr(ctx, f, s.Value, nil)
	if !c.isException(types.Deref(vt)) {
		c.errorf(diagnostic.InvalidExceptTypeError, s.Value.GetSpan(), "cannot raise %s: exceptions must implement %s", vt, ExceptionTrait)
	}
}

// narrowing recognizes "x is None" and "x is not None" on a nullable
// variable.
func (c *Checker) narrowing(cond ast.Expr) (*symbols.Symbol, types.Type, bool) {
	b, ok := cond.(*ast.Binary)
	if !ok || (b.Op != "is" && b.Op != "is not") {
		return nil, nil, false
	}
	name, ok := b.X.(*ast.Name)
	if _, none := b.Y.(*ast.NoneLit); !ok || !none {
		return nil, nil, false
	}
	sym := c.info.Uses[name]
	if sym == nil || !sym.Kind.IsValue() {
		return nil, nil, false
	}
	n, ok := sym.Type.(*types.Nullable)
	if !ok {
		return nil, nil, false
	}
	return sym, n.Inner, b.Op == "is not"
}

// narrowTo narrows sym to inner when apply holds and returns the undo.
func (f *funcCtx) narrowTo(sym *symbols.Symbol, inner types.Type, apply bool) func() {
	if sym == nil || !apply {
		return func() {}
	}
	prev, had := f.narrow[sym]
	f.narrow[sym] = inner
	return func() {
		if had {
			f.narrow[sym] = prev
		} else {
			delete(f.narrow, sym)
		}
	}
}

// elementType returns the type a for loop binds when iterating over t.
func (c *Checker) elementType(t types.Type) types.Type {
	base := types.Deref(t)
	if types.Equal(base, types.Str) {
		return types.Str
	}
	inst, ok := base.(*types.Instance)
	if !ok {
		return nil
	}
	switch inst.Name {
	case "list", "set", "array", "dict":
		if len(inst.Args) > 0 {
			return inst.Args[0]
		}
	case "range":
		return types.Int
	}
	return nil
}
