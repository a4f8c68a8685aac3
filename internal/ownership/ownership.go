// Package ownership checks moves, borrows and mutability over the
// control-flow graph of each checked function.
//
// Every local symbol is Uninitialized, Owned or Moved at each program
// point; an Owned symbol with active borrows is Borrowed. Borrows bound to
// a variable end when that variable's scope exits, and temporary borrows
// end with the call or statement that created them. Plan reuses the same
// states to tell lowering where owned values die.
package ownership

import (
	"fmt"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/checker"
	"github.com/ragazzi-robotics/ragaz/internal/config"
	"github.com/ragazzi-robotics/ragaz/internal/diagnostic"
	"github.com/ragazzi-robotics/ragaz/internal/flow"
	"github.com/ragazzi-robotics/ragaz/internal/position"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

type diagKey struct {
	kind diagnostic.Kind
	span position.Span
	msg  string
}

type analyzer struct {
	fn   *checker.Function
	info *checker.Info
	opts config.Options

	diags  []*diagnostic.Diagnostic
	seen   map[diagKey]bool
	report bool

	nextID int
	temps  []int
	// exempt is positive while evaluating arguments of extern calls.
	exempt int
	// plan collects implicit drops during the reporting replay.
	plan *Drops
}

// Check analyzes fn and returns its violations in program order. Extern
// functions have no body and are never checked.
func Check(fn *checker.Function, info *checker.Info, opts config.Options) []*diagnostic.Diagnostic {
	if fn.Extern || fn.Def == nil {
		return nil
	}
	return inspect(fn, info, opts, nil)
}

func inspect(fn *checker.Function, info *checker.Info, opts config.Options, plan *Drops) []*diagnostic.Diagnostic {
	a := &analyzer{fn: fn, info: info, opts: opts, seen: make(map[diagKey]bool), plan: plan}
	g := flow.Build(fn, info)

	in := map[*flow.Block]*env{g.Entry: newEnv()}
	work := []*flow.Block{g.Entry}
	queued := map[*flow.Block]bool{g.Entry: true}
	for len(work) > 0 {
		b := work[0]
		work = work[1:]
		queued[b] = false

		out := a.block(b, in[b].clone())
		for _, succ := range b.Succs {
			cur, ok := in[succ]
			switch {
			case !ok:
				in[succ] = out.clone()
			case !cur.join(out):
				continue
			}
			if !queued[succ] {
				queued[succ] = true
				work = append(work, succ)
			}
		}
	}

	// States are stable; replay each block once to report.
	a.report = true
	for _, b := range g.Reachable() {
		if st, ok := in[b]; ok {
			a.block(b, st.clone())
		}
	}
	return a.diags
}

func (a *analyzer) errorf(kind diagnostic.Kind, span position.Span, format string, args ...interface{}) *diagnostic.Diagnostic {
	d := diagnostic.New(kind, span, format, args...)
	if !a.report {
		return d
	}
	key := diagKey{kind: kind, span: span, msg: d.Message}
	if !a.seen[key] {
		a.seen[key] = true
		a.diags = append(a.diags, d)
	}
	return d
}

func (a *analyzer) block(b *flow.Block, e *env) *env {
	for _, s := range b.Steps {
		a.step(e, s)
		a.releaseTemps(e, 0)
	}
	return e
}

// ====== Steps ======

func (a *analyzer) step(e *env, s flow.Step) {
	switch s.Kind {
	case flow.StepScopeEnter:
		if s.Scope == a.fn.Scope {
			for _, p := range a.fn.Params {
				e.vars[p] = State{Kind: Owned}
			}
		}

	case flow.StepScopeExit:
		a.exit(e, s)
		for _, sym := range s.Scope.Symbols() {
			e.forget(sym)
		}

	case flow.StepBind:
		if sym := a.info.Defs[s.Node]; sym != nil {
			e.vars[sym] = State{Kind: Owned}
			e.clearFields(sym)
		}

	case flow.StepExpr:
		a.eval(e, s.Expr, false)

	case flow.StepStmt:
		a.stmt(e, s.Stmt)
	}
}

func (a *analyzer) stmt(e *env, s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VarDecl:
		var ids []int
		if s.Value != nil {
			ids = a.eval(e, s.Value, true)
		}
		sym := a.info.Defs[s]
		if sym == nil {
			return
		}
		if prev := sym.Shadowed; prev != nil && e.state(prev).Kind == Owned && a.droppable(e, prev) {
			if a.recording() {
				a.plan.Shadowed[s] = prev
			}
			e.forget(prev)
		}
		e.forget(sym)
		if s.Value != nil {
			e.vars[sym] = State{Kind: Owned}
			a.attach(e, sym, ids, s.Value.GetSpan())
		}

	case *ast.Assign:
		if s.Op != "" {
			a.augAssign(e, s)
			return
		}
		a.assign(e, s)

	case *ast.ExprStmt:
		a.eval(e, s.X, false)

	case *ast.Return:
		if s.Value == nil {
			return
		}
		for _, id := range a.eval(e, s.Value, true) {
			if i, ok := e.find(id); ok {
				b := e.borrows[i]
				a.errorf(diagnostic.BorrowConflictError, s.Value.GetSpan(), "cannot return a reference to %s: the borrow escapes the function", b.owner.Name).
					WithRelated(b.span, "%s is borrowed here", b.owner.Name)
			}
		}

	case *ast.Raise:
		if s.Value != nil {
			a.eval(e, s.Value, true)
		}

	case *ast.Del:
		sym := a.local(s.Target)
		if sym == nil || !a.usable(e, sym, s.Target.Span) {
			return
		}
		if a.borrowed(e, sym, s.Span, "cannot delete %s while it is borrowed") {
			return
		}
		e.release(func(b borrow) bool { return b.holder == sym })
		e.clearFields(sym)
		e.vars[sym] = State{Kind: Moved, At: s.Span}
	}
}

func (a *analyzer) assign(e *env, s *ast.Assign) {
	switch t := s.Target.(type) {
	case *ast.Name:
		ids := a.eval(e, s.Value, true)
		sym := a.local(t)
		if sym == nil {
			return
		}
		if a.borrowed(e, sym, t.Span, "cannot assign to %s while it is borrowed") {
			return
		}
		if a.recording() && a.droppable(e, sym) {
			a.plan.Reassigned[s] = true
		}
		e.release(func(b borrow) bool { return b.holder == sym })
		e.clearFields(sym)
		e.vars[sym] = State{Kind: Owned}
		a.attach(e, sym, ids, s.Value.GetSpan())

	case *ast.Attribute, *ast.Index:
		ids := a.eval(e, s.Value, true)
		a.store(e, t, ids, s.Value.GetSpan())

	default:
		a.eval(e, s.Value, true)
	}
}

func (a *analyzer) augAssign(e *env, s *ast.Assign) {
	a.eval(e, s.Value, false)
	switch t := s.Target.(type) {
	case *ast.Name:
		sym := a.local(t)
		if sym == nil || !a.usable(e, sym, t.Span) {
			return
		}
		if a.opts.CheckMutability && !mutableRoot(sym) {
			a.errorf(diagnostic.ImmutableMutationError, t.Span, "cannot assign to %s: it is not declared mutable", sym.Name).
				WithRelated(sym.DeclSpan, "%s is declared here", sym.Name)
		}
		a.borrowed(e, sym, t.Span, "cannot assign to %s while it is borrowed")

	case *ast.Attribute, *ast.Index:
		a.store(e, t, nil, s.Span)
	}
}

// store checks a write into an attribute or element place. Borrows in
// ids become held by the place's root.
func (a *analyzer) store(e *env, place ast.Expr, ids []int, span position.Span) {
	root := a.indices(e, place)
	sym := a.local(root)
	if sym == nil {
		return
	}
	if st := e.state(sym); st.Kind == Uninitialized || st.Kind == Moved {
		a.usable(e, sym, root.Span)
		return
	}
	if a.opts.CheckMutability && !mutableRoot(sym) {
		a.errorf(diagnostic.ImmutableMutationError, place.GetSpan(), "cannot assign to %s: %s is not mutable", place, sym.Name).
			WithRelated(sym.DeclSpan, "%s is declared here", sym.Name)
	}

	if _, ref := sym.Type.(*types.Reference); ref {
		// The place outlives the function when reached through a parameter.
		if sym.Kind == symbols.SymbolParameter {
			for _, id := range ids {
				if i, ok := e.find(id); ok {
					b := e.borrows[i]
					a.errorf(diagnostic.BorrowConflictError, span, "borrow of %s escapes the function through %s", b.owner.Name, sym.Name).
						WithRelated(b.span, "%s is borrowed here", b.owner.Name)
				}
			}
		}
		return
	}
	if a.borrowed(e, sym, place.GetSpan(), "cannot assign into %s while it is borrowed") {
		return
	}
	if attr, ok := place.(*ast.Attribute); ok && attr.X == ast.Expr(root) {
		delete(e.fields, fieldKey{sym: sym, name: attr.Name})
	}
	a.attach(e, sym, ids, span)
}

// ====== Expressions ======

// eval checks x and returns the borrows its value carries. Move-type
// names read with move set are moved out.
func (a *analyzer) eval(e *env, x ast.Expr, move bool) []int {
	switch a.info.Convs[x] {
	case types.ConvBorrow:
		return a.borrowArg(e, x, false)
	case types.ConvBorrowMut:
		return a.borrowArg(e, x, true)
	}
	return a.value(e, x, move)
}

func (a *analyzer) value(e *env, x ast.Expr, move bool) []int {
	if a.exempt > 0 {
		move = false
	}
	switch x := x.(type) {
	case *ast.Name:
		return a.use(e, x, move)

	case *ast.Attribute:
		return a.field(e, x, move)

	case *ast.Index:
		ids := a.eval(e, x.X, false)
		a.eval(e, x.Index, false)
		return ids

	case *ast.RefExpr:
		if a.exempt > 0 {
			a.value(e, x.X, false)
			return nil
		}
		if a.opts.CheckMutability && x.Mutable {
			if sym := a.local(rootName(x.X)); sym != nil && !mutableRoot(sym) {
				a.errorf(diagnostic.ImmutableMutationError, x.Span, "cannot borrow %s as mutable: it is not declared mutable", sym.Name).
					WithRelated(sym.DeclSpan, "%s is declared here", sym.Name)
			}
		}
		return a.borrowPlace(e, x.X, x.Mutable, x.Span)

	case *ast.Call:
		return a.call(e, x)

	case *ast.Binary:
		a.eval(e, x.X, false)
		a.eval(e, x.Y, false)

	case *ast.Unary:
		a.eval(e, x.X, false)

	case *ast.Cast:
		a.eval(e, x.X, move)

	case *ast.TupleLit:
		return a.elements(e, x.Elts)

	case *ast.ListLit:
		return a.elements(e, x.Elts)

	case *ast.SetLit:
		return a.elements(e, x.Elts)

	case *ast.DictLit:
		ids := a.elements(e, x.Keys)
		return append(ids, a.elements(e, x.Values)...)
	}
	return nil
}

func (a *analyzer) elements(e *env, elts []ast.Expr) []int {
	var ids []int
	for _, x := range elts {
		ids = append(ids, a.eval(e, x, true)...)
	}
	return ids
}

// borrowArg takes the implicit borrow of an owner passed to a reference
// location.
func (a *analyzer) borrowArg(e *env, x ast.Expr, mutable bool) []int {
	if a.exempt > 0 {
		a.value(e, x, false)
		return nil
	}
	if mutable && a.opts.CheckMutability {
		if sym := a.local(rootName(x)); sym != nil && !mutableRoot(sym) {
			a.errorf(diagnostic.ImmutableMutationError, x.GetSpan(), "cannot pass %s as a mutable reference: it is not declared mutable", sym.Name).
				WithRelated(sym.DeclSpan, "%s is declared here", sym.Name)
		}
	}
	return a.borrowPlace(e, x, mutable, x.GetSpan())
}

func (a *analyzer) use(e *env, n *ast.Name, move bool) []int {
	sym := a.local(n)
	if sym == nil || !a.usable(e, sym, n.Span) {
		return nil
	}
	if _, ref := sym.Type.(*types.Reference); ref {
		return a.copyHeld(e, sym)
	}
	if name, at, ok := e.movedField(sym); ok {
		a.errorf(diagnostic.UseAfterMoveError, n.Span, "use of partially moved value %s", sym.Name).
			WithRelated(at, "field %s moved here", name)
		return nil
	}
	if move && !types.IsCopy(sym.Type) {
		if a.borrowed(e, sym, n.Span, "cannot move %s while it is borrowed") {
			return nil
		}
		e.release(func(b borrow) bool { return b.holder == sym })
		e.vars[sym] = State{Kind: Moved, At: n.Span}
		return nil
	}
	return a.copyHeld(e, sym)
}

func (a *analyzer) field(e *env, x *ast.Attribute, move bool) []int {
	root, ok := x.X.(*ast.Name)
	if !ok {
		a.eval(e, x.X, false)
		return nil
	}
	sym := a.local(root)
	if sym == nil || !a.usable(e, sym, root.Span) {
		return nil
	}
	if at, ok := e.fields[fieldKey{sym: sym, name: x.Name}]; ok {
		a.errorf(diagnostic.UseAfterMoveError, x.Span, "use of moved value %s", x).
			WithRelated(at, "value moved here")
		return nil
	}
	if _, ref := sym.Type.(*types.Reference); ref {
		return nil
	}
	if ft := a.info.Types[x]; move && ft != nil && !types.IsCopy(ft) {
		if a.borrowed(e, sym, x.Span, "cannot move out of %s while it is borrowed") {
			return nil
		}
		e.fields[fieldKey{sym: sym, name: x.Name}] = x.Span
	}
	return nil
}

func (a *analyzer) call(e *env, c *ast.Call) []int {
	mark := len(a.temps)
	callee := a.info.Callees[c]
	extern := callee != nil && callee.Extern
	if extern {
		a.exempt++
	}

	var carried []int
	if recv, ok := a.info.Receivers[c]; ok {
		carried = append(carried, a.eval(e, recv, false)...)
	} else if _, isType := a.info.Constructors[c]; !isType {
		a.eval(e, c.Func, false)
	}
	for _, arg := range c.Args {
		carried = append(carried, a.eval(e, arg, true)...)
	}
	for _, kw := range c.Keywords {
		carried = append(carried, a.eval(e, kw.Value, true)...)
	}

	if extern {
		a.exempt--
	}
	if _, ref := a.info.Types[c].(*types.Reference); ref {
		return carried
	}
	a.releaseTemps(e, mark)
	return nil
}

// ====== Borrows ======

// borrowPlace borrows the root of place and returns the new borrow.
// Places reached through a reference carry the borrows the reference
// holds.
func (a *analyzer) borrowPlace(e *env, place ast.Expr, mutable bool, span position.Span) []int {
	root := a.indices(e, place)
	if root == nil {
		return a.value(e, place, false)
	}
	sym := a.local(root)
	if sym == nil || !a.usable(e, sym, root.Span) {
		return nil
	}
	if attr, ok := place.(*ast.Attribute); ok {
		if at, moved := e.fields[fieldKey{sym: sym, name: attr.Name}]; moved {
			a.errorf(diagnostic.UseAfterMoveError, attr.Span, "use of moved value %s", attr).
				WithRelated(at, "value moved here")
			return nil
		}
	} else if name, at, moved := e.movedField(sym); moved {
		a.errorf(diagnostic.UseAfterMoveError, root.Span, "use of partially moved value %s", sym.Name).
			WithRelated(at, "field %s moved here", name)
		return nil
	}
	if _, ref := sym.Type.(*types.Reference); ref {
		return a.copyHeld(e, sym)
	}

	st := e.state(sym)
	switch {
	case mutable && st.Kind == Borrowed:
		b, _ := e.activeBorrow(sym, false)
		a.errorf(diagnostic.BorrowConflictError, span, "cannot borrow %s as mutable because it is already borrowed", sym.Name).
			WithRelated(b.span, "previous borrow of %s here", sym.Name)
		return nil
	case !mutable && st.Mutable:
		b, _ := e.activeBorrow(sym, true)
		a.errorf(diagnostic.BorrowConflictError, span, "cannot borrow %s because it is already borrowed as mutable", sym.Name).
			WithRelated(b.span, "mutable borrow of %s here", sym.Name)
		return nil
	}
	return []int{a.newBorrow(e, sym, span, mutable)}
}

func (a *analyzer) newBorrow(e *env, owner *symbols.Symbol, span position.Span, mutable bool) int {
	a.nextID++
	e.borrows = append(e.borrows, borrow{owner: owner, span: span, id: a.nextID, mutable: mutable})
	a.temps = append(a.temps, a.nextID)
	return a.nextID
}

// copyHeld returns temporary copies of the borrows sym holds.
func (a *analyzer) copyHeld(e *env, sym *symbols.Symbol) []int {
	var ids []int
	for _, b := range append([]borrow(nil), e.borrows...) {
		if b.holder == sym {
			ids = append(ids, a.newBorrow(e, b.owner, b.span, b.mutable))
		}
	}
	return ids
}

// attach makes holder keep the temporary borrows ids alive. A holder
// declared in a scope enclosing the owner's would outlive the owner.
func (a *analyzer) attach(e *env, holder *symbols.Symbol, ids []int, span position.Span) {
	for _, id := range ids {
		i, ok := e.find(id)
		if !ok || e.borrows[i].holder != nil {
			continue
		}
		b := e.borrows[i]
		if holder.Scope != b.owner.Scope && holder.Scope.Encloses(b.owner.Scope) {
			a.errorf(diagnostic.BorrowConflictError, span, "%s does not live long enough: the borrow escapes its scope into %s", b.owner.Name, holder.Name).
				WithRelated(b.span, "%s is borrowed here", b.owner.Name)
			continue
		}
		e.borrows[i].holder = holder
		a.dropTemp(id)
	}
}

func (a *analyzer) dropTemp(id int) {
	for i, t := range a.temps {
		if t == id {
			a.temps = append(a.temps[:i], a.temps[i+1:]...)
			return
		}
	}
}

// releaseTemps ends the temporary borrows created after mark.
func (a *analyzer) releaseTemps(e *env, mark int) {
	if len(a.temps) <= mark {
		return
	}
	ended := make(map[int]bool, len(a.temps)-mark)
	for _, id := range a.temps[mark:] {
		ended[id] = true
	}
	a.temps = a.temps[:mark]
	e.release(func(b borrow) bool { return b.holder == nil && ended[b.id] })
}

// ====== Queries ======

// local returns the variable or parameter n refers to.
func (a *analyzer) local(n *ast.Name) *symbols.Symbol {
	if n == nil {
		return nil
	}
	sym := a.info.Uses[n]
	if sym == nil || (sym.Kind != symbols.SymbolVariable && sym.Kind != symbols.SymbolParameter) {
		return nil
	}
	if sym.Scope == nil || !a.fn.Scope.Encloses(sym.Scope) {
		return nil
	}
	return sym
}

// usable reports whether sym holds a value, reporting at span otherwise.
func (a *analyzer) usable(e *env, sym *symbols.Symbol, span position.Span) bool {
	st := e.state(sym)
	switch st.Kind {
	case Uninitialized:
		a.errorf(diagnostic.UseAfterMoveError, span, "%s is used before assignment", sym.Name)
		return false
	case Moved:
		a.errorf(diagnostic.UseAfterMoveError, span, "use of moved value %s", sym.Name).
			WithRelated(st.At, "value moved here")
		return false
	}
	return true
}

// borrowed reports a conflict at span when sym has an active borrow.
func (a *analyzer) borrowed(e *env, sym *symbols.Symbol, span position.Span, format string) bool {
	b, ok := e.activeBorrow(sym, false)
	if !ok {
		return false
	}
	a.errorf(diagnostic.BorrowConflictError, span, "%s", fmt.Sprintf(format, sym.Name)).
		WithRelated(b.span, "%s is borrowed here", sym.Name)
	return true
}

// indices checks the index expressions along place and returns its root
// name, or nil when the place is not rooted at a name.
func (a *analyzer) indices(e *env, place ast.Expr) *ast.Name {
	for {
		switch p := place.(type) {
		case *ast.Name:
			return p
		case *ast.Attribute:
			place = p.X
		case *ast.Index:
			a.eval(e, p.Index, false)
			place = p.X
		default:
			return nil
		}
	}
}

func rootName(place ast.Expr) *ast.Name {
	for {
		switch p := place.(type) {
		case *ast.Name:
			return p
		case *ast.Attribute:
			place = p.X
		case *ast.Index:
			place = p.X
		default:
			return nil
		}
	}
}

// mutableRoot reports whether writes through sym are allowed.
func mutableRoot(sym *symbols.Symbol) bool {
	if ref, ok := sym.Type.(*types.Reference); ok {
		return ref.Mutable
	}
	return sym.Mutable
}
