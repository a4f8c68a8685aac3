package ownership

import (
	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/checker"
	"github.com/ragazzi-robotics/ragaz/internal/config"
	"github.com/ragazzi-robotics/ragaz/internal/flow"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// ====== Implicit Destruction ======

// Drops lists the points where a function destroys values implicitly: a
// binding that still owns its value when its scope ends, when it is
// reassigned or when a new declaration shadows it. Bindings moved out on
// any path reaching such a point are left alone.
type Drops struct {
	// Ends holds the bindings of each scope still owned when control
	// reaches the end of the scope, latest declaration first.
	Ends map[*symbols.Scope][]*symbols.Symbol
	// Jumps holds the bindings a return, break or continue leaves
	// behind, innermost scope first.
	Jumps map[ast.Stmt][]*symbols.Symbol
	// Reassigned marks assignments whose target still owns its old value.
	Reassigned map[*ast.Assign]bool
	// Shadowed maps a declaration to the owned binding it replaces.
	Shadowed map[*ast.VarDecl]*symbols.Symbol
}

func newDrops() *Drops {
	return &Drops{
		Ends:       make(map[*symbols.Scope][]*symbols.Symbol),
		Jumps:      make(map[ast.Stmt][]*symbols.Symbol),
		Reassigned: make(map[*ast.Assign]bool),
		Shadowed:   make(map[*ast.VarDecl]*symbols.Symbol),
	}
}

// Plan computes the implicit drops of fn. fn is expected to have passed
// Check; the plan of a function with ownership errors is unspecified.
func Plan(fn *checker.Function, info *checker.Info) *Drops {
	plan := newDrops()
	if fn.Extern || fn.Def == nil {
		return plan
	}
	inspect(fn, info, config.Default(), plan)
	return plan
}

func (a *analyzer) recording() bool { return a.report && a.plan != nil }

// exit records the bindings a non-exceptional scope exit destroys.
func (a *analyzer) exit(e *env, s flow.Step) {
	if !a.recording() || s.Raise {
		return
	}
	syms := s.Scope.Symbols()
	var owned []*symbols.Symbol
	for i := len(syms) - 1; i >= 0; i-- {
		if a.droppable(e, syms[i]) {
			owned = append(owned, syms[i])
		}
	}
	if s.Stmt == nil {
		a.plan.Ends[s.Scope] = owned
		return
	}
	a.plan.Jumps[s.Stmt] = append(a.plan.Jumps[s.Stmt], owned...)
}

// droppable reports whether sym owns a value that must be destroyed
// here. Borrows of sym are ignored: the drop points are where its
// holders die too.
func (a *analyzer) droppable(e *env, sym *symbols.Symbol) bool {
	if sym.Kind != symbols.SymbolVariable && sym.Kind != symbols.SymbolParameter {
		return false
	}
	if st, ok := e.vars[sym]; !ok || st.Kind != Owned {
		return false
	}
	if sym.Type == nil || types.IsCopy(sym.Type) || types.IsUnresolved(sym.Type) {
		return false
	}
	if _, _, partial := e.movedField(sym); partial {
		return false
	}
	// Loop variables hold elements of a borrowed iterable.
	if _, loopVar := sym.Decl.(*ast.For); loopVar {
		return false
	}
	// The receiver of a destructor is being destroyed already.
	if a.fn.IsMethod() && a.fn.Def.Name == "__del__" && len(a.fn.Params) > 0 && sym == a.fn.Params[0] {
		return false
	}
	return true
}
