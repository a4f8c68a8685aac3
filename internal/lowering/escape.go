package lowering

import (
	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/checker"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// ====== Escape Analysis ======

// escape marks the move-type locals of fn whose value leaves the frame:
// returned, raised, stored into an attribute, element or outer variable,
// passed by value, or placed in a literal. The receiver of a constructor
// always points to the heap.
func (a *Annotations) escape(fn *checker.Function) {
	if fn.Class != nil && fn.Def.Name == "__init__" && len(fn.Params) > 0 {
		a.storage[fn.Params[0]] = Heap
	}
	for _, s := range fn.Def.Body {
		ast.Inspect(s, func(n ast.Node) bool {
			switch n := n.(type) {
			case *ast.Return:
				a.escapes(n.Value)
			case *ast.Raise:
				a.escapes(n.Value)
			case *ast.Assign:
				if n.Op != "" {
					break
				}
				switch t := n.Target.(type) {
				case *ast.Attribute, *ast.Index:
					a.escapes(n.Value)
				case *ast.Name:
					if a.outer(t, n.Value) {
						a.escapes(n.Value)
					}
				}
			case *ast.Call:
				a.callArgs(n)
			case *ast.TupleLit:
				a.all(n.Elts)
			case *ast.ListLit:
				a.all(n.Elts)
			case *ast.SetLit:
				a.all(n.Elts)
			case *ast.DictLit:
				a.all(n.Keys)
				a.all(n.Values)
			}
			return true
		})
	}
}

// callArgs marks arguments moved into a call. Builtins and extern
// functions take their arguments without consuming them.
func (a *Annotations) callArgs(c *ast.Call) {
	if _, ok := a.info.Builtins[c]; ok {
		return
	}
	if fn, ok := a.Callee(c); ok && fn.Extern {
		return
	}
	a.all(c.Args)
}

func (a *Annotations) all(list []ast.Expr) {
	for _, e := range list {
		a.escapes(e)
	}
}

// escapes moves the local named by e to the heap unless e is borrowed.
func (a *Annotations) escapes(e ast.Expr) {
	n, ok := e.(*ast.Name)
	if !ok {
		return
	}
	switch a.info.Convs[e] {
	case types.ConvBorrow, types.ConvBorrowMut:
		return
	}
	sym := local(a.info, n)
	if sym == nil || types.IsCopy(sym.Type) {
		return
	}
	a.storage[sym] = Heap
}

// outer reports whether assigning v to target stores a local into a
// variable of an enclosing scope.
func (a *Annotations) outer(target *ast.Name, v ast.Expr) bool {
	n, ok := v.(*ast.Name)
	if !ok {
		return false
	}
	ts, vs := local(a.info, target), local(a.info, n)
	if ts == nil || vs == nil {
		return false
	}
	return ts.Scope != vs.Scope && ts.Scope.Encloses(vs.Scope)
}

func local(info *checker.Info, n *ast.Name) *symbols.Symbol {
	sym := info.Uses[n]
	if sym == nil || (sym.Kind != symbols.SymbolVariable && sym.Kind != symbols.SymbolParameter) {
		return nil
	}
	return sym
}
