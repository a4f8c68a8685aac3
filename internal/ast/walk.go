package ast

// Inspect traverses the tree rooted at n in depth-first order. It calls f
// on each node; when f returns false the children of that node are
// skipped. Type annotations are visited too.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}

	switch n := n.(type) {
	case *Module:
		inspectStmts(n.Body, f)
	case *NamedType:
		for _, a := range n.Args {
			Inspect(a, f)
		}
	case *RefType:
		Inspect(n.Elem, f)
	case *NullableType:
		Inspect(n.Elem, f)
	case *FuncType:
		for _, p := range n.Params {
			Inspect(p, f)
		}
		inspectType(n.Result, f)
	case *TypeParam:
		inspectType(n.Default, f)
	case *Param:
		inspectType(n.Type, f)
	case *FunctionDef:
		for _, tp := range n.TypeParams {
			Inspect(tp, f)
		}
		for _, p := range n.Params {
			Inspect(p, f)
		}
		inspectType(n.Result, f)
		inspectStmts(n.Body, f)
	case *Field:
		inspectType(n.Type, f)
	case *ClassDef:
		for _, tp := range n.TypeParams {
			Inspect(tp, f)
		}
		for _, b := range n.Bases {
			Inspect(b, f)
		}
		for _, fd := range n.Fields {
			Inspect(fd, f)
		}
		for _, m := range n.Methods {
			Inspect(m, f)
		}
	case *TraitDef:
		for _, tp := range n.TypeParams {
			Inspect(tp, f)
		}
		for _, m := range n.Methods {
			Inspect(m, f)
		}
	case *AliasDef:
		Inspect(n.Type, f)
	case *VarDecl:
		inspectType(n.Type, f)
		inspectExpr(n.Value, f)
	case *Assign:
		Inspect(n.Target, f)
		Inspect(n.Value, f)
	case *ExprStmt:
		Inspect(n.X, f)
	case *Return:
		inspectExpr(n.Value, f)
	case *If:
		Inspect(n.Cond, f)
		inspectStmts(n.Body, f)
		inspectStmts(n.Else, f)
	case *While:
		Inspect(n.Cond, f)
		inspectStmts(n.Body, f)
	case *For:
		Inspect(n.Iter, f)
		inspectStmts(n.Body, f)
	case *Try:
		inspectStmts(n.Body, f)
		for _, h := range n.Handlers {
			Inspect(h, f)
		}
	case *ExceptClause:
		inspectType(n.Type, f)
		inspectStmts(n.Body, f)
	case *Raise:
		inspectExpr(n.Value, f)
	case *Del:
		Inspect(n.Target, f)
	case *Keyword:
		Inspect(n.Value, f)
	case *Call:
		Inspect(n.Func, f)
		for _, a := range n.Args {
			Inspect(a, f)
		}
		for _, kw := range n.Keywords {
			Inspect(kw, f)
		}
	case *TypeApply:
		Inspect(n.X, f)
		for _, a := range n.TypeArgs {
			Inspect(a, f)
		}
	case *Attribute:
		Inspect(n.X, f)
	case *Index:
		Inspect(n.X, f)
		Inspect(n.Index, f)
	case *RefExpr:
		Inspect(n.X, f)
	case *Binary:
		Inspect(n.X, f)
		Inspect(n.Y, f)
	case *Unary:
		Inspect(n.X, f)
	case *TupleLit:
		inspectExprs(n.Elts, f)
	case *ListLit:
		inspectExprs(n.Elts, f)
	case *SetLit:
		inspectExprs(n.Elts, f)
	case *DictLit:
		inspectExprs(n.Keys, f)
		inspectExprs(n.Values, f)
	case *Cast:
		Inspect(n.Type, f)
		Inspect(n.X, f)
	}
}

func inspectStmts(list []Stmt, f func(Node) bool) {
	for _, s := range list {
		Inspect(s, f)
	}
}

func inspectExprs(list []Expr, f func(Node) bool) {
	for _, e := range list {
		Inspect(e, f)
	}
}

// The typed-nil checks keep a nil Expr or TypeExpr field from reaching f.
func inspectExpr(e Expr, f func(Node) bool) {
	if e != nil {
		Inspect(e, f)
	}
}

func inspectType(t TypeExpr, f func(Node) bool) {
	if t != nil {
		Inspect(t, f)
	}
}
