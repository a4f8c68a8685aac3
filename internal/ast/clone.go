package ast

// TypeSubst maps type parameter names to the annotations replacing them.
type TypeSubst map[string]TypeExpr

// CloneType deep-copies t, replacing every bare name bound in sub.
func CloneType(t TypeExpr, sub TypeSubst) TypeExpr {
	switch t := t.(type) {
	case nil:
		return nil
	case *NamedType:
		if len(t.Args) == 0 {
			if r, ok := sub[t.Name]; ok {
				return CloneType(r, nil)
			}
		}
		return &NamedType{Name: t.Name, Args: cloneTypes(t.Args, sub), Span: t.Span}
	case *RefType:
		return &RefType{Elem: CloneType(t.Elem, sub), Mutable: t.Mutable, Span: t.Span}
	case *NullableType:
		return &NullableType{Elem: CloneType(t.Elem, sub), Span: t.Span}
	case *FuncType:
		return &FuncType{Params: cloneTypes(t.Params, sub), Result: CloneType(t.Result, sub), Span: t.Span}
	}
	return t
}

func cloneTypes(ts []TypeExpr, sub TypeSubst) []TypeExpr {
	if ts == nil {
		return nil
	}
	out := make([]TypeExpr, len(ts))
	for i, t := range ts {
		out[i] = CloneType(t, sub)
	}
	return out
}

// CloneFunc deep-copies a function definition, substituting type
// annotations throughout its signature and body.
func CloneFunc(fd *FunctionDef, sub TypeSubst) *FunctionDef {
	out := &FunctionDef{
		Name:   fd.Name,
		Result: CloneType(fd.Result, sub),
		Body:   CloneStmts(fd.Body, sub),
		Span:   fd.Span,
		Extern: fd.Extern,
	}
	for _, tp := range fd.TypeParams {
		out.TypeParams = append(out.TypeParams, &TypeParam{Name: tp.Name, Default: CloneType(tp.Default, sub), Span: tp.Span})
	}
	for _, p := range fd.Params {
		out.Params = append(out.Params, &Param{Name: p.Name, Type: CloneType(p.Type, sub), Mutable: p.Mutable, Span: p.Span})
	}
	return out
}

// CloneStmts deep-copies a statement list.
func CloneStmts(list []Stmt, sub TypeSubst) []Stmt {
	if list == nil {
		return nil
	}
	out := make([]Stmt, len(list))
	for i, s := range list {
		out[i] = CloneStmt(s, sub)
	}
	return out
}

// CloneStmt deep-copies a statement.
func CloneStmt(s Stmt, sub TypeSubst) Stmt {
	switch s := s.(type) {
	case *VarDecl:
		return &VarDecl{Name: s.Name, Type: CloneType(s.Type, sub), Value: CloneExpr(s.Value, sub),
			Mutable: s.Mutable, Span: s.Span, NameSpan: s.NameSpan}
	case *Assign:
		return &Assign{Target: CloneExpr(s.Target, sub), Value: CloneExpr(s.Value, sub), Op: s.Op, Span: s.Span}
	case *ExprStmt:
		return &ExprStmt{X: CloneExpr(s.X, sub), Span: s.Span}
	case *Return:
		return &Return{Value: CloneExpr(s.Value, sub), Span: s.Span}
	case *If:
		return &If{Cond: CloneExpr(s.Cond, sub), Body: CloneStmts(s.Body, sub), Else: CloneStmts(s.Else, sub), Span: s.Span}
	case *While:
		return &While{Cond: CloneExpr(s.Cond, sub), Body: CloneStmts(s.Body, sub), Span: s.Span}
	case *For:
		return &For{Var: s.Var, Iter: CloneExpr(s.Iter, sub), Body: CloneStmts(s.Body, sub), Span: s.Span, VarSpan: s.VarSpan}
	case *Break:
		return &Break{Span: s.Span}
	case *Continue:
		return &Continue{Span: s.Span}
	case *Pass:
		return &Pass{Span: s.Span}
	case *Try:
		out := &Try{Body: CloneStmts(s.Body, sub), Span: s.Span}
		for _, h := range s.Handlers {
			out.Handlers = append(out.Handlers, &ExceptClause{Type: CloneType(h.Type, sub), Name: h.Name,
				Body: CloneStmts(h.Body, sub), Span: h.Span, NameSpan: h.NameSpan})
		}
		return out
	case *Raise:
		return &Raise{Value: CloneExpr(s.Value, sub), Span: s.Span}
	case *Del:
		return &Del{Target: &Name{ID: s.Target.ID, Span: s.Target.Span}, Span: s.Span}
	case *FunctionDef:
		return CloneFunc(s, sub)
	}
	return s
}

func cloneExprs(list []Expr, sub TypeSubst) []Expr {
	if list == nil {
		return nil
	}
	out := make([]Expr, len(list))
	for i, e := range list {
		out[i] = CloneExpr(e, sub)
	}
	return out
}

// CloneExpr deep-copies an expression.
func CloneExpr(e Expr, sub TypeSubst) Expr {
	switch e := e.(type) {
	case nil:
		return nil
	case *Name:
		return &Name{ID: e.ID, Span: e.Span}
	case *IntLit:
		return &IntLit{Value: e.Value, Span: e.Span}
	case *FloatLit:
		return &FloatLit{Value: e.Value, Span: e.Span}
	case *StrLit:
		return &StrLit{Value: e.Value, Span: e.Span}
	case *BoolLit:
		return &BoolLit{Value: e.Value, Span: e.Span}
	case *NoneLit:
		return &NoneLit{Span: e.Span}
	case *Call:
		out := &Call{Func: CloneExpr(e.Func, sub), Args: cloneExprs(e.Args, sub), Span: e.Span}
		for _, kw := range e.Keywords {
			out.Keywords = append(out.Keywords, &Keyword{Name: kw.Name, Value: CloneExpr(kw.Value, sub), Span: kw.Span})
		}
		return out
	case *TypeApply:
		return &TypeApply{X: CloneExpr(e.X, sub), TypeArgs: cloneTypes(e.TypeArgs, sub), Span: e.Span}
	case *Attribute:
		return &Attribute{X: CloneExpr(e.X, sub), Name: e.Name, Span: e.Span}
	case *Index:
		return &Index{X: CloneExpr(e.X, sub), Index: CloneExpr(e.Index, sub), Span: e.Span}
	case *RefExpr:
		return &RefExpr{X: CloneExpr(e.X, sub), Mutable: e.Mutable, Span: e.Span}
	case *Binary:
		return &Binary{X: CloneExpr(e.X, sub), Y: CloneExpr(e.Y, sub), Op: e.Op, Span: e.Span}
	case *Unary:
		return &Unary{X: CloneExpr(e.X, sub), Op: e.Op, Span: e.Span}
	case *TupleLit:
		return &TupleLit{Elts: cloneExprs(e.Elts, sub), Span: e.Span}
	case *ListLit:
		return &ListLit{Elts: cloneExprs(e.Elts, sub), Span: e.Span}
	case *SetLit:
		return &SetLit{Elts: cloneExprs(e.Elts, sub), Span: e.Span}
	case *DictLit:
		return &DictLit{Keys: cloneExprs(e.Keys, sub), Values: cloneExprs(e.Values, sub), Span: e.Span}
	case *Cast:
		return &Cast{Type: CloneType(e.Type, sub), X: CloneExpr(e.X, sub), Span: e.Span}
	}
	return e
}
