package ast

import (
	"fmt"
	"strconv"
	"strings"
)

func joinTypes(ts []TypeExpr) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func joinExprs(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

func (t *NamedType) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	return t.Name + "<" + joinTypes(t.Args) + ">"
}

func (t *RefType) String() string {
	if t.Mutable {
		return "&mut " + t.Elem.String()
	}
	return "&" + t.Elem.String()
}

func (t *NullableType) String() string { return t.Elem.String() + "?" }

func (t *FuncType) String() string {
	res := "void"
	if t.Result != nil {
		res = t.Result.String()
	}
	return "def(" + joinTypes(t.Params) + ") -> " + res
}

func (d *TypeParam) String() string {
	if d.Default != nil {
		return d.Name + " = " + d.Default.String()
	}
	return d.Name
}

func (d *Param) String() string {
	if d.Type == nil {
		return d.Name
	}
	return d.Name + ": " + d.Type.String()
}

func typeParamList(tps []*TypeParam) string {
	if len(tps) == 0 {
		return ""
	}
	parts := make([]string, len(tps))
	for i, tp := range tps {
		parts[i] = tp.String()
	}
	return "<" + strings.Join(parts, ", ") + ">"
}

func (d *FunctionDef) String() string {
	params := make([]string, len(d.Params))
	for i, p := range d.Params {
		params[i] = p.String()
	}
	s := "def " + d.Name + typeParamList(d.TypeParams) + "(" + strings.Join(params, ", ") + ")"
	if d.Result != nil {
		s += " -> " + d.Result.String()
	}
	return s
}

func (d *Field) String() string     { return d.Name + ": " + d.Type.String() }
func (d *ClassDef) String() string  { return "class " + d.Name + typeParamList(d.TypeParams) }
func (d *TraitDef) String() string  { return "trait " + d.Name + typeParamList(d.TypeParams) }
func (d *AliasDef) String() string  { return "type " + d.Name + " = " + d.Type.String() }
func (s *ExprStmt) String() string  { return s.X.String() }
func (s *Break) String() string     { return "break" }
func (s *Continue) String() string  { return "continue" }
func (s *Pass) String() string      { return "pass" }
func (s *Try) String() string       { return "try" }
func (s *If) String() string        { return "if " + s.Cond.String() }
func (s *While) String() string     { return "while " + s.Cond.String() }
func (s *For) String() string       { return "for " + s.Var + " in " + s.Iter.String() }
func (s *Del) String() string       { return "del " + s.Target.String() }
func (s *ExceptClause) String() string {
	if s.Type == nil {
		return "except"
	}
	if s.Name != "" {
		return "except " + s.Type.String() + " as " + s.Name
	}
	return "except " + s.Type.String()
}

func (s *VarDecl) String() string {
	out := "var "
	if s.Mutable {
		out += "~"
	}
	out += s.Name
	if s.Type != nil {
		out += ": " + s.Type.String()
	}
	if s.Value != nil {
		out += " = " + s.Value.String()
	}
	return out
}

func (s *Assign) String() string {
	return fmt.Sprintf("%s %s= %s", s.Target, s.Op, s.Value)
}

func (s *Return) String() string {
	if s.Value == nil {
		return "return"
	}
	return "return " + s.Value.String()
}

func (s *Raise) String() string {
	if s.Value == nil {
		return "raise"
	}
	return "raise " + s.Value.String()
}

func (e *Name) String() string     { return e.ID }
func (e *IntLit) String() string   { return strconv.FormatInt(e.Value, 10) }
func (e *FloatLit) String() string { return strconv.FormatFloat(e.Value, 'g', -1, 64) }
func (e *StrLit) String() string   { return strconv.Quote(e.Value) }
func (e *NoneLit) String() string  { return "None" }
func (e *Keyword) String() string  { return e.Name + "=" + e.Value.String() }

func (e *BoolLit) String() string {
	if e.Value {
		return "True"
	}
	return "False"
}

func (e *Call) String() string {
	args := joinExprs(e.Args)
	for _, kw := range e.Keywords {
		if args != "" {
			args += ", "
		}
		args += kw.String()
	}
	return e.Func.String() + "(" + args + ")"
}

func (e *TypeApply) String() string { return e.X.String() + ".<" + joinTypes(e.TypeArgs) + ">" }
func (e *Attribute) String() string { return e.X.String() + "." + e.Name }
func (e *Index) String() string     { return e.X.String() + "[" + e.Index.String() + "]" }
func (e *Binary) String() string    { return e.X.String() + " " + e.Op + " " + e.Y.String() }
func (e *ListLit) String() string   { return "[" + joinExprs(e.Elts) + "]" }
func (e *SetLit) String() string    { return "{" + joinExprs(e.Elts) + "}" }
func (e *Cast) String() string      { return "cast(" + e.Type.String() + ", " + e.X.String() + ")" }

func (e *RefExpr) String() string {
	if e.Mutable {
		return "&mut " + e.X.String()
	}
	return "&" + e.X.String()
}

func (e *Unary) String() string {
	if e.Op == "not" {
		return "not " + e.X.String()
	}
	return e.Op + e.X.String()
}

func (e *TupleLit) String() string {
	if len(e.Elts) == 1 {
		return "(" + e.Elts[0].String() + ",)"
	}
	return "(" + joinExprs(e.Elts) + ")"
}

func (e *DictLit) String() string {
	parts := make([]string, len(e.Keys))
	for i := range e.Keys {
		parts[i] = e.Keys[i].String() + ": " + e.Values[i].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
