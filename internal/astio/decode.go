// Package astio reads the syntax trees written by the external parser.
//
// A tree is JSON. Every node is an object whose "node" field names its
// kind after the ast type (FunctionDef, Call, NamedType, ...), with an
// optional "span" object {line, col, end_line, end_col}. Field names are
// snake_case. The module object carries the file path used for spans.
package astio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/position"
)

// Decode reads one module from r.
func Decode(r io.Reader) (*ast.Module, error) {
	return decode(r, "")
}

// DecodeFile reads the module stored at path. The path names the module
// when the tree does not.
func DecodeFile(path string) (*ast.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ast: %w", err)
	}
	defer f.Close()

	m, err := decode(f, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func decode(r io.Reader, path string) (*ast.Module, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decoding ast: %w", err)
	}

	d := &decoder{}
	m := d.module(root, path)
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

type node = map[string]any

// decoder keeps the first error; later calls return zero values.
type decoder struct {
	file string
	err  error
}

func (d *decoder) failf(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}

func kindOf(n node) string {
	k, _ := n["node"].(string)
	return k
}

// ====== Field Access ======

func (d *decoder) opt(n node, field string) node {
	v, ok := n[field]
	if !ok || v == nil {
		return nil
	}
	c, ok := v.(map[string]any)
	if !ok {
		d.failf("%s.%s: expected object, got %T", kindOf(n), field, v)
		return nil
	}
	return c
}

func (d *decoder) req(n node, field string) node {
	c := d.opt(n, field)
	if c == nil && d.err == nil {
		d.failf("%s: missing %s", kindOf(n), field)
	}
	return c
}

func (d *decoder) list(n node, field string) []node {
	v, ok := n[field]
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		d.failf("%s.%s: expected array, got %T", kindOf(n), field, v)
		return nil
	}
	out := make([]node, 0, len(items))
	for i, it := range items {
		c, ok := it.(map[string]any)
		if !ok {
			d.failf("%s.%s[%d]: expected object, got %T", kindOf(n), field, i, it)
			return nil
		}
		out = append(out, c)
	}
	return out
}

func (d *decoder) str(n node, field string) string {
	v, ok := n[field]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.failf("%s.%s: expected string, got %T", kindOf(n), field, v)
	}
	return s
}

func (d *decoder) name(n node, field string) string {
	s := d.str(n, field)
	if s == "" && d.err == nil {
		d.failf("%s: missing %s", kindOf(n), field)
	}
	return s
}

func (d *decoder) flag(n node, field string) bool {
	v, ok := n[field]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		d.failf("%s.%s: expected bool, got %T", kindOf(n), field, v)
	}
	return b
}

func (d *decoder) number(n node, field string) json.Number {
	num, ok := n[field].(json.Number)
	if !ok {
		d.failf("%s.%s: expected number, got %T", kindOf(n), field, n[field])
	}
	return num
}

func (d *decoder) integer(n node, field string) int {
	v, ok := n[field]
	if !ok || v == nil {
		return 0
	}
	num, ok := v.(json.Number)
	if !ok {
		d.failf("%s.%s: expected number, got %T", kindOf(n), field, v)
		return 0
	}
	i, err := num.Int64()
	if err != nil {
		d.failf("%s.%s: %w", kindOf(n), field, err)
	}
	return int(i)
}

// spanAt reads the span object stored under field. A missing end is a
// single column.
func (d *decoder) spanAt(n node, field string) position.Span {
	s := d.opt(n, field)
	if s == nil {
		return position.Span{}
	}
	line, col := d.integer(s, "line"), d.integer(s, "col")
	sp := position.At(d.file, line, col)
	if endLine := d.integer(s, "end_line"); endLine > 0 {
		sp.End = position.Position{Filename: d.file, Line: endLine, Column: d.integer(s, "end_col")}
	}
	return sp
}

func (d *decoder) span(n node) position.Span { return d.spanAt(n, "span") }

// ====== Module ======

func (d *decoder) module(n node, path string) *ast.Module {
	if k := kindOf(n); k != "Module" {
		d.failf("expected Module at the root, got %q", k)
		return nil
	}
	m := &ast.Module{Name: d.str(n, "name"), Path: d.str(n, "path")}
	if m.Path == "" {
		m.Path = path
	}
	if m.Name == "" && m.Path != "" {
		base := filepath.Base(m.Path)
		m.Name = strings.TrimSuffix(base, filepath.Ext(base))
		if ext := filepath.Ext(m.Name); ext != "" {
			m.Name = strings.TrimSuffix(m.Name, ext)
		}
	}
	if m.Name == "" {
		d.failf("Module: missing name")
		return nil
	}
	d.file = m.Path
	if d.file == "" {
		d.file = m.Name
	}
	m.Span = d.span(n)
	m.Body = d.stmts(n, "body")
	return m
}

// ====== Types ======

func (d *decoder) typeExpr(n node) ast.TypeExpr {
	if n == nil || d.err != nil {
		return nil
	}
	sp := d.span(n)
	switch k := kindOf(n); k {
	case "NamedType":
		return &ast.NamedType{Name: d.name(n, "name"), Args: d.typeExprs(n, "args"), Span: sp}
	case "RefType":
		return &ast.RefType{Elem: d.typeExpr(d.req(n, "elem")), Mutable: d.flag(n, "mutable"), Span: sp}
	case "NullableType":
		return &ast.NullableType{Elem: d.typeExpr(d.req(n, "elem")), Span: sp}
	case "FuncType":
		return &ast.FuncType{Params: d.typeExprs(n, "params"), Result: d.typeExpr(d.opt(n, "result")), Span: sp}
	default:
		d.failf("unknown type node %q", k)
		return nil
	}
}

func (d *decoder) typeExprs(n node, field string) []ast.TypeExpr {
	var out []ast.TypeExpr
	for _, c := range d.list(n, field) {
		out = append(out, d.typeExpr(c))
	}
	return out
}

// ====== Definitions ======

func (d *decoder) typeParams(n node) []*ast.TypeParam {
	var out []*ast.TypeParam
	for _, c := range d.list(n, "type_params") {
		out = append(out, &ast.TypeParam{
			Name:    d.name(c, "name"),
			Default: d.typeExpr(d.opt(c, "default")),
			Span:    d.span(c),
		})
	}
	return out
}

func (d *decoder) function(n node) *ast.FunctionDef {
	fn := &ast.FunctionDef{
		Name:       d.name(n, "name"),
		TypeParams: d.typeParams(n),
		Result:     d.typeExpr(d.opt(n, "result")),
		Extern:     d.flag(n, "extern"),
		Span:       d.span(n),
	}
	for _, c := range d.list(n, "params") {
		fn.Params = append(fn.Params, &ast.Param{
			Name:    d.name(c, "name"),
			Type:    d.typeExpr(d.opt(c, "type")),
			Mutable: d.flag(c, "mutable"),
			Span:    d.span(c),
		})
	}
	fn.Body = d.stmts(n, "body")
	return fn
}

func (d *decoder) methods(n node) []*ast.FunctionDef {
	var out []*ast.FunctionDef
	for _, c := range d.list(n, "methods") {
		if k := kindOf(c); k != "FunctionDef" {
			d.failf("%s.methods: expected FunctionDef, got %q", kindOf(n), k)
			return nil
		}
		out = append(out, d.function(c))
	}
	return out
}

func (d *decoder) class(n node) *ast.ClassDef {
	cls := &ast.ClassDef{
		Name:       d.name(n, "name"),
		TypeParams: d.typeParams(n),
		Bases:      d.typeExprs(n, "bases"),
		Span:       d.span(n),
	}
	for _, c := range d.list(n, "fields") {
		cls.Fields = append(cls.Fields, &ast.Field{
			Name:    d.name(c, "name"),
			Type:    d.typeExpr(d.req(c, "type")),
			Mutable: d.flag(c, "mutable"),
			Span:    d.span(c),
		})
	}
	cls.Methods = d.methods(n)
	return cls
}

// ====== Statements ======

func (d *decoder) stmts(n node, field string) []ast.Stmt {
	var out []ast.Stmt
	for _, c := range d.list(n, field) {
		if s := d.stmt(c); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (d *decoder) stmt(n node) ast.Stmt {
	if d.err != nil {
		return nil
	}
	sp := d.span(n)
	switch k := kindOf(n); k {
	case "FunctionDef":
		return d.function(n)
	case "ClassDef":
		return d.class(n)
	case "TraitDef":
		return &ast.TraitDef{Name: d.name(n, "name"), TypeParams: d.typeParams(n), Methods: d.methods(n), Span: sp}
	case "AliasDef":
		return &ast.AliasDef{Name: d.name(n, "name"), Type: d.typeExpr(d.req(n, "type")), Span: sp}
	case "VarDecl":
		s := &ast.VarDecl{
			Name:     d.name(n, "name"),
			Type:     d.typeExpr(d.opt(n, "type")),
			Value:    d.expr(d.opt(n, "value")),
			Mutable:  d.flag(n, "mutable"),
			Span:     sp,
			NameSpan: d.spanAt(n, "name_span"),
		}
		if !s.NameSpan.IsValid() {
			s.NameSpan = sp
		}
		return s
	case "Assign":
		return &ast.Assign{Target: d.expr(d.req(n, "target")), Value: d.expr(d.req(n, "value")), Op: d.str(n, "op"), Span: sp}
	case "ExprStmt":
		return &ast.ExprStmt{X: d.expr(d.req(n, "value")), Span: sp}
	case "Return":
		return &ast.Return{Value: d.expr(d.opt(n, "value")), Span: sp}
	case "If":
		return &ast.If{Cond: d.expr(d.req(n, "cond")), Body: d.stmts(n, "body"), Else: d.stmts(n, "else"), Span: sp}
	case "While":
		return &ast.While{Cond: d.expr(d.req(n, "cond")), Body: d.stmts(n, "body"), Span: sp}
	case "For":
		s := &ast.For{
			Var:     d.name(n, "var"),
			Iter:    d.expr(d.req(n, "iter")),
			Body:    d.stmts(n, "body"),
			Span:    sp,
			VarSpan: d.spanAt(n, "var_span"),
		}
		if !s.VarSpan.IsValid() {
			s.VarSpan = sp
		}
		return s
	case "Break":
		return &ast.Break{Span: sp}
	case "Continue":
		return &ast.Continue{Span: sp}
	case "Pass":
		return &ast.Pass{Span: sp}
	case "Try":
		s := &ast.Try{Body: d.stmts(n, "body"), Span: sp}
		for _, h := range d.list(n, "handlers") {
			s.Handlers = append(s.Handlers, d.handler(h))
		}
		return s
	case "Raise":
		return &ast.Raise{Value: d.expr(d.req(n, "value")), Span: sp}
	case "Del":
		target, ok := d.expr(d.req(n, "target")).(*ast.Name)
		if !ok {
			d.failf("Del: target must be a Name")
			return nil
		}
		return &ast.Del{Target: target, Span: sp}
	default:
		d.failf("unknown statement node %q", k)
		return nil
	}
}

func (d *decoder) handler(n node) *ast.ExceptClause {
	if k := kindOf(n); k != "ExceptClause" {
		d.failf("Try.handlers: expected ExceptClause, got %q", k)
		return nil
	}
	h := &ast.ExceptClause{
		Type:     d.typeExpr(d.opt(n, "type")),
		Name:     d.str(n, "name"),
		Body:     d.stmts(n, "body"),
		Span:     d.span(n),
		NameSpan: d.spanAt(n, "name_span"),
	}
	if h.Name != "" && !h.NameSpan.IsValid() {
		h.NameSpan = h.Span
	}
	return h
}

// ====== Expressions ======

func (d *decoder) exprs(n node, field string) []ast.Expr {
	var out []ast.Expr
	for _, c := range d.list(n, field) {
		out = append(out, d.expr(c))
	}
	return out
}

func (d *decoder) expr(n node) ast.Expr {
	if n == nil || d.err != nil {
		return nil
	}
	sp := d.span(n)
	switch k := kindOf(n); k {
	case "Name":
		return &ast.Name{ID: d.name(n, "id"), Span: sp}
	case "IntLit":
		v, err := d.number(n, "value").Int64()
		if err != nil && d.err == nil {
			d.failf("IntLit: %w", err)
		}
		return &ast.IntLit{Value: v, Span: sp}
	case "FloatLit":
		v, err := d.number(n, "value").Float64()
		if err != nil && d.err == nil {
			d.failf("FloatLit: %w", err)
		}
		return &ast.FloatLit{Value: v, Span: sp}
	case "StrLit":
		return &ast.StrLit{Value: d.str(n, "value"), Span: sp}
	case "BoolLit":
		return &ast.BoolLit{Value: d.flag(n, "value"), Span: sp}
	case "NoneLit":
		return &ast.NoneLit{Span: sp}
	case "Call":
		c := &ast.Call{Func: d.expr(d.req(n, "func")), Args: d.exprs(n, "args"), Span: sp}
		for _, kw := range d.list(n, "keywords") {
			c.Keywords = append(c.Keywords, &ast.Keyword{
				Name:  d.name(kw, "name"),
				Value: d.expr(d.req(kw, "value")),
				Span:  d.span(kw),
			})
		}
		return c
	case "TypeApply":
		return &ast.TypeApply{X: d.expr(d.req(n, "value")), TypeArgs: d.typeExprs(n, "type_args"), Span: sp}
	case "Attribute":
		return &ast.Attribute{X: d.expr(d.req(n, "value")), Name: d.name(n, "attr"), Span: sp}
	case "Index":
		return &ast.Index{X: d.expr(d.req(n, "value")), Index: d.expr(d.req(n, "index")), Span: sp}
	case "RefExpr":
		return &ast.RefExpr{X: d.expr(d.req(n, "value")), Mutable: d.flag(n, "mutable"), Span: sp}
	case "Binary":
		return &ast.Binary{Op: d.name(n, "op"), X: d.expr(d.req(n, "left")), Y: d.expr(d.req(n, "right")), Span: sp}
	case "Unary":
		return &ast.Unary{Op: d.name(n, "op"), X: d.expr(d.req(n, "operand")), Span: sp}
	case "TupleLit":
		return &ast.TupleLit{Elts: d.exprs(n, "elts"), Span: sp}
	case "ListLit":
		return &ast.ListLit{Elts: d.exprs(n, "elts"), Span: sp}
	case "SetLit":
		return &ast.SetLit{Elts: d.exprs(n, "elts"), Span: sp}
	case "DictLit":
		e := &ast.DictLit{Keys: d.exprs(n, "keys"), Values: d.exprs(n, "values"), Span: sp}
		if len(e.Keys) != len(e.Values) {
			d.failf("DictLit: %d keys, %d values", len(e.Keys), len(e.Values))
		}
		return e
	case "Cast":
		return &ast.Cast{Type: d.typeExpr(d.req(n, "type")), X: d.expr(d.req(n, "value")), Span: sp}
	default:
		d.failf("unknown expression node %q", k)
		return nil
	}
}
