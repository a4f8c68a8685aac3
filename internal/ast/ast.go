// Package ast defines the syntax tree the ragaz semantic core consumes.
// Trees are produced by the external parser; the core never re-parses
// source text. Every node carries its source span for diagnostics.
package ast

import (
	"github.com/ragazzi-robotics/ragaz/internal/position"
)

// Node is the base interface for all AST nodes
type Node interface {
	// GetSpan returns the source span covered by this node
	GetSpan() position.Span
	// String returns a source-like rendering of the node
	String() string
}

// Stmt represents statement nodes, including top-level definitions.
type Stmt interface {
	Node
	stmtNode()
}

// Expr represents expression nodes.
type Expr interface {
	Node
	exprNode()
}

// TypeExpr represents syntactic type annotations.
type TypeExpr interface {
	Node
	typeNode()
}

// ===== Program Structure =====

// Module is one source file.
type Module struct {
	Name string
	Path string
	Body []Stmt
	Span position.Span
}

func (m *Module) GetSpan() position.Span { return m.Span }
func (m *Module) String() string         { return "module " + m.Name }

// ===== Type Annotations =====

// NamedType is a type name with optional generic arguments: list<int>.
// Tuples are spelled as NamedType{Name: "tuple"}.
type NamedType struct {
	Name string
	Args []TypeExpr
	Span position.Span
}

// RefType is a borrowed reference: &T or &mut T.
type RefType struct {
	Elem    TypeExpr
	Span    position.Span
	Mutable bool
}

// NullableType is T?.
type NullableType struct {
	Elem TypeExpr
	Span position.Span
}

// FuncType is def(A, B) -> R. A nil Result means void.
type FuncType struct {
	Result TypeExpr
	Params []TypeExpr
	Span   position.Span
}

// ===== Definitions =====

// TypeParam is one entry of a type parameter list.
type TypeParam struct {
	Default TypeExpr
	Name    string
	Span    position.Span
}

// Param is a function parameter. Type is nil only for self.
type Param struct {
	Type    TypeExpr
	Name    string
	Span    position.Span
	Mutable bool
}

// FunctionDef declares a function or method. Extern functions have no body.
type FunctionDef struct {
	Result     TypeExpr
	Name       string
	TypeParams []*TypeParam
	Params     []*Param
	Body       []Stmt
	Span       position.Span
	Extern     bool
}

// Field is a class attribute declaration.
type Field struct {
	Type    TypeExpr
	Name    string
	Span    position.Span
	Mutable bool
}

// ClassDef declares a class. Bases name the traits it implements.
type ClassDef struct {
	Name       string
	TypeParams []*TypeParam
	Bases      []TypeExpr
	Fields     []*Field
	Methods    []*FunctionDef
	Span       position.Span
}

// TraitDef declares a trait: a named set of method signatures.
type TraitDef struct {
	Name       string
	TypeParams []*TypeParam
	Methods    []*FunctionDef
	Span       position.Span
}

// AliasDef declares type Name = T.
type AliasDef struct {
	Type TypeExpr
	Name string
	Span position.Span
}

// ===== Statements =====

// VarDecl is var name: T = value. Either Type or Value may be nil.
type VarDecl struct {
	Type     TypeExpr
	Value    Expr
	Name     string
	Span     position.Span
	NameSpan position.Span
	Mutable  bool
}

// Assign is target = value, or target op= value when Op is set.
type Assign struct {
	Target Expr
	Value  Expr
	Op     string
	Span   position.Span
}

// ExprStmt is an expression evaluated for its effects.
type ExprStmt struct {
	X    Expr
	Span position.Span
}

// Return returns from the enclosing function. Value may be nil.
type Return struct {
	Value Expr
	Span  position.Span
}

// If is a conditional with an optional else branch.
type If struct {
	Cond Expr
	Body []Stmt
	Else []Stmt
	Span position.Span
}

// While loops while Cond holds.
type While struct {
	Cond Expr
	Body []Stmt
	Span position.Span
}

// For iterates Var over Iter.
type For struct {
	Iter    Expr
	Var     string
	Body    []Stmt
	Span    position.Span
	VarSpan position.Span
}

// Break exits the innermost loop.
type Break struct{ Span position.Span }

// Continue restarts the innermost loop.
type Continue struct{ Span position.Span }

// Pass does nothing.
type Pass struct{ Span position.Span }

// ExceptClause handles exceptions of Type, or all exceptions if Type is nil.
type ExceptClause struct {
	Type     TypeExpr
	Name     string
	Body     []Stmt
	Span     position.Span
	NameSpan position.Span
}

// Try runs Body with Handlers registered as landing pads.
type Try struct {
	Body     []Stmt
	Handlers []*ExceptClause
	Span     position.Span
}

// Raise raises an exception value.
type Raise struct {
	Value Expr
	Span  position.Span
}

// Del releases a variable.
type Del struct {
	Target *Name
	Span   position.Span
}

// ===== Expressions =====

// Name references a variable, function or type.
type Name struct {
	ID   string
	Span position.Span
}

// IntLit is an integer literal.
type IntLit struct {
	Value int64
	Span  position.Span
}

// FloatLit is a floating point literal.
type FloatLit struct {
	Value float64
	Span  position.Span
}

// StrLit is a string literal.
type StrLit struct {
	Value string
	Span  position.Span
}

// BoolLit is True or False.
type BoolLit struct {
	Span  position.Span
	Value bool
}

// NoneLit is None.
type NoneLit struct{ Span position.Span }

// Keyword is a keyword argument name=value.
type Keyword struct {
	Value Expr
	Name  string
	Span  position.Span
}

// Call is a call of a function, method, constructor or function value.
type Call struct {
	Func     Expr
	Args     []Expr
	Keywords []*Keyword
	Span     position.Span
}

// TypeApply is explicit instantiation: name.<T1, T2>.
type TypeApply struct {
	X        Expr
	TypeArgs []TypeExpr
	Span     position.Span
}

// Attribute is x.name.
type Attribute struct {
	X    Expr
	Name string
	Span position.Span
}

// Index is x[i].
type Index struct {
	X     Expr
	Index Expr
	Span  position.Span
}

// RefExpr takes a reference: &x or &mut x.
type RefExpr struct {
	X       Expr
	Span    position.Span
	Mutable bool
}

// Binary is x op y. Comparison ops include "is" and "is not".
type Binary struct {
	X    Expr
	Y    Expr
	Op   string
	Span position.Span
}

// Unary is op x, with op one of "-", "not", "~".
type Unary struct {
	X    Expr
	Op   string
	Span position.Span
}

// TupleLit is (a, b).
type TupleLit struct {
	Elts []Expr
	Span position.Span
}

// ListLit is [a, b].
type ListLit struct {
	Elts []Expr
	Span position.Span
}

// SetLit is {a, b}.
type SetLit struct {
	Elts []Expr
	Span position.Span
}

// DictLit is {k: v}.
type DictLit struct {
	Keys   []Expr
	Values []Expr
	Span   position.Span
}

// Cast is an explicit conversion cast(T, x).
type Cast struct {
	Type TypeExpr
	X    Expr
	Span position.Span
}

func (t *NamedType) GetSpan() position.Span    { return t.Span }
func (t *RefType) GetSpan() position.Span      { return t.Span }
func (t *NullableType) GetSpan() position.Span { return t.Span }
func (t *FuncType) GetSpan() position.Span     { return t.Span }
func (d *TypeParam) GetSpan() position.Span    { return d.Span }
func (d *Param) GetSpan() position.Span        { return d.Span }
func (d *FunctionDef) GetSpan() position.Span  { return d.Span }
func (d *Field) GetSpan() position.Span        { return d.Span }
func (d *ClassDef) GetSpan() position.Span     { return d.Span }
func (d *TraitDef) GetSpan() position.Span     { return d.Span }
func (d *AliasDef) GetSpan() position.Span     { return d.Span }
func (s *VarDecl) GetSpan() position.Span      { return s.Span }
func (s *Assign) GetSpan() position.Span       { return s.Span }
func (s *ExprStmt) GetSpan() position.Span     { return s.Span }
func (s *Return) GetSpan() position.Span       { return s.Span }
func (s *If) GetSpan() position.Span           { return s.Span }
func (s *While) GetSpan() position.Span        { return s.Span }
func (s *For) GetSpan() position.Span          { return s.Span }
func (s *Break) GetSpan() position.Span        { return s.Span }
func (s *Continue) GetSpan() position.Span     { return s.Span }
func (s *Pass) GetSpan() position.Span         { return s.Span }
func (s *ExceptClause) GetSpan() position.Span { return s.Span }
func (s *Try) GetSpan() position.Span          { return s.Span }
func (s *Raise) GetSpan() position.Span        { return s.Span }
func (s *Del) GetSpan() position.Span          { return s.Span }
func (e *Name) GetSpan() position.Span         { return e.Span }
func (e *IntLit) GetSpan() position.Span       { return e.Span }
func (e *FloatLit) GetSpan() position.Span     { return e.Span }
func (e *StrLit) GetSpan() position.Span       { return e.Span }
func (e *BoolLit) GetSpan() position.Span      { return e.Span }
func (e *NoneLit) GetSpan() position.Span      { return e.Span }
func (e *Keyword) GetSpan() position.Span      { return e.Span }
func (e *Call) GetSpan() position.Span         { return e.Span }
func (e *TypeApply) GetSpan() position.Span    { return e.Span }
func (e *Attribute) GetSpan() position.Span    { return e.Span }
func (e *Index) GetSpan() position.Span        { return e.Span }
func (e *RefExpr) GetSpan() position.Span      { return e.Span }
func (e *Binary) GetSpan() position.Span       { return e.Span }
func (e *Unary) GetSpan() position.Span        { return e.Span }
func (e *TupleLit) GetSpan() position.Span     { return e.Span }
func (e *ListLit) GetSpan() position.Span      { return e.Span }
func (e *SetLit) GetSpan() position.Span       { return e.Span }
func (e *DictLit) GetSpan() position.Span      { return e.Span }
func (e *Cast) GetSpan() position.Span         { return e.Span }

func (*NamedType) typeNode()    {}
func (*RefType) typeNode()      {}
func (*NullableType) typeNode() {}
func (*FuncType) typeNode()     {}

func (*FunctionDef) stmtNode() {}
func (*ClassDef) stmtNode()    {}
func (*TraitDef) stmtNode()    {}
func (*AliasDef) stmtNode()    {}
func (*VarDecl) stmtNode()     {}
func (*Assign) stmtNode()      {}
func (*ExprStmt) stmtNode()    {}
func (*Return) stmtNode()      {}
func (*If) stmtNode()          {}
func (*While) stmtNode()       {}
func (*For) stmtNode()         {}
func (*Break) stmtNode()       {}
func (*Continue) stmtNode()    {}
func (*Pass) stmtNode()        {}
func (*Try) stmtNode()         {}
func (*Raise) stmtNode()       {}
func (*Del) stmtNode()         {}

func (*Name) exprNode()      {}
func (*IntLit) exprNode()    {}
func (*FloatLit) exprNode()  {}
func (*StrLit) exprNode()    {}
func (*BoolLit) exprNode()   {}
func (*NoneLit) exprNode()   {}
func (*Call) exprNode()      {}
func (*TypeApply) exprNode() {}
func (*Attribute) exprNode() {}
func (*Index) exprNode()     {}
func (*RefExpr) exprNode()   {}
func (*Binary) exprNode()    {}
func (*Unary) exprNode()     {}
func (*TupleLit) exprNode()  {}
func (*ListLit) exprNode()   {}
func (*SetLit) exprNode()    {}
func (*DictLit) exprNode()   {}
func (*Cast) exprNode()      {}

// IsMethod reports whether the function takes self as its first parameter.
func (d *FunctionDef) IsMethod() bool {
	return len(d.Params) > 0 && d.Params[0].Name == "self"
}
