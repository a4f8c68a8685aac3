// Package mir defines the mid-level IR handed to the code generator.
// Functions are lists of basic blocks over stack slots; every block ends
// with exactly one terminator.
package mir

import (
	"fmt"
	"strconv"
	"strings"
)

// Module is a lowered compilation unit.
type Module struct {
	Name       string
	Functions  []*Function
	Tables     []*Table
	Exceptions []ExceptionType
}

// Function is a collection of basic blocks. Extern functions have no
// blocks.
type Function struct {
	Name       string
	Parameters []Value
	Blocks     []*BasicBlock
	Result     string
	Extern     bool
}

// BasicBlock is a sequence of instructions ending with a terminator.
type BasicBlock struct {
	Name  string
	Instr []Instr
	// Pad receives exceptions raised by instructions of this block.
	Pad *LandingPad
}

// LandingPad routes a raised exception to the first clause whose type id
// matches. Exceptions no clause matches continue in Outer, or leave the
// function when Outer is nil.
type LandingPad struct {
	Outer   *LandingPad
	Name    string
	Clauses []Clause
}

// Clause is one handler of a landing pad.
type Clause struct {
	Target string
	TypeID int
}

// Table is a dispatch table: Entries are the implementing functions in
// trait slot order.
type Table struct {
	Name     string
	Trait    string
	Concrete string
	Entries  []string
	TypeTag  int
}

// ExceptionType assigns a runtime id to an exception type.
type ExceptionType struct {
	Name string
	ID   int
}

const (
	// BaseExceptionID is the id of the Exception trait; a clause with it
	// matches every exception.
	BaseExceptionID = 0
	// TagFromValue marks a raise whose type id is read from the raised
	// value at run time.
	TagFromValue = -1
	// ExceptionRef names the in-flight exception inside handler blocks.
	ExceptionRef = "%exc"
)

// ====== Values ======

// Value is an operand: a constant, a local result, or a function.
type Value struct {
	Kind ValueKind
	// For constants
	Int64   int64
	Float64 float64
	Str     string
	// Ref names a result, a slot address or a function.
	Ref string
	// Lightweight type class hint for lowering
	Class ValueClass
}

// ValueKind classifies the value category.
type ValueKind int

const (
	ValInvalid ValueKind = iota
	ValConstInt
	ValConstFloat
	ValConstBool
	ValConstStr
	ValNone
	ValRef
	ValFunc
)

// ValueClass is a minimal type class for code generation decisions.
type ValueClass int

const (
	ClassUnknown ValueClass = iota
	ClassInt                // integers and booleans
	ClassFloat              // floating point
	ClassPtr                // strings, objects, references and functions
)

func (c ValueClass) String() string {
	switch c {
	case ClassInt:
		return "int"
	case ClassFloat:
		return "float"
	case ClassPtr:
		return "ptr"
	default:
		return "unknown"
	}
}

// IntConst returns an integer constant.
func IntConst(v int64) Value { return Value{Kind: ValConstInt, Int64: v, Class: ClassInt} }

// FloatConst returns a floating point constant.
func FloatConst(v float64) Value { return Value{Kind: ValConstFloat, Float64: v, Class: ClassFloat} }

// BoolConst returns a boolean constant.
func BoolConst(v bool) Value {
	c := Value{Kind: ValConstBool, Class: ClassInt}
	if v {
		c.Int64 = 1
	}
	return c
}

// StrConst returns a string constant.
func StrConst(s string) Value { return Value{Kind: ValConstStr, Str: s, Class: ClassPtr} }

// NoneConst returns the None value.
func NoneConst() Value { return Value{Kind: ValNone, Class: ClassPtr} }

// Ref returns a reference to a named result.
func Ref(name string, class ValueClass) Value { return Value{Kind: ValRef, Ref: name, Class: class} }

// Func returns a reference to a function by mangled name.
func Func(name string) Value { return Value{Kind: ValFunc, Ref: name, Class: ClassPtr} }

func (v Value) String() string {
	switch v.Kind {
	case ValConstInt:
		return strconv.FormatInt(v.Int64, 10)
	case ValConstFloat:
		return strconv.FormatFloat(v.Float64, 'g', -1, 64)
	case ValConstBool:
		return strconv.FormatBool(v.Int64 != 0)
	case ValConstStr:
		return strconv.Quote(v.Str)
	case ValNone:
		return "none"
	case ValRef:
		if v.Ref == "" {
			return "%ref?"
		}
		return v.Ref
	case ValFunc:
		return "@" + v.Ref
	default:
		return "<invalid>"
	}
}

// ====== Instructions ======

// Instr is implemented by all MIR instructions.
type Instr interface {
	isInstr()
	String() string
}

// Alloca reserves a slot for a local and returns its address. Heap slots
// hold values that outlive the function.
type Alloca struct {
	Dst  string
	Name string
	Type string
	Heap bool
}

// Load reads the value stored at an address.
type Load struct {
	Dst  string
	Addr Value
}

// Store writes a value to an address.
type Store struct {
	Addr Value
	Val  Value
}

// Const materializes a constant.
type Const struct {
	Dst string
	Val Value
}

// BinOp is a binary arithmetic or bitwise operation.
type BinOp struct {
	Dst string
	Op  BinOpKind
	LHS Value
	RHS Value
}

// UnOp is a unary operation.
type UnOp struct {
	Dst string
	Op  UnOpKind
	X   Value
}

// Cmp produces a boolean from two operands.
type Cmp struct {
	Dst  string
	Pred CmpPred
	LHS  Value
	RHS  Value
}

// Cast converts a value between numeric types, or wraps it as nullable.
type Cast struct {
	Dst  string
	X    Value
	From string
	To   string
}

// Call calls a function by mangled name.
type Call struct {
	Dst    string
	Callee string
	Args   []Value
}

// CallDynamic calls the method in Slot of the dispatch table carried by
// the trait object Recv.
type CallDynamic struct {
	Dst   string
	Recv  Value
	Trait string
	Name  string
	Args  []Value
	Slot  int
}

// CallValue calls a function value.
type CallValue struct {
	Dst  string
	Fn   Value
	Args []Value
}

// Field reads the attribute at Index of the object X.
type Field struct {
	Dst   string
	X     Value
	Name  string
	Index int
}

// SetField writes the attribute at Index of the object X.
type SetField struct {
	X     Value
	Val   Value
	Name  string
	Index int
}

// Index reads an element of a container.
type Index struct {
	Dst   string
	X     Value
	Index Value
}

// SetIndex writes an element of a container.
type SetIndex struct {
	X     Value
	Index Value
	Val   Value
}

// MakeAggregate builds a tuple, container or trait object from Elems.
type MakeAggregate struct {
	Dst   string
	Type  string
	Elems []Value
	// Table is the dispatch table of a trait object.
	Table string
	Kind  AggregateKind
}

// New allocates an uninitialized object of a class.
type New struct {
	Dst  string
	Type string
}

// AddrOf takes the address of a slot, or of attribute Field of the
// object in Slot when Field is not negative.
type AddrOf struct {
	Dst   string
	Slot  Value
	Field int
}

// Drop releases a value.
type Drop struct {
	Val  Value
	Type string
}

// Raise throws Value tagged with TypeID.
type Raise struct {
	Value  Value
	TypeID int
}

// Ret returns from the current function with an optional value.
type Ret struct{ Val *Value }

// Br is an unconditional branch to a target basic block label.
type Br struct{ Target string }

// CondBr branches on a boolean value.
type CondBr struct {
	Cond  Value
	True  string
	False string
}

func (Alloca) isInstr()        {}
func (Load) isInstr()          {}
func (Store) isInstr()         {}
func (Const) isInstr()         {}
func (BinOp) isInstr()         {}
func (UnOp) isInstr()          {}
func (Cmp) isInstr()           {}
func (Cast) isInstr()          {}
func (Call) isInstr()          {}
func (CallDynamic) isInstr()   {}
func (CallValue) isInstr()     {}
func (Field) isInstr()         {}
func (SetField) isInstr()      {}
func (Index) isInstr()         {}
func (SetIndex) isInstr()      {}
func (MakeAggregate) isInstr() {}
func (New) isInstr()           {}
func (AddrOf) isInstr()        {}
func (Drop) isInstr()          {}
func (Raise) isInstr()         {}
func (Ret) isInstr()           {}
func (Br) isInstr()            {}
func (CondBr) isInstr()        {}

// IsTerminator reports whether in ends a basic block.
func IsTerminator(in Instr) bool {
	switch in.(type) {
	case Ret, Br, CondBr, Raise:
		return true
	}
	return false
}

// Successors returns the labels a terminator may branch to.
func Successors(in Instr) []string {
	switch in := in.(type) {
	case Br:
		return []string{in.Target}
	case CondBr:
		return []string{in.True, in.False}
	}
	return nil
}

// BinOpKind enumerates supported binary operations at MIR level.
type BinOpKind int

const (
	OpAdd BinOpKind = iota
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpPow
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
)

func (k BinOpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpFloorDiv:
		return "floordiv"
	case OpMod:
		return "mod"
	case OpPow:
		return "pow"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpXor:
		return "xor"
	case OpShl:
		return "shl"
	case OpShr:
		return "shr"
	default:
		return "binop?"
	}
}

// UnOpKind enumerates unary operations.
type UnOpKind int

const (
	OpNeg UnOpKind = iota
	OpNot
	OpBitNot
)

func (k UnOpKind) String() string {
	switch k {
	case OpNeg:
		return "neg"
	case OpNot:
		return "not"
	case OpBitNot:
		return "bitnot"
	default:
		return "unop?"
	}
}

// CmpPred enumerates compare predicates.
type CmpPred int

const (
	// Generic equality
	CmpEQ CmpPred = iota
	CmpNE
	// Signed integer comparisons
	CmpSLT
	CmpSLE
	CmpSGT
	CmpSGE
	// Unsigned integer comparisons
	CmpULT
	CmpULE
	CmpUGT
	CmpUGE
	// Floating-point comparisons
	CmpFLT
	CmpFLE
	CmpFGT
	CmpFGE
)

func (p CmpPred) String() string {
	switch p {
	case CmpEQ:
		return "eq"
	case CmpNE:
		return "ne"
	case CmpSLT:
		return "slt"
	case CmpSLE:
		return "sle"
	case CmpSGT:
		return "sgt"
	case CmpSGE:
		return "sge"
	case CmpULT:
		return "ult"
	case CmpULE:
		return "ule"
	case CmpUGT:
		return "ugt"
	case CmpUGE:
		return "uge"
	case CmpFLT:
		return "flt"
	case CmpFLE:
		return "fle"
	case CmpFGT:
		return "fgt"
	case CmpFGE:
		return "fge"
	default:
		return "cmp?"
	}
}

// AggregateKind classifies MakeAggregate.
type AggregateKind int

const (
	AggTuple AggregateKind = iota
	AggList
	AggSet
	AggDict
	AggTraitObject
)

func (k AggregateKind) String() string {
	switch k {
	case AggTuple:
		return "tuple"
	case AggList:
		return "list"
	case AggSet:
		return "set"
	case AggDict:
		return "dict"
	case AggTraitObject:
		return "object"
	default:
		return "aggregate?"
	}
}

// ====== Verification ======

// Verify checks that function and table names are unique, that every
// block of every function ends with exactly one terminator and that branch
// targets exist.
func (m *Module) Verify() error {
	names := make(map[string]bool, len(m.Functions))
	for _, f := range m.Functions {
		if names[f.Name] {
			return fmt.Errorf("module %s: duplicate function %s", m.Name, f.Name)
		}
		names[f.Name] = true
		if err := f.Verify(); err != nil {
			return err
		}
	}
	tables := make(map[string]bool, len(m.Tables))
	for _, tab := range m.Tables {
		if tables[tab.Name] {
			return fmt.Errorf("module %s: duplicate table %s", m.Name, tab.Name)
		}
		tables[tab.Name] = true
	}
	return nil
}

// Verify checks the block structure of f.
func (f *Function) Verify() error {
	if f.Extern {
		if len(f.Blocks) > 0 {
			return fmt.Errorf("extern function %s has a body", f.Name)
		}
		return nil
	}
	if len(f.Blocks) == 0 {
		return fmt.Errorf("function %s has no blocks", f.Name)
	}
	labels := make(map[string]bool, len(f.Blocks))
	for _, bb := range f.Blocks {
		if labels[bb.Name] {
			return fmt.Errorf("function %s: duplicate block %s", f.Name, bb.Name)
		}
		labels[bb.Name] = true
	}
	for _, bb := range f.Blocks {
		n := len(bb.Instr)
		if n == 0 || !IsTerminator(bb.Instr[n-1]) {
			return fmt.Errorf("function %s: block %s does not end with a terminator", f.Name, bb.Name)
		}
		for _, in := range bb.Instr[:n-1] {
			if IsTerminator(in) {
				return fmt.Errorf("function %s: block %s has a terminator before its end", f.Name, bb.Name)
			}
		}
		for _, target := range Successors(bb.Instr[n-1]) {
			if !labels[target] {
				return fmt.Errorf("function %s: block %s branches to unknown block %s", f.Name, bb.Name, target)
			}
		}
		for pad := bb.Pad; pad != nil; pad = pad.Outer {
			for _, c := range pad.Clauses {
				if !labels[c.Target] {
					return fmt.Errorf("function %s: landing pad %s targets unknown block %s", f.Name, pad.Name, c.Target)
				}
			}
		}
	}
	return nil
}

// ====== Printer ======

func (m *Module) String() string {
	if m == nil {
		return "<nil-mir-module>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n", m.Name)
	for _, e := range m.Exceptions {
		fmt.Fprintf(&b, "exception %s = %d\n", e.Name, e.ID)
	}
	for _, t := range m.Tables {
		fmt.Fprintf(&b, "table %s tag %d [%s]\n", t.Name, t.TypeTag, strings.Join(t.Entries, ", "))
	}
	for _, f := range m.Functions {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func (f *Function) String() string {
	if f == nil {
		return "<nil-func>"
	}
	var b strings.Builder
	if f.Extern {
		b.WriteString("extern ")
	}
	fmt.Fprintf(&b, "func %s(", f.Name)
	for i, p := range f.Parameters {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(")")
	if f.Result != "" && f.Result != "void" {
		fmt.Fprintf(&b, " %s", f.Result)
	}
	if f.Extern {
		b.WriteByte('\n')
		return b.String()
	}
	b.WriteString(" {\n")
	for _, bb := range f.Blocks {
		b.WriteString(bb.String())
	}
	b.WriteString("}\n")
	return b.String()
}

func (bb *BasicBlock) String() string {
	if bb == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(bb.Name)
	b.WriteByte(':')
	if bb.Pad != nil {
		fmt.Fprintf(&b, " ; unwind %s", bb.Pad)
	}
	b.WriteByte('\n')
	for _, in := range bb.Instr {
		b.WriteString("  ")
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func (p *LandingPad) String() string {
	parts := make([]string, len(p.Clauses))
	for i, c := range p.Clauses {
		parts[i] = fmt.Sprintf("%d -> %s", c.TypeID, c.Target)
	}
	s := fmt.Sprintf("%s [%s]", p.Name, strings.Join(parts, ", "))
	if p.Outer != nil {
		s += " then " + p.Outer.Name
	}
	return s
}

func values(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func assign(dst, s string) string {
	if dst == "" {
		return s
	}
	return dst + " = " + s
}

func (i Alloca) String() string {
	s := fmt.Sprintf("%s = alloca %s", i.Dst, i.Type)
	if i.Heap {
		s = fmt.Sprintf("%s = alloca.heap %s", i.Dst, i.Type)
	}
	if i.Name != "" {
		s += " ; " + i.Name
	}
	return s
}

func (i Load) String() string  { return fmt.Sprintf("%s = load %s", i.Dst, i.Addr) }
func (i Store) String() string { return fmt.Sprintf("store %s, %s", i.Addr, i.Val) }
func (i Const) String() string { return fmt.Sprintf("%s = const %s", i.Dst, i.Val) }

func (i BinOp) String() string {
	return assign(i.Dst, fmt.Sprintf("%s %s, %s", i.Op, i.LHS, i.RHS))
}

func (i UnOp) String() string { return assign(i.Dst, fmt.Sprintf("%s %s", i.Op, i.X)) }

func (i Cmp) String() string {
	return assign(i.Dst, fmt.Sprintf("cmp.%s %s, %s", i.Pred, i.LHS, i.RHS))
}

func (i Cast) String() string {
	return fmt.Sprintf("%s = cast %s %s to %s", i.Dst, i.From, i.X, i.To)
}

func (i Call) String() string {
	return assign(i.Dst, fmt.Sprintf("call %s(%s)", i.Callee, values(i.Args)))
}

func (i CallDynamic) String() string {
	return assign(i.Dst, fmt.Sprintf("call.dyn %s[%d] %s.%s(%s)", i.Recv, i.Slot, i.Trait, i.Name, values(i.Args)))
}

func (i CallValue) String() string {
	return assign(i.Dst, fmt.Sprintf("call.value %s(%s)", i.Fn, values(i.Args)))
}

func (i Field) String() string {
	return fmt.Sprintf("%s = field %s, %d ; %s", i.Dst, i.X, i.Index, i.Name)
}

func (i SetField) String() string {
	return fmt.Sprintf("setfield %s, %d, %s ; %s", i.X, i.Index, i.Val, i.Name)
}

func (i Index) String() string { return fmt.Sprintf("%s = index %s, %s", i.Dst, i.X, i.Index) }

func (i SetIndex) String() string {
	return fmt.Sprintf("setindex %s, %s, %s", i.X, i.Index, i.Val)
}

func (i MakeAggregate) String() string {
	s := fmt.Sprintf("%s = make.%s %s {%s}", i.Dst, i.Kind, i.Type, values(i.Elems))
	if i.Table != "" {
		s += " with " + i.Table
	}
	return s
}

func (i New) String() string { return fmt.Sprintf("%s = new %s", i.Dst, i.Type) }

func (i AddrOf) String() string {
	if i.Field >= 0 {
		return fmt.Sprintf("%s = addrof %s.%d", i.Dst, i.Slot, i.Field)
	}
	return fmt.Sprintf("%s = addrof %s", i.Dst, i.Slot)
}

func (i Drop) String() string { return fmt.Sprintf("drop %s %s", i.Type, i.Val) }

func (i Raise) String() string {
	if i.TypeID == TagFromValue {
		return fmt.Sprintf("raise %s", i.Value)
	}
	return fmt.Sprintf("raise %s, %d", i.Value, i.TypeID)
}

func (i Ret) String() string {
	if i.Val == nil {
		return "ret"
	}
	return fmt.Sprintf("ret %s", i.Val)
}

func (i Br) String() string { return fmt.Sprintf("br %s", i.Target) }

func (i CondBr) String() string {
	return fmt.Sprintf("brcond %s, %s, %s", i.Cond, i.True, i.False)
}
