// Package types defines the canonical type model of the ragaz semantic
// core: primitives, generic parameters, instantiated generics, function,
// reference, nullable and trait types, together with substitution,
// unification and the numeric conversion policy.
package types

import (
	"fmt"
	"strings"
)

// ====== Core Type Model ======

// Kind identifies the variant of a Type.
type Kind int

const (
	KindPrimitive Kind = iota
	KindParam
	KindInstance
	KindFunction
	KindReference
	KindNullable
	KindTrait
	KindUnresolved
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindParam:
		return "param"
	case KindInstance:
		return "instance"
	case KindFunction:
		return "function"
	case KindReference:
		return "reference"
	case KindNullable:
		return "nullable"
	case KindTrait:
		return "trait"
	case KindUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Type is a canonical, structurally comparable type.
type Type interface {
	Kind() Kind
	// String renders the type in canonical annotation syntax.
	String() string
}

// Group classifies primitives.
type Group int

const (
	GroupVoid Group = iota
	GroupBool
	GroupInt
	GroupFloat
	GroupStr
	GroupNone
	// Untyped literal groups adapt to the expected type.
	GroupUntypedInt
	GroupUntypedFloat
)

// Primitive is a builtin scalar type.
type Primitive struct {
	Name   string
	Group  Group
	Bits   int
	Signed bool
}

// Param is a generic type parameter.
type Param struct {
	Name string
}

// Instance is a class or builtin container, possibly with type arguments.
type Instance struct {
	Name string
	Args []Type
}

// Function is the type of a function value.
type Function struct {
	Result Type
	Params []Type
}

// Reference is a borrow of Target.
type Reference struct {
	Target  Type
	Mutable bool
}

// Nullable is Inner or None.
type Nullable struct {
	Inner Type
}

// Trait is a trait used as a type.
type Trait struct {
	Name string
	Args []Type
}

// Unresolved marks an expression whose type could not be determined. It
// is compatible with everything so that one error does not cascade.
type Unresolved struct {
	ID int
}

func (*Primitive) Kind() Kind  { return KindPrimitive }
func (*Param) Kind() Kind      { return KindParam }
func (*Instance) Kind() Kind   { return KindInstance }
func (*Function) Kind() Kind   { return KindFunction }
func (*Reference) Kind() Kind  { return KindReference }
func (*Nullable) Kind() Kind   { return KindNullable }
func (*Trait) Kind() Kind      { return KindTrait }
func (*Unresolved) Kind() Kind { return KindUnresolved }

func (t *Primitive) String() string { return t.Name }
func (t *Param) String() string     { return t.Name }

func (t *Instance) String() string { return withArgs(t.Name, t.Args) }
func (t *Trait) String() string    { return withArgs(t.Name, t.Args) }

func (t *Function) String() string {
	res := "void"
	if t.Result != nil {
		res = t.Result.String()
	}
	return "def(" + join(t.Params) + ") -> " + res
}

func (t *Reference) String() string {
	if t.Mutable {
		return "&mut " + t.Target.String()
	}
	return "&" + t.Target.String()
}

func (t *Nullable) String() string   { return t.Inner.String() + "?" }
func (t *Unresolved) String() string { return fmt.Sprintf("?%d", t.ID) }

func withArgs(name string, args []Type) string {
	if len(args) == 0 {
		return name
	}
	return name + "<" + join(args) + ">"
}

func join(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// ====== Builtin Types ======

// MaxTupleElements bounds the arity of tuple types.
const MaxTupleElements = 8

var (
	Void     = &Primitive{Name: "void", Group: GroupVoid}
	Bool     = &Primitive{Name: "bool", Group: GroupBool, Bits: 1}
	Byte     = &Primitive{Name: "byte", Group: GroupInt, Bits: 8}
	I8       = &Primitive{Name: "i8", Group: GroupInt, Bits: 8, Signed: true}
	I16      = &Primitive{Name: "i16", Group: GroupInt, Bits: 16, Signed: true}
	I32      = &Primitive{Name: "i32", Group: GroupInt, Bits: 32, Signed: true}
	I64      = &Primitive{Name: "i64", Group: GroupInt, Bits: 64, Signed: true}
	I128     = &Primitive{Name: "i128", Group: GroupInt, Bits: 128, Signed: true}
	U8       = &Primitive{Name: "u8", Group: GroupInt, Bits: 8}
	U16      = &Primitive{Name: "u16", Group: GroupInt, Bits: 16}
	U32      = &Primitive{Name: "u32", Group: GroupInt, Bits: 32}
	U64      = &Primitive{Name: "u64", Group: GroupInt, Bits: 64}
	U128     = &Primitive{Name: "u128", Group: GroupInt, Bits: 128}
	Int      = &Primitive{Name: "int", Group: GroupInt, Bits: 64, Signed: true}
	Uint     = &Primitive{Name: "uint", Group: GroupInt, Bits: 64}
	F32      = &Primitive{Name: "f32", Group: GroupFloat, Bits: 32, Signed: true}
	F64      = &Primitive{Name: "f64", Group: GroupFloat, Bits: 64, Signed: true}
	Float    = &Primitive{Name: "float", Group: GroupFloat, Bits: 64, Signed: true}
	Str      = &Primitive{Name: "str", Group: GroupStr}
	None     = &Primitive{Name: "none", Group: GroupNone}
	AnyInt   = &Primitive{Name: "anyint", Group: GroupUntypedInt, Signed: true}
	AnyFloat = &Primitive{Name: "anyfloat", Group: GroupUntypedFloat, Signed: true}
)

// Primitives lists the primitives addressable by name in annotations.
var Primitives = []*Primitive{
	Void, Bool, Byte, I8, I16, I32, I64, I128, U8, U16, U32, U64, U128,
	Int, Uint, F32, F64, Float, Str,
}

// Tuple returns the tuple type of elems.
func Tuple(elems ...Type) *Instance {
	return &Instance{Name: "tuple", Args: elems}
}

// RefTo returns a reference to t.
func RefTo(t Type, mutable bool) *Reference {
	return &Reference{Target: t, Mutable: mutable}
}

// Deref strips one level of reference.
func Deref(t Type) Type {
	if r, ok := t.(*Reference); ok {
		return r.Target
	}
	return t
}

// ====== Equality and Classification ======

// Equal reports whether a and b are structurally identical.
func Equal(a, b Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	switch a := a.(type) {
	case *Primitive:
		b, ok := b.(*Primitive)
		return ok && a.Name == b.Name
	case *Param:
		b, ok := b.(*Param)
		return ok && a.Name == b.Name
	case *Instance:
		b, ok := b.(*Instance)
		return ok && a.Name == b.Name && equalList(a.Args, b.Args)
	case *Trait:
		b, ok := b.(*Trait)
		return ok && a.Name == b.Name && equalList(a.Args, b.Args)
	case *Function:
		b, ok := b.(*Function)
		return ok && equalList(a.Params, b.Params) && Equal(orVoid(a.Result), orVoid(b.Result))
	case *Reference:
		b, ok := b.(*Reference)
		return ok && a.Mutable == b.Mutable && Equal(a.Target, b.Target)
	case *Nullable:
		b, ok := b.(*Nullable)
		return ok && Equal(a.Inner, b.Inner)
	case *Unresolved:
		b, ok := b.(*Unresolved)
		return ok && a.ID == b.ID
	}
	return false
}

func orVoid(t Type) Type {
	if t == nil {
		return Void
	}
	return t
}

func equalList(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// IsNumeric reports whether t is an integer or float type, typed or not.
func IsNumeric(t Type) bool {
	p, ok := t.(*Primitive)
	if !ok {
		return false
	}
	switch p.Group {
	case GroupInt, GroupFloat, GroupUntypedInt, GroupUntypedFloat:
		return true
	}
	return false
}

// IsInteger reports whether t is an integer type, typed or not.
func IsInteger(t Type) bool {
	p, ok := t.(*Primitive)
	return ok && (p.Group == GroupInt || p.Group == GroupUntypedInt)
}

// IsFloat reports whether t is a float type, typed or not.
func IsFloat(t Type) bool {
	p, ok := t.(*Primitive)
	return ok && (p.Group == GroupFloat || p.Group == GroupUntypedFloat)
}

// IsUntyped reports whether t is the type of an unadapted literal.
func IsUntyped(t Type) bool {
	p, ok := t.(*Primitive)
	return ok && (p.Group == GroupUntypedInt || p.Group == GroupUntypedFloat)
}

// IsUnresolved reports whether t carries an earlier failure.
func IsUnresolved(t Type) bool {
	_, ok := t.(*Unresolved)
	return ok
}

// IsVoid reports whether t is void or absent.
func IsVoid(t Type) bool {
	return t == nil || Equal(t, Void)
}

// Default returns the concrete type an untyped literal type settles on
// when nothing constrains it.
func Default(t Type) Type {
	switch t {
	case AnyInt:
		return Int
	case AnyFloat:
		return Float
	}
	return t
}

// IsCopy reports whether values of t are copied rather than moved.
func IsCopy(t Type) bool {
	switch t := t.(type) {
	case *Primitive:
		return t.Group != GroupStr
	case *Reference, *Function, *Unresolved:
		return true
	case *Nullable:
		return IsCopy(t.Inner)
	}
	return false
}

// HasParams reports whether t mentions any generic parameter.
func HasParams(t Type) bool {
	switch t := t.(type) {
	case *Param:
		return true
	case *Instance:
		return anyHasParams(t.Args)
	case *Trait:
		return anyHasParams(t.Args)
	case *Function:
		return anyHasParams(t.Params) || (t.Result != nil && HasParams(t.Result))
	case *Reference:
		return HasParams(t.Target)
	case *Nullable:
		return HasParams(t.Inner)
	}
	return false
}

func anyHasParams(ts []Type) bool {
	for _, t := range ts {
		if HasParams(t) {
			return true
		}
	}
	return false
}
