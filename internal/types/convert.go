package types

import "fmt"

// ====== Conversion Policy ======

// Conversion describes how a value of one type reaches a location of
// another type.
type Conversion int

const (
	// ConvIdentity needs no conversion.
	ConvIdentity Conversion = iota
	// ConvNumeric widens, narrows or specializes a numeric value.
	ConvNumeric
	// ConvBorrow implicitly borrows an owner for a &T location.
	ConvBorrow
	// ConvBorrowMut implicitly borrows an owner for a &mut T location.
	ConvBorrowMut
	// ConvNullable wraps a value or None into T?.
	ConvNullable
	// ConvTrait binds a concrete value to a trait-typed location.
	ConvTrait
)

func (c Conversion) String() string {
	switch c {
	case ConvIdentity:
		return "identity"
	case ConvNumeric:
		return "numeric"
	case ConvBorrow:
		return "borrow"
	case ConvBorrowMut:
		return "borrow-mut"
	case ConvNullable:
		return "nullable"
	case ConvTrait:
		return "trait"
	default:
		return "unknown"
	}
}

// Site selects the conversion rules of a binding location.
type Site int

const (
	// SiteAssign covers declarations, assignments and returns.
	SiteAssign Site = iota
	// SiteArgument covers call arguments, which may borrow implicitly.
	SiteArgument
)

// Conformance answers whether a concrete type implements a trait.
type Conformance interface {
	Implements(trait *Trait, concrete Type) bool
}

// StrictError reports an implicit numeric conversion while automatic
// casting is disabled.
type StrictError struct {
	Expected Type
	Actual   Type
}

func (e *StrictError) Error() string {
	return fmt.Sprintf("implicit conversion from %s to %s requires an explicit cast", e.Actual, e.Expected)
}

// NotImplementedError reports a value bound to a trait its type does not
// implement.
type NotImplementedError struct {
	Trait    *Trait
	Concrete Type
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s does not implement %s", e.Concrete, e.Trait)
}

// Convert decides how a value of type from is bound to a location of
// type to. It returns *MismatchError, *StrictError or
// *NotImplementedError when the binding is illegal.
func Convert(to, from Type, autoCast bool, site Site, conf Conformance) (Conversion, error) {
	if IsUnresolved(to) || IsUnresolved(from) || Equal(to, from) {
		return ConvIdentity, nil
	}

	switch t := to.(type) {
	case *Primitive:
		if IsNumeric(t) && IsNumeric(from) {
			return convertNumeric(t, from.(*Primitive), autoCast)
		}

	case *Nullable:
		if p, ok := from.(*Primitive); ok && p.Group == GroupNone {
			return ConvNullable, nil
		}
		if _, ok := from.(*Nullable); ok {
			break
		}
		if _, err := Convert(t.Inner, from, autoCast, SiteAssign, conf); err != nil {
			return 0, err
		}
		return ConvNullable, nil

	case *Reference:
		if r, ok := from.(*Reference); ok {
			if t.Mutable && !r.Mutable {
				break
			}
			if Equal(t.Target, r.Target) {
				return ConvIdentity, nil
			}
			break
		}
		if site == SiteArgument && Equal(t.Target, from) {
			if t.Mutable {
				return ConvBorrowMut, nil
			}
			return ConvBorrow, nil
		}

	case *Trait:
		concrete := Deref(from)
		if _, ok := concrete.(*Trait); ok {
			break
		}
		if conf != nil && conf.Implements(t, concrete) {
			return ConvTrait, nil
		}
		return 0, &NotImplementedError{Trait: t, Concrete: concrete}
	}

	return 0, &MismatchError{Expected: to, Actual: from}
}

func convertNumeric(to, from *Primitive, autoCast bool) (Conversion, error) {
	if IsUntyped(to) {
		return ConvIdentity, nil
	}
	if literalFits(from, to) || autoCast {
		return ConvNumeric, nil
	}
	return 0, &StrictError{Expected: to, Actual: from}
}

// literalFits reports whether an untyped literal type adapts to t without
// an explicit cast: integer literals fit every numeric type, float
// literals fit float types.
func literalFits(lit, t Type) bool {
	if IsUntyped(t) || !IsNumeric(t) {
		return false
	}
	switch lit {
	case AnyInt:
		return true
	case AnyFloat:
		return IsFloat(t)
	}
	return false
}

// Widen returns the operand type an arithmetic operation on a and b is
// performed in: floats beat integers, signed beats unsigned, then more
// bits wins. Untyped literals yield to typed operands.
func Widen(a, b *Primitive) *Primitive {
	if IsUntyped(a) && IsUntyped(b) {
		if a == AnyFloat || b == AnyFloat {
			return AnyFloat
		}
		return AnyInt
	}
	if IsUntyped(a) {
		return literalWiden(a, b)
	}
	if IsUntyped(b) {
		return literalWiden(b, a)
	}

	if (a.Group == GroupFloat) != (b.Group == GroupFloat) {
		if a.Group == GroupFloat {
			return a
		}
		return b
	}
	if a.Signed != b.Signed {
		if a.Signed {
			return a
		}
		return b
	}
	if b.Bits > a.Bits {
		return b
	}
	return a
}

func literalWiden(lit, typed *Primitive) *Primitive {
	if lit == AnyFloat && typed.Group != GroupFloat {
		return Float
	}
	return typed
}

// Arithmetic decides the result type of a numeric binary operation.
func Arithmetic(a, b *Primitive, autoCast bool) (*Primitive, error) {
	if a.Name == b.Name {
		return a, nil
	}
	if autoCast || IsUntyped(a) || IsUntyped(b) {
		w := Widen(a, b)
		if !autoCast {
			lit, typed := a, b
			if !IsUntyped(lit) {
				lit, typed = b, a
			}
			if !IsUntyped(typed) && !literalFits(lit, typed) {
				return nil, &StrictError{Expected: typed, Actual: lit}
			}
		}
		return w, nil
	}
	return nil, &StrictError{Expected: a, Actual: b}
}
