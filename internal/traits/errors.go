package traits

import (
	"fmt"

	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// DuplicateImplError reports a second implementation of a trait for the
// same concrete type.
type DuplicateImplError struct {
	Trait    *types.Trait
	Concrete types.Type
}

func (e *DuplicateImplError) Error() string {
	return fmt.Sprintf("%s is already implemented for %s", e.Trait, e.Concrete)
}

// NoImplementationError reports a method that no own method or impl
// provides.
type NoImplementationError struct {
	Receiver  types.Type
	Trait     *types.Trait
	Method    string
	Ambiguous bool
}

func (e *NoImplementationError) Error() string {
	switch {
	case e.Ambiguous:
		return fmt.Sprintf("method %s of %s is provided by more than one trait", e.Method, e.Receiver)
	case e.Method == "":
		return fmt.Sprintf("%s does not implement %s", e.Receiver, e.Trait)
	case e.Trait != nil:
		return fmt.Sprintf("no implementation of %s.%s for %s", e.Trait, e.Method, e.Receiver)
	default:
		return fmt.Sprintf("%s has no method %s", e.Receiver, e.Method)
	}
}
