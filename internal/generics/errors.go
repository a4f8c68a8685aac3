package generics

import (
	"fmt"
	"strings"
)

// DuplicateParamError reports a type parameter name declared twice for one
// definition, including a method parameter shadowing a class parameter.
type DuplicateParamError struct {
	Name string
	Def  string
}

func (e *DuplicateParamError) Error() string {
	if e.Def == "" {
		return fmt.Sprintf("duplicate type parameter %s", e.Name)
	}
	return fmt.Sprintf("duplicate type parameter %s in %s", e.Name, e.Def)
}

// DepthError reports an instantiation chain longer than the configured
// bound.
type DepthError struct {
	Chain []string
	Limit int
}

func (e *DepthError) Error() string {
	shown := e.Chain
	if len(shown) > 6 {
		shown = append(append([]string{}, shown[:3]...), append([]string{"..."}, shown[len(shown)-3:]...)...)
	}
	return fmt.Sprintf("instantiation depth exceeds %d: %s", e.Limit, strings.Join(shown, " -> "))
}
