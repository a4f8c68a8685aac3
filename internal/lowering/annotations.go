// Package lowering turns checked, monomorphized functions into MIR. All
// semantic decisions come from the checker's annotations; lowering only
// queries them.
package lowering

import (
	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/checker"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
	"github.com/ragazzi-robotics/ragaz/internal/traits"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// ====== Annotations ======

// Storage is where the value of a symbol lives.
type Storage int

const (
	// Stack values live in the function's frame.
	Stack Storage = iota
	// Heap values outlive the frame.
	Heap
)

func (s Storage) String() string {
	if s == Heap {
		return "heap"
	}
	return "stack"
}

// Annotations answers the queries code generation makes about a checked
// program.
type Annotations struct {
	info    *checker.Info
	storage map[*symbols.Symbol]Storage
}

// NewAnnotations wraps info and runs escape analysis over every checked
// function body.
func NewAnnotations(info *checker.Info) *Annotations {
	a := &Annotations{info: info, storage: make(map[*symbols.Symbol]Storage)}
	for _, fn := range info.Functions {
		if !fn.Extern && fn.Def != nil {
			a.escape(fn)
		}
	}
	return a
}

// Info returns the checker results the annotations are built on.
func (a *Annotations) Info() *checker.Info { return a.info }

// ConcreteType returns the final type of e. Names narrowed by an
// "is None" test have the narrowed type.
func (a *Annotations) ConcreteType(e ast.Expr) types.Type {
	if n, ok := e.(*ast.Name); ok {
		if t, ok := a.info.Narrowed[n]; ok {
			return t
		}
	}
	return a.info.Types[e]
}

// ResolvedTarget returns how c is dispatched: statically to a function,
// through a dispatch table slot, or through a function value.
func (a *Annotations) ResolvedTarget(c *ast.Call) traits.Target {
	return a.info.Targets[c]
}

// Callee returns the concrete function a static call reaches.
func (a *Annotations) Callee(c *ast.Call) (*checker.Function, bool) {
	fn, ok := a.info.Callees[c]
	return fn, ok && fn != nil
}

// StorageClass returns where sym lives.
func (a *Annotations) StorageClass(sym *symbols.Symbol) Storage {
	return a.storage[sym]
}
