// Package symbols implements nested lexical scopes and the symbols they
// own. Re-declaring a name in the same scope creates a fresh symbol that
// shadows the previous one; the two are never unified.
package symbols

import (
	"fmt"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/position"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// SymbolKind represents the kind of symbol.
type SymbolKind int

const (
	SymbolVariable SymbolKind = iota
	SymbolParameter
	SymbolFunction
	SymbolClass
	SymbolTrait
	SymbolAlias
	SymbolTypeParam
	SymbolPrimitive
	SymbolBuiltin
)

// String returns the string representation of SymbolKind.
func (k SymbolKind) String() string {
	switch k {
	case SymbolVariable:
		return "variable"
	case SymbolParameter:
		return "parameter"
	case SymbolFunction:
		return "function"
	case SymbolClass:
		return "class"
	case SymbolTrait:
		return "trait"
	case SymbolAlias:
		return "alias"
	case SymbolTypeParam:
		return "type parameter"
	case SymbolPrimitive:
		return "primitive"
	case SymbolBuiltin:
		return "builtin"
	default:
		return "unknown"
	}
}

// IsValue reports whether symbols of this kind denote runtime locations.
func (k SymbolKind) IsValue() bool {
	return k == SymbolVariable || k == SymbolParameter
}

// Symbol represents a named entity in the program.
type Symbol struct {
	// Decl is the declaring node, if any.
	Decl ast.Node
	// Type is the declared type of values, or the signature of functions.
	Type types.Type
	// Named is set for symbols that name types.
	Named *types.Named
	// Scope is the owning scope.
	Scope *Scope
	// Shadowed is the previous symbol of the same name in the same scope.
	Shadowed *Symbol
	Name     string
	DeclSpan position.Span
	ID       int
	Kind     SymbolKind
	Mutable  bool
	// Used is set once the symbol is read.
	Used bool
}

func (s *Symbol) String() string {
	if s.Type == nil {
		return fmt.Sprintf("%s %s", s.Kind, s.Name)
	}
	return fmt.Sprintf("%s %s: %s", s.Kind, s.Name, s.Type)
}

// ScopeKind classifies scopes.
type ScopeKind int

const (
	ScopeUniverse ScopeKind = iota
	ScopeModule
	ScopeFunction
	ScopeBlock
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeUniverse:
		return "universe"
	case ScopeModule:
		return "module"
	case ScopeFunction:
		return "function"
	case ScopeBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Scope represents a lexical scope.
type Scope struct {
	// parent is a back-reference only; scopes never own their parent.
	parent  *Scope
	symbols map[string]*Symbol
	ids     *int
	Name    string
	order   []*Symbol
	Kind    ScopeKind
	Depth   int
}

// NewUniverse creates the root scope holding builtins.
func NewUniverse() *Scope {
	return &Scope{symbols: make(map[string]*Symbol), ids: new(int), Name: "universe", Kind: ScopeUniverse}
}

// NewScope creates a child scope of parent.
func NewScope(parent *Scope, kind ScopeKind, name string) *Scope {
	return &Scope{
		parent:  parent,
		symbols: make(map[string]*Symbol),
		ids:     parent.ids,
		Name:    name,
		Kind:    kind,
		Depth:   parent.Depth + 1,
	}
}

// Parent returns the enclosing scope, or nil for the universe.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Declare adds sym to the scope. A symbol already bound to the same name
// becomes sym.Shadowed and is no longer found by lookups.
func (s *Scope) Declare(sym *Symbol) *Symbol {
	*s.ids++
	sym.ID = *s.ids
	sym.Scope = s
	sym.Shadowed = s.symbols[sym.Name]
	s.symbols[sym.Name] = sym
	s.order = append(s.order, sym)
	return sym
}

// LookupLocal finds a name in this scope only.
func (s *Scope) LookupLocal(name string) *Symbol {
	return s.symbols[name]
}

// Lookup finds a name in this scope or the nearest enclosing one.
func (s *Scope) Lookup(name string) *Symbol {
	for sc := s; sc != nil; sc = sc.parent {
		if sym, ok := sc.symbols[name]; ok {
			return sym
		}
	}
	return nil
}

// LookupType implements types.Namespace.
func (s *Scope) LookupType(name string) (*types.Named, bool) {
	sym := s.Lookup(name)
	if sym == nil || sym.Named == nil {
		return nil, false
	}
	return sym.Named, true
}

// Symbols returns every symbol declared in the scope, in declaration
// order, shadowed ones included.
func (s *Scope) Symbols() []*Symbol {
	return s.order
}

// Function returns the nearest enclosing function scope, or nil.
func (s *Scope) Function() *Scope {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.Kind == ScopeFunction {
			return sc
		}
	}
	return nil
}

// Module returns the name of the enclosing module scope. Prelude
// definitions live in the universe and have no module.
func (s *Scope) Module() string {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.Kind == ScopeModule {
			return sc.Name
		}
	}
	return ""
}

// Encloses reports whether inner is s or nested within s.
func (s *Scope) Encloses(inner *Scope) bool {
	for sc := inner; sc != nil; sc = sc.parent {
		if sc == s {
			return true
		}
	}
	return false
}

// DeclareType binds a type name.
func (s *Scope) DeclareType(kind SymbolKind, named *types.Named, decl ast.Node, span position.Span) *Symbol {
	return s.Declare(&Symbol{Name: named.Name, Kind: kind, Named: named, Type: named.Type, Decl: decl, DeclSpan: span})
}
