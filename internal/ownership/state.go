package ownership

import (
	"github.com/ragazzi-robotics/ragaz/internal/position"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
)

// ====== Ownership State ======

// Kind is the ownership state of a symbol at one program point.
type Kind int

const (
	Uninitialized Kind = iota
	Owned
	Moved
	Borrowed
)

func (k Kind) String() string {
	switch k {
	case Uninitialized:
		return "uninitialized"
	case Owned:
		return "owned"
	case Moved:
		return "moved"
	case Borrowed:
		return "borrowed"
	default:
		return "unknown"
	}
}

// rank orders kinds for merging: a symbol is Owned after a join only if
// it is Owned on every incoming edge, and Moved if it is Moved on any.
func (k Kind) rank() int {
	switch k {
	case Owned, Borrowed:
		return 0
	case Uninitialized:
		return 1
	default:
		return 2
	}
}

// State is the ownership state of one symbol. Count is the number of
// active shared borrows; Mutable reports an active mutable borrow. At is
// the site of the move for Moved symbols.
type State struct {
	At      position.Span
	Kind    Kind
	Count   int
	Mutable bool
}

type fieldKey struct {
	sym  *symbols.Symbol
	name string
}

// borrow is an active reference to owner. A nil holder marks a
// temporary that ends with the enclosing call or statement.
type borrow struct {
	owner   *symbols.Symbol
	holder  *symbols.Symbol
	span    position.Span
	id      int
	mutable bool
}

type borrowKey struct {
	owner   *symbols.Symbol
	holder  *symbols.Symbol
	span    position.Span
	mutable bool
}

func (b borrow) key() borrowKey {
	return borrowKey{owner: b.owner, holder: b.holder, span: b.span, mutable: b.mutable}
}

// env is the state at one program point. Symbols missing from vars are
// Uninitialized.
type env struct {
	vars    map[*symbols.Symbol]State
	fields  map[fieldKey]position.Span
	borrows []borrow
}

func newEnv() *env {
	return &env{
		vars:   make(map[*symbols.Symbol]State),
		fields: make(map[fieldKey]position.Span),
	}
}

func (e *env) clone() *env {
	c := &env{
		vars:    make(map[*symbols.Symbol]State, len(e.vars)),
		fields:  make(map[fieldKey]position.Span, len(e.fields)),
		borrows: append([]borrow(nil), e.borrows...),
	}
	for k, v := range e.vars {
		c.vars[k] = v
	}
	for k, v := range e.fields {
		c.fields[k] = v
	}
	return c
}

// join merges o into e and reports whether e changed.
func (e *env) join(o *env) bool {
	changed := false
	for sym, ob := range o.vars {
		cur, ok := e.vars[sym]
		if !ok {
			cur = State{Kind: Uninitialized}
		}
		if ob.Kind.rank() > cur.Kind.rank() {
			e.vars[sym] = State{Kind: ob.Kind, At: ob.At}
			changed = true
		} else if !ok {
			e.vars[sym] = cur
			changed = true
		}
	}
	for sym, cur := range e.vars {
		if _, ok := o.vars[sym]; !ok && cur.Kind.rank() < Uninitialized.rank() {
			e.vars[sym] = State{Kind: Uninitialized}
			changed = true
		}
	}
	for k, at := range o.fields {
		if _, ok := e.fields[k]; !ok {
			e.fields[k] = at
			changed = true
		}
	}

	have := make(map[borrowKey]bool, len(e.borrows))
	for _, b := range e.borrows {
		have[b.key()] = true
	}
	for _, b := range o.borrows {
		if !have[b.key()] {
			e.borrows = append(e.borrows, b)
			have[b.key()] = true
			changed = true
		}
	}
	return changed
}

// state returns the state of sym with its active borrows folded in.
func (e *env) state(sym *symbols.Symbol) State {
	st, ok := e.vars[sym]
	if !ok {
		return State{Kind: Uninitialized}
	}
	if st.Kind != Owned {
		return st
	}
	for _, b := range e.borrows {
		if b.owner != sym {
			continue
		}
		st.Kind = Borrowed
		if b.mutable {
			st.Mutable = true
		} else {
			st.Count++
		}
	}
	return st
}

// activeBorrow returns the first borrow of owner, for related locations.
func (e *env) activeBorrow(owner *symbols.Symbol, mutableOnly bool) (borrow, bool) {
	for _, b := range e.borrows {
		if b.owner == owner && (!mutableOnly || b.mutable) {
			return b, true
		}
	}
	return borrow{}, false
}

func (e *env) find(id int) (int, bool) {
	for i, b := range e.borrows {
		if b.id == id {
			return i, true
		}
	}
	return 0, false
}

// release drops every borrow matching drop.
func (e *env) release(drop func(b borrow) bool) {
	kept := e.borrows[:0]
	for _, b := range e.borrows {
		if !drop(b) {
			kept = append(kept, b)
		}
	}
	e.borrows = kept
}

// forget removes sym and everything it owns or holds.
func (e *env) forget(sym *symbols.Symbol) {
	delete(e.vars, sym)
	e.clearFields(sym)
	e.release(func(b borrow) bool { return b.owner == sym || b.holder == sym })
}

func (e *env) clearFields(sym *symbols.Symbol) {
	for k := range e.fields {
		if k.sym == sym {
			delete(e.fields, k)
		}
	}
}

// movedField returns a moved field of sym, if any.
func (e *env) movedField(sym *symbols.Symbol) (string, position.Span, bool) {
	for k, at := range e.fields {
		if k.sym == sym {
			return k.name, at, true
		}
	}
	return "", position.Span{}, false
}
