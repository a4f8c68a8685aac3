// Package flow builds control-flow graphs over checked function bodies.
// Blocks hold steps in evaluation order; scope entry and exit are explicit
// steps so that analyses can end borrows where their variables die.
package flow

import (
	"fmt"
	"strings"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/checker"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
)

// ====== Graph ======

// StepKind classifies steps.
type StepKind int

const (
	// StepStmt is a simple statement: var, assignment, expression, del,
	// pass, return or raise.
	StepStmt StepKind = iota
	// StepExpr evaluates a condition or an iterable.
	StepExpr
	// StepBind binds a for loop variable or an except clause name.
	StepBind
	StepScopeEnter
	StepScopeExit
)

func (k StepKind) String() string {
	switch k {
	case StepStmt:
		return "stmt"
	case StepExpr:
		return "expr"
	case StepBind:
		return "bind"
	case StepScopeEnter:
		return "enter"
	case StepScopeExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Step is one unit of evaluation. On a StepScopeExit, Stmt is the
// return, break or continue leaving the scope, and is nil when control
// reaches the end of the scope.
type Step struct {
	Stmt ast.Stmt
	Expr ast.Expr
	// Node is the declaring node of a StepBind.
	Node  ast.Node
	Scope *symbols.Scope
	Kind  StepKind
	// Raise marks a scope exit taken by an exception.
	Raise bool
}

func (s Step) String() string {
	switch s.Kind {
	case StepStmt:
		return s.Stmt.String()
	case StepExpr:
		return "eval " + s.Expr.String()
	case StepBind:
		switch n := s.Node.(type) {
		case *ast.For:
			return "bind " + n.Var
		case *ast.ExceptClause:
			return "bind " + n.Name
		}
		return "bind"
	default:
		return fmt.Sprintf("%s %s", s.Kind, s.Scope.Name)
	}
}

// Block is a basic block.
type Block struct {
	Steps []Step
	Succs []*Block
	Preds []*Block
	ID    int
	// Handler is set on the entry block of an except clause.
	Handler *ast.ExceptClause
}

// Graph is the control-flow graph of one function.
type Graph struct {
	Entry  *Block
	Exit   *Block
	Blocks []*Block
	Scope  *symbols.Scope
}

// Reachable returns the blocks reachable from the entry, in depth-first
// preorder.
func (g *Graph) Reachable() []*Block {
	seen := make(map[*Block]bool, len(g.Blocks))
	var out []*Block
	var visit func(b *Block)
	visit = func(b *Block) {
		if seen[b] {
			return
		}
		seen[b] = true
		out = append(out, b)
		for _, s := range b.Succs {
			visit(s)
		}
	}
	visit(g.Entry)
	return out
}

func (g *Graph) String() string {
	var b strings.Builder
	for _, blk := range g.Blocks {
		fmt.Fprintf(&b, "b%d:", blk.ID)
		if blk.Handler != nil {
			b.WriteString(" ; handler")
		}
		b.WriteByte('\n')
		for _, s := range blk.Steps {
			fmt.Fprintf(&b, "  %s\n", s)
		}
		if len(blk.Succs) > 0 {
			ids := make([]string, len(blk.Succs))
			for i, s := range blk.Succs {
				ids[i] = fmt.Sprintf("b%d", s.ID)
			}
			fmt.Fprintf(&b, "  -> %s\n", strings.Join(ids, ", "))
		}
	}
	return b.String()
}

// ====== Builder ======

type loop struct {
	head  *Block
	exit  *Block
	depth int
}

type try struct {
	pad   *Block
	depth int
}

type builder struct {
	g      *Graph
	info   *checker.Info
	cur    *Block
	scopes []*symbols.Scope
	loops  []loop
	trys   []try
}

// Build constructs the graph of fn. The function scope is entered at the
// entry block and exited on every path to the exit block.
func Build(fn *checker.Function, info *checker.Info) *Graph {
	b := &builder{g: &Graph{Scope: fn.Scope}, info: info}
	b.g.Entry = b.newBlock()
	b.g.Exit = &Block{}
	b.cur = b.g.Entry

	b.enter(fn.Scope)
	if !fn.Extern {
		b.stmts(fn.Def.Body)
	}
	if b.cur != nil {
		b.jump(b.g.Exit, 0, Step{})
	}

	b.g.Exit.ID = len(b.g.Blocks)
	b.g.Blocks = append(b.g.Blocks, b.g.Exit)
	return b.g
}

func (b *builder) newBlock() *Block {
	blk := &Block{ID: len(b.g.Blocks)}
	b.g.Blocks = append(b.g.Blocks, blk)
	return blk
}

func link(from, to *Block) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}

// current returns the block being filled. Code after return, raise,
// break or continue starts an unreachable block.
func (b *builder) current() *Block {
	if b.cur == nil {
		b.cur = b.newBlock()
	}
	return b.cur
}

func (b *builder) emit(s Step) {
	blk := b.current()
	blk.Steps = append(blk.Steps, s)
}

func (b *builder) enter(sc *symbols.Scope) {
	b.emit(Step{Kind: StepScopeEnter, Scope: sc})
	b.scopes = append(b.scopes, sc)
}

func (b *builder) exit() {
	sc := b.scopes[len(b.scopes)-1]
	b.scopes = b.scopes[:len(b.scopes)-1]
	b.emit(Step{Kind: StepScopeExit, Scope: sc})
}

// unwind returns a block exiting every open scope above depth, innermost
// first. via carries the cause of the exits.
func (b *builder) unwind(depth int, via Step) *Block {
	blk := b.newBlock()
	for i := len(b.scopes) - 1; i >= depth; i-- {
		exit := via
		exit.Kind, exit.Scope = StepScopeExit, b.scopes[i]
		blk.Steps = append(blk.Steps, exit)
	}
	return blk
}

// jump ends the current block with an edge to target, leaving the scopes
// above depth on the way.
func (b *builder) jump(target *Block, depth int, via Step) {
	if b.cur == nil {
		return
	}
	u := b.unwind(depth, via)
	link(b.cur, u)
	link(u, target)
	b.cur = nil
}

// mayRaise adds an edge from the current block to the innermost landing
// pad and continues in a fresh block.
func (b *builder) mayRaise() {
	if len(b.trys) == 0 || b.cur == nil {
		return
	}
	t := b.trys[len(b.trys)-1]
	u := b.unwind(t.depth, Step{Raise: true})
	link(b.cur, u)
	link(u, t.pad)
	next := b.newBlock()
	link(b.cur, next)
	b.cur = next
}

// raise leaves through the innermost landing pad, or the function exit.
func (b *builder) raise() {
	if len(b.trys) > 0 {
		t := b.trys[len(b.trys)-1]
		b.jump(t.pad, t.depth, Step{Raise: true})
		return
	}
	b.jump(b.g.Exit, 0, Step{Raise: true})
}

func (b *builder) stmts(list []ast.Stmt) {
	for _, s := range list {
		b.stmt(s)
	}
}

func (b *builder) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Return:
		b.emit(Step{Kind: StepStmt, Stmt: s})
		b.jump(b.g.Exit, 0, Step{Stmt: s})

	case *ast.Raise:
		b.emit(Step{Kind: StepStmt, Stmt: s})
		b.raise()

	case *ast.Break:
		if n := len(b.loops); n > 0 {
			b.jump(b.loops[n-1].exit, b.loops[n-1].depth, Step{Stmt: s})
		}

	case *ast.Continue:
		if n := len(b.loops); n > 0 {
			b.jump(b.loops[n-1].head, b.loops[n-1].depth, Step{Stmt: s})
		}

	case *ast.If:
		b.emit(Step{Kind: StepExpr, Expr: s.Cond})
		b.mayRaise()
		cond := b.cur
		join := b.newBlock()

		b.cur = b.newBlock()
		link(cond, b.cur)
		b.block(b.info.Scopes[s], s.Body)
		if b.cur != nil {
			link(b.cur, join)
		}

		if len(s.Else) > 0 {
			b.cur = b.newBlock()
			link(cond, b.cur)
			b.block(b.info.ElseScopes[s], s.Else)
			if b.cur != nil {
				link(b.cur, join)
			}
		} else {
			link(cond, join)
		}
		b.cur = join

	case *ast.While:
		head := b.newBlock()
		link(b.current(), head)
		b.cur = head
		b.emit(Step{Kind: StepExpr, Expr: s.Cond})
		b.mayRaise()
		cond := b.cur
		after := b.newBlock()

		b.cur = b.newBlock()
		link(cond, b.cur)
		b.loops = append(b.loops, loop{head: head, exit: after, depth: len(b.scopes)})
		b.block(b.info.Scopes[s], s.Body)
		b.loops = b.loops[:len(b.loops)-1]
		if b.cur != nil {
			link(b.cur, head)
		}
		link(cond, after)
		b.cur = after

	case *ast.For:
		b.emit(Step{Kind: StepExpr, Expr: s.Iter})
		b.mayRaise()
		head := b.newBlock()
		link(b.cur, head)
		after := b.newBlock()

		b.cur = b.newBlock()
		link(head, b.cur)
		b.loops = append(b.loops, loop{head: head, exit: after, depth: len(b.scopes)})
		b.enter(b.info.Scopes[s])
		b.emit(Step{Kind: StepBind, Node: s})
		b.stmts(s.Body)
		if b.cur != nil {
			b.exit()
			link(b.cur, head)
			b.cur = nil
		} else {
			b.scopes = b.scopes[:len(b.scopes)-1]
		}
		b.loops = b.loops[:len(b.loops)-1]
		link(head, after)
		b.cur = after

	case *ast.Try:
		b.try(s)

	default:
		b.emit(Step{Kind: StepStmt, Stmt: s})
		b.mayRaise()
	}
}

// block emits list inside sc, which may be nil for bodies the checker
// never scoped.
func (b *builder) block(sc *symbols.Scope, list []ast.Stmt) {
	if sc == nil {
		b.stmts(list)
		return
	}
	b.enter(sc)
	b.stmts(list)
	if b.cur != nil {
		b.exit()
	} else {
		b.scopes = b.scopes[:len(b.scopes)-1]
	}
}

func (b *builder) try(s *ast.Try) {
	pad := b.newBlock()
	after := b.newBlock()
	depth := len(b.scopes)

	// Entering the try may raise before any statement runs.
	link(b.current(), pad)
	b.trys = append(b.trys, try{pad: pad, depth: depth})
	b.block(b.info.Scopes[s], s.Body)
	b.trys = b.trys[:len(b.trys)-1]
	if b.cur != nil {
		link(b.cur, after)
	}

	catchAll := false
	for _, h := range s.Handlers {
		if h.Type == nil {
			catchAll = true
		}
		b.cur = b.newBlock()
		b.cur.Handler = h
		link(pad, b.cur)

		sc := b.info.Scopes[h]
		b.enter(sc)
		if h.Name != "" {
			b.emit(Step{Kind: StepBind, Node: h})
		}
		b.stmts(h.Body)
		if b.cur != nil {
			b.exit()
			link(b.cur, after)
		} else {
			b.scopes = b.scopes[:len(b.scopes)-1]
		}
	}
	if !catchAll {
		// Unmatched exceptions propagate.
		b.cur = pad
		b.raise()
	}
	b.cur = after
}
