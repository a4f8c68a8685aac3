package lowering

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/checker"
	"github.com/ragazzi-robotics/ragaz/internal/generics"
	"github.com/ragazzi-robotics/ragaz/internal/mir"
	"github.com/ragazzi-robotics/ragaz/internal/ownership"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
	"github.com/ragazzi-robotics/ragaz/internal/traits"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// Runtime entry points called by lowered code.
const (
	RuntimePrint       = "rt.print"
	RuntimePrintFile   = "rt.print_file"
	RuntimeLen         = "rt.len"
	RuntimeRange       = "rt.range"
	RuntimeConcat      = "rt.str_concat"
	RuntimeCompare     = "rt.str_compare"
	RuntimeIter        = "rt.iter"
	RuntimeIterHasNext = "rt.iter_has_next"
	RuntimeIterNext    = "rt.iter_next"
)

// Program is the input of lowering: the checked functions of a session
// with the specializations and dispatch tables selected for emission.
type Program struct {
	Name        string
	Annotations *Annotations
	Functions   []*checker.Function
	// Emission filters specialized functions; nil emits all of them.
	Emission []*generics.Specialization
	Tables   []*traits.DispatchTable
	// Module is set once Lower succeeds.
	Module *mir.Module
}

// NewProgram collects the functions and classes recorded in info.
func NewProgram(name string, info *checker.Info, emission []*generics.Specialization, tables []*traits.DispatchTable) *Program {
	return &Program{
		Name:        name,
		Annotations: NewAnnotations(info),
		Functions:   info.Functions,
		Emission:    emission,
		Tables:      tables,
	}
}

var mangler = strings.NewReplacer(
	"&mut ", "mut_",
	"&", "ref_",
	"def(", "fn$",
	") -> ", "$to$",
	", ", "$",
	"<", "$",
	">", "_",
	"?", "$opt",
	" ", "",
)

// Mangle turns a checker symbol name into an emission-safe label.
// Specializations keep their type arguments: Pair<int, str>.__init__
// becomes Pair$int$str_.__init__.
func Mangle(name string) string { return mangler.Replace(name) }

// linkName is the emitted symbol of fn. Definitions and every reference
// go through it so that they agree.
func linkName(fn *checker.Function) string { return Mangle(fn.LinkName()) }

// tableName qualifies a dispatch table with the module of its class.
func (l *lowerer) tableName(tab *traits.DispatchTable) string {
	if cls, ok := l.classes[tab.Concrete.String()]; ok && cls.Module != "" {
		return Mangle(cls.Module + "." + tab.Name)
	}
	return Mangle(tab.Name)
}

// ====== Module ======

type lowerer struct {
	prog    *Program
	ann     *Annotations
	info    *checker.Info
	classes map[string]*checker.Class
	excIDs  map[string]int
}

// Lower emits the MIR module of prog and verifies its structure.
func Lower(prog *Program) (*mir.Module, error) {
	if prog == nil || prog.Annotations == nil {
		return nil, errors.New("lowering: program has no annotations")
	}
	l := &lowerer{
		prog:    prog,
		ann:     prog.Annotations,
		info:    prog.Annotations.Info(),
		classes: make(map[string]*checker.Class),
		excIDs:  make(map[string]int),
	}
	for _, cls := range l.info.Classes {
		l.classes[cls.Name] = cls
	}

	var emitted map[*generics.Specialization]bool
	if prog.Emission != nil {
		emitted = make(map[*generics.Specialization]bool, len(prog.Emission))
		for _, s := range prog.Emission {
			emitted[s] = true
		}
	}

	m := &mir.Module{Name: prog.Name}
	m.Exceptions = l.exceptions()
	externs := make(map[string]bool)
	for _, fn := range prog.Functions {
		if fn.Spec != nil && emitted != nil && !emitted[fn.Spec] {
			continue
		}
		// Modules may each declare the same extern.
		if fn.Extern {
			if externs[fn.LinkName()] {
				continue
			}
			externs[fn.LinkName()] = true
		}
		mf, err := l.function(fn)
		if err != nil {
			return nil, fmt.Errorf("lowering %s: %w", fn.LinkName(), err)
		}
		m.Functions = append(m.Functions, mf)
	}
	m.Tables = l.tables()

	if err := m.Verify(); err != nil {
		return nil, fmt.Errorf("lowering %s: %w", prog.Name, err)
	}
	prog.Module = m
	return m, nil
}

// exceptions numbers the exception classes after the base Exception.
func (l *lowerer) exceptions() []mir.ExceptionType {
	out := []mir.ExceptionType{{Name: checker.ExceptionTrait, ID: mir.BaseExceptionID}}
	for _, cls := range l.info.Classes {
		if !isException(cls) {
			continue
		}
		id := len(out)
		l.excIDs[cls.Name] = id
		out = append(out, mir.ExceptionType{Name: cls.Name, ID: id})
	}
	return out
}

func isException(cls *checker.Class) bool {
	for _, t := range cls.Traits {
		if t.Name == checker.ExceptionTrait {
			return true
		}
	}
	return false
}

func (l *lowerer) tables() []*mir.Table {
	out := make([]*mir.Table, 0, len(l.prog.Tables))
	for _, tab := range l.prog.Tables {
		entries := make([]string, len(tab.Entries))
		for i, m := range tab.Entries {
			entries[i] = Mangle(m.Symbol)
			if fn, ok := l.info.MethodFunc(m); ok {
				entries[i] = linkName(fn)
			}
		}
		out = append(out, &mir.Table{
			Name:     l.tableName(tab),
			Trait:    tab.Trait.String(),
			Concrete: tab.Concrete.String(),
			Entries:  entries,
			TypeTag:  tab.TypeTag,
		})
	}
	return out
}

// typeID returns the exception id of a raised value's type, or
// TagFromValue when only the runtime knows it.
func (l *lowerer) typeID(t types.Type) int {
	if inst, ok := types.Deref(t).(*types.Instance); ok {
		if id, ok := l.excIDs[inst.String()]; ok {
			return id
		}
	}
	return mir.TagFromValue
}

// exceptID returns the id an except clause matches.
func (l *lowerer) exceptID(t types.Type) int {
	if _, ok := t.(*types.Trait); ok || t == nil {
		return mir.BaseExceptionID
	}
	return l.typeID(t)
}

// ====== Functions ======

type loop struct {
	cont string
	brk  string
}

// transformer lowers one function body.
type transformer struct {
	*lowerer
	fn      *checker.Function
	out     *mir.Function
	entry   *mir.BasicBlock
	cur     *mir.BasicBlock
	pad     *mir.LandingPad
	slots   map[*symbols.Symbol]mir.Value
	drops   *ownership.Drops
	allocas []mir.Instr
	loops   []loop
	err     error
	values  int
	blocks  int
	pads    int
}

func (l *lowerer) function(fn *checker.Function) (*mir.Function, error) {
	out := &mir.Function{Name: linkName(fn), Result: typeName(fn.Sig.Result), Extern: fn.Extern}
	for _, p := range fn.Params {
		out.Parameters = append(out.Parameters, mir.Ref("%param_"+p.Name, classOf(p.Type)))
	}
	if fn.Extern || fn.Def == nil {
		out.Extern = true
		return out, nil
	}

	t := &transformer{lowerer: l, fn: fn, out: out, slots: make(map[*symbols.Symbol]mir.Value), drops: ownership.Plan(fn, l.info)}
	t.entry = &mir.BasicBlock{Name: "entry"}
	out.Blocks = append(out.Blocks, t.entry)
	t.cur = t.entry
	for i, p := range fn.Params {
		t.emit(mir.Store{Addr: t.slot(p), Val: out.Parameters[i]})
	}
	t.stmts(fn.Def.Body)
	t.endScope(fn.Scope)
	if t.cur != nil {
		t.emit(mir.Ret{})
	}
	t.entry.Instr = append(t.allocas, t.entry.Instr...)
	return out, t.err
}

func (t *transformer) fail(format string, args ...interface{}) {
	if t.err == nil {
		t.err = fmt.Errorf(format, args...)
	}
}

func (t *transformer) nextValue() string {
	v := fmt.Sprintf("%%%d", t.values)
	t.values++
	return v
}

// newBlock appends a block covered by the current landing pad.
func (t *transformer) newBlock(prefix string) *mir.BasicBlock {
	b := &mir.BasicBlock{Name: fmt.Sprintf("%s%d", prefix, t.blocks), Pad: t.pad}
	t.blocks++
	t.out.Blocks = append(t.out.Blocks, b)
	return b
}

// emit appends to the current block. Code after a terminator goes to a
// fresh unreachable block.
func (t *transformer) emit(in mir.Instr) {
	if t.cur == nil {
		t.cur = t.newBlock("dead")
	}
	t.cur.Instr = append(t.cur.Instr, in)
	if mir.IsTerminator(in) {
		t.cur = nil
	}
}

// jump ends the current block with a branch unless it already ended.
func (t *transformer) jump(target string) {
	if t.cur != nil {
		t.emit(mir.Br{Target: target})
	}
}

// slot returns the stack or heap slot of sym, allocating it in the entry
// block on first use.
func (t *transformer) slot(sym *symbols.Symbol) mir.Value {
	if v, ok := t.slots[sym]; ok {
		return v
	}
	v := mir.Ref(t.nextValue(), mir.ClassPtr)
	t.allocas = append(t.allocas, mir.Alloca{
		Dst:  v.Ref,
		Name: sym.Name,
		Type: typeName(sym.Type),
		Heap: t.ann.StorageClass(sym) == Heap,
	})
	t.slots[sym] = v
	return v
}

func (t *transformer) temp(typ types.Type) mir.Value {
	v := mir.Ref(t.nextValue(), mir.ClassPtr)
	t.allocas = append(t.allocas, mir.Alloca{Dst: v.Ref, Name: "tmp", Type: typeName(typ)})
	return v
}

func (t *transformer) load(addr mir.Value, typ types.Type) mir.Value {
	dst := t.nextValue()
	t.emit(mir.Load{Dst: dst, Addr: addr})
	return mir.Ref(dst, classOf(typ))
}

// ====== Destruction ======

// drop destroys the value sym owns.
func (t *transformer) drop(sym *symbols.Symbol) {
	t.emit(mir.Drop{Val: t.load(t.slot(sym), sym.Type), Type: typeName(sym.Type)})
}

func (t *transformer) release(syms []*symbols.Symbol) {
	for _, sym := range syms {
		t.drop(sym)
	}
}

// endScope destroys what sc still owns when control reaches its end.
func (t *transformer) endScope(sc *symbols.Scope) {
	if t.cur == nil || sc == nil {
		return
	}
	t.release(t.drops.Ends[sc])
}

// symbol returns the local a name resolves to.
func (t *transformer) symbol(n *ast.Name) *symbols.Symbol {
	sym := local(t.info, n)
	if sym == nil {
		t.fail("%s: %s is not a local variable", n.Span, n.ID)
	}
	return sym
}

// ====== Statements ======

func (t *transformer) stmts(list []ast.Stmt) {
	for _, s := range list {
		t.stmt(s)
	}
}

func (t *transformer) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VarDecl:
		sym := t.info.Defs[s]
		if sym == nil {
			t.fail("%s: %s was not declared", s.Span, s.Name)
			return
		}
		slot := t.slot(sym)
		if s.Value == nil {
			if prev := t.drops.Shadowed[s]; prev != nil {
				t.drop(prev)
			}
			return
		}
		v := t.expr(s.Value, sym.Type)
		if prev := t.drops.Shadowed[s]; prev != nil {
			t.drop(prev)
		}
		t.emit(mir.Store{Addr: slot, Val: v})

	case *ast.Assign:
		if s.Op != "" {
			t.augAssign(s)
			return
		}
		t.assign(s)

	case *ast.ExprStmt:
		t.expr(s.X, nil)

	case *ast.Return:
		if s.Value == nil {
			t.release(t.drops.Jumps[s])
			t.emit(mir.Ret{})
			return
		}
		v := t.expr(s.Value, t.fn.Sig.Result)
		t.release(t.drops.Jumps[s])
		t.emit(mir.Ret{Val: &v})

	case *ast.If:
		t.ifStmt(s)

	case *ast.While:
		t.whileStmt(s)

	case *ast.For:
		t.forStmt(s)

	case *ast.Break:
		if len(t.loops) == 0 {
			t.fail("%s: break outside of a loop", s.Span)
			return
		}
		t.release(t.drops.Jumps[s])
		t.emit(mir.Br{Target: t.loops[len(t.loops)-1].brk})

	case *ast.Continue:
		if len(t.loops) == 0 {
			t.fail("%s: continue outside of a loop", s.Span)
			return
		}
		t.release(t.drops.Jumps[s])
		t.emit(mir.Br{Target: t.loops[len(t.loops)-1].cont})

	case *ast.Pass:

	case *ast.Try:
		t.try(s)

	case *ast.Raise:
		if s.Value == nil {
			t.emit(mir.Raise{Value: mir.Ref(mir.ExceptionRef, mir.ClassPtr), TypeID: mir.TagFromValue})
			return
		}
		v := t.expr(s.Value, nil)
		t.emit(mir.Raise{Value: v, TypeID: t.typeID(t.ann.ConcreteType(s.Value))})

	case *ast.Del:
		if sym := t.symbol(s.Target); sym != nil {
			t.drop(sym)
		}

	default:
		t.fail("%s: cannot lower %T", s.GetSpan(), s)
	}
}

func (t *transformer) assign(s *ast.Assign) {
	switch target := s.Target.(type) {
	case *ast.Name:
		sym := t.symbol(target)
		if sym == nil {
			return
		}
		v := t.expr(s.Value, sym.Type)
		if t.drops.Reassigned[s] {
			t.drop(sym)
		}
		t.emit(mir.Store{Addr: t.slot(sym), Val: v})

	case *ast.Attribute:
		base := t.rvalue(target.X)
		fld := t.field(target.X, target.Name)
		if fld == nil {
			return
		}
		v := t.expr(s.Value, fld.Type)
		t.emit(mir.SetField{X: base, Val: v, Name: fld.Name, Index: fld.Index})

	case *ast.Index:
		x := t.rvalue(target.X)
		i := t.expr(target.Index, t.keyType(target.X))
		v := t.expr(s.Value, t.ann.ConcreteType(target))
		t.emit(mir.SetIndex{X: x, Index: i, Val: v})

	default:
		t.fail("%s: cannot assign to %s", s.Span, s.Target)
	}
}

// augAssign lowers "x op= v" as a load, the operation and a store back.
func (t *transformer) augAssign(s *ast.Assign) {
	op := strings.TrimSuffix(s.Op, "=")
	tt := t.ann.ConcreteType(s.Target)
	vt := t.ann.ConcreteType(s.Value)

	switch target := s.Target.(type) {
	case *ast.Name:
		sym := t.symbol(target)
		if sym == nil {
			return
		}
		slot := t.slot(sym)
		cur := t.load(slot, sym.Type)
		v := t.expr(s.Value, nil)
		t.emit(mir.Store{Addr: slot, Val: t.combine(op, cur, v, tt, vt)})

	case *ast.Attribute:
		base := t.rvalue(target.X)
		fld := t.field(target.X, target.Name)
		if fld == nil {
			return
		}
		dst := t.nextValue()
		t.emit(mir.Field{Dst: dst, X: base, Name: fld.Name, Index: fld.Index})
		v := t.expr(s.Value, nil)
		res := t.combine(op, mir.Ref(dst, classOf(fld.Type)), v, tt, vt)
		t.emit(mir.SetField{X: base, Val: res, Name: fld.Name, Index: fld.Index})

	case *ast.Index:
		x := t.rvalue(target.X)
		i := t.expr(target.Index, t.keyType(target.X))
		dst := t.nextValue()
		t.emit(mir.Index{Dst: dst, X: x, Index: i})
		v := t.expr(s.Value, nil)
		res := t.combine(op, mir.Ref(dst, classOf(tt)), v, tt, vt)
		t.emit(mir.SetIndex{X: x, Index: i, Val: res})

	default:
		t.fail("%s: cannot assign to %s", s.Span, s.Target)
	}
}

func (t *transformer) ifStmt(s *ast.If) {
	cond := t.expr(s.Cond, types.Bool)
	then := t.newBlock("if_then")
	var els *mir.BasicBlock
	if len(s.Else) > 0 {
		els = t.newBlock("if_else")
	}
	cont := t.newBlock("if_cont")

	alt := cont.Name
	if els != nil {
		alt = els.Name
	}
	t.emit(mir.CondBr{Cond: cond, True: then.Name, False: alt})

	t.cur = then
	t.stmts(s.Body)
	t.endScope(t.info.Scopes[s])
	t.jump(cont.Name)
	if els != nil {
		t.cur = els
		t.stmts(s.Else)
		t.endScope(t.info.ElseScopes[s])
		t.jump(cont.Name)
	}
	t.cur = cont
}

func (t *transformer) whileStmt(s *ast.While) {
	header := t.newBlock("while_header")
	body := t.newBlock("while_body")
	exit := t.newBlock("while_exit")

	t.jump(header.Name)
	t.cur = header
	cond := t.expr(s.Cond, types.Bool)
	t.emit(mir.CondBr{Cond: cond, True: body.Name, False: exit.Name})

	t.loops = append(t.loops, loop{cont: header.Name, brk: exit.Name})
	t.cur = body
	t.stmts(s.Body)
	t.endScope(t.info.Scopes[s])
	t.jump(header.Name)
	t.loops = t.loops[:len(t.loops)-1]
	t.cur = exit
}

// forStmt drives the runtime iterator protocol: rt.iter creates the
// iterator, rt.iter_has_next tests it and rt.iter_next advances it.
func (t *transformer) forStmt(s *ast.For) {
	src := t.expr(s.Iter, nil)
	it := mir.Ref(t.nextValue(), mir.ClassPtr)
	t.emit(mir.Call{Dst: it.Ref, Callee: RuntimeIter, Args: []mir.Value{src}})

	header := t.newBlock("for_header")
	body := t.newBlock("for_body")
	exit := t.newBlock("for_exit")

	t.jump(header.Name)
	t.cur = header
	more := t.nextValue()
	t.emit(mir.Call{Dst: more, Callee: RuntimeIterHasNext, Args: []mir.Value{it}})
	t.emit(mir.CondBr{Cond: mir.Ref(more, mir.ClassInt), True: body.Name, False: exit.Name})

	t.loops = append(t.loops, loop{cont: header.Name, brk: exit.Name})
	t.cur = body
	if sym := t.info.Defs[s]; sym != nil {
		elem := t.nextValue()
		t.emit(mir.Call{Dst: elem, Callee: RuntimeIterNext, Args: []mir.Value{it}})
		t.emit(mir.Store{Addr: t.slot(sym), Val: mir.Ref(elem, classOf(sym.Type))})
	}
	t.stmts(s.Body)
	t.endScope(t.info.Scopes[s])
	t.jump(header.Name)
	t.loops = t.loops[:len(t.loops)-1]
	t.cur = exit
}

// try covers the body's blocks with a landing pad whose clauses lead to
// the handlers. Handlers and the continuation use the enclosing pad.
func (t *transformer) try(s *ast.Try) {
	outer := t.pad
	pad := &mir.LandingPad{Outer: outer, Name: fmt.Sprintf("pad%d", t.pads)}
	t.pads++

	body := t.newBlock("try_body")
	body.Pad = pad
	handlers := make([]*mir.BasicBlock, len(s.Handlers))
	for i, h := range s.Handlers {
		handlers[i] = t.newBlock("except")
		pad.Clauses = append(pad.Clauses, mir.Clause{Target: handlers[i].Name, TypeID: t.exceptID(t.info.Excepts[h])})
	}
	cont := t.newBlock("try_cont")

	t.jump(body.Name)
	t.cur = body
	t.pad = pad
	t.stmts(s.Body)
	t.endScope(t.info.Scopes[s])
	t.jump(cont.Name)
	t.pad = outer

	for i, h := range s.Handlers {
		t.cur = handlers[i]
		if sym := t.info.Defs[h]; sym != nil {
			t.emit(mir.Store{Addr: t.slot(sym), Val: mir.Ref(mir.ExceptionRef, mir.ClassPtr)})
		}
		t.stmts(h.Body)
		t.endScope(t.info.Scopes[h])
		t.jump(cont.Name)
	}
	t.cur = cont
}

// ====== Types ======

func typeName(t types.Type) string {
	if t == nil {
		return "void"
	}
	return t.String()
}

func classOf(t types.Type) mir.ValueClass {
	if t == nil {
		return mir.ClassUnknown
	}
	p, ok := t.(*types.Primitive)
	if !ok {
		return mir.ClassPtr
	}
	switch p.Group {
	case types.GroupVoid:
		return mir.ClassUnknown
	case types.GroupBool, types.GroupInt, types.GroupUntypedInt:
		return mir.ClassInt
	case types.GroupFloat, types.GroupUntypedFloat:
		return mir.ClassFloat
	}
	return mir.ClassPtr
}

// field returns the attribute name of the class x evaluates to.
func (t *transformer) field(x ast.Expr, name string) *checker.Field {
	inst, ok := types.Deref(t.ann.ConcreteType(x)).(*types.Instance)
	if ok {
		if cls, ok := t.classes[inst.String()]; ok {
			if fld, ok := cls.Field(name); ok {
				return fld
			}
		}
	}
	t.fail("%s: no field %s", x.GetSpan(), name)
	return nil
}

// keyType is the index type of the container x evaluates to.
func (t *transformer) keyType(x ast.Expr) types.Type {
	if inst, ok := types.Deref(t.ann.ConcreteType(x)).(*types.Instance); ok && inst.Name == "dict" && len(inst.Args) == 2 {
		return inst.Args[0]
	}
	return types.Int
}
