package lowering

import (
	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/checker"
	"github.com/ragazzi-robotics/ragaz/internal/mir"
	"github.com/ragazzi-robotics/ragaz/internal/traits"
	"github.com/ragazzi-robotics/ragaz/internal/types"
)

// ====== Expressions ======

var binOps = map[string]mir.BinOpKind{
	"+":  mir.OpAdd,
	"-":  mir.OpSub,
	"*":  mir.OpMul,
	"/":  mir.OpDiv,
	"//": mir.OpFloorDiv,
	"%":  mir.OpMod,
	"**": mir.OpPow,
	"&":  mir.OpAnd,
	"|":  mir.OpOr,
	"^":  mir.OpXor,
	"<<": mir.OpShl,
	">>": mir.OpShr,
}

// orderings maps ordering operators to their offset from the "less
// than" predicate of each compare family.
var orderings = map[string]mir.CmpPred{"<": 0, "<=": 1, ">": 2, ">=": 3}

// expr lowers e bound to a location of type want, applying the implicit
// conversion the checker recorded for it.
func (t *transformer) expr(e ast.Expr, want types.Type) mir.Value {
	switch t.info.Convs[e] {
	case types.ConvBorrow, types.ConvBorrowMut:
		return t.addr(e)
	case types.ConvNumeric, types.ConvNullable:
		return t.convert(t.rvalue(e), t.ann.ConcreteType(e), want)
	case types.ConvTrait:
		v := t.rvalue(e)
		dst := t.nextValue()
		agg := mir.MakeAggregate{Dst: dst, Kind: mir.AggTraitObject, Elems: []mir.Value{v}}
		if table := t.info.Tables[e]; table != nil {
			agg.Type = table.Trait.String()
			agg.Table = t.tableName(table)
		}
		t.emit(agg)
		return mir.Ref(dst, mir.ClassPtr)
	}
	return t.rvalue(e)
}

// convert casts v from one type to another when they differ.
func (t *transformer) convert(v mir.Value, from, to types.Type) mir.Value {
	if from == nil || to == nil || types.Equal(from, to) {
		return v
	}
	dst := t.nextValue()
	t.emit(mir.Cast{Dst: dst, X: v, From: from.String(), To: to.String()})
	return mir.Ref(dst, classOf(to))
}

func (t *transformer) rvalue(e ast.Expr) mir.Value {
	switch e := e.(type) {
	case *ast.IntLit:
		if types.IsFloat(t.ann.ConcreteType(e)) {
			return mir.FloatConst(float64(e.Value))
		}
		return mir.IntConst(e.Value)
	case *ast.FloatLit:
		return mir.FloatConst(e.Value)
	case *ast.StrLit:
		return mir.StrConst(e.Value)
	case *ast.BoolLit:
		return mir.BoolConst(e.Value)
	case *ast.NoneLit:
		return mir.NoneConst()

	case *ast.Name:
		if fn, ok := t.info.FuncValues[e]; ok {
			return mir.Func(linkName(fn))
		}
		sym := t.symbol(e)
		if sym == nil {
			return mir.Value{}
		}
		v := t.load(t.slot(sym), sym.Type)
		if inner, ok := t.info.Narrowed[e]; ok {
			return t.convert(v, sym.Type, inner)
		}
		return v

	case *ast.TypeApply:
		if fn, ok := t.info.FuncValues[e]; ok {
			return mir.Func(linkName(fn))
		}

	case *ast.Attribute:
		base := t.rvalue(e.X)
		fld := t.field(e.X, e.Name)
		if fld == nil {
			return mir.Value{}
		}
		dst := t.nextValue()
		t.emit(mir.Field{Dst: dst, X: base, Name: fld.Name, Index: fld.Index})
		return mir.Ref(dst, classOf(fld.Type))

	case *ast.Index:
		x := t.rvalue(e.X)
		i := t.expr(e.Index, t.keyType(e.X))
		dst := t.nextValue()
		t.emit(mir.Index{Dst: dst, X: x, Index: i})
		return mir.Ref(dst, classOf(t.ann.ConcreteType(e)))

	case *ast.RefExpr:
		return t.addr(e.X)

	case *ast.Call:
		return t.call(e)

	case *ast.Binary:
		return t.binary(e)

	case *ast.Unary:
		return t.unary(e)

	case *ast.Cast:
		v := t.expr(e.X, nil)
		return t.convert(v, t.ann.ConcreteType(e.X), t.ann.ConcreteType(e))

	case *ast.TupleLit:
		return t.aggregate(mir.AggTuple, e, e.Elts, nil)
	case *ast.ListLit:
		return t.aggregate(mir.AggList, e, e.Elts, nil)
	case *ast.SetLit:
		return t.aggregate(mir.AggSet, e, e.Elts, nil)
	case *ast.DictLit:
		return t.aggregate(mir.AggDict, e, e.Keys, e.Values)
	}
	t.fail("%s: cannot lower %T", e.GetSpan(), e)
	return mir.Value{}
}

// addr returns the address of a place. Other expressions are stored in
// a temporary slot first.
func (t *transformer) addr(e ast.Expr) mir.Value {
	switch x := e.(type) {
	case *ast.Name:
		if sym := local(t.info, x); sym != nil {
			dst := t.nextValue()
			t.emit(mir.AddrOf{Dst: dst, Slot: t.slot(sym), Field: -1})
			return mir.Ref(dst, mir.ClassPtr)
		}
	case *ast.Attribute:
		base := t.rvalue(x.X)
		fld := t.field(x.X, x.Name)
		if fld == nil {
			return mir.Value{}
		}
		dst := t.nextValue()
		t.emit(mir.AddrOf{Dst: dst, Slot: base, Field: fld.Index})
		return mir.Ref(dst, mir.ClassPtr)
	}
	typ := t.ann.ConcreteType(e)
	slot := t.temp(typ)
	t.emit(mir.Store{Addr: slot, Val: t.rvalue(e)})
	dst := t.nextValue()
	t.emit(mir.AddrOf{Dst: dst, Slot: slot, Field: -1})
	return mir.Ref(dst, mir.ClassPtr)
}

// aggregate builds a tuple, list, set or dict literal. Dict keys and
// values are interleaved.
func (t *transformer) aggregate(kind mir.AggregateKind, e ast.Expr, elts, values []ast.Expr) mir.Value {
	typ := t.ann.ConcreteType(e)
	var args []types.Type
	if inst, ok := typ.(*types.Instance); ok {
		args = inst.Args
	}
	want := func(i int) types.Type {
		switch {
		case kind == mir.AggTuple && i < len(args):
			return args[i]
		case kind != mir.AggTuple && len(args) > 0:
			return args[0]
		}
		return nil
	}

	var elems []mir.Value
	for i, x := range elts {
		elems = append(elems, t.expr(x, want(i)))
		if values != nil {
			var vt types.Type
			if len(args) > 1 {
				vt = args[1]
			}
			elems = append(elems, t.expr(values[i], vt))
		}
	}
	dst := t.nextValue()
	t.emit(mir.MakeAggregate{Dst: dst, Type: typeName(typ), Elems: elems, Kind: kind})
	return mir.Ref(dst, mir.ClassPtr)
}

// ====== Operators ======

func (t *transformer) binary(e *ast.Binary) mir.Value {
	switch {
	case e.Op == "and" || e.Op == "or":
		return t.logical(e)

	case e.Op == "is" || e.Op == "is not":
		x, y := t.expr(e.X, nil), t.expr(e.Y, nil)
		pred := mir.CmpEQ
		if e.Op == "is not" {
			pred = mir.CmpNE
		}
		return t.cmp(pred, x, y)

	case comparison(e.Op):
		xt, yt := t.ann.ConcreteType(e.X), t.ann.ConcreteType(e.Y)
		x, y := t.expr(e.X, nil), t.expr(e.Y, nil)
		xp, xok := xt.(*types.Primitive)
		yp, yok := yt.(*types.Primitive)
		if xok && yok && types.IsNumeric(xp) && types.IsNumeric(yp) {
			w, err := types.Arithmetic(xp, yp, true)
			if err != nil {
				w = xp
			}
			return t.cmp(predicate(e.Op, w), t.convert(x, xt, w), t.convert(y, yt, w))
		}
		if _, ordered := orderings[e.Op]; ordered && types.Equal(types.Deref(xt), types.Str) {
			dst := t.nextValue()
			t.emit(mir.Call{Dst: dst, Callee: RuntimeCompare, Args: []mir.Value{x, y}})
			return t.cmp(predicate(e.Op, types.Int), mir.Ref(dst, mir.ClassInt), mir.IntConst(0))
		}
		return t.cmp(predicate(e.Op, nil), x, y)
	}

	rt := t.ann.ConcreteType(e)
	x := t.convert(t.expr(e.X, nil), t.ann.ConcreteType(e.X), rt)
	y := t.convert(t.expr(e.Y, nil), t.ann.ConcreteType(e.Y), rt)
	return t.arith(e.Op, x, y, rt)
}

func comparison(op string) bool {
	_, ordered := orderings[op]
	return ordered || op == "==" || op == "!="
}

// logical short-circuits "and" and "or" through a result slot.
func (t *transformer) logical(e *ast.Binary) mir.Value {
	res := t.temp(types.Bool)
	x := t.expr(e.X, types.Bool)
	t.emit(mir.Store{Addr: res, Val: x})

	rhs := t.newBlock("logic_rhs")
	end := t.newBlock("logic_end")
	if e.Op == "and" {
		t.emit(mir.CondBr{Cond: x, True: rhs.Name, False: end.Name})
	} else {
		t.emit(mir.CondBr{Cond: x, True: end.Name, False: rhs.Name})
	}

	t.cur = rhs
	t.emit(mir.Store{Addr: res, Val: t.expr(e.Y, types.Bool)})
	t.jump(end.Name)
	t.cur = end
	return t.load(res, types.Bool)
}

func (t *transformer) cmp(pred mir.CmpPred, x, y mir.Value) mir.Value {
	dst := t.nextValue()
	t.emit(mir.Cmp{Dst: dst, Pred: pred, LHS: x, RHS: y})
	return mir.Ref(dst, mir.ClassInt)
}

// predicate picks the compare predicate of op for operands of type typ.
func predicate(op string, typ types.Type) mir.CmpPred {
	switch op {
	case "==":
		return mir.CmpEQ
	case "!=":
		return mir.CmpNE
	}
	base := mir.CmpSLT
	if p, ok := typ.(*types.Primitive); ok {
		switch {
		case p.Group == types.GroupFloat:
			base = mir.CmpFLT
		case p.Group == types.GroupInt && !p.Signed:
			base = mir.CmpULT
		}
	}
	return base + orderings[op]
}

func (t *transformer) arith(op string, x, y mir.Value, rt types.Type) mir.Value {
	dst := t.nextValue()
	if op == "+" && types.Equal(rt, types.Str) {
		t.emit(mir.Call{Dst: dst, Callee: RuntimeConcat, Args: []mir.Value{x, y}})
		return mir.Ref(dst, mir.ClassPtr)
	}
	kind, ok := binOps[op]
	if !ok {
		t.fail("unknown operator %s", op)
		return mir.Value{}
	}
	t.emit(mir.BinOp{Dst: dst, Op: kind, LHS: x, RHS: y})
	return mir.Ref(dst, classOf(rt))
}

// combine applies a compound assignment operator and converts the result
// back to the target type.
func (t *transformer) combine(op string, cur, v mir.Value, tt, vt types.Type) mir.Value {
	tp, tok := tt.(*types.Primitive)
	vp, vok := vt.(*types.Primitive)
	if !tok || !vok || !types.IsNumeric(tp) || !types.IsNumeric(vp) {
		return t.arith(op, cur, v, tt)
	}
	w, err := types.Arithmetic(tp, vp, true)
	if err != nil {
		w = tp
	}
	res := t.arith(op, t.convert(cur, tt, w), t.convert(v, vt, w), w)
	return t.convert(res, w, tt)
}

func (t *transformer) unary(e *ast.Unary) mir.Value {
	var op mir.UnOpKind
	switch e.Op {
	case "not":
		op = mir.OpNot
	case "-":
		op = mir.OpNeg
	case "~":
		op = mir.OpBitNot
	default:
		return t.expr(e.X, nil)
	}
	want := t.ann.ConcreteType(e)
	x := t.convert(t.expr(e.X, nil), t.ann.ConcreteType(e.X), want)
	dst := t.nextValue()
	t.emit(mir.UnOp{Dst: dst, Op: op, X: x})
	return mir.Ref(dst, classOf(want))
}

// ====== Calls ======

func (t *transformer) call(c *ast.Call) mir.Value {
	if name, ok := t.info.Builtins[c]; ok {
		return t.builtin(c, name)
	}
	if cls, ok := t.info.Constructors[c]; ok {
		return t.construct(c, cls)
	}

	target := t.ann.ResolvedTarget(c)
	var res types.Type
	if target.Sig != nil {
		res = target.Sig.Result
	}
	dst := ""
	if !types.IsVoid(res) {
		dst = t.nextValue()
	}

	switch target.Kind {
	case traits.TargetDynamic:
		recv := t.expr(t.info.Receivers[c], nil)
		in := mir.CallDynamic{Dst: dst, Recv: recv, Slot: target.Slot, Args: t.args(c, target.Sig)}
		if target.Trait != nil {
			in.Trait = target.Trait.String()
		}
		if target.Method != nil {
			in.Name = target.Method.Name
		}
		t.emit(in)

	case traits.TargetValue:
		fv := t.expr(c.Func, nil)
		t.emit(mir.CallValue{Dst: dst, Fn: fv, Args: t.args(c, target.Sig)})

	default:
		fn, ok := t.ann.Callee(c)
		if !ok {
			t.fail("%s: call has no resolved callee", c.Span)
			return mir.Value{}
		}
		var args []mir.Value
		if recv, ok := t.info.Receivers[c]; ok {
			args = append(args, t.expr(recv, nil))
		}
		args = append(args, t.args(c, fn.Sig)...)
		t.emit(mir.Call{Dst: dst, Callee: linkName(fn), Args: args})
	}

	if dst == "" {
		return mir.Value{}
	}
	return mir.Ref(dst, classOf(res))
}

func (t *transformer) args(c *ast.Call, sig *types.Function) []mir.Value {
	out := make([]mir.Value, len(c.Args))
	for i, a := range c.Args {
		var want types.Type
		if sig != nil && i < len(sig.Params) {
			want = sig.Params[i]
		}
		out[i] = t.expr(a, want)
	}
	return out
}

// construct allocates the object and runs __init__ on it.
func (t *transformer) construct(c *ast.Call, cls *checker.Class) mir.Value {
	obj := mir.Ref(t.nextValue(), mir.ClassPtr)
	t.emit(mir.New{Dst: obj.Ref, Type: cls.Name})
	if fn, ok := t.ann.Callee(c); ok {
		args := append([]mir.Value{obj}, t.args(c, fn.Sig)...)
		t.emit(mir.Call{Callee: linkName(fn), Args: args})
	}
	return obj
}

func (t *transformer) builtin(c *ast.Call, name string) mir.Value {
	switch name {
	case checker.BuiltinPrint:
		args := make([]mir.Value, 0, len(c.Args)+1)
		for _, a := range c.Args {
			v := t.expr(a, nil)
			if fn, ok := t.info.StrMethods[a]; ok {
				dst := t.nextValue()
				t.emit(mir.Call{Dst: dst, Callee: linkName(fn), Args: []mir.Value{v}})
				v = mir.Ref(dst, mir.ClassPtr)
			}
			args = append(args, v)
		}
		callee := RuntimePrint
		for _, kw := range c.Keywords {
			if kw.Name == "file" {
				args = append([]mir.Value{t.expr(kw.Value, types.Int)}, args...)
				callee = RuntimePrintFile
			}
		}
		t.emit(mir.Call{Callee: callee, Args: args})
		return mir.Value{}

	case checker.BuiltinLen:
		dst := t.nextValue()
		t.emit(mir.Call{Dst: dst, Callee: RuntimeLen, Args: t.args(c, nil)})
		return mir.Ref(dst, mir.ClassInt)

	case checker.BuiltinRange:
		dst := t.nextValue()
		sig := &types.Function{Params: []types.Type{types.Int, types.Int}}
		t.emit(mir.Call{Dst: dst, Callee: RuntimeRange, Args: t.args(c, sig)})
		return mir.Ref(dst, mir.ClassPtr)
	}
	t.fail("%s: unknown builtin %s", c.Span, name)
	return mir.Value{}
}
